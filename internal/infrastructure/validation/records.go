package validation

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/miekg/dns"

	"github.com/thomaslazar/pihole-dnspropagate/internal/domain/teleporter"
)

var (
	// ErrMalformedHost indicates a host record that is not "<ip> <name> [<name>...]"
	ErrMalformedHost = errors.New("host record must be an address followed by at least one name")

	// ErrInvalidAddress indicates that the address of a host record does not parse
	ErrInvalidAddress = errors.New("invalid IP address")

	// ErrMalformedCNAME indicates an alias record that is not "<alias>,<target>[,<ttl>]"
	ErrMalformedCNAME = errors.New("alias record must be \"<alias>,<target>[,<ttl>]\"")

	// ErrInvalidTTL indicates a non-numeric or negative alias TTL
	ErrInvalidTTL = errors.New("alias TTL must be a non-negative integer")

	// ErrInvalidName indicates that a name is not a usable DNS name
	ErrInvalidName = errors.New("invalid DNS name")

	// ErrNameStartsWithHyphen indicates that a label starts with a hyphen
	ErrNameStartsWithHyphen = errors.New("label cannot start with a hyphen")

	// ErrNameEndsWithHyphen indicates that a label ends with a hyphen
	ErrNameEndsWithHyphen = errors.New("label cannot end with a hyphen")
)

// Kind tells which record list an entry came from.
type Kind string

const (
	KindHost  Kind = "host"
	KindCNAME Kind = "cname"
)

// Problem describes one entry that does not look like what Pi-hole expects.
type Problem struct {
	Kind  Kind
	Entry string
	Err   error
}

// Lint checks every entry of records. Entries are never modified; callers
// decide what to do with the problems.
func Lint(records teleporter.RecordSet) []Problem {
	var problems []Problem
	for _, entry := range records.Hosts {
		if err := ValidateHostRecord(entry); err != nil {
			problems = append(problems, Problem{Kind: KindHost, Entry: entry, Err: err})
		}
	}
	for _, entry := range records.CNAMERecords {
		if err := ValidateCNAMERecord(entry); err != nil {
			problems = append(problems, Problem{Kind: KindCNAME, Entry: entry, Err: err})
		}
	}
	return problems
}

// ValidateHostRecord validates a dns.hosts entry such as "10.0.0.1 nas.lan nas".
func ValidateHostRecord(entry string) error {
	fields := strings.Fields(entry)
	if len(fields) < 2 {
		return ErrMalformedHost
	}
	if _, err := netip.ParseAddr(fields[0]); err != nil {
		return fmt.Errorf("%w %q", ErrInvalidAddress, fields[0])
	}
	for _, name := range fields[1:] {
		if err := ValidateDomainName(name); err != nil {
			return err
		}
	}
	return nil
}

// ValidateCNAMERecord validates a dns.cnameRecords entry such as
// "www.lan,nas.lan" or "www.lan,nas.lan,300".
func ValidateCNAMERecord(entry string) error {
	parts := strings.Split(entry, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return ErrMalformedCNAME
	}
	for _, name := range parts[:2] {
		if err := ValidateDomainName(strings.TrimSpace(name)); err != nil {
			return err
		}
	}
	if len(parts) == 3 {
		if ttl, err := strconv.Atoi(strings.TrimSpace(parts[2])); err != nil || ttl < 0 {
			return ErrInvalidTTL
		}
	}
	return nil
}

// ValidateDomainName accepts absolute or relative names made of RFC 1123
// labels. Case is not significant.
func ValidateDomainName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if _, ok := dns.IsDomainName(name); !ok {
		return fmt.Errorf("%w %q", ErrInvalidName, name)
	}
	for _, label := range dns.SplitDomainName(name) {
		if strings.HasPrefix(label, "-") {
			return ErrNameStartsWithHyphen
		}
		if strings.HasSuffix(label, "-") {
			return ErrNameEndsWithHyphen
		}
		if !isHostLabel(label) {
			return fmt.Errorf("%w %q", ErrInvalidName, name)
		}
	}
	return nil
}

func isHostLabel(label string) bool {
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
