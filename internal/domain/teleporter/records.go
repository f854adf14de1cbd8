package teleporter

import "strings"

// RecordSet holds the custom DNS entries of a node. Entries are opaque strings
// such as "10.0.0.1 host.lan" (hosts) or "alias.lan,host.lan" (CNAME records).
type RecordSet struct {
	Hosts        []string `json:"hosts"`
	CNAMERecords []string `json:"cname_records"`
}

// RecordCounts is the size summary reported in a NodeOutcome.
type RecordCounts struct {
	Hosts   int `json:"hosts"`
	Aliases int `json:"aliases"`
}

// EmptyRecordSet returns a record set with non-nil empty slices.
func EmptyRecordSet() RecordSet {
	return RecordSet{Hosts: []string{}, CNAMERecords: []string{}}
}

func (r RecordSet) Counts() RecordCounts {
	return RecordCounts{Hosts: len(r.Hosts), Aliases: len(r.CNAMERecords)}
}

// Equal compares both sequences as case-insensitive sets; order and
// duplicates are ignored.
func (r RecordSet) Equal(other RecordSet) bool {
	return sameSet(r.Hosts, other.Hosts) && sameSet(r.CNAMERecords, other.CNAMERecords)
}

func sameSet(a, b []string) bool {
	left := foldSet(a)
	right := foldSet(b)
	if len(left) != len(right) {
		return false
	}
	for k := range left {
		if _, ok := right[k]; !ok {
			return false
		}
	}
	return true
}

func foldSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = struct{}{}
	}
	return set
}
