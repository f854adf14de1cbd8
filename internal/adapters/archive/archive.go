// Package archive reads and rewrites the DNS section of Pi-hole Teleporter
// backups. Every entry except the configuration document is carried over
// byte for byte.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/zip"
	"github.com/pelletier/go-toml/v2"

	"github.com/thomaslazar/pihole-dnspropagate/internal/domain/teleporter"
)

const (
	// ConfigEntryPath is the Teleporter entry holding pihole.toml.
	ConfigEntryPath = "etc/pihole/pihole.toml"
	// LegacyConfigEntryPath is accepted when reading older archives.
	LegacyConfigEntryPath = "pihole/pihole.toml"

	dnsTableKey = "dns"
	hostsKey    = "hosts"
	cnameKey    = "cnameRecords"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ExtractRecords returns the hosts and CNAME records stored in the archive.
// A missing config entry, dns table or array yields empty slices.
func ExtractRecords(data []byte) (teleporter.RecordSet, error) {
	zr, err := openArchive(data)
	if err != nil {
		return teleporter.RecordSet{}, err
	}

	entry := findEntry(zr, ConfigEntryPath)
	if entry == nil {
		entry = findEntry(zr, LegacyConfigEntryPath)
	}
	if entry == nil {
		return teleporter.EmptyRecordSet(), nil
	}

	raw, err := readEntry(entry)
	if err != nil {
		return teleporter.RecordSet{}, err
	}
	doc, err := parseDocument(decodeText(raw))
	if err != nil {
		return teleporter.RecordSet{}, err
	}

	dns, ok := doc[dnsTableKey].(map[string]any)
	if !ok {
		return teleporter.EmptyRecordSet(), nil
	}
	return teleporter.RecordSet{
		Hosts:        stringArray(dns[hostsKey]),
		CNAMERecords: stringArray(dns[cnameKey]),
	}, nil
}

// ReplaceDNSSection rewrites dns.hosts and dns.cnameRecords of the config
// entry with records, preserving their order. Other entries are copied raw so
// their compressed bytes, method and timestamps are unchanged. Directory
// entries are dropped; the paths of the remaining entries imply them.
func ReplaceDNSSection(data []byte, records teleporter.RecordSet) ([]byte, error) {
	zr, err := openArchive(data)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	replaced := false

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}

		if !isEntry(f.Name, ConfigEntryPath) {
			if err := zw.Copy(f); err != nil {
				return nil, fmt.Errorf("failed to copy entry %s: %w", f.Name, err)
			}
			continue
		}

		raw, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		rewritten, err := rewriteConfig(raw, records)
		if err != nil {
			return nil, err
		}

		hdr := &zip.FileHeader{
			Name:          f.Name,
			Comment:       f.Comment,
			NonUTF8:       f.NonUTF8,
			Method:        f.Method,
			Modified:      f.Modified,
			ExternalAttrs: f.ExternalAttrs,
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("failed to create entry %s: %w", f.Name, err)
		}
		if _, err := w.Write(rewritten); err != nil {
			return nil, fmt.Errorf("failed to write entry %s: %w", f.Name, err)
		}
		replaced = true
	}

	if !replaced {
		return nil, fmt.Errorf("%w: archive has no %s entry", teleporter.ErrFormat, ConfigEntryPath)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return out.Bytes(), nil
}

func rewriteConfig(raw []byte, records teleporter.RecordSet) ([]byte, error) {
	text := decodeText(raw)
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", teleporter.ErrFormat, ConfigEntryPath)
	}
	crlf := strings.Contains(text, "\r\n")
	trailingNewline := strings.HasSuffix(text, "\n")

	doc, err := parseDocument(text)
	if err != nil {
		return nil, err
	}

	dns, ok := doc[dnsTableKey].(map[string]any)
	if !ok {
		dns = map[string]any{}
		doc[dnsTableKey] = dns
	}
	dns[hostsKey] = cloneStrings(records.Hosts)
	dns[cnameKey] = cloneStrings(records.CNAMERecords)

	serialized, err := toml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to serialize %s: %v", teleporter.ErrFormat, ConfigEntryPath, err)
	}
	return []byte(normalizeLineEndings(string(serialized), crlf, trailingNewline)), nil
}

func normalizeLineEndings(text string, crlf, trailingNewline bool) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if trailingNewline {
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
	} else {
		text = strings.TrimRight(text, "\n")
	}
	if crlf {
		text = strings.ReplaceAll(text, "\n", "\r\n")
	}
	return text
}

func openArchive(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", teleporter.ErrFormat, err)
	}
	return zr, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %v", teleporter.ErrFormat, f.Name, err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", teleporter.ErrFormat, f.Name, err)
	}
	return raw, nil
}

func parseDocument(text string) (map[string]any, error) {
	doc := map[string]any{}
	if err := toml.Unmarshal([]byte(text), &doc); err != nil {
		var de *toml.DecodeError
		if errors.As(err, &de) {
			row, col := de.Position()
			return nil, fmt.Errorf("%w: failed to parse pihole.toml at %d:%d: %v", teleporter.ErrFormat, row, col, err)
		}
		return nil, fmt.Errorf("%w: failed to parse pihole.toml: %v", teleporter.ErrFormat, err)
	}
	return doc, nil
}

func decodeText(raw []byte) string {
	return string(bytes.TrimPrefix(raw, utf8BOM))
}

func findEntry(zr *zip.Reader, path string) *zip.File {
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() && isEntry(f.Name, path) {
			return f
		}
	}
	return nil
}

func isEntry(name, path string) bool {
	return strings.EqualFold(strings.TrimLeft(name, "/"), path)
}

func stringArray(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func cloneStrings(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	return out
}
