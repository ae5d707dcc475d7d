package gcsproto

import "strings"

// GoogHash holds the parsed entries of an x-goog-hash response header:
// comma-separated "name=base64value" pairs (spec.md §4.1, §GLOSSARY).
type GoogHash struct {
	CRC32C string // base64, empty if absent
	MD5    string // base64, empty if absent
}

// ParseGoogHash parses the x-goog-hash header value.
func ParseGoogHash(header string) GoogHash {
	var gh GoogHash
	for _, entry := range strings.Split(header, ",") {
		entry = strings.TrimSpace(entry)
		name, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		// base64 values themselves may contain '=' padding; Cut only
		// splits on the first '=', so value retains any trailing '='.
		switch strings.TrimSpace(name) {
		case "crc32c":
			gh.CRC32C = strings.TrimSpace(value)
		case "md5":
			gh.MD5 = strings.TrimSpace(value)
		}
	}
	return gh
}

// FormatGoogHash renders a GoogHash back into header form (used by gcstest's
// fake server, mirroring the real service's response).
func FormatGoogHash(gh GoogHash) string {
	var parts []string
	if gh.CRC32C != "" {
		parts = append(parts, "crc32c="+gh.CRC32C)
	}
	if gh.MD5 != "" {
		parts = append(parts, "md5="+gh.MD5)
	}
	return strings.Join(parts, ",")
}
