package ics

import "strings"

// Unfold joins RFC 5545 continuation lines (lines beginning with a space or
// tab) onto the previous line, drops blank lines and re-emits the payload
// with CRLF line endings. Feeds in the wild mix LF and CRLF and sometimes
// carry blank lines between blocks, which the block parser rejects.
func Unfold(raw []byte) []byte {
	s := strings.ReplaceAll(string(raw), "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, ln := range lines {
		if len(out) > 0 && (strings.HasPrefix(ln, " ") || strings.HasPrefix(ln, "\t")) {
			out[len(out)-1] += ln[1:]
			continue
		}
		if strings.TrimSpace(ln) == "" {
			continue
		}
		out = append(out, ln)
	}
	if len(out) == 0 {
		return nil
	}
	return []byte(strings.Join(out, "\r\n") + "\r\n")
}
