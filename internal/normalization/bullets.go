package normalization

import (
	"regexp"
	"strings"
)

// Normalize converts loosely delimited section text into one bullet per line.
// It is idempotent: already-bulleted text passes through unchanged, and the
// output of Normalize is itself already-bulleted.
//
// Flat strings like "Fever for 3 days - Cough - BP 130/85" are split at
// " - " and ". - " seams. A seam flanked by digits on both sides is a numeric
// range (e.g. "10 - 20 mg") and is never split; hyphens inside words
// (co-amoxiclav) are never seams because a seam requires whitespace after the
// hyphen.
func Normalize(section string) string {
	if strings.TrimSpace(section) == "" {
		return ""
	}
	if isBulleted(section) {
		return section
	}

	var items []string
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		items = append(items, splitSeams(line)...)
	}
	if len(items) == 0 {
		return ""
	}

	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(item)
	}
	return b.String()
}

var bulletPrefixes = []string{"- ", "* ", "• "}

func isBulleted(s string) bool {
	for _, line := range strings.Split(s, "\n") {
		t := strings.TrimSpace(line)
		if t == "" {
			continue
		}
		for _, p := range bulletPrefixes {
			if strings.HasPrefix(t, p) {
				return true
			}
		}
		if t == "-" || t == "*" {
			return true
		}
	}
	return false
}

// seamRe matches ". - " style seams and plain " - " seams. Whitespace is
// required on the right of the hyphen so intra-word hyphens never match.
var seamRe = regexp.MustCompile(`\.\s*-\s+|\s+-\s+`)

func splitSeams(line string) []string {
	locs := seamRe.FindAllStringIndex(line, -1)
	var segs []string
	prev := 0
	for _, loc := range locs {
		if digitFlanked(line, loc[0], loc[1]) {
			continue
		}
		segs = append(segs, line[prev:loc[0]])
		prev = loc[1]
	}
	segs = append(segs, line[prev:])

	out := make([]string, 0, len(segs))
	for _, seg := range segs {
		seg = strings.TrimSpace(seg)
		seg = strings.TrimRight(seg, ".")
		seg = strings.TrimSpace(seg)
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func digitFlanked(s string, start, end int) bool {
	if start == 0 || end >= len(s) {
		return false
	}
	return isDigit(s[start-1]) && isDigit(s[end])
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
