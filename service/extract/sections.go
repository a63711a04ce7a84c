package extract

import (
	"regexp"
	"strings"
)

var (
	zoneHeader   = regexp.MustCompile(`(?i)ZONE \d+`)
	zoneBoundary = regexp.MustCompile(`(?i)ZONE \d+|Child_TX|Process IDs:|Reception IDs:`)

	fieldHeader   = regexp.MustCompile(`(?i)FIELD \d+`)
	fieldBoundary = regexp.MustCompile(`(?i)FIELD \d+`)
)

// section is one headed span of a note, such as "ZONE 2" and the text after it.
type section struct {
	label string
	body  string
}

// splitSections finds every header in document order. A section body runs from
// the end of its header to the start of the next boundary match, or to the end
// of the text.
func splitSections(text string, header, boundary *regexp.Regexp) []section {
	var out []section
	pos := 0
	for pos < len(text) {
		loc := header.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, bodyStart := pos+loc[0], pos+loc[1]
		end := len(text)
		if b := boundary.FindStringIndex(text[bodyStart:]); b != nil {
			end = bodyStart + b[0]
		}
		out = append(out, section{
			label: text[start:bodyStart],
			body:  text[bodyStart:end],
		})
		pos = end
	}
	return out
}

// sectionValues holds what a zone or field section contributes.
type sectionValues struct {
	species      *string
	harvestBegin *string
	harvestEnd   *string
}

// parseSection collects every species line (joined with ", ") and the first
// harvest begin and end dates in a section body.
func parseSection(body string) sectionValues {
	var v sectionValues

	var species []string
	for _, m := range speciesPattern.FindAllStringSubmatch(body, -1) {
		if s := strings.TrimSpace(m[1]); s != "" {
			species = append(species, s)
		}
	}
	if len(species) > 0 {
		v.species = ptr(strings.Join(species, ", "))
	}

	if m := harvestBeginPattern.FindStringSubmatch(body); m != nil {
		v.harvestBegin = ptr(m[1])
	}
	if m := harvestEndPattern.FindStringSubmatch(body); m != nil {
		v.harvestEnd = ptr(m[1])
	}
	return v
}
