package extract

import (
	"regexp"
	"sort"
	"strings"
)

type labelProbe struct {
	name string
	re   *regexp.Regexp
}

// labelProbes are counted once per note that contains them.
var labelProbes = []labelProbe{
	{"parent_company_id", regexp.MustCompile(`(?i)PARENT COMPANY ID:`)},
	{"production_batch_id", regexp.MustCompile(`(?i)Production_Batch_ID:`)},
	{"roasting", regexp.MustCompile(`(?i)ROASTING`)},
	{"processing", regexp.MustCompile(`(?i)PROCESSING`)},
	{"type_of_roast", regexp.MustCompile(`(?i)Type of roast:`)},
	{"location_of_roasting_plant", regexp.MustCompile(`(?i)Location of roasting plant:`)},
	{"kg_coffee_roasted", regexp.MustCompile(`(?i)Kg of coffee roasted:`)},
	{"roast_date", regexp.MustCompile(`(?i)Roast date:`)},
	{"zone_1", regexp.MustCompile(`(?i)ZONE 1`)},
	{"zone_2", regexp.MustCompile(`(?i)ZONE 2`)},
	{"zone_3", regexp.MustCompile(`(?i)ZONE 3`)},
	{"zone_4", regexp.MustCompile(`(?i)ZONE 4`)},
	{"zone_5_plus", regexp.MustCompile(`(?i)ZONE (?:[5-9]|\d{2})`)},
	{"coffee_species", regexp.MustCompile(`(?i)Coffee Species:`)},
	{"coffee_species_and_process", regexp.MustCompile(`(?i)Coffee Species & Process:`)},
	{"harvest_begin", regexp.MustCompile(`(?i)Harvest begin:`)},
	{"harvest_end", regexp.MustCompile(`(?i)Harvest end:`)},
	{"child_tx", regexp.MustCompile(`(?i)Child_TX`)},
	{"reception_ids", regexp.MustCompile(`(?i)Reception IDs:`)},
	{"farm_id", regexp.MustCompile(`(?i)Farm ID:`)},
	{"field_section", regexp.MustCompile(`(?i)FIELD \d+`)},
}

var lineLabel = regexp.MustCompile(`(?m)^([A-Za-z][A-Za-z0-9 \t_&]+):`)

// LabelCount is how many notes contained a label.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// LabelReport summarizes which labels appear across a set of notes.
type LabelReport struct {
	Notes      int          `json:"notes"`
	Labels     []LabelCount `json:"labels"`
	FieldNames []string     `json:"field_names"`
}

// AnalyzeLabels reports label occurrence over texts. Empty and
// whitespace-only notes are skipped. FieldNames lists every distinct
// "Name:" found at the start of a line, sorted.
func AnalyzeLabels(texts []string) LabelReport {
	counts := make([]int, len(labelProbes))
	names := make(map[string]struct{})
	report := LabelReport{}

	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		report.Notes++
		for i, p := range labelProbes {
			if p.re.MatchString(text) {
				counts[i]++
			}
		}
		for _, m := range lineLabel.FindAllStringSubmatch(text, -1) {
			names[strings.TrimSpace(m[1])] = struct{}{}
		}
	}

	report.Labels = make([]LabelCount, len(labelProbes))
	for i, p := range labelProbes {
		report.Labels[i] = LabelCount{Label: p.name, Count: counts[i]}
	}
	report.FieldNames = make([]string, 0, len(names))
	for n := range names {
		report.FieldNames = append(report.FieldNames, n)
	}
	sort.Strings(report.FieldNames)
	return report
}

// Count returns the count recorded for label, or zero.
func (r LabelReport) Count(label string) int {
	for _, l := range r.Labels {
		if l.Label == label {
			return l.Count
		}
	}
	return 0
}
