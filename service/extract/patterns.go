package extract

import (
	"regexp"
	"strings"
)

// fieldPattern binds a label regex to the record field it fills.
// The first capture group holds the value.
type fieldPattern[T any] struct {
	name    string
	re      *regexp.Regexp
	numeric bool
	assign  func(rec *T, value string)
}

// applyPatterns runs every pattern against text and assigns the first match of each.
// It returns how many fields were set.
func applyPatterns[T any](text string, rec *T, table []fieldPattern[T]) int {
	found := 0
	for _, p := range table {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		value := cleanValue(m[1], p.numeric)
		if value == "" {
			continue
		}
		p.assign(rec, value)
		found++
	}
	return found
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// cleanValue trims a captured value. Numeric values also have inner
// whitespace collapsed so "1,200   Kg" becomes "1,200 Kg".
func cleanValue(value string, numeric bool) string {
	value = strings.TrimSpace(value)
	if numeric {
		value = whitespaceRun.ReplaceAllString(value, " ")
	}
	return value
}

func ptr(s string) *string { return &s }

// Label regexes. Free-text values stop at the end of the line they start on.
var (
	parentCompanyIDPattern   = regexp.MustCompile(`(?i)PARENT COMPANY ID:\s*(\d+)`)
	productionBatchIDPattern = regexp.MustCompile(`(?i)Production_Batch_ID:\s*(\S+)`)
	typeOfRoastPattern       = regexp.MustCompile(`(?i)Type of roast:[ \t]*([^\n]+)`)
	roastingPlantPattern     = regexp.MustCompile(`(?i)Location of roasting plant:[ \t]*([^\n]+)`)
	kgRoastedPattern         = regexp.MustCompile(`(?i)Kg of coffee roasted:\s*([\d,.]+\s*Kg)`)
	roastDatePattern         = regexp.MustCompile(`(?i)Roast date:\s*(\d{2}/\d{2}/\d{4})`)
	childTxPattern           = regexp.MustCompile(`(?i)Child_TX\s*->\s*"([^"]+)"`)

	receptionIDsPattern   = regexp.MustCompile(`(?i)Reception IDs:[ \t]*([^\n]+)`)
	postHullIDsPattern    = regexp.MustCompile(`(?i)Post Hull IDs:[ \t]*([^\n]+)`)
	sizeOfBeansPattern    = regexp.MustCompile(`(?i)Size of beans:[ \t]*([^\n]+)`)
	qtyGreenCoffeePattern = regexp.MustCompile(`(?i)Qty of green coffee selected by Lavazza:\s*([\d,.]+\s*Kg)`)
	sortEntryPattern      = regexp.MustCompile(`(?i)Sort entry:\s*(\d{2}/\d{2}/\d{4})`)
	sortExitPattern       = regexp.MustCompile(`(?i)Sort exit:\s*(\d{2}/\d{2}/\d{4})`)

	farmIDPattern         = regexp.MustCompile(`(?i)Farm ID:\s*(\S+)`)
	farmAnagraphicPattern = regexp.MustCompile(`(?i)Farm anagraphic:[ \t]*([^\n]+)`)
	farmLocationPattern   = regexp.MustCompile(`(?i)Farm location:[ \t]*([^\n]+)`)

	speciesPattern      = regexp.MustCompile(`(?i)Coffee Species(?:\s*&\s*Process)?:[ \t]*([^\n]+)`)
	harvestBeginPattern = regexp.MustCompile(`(?i)Harvest begin:\s*(\d{2}/\d{2}/\d{4})`)
	harvestEndPattern   = regexp.MustCompile(`(?i)Harvest end:\s*(\d{2}/\d{2}/\d{4})`)
)

var roastingPatterns = []fieldPattern[Roasting]{
	{name: "parent_company_id", re: parentCompanyIDPattern, assign: func(r *Roasting, v string) { r.ParentCompanyID = ptr(v) }},
	{name: "production_batch_id", re: productionBatchIDPattern, assign: func(r *Roasting, v string) { r.ProductionBatchID = ptr(v) }},
	{name: "type_of_roast", re: typeOfRoastPattern, assign: func(r *Roasting, v string) { r.TypeOfRoast = ptr(v) }},
	{name: "location_of_roasting_plant", re: roastingPlantPattern, assign: func(r *Roasting, v string) { r.LocationOfRoastingPlant = ptr(v) }},
	{name: "kg_coffee_roasted", re: kgRoastedPattern, numeric: true, assign: func(r *Roasting, v string) { r.KgCoffeeRoasted = ptr(v) }},
	{name: "roast_date", re: roastDatePattern, assign: func(r *Roasting, v string) { r.RoastDate = ptr(v) }},
	{name: "child_tx", re: childTxPattern, assign: func(r *Roasting, v string) { r.ChildTx = ptr(v) }},
}

var processingPatterns = []fieldPattern[Processing]{
	{name: "reception_ids", re: receptionIDsPattern, assign: func(r *Processing, v string) { r.ReceptionIDs = ptr(v) }},
	{name: "post_hull_ids", re: postHullIDsPattern, assign: func(r *Processing, v string) { r.PostHullIDs = ptr(v) }},
	{name: "size_of_beans", re: sizeOfBeansPattern, assign: func(r *Processing, v string) { r.SizeOfBeans = ptr(v) }},
	{name: "qty_green_coffee", re: qtyGreenCoffeePattern, numeric: true, assign: func(r *Processing, v string) { r.QtyGreenCoffee = ptr(v) }},
	{name: "sort_entry", re: sortEntryPattern, assign: func(r *Processing, v string) { r.SortEntry = ptr(v) }},
	{name: "sort_exit", re: sortExitPattern, assign: func(r *Processing, v string) { r.SortExit = ptr(v) }},
	{name: "harvest_begin", re: harvestBeginPattern, assign: func(r *Processing, v string) { r.HarvestBegin = ptr(v) }},
	{name: "harvest_end", re: harvestEndPattern, assign: func(r *Processing, v string) { r.HarvestEnd = ptr(v) }},
}

var harvestPatterns = []fieldPattern[Harvest]{
	{name: "farm_id", re: farmIDPattern, assign: func(r *Harvest, v string) { r.FarmID = ptr(v) }},
	{name: "farm_anagraphic", re: farmAnagraphicPattern, assign: func(r *Harvest, v string) { r.FarmAnagraphic = ptr(v) }},
	{name: "farm_location", re: farmLocationPattern, assign: func(r *Harvest, v string) { r.FarmLocation = ptr(v) }},
}
