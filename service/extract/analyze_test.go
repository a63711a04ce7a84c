package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeLabels(t *testing.T) {
	report := AnalyzeLabels([]string{
		roastingNote,
		processingNote,
		"   ",
		"",
		"ZONE 7\nCoffee Species: X",
	})

	assert.Equal(t, 3, report.Notes)
	assert.Equal(t, 1, report.Count("parent_company_id"))
	assert.Equal(t, 1, report.Count("roasting"))
	assert.Equal(t, 1, report.Count("processing"))
	assert.Equal(t, 1, report.Count("zone_1"))
	assert.Equal(t, 1, report.Count("zone_5_plus"))
	assert.Equal(t, 2, report.Count("coffee_species"))
	assert.Equal(t, 1, report.Count("coffee_species_and_process"))
	assert.Equal(t, 1, report.Count("reception_ids"))
	assert.Equal(t, 0, report.Count("farm_id"))
	assert.Equal(t, 0, report.Count("not_a_label"))

	assert.Contains(t, report.FieldNames, "PARENT COMPANY ID")
	assert.Contains(t, report.FieldNames, "Coffee Species & Process")
	assert.Contains(t, report.FieldNames, "Sort exit")
	assert.IsIncreasing(t, report.FieldNames)
}

func TestAnalyzeLabels_Empty(t *testing.T) {
	report := AnalyzeLabels(nil)
	assert.Equal(t, 0, report.Notes)
	assert.Len(t, report.Labels, len(labelProbes))
	assert.Empty(t, report.FieldNames)
}
