package extract

// KindExtractor pulls one kind of record out of note text.
// Extract returns nil when none of the kind's patterns match.
type KindExtractor interface {
	Kind() Kind
	Extract(text string) Record
}

// RoastingExtractor extracts roasting annotations.
type RoastingExtractor struct{}

func (RoastingExtractor) Kind() Kind { return KindRoasting }

func (RoastingExtractor) Extract(text string) Record {
	rec := &Roasting{}
	found := applyPatterns(text, rec, roastingPatterns)

	zones := splitSections(text, zoneHeader, zoneBoundary)
	rec.ZonesFound = len(zones)
	for i, z := range zones {
		if i >= MaxZoneSlots {
			break
		}
		v := parseSection(z.body)
		switch i {
		case 0:
			rec.Zone1Species, rec.Zone1HarvestBegin, rec.Zone1HarvestEnd = v.species, v.harvestBegin, v.harvestEnd
		case 1:
			rec.Zone2Species, rec.Zone2HarvestBegin, rec.Zone2HarvestEnd = v.species, v.harvestBegin, v.harvestEnd
		}
		found += countSet(v.species, v.harvestBegin, v.harvestEnd)
	}

	if found == 0 {
		return nil
	}
	return rec
}

// ProcessingExtractor extracts processing (mill) annotations.
type ProcessingExtractor struct{}

func (ProcessingExtractor) Kind() Kind { return KindProcessing }

func (ProcessingExtractor) Extract(text string) Record {
	rec := &Processing{}
	if applyPatterns(text, rec, processingPatterns) == 0 {
		return nil
	}
	return rec
}

// HarvestExtractor extracts farm harvest annotations.
type HarvestExtractor struct{}

func (HarvestExtractor) Kind() Kind { return KindHarvest }

func (HarvestExtractor) Extract(text string) Record {
	rec := &Harvest{}
	found := applyPatterns(text, rec, harvestPatterns)

	for _, f := range splitSections(text, fieldHeader, fieldBoundary) {
		v := parseSection(f.body)
		n := countSet(v.species, v.harvestBegin, v.harvestEnd)
		if n == 0 {
			continue
		}
		rec.Fields = append(rec.Fields, HarvestField{
			Label:        f.label,
			Species:      v.species,
			HarvestBegin: v.harvestBegin,
			HarvestEnd:   v.harvestEnd,
		})
		found += n
	}

	if found == 0 {
		return nil
	}
	return rec
}

// DefaultKinds returns the extractors for every known kind.
func DefaultKinds() []KindExtractor {
	return []KindExtractor{RoastingExtractor{}, ProcessingExtractor{}, HarvestExtractor{}}
}
