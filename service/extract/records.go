package extract

// Kind names one of the known structured-record shapes an annotation may carry.
type Kind string

const (
	KindRoasting   Kind = "roasting"
	KindProcessing Kind = "processing"
	KindHarvest    Kind = "harvest"
)

// Kinds lists every kind in extraction order.
var Kinds = []Kind{KindRoasting, KindProcessing, KindHarvest}

// MaxZoneSlots is how many zone sections a Roasting record materializes.
const MaxZoneSlots = 2

// Record is the structured result of extracting one kind from a note.
type Record interface {
	Kind() Kind
	// FieldCount reports how many fields were found.
	FieldCount() int
}

// Roasting holds the fields of a roasting annotation.
// Zone slots hold the first two ZONE sections in document order.
type Roasting struct {
	ParentCompanyID         *string `json:"parent_company_id,omitempty"`
	ProductionBatchID       *string `json:"production_batch_id,omitempty"`
	TypeOfRoast             *string `json:"type_of_roast,omitempty"`
	LocationOfRoastingPlant *string `json:"location_of_roasting_plant,omitempty"`
	KgCoffeeRoasted         *string `json:"kg_coffee_roasted,omitempty"`
	RoastDate               *string `json:"roast_date,omitempty"`
	ChildTx                 *string `json:"child_tx,omitempty"`
	Zone1Species            *string `json:"zone1_species,omitempty"`
	Zone1HarvestBegin       *string `json:"zone1_harvest_begin,omitempty"`
	Zone1HarvestEnd         *string `json:"zone1_harvest_end,omitempty"`
	Zone2Species            *string `json:"zone2_species,omitempty"`
	Zone2HarvestBegin       *string `json:"zone2_harvest_begin,omitempty"`
	Zone2HarvestEnd         *string `json:"zone2_harvest_end,omitempty"`

	// ZonesFound counts every ZONE section, including those beyond the slots.
	ZonesFound int `json:"-"`
}

func (r *Roasting) Kind() Kind { return KindRoasting }

func (r *Roasting) FieldCount() int {
	return countSet(
		r.ParentCompanyID, r.ProductionBatchID, r.TypeOfRoast, r.LocationOfRoastingPlant,
		r.KgCoffeeRoasted, r.RoastDate, r.ChildTx,
		r.Zone1Species, r.Zone1HarvestBegin, r.Zone1HarvestEnd,
		r.Zone2Species, r.Zone2HarvestBegin, r.Zone2HarvestEnd,
	)
}

// Processing holds the fields of a processing (mill) annotation.
type Processing struct {
	ReceptionIDs   *string `json:"reception_ids,omitempty"`
	PostHullIDs    *string `json:"post_hull_ids,omitempty"`
	SizeOfBeans    *string `json:"size_of_beans,omitempty"`
	QtyGreenCoffee *string `json:"qty_green_coffee,omitempty"`
	SortEntry      *string `json:"sort_entry,omitempty"`
	SortExit       *string `json:"sort_exit,omitempty"`
	HarvestBegin   *string `json:"harvest_begin,omitempty"`
	HarvestEnd     *string `json:"harvest_end,omitempty"`
}

func (r *Processing) Kind() Kind { return KindProcessing }

func (r *Processing) FieldCount() int {
	return countSet(
		r.ReceptionIDs, r.PostHullIDs, r.SizeOfBeans, r.QtyGreenCoffee,
		r.SortEntry, r.SortExit, r.HarvestBegin, r.HarvestEnd,
	)
}

// Harvest holds the farm-level fields of a harvest annotation.
type Harvest struct {
	FarmID         *string        `json:"farm_id,omitempty"`
	FarmAnagraphic *string        `json:"farm_anagraphic,omitempty"`
	FarmLocation   *string        `json:"farm_location,omitempty"`
	Fields         []HarvestField `json:"fields,omitempty"`
}

// HarvestField is one FIELD section of a harvest annotation.
type HarvestField struct {
	Label        string  `json:"label"`
	Species      *string `json:"species,omitempty"`
	HarvestBegin *string `json:"harvest_begin,omitempty"`
	HarvestEnd   *string `json:"harvest_end,omitempty"`
}

func (r *Harvest) Kind() Kind { return KindHarvest }

func (r *Harvest) FieldCount() int {
	n := countSet(r.FarmID, r.FarmAnagraphic, r.FarmLocation)
	for _, f := range r.Fields {
		n += countSet(f.Species, f.HarvestBegin, f.HarvestEnd)
	}
	return n
}

func countSet(values ...*string) int {
	n := 0
	for _, v := range values {
		if v != nil {
			n++
		}
	}
	return n
}
