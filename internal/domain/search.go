package domain

type SearchSort string

const (
	SortRelevance SearchSort = ""
	SortDistance  SearchSort = "distance"
	SortPrice     SearchSort = "price"
	SortRating    SearchSort = "rating"
)

const (
	DefaultRadiusKm    = 5.0
	MinRadiusKm        = 0.1
	MaxRadiusKm        = 50.0
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

// GeoPoint narrows a search to RadiusKm around a point.
type GeoPoint struct {
	Lat      float64
	Lng      float64
	RadiusKm float64
}

// SearchFilter selects active locations. Zero values mean "no filter".
type SearchFilter struct {
	Text          string
	Type          ParkingType
	MinPriceCents *int64
	MaxPriceCents *int64
	Amenities     []string
	Geo           *GeoPoint
	Sort          SearchSort
	Limit         int
	Offset        int
}

// Normalize applies defaults and clamps the paging and radius bounds.
func (f *SearchFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultSearchLimit
	}
	if f.Limit > MaxSearchLimit {
		f.Limit = MaxSearchLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	if f.Geo != nil {
		switch {
		case f.Geo.RadiusKm <= 0:
			f.Geo.RadiusKm = DefaultRadiusKm
		case f.Geo.RadiusKm < MinRadiusKm:
			f.Geo.RadiusKm = MinRadiusKm
		case f.Geo.RadiusKm > MaxRadiusKm:
			f.Geo.RadiusKm = MaxRadiusKm
		}
	}

	if f.Sort == SortDistance && f.Geo == nil {
		f.Sort = SortRelevance
	}
}
