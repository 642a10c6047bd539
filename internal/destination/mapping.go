package destination

import (
	"strconv"
	"strings"
)

// Fields is the destination-specific shape of one normalized record,
// produced by MapFields for the adapter's detail stage.
type Fields struct {
	Category     string
	StreetNumber string
	StreetName   string
	StreetType   string
	BathsFull    int
	BathsHalf    int
	Price        int64
	AreaSqft     int
	YearBuilt    int
}

// DefaultCategory is where unknown source categories land. The destination
// rejects blank classifications, so mapping to a documented default beats
// failing the record.
const DefaultCategory = "residential-other"

// categoryCodes maps normalized source categories to destination codes.
var categoryCodes = map[string]string{
	"house":       "residential-house",
	"home":        "residential-house",
	"apartment":   "residential-apartment",
	"flat":        "residential-apartment",
	"condo":       "residential-condo",
	"condominium": "residential-condo",
	"townhouse":   "residential-townhouse",
	"land":        "land",
	"lot":         "land",
	"commercial":  "commercial",
	"office":      "commercial",
	"retail":      "commercial",
}

// streetTypes maps common abbreviations to the destination's canonical
// street-type values.
var streetTypes = map[string]string{
	"st":     "Street",
	"street": "Street",
	"ave":    "Avenue",
	"avenue": "Avenue",
	"rd":     "Road",
	"road":   "Road",
	"blvd":   "Boulevard",
	"dr":     "Drive",
	"drive":  "Drive",
	"ln":     "Lane",
	"lane":   "Lane",
	"ct":     "Court",
	"court":  "Court",
	"pl":     "Place",
	"place":  "Place",
	"way":    "Way",
	"ter":    "Terrace",
}

// MapFields converts a record's raw fields into destination fields.
//
// The function is total: every syntactically valid record maps to some
// Fields value. Unknown categories land on DefaultCategory, unparseable
// numbers coerce to zero, and a missing address yields empty components.
// It never returns an error and must stay that way.
func MapFields(get func(field string) (string, bool)) Fields {
	f := Fields{Category: DefaultCategory}

	if raw, ok := get("category"); ok {
		if code, known := categoryCodes[strings.ToLower(strings.TrimSpace(raw))]; known {
			f.Category = code
		}
	}

	if raw, ok := get("address"); ok {
		f.StreetNumber, f.StreetName, f.StreetType = splitAddress(raw)
	}

	if raw, ok := get("baths"); ok {
		f.BathsFull, f.BathsHalf = splitBaths(raw)
	}

	if raw, ok := get("price"); ok {
		f.Price = coerceInt64(raw)
	}
	if raw, ok := get("area"); ok {
		f.AreaSqft = int(coerceInt64(raw))
	}
	if raw, ok := get("year"); ok {
		f.YearBuilt = int(coerceInt64(raw))
	}

	return f
}

// splitAddress decomposes a one-line street address into number, street
// name, and canonical street type. Components that cannot be identified
// stay with the street name so nothing is dropped.
func splitAddress(addr string) (number, name, streetType string) {
	tokens := strings.Fields(strings.TrimSpace(addr))
	if len(tokens) == 0 {
		return "", "", ""
	}

	if isNumeric(tokens[0]) && len(tokens) > 1 {
		number = tokens[0]
		tokens = tokens[1:]
	}

	if len(tokens) > 1 {
		last := strings.ToLower(strings.TrimRight(tokens[len(tokens)-1], "."))
		if canonical, ok := streetTypes[last]; ok {
			streetType = canonical
			tokens = tokens[:len(tokens)-1]
		}
	}

	name = strings.Join(tokens, " ")
	return number, name, streetType
}

// splitBaths decomposes a possibly fractional bath count into full and
// half counts: "2.5" -> 2 full, 1 half.
func splitBaths(raw string) (full, half int) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v < 0 {
		return 0, 0
	}
	full = int(v)
	if v-float64(full) >= 0.25 {
		half = 1
	}
	return full, half
}

// coerceInt64 extracts an integer from formatted numeric input:
// "$1,250,000" -> 1250000. Anything without digits coerces to zero.
func coerceInt64(raw string) int64 {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
		// A decimal point ends the integer part: "1250.50" -> 1250.
		if r == '.' {
			break
		}
	}
	if b.Len() == 0 {
		return 0
	}
	n, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
