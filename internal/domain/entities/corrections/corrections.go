// Package corrections defines the inspector's local corrections for one
// establishment and the key scheme they are stored under.
package corrections

import (
	"sort"
	"strings"
	"time"
)

// Entity is the key prefix shared by every establishment correction.
const Entity = "etablissement"

// Field names the stored entries, one key per field.
type Field string

const (
	FieldOpenDays         Field = "openDays"
	FieldExceptionalDates Field = "exceptionalDates"
	FieldHolidays         Field = "holidays"
	FieldMergedJobTitles  Field = "mergedJobTitles"
	FieldCorrectedDates   Field = "correctedDates"
)

// Fields lists every stored field in read order.
var Fields = []Field{
	FieldOpenDays,
	FieldExceptionalDates,
	FieldHolidays,
	FieldMergedJobTitles,
	FieldCorrectedDates,
}

var siretEscaper = strings.NewReplacer("%", "%25", ".", "%2E")

// Key builds the store key `<entity>.<siret>.<field>`. Dots in siret are
// escaped so that two establishments never share a key.
func Key(siret string, field Field) string {
	return Entity + "." + siretEscaper.Replace(siret) + "." + string(field)
}

// WeekdayCode is a single character "0" (Sunday) to "6" (Saturday).
type WeekdayCode string

// IsValid reports whether the code is one of "0".."6".
func (c WeekdayCode) IsValid() bool {
	return len(c) == 1 && c[0] >= '0' && c[0] <= '6'
}

// HolidayTreatment says how public holidays count in open-day computations.
type HolidayTreatment string

const (
	HolidaysTreatedAsClosed HolidayTreatment = "treatedAsClosed"
	HolidaysTreatedAsOpen   HolidayTreatment = "treatedAsOpen"
)

// IsValid reports whether the treatment is one of the two known literals.
func (h HolidayTreatment) IsValid() bool {
	return h == HolidaysTreatedAsClosed || h == HolidaysTreatedAsOpen
}

// DateLayout is the canonical day format used for every stored date.
const DateLayout = "2006-01-02"

// Date is a calendar day in DateLayout.
type Date string

// ParseDate accepts a plain day or an RFC 3339 timestamp and returns the
// canonical day.
func ParseDate(raw string) (Date, bool) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(DateLayout, raw); err == nil {
		return Date(t.Format(DateLayout)), true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return Date(t.Format(DateLayout)), true
	}
	return "", false
}

// DateRange is a corrected contract period.
type DateRange struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// LocalCorrections is the normalized set of corrections for one establishment.
// Every field is always populated; absent or malformed entries read as their
// empty value.
type LocalCorrections struct {
	OpenDaysCodes          []WeekdayCode        `json:"openDaysCodes"`
	ExceptionalOpenDates   []Date               `json:"exceptionalOpenDates"`
	ExceptionalClosedDates []Date               `json:"exceptionalClosedDates"`
	PublicHolidays         HolidayTreatment     `json:"publicHolidaysTreatment"`
	MergedJobTitleGroups   [][]int64            `json:"mergedJobTitleGroups"`
	CorrectedContractDates map[string]DateRange `json:"correctedContractDates"`
}

// Empty returns corrections with every field at its default.
func Empty() LocalCorrections {
	return LocalCorrections{
		OpenDaysCodes:          []WeekdayCode{},
		ExceptionalOpenDates:   []Date{},
		ExceptionalClosedDates: []Date{},
		PublicHolidays:         HolidaysTreatedAsClosed,
		MergedJobTitleGroups:   [][]int64{},
		CorrectedContractDates: map[string]DateRange{},
	}
}

// NormalizeOpenDays turns codes into a sorted set.
func NormalizeOpenDays(codes []WeekdayCode) []WeekdayCode {
	seen := make(map[WeekdayCode]struct{}, len(codes))
	out := make([]WeekdayCode, 0, len(codes))
	for _, code := range codes {
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
