package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/SocialGouv/champollion-go/internal/domain/entities/corrections"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/logging"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/performance"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/persistence/kv"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCorrectionsService(store kv.Store) *CorrectionsService {
	return NewCorrectionsService(store, logging.NewDiscardLogger(), performance.NewTracker(nil))
}

func sampleCorrections() corrections.LocalCorrections {
	return corrections.LocalCorrections{
		OpenDaysCodes:          []corrections.WeekdayCode{"1", "2", "3", "4", "5"},
		ExceptionalOpenDates:   []corrections.Date{"2023-12-24"},
		ExceptionalClosedDates: []corrections.Date{"2023-08-14", "2023-08-15"},
		PublicHolidays:         corrections.HolidaysTreatedAsOpen,
		MergedJobTitleGroups:   [][]int64{{1, 2}, {7}},
		CorrectedContractDates: map[string]corrections.DateRange{
			"101": {Start: "2022-01-03", End: "2022-06-30"},
		},
	}
}

func TestRead_AbsentKeysReadAsDefaults(t *testing.T) {
	svc := newCorrectionsService(kv.NewMemoryStore())

	got := svc.Read(context.Background(), testSiret)

	assert.Equal(t, corrections.Empty(), got)
}

func TestRead_SaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := newCorrectionsService(kv.NewMemoryStore())
	want := sampleCorrections()

	require.NoError(t, svc.Save(ctx, testSiret, want))
	assert.Equal(t, want, svc.Read(ctx, testSiret))

	require.NoError(t, svc.Clear(ctx, testSiret))
	assert.Equal(t, corrections.Empty(), svc.Read(ctx, testSiret))
}

func TestRead_MalformedEntries(t *testing.T) {
	tests := []struct {
		name  string
		field corrections.Field
		raw   string
		check func(t *testing.T, got corrections.LocalCorrections)
	}{
		{
			name:  "open days not an array",
			field: corrections.FieldOpenDays,
			raw:   `"not-an-array"`,
			check: func(t *testing.T, got corrections.LocalCorrections) {
				assert.Equal(t, []corrections.WeekdayCode{}, got.OpenDaysCodes)
			},
		},
		{
			name:  "open days with an unknown code",
			field: corrections.FieldOpenDays,
			raw:   `["1","9"]`,
			check: func(t *testing.T, got corrections.LocalCorrections) {
				assert.Equal(t, []corrections.WeekdayCode{}, got.OpenDaysCodes)
			},
		},
		{
			name:  "open days deduplicated and sorted",
			field: corrections.FieldOpenDays,
			raw:   `["5","1","5"]`,
			check: func(t *testing.T, got corrections.LocalCorrections) {
				assert.Equal(t, []corrections.WeekdayCode{"1", "5"}, got.OpenDaysCodes)
			},
		},
		{
			name:  "exceptional dates drop bad entries only",
			field: corrections.FieldExceptionalDates,
			raw:   `{"opened":["2023-01-02","nope",3],"closed":"x"}`,
			check: func(t *testing.T, got corrections.LocalCorrections) {
				assert.Equal(t, []corrections.Date{"2023-01-02"}, got.ExceptionalOpenDates)
				assert.Equal(t, []corrections.Date{}, got.ExceptionalClosedDates)
			},
		},
		{
			name:  "timestamps canonicalized to days",
			field: corrections.FieldExceptionalDates,
			raw:   `{"opened":[],"closed":["2023-05-08T00:00:00Z"]}`,
			check: func(t *testing.T, got corrections.LocalCorrections) {
				assert.Equal(t, []corrections.Date{"2023-05-08"}, got.ExceptionalClosedDates)
			},
		},
		{
			name:  "unknown holiday treatment",
			field: corrections.FieldHolidays,
			raw:   `"sometimes"`,
			check: func(t *testing.T, got corrections.LocalCorrections) {
				assert.Equal(t, corrections.HolidaysTreatedAsClosed, got.PublicHolidays)
			},
		},
		{
			name:  "merged groups keep valid groups",
			field: corrections.FieldMergedJobTitles,
			raw:   `[[1,2],[],["a"],[-3],[4]]`,
			check: func(t *testing.T, got corrections.LocalCorrections) {
				assert.Equal(t, [][]int64{{1, 2}, {4}}, got.MergedJobTitleGroups)
			},
		},
		{
			name:  "corrected dates keep valid periods",
			field: corrections.FieldCorrectedDates,
			raw:   `{"1":{"start":"2022-01-01","end":"2022-02-01"},"2":{"start":"bad","end":"2022-02-01"},"3":[]}`,
			check: func(t *testing.T, got corrections.LocalCorrections) {
				assert.Equal(t, map[string]corrections.DateRange{
					"1": {Start: "2022-01-01", End: "2022-02-01"},
				}, got.CorrectedContractDates)
			},
		},
		{
			name:  "not JSON",
			field: corrections.FieldCorrectedDates,
			raw:   `{"1":`,
			check: func(t *testing.T, got corrections.LocalCorrections) {
				assert.Equal(t, map[string]corrections.DateRange{}, got.CorrectedContractDates)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := kv.NewMemoryStore()
			require.NoError(t, store.Set(ctx, corrections.Key(testSiret, tt.field), tt.raw))

			tt.check(t, newCorrectionsService(store).Read(ctx, testSiret))
		})
	}
}

// fieldsEqualExcept compares a and b on every field other than skip.
func fieldsEqualExcept(a, b corrections.LocalCorrections, skip corrections.Field) bool {
	same := map[corrections.Field]bool{
		corrections.FieldOpenDays: reflect.DeepEqual(a.OpenDaysCodes, b.OpenDaysCodes),
		corrections.FieldExceptionalDates: reflect.DeepEqual(a.ExceptionalOpenDates, b.ExceptionalOpenDates) &&
			reflect.DeepEqual(a.ExceptionalClosedDates, b.ExceptionalClosedDates),
		corrections.FieldHolidays:        a.PublicHolidays == b.PublicHolidays,
		corrections.FieldMergedJobTitles: reflect.DeepEqual(a.MergedJobTitleGroups, b.MergedJobTitleGroups),
		corrections.FieldCorrectedDates:  reflect.DeepEqual(a.CorrectedContractDates, b.CorrectedContractDates),
	}
	for field, ok := range same {
		if field != skip && !ok {
			return false
		}
	}
	return true
}

func TestRead_MalformedValueOnlyAffectsItsField(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("a stored value never breaks other fields", prop.ForAll(
		func(fieldIndex int, raw string) bool {
			ctx := context.Background()
			store := kv.NewMemoryStore()
			svc := newCorrectionsService(store)
			want := sampleCorrections()
			if err := svc.Save(ctx, testSiret, want); err != nil {
				return false
			}

			field := corrections.Fields[fieldIndex]
			if err := store.Set(ctx, corrections.Key(testSiret, field), raw); err != nil {
				return false
			}
			return fieldsEqualExcept(svc.Read(ctx, testSiret), want, field)
		},
		gen.IntRange(0, len(corrections.Fields)-1),
		gen.OneGenOf(
			gen.AnyString(),
			gen.OneConstOf(
				`"not-an-array"`, `null`, `42`, `true`, `[]`, `{}`, `[1,2]`, `[["a"]]`,
				`{"opened":5}`, `{"x":{"start":1}}`, `"treatedAsOpen"`, `[[1e400]]`,
			),
		),
	))

	properties.TestingRun(t)
}

func TestRead_SavedCorrectionsReadBackNormalized(t *testing.T) {
	base := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	day := func(offset int) corrections.Date {
		return corrections.Date(base.AddDate(0, 0, offset).Format(corrections.DateLayout))
	}
	days := func(offsets []int) []corrections.Date {
		out := make([]corrections.Date, 0, len(offsets))
		for _, o := range offsets {
			out = append(out, day(o))
		}
		return out
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("save then read yields the normalized input", prop.ForAll(
		func(weekdays, opened, closed []int, treatedAsOpen bool, groups [][]int64, periods map[string]int) bool {
			in := corrections.LocalCorrections{
				OpenDaysCodes:          make([]corrections.WeekdayCode, 0, len(weekdays)),
				ExceptionalOpenDates:   days(opened),
				ExceptionalClosedDates: days(closed),
				PublicHolidays:         corrections.HolidaysTreatedAsClosed,
				MergedJobTitleGroups:   [][]int64{},
				CorrectedContractDates: make(map[string]corrections.DateRange, len(periods)),
			}
			for _, w := range weekdays {
				in.OpenDaysCodes = append(in.OpenDaysCodes, corrections.WeekdayCode(fmt.Sprint(w)))
			}
			if treatedAsOpen {
				in.PublicHolidays = corrections.HolidaysTreatedAsOpen
			}
			for _, g := range groups {
				if len(g) > 0 {
					in.MergedJobTitleGroups = append(in.MergedJobTitleGroups, g)
				}
			}
			for id, offset := range periods {
				in.CorrectedContractDates[id] = corrections.DateRange{Start: day(offset), End: day(offset + 30)}
			}

			ctx := context.Background()
			svc := newCorrectionsService(kv.NewMemoryStore())
			if err := svc.Save(ctx, testSiret, in); err != nil {
				return false
			}

			want := in
			want.OpenDaysCodes = corrections.NormalizeOpenDays(in.OpenDaysCodes)
			return reflect.DeepEqual(want, svc.Read(ctx, testSiret))
		},
		gen.SliceOf(gen.IntRange(0, 6)),
		gen.SliceOf(gen.IntRange(0, 2000)),
		gen.SliceOf(gen.IntRange(0, 2000)),
		gen.Bool(),
		gen.SliceOf(gen.SliceOf(gen.Int64Range(1, 1<<40))),
		gen.MapOf(gen.Identifier(), gen.IntRange(0, 2000)),
	))

	properties.TestingRun(t)
}

func TestSave_RejectsInvalidCorrections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *corrections.LocalCorrections)
	}{
		{"weekday code", func(c *corrections.LocalCorrections) { c.OpenDaysCodes = []corrections.WeekdayCode{"7"} }},
		{"exceptional date", func(c *corrections.LocalCorrections) { c.ExceptionalOpenDates = []corrections.Date{"31/12/2023"} }},
		{"timestamp instead of day", func(c *corrections.LocalCorrections) {
			c.ExceptionalClosedDates = []corrections.Date{"2023-05-08T00:00:00Z"}
		}},
		{"holiday treatment", func(c *corrections.LocalCorrections) { c.PublicHolidays = "maybe" }},
		{"empty group", func(c *corrections.LocalCorrections) { c.MergedJobTitleGroups = [][]int64{{}} }},
		{"negative job title", func(c *corrections.LocalCorrections) { c.MergedJobTitleGroups = [][]int64{{-1}} }},
		{"contract period", func(c *corrections.LocalCorrections) {
			c.CorrectedContractDates = map[string]corrections.DateRange{"1": {Start: "x", End: "2022-01-01"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := kv.NewMemoryStore()
			svc := newCorrectionsService(store)
			c := sampleCorrections()
			tt.mutate(&c)

			err := svc.Save(ctx, testSiret, c)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidCorrections))

			_, found, _ := store.Get(ctx, corrections.Key(testSiret, corrections.FieldOpenDays))
			assert.False(t, found, "nothing is written on rejection")
		})
	}
}

type failingStore struct{ kv.Store }

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("connection reset")
}

func TestRead_StoreErrorsReadAsDefaults(t *testing.T) {
	svc := newCorrectionsService(failingStore{kv.NewMemoryStore()})

	assert.Equal(t, corrections.Empty(), svc.Read(context.Background(), testSiret))
}

type failingWriteStore struct{ kv.Store }

func (failingWriteStore) SetMany(context.Context, map[string]string) error {
	return errors.New("disk full")
}

func TestSave_StoreFailureKeepsPreviousCorrections(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	require.NoError(t, newCorrectionsService(store).Save(ctx, testSiret, corrections.LocalCorrections{
		OpenDaysCodes:  []corrections.WeekdayCode{"1", "2"},
		PublicHolidays: corrections.HolidaysTreatedAsOpen,
	}))

	svc := newCorrectionsService(failingWriteStore{store})
	err := svc.Save(ctx, testSiret, corrections.LocalCorrections{
		OpenDaysCodes:  []corrections.WeekdayCode{"5"},
		PublicHolidays: corrections.HolidaysTreatedAsClosed,
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCorrections)

	got := svc.Read(ctx, testSiret)
	assert.Equal(t, []corrections.WeekdayCode{"1", "2"}, got.OpenDaysCodes)
	assert.Equal(t, corrections.HolidaysTreatedAsOpen, got.PublicHolidays)
}
