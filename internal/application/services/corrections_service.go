package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/SocialGouv/champollion-go/internal/domain/entities/corrections"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/logging"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/performance"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/persistence/kv"
)

// ErrInvalidCorrections is returned by Save when the submitted corrections
// contain a value the reader would discard.
var ErrInvalidCorrections = errors.New("corrections: invalid value")

// CorrectionsService reads and writes an establishment's local corrections.
type CorrectionsService struct {
	store  kv.Store
	logger *logging.ChanneledLogger
	perf   *performance.Tracker
}

// NewCorrectionsService creates the service over store.
func NewCorrectionsService(store kv.Store, logger *logging.ChanneledLogger, perf *performance.Tracker) *CorrectionsService {
	return &CorrectionsService{store: store, logger: logger, perf: perf}
}

type exceptionalDatesEntry struct {
	Opened []corrections.Date `json:"opened"`
	Closed []corrections.Date `json:"closed"`
}

// Read returns the normalized corrections for siret. It never fails: absent,
// unreadable or malformed entries read as their defaults, one field at a time.
func (s *CorrectionsService) Read(ctx context.Context, siret string) corrections.LocalCorrections {
	marker := s.perf.StartOperation("store:read_corrections", siret)
	defer s.perf.CompleteOperation(marker)

	out := corrections.Empty()
	for _, field := range corrections.Fields {
		raw, ok := s.load(ctx, siret, field)
		if !ok {
			continue
		}
		switch field {
		case corrections.FieldOpenDays:
			out.OpenDaysCodes = s.parseOpenDays(siret, raw)
		case corrections.FieldExceptionalDates:
			out.ExceptionalOpenDates, out.ExceptionalClosedDates = s.parseExceptionalDates(siret, raw)
		case corrections.FieldHolidays:
			out.PublicHolidays = s.parseHolidays(siret, raw)
		case corrections.FieldMergedJobTitles:
			out.MergedJobTitleGroups = s.parseMergedJobTitles(siret, raw)
		case corrections.FieldCorrectedDates:
			out.CorrectedContractDates = s.parseCorrectedDates(siret, raw)
		}
	}
	return out
}

func (s *CorrectionsService) load(ctx context.Context, siret string, field corrections.Field) (any, bool) {
	key := corrections.Key(siret, field)
	value, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.WithSiret(logging.ChannelCorrections, siret).Warn("Failed to read correction, using default", "key", key, "error", err.Error())
		return nil, false
	}
	if !ok {
		return nil, false
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(value)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		s.discard(siret, field, "not JSON", err)
		return nil, false
	}
	return raw, true
}

func (s *CorrectionsService) discard(siret string, field corrections.Field, reason string, err error) {
	args := []any{"field", string(field), "reason", reason}
	if err != nil {
		args = append(args, "error", err.Error())
	}
	s.logger.WithSiret(logging.ChannelCorrections, siret).Debug("Discarding malformed correction", args...)
}

func (s *CorrectionsService) parseOpenDays(siret string, raw any) []corrections.WeekdayCode {
	if err := schemas.openDays.Validate(raw); err != nil {
		s.discard(siret, corrections.FieldOpenDays, "shape", err)
		return []corrections.WeekdayCode{}
	}
	items := raw.([]any)
	codes := make([]corrections.WeekdayCode, 0, len(items))
	for _, item := range items {
		codes = append(codes, corrections.WeekdayCode(item.(string)))
	}
	return corrections.NormalizeOpenDays(codes)
}

func (s *CorrectionsService) parseDateList(siret string, field corrections.Field, raw any) []corrections.Date {
	dates := []corrections.Date{}
	if raw == nil || schemas.array.Validate(raw) != nil {
		return dates
	}
	for _, item := range raw.([]any) {
		if schemas.dateString.Validate(item) != nil {
			s.discard(siret, field, "date entry shape", nil)
			continue
		}
		d, ok := corrections.ParseDate(item.(string))
		if !ok {
			s.discard(siret, field, "unparsable date", nil)
			continue
		}
		dates = append(dates, d)
	}
	return dates
}

func (s *CorrectionsService) parseExceptionalDates(siret string, raw any) ([]corrections.Date, []corrections.Date) {
	if err := schemas.object.Validate(raw); err != nil {
		s.discard(siret, corrections.FieldExceptionalDates, "shape", err)
		return []corrections.Date{}, []corrections.Date{}
	}
	obj := raw.(map[string]any)
	return s.parseDateList(siret, corrections.FieldExceptionalDates, obj["opened"]),
		s.parseDateList(siret, corrections.FieldExceptionalDates, obj["closed"])
}

func (s *CorrectionsService) parseHolidays(siret string, raw any) corrections.HolidayTreatment {
	if err := schemas.holidays.Validate(raw); err != nil {
		s.discard(siret, corrections.FieldHolidays, "unknown treatment", err)
		return corrections.HolidaysTreatedAsClosed
	}
	return corrections.HolidayTreatment(raw.(string))
}

func (s *CorrectionsService) parseMergedJobTitles(siret string, raw any) [][]int64 {
	groups := [][]int64{}
	if err := schemas.array.Validate(raw); err != nil {
		s.discard(siret, corrections.FieldMergedJobTitles, "shape", err)
		return groups
	}
	for _, item := range raw.([]any) {
		if err := schemas.jobTitleGroup.Validate(item); err != nil {
			s.discard(siret, corrections.FieldMergedJobTitles, "group shape", err)
			continue
		}
		group, ok := toIDs(item.([]any))
		if !ok {
			s.discard(siret, corrections.FieldMergedJobTitles, "group id out of range", nil)
			continue
		}
		groups = append(groups, group)
	}
	return groups
}

func toIDs(items []any) ([]int64, bool) {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		n, ok := item.(json.Number)
		if !ok {
			return nil, false
		}
		id, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil || id <= 0 {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

func (s *CorrectionsService) parseCorrectedDates(siret string, raw any) map[string]corrections.DateRange {
	ranges := map[string]corrections.DateRange{}
	if err := schemas.object.Validate(raw); err != nil {
		s.discard(siret, corrections.FieldCorrectedDates, "shape", err)
		return ranges
	}
	for contractID, item := range raw.(map[string]any) {
		if err := schemas.contractPeriod.Validate(item); err != nil {
			s.discard(siret, corrections.FieldCorrectedDates, "period shape", err)
			continue
		}
		period := item.(map[string]any)
		start, okStart := corrections.ParseDate(period["start"].(string))
		end, okEnd := corrections.ParseDate(period["end"].(string))
		if !okStart || !okEnd {
			s.discard(siret, corrections.FieldCorrectedDates, "unparsable date", nil)
			continue
		}
		ranges[contractID] = corrections.DateRange{Start: start, End: end}
	}
	return ranges
}

// Validate checks that every value in c would survive a read unchanged.
func Validate(c corrections.LocalCorrections) error {
	for _, code := range c.OpenDaysCodes {
		if !code.IsValid() {
			return fmt.Errorf("%w: weekday code %q", ErrInvalidCorrections, code)
		}
	}
	for _, list := range [][]corrections.Date{c.ExceptionalOpenDates, c.ExceptionalClosedDates} {
		for _, d := range list {
			if parsed, ok := corrections.ParseDate(string(d)); !ok || parsed != d {
				return fmt.Errorf("%w: date %q", ErrInvalidCorrections, d)
			}
		}
	}
	if c.PublicHolidays != "" && !c.PublicHolidays.IsValid() {
		return fmt.Errorf("%w: public holidays treatment %q", ErrInvalidCorrections, c.PublicHolidays)
	}
	for i, group := range c.MergedJobTitleGroups {
		if len(group) == 0 {
			return fmt.Errorf("%w: merged job title group %d is empty", ErrInvalidCorrections, i)
		}
		for _, id := range group {
			if id <= 0 {
				return fmt.Errorf("%w: job title id %d", ErrInvalidCorrections, id)
			}
		}
	}
	for contractID, period := range c.CorrectedContractDates {
		for _, d := range []corrections.Date{period.Start, period.End} {
			if parsed, ok := corrections.ParseDate(string(d)); !ok || parsed != d {
				return fmt.Errorf("%w: contract %s date %q", ErrInvalidCorrections, contractID, d)
			}
		}
	}
	return nil
}

// Save writes every field of c in one store write, so a failure leaves the
// previous corrections intact. Invalid input is rejected as a whole with
// ErrInvalidCorrections.
func (s *CorrectionsService) Save(ctx context.Context, siret string, c corrections.LocalCorrections) error {
	if err := Validate(c); err != nil {
		return err
	}
	marker := s.perf.StartOperation("store:save_corrections", siret)
	defer s.perf.CompleteOperation(marker)

	if c.PublicHolidays == "" {
		c.PublicHolidays = corrections.HolidaysTreatedAsClosed
	}
	values := map[corrections.Field]any{
		corrections.FieldOpenDays: corrections.NormalizeOpenDays(c.OpenDaysCodes),
		corrections.FieldExceptionalDates: exceptionalDatesEntry{
			Opened: nonNilDates(c.ExceptionalOpenDates),
			Closed: nonNilDates(c.ExceptionalClosedDates),
		},
		corrections.FieldHolidays:        c.PublicHolidays,
		corrections.FieldMergedJobTitles: nonNilGroups(c.MergedJobTitleGroups),
		corrections.FieldCorrectedDates:  nonNilRanges(c.CorrectedContractDates),
	}

	start := time.Now()
	entries := make(map[string]string, len(corrections.Fields))
	for _, field := range corrections.Fields {
		encoded, err := json.Marshal(values[field])
		if err != nil {
			marker.SetError(err)
			return fmt.Errorf("corrections: encode %s: %w", field, err)
		}
		entries[corrections.Key(siret, field)] = string(encoded)
	}
	if err := s.store.SetMany(ctx, entries); err != nil {
		marker.SetError(err)
		return fmt.Errorf("corrections: save: %w", err)
	}
	s.logger.WithSiret(logging.ChannelCorrections, siret).Info("Saved corrections", "duration", time.Since(start))
	return nil
}

// Clear removes every stored correction for siret.
func (s *CorrectionsService) Clear(ctx context.Context, siret string) error {
	keys := make([]string, 0, len(corrections.Fields))
	for _, field := range corrections.Fields {
		keys = append(keys, corrections.Key(siret, field))
	}
	if err := s.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("corrections: clear: %w", err)
	}
	s.logger.WithSiret(logging.ChannelCorrections, siret).Info("Cleared corrections")
	return nil
}

func nonNilDates(d []corrections.Date) []corrections.Date {
	if d == nil {
		return []corrections.Date{}
	}
	return d
}

func nonNilGroups(g [][]int64) [][]int64 {
	if g == nil {
		return [][]int64{}
	}
	return g
}

func nonNilRanges(r map[string]corrections.DateRange) map[string]corrections.DateRange {
	if r == nil {
		return map[string]corrections.DateRange{}
	}
	return r
}
