// Package entrydecoder parses a tooltip HTML fragment into a normalized
// model.TimetableEntry, applying timezone conversion, multi-value splitting
// and the group sentinel rule (spec §4.D).
package entrydecoder

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pjatk21/sigma-api/internal/model"
)

// Selectors, relative to the tooltip fragment root, exactly as spec §4.D
// enumerates them.
const (
	selDate          = "#ctl06_DataZajecLabel"
	selHourBeginning = "#ctl06_GodzRozpLabel"
	selHourEnding    = "#ctl06_GodzZakonLabel"
	selTitle         = "#ctl06_TytulRezerwacjiLabel"
	selPersons       = "#ctl06_OsobaRezerwujacaLabel, #ctl06_DydaktycyLabel"
	selDetails       = "#ctl06_OpisLabel"
	selType          = "#ctl06_TypRezerwacjiLabel, #ctl06_TypZajecLabel"
	selSubjects      = "#ctl06_NazwyPrzedmiotowLabel, #ctl06_NazwaPrzedmiotyLabel"
	selSubjectCodes  = "#ctl06_KodyPrzedmiotowLabel, #ctl06_KodPrzedmiotuLabel"
	selGroups        = "#ctl06_GrupyStudenckieLabel, #ctl06_GrupyLabel"
	selStudentsCount = "#ctl06_LiczbaStudentowLabel"
	selBuilding      = "#ctl06_BudynekLabel"
	selRoom          = "#ctl06_SalaLabel"

	dateLayout = "02.01.2006"
	clockRef   = "15:04:05"
)

// warsaw is loaded once; every decoded instant is interpreted in this civil
// zone before conversion to UTC (spec §3, §4.D — a deliberate redesign of
// the original's hardcoded +0100 offset, see SPEC_FULL.md).
var warsaw = mustLoadWarsaw()

func mustLoadWarsaw() *time.Location {
	loc, err := time.LoadLocation("Europe/Warsaw")
	if err != nil {
		// A missing tzdata database is an environment defect, not a
		// per-request failure; fail fast at package init.
		panic(fmt.Sprintf("entrydecoder: cannot load Europe/Warsaw: %v", err))
	}
	return loc
}

// ParseError tags a decode failure with the selector's semantic name, per
// spec §4.D ("Any missing required selector yields a parse error tagged
// with the selector's semantic name").
type ParseError struct {
	Field string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("entrydecoder: missing or invalid field %q", e.Field)
}

// Decode parses a tooltip HTML fragment into a TimetableEntry.
func Decode(fragment string) (*model.TimetableEntry, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil, fmt.Errorf("entrydecoder: parse fragment: %w", err)
	}

	date, err := required(doc, selDate, "date")
	if err != nil {
		return nil, err
	}
	hourBeginning, err := required(doc, selHourBeginning, "hour_beginning")
	if err != nil {
		return nil, err
	}
	hourEnding, err := required(doc, selHourEnding, "hour_ending")
	if err != nil {
		return nil, err
	}

	beginning, err := combine(date, hourBeginning)
	if err != nil {
		return nil, fmt.Errorf("entrydecoder: beginning: %w", err)
	}
	ending, err := combine(date, hourEnding)
	if err != nil {
		return nil, fmt.Errorf("entrydecoder: ending: %w", err)
	}
	if !beginning.Before(ending) {
		return nil, fmt.Errorf("entrydecoder: beginning %s not before ending %s", beginning, ending)
	}

	typeOf, err := required(doc, selType, "type_of")
	if err != nil {
		return nil, err
	}
	persons, err := requiredMultiple(doc, selPersons, "persons")
	if err != nil {
		return nil, err
	}
	subjects, err := requiredMultiple(doc, selSubjects, "subjects")
	if err != nil {
		return nil, err
	}
	subjectCodes, err := requiredMultiple(doc, selSubjectCodes, "subject_codes")
	if err != nil {
		return nil, err
	}
	building, err := required(doc, selBuilding, "building")
	if err != nil {
		return nil, err
	}
	room, err := required(doc, selRoom, "room")
	if err != nil {
		return nil, err
	}

	groupTokens, err := multipleOrAbsent(doc, selGroups, "groups")
	if err != nil {
		return nil, err
	}
	groups := normalizeGroups(groupTokens)

	return &model.TimetableEntry{
		Title:         optional(doc, selTitle),
		Persons:       persons,
		Details:       optional(doc, selDetails),
		TypeOf:        typeOf,
		Subjects:      subjects,
		SubjectCodes:  subjectCodes,
		Groups:        groups,
		StudentsCount: optional(doc, selStudentsCount),
		Building:      building,
		Room:          room,
		Beginning:     beginning,
		Ending:        ending,
	}, nil
}

// combine applies the %d.%m.%Y + %H:%M:%S rule, interprets the result in
// Europe/Warsaw and converts to UTC. Both halves of spec §3's "local time
// must be unambiguous" rule are hard parse failures: a nonexistent
// spring-forward time (ParseInLocation silently shifts it forward, so
// reformatting no longer matches the input) and a DST-ambiguous fall-back
// time (ParseInLocation silently picks one of the two valid offsets, so
// reformatting matches the input even though a second, distinct instant
// would format identically — caught separately by ambiguous).
func combine(date, clock string) (time.Time, error) {
	raw := date + " " + clock
	layout := dateLayout + " " + clockRef
	t, err := time.ParseInLocation(layout, raw, warsaw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", raw, err)
	}
	if t.Format(layout) != raw {
		return time.Time{}, fmt.Errorf("nonexistent local time %q in Europe/Warsaw", raw)
	}
	if ambiguous(t, layout, raw) {
		return time.Time{}, fmt.Errorf("ambiguous local time %q in Europe/Warsaw", raw)
	}
	return t.UTC(), nil
}

// ambiguous reports whether t's wall clock, as formatted by layout, also
// names a second, distinct instant in t's location — the fall-back side of
// a DST transition, where a local clock reading occurs twice with two
// different UTC offsets. ParseInLocation picks one of the two silently;
// this checks for the other by probing the zone offset shortly either side
// of t (catching any offset change within 2 hours, well past Europe/
// Warsaw's one-hour shift) and re-expressing t's wall clock under that
// offset.
func ambiguous(t time.Time, layout, raw string) bool {
	_, offHere := t.Zone()
	_, offBefore := t.Add(-2 * time.Hour).Zone()
	_, offAfter := t.Add(2 * time.Hour).Zone()

	for _, off := range []int{offBefore, offAfter} {
		if off == offHere {
			continue
		}
		alt := t.Add(time.Duration(offHere-off) * time.Second)
		if alt.Unix() != t.Unix() && alt.Format(layout) == raw {
			return true
		}
	}
	return false
}

func required(doc *goquery.Document, selector, field string) (string, error) {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", &ParseError{Field: field}
	}
	v := strings.TrimSpace(sel.Text())
	if v == "" {
		return "", &ParseError{Field: field}
	}
	return v, nil
}

func optional(doc *goquery.Document, selector string) *string {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil
	}
	v := strings.TrimSpace(sel.Text())
	return &v
}

// requiredMultiple reads the first matching selector's text, splits on ",",
// trims each token and drops empties (spec §4.D). The result must be
// non-empty (spec §3's list constraints on persons/subjects/subjectCodes);
// a selector present but blank, or one whose tokens are all empty, is a
// parse error rather than an empty list.
func requiredMultiple(doc *goquery.Document, selector, field string) ([]string, error) {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, &ParseError{Field: field}
	}
	raw := strings.TrimSpace(sel.Text())
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, &ParseError{Field: field}
	}
	return out, nil
}

// multipleOrAbsent is requiredMultiple without the non-empty result
// constraint: the groups selector is the one multi-value field whose
// "nothing here" state is legitimate input (a blank label, distinct from
// the "---" sentinel) and is resolved by normalizeGroups, not rejected here.
// The selector itself must still be present.
func multipleOrAbsent(doc *goquery.Document, selector, field string) ([]string, error) {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, &ParseError{Field: field}
	}
	raw := strings.TrimSpace(sel.Text())
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// normalizeGroups applies the sentinel rule: if every token equals "---",
// groups is absent (nil); otherwise the tokens are returned as-is.
func normalizeGroups(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}
	for _, t := range tokens {
		if t != model.GroupSentinel {
			return tokens
		}
	}
	return nil
}
