package entrydecoder

import (
	"errors"
	"testing"
	"time"
)

// tooltip builds a minimal fragment with the given field values, enough to
// exercise every selector the decoder reads.
func tooltip(fields map[string]string) string {
	html := "<div>"
	for id, value := range fields {
		html += `<span id="` + id + `">` + value + `</span>`
	}
	html += "</div>"
	return html
}

func happyPathFields() map[string]string {
	return map[string]string{
		"ctl06_DataZajecLabel":          "15.01.2024",
		"ctl06_GodzRozpLabel":           "08:00:00",
		"ctl06_GodzZakonLabel":          "09:30:00",
		"ctl06_OsobaRezerwujacaLabel":   "Kowalski Jan",
		"ctl06_TypRezerwacjiLabel":      "Wykład",
		"ctl06_NazwyPrzedmiotowLabel":   "SOP",
		"ctl06_KodyPrzedmiotowLabel":    "SOP",
		"ctl06_GrupyStudenckieLabel":    "---",
		"ctl06_BudynekLabel":            "B",
		"ctl06_SalaLabel":               "B/227",
	}
}

func TestDecode_HappyPath(t *testing.T) {
	entry, err := Decode(tooltip(happyPathFields()))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	wantBeginning := time.Date(2024, 1, 15, 7, 0, 0, 0, time.UTC)
	wantEnding := time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)

	if !entry.Beginning.Equal(wantBeginning) {
		t.Errorf("beginning = %v, want %v", entry.Beginning, wantBeginning)
	}
	if !entry.Ending.Equal(wantEnding) {
		t.Errorf("ending = %v, want %v", entry.Ending, wantEnding)
	}
	if entry.Groups != nil {
		t.Errorf("groups = %v, want absent (nil) for all-sentinel input", entry.Groups)
	}
	if entry.TypeOf != "Wykład" {
		t.Errorf("typeOf = %q", entry.TypeOf)
	}
	if len(entry.Persons) != 1 || entry.Persons[0] != "Kowalski Jan" {
		t.Errorf("persons = %v", entry.Persons)
	}
	if entry.Building != "B" || entry.Room != "B/227" {
		t.Errorf("building/room = %q/%q", entry.Building, entry.Room)
	}
}

func TestDecode_TemporalInvariant(t *testing.T) {
	entry, err := Decode(tooltip(happyPathFields()))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !entry.Beginning.Before(entry.Ending) {
		t.Fatalf("expected beginning < ending, got %v >= %v", entry.Beginning, entry.Ending)
	}
}

func TestDecode_GroupsPresentWhenNotAllSentinel(t *testing.T) {
	fields := happyPathFields()
	fields["ctl06_GrupyStudenckieLabel"] = "WIS1, WIS2"
	entry, err := Decode(tooltip(fields))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []string{"WIS1", "WIS2"}
	if len(entry.Groups) != len(want) || entry.Groups[0] != want[0] || entry.Groups[1] != want[1] {
		t.Fatalf("groups = %v, want %v", entry.Groups, want)
	}
}

func TestDecode_MissingSelectorIsTaggedError(t *testing.T) {
	fields := happyPathFields()
	delete(fields, "ctl06_BudynekLabel")

	_, err := Decode(tooltip(fields))
	if err == nil {
		t.Fatal("expected an error when a required selector is missing")
	}
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Field != "building" {
		t.Fatalf("err = %v, want *ParseError tagged %q", err, "building")
	}
}

func TestDecode_MultiValueSplitsAndTrims(t *testing.T) {
	fields := happyPathFields()
	fields["ctl06_OsobaRezerwujacaLabel"] = " Kowalski Jan ,  Nowak Anna  "
	entry, err := Decode(tooltip(fields))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []string{"Kowalski Jan", "Nowak Anna"}
	if len(entry.Persons) != 2 || entry.Persons[0] != want[0] || entry.Persons[1] != want[1] {
		t.Fatalf("persons = %v, want %v", entry.Persons, want)
	}
}

func TestDecode_BlankRequiredFieldIsTaggedError(t *testing.T) {
	fields := happyPathFields()
	fields["ctl06_BudynekLabel"] = "   "

	_, err := Decode(tooltip(fields))
	if err == nil {
		t.Fatal("expected an error when a required selector is present but blank")
	}
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Field != "building" {
		t.Fatalf("err = %v, want *ParseError tagged %q", err, "building")
	}
}

func TestDecode_BlankRequiredMultiValueFieldIsTaggedError(t *testing.T) {
	fields := happyPathFields()
	fields["ctl06_OsobaRezerwujacaLabel"] = "  ,  , "

	_, err := Decode(tooltip(fields))
	if err == nil {
		t.Fatal("expected an error when every token of a required multi-value field is empty")
	}
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Field != "persons" {
		t.Fatalf("err = %v, want *ParseError tagged %q", err, "persons")
	}
}

func TestDecode_BlankGroupsIsAbsentNotAnError(t *testing.T) {
	fields := happyPathFields()
	fields["ctl06_GrupyStudenckieLabel"] = "   "

	entry, err := Decode(tooltip(fields))
	if err != nil {
		t.Fatalf("Decode: %v, want a blank groups label to resolve to absent, not an error", err)
	}
	if entry.Groups != nil {
		t.Errorf("groups = %v, want absent (nil) for a blank label", entry.Groups)
	}
}

func TestCombine_NonexistentSpringForwardTimeIsRejected(t *testing.T) {
	// Poland's 2024 spring-forward: 01:59:59 CET -> 03:00:00 CEST on
	// 2024-03-31, so 02:00-02:59:59 never occurs.
	if _, err := combine("31.03.2024", "02:30:00"); err == nil {
		t.Fatal("expected an error for a nonexistent local time in the spring-forward gap")
	}
}

func TestCombine_AmbiguousFallBackTimeIsRejected(t *testing.T) {
	// Poland's 2023 fall-back: 03:00:00 CEST -> 02:00:00 CET on
	// 2023-10-29, so 02:00-02:59:59 occurs twice.
	if _, err := combine("29.10.2023", "02:30:00"); err == nil {
		t.Fatal("expected an error for an ambiguous local time in the fall-back overlap")
	}
}

func TestCombine_UnambiguousTimeIsAccepted(t *testing.T) {
	got, err := combine("15.01.2024", "08:00:00")
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	want := time.Date(2024, 1, 15, 7, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("combine = %v, want %v", got, want)
	}
}
