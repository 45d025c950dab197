package token

import (
	"testing"

	"github.com/pjatk21/sigma-api/internal/model"
)

func TestState_EmptyInitially(t *testing.T) {
	s := New()
	if !s.Empty() {
		t.Fatal("expected a freshly-created State to be empty")
	}
}

func TestState_UpdateThenSnapshotRoundtrips(t *testing.T) {
	s := New()
	want := model.TokenSet{
		ViewState:          "v1",
		ViewStateGenerator: "g1",
		EventValidation:    "e1",
	}
	s.Update(want)

	got := s.Snapshot()
	if got != want {
		t.Fatalf("snapshot = %+v, want %+v", got, want)
	}
	if s.Empty() {
		t.Fatal("expected State to be non-empty after Update")
	}
}

func TestState_UpdateReplacesAllThreeFields(t *testing.T) {
	s := New()
	s.Update(model.TokenSet{ViewState: "v1", ViewStateGenerator: "g1", EventValidation: "e1"})
	s.Update(model.TokenSet{ViewState: "v2", ViewStateGenerator: "g2", EventValidation: "e2"})

	got := s.Snapshot()
	want := model.TokenSet{ViewState: "v2", ViewStateGenerator: "g2", EventValidation: "e2"}
	if got != want {
		t.Fatalf("snapshot after second update = %+v, want %+v", got, want)
	}
}
