package registry_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/coderoomhq/coderoom/internal/languages"
	"github.com/coderoomhq/coderoom/internal/registry"
)

func newRegistry() *registry.Registry {
	logger := zerolog.Nop()
	return registry.New(&logger)
}

func TestGetOrCreateSeedsDefaults(t *testing.T) {
	reg := newRegistry()

	state := reg.GetOrCreate("R1")

	if state.ID != "R1" {
		t.Errorf("id = %q", state.ID)
	}
	if state.Buffer != registry.DefaultBuffer {
		t.Errorf("buffer not seeded with default content")
	}
	if state.Language != languages.Default {
		t.Errorf("language = %q, want default", state.Language)
	}

	// Idempotent: a second call returns the same room.
	again := reg.GetOrCreate("R1")
	if !again.CreatedAt.Equal(state.CreatedAt) {
		t.Error("second GetOrCreate created a new room")
	}
	if reg.RoomCount() != 1 {
		t.Errorf("room count = %d, want 1", reg.RoomCount())
	}
}

func TestAddParticipantCreatesRoomLazily(t *testing.T) {
	reg := newRegistry()

	p, state := reg.AddParticipant("R1", "conn-1", "Ann")

	if p.Username != "Ann" || p.ConnectionID != "conn-1" {
		t.Errorf("participant = %+v", p)
	}
	if !p.JoinedAt.Equal(p.LastSeen) {
		t.Error("joinedAt and lastSeen should match at join time")
	}
	if len(state.Participants) != 1 {
		t.Fatalf("participants = %d, want 1", len(state.Participants))
	}
	if state.Buffer != registry.DefaultBuffer {
		t.Error("lazily created room missing seeded buffer")
	}
}

func TestAddParticipantOverwritesStaleEntry(t *testing.T) {
	reg := newRegistry()
	reg.AddParticipant("R1", "conn-1", "Ann")

	_, state := reg.AddParticipant("R1", "conn-1", "Annie")

	if len(state.Participants) != 1 {
		t.Fatalf("participants = %d, want 1", len(state.Participants))
	}
	if state.Participants[0].Username != "Annie" {
		t.Errorf("username = %q, want Annie", state.Participants[0].Username)
	}
}

func TestRemoveLastParticipantDeletesRoomSynchronously(t *testing.T) {
	reg := newRegistry()
	reg.AddParticipant("R1", "conn-1", "Ann")
	reg.AddParticipant("R1", "conn-2", "Bob")

	removed, state, ok := reg.RemoveParticipant("R1", "conn-1")
	if !ok || removed.Username != "Ann" {
		t.Fatalf("removed = %+v ok=%v", removed, ok)
	}
	if len(state.Participants) != 1 {
		t.Fatalf("remaining participants = %d, want 1", len(state.Participants))
	}
	if _, exists := reg.Get("R1"); !exists {
		t.Fatal("room should survive while occupied")
	}

	reg.RemoveParticipant("R1", "conn-2")

	// Immediately absent, not deferred to the sweep.
	if _, exists := reg.Get("R1"); exists {
		t.Fatal("room should be deleted the instant it becomes empty")
	}
	if reg.RoomCount() != 0 {
		t.Errorf("room count = %d, want 0", reg.RoomCount())
	}
}

func TestRemoveParticipantUnknown(t *testing.T) {
	reg := newRegistry()

	if _, _, ok := reg.RemoveParticipant("nope", "conn-1"); ok {
		t.Error("remove from missing room should report ok=false")
	}

	reg.AddParticipant("R1", "conn-1", "Ann")
	if _, _, ok := reg.RemoveParticipant("R1", "conn-2"); ok {
		t.Error("remove of missing participant should report ok=false")
	}
}

func TestUpdateBuffer(t *testing.T) {
	reg := newRegistry()
	reg.AddParticipant("R1", "conn-1", "Ann")

	text := "print('hi')"
	lang := languages.Python
	state, err := reg.UpdateBuffer("R1", "conn-1", &text, &lang)
	if err != nil {
		t.Fatal(err)
	}
	if state.Buffer != text || state.Language != languages.Python {
		t.Errorf("state = %+v", state)
	}

	// Language-only update leaves the buffer alone.
	js := languages.JavaScript
	state, err = reg.UpdateBuffer("R1", "conn-1", nil, &js)
	if err != nil {
		t.Fatal(err)
	}
	if state.Buffer != text {
		t.Error("language-only update clobbered the buffer")
	}
	if state.Language != languages.JavaScript {
		t.Errorf("language = %q", state.Language)
	}
}

func TestUpdateBufferRoomNotFound(t *testing.T) {
	reg := newRegistry()
	text := "x"
	if _, err := reg.UpdateBuffer("ghost", "conn-1", &text, nil); err != registry.ErrRoomNotFound {
		t.Errorf("err = %v, want ErrRoomNotFound", err)
	}
}

func TestUpdateBufferTouchesActorLastSeen(t *testing.T) {
	reg := newRegistry()
	p, _ := reg.AddParticipant("R1", "conn-1", "Ann")

	time.Sleep(5 * time.Millisecond)
	text := "edited"
	state, err := reg.UpdateBuffer("R1", "conn-1", &text, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !state.Participants[0].LastSeen.After(p.LastSeen) {
		t.Error("edit did not advance the actor's lastSeen")
	}
}

func TestConcurrentEditsLastWriterWins(t *testing.T) {
	reg := newRegistry()
	reg.AddParticipant("R1", "conn-1", "Ann")
	reg.AddParticipant("R1", "conn-2", "Bob")

	annEdit := "ann's version"
	bobEdit := "bob's version"
	reg.UpdateBuffer("R1", "conn-1", &annEdit, nil)
	state, err := reg.UpdateBuffer("R1", "conn-2", &bobEdit, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Whole-buffer snapshots replace each other wholesale: the later edit
	// silently wins, there is no merge.
	if state.Buffer != bobEdit {
		t.Errorf("buffer = %q, want the later edit", state.Buffer)
	}
}

func TestSweepEvictsOnlyIdleEmptyRooms(t *testing.T) {
	reg := newRegistry()

	reg.GetOrCreate("empty-idle")
	reg.AddParticipant("occupied", "conn-1", "Ann")

	// Pretend 25 hours pass: the empty room is past the TTL, the occupied
	// room is the same age but must never be evicted.
	future := time.Now().Add(25 * time.Hour)
	evicted := reg.Sweep(future, 24*time.Hour)

	if evicted != 1 {
		t.Fatalf("evicted = %d, want 1", evicted)
	}
	if _, ok := reg.Get("empty-idle"); ok {
		t.Error("idle empty room survived the sweep")
	}
	if _, ok := reg.Get("occupied"); !ok {
		t.Error("occupied room was evicted")
	}
}

func TestSweepKeepsFreshEmptyRooms(t *testing.T) {
	reg := newRegistry()
	reg.GetOrCreate("fresh")

	if evicted := reg.Sweep(time.Now(), 24*time.Hour); evicted != 0 {
		t.Errorf("evicted = %d, want 0", evicted)
	}
	if _, ok := reg.Get("fresh"); !ok {
		t.Error("fresh room should survive the sweep")
	}
}
