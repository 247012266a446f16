// Package registry owns room and participant lifetime. All mutation happens
// through its methods; callers only ever see point-in-time State copies, so
// the hub loop, HTTP handlers, and the reaper can read concurrently.
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coderoomhq/coderoom/internal/languages"
	"github.com/coderoomhq/coderoom/internal/metrics"
)

var ErrRoomNotFound = errors.New("room not found")

// DefaultBuffer seeds every freshly created room.
const DefaultBuffer = `// Welcome! Everyone in this room shares the same buffer.
// Pick a language, write some code, and hit run to share the
// output with the whole room.

console.log("hello, room");
`

type Participant struct {
	ConnectionID string
	Username     string
	JoinedAt     time.Time
	LastSeen     time.Time
}

type room struct {
	id           string
	buffer       string
	language     languages.Language
	participants map[string]*Participant
	createdAt    time.Time
	lastActivity time.Time
}

// State is a copy of a room's observable state, safe to use outside the lock.
type State struct {
	ID           string
	Buffer       string
	Language     languages.Language
	Participants []Participant
	CreatedAt    time.Time
	LastActivity time.Time
}

type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	logger *zerolog.Logger
}

func New(logger *zerolog.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]*room),
		logger: logger,
	}
}

// GetOrCreate returns the room's state, creating it with the seeded buffer
// and default language if absent. Idempotent.
func (r *Registry) GetOrCreate(id string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot(r.getOrCreateLocked(id))
}

func (r *Registry) getOrCreateLocked(id string) *room {
	rm, ok := r.rooms[id]
	if !ok {
		now := time.Now()
		rm = &room{
			id:           id,
			buffer:       DefaultBuffer,
			language:     languages.Default,
			participants: make(map[string]*Participant),
			createdAt:    now,
			lastActivity: now,
		}
		r.rooms[id] = rm
		metrics.Rooms.Set(float64(len(r.rooms)))
		r.logger.Info().Str("room_id", id).Msg("room created")
	}
	return rm
}

func (r *Registry) Get(id string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[id]
	if !ok {
		return State{}, false
	}
	return r.snapshot(rm), true
}

// AddParticipant adds (or replaces) the connection's membership in the room,
// creating the room lazily. Any stale entry for the same connection is
// overwritten.
func (r *Registry) AddParticipant(roomID, connectionID, username string) (Participant, State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.getOrCreateLocked(roomID)
	now := time.Now()
	p := &Participant{
		ConnectionID: connectionID,
		Username:     username,
		JoinedAt:     now,
		LastSeen:     now,
	}
	rm.participants[connectionID] = p
	rm.lastActivity = now
	return *p, r.snapshot(rm)
}

// RemoveParticipant removes the connection from the room and returns the
// removed entry plus the remaining state. The room is deleted synchronously
// the instant its participant set becomes empty, not deferred to the sweep.
func (r *Registry) RemoveParticipant(roomID, connectionID string) (Participant, State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return Participant{}, State{}, false
	}
	p, ok := rm.participants[connectionID]
	if !ok {
		return Participant{}, r.snapshot(rm), false
	}
	delete(rm.participants, connectionID)
	rm.lastActivity = time.Now()

	if len(rm.participants) == 0 {
		delete(r.rooms, roomID)
		metrics.Rooms.Set(float64(len(r.rooms)))
		r.logger.Info().Str("room_id", roomID).Msg("room deleted, last participant left")
	}
	return *p, r.snapshot(rm), true
}

// UpdateBuffer applies whichever of text and lang are present; a call may
// change only the language. Touches the room's lastActivity and the acting
// participant's lastSeen.
func (r *Registry) UpdateBuffer(roomID, connectionID string, text *string, lang *languages.Language) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return State{}, ErrRoomNotFound
	}
	if text != nil {
		rm.buffer = *text
	}
	if lang != nil {
		rm.language = *lang
	}
	now := time.Now()
	rm.lastActivity = now
	if p, ok := rm.participants[connectionID]; ok {
		p.LastSeen = now
	}
	return r.snapshot(rm), nil
}

func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Sweep deletes every room with zero participants whose lastActivity is older
// than maxIdle. Occupied rooms are never evicted regardless of age. Returns
// the number of rooms evicted.
func (r *Registry) Sweep(now time.Time, maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, rm := range r.rooms {
		if len(rm.participants) == 0 && now.Sub(rm.lastActivity) > maxIdle {
			delete(r.rooms, id)
			evicted++
			r.logger.Info().Str("room_id", id).Msg("room evicted by sweep")
		}
	}
	if evicted > 0 {
		metrics.Rooms.Set(float64(len(r.rooms)))
	}
	return evicted
}

func (r *Registry) snapshot(rm *room) State {
	participants := make([]Participant, 0, len(rm.participants))
	for _, p := range rm.participants {
		participants = append(participants, *p)
	}
	sort.Slice(participants, func(i, j int) bool {
		if participants[i].JoinedAt.Equal(participants[j].JoinedAt) {
			return participants[i].ConnectionID < participants[j].ConnectionID
		}
		return participants[i].JoinedAt.Before(participants[j].JoinedAt)
	})
	return State{
		ID:           rm.id,
		Buffer:       rm.buffer,
		Language:     rm.language,
		Participants: participants,
		CreatedAt:    rm.createdAt,
		LastActivity: rm.lastActivity,
	}
}
