package hub

import (
	"encoding/json"
	"time"
)

// Client → server events.
const (
	EventJoinRoom       = "join-room"
	EventCodeChange     = "code-change"
	EventLanguageChange = "language-change"
	EventRunCode        = "run-code"
	EventPing           = "ping"
)

// Server → client events.
const (
	EventRoomState      = "room-state"
	EventCodeUpdate     = "code-update"
	EventLanguageUpdate = "language-update"
	EventRunResult      = "run-result"
	EventUserJoined     = "user-joined"
	EventUserLeft       = "user-left"
	EventPong           = "pong"
	EventError          = "error"
)

// Envelope wraps every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinRoomData struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

type CodeChangeData struct {
	RoomID   string  `json:"roomId"`
	Code     *string `json:"code,omitempty"`
	Language *string `json:"language,omitempty"`
}

type LanguageChangeData struct {
	RoomID   string `json:"roomId"`
	Language string `json:"language"`
}

type RunCodeData struct {
	RoomID   string `json:"roomId"`
	Code     string `json:"code"`
	Language string `json:"language"`
}

// RoomStateData is the join-time snapshot, sent to the joiner only.
type RoomStateData struct {
	Code         string   `json:"code"`
	Language     string   `json:"language"`
	Participants []string `json:"participants"`
}

type CodeUpdateData struct {
	Code      string `json:"code"`
	Language  string `json:"language,omitempty"`
	UpdatedBy string `json:"updatedBy"`
}

type LanguageUpdateData struct {
	Language  string `json:"language"`
	UpdatedBy string `json:"updatedBy"`
}

type RunResultData struct {
	RoomID           string    `json:"roomId"`
	Language         string    `json:"language"`
	StartedAt        time.Time `json:"startedAt"`
	DurationMs       int64     `json:"durationMs"`
	ExitCode         *int      `json:"exitCode"`
	Signal           string    `json:"signal,omitempty"`
	Stdout           string    `json:"stdout"`
	Stderr           string    `json:"stderr"`
	TimedOut         bool      `json:"timedOut"`
	OutputTruncated  bool      `json:"outputTruncated"`
	ToolchainMissing bool      `json:"toolchainMissing"`
	InitiatedBy      string    `json:"initiatedBy"`
}

type UserEventData struct {
	User         string   `json:"user"`
	Participants []string `json:"participants"`
}

type ErrorData struct {
	Message string `json:"message"`
}

func encodeEvent(event string, data any) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		// Payload types are all plain structs; this cannot fail at runtime.
		panic(err)
	}
	msg, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		panic(err)
	}
	return msg
}
