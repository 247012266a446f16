// Package hub is the per-connection protocol gateway. A single event loop
// goroutine owns all room state transitions: events from one connection are
// handled in arrival order, and registry mutations are never concurrent with
// each other. Executions run on the worker pool; the loop only reacts when a
// result comes back.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/coderoomhq/coderoom/internal/executor"
	"github.com/coderoomhq/coderoom/internal/languages"
	"github.com/coderoomhq/coderoom/internal/metrics"
	"github.com/coderoomhq/coderoom/internal/proc"
	"github.com/coderoomhq/coderoom/internal/queue"
	"github.com/coderoomhq/coderoom/internal/registry"
)

type inboundMessage struct {
	client *Client
	raw    []byte
}

// runOutcome ties a finished execution back to its room for broadcast.
type runOutcome struct {
	roomID      string
	language    string
	startedAt   time.Time
	initiatedBy string
	result      proc.Result
}

type Options struct {
	Registry       *registry.Registry
	Queue          *queue.Manager
	Logger         *zerolog.Logger
	AllowedOrigins []string // "*" allows any origin
}

type Hub struct {
	registry *registry.Registry
	queue    *queue.Manager
	logger   *zerolog.Logger
	upgrader websocket.Upgrader

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundMessage
	results    chan runOutcome
	done       chan struct{}

	clients   map[string]*Client // keyed by connection id
	connCount atomic.Int64
}

func New(opts Options) *Hub {
	h := &Hub{
		registry:   opts.Registry,
		queue:      opts.Queue,
		logger:     opts.Logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundMessage, 256),
		results:    make(chan runOutcome, 64),
		done:       make(chan struct{}),
		clients:    make(map[string]*Client),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if strings.EqualFold(origin, a) {
				return true
			}
		}
		return false
	}
}

// ServeWS upgrades the connection and hands it to the event loop. The client
// is registered before its read pump starts, so no event can arrive for an
// unknown connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade rejected")
		return
	}
	client := newClient(h, conn)
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

func (h *Hub) ConnectionCount() int {
	return int(h.connCount.Load())
}

// Run is the event loop. It must be running before ServeWS accepts traffic
// and exits when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.handleRegister(c)
		case c := <-h.unregister:
			h.handleDisconnect(c)
		case m := <-h.inbound:
			h.dispatch(m.client, m.raw)
		case outcome := <-h.results:
			h.deliverRunResult(outcome)
		case <-ctx.Done():
			h.closeAllClients()
			return
		}
	}
}

// closeAllClients tears down every live connection at shutdown. Websocket
// conns are hijacked and survive http.Server.Shutdown, so without this the
// pump goroutines would linger after Run exits.
func (h *Hub) closeAllClients() {
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
		c.conn.Close()
	}
	h.connCount.Store(0)
	metrics.Connections.Set(0)
}

func (h *Hub) handleRegister(c *Client) {
	h.clients[c.id] = c
	h.connCount.Add(1)
	metrics.Connections.Set(float64(len(h.clients)))
	h.logger.Debug().Str("connection_id", c.id).Msg("connection opened")
}

func (h *Hub) handleDisconnect(c *Client) {
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	h.connCount.Add(-1)
	metrics.Connections.Set(float64(len(h.clients)))
	close(c.send)

	h.leaveCurrentRoom(c)
	h.logger.Debug().Str("connection_id", c.id).Msg("connection closed")
}

// leaveCurrentRoom removes the client from whichever room it occupies and
// notifies the remainder. The registry deletes the room synchronously if it
// became empty.
func (h *Hub) leaveCurrentRoom(c *Client) {
	if c.roomID == "" {
		return
	}
	left, state, ok := h.registry.RemoveParticipant(c.roomID, c.id)
	c.roomID = ""
	if !ok {
		return
	}
	h.broadcast(state, EventUserLeft, UserEventData{
		User:         left.Username,
		Participants: usernames(state),
	}, "")
}

// dispatch routes one inbound event. Any panic in a handler is confined to
// the offending connection: it gets a generic error event and every other
// connection keeps working.
func (h *Hub) dispatch(c *Client, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error().Interface("panic", r).Str("connection_id", c.id).Msg("event handler panicked")
			h.sendError(c, "internal error")
		}
	}()

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.sendError(c, "malformed event")
		return
	}

	switch env.Event {
	case EventJoinRoom:
		h.handleJoin(c, env.Data)
	case EventCodeChange:
		h.handleCodeChange(c, env.Data)
	case EventLanguageChange:
		h.handleLanguageChange(c, env.Data)
	case EventRunCode:
		h.handleRunCode(c, env.Data)
	case EventPing:
		h.push(c, encodeEvent(EventPong, struct{}{}))
	default:
		h.sendError(c, "unknown event: "+env.Event)
	}
}

func (h *Hub) handleJoin(c *Client, raw json.RawMessage) {
	var data JoinRoomData
	if err := json.Unmarshal(raw, &data); err != nil {
		h.sendError(c, "malformed join-room payload")
		return
	}
	username := strings.TrimSpace(data.Username)
	if data.RoomID == "" || username == "" {
		h.sendError(c, "roomId and username are required")
		return
	}

	// Joining a new room implicitly leaves the old one; between the two
	// registry calls no other event can run, so the switch is atomic as far
	// as every other connection can observe.
	if c.roomID != "" && c.roomID != data.RoomID {
		h.leaveCurrentRoom(c)
	}

	joined, state := h.registry.AddParticipant(data.RoomID, c.id, username)
	c.roomID = data.RoomID
	c.username = username

	h.push(c, encodeEvent(EventRoomState, RoomStateData{
		Code:         state.Buffer,
		Language:     state.Language.String(),
		Participants: usernames(state),
	}))
	h.broadcast(state, EventUserJoined, UserEventData{
		User:         joined.Username,
		Participants: usernames(state),
	}, c.id)

	h.logger.Info().
		Str("room_id", data.RoomID).
		Str("username", username).
		Int("participants", len(state.Participants)).
		Msg("participant joined")
}

func (h *Hub) handleCodeChange(c *Client, raw json.RawMessage) {
	var data CodeChangeData
	if err := json.Unmarshal(raw, &data); err != nil {
		h.sendError(c, "malformed code-change payload")
		return
	}
	if data.RoomID == "" {
		h.sendError(c, "roomId is required")
		return
	}

	var lang *languages.Language
	if data.Language != nil {
		parsed, ok := languages.Parse(*data.Language)
		if !ok {
			h.sendError(c, "unsupported language: "+*data.Language)
			return
		}
		lang = &parsed
	}

	state, err := h.registry.UpdateBuffer(data.RoomID, c.id, data.Code, lang)
	if err != nil {
		h.sendError(c, "room not found: "+data.RoomID)
		return
	}

	update := CodeUpdateData{
		Code:      state.Buffer,
		UpdatedBy: c.username,
	}
	if lang != nil {
		update.Language = state.Language.String()
	}
	// The sender already holds the authoritative text; everyone else gets it.
	h.broadcast(state, EventCodeUpdate, update, c.id)
}

func (h *Hub) handleLanguageChange(c *Client, raw json.RawMessage) {
	var data LanguageChangeData
	if err := json.Unmarshal(raw, &data); err != nil {
		h.sendError(c, "malformed language-change payload")
		return
	}
	if data.RoomID == "" || data.Language == "" {
		h.sendError(c, "roomId and language are required")
		return
	}
	lang, ok := languages.Parse(data.Language)
	if !ok {
		h.sendError(c, "unsupported language: "+data.Language)
		return
	}

	state, err := h.registry.UpdateBuffer(data.RoomID, c.id, nil, &lang)
	if err != nil {
		h.sendError(c, "room not found: "+data.RoomID)
		return
	}

	h.broadcast(state, EventLanguageUpdate, LanguageUpdateData{
		Language:  state.Language.String(),
		UpdatedBy: c.username,
	}, c.id)
}

func (h *Hub) handleRunCode(c *Client, raw json.RawMessage) {
	var data RunCodeData
	if err := json.Unmarshal(raw, &data); err != nil {
		h.sendError(c, "malformed run-code payload")
		return
	}
	if data.RoomID == "" || data.Code == "" || data.Language == "" {
		h.sendError(c, "roomId, code, and language are required")
		return
	}
	if _, ok := h.registry.Get(data.RoomID); !ok {
		h.sendError(c, "room not found: "+data.RoomID)
		return
	}

	// Unknown tags still go through the pipeline; the sandbox answers them
	// with a soft unsupported result so the room always gets a run-result.
	lang, _ := languages.Parse(data.Language)

	outcome := runOutcome{
		roomID:      data.RoomID,
		language:    data.Language,
		startedAt:   time.Now(),
		initiatedBy: c.username,
	}

	resultCh := make(chan proc.Result, 1)
	job := &queue.Job{
		ID: uuid.NewString(),
		Options: executor.Options{
			RoomID:   data.RoomID,
			Language: lang,
			Code:     data.Code,
		},
		Result: resultCh,
		Ctx:    context.Background(),
	}

	if !h.queue.TrySubmit(job) {
		outcome.result = proc.Result{Stderr: "execution rejected: queue is full, try again shortly"}
		h.deliverRunResult(outcome)
		return
	}

	// Wait for the worker off-loop; the event loop never blocks on a child
	// process.
	go func() {
		select {
		case res := <-resultCh:
			outcome.result = res
			select {
			case h.results <- outcome:
			case <-h.done:
			}
		case <-h.done:
		}
	}()
}

// deliverRunResult broadcasts a finished execution to every participant,
// including the one who initiated it.
func (h *Hub) deliverRunResult(outcome runOutcome) {
	state, ok := h.registry.Get(outcome.roomID)
	if !ok {
		h.logger.Debug().Str("room_id", outcome.roomID).Msg("dropping run result for vanished room")
		return
	}
	res := outcome.result
	h.broadcast(state, EventRunResult, RunResultData{
		RoomID:           outcome.roomID,
		Language:         outcome.language,
		StartedAt:        outcome.startedAt,
		DurationMs:       res.Duration.Milliseconds(),
		ExitCode:         res.ExitCode,
		Signal:           res.Signal,
		Stdout:           res.Stdout,
		Stderr:           res.Stderr,
		TimedOut:         res.TimedOut,
		OutputTruncated:  res.OutputTruncated,
		ToolchainMissing: res.ToolchainMissing,
		InitiatedBy:      outcome.initiatedBy,
	}, "")
}

// broadcast fans a message out to the room's participants, skipping
// excludeConnID when set. Slow consumers are dropped rather than allowed to
// stall the loop.
func (h *Hub) broadcast(state registry.State, event string, data any, excludeConnID string) {
	msg := encodeEvent(event, data)
	for _, p := range state.Participants {
		if p.ConnectionID == excludeConnID {
			continue
		}
		if c, ok := h.clients[p.ConnectionID]; ok {
			h.push(c, msg)
		}
	}
}

func (h *Hub) push(c *Client, msg []byte) {
	select {
	case c.send <- msg:
	default:
		h.logger.Warn().Str("connection_id", c.id).Msg("send buffer full, dropping message")
	}
}

func (h *Hub) sendError(c *Client, message string) {
	h.push(c, encodeEvent(EventError, ErrorData{Message: message}))
}

func usernames(state registry.State) []string {
	names := make([]string, 0, len(state.Participants))
	for _, p := range state.Participants {
		names = append(names, p.Username)
	}
	return names
}
