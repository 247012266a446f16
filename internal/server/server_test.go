package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/coderoomhq/coderoom/internal/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := zerolog.Nop()
	conf, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	s, err := New(conf, &logger)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.httpServer.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Status          string `json:"status"`
		RoomCount       int    `json:"roomCount"`
		ConnectionCount int    `json:"connectionCount"`
		Uptime          int64  `json:"uptime"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q", body.Status)
	}
	if body.RoomCount != 0 || body.ConnectionCount != 0 {
		t.Errorf("counts = %d/%d, want 0/0", body.RoomCount, body.ConnectionCount)
	}
}

func TestRoomInfoEndpoint(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.httpServer.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/rooms/missing")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	s.registry.AddParticipant("R1", "conn-1", "Ann")

	resp, err = http.Get(srv.URL + "/rooms/R1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		ID               string `json:"id"`
		ParticipantCount int    `json:"participantCount"`
		Language         string `json:"language"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.ID != "R1" || body.ParticipantCount != 1 || body.Language != "javascript" {
		t.Errorf("body = %+v", body)
	}
}
