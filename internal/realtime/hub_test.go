package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mbd888/ledgerlens/internal/analysis"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func newClient(h *Hub, sub Subscription) *Client {
	return &Client{hub: h, send: make(chan []byte, 256), sub: sub}
}

func progress(runID string, state analysis.State, account string) analysis.Progress {
	return analysis.Progress{RunID: runID, State: state, Account: account}
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	if !h.shouldSend(client, &Event{Type: EventProgress, RunID: "run_a"}) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{EventTypes: []EventType{EventComplete, EventFailed}}}

	if h.shouldSend(client, &Event{Type: EventProgress}) {
		t.Error("Should NOT receive progress events")
	}
	if !h.shouldSend(client, &Event{Type: EventComplete}) {
		t.Error("Should receive complete events")
	}
	if !h.shouldSend(client, &Event{Type: EventFailed}) {
		t.Error("Should receive failed events")
	}
}

func TestShouldSend_RunFilter(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{RunIDs: []string{"run_a"}}}

	if !h.shouldSend(client, &Event{Type: EventProgress, RunID: "run_a"}) {
		t.Error("Should receive events of the subscribed run")
	}
	if h.shouldSend(client, &Event{Type: EventProgress, RunID: "run_b"}) {
		t.Error("Should NOT receive events of other runs")
	}
}

func TestShouldSend_AccountFilter(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{Accounts: []string{"rWatched"}}}

	seedMatch := &Event{Type: EventProgress, RunID: "run_a", seed: "rWatched:42", Data: progress("run_a", analysis.StateExpanding, "rOther")}
	expanding := &Event{Type: EventProgress, RunID: "run_b", seed: "rSeed", Data: progress("run_b", analysis.StateExpanding, "rWatched")}
	unrelated := &Event{Type: EventProgress, RunID: "run_c", seed: "rSeed", Data: progress("run_c", analysis.StateExpanding, "rOther")}
	nonProgress := &Event{Type: EventProgress, RunID: "run_d", Data: "opaque"}

	if !h.shouldSend(client, seedMatch) {
		t.Error("Should match the run's seed ignoring the tag")
	}
	if !h.shouldSend(client, expanding) {
		t.Error("Should match the account being expanded")
	}
	if h.shouldSend(client, unrelated) {
		t.Error("Should NOT receive unrelated runs")
	}
	if h.shouldSend(client, nonProgress) {
		t.Error("Should NOT match when neither seed nor account is known")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{}}

	if !h.shouldSend(client, &Event{Type: EventProgress}) {
		t.Error("Empty subscription should pass every event")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := startHub(t)

	client := newClient(h, Subscription{AllEvents: true})
	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_PublishProgress(t *testing.T) {
	h := startHub(t)

	client := newClient(h, Subscription{Accounts: []string{"rSeed"}})
	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.Track("run_1", "rSeed")
	h.PublishProgress(progress("run_1", analysis.StateExpanding, "rNeighbor"))
	h.PublishProgress(progress("run_1", analysis.StateComplete, ""))

	var got []Event
	for len(got) < 2 {
		select {
		case msg := <-client.send:
			var ev Event
			if err := json.Unmarshal(msg, &ev); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			got = append(got, ev)
		case <-time.After(time.Second):
			t.Fatalf("Timeout waiting for events, got %d", len(got))
		}
	}
	if got[0].Type != EventProgress || got[1].Type != EventComplete {
		t.Errorf("unexpected event types %s, %s", got[0].Type, got[1].Type)
	}
	if got[1].RunID != "run_1" {
		t.Errorf("expected run_1, got %q", got[1].RunID)
	}

	h.seedsMu.Lock()
	_, tracked := h.seeds["run_1"]
	h.seedsMu.Unlock()
	if tracked {
		t.Error("terminal event should stop tracking the run")
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}

func TestHub_WebSocketRunFilter(t *testing.T) {
	h := startHub(t)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?run=run_x"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Wait for the hub to register the connection.
	deadline := time.Now().Add(time.Second)
	for h.Stats()["connectedClients"].(int) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	h.PublishProgress(progress("run_other", analysis.StateExpanding, "rA"))
	h.PublishProgress(progress("run_x", analysis.StateExpanding, "rB"))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.RunID != "run_x" {
		t.Errorf("expected only run_x events, got %q", ev.RunID)
	}
}
