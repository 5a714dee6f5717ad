package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/louisbranch/emberclash/internal/battle/domain"
	"github.com/louisbranch/emberclash/internal/battle/event"
	apperrors "github.com/louisbranch/emberclash/internal/platform/errors"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		FeedURL:    "ws" + strings.TrimPrefix(server.URL, "http") + "/feed",
		GatewayURL: server.URL,
		Player:     "alice",
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestSubmitMovePostsCommit(t *testing.T) {
	var got moveSubmission
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/moves" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))

	if err := client.SubmitMove(context.Background(), "battle-1", 2, 50); err != nil {
		t.Fatalf("submit move: %v", err)
	}
	if got.BattleID != "battle-1" || got.Player != "alice" || got.Move != 2 || got.Deadline != 50 {
		t.Fatalf("unexpected submission %+v", got)
	}
}

func TestSubmitSettleReportsGatewayFailure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	err := client.SubmitSettle(context.Background(), "battle-1", []byte("seed"))
	if err == nil {
		t.Fatal("expected submission error")
	}
	if !apperrors.IsCode(err, apperrors.CodeTransportSubmitSettle) {
		t.Fatalf("expected settle submit code, got %v", err)
	}
}

func TestQuerySeed(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/seeds/50":
			_ = json.NewEncoder(w).Encode(seedResponse{View: 50, Seed: []byte("fifty")})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	seed, found, err := client.QuerySeed(context.Background(), 50)
	if err != nil {
		t.Fatalf("query seed: %v", err)
	}
	if !found || string(seed) != "fifty" {
		t.Fatalf("expected published seed, got found=%v seed=%q", found, seed)
	}

	_, found, err = client.QuerySeed(context.Background(), 51)
	if err != nil {
		t.Fatalf("query unpublished seed: %v", err)
	}
	if found {
		t.Fatal("expected unpublished seed to be not found")
	}
}

func TestQueryBattle(t *testing.T) {
	want := domain.Record{
		BattleID: "battle-1",
		PlayerA:  "alice",
		PlayerB:  "bob",
		Round:    2,
		Deadline: 90,
		View:     60,
		HealthA:  80,
		HealthB:  75,
	}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/battles/battle-1":
			_ = json.NewEncoder(w).Encode(want)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	rec, found, err := client.QueryBattle(context.Background(), "battle-1")
	if err != nil {
		t.Fatalf("query battle: %v", err)
	}
	if !found {
		t.Fatal("expected battle record")
	}
	if rec != want {
		t.Fatalf("expected %+v, got %+v", want, rec)
	}

	_, found, err = client.QueryBattle(context.Background(), "gone")
	if err != nil {
		t.Fatalf("query missing battle: %v", err)
	}
	if found {
		t.Fatal("expected missing battle to be not found")
	}
}

func TestRunDeliversReadyThenFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feed" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		frame, _ := json.Marshal(event.Event{Type: event.TypeView, View: 42})
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	waitEvent := func(want event.Type) event.Event {
		t.Helper()
		select {
		case evt, ok := <-client.Events():
			if !ok {
				t.Fatal("event channel closed early")
			}
			if evt.Type != want {
				t.Fatalf("expected %q event, got %q", want, evt.Type)
			}
			return evt
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %q event", want)
		}
		return event.Event{}
	}

	waitEvent(event.TypeReady)
	viewEvt := waitEvent(event.TypeView)
	if viewEvt.View != 42 {
		t.Fatalf("expected view 42, got %d", viewEvt.View)
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}

	// The event channel closes once Run returns.
	for range client.Events() {
	}
}
