// Package ws implements the ledger gateway transport: a websocket
// event feed plus HTTP transaction submission.
package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/louisbranch/emberclash/internal/battle/domain"
	"github.com/louisbranch/emberclash/internal/battle/event"
	apperrors "github.com/louisbranch/emberclash/internal/platform/errors"
	"github.com/louisbranch/emberclash/internal/transport"
)

var _ transport.Transport = (*Client)(nil)

const (
	defaultEventBuffer   = 256
	initialReconnectWait = time.Second
	maxReconnectWait     = 30 * time.Second
)

// Config holds the gateway endpoints and identity for a client.
type Config struct {
	// FeedURL is the websocket event feed endpoint (ws:// or wss://).
	FeedURL string
	// GatewayURL is the HTTP base URL for submissions and queries.
	GatewayURL string
	// Player is the local account id attached to submissions.
	Player string
	// HTTPClient overrides the default HTTP client when set.
	HTTPClient *http.Client
	// Logger receives connection lifecycle logs.
	Logger *slog.Logger
}

// Client connects to the ledger gateway. Run maintains the feed
// connection; the submission and query methods are safe to call from
// any goroutine.
type Client struct {
	feedURL    string
	gatewayURL string
	player     string
	httpClient *http.Client
	logger     *slog.Logger
	dialer     *websocket.Dialer
	events     chan event.Event
}

// NewClient creates a gateway client from the config.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.FeedURL) == "" {
		return nil, fmt.Errorf("feed url is required")
	}
	if strings.TrimSpace(cfg.GatewayURL) == "" {
		return nil, fmt.Errorf("gateway url is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		feedURL:    cfg.FeedURL,
		gatewayURL: strings.TrimRight(cfg.GatewayURL, "/"),
		player:     cfg.Player,
		httpClient: httpClient,
		logger:     logger,
		dialer:     websocket.DefaultDialer,
		events:     make(chan event.Event, defaultEventBuffer),
	}, nil
}

// Events returns the feed event stream. The channel is closed when
// Run returns.
func (c *Client) Events() <-chan event.Event {
	return c.events
}

// Run maintains the feed connection until ctx is cancelled,
// reconnecting with capped backoff. Each successful connect delivers
// a readiness event before any feed frames.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)

	wait := initialReconnectWait
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.feedURL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("feed dial failed", "url", c.feedURL, "error", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			if wait *= 2; wait > maxReconnectWait {
				wait = maxReconnectWait
			}
			continue
		}
		wait = initialReconnectWait

		if err := c.deliver(ctx, event.Event{Type: event.TypeReady}); err != nil {
			_ = conn.Close()
			return err
		}
		if err := c.readLoop(ctx, conn); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("feed connection lost", "error", err)
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	// Unblock ReadMessage when the caller cancels.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var evt event.Event
		if err := json.Unmarshal(frame, &evt); err != nil {
			c.logger.Warn("feed frame dropped", "error", apperrors.Wrap(apperrors.CodeFeedDecode, "decode feed frame", err))
			continue
		}
		if !evt.Type.IsValid() {
			c.logger.Warn("feed frame dropped", "error", apperrors.New(apperrors.CodeFeedUnknownEvent, "feed frame has no type"))
			continue
		}
		if err := c.deliver(ctx, evt); err != nil {
			return err
		}
	}
}

func (c *Client) deliver(ctx context.Context, evt event.Event) error {
	select {
	case c.events <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type moveSubmission struct {
	BattleID string `json:"battle_id"`
	Player   string `json:"player"`
	Move     uint8  `json:"move"`
	Deadline uint64 `json:"deadline"`
}

type settleSubmission struct {
	BattleID string `json:"battle_id"`
	Player   string `json:"player"`
	Seed     []byte `json:"seed"`
}

// SubmitMove posts a move commit to the gateway.
func (c *Client) SubmitMove(ctx context.Context, battleID string, move domain.MoveID, deadline uint64) error {
	body := moveSubmission{BattleID: battleID, Player: c.player, Move: uint8(move), Deadline: deadline}
	if err := c.post(ctx, "/v1/moves", body); err != nil {
		return apperrors.Wrap(apperrors.CodeTransportSubmitMove, "submit move", err)
	}
	return nil
}

// SubmitSettle posts a settle transaction to the gateway.
func (c *Client) SubmitSettle(ctx context.Context, battleID string, seed []byte) error {
	body := settleSubmission{BattleID: battleID, Player: c.player, Seed: seed}
	if err := c.post(ctx, "/v1/settlements", body); err != nil {
		return apperrors.Wrap(apperrors.CodeTransportSubmitSettle, "submit settle", err)
	}
	return nil
}

type seedResponse struct {
	View uint64 `json:"view"`
	Seed []byte `json:"seed"`
}

// QuerySeed fetches the seed for an exact view; a 404 means the seed
// is not yet published.
func (c *Client) QuerySeed(ctx context.Context, view uint64) ([]byte, bool, error) {
	var resp seedResponse
	found, err := c.get(ctx, fmt.Sprintf("/v1/seeds/%d", view), &resp)
	if err != nil {
		return nil, false, apperrors.Wrap(apperrors.CodeTransportQuerySeed, "query seed", err)
	}
	if !found {
		return nil, false, nil
	}
	return resp.Seed, true, nil
}

// QueryBattle fetches the authoritative record for a battle; a 404
// means the ledger no longer tracks it.
func (c *Client) QueryBattle(ctx context.Context, battleID string) (domain.Record, bool, error) {
	var rec domain.Record
	found, err := c.get(ctx, "/v1/battles/"+battleID, &rec)
	if err != nil {
		return domain.Record{}, false, apperrors.Wrap(apperrors.CodeTransportQueryBattle, "query battle", err)
	}
	return rec, found, nil
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("gateway responded %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, target any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.gatewayURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("gateway responded %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return true, nil
}
