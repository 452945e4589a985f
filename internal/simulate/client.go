package simulate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/sentinel/internal/domain/model"
	"github.com/okian/sentinel/internal/domain/token"
)

const credentialTTL = time.Minute

// Client talks to the sentinel HTTP API. It plays the game server on
// session, token and state routes, and the players on event routes.
type Client struct {
	base   string
	secret string
	hc     *http.Client
}

// NewClient creates a Client with a per-request timeout. secret is the
// shared secret the service was started with.
func NewClient(baseURL, secret string, timeout time.Duration) *Client {
	return &Client{base: baseURL, secret: secret, hc: &http.Client{Timeout: timeout}}
}

type tokenReply struct {
	Token model.Token `json:"token"`
}

type ackReply struct {
	Status   string `json:"status"`
	Accepted bool   `json:"accepted"`
}

// SessionReply is the subset of the session view the simulator checks.
type SessionReply struct {
	PlayerID   int            `json:"player_id"`
	TrustScore float64        `json:"trust_score"`
	Enforced   string         `json:"enforced"`
	Errors     map[string]int `json:"errors"`
}

// StateEntry pairs a player with the state the game server reports.
type StateEntry struct {
	PlayerID   int               `json:"player_id"`
	State      model.PlayerState `json:"state"`
	ObservedAt int64             `json:"observed_at,omitempty"`
}

// Health checks the metrics endpoint answers.
func (c *Client) Health(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, "/healthz", "", nil, http.StatusOK, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	return nil
}

// Connect opens a session and returns its first token.
func (c *Client) Connect(ctx context.Context, playerID int) (model.Token, error) {
	var out tokenReply
	err := c.asServer(ctx, http.MethodPost, "/v1/sessions", map[string]int{"player_id": playerID}, http.StatusCreated, &out)
	return out.Token, err
}

// Token fetches a fresh single-use token.
func (c *Client) Token(ctx context.Context, playerID int) (model.Token, error) {
	var out tokenReply
	err := c.asServer(ctx, http.MethodPost, "/v1/tokens", map[string]int{"player_id": playerID}, http.StatusOK, &out)
	return out.Token, err
}

// Event submits one network event and reports whether it was accepted.
func (c *Client) Event(ctx context.Context, playerID int, tok model.Token, event, source string) (bool, error) {
	var out ackReply
	err := c.do(ctx, http.MethodPost, "/v1/events", "", map[string]any{
		"player_id": playerID,
		"token":     tok,
		"event":     event,
		"source":    source,
	}, http.StatusOK, &out)
	return out.Accepted, err
}

// PushStates publishes a batch of authoritative states.
func (c *Client) PushStates(ctx context.Context, states []StateEntry) error {
	return c.asServer(ctx, http.MethodPost, "/v1/gamestate", map[string]any{"states": states}, http.StatusAccepted, nil)
}

// Session reads a player's session view.
func (c *Client) Session(ctx context.Context, playerID int) (SessionReply, error) {
	var out SessionReply
	err := c.asServer(ctx, http.MethodGet, "/v1/sessions/"+strconv.Itoa(playerID), nil, http.StatusOK, &out)
	return out, err
}

// Disconnect ends a session.
func (c *Client) Disconnect(ctx context.Context, playerID int) error {
	return c.asServer(ctx, http.MethodDelete, "/v1/sessions/"+strconv.Itoa(playerID), nil, http.StatusOK, nil)
}

func (c *Client) asServer(ctx context.Context, method, path string, body any, want int, out any) error {
	cred, err := token.SignServerCredential(c.secret, time.Now(), credentialTTL)
	if err != nil {
		return fmt.Errorf("server credential: %w", err)
	}
	return c.do(ctx, method, path, cred, body, want, out)
}

func (c *Client) do(ctx context.Context, method, path, cred string, body any, want int, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", path, err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cred != "" {
		req.Header.Set(token.ServerCredentialHeader, cred)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s: %d %s", ErrUnexpectedStatus, method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
