package api_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/sentinel/internal/adapters/http/api"
	"github.com/okian/sentinel/internal/domain/model"
	"github.com/okian/sentinel/internal/domain/session"
	"github.com/okian/sentinel/internal/domain/token"
	"github.com/okian/sentinel/pkg/logger"
)

func init() {
	_ = logger.Init()
}

type mockEngine struct {
	sessions map[int]bool
	banned   map[int]bool
	events   []string
	reports  []api.ClientReport
	states   map[int]model.Observation
	trackOK  bool
	validate bool
	goodSig  string
}

func newMockEngine() *mockEngine {
	return &mockEngine{
		sessions: map[int]bool{},
		banned:   map[int]bool{},
		trackOK:  true,
		goodSig:  "good",
	}
}

func (m *mockEngine) auth(tok model.Token) error {
	if tok.Signature != m.goodSig {
		return token.ErrBadSignature
	}
	return nil
}

func (m *mockEngine) Connect(_ context.Context, id int) (model.Token, error) {
	if m.banned[id] {
		return model.Token{}, session.ErrBanned
	}
	if m.sessions[id] {
		return model.Token{}, session.ErrSessionExists
	}
	m.sessions[id] = true
	return model.Token{IssuedAt: 100, Signature: "good"}, nil
}

func (m *mockEngine) Disconnect(_ context.Context, id int) (model.SessionSummary, error) {
	if !m.sessions[id] {
		return model.SessionSummary{}, session.ErrSessionNotFound
	}
	delete(m.sessions, id)
	return model.SessionSummary{PlayerID: id, FinalTrust: 90}, nil
}

func (m *mockEngine) Session(_ context.Context, id int) (api.SessionView, error) {
	if !m.sessions[id] {
		return api.SessionView{}, session.ErrSessionNotFound
	}
	return api.SessionView{PlayerID: id, TrustScore: 100, History: []model.Detection{}}, nil
}

func (m *mockEngine) ResetTrust(_ context.Context, id int) error {
	if !m.sessions[id] {
		return session.ErrSessionNotFound
	}
	return nil
}

func (m *mockEngine) IssueToken(_ context.Context, id int) (model.Token, error) {
	if !m.sessions[id] {
		return model.Token{}, session.ErrSessionNotFound
	}
	return model.Token{IssuedAt: 101, Signature: "good"}, nil
}

func (m *mockEngine) TrackEvent(_ context.Context, id int, tok model.Token, event, _ string) (bool, error) {
	if err := m.auth(tok); err != nil {
		return false, err
	}
	if !m.sessions[id] {
		return false, session.ErrSessionNotFound
	}
	m.events = append(m.events, event)
	return m.trackOK, nil
}

func (m *mockEngine) Report(_ context.Context, id int, tok model.Token, r api.ClientReport) (bool, error) {
	if err := m.auth(tok); err != nil {
		return false, err
	}
	if !m.sessions[id] {
		return false, session.ErrSessionNotFound
	}
	m.reports = append(m.reports, r)
	return m.validate, nil
}

func (m *mockEngine) PushState(_ context.Context, states map[int]model.Observation) error {
	m.states = states
	return nil
}

type stats struct{}

func (stats) GetStats() map[string]any { return map[string]any{"sessions": 2} }

const serverCred = "Bearer game-server"

// serverAuth accepts only serverCred.
type serverAuth struct{}

func (serverAuth) AuthorizeServer(_ context.Context, header string) error {
	if header != serverCred {
		return token.ErrBadCredential
	}
	return nil
}

// do sends the request as the game server.
func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	return send(mux, method, path, body, serverCred)
}

func send(mux *http.ServeMux, method, path, body, cred string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if cred != "" {
		req.Header.Set(token.ServerCredentialHeader, cred)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var m map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &m)
	return m
}

func eventBody(id int, sig, event string) string {
	return fmt.Sprintf(`{"player_id":%d,"token":{"issued_at":100,"signature":%q},"event":%q,"source":"client"}`, id, sig, event)
}

func TestSessionRoutes(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		eng := newMockEngine()
		mux := http.NewServeMux()
		api.NewServer(eng, api.WithStats(stats{}), api.WithServerAuth(serverAuth{})).Register(mux)

		Convey("When a player connects", func() {
			w := do(mux, http.MethodPost, "/v1/sessions", `{"player_id":7}`)

			Convey("Then a token is returned", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				tok := decode(w)["token"].(map[string]any)
				So(tok["signature"], ShouldEqual, "good")
			})

			Convey("Then a second connect conflicts", func() {
				w := do(mux, http.MethodPost, "/v1/sessions", `{"player_id":7}`)
				So(w.Code, ShouldEqual, http.StatusConflict)
			})

			Convey("Then the session can be read, reset and closed", func() {
				So(do(mux, http.MethodGet, "/v1/sessions/7", "").Code, ShouldEqual, http.StatusOK)
				So(do(mux, http.MethodPost, "/v1/sessions/7/reset", "").Code, ShouldEqual, http.StatusOK)
				So(do(mux, http.MethodPost, "/v1/tokens", `{"player_id":7}`).Code, ShouldEqual, http.StatusOK)

				w := do(mux, http.MethodDelete, "/v1/sessions/7", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["final_trust"], ShouldEqual, 90.0)
				So(do(mux, http.MethodGet, "/v1/sessions/7", "").Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When a banned player connects", func() {
			eng.banned[9] = true
			So(do(mux, http.MethodPost, "/v1/sessions", `{"player_id":9}`).Code, ShouldEqual, http.StatusForbidden)
		})

		Convey("When the body is invalid", func() {
			So(do(mux, http.MethodPost, "/v1/sessions", `{"player_id":0}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/v1/sessions", `not json`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/v1/sessions/abc", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the method is wrong", func() {
			So(do(mux, http.MethodPut, "/v1/sessions", `{}`).Code, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("When asking for stats and health", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["sessions"], ShouldEqual, 2.0)
			So(do(mux, http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusOK)
		})
	})
}

func TestEventRoutes(t *testing.T) {
	Convey("Given a connected player", t, func() {
		eng := newMockEngine()
		eng.sessions[3] = true
		mux := http.NewServeMux()
		api.NewServer(eng, api.WithServerAuth(serverAuth{})).Register(mux)

		Convey("When an authenticated event arrives", func() {
			w := do(mux, http.MethodPost, "/v1/events", eventBody(3, "good", "giveWeapon"))

			Convey("Then it is tracked", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["status"], ShouldEqual, "accepted")
				So(eng.events, ShouldResemble, []string{"giveWeapon"})
			})
		})

		Convey("When the monitor blocks the event", func() {
			eng.trackOK = false
			w := do(mux, http.MethodPost, "/v1/events", eventBody(3, "good", "giveWeapon"))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["accepted"], ShouldEqual, false)
		})

		Convey("When the token is bad", func() {
			w := do(mux, http.MethodPost, "/v1/events", eventBody(3, "forged", "giveWeapon"))

			Convey("Then the request is unauthorized and nothing is tracked", func() {
				So(w.Code, ShouldEqual, http.StatusUnauthorized)
				So(eng.events, ShouldBeEmpty)
			})
		})

		Convey("When the session is unknown", func() {
			w := do(mux, http.MethodPost, "/v1/events", eventBody(4, "good", "giveWeapon"))
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the event name is missing", func() {
			w := do(mux, http.MethodPost, "/v1/events", eventBody(3, "good", ""))
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When a client report is posted", func() {
			eng.validate = true
			body := `{"id":"r1","player_id":3,"token":{"issued_at":100,"signature":"good"},"type":"Teleport","payload":{"to":{"x":1,"y":2,"z":3}}}`
			w := do(mux, http.MethodPost, "/v1/reports", body)

			Convey("Then it reaches the engine", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(decode(w)["status"], ShouldEqual, "confirmed")
				So(eng.reports[0].Type, ShouldEqual, model.Teleport)
				So(eng.reports[0].ID, ShouldEqual, "r1")
			})
		})

		Convey("When the game server pushes state", func() {
			body := `{"states":[{"player_id":3,"state":{"health":90,"position":{"x":1,"y":0,"z":0}}}]}`
			w := do(mux, http.MethodPost, "/v1/gamestate", body)

			Convey("Then the batch is stored", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(eng.states[3].State.Health, ShouldEqual, 90.0)
				So(eng.states[3].ObservedAt.IsZero(), ShouldBeTrue)
			})
		})

		Convey("When the game state batch is empty", func() {
			So(do(mux, http.MethodPost, "/v1/gamestate", `{"states":[]}`).Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestServerOnlyRoutes(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		eng := newMockEngine()
		eng.sessions[9] = true
		mux := http.NewServeMux()
		api.NewServer(eng, api.WithServerAuth(serverAuth{})).Register(mux)

		routes := []struct{ method, path, body string }{
			{http.MethodPost, "/v1/tokens", `{"player_id":9}`},
			{http.MethodPost, "/v1/gamestate", `{"states":[{"player_id":9,"state":{"health":1,"position":{"x":1e6,"y":0,"z":0}}}]}`},
			{http.MethodPost, "/v1/sessions", `{"player_id":10}`},
			{http.MethodGet, "/v1/sessions/9", ""},
			{http.MethodPost, "/v1/sessions/9/reset", ""},
			{http.MethodDelete, "/v1/sessions/9", ""},
		}

		Convey("When a caller presents no credential", func() {
			for _, rt := range routes {
				w := send(mux, rt.method, rt.path, rt.body, "")
				So(w.Code, ShouldEqual, http.StatusUnauthorized)
				So(w.Header().Get("WWW-Authenticate"), ShouldStartWith, "Bearer")
			}

			Convey("Then nothing reaches the engine", func() {
				So(eng.states, ShouldBeNil)
				So(eng.sessions[9], ShouldBeTrue)
				So(eng.sessions[10], ShouldBeFalse)
			})
		})

		Convey("When a caller presents a forged credential", func() {
			w := send(mux, http.MethodPost, "/v1/gamestate", routes[1].body, "Bearer forged")
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
			So(decode(w)["code"], ShouldEqual, "unauthorized")
			So(eng.states, ShouldBeNil)
		})

		Convey("When the game server presents its credential", func() {
			w := do(mux, http.MethodPost, "/v1/tokens", `{"player_id":9}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("WWW-Authenticate"), ShouldBeEmpty)
		})

		Convey("When player routes are called without a server credential", func() {
			w := send(mux, http.MethodPost, "/v1/events", eventBody(9, "good", "chat"), "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(send(mux, http.MethodGet, "/healthz", "", "").Code, ShouldEqual, http.StatusOK)
		})

		Convey("When no authorizer is configured", func() {
			bare := http.NewServeMux()
			api.NewServer(eng).Register(bare)
			So(do(bare, http.MethodPost, "/v1/tokens", `{"player_id":9}`).Code, ShouldEqual, http.StatusUnauthorized)
		})
	})
}

func TestKindError(t *testing.T) {
	Convey("Given a wrapped kind", t, func() {
		cause := fmt.Errorf("deadline after %s", time.Second)
		err := api.WrapKind("api.op", api.ErrBackpressure, cause)

		So(err.Error(), ShouldContainSubstring, "api.op")
		So(errors.Is(err, api.ErrBackpressure), ShouldBeTrue)
		So(errors.Is(err, cause), ShouldBeTrue)
		So(errors.Is(api.NewKind("api.op", api.ErrNotFound), api.ErrNotFound), ShouldBeTrue)
	})
}
