package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pefman/w40k-combat/internal/catalog"
	"github.com/pefman/w40k-combat/internal/combat"
	"github.com/pefman/w40k-combat/internal/models"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	s := New(cat, Options{Workers: 2, Seeder: func() (uint64, error) { return 42, nil }})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func seed(n uint64) *uint64 { return &n }

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp := do(t, http.MethodGet, ts.URL+"/api/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"status": "ok"}, decode[map[string]string](t, resp))
}

func TestUnits(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, http.MethodGet, ts.URL+"/api/units", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]models.UnitEntry](t, resp)
	require.Len(t, list, 6)
	assert.Equal(t, "allarus-custodians", list[0].ID)
	assert.Equal(t, "Allarus Custodians", list[0].Unit.Name)

	resp = do(t, http.MethodGet, ts.URL+"/api/units/genestealers", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	one := decode[models.UnitEntry](t, resp)
	assert.Equal(t, 5, one.Unit.Models)
	require.Len(t, one.Unit.Weapons.Melee, 1)
	assert.Equal(t, "Genestealer Claws and Talons", one.Unit.Weapons.Melee[0].Name)

	resp = do(t, http.MethodGet, ts.URL+"/api/units/orks", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	e := decode[models.ErrorResponse](t, resp)
	assert.Equal(t, http.StatusNotFound, e.Status)
	assert.Contains(t, e.Message, "orks")
}

func TestPostBattle(t *testing.T) {
	ts := newTestServer(t)
	req := models.BattleRequest{Attacker: "swarmlord", Defender: "prosecutors", Distance: 24, Seed: seed(7)}

	resp := do(t, http.MethodPost, ts.URL+"/api/battles", req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := decode[models.BattleResponse](t, resp)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, uint64(7), first.Seed)
	assert.Equal(t, "swarmlord", first.Attacker)
	assert.Equal(t, "Swarmlord", first.AttackerName)
	assert.Equal(t, "Prosecutors", first.DefenderName)
	assert.GreaterOrEqual(t, first.Rounds, 1)
	require.NotEmpty(t, first.Events)
	assert.Equal(t, combat.PhaseRoundStart, first.Events[0].Phase)
	assert.Equal(t, combat.PhaseEnd, first.Events[len(first.Events)-1].Phase)

	second := decode[models.BattleResponse](t, do(t, http.MethodPost, ts.URL+"/api/battles", req))
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.Winner, second.Winner)
	assert.Equal(t, first.Rounds, second.Rounds)
	assert.Equal(t, first.Final, second.Final)

	// Without a seed the server picks one.
	req.Seed = nil
	third := decode[models.BattleResponse](t, do(t, http.MethodPost, ts.URL+"/api/battles", req))
	assert.Equal(t, uint64(42), third.Seed)
}

func TestPostBattle_Errors(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		name string
		body any
		want int
	}{
		{"unknown attacker", models.BattleRequest{Attacker: "orks", Defender: "prosecutors"}, http.StatusNotFound},
		{"unknown defender", models.BattleRequest{Attacker: "swarmlord", Defender: "orks"}, http.StatusNotFound},
		{"negative distance", models.BattleRequest{Attacker: "swarmlord", Defender: "prosecutors", Distance: -1}, http.StatusBadRequest},
		{"malformed", `{"attacker":`, http.StatusBadRequest},
		{"unknown field", `{"attacker":"swarmlord","defender":"prosecutors","weather":"rain"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodPost, ts.URL+"/api/battles", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestPostBatch(t *testing.T) {
	ts := newTestServer(t)
	req := models.BatchRequest{
		BattleRequest: models.BattleRequest{Attacker: "trajann-valoris", Defender: "genestealers", Distance: 12, Seed: seed(3)},
		Runs:          60,
	}
	resp := do(t, http.MethodPost, ts.URL+"/api/batches", req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[models.BatchResponse](t, resp)
	assert.NotEmpty(t, out.ID)
	assert.Equal(t, 60, out.Runs)
	assert.Equal(t, "Trajann Valoris", out.AttackerName)
	assert.Equal(t, "Genestealers", out.DefenderName)
	assert.Equal(t, 60, out.Summary.Battles)
	assert.Equal(t, 60, out.Summary.AttackerWins+out.Summary.DefenderWins+out.Summary.Draws)

	again := decode[models.BatchResponse](t, do(t, http.MethodPost, ts.URL+"/api/batches", req))
	assert.Equal(t, out.Summary, again.Summary)

	req.Runs = 0
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, ts.URL+"/api/batches", req).StatusCode)
	req.Runs = 100_001
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, ts.URL+"/api/batches", req).StatusCode)
}

func TestStats(t *testing.T) {
	ts := newTestServer(t)
	req := models.BattleRequest{Attacker: "prosecutors", Defender: "genestealers", Distance: 18, Seed: seed(1)}
	do(t, http.MethodPost, ts.URL+"/api/battles", req)
	do(t, http.MethodPost, ts.URL+"/api/battles", req)

	s := decode[map[string]any](t, do(t, http.MethodGet, ts.URL+"/api/stats", nil))
	assert.EqualValues(t, 2, s["battles"])

	assert.Equal(t, http.StatusNoContent, do(t, http.MethodDelete, ts.URL+"/api/stats", nil).StatusCode)
	s = decode[map[string]any](t, do(t, http.MethodGet, ts.URL+"/api/stats", nil))
	assert.EqualValues(t, 0, s["battles"])
}

func TestRouting(t *testing.T) {
	ts := newTestServer(t)
	for _, tt := range []struct{ method, path string }{
		{http.MethodGet, "/api/battles"},
		{http.MethodPut, "/api/units"},
		{http.MethodPost, "/api/stats"},
	} {
		resp := do(t, tt.method, ts.URL+tt.path, nil)
		require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, "%s %s", tt.method, tt.path)
		var body models.ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, http.StatusMethodNotAllowed, body.Status)
	}
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, ts.URL+"/api/nope", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, ts.URL+"/nope", nil).StatusCode)

	resp := do(t, http.MethodOptions, ts.URL+"/api/battles", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestWebSocketBattle(t *testing.T) {
	ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/battle"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	req := models.BattleRequest{Attacker: "allarus-custodians", Defender: "genestealers", Distance: 20, Seed: seed(11)}
	require.NoError(t, conn.WriteJSON(req))

	type msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	var events []combat.Event
	var result models.BattleResponse
	for {
		var m msg
		require.NoError(t, conn.ReadJSON(&m))
		if m.Type == models.MsgEvent {
			var ev combat.Event
			require.NoError(t, json.Unmarshal(m.Data, &ev))
			events = append(events, ev)
			continue
		}
		require.Equal(t, models.MsgResult, m.Type)
		require.NoError(t, json.Unmarshal(m.Data, &result))
		break
	}
	require.NotEmpty(t, events)
	assert.Equal(t, combat.PhaseRoundStart, events[0].Phase)
	assert.Equal(t, combat.PhaseEnd, events[len(events)-1].Phase)
	assert.Empty(t, result.Events, "events are streamed, not repeated in the result")

	rest := decode[models.BattleResponse](t, do(t, http.MethodPost, ts.URL+"/api/battles", req))
	assert.Equal(t, rest.Winner, result.Winner)
	assert.Equal(t, rest.Final, result.Final)
	assert.Len(t, rest.Events, len(events))

	// Errors come back on the same connection.
	require.NoError(t, conn.WriteJSON(models.BattleRequest{Attacker: "orks", Defender: "genestealers"}))
	var m msg
	require.NoError(t, conn.ReadJSON(&m))
	assert.Equal(t, models.MsgError, m.Type)
	var e models.ErrorResponse
	require.NoError(t, json.Unmarshal(m.Data, &e))
	assert.Equal(t, http.StatusNotFound, e.Status)
}

func TestWebSocketBattle_MalformedRequest(t *testing.T) {
	ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/battle"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	readError := func() models.ErrorResponse {
		var m models.WsMsg
		var e models.ErrorResponse
		m.Data = &e
		require.NoError(t, conn.ReadJSON(&m))
		require.Equal(t, models.MsgError, m.Type)
		return e
	}

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"attacker":`)))
	e := readError()
	assert.Equal(t, http.StatusBadRequest, e.Status)
	assert.Contains(t, e.Message, "invalid JSON")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"colour":"red"}`)))
	assert.Equal(t, http.StatusBadRequest, readError().Status)

	// The connection stays usable.
	require.NoError(t, conn.WriteJSON(models.BattleRequest{Attacker: "swarmlord", Defender: "genestealers", Distance: 6, Seed: seed(3)}))
	for {
		var m models.WsMsg
		require.NoError(t, conn.ReadJSON(&m))
		if m.Type != models.MsgEvent {
			assert.Equal(t, models.MsgResult, m.Type)
			break
		}
	}
}
