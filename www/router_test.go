package www

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahilp2023/agrocyle-sub001/assignment"
	"github.com/sahilp2023/agrocyle-sub001/config"
	"github.com/sahilp2023/agrocyle-sub001/engine"
	"github.com/sahilp2023/agrocyle-sub001/presence"
	"github.com/sahilp2023/agrocyle-sub001/store"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
	db      *store.DB
	cookies []*http.Cookie
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Defaults()
	cfg.Pricing = config.PricingConfig{CropRates: map[string]float64{"paddy": 1500}, DefaultRate: 1000, OperatorRate: 350}
	eng := engine.New(engine.Config{
		AppConfig: cfg,
		DB:        db,
		Presence:  presence.NewManager(db, nil),
		LogFunc:   t.Logf,
	})
	handler, stop := NewRouter(eng)
	t.Cleanup(stop)
	return &testServer{t: t, handler: handler, db: db}
}

type principal struct {
	role string
	id   int64
}

func (s *testServer) do(method, path string, body any, as *principal) *httptest.ResponseRecorder {
	s.t.Helper()
	var req *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		req = httptest.NewRequest(method, path, strings.NewReader(string(data)))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if as != nil {
		req.Header.Set(headerRole, as.role)
		req.Header.Set(headerID, strconv.FormatInt(as.id, 10))
	} else {
		for _, c := range s.cookies {
			req.AddCookie(c)
		}
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(username, password string) *httptest.ResponseRecorder {
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	s.cookies = rec.Result().Cookies()
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// seed logs in as the default admin and creates a hub and a verified operator.
func (s *testServer) seed() (hub store.Hub, op store.Operator) {
	t := s.t
	t.Helper()
	require.Equal(t, http.StatusOK, s.login("admin", "admin").Code)

	rec := s.do(http.MethodPost, "/api/hubs", map[string]string{"code": "knl", "name": "Karnal", "district": "Karnal"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	hub = decode[store.Hub](t, rec)
	assert.Equal(t, "KNL", hub.Code)

	rec = s.do(http.MethodPost, "/api/operators", map[string]any{"hub_id": hub.ID, "name": "Harjit", "phone": "9814000001", "capability": "both"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	op = decode[store.Operator](t, rec)
	assert.False(t, op.Verified)

	rec = s.do(http.MethodPost, "/api/operators/"+strconv.FormatInt(op.ID, 10)+"/verify", map[string]bool{"value": true}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	op = decode[store.Operator](t, rec)
	assert.True(t, op.Verified)
	return hub, op
}

func (s *testServer) confirmedRequest(hubID int64) store.Request {
	t := s.t
	t.Helper()
	farmer := &principal{role: "requester", id: 501}
	rec := s.do(http.MethodPost, "/api/requests", map[string]any{
		"hub_id":             hubID,
		"crop_type":          "paddy",
		"estimated_quantity": 5,
		"harvest_end_date":   "2026-10-25",
	}, farmer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	req := decode[store.Request](t, rec)

	rec = s.do(http.MethodPost, "/api/requests/"+strconv.FormatInt(req.ID, 10)+"/confirm", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[store.Request](t, rec)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, s.login("admin", "wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/me", nil, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/events", nil, nil).Code)
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/api/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["messaging"])
}

func TestNoPrincipalIsUnauthenticated(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/api/requests", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// hub manager cannot be claimed through headers
	rec = s.do(http.MethodGet, "/api/requests", nil, &principal{role: "hub_manager", id: 1})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestCreateIsIdempotentOnUUID(t *testing.T) {
	s := newTestServer(t)
	hub, _ := s.seed()
	farmer := &principal{role: "requester", id: 501}
	body := map[string]any{
		"uuid":               "6f1c2a4e-8d0b-4c57-9a43-2b8f7e1d9c30",
		"hub_id":             hub.ID,
		"crop_type":          "paddy",
		"estimated_quantity": 2,
		"harvest_end_date":   "2026-10-25",
	}
	first := s.do(http.MethodPost, "/api/requests", body, farmer)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	req := decode[store.Request](t, first)
	assert.InDelta(t, 3000.0, req.EstimatedPrice, 1e-9)

	again := s.do(http.MethodPost, "/api/requests", body, farmer)
	require.Equal(t, http.StatusOK, again.Code)
	assert.Equal(t, req.ID, decode[store.Request](t, again).ID)

	other := s.do(http.MethodPost, "/api/requests", body, &principal{role: "requester", id: 777})
	assert.Equal(t, http.StatusConflict, other.Code)

	// another farmer cannot read it
	rec := s.do(http.MethodGet, "/api/requests/"+strconv.FormatInt(req.ID, 10), nil, &principal{role: "requester", id: 777})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(http.MethodGet, "/api/requests", nil, farmer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]store.Request](t, rec), 1)
}

func TestAssignmentFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	hub, op := s.seed()
	req := s.confirmedRequest(hub.ID)
	operator := &principal{role: "operator", id: op.ID}

	rec := s.do(http.MethodPost, "/api/assignments", map[string]any{"request_id": req.ID, "primary_operator_id": op.ID}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	a := decode[store.Assignment](t, rec)
	path := "/api/assignments/" + strconv.FormatInt(a.ID, 10)

	// a second admission for the same request conflicts
	rec = s.do(http.MethodPost, "/api/assignments", map[string]any{"request_id": req.ID, "primary_operator_id": op.ID}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decode[map[string]any](t, rec)["code"])

	// skipping ahead is rejected with the legal next states
	rec = s.do(http.MethodPost, path+"/transition", map[string]any{"status": "delivered"}, operator)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "pending", body["current"])
	assert.ElementsMatch(t, []any{"accepted", "rejected"}, body["allowed"])

	// a requester cannot drive the job
	rec = s.do(http.MethodPost, path+"/transition", map[string]any{"status": "accepted"}, &principal{role: "requester", id: 501})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	for _, st := range []string{"accepted", "work_started"} {
		rec = s.do(http.MethodPost, path+"/transition", map[string]any{"status": st}, operator)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	rec = s.do(http.MethodPost, path+"/transition", map[string]any{
		"status": "work_complete",
		"fields": map[string]any{"bale_count": 40, "load_weight": "4.6"},
	}, operator)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// resending an intermediate stage names the next legal step
	rec = s.do(http.MethodPost, path+"/transition", map[string]any{"status": "work_complete"}, operator)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.ElementsMatch(t, []any{"delivered"}, decode[map[string]any](t, rec)["allowed"])

	// hub force-completes with the weighbridge figure
	rec = s.do(http.MethodPatch, path, map[string]any{"actual_quantity": 4.4}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[map[string]any](t, rec)
	assert.Equal(t, true, res["credited"])

	// the operator's late delivered report records fields only
	rec = s.do(http.MethodPost, path+"/transition", map[string]any{"status": "delivered"}, operator)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEqual(t, true, decode[map[string]any](t, rec)["credited"])

	rec = s.do(http.MethodGet, "/api/requests/"+strconv.FormatInt(req.ID, 10), nil, operator)
	require.Equal(t, http.StatusOK, rec.Code)
	done := decode[store.Request](t, rec)
	assert.Equal(t, store.RequestCompleted, done.Status)
	require.NotNil(t, done.ActualQuantity)
	assert.InDelta(t, 4.4, *done.ActualQuantity, 1e-9)

	rec = s.do(http.MethodGet, path+"/history", nil, operator)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[[]map[string]any](t, rec))

	rec = s.do(http.MethodGet, "/api/operators/"+strconv.FormatInt(op.ID, 10), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	credited := decode[store.Operator](t, rec)
	assert.Equal(t, int64(1), credited.TotalJobs)
	assert.InDelta(t, 1750.0, credited.TotalEarnings, 1e-9)
}

func TestUnknownIDsAndBadInput(t *testing.T) {
	s := newTestServer(t)
	s.seed()

	rec := s.do(http.MethodGet, "/api/assignments/999", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[map[string]any](t, rec)["code"])

	rec = s.do(http.MethodGet, "/api/requests/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/assignments/1/transition", map[string]any{}, &principal{role: "operator", id: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelRequestWithLiveAssignmentConflicts(t *testing.T) {
	s := newTestServer(t)
	hub, op := s.seed()
	req := s.confirmedRequest(hub.ID)
	rec := s.do(http.MethodPost, "/api/assignments", map[string]any{"request_id": req.ID, "primary_operator_id": op.ID}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	path := "/api/requests/" + strconv.FormatInt(req.ID, 10) + "/cancel"
	rec = s.do(http.MethodPost, path, map[string]string{"reason": "rain"}, &principal{role: "requester", id: 501})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestOperatorPresence(t *testing.T) {
	s := newTestServer(t)
	_, op := s.seed()
	self := &principal{role: "operator", id: op.ID}
	path := "/api/operators/" + strconv.FormatInt(op.ID, 10) + "/presence"

	rec := s.do(http.MethodPost, path, map[string]any{"lat": 29.68, "lng": 76.99, "online": true}, self)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decode[presence.OperatorState](t, rec)
	assert.True(t, st.Online)

	rec = s.do(http.MethodPost, path, map[string]any{"lat": 29.68, "lng": 76.99, "online": true}, &principal{role: "operator", id: op.ID + 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, path, map[string]any{"lat": 129.0, "lng": 76.99, "online": true}, self)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/operators/nearby?hub_id="+strconv.FormatInt(op.HubID, 10)+"&lat=29.7&lng=77.0&radius_km=10", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	near := decode[[]presence.NearbyOperator](t, rec)
	require.Len(t, near, 1)
	assert.Equal(t, op.ID, near[0].OperatorID)
}

func TestEventHubBroadcastsToClients(t *testing.T) {
	hub := NewEventHub()
	hub.Start()
	defer hub.Stop()

	ch := hub.AddClient()
	defer hub.RemoveClient(ch)
	hub.broadcastJSON("assignment-update", map[string]any{"assignment_id": 7, "reason": `said "no"`})

	evt := <-ch
	assert.Equal(t, "assignment-update", evt.Event)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(evt.Data), &body))
	assert.Equal(t, `said "no"`, body["reason"])
}

func TestEventHubReplaysMissedFrames(t *testing.T) {
	hub := NewEventHub()
	hub.Start()
	defer hub.Stop()

	live := hub.AddClient()
	defer hub.RemoveClient(live)
	for _, name := range []string{"a", "b", "c"} {
		hub.Broadcast("request-update", name)
	}
	var ids []uint64
	for i := 0; i < 3; i++ {
		ids = append(ids, (<-live).ID)
	}
	assert.Equal(t, []uint64{1, 2, 3}, ids)

	late := hub.AddClientSince(1)
	defer hub.RemoveClient(late)
	assert.Equal(t, SSEEvent{ID: 2, Event: "request-update", Data: "b"}, <-late)
	assert.Equal(t, SSEEvent{ID: 3, Event: "request-update", Data: "c"}, <-late)
	assert.Len(t, late, 0)

	var buf strings.Builder
	require.NoError(t, writeFrame(&buf, SSEEvent{ID: 3, Event: "request-update", Data: "c"}))
	assert.Equal(t, "id: 3\nevent: request-update\ndata: c\n\n", buf.String())
	buf.Reset()
	require.NoError(t, writeFrame(&buf, SSEEvent{Event: "keepalive", Data: "ping"}))
	assert.Equal(t, "event: keepalive\ndata: ping\n\n", buf.String())
}

func TestHeaderPrincipal(t *testing.T) {
	cases := []struct {
		role, id string
		ok       bool
		want     assignment.Role
	}{
		{"operator", "7", true, assignment.RoleOperator},
		{" requester ", "501", true, assignment.RoleRequester},
		{"hub_manager", "1", false, ""},
		{"system", "1", false, ""},
		{"operator", "0", false, ""},
		{"operator", "x", false, ""},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/api/requests", nil)
		r.Header.Set(headerRole, tc.role)
		r.Header.Set(headerID, tc.id)
		p, ok := headerPrincipal(r)
		assert.Equalf(t, tc.ok, ok, "role=%q id=%q", tc.role, tc.id)
		if tc.ok {
			assert.Equal(t, tc.want, p.Role)
		}
	}
}
