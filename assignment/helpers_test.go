package assignment

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sahilp2023/agrocyle-sub001/config"
	"github.com/sahilp2023/agrocyle-sub001/store"
)

// --- Mock emitter ---

type mockEmitter struct {
	mu            sync.Mutex
	created       []int64
	transitions   []string
	cancelled     []string
	staleRemoved  []int64
	credited      []string
	warnings      []string
	statusChanges []string
	requests      []int64
}

func (m *mockEmitter) EmitRequestCreated(requestID, _ int64, _ string, _ float64, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, requestID)
}
func (m *mockEmitter) EmitRequestStatusChanged(_ int64, oldStatus, newStatus, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusChanges = append(m.statusChanges, oldStatus+"->"+newStatus)
}
func (m *mockEmitter) EmitAssignmentCreated(assignmentID, _, _, _ int64, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, assignmentID)
}
func (m *mockEmitter) EmitAssignmentTransitioned(_, _ int64, oldStatus, newStatus, _, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, oldStatus+"->"+newStatus)
}
func (m *mockEmitter) EmitAssignmentCancelled(_, _ int64, reason, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, reason)
}
func (m *mockEmitter) EmitStaleAssignmentRemoved(assignmentID, _ int64, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staleRemoved = append(m.staleRemoved, assignmentID)
}
func (m *mockEmitter) EmitJobCredited(_, _, _ int64, _, _ float64, source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credited = append(m.credited, source)
}
func (m *mockEmitter) EmitConsistencyWarning(kind string, _, _, _ int64, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnings = append(m.warnings, kind)
}

// --- Test helpers ---

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var testPricing = config.PricingConfig{
	CropRates:    map[string]float64{"paddy": 1500},
	DefaultRate:  1000,
	OperatorRate: 350,
}

type fixture struct {
	ctx      context.Context
	db       *store.DB
	orch     *Orchestrator
	em       *mockEmitter
	hub      *store.Hub
	otherHub *store.Hub
	manager  Principal
	system   Principal
	phones   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testDB(t)
	em := &mockEmitter{}
	f := &fixture{
		ctx:    context.Background(),
		db:     db,
		orch:   NewOrchestrator(db, em, testPricing, "residuehub.delivered", "core"),
		em:     em,
		system: Principal{Role: RoleSystem},
	}
	f.hub = &store.Hub{Code: "KNL", Name: "Karnal", District: "Karnal"}
	require.NoError(t, db.CreateHub(f.ctx, f.hub))
	f.otherHub = &store.Hub{Code: "PTA", Name: "Patiala", District: "Patiala"}
	require.NoError(t, db.CreateHub(f.ctx, f.otherHub))
	f.manager = Principal{Role: RoleHubManager, ID: 1, HubID: f.hub.ID}
	return f
}

// operator creates a verified, active operator directly in the store.
func (f *fixture) operator(t *testing.T, hubID int64, capability string) *store.Operator {
	t.Helper()
	f.phones++
	op := &store.Operator{HubID: hubID, Name: "op", Phone: fmt.Sprintf("98%08d", f.phones), Capability: capability, Verified: true, Active: true}
	require.NoError(t, f.db.CreateOperator(f.ctx, op))
	return op
}

// request creates a confirmed paddy request for 5 tonnes at f.hub.
func (f *fixture) request(t *testing.T) *store.Request {
	t.Helper()
	req, created, err := f.orch.CreateRequest(f.ctx, Principal{Role: RoleRequester, ID: 501}, NewRequest{
		HubID:             f.hub.ID,
		CropType:          "paddy",
		EstimatedQuantity: 5,
		HarvestEndDate:    "2026-10-20",
	})
	require.NoError(t, err)
	require.True(t, created)
	req, err = f.orch.ConfirmRequest(f.ctx, f.manager, req.ID)
	require.NoError(t, err)
	return req
}

func (f *fixture) assign(t *testing.T, req *store.Request, op *store.Operator) *store.Assignment {
	t.Helper()
	a, err := f.orch.CreateAssignment(f.ctx, f.manager, CreateInput{RequestID: req.ID, PrimaryOperatorID: op.ID})
	require.NoError(t, err)
	return a
}

func asOperator(op *store.Operator) Principal {
	return Principal{Role: RoleOperator, ID: op.ID}
}

// walk drives the assignment through each state in order as p.
func (f *fixture) walk(t *testing.T, p Principal, id int64, states ...string) {
	t.Helper()
	for _, s := range states {
		_, err := f.orch.Transition(f.ctx, p, id, s, nil)
		require.NoErrorf(t, err, "transition to %s", s)
	}
}

func (f *fixture) reloadRequest(t *testing.T, id int64) *store.Request {
	t.Helper()
	r, err := f.db.GetRequest(f.ctx, id)
	require.NoError(t, err)
	return r
}

func (f *fixture) reloadOperator(t *testing.T, id int64) *store.Operator {
	t.Helper()
	op, err := f.db.GetOperator(f.ctx, id)
	require.NoError(t, err)
	return op
}

func (f *fixture) outboxCount(t *testing.T) int {
	t.Helper()
	msgs, err := f.db.ListPendingOutbox(f.ctx, 100)
	require.NoError(t, err)
	return len(msgs)
}
