package store

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sahilp2023/agrocyle-sub001/config"
)

// testDB creates a temporary SQLite database for testing.
func testDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	db, err := Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: dbPath},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		os.Remove(dbPath)
	})
	return db
}

func seedHub(t *testing.T, db *DB, code string) *Hub {
	t.Helper()
	h := &Hub{Code: code, Name: code + " hub", District: "Karnal"}
	if err := db.CreateHub(context.Background(), h); err != nil {
		t.Fatalf("create hub: %v", err)
	}
	return h
}

func seedOperator(t *testing.T, db *DB, hubID int64, phone, capability string) *Operator {
	t.Helper()
	o := &Operator{HubID: hubID, Name: "op " + phone, Phone: phone, Capability: capability, Verified: true, Active: true}
	if err := db.CreateOperator(context.Background(), o); err != nil {
		t.Fatalf("create operator: %v", err)
	}
	return o
}

func seedRequest(t *testing.T, db *DB, hubID int64, uuid string) *Request {
	t.Helper()
	r := &Request{UUID: uuid, RequesterID: 7, HubID: hubID, CropType: "paddy", EstimatedQuantity: 5, RatePerTonne: 1500, EstimatedPrice: 7500, HarvestEndDate: "2026-10-20"}
	if err := db.CreateRequest(context.Background(), r); err != nil {
		t.Fatalf("create request: %v", err)
	}
	return r
}

// --- Hub / operator tests ---

func TestHubCRUD(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	h := seedHub(t, db, "KNL")
	if h.ID == 0 {
		t.Fatal("ID should be assigned")
	}
	got, err := db.GetHubByCode(ctx, "KNL")
	if err != nil {
		t.Fatalf("get by code: %v", err)
	}
	if got.ID != h.ID {
		t.Errorf("ID = %d, want %d", got.ID, h.ID)
	}
	seedHub(t, db, "AMB")
	hubs, err := db.ListHubs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(hubs) != 2 {
		t.Errorf("len = %d, want 2", len(hubs))
	}
	if hubs[0].Code != "AMB" {
		t.Errorf("first hub = %q, want AMB (ordered by code)", hubs[0].Code)
	}
}

func TestOperatorLookupScopedByHub(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	h1 := seedHub(t, db, "H1")
	h2 := seedHub(t, db, "H2")
	op := seedOperator(t, db, h1.ID, "9000000001", CapabilityBaler)

	if _, err := db.GetOperatorInHub(ctx, h1.ID, op.ID); err != nil {
		t.Fatalf("scoped lookup in own hub: %v", err)
	}
	_, err := db.GetOperatorInHub(ctx, h2.ID, op.ID)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("scoped lookup in other hub err = %v, want sql.ErrNoRows", err)
	}
	got, err := db.GetOperator(ctx, op.ID)
	if err != nil {
		t.Fatalf("unscoped lookup: %v", err)
	}
	if !got.Verified || !got.Active {
		t.Errorf("Verified=%v Active=%v, want both true", got.Verified, got.Active)
	}
	if got.Online {
		t.Error("new operator should be offline")
	}
}

func TestOperatorVerifyAndDeactivate(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	h := seedHub(t, db, "H1")
	op := seedOperator(t, db, h.ID, "9000000001", CapabilityTruck)

	if err := db.SetOperatorVerified(ctx, op.ID, false); err != nil {
		t.Fatalf("unverify: %v", err)
	}
	if err := db.SetOperatorActive(ctx, op.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	got, _ := db.GetOperator(ctx, op.ID)
	if got.Verified || got.Active {
		t.Errorf("Verified=%v Active=%v, want both false", got.Verified, got.Active)
	}
	if err := db.SetOperatorActive(ctx, 9999, true); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("missing operator err = %v, want sql.ErrNoRows", err)
	}
}

func TestOperatorPresenceOverwrite(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	h := seedHub(t, db, "H1")
	op := seedOperator(t, db, h.ID, "9000000001", CapabilityBaler)

	if err := db.UpdateOperatorPresence(ctx, op.ID, 29.68, 76.99, true); err != nil {
		t.Fatalf("presence: %v", err)
	}
	got, _ := db.GetOperator(ctx, op.ID)
	if !got.Online {
		t.Error("Online should be true")
	}
	if got.Lat == nil || *got.Lat != 29.68 {
		t.Errorf("Lat = %v, want 29.68", got.Lat)
	}
	if got.LastSeenAt == nil {
		t.Error("LastSeenAt should be set")
	}

	if err := db.UpdateOperatorPresence(ctx, 4242, 0, 0, true); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("unknown operator err = %v, want sql.ErrNoRows", err)
	}
}

func TestMarkStaleOperatorsOffline(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	h := seedHub(t, db, "H1")
	fresh := seedOperator(t, db, h.ID, "9000000001", CapabilityBaler)
	stale := seedOperator(t, db, h.ID, "9000000002", CapabilityBaler)

	db.UpdateOperatorPresence(ctx, fresh.ID, 1, 1, true)
	db.UpdateOperatorPresence(ctx, stale.ID, 1, 1, true)
	old := time.Now().Add(-time.Hour).Format(sqliteTimeLayout)
	if _, err := db.Exec(`UPDATE operators SET last_seen_at=? WHERE id=?`, old, stale.ID); err != nil {
		t.Fatal(err)
	}

	ids, err := db.MarkStaleOperatorsOffline(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("mark stale: %v", err)
	}
	if len(ids) != 1 || ids[0] != stale.ID {
		t.Errorf("stale ids = %v, want [%d]", ids, stale.ID)
	}
	got, _ := db.GetOperator(ctx, fresh.ID)
	if !got.Online {
		t.Error("fresh operator should stay online")
	}
}

func TestIncrementOperatorTotals(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	h := seedHub(t, db, "H1")
	op := seedOperator(t, db, h.ID, "9000000001", CapabilityBoth)

	db.IncrementOperatorTotals(ctx, op.ID, 1, 350.5)
	db.IncrementOperatorTotals(ctx, op.ID, 1, 100)
	got, _ := db.GetOperator(ctx, op.ID)
	if got.TotalJobs != 2 {
		t.Errorf("TotalJobs = %d, want 2", got.TotalJobs)
	}
	if got.TotalEarnings != 450.5 {
		t.Errorf("TotalEarnings = %v, want 450.5", got.TotalEarnings)
	}
}

// --- Request tests ---

func TestRequestLifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	h := seedHub(t, db, "H1")
	r := seedRequest(t, db, h.ID, "req-1")

	got, err := db.GetRequestByUUID(ctx, "req-1")
	if err != nil {
		t.Fatalf("get by uuid: %v", err)
	}
	if got.Status != RequestPending {
		t.Errorf("Status = %q, want %q", got.Status, RequestPending)
	}
	if got.ActualQuantity != nil || got.FinalPrice != nil {
		t.Error("actual quantity and final price should be unset")
	}

	if err := db.SetRequestScheduledDate(ctx, r.ID, "2026-10-25"); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := db.CompleteRequest(ctx, r.ID, 4.8); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, _ = db.GetRequest(ctx, r.ID)
	if got.Status != RequestCompleted {
		t.Errorf("Status = %q, want %q", got.Status, RequestCompleted)
	}
	if got.ActualQuantity == nil || *got.ActualQuantity != 4.8 {
		t.Errorf("ActualQuantity = %v, want 4.8", got.ActualQuantity)
	}
	if got.FinalPrice == nil || math.Abs(*got.FinalPrice-7200) > 1e-6 {
		t.Errorf("FinalPrice = %v, want 7200", got.FinalPrice)
	}
	if got.ScheduledDate != "2026-10-25" {
		t.Errorf("ScheduledDate = %q, want 2026-10-25", got.ScheduledDate)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt should be set")
	}
}

func TestListRequestsFilters(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	h1 := seedHub(t, db, "H1")
	h2 := seedHub(t, db, "H2")
	r1 := seedRequest(t, db, h1.ID, "a")
	seedRequest(t, db, h1.ID, "b")
	seedRequest(t, db, h2.ID, "c")
	db.UpdateRequestStatus(ctx, r1.ID, RequestConfirmed)

	all, _ := db.ListRequests(ctx, 0, "", 50)
	if len(all) != 3 {
		t.Errorf("all = %d, want 3", len(all))
	}
	hub1, _ := db.ListRequests(ctx, h1.ID, "", 50)
	if len(hub1) != 2 {
		t.Errorf("hub1 = %d, want 2", len(hub1))
	}
	confirmed, _ := db.ListRequests(ctx, 0, RequestConfirmed, 50)
	if len(confirmed) != 1 || confirmed[0].ID != r1.ID {
		t.Errorf("confirmed = %v, want only request %d", confirmed, r1.ID)
	}
}

// --- Assignment tests ---

func TestAssignmentSaveAndHistory(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	h := seedHub(t, db, "H1")
	op := seedOperator(t, db, h.ID, "9000000001", CapabilityBaler)
	truck := seedOperator(t, db, h.ID, "9000000002", CapabilityTruck)
	r := seedRequest(t, db, h.ID, "req-1")

	a := &Assignment{RequestID: r.ID, HubID: h.ID, PrimaryOperatorID: op.ID, Status: AssignmentAssigned, OperatorStatus: "pending", EstimatedEarning: 1750}
	if err := db.InsertAssignment(ctx, a); err != nil {
		t.Fatalf("insert: %v", err)
	}

	now := time.Now()
	bales := int64(40)
	weight := 4.8
	a.SecondaryOperatorID = &truck.ID
	a.Status = AssignmentInProgress
	a.OperatorStatus = "accepted"
	a.AcceptedAt = &now
	a.Photos = []string{"s3://p/1.jpg"}
	a.BaleCount = &bales
	a.LoadWeight = &weight
	if err := db.SaveAssignment(ctx, a); err != nil {
		t.Fatalf("save: %v", err)
	}
	db.AppendAssignmentHistory(ctx, a.ID, a.Status, a.OperatorStatus, "operator:1", "pending -> accepted")

	got, err := db.GetAssignment(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.OperatorStatus != "accepted" {
		t.Errorf("OperatorStatus = %q, want accepted", got.OperatorStatus)
	}
	if got.SecondaryOperatorID == nil || *got.SecondaryOperatorID != truck.ID {
		t.Errorf("SecondaryOperatorID = %v, want %d", got.SecondaryOperatorID, truck.ID)
	}
	if len(got.Photos) != 1 || got.Photos[0] != "s3://p/1.jpg" {
		t.Errorf("Photos = %v", got.Photos)
	}
	if got.BaleCount == nil || *got.BaleCount != 40 {
		t.Errorf("BaleCount = %v, want 40", got.BaleCount)
	}
	if got.AcceptedAt == nil {
		t.Error("AcceptedAt should be set")
	}
	if got.Moisture != nil {
		t.Errorf("Moisture = %v, want nil", got.Moisture)
	}

	hist, _ := db.ListAssignmentHistory(ctx, a.ID)
	if len(hist) != 1 || hist[0].Detail != "pending -> accepted" {
		t.Errorf("history = %+v", hist)
	}
}

func TestOneActiveAssignmentPerRequestIndex(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	h := seedHub(t, db, "H1")
	op := seedOperator(t, db, h.ID, "9000000001", CapabilityBaler)
	r := seedRequest(t, db, h.ID, "req-1")

	first := &Assignment{RequestID: r.ID, HubID: h.ID, PrimaryOperatorID: op.ID, Status: AssignmentAssigned, OperatorStatus: "pending"}
	if err := db.InsertAssignment(ctx, first); err != nil {
		t.Fatalf("insert first: %v", err)
	}
	second := &Assignment{RequestID: r.ID, HubID: h.ID, PrimaryOperatorID: op.ID, Status: AssignmentAssigned, OperatorStatus: "pending"}
	err := db.InsertAssignment(ctx, second)
	if err == nil {
		t.Fatal("expected unique violation for second active assignment")
	}
	if !IsUniqueViolation(err) {
		t.Errorf("IsUniqueViolation(%v) = false, want true", err)
	}

	// Once the first is rejected the request is free again.
	first.Status = AssignmentCancelled
	first.OperatorStatus = "rejected"
	if err := db.SaveAssignment(ctx, first); err != nil {
		t.Fatalf("reject first: %v", err)
	}
	if err := db.InsertAssignment(ctx, second); err != nil {
		t.Fatalf("insert after rejection: %v", err)
	}
	list, _ := db.ListAssignmentsByRequest(ctx, r.ID)
	if len(list) != 2 {
		t.Errorf("assignments for request = %d, want 2", len(list))
	}
	if !list[0].IsTerminalFailure() || list[1].IsTerminalFailure() {
		t.Error("first should be terminal-failure, second active")
	}
}

func TestClaimJobCreditOnce(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	c := &JobCredit{AssignmentID: 11, RequestID: 3, OperatorID: 5, Earning: 100, Quantity: 4, Source: CreditSourceOperator}
	won, err := db.ClaimJobCredit(ctx, c)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !won {
		t.Fatal("first claim should win")
	}
	won, err = db.ClaimJobCredit(ctx, &JobCredit{AssignmentID: 11, RequestID: 3, OperatorID: 5, Source: CreditSourceHub})
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if won {
		t.Error("second claim for same assignment should lose")
	}
	got, err := db.GetJobCredit(ctx, 11)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Source != CreditSourceOperator {
		t.Errorf("Source = %q, want %q", got.Source, CreditSourceOperator)
	}
	n, _ := db.CountJobCredits(ctx, 5)
	if n != 1 {
		t.Errorf("credits = %d, want 1", n)
	}
}

// --- Transaction tests ---

func TestWithTxRollsBackOnError(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	h := seedHub(t, db, "H1")

	boom := errors.New("boom")
	err := db.WithTx(ctx, func(tx *Tx) error {
		if err := tx.AppendAudit(ctx, "hub", h.ID, "touched", "", "", "test"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	entries, _ := db.ListEntityAudit(ctx, "hub", h.ID)
	if len(entries) != 0 {
		t.Errorf("audit entries = %d, want 0 after rollback", len(entries))
	}

	err = db.WithTx(ctx, func(tx *Tx) error {
		return tx.AppendAudit(ctx, "hub", h.ID, "touched", "", "", "test")
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	entries, _ = db.ListEntityAudit(ctx, "hub", h.ID)
	if len(entries) != 1 {
		t.Errorf("audit entries = %d, want 1", len(entries))
	}
}

func TestListAuditLogFilter(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for _, e := range []struct {
		typ    string
		id     int64
		action string
	}{
		{AuditRequest, 1, "created"},
		{AuditRequest, 1, "status"},
		{AuditAssignment, 4, "created"},
		{AuditAssignment, 4, "credited"},
		{AuditOperator, 9, "operator_hub_mismatch"},
	} {
		if err := db.AppendAudit(ctx, e.typ, e.id, e.action, "", "", ""); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	all, err := db.ListAuditLog(ctx, AuditFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 5 || all[0].EntityType != AuditOperator {
		t.Fatalf("all = %d entries, first %+v; want 5 newest first", len(all), all[0])
	}
	if all[0].Actor != "system" {
		t.Errorf("blank actor = %q, want system", all[0].Actor)
	}

	created, _ := db.ListAuditLog(ctx, AuditFilter{Action: "created"})
	if len(created) != 2 {
		t.Errorf("created = %d, want 2", len(created))
	}
	asg, _ := db.ListAuditLog(ctx, AuditFilter{EntityType: AuditAssignment, EntityID: 4, Limit: 1})
	if len(asg) != 1 || asg[0].Action != "credited" {
		t.Errorf("assignment audit = %+v, want latest credited only", asg)
	}
}

// --- Outbox tests ---

func TestOutboxEnqueueAckRetry(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	db.EnqueueOutbox(ctx, "residuehub.delivered", []byte(`{"a":1}`), "job.delivered", "core")
	db.EnqueueOutbox(ctx, "residuehub.delivered", []byte(`{"a":2}`), "job.delivered", "core")

	msgs, err := db.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("pending = %d, want 2", len(msgs))
	}
	db.IncrementOutboxRetries(ctx, msgs[1].ID)
	db.AckOutbox(ctx, msgs[0].ID)

	msgs, _ = db.ListPendingOutbox(ctx, 10)
	if len(msgs) != 1 {
		t.Fatalf("pending after ack = %d, want 1", len(msgs))
	}
	if msgs[0].Retries != 1 {
		t.Errorf("Retries = %d, want 1", msgs[0].Retries)
	}
	if string(msgs[0].Payload) != `{"a":2}` {
		t.Errorf("Payload = %s", msgs[0].Payload)
	}
}

func TestAdminUsers(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	h := seedHub(t, db, "H1")

	exists, _ := db.AdminUserExists(ctx)
	if exists {
		t.Fatal("no admin users expected")
	}
	if err := db.CreateAdminUser(ctx, "dispatcher", "hash", &h.ID); err != nil {
		t.Fatalf("create: %v", err)
	}
	u, err := db.GetAdminUser(ctx, "dispatcher")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if u.HubID == nil || *u.HubID != h.ID {
		t.Errorf("HubID = %v, want %d", u.HubID, h.ID)
	}
}

func TestRebind(t *testing.T) {
	got := Rebind(`UPDATE t SET a=?, b=? WHERE id=?`)
	want := `UPDATE t SET a=$1, b=$2 WHERE id=$3`
	if got != want {
		t.Errorf("Rebind = %q, want %q", got, want)
	}
}
