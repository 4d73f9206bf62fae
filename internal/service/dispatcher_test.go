package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"rent_notifications/internal/models"
	"rent_notifications/internal/repository"
	"rent_notifications/internal/sms"
)

func strPtr(s string) *string   { return &s }
func f64Ptr(v float64) *float64 { return &v }

func dueItem(id, name, tenant, tenantPhone, ownerPhone string) models.DueItem {
	it := models.DueItem{
		PropertyID:   id,
		PropertyName: name,
		DueDate:      time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC),
	}
	if tenant != "" {
		it.TenantName = strPtr(tenant)
	}
	if tenantPhone != "" {
		it.TenantPhone = strPtr(tenantPhone)
	}
	if ownerPhone != "" {
		it.OwnerPhone = strPtr(ownerPhone)
	}
	return it
}

type fakeResolver struct {
	due      []models.DueItem
	expiring []models.DueItem
	err      error
}

func (f *fakeResolver) PropertiesDueToday(ctx context.Context) ([]models.DueItem, error) {
	return f.due, f.err
}

func (f *fakeResolver) ContractsExpiring(ctx context.Context, days int) ([]models.DueItem, error) {
	return f.expiring, f.err
}

// memLog is an in-memory NotificationLog with the same duplicate semantics as
// the postgres store: only sent rows block, failed rows append freely.
type memLog struct {
	mu       sync.Mutex
	sent     map[string]bool
	sentRecs []*models.NotificationRecord
	failRecs []*models.NotificationRecord
	checkErr error
}

func newMemLog() *memLog {
	return &memLog{sent: make(map[string]bool)}
}

func (m *memLog) HasSucceeded(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.checkErr != nil {
		return false, m.checkErr
	}
	return m.sent[key], nil
}

func (m *memLog) RecordSent(ctx context.Context, rec *models.NotificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sent[rec.IdempotencyKey] {
		return repository.ErrDuplicateSent
	}
	m.sent[rec.IdempotencyKey] = true
	m.sentRecs = append(m.sentRecs, rec)
	return nil
}

func (m *memLog) RecordFailed(ctx context.Context, rec *models.NotificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRecs = append(m.failRecs, rec)
	return nil
}

type fakeSender struct {
	mu     sync.Mutex
	calls  []sms.Message
	failTo map[string]error
}

func (f *fakeSender) Send(ctx context.Context, msg sms.Message) (*sms.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, msg)
	f.mu.Unlock()
	if err, ok := f.failTo[msg.To]; ok {
		return nil, err
	}
	return &sms.Result{SID: "SM123", Status: "queued"}, nil
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSender) bodiesTo(phone string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c.To == phone {
			out = append(out, c.Body)
		}
	}
	return out
}

func newTestDispatcher(r Resolver, log NotificationLog, s sms.Sender) *Dispatcher {
	d := NewDispatcher(r, NewGuard(log, nil, 0, nil), s, nil, nil)
	d.now = func() time.Time { return time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC) }
	return d
}

func TestRunRentDueSharedOwner(t *testing.T) {
	items := []models.DueItem{
		dueItem("p1", "Prona 1", "Alice", "+355692000001", "+355693000001"),
		dueItem("p2", "Prona 2", "Bob", "+355692000002", "+355693000001"),
	}
	items[0].RentAmount = f64Ptr(250)
	items[0].Currency = strPtr("EUR")

	log := newMemLog()
	sender := &fakeSender{}
	d := newTestDispatcher(&fakeResolver{due: items}, log, sender)

	sum, err := d.RunRentDue(context.Background())
	if err != nil {
		t.Fatalf("RunRentDue: %v", err)
	}

	if sum.PropertiesFound != 2 || sum.TenantsSent != 2 || sum.OwnersSent != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.OwnersWithMultipleProperties != 1 {
		t.Fatalf("OwnersWithMultipleProperties = %d", sum.OwnersWithMultipleProperties)
	}
	if sender.callCount() != 3 {
		t.Fatalf("sender calls = %d, want 3", sender.callCount())
	}

	alice := sender.bodiesTo("+355692000001")
	if len(alice) != 1 || !strings.Contains(alice[0], "Shuma: 250 EUR.") {
		t.Fatalf("tenant body = %q", alice)
	}

	owner := sender.bodiesTo("+355693000001")
	if len(owner) != 1 {
		t.Fatalf("owner messages = %d, want 1", len(owner))
	}
	if !strings.Contains(owner[0], "Kujtesë: 2 qira përfundojnë sot") {
		t.Errorf("owner intro missing: %q", owner[0])
	}
	if !strings.Contains(owner[0], "Prona 1") || !strings.Contains(owner[0], "Prona 2") {
		t.Errorf("owner body missing properties: %q", owner[0])
	}
}

func TestRunRentDueIdempotentAcrossRuns(t *testing.T) {
	items := []models.DueItem{
		dueItem("p1", "Prona 1", "Alice", "+355692000001", "+355693000001"),
	}
	log := newMemLog()
	sender := &fakeSender{}
	d := newTestDispatcher(&fakeResolver{due: items}, log, sender)

	if _, err := d.RunRentDue(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := sender.callCount()

	sum, err := d.RunRentDue(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if sender.callCount() != first {
		t.Fatalf("second run sent again: %d -> %d calls", first, sender.callCount())
	}
	// Already-sent counts as success in the aggregates.
	if sum.TenantsSent != 1 || sum.OwnersSent != 1 {
		t.Fatalf("second run summary = %+v", sum)
	}
}

func TestRunRentDueFailedAttemptDoesNotBlockRetry(t *testing.T) {
	items := []models.DueItem{
		dueItem("p1", "Prona 1", "Alice", "+355692000001", ""),
	}
	log := newMemLog()
	sender := &fakeSender{failTo: map[string]error{
		"+355692000001": &sms.SendError{Code: 30007, Message: "carrier filtered"},
	}}
	d := newTestDispatcher(&fakeResolver{due: items}, log, sender)

	sum, err := d.RunRentDue(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.TenantsSent != 0 {
		t.Fatalf("TenantsSent = %d, want 0", sum.TenantsSent)
	}
	if len(log.failRecs) != 1 {
		t.Fatalf("failed records = %d, want 1", len(log.failRecs))
	}
	rec := log.failRecs[0]
	if rec.Status != models.StatusFailed || rec.ErrorCode == nil || *rec.ErrorCode != 30007 {
		t.Fatalf("failed record = %+v", rec)
	}

	// Next run retries: failed rows never block.
	sender.failTo = nil
	sum, err = d.RunRentDue(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.TenantsSent != 1 {
		t.Fatalf("retry TenantsSent = %d, want 1", sum.TenantsSent)
	}
}

func TestRunRentDuePartialFailureIsolation(t *testing.T) {
	items := []models.DueItem{
		dueItem("p1", "Prona 1", "Alice", "+355692000001", "+355693000001"),
		dueItem("p2", "Prona 2", "Bob", "+355692000002", "+355693000002"),
		dueItem("p3", "Prona 3", "Carla", "+355692000003", "+355693000003"),
	}
	log := newMemLog()
	sender := &fakeSender{failTo: map[string]error{
		"+355692000002": errors.New("network down"),
	}}
	d := newTestDispatcher(&fakeResolver{due: items}, log, sender)

	sum, err := d.RunRentDue(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.TenantsSent != 2 {
		t.Fatalf("TenantsSent = %d, want 2", sum.TenantsSent)
	}
	if sum.OwnersSent != 3 {
		t.Fatalf("OwnersSent = %d, want 3", sum.OwnersSent)
	}
	if len(log.failRecs) != 1 {
		t.Fatalf("failed records = %d, want 1", len(log.failRecs))
	}
	if log.failRecs[0].ErrorCode != nil {
		t.Errorf("non-twilio error must not carry a code: %+v", log.failRecs[0])
	}
}

func TestRunRentDueSkipsItemsWithoutTenantData(t *testing.T) {
	items := []models.DueItem{
		dueItem("p1", "Prona 1", "Alice", "", "+355693000001"), // no phone
		dueItem("p2", "Prona 2", "", "+355692000002", ""),      // no name
	}
	log := newMemLog()
	sender := &fakeSender{}
	d := newTestDispatcher(&fakeResolver{due: items}, log, sender)

	sum, err := d.RunRentDue(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.PropertiesFound != 2 || sum.TenantsSent != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	// Skipped items produce no audit rows at all.
	if len(log.failRecs) != 0 {
		t.Fatalf("failed records = %d, want 0", len(log.failRecs))
	}
	// The owner message still goes out for the item with an owner phone.
	if sum.OwnersSent != 1 {
		t.Fatalf("OwnersSent = %d, want 1", sum.OwnersSent)
	}
}

func TestRunRentDueEmptyDay(t *testing.T) {
	log := newMemLog()
	sender := &fakeSender{}
	d := newTestDispatcher(&fakeResolver{}, log, sender)

	sum, err := d.RunRentDue(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.PropertiesFound != 0 || sum.TenantsSent != 0 || sum.OwnersSent != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	if sender.callCount() != 0 {
		t.Fatalf("sender calls = %d, want 0", sender.callCount())
	}
	if len(log.sentRecs) != 0 || len(log.failRecs) != 0 {
		t.Fatal("empty day must not write audit rows")
	}
}

func TestRunRentDueResolverErrorAborts(t *testing.T) {
	log := newMemLog()
	sender := &fakeSender{}
	d := newTestDispatcher(&fakeResolver{err: errors.New("db down")}, log, sender)

	if _, err := d.RunRentDue(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if sender.callCount() != 0 {
		t.Fatal("resolver failure must abort before any send")
	}
}

func TestRunRentDueGuardCheckFailureSkipsSend(t *testing.T) {
	items := []models.DueItem{
		dueItem("p1", "Prona 1", "Alice", "+355692000001", ""),
	}
	log := newMemLog()
	log.checkErr = errors.New("db timeout")
	sender := &fakeSender{}
	d := newTestDispatcher(&fakeResolver{due: items}, log, sender)

	sum, err := d.RunRentDue(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// Cannot confirm freshness: skip, never risk a duplicate.
	if sum.TenantsSent != 0 || sender.callCount() != 0 {
		t.Fatalf("summary = %+v, calls = %d", sum, sender.callCount())
	}
}

func TestRunContractExpiryUsesExpiryKinds(t *testing.T) {
	items := []models.DueItem{
		dueItem("p1", "Prona 1", "Alice", "+355692000001", "+355693000001"),
	}
	log := newMemLog()
	sender := &fakeSender{}
	d := newTestDispatcher(&fakeResolver{expiring: items}, log, sender)

	sum, err := d.RunContractExpiry(context.Background(), 30)
	if err != nil {
		t.Fatal(err)
	}
	if sum.TenantsSent != 1 || sum.OwnersSent != 1 {
		t.Fatalf("summary = %+v", sum)
	}

	keys := make(map[string]bool)
	for _, rec := range log.sentRecs {
		keys[rec.IdempotencyKey] = true
		if rec.NotificationType != models.TypeContractExpiry {
			t.Errorf("type = %q", rec.NotificationType)
		}
	}
	if !keys["sms-tenant-expiry-20260829-p1"] {
		t.Errorf("missing tenant expiry key, have %v", keys)
	}
	if !keys["sms-owner-expiry-20260829-+355693000001"] {
		t.Errorf("missing owner expiry key, have %v", keys)
	}

	body := sender.bodiesTo("+355692000001")[0]
	if !strings.Contains(body, "kontrata e qirasë") {
		t.Errorf("tenant expiry body = %q", body)
	}
}

func TestOwnerGroupsKeepResolverOrder(t *testing.T) {
	items := []models.DueItem{
		dueItem("p1", "Prona 1", "", "", "+355693000002"),
		dueItem("p2", "Prona 2", "", "", "+355693000001"),
		dueItem("p3", "Prona 3", "", "", "+355693000002"),
	}
	groups, order := groupByOwner(items)
	if len(order) != 2 || order[0] != "+355693000002" || order[1] != "+355693000001" {
		t.Fatalf("order = %v", order)
	}
	g := groups["+355693000002"]
	if len(g) != 2 || g[0].PropertyName != "Prona 1" || g[1].PropertyName != "Prona 3" {
		t.Fatalf("group = %+v", g)
	}
}
