package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leanrobert/telegram-jira-bot/internal/domain"
)

// ---- fakes -----------------------------------------------------------------

type fakeSubscriberRepo struct {
	subs []domain.Subscriber
}

func (f *fakeSubscriberRepo) Upsert(context.Context, *domain.Subscriber) error {
	return nil
}

func (f *fakeSubscriberRepo) SetNotificationsEnabled(context.Context, int64, bool) error {
	return nil
}

func (f *fakeSubscriberRepo) GetByChatID(_ context.Context, chatID int64) (*domain.Subscriber, error) {
	for i := range f.subs {
		if f.subs[i].ChatID == chatID {
			return &f.subs[i], nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeSubscriberRepo) ListEnabled(context.Context) ([]domain.Subscriber, error) {
	var enabled []domain.Subscriber
	for _, sub := range f.subs {
		if sub.NotificationsEnabled {
			enabled = append(enabled, sub)
		}
	}
	return enabled, nil
}

type fakeTicketRepo struct {
	mu     sync.Mutex
	byKey  map[string]*domain.Ticket
	nextID int
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{byKey: map[string]*domain.Ticket{}}
}

func (f *fakeTicketRepo) Upsert(_ context.Context, ticket *domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.byKey[ticket.JiraKey]; ok {
		// owner never changes hands
		existing.Title = ticket.Title
		existing.Status = ticket.Status
		existing.Priority = ticket.Priority
		ticket.ChatID = existing.ChatID
		ticket.ID = existing.ID
		return nil
	}
	f.nextID++
	stored := *ticket
	f.byKey[ticket.JiraKey] = &stored
	return nil
}

func (f *fakeTicketRepo) UpdateStatus(_ context.Context, jiraKey, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ticket, ok := f.byKey[jiraKey]; ok {
		ticket.Status = status
	}
	return nil
}

func (f *fakeTicketRepo) GetByKey(_ context.Context, jiraKey string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ticket, ok := f.byKey[jiraKey]; ok {
		copied := *ticket
		return &copied, nil
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeTicketRepo) ListByChat(context.Context, int64, int, int) ([]domain.Ticket, error) {
	return nil, nil
}

// fakeStatusChangeRepo mirrors the windowed-match semantics of the SQL
// implementation, tolerance bounds inclusive.
type fakeStatusChangeRepo struct {
	mu      sync.Mutex
	changes []*domain.StatusChange
	tickets *fakeTicketRepo
	nextID  int64
	failAll bool
}

func (f *fakeStatusChangeRepo) FindOrCreate(_ context.Context, change *domain.StatusChange, tolerance time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return false, errors.New("ledger down")
	}
	for _, existing := range f.changes {
		if existing.JiraKey != change.JiraKey ||
			existing.OldStatus != change.OldStatus ||
			existing.NewStatus != change.NewStatus {
			continue
		}
		delta := change.ChangedAt.Sub(existing.ChangedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= tolerance {
			*change = *existing
			return false, nil
		}
	}
	f.nextID++
	change.ID = f.nextID
	if change.FirstSeenAt.IsZero() {
		change.FirstSeenAt = change.ChangedAt
	}
	change.NotificationSent = false
	stored := *change
	f.changes = append(f.changes, &stored)
	return true, nil
}

func (f *fakeStatusChangeRepo) MarkNotificationSent(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, change := range f.changes {
		if change.ID == id {
			change.NotificationSent = true
		}
	}
	return nil
}

func (f *fakeStatusChangeRepo) ListUnsentForChat(_ context.Context, chatID int64, firstSeenAfter time.Time) ([]domain.StatusChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.StatusChange
	for _, change := range f.changes {
		if change.NotificationSent || change.FirstSeenAt.Before(firstSeenAfter) {
			continue
		}
		ticket, ok := f.tickets.byKey[change.JiraKey]
		if !ok || ticket.ChatID != chatID {
			continue
		}
		result = append(result, *change)
	}
	return result, nil
}

func (f *fakeStatusChangeRepo) CountUnsent(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, change := range f.changes {
		if !change.NotificationSent {
			count++
		}
	}
	return count, nil
}

type fakeNotificationRepo struct {
	mu      sync.Mutex
	records []domain.NotificationRecord
	nextID  int64
}

func (f *fakeNotificationRepo) tupleExists(rec *domain.NotificationRecord) bool {
	for _, existing := range f.records {
		if existing.ChatID == rec.ChatID &&
			existing.JiraKey == rec.JiraKey &&
			existing.Type == rec.Type &&
			existing.OldValue == rec.OldValue &&
			existing.NewValue == rec.NewValue {
			return true
		}
	}
	return false
}

func (f *fakeNotificationRepo) Create(_ context.Context, rec *domain.NotificationRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tupleExists(rec) {
		return false, nil
	}
	f.nextID++
	rec.ID = f.nextID
	rec.SentAt = time.Now()
	f.records = append(f.records, *rec)
	return true, nil
}

func (f *fakeNotificationRepo) Exists(_ context.Context, chatID int64, jiraKey string, nType domain.NotificationType, oldValue, newValue string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tupleExists(&domain.NotificationRecord{
		ChatID: chatID, JiraKey: jiraKey, Type: nType, OldValue: oldValue, NewValue: newValue,
	}), nil
}

type fakeSource struct {
	byUsername map[string][]domain.TrackedTicket
	errFor     map[string]error
	calls      int
}

func (f *fakeSource) SearchTicketsWithHistory(_ context.Context, identity domain.Identity) ([]domain.TrackedTicket, error) {
	f.calls++
	if err := f.errFor[identity.Username]; err != nil {
		return nil, err
	}
	return f.byUsername[identity.Username], nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	delivered []string
	chats     []int64
	failNext  int
}

func (f *fakeNotifier) Deliver(_ context.Context, chatID int64, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return errors.New("telegram unavailable")
	}
	f.delivered = append(f.delivered, message)
	f.chats = append(f.chats, chatID)
	return nil
}

// ---- harness ---------------------------------------------------------------

type harness struct {
	reconciler    *Reconciler
	subscribers   *fakeSubscriberRepo
	tickets       *fakeTicketRepo
	changes       *fakeStatusChangeRepo
	notifications *fakeNotificationRepo
	source        *fakeSource
	notifier      *fakeNotifier
	now           time.Time
}

func newHarness(t *testing.T, subs ...domain.Subscriber) *harness {
	t.Helper()

	tickets := newFakeTicketRepo()
	h := &harness{
		subscribers:   &fakeSubscriberRepo{subs: subs},
		tickets:       tickets,
		changes:       &fakeStatusChangeRepo{tickets: tickets},
		notifications: &fakeNotificationRepo{},
		source:        &fakeSource{byUsername: map[string][]domain.TrackedTicket{}, errFor: map[string]error{}},
		notifier:      &fakeNotifier{},
		now:           time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}

	h.reconciler = NewReconciler(ReconcilerDependencies{
		SubscriberRepo:   h.subscribers,
		TicketRepo:       h.tickets,
		StatusChangeRepo: h.changes,
		NotificationRepo: h.notifications,
		Source:           h.source,
		Notifier:         h.notifier,
	}, ReconcilerOptions{
		LookbackWindow: 5 * time.Minute,
		MatchTolerance: time.Minute,
		RetryHorizon:   24 * time.Hour,
	}, zap.NewNop())
	h.reconciler.now = func() time.Time { return h.now }
	return h
}

func subscriber(chatID int64, username string) domain.Subscriber {
	return domain.Subscriber{ChatID: chatID, Username: username, NotificationsEnabled: true}
}

func statusHistory(at time.Time, old, new string) domain.HistoryEntry {
	return domain.HistoryEntry{
		Author:    "Maria",
		CreatedAt: at,
		Items:     []domain.HistoryItem{{Field: "status", From: old, To: new}},
	}
}

// ---- tests -----------------------------------------------------------------

func TestCycleDeliversAndRecordsTransition(t *testing.T) {
	h := newHarness(t, subscriber(42, "leo"))
	changedAt := h.now.Add(-10 * time.Second)
	h.source.byUsername["leo"] = []domain.TrackedTicket{{
		JiraKey: "DES-12",
		Title:   "Arreglar login",
		Status:  "En Curso",
		History: []domain.HistoryEntry{statusHistory(changedAt, "Backlog", "En Curso")},
	}}

	require.NoError(t, h.reconciler.RunReconciliationCycle(context.Background()))

	require.Len(t, h.changes.changes, 1)
	assert.True(t, h.changes.changes[0].NotificationSent)
	assert.Equal(t, "Backlog", h.changes.changes[0].OldStatus)

	require.Len(t, h.notifications.records, 1)
	assert.Equal(t, int64(42), h.notifications.records[0].ChatID)
	assert.Equal(t, domain.NotificationTypeStatusChange, h.notifications.records[0].Type)

	require.Len(t, h.notifier.delivered, 1)
	assert.Contains(t, h.notifier.delivered[0], "DES-12")
	assert.Contains(t, h.notifier.delivered[0], "En Curso")

	ticket, err := h.tickets.GetByKey(context.Background(), "DES-12")
	require.NoError(t, err)
	assert.Equal(t, "En Curso", ticket.Status)
}

// A second cycle observing the same history entry (timestamp within the
// tolerance) must skip both the ledger insert and the delivery.
func TestSecondCycleSkipsDuplicateTransition(t *testing.T) {
	h := newHarness(t, subscriber(42, "leo"))
	changedAt := h.now.Add(-10 * time.Second)
	ticket := domain.TrackedTicket{
		JiraKey: "DES-12",
		History: []domain.HistoryEntry{statusHistory(changedAt, "Backlog", "En Curso")},
	}
	h.source.byUsername["leo"] = []domain.TrackedTicket{ticket}

	require.NoError(t, h.reconciler.RunReconciliationCycle(context.Background()))

	// next cycle fires a minute later; same entry, slightly different
	// timestamp encoding from the tracker
	h.now = h.now.Add(time.Minute)
	ticket.History = []domain.HistoryEntry{statusHistory(changedAt.Add(5*time.Second), "Backlog", "En Curso")}
	h.source.byUsername["leo"] = []domain.TrackedTicket{ticket}

	require.NoError(t, h.reconciler.RunReconciliationCycle(context.Background()))

	assert.Len(t, h.changes.changes, 1)
	assert.Len(t, h.notifications.records, 1)
	assert.Len(t, h.notifier.delivered, 1)
}

// The tolerance is inclusive: exactly 60s apart is the same transition,
// 61s apart is a new (flapping) one.
func TestToleranceBoundary(t *testing.T) {
	h := newHarness(t, subscriber(42, "leo"))
	base := h.now.Add(-3 * time.Minute)
	h.source.byUsername["leo"] = []domain.TrackedTicket{{
		JiraKey: "DES-12",
		History: []domain.HistoryEntry{statusHistory(base, "Backlog", "En Curso")},
	}}
	require.NoError(t, h.reconciler.RunReconciliationCycle(context.Background()))
	require.Len(t, h.changes.changes, 1)

	h.source.byUsername["leo"] = []domain.TrackedTicket{{
		JiraKey: "DES-12",
		History: []domain.HistoryEntry{statusHistory(base.Add(time.Minute), "Backlog", "En Curso")},
	}}
	require.NoError(t, h.reconciler.RunReconciliationCycle(context.Background()))
	assert.Len(t, h.changes.changes, 1, "exactly tolerance apart matches the existing row")

	h.source.byUsername["leo"] = []domain.TrackedTicket{{
		JiraKey: "DES-12",
		History: []domain.HistoryEntry{statusHistory(base.Add(time.Minute+time.Second), "Backlog", "En Curso")},
	}}
	require.NoError(t, h.reconciler.RunReconciliationCycle(context.Background()))
	assert.Len(t, h.changes.changes, 2, "past the tolerance is a distinct flap")

	// the notification ledger still holds the at-most-once guarantee for
	// the identical tuple: the flap is recorded but not re-delivered
	assert.Len(t, h.notifications.records, 1)
	assert.Len(t, h.notifier.delivered, 1)
	assert.True(t, h.changes.changes[1].NotificationSent)
}

// One transition, two subscribers tracking the ticket: one shared
// StatusChange row, two independent NotificationRecords.
func TestFanOutToMultipleSubscribers(t *testing.T) {
	h := newHarness(t, subscriber(42, "leo"), subscriber(77, "ana"))
	changedAt := h.now.Add(-10 * time.Second)
	shared := domain.TrackedTicket{
		JiraKey: "DES-12",
		History: []domain.HistoryEntry{statusHistory(changedAt, "Backlog", "En Curso")},
	}
	h.source.byUsername["leo"] = []domain.TrackedTicket{shared}
	h.source.byUsername["ana"] = []domain.TrackedTicket{shared}

	require.NoError(t, h.reconciler.RunReconciliationCycle(context.Background()))

	assert.Len(t, h.changes.changes, 1)
	require.Len(t, h.notifications.records, 2)
	assert.ElementsMatch(t, []int64{42, 77}, h.notifier.chats)
}

// Delivery fails throughout the first cycle (initial attempt plus the
// same-cycle sweep) and succeeds on the second; exactly one
// NotificationRecord results.
func TestDeliveryFailureIsRetriedOnce(t *testing.T) {
	h := newHarness(t, subscriber(42, "leo"))
	changedAt := h.now.Add(-10 * time.Second)
	ticket := domain.TrackedTicket{
		JiraKey: "DES-12",
		History: []domain.HistoryEntry{statusHistory(changedAt, "Backlog", "En Curso")},
	}
	h.source.byUsername["leo"] = []domain.TrackedTicket{ticket}
	h.notifier.failNext = 2

	require.NoError(t, h.reconciler.RunReconciliationCycle(context.Background()))
	require.Len(t, h.changes.changes, 1)
	assert.False(t, h.changes.changes[0].NotificationSent)
	assert.Empty(t, h.notifications.records)

	h.now = h.now.Add(time.Minute)
	require.NoError(t, h.reconciler.RunReconciliationCycle(context.Background()))

	assert.Len(t, h.notifications.records, 1)
	assert.Len(t, h.notifier.delivered, 1)
	assert.True(t, h.changes.changes[0].NotificationSent)
}

// A transition recorded but undelivered keeps being retried after the
// extraction window has moved past it.
func TestUnsentChangeRetriedBeyondLookbackWindow(t *testing.T) {
	h := newHarness(t, subscriber(42, "leo"))
	changedAt := h.now.Add(-10 * time.Second)
	ticket := domain.TrackedTicket{
		JiraKey: "DES-12",
		Title:   "Arreglar login",
		History: []domain.HistoryEntry{statusHistory(changedAt, "Backlog", "En Curso")},
	}
	h.source.byUsername["leo"] = []domain.TrackedTicket{ticket}
	h.notifier.failNext = 2

	require.NoError(t, h.reconciler.RunReconciliationCycle(context.Background()))
	require.Len(t, h.changes.changes, 1)

	// an hour later the entry is far outside the window; the retry sweep
	// still picks it up from the ledger
	h.now = h.now.Add(time.Hour)
	h.source.byUsername["leo"] = []domain.TrackedTicket{{JiraKey: "DES-12", Title: "Arreglar login"}}

	require.NoError(t, h.reconciler.RunReconciliationCycle(context.Background()))

	assert.Len(t, h.notifications.records, 1)
	assert.True(t, h.changes.changes[0].NotificationSent)
	require.Len(t, h.notifier.delivered, 1)
	assert.Contains(t, h.notifier.delivered[0], "Arreglar login")
}

func TestUnsentChangeOlderThanRetryHorizonIsAbandoned(t *testing.T) {
	h := newHarness(t, subscriber(42, "leo"))
	require.NoError(t, h.tickets.Upsert(context.Background(), &domain.Ticket{
		JiraKey: "DES-9", ChatID: 42,
	}))
	h.changes.changes = append(h.changes.changes, &domain.StatusChange{
		ID:          1,
		JiraKey:     "DES-9",
		OldStatus:   "Backlog",
		NewStatus:   "En Curso",
		ChangedAt:   h.now.Add(-48 * time.Hour),
		FirstSeenAt: h.now.Add(-48 * time.Hour),
	})

	require.NoError(t, h.reconciler.RunReconciliationCycle(context.Background()))

	assert.Empty(t, h.notifier.delivered)
	assert.Empty(t, h.notifications.records)
}

// Entries already outside the window on their first observation are never
// delivered: a prior cycle is presumed to have handled them.
func TestStaleTransitionsAreDropped(t *testing.T) {
	h := newHarness(t, subscriber(42, "leo"))
	h.source.byUsername["leo"] = []domain.TrackedTicket{{
		JiraKey: "DES-12",
		History: []domain.HistoryEntry{statusHistory(h.now.Add(-10*time.Minute), "Backlog", "En Curso")},
	}}

	require.NoError(t, h.reconciler.RunReconciliationCycle(context.Background()))

	assert.Empty(t, h.changes.changes)
	assert.Empty(t, h.notifier.delivered)
}

// A source failure for one subscriber must not abort the cycle for others.
func TestSourceFailureIsIsolatedPerSubscriber(t *testing.T) {
	h := newHarness(t, subscriber(42, "leo"), subscriber(77, "ana"))
	h.source.errFor["leo"] = errors.New("jira 503")
	h.source.byUsername["ana"] = []domain.TrackedTicket{{
		JiraKey: "DES-31",
		History: []domain.HistoryEntry{statusHistory(h.now.Add(-time.Minute), "Backlog", "Revisar")},
	}}

	require.NoError(t, h.reconciler.RunReconciliationCycle(context.Background()))

	require.Len(t, h.notifications.records, 1)
	assert.Equal(t, int64(77), h.notifications.records[0].ChatID)
}

// A ledger failure abandons the transition for this cycle without partial
// writes; the next cycle picks it up again.
func TestLedgerFailureAbandonsTransition(t *testing.T) {
	h := newHarness(t, subscriber(42, "leo"))
	h.source.byUsername["leo"] = []domain.TrackedTicket{{
		JiraKey: "DES-12",
		History: []domain.HistoryEntry{statusHistory(h.now.Add(-10*time.Second), "Backlog", "En Curso")},
	}}
	h.changes.failAll = true

	require.NoError(t, h.reconciler.RunReconciliationCycle(context.Background()))
	assert.Empty(t, h.notifier.delivered)
	assert.Empty(t, h.notifications.records)

	h.changes.failAll = false
	require.NoError(t, h.reconciler.RunReconciliationCycle(context.Background()))
	assert.Len(t, h.notifications.records, 1)
}

// When the notification ledger already has the tuple (e.g. written by a
// racing cycle through a different StatusChange row), the subscriber is not
// re-notified but the change is still marked sent.
func TestExistingTupleRepairsSentMarkWithoutDelivery(t *testing.T) {
	h := newHarness(t, subscriber(42, "leo"))
	h.notifications.records = append(h.notifications.records, domain.NotificationRecord{
		ID: 1, ChatID: 42, JiraKey: "DES-12",
		Type: domain.NotificationTypeStatusChange, OldValue: "Backlog", NewValue: "En Curso",
	})
	h.source.byUsername["leo"] = []domain.TrackedTicket{{
		JiraKey: "DES-12",
		History: []domain.HistoryEntry{statusHistory(h.now.Add(-10*time.Second), "Backlog", "En Curso")},
	}}

	require.NoError(t, h.reconciler.RunReconciliationCycle(context.Background()))

	assert.Empty(t, h.notifier.delivered)
	assert.Len(t, h.notifications.records, 1)
	require.Len(t, h.changes.changes, 1)
	assert.True(t, h.changes.changes[0].NotificationSent)
}

// Disabled subscribers are invisible to the cycle.
func TestDisabledSubscribersAreSkipped(t *testing.T) {
	disabled := domain.Subscriber{ChatID: 42, Username: "leo"}
	h := newHarness(t, disabled)
	h.source.byUsername["leo"] = []domain.TrackedTicket{{
		JiraKey: "DES-12",
		History: []domain.HistoryEntry{statusHistory(h.now.Add(-10*time.Second), "Backlog", "En Curso")},
	}}

	require.NoError(t, h.reconciler.RunReconciliationCycle(context.Background()))

	assert.Zero(t, h.source.calls)
	assert.Empty(t, h.notifier.delivered)
}
