package audit

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/intake/internal/database"
	"github.com/dukerupert/intake/internal/store"
)

type recordingSink struct {
	mu      sync.Mutex
	entries []Entry
	err     error
}

func (s *recordingSink) Emit(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return s.err
}

func (s *recordingSink) got() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

func setupAuditDB(t *testing.T) (*sql.DB, int64) {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	e, err := store.NewEmployeeStore(db).Create(context.Background(), "clerk", "Clerk", "", "pw", false, bcrypt.MinCost)
	require.NoError(t, err)
	return db, e.ID
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecordWritesEntry(t *testing.T) {
	db, actor := setupAuditDB(t)
	l := NewLogger(discard())

	e, ok, err := l.Record(context.Background(), db, Entry{
		ActorID:    Actor(actor),
		Action:     ActionVoucherRedeem,
		TargetType: TargetVoucher,
		TargetID:   Target(12),
		Details:    "Redeemed voucher VCH-ABCD1234",
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.False(t, e.CreatedAt.IsZero())

	rows, err := store.NewAuditStore(db).ListByTarget(context.Background(), TargetVoucher, 12)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, e.ID.String(), rows[0].EventID)
	assert.Equal(t, "voucher_redeem", rows[0].ActionType)
}

func TestRecordWithoutActorWarns(t *testing.T) {
	db, _ := setupAuditDB(t)
	var buf bytes.Buffer
	l := NewLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	_, ok, err := l.Record(context.Background(), db, Entry{
		Action:     ActionVisitInvalidate,
		TargetType: TargetVisit,
		TargetID:   Target(3),
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, buf.String(), "audit entry dropped: no actor")
	assert.Contains(t, buf.String(), "level=WARN")

	rows, err := store.NewAuditStore(db).ListByTarget(context.Background(), TargetVisit, 3)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRecordRollsBackWithTransaction(t *testing.T) {
	db, actor := setupAuditDB(t)
	l := NewLogger(discard())

	tx, err := db.Begin()
	require.NoError(t, err)
	_, ok, err := l.Record(context.Background(), tx, Entry{ActorID: Actor(actor), Action: ActionVisitCreate, TargetType: TargetVisit, TargetID: Target(1)})
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, tx.Rollback())

	rows, err := store.NewAuditStore(db).ListByEmployee(context.Background(), actor)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestPublishIsFireAndForget(t *testing.T) {
	failing := &recordingSink{err: errors.New("broker unavailable")}
	ok := &recordingSink{}
	l := NewLogger(discard(), failing, ok)

	e := Entry{ID: uuid.New(), Action: ActionVoucherRevoke}
	l.Publish(e)
	l.Wait()

	require.Len(t, ok.got(), 1)
	assert.Equal(t, e.ID, ok.got()[0].ID)
	assert.Len(t, failing.got(), 1)
}

func TestPendingPublishesOnlyRecorded(t *testing.T) {
	db, actor := setupAuditDB(t)
	sink := &recordingSink{}
	l := NewLogger(discard(), sink)

	p := l.Begin(db)
	require.NoError(t, p.Record(context.Background(), Entry{ActorID: Actor(actor), Action: ActionVoucherCreate, TargetType: TargetVoucher, TargetID: Target(1)}))
	require.NoError(t, p.Record(context.Background(), Entry{Action: ActionVisitCreate, TargetType: TargetVisit, TargetID: Target(2)}))
	assert.Len(t, p.Entries(), 1)

	assert.Empty(t, sink.got(), "nothing is emitted before Publish")
	p.Publish()
	l.Wait()
	require.Len(t, sink.got(), 1)
	assert.Equal(t, ActionVoucherCreate, sink.got()[0].Action)
}

func TestActor(t *testing.T) {
	assert.Nil(t, Actor(0))
	assert.Nil(t, Actor(-4))
	require.NotNil(t, Actor(5))
	assert.Equal(t, int64(5), *Actor(5))
}
