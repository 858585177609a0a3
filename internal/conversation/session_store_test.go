package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionColumns = []string{"id", "company_id", "phone", "state", "data", "created_at", "updated_at"}

func newMockSessionStore(t *testing.T) (pgxmock.PgxPoolIface, *PostgresSessionStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	store := newPostgresSessionStore(mock)
	store.now = func() time.Time { return time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC) }
	return mock, store
}

func TestSessionStoreOpensFirstSession(t *testing.T) {
	mock, store := newMockSessionStore(t)

	mock.ExpectQuery("SELECT id, company_id, phone, state, data").
		WithArgs(int64(7), "971501234567").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO chat_sessions").
		WithArgs(pgxmock.AnyArg(), int64(7), "971501234567", "ASK_GUEST_NAME", pgxmock.AnyArg(), 1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	sess, err := store.Current(context.Background(), 7, "971501234567")
	require.NoError(t, err)
	assert.Equal(t, StateAskGuestName, sess.State)
	assert.Equal(t, CurrentSchemaVersion, sess.Data.SchemaVersion)
	assert.NotEqual(t, uuid.Nil, sess.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStoreReturnsLatest(t *testing.T) {
	mock, store := newMockSessionStore(t)

	id := uuid.New()
	data, _ := json.Marshal(Data{SchemaVersion: 1, GuestName: "Sara", City: "Dubai"})
	created := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, company_id, phone, state, data").
		WithArgs(int64(7), "971501234567").
		WillReturnRows(pgxmock.NewRows(sessionColumns).AddRow(id, int64(7), "971501234567", "PACKAGE_LIST", data, created, created))

	sess, err := store.Current(context.Background(), 7, "971501234567")
	require.NoError(t, err)
	assert.Equal(t, id, sess.ID)
	assert.Equal(t, StatePackageList, sess.State)
	assert.Equal(t, "Sara", sess.Data.GuestName)
	assert.Equal(t, "Dubai", sess.Data.City)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStoreStartsOverAfterDone(t *testing.T) {
	mock, store := newMockSessionStore(t)

	bookingID := int64(42)
	data, _ := json.Marshal(Data{SchemaVersion: 1, GuestName: "Sara", Email: "sara@example.com", City: "Dubai", BookingID: &bookingID})
	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, company_id, phone, state, data").
		WithArgs(int64(7), "971501234567").
		WillReturnRows(pgxmock.NewRows(sessionColumns).AddRow(uuid.New(), int64(7), "971501234567", "DONE", data, created, created))
	mock.ExpectExec("INSERT INTO chat_sessions").
		WithArgs(pgxmock.AnyArg(), int64(7), "971501234567", "GREETING", pgxmock.AnyArg(), 1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	sess, err := store.Current(context.Background(), 7, "971501234567")
	require.NoError(t, err)
	assert.Equal(t, StateGreeting, sess.State)
	assert.Equal(t, "Sara", sess.Data.GuestName)
	assert.Empty(t, sess.Data.Email, "only the name follows the guest into a new conversation")
	assert.Empty(t, sess.Data.City)
	assert.Nil(t, sess.Data.BookingID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionStoreUnreadableDataLoadsEmpty(t *testing.T) {
	mock, store := newMockSessionStore(t)

	id := uuid.New()
	now := time.Now()
	mock.ExpectQuery("SELECT id, company_id, phone, state, data").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(sessionColumns).AddRow(id, int64(7), "971501234567", "ASK_PAX", []byte(`{"adults":"two"`), now, now))

	sess, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 0, sess.Data.SchemaVersion)

	var integrity *DataIntegrityError
	require.True(t, errors.As(sess.Data.Validate(sess.State), &integrity))
	assert.Equal(t, StateCityList, integrity.ResetTo)
}

func TestSessionStoreSave(t *testing.T) {
	mock, store := newMockSessionStore(t)

	sess := &Session{ID: uuid.New(), CompanyID: 7, Phone: "971501234567", State: StateAskPax, Data: Data{SchemaVersion: 1}}
	mock.ExpectExec("UPDATE chat_sessions").
		WithArgs(sess.ID, "ASK_PAX", pgxmock.AnyArg(), 1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.Save(context.Background(), sess))
	assert.Equal(t, store.now(), sess.UpdatedAt)

	mock.ExpectExec("UPDATE chat_sessions").
		WithArgs(sess.ID, "ASK_PAX", pgxmock.AnyArg(), 1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, store.Save(context.Background(), sess), ErrSessionNotFound)

	mock.ExpectExec("UPDATE chat_sessions").
		WithArgs(sess.ID, "ASK_PAX", pgxmock.AnyArg(), 1, pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))
	err := store.Save(context.Background(), sess)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDataResetToKeepsContactWithinConversation(t *testing.T) {
	adults := 2
	d := Data{SchemaVersion: 1, GuestName: "Sara", Email: "sara@example.com", City: "Dubai",
		Packages: []PackageRef{{ID: 1, Title: "Desert Safari"}}, Package: &PackageRef{ID: 1}, Adults: &adults}

	d.resetTo(StatePackageList)
	assert.Equal(t, "sara@example.com", d.Email)
	assert.Equal(t, "Dubai", d.City)
	assert.Len(t, d.Packages, 1)
	assert.Nil(t, d.Package)
	assert.Nil(t, d.Adults)

	d.resetTo(StateCityList)
	assert.Equal(t, "Sara", d.GuestName)
	assert.Equal(t, "sara@example.com", d.Email)
	assert.Empty(t, d.City)
}
