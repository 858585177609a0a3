package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionStore loads and persists conversation sessions.
type SessionStore interface {
	// Current returns the guest's live session, opening a new one when there is
	// none or the latest one is DONE.
	Current(ctx context.Context, companyID int64, phone string) (*Session, error)
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	Save(ctx context.Context, s *Session) error
}

type sessionQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSessionStore keeps sessions in chat_sessions. A guest has many rows over
// time; the newest one is the live conversation.
type PostgresSessionStore struct {
	db  sessionQuerier
	now func() time.Time
}

func NewPostgresSessionStore(pool *pgxpool.Pool) *PostgresSessionStore {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return newPostgresSessionStore(pool)
}

func newPostgresSessionStore(db sessionQuerier) *PostgresSessionStore {
	return &PostgresSessionStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const selectSession = `
	SELECT id, company_id, phone, state, data, created_at, updated_at
	FROM chat_sessions
`

func (s *PostgresSessionStore) Current(ctx context.Context, companyID int64, phone string) (*Session, error) {
	row := s.db.QueryRow(ctx, selectSession+`
		WHERE company_id = $1 AND phone = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, companyID, phone)
	latest, err := scanSession(row)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return s.open(ctx, companyID, phone, StateAskGuestName, freshData(Data{}))
	case err != nil:
		return nil, err
	case latest.State == StateDone:
		return s.open(ctx, companyID, phone, StateGreeting, freshData(latest.Data))
	}
	return latest, nil
}

func (s *PostgresSessionStore) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	return scanSession(s.db.QueryRow(ctx, selectSession+` WHERE id = $1`, id))
}

func (s *PostgresSessionStore) Save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess.Data)
	if err != nil {
		return fmt.Errorf("conversation: encode session data: %w", err)
	}
	now := s.now()
	ct, err := s.db.Exec(ctx, `
		UPDATE chat_sessions
		SET state = $2, data = $3, schema_version = $4, updated_at = $5
		WHERE id = $1
	`, sess.ID, string(sess.State), data, sess.Data.SchemaVersion, now)
	if err != nil {
		return fmt.Errorf("conversation: save session %s: %w", sess.ID, err)
	}
	if ct.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	sess.UpdatedAt = now
	return nil
}

func (s *PostgresSessionStore) open(ctx context.Context, companyID int64, phone string, state State, data Data) (*Session, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("conversation: encode session data: %w", err)
	}
	now := s.now()
	sess := &Session{
		ID:        uuid.New(),
		CompanyID: companyID,
		Phone:     phone,
		State:     state,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.db.Exec(ctx, `
		INSERT INTO chat_sessions (id, company_id, phone, state, data, schema_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, sess.ID, companyID, phone, string(state), raw, data.SchemaVersion, now); err != nil {
		return nil, fmt.Errorf("conversation: open session: %w", err)
	}
	return sess, nil
}

// scanSession tolerates unreadable data: the session comes back with a zero
// schema version and the engine resets it.
func scanSession(row pgx.Row) (*Session, error) {
	var (
		sess  Session
		state string
		raw   []byte
	)
	if err := row.Scan(&sess.ID, &sess.CompanyID, &sess.Phone, &state, &raw, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("conversation: load session: %w", err)
	}
	sess.State = State(state)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &sess.Data); err != nil {
			sess.Data = Data{}
		}
	}
	return &sess, nil
}
