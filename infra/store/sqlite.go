package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/petriage/petriage/core/model"
	core "github.com/petriage/petriage/core/store"
)

// SQLiteStore persists requests and vets in a SQLite database. The offer
// sub-record and triage payload are stored as JSON columns; a committed row is
// the authoritative state of a request.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS requests (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        pet_id TEXT NOT NULL,
        status TEXT NOT NULL,
        body TEXT NOT NULL,
        created_at INTEGER NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_requests_user_pet ON requests(user_id, pet_id, status);
    CREATE TABLE IF NOT EXISTS vets (
        id TEXT PRIMARY KEY,
        body TEXT NOT NULL
    );
    CREATE TABLE IF NOT EXISTS chat_channels (
        request_id TEXT PRIMARY KEY,
        channel_id TEXT NOT NULL,
        user_id TEXT NOT NULL,
        vet_id TEXT NOT NULL
    );`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, r *model.DispatchRequest) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO requests (id, user_id, pet_id, status, body, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.PetID, string(r.Status), string(body), r.CreatedAt.Unix())
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (model.DispatchRequest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT body FROM requests WHERE id = ?`, id)
	return scanRequest(row)
}

func (s *SQLiteStore) Update(ctx context.Context, r model.DispatchRequest) error {
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE requests SET status = ?, body = ? WHERE id = ?`,
		string(r.Status), string(body), r.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ActiveForPet(ctx context.Context, userID, petID string) (model.DispatchRequest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT body FROM requests
        WHERE user_id = ? AND pet_id = ? AND status NOT IN ('completed', 'cancelled')
        ORDER BY created_at DESC LIMIT 1`, userID, petID)
	return scanRequest(row)
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func scanRequest(row *sql.Row) (model.DispatchRequest, error) {
	var body string
	if err := row.Scan(&body); err != nil {
		if err == sql.ErrNoRows {
			return model.DispatchRequest{}, core.ErrNotFound
		}
		return model.DispatchRequest{}, err
	}
	var r model.DispatchRequest
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return model.DispatchRequest{}, fmt.Errorf("decode request: %w", err)
	}
	return r, nil
}

// SQLiteVetStore stores the vet roster in the same database file.
type SQLiteVetStore struct {
	db *sql.DB
}

// VetStore returns a VetStore view over the store's database.
func (s *SQLiteStore) VetStore() *SQLiteVetStore { return &SQLiteVetStore{db: s.db} }

func (s *SQLiteVetStore) Get(ctx context.Context, id string) (model.Vet, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM vets WHERE id = ?`, id).Scan(&body)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Vet{}, core.ErrNotFound
		}
		return model.Vet{}, err
	}
	var v model.Vet
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return model.Vet{}, fmt.Errorf("decode vet: %w", err)
	}
	return v, nil
}

func (s *SQLiteVetStore) List(ctx context.Context) ([]model.Vet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM vets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.Vet
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var v model.Vet
		if err := json.Unmarshal([]byte(body), &v); err != nil {
			return nil, fmt.Errorf("decode vet: %w", err)
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

func (s *SQLiteVetStore) Put(ctx context.Context, v model.Vet) error {
	if err := v.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO vets (id, body) VALUES (?, ?)
        ON CONFLICT(id) DO UPDATE SET body = excluded.body`, v.ID, string(body))
	return err
}

func (s *SQLiteVetStore) SetStatus(ctx context.Context, id string, status model.VetStatus, activeRequestID string) error {
	v, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	v.Status = status
	v.Available = status == model.VetAvailable
	v.ActiveRequestID = activeRequestID
	return s.Put(ctx, v)
}

// SQLiteChatStore persists chat channel assignments.
type SQLiteChatStore struct {
	db *sql.DB
}

// ChatStore returns a ChatStore view over the store's database.
func (s *SQLiteStore) ChatStore() *SQLiteChatStore { return &SQLiteChatStore{db: s.db} }

func (s *SQLiteChatStore) Ensure(ctx context.Context, requestID, userID, vetID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT channel_id FROM chat_channels WHERE request_id = ?`, requestID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}
	id = uuid.NewString()
	_, err = s.db.ExecContext(ctx, `INSERT INTO chat_channels (request_id, channel_id, user_id, vet_id)
        VALUES (?, ?, ?, ?)`, requestID, id, userID, vetID)
	if err != nil {
		return "", err
	}
	return id, nil
}
