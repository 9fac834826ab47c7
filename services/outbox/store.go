package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"peershield/native/coverage"
)

// Entry is one queued transfer instruction awaiting execution by the asset
// layer.
type Entry struct {
	ID          int64     `json:"id"`
	RequestID   string    `json:"requestId"`
	RequestHash string    `json:"requestHash"`
	Height      uint64    `json:"height"`
	Kind        string    `json:"kind"`
	Recipient   string    `json:"recipient"`
	Denom       string    `json:"denom,omitempty"`
	Contract    string    `json:"contract,omitempty"`
	Amount      string    `json:"amount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Batch identifies the request that produced a group of transfers.
type Batch struct {
	RequestID   string
	RequestHash string
	Height      uint64
}

// Store persists transfer instructions in SQLite until they are acknowledged.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the outbox database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single connection serialises writers on the same file
	db.SetMaxOpenConns(1)
	store := &Store{db: db, now: time.Now}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	const schema = `CREATE TABLE IF NOT EXISTS transfers (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            request_id TEXT NOT NULL,
            request_hash TEXT NOT NULL,
            height INTEGER NOT NULL,
            kind TEXT NOT NULL,
            recipient TEXT NOT NULL,
            denom TEXT,
            contract TEXT,
            amount TEXT NOT NULL,
            created_at INTEGER NOT NULL,
            acked_at INTEGER
        );`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	_, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS transfers_pending ON transfers(acked_at, id)`)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Enqueue stores every transfer of one applied request in a single
// transaction.
func (s *Store) Enqueue(ctx context.Context, batch Batch, transfers []coverage.Transfer) ([]Entry, error) {
	if len(transfers) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	const stmt = `INSERT INTO transfers(request_id, request_hash, height, kind, recipient, denom, contract, amount, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	created := s.now().UTC().Truncate(time.Second)
	entries := make([]Entry, 0, len(transfers))
	for _, tr := range transfers {
		if tr.Amount == nil {
			return nil, fmt.Errorf("outbox: transfer to %s has no amount", tr.Recipient)
		}
		entry := Entry{
			RequestID:   batch.RequestID,
			RequestHash: batch.RequestHash,
			Height:      batch.Height,
			Kind:        tr.Kind.String(),
			Recipient:   tr.Recipient,
			Denom:       tr.Denom,
			Contract:    tr.Contract,
			Amount:      tr.Amount.Dec(),
			CreatedAt:   created,
		}
		res, err := tx.ExecContext(ctx, stmt, entry.RequestID, entry.RequestHash, int64(entry.Height), entry.Kind, entry.Recipient, entry.Denom, entry.Contract, entry.Amount, created.Unix())
		if err != nil {
			return nil, err
		}
		if entry.ID, err = res.LastInsertId(); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Pending returns unacknowledged entries in insertion order. A non-positive
// limit returns all of them.
func (s *Store) Pending(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, request_id, request_hash, height, kind, recipient, denom, contract, amount, created_at FROM transfers WHERE acked_at IS NULL ORDER BY id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			entry    Entry
			height   int64
			denom    sql.NullString
			contract sql.NullString
			created  int64
		)
		if err := rows.Scan(&entry.ID, &entry.RequestID, &entry.RequestHash, &height, &entry.Kind, &entry.Recipient, &denom, &contract, &entry.Amount, &created); err != nil {
			return nil, err
		}
		entry.Height = uint64(height)
		entry.Denom = denom.String
		entry.Contract = contract.String
		entry.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, entry)
	}
	return out, rows.Err()
}

// PendingCount reports how many entries await acknowledgement.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transfers WHERE acked_at IS NULL`).Scan(&n)
	return n, err
}

// Ack marks the given entries as executed and returns how many were newly
// acknowledged. Unknown or already acknowledged ids are ignored.
func (s *Store) Ack(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, s.now().UTC().Unix())
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE transfers SET acked_at = ? WHERE acked_at IS NULL AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
