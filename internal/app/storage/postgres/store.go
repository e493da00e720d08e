// Package postgres implements the SplitStore backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/R3E-Network/splitpay/internal/app/domain/split"
	"github.com/R3E-Network/splitpay/internal/app/storage"
)

// Store implements storage.SplitStore. MutateSplit runs inside a transaction
// holding a row lock, so concurrent operations on the same split serialize at
// the database.
type Store struct {
	db *sql.DB
}

var _ storage.SplitStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const splitColumns = `id, initiator, purpose, asset, total_amount, num_participants,
	amount_per_participant, deadline, total_contributed, contributions,
	has_contributed, status, created_at, updated_at`

func (s *Store) CreateSplit(ctx context.Context, rec split.Split) (split.Split, error) {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	contribJSON, hasJSON, err := marshalMaps(rec)
	if err != nil {
		return split.Split{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO splits (`+splitColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, rec.ID, rec.Initiator, rec.Purpose, rec.Asset, int64(rec.TotalAmount),
		int64(rec.NumParticipants), int64(rec.AmountPerParticipant), rec.Deadline,
		int64(rec.TotalContributed), contribJSON, hasJSON, string(rec.Status),
		rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return split.Split{}, storage.ErrDuplicateID
		}
		return split.Split{}, err
	}
	return rec, nil
}

func (s *Store) GetSplit(ctx context.Context, id string) (split.Split, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+splitColumns+` FROM splits WHERE id = $1
	`, id)
	return scanSplit(row)
}

func (s *Store) MutateSplit(ctx context.Context, id string, fn func(*split.Split) error) (split.Split, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return split.Split{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+splitColumns+` FROM splits WHERE id = $1 FOR UPDATE
	`, id)
	rec, err := scanSplit(row)
	if err != nil {
		return split.Split{}, err
	}

	if err := fn(&rec); err != nil {
		return split.Split{}, err
	}
	rec.UpdatedAt = time.Now().UTC()

	contribJSON, hasJSON, err := marshalMaps(rec)
	if err != nil {
		return split.Split{}, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE splits
		SET total_contributed = $2, contributions = $3, has_contributed = $4,
		    status = $5, updated_at = $6
		WHERE id = $1
	`, rec.ID, int64(rec.TotalContributed), contribJSON, hasJSON,
		string(rec.Status), rec.UpdatedAt)
	if err != nil {
		return split.Split{}, err
	}

	if err := tx.Commit(); err != nil {
		return split.Split{}, err
	}
	return rec, nil
}

func (s *Store) ListSplits(ctx context.Context, initiator string, limit int) ([]split.Split, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+splitColumns+` FROM splits
		WHERE initiator = $1
		ORDER BY created_at
		LIMIT $2
	`, initiator, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSplits(rows)
}

func (s *Store) ListActiveSplits(ctx context.Context) ([]split.Split, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+splitColumns+` FROM splits
		WHERE status = $1
		ORDER BY created_at
	`, string(split.StatusActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSplits(rows)
}

// --- scanning helpers -------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSplit(row rowScanner) (split.Split, error) {
	var (
		rec                           split.Split
		total, parts, share, contrib  int64
		contribRaw, hasRaw            []byte
		status                        string
	)
	err := row.Scan(&rec.ID, &rec.Initiator, &rec.Purpose, &rec.Asset, &total,
		&parts, &share, &rec.Deadline, &contrib, &contribRaw, &hasRaw, &status,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return split.Split{}, storage.ErrNotFound
		}
		return split.Split{}, err
	}

	rec.TotalAmount = uint64(total)
	rec.NumParticipants = uint64(parts)
	rec.AmountPerParticipant = uint64(share)
	rec.TotalContributed = uint64(contrib)
	rec.Status = split.Status(status)

	rec.Contributions = make(map[string]uint64)
	if len(contribRaw) > 0 {
		if err := json.Unmarshal(contribRaw, &rec.Contributions); err != nil {
			return split.Split{}, err
		}
	}
	rec.HasContributed = make(map[string]bool)
	if len(hasRaw) > 0 {
		if err := json.Unmarshal(hasRaw, &rec.HasContributed); err != nil {
			return split.Split{}, err
		}
	}
	return rec, nil
}

func scanSplits(rows *sql.Rows) ([]split.Split, error) {
	var result []split.Split
	for rows.Next() {
		rec, err := scanSplit(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func marshalMaps(rec split.Split) ([]byte, []byte, error) {
	contribJSON, err := json.Marshal(rec.Contributions)
	if err != nil {
		return nil, nil, err
	}
	hasJSON, err := json.Marshal(rec.HasContributed)
	if err != nil {
		return nil, nil, err
	}
	return contribJSON, hasJSON, nil
}
