package evidence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/playperu/geooracle/internal/geoguess"
)

// SQLStore keeps one row per settlement in the settlements table created by
// the migrations package. Appends are serialized by mu; each is a single
// INSERT.
type SQLStore struct {
	db *sql.DB
	mu sync.Mutex
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Append(ctx context.Context, rec geoguess.SettlementRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settlements (game_id, settled_at, data)
		VALUES (?, ?, jsonb(?))
	`, rec.GameID, rec.SettledAt, string(data))
	if err != nil {
		return fmt.Errorf("inserting settlement %q: %w", rec.GameID, err)
	}
	return nil
}

func (s *SQLStore) Records(ctx context.Context) ([]geoguess.SettlementRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT json(data) FROM settlements ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying settlements: %w", err)
	}
	defer rows.Close()

	var records []geoguess.SettlementRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var rec geoguess.SettlementRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("decoding settlement: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Check pings the database.
func (s *SQLStore) Check(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
