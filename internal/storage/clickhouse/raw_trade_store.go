package clickhouse

import (
	"context"
	"fmt"

	"token-stream-lab/internal/domain"
	"token-stream-lab/internal/storage"
)

// RawTradeStore implements storage.RawTradeStore using ClickHouse.
type RawTradeStore struct {
	conn *Conn
}

// NewRawTradeStore creates a new RawTradeStore.
func NewRawTradeStore(conn *Conn) *RawTradeStore {
	return &RawTradeStore{conn: conn}
}

// Compile-time interface check.
var _ storage.RawTradeStore = (*RawTradeStore)(nil)

// InsertBulk appends raw trades.
func (s *RawTradeStore) InsertBulk(ctx context.Context, trades []*domain.RawTrade) error {
	if len(trades) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO raw_trades (
			mint, side, trader, sol_amount, price, signature, timestamp, phase_id
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range trades {
		err = batch.Append(
			t.Mint, t.Side, t.Trader, t.SolAmount, t.Price,
			t.Signature, uint64(t.Timestamp), int32(t.PhaseID),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByMint retrieves all trades for a mint, ordered by timestamp ASC.
func (s *RawTradeStore) GetByMint(ctx context.Context, mint string) ([]*domain.RawTrade, error) {
	query := `
		SELECT mint, side, trader, sol_amount, price, signature, timestamp, phase_id
		FROM raw_trades
		WHERE mint = ?
		ORDER BY timestamp ASC
	`

	rows, err := s.conn.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("query raw trades by mint: %w", err)
	}
	defer rows.Close()

	var result []*domain.RawTrade
	for rows.Next() {
		var (
			t       domain.RawTrade
			ts      uint64
			phaseID int32
		)
		err := rows.Scan(&t.Mint, &t.Side, &t.Trader, &t.SolAmount, &t.Price, &t.Signature, &ts, &phaseID)
		if err != nil {
			return nil, fmt.Errorf("scan raw trade row: %w", err)
		}
		t.Timestamp = int64(ts)
		t.PhaseID = int(phaseID)
		result = append(result, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate raw trade rows: %w", err)
	}

	return result, nil
}
