package clickhouse

import (
	"context"
	"fmt"

	"token-stream-lab/internal/domain"
	"token-stream-lab/internal/storage"
)

// MetricStore implements storage.MetricStore using ClickHouse.
//
// token_metrics is a ReplacingMergeTree keyed on (mint, bucket_start), so
// replayed batches after a partial write collapse to a single row instead of
// duplicating. No pre-insert existence checks: the persistence contract is
// at-least-once with idempotent-friendly keys.
type MetricStore struct {
	conn *Conn
}

// NewMetricStore creates a new MetricStore.
func NewMetricStore(conn *Conn) *MetricStore {
	return &MetricStore{conn: conn}
}

// Compile-time interface check.
var _ storage.MetricStore = (*MetricStore)(nil)

// InsertBulk appends metric rows.
func (s *MetricStore) InsertBulk(ctx context.Context, rows []*domain.MetricRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO token_metrics (
			mint, bucket_start, phase_id,
			open, high, low, close,
			volume, buy_volume, sell_volume, max_buy, max_sell,
			whale_buy_volume, whale_sell_volume, creator_sell_volume,
			trade_count, buy_count, sell_count, micro_trade_count,
			whale_buy_count, whale_sell_count, unique_wallets,
			v_sol_reserves, market_cap_sol,
			net_volume, volatility, avg_trade_size, buy_pressure, signer_ratio
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range rows {
		err = batch.Append(
			r.Mint, uint64(r.BucketStart), int32(r.PhaseID),
			r.Open, r.High, r.Low, r.Close,
			r.Volume, r.BuyVolume, r.SellVolume, r.MaxBuy, r.MaxSell,
			r.WhaleBuyVol, r.WhaleSellVol, r.CreatorSell,
			uint32(r.TradeCount), uint32(r.BuyCount), uint32(r.SellCount), uint32(r.MicroTrades),
			uint32(r.WhaleBuyCount), uint32(r.WhaleSellCount), uint32(r.UniqueWallets),
			r.VSolReserves, r.MarketCapSol,
			r.NetVolume, r.Volatility, r.AvgTradeSize, r.BuyPressure, r.SignerRatio,
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

// GetByMint retrieves all rows for a mint, ordered by bucket_start ASC.
func (s *MetricStore) GetByMint(ctx context.Context, mint string) ([]*domain.MetricRow, error) {
	query := `
		SELECT mint, bucket_start, phase_id,
			open, high, low, close,
			volume, buy_volume, sell_volume, max_buy, max_sell,
			whale_buy_volume, whale_sell_volume, creator_sell_volume,
			trade_count, buy_count, sell_count, micro_trade_count,
			whale_buy_count, whale_sell_count, unique_wallets,
			v_sol_reserves, market_cap_sol,
			net_volume, volatility, avg_trade_size, buy_pressure, signer_ratio
		FROM token_metrics
		WHERE mint = ?
		ORDER BY bucket_start ASC
	`

	rows, err := s.conn.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("query metrics by mint: %w", err)
	}
	defer rows.Close()

	var result []*domain.MetricRow
	for rows.Next() {
		var (
			r                              domain.MetricRow
			bucket                         uint64
			phaseID                        int32
			tc, bc, sc, micro, wbc, wsc, uw uint32
		)
		err := rows.Scan(
			&r.Mint, &bucket, &phaseID,
			&r.Open, &r.High, &r.Low, &r.Close,
			&r.Volume, &r.BuyVolume, &r.SellVolume, &r.MaxBuy, &r.MaxSell,
			&r.WhaleBuyVol, &r.WhaleSellVol, &r.CreatorSell,
			&tc, &bc, &sc, &micro, &wbc, &wsc, &uw,
			&r.VSolReserves, &r.MarketCapSol,
			&r.NetVolume, &r.Volatility, &r.AvgTradeSize, &r.BuyPressure, &r.SignerRatio,
		)
		if err != nil {
			return nil, fmt.Errorf("scan metric row: %w", err)
		}
		r.BucketStart = int64(bucket)
		r.PhaseID = int(phaseID)
		r.TradeCount = int(tc)
		r.BuyCount = int(bc)
		r.SellCount = int(sc)
		r.MicroTrades = int(micro)
		r.WhaleBuyCount = int(wbc)
		r.WhaleSellCount = int(wsc)
		r.UniqueWallets = int(uw)
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metric rows: %w", err)
	}

	return result, nil
}
