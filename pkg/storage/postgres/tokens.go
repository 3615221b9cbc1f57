package postgres

import (
	"context"
	"fmt"
	"time"

	"pricefeed/internal/feed/memorystore"

	"gorm.io/gorm/clause"
)

// PriceUpdate is one row of a price batch. Price holds the scaled integer digits.
type PriceUpdate struct {
	Symbol    string
	Price     string
	Timestamp time.Time
}

// EntryError is a single failed update inside an otherwise committed batch.
type EntryError struct {
	Symbol string
	Err    error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("update price for %s: %v", e.Symbol, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

// BatchResult summarizes a committed price batch.
type BatchResult struct {
	RowsAffected int64
	Failed       []*EntryError
}

// ActivePairs returns the active pairs of serverGroup in insertion order.
func (p *PostgresClient) ActivePairs(ctx context.Context, serverGroup string) ([]memorystore.TradingPair, error) {
	var rows []TokenRecord
	err := p.DB.WithContext(ctx).
		Select("from_pair", "to_pair").
		Where("is_active = ? AND server_group = ?", true, serverGroup).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	pairs := make([]memorystore.TradingPair, 0, len(rows))
	for _, r := range rows {
		pairs = append(pairs, memorystore.TradingPair{Base: r.FromPair, Quote: r.ToPair})
	}
	return pairs, nil
}

// UpdatePrices writes every update in a single transaction. Each update runs
// behind its own savepoint: a failing row is rolled back to it and reported
// in BatchResult.Failed while the rest of the batch commits. A commit failure
// rolls back the whole batch and is returned as the error.
func (p *PostgresClient) UpdatePrices(ctx context.Context, updates []PriceUpdate) (BatchResult, error) {
	var res BatchResult
	if len(updates) == 0 {
		return res, nil
	}

	tx := p.DB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return res, fmt.Errorf("begin price batch: %w", tx.Error)
	}

	for i, u := range updates {
		sp := fmt.Sprintf("price_%d", i)
		if err := tx.SavePoint(sp).Error; err != nil {
			tx.Rollback()
			return res, fmt.Errorf("savepoint %s: %w", sp, err)
		}

		ts := u.Timestamp.UTC()
		out := tx.Model(&TokenRecord{}).
			Where("from_pair = ?", u.Symbol).
			Updates(map[string]any{"price": u.Price, "timestamp": ts})
		if out.Error != nil {
			res.Failed = append(res.Failed, &EntryError{Symbol: u.Symbol, Err: out.Error})
			if err := tx.RollbackTo(sp).Error; err != nil {
				tx.Rollback()
				return res, fmt.Errorf("rollback to %s: %w", sp, err)
			}
			continue
		}
		res.RowsAffected += out.RowsAffected
	}

	if err := tx.Commit().Error; err != nil {
		tx.Rollback()
		return BatchResult{Failed: res.Failed}, fmt.Errorf("commit price batch: %w", err)
	}
	return res, nil
}

// UpsertTokens inserts catalog rows, updating activity and server group of
// pairs that already exist.
func (p *PostgresClient) UpsertTokens(ctx context.Context, tokens []TokenRecord) error {
	if len(tokens) == 0 {
		return nil
	}
	return p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "from_pair"},
			{Name: "to_pair"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"is_active", "server_group"}),
	}).CreateInBatches(tokens, 100).Error
}

// GetToken returns the catalog row for a pair.
func (p *PostgresClient) GetToken(ctx context.Context, from, to string) (*TokenRecord, error) {
	var token TokenRecord
	err := p.DB.WithContext(ctx).
		Where("from_pair = ? AND to_pair = ?", from, to).
		First(&token).Error
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// ToPriceUpdate converts a cached observation into a batch row.
func ToPriceUpdate(obs memorystore.PriceObservation) PriceUpdate {
	return PriceUpdate{
		Symbol:    obs.Symbol,
		Price:     obs.Price.String(),
		Timestamp: obs.ObservedAt.UTC(),
	}
}
