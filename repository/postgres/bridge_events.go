package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/mrebazaUNIFIED/loanbridge-relayer/db"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/entity"
)

type bridgeEventsRepo basePostgresRepo

func NewBridgeEventsRepo(table string, db *db.DB) entity.BridgeEventsRepo {
	return (*bridgeEventsRepo)(newBasePostgresRepo(table, db))
}

func (r *bridgeEventsRepo) Ensure(ctx context.Context, event *entity.BridgeEvent) error {
	q, args, err := sq.Insert(r.table).
		Columns("kind", "chain_id", "loan_id", "token_id", "transaction_hash", "block_number", "log_index", "details").
		Values(event.Kind, event.ChainID, event.LoanID, event.TokenID, event.TransactionHash, event.BlockNumber, event.LogIndex, event.Details).
		Suffix("ON CONFLICT (kind, transaction_hash, log_index) DO UPDATE SET updated_at = NOW()").
		Suffix("RETURNING id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	err = r.db.GetContext(ctx, &event.ID, q, args...)
	if err != nil {
		return fmt.Errorf("can't insert bridge event: %w", err)
	}
	return nil
}

func (r *bridgeEventsRepo) FindByLoanID(ctx context.Context, loanID string) ([]*entity.BridgeEvent, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"loan_id": loanID}).
		OrderBy("block_number", "log_index").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	events := make([]*entity.BridgeEvent, 0, 10)
	err = r.db.SelectContext(ctx, &events, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get bridge events by loan id: %w", err)
	}
	return events, nil
}

func (r *bridgeEventsRepo) FindByTokenID(ctx context.Context, tokenID string) ([]*entity.BridgeEvent, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"token_id": tokenID}).
		OrderBy("block_number", "log_index").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	events := make([]*entity.BridgeEvent, 0, 10)
	err = r.db.SelectContext(ctx, &events, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get bridge events by token id: %w", err)
	}
	return events, nil
}
