package postgresdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/vulpemventures/cosigner/internal/core/domain"
)

const (
	insertGroupQuery = `INSERT INTO transaction_group
		(id, description, atomic, sequential, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	insertGroupItemQuery = `INSERT INTO transaction_group_item
		(fk_group_id, fk_transaction_id, seq) VALUES ($1, $2, $3)`
	tagGroupMemberQuery = `UPDATE transaction SET group_id = $1, group_seq = $2
		WHERE id = $3`
	selectGroupQuery = `SELECT id, description, atomic, sequential, created_at
		FROM transaction_group WHERE id = $1`
	selectGroupItemsQuery = `SELECT seq, fk_transaction_id
		FROM transaction_group_item WHERE fk_group_id = $1 ORDER BY seq`
)

type groupRepositoryPg struct {
	pgxPool *pgxpool.Pool
}

func NewGroupRepositoryPgImpl(pgxPool *pgxpool.Pool) domain.TransactionGroupRepository {
	return newGroupRepositoryPg(pgxPool)
}

func newGroupRepositoryPg(pgxPool *pgxpool.Pool) *groupRepositoryPg {
	return &groupRepositoryPg{pgxPool}
}

func (g *groupRepositoryPg) AddGroup(
	ctx context.Context, group *domain.TransactionGroup,
) (bool, error) {
	tx, err := g.pgxPool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(
		ctx, insertGroupQuery,
		group.ID, group.Description, group.Atomic, group.Sequential,
		group.CreatedAt,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return false, nil
		}
		return false, err
	}

	for _, item := range group.Items {
		tag, err := tx.Exec(
			ctx, tagGroupMemberQuery, group.ID, int32(item.Seq), item.TransactionID,
		)
		if err != nil {
			return false, err
		}
		if tag.RowsAffected() == 0 {
			return false, fmt.Errorf(
				"%w: %s", domain.ErrTransactionNotFound, item.TransactionID,
			)
		}
		if _, err := tx.Exec(
			ctx, insertGroupItemQuery, group.ID, item.TransactionID, int32(item.Seq),
		); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (g *groupRepositoryPg) GetGroup(
	ctx context.Context, id string,
) (*domain.TransactionGroup, error) {
	group := &domain.TransactionGroup{}
	if err := g.pgxPool.QueryRow(ctx, selectGroupQuery, id).Scan(
		&group.ID, &group.Description, &group.Atomic, &group.Sequential,
		&group.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrGroupNotFound
		}
		return nil, err
	}

	rows, err := g.pgxPool.Query(ctx, selectGroupItemsQuery, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int32
		item := domain.TransactionGroupItem{}
		if err := rows.Scan(&seq, &item.TransactionID); err != nil {
			return nil, err
		}
		item.Seq = int(seq)
		group.Items = append(group.Items, item)
	}
	return group, rows.Err()
}
