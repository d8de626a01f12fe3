package postgresdb

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/vulpemventures/cosigner/internal/core/domain"
	"github.com/vulpemventures/cosigner/pkg/ledger"
)

const (
	uniqueViolation = "23505"

	txColumns = `id, name, description, type, ledger_tx_id, status,
		valid_start, body, status_code, executed_at, is_manual, mirror_network,
		creator_id, observer_ids, group_id, group_seq, created_at, updated_at`

	insertTxQuery = `INSERT INTO transaction (` + txColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		$15, $16, $17, $18)`
	selectTxQuery          = `SELECT ` + txColumns + ` FROM transaction WHERE id = $1`
	selectTxForUpdateQuery = selectTxQuery + ` FOR UPDATE`
	selectTxsQuery         = `SELECT ` + txColumns + ` FROM transaction
		WHERE status = ANY($1) AND valid_start <= $2 AND
		(valid_start > $3 OR ($4 AND valid_start = $3))
		ORDER BY valid_start`
	updateTxQuery = `UPDATE transaction SET name = $2, description = $3,
		status = $4, body = $5, status_code = $6, executed_at = $7,
		is_manual = $8, observer_ids = $9, group_id = $10, group_seq = $11,
		updated_at = $12 WHERE id = $1`
	expireTxsQuery = `UPDATE transaction SET status = $1, updated_at = $2
		WHERE status = ANY($3) AND valid_start < $4
		RETURNING ` + txColumns
)

type txRepositoryPg struct {
	pgxPool          *pgxpool.Pool
	chLock           *sync.Mutex
	chEvents         chan domain.TransactionEvent
	externalChEvents chan domain.TransactionEvent
	closed           bool
}

func NewTxRepositoryPgImpl(pgxPool *pgxpool.Pool) domain.TransactionRepository {
	return newTxRepositoryPg(pgxPool)
}

func newTxRepositoryPg(pgxPool *pgxpool.Pool) *txRepositoryPg {
	return &txRepositoryPg{
		pgxPool:          pgxPool,
		chLock:           &sync.Mutex{},
		chEvents:         make(chan domain.TransactionEvent),
		externalChEvents: make(chan domain.TransactionEvent),
	}
}

func (t *txRepositoryPg) AddTransaction(
	ctx context.Context, trx *domain.Transaction,
) (bool, error) {
	now := time.Now()
	if trx.CreatedAt.IsZero() {
		trx.CreatedAt = now
	}
	trx.UpdatedAt = now

	if _, err := t.pgxPool.Exec(ctx, insertTxQuery, txArgs(trx)...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return false, nil
		}
		return false, err
	}

	go t.publishEvent(domain.TransactionEvent{
		EventType:   domain.TransactionAdded,
		Transaction: trx,
	})

	return true, nil
}

func (t *txRepositoryPg) GetTransaction(
	ctx context.Context, id string,
) (*domain.Transaction, error) {
	return t.getTx(ctx, t.pgxPool, selectTxQuery, id)
}

func (t *txRepositoryPg) GetTransactions(
	ctx context.Context, filter domain.TransactionFilter,
) ([]*domain.Transaction, error) {
	rows, err := t.pgxPool.Query(
		ctx, selectTxsQuery,
		statusCodes(filter.Statuses),
		filter.Window.To.UnixNano(),
		fromNanos(filter.Window.From),
		filter.Window.FromInclusive,
	)
	if err != nil {
		return nil, err
	}
	return scanTxs(rows)
}

func (t *txRepositoryPg) UpdateTransaction(
	ctx context.Context, id string,
	updateFn func(tx *domain.Transaction) (*domain.Transaction, error),
) error {
	dbTx, err := t.pgxPool.Begin(ctx)
	if err != nil {
		return err
	}
	defer dbTx.Rollback(ctx)

	tx, err := t.getTx(ctx, dbTx, selectTxForUpdateQuery, id)
	if err != nil {
		return err
	}
	prev := *tx
	prev.Body = append([]byte{}, tx.Body...)

	updatedTx, err := updateFn(tx)
	if err != nil {
		return err
	}
	updatedTx.UpdatedAt = time.Now()

	if _, err := dbTx.Exec(
		ctx, updateTxQuery,
		id, updatedTx.Name, updatedTx.Description, int32(updatedTx.Status),
		updatedTx.Body, updatedTx.StatusCode, updatedTx.ExecutedAt,
		updatedTx.IsManual, observerIDs(updatedTx), updatedTx.GroupID,
		int32(updatedTx.GroupSeq), updatedTx.UpdatedAt,
	); err != nil {
		return err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return err
	}

	if event, ok := domain.UpdateEvent(&prev, updatedTx); ok {
		go t.publishEvent(event)
	}
	return nil
}

// ExpireTransactions runs as a single UPDATE statement so that concurrent
// instances never expire the same row twice.
func (t *txRepositoryPg) ExpireTransactions(
	ctx context.Context, validStartBefore time.Time,
) ([]*domain.Transaction, error) {
	rows, err := t.pgxPool.Query(
		ctx, expireTxsQuery,
		int32(domain.StatusExpired), time.Now(),
		statusCodes(domain.ActiveStatuses), validStartBefore.UnixNano(),
	)
	if err != nil {
		return nil, err
	}
	expired, err := scanTxs(rows)
	if err != nil {
		return nil, err
	}
	sortByValidStart(expired)

	for _, tx := range expired {
		go t.publishEvent(domain.TransactionEvent{
			EventType:   domain.TransactionExpired,
			Transaction: tx,
		})
	}
	return expired, nil
}

func (t *txRepositoryPg) GetEventChannel() chan domain.TransactionEvent {
	return t.externalChEvents
}

func (t *txRepositoryPg) publishEvent(event domain.TransactionEvent) {
	t.chLock.Lock()
	defer t.chLock.Unlock()

	if t.closed {
		return
	}

	t.chEvents <- event
	// send over channel without blocking in case nobody is listening.
	select {
	case t.externalChEvents <- event:
	default:
	}
}

func (t *txRepositoryPg) close() {
	t.chLock.Lock()
	defer t.chLock.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	close(t.chEvents)
	close(t.externalChEvents)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (t *txRepositoryPg) getTx(
	ctx context.Context, q querier, query, id string,
) (*domain.Transaction, error) {
	tx, err := scanTx(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	return tx, nil
}

func txArgs(tx *domain.Transaction) []interface{} {
	return []interface{}{
		tx.ID, tx.Name, tx.Description, int32(tx.Type), tx.LedgerTxID,
		int32(tx.Status), tx.ValidStart.UnixNano(), tx.Body, tx.StatusCode,
		tx.ExecutedAt, tx.IsManual, tx.MirrorNetwork, tx.CreatorID,
		observerIDs(tx), tx.GroupID, int32(tx.GroupSeq), tx.CreatedAt,
		tx.UpdatedAt,
	}
}

func scanTx(row pgx.Row) (*domain.Transaction, error) {
	var (
		tx                  domain.Transaction
		txType, status, seq int32
		validStart          int64
	)
	if err := row.Scan(
		&tx.ID, &tx.Name, &tx.Description, &txType, &tx.LedgerTxID, &status,
		&validStart, &tx.Body, &tx.StatusCode, &tx.ExecutedAt, &tx.IsManual,
		&tx.MirrorNetwork, &tx.CreatorID, &tx.ObserverIDs, &tx.GroupID, &seq,
		&tx.CreatedAt, &tx.UpdatedAt,
	); err != nil {
		return nil, err
	}
	tx.Type = ledger.TransactionType(txType)
	tx.Status = domain.TransactionStatus(status)
	tx.ValidStart = time.Unix(0, validStart).UTC()
	tx.GroupSeq = int(seq)
	return &tx, nil
}

func scanTxs(rows pgx.Rows) ([]*domain.Transaction, error) {
	defer rows.Close()

	txs := make([]*domain.Transaction, 0)
	for rows.Next() {
		tx, err := scanTx(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func statusCodes(statuses []domain.TransactionStatus) []int32 {
	codes := make([]int32, 0, len(statuses))
	for _, s := range statuses {
		codes = append(codes, int32(s))
	}
	return codes
}

func observerIDs(tx *domain.Transaction) []string {
	if tx.ObserverIDs == nil {
		return []string{}
	}
	return tx.ObserverIDs
}

// fromNanos maps the zero time to the lowest storable instant, UnixNano is
// undefined for it.
func fromNanos(t time.Time) int64 {
	if t.IsZero() {
		return -1 << 63
	}
	return t.UnixNano()
}

func sortByValidStart(txs []*domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].ValidStart.Before(txs[j].ValidStart)
	})
}
