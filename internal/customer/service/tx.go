package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	dErrors "cashkiosk/pkg/domain-errors"
)

// Tx runs fn inside a transactional boundary. Stores reached through the
// ctx passed to fn take part in the same transaction.
type Tx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

const (
	numCustomerShards    = 128
	defaultTxTimeout     = 5 * time.Second
	txAbortedDescription = "transaction aborted: context cancelled"
)

// ShardedTx serializes in-memory updates per customer. Stores have no
// rollback of their own, so when fn fails the compensations it registered
// with onRollback run in reverse order.
type ShardedTx struct {
	shards  [numCustomerShards]sync.Mutex
	timeout time.Duration
}

func NewShardedTx() *ShardedTx {
	return &ShardedTx{timeout: defaultTxTimeout}
}

func (t *ShardedTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, txAbortedDescription)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	shard := selectShard(ctx)
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, txAbortedDescription)
	}

	log := &undoLog{}
	err := fn(context.WithValue(ctx, undoLogKey{}, log))
	if err == nil {
		return nil
	}
	if undoErr := log.run(context.WithoutCancel(ctx)); undoErr != nil {
		return errors.Join(err, undoErr)
	}
	return err
}

type undoLogKey struct{}

type undoLog struct {
	fns []func(ctx context.Context) error
}

func (l *undoLog) run(ctx context.Context) error {
	var errs []error
	for i := len(l.fns) - 1; i >= 0; i-- {
		if err := l.fns[i](ctx); err != nil {
			errs = append(errs, fmt.Errorf("undo: %w", err))
		}
	}
	return errors.Join(errs...)
}

// tracksUndo reports whether ctx belongs to a transaction that needs
// compensations to roll back.
func tracksUndo(ctx context.Context) bool {
	_, ok := ctx.Value(undoLogKey{}).(*undoLog)
	return ok
}

// onRollback registers fn to run if the surrounding transaction fails. It is
// a no-op outside a ShardedTx.
func onRollback(ctx context.Context, fn func(ctx context.Context) error) {
	if l, ok := ctx.Value(undoLogKey{}).(*undoLog); ok {
		l.fns = append(l.fns, fn)
	}
}

type txCustomerKey struct{}

// withTxCustomer tags ctx with the customer a transaction works on.
func withTxCustomer(ctx context.Context, customerID string) context.Context {
	return context.WithValue(ctx, txCustomerKey{}, customerID)
}

func selectShard(ctx context.Context) uint32 {
	customerID, ok := ctx.Value(txCustomerKey{}).(string)
	if !ok || customerID == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(customerID))
	return h.Sum32() % numCustomerShards
}
