package custody

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerverless/jobmarket/internal/db"
	"github.com/zerverless/jobmarket/internal/job"
)

func newTestLedger(t *testing.T) (*Ledger, db.KV) {
	t.Helper()
	kv := db.NewMemoryStore()
	t.Cleanup(func() { _ = kv.Close() })
	return NewLedger(kv), kv
}

func balance(t *testing.T, l *Ledger, id job.Identity) job.Amount {
	t.Helper()
	bal, err := l.Balance(context.Background(), id)
	require.NoError(t, err)
	return bal
}

func escrowed(t *testing.T, l *Ledger) job.Amount {
	t.Helper()
	total, err := l.Escrowed(context.Background())
	require.NoError(t, err)
	return total
}

func TestLedger_CreditAndBalance(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	assert.Equal(t, job.Amount(0), balance(t, l, "alice"))
	require.NoError(t, l.Credit(ctx, "alice", 100))
	require.NoError(t, l.Credit(ctx, "alice", 5))
	assert.Equal(t, job.Amount(105), balance(t, l, "alice"))
	assert.Equal(t, job.Amount(0), balance(t, l, "bob"))
}

func hold(l *Ledger, kv db.KV, from job.Identity, amount job.Amount) error {
	return kv.Update(func(txn db.Txn) error {
		return l.Hold(context.Background(), txn, from, amount)
	})
}

func TestLedger_Hold(t *testing.T) {
	l, kv := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Credit(ctx, "alice", 100))
	require.NoError(t, hold(l, kv, "alice", 40))
	assert.Equal(t, job.Amount(60), balance(t, l, "alice"))
	assert.Equal(t, job.Amount(40), escrowed(t, l))

	err := hold(l, kv, "alice", 61)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, job.Amount(60), balance(t, l, "alice"))
	assert.Equal(t, job.Amount(40), escrowed(t, l))
}

func TestLedger_ZeroHoldIsNoop(t *testing.T) {
	l, kv := newTestLedger(t)
	require.NoError(t, hold(l, kv, "nobody", 0))
	assert.Equal(t, job.Amount(0), escrowed(t, l))
}

func TestLedger_TransferJoinsTransaction(t *testing.T) {
	l, kv := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Credit(ctx, "alice", 30))
	require.NoError(t, hold(l, kv, "alice", 30))

	// A failure later in the same transaction discards the payout.
	err := kv.Update(func(txn db.Txn) error {
		if err := l.Transfer(ctx, txn, "bob", 30); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, job.Amount(0), balance(t, l, "bob"))
	assert.Equal(t, job.Amount(30), escrowed(t, l))

	err = kv.Update(func(txn db.Txn) error {
		return l.Transfer(ctx, txn, "bob", 30)
	})
	require.NoError(t, err)
	assert.Equal(t, job.Amount(30), balance(t, l, "bob"))
	assert.Equal(t, job.Amount(0), escrowed(t, l))

	err = kv.Update(func(txn db.Txn) error {
		return l.Transfer(ctx, txn, "bob", 1)
	})
	assert.ErrorIs(t, err, ErrInsufficientEscrow)
}

func TestLedger_ApprovePaysWorker(t *testing.T) {
	l, kv := newTestLedger(t)
	reg := job.NewRegistry(kv, l)
	ctx := context.Background()

	require.NoError(t, l.Credit(ctx, "alice", 50))
	j, err := reg.Create(ctx, job.Call{Caller: "alice", Value: 50}, job.CreateRequest{Name: "paint", Role: job.Individual})
	require.NoError(t, err)

	require.NoError(t, reg.Obtain(ctx, "bob", j.ID))
	require.NoError(t, reg.Submit(ctx, "bob", j.ID, "painted"))
	require.NoError(t, reg.Approve(ctx, "alice", j.ID, job.Individual))

	assert.Equal(t, job.Amount(50), balance(t, l, "bob"))
	assert.Equal(t, job.Amount(0), balance(t, l, "alice"))
	assert.Equal(t, job.Amount(0), escrowed(t, l))
}

func TestLedger_CreateHoldsInSameCommit(t *testing.T) {
	l, kv := newTestLedger(t)
	reg := job.NewRegistry(kv, l)
	ctx := context.Background()

	require.NoError(t, l.Credit(ctx, "alice", 25))

	_, err := reg.Create(ctx, job.Call{Caller: "alice", Value: 26}, job.CreateRequest{Name: "too big"})
	assert.True(t, errors.Is(err, job.ErrHoldFailed))
	assert.True(t, errors.Is(err, ErrInsufficientFunds))
	assert.Equal(t, job.Amount(25), balance(t, l, "alice"))
	assert.Equal(t, job.Amount(0), escrowed(t, l))
	_, err = reg.Get(ctx, 0)
	assert.ErrorIs(t, err, job.ErrNotFound)

	j, err := reg.Create(ctx, job.Call{Caller: "alice", Value: 20}, job.CreateRequest{Name: "fits"})
	require.NoError(t, err)
	assert.Equal(t, job.Amount(20), j.Budget)
	assert.Equal(t, job.Amount(5), balance(t, l, "alice"))
	assert.Equal(t, job.Amount(20), escrowed(t, l))

	// A refused create holds nothing.
	_, err = reg.Create(ctx, job.Call{Caller: "alice", Value: 5}, job.CreateRequest{Name: "second"})
	assert.ErrorIs(t, err, job.ErrAlreadyHasActiveJob)
	assert.Equal(t, job.Amount(5), balance(t, l, "alice"))
	assert.Equal(t, job.Amount(20), escrowed(t, l))
}

func TestLedger_ApproveWithoutEscrowRollsBack(t *testing.T) {
	l, kv := newTestLedger(t)
	reg := job.NewRegistry(kv, l)
	ctx := context.Background()

	require.NoError(t, l.Credit(ctx, "alice", 10))
	j, err := reg.Create(ctx, job.Call{Caller: "alice", Value: 10}, job.CreateRequest{Name: "x"})
	require.NoError(t, err)
	require.NoError(t, reg.Obtain(ctx, "bob", j.ID))
	require.NoError(t, reg.Submit(ctx, "bob", j.ID, "r"))

	// Drain the escrow behind the budget.
	require.NoError(t, kv.Update(func(txn db.Txn) error {
		return l.Transfer(ctx, txn, "carol", 10)
	}))

	err = reg.Approve(ctx, "alice", j.ID, job.Individual)
	assert.True(t, errors.Is(err, job.ErrTransferFailed))
	assert.True(t, errors.Is(err, ErrInsufficientEscrow))

	got, err := reg.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusReview, got.Status)
	assert.Equal(t, job.Amount(0), balance(t, l, "bob"))
}
