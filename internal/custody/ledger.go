// Package custody holds deposited value: per-identity balances and the escrow
// account that backs every open job budget.
package custody

import (
	"context"
	"math"
	"net/url"
	"strconv"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/zerverless/jobmarket/internal/db"
	"github.com/zerverless/jobmarket/internal/job"
	"github.com/zerverless/jobmarket/internal/logging"
)

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientEscrow = errors.New("insufficient escrow")
	ErrOverflow           = errors.New("amount overflow")
)

const (
	prefixAccounts = "ledger/accounts/"
	keyEscrow      = "ledger/escrow"
)

// Ledger keeps balances in the same KV as the registry so that a payout can
// join the registry's transaction.
type Ledger struct {
	kv     db.KV
	logger *zap.SugaredLogger
}

var _ job.Custody = (*Ledger)(nil)

func NewLedger(kv db.KV) *Ledger {
	return &Ledger{kv: kv, logger: logging.ComponentLogger("custody")}
}

func accountKey(id job.Identity) string {
	return prefixAccounts + url.PathEscape(string(id))
}

func readAmount(txn db.Txn, key string) (job.Amount, error) {
	v, err := txn.Get(key)
	if db.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "read %s", key)
	}
	n, err := strconv.ParseUint(string(v), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "decode %s", key)
	}
	return job.Amount(n), nil
}

func writeAmount(txn db.Txn, key string, amount job.Amount) error {
	return errors.Wrapf(txn.Set(key, []byte(strconv.FormatUint(uint64(amount), 10))), "write %s", key)
}

// move debits from and credits to inside txn.
func move(txn db.Txn, from, to string, amount job.Amount, short error) error {
	if amount == 0 {
		return nil
	}
	src, err := readAmount(txn, from)
	if err != nil {
		return err
	}
	if src < amount {
		return errors.Wrapf(short, "have %d, need %d", src, amount)
	}
	dst, err := readAmount(txn, to)
	if err != nil {
		return err
	}
	if dst > math.MaxUint64-amount {
		return ErrOverflow
	}
	if err := writeAmount(txn, from, src-amount); err != nil {
		return err
	}
	return writeAmount(txn, to, dst+amount)
}

// Credit adds freshly minted value to an account.
func (l *Ledger) Credit(ctx context.Context, to job.Identity, amount job.Amount) error {
	err := l.kv.Update(func(txn db.Txn) error {
		bal, err := readAmount(txn, accountKey(to))
		if err != nil {
			return err
		}
		if bal > math.MaxUint64-amount {
			return ErrOverflow
		}
		return writeAmount(txn, accountKey(to), bal+amount)
	})
	if err != nil {
		return err
	}
	l.logger.Infow("account credited", logging.FieldIdentity, to, logging.FieldAmount, amount)
	return nil
}

func (l *Ledger) Balance(ctx context.Context, id job.Identity) (job.Amount, error) {
	var bal job.Amount
	err := l.kv.View(func(txn db.Txn) error {
		var err error
		bal, err = readAmount(txn, accountKey(id))
		return err
	})
	return bal, err
}

// Escrowed returns the total value held for open budgets.
func (l *Ledger) Escrowed(ctx context.Context) (job.Amount, error) {
	var total job.Amount
	err := l.kv.View(func(txn db.Txn) error {
		var err error
		total, err = readAmount(txn, keyEscrow)
		return err
	})
	return total, err
}

// Hold moves amount from an account into escrow inside the caller's
// transaction. It is how value becomes attached to a create call.
func (l *Ledger) Hold(ctx context.Context, txn db.Txn, from job.Identity, amount job.Amount) error {
	return move(txn, accountKey(from), keyEscrow, amount, ErrInsufficientFunds)
}

// Transfer pays amount out of escrow inside the caller's transaction.
func (l *Ledger) Transfer(ctx context.Context, txn db.Txn, to job.Identity, amount job.Amount) error {
	return move(txn, keyEscrow, accountKey(to), amount, ErrInsufficientEscrow)
}
