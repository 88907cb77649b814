package registry

import (
	"context"

	"github.com/sirupsen/logrus"

	"msgboard/storage"
)

// collectFee charges the per-message fee for a create running in tx.
func (r *Registry) collectFee(ctx context.Context, tx *storage.Tx, author string) error {
	fee := r.cfg.Fee
	if fee == 0 {
		return nil
	}
	if r.cfg.ChargeAuthor {
		if err := r.assets.Transfer(ctx, tx, fee, author, r.cfg.ContractAccount); err != nil {
			return err
		}
	} else if err := r.issuer.Issue(ctx, tx, fee, r.cfg.ContractAccount); err != nil {
		return err
	}
	return r.deposit(tx, fee)
}

func (r *Registry) deposit(tx *storage.Tx, amount uint64) error {
	balance, err := tx.Var(varBalance)
	if err != nil {
		return err
	}
	next, ok := checkedAdd(balance, amount)
	if !ok {
		return ErrOverflow
	}
	return tx.SetVar(varBalance, next)
}

// Withdraw moves the whole fee balance to the owner. It reports false, with
// no transfer, when there is nothing to withdraw. A failed transfer leaves
// the balance untouched and its error is returned as is.
func (r *Registry) Withdraw(ctx context.Context, actor string) (bool, error) {
	if !r.canWithdraw(actor) {
		return false, ErrNotOwner
	}

	var amount uint64
	err := r.store.Update(ctx, func(tx *storage.Tx) error {
		balance, err := tx.Var(varBalance)
		if err != nil {
			return err
		}
		if balance == 0 {
			return nil
		}
		if err := r.assets.Transfer(ctx, tx, balance, r.cfg.ContractAccount, r.cfg.Owner); err != nil {
			return err
		}
		if err := tx.SetVar(varBalance, 0); err != nil {
			return err
		}
		amount = balance
		return nil
	})
	if err != nil {
		return false, err
	}
	if amount == 0 {
		return false, nil
	}

	r.log.WithFields(logrus.Fields{"amount": amount, "owner": r.cfg.Owner}).Info("fees withdrawn")
	return true, nil
}

// Balance returns the unwithdrawn fee balance.
func (r *Registry) Balance(ctx context.Context) (uint64, error) {
	var balance uint64
	err := r.store.View(ctx, func(tx *storage.Tx) error {
		var err error
		balance, err = tx.Var(varBalance)
		return err
	})
	return balance, err
}
