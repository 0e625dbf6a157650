// Package ledger holds every credit balance in the economy. All mutations
// are guarded UPDATEs so a balance can never go negative, and every
// money-moving operation has a Tx variant that composes with item state
// changes in one database transaction.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ellavondegurechaff/shadowmarket/shadowmarket/database/models"
	"github.com/uptrace/bun"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrNegativeBalance   = errors.New("balance cannot be negative")
	ErrSelfTransfer      = errors.New("cannot transfer to yourself")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

type Ledger struct {
	db *bun.DB
}

func New(db *bun.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) DB() *bun.DB {
	return l.db
}

// GetBalance returns the current balance, zero for accounts that have
// never been credited.
func (l *Ledger) GetBalance(ctx context.Context, userID, guildID string) (int64, error) {
	account := new(models.Account)
	err := l.db.NewSelect().
		Model(account).
		Where("a.user_id = ? AND a.guild_id = ?", userID, guildID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return account.Balance, nil
}

// SetBalance overwrites the balance with an absolute value.
func (l *Ledger) SetBalance(ctx context.Context, userID, guildID string, amount int64) error {
	if amount < 0 {
		return ErrNegativeBalance
	}

	account := &models.Account{
		UserID:    userID,
		GuildID:   guildID,
		Balance:   amount,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	_, err := l.db.NewInsert().
		Model(account).
		On("CONFLICT (user_id, guild_id) DO UPDATE").
		Set("balance = EXCLUDED.balance").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	return nil
}

// EnsureAccount creates the account with an initial balance if it does not
// exist yet. Returns true when the account was created.
func (l *Ledger) EnsureAccount(ctx context.Context, userID, guildID string, initial int64) (bool, error) {
	if initial < 0 {
		return false, ErrNegativeBalance
	}

	account := &models.Account{
		UserID:    userID,
		GuildID:   guildID,
		Balance:   initial,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	res, err := l.db.NewInsert().
		Model(account).
		On("CONFLICT (user_id, guild_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to ensure account: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (l *Ledger) Deposit(ctx context.Context, userID, guildID string, amount int64) error {
	return l.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return l.DepositTx(ctx, tx, userID, guildID, amount)
	})
}

// DepositTx credits the account inside an existing transaction, creating
// the account row on first credit.
func (l *Ledger) DepositTx(ctx context.Context, idb bun.IDB, userID, guildID string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	res, err := idb.NewUpdate().
		Model((*models.Account)(nil)).
		Set("balance = balance + ?", amount).
		Set("updated_at = ?", time.Now()).
		Where("user_id = ? AND guild_id = ?", userID, guildID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to deposit: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	account := &models.Account{
		UserID:    userID,
		GuildID:   guildID,
		Balance:   amount,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if _, err := idb.NewInsert().Model(account).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create account on deposit: %w", err)
	}
	return nil
}

func (l *Ledger) Withdraw(ctx context.Context, userID, guildID string, amount int64) error {
	return l.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return l.WithdrawTx(ctx, tx, userID, guildID, amount)
	})
}

// WithdrawTx debits the account inside an existing transaction. The
// balance guard is part of the UPDATE itself; zero affected rows means the
// funds were not there and nothing moved.
func (l *Ledger) WithdrawTx(ctx context.Context, idb bun.IDB, userID, guildID string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	res, err := idb.NewUpdate().
		Model((*models.Account)(nil)).
		Set("balance = balance - ?", amount).
		Set("updated_at = ?", time.Now()).
		Where("user_id = ? AND guild_id = ? AND balance >= ?", userID, guildID, amount).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to withdraw: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

// Transfer moves funds between two accounts atomically.
func (l *Ledger) Transfer(ctx context.Context, fromID, toID, guildID string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if fromID == toID {
		return ErrSelfTransfer
	}

	err := l.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if err := l.WithdrawTx(ctx, tx, fromID, guildID, amount); err != nil {
			return err
		}
		return l.DepositTx(ctx, tx, toID, guildID, amount)
	})
	if err != nil {
		return err
	}

	slog.Info("Transfer completed",
		slog.String("type", "db"),
		slog.String("from", fromID),
		slog.String("to", toID),
		slog.Int64("amount", amount))
	return nil
}
