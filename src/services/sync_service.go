// backend/src/services/sync_service.go
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/asg67/finmanager/backend/src/bankapi"
	"github.com/asg67/finmanager/backend/src/database"
	"github.com/asg67/finmanager/backend/src/logger"
	"github.com/asg67/finmanager/backend/src/model"
)

type syncServiceImpl struct {
	registry *bankapi.Registry
	locks    *syncLock
}

func NewSyncService(registry *bankapi.Registry) SyncService {
	return &syncServiceImpl{
		registry: registry,
		locks:    newSyncLock(),
	}
}

func (s *syncServiceImpl) TestConnection(ctx context.Context, bankCode, token string) (bool, error) {
	adapter, err := s.registry.Lookup(bankCode)
	if err != nil {
		return false, err
	}
	return adapter.TestConnection(ctx, token)
}

func (s *syncServiceImpl) ListBankAccounts(ctx context.Context, conn *model.BankConnection) ([]bankapi.BankAccount, error) {
	adapter, err := s.registry.Lookup(conn.BankCode)
	if err != nil {
		return nil, err
	}
	return adapter.FetchAccounts(ctx, conn.Token)
}

func (s *syncServiceImpl) Sync(ctx context.Context, conn *model.BankConnection, from, to time.Time) (*SyncResult, error) {
	return s.sync(ctx, conn, "", from, to)
}

func (s *syncServiceImpl) SyncAccount(ctx context.Context, conn *model.BankConnection, accountNumber string, from, to time.Time) (*SyncResult, error) {
	return s.sync(ctx, conn, accountNumber, from, to)
}

// sync runs one full fetch-and-store pass. All bank traffic happens before
// the database transaction opens; the store phase either commits every new
// line or none of them.
func (s *syncServiceImpl) sync(ctx context.Context, conn *model.BankConnection, accountNumber string, from, to time.Time) (*SyncResult, error) {
	adapter, err := s.registry.Lookup(conn.BankCode)
	if err != nil {
		return nil, err
	}

	if !s.locks.TryAcquire(conn.ID) {
		return nil, ErrSyncInProgress
	}
	defer s.locks.Release(conn.ID)

	logger.L.Info("sync start",
		"connectionID", conn.ID, "bank", conn.BankCode, "token", conn.MaskedToken(),
		"from", from.Format("2006-01-02"), "to", to.Format("2006-01-02"))

	result, err := s.run(ctx, adapter, conn, accountNumber, from, to)
	if err != nil {
		if recErr := conn.RecordSyncResult(database.DB, model.SyncStatusError, err.Error()); recErr != nil {
			logger.L.Error("failed to record sync error", "connectionID", conn.ID, "error", recErr)
		}
		logger.L.Error("sync failed", "connectionID", conn.ID, "bank", conn.BankCode, "error", err)
		return nil, err
	}

	if recErr := conn.RecordSyncResult(database.DB, model.SyncStatusSuccess, ""); recErr != nil {
		logger.L.Error("failed to record sync success", "connectionID", conn.ID, "error", recErr)
	}
	logger.L.Info("sync done",
		"connectionID", conn.ID, "bank", conn.BankCode,
		"fetched", result.Fetched, "saved", result.Saved, "skipped", result.Skipped)
	return result, nil
}

// accountBatch pairs a bank-side account with its fetched statement lines.
type accountBatch struct {
	bankAccount  bankapi.BankAccount
	transactions []bankapi.TransactionRaw
}

func (s *syncServiceImpl) run(ctx context.Context, adapter bankapi.Adapter, conn *model.BankConnection, accountNumber string, from, to time.Time) (*SyncResult, error) {
	bankAccounts, err := adapter.FetchAccounts(ctx, conn.Token)
	if err != nil {
		return nil, err
	}

	if accountNumber != "" {
		found := false
		for _, ba := range bankAccounts {
			if ba.AccountNumber == accountNumber {
				bankAccounts = []bankapi.BankAccount{ba}
				found = true
				break
			}
		}
		if !found {
			return nil, ErrAccountNotFound
		}
	}

	batches := make([]accountBatch, 0, len(bankAccounts))
	fetched := 0
	for _, ba := range bankAccounts {
		txs, err := adapter.FetchTransactions(ctx, conn.Token, ba, from, to)
		if err != nil {
			return nil, err
		}
		fetched += len(txs)
		batches = append(batches, accountBatch{bankAccount: ba, transactions: txs})
	}

	saved, skipped, err := s.store(conn, batches)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	return &SyncResult{
		Fetched:  fetched,
		Saved:    saved,
		Skipped:  skipped,
		Accounts: len(batches),
		From:     from.Format("2006-01-02"),
		To:       to.Format("2006-01-02"),
		SyncedAt: time.Now(),
	}, nil
}

// store writes every batch inside one database transaction. Local accounts
// are created on first sight of a bank account number; repeated lines are
// skipped by dedupe key.
func (s *syncServiceImpl) store(conn *model.BankConnection, batches []accountBatch) (saved, skipped int, err error) {
	dbTx, err := database.DB.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	for _, batch := range batches {
		account, err := s.resolveAccount(dbTx, conn, batch.bankAccount)
		if err != nil {
			return 0, 0, err
		}
		for _, raw := range batch.transactions {
			key := model.DedupeKey(conn.EntityID, account.ID, raw.Date, raw.Time, raw.Amount, raw.Direction, raw.Counterparty)
			exists, err := model.ExistsByDedupeKey(dbTx, key)
			if err != nil {
				return 0, 0, err
			}
			if exists {
				skipped++
				continue
			}
			bt := &model.BankTransaction{
				AccountID:    account.ID,
				Date:         raw.Date,
				Time:         raw.Time,
				Amount:       raw.Amount,
				Direction:    raw.Direction,
				Counterparty: raw.Counterparty,
				Purpose:      raw.Purpose,
				Balance:      raw.Balance,
				DedupeKey:    key,
			}
			if err := model.InsertBankTransaction(dbTx, bt); err != nil {
				return 0, 0, err
			}
			saved++
		}
	}

	if err := dbTx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("error committing transactions: %w", err)
	}
	return saved, skipped, nil
}

// resolveAccount finds the entity's local account for a bank account number,
// creating one marked bank_sync when none exists yet.
func (s *syncServiceImpl) resolveAccount(dbTx *sql.Tx, conn *model.BankConnection, ba bankapi.BankAccount) (*model.Account, error) {
	account, err := model.FindAccountByNumber(dbTx, conn.EntityID, ba.AccountNumber)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	account = &model.Account{
		EntityID:      conn.EntityID,
		Name:          ba.Name,
		Type:          model.AccountTypeChecking,
		Bank:          conn.BankCode,
		AccountNumber: ba.AccountNumber,
		Source:        model.AccountSourceBankSync,
	}
	if err := model.CreateAccount(dbTx, account); err != nil {
		return nil, err
	}
	logger.L.Info("created account from bank sync",
		"entityID", conn.EntityID, "accountID", account.ID, "bank", conn.BankCode)
	return account, nil
}
