package storage_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"finapp/internal/core"
	"finapp/internal/log"
	"finapp/internal/storage"
	"finapp/internal/storage/memory"
)

func stores(t *testing.T) map[string]storage.Store {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"), log.Discard())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return map[string]storage.Store{
		"sqlite": repo,
		"memory": memory.New(),
	}
}

type fixture struct {
	user     core.User
	account  core.Account
	category core.Category
}

func seed(t *testing.T, s storage.Store) fixture {
	t.Helper()
	var f fixture
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		var err error
		if f.user, err = tx.CreateUser(ctx, core.User{Username: "ada@example.com", FullName: "Ada Lovelace", PasswordHash: "$2a$10$opaque"}); err != nil {
			return err
		}
		if f.account, err = tx.CreateAccount(ctx, core.Account{
			UserID:  f.user.ID.Int64(),
			Name:    "Checking",
			Balance: core.MustParseMoney("100"),
			Opening: core.MustParseMoney("100"),
		}); err != nil {
			return err
		}
		f.category, err = tx.CreateCategory(ctx, core.Category{UserID: f.user.ID.Int64(), Name: "Groceries"})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return f
}

func (f fixture) tx(amount string) core.Transaction {
	return core.Transaction{
		UserID:      f.user.ID.Int64(),
		AccountID:   f.account.ID.Int64(),
		CategoryID:  f.category.ID.Int64(),
		Amount:      core.MustParseMoney(amount),
		Description: "weekly shop",
		Date:        core.NewDate(2024, 3, 2),
		Type:        core.Expense,
	}
}

func TestTransactionRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			f := seed(t, s)
			want := f.tx("99999999999999999.99")
			want.Recurring = true
			want.Frequency = core.Monthly
			want.RecurrenceEnd = core.NewDate(2024, 12, 31)
			want.Posting = &core.Posting{AccountID: f.account.ID.Int64(), Delta: core.MustParseMoney("12.30").Neg()}

			var got core.Transaction
			err := s.WithinTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
				created, err := tx.CreateTransaction(ctx, want)
				if err != nil {
					return err
				}
				got, err = tx.GetTransaction(ctx, created.ID.Int64())
				return err
			})
			if err != nil {
				t.Fatalf("unit of work: %v", err)
			}
			if got.ID.IsDraft() {
				t.Fatal("stored transaction must be persisted")
			}
			if !got.Amount.Equal(want.Amount) || got.Date != want.Date || got.Type != want.Type {
				t.Fatalf("fields lost: %+v", got)
			}
			if !got.Recurring || got.Frequency != core.Monthly || got.RecurrenceEnd != want.RecurrenceEnd {
				t.Fatalf("recurrence lost: %+v", got)
			}
			if got.Posting == nil || got.Posting.Delta.String() != "-12.30" || got.Posting.AccountID != f.account.ID.Int64() {
				t.Fatalf("posting lost: %+v", got.Posting)
			}
		})
	}
}

func TestUserRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			f := seed(t, s)
			var got core.User
			err := s.WithinTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
				var err error
				got, err = tx.GetUser(ctx, f.user.ID.Int64())
				return err
			})
			if err != nil {
				t.Fatalf("get user: %v", err)
			}
			if got.Username != "ada@example.com" || got.FullName != "Ada Lovelace" || got.PasswordHash != "$2a$10$opaque" {
				t.Fatalf("user fields lost: %+v", got)
			}
		})
	}
}

func TestRollbackOnError(t *testing.T) {
	boom := errors.New("boom")
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			f := seed(t, s)
			var txID int64
			err := s.WithinTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
				created, err := tx.CreateTransaction(ctx, f.tx("5"))
				if err != nil {
					return err
				}
				txID = created.ID.Int64()
				acct := f.account
				acct.Balance = core.MustParseMoney("95")
				if _, err := tx.UpdateAccount(ctx, acct); err != nil {
					return err
				}
				return boom
			})
			if !errors.Is(err, boom) {
				t.Fatalf("expected boom, got %v", err)
			}

			err = s.WithinTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
				if _, err := tx.GetTransaction(ctx, txID); !core.IsNotFound(err) {
					t.Errorf("expected transaction to be rolled back, got %v", err)
				}
				acct, err := tx.GetAccount(ctx, f.account.ID.Int64())
				if err != nil {
					return err
				}
				if acct.Balance.String() != "100.00" || acct.Version != f.account.Version {
					t.Errorf("account changed by rolled back unit: %+v", acct)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("verify: %v", err)
			}
		})
	}
}

func TestAccountVersionCheck(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			f := seed(t, s)
			err := s.WithinTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
				updated, err := tx.UpdateAccount(ctx, f.account)
				if err != nil {
					return err
				}
				if updated.Version != f.account.Version+1 {
					t.Errorf("expected version %d, got %d", f.account.Version+1, updated.Version)
				}
				_, err = tx.UpdateAccount(ctx, f.account)
				return err
			})
			if !errors.Is(err, core.ErrConcurrentUpdate) || !core.IsConsistency(err) {
				t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
			}

			err = s.WithinTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
				missing := f.account
				missing.ID = core.Persisted(9999)
				_, err := tx.UpdateAccount(ctx, missing)
				return err
			})
			if !core.IsNotFound(err) {
				t.Fatalf("expected not found, got %v", err)
			}
		})
	}
}

func TestUniqueConstraints(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			f := seed(t, s)
			ctx := context.Background()

			err := s.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
				_, err := tx.CreateCategory(ctx, core.Category{UserID: f.user.ID.Int64(), Name: "Groceries"})
				return err
			})
			if !errors.Is(err, core.ErrDuplicateName) || !core.IsValidation(err) {
				t.Fatalf("expected duplicate name, got %v", err)
			}

			err = s.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
				_, err := tx.CreateUser(ctx, core.User{Username: "ada@example.com", FullName: "Someone Else"})
				return err
			})
			if !errors.Is(err, core.ErrDuplicateUsername) {
				t.Fatalf("expected duplicate username, got %v", err)
			}

			err = s.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
				tpl := f.tx("10")
				tpl.Recurring = true
				tpl.Frequency = core.Weekly
				created, err := tx.CreateTransaction(ctx, tpl)
				if err != nil {
					return err
				}
				inst := f.tx("10")
				inst.TemplateID = created.ID.Int64()
				inst.Date = core.NewDate(2024, 3, 9)
				if _, err := tx.CreateTransaction(ctx, inst); err != nil {
					return err
				}
				dates, err := tx.MaterializedDates(ctx, created.ID.Int64())
				if err != nil {
					return err
				}
				if len(dates) != 1 || dates[0] != inst.Date {
					t.Errorf("unexpected materialized dates %v", dates)
				}
				_, err = tx.CreateTransaction(ctx, inst)
				return err
			})
			if !errors.Is(err, core.ErrDuplicateInstance) {
				t.Fatalf("expected duplicate instance, got %v", err)
			}
		})
	}
}

func TestDeleteCascades(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			f := seed(t, s)
			ctx := context.Background()
			var txID, goalID int64
			err := s.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
				created, err := tx.CreateTransaction(ctx, f.tx("1"))
				if err != nil {
					return err
				}
				txID = created.ID.Int64()
				g, err := tx.CreateGoal(ctx, core.Goal{UserID: f.user.ID.Int64(), Name: "Bike", Target: core.MustParseMoney("300"), Current: core.ZeroMoney()})
				goalID = g.ID.Int64()
				return err
			})
			if err != nil {
				t.Fatalf("setup: %v", err)
			}

			err = s.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
				if err := tx.DeleteCategory(ctx, f.category.ID.Int64()); err != nil {
					return err
				}
				if _, err := tx.GetTransaction(ctx, txID); !core.IsNotFound(err) {
					t.Errorf("category delete must remove its transactions, got %v", err)
				}
				if err := tx.DeleteUser(ctx, f.user.ID.Int64()); err != nil {
					return err
				}
				if _, err := tx.GetAccount(ctx, f.account.ID.Int64()); !core.IsNotFound(err) {
					t.Errorf("user delete must remove accounts, got %v", err)
				}
				if _, err := tx.GetGoal(ctx, goalID); !core.IsNotFound(err) {
					t.Errorf("user delete must remove goals, got %v", err)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("delete: %v", err)
			}
		})
	}
}

func TestAdjustmentsAndGoals(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			f := seed(t, s)
			err := s.WithinTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
				adj, err := tx.CreateAdjustment(ctx, core.Adjustment{
					AccountID: f.account.ID.Int64(),
					Previous:  core.MustParseMoney("100"),
					New:       core.MustParseMoney("90.10"),
					Reason:    "bank fee",
				})
				if err != nil {
					return err
				}
				list, err := tx.ListAdjustments(ctx, f.account.ID.Int64())
				if err != nil {
					return err
				}
				if len(list) != 1 || !list[0].ID.Same(adj.ID) || list[0].New.String() != "90.10" {
					t.Errorf("unexpected adjustments %+v", list)
				}

				g, err := tx.CreateGoal(ctx, core.Goal{
					UserID:  f.user.ID.Int64(),
					Name:    "Bike",
					Target:  core.MustParseMoney("300"),
					Current: core.ZeroMoney(),
					EndDate: core.NewDate(2030, 6, 1),
				})
				if err != nil {
					return err
				}
				g.Current = core.MustParseMoney("42.50")
				if err := tx.UpdateGoal(ctx, g); err != nil {
					return err
				}
				stored, err := tx.GetGoal(ctx, g.ID.Int64())
				if err != nil {
					return err
				}
				if stored.Current.String() != "42.50" || stored.EndDate != core.NewDate(2030, 6, 1) {
					t.Errorf("unexpected goal %+v", stored)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("unit of work: %v", err)
			}
		})
	}
}

func TestSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	repo, err := storage.NewSQLiteRepository(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	repo.Close()

	version, dirty, err := storage.SchemaVersion(path)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if version != 1 || dirty {
		t.Fatalf("expected clean version 1, got %d dirty=%v", version, dirty)
	}
}
