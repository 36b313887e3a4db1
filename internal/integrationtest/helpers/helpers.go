// Package helpers provides random entities and database seeding for tests.
package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/go-petr/mobile-bank/internal/accountrepo"
	"github.com/go-petr/mobile-bank/internal/domain"
	"github.com/go-petr/mobile-bank/internal/userrepo"
	"github.com/go-petr/mobile-bank/pkg/currencypkg"
	"github.com/go-petr/mobile-bank/pkg/dbpkg"
	"github.com/go-petr/mobile-bank/pkg/passpkg"
	"github.com/go-petr/mobile-bank/pkg/randompkg"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RandomAccount returns random account owned by the given owner.
func RandomAccount(owner string) domain.Account {
	return domain.Account{
		ID:        randompkg.IntBetween(1, 100),
		Owner:     owner,
		Balance:   randompkg.MoneyAmountBetween(1000, 10_000),
		Currency:  randompkg.Currency(),
		Version:   randompkg.IntBetween(1, 10),
		CreatedAt: time.Now().Truncate(time.Second).UTC(),
	}
}

// RandomBiller returns random biller saved by the given owner.
func RandomBiller(owner string) domain.Biller {
	return domain.Biller{
		ID:            randompkg.IntBetween(1, 100),
		Owner:         owner,
		Name:          randompkg.String(8),
		AccountNumber: domain.MaskAccountNumber(randompkg.String(12)),
		CreatedAt:     time.Now().Truncate(time.Second).UTC(),
	}
}

// RandomUser returns random user with the hash of the given password.
func RandomUser(t *testing.T, password string) domain.User {
	t.Helper()

	hashedPassword, err := passpkg.Hash(password)
	if err != nil {
		t.Fatalf("passpkg.Hash(%v) returned error: %v", password, err)
	}

	return domain.User{
		Username:       randompkg.Owner(),
		HashedPassword: hashedPassword,
		FullName:       randompkg.String(10),
		Email:          randompkg.Email(),
		CreatedAt:      time.Now().Truncate(time.Second).UTC(),
	}
}

// RandomTransfer returns random completed transfer record between the accounts.
func RandomTransfer(from, to domain.Account) domain.TransferRecord {
	return domain.TransferRecord{
		ID:             uuid.New(),
		Kind:           domain.KindTransfer,
		FromAccountID:  from.ID,
		ToAccountID:    to.ID,
		Amount:         randompkg.MoneyAmountBetween(1, 100),
		Currency:       from.Currency,
		Status:         domain.StatusCompleted,
		IdempotencyKey: randompkg.IdempotencyKey(),
		CreatedAt:      time.Now().Truncate(time.Second).UTC(),
	}
}

// SeedUser creates random User inside a test transaction.
func SeedUser(t *testing.T, tx dbpkg.SQLInterface) domain.User {
	t.Helper()

	hashedPassword, err := passpkg.Hash(randompkg.String(32))
	if err != nil {
		t.Fatalf("passpkg.Hash(randompkg.String(32)) returned error: %v", err)
	}

	arg := domain.CreateUserParams{
		Username:       randompkg.Owner(),
		HashedPassword: hashedPassword,
		FullName:       randompkg.String(10),
		Email:          randompkg.Email(),
	}

	user, err := userrepo.NewRepoPGS(tx).Create(context.Background(), arg)
	if err != nil {
		t.Fatalf("userRepo.Create(context.Background(), %+v) returned error: %v", arg, err)
	}

	return user
}

// SeedAccount creates Account with the given balance inside a test transaction.
func SeedAccount(t *testing.T, tx dbpkg.SQLInterface, username, currency string, balance decimal.Decimal) domain.Account {
	t.Helper()

	arg := domain.CreateAccountParams{
		Owner:    username,
		Balance:  balance,
		Currency: currency,
	}

	account, err := accountrepo.NewRepoPGS(tx).Create(context.Background(), arg)
	if err != nil {
		t.Fatalf("accountRepo.Create(context.Background(), %+v) returned error: %v", arg, err)
	}

	return account
}

// SeedAccountWith1000USDBalance creates USD Account with 1000 USD on balance inside a test transaction.
func SeedAccountWith1000USDBalance(t *testing.T, tx dbpkg.SQLInterface, username string) domain.Account {
	t.Helper()

	return SeedAccount(t, tx, username, currencypkg.USD, decimal.NewFromInt(1000))
}
