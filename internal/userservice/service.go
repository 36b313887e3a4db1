// Package userservice manages business logic layer of users.
package userservice

import (
	"context"
	"errors"
	"time"

	"github.com/go-petr/mobile-bank/internal/domain"
	"github.com/go-petr/mobile-bank/pkg/currencypkg"
	"github.com/go-petr/mobile-bank/pkg/errorspkg"
	"github.com/go-petr/mobile-bank/pkg/passpkg"
	"github.com/go-petr/mobile-bank/pkg/tokenpkg"
	"github.com/rs/zerolog"
)

// Repo provides data access layer interface needed by user service layer.
//
//go:generate mockgen -source service.go -destination service_mock.go -package userservice
type Repo interface {
	Create(ctx context.Context, arg domain.CreateUserParams) (domain.User, error)
	Get(ctx context.Context, username string) (domain.User, error)
}

// AccountService opens and finds the account a user works with.
type AccountService interface {
	Create(ctx context.Context, owner, currency, externalID string) (domain.Account, error)
	GetByOwner(ctx context.Context, owner string) (domain.Account, error)
}

// Service facilitates user service layer logic.
type Service struct {
	repo          Repo
	accounts      AccountService
	tokenMaker    tokenpkg.Maker
	tokenDuration time.Duration
}

// New return user service struct to manage user bussines logic.
func New(ur Repo, as AccountService, tm tokenpkg.Maker, tokenDuration time.Duration) *Service {
	return &Service{
		repo:          ur,
		accounts:      as,
		tokenMaker:    tm,
		tokenDuration: tokenDuration,
	}
}

// NewUserWihtoutPassword returns user with removed sensitive data.
func NewUserWihtoutPassword(u domain.User) domain.UserWihtoutPassword {
	return domain.UserWihtoutPassword{
		Username:  u.Username,
		FullName:  u.FullName,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

// Signup registers the user, opens the first account and issues an access token.
func (s *Service) Signup(ctx context.Context, arg domain.SignupParams) (domain.Session, error) {
	l := zerolog.Ctx(ctx)

	hashedPassword, err := passpkg.Hash(arg.Password)
	if err != nil {
		l.Error().Err(err).Send()
		return domain.Session{}, errorspkg.ErrInternal
	}

	user, err := s.repo.Create(ctx, domain.CreateUserParams{
		Username:       arg.Username,
		HashedPassword: hashedPassword,
		FullName:       arg.FullName,
		Email:          arg.Email,
	})
	if err != nil {
		return domain.Session{}, err
	}

	currency := arg.Currency
	if currency == "" {
		currency = currencypkg.USD
	}

	// The user already exists at this point. Login opens the account if this fails.
	account, err := s.accounts.Create(ctx, user.Username, currency, arg.ExternalID)
	if err != nil {
		l.Error().Err(err).Str("username", user.Username).Msg("opening first account failed")
		return domain.Session{}, err
	}

	return s.session(ctx, user, account)
}

// Login checks the password and issues an access token bound to the user's account.
func (s *Service) Login(ctx context.Context, username, password string) (domain.Session, error) {
	l := zerolog.Ctx(ctx)

	user, err := s.repo.Get(ctx, username)
	if err != nil {
		return domain.Session{}, err
	}

	if err := passpkg.Check(password, user.HashedPassword); err != nil {
		l.Warn().Err(err).Send()
		return domain.Session{}, domain.ErrWrongPassword
	}

	account, err := s.accounts.GetByOwner(ctx, username)
	if errors.Is(err, domain.ErrAccountNotFound) {
		account, err = s.accounts.Create(ctx, username, currencypkg.USD, "")
	}

	if err != nil {
		return domain.Session{}, err
	}

	return s.session(ctx, user, account)
}

func (s *Service) session(ctx context.Context, user domain.User, account domain.Account) (domain.Session, error) {
	token, payload, err := s.tokenMaker.CreateToken(user.Username, account.ID, s.tokenDuration)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Send()
		return domain.Session{}, errorspkg.ErrInternal
	}

	return domain.Session{
		User:                 NewUserWihtoutPassword(user),
		Account:              account,
		AccessToken:          token,
		AccessTokenExpiresAt: payload.ExpiredAt,
	}, nil
}
