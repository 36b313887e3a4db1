// Package transferservice manages business logic layer of transfers.
//
// Balances are changed with per-account compare-and-set instead of a database transaction.
// A multi-leg movement that fails halfway is undone with compensating writes.
package transferservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-petr/mobile-bank/internal/domain"
	"github.com/go-petr/mobile-bank/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// AccountStore provides account access needed by transfer service layer.
//
//go:generate mockgen -source service.go -destination service_mock.go -package transferservice
type AccountStore interface {
	Get(ctx context.Context, id int64) (domain.Account, error)
	CompareAndUpdate(ctx context.Context, id, expectedVersion int64, newBalance decimal.Decimal) (domain.Account, error)
}

// TransferLog provides the transaction log needed by transfer service layer.
type TransferLog interface {
	Append(ctx context.Context, rec domain.TransferRecord) (domain.TransferRecord, error)
	GetByIdempotencyKey(ctx context.Context, key string) (domain.TransferRecord, error)
	ListForAccount(ctx context.Context, accountID int64, limit, offset int32) ([]domain.TransferRecord, error)
}

// Publisher receives an event for every committed record.
type Publisher interface {
	Publish(ctx context.Context, event domain.LedgerEvent) error
}

// Mirror pushes committed movements of linked accounts to an external core banking system.
type Mirror interface {
	Transfer(ctx context.Context, fromExternalID, toExternalID string, amount decimal.Decimal) (domain.MirrorBalances, error)
	Reverse(ctx context.Context, fromExternalID, toExternalID string, amount decimal.Decimal) error
	Deposit(ctx context.Context, externalID string, amount decimal.Decimal) error
	Withdraw(ctx context.Context, externalID string, amount decimal.Decimal) error
	Balance(ctx context.Context, externalID string) (decimal.Decimal, error)
}

// Defaults used when the matching option is not given.
const (
	DefaultMaxAttempts        = 5
	DefaultStoreRetryAttempts = 3
	DefaultStoreRetryInterval = 50 * time.Millisecond

	compensationAttempts = 16
)

// Service facilitates transfer service layer logic.
type Service struct {
	accounts  AccountStore
	log       TransferLog
	publisher Publisher
	mirror    Mirror

	maxAttempts   int
	retryAttempts int
	retryInterval time.Duration
	now           func() time.Time

	group singleflight.Group
}

// Option configures Service.
type Option func(*Service)

// WithPublisher sets the event publisher.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMirror enables pushing movements of linked accounts to a core banking system.
func WithMirror(m Mirror) Option {
	return func(s *Service) { s.mirror = m }
}

// WithMaxAttempts bounds the number of optimistic attempts per operation.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithStoreRetry configures retries of store reads failing with domain.ErrUnavailable.
func WithStoreRetry(attempts int, interval time.Duration) Option {
	return func(s *Service) {
		if attempts >= 0 {
			s.retryAttempts = attempts
		}

		if interval > 0 {
			s.retryInterval = interval
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New return transfer service struct to manage transfer bussines logic.
func New(accounts AccountStore, log TransferLog, opts ...Option) *Service {
	s := &Service{
		accounts:      accounts,
		log:           log,
		maxAttempts:   DefaultMaxAttempts,
		retryAttempts: DefaultStoreRetryAttempts,
		retryInterval: DefaultStoreRetryInterval,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Transfer moves money between two ledger accounts owned by possibly different users.
//
// The caller must own the source account. Repeating a request with the same idempotency key
// returns the original record instead of moving money again.
func (s *Service) Transfer(ctx context.Context, req domain.TransferRequest) (domain.TransferResult, error) {
	if req.FromAccountID == req.ToAccountID {
		return s.reject(ctx, domain.KindTransfer, domain.ErrSelfTransfer)
	}

	return s.run(ctx, movement{
		kind:        domain.KindTransfer,
		from:        req.FromAccountID,
		to:          req.ToAccountID,
		owner:       req.Owner,
		amount:      req.Amount,
		description: req.Description,
		key:         req.IdempotencyKey,
	})
}

// Deposit credits money coming from outside the ledger.
func (s *Service) Deposit(ctx context.Context, req domain.DepositRequest) (domain.TransferResult, error) {
	return s.run(ctx, movement{
		kind:        domain.KindDeposit,
		to:          req.AccountID,
		owner:       req.Owner,
		amount:      req.Amount,
		description: req.Description,
		key:         req.IdempotencyKey,
	})
}

// Withdraw debits money leaving the ledger, such as a bill payment.
func (s *Service) Withdraw(ctx context.Context, req domain.WithdrawalRequest) (domain.TransferResult, error) {
	return s.run(ctx, movement{
		kind:        domain.KindWithdrawal,
		from:        req.AccountID,
		owner:       req.Owner,
		amount:      req.Amount,
		description: req.Description,
		key:         req.IdempotencyKey,
	})
}

// History lists records of an account owned by owner, newest first.
func (s *Service) History(ctx context.Context, owner string, accountID int64, pageSize, pageID int32) ([]domain.TransferRecord, error) {
	if pageSize < 1 || pageID < 1 {
		return nil, domain.ErrInvalidRequest
	}

	var acc domain.Account

	err := s.retry(ctx, func() (err error) {
		acc, err = s.accounts.Get(ctx, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if acc.Owner != owner {
		return nil, domain.ErrInvalidOwner
	}

	var records []domain.TransferRecord

	err = s.retry(ctx, func() (err error) {
		records, err = s.log.ListForAccount(ctx, accountID, pageSize, (pageID-1)*pageSize)
		return err
	})

	return records, err
}

// Reconcile aligns the local balance of an owned, linked account with core banking.
//
// The difference is booked as an adjustment record. A balance that moves while the
// remote one is read makes the call fail with domain.ErrConflict.
func (s *Service) Reconcile(ctx context.Context, owner string, accountID int64) (domain.ReconcileResult, error) {
	if s.mirror == nil {
		return domain.ReconcileResult{}, domain.ErrMirrorDisabled
	}

	var acc domain.Account

	err := s.retry(ctx, func() (err error) {
		acc, err = s.accounts.Get(ctx, accountID)
		return err
	})
	if err != nil {
		return domain.ReconcileResult{}, err
	}

	switch {
	case acc.Owner != owner:
		return domain.ReconcileResult{}, domain.ErrInvalidOwner
	case acc.ExternalID == "":
		return domain.ReconcileResult{}, domain.ErrAccountNotLinked
	}

	l := zerolog.Ctx(ctx).With().Int64("account_id", acc.ID).Str("external_id", acc.ExternalID).Logger()

	remote, err := s.mirror.Balance(ctx, acc.ExternalID)
	if err != nil {
		l.Error().Err(err).Msg("core banking balance read failed")
		return domain.ReconcileResult{}, domain.ErrUnavailable
	}

	diff := remote.Sub(acc.Balance).Round(domain.MaxAmountScale)
	res := domain.ReconcileResult{Account: acc, Remote: remote, Adjustment: diff}

	if diff.IsZero() {
		return res, nil
	}

	m := movement{
		kind:        domain.KindAdjustment,
		owner:       owner,
		amount:      diff.Abs(),
		description: "core banking reconcile",
		key:         fmt.Sprintf("reconcile-%d-%d", acc.ID, acc.Version),
		version:     acc.Version,
	}

	if diff.IsPositive() {
		m.to = acc.ID
	} else {
		m.from = acc.ID
	}

	out, err := s.run(ctx, m)
	if err != nil {
		return domain.ReconcileResult{}, err
	}

	l.Info().Str("adjustment", diff.String()).Msg("balance reconciled with core banking")

	res.Record = &out.Record
	res.Account.Balance = out.ToBalance

	if m.from != 0 {
		res.Account.Balance = out.FromBalance
	}

	return res, nil
}

// movement is the common shape of every ledger operation.
// A zero account id stands for the world outside the ledger.
type movement struct {
	kind        domain.Kind
	from, to    int64
	owner       string
	amount      decimal.Decimal
	description string
	key         string
	// version pins the account version the amount was computed from; zero disables the check.
	version int64
}

func (m movement) validate() error {
	if err := domain.ValidateAmount(m.amount); err != nil {
		return err
	}

	switch {
	case m.key == "":
		return domain.ErrMissingIdempotencyKey
	case len(m.key) > domain.MaxIdempotencyKeyLen:
		return domain.ErrIdempotencyKeyTooLong
	case m.from == 0 && m.to == 0:
		return domain.ErrInvalidRequest
	}

	return nil
}

func (m movement) matches(rec domain.TransferRecord) bool {
	return rec.SamePayload(m.kind, m.from, m.to, m.amount)
}

func (s *Service) reject(ctx context.Context, kind domain.Kind, err error) (domain.TransferResult, error) {
	zerolog.Ctx(ctx).Info().Err(err).Str("kind", string(kind)).Msg("ledger request rejected")
	metrics.Operations.WithLabelValues(string(kind), metrics.OutcomeRejected).Inc()

	return domain.TransferResult{}, err
}

func (s *Service) run(ctx context.Context, m movement) (domain.TransferResult, error) {
	if err := m.validate(); err != nil {
		return s.reject(ctx, m.kind, err)
	}

	if err := ctx.Err(); err != nil {
		return domain.TransferResult{}, err
	}

	// Concurrent calls with the same key in this process share one execution,
	// so no single caller may cancel it.
	shared := context.WithoutCancel(ctx)

	v, err, _ := s.group.Do(m.key, func() (interface{}, error) {
		return s.execute(shared, m)
	})

	res, _ := v.(domain.TransferResult)

	if err == nil && !m.matches(res.Record) {
		err = domain.ErrIdempotencyKeyReused
	}

	switch {
	case err == nil && res.Replayed:
		metrics.Operations.WithLabelValues(string(m.kind), metrics.OutcomeReplayed).Inc()
	case err == nil:
		metrics.Operations.WithLabelValues(string(m.kind), metrics.OutcomeCommitted).Inc()
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInvalidOwner), errors.Is(err, domain.ErrAccountNotFound):
		metrics.Operations.WithLabelValues(string(m.kind), metrics.OutcomeRejected).Inc()
	default:
		metrics.Operations.WithLabelValues(string(m.kind), metrics.OutcomeFailed).Inc()
	}

	if err != nil {
		return domain.TransferResult{}, err
	}

	return res, nil
}

func (s *Service) execute(ctx context.Context, m movement) (domain.TransferResult, error) {
	l := zerolog.Ctx(ctx).With().Str("idempotency_key", m.key).Str("kind", string(m.kind)).Logger()
	ctx = l.WithContext(ctx)

	var existing domain.TransferRecord

	err := s.retry(ctx, func() (err error) {
		existing, err = s.log.GetByIdempotencyKey(ctx, m.key)
		return err
	})

	switch {
	case err == nil:
		if !m.matches(existing) {
			return domain.TransferResult{}, domain.ErrIdempotencyKeyReused
		}

		return s.replay(ctx, existing)
	case !errors.Is(err, domain.ErrTransferNotFound):
		return domain.TransferResult{}, err
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		res, err := s.attempt(ctx, m)
		if errors.Is(err, domain.ErrVersionConflict) {
			metrics.VersionConflicts.Inc()
			l.Debug().Int("attempt", attempt).Msg("version conflict, retrying")

			continue
		}

		return res, err
	}

	l.Warn().Int("attempts", s.maxAttempts).Msg("gave up after repeated version conflicts")

	return domain.TransferResult{}, domain.ErrConflict
}

// leg is a single balance change.
type leg struct {
	account domain.Account
	delta   decimal.Decimal
}

func (s *Service) attempt(ctx context.Context, m movement) (domain.TransferResult, error) {
	from, to, err := s.load(ctx, m)
	if err != nil {
		return domain.TransferResult{}, err
	}

	owned, currency := to, to.Currency
	if m.from != 0 {
		owned, currency = from, from.Currency
	}

	if owned.Owner != m.owner {
		return domain.TransferResult{}, domain.ErrInvalidOwner
	}

	if m.version != 0 && owned.Version != m.version {
		return domain.TransferResult{}, domain.ErrConflict
	}

	if m.from != 0 && m.to != 0 && from.Currency != to.Currency {
		return domain.TransferResult{}, domain.ErrCurrencyMismatch
	}

	if m.from != 0 && from.Balance.LessThan(m.amount) {
		return domain.TransferResult{}, domain.ErrInsufficientFunds
	}

	// The debit goes first so that undoing a partial movement only ever credits.
	var legs []leg

	if m.from != 0 {
		legs = append(legs, leg{account: from, delta: m.amount.Neg()})
	}

	if m.to != 0 {
		legs = append(legs, leg{account: to, delta: m.amount})
	}

	applied, err := s.apply(ctx, legs)
	if err != nil {
		return domain.TransferResult{}, err
	}

	for _, a := range applied {
		switch a.ID {
		case m.from:
			from = a
		case m.to:
			to = a
		}
	}

	rec := domain.TransferRecord{
		Kind:           m.kind,
		FromAccountID:  m.from,
		ToAccountID:    m.to,
		Amount:         m.amount,
		Currency:       currency,
		Description:    m.description,
		Status:         domain.StatusCompleted,
		IdempotencyKey: m.key,
	}

	return s.commit(ctx, rec, from, to, legs)
}

func (s *Service) load(ctx context.Context, m movement) (from, to domain.Account, err error) {
	get := func(id int64) (acc domain.Account, err error) {
		err = s.retry(ctx, func() (err error) {
			acc, err = s.accounts.Get(ctx, id)
			return err
		})

		return acc, err
	}

	if m.from != 0 {
		if from, err = get(m.from); err != nil {
			return from, to, err
		}
	}

	if m.to != 0 {
		if to, err = get(m.to); err != nil {
			return from, to, err
		}
	}

	return from, to, nil
}

// apply performs the legs in order and undoes the already applied ones if a later leg fails.
func (s *Service) apply(ctx context.Context, legs []leg) ([]domain.Account, error) {
	applied := make([]domain.Account, 0, len(legs))

	for i, lg := range legs {
		acc, err := s.accounts.CompareAndUpdate(ctx, lg.account.ID, lg.account.Version, lg.account.Balance.Add(lg.delta))
		if err != nil {
			s.compensate(ctx, legs[:i])
			return nil, err
		}

		applied = append(applied, acc)
	}

	return applied, nil
}

func (s *Service) commit(ctx context.Context, rec domain.TransferRecord, from, to domain.Account, legs []leg) (domain.TransferResult, error) {
	l := zerolog.Ctx(ctx)

	if err := s.push(ctx, rec, from, to); err != nil {
		s.compensate(ctx, legs)
		return domain.TransferResult{}, err
	}

	rec.ID = uuid.New()
	rec.CreatedAt = s.now().UTC()

	var appended domain.TransferRecord

	err := s.retry(ctx, func() (err error) {
		appended, err = s.log.Append(ctx, rec)
		return err
	})

	if errors.Is(err, domain.ErrDuplicateKey) {
		return s.resolveDuplicate(ctx, rec, from, to, legs)
	}

	if err != nil {
		l.Error().Err(err).Msg("appending record failed")
		s.unpush(ctx, rec, from, to)
		s.compensate(ctx, legs)

		return domain.TransferResult{}, err
	}

	res := domain.TransferResult{
		Record:      appended,
		FromBalance: from.Balance,
		ToBalance:   to.Balance,
	}

	s.publish(ctx, res, from, to)

	return res, nil
}

// push mirrors the movement to core banking when the accounts involved are linked.
func (s *Service) push(ctx context.Context, rec domain.TransferRecord, from, to domain.Account) error {
	if s.mirror == nil {
		return nil
	}

	l := zerolog.Ctx(ctx)

	switch {
	case rec.Kind == domain.KindTransfer && from.ExternalID != "" && to.ExternalID != "":
		mirrored, err := s.mirror.Transfer(ctx, from.ExternalID, to.ExternalID, rec.Amount)
		if err != nil {
			l.Error().Err(err).Msg("core banking transfer failed")
			return domain.ErrUnavailable
		}

		if !mirrored.From.Equal(from.Balance) || !mirrored.To.Equal(to.Balance) {
			l.Error().
				Str("local_from", from.Balance.String()).Str("mirror_from", mirrored.From.String()).
				Str("local_to", to.Balance.String()).Str("mirror_to", mirrored.To.String()).
				Msg("core banking balances diverged")

			if err := s.mirror.Reverse(ctx, from.ExternalID, to.ExternalID, rec.Amount); err != nil {
				l.Error().Err(err).Msg("core banking reversal failed")
			}

			return domain.ErrConflict
		}
	case rec.Kind == domain.KindDeposit && to.ExternalID != "":
		if err := s.mirror.Deposit(ctx, to.ExternalID, rec.Amount); err != nil {
			l.Error().Err(err).Msg("core banking deposit failed")
			return domain.ErrUnavailable
		}
	case rec.Kind == domain.KindWithdrawal && from.ExternalID != "":
		if err := s.mirror.Withdraw(ctx, from.ExternalID, rec.Amount); err != nil {
			l.Error().Err(err).Msg("core banking withdrawal failed")
			return domain.ErrUnavailable
		}
	}

	return nil
}

// unpush undoes a pushed movement whose record could not be appended.
func (s *Service) unpush(ctx context.Context, rec domain.TransferRecord, from, to domain.Account) {
	if s.mirror == nil {
		return
	}

	var err error

	switch {
	case rec.Kind == domain.KindTransfer && from.ExternalID != "" && to.ExternalID != "":
		err = s.mirror.Reverse(ctx, from.ExternalID, to.ExternalID, rec.Amount)
	case rec.Kind == domain.KindDeposit && to.ExternalID != "":
		err = s.mirror.Withdraw(ctx, to.ExternalID, rec.Amount)
	case rec.Kind == domain.KindWithdrawal && from.ExternalID != "":
		err = s.mirror.Deposit(ctx, from.ExternalID, rec.Amount)
	}

	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("idempotency_key", rec.IdempotencyKey).Msg("core banking undo failed, manual reconciliation needed")
	}
}

// resolveDuplicate handles a lost race on the idempotency key.
func (s *Service) resolveDuplicate(ctx context.Context, rec domain.TransferRecord, from, to domain.Account, legs []leg) (domain.TransferResult, error) {
	var existing domain.TransferRecord

	err := s.retry(ctx, func() (err error) {
		existing, err = s.log.GetByIdempotencyKey(ctx, rec.IdempotencyKey)
		return err
	})

	// A retried append whose first try did land.
	if err == nil && existing.ID == rec.ID {
		curFrom, curTo, lerr := s.currentBalances(ctx, existing)
		if lerr != nil {
			return domain.TransferResult{}, lerr
		}

		res := domain.TransferResult{Record: existing, FromBalance: curFrom.Balance, ToBalance: curTo.Balance}
		s.publish(ctx, res, curFrom, curTo)

		return res, nil
	}

	s.unpush(ctx, rec, from, to)
	s.compensate(ctx, legs)

	if err != nil {
		return domain.TransferResult{}, err
	}

	if !existing.SamePayload(rec.Kind, rec.FromAccountID, rec.ToAccountID, rec.Amount) {
		return domain.TransferResult{}, domain.ErrIdempotencyKeyReused
	}

	return s.replay(ctx, existing)
}

func (s *Service) replay(ctx context.Context, rec domain.TransferRecord) (domain.TransferResult, error) {
	from, to, err := s.currentBalances(ctx, rec)
	if err != nil {
		return domain.TransferResult{}, err
	}

	return domain.TransferResult{
		Record:      rec,
		FromBalance: from.Balance,
		ToBalance:   to.Balance,
		Replayed:    true,
	}, nil
}

func (s *Service) currentBalances(ctx context.Context, rec domain.TransferRecord) (from, to domain.Account, err error) {
	return s.load(ctx, movement{from: rec.FromAccountID, to: rec.ToAccountID})
}

// compensate reverses already applied legs. It re-reads the account on every try
// because other operations may have committed in between.
func (s *Service) compensate(ctx context.Context, legs []leg) {
	l := zerolog.Ctx(ctx)

	for i := len(legs) - 1; i >= 0; i-- {
		id, delta := legs[i].account.ID, legs[i].delta.Neg()

		if err := s.compensateLeg(ctx, id, delta); err != nil {
			metrics.Compensations.WithLabelValues("failed").Inc()
			l.Error().Err(err).Int64("account_id", id).Str("delta", delta.String()).Msg("compensation failed, manual reconciliation needed")

			continue
		}

		metrics.Compensations.WithLabelValues("ok").Inc()
	}
}

func (s *Service) compensateLeg(ctx context.Context, id int64, delta decimal.Decimal) error {
	var err error

	for i := 0; i < compensationAttempts; i++ {
		var acc domain.Account

		err = s.retry(ctx, func() (err error) {
			acc, err = s.accounts.Get(ctx, id)
			return err
		})
		if err != nil {
			return err
		}

		_, err = s.accounts.CompareAndUpdate(ctx, id, acc.Version, acc.Balance.Add(delta))
		if !errors.Is(err, domain.ErrVersionConflict) && !errors.Is(err, domain.ErrUnavailable) {
			return err
		}
	}

	return err
}

func (s *Service) publish(ctx context.Context, res domain.TransferResult, from, to domain.Account) {
	if s.publisher == nil {
		return
	}

	event := domain.LedgerEvent{
		RecordID:      res.Record.ID,
		Kind:          res.Record.Kind,
		FromAccountID: res.Record.FromAccountID,
		ToAccountID:   res.Record.ToAccountID,
		FromOwner:     from.Owner,
		ToOwner:       to.Owner,
		Amount:        res.Record.Amount,
		Currency:      res.Record.Currency,
		FromBalance:   res.FromBalance,
		ToBalance:     res.ToBalance,
		Description:   res.Record.Description,
		OccurredAt:    res.Record.CreatedAt,
	}

	if err := s.publisher.Publish(ctx, event); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("record_id", res.Record.ID.String()).Msg("publishing ledger event failed")
	}
}

// retry runs op again while it fails with domain.ErrUnavailable.
// Only calls that are safe to repeat go through it.
func (s *Service) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryInterval

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.retryAttempts)), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err != nil && !errors.Is(err, domain.ErrUnavailable) {
			return backoff.Permanent(err)
		}

		return err
	}, policy)
}
