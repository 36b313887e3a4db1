// Package corebanking mirrors ledger transfers to a Fineract compatible core banking system.
package corebanking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-petr/mobile-bank/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	apiPrefix  = "/fineract-provider/api/v1"
	dateFormat = "dd MMMM yyyy"
	goDate     = "02 January 2006"

	commandDeposit    = "deposit"
	commandWithdrawal = "withdrawal"
)

// Config holds connection settings of the core banking API.
type Config struct {
	BaseURL  string
	Tenant   string
	Username string
	Password string
	Timeout  time.Duration
}

// APIError is a non-2xx answer of the core banking API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("core banking: status %d: %s", e.Status, e.Message)
}

// Client talks to the savings account API.
type Client struct {
	baseURL  string
	tenant   string
	username string
	password string
	http     *http.Client
	now      func() time.Time
}

// New returns Client for cfg.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		tenant:   cfg.Tenant,
		username: cfg.Username,
		password: cfg.Password,
		http:     &http.Client{Timeout: timeout},
		now:      time.Now,
	}
}

type transactionRequest struct {
	TransactionDate   string      `json:"transactionDate"`
	TransactionAmount json.Number `json:"transactionAmount"`
	DateFormat        string      `json:"dateFormat"`
	Locale            string      `json:"locale"`
}

type savingsAccount struct {
	ID             int64           `json:"id"`
	AccountNo      string          `json:"accountNo"`
	AccountBalance decimal.Decimal `json:"accountBalance"`
	Summary        struct {
		AccountBalance decimal.Decimal `json:"accountBalance"`
	} `json:"summary"`
}

type errorResponse struct {
	DefaultUserMessage string `json:"defaultUserMessage"`
}

// Balance returns the current balance of a savings account.
func (c *Client) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var acc savingsAccount

	if err := c.do(ctx, http.MethodGet, "/savingsaccounts/"+url.PathEscape(accountID), nil, nil, &acc); err != nil {
		return decimal.Decimal{}, err
	}

	if acc.AccountBalance.IsZero() {
		return acc.Summary.AccountBalance, nil
	}

	return acc.AccountBalance, nil
}

// Deposit credits a savings account.
func (c *Client) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) error {
	return c.transaction(ctx, accountID, commandDeposit, amount)
}

// Withdraw debits a savings account.
func (c *Client) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal) error {
	return c.transaction(ctx, accountID, commandWithdrawal, amount)
}

// Transfer withdraws from one account and deposits to the other, then reads both balances.
// When the deposit fails the withdrawal is put back.
func (c *Client) Transfer(ctx context.Context, fromAccountID, toAccountID string, amount decimal.Decimal) (domain.MirrorBalances, error) {
	if err := c.Withdraw(ctx, fromAccountID, amount); err != nil {
		return domain.MirrorBalances{}, err
	}

	if err := c.Deposit(ctx, toAccountID, amount); err != nil {
		if rerr := c.Deposit(ctx, fromAccountID, amount); rerr != nil {
			zerolog.Ctx(ctx).Error().Err(rerr).
				Str("account", fromAccountID).Str("amount", amount.String()).
				Msg("core banking withdrawal could not be put back")
		}

		return domain.MirrorBalances{}, err
	}

	from, err := c.Balance(ctx, fromAccountID)
	if err != nil {
		return domain.MirrorBalances{}, err
	}

	to, err := c.Balance(ctx, toAccountID)
	if err != nil {
		return domain.MirrorBalances{}, err
	}

	return domain.MirrorBalances{From: from, To: to}, nil
}

// Reverse undoes a Transfer with the same arguments.
func (c *Client) Reverse(ctx context.Context, fromAccountID, toAccountID string, amount decimal.Decimal) error {
	if err := c.Withdraw(ctx, toAccountID, amount); err != nil {
		return err
	}

	return c.Deposit(ctx, fromAccountID, amount)
}

func (c *Client) transaction(ctx context.Context, accountID, command string, amount decimal.Decimal) error {
	body := transactionRequest{
		TransactionDate:   c.now().Format(goDate),
		TransactionAmount: json.Number(amount.String()),
		DateFormat:        dateFormat,
		Locale:            "en",
	}

	path := "/savingsaccounts/" + url.PathEscape(accountID) + "/transactions"

	return c.do(ctx, http.MethodPost, path, url.Values{"command": {command}}, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	if query == nil {
		query = url.Values{}
	}

	query.Set("tenantId", c.tenant)

	var body io.Reader

	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}

		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path+"?"+query.Encode(), body)
	if err != nil {
		return err
	}

	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Fineract-Platform-TenantId", c.tenant)

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)

		if e.DefaultUserMessage == "" {
			e.DefaultUserMessage = http.StatusText(resp.StatusCode)
		}

		apiErr := &APIError{Status: resp.StatusCode, Message: e.DefaultUserMessage}
		if resp.StatusCode >= http.StatusInternalServerError {
			return errors.Join(domain.ErrUnavailable, apiErr)
		}

		return apiErr
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
