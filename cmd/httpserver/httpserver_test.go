package httpserver_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/go-petr/mobile-bank/cmd/httpserver"
	"github.com/go-petr/mobile-bank/internal/domain"
	"github.com/go-petr/mobile-bank/internal/integrationtest"
	"github.com/go-petr/mobile-bank/pkg/currencypkg"
)

type envelope struct {
	AccessToken string          `json:"access_token"`
	Data        json.RawMessage `json:"data"`
	Error       string          `json:"error"`
}

type client struct {
	t     *testing.T
	base  string
	token string
}

func (c client) do(method, path string, body any, header ...string) (int, envelope) {
	c.t.Helper()

	var reader io.Reader = http.NoBody

	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(c.t, err)

		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	require.NoError(c.t, err)

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)

	defer resp.Body.Close()

	var env envelope
	if resp.Header.Get("Content-Type") != "" && strings.Contains(resp.Header.Get("Content-Type"), "json") {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&env))
	}

	return resp.StatusCode, env
}

type session struct {
	User struct {
		Username string `json:"username"`
	} `json:"user"`
	Account domain.Account `json:"account"`
}

type transferData struct {
	TransferID  uuid.UUID       `json:"transfer_id"`
	Status      domain.Status   `json:"status"`
	FromBalance decimal.Decimal `json:"from_balance"`
	ToBalance   decimal.Decimal `json:"to_balance"`
	Replayed    bool            `json:"replayed"`
}

type receiptData struct {
	TransferID uuid.UUID       `json:"transfer_id"`
	Balance    decimal.Decimal `json:"balance"`
	Replayed   bool            `json:"replayed"`
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))

	return v
}

func signup(t *testing.T, base, username, currency string) (client, domain.Account) {
	t.Helper()

	c := client{t: t, base: base}

	status, env := c.do(http.MethodPost, "/users", map[string]any{
		"username": username,
		"password": "secret123",
		"fullname": "Test " + username,
		"email":    username + "@example.com",
		"currency": currency,
	})
	require.Equal(t, http.StatusOK, status, env.Error)
	require.NotEmpty(t, env.AccessToken)

	s := decodeData[session](t, env)
	require.Equal(t, username, s.User.Username)
	require.Equal(t, currency, s.Account.Currency)
	require.True(t, s.Account.Balance.IsZero())

	c.token = env.AccessToken

	return c, s.Account
}

func deposit(t *testing.T, c client, amount, key string) {
	t.Helper()

	status, env := c.do(http.MethodPost, "/deposits", map[string]any{"amount": amount, "idempotency_key": key})
	require.Equal(t, http.StatusOK, status, env.Error)
}

func balance(t *testing.T, c client) decimal.Decimal {
	t.Helper()

	status, env := c.do(http.MethodGet, "/accounts/me", nil)
	require.Equal(t, http.StatusOK, status, env.Error)

	return decodeData[struct {
		Account domain.Account `json:"account"`
	}](t, env).Account.Balance
}

// subscribe opens the notification stream and returns the names and payloads of the events received.
func subscribe(t *testing.T, ctx context.Context, c client) <-chan [2]string {
	t.Helper()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/notifications", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	events := make(chan [2]string, 16)

	go func() {
		defer close(events)
		defer resp.Body.Close()

		var name string

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()

			switch {
			case strings.HasPrefix(line, "event:"):
				name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				events <- [2]string{name, strings.TrimSpace(strings.TrimPrefix(line, "data:"))}
			}
		}
	}()

	select {
	case ev := <-events:
		require.Equal(t, "ready", ev[0])
	case <-time.After(2 * time.Second):
		t.Fatal("notification stream did not open")
	}

	return events
}

func waitNotification(t *testing.T, events <-chan [2]string, name string) domain.Notification {
	t.Helper()

	timeout := time.After(2 * time.Second)

	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "stream ended")

			if ev[0] != name {
				continue
			}

			var n domain.Notification
			require.NoError(t, json.Unmarshal([]byte(ev[1]), &n))

			return n
		case <-timeout:
			t.Fatalf("no %s notification", name)
		}
	}
}

func TestLedgerEndToEnd(t *testing.T) {
	server := integrationtest.SetupMemoryServer(t)

	srv := httptest.NewServer(server)
	defer srv.Close()

	alice, aliceAccount := signup(t, srv.URL, "alice", currencypkg.USD)
	bob, bobAccount := signup(t, srv.URL, "bob", currencypkg.USD)
	carol, carolAccount := signup(t, srv.URL, "carol", currencypkg.EUR)

	deposit(t, alice, "100", "alice-topup")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bobEvents := subscribe(t, ctx, bob)

	transfer := map[string]any{
		"to_account_id":   bobAccount.ID,
		"amount":          "30",
		"description":     "dinner",
		"idempotency_key": "k-1",
	}

	status, env := alice.do(http.MethodPost, "/transfers", transfer)
	require.Equal(t, http.StatusOK, status, env.Error)

	first := decodeData[transferData](t, env)
	require.Equal(t, domain.StatusCompleted, first.Status)
	require.True(t, first.FromBalance.Equal(decimal.NewFromInt(70)))
	require.True(t, first.ToBalance.Equal(decimal.NewFromInt(30)))
	require.False(t, first.Replayed)

	n := waitNotification(t, bobEvents, domain.NotificationTransferReceived)
	require.Equal(t, first.TransferID, n.RecordID)
	require.True(t, n.Balance.Equal(decimal.NewFromInt(30)))

	// Replay returns the original record and moves nothing.
	status, env = alice.do(http.MethodPost, "/transfers", transfer)
	require.Equal(t, http.StatusOK, status, env.Error)

	replay := decodeData[transferData](t, env)
	require.Equal(t, first.TransferID, replay.TransferID)
	require.True(t, replay.Replayed)
	require.True(t, balance(t, alice).Equal(decimal.NewFromInt(70)))
	require.True(t, balance(t, bob).Equal(decimal.NewFromInt(30)))

	// Same key with a different amount.
	transfer["amount"] = "31"
	status, _ = alice.do(http.MethodPost, "/transfers", transfer)
	require.Equal(t, http.StatusBadRequest, status)

	// Header key works when the body has none.
	status, env = bob.do(http.MethodPost, "/transfers",
		map[string]any{"to_account_id": aliceAccount.ID, "amount": "5"},
		"Idempotency-Key", "bob-refund")
	require.Equal(t, http.StatusOK, status, env.Error)

	status, _ = bob.do(http.MethodPost, "/transfers", map[string]any{"to_account_id": aliceAccount.ID, "amount": "5"})
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = alice.do(http.MethodPost, "/transfers",
		map[string]any{"to_account_id": bobAccount.ID, "amount": "1000", "idempotency_key": "too-much"})
	require.Equal(t, http.StatusPaymentRequired, status)

	status, _ = alice.do(http.MethodPost, "/transfers",
		map[string]any{"to_account_id": aliceAccount.ID, "amount": "1", "idempotency_key": "self"})
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = alice.do(http.MethodPost, "/transfers",
		map[string]any{"to_account_id": carolAccount.ID + 1000, "amount": "1", "idempotency_key": "nowhere"})
	require.Equal(t, http.StatusNotFound, status)

	status, env = alice.do(http.MethodPost, "/transfers",
		map[string]any{"to_account_id": carolAccount.ID, "amount": "1", "idempotency_key": "to-carol"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, env.Error, "currency")

	// Bill payment goes to a saved biller only.
	status, env = bob.do(http.MethodPost, "/billers", map[string]any{"biller_name": "City Power", "account_number": "4000123456789"})
	require.Equal(t, http.StatusCreated, status, env.Error)

	power := decodeData[struct {
		Biller domain.Biller `json:"biller"`
	}](t, env).Biller
	require.Equal(t, "****6789", power.AccountNumber)

	status, env = bob.do(http.MethodGet, "/billers", nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	require.Len(t, decodeData[struct {
		Billers []domain.Biller `json:"billers"`
	}](t, env).Billers, 1)

	status, _ = bob.do(http.MethodPost, "/payments", map[string]any{"biller": "power", "amount": "20", "idempotency_key": "bill-0"})
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = alice.do(http.MethodPost, "/payments", map[string]any{"biller_id": power.ID, "amount": "20", "idempotency_key": "bill-a"})
	require.Equal(t, http.StatusForbidden, status)

	status, env = bob.do(http.MethodPost, "/payments", map[string]any{"biller_id": power.ID, "amount": "20", "idempotency_key": "bill-1"})
	require.Equal(t, http.StatusOK, status, env.Error)
	require.True(t, decodeData[receiptData](t, env).Balance.Equal(decimal.NewFromInt(5)))

	status, _ = bob.do(http.MethodPost, "/payments", map[string]any{"biller_id": power.ID, "amount": "20", "idempotency_key": "bill-2"})
	require.Equal(t, http.StatusPaymentRequired, status)

	status, _ = bob.do(http.MethodPost, "/payments", map[string]any{"biller_id": power.ID + 100, "amount": "1", "idempotency_key": "bill-3"})
	require.Equal(t, http.StatusNotFound, status)

	// Amounts finer than four decimal places never reach the ledger.
	status, _ = alice.do(http.MethodPost, "/transfers",
		map[string]any{"to_account_id": bobAccount.ID, "amount": "0.00005", "idempotency_key": "dust"})
	require.Equal(t, http.StatusBadRequest, status)

	// Without core banking there is nothing to sync with.
	status, _ = alice.do(http.MethodPost, fmt.Sprintf("/accounts/%d/sync", aliceAccount.ID), nil)
	require.Equal(t, http.StatusNotImplemented, status)

	// Accounts of other users are not visible.
	status, _ = bob.do(http.MethodGet, fmt.Sprintf("/accounts/%d", aliceAccount.ID), nil)
	require.Equal(t, http.StatusForbidden, status)

	status, _ = carol.do(http.MethodGet, "/accounts/me", nil)
	require.Equal(t, http.StatusOK, status)

	// History of alice: refund, transfer, deposit.
	status, env = alice.do(http.MethodGet, "/transfers?page_id=1&page_size=10", nil)
	require.Equal(t, http.StatusOK, status, env.Error)

	history := decodeData[struct {
		Transfers []domain.TransferRecord `json:"transfers"`
	}](t, env).Transfers
	require.Len(t, history, 3)
	require.Equal(t, domain.KindTransfer, history[0].Kind)
	require.Equal(t, first.TransferID, history[1].ID)
	require.Equal(t, domain.KindDeposit, history[2].Kind)

	require.True(t, balance(t, alice).Equal(decimal.NewFromInt(75)))
	require.True(t, balance(t, bob).Equal(decimal.NewFromInt(5)))

	// Login issues a token bound to the same account.
	status, env = client{t: t, base: srv.URL}.do(http.MethodPost, "/users/login",
		map[string]any{"username": "alice", "password": "secret123"})
	require.Equal(t, http.StatusOK, status, env.Error)
	require.Equal(t, aliceAccount.ID, decodeData[session](t, env).Account.ID)

	status, _ = client{t: t, base: srv.URL}.do(http.MethodPost, "/users/login",
		map[string]any{"username": "alice", "password": "wrong-password"})
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = client{t: t, base: srv.URL}.do(http.MethodPost, "/users",
		map[string]any{"username": "alice", "password": "secret123", "fullname": "x", "email": "other@example.com"})
	require.Equal(t, http.StatusConflict, status)

	status, _ = client{t: t, base: srv.URL}.do(http.MethodGet, "/transfers?page_id=1&page_size=10", nil)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestConcurrentTransfersOverHTTP(t *testing.T) {
	server := integrationtest.SetupMemoryServer(t)

	srv := httptest.NewServer(server)
	defer srv.Close()

	alice, aliceAccount := signup(t, srv.URL, "alice", currencypkg.USD)
	bob, bobAccount := signup(t, srv.URL, "bob", currencypkg.USD)

	deposit(t, alice, "500", "a")
	deposit(t, bob, "500", "b")

	const perUser = 20

	var wg sync.WaitGroup

	send := func(c client, to int64, prefix string) {
		defer wg.Done()

		for i := 0; i < perUser; i++ {
			status, env := c.do(http.MethodPost, "/transfers", map[string]any{
				"to_account_id":   to,
				"amount":          "7.25",
				"idempotency_key": fmt.Sprintf("%s-%d", prefix, i),
			})
			if status != http.StatusOK && status != http.StatusConflict {
				t.Errorf("unexpected status %d: %s", status, env.Error)
			}
		}
	}

	wg.Add(2)

	go send(alice, bobAccount.ID, "ab")
	go send(bob, aliceAccount.ID, "ba")

	wg.Wait()

	total := balance(t, alice).Add(balance(t, bob))
	require.True(t, total.Equal(decimal.NewFromInt(1000)), "total %s", total)
}

func TestHealthAndMetrics(t *testing.T) {
	server := integrationtest.SetupMemoryServer(t)

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = httptest.NewRecorder()
	server.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), "ledger_http_requests_total")
}

func TestNotificationsThroughRedis(t *testing.T) {
	redisSrv := miniredis.RunT(t)

	rdb := redis.NewClient(&redis.Options{Addr: redisSrv.Addr()})
	defer rdb.Close()

	server := integrationtest.SetupMemoryServer(t, httpserver.WithRedis(rdb))
	require.NotNil(t, server.Bridge)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = server.Bridge.Run(ctx) }()

	require.Eventually(t, func() bool {
		return rdb.PubSubNumSub(ctx, server.Config.RedisChannel).Val()[server.Config.RedisChannel] == 1
	}, 2*time.Second, 10*time.Millisecond)

	srv := httptest.NewServer(server)
	defer srv.Close()

	alice, _ := signup(t, srv.URL, "alice", currencypkg.USD)
	events := subscribe(t, ctx, alice)

	deposit(t, alice, "12.5", "topup")

	n := waitNotification(t, events, domain.NotificationDepositCompleted)
	require.True(t, n.Amount.Equal(decimal.RequireFromString("12.5")))
	require.True(t, n.Balance.Equal(decimal.RequireFromString("12.5")))
}

func TestShutdownEndsNotificationStreams(t *testing.T) {
	server := integrationtest.SetupMemoryServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	httpServer := server.HTTPServer(ln.Addr().String())

	served := make(chan error, 1)

	go func() { served <- httpServer.Serve(ln) }()

	base := "http://" + ln.Addr().String()

	alice, _ := signup(t, base, "alice", currencypkg.USD)
	events := subscribe(t, context.Background(), alice)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()

	require.NoError(t, httpServer.Shutdown(ctx))
	require.Less(t, time.Since(start), 3*time.Second)
	require.ErrorIs(t, <-served, http.ErrServerClosed)

	select {
	case _, ok := <-events:
		for ok {
			_, ok = <-events
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification stream still open after shutdown")
	}
}

// coreLedger stands in for the core banking system.
type coreLedger struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

func (c *coreLedger) Balance(_ context.Context, id string) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.balances[id], nil
}

func (c *coreLedger) Deposit(_ context.Context, id string, amount decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.balances[id] = c.balances[id].Add(amount)

	return nil
}

func (c *coreLedger) Withdraw(_ context.Context, id string, amount decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.balances[id] = c.balances[id].Sub(amount)

	return nil
}

func (c *coreLedger) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) (domain.MirrorBalances, error) {
	_ = c.Withdraw(ctx, from, amount)
	_ = c.Deposit(ctx, to, amount)

	c.mu.Lock()
	defer c.mu.Unlock()

	return domain.MirrorBalances{From: c.balances[from], To: c.balances[to]}, nil
}

func (c *coreLedger) Reverse(ctx context.Context, from, to string, amount decimal.Decimal) error {
	_, err := c.Transfer(ctx, to, from, amount)
	return err
}

func TestCoreBankingMirror(t *testing.T) {
	core := &coreLedger{balances: map[string]decimal.Decimal{}}

	server := integrationtest.SetupMemoryServer(t, httpserver.WithMirror(core))

	srv := httptest.NewServer(server)
	defer srv.Close()

	alice := client{t: t, base: srv.URL}

	status, env := alice.do(http.MethodPost, "/users", map[string]any{
		"username":    "alice",
		"password":    "secret123",
		"fullname":    "Test alice",
		"email":       "alice@example.com",
		"currency":    currencypkg.USD,
		"external_id": "sa-alice",
	})
	require.Equal(t, http.StatusOK, status, env.Error)

	account := decodeData[session](t, env).Account
	require.Equal(t, "sa-alice", account.ExternalID)

	alice.token = env.AccessToken

	deposit(t, alice, "100", "core-dep")

	status, env = alice.do(http.MethodPost, "/billers", map[string]any{"biller_name": "Water", "account_number": "778899"})
	require.Equal(t, http.StatusCreated, status, env.Error)

	water := decodeData[struct {
		Biller domain.Biller `json:"biller"`
	}](t, env).Biller

	status, env = alice.do(http.MethodPost, "/payments", map[string]any{"biller_id": water.ID, "amount": "15.5", "idempotency_key": "core-bill"})
	require.Equal(t, http.StatusOK, status, env.Error)

	remote, _ := core.Balance(context.Background(), "sa-alice")
	require.True(t, remote.Equal(decimal.RequireFromString("84.5")), "remote %s", remote)
	require.True(t, balance(t, alice).Equal(remote))

	type syncData struct {
		Account    domain.Account         `json:"account"`
		Adjustment decimal.Decimal        `json:"adjustment"`
		Transfer   *domain.TransferRecord `json:"transfer"`
	}

	syncAccount := func() syncData {
		status, env := alice.do(http.MethodPost, fmt.Sprintf("/accounts/%d/sync", account.ID), nil)
		require.Equal(t, http.StatusOK, status, env.Error)

		return decodeData[syncData](t, env)
	}

	got := syncAccount()
	require.True(t, got.Adjustment.IsZero())
	require.Nil(t, got.Transfer)

	// Interest credited on the core side only.
	require.NoError(t, core.Deposit(context.Background(), "sa-alice", decimal.RequireFromString("0.75")))

	got = syncAccount()
	require.True(t, got.Adjustment.Equal(decimal.RequireFromString("0.75")))
	require.NotNil(t, got.Transfer)
	require.Equal(t, domain.KindAdjustment, got.Transfer.Kind)
	require.True(t, got.Account.Balance.Equal(decimal.RequireFromString("85.25")))
	require.True(t, balance(t, alice).Equal(decimal.RequireFromString("85.25")))

	require.True(t, syncAccount().Adjustment.IsZero())
}
