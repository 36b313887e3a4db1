package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Notification types delivered to clients.
const (
	NotificationTransferSent        = "transfer:sent"
	NotificationTransferReceived    = "transfer:received"
	NotificationDepositCompleted    = "deposit:completed"
	NotificationWithdrawalCompleted = "withdrawal:completed"
	NotificationBalanceUpdated      = "balance:updated"
)

// LedgerEvent is emitted once per committed record.
type LedgerEvent struct {
	RecordID      uuid.UUID       `json:"record_id"`
	Kind          Kind            `json:"kind"`
	FromAccountID int64           `json:"from_account_id,omitempty"`
	ToAccountID   int64           `json:"to_account_id,omitempty"`
	FromOwner     string          `json:"from_owner,omitempty"`
	ToOwner       string          `json:"to_owner,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	FromBalance   decimal.Decimal `json:"from_balance"`
	ToBalance     decimal.Decimal `json:"to_balance"`
	Description   string          `json:"description,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// Notification is what a single owner sees about a LedgerEvent.
type Notification struct {
	Type         string          `json:"type"`
	AccountID    int64           `json:"account_id"`
	RecordID     uuid.UUID       `json:"record_id"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Balance      decimal.Decimal `json:"balance"`
	Counterparty int64           `json:"counterparty,omitempty"`
	Description  string          `json:"description,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// Notifications projects the event onto each affected owner.
func (e LedgerEvent) Notifications() map[string][]Notification {
	out := make(map[string][]Notification, 2)

	add := func(owner string, n Notification) {
		if owner == "" {
			return
		}

		out[owner] = append(out[owner], n)
	}

	base := Notification{
		RecordID:    e.RecordID,
		Amount:      e.Amount,
		Currency:    e.Currency,
		Description: e.Description,
		OccurredAt:  e.OccurredAt,
	}

	switch e.Kind {
	case KindTransfer:
		sent := base
		sent.Type = NotificationTransferSent
		sent.AccountID = e.FromAccountID
		sent.Balance = e.FromBalance
		sent.Counterparty = e.ToAccountID
		add(e.FromOwner, sent)

		received := base
		received.Type = NotificationTransferReceived
		received.AccountID = e.ToAccountID
		received.Balance = e.ToBalance
		received.Counterparty = e.FromAccountID
		add(e.ToOwner, received)
	case KindDeposit:
		n := base
		n.Type = NotificationDepositCompleted
		n.AccountID = e.ToAccountID
		n.Balance = e.ToBalance
		add(e.ToOwner, n)
	case KindWithdrawal:
		n := base
		n.Type = NotificationWithdrawalCompleted
		n.AccountID = e.FromAccountID
		n.Balance = e.FromBalance
		add(e.FromOwner, n)
	case KindAdjustment:
		n := base
		n.Type = NotificationBalanceUpdated
		owner := e.ToOwner
		n.AccountID, n.Balance = e.ToAccountID, e.ToBalance

		if e.FromAccountID != 0 {
			n.AccountID, n.Balance, owner = e.FromAccountID, e.FromBalance, e.FromOwner
		}

		add(owner, n)
	}

	return out
}
