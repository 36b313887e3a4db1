// Package transferdelivery manages delivery layer of transfers, deposits and bill payments.
package transferdelivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/go-petr/mobile-bank/internal/domain"
	"github.com/go-petr/mobile-bank/internal/middleware"
	"github.com/go-petr/mobile-bank/pkg/errorspkg"
	"github.com/go-petr/mobile-bank/pkg/web"
)

// IdempotencyKeyHeader is read when the body carries no idempotency key.
const IdempotencyKeyHeader = "Idempotency-Key"

// Service provides service layer interface needed by transfer delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package transferdelivery
type Service interface {
	Transfer(ctx context.Context, req domain.TransferRequest) (domain.TransferResult, error)
	Deposit(ctx context.Context, req domain.DepositRequest) (domain.TransferResult, error)
	Withdraw(ctx context.Context, req domain.WithdrawalRequest) (domain.TransferResult, error)
	History(ctx context.Context, owner string, accountID int64, pageSize, pageID int32) ([]domain.TransferRecord, error)
	Reconcile(ctx context.Context, owner string, accountID int64) (domain.ReconcileResult, error)
}

// Billers looks up the saved payee of a bill payment.
type Billers interface {
	Get(ctx context.Context, owner string, id int64) (domain.Biller, error)
}

// Handler facilitates transfer delivery layer logic.
type Handler struct {
	service Service
	billers Billers
}

// NewHandler returns transfer handler.
func NewHandler(ts Service, bs Billers) *Handler {
	return &Handler{
		service: ts,
		billers: bs,
	}
}

type transferRequest struct {
	ToAccountID    int64  `json:"to_account_id" binding:"required,min=1"`
	Amount         string `json:"amount" binding:"required"`
	Description    string `json:"description" binding:"max=255"`
	IdempotencyKey string `json:"idempotency_key"`
}

type transferData struct {
	TransferID  uuid.UUID       `json:"transfer_id"`
	Status      domain.Status   `json:"status"`
	FromBalance decimal.Decimal `json:"from_balance"`
	ToBalance   decimal.Decimal `json:"to_balance"`
	Replayed    bool            `json:"replayed"`
}

// Create handles http request to move money from the caller's account to another account.
func (h *Handler) Create(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req transferRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.Response{Error: web.BindErrorMsg(err)})

		return
	}

	amount, ok := parseAmount(gctx, req.Amount)
	if !ok {
		return
	}

	payload := middleware.Payload(gctx)

	res, err := h.service.Transfer(ctx, domain.TransferRequest{
		FromAccountID:  payload.AccountID,
		ToAccountID:    req.ToAccountID,
		Amount:         amount,
		Description:    req.Description,
		IdempotencyKey: idempotencyKey(gctx, req.IdempotencyKey),
		Owner:          payload.Username,
	})
	if err != nil {
		respondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: transferData{
		TransferID:  res.Record.ID,
		Status:      res.Record.Status,
		FromBalance: res.FromBalance,
		ToBalance:   res.ToBalance,
		Replayed:    res.Replayed,
	}})
}

type depositRequest struct {
	Amount         string `json:"amount" binding:"required"`
	Method         string `json:"method" binding:"max=64"`
	IdempotencyKey string `json:"idempotency_key"`
}

type paymentRequest struct {
	BillerID       int64  `json:"biller_id" binding:"required,min=1"`
	Amount         string `json:"amount" binding:"required"`
	IdempotencyKey string `json:"idempotency_key"`
}

type receiptData struct {
	TransferID uuid.UUID       `json:"transfer_id"`
	Status     domain.Status   `json:"status"`
	Balance    decimal.Decimal `json:"balance"`
	Replayed   bool            `json:"replayed"`
}

// Deposit handles http request to top up the caller's account.
func (h *Handler) Deposit(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req depositRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.Response{Error: web.BindErrorMsg(err)})

		return
	}

	amount, ok := parseAmount(gctx, req.Amount)
	if !ok {
		return
	}

	description := "deposit"
	if req.Method != "" {
		description = "deposit via " + req.Method
	}

	payload := middleware.Payload(gctx)

	res, err := h.service.Deposit(ctx, domain.DepositRequest{
		AccountID:      payload.AccountID,
		Owner:          payload.Username,
		Amount:         amount,
		Description:    description,
		IdempotencyKey: idempotencyKey(gctx, req.IdempotencyKey),
	})
	if err != nil {
		respondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: receiptData{
		TransferID: res.Record.ID,
		Status:     res.Record.Status,
		Balance:    res.ToBalance,
		Replayed:   res.Replayed,
	}})
}

// Payment handles http request to pay a bill from the caller's account.
func (h *Handler) Payment(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req paymentRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.Response{Error: web.BindErrorMsg(err)})

		return
	}

	amount, ok := parseAmount(gctx, req.Amount)
	if !ok {
		return
	}

	payload := middleware.Payload(gctx)

	biller, err := h.billers.Get(ctx, payload.Username, req.BillerID)
	if err != nil {
		respondError(gctx, err)
		return
	}

	res, err := h.service.Withdraw(ctx, domain.WithdrawalRequest{
		AccountID:      payload.AccountID,
		Owner:          payload.Username,
		Amount:         amount,
		Description:    "bill payment: " + biller.Name + " " + biller.AccountNumber,
		IdempotencyKey: idempotencyKey(gctx, req.IdempotencyKey),
	})
	if err != nil {
		respondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: receiptData{
		TransferID: res.Record.ID,
		Status:     res.Record.Status,
		Balance:    res.FromBalance,
		Replayed:   res.Replayed,
	}})
}

type syncRequest struct {
	ID int64 `uri:"id" binding:"required,min=1"`
}

type syncData struct {
	Account    domain.Account         `json:"account"`
	Remote     decimal.Decimal        `json:"core_banking_balance"`
	Adjustment decimal.Decimal        `json:"adjustment"`
	Transfer   *domain.TransferRecord `json:"transfer,omitempty"`
}

// Sync handles http request to align the account balance with core banking.
func (h *Handler) Sync(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req syncRequest
	if err := gctx.ShouldBindUri(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.Response{Error: web.BindErrorMsg(err)})

		return
	}

	res, err := h.service.Reconcile(ctx, middleware.Payload(gctx).Username, req.ID)
	if err != nil {
		respondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, web.Response{Data: syncData{
		Account:    res.Account,
		Remote:     res.Remote,
		Adjustment: res.Adjustment,
		Transfer:   res.Record,
	}})
}

type listRequest struct {
	PageID   int32 `form:"page_id" binding:"required,min=1"`
	PageSize int32 `form:"page_size" binding:"required,min=1,max=100"`
}

type dataTransfers struct {
	Transfers []domain.TransferRecord `json:"transfers"`
}

// List handles http request to page through the history of the caller's account.
func (h *Handler) List(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req listRequest
	if err := gctx.ShouldBindQuery(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.Response{Error: web.BindErrorMsg(err)})

		return
	}

	payload := middleware.Payload(gctx)

	records, err := h.service.History(ctx, payload.Username, payload.AccountID, req.PageSize, req.PageID)
	if err != nil {
		respondError(gctx, err)
		return
	}

	if records == nil {
		records = []domain.TransferRecord{}
	}

	gctx.JSON(http.StatusOK, web.Response{Data: dataTransfers{records}})
}

func parseAmount(gctx *gin.Context, s string) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		zerolog.Ctx(gctx.Request.Context()).Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.Error(fmt.Errorf("%w: %q", domain.ErrInvalidAmount, s)))

		return decimal.Decimal{}, false
	}

	if err := domain.ValidateAmount(amount); err != nil {
		gctx.JSON(http.StatusBadRequest, web.Error(err))
		return decimal.Decimal{}, false
	}

	return amount, true
}

func idempotencyKey(gctx *gin.Context, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}

	return gctx.GetHeader(IdempotencyKeyHeader)
}

func respondError(gctx *gin.Context, err error) {
	l := zerolog.Ctx(gctx.Request.Context())

	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		gctx.JSON(http.StatusBadRequest, web.Error(err))
	case errors.Is(err, domain.ErrInsufficientFunds):
		gctx.JSON(http.StatusPaymentRequired, web.Error(err))
	case errors.Is(err, domain.ErrInvalidOwner):
		gctx.JSON(http.StatusForbidden, web.Error(err))
	case errors.Is(err, domain.ErrAccountNotFound), errors.Is(err, domain.ErrBillerNotFound):
		gctx.JSON(http.StatusNotFound, web.Error(err))
	case errors.Is(err, domain.ErrConflict):
		gctx.JSON(http.StatusConflict, web.Error(domain.ErrConflict))
	case errors.Is(err, domain.ErrMirrorDisabled):
		gctx.JSON(http.StatusNotImplemented, web.Error(err))
	case errors.Is(err, domain.ErrUnavailable):
		l.Warn().Err(err).Send()
		gctx.JSON(http.StatusServiceUnavailable, web.Error(domain.ErrUnavailable))
	default:
		l.Error().Err(err).Send()
		gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))
	}
}
