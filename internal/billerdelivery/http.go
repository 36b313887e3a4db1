// Package billerdelivery manages delivery layer of saved billers.
package billerdelivery

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-petr/mobile-bank/internal/domain"
	"github.com/go-petr/mobile-bank/internal/middleware"
	"github.com/go-petr/mobile-bank/pkg/errorspkg"
	"github.com/go-petr/mobile-bank/pkg/web"
	"github.com/rs/zerolog"
)

// Service provides service layer interface needed by biller delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package billerdelivery
type Service interface {
	Create(ctx context.Context, owner, name, accountNumber string) (domain.Biller, error)
	List(ctx context.Context, owner string) ([]domain.Biller, error)
}

// Handler facilitates biller delivery layer logic.
type Handler struct {
	service Service
}

// NewHandler returns biller handler.
func NewHandler(bs Service) *Handler {
	return &Handler{service: bs}
}

type createRequest struct {
	Name          string `json:"biller_name" binding:"required,max=128"`
	AccountNumber string `json:"account_number" binding:"required,alphanum,min=4,max=34"`
}

type data struct {
	Biller domain.Biller `json:"biller"`
}

// Create handles http request to save a biller of the user.
func (h *Handler) Create(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req createRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.Response{Error: web.BindErrorMsg(err)})

		return
	}

	biller, err := h.service.Create(ctx, middleware.Payload(gctx).Username, req.Name, req.AccountNumber)
	if err != nil {
		respondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusCreated, web.Response{Data: data{biller}})
}

type dataBillers struct {
	Billers []domain.Biller `json:"billers"`
}

// List handles http request to list billers saved by the user.
func (h *Handler) List(gctx *gin.Context) {
	billers, err := h.service.List(gctx.Request.Context(), middleware.Payload(gctx).Username)
	if err != nil {
		respondError(gctx, err)
		return
	}

	if billers == nil {
		billers = []domain.Biller{}
	}

	gctx.JSON(http.StatusOK, web.Response{Data: dataBillers{billers}})
}

func respondError(gctx *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrOwnerNotFound):
		gctx.JSON(http.StatusBadRequest, web.Error(err))
	case errors.Is(err, domain.ErrUnavailable):
		gctx.JSON(http.StatusServiceUnavailable, web.Error(domain.ErrUnavailable))
	default:
		zerolog.Ctx(gctx.Request.Context()).Error().Err(err).Send()
		gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))
	}
}
