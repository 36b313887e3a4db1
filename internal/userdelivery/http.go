// Package userdelivery manages delivery layer of users.
package userdelivery

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-petr/mobile-bank/internal/domain"
	"github.com/go-petr/mobile-bank/pkg/errorspkg"
	"github.com/go-petr/mobile-bank/pkg/web"
	"github.com/rs/zerolog"
)

// Service provides service layer interface needed by user delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package userdelivery
type Service interface {
	Signup(ctx context.Context, arg domain.SignupParams) (domain.Session, error)
	Login(ctx context.Context, username, password string) (domain.Session, error)
}

// Handler facilitates user delivery layer logic.
type Handler struct {
	service Service
}

// NewHandler returns user handler.
func NewHandler(us Service) *Handler {
	return &Handler{service: us}
}

type signupRequest struct {
	Username   string `json:"username" binding:"required,alphanum"`
	Password   string `json:"password" binding:"required,min=6"`
	FullName   string `json:"fullname" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Currency   string `json:"currency" binding:"omitempty,currency"`
	ExternalID string `json:"external_id" binding:"max=64"`
}

// Create handles http request to register a user together with the first account.
func (h *Handler) Create(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req signupRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.Response{Error: web.BindErrorMsg(err)})

		return
	}

	session, err := h.service.Signup(ctx, domain.SignupParams{
		Username:   req.Username,
		Password:   req.Password,
		FullName:   req.FullName,
		Email:      req.Email,
		Currency:   req.Currency,
		ExternalID: req.ExternalID,
	})
	if err != nil {
		respondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, sessionResponse(session))
}

type loginRequest struct {
	Username string `json:"username" binding:"required,alphanum"`
	Password string `json:"password" binding:"required,min=6"`
}

// Login handles http login request and returns user, account and token data.
func (h *Handler) Login(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req loginRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.Response{Error: web.BindErrorMsg(err)})

		return
	}

	session, err := h.service.Login(ctx, req.Username, req.Password)
	if err != nil {
		respondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, sessionResponse(session))
}

func sessionResponse(s domain.Session) web.Response {
	return web.Response{
		AccessToken:          s.AccessToken,
		AccessTokenExpiresAt: s.AccessTokenExpiresAt.UTC().Format(time.RFC3339),
		Data:                 s,
	}
}

func respondError(gctx *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrUsernameAlreadyExists),
		errors.Is(err, domain.ErrEmailALreadyExists),
		errors.Is(err, domain.ErrCurrencyAlreadyExists):
		gctx.JSON(http.StatusConflict, web.Error(err))
	case errors.Is(err, domain.ErrUserNotFound):
		gctx.JSON(http.StatusNotFound, web.Error(err))
	case errors.Is(err, domain.ErrWrongPassword):
		gctx.JSON(http.StatusUnauthorized, web.Error(err))
	case errors.Is(err, domain.ErrUnavailable):
		gctx.JSON(http.StatusServiceUnavailable, web.Error(domain.ErrUnavailable))
	default:
		zerolog.Ctx(gctx.Request.Context()).Error().Err(err).Send()
		gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))
	}
}
