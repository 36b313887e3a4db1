package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/go-petr/mobile-bank/internal/metrics"
	"github.com/go-petr/mobile-bank/pkg/randompkg"
	"github.com/go-petr/mobile-bank/pkg/tokenpkg"
	"github.com/go-petr/mobile-bank/pkg/web"
)

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	for _, tokenType := range []string{tokenpkg.TypePaseto, tokenpkg.TypeJWT} {
		tokenType := tokenType

		tokenMaker, err := tokenpkg.NewMaker(tokenType, randompkg.String(32))
		require.NoError(t, err)

		otherMaker, err := tokenpkg.NewMaker(tokenType, randompkg.String(32))
		require.NoError(t, err)

		testCases := []struct {
			name           string
			setupAuth      func(r *http.Request) error
			wantStatusCode int
			wantError      string
			wantAccountID  int64
		}{
			{
				name:           "NoAuthorization",
				setupAuth:      func(r *http.Request) error { return nil },
				wantStatusCode: http.StatusUnauthorized,
				wantError:      ErrAuthHeaderNotFound.Error(),
			},
			{
				name: "InvalidAuthorizationHeader",
				setupAuth: func(r *http.Request) error {
					return AddAuthorization(r, tokenMaker, "", "alice", 1, time.Minute)
				},
				wantStatusCode: http.StatusUnauthorized,
				wantError:      ErrBadAuthHeaderFormat.Error(),
			},
			{
				name: "UnsupportedAuthorization",
				setupAuth: func(r *http.Request) error {
					return AddAuthorization(r, tokenMaker, "basic", "alice", 1, time.Minute)
				},
				wantStatusCode: http.StatusUnauthorized,
				wantError:      ErrUnsupportedAuthType.Error(),
			},
			{
				name: "ExpiredToken",
				setupAuth: func(r *http.Request) error {
					return AddAuthorization(r, tokenMaker, AuthTypeBearer, "alice", 1, -time.Minute)
				},
				wantStatusCode: http.StatusUnauthorized,
				wantError:      tokenpkg.ErrExpiredToken.Error(),
			},
			{
				name: "ForeignKey",
				setupAuth: func(r *http.Request) error {
					return AddAuthorization(r, otherMaker, AuthTypeBearer, "alice", 1, time.Minute)
				},
				wantStatusCode: http.StatusUnauthorized,
				wantError:      tokenpkg.ErrInvalidToken.Error(),
			},
			{
				name: "OK",
				setupAuth: func(r *http.Request) error {
					return AddAuthorization(r, tokenMaker, AuthTypeBearer, "alice", 42, time.Minute)
				},
				wantStatusCode: http.StatusOK,
				wantAccountID:  42,
			},
		}

		for i := range testCases {
			tc := testCases[i]

			t.Run(tokenType+"/"+tc.name, func(t *testing.T) {
				t.Parallel()

				server := gin.New()
				server.GET("/auth", AuthMiddleware(tokenMaker), func(gctx *gin.Context) {
					payload := Payload(gctx)
					gctx.JSON(http.StatusOK, web.Response{Data: payload})
				})

				recorder := httptest.NewRecorder()
				request, err := http.NewRequest(http.MethodGet, "/auth", nil)
				require.NoError(t, err)
				require.NoError(t, tc.setupAuth(request))

				server.ServeHTTP(recorder, request)

				require.Equal(t, tc.wantStatusCode, recorder.Code)

				var got struct {
					Data  *tokenpkg.Payload `json:"data"`
					Error string            `json:"error"`
				}
				require.NoError(t, json.NewDecoder(recorder.Body).Decode(&got))
				require.Equal(t, tc.wantError, got.Error)

				if tc.wantStatusCode == http.StatusOK {
					require.NotNil(t, got.Data)
					require.Equal(t, "alice", got.Data.Username)
					require.Equal(t, tc.wantAccountID, got.Data.AccountID)
				}
			})
		}
	}
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	server := gin.New()
	server.Use(Metrics())
	server.GET("/metrics-check/:id", func(gctx *gin.Context) {
		gctx.Status(http.StatusTeapot)
	})

	counter := metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/metrics-check/:id", "418")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"1", "2"} {
		recorder := httptest.NewRecorder()
		server.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics-check/"+id, nil))
		require.Equal(t, http.StatusTeapot, recorder.Code)
	}

	require.Equal(t, before+2, testutil.ToFloat64(counter))

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	require.Equal(t, http.StatusNotFound, recorder.Code)
	require.GreaterOrEqual(t,
		testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues(http.MethodGet, "unmatched", "404")), 1.0)
}
