package userdelivery

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-petr/mobile-bank/internal/domain"
	"github.com/go-petr/mobile-bank/internal/integrationtest/helpers"
	"github.com/go-petr/mobile-bank/internal/userservice"
	"github.com/go-petr/mobile-bank/pkg/currencypkg"
	"github.com/go-petr/mobile-bank/pkg/errorspkg"
	"github.com/go-petr/mobile-bank/pkg/randompkg"
	"github.com/go-playground/validator/v10"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.ReleaseMode)

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := v.RegisterValidation("currency", currencypkg.ValidCurrency); err != nil {
			panic(err)
		}
	}

	os.Exit(m.Run())
}

type response struct {
	AccessToken          string `json:"access_token"`
	AccessTokenExpiresAt string `json:"access_token_expires_at"`
	Data                 struct {
		User    domain.UserWihtoutPassword `json:"user"`
		Account domain.Account             `json:"account"`
	} `json:"data"`
	Error string `json:"error"`
}

func randomSession(t *testing.T, password string) domain.Session {
	user := helpers.RandomUser(t, password)
	account := helpers.RandomAccount(user.Username)

	return domain.Session{
		User:                 userservice.NewUserWihtoutPassword(user),
		Account:              account,
		AccessToken:          randompkg.String(40),
		AccessTokenExpiresAt: time.Date(2030, time.January, 2, 3, 4, 5, 0, time.UTC),
	}
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder) response {
	t.Helper()

	var res response
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &res))

	return res
}

func TestCreateAPI(t *testing.T) {
	t.Parallel()

	password := randompkg.String(10)
	session := randomSession(t, password)

	validBody := gin.H{
		"username": session.User.Username,
		"password": password,
		"fullname": session.User.FullName,
		"email":    session.User.Email,
		"currency": currencypkg.EUR,
	}

	with := func(key string, value any) gin.H {
		body := gin.H{}
		for k, v := range validBody {
			body[k] = v
		}

		body[key] = value

		return body
	}

	testCases := []struct {
		name          string
		requestBody   gin.H
		buildStubs    func(userService *MockService)
		checkResponse func(t *testing.T, recorder *httptest.ResponseRecorder)
	}{
		{
			name:        "InvalidUsername",
			requestBody: with("username", "user&%"),
			buildStubs: func(userService *MockService) {
				userService.EXPECT().Signup(gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(t *testing.T, recorder *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusBadRequest, recorder.Code)
				require.Equal(t, "Username accepts only alphanumeric characters", decodeResponse(t, recorder).Error)
			},
		},
		{
			name:        "ShortPassword",
			requestBody: with("password", "xyz"),
			buildStubs: func(userService *MockService) {
				userService.EXPECT().Signup(gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(t *testing.T, recorder *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusBadRequest, recorder.Code)
			},
		},
		{
			name:        "InvalidEmail",
			requestBody: with("email", "user%email.com"),
			buildStubs: func(userService *MockService) {
				userService.EXPECT().Signup(gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(t *testing.T, recorder *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusBadRequest, recorder.Code)
			},
		},
		{
			name:        "UnsupportedCurrency",
			requestBody: with("currency", "XYZ"),
			buildStubs: func(userService *MockService) {
				userService.EXPECT().Signup(gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(t *testing.T, recorder *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusBadRequest, recorder.Code)
				require.Equal(t, "Currency is not supported", decodeResponse(t, recorder).Error)
			},
		},
		{
			name:        "UniqueViolationUsername",
			requestBody: validBody,
			buildStubs: func(userService *MockService) {
				userService.EXPECT().
					Signup(gomock.Any(), gomock.Any()).
					Times(1).
					Return(domain.Session{}, domain.ErrUsernameAlreadyExists)
			},
			checkResponse: func(t *testing.T, recorder *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusConflict, recorder.Code)
			},
		},
		{
			name:        "UniqueViolationEmail",
			requestBody: validBody,
			buildStubs: func(userService *MockService) {
				userService.EXPECT().
					Signup(gomock.Any(), gomock.Any()).
					Times(1).
					Return(domain.Session{}, domain.ErrEmailALreadyExists)
			},
			checkResponse: func(t *testing.T, recorder *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusConflict, recorder.Code)
			},
		},
		{
			name:        "StoreUnavailable",
			requestBody: validBody,
			buildStubs: func(userService *MockService) {
				userService.EXPECT().
					Signup(gomock.Any(), gomock.Any()).
					Return(domain.Session{}, domain.ErrUnavailable)
			},
			checkResponse: func(t *testing.T, recorder *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusServiceUnavailable, recorder.Code)
			},
		},
		{
			name:        "InternalError",
			requestBody: validBody,
			buildStubs: func(userService *MockService) {
				userService.EXPECT().
					Signup(gomock.Any(), gomock.Any()).
					Return(domain.Session{}, errorspkg.ErrInternal)
			},
			checkResponse: func(t *testing.T, recorder *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusInternalServerError, recorder.Code)
				require.Equal(t, errorspkg.ErrInternal.Error(), decodeResponse(t, recorder).Error)
			},
		},
		{
			name:        "OK",
			requestBody: validBody,
			buildStubs: func(userService *MockService) {
				arg := domain.SignupParams{
					Username: session.User.Username,
					Password: password,
					FullName: session.User.FullName,
					Email:    session.User.Email,
					Currency: currencypkg.EUR,
				}

				userService.EXPECT().
					Signup(gomock.Any(), gomock.Eq(arg)).
					Times(1).
					Return(session, nil)
			},
			checkResponse: func(t *testing.T, recorder *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusOK, recorder.Code)

				res := decodeResponse(t, recorder)
				require.Equal(t, session.AccessToken, res.AccessToken)
				require.Equal(t, "2030-01-02T03:04:05Z", res.AccessTokenExpiresAt)
				require.Equal(t, session.User.Username, res.Data.User.Username)
				require.Equal(t, session.User.Email, res.Data.User.Email)
				require.Equal(t, session.Account.ID, res.Data.Account.ID)
				require.True(t, session.Account.Balance.Equal(res.Data.Account.Balance))
			},
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			userService := NewMockService(ctrl)
			userHandler := NewHandler(userService)

			server := gin.New()
			url := "/users"
			server.POST(url, userHandler.Create)

			tc.buildStubs(userService)

			body, err := json.Marshal(tc.requestBody)
			require.NoError(t, err)

			req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
			require.NoError(t, err)

			recorder := httptest.NewRecorder()
			server.ServeHTTP(recorder, req)

			tc.checkResponse(t, recorder)
		})
	}
}

func TestLoginAPI(t *testing.T) {
	t.Parallel()

	password := randompkg.String(10)
	session := randomSession(t, password)

	testCases := []struct {
		name        string
		requestBody gin.H
		buildStubs  func(userService *MockService)
		wantStatus  int
	}{
		{
			name: "InvalidUsernameRequest",
			requestBody: gin.H{
				"username": "invalid-%user#1",
				"password": password,
			},
			buildStubs: func(userService *MockService) {
				userService.EXPECT().Login(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "MissingPassword",
			requestBody: gin.H{
				"username": session.User.Username,
			},
			buildStubs: func(userService *MockService) {
				userService.EXPECT().Login(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "UserNotFound",
			requestBody: gin.H{
				"username": session.User.Username,
				"password": password,
			},
			buildStubs: func(userService *MockService) {
				userService.EXPECT().
					Login(gomock.Any(), gomock.Eq(session.User.Username), gomock.Eq(password)).
					Times(1).
					Return(domain.Session{}, domain.ErrUserNotFound)
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "IncorrectPassword",
			requestBody: gin.H{
				"username": session.User.Username,
				"password": "incorrect",
			},
			buildStubs: func(userService *MockService) {
				userService.EXPECT().
					Login(gomock.Any(), gomock.Eq(session.User.Username), gomock.Eq("incorrect")).
					Times(1).
					Return(domain.Session{}, domain.ErrWrongPassword)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "InternalError",
			requestBody: gin.H{
				"username": session.User.Username,
				"password": password,
			},
			buildStubs: func(userService *MockService) {
				userService.EXPECT().
					Login(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(domain.Session{}, errorspkg.ErrInternal)
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "OK",
			requestBody: gin.H{
				"username": session.User.Username,
				"password": password,
			},
			buildStubs: func(userService *MockService) {
				userService.EXPECT().
					Login(gomock.Any(), gomock.Eq(session.User.Username), gomock.Eq(password)).
					Times(1).
					Return(session, nil)
			},
			wantStatus: http.StatusOK,
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			userService := NewMockService(ctrl)
			server := gin.New()
			url := "/users/login"
			server.POST(url, NewHandler(userService).Login)

			tc.buildStubs(userService)

			data, err := json.Marshal(tc.requestBody)
			require.NoError(t, err)

			request, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
			require.NoError(t, err)

			recorder := httptest.NewRecorder()
			server.ServeHTTP(recorder, request)

			require.Equal(t, tc.wantStatus, recorder.Code)

			if tc.wantStatus == http.StatusOK {
				res := decodeResponse(t, recorder)
				require.Equal(t, session.AccessToken, res.AccessToken)
				require.Equal(t, session.Account.ID, res.Data.Account.ID)
			}
		})
	}
}
