package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotmarket/internal/config"
	"spotmarket/pkg/types"
)

type fakeCaller struct {
	lastQueue  string
	lastMethod string
	lastReq    any
	respond    func(method string, req any) (any, error)
}

func (f *fakeCaller) Call(ctx context.Context, queue, method string, req, out any) error {
	f.lastQueue, f.lastMethod, f.lastReq = queue, method, req
	if f.respond == nil {
		return nil
	}
	resp, err := f.respond(method, req)
	if err != nil {
		return err
	}
	if out == nil || resp == nil {
		return nil
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

const (
	testJWTSecret  = "test-secret"
	testAdminToken = "admin-secret"
)

func newTestServer(caller *fakeCaller) *Server {
	cfg := config.GatewayConfig{Port: 0, JWTSecret: testJWTSecret, AdminToken: testAdminToken}
	return NewServer(cfg, caller, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func doRequest(s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echoContentType, "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func userToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := mintToken(testJWTSecret, userID, time.Hour)
	require.NoError(t, err)
	return "TOKEN " + token
}

func TestRegister(t *testing.T) {
	userID := uuid.New()
	caller := &fakeCaller{respond: func(method string, req any) (any, error) {
		return types.User{ID: userID, Name: "alice", Role: types.RoleUser}, nil
	}}
	s := newTestServer(caller)

	rec := doRequest(s, http.MethodPost, "/api/v1/public/register", "", `{"name":"alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "users", caller.lastQueue)
	assert.Equal(t, "Users.create_user", caller.lastMethod)

	var resp registerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, userID, resp.ID)
	require.NotEmpty(t, resp.APIKey)

	// The issued api_key authenticates as the new user.
	parsed, err := parseToken(testJWTSecret, resp.APIKey)
	require.NoError(t, err)
	assert.Equal(t, userID, parsed)
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(&fakeCaller{})
	rec := doRequest(s, http.MethodPost, "/api/v1/public/register", "", `{"name":"ab"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserAuth(t *testing.T) {
	s := newTestServer(&fakeCaller{respond: func(string, any) (any, error) {
		return map[string]int64{"RUB": 100}, nil
	}})

	t.Run("missing header", func(t *testing.T) {
		rec := doRequest(s, http.MethodGet, "/api/v1/balance", "", "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		token, err := mintToken(testJWTSecret, uuid.New(), time.Hour)
		require.NoError(t, err)
		rec := doRequest(s, http.MethodGet, "/api/v1/balance", "Bearer "+token, "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("malformed token", func(t *testing.T) {
		rec := doRequest(s, http.MethodGet, "/api/v1/balance", "TOKEN not-a-jwt", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := mintToken(testJWTSecret, uuid.New(), -time.Hour)
		require.NoError(t, err)
		rec := doRequest(s, http.MethodGet, "/api/v1/balance", "TOKEN "+token, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		rec := doRequest(s, http.MethodGet, "/api/v1/balance", userToken(t, uuid.New()), "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestAdminAuth(t *testing.T) {
	s := newTestServer(&fakeCaller{})

	rec := doRequest(s, http.MethodDelete, "/api/v1/admin/instrument/AAPL", "TOKEN wrong", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(s, http.MethodDelete, "/api/v1/admin/instrument/AAPL", "TOKEN "+testAdminToken, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateOrderDiscriminator(t *testing.T) {
	caller := &fakeCaller{respond: func(string, any) (any, error) {
		return types.CreateOrderResponse{OrderID: uuid.New()}, nil
	}}
	s := newTestServer(caller)
	userID := uuid.New()

	rec := doRequest(s, http.MethodPost, "/api/v1/order", userToken(t, userID),
		`{"direction":"BUY","ticker":"AAPL","qty":10,"price":100}`)
	require.Equal(t, http.StatusOK, rec.Code)
	req := caller.lastReq.(types.CreateOrderRequest)
	assert.Equal(t, types.OrderLimit, req.Body.Type)
	assert.Equal(t, userID, req.UserID)

	rec = doRequest(s, http.MethodPost, "/api/v1/order", userToken(t, userID),
		`{"direction":"SELL","ticker":"AAPL","qty":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	req = caller.lastReq.(types.CreateOrderRequest)
	assert.Equal(t, types.OrderMarket, req.Body.Type)

	// An explicit type is accepted when it agrees with the price field.
	rec = doRequest(s, http.MethodPost, "/api/v1/order", userToken(t, userID),
		`{"type":"LIMIT","direction":"BUY","ticker":"AAPL","qty":1,"price":100}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	t.Run("type contradicts price", func(t *testing.T) {
		for name, body := range map[string]string{
			"market with price":   `{"type":"MARKET","direction":"BUY","ticker":"AAPL","qty":1,"price":100}`,
			"limit without price": `{"type":"LIMIT","direction":"BUY","ticker":"AAPL","qty":1}`,
		} {
			t.Run(name, func(t *testing.T) {
				rec := doRequest(s, http.MethodPost, "/api/v1/order", userToken(t, userID), body)
				assert.Equal(t, http.StatusBadRequest, rec.Code)
			})
		}
	})
}

func TestCreateOrderValidation(t *testing.T) {
	s := newTestServer(&fakeCaller{})
	token := userToken(t, uuid.New())

	for name, body := range map[string]string{
		"bad ticker":      `{"direction":"BUY","ticker":"aapl!","qty":1,"price":100}`,
		"zero qty":        `{"direction":"BUY","ticker":"AAPL","qty":0,"price":100}`,
		"zero price":      `{"direction":"BUY","ticker":"AAPL","qty":1,"price":0}`,
		"bad direction":   `{"direction":"HOLD","ticker":"AAPL","qty":1,"price":100}`,
		"qty over cap":    `{"direction":"BUY","ticker":"AAPL","qty":4294967296,"price":100}`,
		"price over cap":  `{"direction":"BUY","ticker":"AAPL","qty":1,"price":4294967296}`,
		"overflowed cost": `{"direction":"BUY","ticker":"AAPL","qty":4294967296,"price":4294967296}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := doRequest(s, http.MethodPost, "/api/v1/order", token, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"instrument not found", &types.InstrumentNotFoundError{Ticker: "AAPL"}, http.StatusNotFound},
		{"user not found", &types.UserNotFoundError{ID: uuid.New()}, http.StatusNotFound},
		{"already exists", &types.InstrumentAlreadyExistsError{Ticker: "AAPL"}, http.StatusConflict},
		{"insufficient funds", &types.InsufficientFundsError{Requested: 10, Available: 1}, http.StatusForbidden},
		{"timeout", &types.RequestTimeoutError{}, http.StatusRequestTimeout},
		{"critical", types.Criticalf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(&fakeCaller{respond: func(string, any) (any, error) {
				return nil, tc.err
			}})
			rec := doRequest(s, http.MethodGet, "/api/v1/public/orderbook/AAPL", "", "")
			assert.Equal(t, tc.status, rec.Code)

			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.False(t, body.Success)
			if tc.status == http.StatusInternalServerError {
				assert.Equal(t, "internal error", body.Detail)
			}
		})
	}
}

func TestTickerParamValidation(t *testing.T) {
	s := newTestServer(&fakeCaller{})
	rec := doRequest(s, http.MethodGet, "/api/v1/public/orderbook/toolongticker", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderbookPassesLimit(t *testing.T) {
	caller := &fakeCaller{respond: func(string, any) (any, error) {
		return types.Orderbook{BidLevels: []types.OrderbookLevel{}, AskLevels: []types.OrderbookLevel{}}, nil
	}}
	s := newTestServer(caller)

	rec := doRequest(s, http.MethodGet, "/api/v1/public/orderbook/AAPL?limit=5", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	req := caller.lastReq.(types.GetOrderbookRequest)
	assert.Equal(t, 5, req.Limit)
	assert.Equal(t, "AAPL", req.Ticker)
}

func TestBalanceOpRoutes(t *testing.T) {
	caller := &fakeCaller{}
	s := newTestServer(caller)
	body := `{"user_id":"` + uuid.NewString() + `","ticker":"RUB","amount":100}`

	rec := doRequest(s, http.MethodPost, "/api/v1/admin/balance/deposit", "TOKEN "+testAdminToken, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Users.deposit", caller.lastMethod)

	rec = doRequest(s, http.MethodPost, "/api/v1/admin/balance/withdraw", "TOKEN "+testAdminToken, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Users.withdraw", caller.lastMethod)
}
