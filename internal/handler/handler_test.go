package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/encontrao/pos-system/internal/apperrors"
	"github.com/encontrao/pos-system/internal/middleware"
	"github.com/encontrao/pos-system/internal/model"
	"github.com/encontrao/pos-system/internal/permissions"
	"github.com/encontrao/pos-system/internal/service"
)

type stubService struct {
	receipt    *service.SaleReceipt
	saleErr    error
	saleInput  service.SaleInput
	saleCalls  int
	newBalance int64
	balanceErr error
	card       *model.Card
	cardErr    error
	cardInput  service.CardInput
	product    *model.Product
	productErr error
	order      *model.Order
	orderErr   error
	sales      []model.Sale
	salesErr   error
	actor      model.Actor
}

func (s *stubService) CreateSale(ctx context.Context, actor model.Actor, in service.SaleInput) (*service.SaleReceipt, error) {
	s.saleCalls++
	s.actor = actor
	s.saleInput = in
	return s.receipt, s.saleErr
}

func (s *stubService) ListSales(ctx context.Context, actor model.Actor, category model.Category) ([]model.Sale, error) {
	return s.sales, s.salesErr
}

func (s *stubService) ApplyBalanceDelta(ctx context.Context, actor model.Actor, in service.BalanceInput) (int64, error) {
	return s.newBalance, s.balanceErr
}

func (s *stubService) CreateCard(ctx context.Context, actor model.Actor, in service.CardInput) (*model.Card, error) {
	s.cardInput = in
	return s.card, s.cardErr
}

func (s *stubService) ListCards(ctx context.Context, actor model.Actor) ([]model.Card, error) {
	if s.card == nil {
		return nil, s.cardErr
	}
	return []model.Card{*s.card}, s.cardErr
}

func (s *stubService) GetCardByNumber(ctx context.Context, actor model.Actor, number string) (*model.Card, error) {
	return s.card, s.cardErr
}

func (s *stubService) GetOwnCard(ctx context.Context, actor model.Actor) (*model.Card, error) {
	return s.card, s.cardErr
}

func (s *stubService) AssociateCard(ctx context.Context, actor model.Actor, cardNumber, cardCode string) (*model.Card, error) {
	return s.card, s.cardErr
}

func (s *stubService) ListLedgerEntries(ctx context.Context, actor model.Actor, cardID string) ([]model.LedgerEntry, error) {
	return nil, nil
}

func (s *stubService) CreateProduct(ctx context.Context, actor model.Actor, in service.ProductInput) (*model.Product, error) {
	return s.product, s.productErr
}

func (s *stubService) UpdateProduct(ctx context.Context, actor model.Actor, productID string, in service.ProductInput) (*model.Product, error) {
	return s.product, s.productErr
}

func (s *stubService) DeleteProduct(ctx context.Context, actor model.Actor, productID string) error {
	return s.productErr
}

func (s *stubService) ListProducts(ctx context.Context, actor model.Actor, category model.Category) ([]model.Product, error) {
	if s.product == nil {
		return nil, s.productErr
	}
	return []model.Product{*s.product}, s.productErr
}

func (s *stubService) ListOpenOrders(ctx context.Context, actor model.Actor) ([]model.Order, error) {
	if s.order == nil {
		return nil, s.orderErr
	}
	return []model.Order{*s.order}, s.orderErr
}

func (s *stubService) MarkOrderDelivered(ctx context.Context, actor model.Actor, orderID string) (*model.Order, error) {
	return s.order, s.orderErr
}

const testSecret = "test-secret"

func newTestServer(t *testing.T, svc Service) (*httptest.Server, *middleware.AuthMiddleware) {
	t.Helper()
	auth := middleware.NewAuthMiddleware(testSecret)
	h := NewHandler(svc, zap.NewNop(), auth)
	srv := httptest.NewServer(h.SetupRouter())
	t.Cleanup(srv.Close)
	return srv, auth
}

func bearerToken(t *testing.T, auth *middleware.AuthMiddleware, role string) string {
	t.Helper()
	token, err := auth.IssueToken(model.Actor{
		ID:    "actor-1",
		Email: "actor@example.com",
		Role:  role,
	}, time.Hour)
	require.NoError(t, err)
	return token
}

func doRequest(t *testing.T, srv *httptest.Server, method, path, token, body string) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestCreateSale_HTTP(t *testing.T) {
	orderID := "55555555-5555-5555-5555-555555555555"
	svc := &stubService{
		receipt: &service.SaleReceipt{
			SaleID:          "66666666-6666-6666-6666-666666666666",
			OrderID:         &orderID,
			TotalCents:      2800,
			NewBalanceCents: 2200,
			Message:         "sale completed, total 28.00, new balance 22.00",
		},
	}
	srv, auth := newTestServer(t, svc)
	token := bearerToken(t, auth, permissions.RoleStorekeeper)

	resp := doRequest(t, srv, http.MethodPost, "/api/sales", token, `{
		"cardNumber": "1234",
		"category": "store",
		"items": [
			{"productId": "11111111-1111-1111-1111-111111111111", "quantity": 2},
			{"productId": "22222222-2222-2222-2222-222222222222", "quantity": 1}
		]
	}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, svc.receipt.SaleID, body["saleId"])
	assert.Equal(t, orderID, body["orderId"])
	assert.InDelta(t, 28.00, body["total"], 0.001)
	assert.InDelta(t, 22.00, body["newBalance"], 0.001)

	assert.Equal(t, "actor-1", svc.actor.ID)
	assert.Equal(t, permissions.RoleStorekeeper, svc.actor.Role)
	assert.Equal(t, model.CategoryStore, svc.saleInput.Category)
	require.Len(t, svc.saleInput.Items, 2)
	assert.Equal(t, 2, svc.saleInput.Items[0].Quantity)
}

func TestCreateSale_RejectsClientPrice(t *testing.T) {
	svc := &stubService{}
	srv, auth := newTestServer(t, svc)
	token := bearerToken(t, auth, permissions.RoleStorekeeper)

	resp := doRequest(t, srv, http.MethodPost, "/api/sales", token, `{
		"cardNumber": "1234",
		"category": "store",
		"items": [
			{"productId": "11111111-1111-1111-1111-111111111111", "quantity": 1, "price": 0.01}
		]
	}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "VALIDATION", body["code"])
	assert.Zero(t, svc.saleCalls)
}

func TestCreateSale_ValidationNamesJSONFields(t *testing.T) {
	svc := &stubService{}
	srv, auth := newTestServer(t, svc)
	token := bearerToken(t, auth, permissions.RoleStorekeeper)

	resp := doRequest(t, srv, http.MethodPost, "/api/sales", token,
		`{"category": "pharmacy", "items": []}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody(t, resp)
	msg, _ := body["message"].(string)
	assert.True(t, strings.Contains(msg, "cardNumber"), "message %q must use the json field name", msg)
	assert.True(t, strings.Contains(msg, "category"), "message %q must name the category field", msg)
	assert.Zero(t, svc.saleCalls)
}

func TestCreateSale_NoToken(t *testing.T) {
	svc := &stubService{}
	srv, _ := newTestServer(t, svc)

	resp := doRequest(t, srv, http.MethodPost, "/api/sales", "", `{}`)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "UNAUTHENTICATED", body["code"])
	assert.Zero(t, svc.saleCalls)
}

func TestErrorCodeToStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "insufficient funds is a client error",
			err:        apperrors.New(apperrors.CodeInsufficientFunds, "insufficient funds: required 60.00, available 50.00"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INSUFFICIENT_FUNDS",
		},
		{
			name:       "forbidden",
			err:        apperrors.New(apperrors.CodeForbidden, "role snackbar may not sell in store"),
			wantStatus: http.StatusForbidden,
			wantCode:   "FORBIDDEN",
		},
		{
			name:       "not found",
			err:        apperrors.New(apperrors.CodeNotFound, "card 1234 not found"),
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "conflict",
			err:        apperrors.New(apperrors.CodeConflict, "card is already associated to an account; contact the event staff"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "CONFLICT",
		},
		{
			name:       "internal cause is hidden",
			err:        apperrors.Internal(assert.AnError),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{saleErr: tt.err}
			srv, auth := newTestServer(t, svc)
			token := bearerToken(t, auth, permissions.RoleAdmin)

			resp := doRequest(t, srv, http.MethodPost, "/api/sales", token, `{
				"cardNumber": "1234",
				"category": "store",
				"items": [{"productId": "11111111-1111-1111-1111-111111111111", "quantity": 1}]
			}`)
			require.Equal(t, tt.wantStatus, resp.StatusCode)

			body := decodeBody(t, resp)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantCode, body["code"])

			msg, _ := body["message"].(string)
			assert.NotContains(t, msg, assert.AnError.Error())
		})
	}
}

func TestCreateCard_HTTP(t *testing.T) {
	svc := &stubService{
		card: &model.Card{
			ID:           "44444444-4444-4444-4444-444444444444",
			Number:       "1234",
			Code:         "9876",
			HolderName:   "Maria",
			BalanceCents: 2500,
			CreatedAt:    time.Now(),
		},
	}
	srv, auth := newTestServer(t, svc)
	token := bearerToken(t, auth, permissions.RoleTreasurer)

	resp := doRequest(t, srv, http.MethodPost, "/api/cards", token,
		`{"number": "1234", "code": "9876", "holderName": "Maria", "initialBalance": 25.00}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	assert.Equal(t, int64(2500), svc.cardInput.InitialBalanceCents)

	body := decodeBody(t, resp)
	assert.InDelta(t, 25.00, body["balance"], 0.001)

	// The card code is a shared secret; it must never appear in a response.
	_, present := body["code"]
	assert.False(t, present)
}

func TestBalance_HTTP(t *testing.T) {
	svc := &stubService{newBalance: 7500}
	srv, auth := newTestServer(t, svc)
	token := bearerToken(t, auth, permissions.RoleTreasurer)

	resp := doRequest(t, srv, http.MethodPost, "/api/balance", token,
		`{"cardId": "44444444-4444-4444-4444-444444444444", "amount": 25.00, "type": "credit"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	assert.InDelta(t, 75.00, body["newBalance"], 0.001)
}

func TestBalance_RejectsUnknownType(t *testing.T) {
	svc := &stubService{}
	srv, auth := newTestServer(t, svc)
	token := bearerToken(t, auth, permissions.RoleTreasurer)

	resp := doRequest(t, srv, http.MethodPost, "/api/balance", token,
		`{"cardId": "44444444-4444-4444-4444-444444444444", "amount": 25.00, "type": "transfer"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMarkOrderDelivered_HTTP(t *testing.T) {
	deliveredAt := time.Now()
	svc := &stubService{
		order: &model.Order{
			ID:           "55555555-5555-5555-5555-555555555555",
			SaleID:       "66666666-6666-6666-6666-666666666666",
			CardID:       "44444444-4444-4444-4444-444444444444",
			CustomerName: "Maria",
			TotalCents:   2800,
			Status:       model.OrderStatusDelivered,
			CreatedAt:    time.Now(),
			DeliveredAt:  &deliveredAt,
		},
	}
	srv, auth := newTestServer(t, svc)
	token := bearerToken(t, auth, permissions.RoleDelivery)

	resp := doRequest(t, srv, http.MethodPost,
		"/api/orders/55555555-5555-5555-5555-555555555555/deliver", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "delivered", body["status"])
	assert.NotEmpty(t, body["deliveredAt"])
}

func TestDeleteProduct_HTTP(t *testing.T) {
	svc := &stubService{}
	srv, auth := newTestServer(t, svc)
	token := bearerToken(t, auth, permissions.RoleStorekeeper)

	resp := doRequest(t, srv, http.MethodDelete,
		"/api/products/11111111-1111-1111-1111-111111111111", token, "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestListProducts_HTTP(t *testing.T) {
	svc := &stubService{
		product: &model.Product{
			ID:         "11111111-1111-1111-1111-111111111111",
			Category:   model.CategoryStore,
			Name:       "Camiseta",
			PriceCents: 1200,
			Active:     true,
		},
	}
	srv, auth := newTestServer(t, svc)
	token := bearerToken(t, auth, permissions.RoleAttendee)

	resp := doRequest(t, srv, http.MethodGet, "/api/products?category=store", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var products []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&products))
	require.Len(t, products, 1)
	assert.Equal(t, "Camiseta", products[0]["name"])
	assert.InDelta(t, 12.00, products[0]["price"], 0.001)
}

func TestGetCardByNumber_HTTP(t *testing.T) {
	svc := &stubService{
		card: &model.Card{
			ID:     "44444444-4444-4444-4444-444444444444",
			Number: "1234",
		},
	}
	srv, auth := newTestServer(t, svc)
	token := bearerToken(t, auth, permissions.RoleCardOps)

	resp := doRequest(t, srv, http.MethodGet, "/api/cards/number/1234", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "1234", body["number"])
}
