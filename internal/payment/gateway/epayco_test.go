package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-pettag/internal/logger"
	"ms-pettag/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEpayco(t *testing.T, handler http.HandlerFunc) *Epayco {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	e, err := NewEpayco(EpaycoConfig{
		APIURL:        srv.URL,
		ValidationURL: srv.URL + "/validation/v1/reference",
		PublicKey:     "pub",
		PrivateKey:    "priv",
		TestMode:      true,
		Timeout:       2 * time.Second,
	}, logger.NewNop())
	require.NoError(t, err)
	return e
}

func TestNewEpaycoValidatesURLs(t *testing.T) {
	_, err := NewEpayco(EpaycoConfig{APIURL: "/relative", ValidationURL: "https://x"}, logger.NewNop())
	assert.Error(t, err)
	_, err = NewEpayco(EpaycoConfig{APIURL: "https://x", ValidationURL: "://bad"}, logger.NewNop())
	assert.Error(t, err)
}

func TestEpaycoGetStatus(t *testing.T) {
	e := newTestEpayco(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/validation/v1/reference/REF-77", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{
			"x_ref_payco":"REF-77","x_transaction_id":123456,"x_cod_transaction_state":1,
			"x_transaction_state":"Aceptada","x_response":"Aceptada","x_extra1":"order-1",
			"x_amount":"45000","x_currency_code":"COP","x_approval_code":"000111",
			"x_franchise":"VS","x_cardnumber":"457562******0326"}}`))
	})

	res, err := e.GetStatus(context.Background(), "REF-77")

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "REF-77", res.Reference)
	assert.Equal(t, "123456", res.TransactionID)
	assert.Equal(t, "1", res.StateCode)
	assert.Equal(t, "Aceptada", res.Status)
	assert.Equal(t, "order-1", res.OrderID)
	assert.Equal(t, "45000", res.Amount)
	assert.Equal(t, "0326", res.CardLast4)
}

func TestEpaycoGetStatus_FallsBackToInvoiceID(t *testing.T) {
	e := newTestEpayco(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"x_ref_payco":"R1","x_id_invoice":"order-9","x_cod_transaction_state":"3"}}`))
	})

	res, err := e.GetStatus(context.Background(), "R1")

	require.NoError(t, err)
	assert.Equal(t, "order-9", res.OrderID)
	assert.Equal(t, "3", res.StateCode)
}

func TestEpaycoGetStatus_RejectsUnsafeReference(t *testing.T) {
	var hits int
	e := newTestEpayco(t, func(w http.ResponseWriter, r *http.Request) {
		hits++
	})

	for _, ref := range []string{"..", "a/b", "../../admin", "R1?x=1", "R 1", "%2e%2e", ""} {
		_, err := e.GetStatus(context.Background(), ref)
		assert.ErrorIs(t, err, ErrInvalidReference, "ref %q", ref)
	}
	assert.Zero(t, hits)
}

func TestEpaycoGetStatus_NumericReferenceStaysUnderValidationPath(t *testing.T) {
	e := newTestEpayco(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/validation/v1/reference/98765", r.URL.Path)
		assert.Equal(t, "/validation/v1/reference/98765", r.URL.EscapedPath())
		w.Write([]byte(`{"success":true,"data":{"x_ref_payco":98765,"x_cod_transaction_state":1}}`))
	})

	res, err := e.GetStatus(context.Background(), "98765")

	require.NoError(t, err)
	assert.Equal(t, "98765", res.Reference)
}

func TestEpaycoGetStatus_ServerError(t *testing.T) {
	e := newTestEpayco(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := e.GetStatus(context.Background(), "R1")
	assert.Error(t, err)
}

func TestEpaycoGetStatus_ContextTimeout(t *testing.T) {
	e := newTestEpayco(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := e.GetStatus(ctx, "R1")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEpaycoCharge(t *testing.T) {
	var got map[string]interface{}
	e := newTestEpayco(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payment/v1/charge/create", r.URL.Path)
		assert.Equal(t, "Bearer priv", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"success":true,"data":{"ref_payco":998877,"estado":"Aceptada","respuesta":"Aprobada","cod_estado":1}}`))
	})

	res, err := e.Charge(context.Background(), ChargeParams{
		OrderID:  "order-1",
		Token:    "tok_abc",
		Amount:   30000,
		Currency: "COP",
		Customer: models.Customer{Name: "Ana", Email: "ana@example.com", Phone: "3001234567"},
		Shipping: models.Shipping{City: "Bogotá", Address: "Cra 7"},
	})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "998877", res.Reference)
	assert.Equal(t, "1", res.StateCode)
	assert.Equal(t, "Aceptada", res.Status)

	assert.Equal(t, "order-1", got["extra1"])
	assert.Equal(t, "order-1", got["bill"])
	assert.Equal(t, "30000", got["value"])
	assert.Equal(t, "CC", got["doc_type"])
	assert.Equal(t, "1", got["dues"])
	assert.Equal(t, "tok_abc", got["token_card"])
}

func TestLastFour(t *testing.T) {
	assert.Equal(t, "0326", LastFour("457562******0326"))
	assert.Equal(t, "12", LastFour("12"))
	assert.Equal(t, "", LastFour(""))
}
