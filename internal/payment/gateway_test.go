package payment_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ticketflow/internal/domain"
	"ticketflow/internal/payment"
)

func TestHTTPGatewayStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/transactions/tx-1", r.URL.Path)
		w.Header().Set("content-type", "application/json")
		w.Write([]byte(`{"status":"confirmed","confirmed_amount_cents":2500}`))
	}))
	defer srv.Close()

	gw := payment.NewHTTPGateway(srv.URL, time.Second)
	res, err := gw.Status(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusConfirmed, res.Status)
	require.Equal(t, int64(2500), res.ConfirmedAmountCents)
}

func TestHTTPGatewayErrorStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream busy", http.StatusBadGateway)
	}))
	defer srv.Close()

	gw := payment.NewHTTPGateway(srv.URL, time.Second)
	_, err := gw.Status(context.Background(), "tx-1")
	require.Error(t, err)
}

func TestHTTPGatewayUnknownStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"mystery"}`))
	}))
	defer srv.Close()

	gw := payment.NewHTTPGateway(srv.URL, time.Second)
	_, err := gw.Status(context.Background(), "tx-1")
	require.Error(t, err)
}
