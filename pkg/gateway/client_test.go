package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/eventreg-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/eventreg-backend/pkg/errors"
)

func TestCreatePaymentSessionSendsRequest(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment-sessions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test" {
			t.Fatalf("unexpected auth header %q", got)
		}
		if got := r.Header.Get("Idempotency-Key"); got != "ER-20260101-ABCDEF12" {
			t.Fatalf("unexpected idempotency key %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"session_id":"ps_123","session_url":"https://pay.test/ps_123"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, time.Second)
	session, err := client.CreatePaymentSession(context.Background(), SessionRequest{
		Amount:              AmountFromCents(150050),
		Currency:            "PHP",
		PaymentMethods:      []string{"card"},
		ExternalOrderNumber: "ER-20260101-ABCDEF12",
		ReturnURL:           "https://events.test/return",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.ID != "ps_123" || session.URL != "https://pay.test/ps_123" {
		t.Fatalf("unexpected session %+v", session)
	}
	if captured["amount"] != "1500.5" {
		t.Fatalf("expected decimal amount, got %v", captured["amount"])
	}
	if captured["external_order_number"] != "ER-20260101-ABCDEF12" {
		t.Fatalf("unexpected order number %v", captured["external_order_number"])
	}
}

func TestCreatePaymentSessionFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusBadGateway)
		},
		"incomplete body": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"session_id":"ps_1"}`))
		},
		"timeout": func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		},
	}

	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(handler)
			defer server.Close()

			client := newTestClient(t, server.URL, 50*time.Millisecond)
			_, err := client.CreatePaymentSession(context.Background(), SessionRequest{ExternalOrderNumber: "ER-1"})
			if !pkgerrors.HasCode(err, pkgerrors.CodeGatewayUnavailable) {
				t.Fatalf("expected gateway unavailable, got %v", err)
			}
		})
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	if _, err := NewClient(config.GatewayConfig{APIKey: "k"}, nil); err == nil {
		t.Fatal("expected missing base url to fail")
	}
	if _, err := NewClient(config.GatewayConfig{BaseURL: "https://gw.test"}, nil); err == nil {
		t.Fatal("expected missing api key to fail")
	}
	client, err := NewClient(config.GatewayConfig{BaseURL: "https://gw.test/", APIKey: "k", Currency: "php"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Currency() != "PHP" || client.Timeout() != defaultTimeout {
		t.Fatalf("unexpected defaults currency=%s timeout=%v", client.Currency(), client.Timeout())
	}
}

func TestMoneyConversions(t *testing.T) {
	if got := AmountFromCents(1999).String(); got != "19.99" {
		t.Fatalf("unexpected amount %s", got)
	}
	if got := CentsFromAmount(decimal.RequireFromString("20.005")); got != 2001 {
		t.Fatalf("expected rounding to 2001, got %d", got)
	}
}

func newTestClient(t *testing.T, baseURL string, timeout time.Duration) *Client {
	t.Helper()
	client, err := NewClient(config.GatewayConfig{
		BaseURL:  baseURL,
		APIKey:   "sk_test",
		Timeout:  timeout,
		Currency: "PHP",
	}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}
