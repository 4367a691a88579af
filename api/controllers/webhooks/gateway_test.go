package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/angelmondragon/eventreg-backend/api/responses"
	pkgerrors "github.com/angelmondragon/eventreg-backend/pkg/errors"
	"github.com/angelmondragon/eventreg-backend/pkg/gateway"
)

type stubIngester struct {
	status    int
	err       error
	payload   []byte
	signature string
	calls     int
}

func (s *stubIngester) Ingest(ctx context.Context, payload []byte, signature string) (int, error) {
	s.calls++
	s.payload = payload
	s.signature = signature
	return s.status, s.err
}

func postWebhook(t *testing.T, svc GatewayWebhookService, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gateway", strings.NewReader(body))
	req.Header.Set(gateway.SignatureHeader, "abc123")
	rec := httptest.NewRecorder()
	GatewayWebhook(svc, nil).ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env responses.ErrorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return env.Error.Code
}

func TestGatewayWebhookPassesRawBodyAndSignature(t *testing.T) {
	svc := &stubIngester{status: http.StatusOK}
	body := `{"id":"evt_1","type":"payment.captured"}`

	rec := postWebhook(t, svc, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if string(svc.payload) != body {
		t.Fatalf("payload altered: %q", svc.payload)
	}
	if svc.signature != "abc123" {
		t.Fatalf("unexpected signature %q", svc.signature)
	}
}

func TestGatewayWebhookKeepsPipelineStatus(t *testing.T) {
	cases := []struct {
		name   string
		status int
		err    error
		code   pkgerrors.Code
	}{
		{"bad signature", http.StatusUnauthorized, errors.New("signature mismatch"), pkgerrors.CodeUnauthorized},
		{"malformed", http.StatusBadRequest, errors.New("missing id"), pkgerrors.CodeValidation},
		{"handler failure", http.StatusInternalServerError, errors.New("deadlock detected"), pkgerrors.CodeInternal},
		{"typed failure", http.StatusInternalServerError, pkgerrors.New(pkgerrors.CodeInternal, "transition failed"), pkgerrors.CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postWebhook(t, &stubIngester{status: tc.status, err: tc.err}, `{}`)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			if code := errorCode(t, rec); code != string(tc.code) {
				t.Fatalf("expected %s, got %s", tc.code, code)
			}
		})
	}
}

func TestGatewayWebhookRejectsOversizedBody(t *testing.T) {
	svc := &stubIngester{status: http.StatusOK}
	rec := postWebhook(t, svc, strings.Repeat("a", maxWebhookBody+1))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if svc.calls != 0 {
		t.Fatal("oversized body must not reach the pipeline")
	}
}
