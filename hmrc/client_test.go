package hmrc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-mtd/core"
	"github.com/goliatone/go-mtd/transport"
)

type staticFraudHeaders map[string]string

func (h staticFraudHeaders) Headers() map[string]string {
	out := make(map[string]string, len(h))
	for name, value := range h {
		out[name] = value
	}
	return out
}

type fakeTransport struct {
	response transport.Response
	err      error
	requests []transport.Request
}

func (t *fakeTransport) Do(_ context.Context, req transport.Request) (transport.Response, error) {
	t.requests = append(t.requests, req)
	if t.err != nil {
		return transport.Response{}, t.err
	}
	return t.response, nil
}

func newTestClient(t *testing.T, adapter *fakeTransport) *Client {
	t.Helper()
	client, err := NewClient(Config{
		BaseURL:      "https://api.example",
		VRN:          "123456789",
		FraudHeaders: staticFraudHeaders{"Gov-Client-Device-ID": "device-1"},
		Transport:    adapter,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func testToken() core.Token {
	return core.Token{AccessToken: "access-token"}
}

func TestGetObligations_DecodesWireDates(t *testing.T) {
	adapter := &fakeTransport{
		response: transport.Response{
			StatusCode: http.StatusOK,
			Body: []byte(`{"obligations":[
				{"start":"2026-01-01","end":"2026-03-31","due":"2026-05-07","status":"O","periodKey":"18A1"},
				{"start":"2025-10-01","end":"2025-12-31","due":"2026-02-07","status":"F","periodKey":"17A4","received":"2026-01-15"}
			]}`),
		},
	}
	client := newTestClient(t, adapter)

	obligations, err := client.GetObligations(context.Background(), testToken(), core.ObligationFilter{
		Status: core.ObligationStatusOpen,
	})
	if err != nil {
		t.Fatalf("get obligations: %v", err)
	}
	if len(obligations) != 2 {
		t.Fatalf("expected 2 obligations, got %d", len(obligations))
	}

	first := obligations[0]
	if first.PeriodKey != "18A1" || first.Status != core.ObligationStatusOpen {
		t.Fatalf("unexpected first obligation %+v", first)
	}
	wantEnd := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	if !first.End.Equal(wantEnd) {
		t.Fatalf("end date = %v, want %v", first.End, wantEnd)
	}
	if first.Received != nil {
		t.Fatalf("open obligation should have no received date")
	}
	if obligations[1].Received == nil {
		t.Fatalf("fulfilled obligation should carry its received date")
	}

	req := adapter.requests[0]
	if req.Method != http.MethodGet {
		t.Fatalf("method = %q", req.Method)
	}
	if !strings.HasSuffix(req.URL, "/organisations/vat/123456789/obligations") {
		t.Fatalf("url = %q", req.URL)
	}
	if req.Query["status"] != "O" {
		t.Fatalf("status query = %q", req.Query["status"])
	}
	if req.Headers["Accept"] != acceptHeader {
		t.Fatalf("accept header = %q", req.Headers["Accept"])
	}
	if req.Headers["Authorization"] != "Bearer access-token" {
		t.Fatalf("authorization header = %q", req.Headers["Authorization"])
	}
	if req.Headers["Gov-Client-Device-ID"] != "device-1" {
		t.Fatalf("fraud headers must ride on every request")
	}
}

func TestGetObligations_NotFoundIsEmpty(t *testing.T) {
	adapter := &fakeTransport{
		response: transport.Response{
			StatusCode: http.StatusNotFound,
			Body:       []byte(`{"code":"NOT_FOUND","message":"no obligations"}`),
		},
	}
	client := newTestClient(t, adapter)

	obligations, err := client.GetObligations(context.Background(), testToken(), core.ObligationFilter{})
	if err != nil {
		t.Fatalf("expected empty result for 404, got %v", err)
	}
	if len(obligations) != 0 {
		t.Fatalf("expected no obligations, got %d", len(obligations))
	}
}

func TestSubmitReturn_MergesReceiptHeader(t *testing.T) {
	adapter := &fakeTransport{
		response: transport.Response{
			StatusCode: http.StatusCreated,
			Headers:    map[string]string{"Receipt-Id": "receipt-abc"},
			Body: []byte(`{
				"processingDate":"2026-04-02T09:30:00Z",
				"formBundleNumber":"256660290587",
				"paymentIndicator":"BANK",
				"chargeRefNumber":"XM002610011594"
			}`),
		},
	}
	client := newTestClient(t, adapter)

	payload := core.SubmissionPayload{PeriodKey: "18A1", Finalised: true}
	receipt, err := client.SubmitReturn(context.Background(), testToken(), payload)
	if err != nil {
		t.Fatalf("submit return: %v", err)
	}

	if receipt.ReceiptID != "receipt-abc" {
		t.Fatalf("expected receipt id from the response header, got %q", receipt.ReceiptID)
	}
	if receipt.FormBundle != "256660290587" {
		t.Fatalf("form bundle = %q", receipt.FormBundle)
	}
	if receipt.PaymentRef != "BANK" || receipt.ChargeRefNo != "XM002610011594" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	req := adapter.requests[0]
	if req.Method != http.MethodPost {
		t.Fatalf("method = %q", req.Method)
	}
	if !strings.HasSuffix(req.URL, "/organisations/vat/123456789/returns") {
		t.Fatalf("url = %q", req.URL)
	}
	if req.Headers["Content-Type"] != "application/json" {
		t.Fatalf("content type = %q", req.Headers["Content-Type"])
	}

	var sent core.SubmissionPayload
	if err := json.Unmarshal(req.Body, &sent); err != nil {
		t.Fatalf("decode sent body: %v", err)
	}
	if sent.PeriodKey != "18A1" || !sent.Finalised {
		t.Fatalf("unexpected sent payload %+v", sent)
	}
}

func TestSubmitReturn_SurfacesEveryRejectionEntry(t *testing.T) {
	adapter := &fakeTransport{
		response: transport.Response{
			StatusCode: http.StatusBadRequest,
			Body: []byte(`{
				"code":"INVALID_REQUEST",
				"message":"Invalid request",
				"errors":[
					{"code":"INVALID_MONETARY_AMOUNT","message":"amount should be a monetary value"},
					{"code":"INVALID_NUMERIC_VALUE","message":"please provide a numeric field"}
				]
			}`),
		},
	}
	client := newTestClient(t, adapter)

	_, err := client.SubmitReturn(context.Background(), testToken(), core.SubmissionPayload{})
	if err == nil {
		t.Fatalf("expected rejection to fail")
	}

	entries := core.APIErrors(err)
	if len(entries) != 2 {
		t.Fatalf("expected both rejection entries, got %d", len(entries))
	}
	if entries[0].Code != "INVALID_MONETARY_AMOUNT" || entries[1].Code != "INVALID_NUMERIC_VALUE" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestSubmitReturn_AuthFailureClassification(t *testing.T) {
	adapter := &fakeTransport{
		response: transport.Response{
			StatusCode: http.StatusUnauthorized,
			Body:       []byte(`{"code":"INVALID_CREDENTIALS","message":"invalid bearer token"}`),
		},
	}
	client := newTestClient(t, adapter)

	_, err := client.SubmitReturn(context.Background(), testToken(), core.SubmissionPayload{})
	if err == nil {
		t.Fatalf("expected 401 to fail")
	}
	if !core.IsAuthRequired(err) {
		t.Fatalf("expected auth-required classification, got %v", err)
	}
}
