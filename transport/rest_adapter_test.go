package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
)

type fakeDoer struct {
	lastReq *http.Request
	status  int
	body    string
	headers http.Header
}

func (d *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	d.lastReq = req
	status := d.status
	if status == 0 {
		status = http.StatusOK
	}
	headers := d.headers
	if headers == nil {
		headers = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Header:     headers,
		Body:       io.NopCloser(bytes.NewReader([]byte(d.body))),
	}, nil
}

func TestRESTAdapter_RequestHeadersWinOverDefaults(t *testing.T) {
	doer := &fakeDoer{body: `{}`}
	adapter := NewRESTAdapter(doer)
	adapter.DefaultHeaders["Accept"] = "application/json"
	adapter.DefaultHeaders["User-Agent"] = "base-agent"

	_, err := adapter.Do(context.Background(), Request{
		Method:  http.MethodGet,
		URL:     "https://api.example/path",
		Headers: map[string]string{"Accept": "application/vnd.hmrc.1.0+json"},
		Query:   map[string]string{"status": "O"},
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if got := doer.lastReq.Header.Get("Accept"); got != "application/vnd.hmrc.1.0+json" {
		t.Fatalf("expected request header to override default, got %q", got)
	}
	if got := doer.lastReq.Header.Get("User-Agent"); got != "base-agent" {
		t.Fatalf("expected default header to survive, got %q", got)
	}
	if got := doer.lastReq.URL.Query().Get("status"); got != "O" {
		t.Fatalf("expected query to be merged, got %q", got)
	}
}

func TestRESTAdapter_OversizedResponseIsRejected(t *testing.T) {
	doer := &fakeDoer{body: strings.Repeat("x", 64)}
	adapter := NewRESTAdapter(doer)
	adapter.MaxResponseBodyBytes = 32

	_, err := adapter.Do(context.Background(), Request{
		Method: http.MethodGet,
		URL:    "https://api.example/path",
	})
	if err == nil {
		t.Fatalf("expected oversized response to be rejected")
	}
}

func TestRESTAdapter_RequiresURL(t *testing.T) {
	adapter := NewRESTAdapter(&fakeDoer{})
	if _, err := adapter.Do(context.Background(), Request{Method: http.MethodGet}); err == nil {
		t.Fatalf("expected empty url to be rejected")
	}
}

func TestResponseHeaderIsCaseInsensitive(t *testing.T) {
	res := Response{Headers: map[string]string{"Receipt-Id": "receipt-123"}}
	if got := res.Header("Receipt-ID"); got != "receipt-123" {
		t.Fatalf("expected case-insensitive lookup, got %q", got)
	}
}
