package hmrc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-mtd/core"
	"github.com/goliatone/go-mtd/transport"
)

// acceptHeader pins the authority's API version. Submissions and
// obligation reads share it.
const acceptHeader = "application/vnd.hmrc.1.0+json"

const receiptIDHeader = "Receipt-ID"

const defaultRequestTimeout = 60 * time.Second

// Transport is the HTTP exchange surface the client consumes.
type Transport interface {
	Do(ctx context.Context, req transport.Request) (transport.Response, error)
}

// Config binds one client to one VAT registration. FraudHeaders is
// mandatory: the authority rejects requests without the full set.
type Config struct {
	BaseURL        string
	VRN            string
	FraudHeaders   core.FraudHeaders
	Transport      Transport
	RequestTimeout time.Duration
}

// Client is the authority-facing VAT API surface: obligations fetch and
// return submission.
type Client struct {
	cfg       Config
	transport Transport
}

func NewClient(cfg Config) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.VRN = strings.TrimSpace(cfg.VRN)

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("hmrc: base url is required")
	}
	if cfg.VRN == "" {
		return nil, fmt.Errorf("hmrc: vrn is required")
	}
	if cfg.FraudHeaders == nil {
		return nil, fmt.Errorf("hmrc: fraud headers are required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	adapter := cfg.Transport
	if adapter == nil {
		adapter = transport.NewRESTAdapter(nil)
	}

	return &Client{
		cfg:       cfg,
		transport: adapter,
	}, nil
}

// GetObligations fetches the reporting obligations for the registration.
// A 404 from the authority means no obligations match the filter; that is
// an empty result, not an error.
func (c *Client) GetObligations(ctx context.Context, token core.Token, filter core.ObligationFilter) ([]core.Obligation, error) {
	if c == nil {
		return nil, fmt.Errorf("hmrc: client is nil")
	}

	query := map[string]string{}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}
	if filter.From != nil {
		query["from"] = formatWireDate(*filter.From)
	}
	if filter.To != nil {
		query["to"] = formatWireDate(*filter.To)
	}

	response, err := c.transport.Do(ctx, transport.Request{
		Method:  http.MethodGet,
		URL:     c.endpoint("obligations"),
		Query:   query,
		Headers: c.requestHeaders(token, false),
		Timeout: c.cfg.RequestTimeout,
	})
	if err != nil {
		return nil, err
	}
	if response.StatusCode == http.StatusNotFound {
		return []core.Obligation{}, nil
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return nil, apiError("get obligations", response)
	}

	var decoded wireObligationsResponse
	if err := json.Unmarshal(response.Body, &decoded); err != nil {
		return nil, fmt.Errorf("hmrc: decode obligations response: %w", err)
	}

	obligations := make([]core.Obligation, 0, len(decoded.Obligations))
	for _, wire := range decoded.Obligations {
		obligation := core.Obligation{
			Start:     wire.Start.Time,
			End:       wire.End.Time,
			Due:       wire.Due.Time,
			Status:    core.ObligationStatus(strings.TrimSpace(wire.Status)),
			PeriodKey: strings.TrimSpace(wire.PeriodKey),
		}
		if wire.Received != nil && !wire.Received.Time.IsZero() {
			received := wire.Received.Time
			obligation.Received = &received
		}
		obligations = append(obligations, obligation)
	}
	return obligations, nil
}

// SubmitReturn POSTs the rounded payload to the returns endpoint and
// merges the Receipt-ID response header into the receipt body.
func (c *Client) SubmitReturn(ctx context.Context, token core.Token, payload core.SubmissionPayload) (core.Receipt, error) {
	if c == nil {
		return core.Receipt{}, fmt.Errorf("hmrc: client is nil")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return core.Receipt{}, fmt.Errorf("hmrc: encode submission payload: %w", err)
	}

	response, err := c.transport.Do(ctx, transport.Request{
		Method:  http.MethodPost,
		URL:     c.endpoint("returns"),
		Headers: c.requestHeaders(token, true),
		Body:    body,
		Timeout: c.cfg.RequestTimeout,
	})
	if err != nil {
		return core.Receipt{}, err
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return core.Receipt{}, apiError("submit return", response)
	}

	var decoded wireReceipt
	if len(response.Body) > 0 {
		if err := json.Unmarshal(response.Body, &decoded); err != nil {
			return core.Receipt{}, fmt.Errorf("hmrc: decode submission response: %w", err)
		}
	}

	return core.Receipt{
		ProcessingDate: strings.TrimSpace(decoded.ProcessingDate),
		FormBundle:     strings.TrimSpace(decoded.FormBundle),
		PaymentRef:     strings.TrimSpace(decoded.PaymentRef),
		ChargeRefNo:    strings.TrimSpace(decoded.ChargeRefNo),
		ReceiptID:      strings.TrimSpace(response.Header(receiptIDHeader)),
	}, nil
}

func (c *Client) endpoint(resource string) string {
	return c.cfg.BaseURL + "/organisations/vat/" + url.PathEscape(c.cfg.VRN) + "/" + resource
}

func (c *Client) requestHeaders(token core.Token, withBody bool) map[string]string {
	headers := c.cfg.FraudHeaders.Headers()
	headers["Accept"] = acceptHeader
	headers["Authorization"] = "Bearer " + strings.TrimSpace(token.AccessToken)
	if withBody {
		headers["Content-Type"] = "application/json"
	}
	return headers
}

var _ core.VatAPI = (*Client)(nil)
