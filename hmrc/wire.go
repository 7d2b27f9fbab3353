package hmrc

import (
	"fmt"
	"strings"
	"time"
)

const wireDateLayout = "2006-01-02"

// apiDate is the authority's calendar-day wire format. Values carry no
// clock or zone; they decode to midnight UTC.
type apiDate struct {
	time.Time
}

func (d *apiDate) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		d.Time = time.Time{}
		return nil
	}
	parsed, err := time.ParseInLocation(wireDateLayout, raw, time.UTC)
	if err != nil {
		return fmt.Errorf("hmrc: invalid date %q: %w", raw, err)
	}
	d.Time = parsed
	return nil
}

func (d apiDate) MarshalJSON() ([]byte, error) {
	if d.Time.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Time.UTC().Format(wireDateLayout) + `"`), nil
}

func formatWireDate(value time.Time) string {
	return value.UTC().Format(wireDateLayout)
}

type wireObligation struct {
	Start     apiDate  `json:"start"`
	End       apiDate  `json:"end"`
	Due       apiDate  `json:"due"`
	Status    string   `json:"status"`
	PeriodKey string   `json:"periodKey"`
	Received  *apiDate `json:"received,omitempty"`
}

type wireObligationsResponse struct {
	Obligations []wireObligation `json:"obligations"`
}

type wireReceipt struct {
	ProcessingDate string `json:"processingDate"`
	FormBundle     string `json:"formBundleNumber"`
	PaymentRef     string `json:"paymentIndicator"`
	ChargeRefNo    string `json:"chargeRefNumber"`
}
