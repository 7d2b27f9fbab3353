package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	ErrTokenNotFound      = errors.New("core: token not found")
	ErrReturnNotFound     = errors.New("core: no un-submitted return found")
	ErrObligationNotFound = errors.New("core: no obligation found for this period")
)

// Token is the persisted credential for one profile key. At most one token
// exists per profile key; a refresh replaces it wholesale.
type Token struct {
	ProfileKey   string
	AccessToken  string
	RefreshToken string
	Scopes       []string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the token is unusable at the given instant. The
// authority applies no grace skew; callers wanting an early-refresh window
// pass a non-zero skew.
func (t Token) Expired(now time.Time, skew time.Duration) bool {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if t.ExpiresAt.IsZero() {
		return true
	}
	return !now.Add(skew).Before(t.ExpiresAt.UTC())
}

func (t Token) HasRefreshToken() bool {
	return strings.TrimSpace(t.RefreshToken) != ""
}

// CredentialProfile is the immutable per-profile OAuth2 and API
// configuration, loaded once at startup and keyed by profile key.
type CredentialProfile struct {
	ClientID     string   `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string   `koanf:"client_secret" mapstructure:"client_secret"`
	RedirectURI  string   `koanf:"redirect_uri" mapstructure:"redirect_uri"`
	Scopes       []string `koanf:"scopes" mapstructure:"scopes"`
	BaseURL      string   `koanf:"base_url" mapstructure:"base_url"`
	DeviceID     string   `koanf:"device_id" mapstructure:"device_id"`
	VRN          string   `koanf:"vrn" mapstructure:"vrn"`
}

func (p CredentialProfile) AuthorizeURL() string {
	return strings.TrimRight(strings.TrimSpace(p.BaseURL), "/") + "/oauth/authorize"
}

func (p CredentialProfile) TokenURL() string {
	return strings.TrimRight(strings.TrimSpace(p.BaseURL), "/") + "/oauth/token"
}

func (p CredentialProfile) Validate() error {
	if strings.TrimSpace(p.ClientID) == "" {
		return fmt.Errorf("core: profile client_id is required")
	}
	if strings.TrimSpace(p.RedirectURI) == "" {
		return fmt.Errorf("core: profile redirect_uri is required")
	}
	if strings.TrimSpace(p.BaseURL) == "" {
		return fmt.Errorf("core: profile base_url is required")
	}
	if strings.TrimSpace(p.VRN) == "" {
		return fmt.Errorf("core: profile vrn is required")
	}
	return nil
}

type ObligationStatus string

const (
	ObligationStatusOpen      ObligationStatus = "O"
	ObligationStatusFulfilled ObligationStatus = "F"
)

// Obligation is one reporting period the authority expects a filing for.
// Obligations are transient; they are never persisted.
type Obligation struct {
	Start     time.Time
	End       time.Time
	Due       time.Time
	Status    ObligationStatus
	PeriodKey string
	Received  *time.Time
}

type ObligationFilter struct {
	Status ObligationStatus
	From   *time.Time
	To     *time.Time
}

// VatReturn is the pending return entity for a (year, period) pair. The
// nine value fields feed the submission payload under the rounding contract.
type VatReturn struct {
	ID                           string
	Year                         int
	Period                       int
	PeriodEnd                    time.Time
	VatDueSales                  float64
	VatDueAcquisitions           float64
	TotalVatDue                  float64
	VatReclaimedCurrPeriod       float64
	NetVatDue                    float64
	TotalValueSalesExVAT         float64
	TotalValuePurchasesExVAT     float64
	TotalValueGoodsSuppliedExVAT float64
	TotalAcquisitionsExVAT       float64
	Finalised                    bool
	PeriodKey                    string
	CreatedAt                    time.Time
	UpdatedAt                    time.Time
}

// SubmissionPayload is the wire body POSTed to the returns endpoint. The
// asymmetric rounding (pence on the VAT fields, whole pounds on the totals)
// mirrors the authority's API contract and must be preserved exactly.
type SubmissionPayload struct {
	PeriodKey                    string  `json:"periodKey"`
	VatDueSales                  float64 `json:"vatDueSales"`
	VatDueAcquisitions           float64 `json:"vatDueAcquisitions"`
	TotalVatDue                  float64 `json:"totalVatDue"`
	VatReclaimedCurrPeriod       float64 `json:"vatReclaimedCurrPeriod"`
	NetVatDue                    float64 `json:"netVatDue"`
	TotalValueSalesExVAT         float64 `json:"totalValueSalesExVAT"`
	TotalValuePurchasesExVAT     float64 `json:"totalValuePurchasesExVAT"`
	TotalValueGoodsSuppliedExVAT float64 `json:"totalValueGoodsSuppliedExVAT"`
	TotalAcquisitionsExVAT       float64 `json:"totalAcquisitionsExVAT"`
	Finalised                    bool    `json:"finalised"`
}

// BuildSubmissionPayload assembles the wire body from a pending return and
// the resolved period key. netVatDue is forced to its absolute value;
// finalised is always true.
func BuildSubmissionPayload(ret VatReturn, periodKey string) SubmissionPayload {
	return SubmissionPayload{
		PeriodKey:                    periodKey,
		VatDueSales:                  RoundPence(ret.VatDueSales),
		VatDueAcquisitions:           RoundPence(ret.VatDueAcquisitions),
		TotalVatDue:                  RoundPence(ret.TotalVatDue),
		VatReclaimedCurrPeriod:       RoundPence(ret.VatReclaimedCurrPeriod),
		NetVatDue:                    math.Abs(RoundPence(ret.NetVatDue)),
		TotalValueSalesExVAT:         RoundPounds(ret.TotalValueSalesExVAT),
		TotalValuePurchasesExVAT:     RoundPounds(ret.TotalValuePurchasesExVAT),
		TotalValueGoodsSuppliedExVAT: RoundPounds(ret.TotalValueGoodsSuppliedExVAT),
		TotalAcquisitionsExVAT:       RoundPounds(ret.TotalAcquisitionsExVAT),
		Finalised:                    true,
	}
}

// RoundPence rounds to 2 decimal places, half away from zero.
func RoundPence(value float64) float64 {
	return math.Round(value*100) / 100
}

// RoundPounds rounds to whole currency units, half away from zero.
func RoundPounds(value float64) float64 {
	return math.Round(value)
}

// Receipt is the authority's successful submission response body merged
// with the captured Receipt-ID response header.
type Receipt struct {
	ProcessingDate string `json:"processingDate"`
	FormBundle     string `json:"formBundleNumber"`
	PaymentRef     string `json:"paymentIndicator,omitempty"`
	ChargeRefNo    string `json:"chargeRefNumber,omitempty"`
	ReceiptID      string `json:"Receipt-ID"`
}

// SameDate reports whether two instants fall on the same calendar day in
// UTC. Obligation periods are matched on the calendar day, never the clock.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
