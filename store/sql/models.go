package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-mtd/core"
	"github.com/uptrace/bun"
)

type tokenRecord struct {
	bun.BaseModel `bun:"table:mtd_tokens,alias:mt"`

	ID           string    `bun:"id,pk"`
	ProfileKey   string    `bun:"profile_key,notnull"`
	AccessToken  string    `bun:"access_token,notnull"`
	RefreshToken string    `bun:"refresh_token"`
	Scopes       []string  `bun:"scopes,type:jsonb,notnull"`
	ExpiresAt    time.Time `bun:"expires_at,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *tokenRecord) toDomain() core.Token {
	if r == nil {
		return core.Token{}
	}
	return core.Token{
		ProfileKey:   strings.TrimSpace(r.ProfileKey),
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		Scopes:       append([]string(nil), r.Scopes...),
		ExpiresAt:    r.ExpiresAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type vatReturnRecord struct {
	bun.BaseModel `bun:"table:mtd_vat_returns,alias:mvr"`

	ID                           string    `bun:"id,pk"`
	Year                         int       `bun:"year,notnull"`
	Period                       int       `bun:"period,notnull"`
	PeriodEnd                    time.Time `bun:"period_end,nullzero"`
	VatDueSales                  float64   `bun:"vat_due_sales,notnull"`
	VatDueAcquisitions           float64   `bun:"vat_due_acquisitions,notnull"`
	TotalVatDue                  float64   `bun:"total_vat_due,notnull"`
	VatReclaimedCurrPeriod       float64   `bun:"vat_reclaimed_curr_period,notnull"`
	NetVatDue                    float64   `bun:"net_vat_due,notnull"`
	TotalValueSalesExVAT         float64   `bun:"total_value_sales_ex_vat,notnull"`
	TotalValuePurchasesExVAT     float64   `bun:"total_value_purchases_ex_vat,notnull"`
	TotalValueGoodsSuppliedExVAT float64   `bun:"total_value_goods_supplied_ex_vat,notnull"`
	TotalAcquisitionsExVAT       float64   `bun:"total_acquisitions_ex_vat,notnull"`
	Finalised                    bool      `bun:"finalised,notnull"`
	PeriodKey                    string    `bun:"period_key"`
	ReceiptID                    string    `bun:"receipt_id"`
	FormBundle                   string    `bun:"form_bundle"`
	ProcessingDate               string    `bun:"processing_date"`
	PaymentRef                   string    `bun:"payment_ref"`
	ChargeRefNo                  string    `bun:"charge_ref_no"`
	CreatedAt                    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt                    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *vatReturnRecord) toDomain() core.VatReturn {
	if r == nil {
		return core.VatReturn{}
	}
	return core.VatReturn{
		ID:                           strings.TrimSpace(r.ID),
		Year:                         r.Year,
		Period:                       r.Period,
		PeriodEnd:                    r.PeriodEnd,
		VatDueSales:                  r.VatDueSales,
		VatDueAcquisitions:           r.VatDueAcquisitions,
		TotalVatDue:                  r.TotalVatDue,
		VatReclaimedCurrPeriod:       r.VatReclaimedCurrPeriod,
		NetVatDue:                    r.NetVatDue,
		TotalValueSalesExVAT:         r.TotalValueSalesExVAT,
		TotalValuePurchasesExVAT:     r.TotalValuePurchasesExVAT,
		TotalValueGoodsSuppliedExVAT: r.TotalValueGoodsSuppliedExVAT,
		TotalAcquisitionsExVAT:       r.TotalAcquisitionsExVAT,
		Finalised:                    r.Finalised,
		PeriodKey:                    strings.TrimSpace(r.PeriodKey),
		CreatedAt:                    r.CreatedAt,
		UpdatedAt:                    r.UpdatedAt,
	}
}
