package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-mtd/core"
	"github.com/uptrace/bun"
)

// ReturnStore serves the pending-return side of the submission pipeline.
// A return is pending while finalised is false; SaveReceipt flips it.
type ReturnStore struct {
	db   *bun.DB
	repo repository.Repository[*vatReturnRecord]
}

func (s *ReturnStore) GetUnsubmitted(ctx context.Context, year, period int) (core.VatReturn, error) {
	if s == nil || s.repo == nil {
		return core.VatReturn{}, fmt.Errorf("sqlstore: return store is not configured")
	}

	record := new(vatReturnRecord)
	err := s.db.NewSelect().
		Model(record).
		Where("year = ?", year).
		Where("period = ?", period).
		Where("finalised = ?", false).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.VatReturn{}, core.ErrReturnNotFound
		}
		return core.VatReturn{}, err
	}
	return record.toDomain(), nil
}

func (s *ReturnStore) ResolvePeriodEnd(ctx context.Context, year, period int) (time.Time, error) {
	if s == nil || s.db == nil {
		return time.Time{}, fmt.Errorf("sqlstore: return store is not configured")
	}

	var periodEnd sql.NullTime
	err := s.db.NewSelect().
		Model((*vatReturnRecord)(nil)).
		ColumnExpr("MAX(period_end)").
		Where("year = ?", year).
		Where("period = ?", period).
		Where("finalised = ?", false).
		Scan(ctx, &periodEnd)
	if err != nil {
		return time.Time{}, err
	}
	if !periodEnd.Valid || periodEnd.Time.IsZero() {
		return time.Time{}, core.ErrReturnNotFound
	}
	return periodEnd.Time, nil
}

func (s *ReturnStore) SetPeriodKey(ctx context.Context, year, period int, periodKey string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: return store is not configured")
	}
	periodKey = strings.TrimSpace(periodKey)
	if periodKey == "" {
		return fmt.Errorf("sqlstore: period key is required")
	}

	result, err := s.db.NewUpdate().
		Model((*vatReturnRecord)(nil)).
		Set("period_key = ?", periodKey).
		Set("updated_at = ?", time.Now().UTC()).
		Where("year = ?", year).
		Where("period = ?", period).
		Where("finalised = ?", false).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return core.ErrReturnNotFound
	}
	return nil
}

func (s *ReturnStore) SaveReceipt(ctx context.Context, year, period int, receipt core.Receipt) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: return store is not configured")
	}

	result, err := s.db.NewUpdate().
		Model((*vatReturnRecord)(nil)).
		Set("finalised = ?", true).
		Set("receipt_id = ?", strings.TrimSpace(receipt.ReceiptID)).
		Set("form_bundle = ?", strings.TrimSpace(receipt.FormBundle)).
		Set("processing_date = ?", strings.TrimSpace(receipt.ProcessingDate)).
		Set("payment_ref = ?", strings.TrimSpace(receipt.PaymentRef)).
		Set("charge_ref_no = ?", strings.TrimSpace(receipt.ChargeRefNo)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("year = ?", year).
		Where("period = ?", period).
		Where("finalised = ?", false).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return core.ErrReturnNotFound
	}
	return nil
}
