package core

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// submissionLockWait is deliberately short: a concurrent duplicate filing
// should be rejected, not queued behind the first.
const submissionLockWait = 250 * time.Millisecond

// SubmissionResult is the outcome of a completed filing.
type SubmissionResult struct {
	ProfileKey string
	Year       int
	Period     int
	PeriodKey  string
	Receipt    Receipt
}

// Submit files the pending return for (year, period) with the authority.
// The pipeline short-circuits on the first failure: ensure a usable token,
// load the pending return, resolve its period end-date, match it against
// the open obligations, persist the period key, POST the rounded payload,
// then record the receipt. The period key is written before the POST so a
// filing can always be tied back to its obligation; a receipt that cannot
// be recorded is reported as its own error class because the return has
// already been filed remotely.
func (s *Service) Submit(ctx context.Context, profileKey string, year, period int) (SubmissionResult, error) {
	if s == nil {
		return SubmissionResult{}, goerrors.New("core: service is nil", goerrors.CategoryInternal)
	}
	startedAt := time.Now()

	result, err := s.submit(ctx, profileKey, year, period)
	s.observeOperation(ctx, startedAt, "submit_return", err, map[string]any{
		"profile_key": result.ProfileKey,
		"year":        year,
		"period":      period,
	})
	if err != nil {
		return SubmissionResult{}, s.mapError(err)
	}
	return result, nil
}

func (s *Service) submit(ctx context.Context, profileKey string, year, period int) (SubmissionResult, error) {
	profileKey, profile, err := s.profile(profileKey)
	if err != nil {
		return SubmissionResult{ProfileKey: profileKey}, err
	}
	result := SubmissionResult{ProfileKey: profileKey, Year: year, Period: period}

	if year <= 0 || period <= 0 {
		return result, newMTDError(
			"core: year and period are required",
			goerrors.CategoryBadInput,
			MTDErrorBadInput,
		)
	}
	if s.returnStore == nil {
		return result, newMTDError(
			"core: return store is required for submissions",
			goerrors.CategoryValidation,
			MTDErrorConfigInvalid,
		)
	}

	handle, err := s.locker.Acquire(ctx, submissionLockKey(profileKey, year, period), submissionLockWait)
	if err != nil {
		return result, newMTDError(
			fmt.Sprintf("core: submission in progress for %d/%d", year, period),
			goerrors.CategoryConflict,
			MTDErrorSubmitLocked,
		)
	}
	defer handle.Unlock(ctx)

	token, _, err := s.ensureFreshToken(ctx, profileKey)
	if err != nil {
		return result, err
	}
	api, err := s.vatAPI(profileKey)
	if err != nil {
		return result, err
	}

	ret, err := s.returnStore.GetUnsubmitted(ctx, year, period)
	if err != nil {
		if goerrors.Is(err, ErrReturnNotFound) {
			return result, newMTDError(err.Error(), goerrors.CategoryNotFound, MTDErrorNotFound)
		}
		return result, newMTDError(
			fmt.Sprintf("core: return read failed: %v", err),
			goerrors.CategoryOperation,
			MTDErrorStorageFailed,
		)
	}

	periodEnd := ret.PeriodEnd
	if periodEnd.IsZero() {
		periodEnd, err = s.returnStore.ResolvePeriodEnd(ctx, year, period)
		if err != nil {
			if goerrors.Is(err, ErrReturnNotFound) {
				return result, newMTDError(err.Error(), goerrors.CategoryNotFound, MTDErrorNotFound)
			}
			return result, newMTDError(
				fmt.Sprintf("core: period end resolution failed: %v", err),
				goerrors.CategoryOperation,
				MTDErrorStorageFailed,
			)
		}
	}

	obligations, err := api.GetObligations(ctx, token, ObligationFilter{Status: ObligationStatusOpen})
	if err != nil {
		return result, err
	}

	periodKey := ""
	for _, obligation := range obligations {
		if SameDate(obligation.End, periodEnd) {
			periodKey = obligation.PeriodKey
			break
		}
	}
	if periodKey == "" {
		return result, newMTDError(
			fmt.Sprintf("core: no obligation found for period ending %s", periodEnd.UTC().Format("2006-01-02")),
			goerrors.CategoryNotFound,
			MTDErrorNotFound,
		)
	}
	result.PeriodKey = periodKey

	// Persist the key before the POST: once the authority accepts the
	// filing, the local record must already name the obligation it went to.
	if err := s.returnStore.SetPeriodKey(ctx, year, period, periodKey); err != nil {
		return result, newMTDError(
			fmt.Sprintf("core: period key save failed, submission aborted: %v", err),
			goerrors.CategoryOperation,
			MTDErrorStorageFailed,
		)
	}

	payload := BuildSubmissionPayload(ret, periodKey)
	receipt, err := api.SubmitReturn(ctx, token, payload)
	if err != nil {
		return result, err
	}
	result.Receipt = receipt

	if err := s.returnStore.SaveReceipt(ctx, year, period, receipt); err != nil {
		mapped := newMTDError(
			fmt.Sprintf("core: return submitted, but receipt could not be recorded: %v", err),
			goerrors.CategoryOperation,
			MTDErrorReceiptNotRecorded,
		).WithMetadata(map[string]any{
			"receipt_id":  receipt.ReceiptID,
			"form_bundle": receipt.FormBundle,
			"vrn":         profile.VRN,
		})
		return result, mapped
	}

	return result, nil
}
