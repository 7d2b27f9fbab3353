package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeReturnStore struct {
	mu            sync.Mutex
	pending       *VatReturn
	periodKey     string
	receipt       *Receipt
	setKeyErr     error
	saveRcptErr   error
	getCalls      int
	setKeyCalls   int
	saveRcptCalls int
}

func (s *fakeReturnStore) GetUnsubmitted(_ context.Context, year, period int) (VatReturn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.pending == nil || s.pending.Year != year || s.pending.Period != period {
		return VatReturn{}, ErrReturnNotFound
	}
	return *s.pending, nil
}

func (s *fakeReturnStore) ResolvePeriodEnd(_ context.Context, year, period int) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return time.Time{}, ErrReturnNotFound
	}
	return s.pending.PeriodEnd, nil
}

func (s *fakeReturnStore) SetPeriodKey(_ context.Context, _, _ int, periodKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setKeyCalls++
	if s.setKeyErr != nil {
		return s.setKeyErr
	}
	s.periodKey = periodKey
	return nil
}

func (s *fakeReturnStore) SaveReceipt(_ context.Context, _, _ int, receipt Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveRcptCalls++
	if s.saveRcptErr != nil {
		return s.saveRcptErr
	}
	s.receipt = &receipt
	return nil
}

type fakeVatAPI struct {
	mu          sync.Mutex
	obligations []Obligation
	receipt     Receipt
	submitErr   error
	submitCalls int
	lastPayload SubmissionPayload
	onSubmit    func()
}

func (a *fakeVatAPI) GetObligations(_ context.Context, _ Token, _ ObligationFilter) ([]Obligation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Obligation(nil), a.obligations...), nil
}

func (a *fakeVatAPI) SubmitReturn(_ context.Context, _ Token, payload SubmissionPayload) (Receipt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.submitCalls++
	a.lastPayload = payload
	if a.onSubmit != nil {
		a.onSubmit()
	}
	if a.submitErr != nil {
		return Receipt{}, a.submitErr
	}
	return a.receipt, nil
}

func (a *fakeVatAPI) submitCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.submitCalls
}

func periodEnd() time.Time {
	return time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
}

func pendingReturn() *VatReturn {
	return &VatReturn{
		Year:                   2026,
		Period:                 1,
		PeriodEnd:              periodEnd(),
		VatDueSales:            100.456,
		TotalVatDue:            100.46,
		VatReclaimedCurrPeriod: 20,
		NetVatDue:              -80.455,
		TotalValueSalesExVAT:   1000.4,
	}
}

func newSubmitService(t *testing.T, returns *fakeReturnStore, api *fakeVatAPI) (*Service, *fakeTokenStore, *fakeAuthClient) {
	t.Helper()
	store := newFakeTokenStore()
	store.tokens[DefaultProfileKey] = Token{
		ProfileKey:   DefaultProfileKey,
		AccessToken:  "live",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().UTC().Add(time.Hour),
	}
	auth := &fakeAuthClient{}
	service := newTestService(t, store, auth,
		WithReturnStore(returns),
		WithVatAPIFactory(func(string, CredentialProfile) (VatAPI, error) {
			return api, nil
		}),
	)
	return service, store, auth
}

func TestSubmit_FilesReturnAgainstMatchingObligation(t *testing.T) {
	returns := &fakeReturnStore{pending: pendingReturn()}
	api := &fakeVatAPI{
		obligations: []Obligation{
			{End: time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), Status: ObligationStatusOpen, PeriodKey: "17A4"},
			{End: periodEnd(), Status: ObligationStatusOpen, PeriodKey: "18A1"},
		},
		receipt: Receipt{
			ProcessingDate: "2026-04-02T09:30:00Z",
			FormBundle:     "256660290587",
			ReceiptID:      "receipt-123",
		},
	}
	// The period key must be on record before the POST goes out.
	api.onSubmit = func() {
		if returns.periodKey == "" {
			t.Errorf("submission posted before the period key was persisted")
		}
	}

	service, _, _ := newSubmitService(t, returns, api)

	result, err := service.Submit(context.Background(), "", 2026, 1)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.PeriodKey != "18A1" {
		t.Fatalf("expected obligation 18A1 to match, got %q", result.PeriodKey)
	}
	if result.Receipt.ReceiptID != "receipt-123" {
		t.Fatalf("expected receipt id to be carried through, got %q", result.Receipt.ReceiptID)
	}
	if returns.receipt == nil || returns.receipt.FormBundle != "256660290587" {
		t.Fatalf("expected receipt to be recorded locally")
	}
	if api.lastPayload.VatDueSales != 100.46 {
		t.Fatalf("expected rounded vatDueSales, got %v", api.lastPayload.VatDueSales)
	}
	if api.lastPayload.NetVatDue != 80.46 {
		t.Fatalf("expected absolute rounded netVatDue, got %v", api.lastPayload.NetVatDue)
	}
	if api.lastPayload.TotalValueSalesExVAT != 1000 {
		t.Fatalf("expected whole-pound sales total, got %v", api.lastPayload.TotalValueSalesExVAT)
	}
	if !api.lastPayload.Finalised {
		t.Fatalf("payload must always be finalised")
	}
}

func TestSubmit_NoPendingReturn(t *testing.T) {
	returns := &fakeReturnStore{}
	api := &fakeVatAPI{}
	service, _, _ := newSubmitService(t, returns, api)

	_, err := service.Submit(context.Background(), "", 2026, 1)
	if err == nil {
		t.Fatalf("expected missing return to fail")
	}
	if api.submitCount() != 0 {
		t.Fatalf("missing return must not reach the API")
	}
}

func TestSubmit_NoMatchingObligation(t *testing.T) {
	returns := &fakeReturnStore{pending: pendingReturn()}
	api := &fakeVatAPI{
		obligations: []Obligation{
			{End: time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), Status: ObligationStatusOpen, PeriodKey: "17A4"},
		},
	}
	service, _, _ := newSubmitService(t, returns, api)

	_, err := service.Submit(context.Background(), "", 2026, 1)
	if err == nil {
		t.Fatalf("expected unmatched period end to fail")
	}
	if returns.setKeyCalls != 0 {
		t.Fatalf("no period key should be persisted without a match")
	}
	if api.submitCount() != 0 {
		t.Fatalf("no submission should be posted without a match")
	}
}

func TestSubmit_PeriodKeyPersistFailureAbortsPost(t *testing.T) {
	returns := &fakeReturnStore{
		pending:   pendingReturn(),
		setKeyErr: fmt.Errorf("disk full"),
	}
	api := &fakeVatAPI{
		obligations: []Obligation{{End: periodEnd(), Status: ObligationStatusOpen, PeriodKey: "18A1"}},
	}
	service, _, _ := newSubmitService(t, returns, api)

	_, err := service.Submit(context.Background(), "", 2026, 1)
	if err == nil {
		t.Fatalf("expected period key persistence failure to abort")
	}
	if api.submitCount() != 0 {
		t.Fatalf("the POST must not happen when the key cannot be recorded, got %d calls", api.submitCount())
	}
}

func TestSubmit_MissingTokenFailsBeforeReturnLookup(t *testing.T) {
	returns := &fakeReturnStore{}
	api := &fakeVatAPI{}
	store := newFakeTokenStore()
	auth := &fakeAuthClient{}
	service := newTestService(t, store, auth,
		WithReturnStore(returns),
		WithVatAPIFactory(func(string, CredentialProfile) (VatAPI, error) {
			return api, nil
		}),
	)

	_, err := service.Submit(context.Background(), "", 2026, 1)
	if err == nil {
		t.Fatalf("expected missing token to fail the submission")
	}
	if !IsAuthRequired(err) {
		t.Fatalf("expected auth-required classification, got %v", err)
	}
	if returns.getCalls != 0 {
		t.Fatalf("an unauthorized caller must not reach the return store, got %d reads", returns.getCalls)
	}
}

func TestSubmit_ConcurrentDuplicateIsRejected(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	returns := &fakeReturnStore{pending: pendingReturn()}
	api := &fakeVatAPI{
		obligations: []Obligation{{End: periodEnd(), Status: ObligationStatusOpen, PeriodKey: "18A1"}},
		receipt:     Receipt{ReceiptID: "receipt-123"},
	}
	api.onSubmit = func() {
		close(entered)
		<-release
	}
	service, _, _ := newSubmitService(t, returns, api)

	firstDone := make(chan error, 1)
	go func() {
		_, err := service.Submit(context.Background(), "", 2026, 1)
		firstDone <- err
	}()
	<-entered

	// The first filing holds the period guard mid-POST; the duplicate must
	// be rejected rather than queued behind it.
	_, err := service.Submit(context.Background(), "", 2026, 1)
	if err == nil {
		t.Fatalf("expected the concurrent duplicate to be rejected")
	}
	if !hasTextCode(err, MTDErrorSubmitLocked) {
		t.Fatalf("expected a submit-locked conflict, got %v", err)
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first submission should have completed: %v", err)
	}
	if got := api.submitCount(); got != 1 {
		t.Fatalf("expected exactly one POST across both callers, got %d", got)
	}
}

func TestSubmit_ReceiptPersistFailureIsItsOwnErrorClass(t *testing.T) {
	returns := &fakeReturnStore{
		pending:     pendingReturn(),
		saveRcptErr: fmt.Errorf("connection lost"),
	}
	api := &fakeVatAPI{
		obligations: []Obligation{{End: periodEnd(), Status: ObligationStatusOpen, PeriodKey: "18A1"}},
		receipt:     Receipt{ReceiptID: "receipt-123"},
	}
	service, _, _ := newSubmitService(t, returns, api)

	_, err := service.Submit(context.Background(), "", 2026, 1)
	if err == nil {
		t.Fatalf("expected receipt persistence failure to surface")
	}
	if !IsReceiptNotRecorded(err) {
		t.Fatalf("expected filed-but-not-recorded classification, got %v", err)
	}
	if api.submitCount() != 1 {
		t.Fatalf("the filing itself should have happened exactly once")
	}
}
