package core

import (
	"testing"
	"time"
)

func TestRoundPence(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{123.455, 123.46},
		{123.454, 123.45},
		{-45.205, -45.21},
		{0, 0},
		{19.999, 20.00},
	}
	for _, tc := range cases {
		if got := RoundPence(tc.in); got != tc.want {
			t.Fatalf("RoundPence(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestRoundPounds(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{1000.4, 1000},
		{1000.5, 1001},
		{-10.5, -11},
		{0, 0},
	}
	for _, tc := range cases {
		if got := RoundPounds(tc.in); got != tc.want {
			t.Fatalf("RoundPounds(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestBuildSubmissionPayload_AppliesRoundingContract(t *testing.T) {
	ret := VatReturn{
		VatDueSales:                  100.456,
		VatDueAcquisitions:           0.004,
		TotalVatDue:                  100.46,
		VatReclaimedCurrPeriod:       50.125,
		NetVatDue:                    -45.20,
		TotalValueSalesExVAT:         1000.4,
		TotalValuePurchasesExVAT:     200.6,
		TotalValueGoodsSuppliedExVAT: 0.4,
		TotalAcquisitionsExVAT:       99.5,
		Finalised:                    false,
	}

	payload := BuildSubmissionPayload(ret, "18A2")

	if payload.PeriodKey != "18A2" {
		t.Fatalf("expected period key 18A2, got %q", payload.PeriodKey)
	}
	if payload.VatDueSales != 100.46 {
		t.Fatalf("vatDueSales = %v, want 100.46", payload.VatDueSales)
	}
	if payload.VatDueAcquisitions != 0 {
		t.Fatalf("vatDueAcquisitions = %v, want 0", payload.VatDueAcquisitions)
	}
	if payload.VatReclaimedCurrPeriod != 50.13 {
		t.Fatalf("vatReclaimedCurrPeriod = %v, want 50.13", payload.VatReclaimedCurrPeriod)
	}
	if payload.NetVatDue != 45.20 {
		t.Fatalf("netVatDue = %v, want absolute 45.20", payload.NetVatDue)
	}
	if payload.TotalValueSalesExVAT != 1000 {
		t.Fatalf("totalValueSalesExVAT = %v, want 1000", payload.TotalValueSalesExVAT)
	}
	if payload.TotalValuePurchasesExVAT != 201 {
		t.Fatalf("totalValuePurchasesExVAT = %v, want 201", payload.TotalValuePurchasesExVAT)
	}
	if payload.TotalValueGoodsSuppliedExVAT != 0 {
		t.Fatalf("totalValueGoodsSuppliedExVAT = %v, want 0", payload.TotalValueGoodsSuppliedExVAT)
	}
	if payload.TotalAcquisitionsExVAT != 100 {
		t.Fatalf("totalAcquisitionsExVAT = %v, want 100", payload.TotalAcquisitionsExVAT)
	}
	if !payload.Finalised {
		t.Fatalf("expected finalised to always be true")
	}
}

func TestToken_Expired(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	token := Token{ExpiresAt: now.Add(time.Hour)}
	if token.Expired(now, 0) {
		t.Fatalf("token expiring in an hour should be usable")
	}
	if !token.Expired(now, 2*time.Hour) {
		t.Fatalf("skew past expiry should mark the token expired")
	}

	token = Token{ExpiresAt: now}
	if !token.Expired(now, 0) {
		t.Fatalf("token at its expiry instant is expired")
	}

	if !(Token{}).Expired(now, 0) {
		t.Fatalf("token without expiry is always expired")
	}
}

func TestSameDate(t *testing.T) {
	a := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	b := time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC)
	if !SameDate(a, b) {
		t.Fatalf("same calendar day should match regardless of clock")
	}

	c := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	if SameDate(a, c) {
		t.Fatalf("different days must not match")
	}
}
