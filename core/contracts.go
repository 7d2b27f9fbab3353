package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// TokenStore persists at most one token per profile key. Storage failures on
// Save or Delete must propagate; callers treat them as aborting the
// enclosing operation.
type TokenStore interface {
	Get(ctx context.Context, profileKey string) (Token, error)
	Save(ctx context.Context, token Token) error
	Delete(ctx context.Context, profileKey string) error
}

// ReturnStore is the narrow view of the record-persistence layer this core
// consumes. Implementations own filtering and schema.
type ReturnStore interface {
	// GetUnsubmitted loads the single pending return entity for the period.
	GetUnsubmitted(ctx context.Context, year, period int) (VatReturn, error)
	// ResolvePeriodEnd resolves the authoritative period end-date from the
	// not-yet-finalised collection. Zero matches yields ErrReturnNotFound.
	ResolvePeriodEnd(ctx context.Context, year, period int) (time.Time, error)
	// SetPeriodKey records the authority-issued period key on the return.
	// This runs before the submission POST; a failure aborts the filing.
	SetPeriodKey(ctx context.Context, year, period int, periodKey string) error
	// SaveReceipt records the submission receipt and flips the finalised
	// flag. A failure here does not undo the remote filing.
	SaveReceipt(ctx context.Context, year, period int, receipt Receipt) error
}

// AuthorizationClient performs the two OAuth2 grants used against the
// authority: authorization-code and refresh-token.
type AuthorizationClient interface {
	// AuthorizationURL builds the redirect URL. When state is empty an
	// opaque value is generated; the returned state is what the caller must
	// persist for the callback comparison.
	AuthorizationURL(state string) (url string, outState string, err error)
	ExchangeCode(ctx context.Context, code string) (Token, error)
	Refresh(ctx context.Context, token Token) (Token, error)
}

// VatAPI is the authority-facing surface: obligations fetch and return
// submission. Implementations attach the bearer credential, the content
// headers and the full fraud header set.
type VatAPI interface {
	GetObligations(ctx context.Context, token Token, filter ObligationFilter) ([]Obligation, error)
	SubmitReturn(ctx context.Context, token Token, payload SubmissionPayload) (Receipt, error)
}

// AuthStateRecord is a pending CSRF state value awaiting the authorization
// callback. It is request-scoped, never process-global.
type AuthStateRecord struct {
	State      string
	ProfileKey string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// AuthStateStore holds pending states with consume-once semantics: a state
// is removed by Consume regardless of whether validation then passes. A
// failed callback validation additionally purges every pending state for
// the profile, so no earlier value can complete later.
type AuthStateStore interface {
	Save(ctx context.Context, record AuthStateRecord) error
	Consume(ctx context.Context, state string) (AuthStateRecord, error)
	PurgeProfile(ctx context.Context, profileKey string) error
}

type LockHandle interface {
	Unlock(ctx context.Context) error
}

// ProfileLocker serializes token refreshes per profile key and submissions
// per (profile, year, period) key.
type ProfileLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

// FraudHeaders is the fixed set of anti-fraud headers attached to every
// authority call. Computed once per client instance and reused; values are
// never empty.
type FraudHeaders interface {
	Headers() map[string]string
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
