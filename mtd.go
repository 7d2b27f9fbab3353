package mtd

import (
	"github.com/goliatone/go-mtd/core"
	"github.com/goliatone/go-mtd/fraud"
	"github.com/goliatone/go-mtd/hmrc"
	"github.com/goliatone/go-mtd/oauth"
)

// Version identifies this library build to the authority's vendor header.
var Version = "0.1.0"

type Config = core.Config

type CredentialProfile = core.CredentialProfile

type Option = core.Option

type Service = core.Service

type Token = core.Token
type TokenStatus = core.TokenStatus
type Obligation = core.Obligation
type ObligationFilter = core.ObligationFilter
type VatReturn = core.VatReturn
type SubmissionPayload = core.SubmissionPayload
type SubmissionResult = core.SubmissionResult
type Receipt = core.Receipt
type AuthorizationRedirect = core.AuthorizationRedirect

type TokenStore = core.TokenStore
type ReturnStore = core.ReturnStore
type AuthStateStore = core.AuthStateStore
type ProfileLocker = core.ProfileLocker

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithAuthStateStore    = core.WithAuthStateStore
	WithProfileLocker     = core.WithProfileLocker
	WithTokenStore        = core.WithTokenStore
	WithReturnStore       = core.WithReturnStore
	WithAuthClientFactory = core.WithAuthClientFactory
	WithVatAPIFactory     = core.WithVatAPIFactory
)

var (
	IsAuthRequired       = core.IsAuthRequired
	IsReceiptNotRecorded = core.IsReceiptNotRecorded
	APIErrors            = core.APIErrors
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

// Setup builds a service with the default OAuth2 and VAT API clients wired
// per profile. Explicit factory options passed by the caller win.
func Setup(cfg Config, opts ...Option) (*Service, error) {
	defaults := []Option{
		WithAuthClientFactory(defaultAuthClientFactory),
		WithVatAPIFactory(defaultVatAPIFactory),
	}
	return core.NewService(cfg, append(defaults, opts...)...)
}

func defaultAuthClientFactory(profileKey string, profile core.CredentialProfile) (core.AuthorizationClient, error) {
	return oauth.NewClientForProfile(profileKey, profile)
}

func defaultVatAPIFactory(profileKey string, profile core.CredentialProfile) (core.VatAPI, error) {
	headers, err := fraud.NewBuilder(fraud.Config{
		DeviceID:      profile.DeviceID,
		VendorName:    "go-mtd",
		VendorVersion: Version,
	})
	if err != nil {
		return nil, err
	}
	return hmrc.NewClient(hmrc.Config{
		BaseURL:      profile.BaseURL,
		VRN:          profile.VRN,
		FraudHeaders: headers,
	})
}
