package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Service owns the token lifecycle and the submission pipeline for every
// configured credential profile. All public entry points return errors
// already passed through the error mapper.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper

	tokenStore     TokenStore
	returnStore    ReturnStore
	authStateStore AuthStateStore
	locker         ProfileLocker

	authClientFactory AuthClientFactory
	vatAPIFactory     VatAPIFactory

	mu          sync.Mutex
	authClients map[string]AuthorizationClient
	vatAPIs     map[string]VatAPI
}

// AuthorizationRedirect is the outcome of starting the authorization-code
// flow: the URL to send the operator to and the state value pending
// consumption on the callback.
type AuthorizationRedirect struct {
	ProfileKey string
	URL        string
	State      string
}

// TokenStatus is a read-only snapshot of one profile's credential.
type TokenStatus struct {
	ProfileKey   string
	HasToken     bool
	ExpiresAt    time.Time
	Expired      bool
	AuthRequired bool
}

func NewService(runtime Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(runtime)
	for _, option := range options {
		if option != nil {
			option(&builder)
		}
	}

	defaults := DefaultConfig()
	loaded := defaults
	if builder.configProvider != nil {
		var err error
		loaded, err = builder.configProvider.Load(context.Background(), defaults)
		if err != nil {
			return nil, newMTDError(
				fmt.Sprintf("core: config load failed: %v", err),
				goerrors.CategoryOperation,
				MTDErrorConfigInvalid,
			)
		}
	}

	resolved := builder.runtimeConfig
	if builder.optionsResolver != nil {
		var err error
		resolved, err = builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
		if err != nil {
			return nil, newMTDError(
				fmt.Sprintf("core: config resolve failed: %v", err),
				goerrors.CategoryValidation,
				MTDErrorConfigInvalid,
			)
		}
	}
	if err := resolved.Validate(); err != nil {
		return nil, newMTDError(err.Error(), goerrors.CategoryValidation, MTDErrorConfigInvalid)
	}

	service := &Service{
		config:            resolved,
		logger:            builder.logger,
		loggerProvider:    builder.loggerProvider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		tokenStore:        builder.tokenStore,
		returnStore:       builder.returnStore,
		authStateStore:    builder.authStateStore,
		locker:            builder.locker,
		authClientFactory: builder.authClientFactory,
		vatAPIFactory:     builder.vatAPIFactory,
		authClients:       map[string]AuthorizationClient{},
		vatAPIs:           map[string]VatAPI{},
	}

	if service.authStateStore == nil {
		service.authStateStore = NewMemoryAuthStateStore(0)
	}
	if service.locker == nil {
		service.locker = NewMemoryProfileLocker()
	}
	if service.errorMapper == nil {
		service.errorMapper = defaultErrorMapper
	}
	if service.metricsRecorder == nil {
		service.metricsRecorder = NopMetricsRecorder{}
	}

	if service.tokenStore == nil || service.returnStore == nil {
		if factory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok && factory != nil {
			provider, err := factory.BuildStores(builder.persistenceClient)
			if err != nil {
				return nil, newMTDError(
					fmt.Sprintf("core: store build failed: %v", err),
					goerrors.CategoryOperation,
					MTDErrorStorageFailed,
				)
			}
			if service.tokenStore == nil {
				service.tokenStore = provider.TokenStore()
			}
			if service.returnStore == nil {
				service.returnStore = provider.ReturnStore()
			}
		}
	}

	if service.tokenStore == nil {
		return nil, newMTDError(
			"core: token store is required",
			goerrors.CategoryValidation,
			MTDErrorConfigInvalid,
		)
	}

	return service, nil
}

// Config returns the resolved configuration.
func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) profile(profileKey string) (string, CredentialProfile, error) {
	profileKey = strings.TrimSpace(profileKey)
	if profileKey == "" {
		profileKey = DefaultProfileKey
	}
	profile, err := s.config.Profile(profileKey)
	if err != nil {
		return profileKey, CredentialProfile{}, err
	}
	return profileKey, profile, nil
}

func (s *Service) authClient(profileKey string) (AuthorizationClient, error) {
	profileKey, profile, err := s.profile(profileKey)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if client, ok := s.authClients[profileKey]; ok {
		return client, nil
	}
	if s.authClientFactory == nil {
		return nil, fmt.Errorf("core: authorization client factory is not configured")
	}
	client, err := s.authClientFactory(profileKey, profile)
	if err != nil {
		return nil, err
	}
	s.authClients[profileKey] = client
	return client, nil
}

func (s *Service) vatAPI(profileKey string) (VatAPI, error) {
	profileKey, profile, err := s.profile(profileKey)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if api, ok := s.vatAPIs[profileKey]; ok {
		return api, nil
	}
	if s.vatAPIFactory == nil {
		return nil, fmt.Errorf("core: vat api factory is not configured")
	}
	api, err := s.vatAPIFactory(profileKey, profile)
	if err != nil {
		return nil, err
	}
	s.vatAPIs[profileKey] = api
	return api, nil
}

// BeginAuthorization starts the authorization-code flow for a profile. It
// generates and persists a single-use state and returns the redirect URL.
func (s *Service) BeginAuthorization(ctx context.Context, profileKey string) (AuthorizationRedirect, error) {
	if s == nil {
		return AuthorizationRedirect{}, goerrors.New("core: service is nil", goerrors.CategoryInternal)
	}
	startedAt := time.Now()

	redirect, err := s.beginAuthorization(ctx, profileKey)
	s.observeOperation(ctx, startedAt, "begin_authorization", err, map[string]any{
		"profile_key": redirect.ProfileKey,
	})
	if err != nil {
		return AuthorizationRedirect{}, s.mapError(err)
	}
	return redirect, nil
}

func (s *Service) beginAuthorization(ctx context.Context, profileKey string) (AuthorizationRedirect, error) {
	client, err := s.authClient(profileKey)
	if err != nil {
		return AuthorizationRedirect{ProfileKey: strings.TrimSpace(profileKey)}, err
	}
	profileKey, _, err = s.profile(profileKey)
	if err != nil {
		return AuthorizationRedirect{ProfileKey: profileKey}, err
	}

	state, err := generateAuthState()
	if err != nil {
		return AuthorizationRedirect{ProfileKey: profileKey}, err
	}

	url, outState, err := client.AuthorizationURL(state)
	if err != nil {
		return AuthorizationRedirect{ProfileKey: profileKey}, err
	}
	if strings.TrimSpace(outState) == "" {
		outState = state
	}

	if err := s.authStateStore.Save(ctx, AuthStateRecord{
		State:      outState,
		ProfileKey: profileKey,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		return AuthorizationRedirect{ProfileKey: profileKey}, err
	}

	return AuthorizationRedirect{
		ProfileKey: profileKey,
		URL:        url,
		State:      outState,
	}, nil
}

// CompleteAuthorization handles the authorization callback. The state is
// consumed before anything else happens: a missing, empty, or mismatched
// state aborts without an exchange, and the pending entry never survives the
// attempt.
func (s *Service) CompleteAuthorization(ctx context.Context, profileKey, code, state string) (Token, error) {
	if s == nil {
		return Token{}, goerrors.New("core: service is nil", goerrors.CategoryInternal)
	}
	startedAt := time.Now()

	token, err := s.completeAuthorization(ctx, profileKey, code, state)
	s.observeOperation(ctx, startedAt, "complete_authorization", err, map[string]any{
		"profile_key": token.ProfileKey,
	})
	if err != nil {
		return Token{}, s.mapError(err)
	}
	return token, nil
}

func (s *Service) completeAuthorization(ctx context.Context, profileKey, code, state string) (Token, error) {
	profileKey, _, err := s.profile(profileKey)
	if err != nil {
		return Token{}, err
	}

	if err := s.validateCallbackState(ctx, profileKey, state); err != nil {
		return Token{ProfileKey: profileKey}, err
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return Token{ProfileKey: profileKey}, newMTDError(
			"core: authorization code is required",
			goerrors.CategoryBadInput,
			MTDErrorBadInput,
		)
	}

	client, err := s.authClient(profileKey)
	if err != nil {
		return Token{ProfileKey: profileKey}, err
	}

	token, err := client.ExchangeCode(ctx, code)
	if err != nil {
		return Token{ProfileKey: profileKey}, err
	}
	token.ProfileKey = profileKey
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	token.UpdatedAt = time.Now().UTC()

	if err := s.tokenStore.Save(ctx, token); err != nil {
		return Token{ProfileKey: profileKey}, newMTDError(
			fmt.Sprintf("core: token save failed: %v", err),
			goerrors.CategoryOperation,
			MTDErrorStorageFailed,
		)
	}

	return token, nil
}

func (s *Service) validateCallbackState(ctx context.Context, profileKey, state string) error {
	if err := s.consumeCallbackState(ctx, profileKey, state); err != nil {
		// A failed callback invalidates every pending state for the
		// profile, not just the one presented.
		if purgeErr := s.authStateStore.PurgeProfile(ctx, profileKey); purgeErr != nil {
			s.logError(ctx, "pending state purge failed", map[string]any{
				"profile_key": profileKey,
				"error":       purgeErr.Error(),
			})
		}
		return err
	}
	return nil
}

func (s *Service) consumeCallbackState(ctx context.Context, profileKey, state string) error {
	state = strings.TrimSpace(state)
	if state == "" {
		return newMTDError(
			"core: oauth state is required on the callback",
			goerrors.CategoryAuth,
			MTDErrorStateInvalid,
		)
	}

	record, err := s.authStateStore.Consume(ctx, state)
	if err != nil {
		return newMTDError(
			fmt.Sprintf("core: oauth state rejected: %v", err),
			goerrors.CategoryAuth,
			MTDErrorStateInvalid,
		)
	}
	if record.ProfileKey != profileKey {
		return newMTDError(
			"core: oauth state does not belong to this profile",
			goerrors.CategoryAuth,
			MTDErrorStateInvalid,
		)
	}
	return nil
}

// EnsureFreshToken returns a usable token for the profile, refreshing it
// when expired. Concurrent callers for one profile serialize on the refresh
// lock; losers re-read the winner's token, so at most one refresh exchange
// happens per expiry.
func (s *Service) EnsureFreshToken(ctx context.Context, profileKey string) (Token, error) {
	if s == nil {
		return Token{}, goerrors.New("core: service is nil", goerrors.CategoryInternal)
	}
	startedAt := time.Now()

	token, refreshed, err := s.ensureFreshToken(ctx, profileKey)
	s.observeOperation(ctx, startedAt, "ensure_fresh_token", err, map[string]any{
		"profile_key": token.ProfileKey,
		"refreshed":   refreshed,
	})
	if err != nil {
		return Token{}, s.mapError(err)
	}
	return token, nil
}

func (s *Service) ensureFreshToken(ctx context.Context, profileKey string) (Token, bool, error) {
	profileKey, _, err := s.profile(profileKey)
	if err != nil {
		return Token{ProfileKey: profileKey}, false, err
	}

	token, err := s.loadToken(ctx, profileKey)
	if err != nil {
		return Token{ProfileKey: profileKey}, false, err
	}

	now := time.Now().UTC()
	if !token.Expired(now, s.config.ExpirySkew) {
		return token, false, nil
	}

	handle, err := s.locker.Acquire(ctx, refreshLockKey(profileKey), defaultLockWait)
	if err != nil {
		return Token{ProfileKey: profileKey}, false, err
	}
	defer handle.Unlock(ctx)

	// Another caller may have finished the refresh while we waited.
	token, err = s.loadToken(ctx, profileKey)
	if err != nil {
		return Token{ProfileKey: profileKey}, false, err
	}
	if !token.Expired(time.Now().UTC(), s.config.ExpirySkew) {
		return token, false, nil
	}

	refreshed, err := s.refreshToken(ctx, profileKey, token)
	if err != nil {
		return Token{ProfileKey: profileKey}, false, err
	}
	return refreshed, true, nil
}

func (s *Service) loadToken(ctx context.Context, profileKey string) (Token, error) {
	token, err := s.tokenStore.Get(ctx, profileKey)
	if err != nil {
		if goerrors.Is(err, ErrTokenNotFound) {
			return Token{}, newMTDError(
				fmt.Sprintf("core: token not found for profile %q, authorization required", profileKey),
				goerrors.CategoryAuth,
				MTDErrorAuthRequired,
			)
		}
		return Token{}, newMTDError(
			fmt.Sprintf("core: token read failed: %v", err),
			goerrors.CategoryOperation,
			MTDErrorStorageFailed,
		)
	}
	return token, nil
}

func (s *Service) refreshToken(ctx context.Context, profileKey string, stale Token) (Token, error) {
	if !stale.HasRefreshToken() {
		return Token{}, newMTDError(
			fmt.Sprintf("core: token for profile %q has no refresh token, authorization required", profileKey),
			goerrors.CategoryAuth,
			MTDErrorAuthRequired,
		)
	}

	client, err := s.authClient(profileKey)
	if err != nil {
		return Token{}, err
	}

	refreshed, err := client.Refresh(ctx, stale)
	if err != nil {
		if hasTextCode(err, MTDErrorInvalidGrant) {
			// The refresh token is dead; the stored credential is useless and
			// must not be retried.
			if deleteErr := s.tokenStore.Delete(ctx, profileKey); deleteErr != nil {
				s.logError(ctx, "stale token delete failed", map[string]any{
					"profile_key": profileKey,
					"error":       deleteErr.Error(),
				})
			}
			return Token{}, newMTDError(
				fmt.Sprintf("core: refresh token rejected for profile %q, authorization required", profileKey),
				goerrors.CategoryAuth,
				MTDErrorAuthRequired,
			)
		}
		return Token{}, err
	}

	refreshed.ProfileKey = profileKey
	if refreshed.CreatedAt.IsZero() {
		refreshed.CreatedAt = stale.CreatedAt
	}
	refreshed.UpdatedAt = time.Now().UTC()
	if !refreshed.HasRefreshToken() {
		refreshed.RefreshToken = stale.RefreshToken
	}

	if err := s.tokenStore.Save(ctx, refreshed); err != nil {
		return Token{}, newMTDError(
			fmt.Sprintf("core: refreshed token save failed: %v", err),
			goerrors.CategoryOperation,
			MTDErrorStorageFailed,
		)
	}
	return refreshed, nil
}

// Status reports the credential state for a profile without side effects.
func (s *Service) Status(ctx context.Context, profileKey string) (TokenStatus, error) {
	if s == nil {
		return TokenStatus{}, goerrors.New("core: service is nil", goerrors.CategoryInternal)
	}
	profileKey, _, err := s.profile(profileKey)
	if err != nil {
		return TokenStatus{}, s.mapError(err)
	}

	token, err := s.tokenStore.Get(ctx, profileKey)
	if err != nil {
		if goerrors.Is(err, ErrTokenNotFound) {
			return TokenStatus{ProfileKey: profileKey, AuthRequired: true}, nil
		}
		return TokenStatus{}, s.mapError(err)
	}

	expired := token.Expired(time.Now().UTC(), s.config.ExpirySkew)
	return TokenStatus{
		ProfileKey:   profileKey,
		HasToken:     true,
		ExpiresAt:    token.ExpiresAt,
		Expired:      expired,
		AuthRequired: expired && !token.HasRefreshToken(),
	}, nil
}

// GetObligations fetches the authority's reporting obligations for the
// profile, ensuring a fresh token first.
func (s *Service) GetObligations(ctx context.Context, profileKey string, filter ObligationFilter) ([]Obligation, error) {
	if s == nil {
		return nil, goerrors.New("core: service is nil", goerrors.CategoryInternal)
	}
	startedAt := time.Now()

	obligations, err := s.getObligations(ctx, profileKey, filter)
	s.observeOperation(ctx, startedAt, "get_obligations", err, map[string]any{
		"profile_key": strings.TrimSpace(profileKey),
	})
	if err != nil {
		return nil, s.mapError(err)
	}
	return obligations, nil
}

func (s *Service) getObligations(ctx context.Context, profileKey string, filter ObligationFilter) ([]Obligation, error) {
	token, _, err := s.ensureFreshToken(ctx, profileKey)
	if err != nil {
		return nil, err
	}
	api, err := s.vatAPI(profileKey)
	if err != nil {
		return nil, err
	}
	return api.GetObligations(ctx, token, filter)
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return mtdErrorMapper(err)
	}
	if mapped := s.errorMapper(err); mapped != nil {
		return mapped
	}
	return err
}
