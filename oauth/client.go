package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mtd/core"
)

const (
	defaultTokenRequestTimeout = 30 * time.Second
	maxTokenResponseBodyBytes  = 1 << 20 // 1 MiB
	defaultTokenTTL            = 4 * time.Hour
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config carries everything the token endpoint conversation needs. The
// authority expects the client secret in the request body, so that is the
// default; basic auth stays available for gateways that want it.
type Config struct {
	ProfileKey          string
	AuthURL             string
	TokenURL            string
	ClientID            string
	ClientSecret        string
	ClientSecretInBasic bool
	RedirectURI         string
	Scopes              []string
	TokenTTL            time.Duration
	TokenRequestTimeout time.Duration
	Now                 func() time.Time
	HTTPClient          HTTPDoer
}

// Client drives the authorization-code and refresh-token grants against the
// authority's OAuth2 endpoints.
type Client struct {
	cfg        Config
	httpClient HTTPDoer
}

type tokenEndpointPayload struct {
	AccessToken      string
	TokenType        string
	RefreshToken     string
	Scope            string
	ExpiresIn        int64
	ErrorCode        string
	ErrorDescription string
}

func NewClient(cfg Config) (*Client, error) {
	cfg.ProfileKey = strings.TrimSpace(cfg.ProfileKey)
	cfg.AuthURL = strings.TrimSpace(cfg.AuthURL)
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.RedirectURI = strings.TrimSpace(cfg.RedirectURI)

	if cfg.AuthURL == "" {
		return nil, fmt.Errorf("oauth: auth url is required")
	}
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("oauth: token url is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("oauth: client id is required")
	}
	if cfg.RedirectURI == "" {
		return nil, fmt.Errorf("oauth: redirect uri is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cfg.TokenRequestTimeout <= 0 {
		cfg.TokenRequestTimeout = defaultTokenRequestTimeout
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time {
			return time.Now().UTC()
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.TokenRequestTimeout}
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
	}, nil
}

// NewClientForProfile builds a client from one resolved credential profile.
func NewClientForProfile(profileKey string, profile core.CredentialProfile) (*Client, error) {
	return NewClient(Config{
		ProfileKey:   profileKey,
		AuthURL:      profile.AuthorizeURL(),
		TokenURL:     profile.TokenURL(),
		ClientID:     profile.ClientID,
		ClientSecret: profile.ClientSecret,
		RedirectURI:  profile.RedirectURI,
		Scopes:       append([]string(nil), profile.Scopes...),
	})
}

// AuthorizationURL builds the redirect URL for the authorization-code
// grant. An empty state gets a generated opaque value; the returned state
// is what the caller must hold for the callback comparison.
func (c *Client) AuthorizationURL(state string) (string, string, error) {
	if c == nil {
		return "", "", fmt.Errorf("oauth: client is nil")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return "", "", fmt.Errorf("oauth: state is required")
	}

	values := url.Values{}
	values.Set("response_type", "code")
	values.Set("client_id", c.cfg.ClientID)
	values.Set("redirect_uri", c.cfg.RedirectURI)
	if len(c.cfg.Scopes) > 0 {
		values.Set("scope", strings.Join(c.cfg.Scopes, " "))
	}
	values.Set("state", state)

	authURL := c.cfg.AuthURL
	if strings.Contains(authURL, "?") {
		authURL += "&" + values.Encode()
	} else {
		authURL += "?" + values.Encode()
	}
	return authURL, state, nil
}

// ExchangeCode trades an authorization code for the initial token pair.
func (c *Client) ExchangeCode(ctx context.Context, code string) (core.Token, error) {
	if c == nil {
		return core.Token{}, fmt.Errorf("oauth: client is nil")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return core.Token{}, fmt.Errorf("oauth: auth code is required")
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURI)

	payload, err := c.fetchToken(ctx, form)
	if err != nil {
		return core.Token{}, err
	}
	return c.tokenFromPayload(payload), nil
}

// Refresh trades the stored refresh token for a new token pair. A rotated
// refresh token replaces the old one; an authority that keeps the old one
// valid simply echoes nothing and the caller retains it.
func (c *Client) Refresh(ctx context.Context, token core.Token) (core.Token, error) {
	if c == nil {
		return core.Token{}, fmt.Errorf("oauth: client is nil")
	}
	refreshToken := strings.TrimSpace(token.RefreshToken)
	if refreshToken == "" {
		return core.Token{}, fmt.Errorf("oauth: refresh token is required")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	payload, err := c.fetchToken(ctx, form)
	if err != nil {
		return core.Token{}, err
	}

	refreshed := c.tokenFromPayload(payload)
	refreshed.ProfileKey = token.ProfileKey
	if !refreshed.HasRefreshToken() {
		refreshed.RefreshToken = refreshToken
	}
	if len(refreshed.Scopes) == 0 {
		refreshed.Scopes = append([]string(nil), token.Scopes...)
	}
	return refreshed, nil
}

func (c *Client) tokenFromPayload(payload tokenEndpointPayload) core.Token {
	now := c.cfg.Now().UTC()
	ttl := c.cfg.TokenTTL
	if payload.ExpiresIn > 0 {
		ttl = time.Duration(payload.ExpiresIn) * time.Second
	}
	return core.Token{
		ProfileKey:   c.cfg.ProfileKey,
		AccessToken:  strings.TrimSpace(payload.AccessToken),
		RefreshToken: strings.TrimSpace(payload.RefreshToken),
		Scopes:       parseScopeList(payload.Scope),
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (c *Client) fetchToken(ctx context.Context, form url.Values) (tokenEndpointPayload, error) {
	if c.httpClient == nil {
		return tokenEndpointPayload{}, fmt.Errorf("oauth: http client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	values := url.Values{}
	for key, items := range form {
		for _, item := range items {
			values.Add(key, strings.TrimSpace(item))
		}
	}
	values.Set("client_id", c.cfg.ClientID)
	if !c.cfg.ClientSecretInBasic && c.cfg.ClientSecret != "" {
		values.Set("client_secret", c.cfg.ClientSecret)
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.cfg.TokenRequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(
		requestCtx,
		http.MethodPost,
		c.cfg.TokenURL,
		strings.NewReader(values.Encode()),
	)
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if c.cfg.ClientSecretInBasic && c.cfg.ClientSecret != "" {
		httpReq.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	}

	response, err := c.httpClient.Do(httpReq)
	if err != nil {
		return tokenEndpointPayload{}, goerrors.Wrap(err, goerrors.CategoryExternal, "oauth: token request failed").
			WithTextCode(core.MTDErrorTransport)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxTokenResponseBodyBytes+1))
	if readErr != nil {
		return tokenEndpointPayload{}, goerrors.Wrap(readErr, goerrors.CategoryExternal, "oauth: read token response").
			WithTextCode(core.MTDErrorTransport)
	}
	if int64(len(body)) > maxTokenResponseBodyBytes {
		return tokenEndpointPayload{}, fmt.Errorf("oauth: token response exceeds %d bytes", maxTokenResponseBodyBytes)
	}

	payload, parseErr := parseTokenPayload(body, response.Header.Get("Content-Type"))
	if parseErr != nil {
		return tokenEndpointPayload{}, fmt.Errorf("oauth: decode token response: %w", parseErr)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return tokenEndpointPayload{}, classifyTokenError(response.StatusCode, payload)
	}
	if payload.ErrorCode != "" {
		return tokenEndpointPayload{}, classifyTokenError(response.StatusCode, payload)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return tokenEndpointPayload{}, fmt.Errorf("oauth: token endpoint response missing access token")
	}
	return payload, nil
}

// classifyTokenError separates the dead-credential responses from everything
// else. invalid_grant and invalid_request mean the stored refresh token can
// never succeed again; other failures stay retryable.
func classifyTokenError(status int, payload tokenEndpointPayload) error {
	code := strings.ToLower(strings.TrimSpace(payload.ErrorCode))
	message := fmt.Sprintf("oauth: token endpoint error (%d): %s", status, describeTokenError(payload))

	switch code {
	case "invalid_grant", "invalid_request":
		return goerrors.New(message, goerrors.CategoryAuth).
			WithTextCode(core.MTDErrorInvalidGrant)
	case "invalid_client", "unauthorized_client":
		return goerrors.New(message, goerrors.CategoryAuth).
			WithTextCode(core.MTDErrorAuthRequired)
	}
	if status == http.StatusBadRequest || status == http.StatusUnauthorized {
		return goerrors.New(message, goerrors.CategoryAuth).
			WithTextCode(core.MTDErrorInvalidGrant)
	}
	return goerrors.New(message, goerrors.CategoryExternal).
		WithTextCode(core.MTDErrorTransport)
}

func describeTokenError(payload tokenEndpointPayload) string {
	if strings.TrimSpace(payload.ErrorDescription) != "" {
		return strings.TrimSpace(payload.ErrorDescription)
	}
	if strings.TrimSpace(payload.ErrorCode) != "" {
		return strings.TrimSpace(payload.ErrorCode)
	}
	return "unknown error"
}

func parseTokenPayload(body []byte, contentType string) (tokenEndpointPayload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if strings.Contains(contentType, "json") {
		return parseTokenPayloadJSON(body)
	}
	if strings.Contains(contentType, "x-www-form-urlencoded") || strings.Contains(contentType, "text/plain") {
		return parseTokenPayloadForm(body)
	}
	if payload, err := parseTokenPayloadJSON(body); err == nil {
		return payload, nil
	}
	return parseTokenPayloadForm(body)
}

func parseTokenPayloadJSON(body []byte) (tokenEndpointPayload, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return tokenEndpointPayload{}, err
	}
	return tokenEndpointPayload{
		AccessToken:      readAnyString(decoded["access_token"]),
		TokenType:        readAnyString(decoded["token_type"]),
		RefreshToken:     readAnyString(decoded["refresh_token"]),
		Scope:            readAnyString(decoded["scope"]),
		ExpiresIn:        readAnyInt64(decoded["expires_in"]),
		ErrorCode:        readAnyString(decoded["error"]),
		ErrorDescription: readAnyString(decoded["error_description"]),
	}, nil
}

func parseTokenPayloadForm(body []byte) (tokenEndpointPayload, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	expiresIn, _ := strconv.ParseInt(strings.TrimSpace(values.Get("expires_in")), 10, 64)
	return tokenEndpointPayload{
		AccessToken:      strings.TrimSpace(values.Get("access_token")),
		TokenType:        strings.TrimSpace(values.Get("token_type")),
		RefreshToken:     strings.TrimSpace(values.Get("refresh_token")),
		Scope:            strings.TrimSpace(values.Get("scope")),
		ExpiresIn:        expiresIn,
		ErrorCode:        strings.TrimSpace(values.Get("error")),
		ErrorDescription: strings.TrimSpace(values.Get("error_description")),
	}, nil
}

func parseScopeList(value string) []string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return []string{}
	}
	return strings.Fields(strings.ReplaceAll(trimmed, ",", " "))
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	default:
		if value == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func readAnyInt64(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	case json.Number:
		if parsed, err := typed.Int64(); err == nil {
			return parsed
		}
		if floatParsed, err := typed.Float64(); err == nil {
			return int64(floatParsed)
		}
	case string:
		if parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}

var _ core.AuthorizationClient = (*Client)(nil)
