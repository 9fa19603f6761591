// Copyright 2026 The OauthHub Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package oauth2

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oauthhub/oauthhub/internal/account"
	"github.com/oauthhub/oauthhub/internal/audit"
	"github.com/oauthhub/oauthhub/internal/client"
	"github.com/oauthhub/oauthhub/internal/token"
)

const authorizationCodeLength = 48

// Grant type identifiers accepted at the token endpoint.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantPassword          = "password"
	GrantClientCredentials = "client_credentials"
	GrantRefreshToken      = "refresh_token"
)

// UserAuthenticator resolves and verifies end users for the password
// and authorization_code grants.
type UserAuthenticator interface {
	Authenticate(ctx context.Context, username, password string) (*account.User, error)
	GetUser(ctx context.Context, username string) (*account.User, error)
}

// AuthorizeRequest is a parsed authorization-endpoint request.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	RedirectIndex       string
}

// AuthorizeResult is the outcome of an authorization decision: either
// the user still has to consent, or a composed redirect Location.
type AuthorizeResult struct {
	NeedsConsent bool
	RedirectURI  string
}

// TokenRequest is a parsed token-endpoint request.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	CodeVerifier string
	Username     string
	Password     string
	Scope        string
	RefreshToken string
}

// TokenResponse is the RFC 6749 token payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// Service drives the grant state machines.
type Service struct {
	clients  client.Repository
	codes    CodeRepository
	consents ConsentRepository
	users    UserAuthenticator
	tokens   *token.Service
	idTokens *IDTokenBuilder
	audit    audit.Logger

	codeTTL time.Duration
}

// NewService wires the grant engine.
func NewService(
	clients client.Repository,
	codes CodeRepository,
	consents ConsentRepository,
	users UserAuthenticator,
	tokens *token.Service,
	idTokens *IDTokenBuilder,
	auditLogger audit.Logger,
	codeTTL time.Duration,
) *Service {
	return &Service{
		clients:  clients,
		codes:    codes,
		consents: consents,
		users:    users,
		tokens:   tokens,
		idTokens: idTokens,
		audit:    auditLogger,
		codeTTL:  codeTTL,
	}
}

// ValidateAuthorize checks the request against the client's
// registration before any user interaction.
func (s *Service) ValidateAuthorize(ctx context.Context, req *AuthorizeRequest) (*client.Client, error) {
	cl, err := s.clients.GetByClientID(ctx, req.ClientID)
	if err != nil {
		return nil, NewError(ErrInvalidClient, "unknown client")
	}
	if !cl.CheckRedirectURI(req.RedirectURI) {
		return nil, NewError(ErrInvalidRequest, "redirect_uri is not registered")
	}
	if !cl.CheckResponseType(req.ResponseType) {
		return nil, NewError(ErrUnsupportedResponseType, "response_type is not allowed for this client")
	}

	if hasScope(req.Scope, "openid") {
		if req.Nonce == "" {
			return nil, NewError(ErrInvalidRequest, "nonce is required for openid requests")
		}
		if _, err := s.codes.GetByNonce(ctx, req.ClientID, req.Nonce); err == nil {
			return nil, NewError(ErrInvalidRequest, "nonce has already been used")
		} else if !errors.Is(err, ErrCodeNotFound) {
			return nil, NewError(ErrServerError, "nonce lookup failed")
		}
	}
	return cl, nil
}

// Authorize runs the consent decision for an authenticated user and,
// when consent is satisfied, composes the authorization response.
func (s *Service) Authorize(ctx context.Context, req *AuthorizeRequest, username string) (*AuthorizeResult, error) {
	cl, err := s.ValidateAuthorize(ctx, req)
	if err != nil {
		return nil, err
	}

	allowed, err := s.effectiveScopes(ctx, cl, username)
	if err != nil {
		return nil, NewError(ErrServerError, "scope lookup failed")
	}
	if !subset(strings.Fields(req.Scope), allowed) {
		return nil, NewError(ErrInvalidScope, "requested scope exceeds the allow-list").WithState(req.State)
	}

	consented, err := s.consented(ctx, cl, username)
	if err != nil {
		return nil, NewError(ErrServerError, "consent lookup failed")
	}
	if !consented {
		return &AuthorizeResult{NeedsConsent: true}, nil
	}

	location, err := s.composeResponse(ctx, req, cl, username)
	if err != nil {
		return nil, err
	}
	return &AuthorizeResult{RedirectURI: location}, nil
}

// consented reports whether the user already authorized the client:
// either the client skips authorization or a live scope grant exists.
// An expired grant is retired on observation, forcing re-consent.
func (s *Service) consented(ctx context.Context, cl *client.Client, username string) (bool, error) {
	if cl.Metadata.SkipAuthorization {
		return true, nil
	}
	grant, err := s.consents.Get(ctx, username, cl.ClientID)
	if err != nil {
		if errors.Is(err, ErrConsentNotFound) {
			return false, nil
		}
		return false, err
	}
	if grant.IsExpired(time.Now().Unix()) {
		if err := s.consents.Delete(ctx, grant.ID); err != nil {
			return false, err
		}
		s.audit.Log(ctx, audit.Event{
			Type:     audit.TypeConsentExpired,
			ActorID:  username,
			ClientID: cl.ClientID,
		})
		return false, nil
	}
	return true, nil
}

// effectiveScopes computes the allow-list the requested scope must be a
// subset of.
func (s *Service) effectiveScopes(ctx context.Context, cl *client.Client, username string) ([]string, error) {
	if cl.Metadata.SkipAuthorization {
		return cl.Scopes(), nil
	}
	grant, err := s.consents.Get(ctx, username, cl.ClientID)
	if err != nil {
		if errors.Is(err, ErrConsentNotFound) {
			return cl.Scopes(), nil
		}
		return nil, err
	}
	if grant.IsExpired(time.Now().Unix()) {
		return cl.Scopes(), nil
	}
	return strings.Fields(grant.Scopes), nil
}

// composeResponse issues the code and/or tokens the response_type asks
// for and builds the redirect Location. Code-only responses use query
// parameters; anything carrying a token goes into the fragment.
func (s *Service) composeResponse(ctx context.Context, req *AuthorizeRequest, cl *client.Client, username string) (string, error) {
	parts := strings.Fields(req.ResponseType)
	wantCode, wantToken, wantIDToken := false, false, false
	for _, p := range parts {
		switch p {
		case "code":
			wantCode = true
		case "token":
			wantToken = true
		case "id_token":
			wantIDToken = true
		}
	}

	params := url.Values{}

	if wantCode {
		code, err := s.issueCode(ctx, req, username)
		if err != nil {
			return "", err
		}
		params.Set("code", code.Code)
	}

	if wantToken {
		tok, err := s.tokens.Issue(ctx, cl, username, "", req.Scope, false)
		if err != nil {
			return "", NewError(ErrServerError, "token issuance failed")
		}
		params.Set("access_token", tok.AccessToken)
		params.Set("token_type", tok.TokenType)
		params.Set("expires_in", strconv.FormatInt(tok.ExpiresIn, 10))
		if tok.Scope != "" {
			params.Set("scope", tok.Scope)
		}
	}

	if wantIDToken || (wantToken && hasScope(req.Scope, "openid")) {
		user, err := s.users.GetUser(ctx, username)
		if err != nil {
			return "", NewError(ErrServerError, "user lookup failed")
		}
		idToken, err := s.idTokens.Generate(cl, user, req.Scope, req.Nonce)
		if err != nil {
			return "", NewError(ErrServerError, "id token issuance failed")
		}
		params.Set("id_token", idToken)
	}

	if req.State != "" {
		params.Set("state", req.State)
	}
	if req.RedirectIndex != "" {
		params.Set("redirect_index", req.RedirectIndex)
	}

	useFragment := wantToken || wantIDToken
	return composeRedirect(req.RedirectURI, params, useFragment)
}

// issueCode saves a fresh single-use authorization code.
func (s *Service) issueCode(ctx context.Context, req *AuthorizeRequest, username string) (*AuthorizationCode, error) {
	raw, err := client.GenerateSalt(authorizationCodeLength)
	if err != nil {
		return nil, NewError(ErrServerError, "code generation failed")
	}

	code := &AuthorizationCode{
		ID:                  uuid.NewString(),
		Code:                raw,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		Username:            username,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		Nonce:               req.Nonce,
		IssuedAt:            time.Now().Unix(),
	}
	if err := s.codes.Create(ctx, code); err != nil {
		return nil, NewError(ErrServerError, "code persistence failed")
	}

	s.audit.Log(ctx, audit.Event{
		Type:     audit.TypeCodeIssued,
		ActorID:  username,
		ClientID: req.ClientID,
	})
	return code, nil
}

// Token runs the token-endpoint grant selected by req.GrantType.
func (s *Service) Token(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	cl, err := s.authenticateClient(ctx, req)
	if err != nil {
		return nil, err
	}
	if !cl.CheckGrantType(req.GrantType) {
		return nil, NewError(ErrUnauthorizedClient, "grant_type is not allowed for this client")
	}

	switch req.GrantType {
	case GrantAuthorizationCode:
		return s.exchangeCode(ctx, req, cl)
	case GrantPassword:
		return s.passwordGrant(ctx, req, cl)
	case GrantClientCredentials:
		return s.clientCredentialsGrant(ctx, req, cl)
	case GrantRefreshToken:
		return s.refreshGrant(ctx, req, cl)
	default:
		return nil, NewError(ErrUnsupportedGrantType, "unknown grant_type")
	}
}

// authenticateClient resolves the client and, unless it is public,
// verifies the presented secret.
func (s *Service) authenticateClient(ctx context.Context, req *TokenRequest) (*client.Client, error) {
	cl, err := s.clients.GetByClientID(ctx, req.ClientID)
	if err != nil {
		return nil, NewError(ErrInvalidClient, "unknown client")
	}
	if cl.CheckEndpointAuthMethod("none") {
		return cl, nil
	}
	if req.ClientSecret == "" || !cl.CheckClientSecret(req.ClientSecret) {
		return nil, NewError(ErrInvalidClient, "client authentication failed")
	}
	return cl, nil
}

// exchangeCode implements the authorization_code grant. The code is
// single-use: query, verify and delete run before token issuance, and
// an expired code is deleted the moment it is observed.
func (s *Service) exchangeCode(ctx context.Context, req *TokenRequest, cl *client.Client) (*TokenResponse, error) {
	code, err := s.codes.Get(ctx, req.Code, cl.ClientID)
	if err != nil {
		return nil, NewError(ErrInvalidGrant, "authorization code is invalid")
	}
	if code.IsExpired(s.codeTTL, time.Now().Unix()) {
		_ = s.codes.Delete(ctx, code.ID)
		return nil, NewError(ErrInvalidGrant, "authorization code has expired")
	}
	if code.RedirectURI != req.RedirectURI {
		return nil, NewError(ErrInvalidGrant, "redirect_uri mismatch")
	}
	if code.CodeChallenge != "" {
		if req.CodeVerifier == "" {
			return nil, NewError(ErrInvalidRequest, "code_verifier is required")
		}
		if !verifyPKCE(code.CodeChallenge, code.CodeChallengeMethod, req.CodeVerifier) {
			return nil, NewError(ErrInvalidGrant, "code_verifier rejected")
		}
	}

	user, err := s.users.GetUser(ctx, code.Username)
	if err != nil {
		return nil, NewError(ErrInvalidGrant, "code subject no longer exists")
	}

	if err := s.codes.Delete(ctx, code.ID); err != nil {
		return nil, NewError(ErrInvalidGrant, "authorization code already consumed")
	}

	includeRefresh := cl.CheckGrantType(GrantRefreshToken)
	tok, err := s.tokens.Issue(ctx, cl, user.Username, user.ID, code.Scope, includeRefresh)
	if err != nil {
		return nil, NewError(ErrServerError, "token issuance failed")
	}

	res := tokenResponse(tok)
	if hasScope(code.Scope, "openid") {
		idToken, err := s.idTokens.Generate(cl, user, code.Scope, code.Nonce)
		if err != nil {
			return nil, NewError(ErrServerError, "id token issuance failed")
		}
		res.IDToken = idToken
	}
	return res, nil
}

// passwordGrant exchanges resource-owner credentials for a token.
func (s *Service) passwordGrant(ctx context.Context, req *TokenRequest, cl *client.Client) (*TokenResponse, error) {
	user, err := s.users.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return nil, NewError(ErrInvalidGrant, "resource owner authentication failed")
	}
	if !cl.HasScope(strings.Fields(req.Scope)) {
		return nil, NewError(ErrInvalidScope, "requested scope exceeds the client's registration")
	}

	includeRefresh := cl.CheckGrantType(GrantRefreshToken)
	tok, err := s.tokens.Issue(ctx, cl, user.Username, user.ID, req.Scope, includeRefresh)
	if err != nil {
		return nil, NewError(ErrServerError, "token issuance failed")
	}
	return tokenResponse(tok), nil
}

// clientCredentialsGrant issues a token for the client itself. No user
// is involved, so the subject is the client_id and no refresh token is
// attached.
func (s *Service) clientCredentialsGrant(ctx context.Context, req *TokenRequest, cl *client.Client) (*TokenResponse, error) {
	if !cl.HasScope(strings.Fields(req.Scope)) {
		return nil, NewError(ErrInvalidScope, "requested scope exceeds the client's registration")
	}
	tok, err := s.tokens.Issue(ctx, cl, cl.ClientID, "", req.Scope, false)
	if err != nil {
		return nil, NewError(ErrServerError, "token issuance failed")
	}
	return tokenResponse(tok), nil
}

// refreshGrant rotates the access token bound to the presented refresh
// token.
func (s *Service) refreshGrant(ctx context.Context, req *TokenRequest, cl *client.Client) (*TokenResponse, error) {
	row, err := s.tokens.Refresh(ctx, req.RefreshToken, cl.ClientID)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrTokenExpired):
			return nil, NewError(ErrInvalidGrant, "refresh token has expired")
		case errors.Is(err, token.ErrTokenInvalid):
			return nil, NewError(ErrInvalidGrant, "refresh token is invalid")
		default:
			return nil, NewError(ErrServerError, "refresh failed")
		}
	}
	return tokenResponse(row), nil
}

// CleanupExpiredCodes deletes every authorization code past the TTL.
func (s *Service) CleanupExpiredCodes(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.codeTTL).Unix()
	return s.codes.DeleteIssuedBefore(ctx, cutoff)
}

func tokenResponse(t *token.Token) *TokenResponse {
	return &TokenResponse{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		ExpiresIn:    t.ExpiresIn,
		RefreshToken: t.RefreshToken,
		Scope:        t.Scope,
	}
}

// verifyPKCE checks a code_verifier against the challenge bound at
// authorization time. Supported methods: plain and S256.
func verifyPKCE(challenge, method, verifier string) bool {
	switch method {
	case "S256":
		sum := sha256.Sum256([]byte(verifier))
		derived := base64.RawURLEncoding.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) == 1
	case "", "plain":
		return subtle.ConstantTimeCompare([]byte(verifier), []byte(challenge)) == 1
	default:
		return false
	}
}

// composeRedirect rebuilds uri with params in the query string or, for
// responses carrying tokens, in the fragment.
func composeRedirect(uri string, params url.Values, useFragment bool) (string, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", NewError(ErrInvalidRequest, "redirect_uri is malformed")
	}
	if useFragment {
		parsed.Fragment = params.Encode()
		return parsed.String(), nil
	}
	query := parsed.Query()
	for key, values := range params {
		for _, v := range values {
			query.Set(key, v)
		}
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func hasScope(scope, want string) bool {
	for _, s := range strings.Fields(scope) {
		if s == want {
			return true
		}
	}
	return false
}

func subset(requested, allowed []string) bool {
	set := make(map[string]bool, len(allowed))
	for _, s := range allowed {
		set[s] = true
	}
	for _, s := range requested {
		if !set[s] {
			return false
		}
	}
	return true
}
