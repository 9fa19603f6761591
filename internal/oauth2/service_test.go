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
	"encoding/base64"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oauthhub/oauthhub/internal/account"
	"github.com/oauthhub/oauthhub/internal/audit"
	"github.com/oauthhub/oauthhub/internal/client"
	"github.com/oauthhub/oauthhub/internal/token"
)

type memCodes struct {
	codes map[string]*AuthorizationCode
}

func newMemCodes() *memCodes { return &memCodes{codes: make(map[string]*AuthorizationCode)} }

func (m *memCodes) Create(_ context.Context, c *AuthorizationCode) error {
	if _, ok := m.codes[c.ID]; ok {
		return ErrCodeExists
	}
	copied := *c
	m.codes[c.ID] = &copied
	return nil
}

func (m *memCodes) Get(_ context.Context, code, clientID string) (*AuthorizationCode, error) {
	for _, c := range m.codes {
		if c.Code == code && c.ClientID == clientID {
			copied := *c
			return &copied, nil
		}
	}
	return nil, ErrCodeNotFound
}

func (m *memCodes) GetByNonce(_ context.Context, clientID, nonce string) (*AuthorizationCode, error) {
	for _, c := range m.codes {
		if c.ClientID == clientID && c.Nonce == nonce {
			copied := *c
			return &copied, nil
		}
	}
	return nil, ErrCodeNotFound
}

func (m *memCodes) Delete(_ context.Context, id string) error {
	if _, ok := m.codes[id]; !ok {
		return ErrCodeNotFound
	}
	delete(m.codes, id)
	return nil
}

func (m *memCodes) DeleteIssuedBefore(_ context.Context, cutoff int64) (int64, error) {
	var n int64
	for id, c := range m.codes {
		if c.IssuedAt < cutoff {
			delete(m.codes, id)
			n++
		}
	}
	return n, nil
}

type memConsents struct {
	grants map[string]*ClientScopeGrant
}

func newMemConsents() *memConsents {
	return &memConsents{grants: make(map[string]*ClientScopeGrant)}
}

func (m *memConsents) Get(_ context.Context, username, clientID string) (*ClientScopeGrant, error) {
	for _, g := range m.grants {
		if g.Username == username && g.ClientID == clientID {
			return g, nil
		}
	}
	return nil, ErrConsentNotFound
}

func (m *memConsents) Delete(_ context.Context, id string) error {
	if _, ok := m.grants[id]; !ok {
		return ErrConsentNotFound
	}
	delete(m.grants, id)
	return nil
}

type memTokenRows struct {
	rows map[string]*token.Token
}

func newMemTokenRows() *memTokenRows { return &memTokenRows{rows: make(map[string]*token.Token)} }

func (m *memTokenRows) Create(_ context.Context, t *token.Token) error {
	copied := *t
	m.rows[t.ID] = &copied
	return nil
}

func (m *memTokenRows) GetByAccessToken(_ context.Context, accessToken string) (*token.Token, error) {
	for _, row := range m.rows {
		if row.AccessToken == accessToken {
			copied := *row
			return &copied, nil
		}
	}
	return nil, token.ErrTokenNotFound
}

func (m *memTokenRows) GetByRefreshToken(_ context.Context, refreshToken string) (*token.Token, error) {
	for _, row := range m.rows {
		if row.RefreshToken != "" && row.RefreshToken == refreshToken {
			copied := *row
			return &copied, nil
		}
	}
	return nil, token.ErrTokenNotFound
}

func (m *memTokenRows) Rotate(_ context.Context, id, newAccessToken string, issuedAt int64, metadata string) error {
	row, ok := m.rows[id]
	if !ok {
		return token.ErrTokenNotFound
	}
	row.AccessToken = newAccessToken
	row.IssuedAt = issuedAt
	row.Metadata = metadata
	return nil
}

func (m *memTokenRows) Revoke(_ context.Context, id string, accessRevokedAt, refreshRevokedAt int64) error {
	row, ok := m.rows[id]
	if !ok {
		return token.ErrTokenNotFound
	}
	if accessRevokedAt != 0 {
		row.AccessTokenRevokedAt = accessRevokedAt
	}
	if refreshRevokedAt != 0 {
		row.RefreshTokenRevokedAt = refreshRevokedAt
	}
	return nil
}

func (m *memTokenRows) Delete(_ context.Context, id string) error {
	delete(m.rows, id)
	return nil
}

type memLoginRecords struct {
	records map[string]*token.LoginRecord
}

func newMemLoginRecords() *memLoginRecords {
	return &memLoginRecords{records: make(map[string]*token.LoginRecord)}
}

func (m *memLoginRecords) Get(_ context.Context, username, clientID string) (*token.LoginRecord, error) {
	r, ok := m.records[username+"/"+clientID]
	if !ok {
		return nil, token.ErrRecordNotFound
	}
	return r, nil
}

func (m *memLoginRecords) Create(_ context.Context, r *token.LoginRecord) error {
	m.records[r.Username+"/"+r.ClientID] = r
	return nil
}

func (m *memLoginRecords) ListByUsername(_ context.Context, username string) ([]*token.LoginRecord, error) {
	var out []*token.LoginRecord
	for _, r := range m.records {
		if r.Username == username {
			out = append(out, r)
		}
	}
	return out, nil
}

type memClientRepo struct {
	clients map[string]*client.Client
}

func newMemClientRepo() *memClientRepo {
	return &memClientRepo{clients: make(map[string]*client.Client)}
}

func (m *memClientRepo) Create(_ context.Context, c *client.Client) error {
	m.clients[c.ClientID] = c
	return nil
}

func (m *memClientRepo) GetByClientID(_ context.Context, clientID string) (*client.Client, error) {
	c, ok := m.clients[clientID]
	if !ok {
		return nil, client.ErrClientNotFound
	}
	return c, nil
}

func (m *memClientRepo) GetForOwner(_ context.Context, clientID, _ string) (*client.Client, error) {
	return m.GetByClientID(context.Background(), clientID)
}

func (m *memClientRepo) ListByOwner(_ context.Context, _ string) ([]*client.Client, error) {
	return nil, nil
}

func (m *memClientRepo) List(_ context.Context) ([]*client.Client, error) { return nil, nil }

func (m *memClientRepo) UpdateMetadata(_ context.Context, _ string, _ client.Metadata) error {
	return nil
}

func (m *memClientRepo) Delete(_ context.Context, _ string) error { return nil }

type fakeUsers struct {
	users     map[string]*account.User
	passwords map[string]string
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[string]*account.User), passwords: make(map[string]string)}
}

func (f *fakeUsers) Authenticate(_ context.Context, username, password string) (*account.User, error) {
	u, ok := f.users[username]
	if !ok {
		return nil, account.ErrUserNotFound
	}
	if f.passwords[username] != password {
		return nil, account.ErrInvalidCredentials
	}
	return u, nil
}

func (f *fakeUsers) GetUser(_ context.Context, username string) (*account.User, error) {
	u, ok := f.users[username]
	if !ok {
		return nil, account.ErrUserNotFound
	}
	return u, nil
}

type grantFixture struct {
	svc      *Service
	codes    *memCodes
	consents *memConsents
	clients  *memClientRepo
	users    *fakeUsers
	rows     *memTokenRows
	codec    *token.Codec
}

func newGrantFixture(t *testing.T) *grantFixture {
	t.Helper()
	codec, err := token.NewCodec()
	require.NoError(t, err)

	f := &grantFixture{
		codes:    newMemCodes(),
		consents: newMemConsents(),
		clients:  newMemClientRepo(),
		users:    newFakeUsers(),
		rows:     newMemTokenRows(),
		codec:    codec,
	}
	auditLogger := audit.NewSlogLogger()
	tokens := token.NewService(codec, f.rows, newMemLoginRecords(), f.clients,
		auditLogger, time.Hour, 24*time.Hour)
	idTokens := NewIDTokenBuilder(codec, "oauthhub", time.Hour)
	f.svc = NewService(f.clients, f.codes, f.consents, f.users, tokens, idTokens,
		auditLogger, 5*time.Minute)

	f.users.users["alice"] = &account.User{
		ID:       "uid-alice",
		Username: "alice",
		Email:    "alice@example.com",
		Phone:    "555-0100",
	}
	f.users.passwords["alice"] = "alicepw"
	return f
}

func (f *grantFixture) addClient(skipAuth bool) *client.Client {
	cl := &client.Client{
		ID:           "row-1",
		ClientID:     "cid-1",
		ClientSecret: "secret-1",
		AppName:      "console",
		Metadata: client.Metadata{
			SkipAuthorization:       skipAuth,
			RedirectURIs:            []string{"https://app.example.com/cb"},
			Scope:                   "email offline_access openid phone username",
			GrantTypes:              []string{"authorization_code", "refresh_token", "password", "client_credentials", "implicit"},
			ResponseTypes:           []string{"code", "token", "code id_token"},
			TokenEndpointAuthMethod: "client_secret_post",
		},
	}
	f.clients.clients[cl.ClientID] = cl
	return cl
}

func codeRequest(scope string) *AuthorizeRequest {
	return &AuthorizeRequest{
		ResponseType: "code",
		ClientID:     "cid-1",
		RedirectURI:  "https://app.example.com/cb",
		Scope:        scope,
		State:        "xyz",
	}
}

func assertOAuthError(t *testing.T, err error, code string) *Error {
	t.Helper()
	var oe *Error
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, code, oe.Code)
	return oe
}

func TestAuthorizeSkipAuthorizationIssuesCode(t *testing.T) {
	f := newGrantFixture(t)
	f.addClient(true)

	result, err := f.svc.Authorize(context.Background(), codeRequest("email username"), "alice")
	require.NoError(t, err)
	assert.False(t, result.NeedsConsent)

	parsed, err := url.Parse(result.RedirectURI)
	require.NoError(t, err)
	query := parsed.Query()
	assert.NotEmpty(t, query.Get("code"))
	assert.Equal(t, "xyz", query.Get("state"))
	assert.Empty(t, parsed.Fragment)

	stored, err := f.codes.Get(context.Background(), query.Get("code"), "cid-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.Username)
	assert.Equal(t, "email username", stored.Scope)
}

func TestAuthorizeNeedsConsent(t *testing.T) {
	f := newGrantFixture(t)
	f.addClient(false)

	result, err := f.svc.Authorize(context.Background(), codeRequest("email"), "alice")
	require.NoError(t, err)
	assert.True(t, result.NeedsConsent)
	assert.Empty(t, result.RedirectURI)
}

func TestAuthorizeLiveGrantSkipsConsent(t *testing.T) {
	f := newGrantFixture(t)
	f.addClient(false)
	f.consents.grants["g1"] = &ClientScopeGrant{
		ID:        "g1",
		Username:  "alice",
		ClientID:  "cid-1",
		Scopes:    "email username",
		GrantedAt: time.Now().Unix(),
		ExpiresIn: 0,
	}

	result, err := f.svc.Authorize(context.Background(), codeRequest("email"), "alice")
	require.NoError(t, err)
	assert.False(t, result.NeedsConsent)
	assert.NotEmpty(t, result.RedirectURI)
}

func TestAuthorizeExpiredGrantForcesReconsent(t *testing.T) {
	f := newGrantFixture(t)
	f.addClient(false)
	f.consents.grants["g1"] = &ClientScopeGrant{
		ID:        "g1",
		Username:  "alice",
		ClientID:  "cid-1",
		Scopes:    "email",
		GrantedAt: time.Now().Add(-2 * time.Hour).Unix(),
		ExpiresIn: 3600,
	}

	result, err := f.svc.Authorize(context.Background(), codeRequest("email"), "alice")
	require.NoError(t, err)
	assert.True(t, result.NeedsConsent)
	// The lapsed grant was retired on observation.
	assert.Empty(t, f.consents.grants)
}

func TestAuthorizeScopeExceedsGrant(t *testing.T) {
	f := newGrantFixture(t)
	f.addClient(false)
	f.consents.grants["g1"] = &ClientScopeGrant{
		ID:        "g1",
		Username:  "alice",
		ClientID:  "cid-1",
		Scopes:    "email",
		GrantedAt: time.Now().Unix(),
	}

	_, err := f.svc.Authorize(context.Background(), codeRequest("email phone"), "alice")
	oe := assertOAuthError(t, err, ErrInvalidScope)
	assert.Equal(t, "xyz", oe.State)
}

func TestValidateAuthorizeRejections(t *testing.T) {
	f := newGrantFixture(t)
	f.addClient(true)

	tests := []struct {
		name   string
		mutate func(req *AuthorizeRequest)
		code   string
	}{
		{"unknown client", func(r *AuthorizeRequest) { r.ClientID = "nope" }, ErrInvalidClient},
		{"unregistered redirect", func(r *AuthorizeRequest) { r.RedirectURI = "https://evil.example.com" }, ErrInvalidRequest},
		{"response type not registered", func(r *AuthorizeRequest) { r.ResponseType = "id_token token" }, ErrUnsupportedResponseType},
		{"openid without nonce", func(r *AuthorizeRequest) { r.Scope = "openid" }, ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := codeRequest("email")
			tt.mutate(req)
			_, err := f.svc.ValidateAuthorize(context.Background(), req)
			assertOAuthError(t, err, tt.code)
		})
	}
}

func TestValidateAuthorizeDuplicateNonce(t *testing.T) {
	f := newGrantFixture(t)
	f.addClient(true)

	req := codeRequest("openid email")
	req.Nonce = "n-1"
	_, err := f.svc.Authorize(context.Background(), req, "alice")
	require.NoError(t, err)

	_, err = f.svc.ValidateAuthorize(context.Background(), req)
	assertOAuthError(t, err, ErrInvalidRequest)
}

func TestImplicitGrantUsesFragment(t *testing.T) {
	f := newGrantFixture(t)
	f.addClient(true)

	req := codeRequest("email")
	req.ResponseType = "token"
	result, err := f.svc.Authorize(context.Background(), req, "alice")
	require.NoError(t, err)

	parsed, err := url.Parse(result.RedirectURI)
	require.NoError(t, err)
	require.NotEmpty(t, parsed.Fragment)

	fragment, err := url.ParseQuery(parsed.Fragment)
	require.NoError(t, err)
	assert.NotEmpty(t, fragment.Get("access_token"))
	assert.Equal(t, "Bearer", fragment.Get("token_type"))
	assert.Empty(t, fragment.Get("refresh_token"))
	assert.Equal(t, "xyz", fragment.Get("state"))
}

func TestHybridResponseCarriesCodeAndIDToken(t *testing.T) {
	f := newGrantFixture(t)
	cl := f.addClient(true)

	req := codeRequest("openid email")
	req.ResponseType = "code id_token"
	req.Nonce = "n-hybrid"
	result, err := f.svc.Authorize(context.Background(), req, "alice")
	require.NoError(t, err)

	parsed, err := url.Parse(result.RedirectURI)
	require.NoError(t, err)
	fragment, err := url.ParseQuery(parsed.Fragment)
	require.NoError(t, err)
	assert.NotEmpty(t, fragment.Get("code"))

	claims, err := f.codec.Decode(fragment.Get("id_token"), cl.ClientSecret, cl.ClientID)
	require.NoError(t, err)
	assert.Equal(t, "alice", token.Subject(claims))
	assert.Equal(t, "n-hybrid", claims["nonce"])
}

func TestRedirectIndexPassesThrough(t *testing.T) {
	f := newGrantFixture(t)
	f.addClient(true)

	req := codeRequest("email")
	req.RedirectIndex = "2"
	result, err := f.svc.Authorize(context.Background(), req, "alice")
	require.NoError(t, err)

	parsed, err := url.Parse(result.RedirectURI)
	require.NoError(t, err)
	assert.Equal(t, "2", parsed.Query().Get("redirect_index"))
}

// authorizeForCode runs the front half of the code flow and returns the
// issued code.
func authorizeForCode(t *testing.T, f *grantFixture, req *AuthorizeRequest) string {
	t.Helper()
	result, err := f.svc.Authorize(context.Background(), req, "alice")
	require.NoError(t, err)
	require.False(t, result.NeedsConsent)

	parsed, err := url.Parse(result.RedirectURI)
	require.NoError(t, err)
	code := parsed.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}

func TestCodeExchange(t *testing.T) {
	f := newGrantFixture(t)
	cl := f.addClient(true)

	req := codeRequest("openid email")
	req.Nonce = "n-1"
	code := authorizeForCode(t, f, req)

	res, err := f.svc.Token(context.Background(), &TokenRequest{
		GrantType:    GrantAuthorizationCode,
		Code:         code,
		RedirectURI:  "https://app.example.com/cb",
		ClientID:     "cid-1",
		ClientSecret: "secret-1",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "Bearer", res.TokenType)
	assert.Equal(t, int64(3600), res.ExpiresIn)
	assert.Equal(t, "openid email", res.Scope)

	claims, err := f.codec.Decode(res.IDToken, cl.ClientSecret, cl.ClientID)
	require.NoError(t, err)
	assert.Equal(t, "alice", token.Subject(claims))
	assert.Equal(t, "alice@example.com", claims["email"])
	assert.Equal(t, "n-1", claims["nonce"])

	// Single use: the same code cannot be exchanged twice.
	_, err = f.svc.Token(context.Background(), &TokenRequest{
		GrantType:    GrantAuthorizationCode,
		Code:         code,
		RedirectURI:  "https://app.example.com/cb",
		ClientID:     "cid-1",
		ClientSecret: "secret-1",
	})
	assertOAuthError(t, err, ErrInvalidGrant)
}

func TestCodeExchangeExpiredCodeIsDeleted(t *testing.T) {
	f := newGrantFixture(t)
	f.addClient(true)

	code := authorizeForCode(t, f, codeRequest("email"))
	for _, c := range f.codes.codes {
		c.IssuedAt = time.Now().Add(-10 * time.Minute).Unix()
	}

	_, err := f.svc.Token(context.Background(), &TokenRequest{
		GrantType:    GrantAuthorizationCode,
		Code:         code,
		RedirectURI:  "https://app.example.com/cb",
		ClientID:     "cid-1",
		ClientSecret: "secret-1",
	})
	assertOAuthError(t, err, ErrInvalidGrant)
	assert.Empty(t, f.codes.codes)
}

func TestCodeExchangeRedirectMismatch(t *testing.T) {
	f := newGrantFixture(t)
	f.addClient(true)

	code := authorizeForCode(t, f, codeRequest("email"))

	_, err := f.svc.Token(context.Background(), &TokenRequest{
		GrantType:    GrantAuthorizationCode,
		Code:         code,
		RedirectURI:  "https://app.example.com/other",
		ClientID:     "cid-1",
		ClientSecret: "secret-1",
	})
	assertOAuthError(t, err, ErrInvalidGrant)
}

func TestCodeExchangePKCES256(t *testing.T) {
	f := newGrantFixture(t)
	f.addClient(true)

	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	sum := sha256.Sum256([]byte(verifier))
	req := codeRequest("email")
	req.CodeChallenge = base64.RawURLEncoding.EncodeToString(sum[:])
	req.CodeChallengeMethod = "S256"
	code := authorizeForCode(t, f, req)

	// Missing verifier.
	_, err := f.svc.Token(context.Background(), &TokenRequest{
		GrantType:    GrantAuthorizationCode,
		Code:         code,
		RedirectURI:  "https://app.example.com/cb",
		ClientID:     "cid-1",
		ClientSecret: "secret-1",
	})
	assertOAuthError(t, err, ErrInvalidRequest)

	// Wrong verifier.
	_, err = f.svc.Token(context.Background(), &TokenRequest{
		GrantType:    GrantAuthorizationCode,
		Code:         code,
		RedirectURI:  "https://app.example.com/cb",
		ClientID:     "cid-1",
		ClientSecret: "secret-1",
		CodeVerifier: "wrong",
	})
	assertOAuthError(t, err, ErrInvalidGrant)

	// Correct verifier.
	res, err := f.svc.Token(context.Background(), &TokenRequest{
		GrantType:    GrantAuthorizationCode,
		Code:         code,
		RedirectURI:  "https://app.example.com/cb",
		ClientID:     "cid-1",
		ClientSecret: "secret-1",
		CodeVerifier: verifier,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
}

func TestCodeExchangePKCEPlain(t *testing.T) {
	f := newGrantFixture(t)
	f.addClient(true)

	req := codeRequest("email")
	req.CodeChallenge = "plain-value"
	req.CodeChallengeMethod = "plain"
	code := authorizeForCode(t, f, req)

	res, err := f.svc.Token(context.Background(), &TokenRequest{
		GrantType:    GrantAuthorizationCode,
		Code:         code,
		RedirectURI:  "https://app.example.com/cb",
		ClientID:     "cid-1",
		ClientSecret: "secret-1",
		CodeVerifier: "plain-value",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
}

func TestPasswordGrant(t *testing.T) {
	f := newGrantFixture(t)
	f.addClient(true)

	res, err := f.svc.Token(context.Background(), &TokenRequest{
		GrantType:    GrantPassword,
		ClientID:     "cid-1",
		ClientSecret: "secret-1",
		Username:     "alice",
		Password:     "alicepw",
		Scope:        "email username",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)

	_, err = f.svc.Token(context.Background(), &TokenRequest{
		GrantType:    GrantPassword,
		ClientID:     "cid-1",
		ClientSecret: "secret-1",
		Username:     "alice",
		Password:     "wrong",
	})
	assertOAuthError(t, err, ErrInvalidGrant)

	_, err = f.svc.Token(context.Background(), &TokenRequest{
		GrantType:    GrantPassword,
		ClientID:     "cid-1",
		ClientSecret: "secret-1",
		Username:     "alice",
		Password:     "alicepw",
		Scope:        "admin",
	})
	assertOAuthError(t, err, ErrInvalidScope)
}

func TestClientCredentialsGrant(t *testing.T) {
	f := newGrantFixture(t)
	cl := f.addClient(true)

	res, err := f.svc.Token(context.Background(), &TokenRequest{
		GrantType:    GrantClientCredentials,
		ClientID:     "cid-1",
		ClientSecret: "secret-1",
		Scope:        "email",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Empty(t, res.RefreshToken)

	claims, err := f.codec.Decode(res.AccessToken, cl.ClientSecret, cl.ClientID)
	require.NoError(t, err)
	assert.Equal(t, "cid-1", token.Subject(claims))
}

func TestRefreshGrant(t *testing.T) {
	f := newGrantFixture(t)
	f.addClient(true)

	issued, err := f.svc.Token(context.Background(), &TokenRequest{
		GrantType:    GrantPassword,
		ClientID:     "cid-1",
		ClientSecret: "secret-1",
		Username:     "alice",
		Password:     "alicepw",
		Scope:        "email",
	})
	require.NoError(t, err)

	res, err := f.svc.Token(context.Background(), &TokenRequest{
		GrantType:    GrantRefreshToken,
		ClientID:     "cid-1",
		ClientSecret: "secret-1",
		RefreshToken: issued.RefreshToken,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, issued.RefreshToken, res.RefreshToken)

	_, err = f.svc.Token(context.Background(), &TokenRequest{
		GrantType:    GrantRefreshToken,
		ClientID:     "cid-1",
		ClientSecret: "secret-1",
		RefreshToken: "never-issued",
	})
	assertOAuthError(t, err, ErrInvalidGrant)
}

func TestTokenClientAuthentication(t *testing.T) {
	f := newGrantFixture(t)
	f.addClient(true)

	_, err := f.svc.Token(context.Background(), &TokenRequest{
		GrantType:    GrantPassword,
		ClientID:     "cid-1",
		ClientSecret: "wrong-secret",
		Username:     "alice",
		Password:     "alicepw",
	})
	assertOAuthError(t, err, ErrInvalidClient)

	_, err = f.svc.Token(context.Background(), &TokenRequest{
		GrantType:    GrantPassword,
		ClientID:     "ghost",
		ClientSecret: "secret-1",
	})
	assertOAuthError(t, err, ErrInvalidClient)
}

func TestTokenGrantNotRegistered(t *testing.T) {
	f := newGrantFixture(t)
	cl := f.addClient(true)
	cl.Metadata.GrantTypes = []string{"authorization_code"}

	_, err := f.svc.Token(context.Background(), &TokenRequest{
		GrantType:    GrantPassword,
		ClientID:     "cid-1",
		ClientSecret: "secret-1",
		Username:     "alice",
		Password:     "alicepw",
	})
	assertOAuthError(t, err, ErrUnauthorizedClient)
}

func TestPublicClientSkipsSecretCheck(t *testing.T) {
	f := newGrantFixture(t)
	cl := f.addClient(true)
	cl.Metadata.TokenEndpointAuthMethod = "none"

	code := authorizeForCode(t, f, codeRequest("email"))

	res, err := f.svc.Token(context.Background(), &TokenRequest{
		GrantType:   GrantAuthorizationCode,
		Code:        code,
		RedirectURI: "https://app.example.com/cb",
		ClientID:    "cid-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
}

func TestCleanupExpiredCodes(t *testing.T) {
	f := newGrantFixture(t)
	f.addClient(true)

	authorizeForCode(t, f, codeRequest("email"))
	authorizeForCode(t, f, codeRequest("username"))
	for _, c := range f.codes.codes {
		c.IssuedAt = time.Now().Add(-10 * time.Minute).Unix()
		break
	}

	deleted, err := f.svc.CleanupExpiredCodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Len(t, f.codes.codes, 1)
}
