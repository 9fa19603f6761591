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

package account

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oauthhub/oauthhub/internal/audit"
	"github.com/oauthhub/oauthhub/internal/callback"
	"github.com/oauthhub/oauthhub/internal/client"
	"github.com/oauthhub/oauthhub/internal/token"
)

type memUsers struct {
	users map[string]*User
}

func newMemUsers() *memUsers { return &memUsers{users: make(map[string]*User)} }

func (m *memUsers) Create(_ context.Context, u *User) error {
	if _, ok := m.users[u.Username]; ok {
		return ErrUserExists
	}
	m.users[u.Username] = u
	return nil
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (*User, error) {
	u, ok := m.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (m *memUsers) UpdatePassword(_ context.Context, username, passwordHash string) error {
	u, ok := m.users[username]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

type memAdmins struct {
	admins map[string]*AdminUser
}

func newMemAdmins() *memAdmins { return &memAdmins{admins: make(map[string]*AdminUser)} }

func (m *memAdmins) Create(_ context.Context, a *AdminUser) error {
	m.admins[a.Username] = a
	return nil
}

func (m *memAdmins) GetByUsername(_ context.Context, username string) (*AdminUser, error) {
	a, ok := m.admins[username]
	if !ok {
		return nil, ErrAdminNotFound
	}
	return a, nil
}

type memClients struct {
	apps []*client.Client
}

func (m *memClients) Create(_ context.Context, c *client.Client) error {
	m.apps = append(m.apps, c)
	return nil
}

func (m *memClients) GetByClientID(_ context.Context, clientID string) (*client.Client, error) {
	for _, app := range m.apps {
		if app.ClientID == clientID {
			return app, nil
		}
	}
	return nil, client.ErrClientNotFound
}

func (m *memClients) GetForOwner(_ context.Context, clientID, owner string) (*client.Client, error) {
	return m.GetByClientID(context.Background(), clientID)
}

func (m *memClients) ListByOwner(_ context.Context, _ string) ([]*client.Client, error) {
	return m.apps, nil
}

func (m *memClients) List(_ context.Context) ([]*client.Client, error) {
	return m.apps, nil
}

func (m *memClients) UpdateMetadata(_ context.Context, _ string, _ client.Metadata) error {
	return nil
}

func (m *memClients) Delete(_ context.Context, _ string) error { return nil }

type memRecords struct {
	records []*token.LoginRecord
}

func (m *memRecords) ListByUsername(_ context.Context, username string) ([]*token.LoginRecord, error) {
	var out []*token.LoginRecord
	for _, r := range m.records {
		if r.Username == username {
			out = append(out, r)
		}
	}
	return out, nil
}

type memPurger struct {
	purged []string
}

func (m *memPurger) PurgeUser(_ context.Context, username string) error {
	m.purged = append(m.purged, username)
	return nil
}

type fixture struct {
	svc     *Service
	users   *memUsers
	admins  *memAdmins
	clients *memClients
	records *memRecords
	purger  *memPurger
	hasher  *PasswordHasher
	codec   *token.Codec
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	codec, err := token.NewCodec()
	require.NoError(t, err)

	f := &fixture{
		users:   newMemUsers(),
		admins:  newMemAdmins(),
		clients: &memClients{},
		records: &memRecords{},
		purger:  &memPurger{},
		hasher:  newTestHasher(),
		codec:   codec,
	}
	f.svc = NewService(f.users, f.admins, f.clients, f.records, f.purger,
		callback.New(2*time.Second), f.hasher, codec, audit.NewSlogLogger(), Config{
			Secret:          "session-secret",
			UserTokenTTL:    time.Hour,
			AdminTokenTTL:   time.Hour,
			DefaultPassword: "default-pass",
		})
	return f
}

func (f *fixture) addUser(t *testing.T, username, password, email, phone string) {
	t.Helper()
	hash, err := f.hasher.Hash(password)
	require.NoError(t, err)
	f.users.users[username] = &User{
		ID:           username + "-id",
		Username:     username,
		PasswordHash: hash,
		Email:        email,
		Phone:        phone,
	}
}

func (f *fixture) addAdmin(t *testing.T, username, password string) {
	t.Helper()
	hash, err := f.hasher.Hash(password)
	require.NoError(t, err)
	f.admins.admins[username] = &AdminUser{
		ID:           username + "-id",
		Username:     username,
		PasswordHash: hash,
	}
}

// callbackSink records every request a fan-out delivers.
type callbackSink struct {
	mu     sync.Mutex
	bodies []map[string]string
	agents []string
	status int
}

func newCallbackSink(status int) (*callbackSink, *httptest.Server) {
	sink := &callbackSink{status: status}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]string
		_ = json.Unmarshal(body, &payload)

		sink.mu.Lock()
		sink.bodies = append(sink.bodies, payload)
		sink.agents = append(sink.agents, r.UserAgent())
		sink.mu.Unlock()

		w.WriteHeader(sink.status)
		_, _ = w.Write([]byte(`{"code":"SUCCEED"}`))
	}))
	return sink, server
}

func TestRegisterDuplicateUsername(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "alice", "pw", "", "")

	_, err := f.svc.Register(context.Background(), "alice", "pw2", "", "")
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestRegisterFansOutProjectedProfile(t *testing.T) {
	f := newFixture(t)
	sink, server := newCallbackSink(http.StatusOK)
	defer server.Close()

	f.clients.apps = append(f.clients.apps, &client.Client{
		ClientID:     "cid-1",
		ClientSecret: "secret-1",
		Metadata: client.Metadata{
			Scope:                "username email",
			RegisterCallbackURIs: []string{server.URL},
		},
	})

	partial, err := f.svc.Register(context.Background(), "bob", "pw", "bob@example.com", "555-0100")
	require.NoError(t, err)
	assert.False(t, partial)

	require.Len(t, sink.bodies, 1)
	assert.Equal(t, "bob", sink.bodies[0]["username"])
	assert.Equal(t, "bob@example.com", sink.bodies[0]["email"])
	assert.NotContains(t, sink.bodies[0], "phone")
	assert.Equal(t, "oauthhub", sink.agents[0])
}

func TestRegisterPartialOnCallbackFailure(t *testing.T) {
	f := newFixture(t)
	_, server := newCallbackSink(http.StatusInternalServerError)
	defer server.Close()

	f.clients.apps = append(f.clients.apps, &client.Client{
		ClientID: "cid-1",
		Metadata: client.Metadata{
			Scope:                "username",
			RegisterCallbackURIs: []string{server.URL},
		},
	})

	partial, err := f.svc.Register(context.Background(), "bob", "pw", "", "")
	require.NoError(t, err)
	assert.True(t, partial)

	_, err = f.users.GetByUsername(context.Background(), "bob")
	assert.NoError(t, err)
}

func TestLoginErrors(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "alice", "pw", "", "")

	_, err := f.svc.Login(context.Background(), KindUser, "nobody", "pw")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = f.svc.Login(context.Background(), KindUser, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginMintsSessionToken(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "alice", "pw", "", "")

	signed, err := f.svc.Login(context.Background(), KindUser, "alice", "pw")
	require.NoError(t, err)

	claims, err := f.codec.Decode(signed, "session-secret", "")
	require.NoError(t, err)
	assert.Equal(t, "alice", token.Subject(claims))
}

func TestAdminLoginUsesAdminTable(t *testing.T) {
	f := newFixture(t)
	f.addAdmin(t, "root", "adminpw")

	_, err := f.svc.Login(context.Background(), KindUser, "root", "adminpw")
	assert.ErrorIs(t, err, ErrUserNotFound)

	signed, err := f.svc.Login(context.Background(), KindAdmin, "root", "adminpw")
	require.NoError(t, err)
	assert.NotEmpty(t, signed)
}

func TestResetPassword(t *testing.T) {
	f := newFixture(t)
	f.addAdmin(t, "root", "adminpw")
	f.addUser(t, "alice", "pw", "", "")

	err := f.svc.ResetPassword(context.Background(), "alice", "alice")
	assert.ErrorIs(t, err, ErrNotAdmin)

	err = f.svc.ResetPassword(context.Background(), "root", "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, f.svc.ResetPassword(context.Background(), "root", "alice"))

	user, err := f.users.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	ok, err := f.hasher.Verify("default-pass", user.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestApplicationLogoutFansOutAndPurges(t *testing.T) {
	f := newFixture(t)
	sink, server := newCallbackSink(http.StatusOK)
	defer server.Close()

	f.clients.apps = append(f.clients.apps, &client.Client{
		ClientID:     "cid-1",
		ClientSecret: "secret-1",
	})
	f.records.records = append(f.records.records, &token.LoginRecord{
		Username: "alice",
		ClientID: "cid-1",
		LogoutURL: server.URL + "/a," + server.URL + "/b",
	})

	partial, err := f.svc.ApplicationLogout(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, partial)

	require.Len(t, sink.bodies, 2)
	for _, body := range sink.bodies {
		assert.Equal(t, "alice", body["username"])

		blob, err := base64.StdEncoding.DecodeString(body["encrypted_string"])
		require.NoError(t, err)
		var creds map[string]string
		require.NoError(t, json.Unmarshal(blob, &creds))
		assert.Equal(t, "secret-1", creds["cid-1"])
	}
	assert.Equal(t, []string{"alice"}, f.purger.purged)
}

func TestApplicationLogoutPartialOnCallbackFailure(t *testing.T) {
	f := newFixture(t)
	_, server := newCallbackSink(http.StatusBadGateway)
	defer server.Close()

	f.clients.apps = append(f.clients.apps, &client.Client{ClientID: "cid-1"})
	f.records.records = append(f.records.records, &token.LoginRecord{
		Username:  "alice",
		ClientID:  "cid-1",
		LogoutURL: server.URL,
	})

	partial, err := f.svc.ApplicationLogout(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, partial)
	assert.Equal(t, []string{"alice"}, f.purger.purged)
}

func TestApplicationLogoutNoRecords(t *testing.T) {
	f := newFixture(t)
	sink, server := newCallbackSink(http.StatusOK)
	defer server.Close()

	partial, err := f.svc.ApplicationLogout(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, partial)
	assert.Empty(t, sink.bodies)
	assert.Equal(t, []string{"alice"}, f.purger.purged)
}
