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

package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/oauthhub/oauthhub/internal/client"
	"github.com/oauthhub/oauthhub/internal/resp"
)

// applicationPayload is the wire shape of one registered application:
// credentials and metadata side by side, scope re-split into a list.
type applicationPayload struct {
	ClientInfo     map[string]any `json:"client_info"`
	ClientMetadata map[string]any `json:"client_metadata"`
}

func toApplicationPayload(c *client.Client) applicationPayload {
	return applicationPayload{
		ClientInfo: map[string]any{
			"client_id":     c.ClientID,
			"client_secret": c.ClientSecret,
			"app_name":      c.AppName,
			"owner":         c.OwnerUsername,
			"issued_at":     c.IssuedAt,
		},
		ClientMetadata: map[string]any{
			"client_name":                c.Metadata.ClientName,
			"client_uri":                 c.Metadata.ClientURI,
			"skip_authorization":         c.Metadata.SkipAuthorization,
			"register_callback_uris":     c.Metadata.RegisterCallbackURIs,
			"logout_callback_uris":       c.Metadata.LogoutCallbackURIs,
			"redirect_uris":              c.Metadata.RedirectURIs,
			"scope":                      strings.Fields(c.Metadata.Scope),
			"grant_types":                c.Metadata.GrantTypes,
			"response_types":             c.Metadata.ResponseTypes,
			"token_endpoint_auth_method": c.Metadata.TokenEndpointAuthMethod,
		},
	}
}

type applicationRequest struct {
	AppName                 string   `json:"app_name"`
	ClientName              string   `json:"client_name"`
	ClientURI               string   `json:"client_uri"`
	SkipAuthorization       bool     `json:"skip_authorization"`
	RegisterCallbackURIs    []string `json:"register_callback_uris"`
	LogoutCallbackURIs      []string `json:"logout_callback_uris"`
	RedirectURIs            []string `json:"redirect_uris"`
	Scope                   []string `json:"scope"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

func (req *applicationRequest) metadata() client.Metadata {
	return client.Metadata{
		ClientName:              req.ClientName,
		ClientURI:               req.ClientURI,
		SkipAuthorization:       req.SkipAuthorization,
		RegisterCallbackURIs:    req.RegisterCallbackURIs,
		LogoutCallbackURIs:      req.LogoutCallbackURIs,
		RedirectURIs:            req.RedirectURIs,
		Scope:                   strings.Join(req.Scope, " "),
		GrantTypes:              req.GrantTypes,
		ResponseTypes:           req.ResponseTypes,
		TokenEndpointAuthMethod: req.TokenEndpointAuthMethod,
	}
}

// requireAdmin rejects non-admin sessions; applications belong to
// admin users.
func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if !IsAdmin(r.Context()) {
		resp.Write(w, resp.PermissionError)
		return false
	}
	return true
}

// ListApplications returns every application the caller owns.
func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	apps, err := h.registry.List(r.Context(), GetUsername(r.Context()))
	if err != nil {
		resp.Write(w, resp.DatabaseQueryError)
		return
	}

	payloads := make([]applicationPayload, 0, len(apps))
	for _, app := range apps {
		payloads = append(payloads, toApplicationPayload(app))
	}
	resp.WriteData(w, resp.Succeed, map[string]any{
		"number":       len(payloads),
		"applications": payloads,
	})
}

// CreateApplication registers a new client application.
func (h *Handler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}

	var req applicationRequest
	if err := decodeRequest(r, &req); err != nil {
		resp.WriteMessage(w, resp.ParamError, err.Error())
		return
	}
	if req.AppName == "" {
		resp.WriteMessage(w, resp.ParamError, "app_name is required")
		return
	}
	md := req.metadata()
	if err := client.ValidateMetadata(md); err != nil {
		resp.WriteMessage(w, resp.ParamError, err.Error())
		return
	}

	created, err := h.registry.Create(r.Context(), GetUsername(r.Context()), req.AppName, md)
	if err != nil {
		if errors.Is(err, client.ErrAppNameTaken) {
			resp.Write(w, resp.DataExist)
			return
		}
		resp.Write(w, resp.DatabaseInsertError)
		return
	}
	resp.WriteData(w, resp.Succeed, toApplicationPayload(created))
}

// GetApplication returns one of the caller's applications.
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	app, err := h.registry.Get(r.Context(), GetUsername(r.Context()), chi.URLParam(r, "client_id"))
	if err != nil {
		if errors.Is(err, client.ErrClientNotFound) {
			resp.Write(w, resp.NoData)
			return
		}
		resp.Write(w, resp.DatabaseQueryError)
		return
	}
	resp.WriteData(w, resp.Succeed, toApplicationPayload(app))
}

// UpdateApplication replaces an application's metadata and returns the
// refreshed record.
func (h *Handler) UpdateApplication(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}

	var req applicationRequest
	if err := decodeRequest(r, &req); err != nil {
		resp.WriteMessage(w, resp.ParamError, err.Error())
		return
	}
	md := req.metadata()
	if err := client.ValidateMetadata(md); err != nil {
		resp.WriteMessage(w, resp.ParamError, err.Error())
		return
	}

	updated, err := h.registry.Update(r.Context(), GetUsername(r.Context()), chi.URLParam(r, "client_id"), md)
	if err != nil {
		if errors.Is(err, client.ErrClientNotFound) {
			resp.Write(w, resp.NoData)
			return
		}
		resp.Write(w, resp.DatabaseUpdateError)
		return
	}
	resp.WriteData(w, resp.Succeed, toApplicationPayload(updated))
}

// DeleteApplication removes an application; its tokens and codes go
// with it.
func (h *Handler) DeleteApplication(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	err := h.registry.Delete(r.Context(), GetUsername(r.Context()), chi.URLParam(r, "client_id"))
	if err != nil {
		if errors.Is(err, client.ErrClientNotFound) {
			resp.Write(w, resp.NoData)
			return
		}
		resp.Write(w, resp.DatabaseDeleteError)
		return
	}
	resp.Write(w, resp.Succeed)
}
