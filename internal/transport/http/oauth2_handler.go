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
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/oauthhub/oauthhub/internal/client"
	"github.com/oauthhub/oauthhub/internal/oauth2"
	"github.com/oauthhub/oauthhub/internal/resp"
	"github.com/oauthhub/oauthhub/internal/token"
)

type authorizeQuery struct {
	ResponseType        string `json:"response_type"`
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	Scope               string `json:"scope"`
	State               string `json:"state"`
	Nonce               string `json:"nonce"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
	RedirectIndex       string `json:"redirect_index"`
	RedirectToURL       string `json:"redirect_to_url"`
}

// Authorize is the browser-facing authorization endpoint. An absent or
// dead session bounces to the login UI carrying the original request
// URI; protocol failures land on the error page.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	var q authorizeQuery
	if err := decodeRequest(r, &q); err != nil {
		h.redirectAuthorizeError(w, r, oauth2.NewError(oauth2.ErrInvalidRequest, err.Error()))
		return
	}
	if q.ResponseType == "" || q.ClientID == "" || q.RedirectURI == "" {
		h.redirectAuthorizeError(w, r, oauth2.NewError(oauth2.ErrInvalidRequest, "response_type, client_id and redirect_uri are required"))
		return
	}

	username, _, err := h.authenticate(r.Context(), h.sessionToken(r))
	if err != nil {
		target := q.RedirectToURL
		if target == "" {
			target = consentLoginPath
		}
		login, parseErr := url.Parse(target)
		if parseErr != nil {
			login = &url.URL{Path: consentLoginPath}
		}
		values := login.Query()
		values.Set("authorization_uri", r.URL.RequestURI())
		login.RawQuery = values.Encode()
		http.Redirect(w, r, login.String(), http.StatusFound)
		return
	}

	req := &oauth2.AuthorizeRequest{
		ResponseType:        q.ResponseType,
		ClientID:            q.ClientID,
		RedirectURI:         q.RedirectURI,
		Scope:               q.Scope,
		State:               q.State,
		Nonce:               q.Nonce,
		CodeChallenge:       q.CodeChallenge,
		CodeChallengeMethod: q.CodeChallengeMethod,
		RedirectIndex:       q.RedirectIndex,
	}
	result, err := h.grants.Authorize(r.Context(), req, username)
	if err != nil {
		var protoErr *oauth2.Error
		if !errors.As(err, &protoErr) {
			protoErr = oauth2.NewError(oauth2.ErrServerError, "authorization failed")
		}
		h.redirectAuthorizeError(w, r, protoErr)
		return
	}

	if result.NeedsConsent {
		confirm := url.URL{Path: consentConfirmPath}
		values := confirm.Query()
		values.Set("authorization_uri", r.URL.RequestURI())
		values.Set("client_id", q.ClientID)
		values.Set("scope", q.Scope)
		confirm.RawQuery = values.Encode()
		http.Redirect(w, r, confirm.String(), http.StatusFound)
		return
	}
	http.Redirect(w, r, result.RedirectURI, http.StatusFound)
}

func (h *Handler) redirectAuthorizeError(w http.ResponseWriter, r *http.Request, protoErr *oauth2.Error) {
	page := url.URL{Path: consentErrorPath}
	values := page.Query()
	values.Set("error", protoErr.Code)
	if protoErr.Description != "" {
		values.Set("error_description", protoErr.Description)
	}
	page.RawQuery = values.Encode()
	http.Redirect(w, r, page.String(), http.StatusFound)
}

type tokenBody struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	CodeVerifier string `json:"code_verifier"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Scope        string `json:"scope"`
	RefreshToken string `json:"refresh_token"`
}

// Token is the RFC 6749 token endpoint. Unlike the management surface
// it answers protocol JSON, not the envelope.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	var body tokenBody
	if err := decodeRequest(r, &body); err != nil {
		writeProtocolError(w, oauth2.NewError(oauth2.ErrInvalidRequest, err.Error()))
		return
	}
	if clientID, clientSecret, ok := r.BasicAuth(); ok {
		body.ClientID = clientID
		body.ClientSecret = clientSecret
	}

	res, err := h.grants.Token(r.Context(), &oauth2.TokenRequest{
		GrantType:    body.GrantType,
		Code:         body.Code,
		RedirectURI:  body.RedirectURI,
		ClientID:     body.ClientID,
		ClientSecret: body.ClientSecret,
		CodeVerifier: body.CodeVerifier,
		Username:     body.Username,
		Password:     body.Password,
		Scope:        body.Scope,
		RefreshToken: body.RefreshToken,
	})
	if err != nil {
		var protoErr *oauth2.Error
		if !errors.As(err, &protoErr) {
			protoErr = oauth2.NewError(oauth2.ErrServerError, "token issuance failed")
		}
		writeProtocolError(w, protoErr)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	_ = json.NewEncoder(w).Encode(res)
}

func writeProtocolError(w http.ResponseWriter, protoErr *oauth2.Error) {
	status := http.StatusBadRequest
	if protoErr.Code == oauth2.ErrInvalidClient {
		status = http.StatusUnauthorized
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(protoErr)
}

type introspectRequest struct {
	Token    string `json:"token"`
	ClientID string `json:"client_id"`
}

// Introspect verifies a token for a client and records the SSO
// association on first use.
func (h *Handler) Introspect(w http.ResponseWriter, r *http.Request) {
	var req introspectRequest
	if err := decodeRequest(r, &req); err != nil || req.Token == "" || req.ClientID == "" {
		resp.WriteMessage(w, resp.ParamError, "token and client_id are required")
		return
	}

	row, err := h.tokens.Introspect(r.Context(), req.Token, req.ClientID)
	if err != nil {
		switch {
		case errors.Is(err, client.ErrClientNotFound):
			resp.Write(w, resp.ParamError)
		case errors.Is(err, token.ErrTokenExpired):
			resp.Write(w, resp.TokenExpire)
		case errors.Is(err, token.ErrTokenInvalid):
			resp.Write(w, resp.TokenError)
		default:
			resp.Write(w, resp.DatabaseQueryError)
		}
		return
	}

	resp.WriteData(w, resp.Succeed, map[string]any{
		"active":    true,
		"username":  row.Username,
		"client_id": row.ClientID,
		"scope":     row.Scope,
		"exp":       row.IssuedAt + row.ExpiresIn,
	})
}

type revokeRequest struct {
	Token         string `json:"token"`
	TokenTypeHint string `json:"token_type_hint"`
	ClientID      string `json:"client_id"`
}

// RevokeToken implements RFC 7009. Unknown tokens succeed silently.
func (h *Handler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := decodeRequest(r, &req); err != nil || req.Token == "" || req.ClientID == "" {
		resp.WriteMessage(w, resp.ParamError, "token and client_id are required")
		return
	}

	if err := h.tokens.Revoke(r.Context(), req.Token, req.TokenTypeHint, req.ClientID); err != nil {
		if errors.Is(err, client.ErrClientNotFound) {
			resp.Write(w, resp.ParamError)
			return
		}
		resp.Write(w, resp.DatabaseUpdateError)
		return
	}
	resp.Write(w, resp.Succeed)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id"`
}

// RefreshToken rotates the access token bound to a refresh token.
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeRequest(r, &req); err != nil || req.RefreshToken == "" || req.ClientID == "" {
		resp.WriteMessage(w, resp.ParamError, "refresh_token and client_id are required")
		return
	}

	row, err := h.tokens.Refresh(r.Context(), req.RefreshToken, req.ClientID)
	if err != nil {
		switch {
		case errors.Is(err, client.ErrClientNotFound):
			resp.Write(w, resp.GenerationTokenError)
		case errors.Is(err, token.ErrTokenExpired):
			resp.Write(w, resp.TokenExpire)
		case errors.Is(err, token.ErrTokenInvalid):
			resp.Write(w, resp.TokenError)
		default:
			resp.Write(w, resp.DatabaseUpdateError)
		}
		return
	}

	resp.WriteData(w, resp.Succeed, map[string]any{
		"access_token":  row.AccessToken,
		"token_type":    row.TokenType,
		"expires_in":    row.ExpiresIn,
		"refresh_token": row.RefreshToken,
		"scope":         row.Scope,
	})
}
