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
	"log/slog"
	"net/http"

	"github.com/oauthhub/oauthhub/internal/account"
	"github.com/oauthhub/oauthhub/internal/cache"
	"github.com/oauthhub/oauthhub/internal/observability/logger"
	"github.com/oauthhub/oauthhub/internal/resp"
)

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

func (req *registerRequest) validate() error {
	if req.Username == "" || req.Password == "" {
		return errors.New("username and password are required")
	}
	return nil
}

// Register creates a user and fans out to registered clients.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeRequest(r, &req); err != nil {
		resp.WriteMessage(w, resp.ParamError, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		resp.WriteMessage(w, resp.ParamError, err.Error())
		return
	}

	partial, err := h.accounts.Register(r.Context(), req.Username, req.Password, req.Email, req.Phone)
	if err != nil {
		if errors.Is(err, account.ErrUserExists) {
			resp.Write(w, resp.DataExist)
			return
		}
		resp.Write(w, resp.DatabaseInsertError)
		return
	}
	if partial {
		resp.Write(w, resp.PartialSucceed)
		return
	}
	resp.Write(w, resp.Succeed)
}

type loginRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	ForValidate bool   `json:"for_validate"`
}

func (req *loginRequest) validate() error {
	if req.Username == "" || req.Password == "" {
		return errors.New("username and password are required")
	}
	return nil
}

// Login authenticates an end user, mints the session JWT and, unless
// the caller only wants credential validation, binds the session to
// cookie and cache.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeRequest(r, &req); err != nil {
		resp.WriteMessage(w, resp.ParamError, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		resp.WriteMessage(w, resp.ParamError, err.Error())
		return
	}

	signed, err := h.accounts.Login(r.Context(), account.KindUser, req.Username, req.Password)
	if err != nil {
		writeLoginError(w, err)
		return
	}

	if req.ForValidate {
		resp.Write(w, resp.Succeed)
		return
	}

	if err := h.cache.Set(r.Context(), cache.SessionKey(req.Username), signed, h.session.UserCacheTTL); err != nil {
		resp.Write(w, resp.AuthError)
		return
	}
	h.setSessionCookie(w, signed, int(h.session.UserCacheTTL.Seconds()))
	resp.WriteData(w, resp.Succeed, map[string]string{"token": signed})
}

type managerLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ManagerLogin authenticates an admin. The issued value carries the
// literal "bearer " prefix both in the response and in the cache.
func (h *Handler) ManagerLogin(w http.ResponseWriter, r *http.Request) {
	var req managerLoginRequest
	if err := decodeRequest(r, &req); err != nil {
		resp.WriteMessage(w, resp.ParamError, err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		resp.WriteMessage(w, resp.ParamError, "username and password are required")
		return
	}

	signed, err := h.accounts.Login(r.Context(), account.KindAdmin, req.Username, req.Password)
	if err != nil {
		writeLoginError(w, err)
		return
	}

	prefixed := adminPrefix + signed
	if err := h.cache.Set(r.Context(), cache.AdminSessionKey(req.Username), prefixed, h.session.AdminCacheTTL); err != nil {
		resp.Write(w, resp.AuthError)
		return
	}
	resp.WriteData(w, resp.Succeed, map[string]string{"token": prefixed})
}

func writeLoginError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, account.ErrUserNotFound):
		resp.Write(w, resp.LoginError)
	case errors.Is(err, account.ErrInvalidCredentials):
		resp.Write(w, resp.PasswordError)
	default:
		resp.Write(w, resp.GenerationTokenError)
	}
}

// Logout clears the session and, for end users, fans out to every
// application the user is signed in to. Responds 302 when the caller
// supplied a redirect_uri.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	username := GetUsername(r.Context())
	redirectURI := r.URL.Query().Get("redirect_uri")

	code := resp.Succeed
	if IsAdmin(r.Context()) {
		// Admin sessions have no application fan-out.
		if err := h.cache.Delete(r.Context(), cache.AdminSessionKey(username)); err != nil {
			slog.Warn("failed to clear admin session", logger.Username(username), logger.Error(err))
		}
	} else {
		partial, err := h.accounts.ApplicationLogout(r.Context(), username)
		if err != nil {
			resp.Write(w, resp.DatabaseDeleteError)
			return
		}
		if partial {
			code = resp.PartialSucceed
		}
		if err := h.cache.Delete(r.Context(), cache.SessionKey(username)); err != nil {
			slog.Warn("failed to clear session", logger.Username(username), logger.Error(err))
		}
		h.clearSessionCookie(w)
	}

	if redirectURI != "" {
		http.Redirect(w, r, redirectURI, http.StatusFound)
		return
	}
	resp.Write(w, code)
}

// LoginStatus reports that the calling session is live. The web
// console polls it.
func (h *Handler) LoginStatus(w http.ResponseWriter, r *http.Request) {
	resp.WriteData(w, resp.Succeed, map[string]any{
		"username": GetUsername(r.Context()),
		"is_admin": IsAdmin(r.Context()),
	})
}

type resetPasswordRequest struct {
	Username string `json:"username"`
}

// ResetPassword sets a user's password back to the configured default.
// Admin only.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeRequest(r, &req); err != nil || req.Username == "" {
		resp.WriteMessage(w, resp.ParamError, "username is required")
		return
	}

	err := h.accounts.ResetPassword(r.Context(), GetUsername(r.Context()), req.Username)
	switch {
	case err == nil:
		resp.Write(w, resp.Succeed)
	case errors.Is(err, account.ErrNotAdmin):
		resp.Write(w, resp.PermissionError)
	case errors.Is(err, account.ErrUserNotFound):
		resp.Write(w, resp.NoData)
	default:
		resp.Write(w, resp.DatabaseUpdateError)
	}
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.session.CookieName,
		Value:    value,
		Path:     h.session.CookiePath,
		MaxAge:   maxAge,
		Secure:   h.session.CookieSecure,
		HttpOnly: h.session.CookieHTTPOnly,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.session.CookieName,
		Value:    "",
		Path:     h.session.CookiePath,
		MaxAge:   -1,
		Secure:   h.session.CookieSecure,
		HttpOnly: h.session.CookieHTTPOnly,
		SameSite: http.SameSiteLaxMode,
	})
}
