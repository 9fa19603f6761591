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

// Package resp defines the uniform response envelope and the string status
// codes observable by API consumers. Callers branch on Code, never on HTTP
// status, so every handler answers 200 unless the transport itself fails.
package resp

import (
	"encoding/json"
	"net/http"
)

// Status codes carried in the envelope Code field.
const (
	Succeed        = "SUCCEED"
	PartialSucceed = "PARTIAL_SUCCEED"

	ParamError = "PARAM_ERROR"

	LoginError           = "LOGIN_ERROR"
	PasswordError        = "PASSWORD_ERROR"
	TokenError           = "TOKEN_ERROR"
	TokenExpire          = "TOKEN_EXPIRE"
	PermissionError      = "PERMISSION_ERROR"
	AuthError            = "AUTH_ERROR"
	GenerationTokenError = "GENERATION_TOKEN_ERROR"

	DataExist  = "DATA_EXIST"
	NoData     = "NO_DATA"
	RepeatData = "REPEAT_DATA"

	DatabaseInsertError = "DATABASE_INSERT_ERROR"
	DatabaseQueryError  = "DATABASE_QUERY_ERROR"
	DatabaseUpdateError = "DATABASE_UPDATE_ERROR"
	DatabaseDeleteError = "DATABASE_DELETE_ERROR"
)

// Body is the envelope returned by every endpoint.
type Body struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Write serializes an envelope with HTTP 200.
func Write(w http.ResponseWriter, code string) {
	WriteStatus(w, http.StatusOK, Body{Code: code})
}

// WriteData serializes an envelope carrying a data payload.
func WriteData(w http.ResponseWriter, code string, data any) {
	WriteStatus(w, http.StatusOK, Body{Code: code, Data: data})
}

// WriteMessage serializes an envelope carrying a diagnostic message.
func WriteMessage(w http.ResponseWriter, code, message string) {
	WriteStatus(w, http.StatusOK, Body{Code: code, Message: message})
}

// WriteStatus serializes an envelope with an explicit HTTP status.
func WriteStatus(w http.ResponseWriter, status int, body Body) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
