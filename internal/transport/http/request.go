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
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// decodeRequest parses a request into dst. POST bodies are JSON (or
// form-encoded as a fallback); GET parameters come from the query
// string. String values that look like JSON literals (brackets or
// braces, percent-encoded forms included) are coerced into parsed
// values first: CLI clients send JSON-in-query-string.
func decodeRequest(r *http.Request, dst any) error {
	values := make(map[string]any)

	switch r.Method {
	case http.MethodPost, http.MethodPut:
		contentType := r.Header.Get("Content-Type")
		switch {
		case strings.HasPrefix(contentType, "application/json"):
			if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
				return fmt.Errorf("decode request body: %w", err)
			}
		default:
			if err := r.ParseForm(); err != nil {
				return fmt.Errorf("parse form: %w", err)
			}
			for key := range r.PostForm {
				values[key] = r.PostForm.Get(key)
			}
		}
	default:
		for key := range r.URL.Query() {
			values[key] = r.URL.Query().Get(key)
		}
	}

	for key, value := range values {
		if s, ok := value.(string); ok {
			values[key] = coerceBracketed(s)
		}
	}

	blob, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("re-encode request values: %w", err)
	}
	if err := json.Unmarshal(blob, dst); err != nil {
		return fmt.Errorf("bind request: %w", err)
	}
	return nil
}

// coerceBracketed turns a bracketed string into the literal it spells,
// or returns the string unchanged when it does not parse.
func coerceBracketed(s string) any {
	candidate := strings.TrimSpace(s)
	if strings.HasPrefix(candidate, "%5B") || strings.HasPrefix(candidate, "%7B") ||
		strings.HasPrefix(candidate, "%5b") || strings.HasPrefix(candidate, "%7b") {
		if unescaped, err := url.QueryUnescape(candidate); err == nil {
			candidate = strings.TrimSpace(unescaped)
		}
	}
	if !strings.HasPrefix(candidate, "[") && !strings.HasPrefix(candidate, "{") {
		return s
	}
	var parsed any
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		return s
	}
	return parsed
}
