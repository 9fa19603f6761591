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

// Package callback performs the outbound register/logout fan-out calls.
// Each call is bounded by its own timeout; a failure never aborts the
// fan-out, it only downgrades the aggregate result.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const userAgent = "oauthhub"

// Client posts JSON payloads to registered callback URIs.
type Client struct {
	http    *http.Client
	timeout time.Duration
}

// New creates a callback client with a per-call timeout.
func New(timeout time.Duration) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Post sends payload to uri and reports success. Remote envelopes are
// inspected when present: a code other than SUCCEED counts as failure.
func (c *Client) Post(ctx context.Context, uri string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode callback payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("callback %s: %w", uri, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("callback %s: status %d", uri, res.StatusCode)
	}

	var envelope struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err == nil && envelope.Code != "" && envelope.Code != "SUCCEED" {
		return fmt.Errorf("callback %s: remote code %s", uri, envelope.Code)
	}
	return nil
}
