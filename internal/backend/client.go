/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gostoryboard/internal/domain"
	"gostoryboard/internal/generate"
	"gostoryboard/internal/resource"
)

// Client is a thin HTTP client for a generation service.
//
// Each request is POSTed as JSON to {BaseURL}/v1/generate/{kind}. The service
// either answers with JSON {"ref": "..."} holding a data URI or URL, or with
// the raw artifact bytes and their content type.
type Client struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
}

// Options tune the HTTP transport.
type Options struct {
	Timeout     time.Duration
	TLSInsecure bool
}

// NewClient creates a new backend client. baseURL may include a trailing slash; it will be normalized.
func NewClient(baseURL string, token string, opts Options) *Client {
	b := strings.TrimRight(baseURL, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	hc := &http.Client{Timeout: opts.Timeout}
	if opts.TLSInsecure {
		hc.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}} //nolint:gosec // opt-in for local services
	}
	return &Client{BaseURL: b, Token: token, client: hc}
}

var _ generate.Backend = (*Client)(nil)

type generateResponse struct {
	Ref   string `json:"ref"`
	Error string `json:"error"`
}

// Generate implements generate.Backend.
func (c *Client) Generate(ctx context.Context, req generate.Request) (domain.ResourceRef, error) {
	if c.BaseURL == "" {
		return "", errors.New("backend: no base URL configured")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(c.BaseURL + "/v1/generate/" + url.PathEscape(string(req.Kind)))
	if err != nil {
		return "", err
	}
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	hr.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		hr.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(hr)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	ct, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := resp.Status
		var gr generateResponse
		if ct == "application/json" && json.Unmarshal(data, &gr) == nil && gr.Error != "" {
			msg = gr.Error
		}
		return "", fmt.Errorf("server POST %s: %s", u.Path, msg)
	}
	if ct == "application/json" {
		var gr generateResponse
		if err := json.Unmarshal(data, &gr); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		if gr.Ref == "" {
			return "", errors.New("server returned an empty ref")
		}
		return domain.ResourceRef(gr.Ref), nil
	}
	if len(data) == 0 {
		return "", errors.New("server returned an empty body")
	}
	mt := resp.Header.Get("Content-Type")
	if mt == "" {
		mt = http.DetectContentType(data)
	}
	return domain.ResourceRef(resource.EncodeDataURI(mt, data)), nil
}
