/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package telemetry provides a tiny, privacy‑respecting, opt‑in event sender
// for anonymous generation outcome metrics and optional crash uploads.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	applog "gostoryboard/internal/log"
	"gostoryboard/internal/version"
)

// Config holds runtime configuration for telemetry and crash uploads.
// All telemetry is strictly opt‑in and disabled by default.
//
// Environment variables (read by FromEnv):
// - GSB_TELEMETRY_OPT_IN: "1", "true", "yes" to enable metrics
// - GSB_TELEMETRY_URL: URL to POST JSON events to
// - GSB_CRASH_UPLOAD_URL: URL to POST crash reports to
// - GSB_TELEMETRY_TIMEOUT_MS: optional request timeout, default 1500ms
// - GSB_TELEMETRY_DEBUG: if set, logs event send attempts
//
// If no URLs are set, events are dropped (no‑ops), even if opt‑in is true.
type Config struct {
	OptIn        bool
	EventsURL    string
	CrashURL     string
	Timeout      time.Duration
	QueueSize    int
	DebugLogging bool
}

const (
	EnvOptIn     = "GSB_TELEMETRY_OPT_IN"
	EnvURL       = "GSB_TELEMETRY_URL"
	EnvCrashURL  = "GSB_CRASH_UPLOAD_URL"
	EnvTimeoutMs = "GSB_TELEMETRY_TIMEOUT_MS"
	EnvDebug     = "GSB_TELEMETRY_DEBUG"
)

func FromEnv() Config {
	cfg := Config{
		OptIn:        parseBool(os.Getenv(EnvOptIn)),
		EventsURL:    strings.TrimSpace(os.Getenv(EnvURL)),
		CrashURL:     strings.TrimSpace(os.Getenv(EnvCrashURL)),
		Timeout:      1500 * time.Millisecond,
		DebugLogging: os.Getenv(EnvDebug) != "",
	}
	if ms := strings.TrimSpace(os.Getenv(EnvTimeoutMs)); ms != "" {
		if v, err := time.ParseDuration(ms + "ms"); err == nil {
			cfg.Timeout = v
		}
	}
	return cfg
}

func parseBool(v string) bool {
	s := strings.ToLower(strings.TrimSpace(v))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

// maxPropString bounds string properties; longer values are dropped since
// they are more likely to carry user text than a category.
const maxPropString = 64

// Client is a minimal async sender; it drops events silently on errors.
// Event never blocks; the queue is bounded.
type Client struct {
	cfg     Config
	log     *slog.Logger
	cli     *http.Client
	q       chan map[string]any
	once    sync.Once
	closed  chan struct{}
	sent    atomic.Int64
	dropped atomic.Int64
}

var defaultClient *Client
var defaultOnce sync.Once

// InitDefault initializes the package‑level default client from env when first used.
func InitDefault() {
	defaultOnce.Do(func() {
		if defaultClient == nil {
			NewDefault(FromEnv())
		}
	})
}

// NewDefault creates and installs the default client with cfg.
func NewDefault(cfg Config) *Client {
	defaultClient = New(cfg)
	return defaultClient
}

// New constructs a client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1500 * time.Millisecond
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	c := &Client{
		cfg:    cfg,
		log:    applog.WithComponent("telemetry"),
		cli:    &http.Client{Timeout: cfg.Timeout},
		q:      make(chan map[string]any, cfg.QueueSize),
		closed: make(chan struct{}),
	}
	go c.loop()
	return c
}

// Enabled reports whether anonymous telemetry is enabled and an endpoint is configured.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Enabled reports whether anonymous telemetry is enabled using the default client.
func Enabled() bool {
	InitDefault()
	return defaultClient.Enabled()
}

// Event queues a small JSON event if enabled. Safe to call from anywhere.
// Only scalar properties survive: booleans, numbers and short strings.
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	payload := map[string]any{
		"name":    name,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		"version": version.String(),
		"os":      runtime.GOOS,
		"arch":    runtime.GOARCH,
	}
	for k, v := range props {
		if _, reserved := payload[k]; reserved {
			continue
		}
		if v, ok := scalar(v); ok {
			payload[k] = v
		}
	}
	select {
	case c.q <- payload:
	default:
		c.dropped.Add(1)
	}
}

func scalar(v any) (any, bool) {
	switch x := v.(type) {
	case bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		return x, true
	case time.Duration:
		return x.Milliseconds(), true
	case string:
		return x, len(x) <= maxPropString
	}
	return nil, false
}

// Event using default client.
func Event(name string, props map[string]any) { InitDefault(); defaultClient.Event(name, props) }

// Sent and Dropped count delivered and discarded events.
func (c *Client) Sent() int64    { return c.sent.Load() }
func (c *Client) Dropped() int64 { return c.dropped.Load() }

// Flush waits briefly for the queue to drain.
func (c *Client) Flush(ctx context.Context) {
	deadline := time.Now().Add(500 * time.Millisecond)
	for {
		if len(c.q) == 0 || time.Now().After(deadline) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(25 * time.Millisecond):
		}
	}
}

// Close stops background goroutine.
func (c *Client) Close() { c.once.Do(func() { close(c.closed) }) }

func (c *Client) loop() {
	for {
		select {
		case <-c.closed:
			return
		case item := <-c.q:
			c.send(item)
		}
	}
}

func (c *Client) send(item map[string]any) {
	buf, err := json.Marshal(item)
	if err != nil {
		c.dropped.Add(1)
		return
	}
	req, err := http.NewRequest(http.MethodPost, c.cfg.EventsURL, bytes.NewReader(buf))
	if err != nil {
		c.dropped.Add(1)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.cli.Do(req)
	if err != nil {
		c.dropped.Add(1)
		if c.cfg.DebugLogging {
			c.log.Debug("telemetry send failed", slog.Any("err", err))
		}
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		// the collector refused it; no retry
		c.dropped.Add(1)
		if c.cfg.DebugLogging {
			c.log.Debug("telemetry event rejected", slog.Int("status", resp.StatusCode))
		}
		return
	}
	c.sent.Add(1)
	if c.cfg.DebugLogging {
		c.log.Debug("telemetry event sent", slog.Any("name", item["name"]))
	}
}

// UploadCrash posts an already‑serialized crash report to the configured crash URL if opt‑in.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	go func(b []byte) {
		req, err := http.NewRequest(http.MethodPost, c.cfg.CrashURL, bytes.NewReader(b))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "text/plain; charset=utf-8")
		resp, err := c.cli.Do(req)
		if err != nil {
			if c.cfg.DebugLogging {
				c.log.Debug("crash upload failed", slog.Any("err", err))
			}
			return
		}
		_ = resp.Body.Close()
		if c.cfg.DebugLogging {
			c.log.Debug("crash report uploaded")
		}
	}(append([]byte(nil), report...))
}

// UploadCrash using default client.
func UploadCrash(report []byte) { InitDefault(); defaultClient.UploadCrash(report) }
