/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDelivery_UnreachableCollectorCountsDropped(t *testing.T) {
	c := New(Config{
		OptIn:        true,
		EventsURL:    "http://127.0.0.1:1/events",
		CrashURL:     "http://127.0.0.1:1/crash",
		Timeout:      50 * time.Millisecond,
		DebugLogging: true,
	})
	defer c.Close()

	c.Event("export_finished", map[string]any{"format": "archive"})
	c.UploadCrash([]byte("report"))
	waitFor(t, func() bool { return c.Dropped() == 1 })
	if c.Sent() != 0 {
		t.Fatalf("nothing should count as sent: %d", c.Sent())
	}
}

func TestDelivery_RejectedEventIsNotSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{OptIn: true, EventsURL: srv.URL, Timeout: time.Second})
	defer c.Close()
	c.Event("generation_failed", map[string]any{"kind": "audio"})
	waitFor(t, func() bool { return c.Dropped() == 1 })
	if c.Sent() != 0 {
		t.Fatalf("rejected event counted as sent")
	}
}

func TestDelivery_DisabledOrUnnamedSendsNothing(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	off := New(Config{OptIn: false, EventsURL: srv.URL + "/events", CrashURL: srv.URL + "/crash", Timeout: time.Second})
	defer off.Close()
	if off.Enabled() {
		t.Fatalf("client without opt-in must be disabled")
	}
	off.Event("project_saved", nil)
	off.UploadCrash([]byte("report"))

	on := New(Config{OptIn: true, EventsURL: srv.URL + "/events", Timeout: time.Second})
	defer on.Close()
	on.Event("", map[string]any{"scenes": 3})
	on.Flush(context.Background())

	time.Sleep(50 * time.Millisecond)
	if n := hits.Load(); n != 0 {
		t.Fatalf("expected no requests, got %d", n)
	}
	if on.Dropped() != 0 || off.Dropped() != 0 {
		t.Fatalf("ignored events must not count as dropped")
	}
}

func TestFlush_ReturnsOnCancelledContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := New(Config{OptIn: true, EventsURL: srv.URL, Timeout: 5 * time.Second, QueueSize: 8})
	defer c.Close()
	for i := 0; i < 4; i++ {
		c.Event("scene_added", nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	c.Flush(ctx)
	if d := time.Since(start); d > 200*time.Millisecond {
		t.Fatalf("Flush ignored the cancelled context: %v", d)
	}
}
