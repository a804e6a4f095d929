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
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gostoryboard/internal/domain"
	"gostoryboard/internal/generate"
	"gostoryboard/internal/resource"
)

func TestClientJSONResponse(t *testing.T) {
	var got generate.Request
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ref":"https://cdn.example/img.png"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "tok", Options{})
	seed := int64(9)
	ref, err := c.Generate(context.Background(), generate.Request{Kind: domain.ArtifactImage, SceneID: 3, Directive: "wide", Seed: &seed})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if ref != "https://cdn.example/img.png" {
		t.Fatalf("ref = %q", ref)
	}
	if auth != "Bearer tok" || path != "/v1/generate/image" {
		t.Fatalf("auth=%q path=%q", auth, path)
	}
	if got.SceneID != 3 || got.Directive != "wide" || got.Seed == nil || *got.Seed != 9 {
		t.Fatalf("request not forwarded: %+v", got)
	}
}

func TestClientRawBytesBecomeDataURI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte{1, 2, 3})
	}))
	defer srv.Close()
	ref, err := NewClient(srv.URL, "", Options{}).Generate(context.Background(), generate.Request{Kind: domain.ArtifactAudio})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	mt, data, err := resource.DecodeDataURI(string(ref))
	if err != nil || mt != "audio/mpeg" || !bytes.Equal(data, []byte{1, 2, 3}) {
		t.Fatalf("unexpected payload %q %v %v", mt, data, err)
	}
}

func TestClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer srv.Close()
	_, err := NewClient(srv.URL, "", Options{}).Generate(context.Background(), generate.Request{Kind: domain.ArtifactImage})
	if err == nil || !strings.Contains(err.Error(), "slow down") {
		t.Fatalf("expected server message in error, got %v", err)
	}
}

func TestClientHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := NewClient(srv.URL, "", Options{}).Generate(ctx, generate.Request{Kind: domain.ArtifactImage}); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestPlaceholderIsDeterministic(t *testing.T) {
	p := &Placeholder{Width: 64, Height: 48}
	req := generate.Request{Kind: domain.ArtifactImage, SceneID: 1, Directive: "harbor"}
	a, err := p.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, _ := p.Generate(context.Background(), req)
	if a != b {
		t.Fatalf("same request produced different images")
	}
	seed := int64(1)
	req.Seed = &seed
	if c, _ := p.Generate(context.Background(), req); c == a {
		t.Fatalf("seed did not change the image")
	}
	_, data, _ := resource.DecodeDataURI(string(a))
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil || img.Bounds().Dx() != 64 || img.Bounds().Dy() != 48 {
		t.Fatalf("unexpected image: %v", err)
	}
}

func TestPlaceholderOtherKinds(t *testing.T) {
	p := &Placeholder{Width: 16, Height: 16}
	for _, k := range []domain.ArtifactKind{domain.ArtifactAudio, domain.ArtifactVideo} {
		ref, err := p.Generate(context.Background(), generate.Request{Kind: k})
		if err != nil || !ref.IsData() {
			t.Fatalf("%s: %q %v", k, ref, err)
		}
	}
	slow := &Placeholder{Delay: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := slow.Generate(ctx, generate.Request{}); err == nil {
		t.Fatalf("expected canceled delay")
	}
}
