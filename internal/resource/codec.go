/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package resource converts binary resources between their three forms:
// portable payloads (data URIs or remote URLs), storage blobs, and
// session-local display handles.
package resource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"

	"gostoryboard/internal/domain"
	applog "gostoryboard/internal/log"
)

var (
	// ErrUnknownHandle is returned when a handle is not (or no longer) registered.
	ErrUnknownHandle = errors.New("unknown display handle")
	// ErrUnsupported is returned for refs the codec cannot resolve.
	ErrUnsupported = errors.New("unsupported resource reference")
)

// BlobSource resolves blob: references, usually backed by the project library.
type BlobSource interface {
	GetBlob(ctx context.Context, key string) (*Blob, error)
}

const defaultMaxFetch = 64 << 20

// Codec performs resource conversions. It is safe for concurrent use.
type Codec struct {
	reg      *Registry
	client   *http.Client
	blobs    BlobSource
	maxFetch int64
	fetches  singleflight.Group
	logger   *slog.Logger

	// sweepMu orders sweeps against Guard sections: a sweep never runs
	// between the registration of a handle and the caller pinning it.
	sweepMu sync.RWMutex
}

// Option configures a Codec.
type Option func(*Codec)

// WithHTTPClient sets the client used to fetch remote payloads.
func WithHTTPClient(c *http.Client) Option { return func(x *Codec) { x.client = c } }

// WithBlobSource lets the codec resolve blob: references.
func WithBlobSource(s BlobSource) Option { return func(x *Codec) { x.blobs = s } }

// WithHandleTTL expires handles that were not read for d.
func WithHandleTTL(d time.Duration) Option {
	return func(x *Codec) { x.reg = NewRegistry(d) }
}

// WithMaxFetchBytes caps the size of a fetched remote payload.
func WithMaxFetchBytes(n int64) Option { return func(x *Codec) { x.maxFetch = n } }

func NewCodec(opts ...Option) *Codec {
	c := &Codec{
		client:   &http.Client{Timeout: 60 * time.Second},
		maxFetch: defaultMaxFetch,
		logger:   applog.WithComponent("resource"),
	}
	for _, o := range opts {
		o(c)
	}
	if c.reg == nil {
		c.reg = NewRegistry(0)
	}
	return c
}

// Registry exposes the handle registry.
func (c *Codec) Registry() *Registry { return c.reg }

// SetBlobSource swaps the blob source after construction; the library and the
// codec reference each other.
func (c *Codec) SetBlobSource(s BlobSource) { c.blobs = s }

// ToStorageBlob resolves ref to bytes. An absent ref yields a nil blob.
// Handles are dereferenced, so a handle is never persisted as such.
func (c *Codec) ToStorageBlob(ctx context.Context, ref domain.ResourceRef) (*Blob, error) {
	switch {
	case ref.IsZero():
		return nil, nil
	case ref.IsData():
		mt, data, err := DecodeDataURI(string(ref))
		if err != nil {
			return nil, err
		}
		return NewBlob(data, mt), nil
	case ref.IsHandle():
		b, ok := c.reg.Get(ref)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, ref)
		}
		return b, nil
	case ref.IsBlob():
		if c.blobs == nil {
			return nil, fmt.Errorf("%w: no blob source for %s", ErrUnsupported, ref)
		}
		return c.blobs.GetBlob(ctx, strings.TrimPrefix(string(ref), domain.SchemeBlob))
	case ref.IsRemote():
		return c.fetch(ctx, string(ref))
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupported, truncate(string(ref), 32))
}

// ToDisplayHandle registers b and returns its handle. A nil blob yields "".
func (c *Codec) ToDisplayHandle(b *Blob) (domain.ResourceRef, error) {
	if b == nil {
		return "", nil
	}
	if len(b.Data) == 0 {
		return "", fmt.Errorf("empty blob %s", b.Key)
	}
	return c.reg.Put(b), nil
}

// ToPayload encodes b as a self-contained data URI. A nil blob yields "".
func (c *Codec) ToPayload(b *Blob) (domain.ResourceRef, error) {
	if b == nil {
		return "", nil
	}
	mt := b.MIME
	if mt == "" {
		mt = http.DetectContentType(b.Data)
	}
	return domain.ResourceRef(EncodeDataURI(mt, b.Data)), nil
}

// PayloadOf returns a portable payload for ref. Data URIs pass through untouched.
func (c *Codec) PayloadOf(ctx context.Context, ref domain.ResourceRef) (domain.ResourceRef, error) {
	if ref.IsZero() || ref.IsData() {
		return ref, nil
	}
	b, err := c.ToStorageBlob(ctx, ref)
	if err != nil {
		return "", err
	}
	return c.ToPayload(b)
}

// DisplayOf returns a display handle for ref. Handles pass through untouched.
func (c *Codec) DisplayOf(ctx context.Context, ref domain.ResourceRef) (domain.ResourceRef, error) {
	if ref.IsZero() || ref.IsHandle() {
		return ref, nil
	}
	b, err := c.ToStorageBlob(ctx, ref)
	if err != nil {
		return "", err
	}
	return c.ToDisplayHandle(b)
}

// Release drops a display handle. Other refs are ignored.
func (c *Codec) Release(ref domain.ResourceRef) { c.reg.Release(ref) }

// Guard runs fn with sweeps held off. Callers that register a handle and
// then record it somewhere live() will see do both inside fn.
func (c *Codec) Guard(fn func()) {
	c.sweepMu.RLock()
	defer c.sweepMu.RUnlock()
	fn()
}

// Sweep releases every handle not in the set returned by live. live is
// evaluated while no Guard section runs.
func (c *Codec) Sweep(live func() map[domain.ResourceRef]struct{}) int {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()
	n := c.reg.Sweep(live())
	if n > 0 {
		c.logger.Debug("released handles", slog.Int("count", n))
	}
	return n
}

// Open decodes ref as an image and returns it with its format name.
func (c *Codec) Open(ctx context.Context, ref domain.ResourceRef) (image.Image, string, error) {
	b, err := c.ToStorageBlob(ctx, ref)
	if err != nil {
		return nil, "", err
	}
	if b == nil {
		return nil, "", fmt.Errorf("%w: empty reference", ErrUnsupported)
	}
	img, format, err := image.Decode(bytes.NewReader(b.Data))
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", b.MIME, err)
	}
	return img, format, nil
}

func (c *Codec) fetch(ctx context.Context, url string) (*Blob, error) {
	v, err, _ := c.fetches.Do(url, func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxFetch+1))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", url, err)
		}
		if int64(len(data)) > c.maxFetch {
			return nil, fmt.Errorf("fetch %s: payload exceeds %d bytes", url, c.maxFetch)
		}
		mt := resp.Header.Get("Content-Type")
		if mt == "" || strings.HasPrefix(mt, "application/octet-stream") {
			mt = ""
		}
		return NewBlob(data, mt), nil
	})
	if err != nil {
		return nil, err
	}
	b, ok := v.(*Blob)
	if !ok {
		return nil, fmt.Errorf("unexpected return type from singleflight: %T", v)
	}
	// callers sharing a flight must not share the byte slice
	return b.clone(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
