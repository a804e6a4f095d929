/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package generate drives artifact generation for scenes and writes the results
// back into the project store.
//
// Batch generation only produces transient writes; the caller folds the batch
// into its own history entry. Retry and modification are user actions and end
// in a labelled write on success.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"gostoryboard/internal/domain"
	"gostoryboard/internal/history"
	"gostoryboard/internal/limiter"
	applog "gostoryboard/internal/log"
	"gostoryboard/internal/resource"
)

// FailureFunc is told about every failed generation. It must not block.
type FailureFunc func(sceneID int, kind domain.ArtifactKind, err error)

// EventSink receives anonymous outcome events; telemetry.Client implements it.
type EventSink interface {
	Event(name string, props map[string]any)
}

type jobKey struct {
	scene int
	kind  domain.ArtifactKind
}

type job struct {
	token  uint64
	cancel context.CancelFunc
}

// Orchestrator fans generation requests out through a shared limiter.
type Orchestrator struct {
	store   *history.Store
	lim     *limiter.Limiter
	codec   *resource.Codec
	backend Backend

	pace      *rate.Limiter
	onFailure FailureFunc
	events    EventSink
	logger    *slog.Logger
	seed      func() int64

	mu      sync.Mutex
	jobs    map[jobKey]*job
	tokens  uint64
	pending map[domain.ResourceRef]int

	unsubscribe func()
	// registered runs between registering a result handle and pinning it.
	registered func(domain.ResourceRef)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRateLimit spaces backend calls at least interval apart, allowing bursts of burst.
func WithRateLimit(interval time.Duration, burst int) Option {
	return func(o *Orchestrator) {
		if interval <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		o.pace = rate.NewLimiter(rate.Every(interval), burst)
	}
}

func WithFailureHandler(fn FailureFunc) Option { return func(o *Orchestrator) { o.onFailure = fn } }

func WithEvents(s EventSink) Option { return func(o *Orchestrator) { o.events = s } }

func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithSeedSource replaces the random seed used by Retry and ApplyModification.
func WithSeedSource(fn func() int64) Option { return func(o *Orchestrator) { o.seed = fn } }

func New(store *history.Store, lim *limiter.Limiter, codec *resource.Codec, backend Backend, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:   store,
		lim:     lim,
		codec:   codec,
		backend: backend,
		logger:  applog.WithComponent("generate"),
		seed:    func() int64 { return rand.Int64N(math.MaxInt32) },
		jobs:    make(map[jobKey]*job),
		pending: make(map[domain.ResourceRef]int),
	}
	for _, opt := range opts {
		opt(o)
	}
	// Any change can make handles unreachable: removed scenes, replaced
	// artifacts, history entries dropped by the cap.
	o.unsubscribe = store.Subscribe(func(domain.Project) { o.sweep() })
	return o
}

// Close stops releasing handles on store changes. Running jobs are not touched.
func (o *Orchestrator) Close() { o.unsubscribe() }

// GenerateBatch generates kind for every listed scene. Each scene is marked
// loading right away, then requests go through the limiter in list order.
// It returns once every request has finished. Failures are recorded on the
// scene and reported through the failure handler; they never abort the batch.
func (o *Orchestrator) GenerateBatch(ctx context.Context, sceneIDs []int, kind domain.ArtifactKind, shared Shared) {
	type started struct {
		key    jobKey
		token  uint64
		cancel context.CancelFunc
		fut    *limiter.Future[struct{}]
	}
	var all []started
	for _, id := range sceneIDs {
		req, jctx, cancel, token, ok := o.begin(ctx, id, kind, shared, "")
		if !ok {
			continue
		}
		f := limiter.Submit(o.lim, jctx, func(c context.Context) (struct{}, error) {
			_, err := o.execute(c, req, token, "")
			return struct{}{}, err
		})
		all = append(all, started{jobKey{id, kind}, token, cancel, f})
	}
	for _, s := range all {
		<-s.fut.Done()
		o.abort(s.key, s.token)
		s.cancel()
	}
}

// Retry regenerates the image of one scene with a fresh random seed.
// Success is recorded as "regenerated scene N".
func (o *Orchestrator) Retry(ctx context.Context, sceneID int) error {
	p := o.store.Current()
	sh := SharedFrom(p)
	seed := o.seed()
	sh.Seed = &seed
	return o.single(ctx, sceneID, domain.ArtifactImage, sh, "", fmt.Sprintf("regenerated scene %d", sceneID))
}

// ApplyModification regenerates the image of one scene from its current image
// and the given feedback. Success is recorded as "modified scene N".
func (o *Orchestrator) ApplyModification(ctx context.Context, sceneID int, feedback string) error {
	p := o.store.Current()
	sc, ok := p.Scene(sceneID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownScene, sceneID)
	}
	ref, err := o.codec.PayloadOf(ctx, sc.Image.Ref)
	if err != nil {
		return fmt.Errorf("reference image for scene %d: %w", sceneID, err)
	}
	sh := SharedFrom(p)
	seed := o.seed()
	sh.Seed = &seed
	return o.singleWithReference(ctx, sceneID, domain.ArtifactImage, sh, ref, feedback, fmt.Sprintf("modified scene %d", sceneID))
}

// GenerateVideo generates the video of one scene. The result is written
// transiently. A later Cancel drops the result whenever it arrives.
func (o *Orchestrator) GenerateVideo(ctx context.Context, sceneID int, shared Shared) error {
	err := o.single(ctx, sceneID, domain.ArtifactVideo, shared, "", "")
	if errors.Is(err, errCanceled) {
		return nil
	}
	return err
}

// Cancel stops a running video generation of a scene. The loading flag is
// cleared at once; the backend call is told through its context, and whatever
// it returns later is ignored. It reports whether a generation was running.
func (o *Orchestrator) Cancel(sceneID int) bool {
	key := jobKey{sceneID, domain.ArtifactVideo}
	o.mu.Lock()
	j, ok := o.jobs[key]
	if ok {
		delete(o.jobs, key)
	}
	o.mu.Unlock()

	o.store.MutateScene(sceneID, func(sc *domain.Scene) bool {
		if !sc.Video.Loading {
			return false
		}
		sc.Video.Loading = false
		return true
	}, "")
	if ok {
		j.cancel()
		o.logger.Info("video generation canceled", slog.Int("scene", sceneID))
	}
	return ok
}

// Running reports whether a generation of kind is in flight for the scene.
func (o *Orchestrator) Running(sceneID int, kind domain.ArtifactKind) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.jobs[jobKey{sceneID, kind}]
	return ok
}

var errCanceled = errors.New("generation canceled")

func (o *Orchestrator) single(ctx context.Context, sceneID int, kind domain.ArtifactKind, sh Shared, feedback, label string) error {
	return o.singleWithReference(ctx, sceneID, kind, sh, "", feedback, label)
}

func (o *Orchestrator) singleWithReference(ctx context.Context, sceneID int, kind domain.ArtifactKind, sh Shared, ref domain.ResourceRef, feedback, label string) error {
	req, jctx, cancel, token, ok := o.begin(ctx, sceneID, kind, sh, ref)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownScene, sceneID)
	}
	defer cancel()
	req.Feedback = feedback

	wrote, err := limiter.Run(o.lim, jctx, func(c context.Context) (bool, error) {
		return o.execute(c, req, token, label)
	})
	o.abort(jobKey{sceneID, kind}, token)
	switch {
	case err != nil && jctx.Err() != nil && ctx.Err() == nil:
		// Cancel or a newer request for the same scene
		return errCanceled
	case err != nil:
		return err
	case !wrote:
		return errCanceled
	}
	return nil
}

// begin marks the scene loading and registers a job. The previous reference
// of the artifact is cleared before the flag is set, whatever its kind.
func (o *Orchestrator) begin(ctx context.Context, sceneID int, kind domain.ArtifactKind, sh Shared, ref domain.ResourceRef) (Request, context.Context, context.CancelFunc, uint64, bool) {
	var req Request
	ok := o.store.MutateScene(sceneID, func(sc *domain.Scene) bool {
		a := sc.Artifact(kind)
		a.Ref = ""
		a.Error = ""
		a.Loading = true
		return true
	}, "")
	if !ok {
		return req, nil, nil, 0, false
	}
	p := o.store.Current()
	sc, _ := p.Scene(sceneID)
	req = buildRequest(p, sc, kind, sh)
	req.Reference = ref

	jctx, cancel := context.WithCancel(applog.ContextWithScene(ctx, sceneID))
	key := jobKey{sceneID, kind}
	o.mu.Lock()
	o.tokens++
	token := o.tokens
	if prev, ok := o.jobs[key]; ok {
		// a newer request supersedes the old one
		prev.cancel()
	}
	o.jobs[key] = &job{token: token, cancel: cancel}
	o.mu.Unlock()
	return req, jctx, cancel, token, true
}

// execute calls the backend and writes the outcome. It reports whether the
// result was written; a dropped result is not an error.
func (o *Orchestrator) execute(ctx context.Context, req Request, token uint64, label string) (bool, error) {
	key := jobKey{req.SceneID, req.Kind}
	defer o.finish(key, token)

	log := applog.WithOperation(o.logger, "generate").With(slog.String("kind", string(req.Kind)))
	start := time.Now()

	ref, err := o.call(ctx, req)
	if err != nil {
		if !o.current(key, token) {
			log.DebugContext(ctx, "dropping failure of superseded request", slog.Any("err", err))
			return false, nil
		}
		o.fail(ctx, req, token, err, time.Since(start))
		return false, err
	}

	h, err := o.register(ctx, ref)
	if err != nil {
		o.fail(ctx, req, token, fmt.Errorf("resolve result: %w", err), time.Since(start))
		return false, err
	}
	defer o.unhold(h)

	wrote := o.store.MutateScene(req.SceneID, func(sc *domain.Scene) bool {
		a := sc.Artifact(req.Kind)
		if !a.Loading || !o.current(key, token) {
			return false
		}
		a.Ref = h
		a.Loading = false
		a.Error = ""
		return true
	}, label)
	if !wrote {
		o.codec.Release(h)
		log.InfoContext(ctx, "result dropped; scene gone or no longer loading")
		return false, nil
	}
	log.InfoContext(ctx, "generated", slog.Duration("took", time.Since(start)))
	o.emit("generation_succeeded", req.Kind, time.Since(start))
	return true, nil
}

// register turns a backend result into a display handle that is pinned until
// the caller unholds it. Fetching happens outside the codec guard; creating
// the handle and pinning it happen inside, so no sweep sees it unpinned.
func (o *Orchestrator) register(ctx context.Context, ref domain.ResourceRef) (domain.ResourceRef, error) {
	var b *resource.Blob
	if !ref.IsHandle() {
		var err error
		if b, err = o.codec.ToStorageBlob(ctx, ref); err != nil {
			return "", err
		}
	}
	h := ref
	var err error
	o.codec.Guard(func() {
		if b != nil {
			if h, err = o.codec.ToDisplayHandle(b); err != nil {
				return
			}
		}
		if o.registered != nil {
			o.registered(h)
		}
		o.hold(h)
	})
	return h, err
}

func (o *Orchestrator) call(ctx context.Context, req Request) (domain.ResourceRef, error) {
	if o.pace != nil {
		if err := o.pace.Wait(ctx); err != nil {
			return "", err
		}
	}
	ref, err := o.backend.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	if ref.IsZero() {
		return "", errors.New("backend returned no resource")
	}
	return ref, nil
}

func (o *Orchestrator) fail(ctx context.Context, req Request, token uint64, err error, took time.Duration) {
	key := jobKey{req.SceneID, req.Kind}
	o.store.MutateScene(req.SceneID, func(sc *domain.Scene) bool {
		a := sc.Artifact(req.Kind)
		if !a.Loading || !o.current(key, token) {
			return false
		}
		a.Loading = false
		a.Error = err.Error()
		return true
	}, "")
	applog.WithOperation(o.logger, "generate").WarnContext(ctx, "generation failed",
		slog.String("kind", string(req.Kind)), slog.Any("err", err))
	o.emit("generation_failed", req.Kind, took)
	if o.onFailure != nil {
		o.onFailure(req.SceneID, req.Kind, err)
	}
}

// abort clears the loading flag of a request that never ran and forgets the
// job. It is a no-op once the request finished or was superseded.
func (o *Orchestrator) abort(key jobKey, token uint64) {
	o.store.MutateScene(key.scene, func(sc *domain.Scene) bool {
		a := sc.Artifact(key.kind)
		if !a.Loading || !o.current(key, token) {
			return false
		}
		a.Loading = false
		return true
	}, "")
	o.finish(key, token)
}

func (o *Orchestrator) current(key jobKey, token uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	j, ok := o.jobs[key]
	return ok && j.token == token
}

func (o *Orchestrator) finish(key jobKey, token uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if j, ok := o.jobs[key]; ok && j.token == token {
		delete(o.jobs, key)
	}
}

// hold keeps a fresh handle alive until it is written to the store.
func (o *Orchestrator) hold(h domain.ResourceRef) {
	o.mu.Lock()
	o.pending[h]++
	o.mu.Unlock()
}

func (o *Orchestrator) unhold(h domain.ResourceRef) {
	o.mu.Lock()
	if o.pending[h]--; o.pending[h] <= 0 {
		delete(o.pending, h)
	}
	o.mu.Unlock()
}

// sweep releases handles unreachable from the store, its history and the
// results not yet written.
func (o *Orchestrator) sweep() {
	o.codec.Sweep(func() map[domain.ResourceRef]struct{} {
		live := o.store.LiveRefs()
		o.mu.Lock()
		for h := range o.pending {
			live[h] = struct{}{}
		}
		o.mu.Unlock()
		return live
	})
}

func (o *Orchestrator) emit(name string, kind domain.ArtifactKind, took time.Duration) {
	if o.events == nil {
		return
	}
	o.events.Event(name, map[string]any{
		"kind":        string(kind),
		"duration_ms": took.Milliseconds(),
	})
}
