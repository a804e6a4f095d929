/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gostoryboard/internal/backend"
	"gostoryboard/internal/config"
	"gostoryboard/internal/crash"
	"gostoryboard/internal/domain"
	"gostoryboard/internal/generate"
	"gostoryboard/internal/history"
	"gostoryboard/internal/limiter"
	applog "gostoryboard/internal/log"
	"gostoryboard/internal/resource"
	"gostoryboard/internal/storage"
	"gostoryboard/internal/telemetry"
)

// app holds what the commands share. Everything is opened lazily so that
// version and help work without a database.
type app struct {
	out io.Writer

	configFile string
	dbPath     string
	backendArg string

	cfg   config.AppConfig
	token string

	codec  *resource.Codec
	lib    *storage.Library
	db     *storage.DB
	events *telemetry.Client

	// rescue is what a panic tries to save.
	rescue crash.Session
}

func (a *app) loadConfig() error {
	var err error
	if a.configFile != "" {
		a.cfg, a.token, err = config.LoadFrom(a.configFile)
	} else {
		a.cfg, a.token, err = config.Load()
	}
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		a.cfg.Storage.Driver = "sqlite"
		a.cfg.Storage.Path = a.dbPath
	}
	if a.backendArg != "" {
		a.cfg.Backend.Kind = strings.ToLower(a.backendArg)
	}
	applog.Init(applog.Options{
		Level:      a.cfg.Logging.Level,
		Format:     a.cfg.Logging.Format,
		AddSource:  a.cfg.Logging.Source,
		File:       a.cfg.Logging.File,
		MaxSizeMB:  a.cfg.Logging.MaxSizeMB,
		MaxBackups: a.cfg.Logging.MaxBackups,
		MaxAgeDays: a.cfg.Logging.MaxAgeDays,
	})

	tcfg := telemetry.FromEnv()
	tcfg.OptIn = tcfg.OptIn || a.cfg.General.TelemetryOptIn
	if tcfg.EventsURL == "" {
		tcfg.EventsURL = a.cfg.General.TelemetryURL
	}
	a.events = telemetry.NewDefault(tcfg)
	return nil
}

// library opens the configured store once.
func (a *app) library() (*storage.Library, error) {
	if a.lib != nil {
		return a.lib, nil
	}
	var (
		db  *storage.DB
		err error
	)
	switch a.cfg.Storage.Driver {
	case "", "sqlite":
		path := a.cfg.Storage.Path
		if path == "" {
			path = config.DefaultDBPath()
		}
		db, err = storage.OpenSQLite(path)
	case "postgres":
		if a.cfg.Storage.DSN == "" {
			return nil, fmt.Errorf("storage.dsn is required for the postgres driver (or set %s)", config.EnvStorageDSN)
		}
		db, err = storage.OpenPostgres(a.cfg.Storage.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", a.cfg.Storage.Driver)
	}
	if err != nil {
		return nil, err
	}
	applog.WithComponent("cli").Debug("library opened", slog.String("db", db.String()))
	a.db = db
	a.codec = resource.NewCodec()
	a.lib = storage.NewLibrary(db, a.codec)
	a.lib.SetHistoryLimit(a.cfg.Generation.HistoryDepth)
	a.rescue.Library = a.lib
	a.rescue.Codec = a.codec
	return a.lib, nil
}

func (a *app) backend() (generate.Backend, error) {
	switch a.cfg.Backend.Kind {
	case "placeholder", "offline":
		return backend.NewPlaceholder(), nil
	case "", "http":
		if a.cfg.Backend.BaseURL == "" {
			return nil, fmt.Errorf("backend.base_url is required (or set %s)", config.EnvBackendURL)
		}
		return backend.NewClient(a.cfg.Backend.BaseURL, a.token, backend.Options{
			Timeout:     a.cfg.Backend.EffectiveTimeout(),
			TLSInsecure: a.cfg.Backend.TLSInsecure,
		}), nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q", a.cfg.Backend.Kind)
	}
}

// session is one loaded project being edited by a command. orch is nil for
// commands that only edit text or move through history.
type session struct {
	store *history.Store
	orch  *generate.Orchestrator
}

func (s *session) close() {
	if s.orch != nil {
		s.orch.Close()
	}
}

// load reads a project and its stored undo history into a fresh store.
func (a *app) load(ctx context.Context, id string) (*session, error) {
	lib, err := a.library()
	if err != nil {
		return nil, err
	}
	p, h, err := lib.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.newSession(p, h), nil
}

// open is load plus an orchestrator for commands that generate.
func (a *app) open(ctx context.Context, id string) (*session, error) {
	s, err := a.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := a.attach(s); err != nil {
		return nil, err
	}
	return s, nil
}

// sessionFor starts a generating session on a project without stored history.
func (a *app) sessionFor(p domain.Project) (*session, error) {
	s := a.newSession(p, storage.History{})
	if err := a.attach(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (a *app) newSession(p domain.Project, h storage.History) *session {
	store := history.New(history.Config{MaxEntries: a.cfg.Generation.HistoryDepth})
	store.Restore(p, h.Entries, h.Cursor)
	a.rescue.Project = store
	return &session{store: store}
}

func (a *app) attach(s *session) error {
	be, err := a.backend()
	if err != nil {
		return err
	}
	logger := applog.WithComponent("cli")
	s.orch = generate.New(s.store, limiter.New(a.cfg.Generation.Concurrency), a.codec, be,
		generate.WithRateLimit(a.cfg.Generation.RateInterval(), a.cfg.Generation.RateBurst),
		generate.WithEvents(a.events),
		generate.WithFailureHandler(func(sceneID int, kind domain.ArtifactKind, err error) {
			logger.Warn("generation failed", slog.Int("scene", sceneID), slog.String("kind", string(kind)), slog.Any("err", err))
		}),
	)
	return nil
}

// save writes the session's current project and its undo history back to
// the library.
func (a *app) save(ctx context.Context, s *session) (domain.Project, error) {
	p := s.store.Current()
	id, err := a.lib.SaveSession(ctx, p, storage.History{Entries: s.store.Entries(), Cursor: s.store.Cursor()})
	if err != nil {
		return p, err
	}
	p.ID = id
	return p, nil
}

func (a *app) close() {
	if a.events != nil {
		a.events.Flush(context.Background())
		a.events.Close()
		a.events = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			applog.WithComponent("cli").Warn("close library", slog.Any("err", err))
		}
		a.db = nil
	}
}
