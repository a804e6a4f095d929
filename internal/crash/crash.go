/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic into a report file plus a best-effort save of
// the project being edited.
package crash

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"gostoryboard/internal/domain"
	applog "gostoryboard/internal/log"
	"gostoryboard/internal/storage"
	"gostoryboard/internal/telemetry"
	"gostoryboard/internal/version"
)

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// Current yields the project being edited; *history.Store satisfies it.
type Current interface {
	Current() domain.Project
}

// Saver persists a project; *storage.Library satisfies it.
type Saver interface {
	Save(ctx context.Context, p domain.Project) (string, error)
}

// Session describes what a crash should try to rescue. Every field is optional.
type Session struct {
	Project Current
	Library Saver
	// Codec resolves artifact refs when the library save fails and the
	// project is written as a standalone file instead.
	Codec storage.Codec
	// Dir receives crash reports and fallback project files; os.TempDir when empty.
	Dir string
}

const autosaveTimeout = 10 * time.Second

// Recover captures a panic, logs it with a stacktrace, writes a report file
// and attempts to save the current project before exiting with code 2.
//
// Usage: defer crash.Recover(sess)
func Recover(s *Session) {
	if r := recover(); r != nil {
		l := applog.WithComponent("crash")
		stack := debug.Stack()
		l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

		reportPath, err := writeReport(s, r, stack)
		if err != nil {
			l.Error("write crash report failed", slog.Any("err", err))
		}
		if where, err := autosave(s); err != nil {
			l.Error("crash autosave failed", slog.Any("err", err))
		} else if where != "" {
			l.Info("crash autosave written", slog.String("where", where))
		}

		if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
			l.Error("failed to write crash message to stderr", slog.Any("err", err))
		}
		if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
			l.Error("failed to write version info to stderr", slog.Any("err", err))
		}
		exitFn(2)
	}
}

func (s *Session) dir() string {
	if s != nil && s.Dir != "" {
		return s.Dir
	}
	return os.TempDir()
}

// autosave stores the current project in the library, falling back to a
// project file in the crash dir. It returns a description of where it went,
// or "" when there was nothing to save.
func autosave(s *Session) (string, error) {
	if s == nil || s.Project == nil {
		return "", nil
	}
	p := s.Project.Current()
	if p.ID == "" && len(p.Scenes) == 0 {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), autosaveTimeout)
	defer cancel()

	var libErr error
	if s.Library != nil {
		id, err := s.Library.Save(ctx, p)
		if err == nil {
			return "library:" + id, nil
		}
		libErr = err
	}
	if s.Codec == nil {
		return "", libErr
	}
	name := p.ID
	if name == "" {
		name = "untitled"
	}
	path := filepath.Join(s.dir(), fmt.Sprintf("autosave-%s-%s.json", name, time.Now().Format("20060102-150405")))
	if err := storage.WriteFile(ctx, path, p, s.Codec); err != nil {
		if libErr != nil {
			return "", fmt.Errorf("library: %v; file: %w", libErr, err)
		}
		return "", err
	}
	return path, nil
}

func writeReport(s *Session, panicVal any, stack []byte) (string, error) {
	dir := s.dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	stamp := time.Now().Format("20060102-150405")
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", stamp))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			applog.WithComponent("crash").Error("failed to close crash report file", slog.Any("err", err), slog.String("path", path))
		}
	}()

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "Storyboard Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if s != nil && s.Project != nil {
		p := s.Project.Current()
		// No titles or prompts: the report may be uploaded.
		_, _ = fmt.Fprintf(&buf, "Project: %s\n", p.ID)
		_, _ = fmt.Fprintf(&buf, "Mode: %s\n", p.Mode)
		_, _ = fmt.Fprintf(&buf, "Scenes: %d\n", len(p.Scenes))
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if _, err := f.Write(buf.Bytes()); err != nil {
		return path, err
	}
	_ = f.Sync()

	// optionally upload anonymized crash report (opt-in via env)
	telemetry.UploadCrash(buf.Bytes())
	return path, nil
}
