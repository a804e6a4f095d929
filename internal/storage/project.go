/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gostoryboard/internal/domain"
)

// BackupsDirName holds timestamped copies of replaced project files.
const BackupsDirName = "backups"

// WriteFile saves p as a self-contained JSON project file: every artifact is
// embedded as a data: payload, so the file opens without the library.
// The previous file, if any, is kept as a timestamped backup and the new one
// replaces it transactionally.
func WriteFile(ctx context.Context, path string, p domain.Project, codec Codec) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("path is required")
	}
	doc := p.Clone()
	for i := range doc.Scenes {
		sc := &doc.Scenes[i]
		for _, kind := range artifactKinds {
			a := sc.Artifact(kind)
			a.Loading = false
			if a.Ref.IsZero() || a.Ref.IsData() {
				continue
			}
			b, err := codec.ToStorageBlob(ctx, a.Ref)
			if err != nil {
				return fmt.Errorf("scene %d %s: %w", sc.ID, kind, err)
			}
			if a.Ref, err = codec.ToPayload(b); err != nil {
				return fmt.Errorf("scene %d %s: %w", sc.ID, kind, err)
			}
		}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal project: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	bdir := filepath.Join(dir, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}
	// Keep the current file before replacing it
	if _, statErr := os.Stat(path); statErr == nil {
		stamp := time.Now().Format("20060102-150405")
		bpath := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(path), stamp))
		if cerr := copyFile(path, bpath); cerr != nil {
			return fmt.Errorf("backup current file: %w", cerr)
		}
	}

	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", filepath.Base(path), os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, data); werr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("write temp file: %w", werr)
	}
	// On Windows, replace by removing destination first if needed
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}
	if rerr := os.Rename(temp, path); rerr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace file: %w", rerr)
	}
	return nil
}

// ReadFile loads a project file written by WriteFile. If it cannot be read
// or parsed, the latest backup next to it is tried.
func ReadFile(path string) (domain.Project, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		p, berr := openFromLatestBackup(path)
		if berr != nil {
			return domain.Project{}, fmt.Errorf("open project file: %w; backup attempt: %v", err, berr)
		}
		return p, nil
	}
	var p domain.Project
	if uerr := json.Unmarshal(b, &p); uerr != nil {
		p, berr := openFromLatestBackup(path)
		if berr != nil {
			return domain.Project{}, fmt.Errorf("parse project file: %w; backup attempt: %v", uerr, berr)
		}
		return p, nil
	}
	return p, nil
}

// writeFileSync writes data to a file, ensures it is flushed to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies a file from src to dst (overwrites dst if exists).
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}

// openFromLatestBackup tries the newest timestamped backup of path.
func openFromLatestBackup(path string) (domain.Project, error) {
	bdir := filepath.Join(filepath.Dir(path), BackupsDirName)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return domain.Project{}, fmt.Errorf("read backups dir: %w", err)
	}
	prefix := filepath.Base(path) + "."
	var candidates []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".bak") {
			candidates = append(candidates, filepath.Join(bdir, name))
		}
	}
	if len(candidates) == 0 {
		return domain.Project{}, errors.New("no backups found")
	}
	sort.Strings(candidates) // timestamp in name yields lexicographic order
	b, err := os.ReadFile(candidates[len(candidates)-1])
	if err != nil {
		return domain.Project{}, fmt.Errorf("read latest backup: %w", err)
	}
	var p domain.Project
	if err := json.Unmarshal(b, &p); err != nil {
		return domain.Project{}, fmt.Errorf("parse latest backup: %w", err)
	}
	return p, nil
}
