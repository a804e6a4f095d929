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
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"gostoryboard/internal/domain"
	applog "gostoryboard/internal/log"
	"gostoryboard/internal/resource"
)

// ErrNotFound is returned for unknown project ids and blob keys.
var ErrNotFound = errors.New("not found")

// Repository persists projects.
type Repository interface {
	Save(ctx context.Context, p domain.Project) (string, error)
	Load(ctx context.Context, id string) (domain.Project, error)
	List(ctx context.Context) ([]Summary, error)
	Delete(ctx context.Context, id string) error
}

// Codec is the part of the resource codec the library needs.
type Codec interface {
	ToStorageBlob(ctx context.Context, ref domain.ResourceRef) (*resource.Blob, error)
	ToDisplayHandle(b *resource.Blob) (domain.ResourceRef, error)
	ToPayload(b *resource.Blob) (domain.ResourceRef, error)
}

// Summary is the list view of a stored project. Thumbnail is a data: payload
// so it can be shown without touching the blob store.
type Summary struct {
	ID         string
	Title      string
	Mode       domain.Mode
	SceneCount int
	UpdatedAt  time.Time
	Thumbnail  domain.ResourceRef
}

var artifactKinds = []domain.ArtifactKind{domain.ArtifactImage, domain.ArtifactAudio, domain.ArtifactVideo}

// Library stores projects in a DB. It implements Repository and
// resource.BlobSource.
type Library struct {
	db     *DB
	codec  Codec
	logger *slog.Logger
	now    func() time.Time
	// historyLimit caps the stored entries per project; 0 keeps all.
	historyLimit int
}

var (
	_ Repository          = (*Library)(nil)
	_ resource.BlobSource = (*Library)(nil)
)

// NewLibrary wires a library to db and codec. When the codec can resolve
// blob: refs through a source, the library registers itself as that source.
func NewLibrary(db *DB, codec Codec) *Library {
	l := &Library{db: db, codec: codec, logger: applog.WithComponent("storage"), now: time.Now}
	if s, ok := codec.(interface{ SetBlobSource(resource.BlobSource) }); ok {
		s.SetBlobSource(l)
	}
	return l
}

// DB returns the underlying database.
func (l *Library) DB() *DB { return l.db }

// Save stores p and returns its id, assigning a new one to a project that has
// none. Every artifact is converted to a storage blob first; if any
// conversion fails nothing is written. p itself is never modified. A stored
// undo history is left as it is; SaveSession replaces it.
func (l *Library) Save(ctx context.Context, p domain.Project) (string, error) {
	return l.save(ctx, p, nil)
}

func (l *Library) save(ctx context.Context, p domain.Project, hist *History) (string, error) {
	log := applog.WithOperation(l.logger, "save")
	doc := p.Clone()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := l.now()
	if doc.ModifiedAt.IsZero() {
		doc.ModifiedAt = now
	}

	blobs := map[string]*resource.Blob{}
	cover, err := l.toStored(ctx, &doc, blobs)
	if err != nil {
		return "", err
	}
	var (
		entries []historyRow
		cursor  int
		hblobs  = map[string]*resource.Blob{}
	)
	if hist != nil {
		if entries, cursor, err = l.historyRows(ctx, *hist, hblobs); err != nil {
			return "", err
		}
	}

	var thumb sql.NullString
	if cover != nil {
		if ref, err := l.thumbnailRef(cover); err != nil {
			log.Warn("thumbnail failed", slog.String("project", doc.ID), slog.Any("err", err))
		} else {
			thumb = sql.NullString{String: string(ref), Valid: true}
		}
	}

	raw, err := encodeDocument(doc)
	if err != nil {
		return "", err
	}

	t, err := l.db.begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	err = l.write(ctx, t, doc, raw, thumb, blobs, now)
	if err == nil && hist != nil {
		err = writeHistory(ctx, t, doc.ID, entries, cursor, hblobs, now)
	}
	if err == nil {
		err = pruneBlobs(ctx, t)
	}
	if err != nil {
		_ = t.Rollback()
		log.Error("save failed", slog.String("project", doc.ID), slog.Any("err", err))
		return "", err
	}
	if err := t.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	log.Info("project saved", slog.String("project", doc.ID), slog.Int("scenes", len(doc.Scenes)), slog.Int("blobs", len(blobs)), slog.Int("bytes", len(raw)))
	return doc.ID, nil
}

// toStored replaces every artifact ref of p with its blob: ref and collects
// the blobs by key. It returns the first image blob.
func (l *Library) toStored(ctx context.Context, p *domain.Project, blobs map[string]*resource.Blob) (*resource.Blob, error) {
	var cover *resource.Blob
	for i := range p.Scenes {
		sc := &p.Scenes[i]
		for _, kind := range artifactKinds {
			a := sc.Artifact(kind)
			if a.Ref.IsZero() {
				continue
			}
			b, err := l.codec.ToStorageBlob(ctx, a.Ref)
			if err != nil {
				return nil, fmt.Errorf("scene %d %s: %w", sc.ID, kind, err)
			}
			if b == nil {
				a.Ref = ""
				continue
			}
			blobs[b.Key] = b
			a.Ref = b.Ref()
			if kind == domain.ArtifactImage && cover == nil {
				cover = b
			}
		}
	}
	return cover, nil
}

func (l *Library) write(ctx context.Context, t *tx, doc domain.Project, raw []byte, thumb sql.NullString, blobs map[string]*resource.Blob, now time.Time) error {
	ts := stamp(now)
	if err := insertBlobs(ctx, t, blobs, ts); err != nil {
		return err
	}
	if _, err := t.exec(ctx, `INSERT INTO projects(id, title, mode, scene_count, thumbnail, doc, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET title=excluded.title, mode=excluded.mode, scene_count=excluded.scene_count,
			thumbnail=excluded.thumbnail, doc=excluded.doc, updated_at=excluded.updated_at`,
		doc.ID, doc.Title, string(doc.Mode), len(doc.Scenes), thumb, raw, ts, ts); err != nil {
		return fmt.Errorf("upsert project: %w", err)
	}
	if _, err := t.exec(ctx, `DELETE FROM project_blobs WHERE project_id=?`, doc.ID); err != nil {
		return fmt.Errorf("clear blob refs: %w", err)
	}
	for key := range blobs {
		if _, err := t.exec(ctx, `INSERT INTO project_blobs(project_id, hash) VALUES(?, ?)`, doc.ID, key); err != nil {
			return fmt.Errorf("insert blob ref: %w", err)
		}
	}
	return nil
}

func insertBlobs(ctx context.Context, t *tx, blobs map[string]*resource.Blob, ts string) error {
	for _, b := range blobs {
		if _, err := t.exec(ctx, `INSERT INTO blobs(hash, mime, size, data, created_at) VALUES(?,?,?,?,?) ON CONFLICT(hash) DO NOTHING`,
			b.Key, b.MIME, len(b.Data), b.Data, ts); err != nil {
			return fmt.Errorf("insert blob: %w", err)
		}
	}
	return nil
}

// pruneBlobs deletes blobs that neither a project nor a history entry
// references any more.
func pruneBlobs(ctx context.Context, t *tx) error {
	if _, err := t.exec(ctx, `DELETE FROM blobs
		WHERE NOT EXISTS (SELECT 1 FROM project_blobs pb WHERE pb.hash = blobs.hash)
		AND NOT EXISTS (SELECT 1 FROM history_blobs hb WHERE hb.hash = blobs.hash)`); err != nil {
		return fmt.Errorf("prune blobs: %w", err)
	}
	return nil
}

// Load reads project id and turns every stored artifact into a display
// handle. An artifact whose blob is missing is cleared and marked with an
// error instead of failing the whole load.
func (l *Library) Load(ctx context.Context, id string) (domain.Project, error) {
	var raw []byte
	err := l.db.queryRow(ctx, `SELECT doc FROM projects WHERE id=?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Project{}, fmt.Errorf("%w: project %s", ErrNotFound, id)
	}
	if err != nil {
		return domain.Project{}, fmt.Errorf("read project: %w", err)
	}
	p, err := decodeDocument(raw)
	if err != nil {
		return domain.Project{}, fmt.Errorf("project %s: %w", id, err)
	}
	p.ID = id
	if err := l.resolve(ctx, &p, map[string]domain.ResourceRef{}); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// resolve turns the blob: refs of p into display handles. handles caches one
// handle per blob key so repeated blobs share a registry entry.
func (l *Library) resolve(ctx context.Context, p *domain.Project, handles map[string]domain.ResourceRef) error {
	log := applog.WithOperation(l.logger, "load")
	for i := range p.Scenes {
		sc := &p.Scenes[i]
		for _, kind := range artifactKinds {
			a := sc.Artifact(kind)
			if !a.Ref.IsBlob() {
				continue
			}
			key := strings.TrimPrefix(string(a.Ref), domain.SchemeBlob)
			if h, ok := handles[key]; ok {
				a.Ref = h
				continue
			}
			b, err := l.GetBlob(ctx, key)
			if err != nil {
				log.Warn("artifact unavailable", slog.String("project", p.ID), slog.Int("scene", sc.ID), slog.String("kind", string(kind)), slog.Any("err", err))
				a.Ref = ""
				a.Error = "stored artifact is missing"
				continue
			}
			h, err := l.codec.ToDisplayHandle(b)
			if err != nil {
				return fmt.Errorf("scene %d %s: %w", sc.ID, kind, err)
			}
			handles[key] = h
			a.Ref = h
		}
	}
	return nil
}

// List returns every project summary, most recently saved first.
func (l *Library) List(ctx context.Context) ([]Summary, error) {
	rows, err := l.db.query(ctx, `SELECT id, title, mode, scene_count, thumbnail, updated_at FROM projects ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()
	var out []Summary
	for rows.Next() {
		var s Summary
		var mode, updated string
		var thumb sql.NullString
		if err := rows.Scan(&s.ID, &s.Title, &mode, &s.SceneCount, &thumb, &updated); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		s.Mode = domain.Mode(mode)
		s.UpdatedAt = parseStamp(updated)
		s.Thumbnail = domain.ResourceRef(thumb.String)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete removes project id, its undo history and every blob only they referenced.
func (l *Library) Delete(ctx context.Context, id string) error {
	t, err := l.db.begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := clearHistory(ctx, t, id); err != nil {
		_ = t.Rollback()
		return err
	}
	if _, err := t.exec(ctx, `DELETE FROM project_blobs WHERE project_id=?`, id); err != nil {
		_ = t.Rollback()
		return fmt.Errorf("clear blob refs: %w", err)
	}
	res, err := t.exec(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		_ = t.Rollback()
		return fmt.Errorf("delete project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = t.Rollback()
		return fmt.Errorf("%w: project %s", ErrNotFound, id)
	}
	if err := pruneBlobs(ctx, t); err != nil {
		_ = t.Rollback()
		return err
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	applog.WithOperation(l.logger, "delete").Info("project deleted", slog.String("project", id))
	return nil
}

// GetBlob returns the stored blob with the given key.
func (l *Library) GetBlob(ctx context.Context, key string) (*resource.Blob, error) {
	b := &resource.Blob{Key: key}
	err := l.db.queryRow(ctx, `SELECT mime, data FROM blobs WHERE hash=?`, key).Scan(&b.MIME, &b.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: blob %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return b, nil
}

// Problem is one finding of Check. ProjectID is empty for database-level problems.
type Problem struct {
	ProjectID string
	Err       error
}

func (p Problem) String() string {
	if p.ProjectID == "" {
		return p.Err.Error()
	}
	return p.ProjectID + ": " + p.Err.Error()
}

// Check verifies the library: SQLite integrity, every project and history
// document against ProjectSchema, and every referenced blob present.
func (l *Library) Check(ctx context.Context) ([]Problem, error) {
	var out []Problem
	if l.db.dialect == SQLite {
		var res string
		if err := l.db.queryRow(ctx, `PRAGMA quick_check;`).Scan(&res); err != nil {
			return nil, fmt.Errorf("quick_check: %w", err)
		}
		if !strings.EqualFold(strings.TrimSpace(res), "ok") {
			out = append(out, Problem{Err: fmt.Errorf("quick_check: %s", res)})
		}
	}

	type stored struct {
		id   string
		what string
		raw  []byte
	}
	var docs []stored
	read := func(q string, label func(idx int) string) error {
		rows, err := l.db.query(ctx, q)
		if err != nil {
			return err
		}
		for rows.Next() {
			var s stored
			var idx int
			if err := rows.Scan(&s.id, &idx, &s.raw); err != nil {
				_ = rows.Close()
				return err
			}
			s.what = label(idx)
			docs = append(docs, s)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return err
		}
		// Close the cursor before issuing further queries on the single connection.
		return rows.Close()
	}
	if err := read(`SELECT id, 0, doc FROM projects ORDER BY id`, func(int) string { return "" }); err != nil {
		return nil, fmt.Errorf("read projects: %w", err)
	}
	if err := read(`SELECT project_id, idx, doc FROM history_entries ORDER BY project_id, idx`, func(i int) string {
		return fmt.Sprintf("history entry %d: ", i)
	}); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	for _, s := range docs {
		problem := func(err error) Problem {
			if s.what != "" {
				err = fmt.Errorf("%s%w", s.what, err)
			}
			return Problem{ProjectID: s.id, Err: err}
		}
		js, err := docDecoder.DecodeAll(s.raw, nil)
		if err != nil {
			out = append(out, problem(fmt.Errorf("decompress document: %w", err)))
			continue
		}
		if err := ValidateDocument(js); err != nil {
			out = append(out, problem(err))
			continue
		}
		p, err := decodeDocument(s.raw)
		if err != nil {
			out = append(out, problem(err))
			continue
		}
		for _, key := range blobKeys(p) {
			var n int
			if err := l.db.queryRow(ctx, `SELECT COUNT(*) FROM blobs WHERE hash=?`, key).Scan(&n); err != nil {
				return nil, fmt.Errorf("look up blob: %w", err)
			}
			if n == 0 {
				out = append(out, problem(fmt.Errorf("%w: blob %s", ErrNotFound, key)))
			}
		}
	}
	return out, nil
}
