/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"gostoryboard/internal/domain"
)

// exportArchive packages the raw scene artifacts into <name>.zip together
// with script.txt and a ComicInfo.xml manifest for reader compatibility.
// Artifacts are stored as they are, without re-encoding.
func exportArchive(ctx context.Context, p domain.Project, src Source, opts Options, logger *slog.Logger) ([]string, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)

	pad := max(3, len(fmt.Sprint(len(p.Scenes))))
	images := 0
	for i, sc := range p.Scenes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, kind := range []domain.ArtifactKind{domain.ArtifactImage, domain.ArtifactAudio, domain.ArtifactVideo} {
			ref := sc.Artifact(kind).Ref
			if ref.IsZero() {
				continue
			}
			b, err := src.ToStorageBlob(ctx, ref)
			if err == nil && b == nil {
				err = errors.New("no content")
			}
			if err != nil {
				logger.Warn("artifact unavailable, skipped", slog.Int("scene", sc.ID), slog.String("kind", string(kind)), slog.String("err", err.Error()))
				continue
			}
			name := fmt.Sprintf("scene-%0*d", pad, i+1)
			if kind != domain.ArtifactImage {
				name += "-" + string(kind)
			} else {
				images++
			}
			if err := addZipFile(zw, name+b.Ext(), b.Data); err != nil {
				return nil, fmt.Errorf("zip add %s: %w", name, err)
			}
		}
	}

	if err := addZipFile(zw, "script.txt", []byte(scriptText(p))); err != nil {
		return nil, fmt.Errorf("zip add script: %w", err)
	}
	manifest, err := buildComicInfoXML(p, images)
	if err != nil {
		return nil, fmt.Errorf("build manifest: %w", err)
	}
	if err := addZipFile(zw, "ComicInfo.xml", manifest); err != nil {
		return nil, fmt.Errorf("zip add manifest: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}

	name := filepath.Join(opts.OutDir, opts.Name+".zip")
	if err := writeFileAtomic(name, buf.Bytes()); err != nil {
		return nil, fmt.Errorf("write archive: %w", err)
	}
	return []string{name}, nil
}

func addZipFile(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// scriptText is the plain transcript: title, world, then every scene.
func scriptText(p domain.Project) string {
	var b strings.Builder
	b.WriteString(p.Title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", max(len([]rune(p.Title)), 3)))
	b.WriteString("\n")
	if p.World != "" {
		b.WriteString("\n")
		b.WriteString(p.World)
		b.WriteString("\n")
	}
	if p.Style != "" {
		fmt.Fprintf(&b, "Style: %s\n", p.Style)
	}
	for i, sc := range p.Scenes {
		fmt.Fprintf(&b, "\nScene %d\n", i+1)
		if len(sc.Characters) > 0 {
			fmt.Fprintf(&b, "[%s]\n", strings.Join(sc.Characters, ", "))
		}
		b.WriteString(strings.TrimSpace(sc.Text))
		b.WriteString("\n")
	}
	return b.String()
}

type comicInfo struct {
	XMLName          xml.Name `xml:"ComicInfo"`
	XSI              string   `xml:"xmlns:xsi,attr"`
	Series           string   `xml:"Series"`
	Title            string   `xml:"Title"`
	Number           int      `xml:"Number"`
	PageCount        int      `xml:"PageCount"`
	Summary          string   `xml:"Summary,omitempty"`
	Genre            string   `xml:"Genre,omitempty"`
	Characters       string   `xml:"Characters,omitempty"`
	Manga            string   `xml:"Manga"`
	ReadingDirection string   `xml:"ReadingDirection"`
}

func buildComicInfoXML(p domain.Project, pageCount int) ([]byte, error) {
	var chars []string
	for _, a := range p.Anchors {
		chars = append(chars, a.Name)
	}
	info := comicInfo{
		XSI:              "http://www.w3.org/2001/XMLSchema-instance",
		Series:           p.Title,
		Title:            p.Title,
		Number:           1,
		PageCount:        pageCount,
		Summary:          p.World,
		Genre:            p.Style,
		Characters:       strings.Join(chars, ", "),
		Manga:            "No",
		ReadingDirection: "LeftToRight",
	}
	out, err := xml.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("build xml: %w", err)
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}
