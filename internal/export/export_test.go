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
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gostoryboard/internal/domain"
	"gostoryboard/internal/resource"
	"gostoryboard/internal/textlayout"
)

func pngRef(t *testing.T, w, h int, c color.Color) domain.ResourceRef {
	t.Helper()
	m := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(m, m.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, m); err != nil {
		t.Fatal(err)
	}
	return domain.ResourceRef(resource.EncodeDataURI("image/png", buf.Bytes()))
}

func sampleProject(t *testing.T, n int) domain.Project {
	p := domain.Project{Title: "Night Train", Mode: domain.ModeComic, World: "rainy city", Style: "ink",
		Anchors: []domain.VisualAnchor{{Name: "Mara", Description: "red coat"}}}
	for i := 0; i < n; i++ {
		p.Scenes = append(p.Scenes, domain.Scene{
			ID:         i + 1,
			Text:       "Mara waits on the platform.",
			Image:      domain.Artifact{Ref: pngRef(t, 40, 30, color.RGBA{R: uint8(20 * i), A: 255})},
			Characters: []string{"Mara"},
		})
	}
	return p
}

func testOptions(t *testing.T, f Format) Options {
	return Options{Format: f, OutDir: t.TempDir(), TargetWidth: 400, Provider: textlayout.BasicProvider{}}
}

func TestExportComic_OnePNGPerPage(t *testing.T) {
	p := sampleProject(t, 7)
	opts := testOptions(t, FormatComic)
	opts.BurnCaptions = true
	res, err := Export(context.Background(), p, resource.NewCodec(), opts)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(res.Files) != 2 {
		t.Fatalf("files = %v, want 2 pages", res.Files)
	}
	if filepath.Base(res.Files[0]) != "night-train-page-01.png" {
		t.Fatalf("name %s", res.Files[0])
	}
	f, err := os.Open(res.Files[1])
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = f.Close() }()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 400 {
		t.Fatalf("width %d, want 400", img.Bounds().Dx())
	}
	// no temp files are left behind
	ents, _ := os.ReadDir(opts.OutDir)
	if len(ents) != 2 {
		t.Fatalf("unexpected files in out dir: %d", len(ents))
	}
}

func TestExportStoryboard_SingleImage(t *testing.T) {
	p := sampleProject(t, 8)
	// one broken image must not fail the export
	p.Scenes[3].Image.Ref = "data:image/png;base64,AAAA"
	res, err := Export(context.Background(), p, resource.NewCodec(), testOptions(t, FormatStoryboard))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(res.Files) != 1 || !strings.HasSuffix(res.Files[0], "-storyboard.png") {
		t.Fatalf("files %v", res.Files)
	}
}

func TestExportDocument_PDF(t *testing.T) {
	p := sampleProject(t, 3)
	p.Scenes[1].Text = "雨が降っている。"
	p.Scenes[2].Image = domain.Artifact{}
	res, err := Export(context.Background(), p, resource.NewCodec(), testOptions(t, FormatDocument))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	b, err := os.ReadFile(res.Files[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.HasPrefix(b, []byte("%PDF")) {
		t.Fatalf("not a pdf")
	}
}

func TestExportArchive_Contents(t *testing.T) {
	p := sampleProject(t, 2)
	p.Scenes[0].Audio.Ref = domain.ResourceRef(resource.EncodeDataURI("audio/wav", []byte("RIFF....WAVE")))
	p.Scenes[1].Video.Ref = "handle:gone"
	res, err := Export(context.Background(), p, resource.NewCodec(), testOptions(t, FormatArchive))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	rd, err := zip.OpenReader(res.Files[0])
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer func() { _ = rd.Close() }()
	files := map[string]*zip.File{}
	for _, f := range rd.File {
		files[f.Name] = f
	}
	for _, want := range []string{"scene-001.png", "scene-002.png", "scene-001-audio.wav", "script.txt", "ComicInfo.xml"} {
		if files[want] == nil {
			t.Fatalf("missing %s in %v", want, files)
		}
	}
	if len(files) != 5 {
		t.Fatalf("unexpected entries: %v", files)
	}
	rc, _ := files["script.txt"].Open()
	script, _ := io.ReadAll(rc)
	_ = rc.Close()
	if !strings.Contains(string(script), "Scene 2\n[Mara]\nMara waits") {
		t.Fatalf("script:\n%s", script)
	}
	rc, _ = files["ComicInfo.xml"].Open()
	info, _ := io.ReadAll(rc)
	_ = rc.Close()
	if !strings.Contains(string(info), "<PageCount>2</PageCount>") || !strings.Contains(string(info), "<Characters>Mara</Characters>") {
		t.Fatalf("manifest:\n%s", info)
	}
}

func TestExportErrors(t *testing.T) {
	codec := resource.NewCodec()
	if _, err := Export(context.Background(), domain.Project{}, codec, testOptions(t, FormatComic)); !errors.Is(err, ErrNoScenes) {
		t.Fatalf("expected ErrNoScenes, got %v", err)
	}
	if _, err := Export(context.Background(), sampleProject(t, 1), codec, testOptions(t, "gif")); err == nil {
		t.Fatalf("expected unknown format error")
	}
	opts := testOptions(t, FormatComic)
	opts.LayoutPreset = "nope"
	if _, err := Export(context.Background(), sampleProject(t, 1), codec, opts); err == nil {
		t.Fatalf("expected unknown preset error")
	}
}

func TestParseFormatAndSlug(t *testing.T) {
	if f, err := ParseFormat(" Archive "); err != nil || f != FormatArchive {
		t.Fatalf("parse: %v %v", f, err)
	}
	cases := map[string]string{"Night Train!": "night-train", "": "storyboard", "  雨の夜 ": "雨の夜", "a--b": "a-b"}
	for in, want := range cases {
		if got := slug(in); got != want {
			t.Fatalf("slug(%q) = %q, want %q", in, got, want)
		}
	}
}
