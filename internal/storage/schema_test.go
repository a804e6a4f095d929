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
	"image/color"
	"testing"

	gojsonschema "github.com/xeipuuv/gojsonschema"

	"gostoryboard/internal/domain"
)

func TestStoredDocumentConformsToSchema(t *testing.T) {
	lib, _ := openTestLibrary(t)
	ctx := context.Background()
	seed := int64(42)
	id, err := lib.Save(ctx, domain.Project{
		Title: "Schema Test", Mode: domain.ModeStoryboard, World: "desert", Seed: &seed,
		Anchors: []domain.VisualAnchor{{Name: "Rin", Description: "scarf"}},
		Scenes: []domain.Scene{
			{ID: 1, Text: "Dunes", Directive: "wide shot", Image: domain.Artifact{Ref: dataRef("image/png", pngBytes(t, 4, 3, color.White)), Loading: true}, Tags: []string{"day"}},
			{ID: 2, Text: "Camp", Characters: []string{"Rin"}, Audio: domain.Artifact{Error: "timeout"}},
		},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	var raw []byte
	if err := lib.db.queryRow(ctx, `SELECT doc FROM projects WHERE id=?`, id).Scan(&raw); err != nil {
		t.Fatalf("read doc: %v", err)
	}
	data, err := docDecoder.DecodeAll(raw, nil)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}

	schemaLoader := gojsonschema.NewBytesLoader(ProjectSchema)
	docLoader := gojsonschema.NewBytesLoader(data)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		t.Fatalf("schema validate error: %v", err)
	}
	if !result.Valid() {
		for _, e := range result.Errors() {
			t.Logf("schema error: %s", e)
		}
		t.Fatalf("stored document does not conform to schema")
	}
}

func TestValidateDocument_RejectsTransientState(t *testing.T) {
	cases := map[string]string{
		"handle ref":   `{"id":"a","title":"t","mode":"comic","modifiedAt":"2025-01-01T00:00:00Z","scenes":[{"id":1,"text":"","directive":"","image":{"ref":"handle:1234"},"audio":{},"video":{}}]}`,
		"loading flag": `{"id":"a","title":"t","mode":"comic","modifiedAt":"2025-01-01T00:00:00Z","scenes":[{"id":1,"text":"","directive":"","image":{"loading":true},"audio":{},"video":{}}]}`,
		"no id":        `{"title":"t","mode":"comic","modifiedAt":"2025-01-01T00:00:00Z","scenes":[]}`,
		"null scenes":  `{"id":"a","title":"t","mode":"comic","modifiedAt":"2025-01-01T00:00:00Z","scenes":null}`,
	}
	for name, doc := range cases {
		if err := ValidateDocument([]byte(doc)); err == nil {
			t.Fatalf("%s: expected schema violation", name)
		}
	}
	ok := `{"id":"a","title":"t","mode":"comic","modifiedAt":"2025-01-01T00:00:00Z","scenes":[]}`
	if err := ValidateDocument([]byte(ok)); err != nil {
		t.Fatalf("minimal document rejected: %v", err)
	}
}

func TestDocumentJSON_EmptyProject(t *testing.T) {
	b, err := documentJSON(domain.Project{ID: "x", Mode: domain.ModeComic})
	if err != nil {
		t.Fatal(err)
	}
	if err := ValidateDocument(b); err != nil {
		t.Fatalf("empty project should validate: %v", err)
	}
}
