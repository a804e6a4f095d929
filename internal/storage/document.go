/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/xeipuuv/gojsonschema"

	"gostoryboard/internal/domain"
)

// ProjectSchema is the JSON schema of a stored project document.
//
//go:embed schema/project.schema.json
var ProjectSchema []byte

// EncodeAll and DecodeAll are safe for concurrent use.
var (
	docEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	docDecoder, _ = zstd.NewReader(nil)
)

// documentJSON is the uncompressed stored form: refs are blob keys and
// loading flags are cleared, since nothing is in flight after a reload.
func documentJSON(p domain.Project) ([]byte, error) {
	p = p.Clone()
	if p.Scenes == nil {
		p.Scenes = []domain.Scene{}
	}
	for i := range p.Scenes {
		for _, k := range []domain.ArtifactKind{domain.ArtifactImage, domain.ArtifactAudio, domain.ArtifactVideo} {
			p.Scenes[i].Artifact(k).Loading = false
		}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return b, nil
}

func encodeDocument(p domain.Project) ([]byte, error) {
	b, err := documentJSON(p)
	if err != nil {
		return nil, err
	}
	return docEncoder.EncodeAll(b, nil), nil
}

func decodeDocument(raw []byte) (domain.Project, error) {
	b, err := docDecoder.DecodeAll(raw, nil)
	if err != nil {
		return domain.Project{}, fmt.Errorf("decompress document: %w", err)
	}
	var p domain.Project
	if err := json.Unmarshal(b, &p); err != nil {
		return domain.Project{}, fmt.Errorf("parse document: %w", err)
	}
	return p, nil
}

// blobKeys lists the distinct blob keys referenced by p, in scene order.
func blobKeys(p domain.Project) []string {
	seen := map[string]bool{}
	var out []string
	for _, sc := range p.Scenes {
		for _, r := range sc.Refs() {
			if !r.IsBlob() {
				continue
			}
			k := strings.TrimPrefix(string(r), domain.SchemeBlob)
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

var schemaLoader = gojsonschema.NewBytesLoader(ProjectSchema)

// ValidateDocument checks uncompressed document JSON against ProjectSchema.
func ValidateDocument(doc []byte) error {
	res, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validate: %w", err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("document does not conform to schema: %s", strings.Join(msgs, "; "))
}
