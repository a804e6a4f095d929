/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package resource

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"gostoryboard/internal/domain"
)

// Blob is the storage representation of a resource: raw bytes plus a MIME type.
// Key is content-derived, so equal bytes share a key.
type Blob struct {
	Key  string `json:"key"`
	MIME string `json:"mime"`
	Data []byte `json:"-"`
}

// NewBlob builds a blob, sniffing the MIME type when none is given.
func NewBlob(data []byte, mimeType string) *Blob {
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return &Blob{Key: KeyOf(data), MIME: mimeType, Data: data}
}

// KeyOf returns the content key of data.
func KeyOf(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// Ref returns the blob: reference for this blob.
func (b *Blob) Ref() domain.ResourceRef {
	return domain.ResourceRef(domain.SchemeBlob + b.Key)
}

// Ext returns a file extension for the MIME type, including the dot.
func (b *Blob) Ext() string {
	switch strings.SplitN(b.MIME, ";", 2)[0] {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	}
	if exts, _ := mime.ExtensionsByType(b.MIME); len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

func (b *Blob) clone() *Blob {
	c := *b
	c.Data = append([]byte(nil), b.Data...)
	return &c
}

// EncodeDataURI renders data as a base64 data URI.
func EncodeDataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI parses a data URI (RFC 2397). A missing media type defaults to
// text/plain, as the RFC says.
func DecodeDataURI(s string) (mimeType string, data []byte, err error) {
	if !strings.HasPrefix(s, domain.SchemeData) {
		return "", nil, fmt.Errorf("%w: not a data URI", ErrUnsupported)
	}
	head, body, ok := strings.Cut(s[len(domain.SchemeData):], ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URI: missing comma")
	}
	isBase64 := false
	if strings.HasSuffix(head, ";base64") {
		isBase64 = true
		head = strings.TrimSuffix(head, ";base64")
	}
	mimeType = head
	if mimeType == "" || strings.HasPrefix(mimeType, ";") {
		mimeType = "text/plain" + mimeType
	}
	if isBase64 {
		data, err = base64.StdEncoding.DecodeString(body)
		if err != nil {
			// some producers drop the padding
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(body, "="))
		}
		if err != nil {
			return "", nil, fmt.Errorf("decode data URI: %w", err)
		}
		return mimeType, data, nil
	}
	txt, err := url.PathUnescape(body)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URI: %w", err)
	}
	return mimeType, []byte(txt), nil
}
