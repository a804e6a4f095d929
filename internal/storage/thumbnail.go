/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

package storage

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"gostoryboard/internal/domain"
	"gostoryboard/internal/resource"
)

// ThumbnailWidth is the maximum width of a list thumbnail.
const ThumbnailWidth = 320

// Thumbnail downscales an encoded image to at most ThumbnailWidth pixels wide
// and returns it as a PNG blob. Smaller images are re-encoded unscaled.
func Thumbnail(b *resource.Blob) (*resource.Blob, error) {
	src, _, err := image.Decode(bytes.NewReader(b.Data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", b.MIME, err)
	}
	sb := src.Bounds()
	if sb.Dx() <= 0 || sb.Dy() <= 0 {
		return nil, fmt.Errorf("empty image")
	}
	w, h := sb.Dx(), sb.Dy()
	if w > ThumbnailWidth {
		h = max(1, (h*ThumbnailWidth+w/2)/w)
		w = ThumbnailWidth
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, xdraw.Src, nil)
	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return resource.NewBlob(buf.Bytes(), "image/png"), nil
}

func (l *Library) thumbnailRef(cover *resource.Blob) (domain.ResourceRef, error) {
	t, err := Thumbnail(cover)
	if err != nil {
		return "", err
	}
	return l.codec.ToPayload(t)
}
