package upload

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// buildPreview returns a data URL for data. Decodable images larger than
// bound are scaled down to a JPEG thumbnail; anything else is embedded as is.
func buildPreview(ctx context.Context, data []byte, mime string, bound int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return dataURL(mime, data), nil
	}
	b := src.Bounds()
	if b.Dx() <= bound && b.Dy() <= bound {
		return dataURL(mime, data), nil
	}

	w, h := fit(b.Dx(), b.Dy(), bound)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 80}); err != nil {
		return "", err
	}
	return dataURL("image/jpeg", buf.Bytes()), nil
}

func fit(w, h, bound int) (int, int) {
	if w >= h {
		return bound, max(1, h*bound/w)
	}
	return max(1, w*bound/h), bound
}

func dataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
