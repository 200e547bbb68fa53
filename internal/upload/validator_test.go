package upload

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type declaredFile struct {
	name    string
	mime    string
	size    int64
	data    []byte
	openErr error
}

func (f *declaredFile) Name() string     { return f.name }
func (f *declaredFile) MimeType() string { return f.mime }
func (f *declaredFile) Size() int64      { return f.size }
func (f *declaredFile) Open() (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestValidateRejections(t *testing.T) {
	v := NewValidator()
	cases := []struct {
		name   string
		file   File
		reason Reason
	}{
		{"text file", &declaredFile{name: "notes.txt", mime: "text/plain", size: 10}, ReasonNotImage},
		{"empty image", &declaredFile{name: "empty.png", mime: "image/png", size: 0}, ReasonEmpty},
		{"too large", &declaredFile{name: "huge.jpg", mime: "image/jpeg", size: 11 << 20}, ReasonTooLarge},
		{"unreadable", &declaredFile{name: "gone.png", mime: "image/png", size: 10, openErr: os.ErrNotExist}, ReasonUnreadable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cand, err := v.Validate(context.Background(), tc.file)
			if cand != nil {
				t.Fatalf("expected no candidate, got %+v", cand)
			}
			var rej *Rejection
			if !errors.As(err, &rej) {
				t.Fatalf("expected *Rejection, got %T (%v)", err, err)
			}
			if rej.Reason != tc.reason {
				t.Fatalf("expected reason %s, got %s (%s)", tc.reason, rej.Reason, rej.Message)
			}
		})
	}
}

func TestRejectionMessagesAreSpecific(t *testing.T) {
	v := NewValidator()
	_, err := v.Validate(context.Background(), &declaredFile{name: "notes.txt", mime: "text/plain", size: 10})
	if !strings.Contains(err.Error(), "not an image") {
		t.Fatalf("unexpected message %q", err)
	}
	_, err = v.Validate(context.Background(), &declaredFile{name: "huge.jpg", mime: "image/jpeg", size: 11 << 20})
	if !strings.Contains(err.Error(), "11 MiB") || !strings.Contains(err.Error(), "10 MiB") {
		t.Fatalf("unexpected message %q", err)
	}
	_, err = v.Validate(context.Background(), &declaredFile{name: "gone.png", mime: "image/png", size: 10, openErr: os.ErrNotExist})
	if err.Error() != "could not read file" || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("unexpected unreadable error %v", err)
	}
}

func TestValidateAcceptsTwoMegabytePNG(t *testing.T) {
	data := pngBytes(t, 600, 400)
	padded := make([]byte, 2<<20)
	copy(padded, data)

	v := NewValidator()
	cand, err := v.Validate(context.Background(), &declaredFile{name: "face.png", mime: "image/png", size: int64(len(padded)), data: padded})
	if err != nil {
		t.Fatalf("expected acceptance, got %v", err)
	}
	if cand.Preview == "" {
		t.Fatal("expected a preview")
	}
	if !strings.HasPrefix(cand.Preview, "data:image/jpeg;base64,") {
		t.Fatalf("expected a jpeg thumbnail, got %.40s", cand.Preview)
	}
	if cand.Size != 2<<20 || len(cand.Data()) != 2<<20 {
		t.Fatalf("unexpected size %d", cand.Size)
	}
}

func TestSmallImagePreviewKeepsOriginalBytes(t *testing.T) {
	data := pngBytes(t, 32, 32)
	cand, err := NewValidator().Validate(context.Background(), FromBytes("tiny.png", "", data))
	if err != nil {
		t.Fatalf("expected acceptance, got %v", err)
	}
	if cand.MimeType != "image/png" {
		t.Fatalf("expected sniffed image/png, got %s", cand.MimeType)
	}
	if !strings.HasPrefix(cand.Preview, "data:image/png;base64,") {
		t.Fatalf("unexpected preview prefix %.40s", cand.Preview)
	}
}

func TestUndecodableImageStillGetsPreview(t *testing.T) {
	cand, err := NewValidator().Validate(context.Background(), FromBytes("raw.heic", "image/heic", []byte("not really decodable")))
	if err != nil {
		t.Fatalf("expected acceptance, got %v", err)
	}
	if !strings.HasPrefix(cand.Preview, "data:image/heic;base64,") {
		t.Fatalf("unexpected preview %q", cand.Preview)
	}
}

func TestValidateCatchesFileThatGrew(t *testing.T) {
	v := NewValidator(WithMaxSize(8))
	f := &declaredFile{name: "grew.png", mime: "image/png", size: 4, data: bytes.Repeat([]byte("a"), 16)}
	if _, err := v.Validate(context.Background(), f); !IsRejection(err, ReasonTooLarge) {
		t.Fatalf("expected too large, got %v", err)
	}
}

func TestFromPathSniffsType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.bin")
	if err := os.WriteFile(path, pngBytes(t, 8, 8), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := FromPath(path)
	if err != nil {
		t.Fatalf("FromPath: %v", err)
	}
	if f.MimeType() != "image/png" || f.Name() != "photo.bin" {
		t.Fatalf("unexpected file %s %s", f.Name(), f.MimeType())
	}

	textPath := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(textPath, []byte("hello"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	tf, err := FromPath(textPath)
	if err != nil {
		t.Fatalf("FromPath: %v", err)
	}
	if _, err := NewValidator().Validate(context.Background(), tf); !IsRejection(err, ReasonNotImage) {
		t.Fatalf("expected not an image, got %v", err)
	}
}

func TestFromPathEmptyImageIsRejectedAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.png")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := FromPath(path)
	if err != nil {
		t.Fatalf("FromPath: %v", err)
	}
	if f.MimeType() != "image/png" || f.Size() != 0 {
		t.Fatalf("unexpected file %s %s %d", f.Name(), f.MimeType(), f.Size())
	}
	_, err = NewValidator().Validate(context.Background(), f)
	if !IsRejection(err, ReasonEmpty) {
		t.Fatalf("expected empty rejection, got %v", err)
	}
	if IsRejection(err, ReasonNotImage) {
		t.Fatalf("empty png must not be reported as not an image: %v", err)
	}
}
