package upload

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// File is a raw file handle with a declared mime type and size.
type File interface {
	Name() string
	MimeType() string
	Size() int64
	Open() (io.ReadCloser, error)
}

type pathFile struct {
	path string
	mime string
	size int64
}

// FromPath describes the file at path. The mime type is sniffed from the
// content; an empty file has nothing to sniff and falls back to its
// extension, so it is rejected as empty rather than as not an image.
func FromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() == 0 {
		return &pathFile{path: path, mime: typeByExtension(path), size: 0}, nil
	}
	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("detect type of %s: %w", path, err)
	}
	return &pathFile{path: path, mime: detected.String(), size: info.Size()}, nil
}

func typeByExtension(path string) string {
	byExt := mime.TypeByExtension(filepath.Ext(path))
	if byExt == "" {
		return "application/octet-stream"
	}
	if mediaType, _, err := mime.ParseMediaType(byExt); err == nil {
		return mediaType
	}
	return byExt
}

func (f *pathFile) Name() string                 { return filepath.Base(f.path) }
func (f *pathFile) MimeType() string             { return f.mime }
func (f *pathFile) Size() int64                  { return f.size }
func (f *pathFile) Open() (io.ReadCloser, error) { return os.Open(f.path) }

type memFile struct {
	name string
	mime string
	data []byte
}

// FromBytes wraps in-memory data. An empty mime is sniffed from data.
func FromBytes(name, mime string, data []byte) File {
	if mime == "" {
		mime = mimetype.Detect(data).String()
	}
	return &memFile{name: name, mime: mime, data: data}
}

func (f *memFile) Name() string     { return f.name }
func (f *memFile) MimeType() string { return f.mime }
func (f *memFile) Size() int64      { return int64(len(f.data)) }
func (f *memFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}
