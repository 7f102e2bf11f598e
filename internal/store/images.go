package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wxrelay/wxrelay/internal/bus"
)

// ImageMeta describes a stored media object. The file is
// content-addressed: identical bytes under the same name are written
// once, so re-processing a duplicate event is a no-op.
type ImageMeta struct {
	Path   string `json:"path"` // relative to the store base dir
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
	Mime   string `json:"mime"`
}

// SaveImage writes image bytes into the session's images directory. The
// file name is keyed by messageID when available, else by a hash prefix,
// with an extension derived from the MIME type. An existing file is left
// untouched; the descriptor is returned either way.
func (s *Store) SaveImage(scope bus.Scope, sessionID string, data []byte, mime, messageID string) (ImageMeta, error) {
	imagesDir := filepath.Join(s.sessionDir(scope, sessionID), "images")
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return ImageMeta{}, fmt.Errorf("create images dir: %w", err)
	}

	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	name := messageID
	if name == "" {
		name = digest[:16]
	}
	target := filepath.Join(imagesDir, name+"."+mimeExtension(mime))

	if _, err := os.Stat(target); os.IsNotExist(err) {
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return ImageMeta{}, fmt.Errorf("write image: %w", err)
		}
	} else if err != nil {
		return ImageMeta{}, fmt.Errorf("stat image: %w", err)
	}

	rel, err := filepath.Rel(s.baseDir, target)
	if err != nil {
		rel = target
	}
	return ImageMeta{
		Path:   rel,
		SHA256: digest,
		Size:   int64(len(data)),
		Mime:   mime,
	}, nil
}

func mimeExtension(mime string) string {
	if i := strings.LastIndex(mime, "/"); i >= 0 && i < len(mime)-1 {
		return mime[i+1:]
	}
	return "bin"
}
