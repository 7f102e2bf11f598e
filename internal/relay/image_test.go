package relay

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestShrinkImageDownscalesLarge(t *testing.T) {
	out, mime := shrinkImage(encodePNG(t, 2560, 1440), "image/png")
	if mime != "image/jpeg" {
		t.Fatalf("mime = %q, want image/jpeg", mime)
	}
	img, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode resized: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 1280 || b.Dy() != 720 {
		t.Fatalf("resized to %dx%d, want 1280x720", b.Dx(), b.Dy())
	}
}

func TestShrinkImageKeepsSmall(t *testing.T) {
	in := encodePNG(t, 640, 480)
	out, mime := shrinkImage(in, "image/png")
	if mime != "image/png" {
		t.Fatalf("mime = %q, want image/png", mime)
	}
	if !bytes.Equal(out, in) {
		t.Fatal("small image bytes changed")
	}
}

func TestShrinkImagePassesThroughUndecodable(t *testing.T) {
	in := []byte("not an image")
	out, mime := shrinkImage(in, "image/jpeg")
	if !bytes.Equal(out, in) || mime != "image/jpeg" {
		t.Fatal("undecodable bytes should pass through unchanged")
	}
}
