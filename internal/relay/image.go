package relay

import (
	"bytes"

	"github.com/disintegration/imaging"
)

// maxImageDim caps the longest edge of images sent to the model. WeChat
// screenshots are commonly 2x retina captures; the model does not need
// the extra pixels and the base64 payload quadruples the request size.
const maxImageDim = 1280

// shrinkImage downscales oversized images before they are embedded as a
// data URL. Bytes that do not decode are passed through untouched; the
// API rejects them with a clearer error than we could produce here.
func shrinkImage(data []byte, mime string) ([]byte, string) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return data, mime
	}
	b := img.Bounds()
	if b.Dx() <= maxImageDim && b.Dy() <= maxImageDim {
		return data, mime
	}
	resized := imaging.Fit(img, maxImageDim, maxImageDim, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return data, mime
	}
	return buf.Bytes(), "image/jpeg"
}
