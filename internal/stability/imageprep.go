package stability

import (
	"bytes"
	"image"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

// maxUploadDim is the largest edge the generation API prefers.
const maxUploadDim = 1024

// FitForUpload re-encodes the image as PNG, downscaling so neither edge
// exceeds 1024px while preserving aspect ratio. Images already within
// bounds are only re-encoded.
func FitForUpload(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > maxUploadDim || h > maxUploadDim {
		scale := float64(maxUploadDim) / float64(w)
		if h > w {
			scale = float64(maxUploadDim) / float64(h)
		}
		nw := int(float64(w) * scale)
		nh := int(float64(h) * scale)
		if nw < 1 {
			nw = 1
		}
		if nh < 1 {
			nh = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
		src = dst
	}
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, src); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
