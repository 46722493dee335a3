// Package enhance derives the named preprocessing variants from an
// uploaded ultrasound image. The filter is deterministic for identical
// input and parameters. When the advanced path cannot run, a simple
// brightness/contrast pass populates the same variant keys so selection
// logic downstream never needs to know which path produced the set.
package enhance

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"

	"github.com/rs/zerolog"

	"babygen/internal/domain"
)

// Settings hold the tunables of the advanced enhancement path.
type Settings struct {
	Contrast   float64
	Brightness float64
	// Normalization target range, matching the ultrasound contrast
	// window used by the pipeline.
	NormalizeLow  uint8
	NormalizeHigh uint8
	// ROI side as a fraction of the shorter image edge.
	ROIFraction float64
}

// DefaultSettings mirror the pipeline defaults.
func DefaultSettings() Settings {
	return Settings{
		Contrast:      1.5,
		Brightness:    1.2,
		NormalizeLow:  50,
		NormalizeHigh: 230,
		ROIFraction:   0.8,
	}
}

// Filter produces enhancement sets. Zero value is not usable; construct
// with NewFilter.
type Filter struct {
	settings Settings
	log      zerolog.Logger
}

func NewFilter(settings Settings, log zerolog.Logger) *Filter {
	if settings.ROIFraction <= 0 || settings.ROIFraction > 1 {
		settings.ROIFraction = 0.8
	}
	return &Filter{settings: settings, log: log}
}

// Fingerprint identifies an upload + parameter combination. It keys the
// enhancement cache and the session's enhancement set.
func Fingerprint(data []byte, contrast, brightness float64) string {
	h := sha256.New()
	h.Write(data)
	fmt.Fprintf(h, "|%.4f|%.4f", contrast, brightness)
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Enhance runs the advanced path and falls back to the simple
// brightness/contrast pass on internal failure. The fallback is never
// surfaced as fatal; only a warning is logged and the Simple marker set.
func (f *Filter) Enhance(data []byte, contrast, brightness float64) (*domain.EnhancementSet, error) {
	if contrast <= 0 {
		contrast = f.settings.Contrast
	}
	if brightness <= 0 {
		brightness = f.settings.Brightness
	}
	fp := Fingerprint(data, contrast, brightness)

	variants, err := f.advanced(data)
	if err != nil {
		f.log.Warn().Err(err).Msg("advanced enhancement failed, using simple enhancement")
		variants, err = f.simple(data, contrast, brightness)
		if err != nil {
			return nil, fmt.Errorf("enhance image: %w", err)
		}
		return &domain.EnhancementSet{Fingerprint: fp, Variants: variants, Simple: true}, nil
	}
	return &domain.EnhancementSet{Fingerprint: fp, Variants: variants}, nil
}

// advanced is the full pipeline: grayscale, histogram equalization,
// denoise, ROI extraction, normalization, and a mild sharpen for the
// diffusion-optimized variant.
func (f *Filter) advanced(data []byte) (map[string][]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	gray := toGray(src)
	b := gray.Bounds()
	if b.Dx() < 8 || b.Dy() < 8 {
		return nil, fmt.Errorf("image %dx%d too small for roi extraction", b.Dx(), b.Dy())
	}

	equalized := equalize(gray)
	denoised := boxBlur(equalized)
	roi := centerROI(denoised, f.settings.ROIFraction)
	normalized := normalize(roi, f.settings.NormalizeLow, f.settings.NormalizeHigh)
	sharpened := sharpen(normalized)

	variants := make(map[string][]byte, 4)
	for name, img := range map[string]*image.Gray{
		domain.VariantOriginal:    gray,
		domain.VariantFaceROI:     roi,
		domain.VariantNormalized:  normalized,
		domain.VariantSDOptimized: sharpened,
	} {
		encoded, err := encodePNG(img)
		if err != nil {
			return nil, err
		}
		variants[name] = encoded
	}
	return variants, nil
}

// simple applies contrast then brightness and reuses the result for
// every non-original variant key.
func (f *Filter) simple(data []byte, contrast, brightness float64) (map[string][]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	gray := toGray(src)
	adjusted := image.NewGray(gray.Bounds())
	for i, v := range gray.Pix {
		adjusted.Pix[i] = clamp(((float64(v)-128)*contrast + 128) * brightness)
	}

	original, err := encodePNG(gray)
	if err != nil {
		return nil, err
	}
	enhanced, err := encodePNG(adjusted)
	if err != nil {
		return nil, err
	}
	return map[string][]byte{
		domain.VariantOriginal:    original,
		domain.VariantFaceROI:     enhanced,
		domain.VariantNormalized:  enhanced,
		domain.VariantSDOptimized: enhanced,
	}, nil
}

func toGray(src image.Image) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(x-b.Min.X, y-b.Min.Y, color.GrayModel.Convert(src.At(x, y)))
		}
	}
	return dst
}

// equalize spreads the intensity histogram over the full range, the
// contrast-enhancement step of the advanced path.
func equalize(src *image.Gray) *image.Gray {
	var hist [256]int
	for _, v := range src.Pix {
		hist[v]++
	}
	total := len(src.Pix)
	if total == 0 {
		return src
	}
	var lut [256]uint8
	cum := 0
	for i := 0; i < 256; i++ {
		cum += hist[i]
		lut[i] = uint8(cum * 255 / total)
	}
	dst := image.NewGray(src.Bounds())
	for i, v := range src.Pix {
		dst.Pix[i] = lut[v]
	}
	return dst
}

// boxBlur is a 3x3 mean filter used as a cheap denoise step.
func boxBlur(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(b)
	copy(dst.Pix, src.Pix)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			sum := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					sum += int(src.GrayAt(x+dx, y+dy).Y)
				}
			}
			dst.SetGray(x, y, color.Gray{Y: uint8(sum / 9)})
		}
	}
	return dst
}

// centerROI extracts a centered square region. Without a face detector
// the pipeline always uses the center-weighted region the original
// enhancement falls back to.
func centerROI(src *image.Gray, fraction float64) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	side := int(float64(min(w, h)) * fraction)
	if side < 1 {
		side = 1
	}
	x0 := (w - side) / 2
	y0 := (h - side) / 2
	dst := image.NewGray(image.Rect(0, 0, side, side))
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			dst.SetGray(x, y, src.GrayAt(x0+x, y0+y))
		}
	}
	return dst
}

// normalize linearly maps the observed intensity range onto [low, high].
func normalize(src *image.Gray, low, high uint8) *image.Gray {
	minV, maxV := uint8(255), uint8(0)
	for _, v := range src.Pix {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	dst := image.NewGray(src.Bounds())
	span := int(maxV) - int(minV)
	target := int(high) - int(low)
	for i, v := range src.Pix {
		if span == 0 {
			dst.Pix[i] = low
			continue
		}
		dst.Pix[i] = uint8(int(low) + (int(v)-int(minV))*target/span)
	}
	return dst
}

// sharpen applies the mild 3x3 kernel used for the sd_optimized variant.
func sharpen(src *image.Gray) *image.Gray {
	kernel := [3][3]float64{
		{0, -0.5, 0},
		{-0.5, 3, -0.5},
		{0, -0.5, 0},
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(b)
	copy(dst.Pix, src.Pix)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			sum := 0.0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					sum += kernel[dy+1][dx+1] * float64(src.GrayAt(x+dx, y+dy).Y)
				}
			}
			dst.SetGray(x, y, color.Gray{Y: clamp(sum)})
		}
	}
	return dst
}

func encodePNG(img image.Image) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func clamp(v float64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v)
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
