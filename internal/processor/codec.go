package processor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"

	_ "golang.org/x/image/webp"
)

func decodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("decode source image: empty input")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	return img, nil
}

func encodeImage(img image.Image, format Format, opts Options) ([]byte, error) {
	if img == nil {
		return nil, ErrNotLoaded
	}

	var buf bytes.Buffer
	switch format {
	case FormatPNG:
		encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case FormatGIF:
		if err := gif.Encode(&buf, img, &gif.Options{NumColors: 256}); err != nil {
			return nil, fmt.Errorf("encode gif: %w", err)
		}
	default:
		if err := jpeg.Encode(&buf, flatten(img, opts.AlphaMaskColor), &jpeg.Options{Quality: opts.quality()}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// flatten composites img over an opaque background. JPEG has no alpha, so
// transparent pixels would otherwise come out black.
func flatten(img image.Image, background color.NRGBA) image.Image {
	if opaque, ok := img.(interface{ Opaque() bool }); ok && opaque.Opaque() {
		return img
	}
	background.A = 255

	bounds := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Over)
	return dst
}
