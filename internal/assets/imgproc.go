package assets

import (
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"

	"golang.org/x/image/draw"
)

const jpegQuality = 90

// shrinkImage rescales the image at path in place so it fits within
// maxW x maxH, preserving aspect ratio. Images already within bounds are
// left untouched. Only JPEG and PNG are rescaled; other formats pass
// through as delivered.
func shrinkImage(path string, maxW, maxH int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}

	src, format, err := image.Decode(f)
	f.Close()

	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	if format != "jpeg" && format != "png" {
		return nil
	}

	bounds := src.Bounds()

	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxW && h <= maxH {
		return nil
	}

	tw, th := fitWithin(w, h, maxW, maxH)

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to rewrite image: %w", err)
	}
	defer out.Close()

	switch format {
	case "png":
		err = png.Encode(out, dst)
	default:
		err = jpeg.Encode(out, dst, &jpeg.Options{Quality: jpegQuality})
	}

	if err != nil {
		return fmt.Errorf("failed to encode rescaled image: %w", err)
	}

	return nil
}

// fitWithin scales (w, h) down to fit inside (maxW, maxH) keeping the
// aspect ratio. Dimensions never round down to zero.
func fitWithin(w, h, maxW, maxH int) (int, int) {
	tw, th := maxW, h*maxW/w
	if th > maxH {
		tw, th = w*maxH/h, maxH
	}

	if tw < 1 {
		tw = 1
	}

	if th < 1 {
		th = 1
	}

	return tw, th
}
