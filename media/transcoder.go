// Package media downsizes oversized photos before they are uploaded to the
// uploader's Drive. Anything small enough is passed through untouched so the
// common path costs nothing.
package media

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
)

const (
	// MaxPassthroughBytes is the size above which an upload gets recompressed.
	MaxPassthroughBytes = 5 << 20

	maxDimension = 1920
	jpegQuality  = 70
)

// ErrUnsupportedMedia means an oversized upload could not be decoded as an
// image. Callers reject the request with a client error, never crash.
var ErrUnsupportedMedia = errors.New("media: not a decodable image")

// Prepare returns the bytes and mime type to upload. Inputs at or under
// MaxPassthroughBytes are returned unchanged with the declared mime type.
// Larger inputs are decoded, flattened to plain RGB, downscaled so neither
// dimension exceeds 1920 px and re-encoded as quality-70 JPEG.
func Prepare(data []byte, declaredMime string) ([]byte, string, error) {
	if len(data) <= MaxPassthroughBytes {
		return data, declaredMime, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", ErrUnsupportedMedia
	}

	flat := flatten(src)
	scaled := downscale(flat)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, "", err
	}

	return buf.Bytes(), "image/jpeg", nil
}

// flatten composites the image over a white background, dropping any alpha
// or palette color mode. JPEG has no alpha channel.
func flatten(src image.Image) *image.RGBA {
	bounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	xdraw.Draw(dst, dst.Bounds(), image.White, image.Point{}, xdraw.Src)
	xdraw.Draw(dst, dst.Bounds(), src, bounds.Min, xdraw.Over)
	return dst
}

func downscale(src *image.RGBA) *image.RGBA {
	w := src.Bounds().Dx()
	h := src.Bounds().Dy()
	if w <= maxDimension && h <= maxDimension {
		return src
	}

	var nw, nh int
	if w >= h {
		nw = maxDimension
		nh = h * maxDimension / w
	} else {
		nh = maxDimension
		nw = w * maxDimension / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}
