// Package imaging decodes uploaded images and encodes them for the remote API.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"strconv"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"golang.org/x/text/message"

	"webui/internal/i18n"
)

// DefaultJPEGQuality matches what the vision endpoint is sent.
const DefaultJPEGQuality = 85

// ErrNoImage is returned when an operation receives a nil image.
var ErrNoImage = errors.New("imaging: no image")

// Decode reads PNG, JPEG, GIF or WebP bytes and reports the format name.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrNoImage
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("imaging: decode: %w", err)
	}
	return img, format, nil
}

// Dimensions returns width and height of img, zero for nil.
func Dimensions(img image.Image) (int, int) {
	if img == nil {
		return 0, 0
	}
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

// Info describes the pixel size of img in the printer's language.
func Info(p *message.Printer, img image.Image) string {
	if img == nil {
		return p.Sprintf(i18n.MsgNoImage)
	}
	w, h := Dimensions(img)
	return p.Sprintf(i18n.MsgImageInfo, strconv.Itoa(w), strconv.Itoa(h))
}

// ToRGB flattens img onto an opaque white canvas anchored at the origin.
func ToRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// EncodeJPEG flattens img and encodes it as JPEG.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if img == nil {
		return nil, ErrNoImage
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, ToRGB(img), &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("imaging: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodePNG encodes img losslessly.
func EncodePNG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, ErrNoImage
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("imaging: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURL returns img as a base64 JPEG data URL.
func DataURL(img image.Image) (string, error) {
	data, err := EncodeJPEG(img, DefaultJPEGQuality)
	if err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// PNGDataURL returns img as a base64 PNG data URL.
func PNGDataURL(img image.Image) (string, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}
