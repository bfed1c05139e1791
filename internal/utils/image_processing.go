package utils

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrUnsupportedImage = errors.New("unsupported image")

// proofContentTypes are the uploads accepted as transfer receipts. Phones
// send HEIC often enough that it stays on the list.
var proofContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
	"image/bmp":  true,
	"image/tiff": true,
	"image/heic": true,
	"image/heif": true,
}

type ProofImageMeta struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

func IsProofContentType(contentType string) bool {
	ct := strings.TrimSpace(strings.ToLower(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return proofContentTypes[ct]
}

func DetectContentType(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if isHeifFamily(data) {
		return "image/heic"
	}
	sample := data
	if len(sample) > 512 {
		sample = sample[:512]
	}
	return http.DetectContentType(sample)
}

// isHeifFamily checks the ISO BMFF ftyp box brand.
func isHeifFamily(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "hevc", "hevx", "mif1", "msf1", "heif":
		return true
	}
	return false
}

func decodeUpright(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if !isHeifFamily(data) {
			return nil, "", ErrUnsupportedImage
		}
		heif, heifErr := decodeHEIF(data)
		if heifErr != nil {
			return nil, "", heifErr
		}
		return heif, "heic", nil
	}
	if !strings.EqualFold(format, "jpeg") {
		return img, format, nil
	}
	return applyExifOrientation(img, data), format, nil
}

// applyExifOrientation ignores EXIF errors; most screenshots carry none.
func applyExifOrientation(img image.Image, data []byte) image.Image {
	ex, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return img
	}
	tag, err := ex.Get(exif.Orientation)
	if err != nil {
		return img
	}
	orient, err := tag.Int(0)
	if err != nil {
		return img
	}
	switch orient {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	}
	return img
}

// NormalizeProofImage re-encodes an uploaded payment proof as an upright JPEG
// no larger than maxSide on either edge.
func NormalizeProofImage(data []byte, maxSide int, quality int) ([]byte, ProofImageMeta, error) {
	if maxSide <= 0 {
		return nil, ProofImageMeta{}, errors.New("maxSide must be > 0")
	}
	img, format, err := decodeUpright(data)
	if err != nil {
		return nil, ProofImageMeta{}, err
	}

	bounds := img.Bounds()
	meta := ProofImageMeta{Width: bounds.Dx(), Height: bounds.Dy(), Format: format}

	if bounds.Dx() > maxSide || bounds.Dy() > maxSide {
		img = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, ProofImageMeta{}, err
	}
	return buf.Bytes(), meta, nil
}
