//go:build !linux || !cgo

package utils

import "image"

// Builds without cgo cannot decode HEIF; such uploads are rejected.
func decodeHEIF(_ []byte) (image.Image, error) {
	return nil, ErrUnsupportedImage
}
