//go:build linux && cgo

package utils

import (
	"bytes"
	"fmt"
	"image"

	"github.com/jdeng/goheif"
)

func decodeHEIF(data []byte) (image.Image, error) {
	img, err := goheif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode heif: %w", err)
	}
	return img, nil
}
