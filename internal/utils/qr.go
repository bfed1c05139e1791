package utils

import (
	"bytes"
	"image/png"
	"net/url"
	"strconv"
	"strings"

	"github.com/skip2/go-qrcode"
)

// TableOrderURL is the link printed on a table's QR sticker.
func TableOrderURL(baseURL string, outletID int64, tableID int64, qrToken string) string {
	q := url.Values{}
	q.Set("outletId", strconv.FormatInt(outletID, 10))
	q.Set("tableId", strconv.FormatInt(tableID, 10))
	q.Set("qr", qrToken)
	return strings.TrimRight(baseURL, "/") + "/order?" + q.Encode()
}

func GenerateQRPNG(content string, size int) ([]byte, error) {
	code, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, code.Image(size)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
