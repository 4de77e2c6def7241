// Package qr renders gateway QR payloads as images for clients that cannot
// draw them.
package qr

import (
	"encoding/base64"

	"booking-checkout/internal/pkg/errs"

	"github.com/skip2/go-qrcode"
)

const size = 256

func PNG(payload string) ([]byte, error) {
	if payload == "" {
		return nil, errs.New("empty qr payload")
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, errs.Wrap(err, "encode qr")
	}
	return png, nil
}

// DataURI is the PNG embedded as a data: URI.
func DataURI(payload string) (string, error) {
	png, err := PNG(payload)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
