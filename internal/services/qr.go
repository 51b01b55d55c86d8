package services

import (
	"github.com/skip2/go-qrcode"
)

const DefaultQRSize = 256

// VerificationQR renders content (usually the public verification link of a
// folio) as a PNG.
func VerificationQR(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	return qrcode.Encode(content, qrcode.Medium, size)
}
