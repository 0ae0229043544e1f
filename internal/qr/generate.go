package qr

import (
	"errors"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the rendered edge length in pixels when the caller does
// not ask for one.
const DefaultSize = 300

// ErrPayloadTooLarge reports content that exceeds the capacity of the
// largest QR version at the Highest recovery level.
var ErrPayloadTooLarge = errors.New("payload exceeds QR code capacity")

// Generate renders text as a square black-on-white PNG of size×size
// pixels at the Highest recovery level (~30% symbol recovery), with the
// QR version fitted to the payload automatically. Deterministic for
// identical input. Oversized payloads fail with ErrPayloadTooLarge
// rather than being truncated.
func Generate(text string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(text, qrcode.Highest, size)
	if err != nil {
		if strings.Contains(err.Error(), "content too long") {
			return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(text))
		}
		return nil, fmt.Errorf("failed to encode QR code: %v", err)
	}
	return png, nil
}
