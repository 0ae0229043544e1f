package qr

import (
	"image"
	"log"
	"strings"
	"time"

	"github.com/makiuchi-d/gozxing"
	multiqrcode "github.com/makiuchi-d/gozxing/multi/qrcode"
)

// Detection is one decoded QR symbol found in an image.
type Detection struct {
	Text      string    `json:"data"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

var decodeHints = map[gozxing.DecodeHintType]interface{}{
	gozxing.DecodeHintType_TRY_HARDER: true,
}

// Detect finds QR symbols in img. The raw raster is tried first; when it
// yields nothing, each enhancement candidate is tried in order and the
// first candidate with at least one symbol wins (results are not merged
// across candidates). Duplicate payloads within the same image collapse
// to one detection. An image without symbols returns an empty slice,
// never an error.
func Detect(img image.Image) []Detection {
	results := decodeAll(img)
	if len(results) == 0 {
		for _, candidate := range Enhance(img) {
			results = decodeAll(candidate)
			if len(results) > 0 {
				break
			}
		}
	}

	detections := make([]Detection, 0, len(results))
	seen := make(map[string]bool, len(results))
	for _, result := range results {
		text := strings.ToValidUTF8(result.GetText(), "")
		if text == "" {
			log.Printf("warning: skipping QR symbol with undecodable payload")
			continue
		}
		if seen[text] {
			continue
		}
		seen[text] = true
		detections = append(detections, Detection{
			Text:      text,
			Type:      Classify(text),
			Timestamp: time.Now(),
		})
	}
	return detections
}

// decodeAll runs the multi-symbol QR reader over one raster. A raster
// with no symbols is a normal outcome and comes back empty.
func decodeAll(img image.Image) []*gozxing.Result {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		log.Printf("warning: failed to binarize image for decoding: %v", err)
		return nil
	}
	results, err := multiqrcode.NewQRCodeMultiReader().DecodeMultiple(bmp, decodeHints)
	if err != nil {
		return nil
	}
	return results
}
