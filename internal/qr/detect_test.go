package qr

import (
	"bytes"
	"image"
	"image/draw"
	"image/png"
	"testing"
)

// renderQR generates a QR PNG for payload and decodes it back to an image.
func renderQR(t *testing.T, payload string, size int) image.Image {
	t.Helper()
	data, err := Generate(payload, size)
	if err != nil {
		t.Fatalf("Generate(%q): %v", payload, err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode generated PNG: %v", err)
	}
	return img
}

func TestDetectRoundTrip(t *testing.T) {
	payload := "https://example.com/round-trip"
	img := renderQR(t, payload, 300)

	detections := Detect(img)
	if len(detections) != 1 {
		t.Fatalf("Detect found %d symbols, want 1", len(detections))
	}
	if detections[0].Text != payload {
		t.Errorf("decoded text %q, want %q", detections[0].Text, payload)
	}
	if detections[0].Type != TypeURL {
		t.Errorf("classified as %q, want %q", detections[0].Type, TypeURL)
	}
	if detections[0].Timestamp.IsZero() {
		t.Error("detection timestamp not set")
	}
}

func TestDetectClassifiesWiFiPayload(t *testing.T) {
	payload := "WIFI:S:Home;T:WPA;P:secret;"
	img := renderQR(t, payload, 300)

	detections := Detect(img)
	if len(detections) != 1 {
		t.Fatalf("Detect found %d symbols, want 1", len(detections))
	}
	if detections[0].Type != TypeWiFi {
		t.Errorf("classified as %q, want %q", detections[0].Type, TypeWiFi)
	}
}

func TestDetectEmptyImage(t *testing.T) {
	// A uniform white image has no symbols; detection must come back
	// empty without erroring through any enhancement pass.
	img := image.NewRGBA(image.Rect(0, 0, 120, 120))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	detections := Detect(img)
	if len(detections) != 0 {
		t.Fatalf("Detect on blank image found %d symbols, want 0", len(detections))
	}
}

func TestDetectDedupsIdenticalSymbols(t *testing.T) {
	payload := "https://example.com/twice"
	symbol := renderQR(t, payload, 200)

	// Two copies of the same symbol side by side on one canvas. However
	// many the reader finds, the identical payload must collapse to one
	// detection.
	canvas := image.NewRGBA(image.Rect(0, 0, 440, 240))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(canvas, image.Rect(10, 20, 210, 220), symbol, image.Point{}, draw.Src)
	draw.Draw(canvas, image.Rect(230, 20, 430, 220), symbol, image.Point{}, draw.Src)

	detections := Detect(canvas)
	if len(detections) != 1 {
		t.Fatalf("Detect found %d detections, want 1 after dedup", len(detections))
	}
	if detections[0].Text != payload {
		t.Errorf("decoded text %q, want %q", detections[0].Text, payload)
	}
}

func TestDetectGrayscaleInput(t *testing.T) {
	payload := "12345"
	img := renderQR(t, payload, 240)

	detections := Detect(Grayscale(img))
	if len(detections) != 1 {
		t.Fatalf("Detect found %d symbols, want 1", len(detections))
	}
	if detections[0].Type != TypeNumeric {
		t.Errorf("classified as %q, want %q", detections[0].Type, TypeNumeric)
	}
}
