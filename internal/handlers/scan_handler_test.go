package handlers

import (
	"bytes"
	"encoding/json"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"qrscan/internal/models"
	"qrscan/internal/qr"
	"qrscan/internal/services"

	"github.com/gorilla/mux"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestRouter wires the handler against an in-memory database with the
// same routes main registers.
func newTestRouter(t *testing.T) (*mux.Router, *services.ScanService) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.AutoMigrate(&models.ScanRecord{}, &models.DailyStat{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	scanService := services.NewScanService(db)
	scanHandler := NewScanHandler(scanService)

	r := mux.NewRouter()
	r.HandleFunc("/api/scans/upload", scanHandler.Upload).Methods("POST")
	r.HandleFunc("/api/scans/favorites", scanHandler.ListFavorites).Methods("GET")
	r.HandleFunc("/api/scans/search", scanHandler.Search).Methods("GET")
	r.HandleFunc("/api/scans/type/{type}", scanHandler.ListByType).Methods("GET")
	r.HandleFunc("/api/scans", scanHandler.List).Methods("GET")
	r.HandleFunc("/api/scans", scanHandler.ClearAll).Methods("DELETE")
	r.HandleFunc("/api/scans/{id}/favorite", scanHandler.ToggleFavorite).Methods("POST")
	r.HandleFunc("/api/scans/{id}/tags", scanHandler.UpdateTags).Methods("PUT")
	r.HandleFunc("/api/scans/{id}/notes", scanHandler.UpdateNotes).Methods("PUT")
	r.HandleFunc("/api/scans/{id}", scanHandler.Delete).Methods("DELETE")
	r.HandleFunc("/api/stats", scanHandler.GetStats).Methods("GET")
	r.HandleFunc("/api/export/csv", scanHandler.ExportCSV).Methods("GET")
	r.HandleFunc("/api/export/json", scanHandler.ExportJSON).Methods("GET")
	r.HandleFunc("/api/qr/generate", scanHandler.GenerateQR).Methods("POST")
	return r, scanService
}

// multipartImage builds a multipart body carrying a QR PNG for payload.
func multipartImage(t *testing.T, filename, payload string) (*bytes.Buffer, string) {
	t.Helper()

	data, err := qr.Generate(payload, 300)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	writer.Close()
	return &body, writer.FormDataContentType()
}

func TestUploadDetectsAndPersists(t *testing.T) {
	router, scanService := newTestRouter(t)

	body, contentType := multipartImage(t, "poster.png", "https://example.com/upload")
	req := httptest.NewRequest(http.MethodPost, "/api/scans/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Filename string `json:"filename"`
		Count    int    `json:"count"`
		Results  []struct {
			ID   uint   `json:"id"`
			Data string `json:"data"`
			Type string `json:"type"`
		} `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 1 || len(resp.Results) != 1 {
		t.Fatalf("count = %d, want 1", resp.Count)
	}
	if resp.Results[0].Data != "https://example.com/upload" {
		t.Errorf("decoded payload = %q", resp.Results[0].Data)
	}
	if resp.Results[0].Type != qr.TypeURL {
		t.Errorf("type = %q, want url", resp.Results[0].Type)
	}

	records, err := scanService.List(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].Filename != "poster.png" {
		t.Fatalf("record not persisted with filename, got %v", records)
	}
	if records[0].FileFormat != "png" {
		t.Errorf("file_format = %q, want png", records[0].FileFormat)
	}
}

func TestUploadWiFiPayloadIncludesParsedNetwork(t *testing.T) {
	router, _ := newTestRouter(t)

	body, contentType := multipartImage(t, "wifi.png", "WIFI:S:CoffeeShop;T:nopass;")
	req := httptest.NewRequest(http.MethodPost, "/api/scans/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d", rec.Code)
	}
	var resp struct {
		Results []struct {
			Type string          `json:"type"`
			WiFi *qr.WiFiNetwork `json:"wifi"`
		} `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].WiFi == nil {
		t.Fatalf("wifi payload missing parsed network: %s", rec.Body.String())
	}
	network := resp.Results[0].WiFi
	if network.SSID != "CoffeeShop" || network.Security != "nopass" || network.Password != "" {
		t.Errorf("parsed network = %+v", network)
	}
}

func TestUploadRejectsNonImage(t *testing.T) {
	router, _ := newTestRouter(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, _ := writer.CreateFormFile("file", "notes.txt")
	part.Write([]byte("not an image"))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/scans/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGenerateEndpointReturnsPNG(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/qr/generate",
		strings.NewReader(`{"data":"https://example.com","size":300}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q, want image/png", ct)
	}
	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("body is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 300 {
		t.Errorf("rendered %dpx, want 300px", img.Bounds().Dx())
	}
}

func TestGenerateEndpointCapacityError(t *testing.T) {
	router, _ := newTestRouter(t)

	payload, _ := json.Marshal(map[string]interface{}{
		"data": strings.Repeat("A", 4000),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/qr/generate", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestDeleteEndpointMissingID(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/scans/4242", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
