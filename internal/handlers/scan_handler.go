package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log"
	"net/http"
	"strconv"

	"qrscan/internal/qr"
	"qrscan/internal/services"

	"github.com/gorilla/mux"

	// Image formats accepted for upload.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// maxUploadBytes caps multipart uploads at 32 MB.
const maxUploadBytes = 32 << 20

type ScanHandler struct {
	scanService *services.ScanService
}

func NewScanHandler(scanService *services.ScanService) *ScanHandler {
	return &ScanHandler{
		scanService: scanService,
	}
}

// ScanResult is one detection plus its persisted record id.
type ScanResult struct {
	ID uint `json:"id"`
	qr.Detection
	WiFi *qr.WiFiNetwork `json:"wifi,omitempty"`
}

// Upload handles POST /api/scans/upload. It decodes the uploaded image,
// runs QR detection and persists every detected payload.
func (sh *ScanHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		http.Error(w, "Unsupported or corrupt image", http.StatusBadRequest)
		return
	}

	detections := qr.Detect(img)
	fileSizeKB := int(header.Size / 1024)

	results := make([]ScanResult, 0, len(detections))
	for _, detection := range detections {
		id, err := sh.scanService.Save(header.Filename, detection.Text, detection.Type, fileSizeKB, format)
		if err != nil {
			log.Printf("failed to save scan from %s: %v", header.Filename, err)
			http.Error(w, fmt.Sprintf("Failed to save scan: %v", err), http.StatusInternalServerError)
			return
		}
		result := ScanResult{ID: id, Detection: detection}
		if detection.Type == qr.TypeWiFi {
			network := qr.ParseWiFi(detection.Text)
			result.WiFi = &network
		}
		results = append(results, result)
	}

	writeJSON(w, map[string]interface{}{
		"filename": header.Filename,
		"count":    len(results),
		"results":  results,
	})
}

// List handles GET /api/scans?limit=
func (sh *ScanHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := sh.scanService.List(limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list scans: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

// ListByType handles GET /api/scans/type/{type}
func (sh *ScanHandler) ListByType(w http.ResponseWriter, r *http.Request) {
	qrType := mux.Vars(r)["type"]
	records, err := sh.scanService.ListByType(qrType)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list scans: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

// ListFavorites handles GET /api/scans/favorites
func (sh *ScanHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	records, err := sh.scanService.ListFavorites()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list favorites: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

// Search handles GET /api/scans/search?q=
func (sh *ScanHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "Missing query parameter q", http.StatusBadRequest)
		return
	}
	records, err := sh.scanService.Search(query)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to search scans: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

// ToggleFavorite handles POST /api/scans/{id}/favorite
func (sh *ScanHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := scanID(w, r)
	if !ok {
		return
	}
	state, err := sh.scanService.ToggleFavorite(id)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to toggle favorite: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"id": id, "is_favorite": state})
}

// UpdateTags handles PUT /api/scans/{id}/tags
func (sh *ScanHandler) UpdateTags(w http.ResponseWriter, r *http.Request) {
	id, ok := scanID(w, r)
	if !ok {
		return
	}
	var req struct {
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := sh.scanService.UpdateTags(id, req.Tags); err != nil {
		http.Error(w, fmt.Sprintf("Failed to update tags: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"id": id, "tags": req.Tags})
}

// UpdateNotes handles PUT /api/scans/{id}/notes
func (sh *ScanHandler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	id, ok := scanID(w, r)
	if !ok {
		return
	}
	var req struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := sh.scanService.UpdateNotes(id, req.Notes); err != nil {
		http.Error(w, fmt.Sprintf("Failed to update notes: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"id": id, "notes": req.Notes})
}

// Delete handles DELETE /api/scans/{id}
func (sh *ScanHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := scanID(w, r)
	if !ok {
		return
	}
	deleted, err := sh.scanService.Delete(id)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to delete scan: %v", err), http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "Scan not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]interface{}{"id": id, "deleted": true})
}

// ClearAll handles DELETE /api/scans
func (sh *ScanHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	if err := sh.scanService.ClearAll(); err != nil {
		http.Error(w, fmt.Sprintf("Failed to clear scans: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"cleared": true})
}

// GetStats handles GET /api/stats
func (sh *ScanHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := sh.scanService.Stats()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to compute stats: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

// ExportCSV handles GET /api/export/csv
func (sh *ScanHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	data, err := sh.scanService.ExportCSV()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to export CSV: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="qr_scans.csv"`)
	w.Write([]byte(data))
}

// ExportJSON handles GET /api/export/json
func (sh *ScanHandler) ExportJSON(w http.ResponseWriter, r *http.Request) {
	data, err := sh.scanService.ExportJSON()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to export JSON: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="qr_scans.json"`)
	w.Write([]byte(data))
}

// GenerateQR handles POST /api/qr/generate
func (sh *ScanHandler) GenerateQR(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Data string `json:"data"`
		Size int    `json:"size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Data == "" {
		http.Error(w, "Missing data field", http.StatusBadRequest)
		return
	}

	png, err := qr.Generate(req.Data, req.Size)
	if errors.Is(err, qr.ErrPayloadTooLarge) {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to generate QR code: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

// scanID parses the {id} path variable, replying 400 on garbage.
func scanID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		http.Error(w, "Invalid scan id", http.StatusBadRequest)
		return 0, false
	}
	return uint(id), true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
