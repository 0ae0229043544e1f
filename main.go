package main

import (
	"log"
	"net/http"
	"os"

	"qrscan/internal/database"
	"qrscan/internal/handlers"
	"qrscan/internal/services"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
)

// CORS middleware
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		// Handle preflight requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	// Load environment variables from .env file when present
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using process environment")
	}

	db, err := database.New()
	if err != nil {
		log.Fatal("Failed to initialize database: ", err)
	}

	scanService := services.NewScanService(db)
	scanHandler := handlers.NewScanHandler(scanService)

	r := mux.NewRouter()

	// Scan endpoints. Static and collection routes are registered BEFORE
	// parameterized routes to avoid conflicts.
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

	// Statistics and export endpoints
	r.HandleFunc("/api/stats", scanHandler.GetStats).Methods("GET")
	r.HandleFunc("/api/export/csv", scanHandler.ExportCSV).Methods("GET")
	r.HandleFunc("/api/export/json", scanHandler.ExportJSON).Methods("GET")

	// QR generation endpoint
	r.HandleFunc("/api/qr/generate", scanHandler.GenerateQR).Methods("POST")

	// Health check endpoint
	r.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","message":"Backend is running"}`))
	}).Methods("GET")

	handler := corsMiddleware(r)

	port := os.Getenv("PORT")
	if port == "" {
		port = "9090"
	}

	log.Println("QR scan backend started on :" + port)
	log.Fatal(http.ListenAndServe(":"+port, handler))
}
