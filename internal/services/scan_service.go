package services

import (
	"bytes"
	"crypto/md5"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"qrscan/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ScanService owns all persisted scan state. Mutations are serialized by
// mu and run inside a transaction that either commits fully or rolls
// back fully; readers query the pool directly.
type ScanService struct {
	db *gorm.DB
	mu sync.Mutex
}

func NewScanService(db *gorm.DB) *ScanService {
	return &ScanService{db: db}
}

// HashData returns the dedup key for a payload. MD5 is a content
// fingerprint here, not a security boundary.
func HashData(data string) string {
	sum := md5.Sum([]byte(data))
	return hex.EncodeToString(sum[:])
}

// previewOf truncates a payload for list views.
func previewOf(data string) string {
	runes := []rune(data)
	if len(runes) > 100 {
		return string(runes[:97]) + "..."
	}
	return data
}

// Save persists one decoded payload. A payload whose hash already exists
// returns the existing record id without writing anything. A new record
// also re-aggregates today's DailyStat inside the same transaction.
func (s *ScanService) Save(filename, data, qrType string, fileSizeKB int, fileFormat string) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := HashData(data)
	var id uint
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing models.ScanRecord
		err := tx.Select("id").Where("data_hash = ?", hash).First(&existing).Error
		if err == nil {
			id = existing.ID
			return nil
		}
		if err != gorm.ErrRecordNotFound {
			return fmt.Errorf("failed to check duplicate for hash %s: %v", hash, err)
		}

		now := time.Now()
		record := models.ScanRecord{
			Filename:    filename,
			Data:        data,
			Type:        qrType,
			DataPreview: previewOf(data),
			DataHash:    hash,
			FileSizeKB:  fileSizeKB,
			FileFormat:  fileFormat,
			ScanDate:    now.Format("2006-01-02"),
			ScanTime:    now.Format("15:04:05"),
			Tags:        "[]",
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to insert scan for hash %s: %v", hash, err)
		}
		id = record.ID

		return updateDailyStats(tx, record.ScanDate)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// updateDailyStats re-aggregates the whole day instead of incrementing
// counters, so daily_stats can never drift from the scans table.
func updateDailyStats(tx *gorm.DB, date string) error {
	var total int64
	if err := tx.Model(&models.ScanRecord{}).Where("scan_date = ?", date).Count(&total).Error; err != nil {
		return fmt.Errorf("failed to count scans for %s: %v", date, err)
	}
	var unique int64
	if err := tx.Model(&models.ScanRecord{}).Where("scan_date = ?", date).
		Distinct("data_hash").Count(&unique).Error; err != nil {
		return fmt.Errorf("failed to count unique scans for %s: %v", date, err)
	}

	var rows []struct {
		QrType string
		Count  int
	}
	if err := tx.Model(&models.ScanRecord{}).Select("qr_type, count(*) as count").
		Where("scan_date = ?", date).Group("qr_type").Scan(&rows).Error; err != nil {
		return fmt.Errorf("failed to aggregate scan types for %s: %v", date, err)
	}
	byType := make(map[string]int, len(rows))
	for _, row := range rows {
		byType[row.QrType] = row.Count
	}
	encoded, err := json.Marshal(byType)
	if err != nil {
		return fmt.Errorf("failed to encode type counts for %s: %v", date, err)
	}

	stat := models.DailyStat{
		Date:        date,
		TotalScans:  int(total),
		UniqueScans: int(unique),
		ByType:      string(encoded),
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"total_scans", "unique_scans", "by_type"}),
	}).Create(&stat).Error; err != nil {
		return fmt.Errorf("failed to upsert daily stats for %s: %v", date, err)
	}
	return nil
}

// List returns the most recent scans, newest first.
func (s *ScanService) List(limit int) ([]models.ScanRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []models.ScanRecord
	err := s.db.Order("created_at DESC, id DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %v", err)
	}
	return records, nil
}

// ListByType returns all scans with the given type tag, newest first.
func (s *ScanService) ListByType(qrType string) ([]models.ScanRecord, error) {
	var records []models.ScanRecord
	err := s.db.Where("qr_type = ?", qrType).Order("created_at DESC, id DESC").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list scans of type %s: %v", qrType, err)
	}
	return records, nil
}

// ListFavorites returns all favorited scans, newest first.
func (s *ScanService) ListFavorites() ([]models.ScanRecord, error) {
	var records []models.ScanRecord
	err := s.db.Where("is_favorite = ?", true).Order("created_at DESC, id DESC").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %v", err)
	}
	return records, nil
}

// Search matches query as a case-insensitive substring of the payload,
// the filename, or the tags.
func (s *ScanService) Search(query string) ([]models.ScanRecord, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	var records []models.ScanRecord
	err := s.db.Where("LOWER(qr_data) LIKE ? OR LOWER(filename) LIKE ? OR LOWER(tags) LIKE ?",
		pattern, pattern, pattern).
		Order("created_at DESC, id DESC").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search scans: %v", err)
	}
	return records, nil
}

// ToggleFavorite flips the favorite flag and returns the new state. An
// unknown id is a no-op returning false.
func (s *ScanService) ToggleFavorite(id uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var state bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var record models.ScanRecord
		err := tx.Select("id", "is_favorite").First(&record, id).Error
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load scan %d: %v", id, err)
		}
		state = !record.IsFavorite
		if err := tx.Model(&models.ScanRecord{}).Where("id = ?", id).
			Update("is_favorite", state).Error; err != nil {
			return fmt.Errorf("failed to update favorite for scan %d: %v", id, err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return state, nil
}

// UpdateTags overwrites the tag list of a scan. Last write wins.
func (s *ScanService) UpdateTags(id uint, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags for scan %d: %v", id, err)
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ScanRecord{}).Where("id = ?", id).
			Update("tags", string(encoded)).Error; err != nil {
			return fmt.Errorf("failed to update tags for scan %d: %v", id, err)
		}
		return nil
	})
}

// UpdateNotes overwrites the notes of a scan. Last write wins.
func (s *ScanService) UpdateNotes(id uint, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ScanRecord{}).Where("id = ?", id).
			Update("notes", notes).Error; err != nil {
			return fmt.Errorf("failed to update notes for scan %d: %v", id, err)
		}
		return nil
	})
}

// Delete hard-deletes a scan and reports whether a row was removed.
func (s *ScanService) Delete(id uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&models.ScanRecord{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete scan %d: %v", id, result.Error)
		}
		deleted = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// ClearAll removes every scan and every daily aggregate.
func (s *ScanService) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.ScanRecord{}).Error; err != nil {
			return fmt.Errorf("failed to clear scans: %v", err)
		}
		if err := tx.Where("1 = 1").Delete(&models.DailyStat{}).Error; err != nil {
			return fmt.Errorf("failed to clear daily stats: %v", err)
		}
		return nil
	})
}

// Stats computes the overall statistics snapshot fresh from current rows.
func (s *ScanService) Stats() (*models.Stats, error) {
	stats := &models.Stats{
		ByType:         map[string]int{},
		RecentActivity: map[string]int{},
	}

	var total int64
	if err := s.db.Model(&models.ScanRecord{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count scans: %v", err)
	}
	stats.TotalScans = int(total)

	var unique int64
	if err := s.db.Model(&models.ScanRecord{}).Distinct("data_hash").Count(&unique).Error; err != nil {
		return nil, fmt.Errorf("failed to count unique scans: %v", err)
	}
	stats.UniqueScans = int(unique)

	var typeRows []struct {
		QrType string
		Count  int
	}
	if err := s.db.Model(&models.ScanRecord{}).Select("qr_type, count(*) as count").
		Group("qr_type").Scan(&typeRows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate scan types: %v", err)
	}
	for _, row := range typeRows {
		stats.ByType[row.QrType] = row.Count
	}

	var dateRows []struct {
		ScanDate string
		Count    int
	}
	if err := s.db.Model(&models.ScanRecord{}).Select("scan_date, count(*) as count").
		Group("scan_date").Order("scan_date DESC").Limit(7).Scan(&dateRows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate recent activity: %v", err)
	}
	for _, row := range dateRows {
		stats.RecentActivity[row.ScanDate] = row.Count
	}

	var favorites int64
	if err := s.db.Model(&models.ScanRecord{}).Where("is_favorite = ?", true).
		Count(&favorites).Error; err != nil {
		return nil, fmt.Errorf("failed to count favorites: %v", err)
	}
	stats.Favorites = int(favorites)

	return stats, nil
}

// exportColumns is the CSV header, in table column order.
var exportColumns = []string{
	"id", "filename", "qr_data", "qr_type", "scan_date", "scan_time",
	"file_size_kb", "file_format", "tags", "notes", "is_favorite",
	"data_preview", "data_hash", "created_at",
}

// ExportCSV dumps every scan as CSV, oldest first, header row included.
func (s *ScanService) ExportCSV() (string, error) {
	var records []models.ScanRecord
	if err := s.db.Order("id ASC").Find(&records).Error; err != nil {
		return "", fmt.Errorf("failed to export scans: %v", err)
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(exportColumns); err != nil {
		return "", fmt.Errorf("failed to write CSV header: %v", err)
	}
	for _, r := range records {
		row := []string{
			strconv.FormatUint(uint64(r.ID), 10),
			r.Filename,
			r.Data,
			r.Type,
			r.ScanDate,
			r.ScanTime,
			strconv.Itoa(r.FileSizeKB),
			r.FileFormat,
			r.Tags,
			r.Notes,
			strconv.FormatBool(r.IsFavorite),
			r.DataPreview,
			r.DataHash,
			r.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		if err := writer.Write(row); err != nil {
			return "", fmt.Errorf("failed to write CSV row for scan %d: %v", r.ID, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("failed to flush CSV export: %v", err)
	}
	return buf.String(), nil
}

// ExportJSON dumps the 1000 most recent scans as an indented JSON array.
func (s *ScanService) ExportJSON() (string, error) {
	records, err := s.List(1000)
	if err != nil {
		return "", err
	}
	encoded, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode JSON export: %v", err)
	}
	return string(encoded), nil
}
