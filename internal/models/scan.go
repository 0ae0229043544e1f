package models

import (
	"encoding/json"
	"time"
)

// ScanRecord represents one decoded QR observation.
type ScanRecord struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Filename    string    `json:"filename" gorm:"size:255;not null"`
	Data        string    `json:"qr_data" gorm:"column:qr_data;type:text;not null"`
	Type        string    `json:"qr_type" gorm:"column:qr_type;type:varchar(20);not null;index"`
	ScanDate    string    `json:"scan_date" gorm:"size:10;index"`
	ScanTime    string    `json:"scan_time" gorm:"size:8"`
	FileSizeKB  int       `json:"file_size_kb"`
	FileFormat  string    `json:"file_format" gorm:"size:50"`
	Tags        string    `json:"tags" gorm:"type:text;default:'[]'"` // JSON array
	Notes       string    `json:"notes" gorm:"type:text"`
	IsFavorite  bool      `json:"is_favorite" gorm:"default:false;index"`
	DataPreview string    `json:"data_preview" gorm:"type:text"` // first 100 chars for quick view
	DataHash    string    `json:"data_hash" gorm:"uniqueIndex;size:32;not null"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for ScanRecord
func (ScanRecord) TableName() string {
	return "scans"
}

// TagList deserializes the stored tags column. A column that fails to
// parse yields an empty list rather than an error.
func (s *ScanRecord) TagList() []string {
	var tags []string
	if err := json.Unmarshal([]byte(s.Tags), &tags); err != nil {
		return []string{}
	}
	return tags
}

// SetTags serializes tags into the stored column.
func (s *ScanRecord) SetTags(tags []string) {
	if tags == nil {
		tags = []string{}
	}
	encoded, _ := json.Marshal(tags)
	s.Tags = string(encoded)
}

// DailyStat is the per-date scan aggregate. It is derived data: every
// save re-aggregates the whole day from the scans table, so the row can
// always be rebuilt.
type DailyStat struct {
	Date        string    `json:"date" gorm:"primaryKey;size:10"`
	TotalScans  int       `json:"total_scans"`
	UniqueScans int       `json:"unique_scans"`
	ByType      string    `json:"by_type" gorm:"type:text;default:'{}'"` // JSON map type->count
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for DailyStat
func (DailyStat) TableName() string {
	return "daily_stats"
}

// Stats is the overall statistics snapshot, computed fresh on request.
type Stats struct {
	TotalScans     int            `json:"total_scans"`
	UniqueScans    int            `json:"unique_scans"`
	ByType         map[string]int `json:"by_type"`
	RecentActivity map[string]int `json:"recent_activity"`
	Favorites      int            `json:"favorites"`
}
