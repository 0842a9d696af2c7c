package model

import "time"

const (
	GenerationSucceeded = "succeeded"
	GenerationFailed    = "failed"
)

type Generation struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement"`
	SessionID       string    `gorm:"column:session_id;size:36;not null;index:idx_generations_session_id"`
	OwnerUID        string    `gorm:"column:owner_uid;size:128;index"`
	Model           string    `gorm:"size:128;not null"`
	Prompt          string    `gorm:"type:text;not null"`
	ProductText     string    `gorm:"column:product_text;size:512"`
	FontStyle       string    `gorm:"column:font_style;size:64"`
	FontSize        string    `gorm:"column:font_size;size:32"`
	FontColor       string    `gorm:"column:font_color;size:32"`
	BackgroundStyle string    `gorm:"column:background_style;size:64"`
	ColorPalette    string    `gorm:"column:color_palette;size:64"`
	SpecialEffect   string    `gorm:"column:special_effect;size:64"`
	Status          string    `gorm:"size:16;not null"`
	ErrorDetail     string    `gorm:"column:error_detail;type:text"`
	SourceMIME      string    `gorm:"column:source_mime;size:32"`
	SourceBytes     int       `gorm:"column:source_bytes"`
	ResultMIME      string    `gorm:"column:result_mime;size:32"`
	ResultBytes     int       `gorm:"column:result_bytes"`
	ElapsedMs       int64     `gorm:"column:elapsed_ms"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}

func (Generation) TableName() string {
	return "generations"
}
