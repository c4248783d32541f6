package models

import (
	"gorm.io/gorm"
)

// Attachment is metadata only. The bytes live in the portal's file store;
// this service keeps the locator and never rewrites a row after upload.
type Attachment struct {
	gorm.Model
	ID              string `gorm:"primaryKey"`
	LetterRequestID string `gorm:"index;not null"`
	DisplayName     string `gorm:"not null"`
	StorageLocator  string `gorm:"not null"`
	ByteSize        int64
	MediaType       string
}
