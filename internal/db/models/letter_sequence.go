package models

// LetterSequence is the monotonic letter number counter, one row per letter
// type and year. NextValue is only ever advanced with an atomic, guarded
// update; a plain read-then-write here can mint duplicate numbers.
type LetterSequence struct {
	LetterType string `gorm:"primaryKey"`
	Year       int    `gorm:"primaryKey"`
	NextValue  int    `gorm:"not null;default:1"`
}
