package model

import "time"

// SequenceCounterID is the primary key of the single counter row.
const SequenceCounterID = 1

// SequenceCounter is the single-row, monotonically non-decreasing counter
// holding the highest sequential product ID ever issued fresh. Recycled
// reissues never touch it.
type SequenceCounter struct {
	ID    int   `gorm:"primaryKey" json:"id"`
	Value int64 `gorm:"not null;default:0" json:"value"`
}

// RecycledID is a sequential product ID freed by a product deletion and not
// yet reissued. The value itself is the primary key, so double-releasing an
// ID fails on the unique constraint instead of silently succeeding.
type RecycledID struct {
	Value     int64     `gorm:"primaryKey;autoIncrement:false" json:"value"`
	CreatedAt time.Time `json:"created_at"`
}
