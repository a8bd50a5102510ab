package models

// OrderCounter is the single-row allocator behind order numbers. The row is
// read FOR UPDATE so concurrent checkouts never mint the same number.
type OrderCounter struct {
	ID        int64 `gorm:"column:id;primaryKey"`
	LastValue int64 `gorm:"column:last_value;not null"`
}
