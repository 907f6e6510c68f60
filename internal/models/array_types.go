package models

import (
	"database/sql/driver"

	"github.com/lib/pq"
)

// IntArray is a custom type for handling INTEGER[] seat lists in PostgreSQL
type IntArray []int

// Value implements the driver.Valuer interface
func (a IntArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return pq.Array([]int(a)).Value()
}

// Scan implements the sql.Scanner interface
func (a *IntArray) Scan(src interface{}) error {
	if src == nil {
		*a = nil
		return nil
	}
	slice := (*[]int)(a)
	return pq.Array(slice).Scan(src)
}
