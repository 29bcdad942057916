package types

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// ID is a UUID wrapper for type safety
type ID string

// NewID generates a new random ID
func NewID() ID {
	return ID(uuid.New().String())
}

// ParseID parses a string into an ID
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid ID: %w", err)
	}
	return ID(u.String()), nil
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsZero checks if the ID is empty
func (id ID) IsZero() bool {
	return id == ""
}

// Value implements driver.Valuer for database serialization
func (id ID) Value() (driver.Value, error) {
	return string(id), nil
}

// Scan implements sql.Scanner. pgx hands UUID columns to scanners in their
// text form.
func (id *ID) Scan(value any) error {
	v, ok := value.(string)
	if !ok {
		return fmt.Errorf("cannot scan %T into ID", value)
	}
	*id = ID(v)
	return nil
}
