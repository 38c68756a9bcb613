// Package categories manages user-owned expense categories. Every operation
// is scoped to an owner id; a category that belongs to someone else behaves
// exactly like one that does not exist.
package categories

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const maxNameLength = 150

var (
	// ErrNotFound indicates the category is missing, deleted or not owned.
	ErrNotFound = errors.New("category not found")
	// ErrDuplicateName indicates the owner already has a category with this name.
	ErrDuplicateName = errors.New("category already exists")
	// ErrInvalidName indicates an empty or oversized name.
	ErrInvalidName = errors.New("category name must be between 1 and 150 characters")
)

// Category is a named bucket for expenses.
type Category struct {
	ID        int64
	Name      string
	UserID    int64
	IsDeleted bool
	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizeName trims surrounding space and folds the name to NFC so
// visually identical names compare equal.
func NormalizeName(name string) (string, error) {
	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}
