package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Base is embedded by the domain repositories.
type Base struct {
	db *gorm.DB
}

// NewBase wraps a GORM connection.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection bound to ctx. A nil ctx returns the raw handle.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// WithTx rebinds the base to an open transaction. A nil tx keeps the current handle.
func (b Base) WithTx(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// IsNotFound reports whether err is GORM's missing-record error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// FirstOrNil runs First into dst and turns a missing record into (false, nil).
func FirstOrNil(query *gorm.DB, dst any) (bool, error) {
	err := query.First(dst).Error
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
