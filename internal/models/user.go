package models

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	UserStatusActive    = "active"
	UserStatusSuspended = "suspended"
)

type User struct {
	gorm.Model
	Email        string `gorm:"uniqueIndex;not null"`
	Phone        string `gorm:"index"`
	Name         string
	Role         string `gorm:"default:'user'"`
	Status       string `gorm:"default:'active'"`
	PinHash      string `json:"-"`
	TokenVersion int    `gorm:"default:1"`
}

var ErrInvalidPIN = errors.New("transaction pin must be 4 to 6 digits")

// SetPIN validates and bcrypt-hashes a transaction PIN.
func (u *User) SetPIN(pin string) error {
	if len(pin) < 4 || len(pin) > 6 {
		return ErrInvalidPIN
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return ErrInvalidPIN
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PinHash = string(hash)
	return nil
}

// CheckPIN reports whether pin matches the stored hash.
func (u *User) CheckPIN(pin string) bool {
	if u.PinHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PinHash), []byte(pin)) == nil
}
