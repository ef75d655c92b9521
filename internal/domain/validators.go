package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	NicknameMin = 2
	NicknameMax = 20
)

// ValidateNickname checks the rune length of a character name.
func ValidateNickname(nickname string) error {
	if n := utf8.RuneCountInString(strings.TrimSpace(nickname)); n < NicknameMin || n > NicknameMax {
		return ErrInvalidLength("nickname", NicknameMin, NicknameMax)
	}
	return nil
}

// ValidatePositiveAmount checks that an amount is positive.
func ValidatePositiveAmount(amount int64) error {
	if amount <= 0 {
		return ErrValidation(fmt.Sprintf("amount must be positive, got %d", amount))
	}
	return nil
}

// ValidateQuantity checks that an item quantity is positive.
func ValidateQuantity(qty int) error {
	if qty <= 0 {
		return ErrValidation(fmt.Sprintf("quantity must be positive, got %d", qty))
	}
	return nil
}

// ValidateFeePercent checks that a fee fraction is a finite number in [0, 1).
func ValidateFeePercent(fee float64) error {
	if math.IsNaN(fee) || fee < 0 || fee >= 1 {
		return ErrValidation(fmt.Sprintf("fee percent must be in [0, 1), got %v", fee))
	}
	return nil
}

// GuardResult is the verdict of a request guard.
type GuardResult struct {
	Allowed    bool          `json:"allowed"`
	Reason     string        `json:"reason,omitempty"`
	Guard      string        `json:"guard,omitempty"` // which guard blocked
	RetryAfter time.Duration `json:"-"`
}
