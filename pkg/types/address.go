package types

import (
	"errors"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

const (
	ZeroAddress = "0x0000000000000000000000000000000000000000"

	// RoyaltyDenominator is the basis-point scale of royalty fractions.
	RoyaltyDenominator int64 = 10000
)

var ErrInvalidAddress = errors.New("invalid wallet address")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("nospace", func(fl validator.FieldLevel) bool {
		return !strings.ContainsFunc(fl.Field().String(), unicode.IsSpace)
	})
	return v
}

// NormalizeAddress validates a 0x-prefixed 20-byte hex address and returns it
// lower-cased, which is the form stored everywhere.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if err := validate.Var(addr, "required,eth_addr"); err != nil {
		return "", ErrInvalidAddress
	}
	return strings.ToLower(addr), nil
}

// SameAddress compares two addresses case-insensitively.
func SameAddress(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}

func IsZeroAddress(addr string) bool {
	return addr == "" || strings.EqualFold(addr, ZeroAddress)
}
