package domain

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Account is the authoritative balance of one user. Balance is only ever
// changed by the ledger engine and never drops below zero.
type Account struct {
	UserID         uuid.UUID
	IBAN           string
	Name           string
	Balance        Money
	OpeningBalance Money
	Version        int64
	CreatedAt      time.Time
}

// NormalizeIBAN strips the grouping spaces people type and upper-cases the rest.
func NormalizeIBAN(iban string) string {
	return strings.ToUpper(strings.Join(strings.Fields(iban), ""))
}

// IBANCheckDigits computes the ISO 13616 mod-97 check digits for a country
// code and BBAN.
func IBANCheckDigits(country, bban string) int {
	n, ok := new(big.Int).SetString(ibanDigits(bban+country+"00"), 10)
	if !ok {
		return 0
	}
	return 98 - int(new(big.Int).Mod(n, big.NewInt(97)).Int64())
}

// ValidIBAN reports whether the mod-97 checksum of iban holds.
func ValidIBAN(iban string) bool {
	iban = NormalizeIBAN(iban)
	if len(iban) < 5 || len(iban) > 34 {
		return false
	}
	n, ok := new(big.Int).SetString(ibanDigits(iban[4:]+iban[:4]), 10)
	if !ok {
		return false
	}
	return new(big.Int).Mod(n, big.NewInt(97)).Int64() == 1
}

// ibanDigits replaces letters with their two-digit values (A=10 ... Z=35).
func ibanDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			fmt.Fprintf(&b, "%d", r-'A'+10)
		default:
			return ""
		}
	}
	return b.String()
}
