/**
 * @description
 * This file defines the credit card read model used by the anti-fraud rules.
 * Card CRUD lives in its own adapter surface; the fraud engine only needs the
 * owning user, the active/inactive state, and the year/month expiry.
 */

package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreditCardStatus is the lifecycle state of a stored card.
type CreditCardStatus string

const (
	CardActive   CreditCardStatus = "ACTIVE"
	CardInactive CreditCardStatus = "INACTIVE"
	CardBlocked  CreditCardStatus = "BLOCKED"
)

// CreditCard maps to the `credit_cards` table. The number is stored masked.
type CreditCard struct {
	ID              int64            `json:"id"`
	UserID          uuid.UUID        `json:"user_id"`
	CardNumber      string           `json:"card_number"`
	CardHolderName  string           `json:"card_holder_name"`
	ExpirationMonth int              `json:"expiration_month"`
	ExpirationYear  int              `json:"expiration_year"`
	Status          CreditCardStatus `json:"status"`
	Brand           string           `json:"brand"`
}

// IsActive reports whether the card can be charged.
func (c *CreditCard) IsActive() bool { return c.Status == CardActive }

// IsExpired compares the card's expiry year-month against the given moment.
// A card expiring in the current month is still valid; only a strictly
// earlier year-month is expired.
func (c *CreditCard) IsExpired(now time.Time) bool {
	if c.ExpirationYear < now.Year() {
		return true
	}
	if c.ExpirationYear > now.Year() {
		return false
	}
	return time.Month(c.ExpirationMonth) < now.Month()
}

// IsValidCardNumber runs the Luhn check over a card number, ignoring spaces
// and dashes. https://en.wikipedia.org/wiki/Luhn_algorithm
func IsValidCardNumber(cardNumber string) bool {
	digits := normalizeCardNumber(cardNumber)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}

	sum := 0
	alternate := false
	for i := len(digits) - 1; i >= 0; i-- {
		if digits[i] < '0' || digits[i] > '9' {
			return false
		}
		digit := int(digits[i] - '0')
		if alternate {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		alternate = !alternate
	}
	return sum%10 == 0
}

// IdentifyCardBrand infers the card brand from its number prefix.
func IdentifyCardBrand(cardNumber string) string {
	digits := normalizeCardNumber(cardNumber)
	switch {
	case strings.HasPrefix(digits, "4"):
		return "VISA"
	case len(digits) > 1 && digits[0] == '5' && digits[1] >= '1' && digits[1] <= '5':
		return "MASTERCARD"
	case strings.HasPrefix(digits, "34") || strings.HasPrefix(digits, "37"):
		return "AMEX"
	case strings.HasPrefix(digits, "6011") || strings.HasPrefix(digits, "65"):
		return "DISCOVER"
	case strings.HasPrefix(digits, "35"):
		return "JCB"
	default:
		return "UNKNOWN"
	}
}

// MaskCardNumber keeps only the last four digits visible.
func MaskCardNumber(cardNumber string) string {
	digits := normalizeCardNumber(cardNumber)
	if len(digits) < 4 {
		return "****"
	}
	return "**** **** **** " + digits[len(digits)-4:]
}

func normalizeCardNumber(cardNumber string) string {
	replacer := strings.NewReplacer(" ", "", "-", "")
	return replacer.Replace(cardNumber)
}
