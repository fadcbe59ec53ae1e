package ingest

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

var errInvalidAmount = errors.New("invalid amount")

// parseAmount converts provider amounts such as "100,50", "1 234,56", "1,234.56 BYN"
// into a decimal. A single comma is a decimal separator; when both separators are
// present the last one wins.
func parseAmount(s string) (decimal.Decimal, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= '0' && r <= '9', r == ',', r == '.', r == '-', r == '+':
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" || cleaned == "-" || cleaned == "+" {
		return decimal.Zero, nil
	}

	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(cleaned, ",") > 1 {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		} else {
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		}
	case lastDot >= 0 && strings.Count(cleaned, ".") > 1:
		cleaned = strings.ReplaceAll(cleaned, ".", "")
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, errInvalidAmount
	}
	return amount, nil
}

// Layouts without an explicit offset are interpreted in the provider's location.
var (
	zonedLayouts = []string{
		"2006-01-02 15:04:05 -0700",
		"2006-01-02 15:04:05 -07:00",
		"2006-01-02 15:04:05 MST",
		time.RFC3339Nano,
		time.RFC3339,
	}
	localLayouts = []string{
		"02.01.2006 15:04:05",
		"02.01.2006 15:04",
		"02.01.2006",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
)

// parseTime accepts the date formats seen in provider exports and returns UTC.
func parseTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseBool understands localized yes/no strings. Unknown values yield nil.
func parseBool(s string) *bool {
	var v bool
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "да", "д", "yes", "y", "1", "true", "+", "успешно", "successful":
		v = true
	case "нет", "н", "no", "n", "0", "false", "-":
		v = false
	default:
		return nil
	}
	return &v
}

// cardLastFour returns the trailing four digits of a card mask of any layout.
func cardLastFour(mask string) string {
	digits := make([]rune, 0, len(mask))
	for _, r := range mask {
		if unicode.IsDigit(r) {
			digits = append(digits, r)
		}
	}
	if len(digits) < 4 {
		return ""
	}
	return string(digits[len(digits)-4:])
}

// brandFromDigits infers the card brand from the first digit that appears in a mask or BIN.
func brandFromDigits(s string) string {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			continue
		}
		switch r {
		case '4':
			return "visa"
		case '5':
			return "mastercard"
		}
		return ""
	}
	return ""
}

// normalizeBrand maps explicit brand column values to lowercase canonical names.
func normalizeBrand(brand string) string {
	b := strings.ToLower(strings.TrimSpace(brand))
	switch {
	case b == "":
		return ""
	case strings.Contains(b, "visa"):
		return "visa"
	case strings.Contains(b, "master"), b == "mc":
		return "mastercard"
	case strings.Contains(b, "maestro"):
		return "maestro"
	case strings.Contains(b, "белкарт"), strings.Contains(b, "belkart"):
		return "belkart"
	case strings.Contains(b, "мир"), b == "mir":
		return "mir"
	}
	return b
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func sanitizeString(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
