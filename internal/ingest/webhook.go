package ingest

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vanshika/payrecon/backend/internal/domain"
)

// minorUnitExponent converts webhook and API amounts (minor units) to major units.
const minorUnitExponent = 2

var (
	// ErrInvalidSignature is returned when a webhook body does not match its signature.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMissingUID is returned when a webhook carries no transaction uid.
	ErrMissingUID = errors.New("webhook payload has no transaction uid")
)

// ParseWebhook decodes a provider notification. The transaction may sit under a
// "transaction" key or at the root of the payload.
func (p *Parser) ParseWebhook(body []byte) (domain.Transaction, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var payload map[string]any
	if err := decoder.Decode(&payload); err != nil {
		return domain.Transaction{}, fmt.Errorf("decode webhook: %w", err)
	}
	if inner, ok := payload["transaction"].(map[string]any); ok {
		payload = inner
	}

	tx, ok := p.ParseRow(APIRow(payload))
	if !ok {
		return domain.Transaction{}, ErrMissingUID
	}
	return tx, nil
}

// APIRow flattens a JSON record from the webhook or polling API into a Row and
// converts its minor-unit amount into major units.
func APIRow(record map[string]any) Row {
	row := make(Row)
	flatten("", record, row)

	if status, ok := row["three_d_secure_verification.status"]; ok {
		row["3ds"] = status
		delete(row, "three_d_secure_verification.status")
	}
	if raw, ok := row["amount"]; ok {
		if minor, err := decimal.NewFromString(raw); err == nil {
			row["amount"] = minor.Shift(-minorUnitExponent).String()
		}
	}
	return row
}

func flatten(prefix string, value any, out Row) {
	switch v := value.(type) {
	case map[string]any:
		for key, inner := range v {
			name := key
			if prefix != "" {
				name = prefix + "." + key
			}
			flatten(name, inner, out)
		}
	case nil:
	case string:
		out[prefix] = v
	case json.Number:
		out[prefix] = v.String()
	case float64:
		out[prefix] = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		out[prefix] = strconv.FormatBool(v)
	default:
		if encoded, err := json.Marshal(v); err == nil {
			out[prefix] = string(encoded)
		}
	}
}

// VerifySignature checks a hex HMAC-SHA256 of body with the shared secret.
// An empty secret disables the check.
func VerifySignature(body []byte, signature, secret string) error {
	if secret == "" {
		return nil
	}
	expected, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), expected) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body, the counterpart of VerifySignature.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
