// Package ingest turns provider exports (CSV, workbooks, webhook payloads and
// polling API records) into normalized domain transactions.
package ingest

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vanshika/payrecon/backend/internal/domain"
)

var (
	// ErrEmptyFile indicates the upload carried no rows at all.
	ErrEmptyFile = errors.New("file is empty")
	// ErrNoTransactions indicates no row carried a transaction identifier.
	ErrNoTransactions = errors.New("no transactions found in file")
	// ErrUnsupportedFormat indicates a file extension with no reader.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// Row is one raw record keyed by its original column header.
type Row map[string]string

// Parser normalizes rows for one provider.
type Parser struct {
	Provider        string
	DefaultCurrency string
	Location        *time.Location
}

// NewParser returns a Parser with the provider's defaults.
func NewParser(provider, defaultCurrency string, loc *time.Location) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	return &Parser{
		Provider:        provider,
		DefaultCurrency: strings.ToUpper(defaultCurrency),
		Location:        loc,
	}
}

// ParseRow converts one raw row into a Transaction. The second result is false
// when the row has no transaction identifier; callers skip such rows.
func (p *Parser) ParseRow(row Row) (domain.Transaction, bool) {
	headers := make([]string, 0, len(row))
	for header := range row {
		headers = append(headers, header)
	}
	sort.Strings(headers)

	values := make(map[field]string, len(row))
	extra := make(map[string]string)
	for _, header := range headers {
		value := strings.TrimSpace(row[header])
		f := lookupField(header)
		if f == fieldUnknown {
			if value != "" {
				extra[header] = value
			}
			continue
		}
		if values[f] == "" {
			values[f] = value
		}
	}

	uid := values[fieldUID]
	if uid == "" {
		return domain.Transaction{}, false
	}

	tx := domain.Transaction{
		Provider:        p.Provider,
		UID:             uid,
		ParentUID:       values[fieldParentUID],
		OrderRef:        values[fieldOrderRef],
		TransactionType: sanitizeString(values[fieldType]),
		Status:          sanitizeString(values[fieldStatus]),
		Message:         sanitizeString(values[fieldMessage]),
		Currency:        strings.ToUpper(values[fieldCurrency]),
		CustomerEmail:   normalizeEmail(values[fieldEmail]),
		CustomerPhone:   values[fieldPhone],
		CustomerIP:      values[fieldIP],
		Description:     sanitizeString(values[fieldDescription]),
		CardHolder:      strings.ToUpper(sanitizeString(values[fieldCardHolder])),
		CardBIN:         values[fieldCardBIN],
		CardBank:        sanitizeString(values[fieldCardBank]),
		CardCountry:     strings.ToUpper(values[fieldCardCountry]),
		ThreeDSecure:    parseBool(values[fieldThreeDSecure]),
	}
	if tx.Currency == "" {
		tx.Currency = p.DefaultCurrency
	}

	tx.Amount = amountOrZero(values[fieldAmount])
	tx.Commission = amountOrZero(values[fieldCommission])
	tx.PayoutAmount = amountOrZero(values[fieldPayout])

	if t, ok := parseTime(values[fieldCreatedAt], p.Location); ok {
		tx.CreatedAt = t
	}
	if t, ok := parseTime(values[fieldPaidAt], p.Location); ok {
		tx.PaidAt = &t
	}
	if t, ok := parseTime(values[fieldTransferredAt], p.Location); ok {
		tx.TransferredAt = &t
	}

	mask := values[fieldCardMask]
	tx.CardLast4 = cardLastFour(mask)
	tx.CardBrand = normalizeBrand(values[fieldCardBrand])
	// The BIN is the real leading digits; a mask may carry only the tail.
	if tx.CardBrand == "" {
		tx.CardBrand = brandFromDigits(tx.CardBIN)
	}
	if tx.CardBrand == "" {
		tx.CardBrand = brandFromDigits(mask)
	}

	if len(extra) > 0 {
		tx.Extra = extra
	}
	return tx, true
}

func amountOrZero(s string) decimal.Decimal {
	amount, err := parseAmount(s)
	if err != nil {
		return decimal.Zero
	}
	return amount
}

// Batch is the outcome of parsing many rows.
type Batch struct {
	Transactions []domain.Transaction
	Rows         int
	Skipped      int
}

// ParseRows parses every row, skipping rows without an identifier. Duplicate
// uids inside one batch collapse to the last occurrence.
func (p *Parser) ParseRows(rows []Row) (Batch, error) {
	if len(rows) == 0 {
		return Batch{}, ErrEmptyFile
	}
	batch := Batch{Rows: len(rows)}
	index := make(map[string]int, len(rows))
	for _, row := range rows {
		tx, ok := p.ParseRow(row)
		if !ok {
			batch.Skipped++
			continue
		}
		if i, dup := index[tx.UID]; dup {
			batch.Transactions[i] = tx
			batch.Skipped++
			continue
		}
		index[tx.UID] = len(batch.Transactions)
		batch.Transactions = append(batch.Transactions, tx)
	}
	if len(batch.Transactions) == 0 {
		return batch, ErrNoTransactions
	}
	return batch, nil
}
