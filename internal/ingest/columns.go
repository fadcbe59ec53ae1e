package ingest

import "strings"

type field int

const (
	fieldUnknown field = iota
	fieldUID
	fieldParentUID
	fieldOrderRef
	fieldType
	fieldStatus
	fieldMessage
	fieldAmount
	fieldCurrency
	fieldCreatedAt
	fieldPaidAt
	fieldTransferredAt
	fieldEmail
	fieldPhone
	fieldIP
	fieldDescription
	fieldCardMask
	fieldCardHolder
	fieldCardBrand
	fieldCardBIN
	fieldCardBank
	fieldCardCountry
	fieldThreeDSecure
	fieldCommission
	fieldPayout
)

// columnAliases maps canonical header spellings (see canonicalHeader) to fields.
// Russian and English exports, spreadsheet and CSV, plus flattened API keys.
var columnAliases = map[string]field{
	"uid":                        fieldUID,
	"id транзакции":              fieldUID,
	"идентификатор транзакции":   fieldUID,
	"номер транзакции":           fieldUID,
	"transaction id":             fieldUID,
	"transaction uid":            fieldUID,
	"transaction_uid":            fieldUID,
	"parent uid":                 fieldParentUID,
	"parent_uid":                 fieldParentUID,
	"id родительской транзакции": fieldParentUID,
	"родительская транзакция":    fieldParentUID,
	"tracking id":                fieldOrderRef,
	"tracking_id":                fieldOrderRef,
	"id заказа":                  fieldOrderRef,
	"номер заказа":               fieldOrderRef,
	"order id":                   fieldOrderRef,
	"order_id":                   fieldOrderRef,
	"тип транзакции":             fieldType,
	"тип операции":               fieldType,
	"тип":                        fieldType,
	"transaction type":           fieldType,
	"type":                       fieldType,
	"статус":                     fieldStatus,
	"статус транзакции":          fieldStatus,
	"status":                     fieldStatus,
	"сообщение":                  fieldMessage,
	"ответ банка":                fieldMessage,
	"описание ответа":            fieldMessage,
	"message":                    fieldMessage,
	"response message":           fieldMessage,
	"сумма":                      fieldAmount,
	"сумма транзакции":           fieldAmount,
	"amount":                     fieldAmount,
	"валюта":                     fieldCurrency,
	"currency":                   fieldCurrency,
	"дата":                       fieldCreatedAt,
	"дата создания":              fieldCreatedAt,
	"дата транзакции":            fieldCreatedAt,
	"created at":                 fieldCreatedAt,
	"created_at":                 fieldCreatedAt,
	"created":                    fieldCreatedAt,
	"дата оплаты":                fieldPaidAt,
	"paid at":                    fieldPaidAt,
	"paid_at":                    fieldPaidAt,
	"дата перечисления":          fieldTransferredAt,
	"дата зачисления":            fieldTransferredAt,
	"transferred at":             fieldTransferredAt,
	"settled at":                 fieldTransferredAt,
	"settled_at":                 fieldTransferredAt,
	"e-mail":                     fieldEmail,
	"email":                      fieldEmail,
	"электронная почта":          fieldEmail,
	"почта":                      fieldEmail,
	"customer.email":             fieldEmail,
	"телефон":                    fieldPhone,
	"phone":                      fieldPhone,
	"customer.phone":             fieldPhone,
	"ip":                         fieldIP,
	"ip адрес":                   fieldIP,
	"ip address":                 fieldIP,
	"customer.ip":                fieldIP,
	"описание":                   fieldDescription,
	"назначение платежа":         fieldDescription,
	"description":                fieldDescription,
	"карта":                      fieldCardMask,
	"номер карты":                fieldCardMask,
	"маска карты":                fieldCardMask,
	"card":                       fieldCardMask,
	"card number":                fieldCardMask,
	"card mask":                  fieldCardMask,
	"credit_card.last_4":         fieldCardMask,
	"credit_card.number":         fieldCardMask,
	"владелец карты":             fieldCardHolder,
	"держатель карты":            fieldCardHolder,
	"имя держателя":              fieldCardHolder,
	"card holder":                fieldCardHolder,
	"cardholder":                 fieldCardHolder,
	"credit_card.holder":         fieldCardHolder,
	"платежная система":          fieldCardBrand,
	"тип карты":                  fieldCardBrand,
	"card brand":                 fieldCardBrand,
	"brand":                      fieldCardBrand,
	"credit_card.brand":          fieldCardBrand,
	"bin":                        fieldCardBIN,
	"бин":                        fieldCardBIN,
	"credit_card.first_1":        fieldCardBIN,
	"credit_card.bin":            fieldCardBIN,
	"банк":                       fieldCardBank,
	"банк-эмитент":               fieldCardBank,
	"банк эмитент":               fieldCardBank,
	"bank":                       fieldCardBank,
	"issuer":                     fieldCardBank,
	"credit_card.issuer_name":    fieldCardBank,
	"страна":                     fieldCardCountry,
	"страна карты":               fieldCardCountry,
	"country":                    fieldCardCountry,
	"credit_card.issuer_country": fieldCardCountry,
	"3-d secure":                 fieldThreeDSecure,
	"3d secure":                  fieldThreeDSecure,
	"3ds":                        fieldThreeDSecure,
	"credit_card.3ds":            fieldThreeDSecure,
	"комиссия":                   fieldCommission,
	"комиссия банка":             fieldCommission,
	"commission":                 fieldCommission,
	"fee":                        fieldCommission,
	"сумма к перечислению":       fieldPayout,
	"к перечислению":             fieldPayout,
	"payout amount":              fieldPayout,
	"net amount":                 fieldPayout,
}

// canonicalHeader folds a raw header into the spelling used by columnAliases.
func canonicalHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.Trim(h, " \t\"'")
	h = strings.TrimSuffix(h, ":")
	h = strings.ToLower(h)
	h = strings.ReplaceAll(h, "ё", "е")
	return strings.Join(strings.Fields(h), " ")
}

func lookupField(header string) field {
	if f, ok := columnAliases[canonicalHeader(header)]; ok {
		return f
	}
	return fieldUnknown
}

// HasIdentifierColumn reports whether a header row carries a transaction id column.
func HasIdentifierColumn(headers []string) bool {
	for _, h := range headers {
		if lookupField(h) == fieldUID {
			return true
		}
	}
	return false
}
