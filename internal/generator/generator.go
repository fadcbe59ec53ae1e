package generator

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vanshika/payrecon/backend/internal/domain"
	"github.com/vanshika/payrecon/backend/internal/ingest"
)

const (
	statementTimeLayout = "02.01.2006 15:04:05"

	colUID        = "ID транзакции"
	colParentUID  = "ID родительской транзакции"
	colOrder      = "Номер заказа"
	colType       = "Тип транзакции"
	colStatus     = "Статус"
	colMessage    = "Сообщение"
	colAmount     = "Сумма"
	colCurrency   = "Валюта"
	colCreatedAt  = "Дата создания"
	colPaidAt     = "Дата оплаты"
	colEmail      = "E-mail"
	colCard       = "Номер карты"
	colHolder     = "Владелец карты"
	colThreeDS    = "3-D Secure"
	colCommission = "Комиссия"
)

// StatementHeaders is the column order of generated statements.
var StatementHeaders = []string{
	colUID, colParentUID, colOrder, colType, colStatus, colMessage, colAmount, colCurrency,
	colCreatedAt, colPaidAt, colEmail, colCard, colHolder, colThreeDS, colCommission,
}

// Dataset is a generated statement plus the internal records it should reconcile against.
type Dataset struct {
	Profiles []domain.Profile `json:"profiles"`
	Orders   []domain.Order   `json:"orders"`
	Rows     []ingest.Row     `json:"-"`
}

// Generator produces synthetic provider statements with matching profiles and orders.
type Generator struct {
	cfg   Config
	rand  *rand.Rand
	names nameFragments
}

// New returns a configured Generator instance.
func New(cfg Config) *Generator {
	def := DefaultConfig()
	if cfg.NumProfiles <= 0 {
		cfg.NumProfiles = def.NumProfiles
	}
	if cfg.NumTransactions <= 0 {
		cfg.NumTransactions = def.NumTransactions
	}
	if cfg.Currency == "" {
		cfg.Currency = def.Currency
	}
	if cfg.Days <= 0 {
		cfg.Days = def.Days
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -cfg.Days)
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	return &Generator{
		cfg:   cfg,
		rand:  rand.New(rand.NewSource(cfg.Seed)),
		names: defaultNameFragments(),
	}
}

type buyer struct {
	profile domain.Profile
	holder  string
	card    string
}

// Generate synthesises profiles, one order per successful payment, and the
// statement rows. It respects context cancellation.
func (g *Generator) Generate(ctx context.Context) (Dataset, error) {
	buyers := make([]buyer, g.cfg.NumProfiles)
	profiles := make([]domain.Profile, g.cfg.NumProfiles)
	for i := range buyers {
		if err := ctx.Err(); err != nil {
			return Dataset{}, err
		}
		first, last := g.randomName()
		p := domain.Profile{
			ID:        fmt.Sprintf("PRF-%05d", i+1),
			FullName:  first.cyrillic + " " + last.cyrillic,
			Email:     g.randomEmail(first.latin, last.latin, i),
			CreatedAt: g.cfg.Start.AddDate(0, 0, -g.rand.Intn(365)),
		}
		p.UpdatedAt = p.CreatedAt
		profiles[i] = p
		buyers[i] = buyer{
			profile: p,
			holder:  strings.ToUpper(first.latin + " " + last.latin),
			card:    g.randomCardMask(),
		}
	}

	var (
		rows   []ingest.Row
		orders []domain.Order
		paid   []ingest.Row
	)
	span := time.Duration(g.cfg.Days) * 24 * time.Hour
	for i := 0; i < g.cfg.NumTransactions; i++ {
		if err := ctx.Err(); err != nil {
			return Dataset{}, err
		}

		uid := fmt.Sprintf("%d-%010d", 1000+g.rand.Intn(9000), i+1)
		b := buyers[g.rand.Intn(len(buyers))]
		created := g.cfg.Start.Add(time.Duration(g.rand.Int63n(int64(span))))
		roll := g.rand.Float64()

		switch {
		case roll < g.cfg.FeeChance:
			rows = append(rows, g.feeRow(uid, created))
			continue
		case roll < g.cfg.FeeChance+g.cfg.RefundChance && len(paid) > 0:
			parent := paid[g.rand.Intn(len(paid))]
			rows = append(rows, g.refundRow(uid, parent, created))
			continue
		}

		row := g.paymentRow(uid, b, created)
		if g.rand.Float64() < g.cfg.FailureChance {
			row[colStatus] = "Неуспешный"
			row[colMessage] = "Отклонено банком-эмитентом"
			row[colPaidAt] = ""
		} else {
			paid = append(paid, row)
			order := domain.Order{
				ID:                 fmt.Sprintf("ORD-%07d", len(orders)+1),
				PaymentUID:         uid,
				ProfileID:          b.profile.ID,
				Status:             "paid",
				SubscriptionID:     fmt.Sprintf("SUB-%07d", len(orders)+1),
				SubscriptionStatus: "active",
				EntitlementIDs:     []string{"ENT-" + b.profile.ID},
				ChannelAccess:      true,
			}
			row[colOrder] = order.ID
			orders = append(orders, order)
		}
		rows = append(rows, row)
	}

	return Dataset{Profiles: profiles, Orders: orders, Rows: rows}, nil
}

func (g *Generator) paymentRow(uid string, b buyer, created time.Time) ingest.Row {
	amount := decimal.NewFromInt(int64(500 + g.rand.Intn(15000))).Shift(-2)
	paidAt := created.Add(time.Duration(5+g.rand.Intn(120)) * time.Second)

	email := b.profile.Email
	if g.rand.Float64() < g.cfg.GuestEmailChance {
		// Guest checkout: only the card identifies the buyer.
		email = ""
	}
	return ingest.Row{
		colUID:        uid,
		colType:       "Оплата",
		colStatus:     "Успешный",
		colMessage:    "Одобрено",
		colAmount:     formatAmount(amount),
		colCurrency:   g.cfg.Currency,
		colCreatedAt:  created.Format(statementTimeLayout),
		colPaidAt:     paidAt.Format(statementTimeLayout),
		colEmail:      email,
		colCard:       b.card,
		colHolder:     b.holder,
		colThreeDS:    g.pick("да", "нет"),
		colCommission: formatAmount(amount.Mul(decimal.RequireFromString("0.025")).Round(2)),
	}
}

func (g *Generator) refundRow(uid string, parent ingest.Row, created time.Time) ingest.Row {
	return ingest.Row{
		colUID:       uid,
		colParentUID: parent[colUID],
		colOrder:     parent[colOrder],
		colType:      "Возврат",
		colStatus:    "Успешный",
		colAmount:    parent[colAmount],
		colCurrency:  parent[colCurrency],
		colCreatedAt: created.Format(statementTimeLayout),
		colPaidAt:    created.Format(statementTimeLayout),
		colEmail:     parent[colEmail],
		colCard:      parent[colCard],
		colHolder:    parent[colHolder],
	}
}

func (g *Generator) feeRow(uid string, created time.Time) ingest.Row {
	return ingest.Row{
		colUID:       uid,
		colType:      "Комиссия эквайринга",
		colStatus:    "Успешный",
		colAmount:    formatAmount(decimal.NewFromInt(int64(1 + g.rand.Intn(99))).Shift(-2)),
		colCurrency:  g.cfg.Currency,
		colCreatedAt: created.Format(statementTimeLayout),
	}
}

// formatAmount renders the provider's comma-decimal notation.
func formatAmount(d decimal.Decimal) string {
	return strings.Replace(d.StringFixed(2), ".", ",", 1)
}

func (g *Generator) randomName() (namePart, namePart) {
	return g.names.first[g.rand.Intn(len(g.names.first))], g.names.last[g.rand.Intn(len(g.names.last))]
}

func (g *Generator) randomEmail(first, last string, n int) string {
	host := g.names.domains[g.rand.Intn(len(g.names.domains))]
	return fmt.Sprintf("%s.%s%d@%s", strings.ToLower(first), strings.ToLower(last), n, host)
}

func (g *Generator) randomCardMask() string {
	prefix := g.pick("4", "5")
	return fmt.Sprintf("%s%05d******%04d", prefix, g.rand.Intn(100000), g.rand.Intn(10000))
}

func (g *Generator) pick(options ...string) string {
	return options[g.rand.Intn(len(options))]
}

type namePart struct {
	latin    string
	cyrillic string
}

type nameFragments struct {
	first   []namePart
	last    []namePart
	domains []string
}

// Pairs spell the same name in both scripts so card holders transliterate back.
func defaultNameFragments() nameFragments {
	return nameFragments{
		first: []namePart{
			{"Ivan", "Иван"}, {"Anna", "Анна"}, {"Oleg", "Олег"}, {"Pavel", "Павел"},
			{"Denis", "Денис"}, {"Nikita", "Никита"}, {"Roman", "Роман"}, {"Boris", "Борис"},
		},
		last: []namePart{
			{"Petrov", "Петров"}, {"Sokolov", "Соколов"}, {"Kuznetsov", "Кузнецов"}, {"Orlov", "Орлов"},
			{"Volkov", "Волков"}, {"Morozov", "Морозов"}, {"Lebedev", "Лебедев"}, {"Zaharov", "Захаров"},
		},
		domains: []string{"example.com", "mail.by", "payrecon.test"},
	}
}
