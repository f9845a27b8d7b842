// Package pricing computes the first-visit discount and spreads a bundle
// discount over its components. Money is kept at two decimal places.
package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const moneyPlaces = 2

type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

// DiscountPolicy: скидка на первый визит.
type DiscountPolicy struct {
	Enabled bool
	Type    DiscountType
	Value   decimal.Decimal
}

// ParsePolicy собирает политику из строковых настроек окружения.
func ParsePolicy(enabled bool, typ, value string) (DiscountPolicy, error) {
	t := DiscountType(strings.ToLower(strings.TrimSpace(typ)))
	if t != DiscountPercent && t != DiscountFixed {
		return DiscountPolicy{}, fmt.Errorf("unknown discount type %q", typ)
	}
	v, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return DiscountPolicy{}, fmt.Errorf("parse discount value %q: %w", value, err)
	}
	return DiscountPolicy{Enabled: enabled, Type: t, Value: v}, nil
}

// Price возвращает итоговую цену и размер скидки.
// Скидка всегда в пределах [0, base].
func Price(base decimal.Decimal, isFirstVisit bool, policy DiscountPolicy) (final, discount decimal.Decimal) {
	discount = Discount(base, isFirstVisit, policy)
	return base.Sub(discount), discount
}

func Discount(base decimal.Decimal, isFirstVisit bool, policy DiscountPolicy) decimal.Decimal {
	if !policy.Enabled || !isFirstVisit {
		return decimal.Zero
	}

	var raw decimal.Decimal
	switch policy.Type {
	case DiscountPercent:
		raw = base.Mul(policy.Value).Div(decimal.NewFromInt(100)).Round(moneyPlaces)
	case DiscountFixed:
		raw = policy.Value.Round(moneyPlaces)
	default:
		return decimal.Zero
	}
	return clamp(raw, decimal.Zero, decimal.Max(base, decimal.Zero))
}

// Prorate делит discount между компонентами пропорционально их цене.
// Доли усекаются до копеек, остаток раздаётся с первого компонента,
// но не больше, чем компонент ещё может принять (его цена минус доля).
// Сумма долей равна discount, если discount <= суммы цен.
func Prorate(prices []decimal.Decimal, discount decimal.Decimal) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(prices))
	for i := range shares {
		shares[i] = decimal.Zero
	}

	total := decimal.Zero
	for _, p := range prices {
		total = total.Add(decimal.Max(p, decimal.Zero))
	}
	if !total.IsPositive() || !discount.IsPositive() {
		return shares
	}
	discount = decimal.Min(discount, total)

	allocated := decimal.Zero
	for i, p := range prices {
		if !p.IsPositive() {
			continue
		}
		shares[i] = discount.Mul(p).Div(total).Truncate(moneyPlaces)
		allocated = allocated.Add(shares[i])
	}

	residual := discount.Sub(allocated)
	for i := 0; residual.IsPositive() && i < len(prices); i++ {
		headroom := decimal.Max(prices[i], decimal.Zero).Sub(shares[i])
		if !headroom.IsPositive() {
			continue
		}
		take := decimal.Min(headroom, residual)
		shares[i] = shares[i].Add(take)
		residual = residual.Sub(take)
	}
	return shares
}

// Quote: расчёт для комплексной записи.
type Quote struct {
	Total     decimal.Decimal
	Discount  decimal.Decimal
	Final     decimal.Decimal
	Discounts []decimal.Decimal // по компонентам, в том же порядке
}

// Bundle считает скидку один раз от общей суммы и раскладывает её по услугам.
func Bundle(prices []decimal.Decimal, isFirstVisit bool, policy DiscountPolicy) Quote {
	total := decimal.Zero
	for _, p := range prices {
		total = total.Add(p)
	}
	final, discount := Price(total, isFirstVisit, policy)
	return Quote{
		Total:     total,
		Discount:  discount,
		Final:     final,
		Discounts: Prorate(prices, discount),
	}
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
