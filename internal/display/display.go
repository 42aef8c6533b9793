// Package display builds view models from raw API rows and formats values for
// rendering. Field resolution follows one fallback chain, applied once at the
// boundary: snake_case key, then camelCase key, then a fallback row, then a
// default. Render sites work from the resolved model and never re-chain.
package display

import (
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"assetline/internal/domain"
)

// Resolve returns the first usable value for key: row[key], row[camel(key)],
// fallback[key], then def. Nil values do not stop the chain.
func Resolve(row, fallback map[string]any, key string, def any) any {
	if v, ok := row[key]; ok && v != nil {
		return v
	}
	if v, ok := row[camelCase(key)]; ok && v != nil {
		return v
	}
	if v, ok := fallback[key]; ok && v != nil {
		return v
	}
	return def
}

// Normalize builds a canonical asset from a raw row plus an optional fallback
// row. Unparseable values count as missing and fall through the chain; fields
// exhausted everywhere take their zero value.
func Normalize(row, fallback map[string]any) domain.Asset {
	return domain.Asset{
		HubID:             intField(row, fallback, "asset_hub_id"),
		Address:           stringField(row, fallback, "address"),
		City:              stringField(row, fallback, "city"),
		State:             stringField(row, fallback, "state"),
		Zip:               stringField(row, fallback, "zip"),
		PropertyType:      stringField(row, fallback, "property_type"),
		LoanNumber:        stringField(row, fallback, "loan_number"),
		BorrowerName:      stringField(row, fallback, "borrower_name"),
		UPB:               moneyField(row, fallback, "upb"),
		TotalDebt:         moneyField(row, fallback, "total_debt"),
		DeferredBalance:   moneyField(row, fallback, "deferred_balance"),
		DelinquencyStatus: stringField(row, fallback, "delinquency_status"),
		AsIsValue:         moneyField(row, fallback, "as_is_value"),
		ARVValue:          moneyField(row, fallback, "arv_value"),
		CreatedAt:         stringField(row, fallback, "created_at"),
		UpdatedAt:         stringField(row, fallback, "updated_at"),
	}
}

func stringField(row, fallback map[string]any, key string) string {
	v := Resolve(row, fallback, key, "")
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

func intField(row, fallback map[string]any, key string) int64 {
	for _, v := range chain(row, fallback, key) {
		if v == nil {
			continue
		}
		switch t := v.(type) {
		case float64:
			return int64(t)
		case int64:
			return t
		case int:
			return int64(t)
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
				return n
			}
		}
	}
	return 0
}

func moneyField(row, fallback map[string]any, key string) decimal.NullDecimal {
	for _, v := range chain(row, fallback, key) {
		if d, ok := parseMoney(v); ok {
			return decimal.NullDecimal{Decimal: d, Valid: true}
		}
	}
	return decimal.NullDecimal{}
}

func chain(row, fallback map[string]any, key string) []any {
	out := make([]any, 0, 3)
	if v, ok := row[key]; ok {
		out = append(out, v)
	}
	if v, ok := row[camelCase(key)]; ok {
		out = append(out, v)
	}
	if v, ok := fallback[key]; ok {
		out = append(out, v)
	}
	return out
}

func parseMoney(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t), true
	case int64:
		return decimal.NewFromInt(t), true
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(strings.TrimPrefix(t, "$"), ",", ""))
		if s == "" {
			return decimal.Decimal{}, false
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	default:
		return decimal.Decimal{}, false
	}
}

func camelCase(key string) string {
	parts := strings.Split(key, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] == "" {
			continue
		}
		parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
	}
	return strings.Join(parts, "")
}

// Currency renders a dollar amount: zero is "$0", whole amounts group digits
// without cents, fractional amounts keep two.
func Currency(d decimal.Decimal) string {
	if d.IsZero() {
		return "$0"
	}
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	if d.IsInteger() {
		return sign + "$" + humanize.Comma(d.IntPart())
	}
	return sign + "$" + humanize.CommafWithDigits(d.InexactFloat64(), 2)
}

// NullCurrency renders a nullable amount, "-" when null.
func NullCurrency(nd decimal.NullDecimal) string {
	if !nd.Valid {
		return "-"
	}
	return Currency(nd.Decimal)
}

// CurrencyCell resolves key through the fallback chain and renders it: a
// value formats as Currency, an explicit null renders "-", a key absent from
// every source renders "—".
func CurrencyCell(row, fallback map[string]any, key string) string {
	vals := chain(row, fallback, key)
	if len(vals) == 0 {
		return "—"
	}
	for _, v := range vals {
		if d, ok := parseMoney(v); ok {
			return Currency(d)
		}
	}
	return "-"
}

// Date renders an RFC3339 timestamp or 2006-01-02 date as "Jan 2, 2006";
// empty or unparseable input renders "—".
func Date(s string) string {
	if s == "" {
		return "—"
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("Jan 2, 2006")
		}
	}
	return "—"
}

// Number renders an integer with digit grouping.
func Number(n int64) string {
	return humanize.Comma(n)
}
