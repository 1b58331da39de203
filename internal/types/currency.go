package types

import (
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// ZeroDecimalCurrencies are charged in whole units by the provider
// https://docs.stripe.com/currencies#zero-decimal
var ZeroDecimalCurrencies = []string{
	"bif", "clp", "djf", "gnf", "jpy", "kmf", "krw", "mga",
	"pyg", "rwf", "ugx", "vnd", "vuv", "xaf", "xof", "xpf",
}

// CurrencyPrecision returns the number of minor digits for an ISO currency code
func CurrencyPrecision(currency string) int32 {
	if lo.Contains(ZeroDecimalCurrencies, strings.ToLower(currency)) {
		return 0
	}
	return 2
}

// FromMinorUnits converts an integer provider amount into major units.
// Only used at the HTTP boundary; all arithmetic stays in minor units.
func FromMinorUnits(amount int64, currency string) decimal.Decimal {
	return decimal.New(amount, -CurrencyPrecision(currency))
}
