package domain

import (
	"fmt"
	"math"
)

// Currency identifies one of the in-game currencies.
type Currency string

const (
	CurrencyGold     Currency = "gold"
	CurrencyCrystals Currency = "crystals"
	CurrencyHonor    Currency = "honor"
)

// AllCurrencies lists every known currency.
func AllCurrencies() []Currency {
	return []Currency{CurrencyGold, CurrencyCrystals, CurrencyHonor}
}

// ParseCurrency validates a currency name.
func ParseCurrency(s string) (Currency, error) {
	switch c := Currency(s); c {
	case CurrencyGold, CurrencyCrystals, CurrencyHonor:
		return c, nil
	}
	return "", ErrValidation("unknown currency: " + s).With("currency", s)
}

// ExchangeRate converts source units to destination units as Num/Den, floored.
type ExchangeRate struct {
	Num int64 `json:"num"`
	Den int64 `json:"den"`
}

// Apply converts a non-negative amount at this rate. The product is split so
// only a result past int64 fails.
func (r ExchangeRate) Apply(amount int64) (int64, error) {
	q, rem := amount/r.Den, amount%r.Den
	if q > math.MaxInt64/r.Num {
		return 0, ErrValidation(fmt.Sprintf("amount %d is too large to convert", amount)).With("amount", amount)
	}
	hi, lo := q*r.Num, rem*r.Num/r.Den
	if hi > math.MaxInt64-lo {
		return 0, ErrValidation(fmt.Sprintf("amount %d is too large to convert", amount)).With("amount", amount)
	}
	return hi + lo, nil
}

type currencyPair struct {
	from, to Currency
}

var exchangeRates = map[currencyPair]ExchangeRate{
	{CurrencyGold, CurrencyCrystals}: {Num: 1, Den: 100},
	{CurrencyCrystals, CurrencyGold}: {Num: 80, Den: 1},
	{CurrencyHonor, CurrencyGold}:    {Num: 10, Den: 1},
}

// LookupExchangeRate returns the fixed rate for a currency pair.
func LookupExchangeRate(from, to Currency) (ExchangeRate, error) {
	rate, ok := exchangeRates[currencyPair{from, to}]
	if !ok {
		return ExchangeRate{}, ErrNoExchangeRate(from, to)
	}
	return rate, nil
}
