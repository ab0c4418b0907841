package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatPrice renders an amount for display in the given currency and language. It is
// independent of any request or application state.
func FormatPrice(amount decimal.Decimal, currencyCode, lang string) string {
	code := strings.ToUpper(strings.TrimSpace(currencyCode))
	unit, err := currency.ParseISO(code)
	if err != nil {
		if code == "" {
			return amount.StringFixed(2)
		}
		return amount.StringFixed(2) + " " + code
	}

	tag, err := language.Parse(strings.TrimSpace(lang))
	if err != nil {
		tag = language.English
	}

	scale, _ := currency.Standard.Rounding(unit)
	value, _ := amount.Round(int32(scale)).Float64()
	printer := message.NewPrinter(tag)
	return printer.Sprint(currency.Symbol(unit.Amount(value)))
}
