// Package parser turns scraped and imported price text into decimals.
package parser

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	currencySymbols = strings.NewReplacer(
		"R$", "", "CHF", "", "zł", "", "Kč", "", "kr", "", "kn", "", "lei", "",
		"лв", "", "ден", "", "lek", "",
		"€", "", "$", "", "£", "", "¥", "", "₹", "", "₽", "", "₩", "", "₪", "",
		"₱", "", "₦", "", "₨", "", "฿", "", "₫", "", "₡", "", "₵", "",
	)

	currencyCodes = regexp.MustCompile(`(?i)EUR|USD|GBP|JPY|CNY|INR|RUB|KRW|BRL|CAD|AUD|CHF|SEK|NOK|DKK|PLN|CZK|HUF|RON|BGN|HRK|TRY|MXN|ZAR|THB|IDR|MYR|PHP|SGD|NZD|AED|SAR|QAR`)

	// longest alternatives first so "euros" is not left as "s"
	currencyNames = regexp.MustCompile(`(?i)euros|euro|dollars|dollar|pounds|pound|yen|rupees|rupee|rubles|ruble|francs|franc|kronor|krona|kroner|krone`)

	boilerplate = regexp.MustCompile(`(?i)price:|starting at|from|only|was:|now:|sale:`)

	nonNumeric = regexp.MustCompile(`[^0-9.,\-]`)

	leadingNumber = regexp.MustCompile(`^-?(\d+(\.\d*)?|\.\d+)`)
)

// ParsePrice extracts a price from free text such as "€1.234,56",
// "$1,234.56" or "Price: 51.77 EUR". It never fails: text without a usable
// number yields zero.
func ParsePrice(text string) decimal.Decimal {
	if strings.TrimSpace(text) == "" {
		return decimal.Zero
	}

	cleaned := currencySymbols.Replace(text)
	cleaned = currencyCodes.ReplaceAllString(cleaned, "")
	cleaned = currencyNames.ReplaceAllString(cleaned, "")
	cleaned = boilerplate.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(nonNumeric.ReplaceAllString(cleaned, ""))

	if cleaned == "" {
		return decimal.Zero
	}

	return toDecimal(normalizeSeparators(cleaned))
}

// normalizeSeparators rewrites s so that "." is the only decimal separator
// and no thousands separators remain.
func normalizeSeparators(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.ReplaceAll(s, ",", ".")
		}
		return strings.ReplaceAll(s, ",", "")

	case lastComma >= 0:
		after := len(s) - lastComma - 1
		if after == 2 || (after == 3 && strings.Count(s, ",") == 1) {
			s = strings.ReplaceAll(s, ".", "")
			return strings.ReplaceAll(s, ",", ".")
		}
		return strings.ReplaceAll(s, ",", "")
	}

	return s
}

// toDecimal reads the longest leading number of s, ignoring any trailing
// garbage such as a second dot or a stray minus.
func toDecimal(s string) decimal.Decimal {
	num := leadingNumber.FindString(s)
	if num == "" || num == "-" {
		return decimal.Zero
	}

	d, err := decimal.NewFromString(strings.TrimSuffix(num, "."))
	if err != nil {
		return decimal.Zero
	}
	return d
}
