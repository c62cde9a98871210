package utils

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	printer = message.NewPrinter(language.English)
	titler  = cases.Title(language.English)
)

// FormatCents renders an amount in cents with thousands grouping, e.g. 123456 -> "1,234.56".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign, cents = "-", -cents
	}
	return sign + printer.Sprintf("%d", cents/100) + fmt.Sprintf(".%02d", cents%100)
}

// Label turns a stored key such as "in_progress" or "family law" into "In Progress" / "Family Law".
func Label(key string) string {
	if key == "" {
		return "Uncategorized"
	}
	return titler.String(strings.ReplaceAll(key, "_", " "))
}
