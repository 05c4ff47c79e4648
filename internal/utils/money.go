package utils

import (
	"strconv"
	"strings"
)

// FormatAmount renders an integer amount with thousand separators for log lines,
// e.g. "IDR 1.250.000". An empty currency prints the number alone.
func FormatAmount(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	num := sign + formatThousand(amount)
	if c := strings.ToUpper(strings.TrimSpace(currency)); c != "" {
		return c + " " + num
	}
	return num
}

func formatThousand(n int64) string {
	str := strconv.FormatInt(n, 10)
	var out strings.Builder
	for i, c := range str {
		if i != 0 && (len(str)-i)%3 == 0 {
			out.WriteByte('.')
		}
		out.WriteRune(c)
	}
	return out.String()
}
