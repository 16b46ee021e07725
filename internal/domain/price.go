package domain

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	multiBuyPattern = regexp.MustCompile(`^(\d+)\s*(?:/|for|pour)\s*(.+)$`)
	amountPattern   = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
)

// Amount parses the printed price into a unit amount.
// "2/5.00" and "2 for 5.00" are divided by the quantity. Unparseable prices are invalid.
func (r ItemRow) Amount() decimal.NullDecimal {
	return ParsePrice(r.Price)
}

// ParsePrice leniently parses a flyer price such as "$3.99", "3,99 $" or "2/5.00".
func ParsePrice(raw string) decimal.NullDecimal {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return decimal.NullDecimal{}
	}

	qty := decimal.NewFromInt(1)
	if m := multiBuyPattern.FindStringSubmatch(s); m != nil {
		n, err := decimal.NewFromString(m[1])
		if err == nil && n.IsPositive() {
			qty = n
			s = m[2]
		}
	}

	num := amountPattern.FindString(s)
	if num == "" {
		return decimal.NullDecimal{}
	}
	num = strings.Replace(num, ",", ".", 1)

	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.NullDecimal{}
	}
	if strings.Contains(s, "¢") && !strings.Contains(s, "$") {
		d = d.Div(decimal.NewFromInt(100))
	}

	return decimal.NewNullDecimal(d.Div(qty).Round(2))
}
