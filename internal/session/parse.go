package session

import (
	"regexp"
	"strconv"
	"strings"
)

// Portuguese ordinals, cardinals and digits mapped to zero-based catalog
// indexes.
var ordinals = map[string]int{
	"primeiro": 0, "1": 0, "um": 0,
	"segundo": 1, "2": 1, "dois": 1,
	"terceiro": 2, "3": 2, "três": 2, "tres": 2,
	"quarto": 3, "4": 3, "quatro": 3,
	"quinto": 4, "5": 4, "cinco": 4,
	"sexto": 5, "6": 5, "seis": 5,
	"sétimo": 6, "setimo": 6, "7": 6, "sete": 6,
	"oitavo": 7, "8": 7, "oito": 7,
	"nono": 8, "9": 8, "nove": 8,
	"décimo": 9, "decimo": 9, "10": 9, "dez": 9,
}

var digitsRe = regexp.MustCompile(`\d+`)

// ParseSelection extracts a zero-based product index from a selection
// message ("2", "quero o segundo", "dois").
func ParseSelection(message string) (int, bool) {
	msg := strings.ToLower(strings.TrimSpace(message))

	for _, tok := range strings.Fields(msg) {
		if idx, ok := ordinals[tok]; ok {
			return idx, true
		}
	}
	if m := digitsRe.FindString(msg); m != "" {
		n, err := strconv.Atoi(m)
		if err == nil && n > 0 {
			return n - 1, true
		}
	}
	return 0, false
}

var nonDigits = regexp.MustCompile(`[^\d]`)

// Digits normalizes a channel address to its bare phone number.
func Digits(address string) string {
	return nonDigits.ReplaceAllString(address, "")
}
