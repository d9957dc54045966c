package calltype

import "strings"

// NormalizePhone reduces a raw caller number to a comparable E.164-like
// form. Rules, in order: empty stays empty; a number already carrying a
// leading + passes through; a bare 10-digit US number gains +1; an
// 11-digit number starting with 1 gains +; anything else gains a bare +.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' || r == '+' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	switch {
	case cleaned == "":
		return ""
	case strings.HasPrefix(cleaned, "+"):
		return cleaned
	case len(cleaned) == 10:
		return "+1" + cleaned
	case len(cleaned) == 11 && cleaned[0] == '1':
		return "+" + cleaned
	default:
		return "+" + cleaned
	}
}
