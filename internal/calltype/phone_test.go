package calltype

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"bare ten digits", "5551234567", "+15551234567"},
		{"eleven digits leading one", "15551234567", "+15551234567"},
		{"already e164", "+15551234567", "+15551234567"},
		{"international passthrough", "+445551234", "+445551234"},
		{"formatting stripped", "(555) 123-4567", "+15551234567"},
		{"dots and spaces", "1 555.123.4567", "+15551234567"},
		{"odd length prefixed", "123456", "+123456"},
		{"letters only", "call me", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePhone(tt.in); got != tt.want {
				t.Fatalf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
