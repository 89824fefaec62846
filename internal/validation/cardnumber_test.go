package validation

import "testing"

func TestIsValidCardNumber(t *testing.T) {
	tests := []struct {
		number string
		want   bool
	}{
		{"123", true},
		{"0042", true},
		{"999999999999", true},
		{"", false},
		{"12", false},
		{"1234567890123", false},
		{"12a4", false},
		{" 123", false},
		{"12-34", false},
	}

	for _, tt := range tests {
		if got := IsValidCardNumber(tt.number); got != tt.want {
			t.Errorf("IsValidCardNumber(%q) = %v, want %v", tt.number, got, tt.want)
		}
	}
}
