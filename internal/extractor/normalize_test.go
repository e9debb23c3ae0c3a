package extractor

import (
	"testing"

	"github.com/watcherhq/watcher/internal/models"
)

func TestNormalizeNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"$ 1,249.99", "1249.99"},
		{"1,249,993 sold", "1249993"},
		{"19,99 €", "19.99"},
		{"42", "42"},
		{"-3.5%", "-3.5"},
		{"sold out", ""},
	}

	for _, tt := range tests {
		if got := Normalize(models.NormalizeNumber, tt.in); got != tt.want {
			t.Errorf("Normalize(number, %q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeText(t *testing.T) {
	got := Normalize(models.NormalizeText, "  Walk-ins\n   welcome   today ")
	if got != "Walk-ins welcome today" {
		t.Errorf("Normalize(text) = %q", got)
	}
}
