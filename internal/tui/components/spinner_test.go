package components

import (
	"strings"
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{42 * time.Second, "42s"},
		{90 * time.Second, "1m30s"},
		{2*time.Hour + 5*time.Minute, "2h5m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestSpinnerView(t *testing.T) {
	s := NewSpinner()
	s.SetStatusText("bin/tool.js")
	if s.Elapsed() != 0 {
		t.Error("Elapsed() before Start should be zero")
	}
	if !strings.Contains(s.View(), "bin/tool.js") {
		t.Errorf("View() = %q, missing status text", s.View())
	}

	s.Start()
	if !strings.Contains(s.View(), "(0s)") {
		t.Errorf("View() = %q, missing elapsed time", s.View())
	}
	s.SetShowTime(false)
	if strings.Contains(s.View(), "(0s)") {
		t.Errorf("View() = %q, elapsed time shown while disabled", s.View())
	}
}
