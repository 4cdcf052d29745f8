package util

import "testing"

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxBytes int
		want     string
	}{
		{"未超长", "hello", 10, "hello"},
		{"刚好等长", "hello", 5, "hello"},
		{"英文截断", "hello world", 5, "hello..."},
		{"不切断中文", "中文输出", 4, "中..."},
		{"空字符串", "", 3, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateString(tt.input, tt.maxBytes)
			if got != tt.want {
				t.Errorf("TruncateString(%q, %d) = %q, want %q", tt.input, tt.maxBytes, got, tt.want)
			}
		})
	}
}
