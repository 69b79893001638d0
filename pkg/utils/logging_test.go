package utils

import "testing"

func TestParseBytes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int64
		wantErr  bool
	}{
		{
			name:     "bytes",
			input:    "512",
			expected: 512,
			wantErr:  false,
		},
		{
			name:     "bytes with B suffix",
			input:    "512B",
			expected: 512,
			wantErr:  false,
		},
		{
			name:     "kilobytes",
			input:    "1K",
			expected: 1024,
			wantErr:  false,
		},
		{
			name:     "kilobytes with B suffix",
			input:    "2KB",
			expected: 2048,
			wantErr:  false,
		},
		{
			name:     "megabytes",
			input:    "1M",
			expected: 1024 * 1024,
			wantErr:  false,
		},
		{
			name:     "megabytes with B suffix",
			input:    "5MB",
			expected: 5 * 1024 * 1024,
			wantErr:  false,
		},
		{
			name:     "gigabytes",
			input:    "2G",
			expected: 2 * 1024 * 1024 * 1024,
			wantErr:  false,
		},
		{
			name:     "gigabytes with B suffix",
			input:    "1GB",
			expected: 1024 * 1024 * 1024,
			wantErr:  false,
		},
		{
			name:     "terabytes",
			input:    "1T",
			expected: 1024 * 1024 * 1024 * 1024,
			wantErr:  false,
		},
		{
			name:     "terabytes with B suffix",
			input:    "2TB",
			expected: 2 * 1024 * 1024 * 1024 * 1024,
			wantErr:  false,
		},
		{
			name:     "petabytes",
			input:    "1P",
			expected: 1024 * 1024 * 1024 * 1024 * 1024,
			wantErr:  false,
		},
		{
			name:     "fractional",
			input:    "1.5G",
			expected: int64(1.5 * 1024 * 1024 * 1024),
			wantErr:  false,
		},
		{
			name:     "case insensitive",
			input:    "1gb",
			expected: 1024 * 1024 * 1024,
			wantErr:  false,
		},
		{
			name:     "with spaces",
			input:    " 2 GB ",
			expected: 2 * 1024 * 1024 * 1024,
			wantErr:  false,
		},
		{
			name:     "empty string",
			input:    "",
			expected: 0,
			wantErr:  true,
		},
		{
			name:     "invalid format",
			input:    "invalid",
			expected: 0,
			wantErr:  true,
		},
		{
			name:     "invalid number",
			input:    "XGB",
			expected: 0,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseBytes(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseBytes() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if result != tt.expected {
				t.Errorf("ParseBytes() = %v, want %v", result, tt.expected)
			}
		})
	}
}
