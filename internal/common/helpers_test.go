package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatUSDT(t *testing.T) {
	tests := []struct {
		name   string
		micros int64
		want   string
	}{
		{"целое число", 50_000_000, "50"},
		{"трёхзначный хвост", 50_047_000, "50.047"},
		{"хвост с нулём в начале", 100_047_000, "100.047"},
		{"половина", 1_500_000, "1.5"},
		{"минимальный шаг", 1, "0.000001"},
		{"ноль", 0, "0"},
		{"отрицательная", -1_500_000, "-1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUSDT(tt.micros))
		})
	}
}

func TestUSDTToMicros(t *testing.T) {
	assert.Equal(t, int64(50_000_000), USDTToMicros(50))
	assert.Equal(t, int64(0), USDTToMicros(0))
}

func TestParseUSDT(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"50", 50_000_000, false},
		{"50.047", 50_047_000, false},
		{"12.5", 12_500_000, false},
		{"0.000001", 1, false},
		{".5", 500_000, false},
		{"-1.5", -1_500_000, false},
		{" 7 ", 7_000_000, false},
		{"", 0, true},
		{"abc", 0, true},
		{"1.2345678", 0, true},
		{"1,5", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseUSDT(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "входная строка %q", tt.in)
			continue
		}
		assert.NoError(t, err, "входная строка %q", tt.in)
		assert.Equal(t, tt.want, got, "входная строка %q", tt.in)
	}
}

func TestPluralizeDays(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{1, "день"},
		{2, "дня"},
		{5, "дней"},
		{11, "дней"},
		{21, "день"},
		{24, "дня"},
		{30, "дней"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, PluralizeDays(tt.n), "n=%d", tt.n)
	}
}

func TestDaysLeft(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 30, DaysLeft(now.AddDate(0, 0, 30), now))
	assert.Equal(t, 0, DaysLeft(now.Add(-time.Hour), now))
	assert.Equal(t, 0, DaysLeft(now.Add(12*time.Hour), now))
}
