package bankapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDateMSK(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantDate string
		wantTime string
	}{
		{"rfc3339 utc shifts to moscow", "2024-03-01T22:30:00Z", "2024-03-02", "01:30:00"},
		{"rfc3339 with offset", "2024-03-01T10:15:30+03:00", "2024-03-01", "10:15:30"},
		{"naive timestamp", "2024-03-01T10:15:30", "2024-03-01", "13:15:30"},
		{"space separated", "2024-03-01 10:15:30", "2024-03-01", "13:15:30"},
		{"date only has no time", "2024-03-01", "2024-03-01", ""},
		{"unparseable but date-shaped", "2024-03-01Tgarbage", "2024-03-01", ""},
		{"empty", "", "", ""},
		{"garbage", "not a date", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			date, timeOfDay := parseDateMSK(tt.raw)
			assert.Equal(t, tt.wantDate, date)
			assert.Equal(t, tt.wantTime, timeOfDay)
		})
	}
}

func TestNormalizeAmount(t *testing.T) {
	tests := []struct {
		name   string
		in     interface{}
		want   string
		wantOK bool
	}{
		{"float", 1234.5, "1234.50", true},
		{"negative float becomes absolute", -99.99, "99.99", true},
		{"string with dot", "100.5", "100.50", true},
		{"string with comma", "100,5", "100.50", true},
		{"integer string", "42", "42.00", true},
		{"negative string", "-15.00", "15.00", true},
		{"nil", nil, "", false},
		{"empty string", "", "", false},
		{"non-numeric", "abc", "", false},
		{"wrong type", []string{"1"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := normalizeAmount(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPickNested(t *testing.T) {
	op := map[string]interface{}{
		"counterparty": map[string]interface{}{"name": "ООО Ромашка"},
		"payer":        map[string]interface{}{"name": ""},
	}
	got := pickNested(op, []string{"payer", "counterparty"}, []string{"name"})
	assert.Equal(t, "ООО Ромашка", got)

	assert.Equal(t, "", pickNested(op, []string{"missing"}, []string{"name"}))
}
