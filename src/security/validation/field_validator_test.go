package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAmountString(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain integer", "100", "100.00", false},
		{"two decimals kept", "1500.50", "1500.50", false},
		{"comma decimal separator", "250,75", "250.75", false},
		{"extra precision rounded", "10.999", "11.00", false},
		{"whitespace trimmed", "  42.00  ", "42.00", false},
		{"zero rejected", "0", "", true},
		{"negative rejected", "-5.00", "", true},
		{"empty rejected", "", "", true},
		{"text rejected", "сто рублей", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateAmountString(tc.input, "Amount")
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrValidationFailed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestValidateDateString(t *testing.T) {
	valid, err := ValidateDateString("2024-02-29", "date")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", valid.Format("2006-01-02"))

	for _, bad := range []string{"", "2024-13-01", "2023-02-29", "01.02.2024", "2024-2-1", "yesterday"} {
		_, err := ValidateDateString(bad, "date")
		assert.ErrorIs(t, err, ErrValidationFailed, "input %q", bad)
	}
}

func TestValidateDateRange(t *testing.T) {
	from, to, err := ValidateDateRange("2024-01-01", "2024-01-31")
	require.NoError(t, err)
	assert.True(t, from.Before(to))

	// Same day is a valid range.
	_, _, err = ValidateDateRange("2024-01-15", "2024-01-15")
	assert.NoError(t, err)

	_, _, err = ValidateDateRange("2024-02-01", "2024-01-01")
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("user@example.com"))
	assert.NoError(t, ValidateEmail("  first.last+tag@sub.example.ru  "))

	for _, bad := range []string{"", "user", "user@", "@example.com", "user@example"} {
		assert.ErrorIs(t, ValidateEmail(bad), ErrValidationFailed, "input %q", bad)
	}
}

func TestValidateAccountNumber(t *testing.T) {
	assert.NoError(t, ValidateAccountNumber("40702810000000000001"))
	assert.NoError(t, ValidateAccountNumber(""), "cash accounts have no number")
	assert.NoError(t, ValidateAccountNumber("12345"))

	assert.Error(t, ValidateAccountNumber("1234"))
	assert.Error(t, ValidateAccountNumber("4070281000000000000a"))
}

func TestValidateStringMaxLength(t *testing.T) {
	assert.NoError(t, ValidateStringMaxLength("привет", 6, "name"))
	assert.ErrorIs(t, ValidateStringMaxLength("привет!", 6, "name"), ErrValidationFailed)
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "Оплата по счёту", SanitizeText("Оплата по счёту"))
	assert.Equal(t, "", SanitizeText("<script>alert(1)</script>"))
	assert.Equal(t, "bold", SanitizeText("<b>bold</b>"))
}

func TestSanitizeForFormulaInjection(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"=SUM(A1:A2)", "'=SUM(A1:A2)"},
		{"+79990001122", "'+79990001122"},
		{"-100", "'-100"},
		{"@user", "'@user"},
		{"ООО Ромашка", "ООО Ромашка"},
		{"", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, SanitizeForFormulaInjection(tc.input), "input %q", tc.input)
	}
}
