package bankapi

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Bank statements are reported in Moscow time regardless of server locale.
var mskLocation = time.FixedZone("MSK", 3*60*60)

// parseDateMSK parses a bank timestamp and renders it in Moscow time.
// Returns the date as YYYY-MM-DD and the time as HH:MM:SS; the time is empty
// when the input carries no usable clock component.
func parseDateMSK(raw string) (date, timeOfDay string) {
	if raw == "" {
		return "", ""
	}
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		if layout == "2006-01-02" {
			return t.Format("2006-01-02"), ""
		}
		msk := t.In(mskLocation)
		return msk.Format("2006-01-02"), msk.Format("15:04:05")
	}
	// Unparseable timestamp: salvage the date part if it looks like one.
	if idx := strings.IndexByte(raw, 'T'); idx == 10 {
		return raw[:10], ""
	}
	return "", ""
}

// normalizeAmount parses a bank amount (string or number, comma or dot
// decimal separator) into an absolute two-digit decimal string. The second
// return is false when the value is not numeric.
func normalizeAmount(v interface{}) (string, bool) {
	var s string
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		s = strings.TrimSpace(strings.ReplaceAll(x, ",", "."))
	case float64:
		return decimal.NewFromFloat(x).Abs().StringFixed(2), true
	default:
		return "", false
	}
	if s == "" {
		return "", false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return "", false
	}
	return d.Abs().StringFixed(2), true
}

// pickString returns the first non-empty trimmed string among keys in op.
func pickString(op map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := op[k].(string); ok {
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// pickNested returns the first non-empty name found in nested objects.
func pickNested(op map[string]interface{}, objKeys []string, nameKeys []string) string {
	for _, k := range objKeys {
		node, ok := op[k].(map[string]interface{})
		if !ok {
			continue
		}
		if s := pickString(node, nameKeys...); s != "" {
			return s
		}
	}
	return ""
}

var counterpartyNameKeys = []string{
	"counterpartyName", "contragentName", "beneficiaryName",
	"recipientName", "payerName", "payeeName",
}
