package inventory

import (
	"fmt"
	"strings"

	"github.com/warp/stock-ledger/ledger"
)

// ValidateEAN checks length and check digit of an EAN-8, UPC-A (12),
// EAN-13 or GTIN-14 code. The returned error is a warning: callers record the status
// and carry on.
func ValidateEAN(code string) (ledger.EANStatus, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return ledger.EANEmpty, nil
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return ledger.EANInvalid, &ledger.ValidationError{Field: "ean", Message: "must contain digits only"}
		}
	}
	switch len(code) {
	case 8, 12, 13, 14:
	default:
		return ledger.EANInvalid, &ledger.ValidationError{Field: "ean", Message: fmt.Sprintf("unsupported length %d", len(code))}
	}

	if want := eanCheckDigit(code[:len(code)-1]); int(code[len(code)-1]-'0') != want {
		return ledger.EANInvalid, &ledger.ValidationError{Field: "ean", Message: fmt.Sprintf("check digit should be %d", want)}
	}
	return ledger.EANValid, nil
}

// eanCheckDigit weights digits 3,1,3,... from the right.
func eanCheckDigit(payload string) int {
	sum := 0
	weight := 3
	for i := len(payload) - 1; i >= 0; i-- {
		sum += int(payload[i]-'0') * weight
		weight = 4 - weight
	}
	return (10 - sum%10) % 10
}
