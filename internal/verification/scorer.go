package verification

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"ms-payment-verification/internal/receipt"
)

// Check weights. They sum to 100.
const (
	WeightAmount        = 40
	WeightReference     = 40
	WeightRecipient     = 10
	WeightTransactionID = 10

	// ValidThreshold is the confidence at which a receipt counts as valid.
	ValidThreshold = 40
)

var amountTolerance = decimal.New(1, -2)

// Expectation holds what the order says the receipt should show.
// Recipient is optional.
type Expectation struct {
	Amount    decimal.Decimal
	Reference string
	Recipient string
}

type Checks struct {
	AmountMatch      bool `json:"amount_match"`
	ReferenceMatch   bool `json:"reference_match"`
	RecipientMatch   bool `json:"recipient_match"`
	HasTransactionID bool `json:"has_transaction_id"`
}

// Result is the outcome of one verification attempt. It is not persisted.
type Result struct {
	IsValid          bool     `json:"is_valid"`
	Confidence       int      `json:"confidence"`
	Checks           Checks   `json:"checks"`
	Issues           []string `json:"issues"`
	ExtractionFailed bool     `json:"extraction_failed"`
}

// Score compares a parsed receipt to the expectation.
func Score(parsed receipt.ParsedReceipt, expected Expectation) Result {
	var res Result

	switch {
	case !parsed.HasAmount():
		res.Issues = append(res.Issues, "Amount not found in receipt")
	case parsed.Amount.Sub(expected.Amount).Abs().LessThanOrEqual(amountTolerance):
		res.Checks.AmountMatch = true
		res.Confidence += WeightAmount
	default:
		res.Issues = append(res.Issues, fmt.Sprintf("Amount mismatch: expected %s, found %s",
			expected.Amount.StringFixed(2), parsed.Amount.StringFixed(2)))
	}

	switch {
	case !parsed.HasReference():
		res.Issues = append(res.Issues, "Reference not found in receipt")
	case parsed.Reference == expected.Reference:
		res.Checks.ReferenceMatch = true
		res.Confidence += WeightReference
	default:
		res.Issues = append(res.Issues, fmt.Sprintf("Reference mismatch: expected %s, found %s",
			expected.Reference, parsed.Reference))
	}

	switch {
	case expected.Recipient == "":
		// nothing was asked for, nothing to penalize
		res.Checks.RecipientMatch = true
		res.Confidence += WeightRecipient
	case !parsed.HasRecipient():
		res.Issues = append(res.Issues, "Recipient not found in receipt")
	case recipientMatches(expected.Recipient, parsed.Recipient):
		res.Checks.RecipientMatch = true
		res.Confidence += WeightRecipient
	default:
		res.Issues = append(res.Issues, fmt.Sprintf("Recipient mismatch: expected %s, found %s",
			expected.Recipient, parsed.Recipient))
	}

	if parsed.HasTransactionID() {
		res.Checks.HasTransactionID = true
		res.Confidence += WeightTransactionID
	}

	res.IsValid = res.Confidence >= ValidThreshold
	return res
}

func recipientMatches(expected, found string) bool {
	e, f := stripSpaces(expected), stripSpaces(found)
	if e == "" || f == "" {
		return false
	}
	return strings.Contains(e, f) || strings.Contains(f, e)
}

func stripSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// ExtractionFailedResult is the zero-confidence result used when the receipt could not be read.
func ExtractionFailedResult(issue string) Result {
	return Result{
		IsValid:          false,
		Confidence:       0,
		Issues:           []string{issue},
		ExtractionFailed: true,
	}
}
