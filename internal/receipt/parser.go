package receipt

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// ParsedReceipt is a best-effort reading of receipt text. Every field is optional;
// an absent field is nil or the empty string.
type ParsedReceipt struct {
	Amount        *decimal.Decimal
	Reference     string
	TransactionID string
	Date          string
	Time          string
	Recipient     string
}

func (p ParsedReceipt) HasAmount() bool        { return p.Amount != nil }
func (p ParsedReceipt) HasReference() bool     { return p.Reference != "" }
func (p ParsedReceipt) HasTransactionID() bool { return p.TransactionID != "" }
func (p ParsedReceipt) HasRecipient() bool     { return p.Recipient != "" }

var (
	amountPattern = regexp.MustCompile(`(?i)(?:^|[^A-Za-z])(GH₵|GHS|GHC|₵|NGN|₦|KES|KSH|USD|US\$|\$|LKR|RS\.?|€|EUR|£|GBP)\s*([0-9]{1,3}(?:,[0-9]{3})+(?:\.[0-9]+)?|[0-9]+(?:\.[0-9]+)?)`)

	referenceKeyword = regexp.MustCompile(`(?i)\b(?:ref|reference|note|narration|description|memo)\b`)
	referenceCode    = regexp.MustCompile(`\b([A-Za-z]{2,5}[0-9]{4,})\b`)
	referenceShape   = regexp.MustCompile(`^[A-Z]{2,5}[0-9]{4,}$`)

	transactionKeyword = regexp.MustCompile(`(?i)\b(?:transaction|txn|trans id|id)\b`)
	alnumToken         = regexp.MustCompile(`\b[A-Za-z0-9]{8,}\b`)

	datePattern = regexp.MustCompile(`(?i)\b(\d{1,2}/\d{1,2}/\d{4}|\d{4}-\d{2}-\d{2}|\d{1,2}-\d{1,2}-\d{4}|\d{1,2}\s+(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?,?\s+\d{4})\b`)
	timePattern = regexp.MustCompile(`(?i)\b(\d{1,2}:\d{2}(?::\d{2})?(?:\s?[ap]\.?m\b\.?)?)`)

	recipientKeyword = regexp.MustCompile(`(?i)\b(?:to|recipient|beneficiary)\b`)
	phoneCandidate   = regexp.MustCompile(`\+?\d[\d\s-]{7,}\d`)
)

// ValidReference reports whether ref is an upper-case code Parse can find on a receipt.
func ValidReference(ref string) bool {
	return referenceShape.MatchString(ref)
}

// Parse extracts candidate fields from raw OCR text. For every field the first
// matching line wins; later candidates are ignored.
func Parse(text string) ParsedReceipt {
	var out ParsedReceipt
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	for _, line := range lines {
		if out.Amount == nil {
			out.Amount = parseAmount(line)
		}
		if out.Reference == "" {
			out.Reference = afterKeyword(line, referenceKeyword, parseReference)
		}
		if out.TransactionID == "" {
			out.TransactionID = afterKeyword(line, transactionKeyword, parseTransactionID)
		}
		if out.Recipient == "" {
			out.Recipient = afterKeyword(line, recipientKeyword, parsePhone)
		}
	}

	if m := datePattern.FindStringSubmatch(text); m != nil {
		out.Date = m[1]
	}
	if m := timePattern.FindStringSubmatch(text); m != nil {
		out.Time = strings.TrimSpace(m[1])
	}

	return out
}

func parseAmount(line string) *decimal.Decimal {
	m := amountPattern.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	amount, err := decimal.NewFromString(strings.ReplaceAll(m[2], ",", ""))
	if err != nil {
		return nil
	}
	return &amount
}

// afterKeyword applies extract to the text following the first keyword on the line.
func afterKeyword(line string, keyword *regexp.Regexp, extract func(string) string) string {
	loc := keyword.FindStringIndex(line)
	if loc == nil {
		return ""
	}
	return extract(line[loc[1]:])
}

func parseReference(rest string) string {
	m := referenceCode.FindStringSubmatch(rest)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

func parseTransactionID(rest string) string {
	for _, token := range alnumToken.FindAllString(rest, -1) {
		if strings.ContainsAny(token, "0123456789") {
			return token
		}
	}
	return ""
}

func parsePhone(rest string) string {
	for _, candidate := range phoneCandidate.FindAllString(rest, -1) {
		phone := strings.NewReplacer(" ", "", "-", "", "\t", "").Replace(candidate)
		digits := strings.TrimPrefix(phone, "+")
		if len(digits) >= 9 && len(digits) <= 15 {
			return phone
		}
	}
	return ""
}
