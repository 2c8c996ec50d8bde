package extract

import "strings"

var paidKeywords = []string{"receipt", "payment confirmation", "קבלה", "אישור תשלום"}

// DetectPaid reports whether the document text reads like proof of payment
// rather than a bill still to be paid.
func DetectPaid(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range paidKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
