package submitter

import "strings"

// Rejection codes used by the submission network. Code 0 is acceptance;
// everything else is an explicit rejection that must be classified before
// deciding whether a retry can help.
const (
	codeOK               uint32 = 0
	codeAlreadySubmitted uint32 = 5
	codeInsufficientFee  uint32 = 13
	codeMempoolFull      uint32 = 20
	codeBadSequence      uint32 = 32
)

// retryableCodes are rejections caused by transient node-side state; a retry
// against another endpoint can succeed.
var retryableCodes = map[uint32]bool{
	codeMempoolFull: true,
}

// retryableLogFragments mirror the node's raw-log wording for transient
// conditions when the code alone is ambiguous.
var retryableLogFragments = []string{
	"mempool is full",
	"tx already in mempool",
	"timed out waiting",
	"throttled",
}

// IsTerminalRejection reports whether a nonzero broadcast code is terminal
// for this cycle. Retrying a terminal rejection wastes the slot and produces
// a misleading audit trail, so unknown codes default to terminal.
func IsTerminalRejection(code uint32, rawLog string) bool {
	if code == codeOK {
		return false
	}
	if retryableCodes[code] {
		return false
	}
	lowered := strings.ToLower(rawLog)
	for _, fragment := range retryableLogFragments {
		if strings.Contains(lowered, fragment) {
			return false
		}
	}
	return true
}

// RejectionReason maps a rejection to the label recorded in metrics and logs.
func RejectionReason(code uint32, rawLog string) string {
	switch code {
	case codeAlreadySubmitted:
		return "already_submitted"
	case codeInsufficientFee:
		return "insufficient_fee"
	case codeBadSequence:
		return "bad_sequence"
	case codeMempoolFull:
		return "mempool_full"
	}
	lowered := strings.ToLower(rawLog)
	switch {
	case strings.Contains(lowered, "already"):
		return "already_submitted"
	case strings.Contains(lowered, "fee"):
		return "insufficient_fee"
	case strings.Contains(lowered, "sequence"), strings.Contains(lowered, "nonce"):
		return "bad_sequence"
	}
	return "unknown_rejection"
}
