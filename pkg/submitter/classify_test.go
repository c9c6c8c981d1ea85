package submitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTerminalRejection(t *testing.T) {
	tests := []struct {
		name     string
		code     uint32
		rawLog   string
		terminal bool
	}{
		{"acceptance is not a rejection", codeOK, "", false},
		{"already submitted", codeAlreadySubmitted, "worker already submitted for nonce", true},
		{"insufficient fee", codeInsufficientFee, "insufficient fee", true},
		{"bad sequence", codeBadSequence, "account sequence mismatch", true},
		{"mempool full code is transient", codeMempoolFull, "mempool is full", false},
		{"mempool log overrides unknown code", 99, "tx already in mempool", false},
		{"throttled log is transient", 99, "request throttled by node", false},
		{"unknown code defaults to terminal", 77, "something unexpected", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.terminal, IsTerminalRejection(tt.code, tt.rawLog))
		})
	}
}

func TestRejectionReason(t *testing.T) {
	assert.Equal(t, "already_submitted", RejectionReason(codeAlreadySubmitted, ""))
	assert.Equal(t, "insufficient_fee", RejectionReason(codeInsufficientFee, ""))
	assert.Equal(t, "bad_sequence", RejectionReason(codeBadSequence, ""))
	assert.Equal(t, "mempool_full", RejectionReason(codeMempoolFull, ""))

	// Fall back to raw-log wording when the code is unknown
	assert.Equal(t, "already_submitted", RejectionReason(99, "value already provided"))
	assert.Equal(t, "bad_sequence", RejectionReason(99, "invalid nonce"))
	assert.Equal(t, "unknown_rejection", RejectionReason(99, "???"))
}
