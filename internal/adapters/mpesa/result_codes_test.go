package mpesa

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetResultCode(t *testing.T) {
	tests := []struct {
		code      int
		approved  bool
		retriable bool
	}{
		{ResultSuccess, true, false},
		{ResultInsufficientBalance, false, true},
		{ResultCancelledByUser, false, true},
		{ResultUnreachable, false, true},
		{ResultInvalidPIN, false, true},
		{ResultTransactionExpired, false, true},
		{ResultPushError, false, true},
		{ResultSystemError, false, true},
	}

	for _, tt := range tests {
		info := GetResultCode(tt.code)
		assert.Equal(t, tt.code, info.Code)
		assert.Equal(t, tt.approved, info.IsApproved, "code %d", tt.code)
		assert.Equal(t, tt.retriable, info.IsRetriable, "code %d", tt.code)
		assert.NotEmpty(t, info.UserMessage)
	}
}

func TestGetResultCode_Unknown(t *testing.T) {
	info := GetResultCode(4242)
	assert.Equal(t, 4242, info.Code)
	assert.False(t, info.IsApproved)
	assert.Equal(t, "Unknown result code", info.Description)
}
