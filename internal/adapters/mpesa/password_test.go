package mpesa

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestamp_RendersEastAfricaTime(t *testing.T) {
	utc := time.Date(2024, 3, 1, 21, 30, 5, 0, time.UTC)
	assert.Equal(t, "20240302003005", Timestamp(utc))
}

func TestPassword(t *testing.T) {
	pw := Password("174379", "passkey", "20240302003005")

	raw, err := base64.StdEncoding.DecodeString(pw)
	require.NoError(t, err)
	assert.Equal(t, "174379passkey20240302003005", string(raw))
	assert.NotEqual(t, pw, Password("174379", "passkey", "20240302003006"))
}
