package gateway

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	short := "boom"
	assert.Equal(t, short, truncate(short))

	exact := strings.Repeat("a", maxErrorMessage)
	assert.Equal(t, exact, truncate(exact))

	long := strings.Repeat("a", maxErrorMessage+10)
	assert.Equal(t, strings.Repeat("a", maxErrorMessage)+"...", truncate(long))
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("a", maxErrorMessage-1) + "é" + "tail"

	got := truncate(s)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", maxErrorMessage-1)+"...", got)

	wide := strings.Repeat("日本", maxErrorMessage)
	assert.True(t, utf8.ValidString(truncate(wide)))
}

func TestExtractMessage_LongBodyStaysValidUTF8(t *testing.T) {
	body := `{"detail":"` + strings.Repeat("ü", maxErrorMessage) + `"}`
	msg := extractMessage([]byte(body))
	assert.True(t, utf8.ValidString(msg))
	assert.True(t, strings.HasSuffix(msg, "..."))
}

func TestAPIError_ResponseReceived(t *testing.T) {
	assert.False(t, (&APIError{Kind: KindNetworkUnreachable}).ResponseReceived())
	for _, kind := range []ErrorKind{KindUnauthorized, KindClientError, KindServerError, KindUnexpectedShape} {
		assert.True(t, (&APIError{Kind: kind}).ResponseReceived(), kind)
	}
}
