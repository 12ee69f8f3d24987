package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactJSONBody(t *testing.T) {
	body := `{"access_token":"eyJ0eXAi","refresh_token":"0.AXoA","expires_in":3600}`
	redacted := Redact(body)

	assert.NotContains(t, redacted, "eyJ0eXAi")
	assert.NotContains(t, redacted, "0.AXoA")
	assert.Contains(t, redacted, "[REDACTED]")
	assert.Contains(t, redacted, `"expires_in":3600`)
}

func TestRedactFormBody(t *testing.T) {
	form := "grant_type=authorization_code&code=M.C507_BAY&client_secret=s3cret&redirect_uri=http://x"
	redacted := Redact(form)

	assert.NotContains(t, redacted, "M.C507_BAY")
	assert.NotContains(t, redacted, "s3cret")
	assert.Contains(t, redacted, "grant_type=authorization_code")
	assert.Contains(t, redacted, "redirect_uri=http://x")
}

func TestRedactLeavesPlainTextAlone(t *testing.T) {
	msg := "delta fetch failed with status 502"
	assert.Equal(t, msg, Redact(msg))
}
