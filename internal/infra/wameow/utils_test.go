package wameow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeJID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain phone", "5511999999999", "5511999999999@s.whatsapp.net"},
		{"with plus", "+5511999999999", "5511999999999@s.whatsapp.net"},
		{"with formatting", "+55 (11) 99999-9999", "5511999999999@s.whatsapp.net"},
		{"already a JID", "5511999999999@s.whatsapp.net", "5511999999999@s.whatsapp.net"},
		{"group JID untouched", "1234567890@g.us", "1234567890@g.us"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeJID(tt.input))
		})
	}
}

func TestParseJID(t *testing.T) {
	jid, err := ParseJID("+5511999999999")
	require.NoError(t, err)
	assert.Equal(t, "5511999999999", jid.User)
	assert.Equal(t, "s.whatsapp.net", jid.Server)
}

func TestParseJIDEmpty(t *testing.T) {
	_, err := ParseJID("")
	assert.Error(t, err)
}

func TestValidateInstanceName(t *testing.T) {
	assert.NoError(t, validateInstanceName("acme"))
	assert.Error(t, validateInstanceName(""))
}
