package chatwoot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalPhone(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain jid", "5511999999999@s.whatsapp.net", "+5511999999999"},
		{"jid with agent suffix", "5511999999999:12@s.whatsapp.net", "+5511999999999"},
		{"group jid drops timestamp", "5511999999999-1609459200@g.us", "+5511999999999"},
		{"already canonical", "+5511999999999", "+5511999999999"},
		{"brazil without ninth digit gains it", "551199999999@s.whatsapp.net", "+5511999999999"},
		{"singapore number keeps its length", "6581234567@s.whatsapp.net", "+6581234567"},
		{"us number untouched", "14155552671@s.whatsapp.net", "+14155552671"},
		{"strips formatting", "+55 (11) 99999-9999", "+5511999999999"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CanonicalPhone(tt.input))
		})
	}
}

func TestCanonicalPhoneIsStable(t *testing.T) {
	inputs := []string{
		"5511999999999@s.whatsapp.net",
		"554899998888@s.whatsapp.net",
		"14155552671@s.whatsapp.net",
		"6581234567@s.whatsapp.net",
	}

	for _, input := range inputs {
		once := CanonicalPhone(input)
		twice := CanonicalPhone(once)
		assert.Equal(t, once, twice, "normalization must be idempotent for %s", input)
	}
}

func TestPhoneVariantsBrazilianMobile(t *testing.T) {
	// 13-digit form (with ninth digit) yields both forms, longest first
	variants := PhoneVariants("+5511999999999")
	assert.Equal(t, []string{"+5511999999999", "+551199999999"}, variants)

	// 12-digit form (without ninth digit) yields both forms too
	variants = PhoneVariants("+551199999999")
	assert.Equal(t, []string{"+5511999999999", "+551199999999"}, variants)
}

func TestPhoneVariantsOtherCountries(t *testing.T) {
	variants := PhoneVariants("+14155552671")
	assert.Equal(t, []string{"+14155552671"}, variants)
}

func TestIsGroupJID(t *testing.T) {
	assert.True(t, IsGroupJID("123456789-1609459200@g.us"))
	assert.False(t, IsGroupJID("5511999999999@s.whatsapp.net"))
}

func TestIsStatusBroadcast(t *testing.T) {
	assert.True(t, IsStatusBroadcast("status@broadcast"))
	assert.True(t, IsStatusBroadcast("120363025246125244@newsletter"))
	assert.False(t, IsStatusBroadcast("5511999999999@s.whatsapp.net"))
}

func TestJIDFromPhone(t *testing.T) {
	assert.Equal(t, "5511999999999@s.whatsapp.net", JIDFromPhone("+5511999999999"))
}
