package wameow

import (
	"fmt"
	"regexp"
	"strings"

	waTypes "go.mau.fi/whatsmeow/types"
)

var phoneOnlyRegex = regexp.MustCompile(`^\d+$`)

// NormalizeJID converts a phone number or JID string to the full WhatsApp
// format. Supports +5511999999999, 5511999999999, user@s.whatsapp.net and
// group@g.us inputs.
func NormalizeJID(jid string) string {
	jid = strings.TrimSpace(jid)

	if strings.Contains(jid, "@") {
		return jid
	}

	jid = strings.TrimPrefix(jid, "+")
	jid = strings.ReplaceAll(jid, " ", "")
	jid = strings.ReplaceAll(jid, "-", "")
	jid = strings.ReplaceAll(jid, "(", "")
	jid = strings.ReplaceAll(jid, ")", "")

	if phoneOnlyRegex.MatchString(jid) {
		return jid + "@s.whatsapp.net"
	}

	return jid
}

// ParseJID normalizes and parses a JID string.
func ParseJID(jid string) (waTypes.JID, error) {
	if jid == "" {
		return waTypes.EmptyJID, fmt.Errorf("JID cannot be empty")
	}

	normalized := NormalizeJID(jid)

	parsed, err := waTypes.ParseJID(normalized)
	if err != nil {
		return waTypes.EmptyJID, fmt.Errorf("failed to parse JID %s: %w", normalized, err)
	}

	if parsed.User == "" {
		return waTypes.EmptyJID, fmt.Errorf("JID missing user part: %s", normalized)
	}

	return parsed, nil
}

func validateInstanceName(instance string) error {
	if instance == "" {
		return fmt.Errorf("instance name cannot be empty")
	}
	if len(instance) > 255 {
		return fmt.Errorf("instance name too long")
	}
	return nil
}
