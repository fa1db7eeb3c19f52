package chatwoot

import (
	"regexp"
	"strings"
)

var nonDigits = regexp.MustCompile(`\D`)

// CanonicalPhone turns a WhatsApp JID or raw number into the single
// +-prefixed form the bridge keys contacts on. Applying it to its own
// output is a no-op.
func CanonicalPhone(jid string) string {
	phone := jid

	isJID := false
	if idx := strings.Index(phone, "@"); idx != -1 {
		isJID = true
		phone = phone[:idx]
	}

	// Agent suffix from multi-device JIDs (5511999999999:12)
	if idx := strings.Index(phone, ":"); idx != -1 {
		phone = phone[:idx]
	}

	// Group JIDs carry a creation timestamp after a dash. A dash in a raw
	// number is just formatting, so only cut for JID input.
	if isJID {
		if idx := strings.Index(phone, "-"); idx != -1 {
			phone = phone[:idx]
		}
	}

	phone = nonDigits.ReplaceAllString(phone, "")
	if phone == "" {
		return ""
	}

	// Brazilian mobile numbers gained a ninth digit; normalize the 12-digit
	// form (55 + DDD + 8 digits) so the canonical form always carries it.
	// Other country codes keep their length untouched.
	if strings.HasPrefix(phone, "55") && len(phone) == 12 {
		phone = phone[:4] + "9" + phone[4:]
	}

	return "+" + phone
}

// PhoneVariants returns every form of the number a Chatwoot contact might
// have been stored under. Brazilian mobile numbers exist in the wild both
// with and without the ninth digit, so both are returned, longest first.
func PhoneVariants(phone string) []string {
	canonical := CanonicalPhone(phone)
	if canonical == "" {
		return nil
	}

	digits := strings.TrimPrefix(canonical, "+")
	if !strings.HasPrefix(digits, "55") {
		return []string{canonical}
	}

	// CanonicalPhone already inserted the ninth digit, so the mobile form is
	// always 13 digits here. The 12-digit form is what older Chatwoot
	// contacts may still be stored under.
	if len(digits) == 13 {
		withoutNine := "+" + digits[:4] + digits[5:]
		return []string{canonical, withoutNine}
	}
	return []string{canonical}
}

// IsGroupJID reports whether the JID addresses a group chat.
func IsGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@g.us")
}

// IsStatusBroadcast reports whether the JID is the status feed or a
// newsletter. Neither is ever bridged.
func IsStatusBroadcast(jid string) bool {
	return jid == "status@broadcast" || strings.HasSuffix(jid, "@newsletter")
}

// JIDFromPhone builds the user JID for a canonical phone number.
func JIDFromPhone(phone string) string {
	digits := nonDigits.ReplaceAllString(phone, "")
	return digits + "@s.whatsapp.net"
}
