package chatwoot

import (
	"fmt"
	"regexp"
	"strings"
)

// WhatsApp and Chatwoot disagree on markdown: WhatsApp uses *bold*, _italic_
// and ~strike~, Chatwoot renders CommonMark (**bold**, *italic*, ~~strike~~).
// Conversions run bold first so single-asterisk rules never see ** pairs.

var (
	waBoldRe     = regexp.MustCompile(`\*([^*\n]+)\*`)
	waItalicRe   = regexp.MustCompile(`_([^_\n]+)_`)
	waStrikeRe   = regexp.MustCompile(`~([^~\n]+)~`)
	cwBoldRe     = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	cwItalicRe   = regexp.MustCompile(`\*([^*\n]+)\*`)
	cwStrikeRe   = regexp.MustCompile(`~~([^~\n]+)~~`)
	mentionJidRe = regexp.MustCompile(`@(\d{5,})`)
)

const boldPlaceholder = "\x00b\x00"

// FormatMarkdownForChatwoot converts WhatsApp markdown into Chatwoot
// markdown.
func FormatMarkdownForChatwoot(content string) string {
	content = waStrikeRe.ReplaceAllString(content, "~~$1~~")
	content = waBoldRe.ReplaceAllString(content, boldPlaceholder+"$1"+boldPlaceholder)
	content = waItalicRe.ReplaceAllString(content, "*$1*")
	content = strings.ReplaceAll(content, boldPlaceholder, "**")
	return content
}

// FormatMarkdownForWhatsApp converts Chatwoot markdown into WhatsApp
// markdown.
func FormatMarkdownForWhatsApp(content string) string {
	content = cwStrikeRe.ReplaceAllString(content, "~$1~")
	content = cwBoldRe.ReplaceAllString(content, boldPlaceholder+"$1"+boldPlaceholder)
	content = cwItalicRe.ReplaceAllString(content, "_${1}_")
	content = strings.ReplaceAll(content, boldPlaceholder, "*")
	return content
}

// FormatQuotedMessage renders the quoted text as a blockquote above the
// reply body.
func FormatQuotedMessage(quoted, reply string) string {
	if strings.TrimSpace(quoted) == "" {
		return reply
	}

	var b strings.Builder
	for _, line := range strings.Split(quoted, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		b.WriteString("> ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(reply)

	return strings.TrimSpace(b.String())
}

// FormatReaction renders an emoji reaction as a standalone message.
func FormatReaction(emoji, targetText string) string {
	target := strings.TrimSpace(targetText)
	if target == "" {
		return fmt.Sprintf("Reacted with %s", emoji)
	}
	if len(target) > 80 {
		target = target[:77] + "..."
	}
	return fmt.Sprintf("Reacted with %s to: \"%s\"", emoji, target)
}

// FormatEditedMessage annotates an edit so agents can tell it apart from a
// new message. Edits never replace the original Chatwoot message in place.
func FormatEditedMessage(content string) string {
	return "✏️ _edited_\n" + content
}

// FormatLocation renders a shared location with a maps link.
func FormatLocation(latitude, longitude float64, name, address string) string {
	var b strings.Builder
	b.WriteString("📍 **Location**\n")
	if name != "" {
		b.WriteString(name)
		b.WriteString("\n")
	}
	if address != "" {
		b.WriteString(address)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "https://maps.google.com/?q=%f,%f", latitude, longitude)
	return b.String()
}

// FormatContactCard renders a shared contact card.
func FormatContactCard(name, phone string) string {
	var b strings.Builder
	b.WriteString("📇 **Contact**\n")
	if name != "" {
		fmt.Fprintf(&b, "**Name:** %s\n", name)
	}
	if phone != "" {
		fmt.Fprintf(&b, "**Phone:** %s", phone)
	}
	return strings.TrimSpace(b.String())
}

// FormatMediaPlaceholder stands in for an attachment the bridge refused to
// transfer, usually because it is over the size limit.
func FormatMediaPlaceholder(filename string, size int64, reason string) string {
	label := filename
	if label == "" {
		label = "attachment"
	}
	if size > 0 {
		return fmt.Sprintf("📎 %s (%.1f MB) was not transferred: %s", label, float64(size)/(1024*1024), reason)
	}
	return fmt.Sprintf("📎 %s was not transferred: %s", label, reason)
}

// FormatSignedMessage prefixes the agent signature using the configured
// delimiter between signature and body.
func FormatSignedMessage(content, agentName, delimiter string) string {
	if agentName == "" {
		return content
	}
	if delimiter == "" {
		delimiter = "\n"
	}
	return "*" + agentName + ":*" + delimiter + content
}

// StripMentionJids rewrites raw @<number> mentions into plain numbers so
// Chatwoot does not mis-link them.
func StripMentionJids(content string) string {
	return mentionJidRe.ReplaceAllString(content, "@+$1")
}
