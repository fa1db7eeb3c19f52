package wameow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"

	"zapdesk/internal/ports"
	"zapdesk/platform/logger"
)

func newTestTranslator() *eventTranslator {
	return &eventTranslator{
		instance: "acme",
		bridge:   func() ports.EventBridge { return nil },
		logger:   logger.NewWithConfig(logger.TestConfig()),
	}
}

func TestTranslateConversationText(t *testing.T) {
	tr := newTestTranslator()
	me := &ports.MessageEvent{}

	ok := tr.translateContent(&waE2E.Message{Conversation: proto.String("hello")}, me)

	require.True(t, ok)
	assert.Equal(t, "text", me.Type)
	assert.Equal(t, "hello", me.Text)
	assert.Nil(t, me.Quoted)
}

func TestTranslateExtendedTextWithQuote(t *testing.T) {
	tr := newTestTranslator()
	me := &ports.MessageEvent{}

	msg := &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String("a reply"),
			ContextInfo: &waE2E.ContextInfo{
				StanzaID:      proto.String("3EB0AAAA1111"),
				Participant:   proto.String("5511999999999@s.whatsapp.net"),
				QuotedMessage: &waE2E.Message{Conversation: proto.String("the original")},
			},
		},
	}

	require.True(t, tr.translateContent(msg, me))
	assert.Equal(t, "a reply", me.Text)
	require.NotNil(t, me.Quoted)
	assert.Equal(t, "3EB0AAAA1111", me.Quoted.MessageID)
	assert.Equal(t, "the original", me.Quoted.Text)
}

func TestTranslateImageWithCaption(t *testing.T) {
	tr := newTestTranslator()
	me := &ports.MessageEvent{}

	msg := &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			Caption:    proto.String("look at this"),
			Mimetype:   proto.String("image/jpeg"),
			FileLength: proto.Uint64(2048),
		},
	}

	require.True(t, tr.translateContent(msg, me))
	assert.Equal(t, "image", me.Type)
	assert.Equal(t, "look at this", me.Text)
	require.NotNil(t, me.Media)
	assert.Equal(t, "image/jpeg", me.Media.MimeType)
	assert.Equal(t, int64(2048), me.Media.Size)
	assert.NotNil(t, me.Media.Download)
}

func TestTranslateDocumentFilename(t *testing.T) {
	tr := newTestTranslator()
	me := &ports.MessageEvent{}

	msg := &waE2E.Message{
		DocumentMessage: &waE2E.DocumentMessage{
			FileName: proto.String("invoice.pdf"),
			Mimetype: proto.String("application/pdf"),
		},
	}

	require.True(t, tr.translateContent(msg, me))
	assert.Equal(t, "document", me.Type)
	require.NotNil(t, me.Media)
	assert.Equal(t, "invoice.pdf", me.Media.Filename)
}

func TestTranslateLocation(t *testing.T) {
	tr := newTestTranslator()
	me := &ports.MessageEvent{}

	msg := &waE2E.Message{
		LocationMessage: &waE2E.LocationMessage{
			DegreesLatitude:  proto.Float64(-23.55),
			DegreesLongitude: proto.Float64(-46.63),
			Name:             proto.String("Office"),
		},
	}

	require.True(t, tr.translateContent(msg, me))
	assert.Equal(t, "location", me.Type)
	require.NotNil(t, me.Location)
	assert.Equal(t, -23.55, me.Location.Latitude)
	assert.Equal(t, "Office", me.Location.Name)
}

func TestTranslateContactCard(t *testing.T) {
	tr := newTestTranslator()
	me := &ports.MessageEvent{}

	msg := &waE2E.Message{
		ContactMessage: &waE2E.ContactMessage{
			DisplayName: proto.String("Alice"),
			Vcard:       proto.String("BEGIN:VCARD\nVERSION:3.0\nFN:Alice\nTEL:+5511988887777\nEND:VCARD"),
		},
	}

	require.True(t, tr.translateContent(msg, me))
	assert.Equal(t, "contact", me.Type)
	require.NotNil(t, me.ContactCard)
	assert.Equal(t, "Alice", me.ContactCard.DisplayName)
}

func TestTranslateReaction(t *testing.T) {
	tr := newTestTranslator()
	me := &ports.MessageEvent{}

	msg := &waE2E.Message{
		ReactionMessage: &waE2E.ReactionMessage{
			Key:  &waCommon.MessageKey{ID: proto.String("3EB0BBBB2222")},
			Text: proto.String("👍"),
		},
	}

	require.True(t, tr.translateContent(msg, me))
	assert.Equal(t, "reaction", me.Type)
	require.NotNil(t, me.Reaction)
	assert.Equal(t, "3EB0BBBB2222", me.Reaction.TargetMessageID)
	assert.Equal(t, "👍", me.Reaction.Emoji)
}

func TestTranslateUnsupportedContent(t *testing.T) {
	tr := newTestTranslator()
	me := &ports.MessageEvent{}

	assert.False(t, tr.translateContent(&waE2E.Message{}, me))
}

func TestQuotedRefFromNilContext(t *testing.T) {
	assert.Nil(t, quotedRefFrom(nil))
	assert.Nil(t, quotedRefFrom(&waE2E.ContextInfo{}))
}

func TestTextOf(t *testing.T) {
	assert.Equal(t, "", textOf(nil))
	assert.Equal(t, "plain", textOf(&waE2E.Message{Conversation: proto.String("plain")}))
	assert.Equal(t, "ext", textOf(&waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("ext")},
	}))
	assert.Equal(t, "cap", textOf(&waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{Caption: proto.String("cap")},
	}))
}
