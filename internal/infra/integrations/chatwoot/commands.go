package chatwoot

import (
	"context"
	"fmt"
	"strings"

	domain "zapdesk/internal/domain/chatwoot"
	"zapdesk/internal/ports"
	"zapdesk/platform/logger"
)

// commandContactName labels the synthetic contact in the Chatwoot UI.
const commandContactName = "Zapdesk Bot"

const helpText = `Available commands:
/status - connection state of this instance
/reconnect - reconnect to WhatsApp
/disconnect - disconnect from WhatsApp
/clearcache - drop cached conversations and contacts
/help - this message`

// CommandExecutor runs operator commands issued from the helpdesk side and
// returns the reply text to post back.
type CommandExecutor struct {
	gateway  ports.WhatsAppGateway
	resolver *ConversationResolver
	contacts ports.ContactMappingRepository
	logger   *logger.Logger

	handlers map[domain.CommandKind]func(ctx context.Context, instance string, cmd *domain.Command) string
}

func NewCommandExecutor(gateway ports.WhatsAppGateway, resolver *ConversationResolver, contacts ports.ContactMappingRepository, logger *logger.Logger) *CommandExecutor {
	e := &CommandExecutor{
		gateway:  gateway,
		resolver: resolver,
		contacts: contacts,
		logger:   logger.WithModule("command-executor"),
	}

	e.handlers = map[domain.CommandKind]func(ctx context.Context, instance string, cmd *domain.Command) string{
		domain.CommandStatus:     e.status,
		domain.CommandReconnect:  e.reconnect,
		domain.CommandDisconnect: e.disconnect,
		domain.CommandClearCache: e.clearCache,
		domain.CommandHelp:       e.help,
	}

	return e
}

// Execute dispatches a parsed command and returns the reply text.
func (e *CommandExecutor) Execute(ctx context.Context, instance string, cmd *domain.Command) string {
	handler, ok := e.handlers[cmd.Kind]
	if !ok {
		return fmt.Sprintf("Unknown command %q. Send /help for the list.", strings.Fields(cmd.Raw)[0])
	}

	e.logger.InfoWithFields("Executing command", map[string]interface{}{
		"instance": instance,
		"command":  string(cmd.Kind),
	})

	return handler(ctx, instance, cmd)
}

func (e *CommandExecutor) status(ctx context.Context, instance string, cmd *domain.Command) string {
	status := e.gateway.ConnectionStatus(instance)
	if status == nil {
		return fmt.Sprintf("Instance %s is not registered.", instance)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Instance: %s\n", instance)
	fmt.Fprintf(&b, "Connected: %t\n", status.Connected)
	fmt.Fprintf(&b, "Logged in: %t", status.LoggedIn)
	if status.JID != "" {
		fmt.Fprintf(&b, "\nJID: %s", status.JID)
	}
	return b.String()
}

func (e *CommandExecutor) reconnect(ctx context.Context, instance string, cmd *domain.Command) string {
	if err := e.gateway.Connect(ctx, instance); err != nil {
		return fmt.Sprintf("Reconnect failed: %s", err.Error())
	}
	return "Reconnecting to WhatsApp."
}

func (e *CommandExecutor) disconnect(ctx context.Context, instance string, cmd *domain.Command) string {
	if err := e.gateway.Disconnect(instance); err != nil {
		return fmt.Sprintf("Disconnect failed: %s", err.Error())
	}
	return "Disconnected from WhatsApp."
}

func (e *CommandExecutor) clearCache(ctx context.Context, instance string, cmd *domain.Command) string {
	evicted := e.resolver.EvictInstance(instance)
	if err := e.contacts.DeleteByInstance(ctx, instance); err != nil {
		return fmt.Sprintf("Evicted %d conversations, but contact cache cleanup failed: %s", evicted, err.Error())
	}
	return fmt.Sprintf("Cache cleared: %d conversations evicted, contact cache dropped.", evicted)
}

func (e *CommandExecutor) help(ctx context.Context, instance string, cmd *domain.Command) string {
	return helpText
}

// ensureCommandChannel provisions the bot contact and a conversation with
// it so operators have a place to issue commands. Safe to call repeatedly.
func ensureCommandChannel(ctx context.Context, client ports.ChatwootClient, config *ports.ChatwootInstanceConfig, log *logger.Logger) error {
	if config.InboxID == 0 {
		// Nothing to attach the conversation to yet; the inbox
		// provisioning path calls back in once the inbox exists
		return nil
	}

	contacts, err := client.SearchContacts(ctx, commandContactIdentifier)
	if err != nil {
		return fmt.Errorf("failed to search command contact: %w", err)
	}

	var contact *ports.ChatwootContact
	for i := range contacts {
		if contacts[i].Identifier == commandContactIdentifier {
			contact = &contacts[i]
			break
		}
	}

	if contact == nil {
		contact, err = client.CreateContact(ctx, &ports.CreateContactRequest{
			Name:       commandContactName,
			Identifier: commandContactIdentifier,
			InboxID:    config.InboxID,
		})
		if err != nil {
			return fmt.Errorf("failed to create command contact: %w", err)
		}
		log.InfoWithFields("Provisioned command channel contact", map[string]interface{}{
			"instance":   config.Instance,
			"contact_id": contact.ID,
		})
	}

	conversations, err := client.ListContactConversations(ctx, contact.ID)
	if err != nil {
		return fmt.Errorf("failed to list command conversations: %w", err)
	}
	for i := range conversations {
		if conversations[i].InboxID == config.InboxID {
			return nil
		}
	}

	if _, err := client.CreateConversation(ctx, &ports.CreateConversationRequest{
		ContactID: contact.ID,
		InboxID:   config.InboxID,
	}); err != nil {
		return fmt.Errorf("failed to create command conversation: %w", err)
	}
	return nil
}
