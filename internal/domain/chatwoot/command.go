package chatwoot

import (
	"strings"
)

// CommandKind identifies an operator command issued from the helpdesk side
// through the bridge's system conversation.
type CommandKind string

const (
	CommandStatus     CommandKind = "status"
	CommandReconnect  CommandKind = "reconnect"
	CommandDisconnect CommandKind = "disconnect"
	CommandClearCache CommandKind = "clearcache"
	CommandHelp       CommandKind = "help"
	CommandUnknown    CommandKind = "unknown"
)

// Command is the parsed form of a slash command. Args holds whatever
// followed the verb, split on whitespace.
type Command struct {
	Kind CommandKind
	Raw  string
	Args []string
}

// ParseCommand parses a message body into a command. Returns nil when the
// body is not a slash command at all.
func ParseCommand(content string) *Command {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "/") {
		return nil
	}

	fields := strings.Fields(trimmed)
	verb := strings.ToLower(strings.TrimPrefix(fields[0], "/"))

	cmd := &Command{
		Raw:  trimmed,
		Args: fields[1:],
	}

	switch verb {
	case "status":
		cmd.Kind = CommandStatus
	case "reconnect":
		cmd.Kind = CommandReconnect
	case "disconnect":
		cmd.Kind = CommandDisconnect
	case "clearcache":
		cmd.Kind = CommandClearCache
	case "help":
		cmd.Kind = CommandHelp
	default:
		cmd.Kind = CommandUnknown
	}

	return cmd
}
