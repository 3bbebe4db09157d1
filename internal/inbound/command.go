package inbound

import "strings"

// CommandKind identifies what an inbound message asks for.
type CommandKind string

// Commands understood by the bots.
const (
	CommandLink   CommandKind = "vincular"
	CommandUnlink CommandKind = "desvincular"
	CommandHelp   CommandKind = "ayuda"
	// CommandStart is Telegram's first contact without a deep-link payload.
	CommandStart CommandKind = "start"
)

// Command is a parsed inbound message.
type Command struct {
	Kind CommandKind
	// Arg is the identifier given to VINCULAR, empty when missing.
	Arg string
}

var commandAliases = map[string]CommandKind{
	"vincular":    CommandLink,
	"start":       CommandLink,
	"desvincular": CommandUnlink,
	"baja":        CommandUnlink,
	"stop":        CommandUnlink,
	"ayuda":       CommandHelp,
	"help":        CommandHelp,
}

// ParseCommand reads the first word of text case-insensitively. A leading "/" and a
// Telegram "@botname" suffix are ignored. Anything unrecognized is a help request.
func ParseCommand(text string) Command {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Command{Kind: CommandHelp}
	}

	word := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	if at := strings.IndexByte(word, '@'); at >= 0 {
		word = word[:at]
	}

	kind, ok := commandAliases[word]
	if !ok {
		return Command{Kind: CommandHelp}
	}

	cmd := Command{Kind: kind}
	if kind == CommandLink {
		// RUTs are sometimes typed with spaces: "VINCULAR 12.345.678 - 5"
		cmd.Arg = strings.Join(fields[1:], "")
		if word == "start" && cmd.Arg == "" {
			cmd.Kind = CommandStart
		}
	}
	return cmd
}
