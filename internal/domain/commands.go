package domain

// CommandKind discriminates the supported chat command behaviours.
type CommandKind string

const (
	// CommandHype adds a signed delta to a faction's meter.
	CommandHype CommandKind = "hype"
	// CommandMaxHype adds the command's fixed default delta, ignoring any
	// numeric argument. Used for dramatic spikes and debugging.
	CommandMaxHype CommandKind = "maxhype"
	// CommandVote is a single fixed-size increment per chatter.
	CommandVote CommandKind = "vote"
)

// ChatCommand is one entry of a streamer's dynamic command table.
type ChatCommand struct {
	Kind            CommandKind `json:"kind"`
	Trigger         string      `json:"trigger"`
	Aliases         []string    `json:"aliases,omitempty"`
	Enabled         bool        `json:"enabled"`
	CooldownSeconds int         `json:"cooldownSeconds"`
	// MaxDelta clamps parsed amounts to [-MaxDelta, +MaxDelta].
	MaxDelta int64 `json:"maxDelta"`
	// DefaultDelta is used when no amount is given, and is the fixed delta
	// for CommandMaxHype and CommandVote.
	DefaultDelta int64 `json:"defaultDelta"`
}

// Matches reports whether trigger (already lowercased) names this command.
func (c ChatCommand) Matches(trigger string) bool {
	if c.Trigger == trigger {
		return true
	}
	for _, a := range c.Aliases {
		if a == trigger {
			return true
		}
	}
	return false
}

// DefaultCommands is the command table used when a streamer has not
// customised anything.
func DefaultCommands() []ChatCommand {
	return []ChatCommand{
		{Kind: CommandHype, Trigger: "hype", Enabled: true, CooldownSeconds: 60, MaxDelta: 100, DefaultDelta: 10},
		{Kind: CommandMaxHype, Trigger: "maxhype", Enabled: true, CooldownSeconds: 300, MaxDelta: 1000, DefaultDelta: 1000},
		{Kind: CommandVote, Trigger: "vote", Aliases: []string{"join"}, Enabled: true, CooldownSeconds: 60, MaxDelta: 1, DefaultDelta: 1},
	}
}
