// Package chat turns raw chat messages into meter mutations: a parser over
// the streamer's dynamic command table, and a processor that routes parsed
// commands through the cooldown guard into the meter engine.
package chat

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/savagegamesllc-ui/chat-factions-sub000/internal/domain"
)

var factionKeyPattern = regexp.MustCompile(`^[A-Z0-9_]{1,24}$`)

// Parsed is a successfully recognized chat command.
type Parsed struct {
	Command    domain.ChatCommand
	FactionKey string
	Delta      int64
}

// Parse matches a message of the form `<prefix><trigger> <FACTIONKEY> [amount]`
// against the command table. Triggers match case-insensitively against the
// canonical trigger and its aliases; disabled commands never match.
//
// The amount is truncated to an integer and clamped to the command's
// [-MaxDelta, +MaxDelta]. MaxHype commands ignore the amount entirely and
// use their fixed default delta. Returns ok=false for anything that should
// be silently dropped: unknown triggers, bad faction keys, zero deltas.
func Parse(message, prefix string, commands []domain.ChatCommand) (Parsed, bool) {
	message = strings.TrimSpace(message)
	if !strings.HasPrefix(message, prefix) {
		return Parsed{}, false
	}

	fields := strings.Fields(message[len(prefix):])
	if len(fields) < 2 {
		return Parsed{}, false
	}

	trigger := strings.ToLower(fields[0])
	var command *domain.ChatCommand
	for i := range commands {
		if commands[i].Enabled && commands[i].Matches(trigger) {
			command = &commands[i]
			break
		}
	}
	if command == nil {
		return Parsed{}, false
	}

	factionKey := strings.ToUpper(fields[1])
	if !factionKeyPattern.MatchString(factionKey) {
		return Parsed{}, false
	}

	delta := command.DefaultDelta
	if command.Kind == domain.CommandHype && len(fields) >= 3 {
		amount, err := strconv.ParseFloat(fields[2], 64)
		if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
			return Parsed{}, false
		}
		// Clamp in float space so the int64 conversion cannot overflow.
		switch {
		case amount > float64(command.MaxDelta):
			delta = command.MaxDelta
		case amount < -float64(command.MaxDelta):
			delta = -command.MaxDelta
		default:
			delta = int64(amount) // truncate toward zero
		}
	}

	if command.Kind != domain.CommandMaxHype {
		if delta > command.MaxDelta {
			delta = command.MaxDelta
		}
		if delta < -command.MaxDelta {
			delta = -command.MaxDelta
		}
	}
	if delta == 0 {
		return Parsed{}, false
	}

	return Parsed{Command: *command, FactionKey: factionKey, Delta: delta}, true
}

// UserKey derives the cooldown identity of a chatter. It prefers the stable
// platform user id and falls back to the normalized username, so renamed
// accounts with stable ids keep one identity.
func UserKey(userID, username string) string {
	if userID != "" {
		return "id:" + userID
	}
	return "name:" + strings.ToLower(strings.TrimSpace(username))
}
