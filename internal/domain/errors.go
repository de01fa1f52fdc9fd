package domain

import "errors"

var (
	// ErrUnknownFaction is returned by the meter engine when the faction key
	// does not exist for the streamer. Indicates a caller bug or a stale key,
	// not a runtime condition.
	ErrUnknownFaction = errors.New("unknown faction")

	// ErrStreamerNotFound means no streamer matched the given lookup handle.
	ErrStreamerNotFound = errors.New("streamer not found")

	// ErrFactionExists means a faction with the same key already exists.
	ErrFactionExists = errors.New("faction key already exists")

	// ErrFactionLimit means the create would exceed the per-streamer maximum.
	ErrFactionLimit = errors.New("faction limit reached")

	// ErrFactionMinimum means the delete/deactivate would drop the streamer
	// below the minimum active faction count.
	ErrFactionMinimum = errors.New("minimum faction count reached")
)
