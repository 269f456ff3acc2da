// Package transcript defines the port for the append-only session log
// and its reader.
package transcript

import (
	"github.com/Strob0t/ForgeAgent/internal/domain/conversation"
)

// Writer appends timestamped entries to a session log. Append never
// fails outward: serialization problems are recorded as synthetic error
// entries inside the log itself.
type Writer interface {
	Append(payload any)
	Close() error
}

// WarnFunc receives a description of a log line that could not be
// parsed during reconstruction.
type WarnFunc func(line int, err error)

// Reader reconstructs the conversation from a session log, skipping
// diagnostic entries and reporting unparseable lines through warn.
type Reader interface {
	ReadMessages(path string, warn WarnFunc) ([]conversation.Message, error)
}
