// Package archive keeps an append-only audit trail of every event the
// sessions publish. It is write-behind: sessions hand events to a Writer and
// never wait on storage. Nothing here is read back into a running game.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DoyleJ11/avalon-server/internal/engine"
)

// Record is one archived event.
type Record struct {
	SessionID int64
	Event     engine.Event
	At        time.Time
}

type Store interface {
	Append(ctx context.Context, r Record) error
	// History returns a session's events in sequence order.
	History(ctx context.Context, sessionID int64) ([]engine.Event, error)
	Close() error
}

// Open picks a store by driver name: "sqlite" or "postgres".
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite":
		return OpenSQLite(dsn)
	case "postgres":
		return OpenPostgres(dsn)
	default:
		return nil, fmt.Errorf("unknown archive driver %q", driver)
	}
}

func encode(e engine.Event) (string, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}
	return string(payload), nil
}

func decode(payload string) (engine.Event, error) {
	var e engine.Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return engine.Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return e, nil
}
