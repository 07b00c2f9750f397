// Package bus publishes runtime events to NATS for live observers. The bus
// is never on the durability path: publishes are fire-and-forget and a
// failed publish loses nothing the WAL has not already recorded.
package bus

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

// Publisher is the narrow publishing contract the runtime consumes.
// *nats.Conn satisfies it directly.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Connect dials a NATS server with sane reconnect behavior for a daemon.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// EventSubject returns the per-tenant subject WAL events are mirrored to.
func EventSubject(tenantID string) string {
	return "wal.events." + tenantID
}
