// Package natstest runs an in-process NATS server with JetStream for tests.
package natstest

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// StartServer starts an embedded NATS server with JetStream enabled
// The server listens on a random port and stores data in a temporary
// directory; both are cleaned up when the test completes.
func StartServer(t *testing.T) *server.Server {
	t.Helper()

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("Failed to create embedded NATS server: %v", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("Embedded NATS server not ready within timeout")
	}

	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	return ns
}

// Connect opens a plain client connection to the embedded server
func Connect(t *testing.T, ns *server.Server) *nats.Conn {
	t.Helper()

	nc, err := nats.Connect(ns.ClientURL(), nats.Timeout(2*time.Second))
	if err != nil {
		t.Fatalf("Failed to connect to embedded NATS server: %v", err)
	}
	t.Cleanup(nc.Close)

	return nc
}

// AddStream creates a JetStream stream capturing the given subjects
func AddStream(t *testing.T, nc *nats.Conn, name string, subjects ...string) nats.JetStreamContext {
	t.Helper()

	js, err := nc.JetStream()
	if err != nil {
		t.Fatalf("Failed to create JetStream context: %v", err)
	}

	if _, err := js.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: subjects,
		Storage:  nats.MemoryStorage,
	}); err != nil {
		t.Fatalf("Failed to create stream %s: %v", name, err)
	}

	return js
}
