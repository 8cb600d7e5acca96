package command

import (
	"context"
)

// Caller identifies the connection a command runs on. It is handed to
// handlers alongside the arguments so commands such as MONITOR can act on
// the issuing connection.
type Caller interface {
	// ID is the opaque, unique connection id.
	ID() string
	// Addr is the peer "ip:port".
	Addr() string
	// Deliver queues a monitor line for the connection without blocking.
	// It returns false when the line was dropped.
	Deliver(line string) bool
}

// Handler executes one command. Instances are pooled: a handler is used by
// one command at a time and Reset before it goes back to the pool.
type Handler interface {
	// Initialize validates args (args[0] is the command name) and stores
	// what Execute needs. It must not touch the store.
	Initialize(args [][]byte, desc Descriptor, caller Caller) error
	// Execute runs the command. A non-nil error means the command failed
	// and, for writes, must not be logged.
	Execute(ctx context.Context) error
	// Reply returns the RESP reply of a successful Execute.
	Reply() []byte
	Reset()
}

// Factory creates a fresh handler instance.
type Factory func() Handler

// Base implements the bookkeeping shared by most handlers. Embed it and
// implement Execute.
type Base struct {
	Args   [][]byte
	Desc   Descriptor
	Caller Caller
	reply  []byte
}

// Initialize checks arity and keeps the arguments.
func (b *Base) Initialize(args [][]byte, desc Descriptor, caller Caller) error {
	if err := desc.CheckArity(len(args)); err != nil {
		return err
	}
	b.Args = args
	b.Desc = desc
	b.Caller = caller
	return nil
}

func (b *Base) Reply() []byte { return b.reply }

func (b *Base) SetReply(p []byte) { b.reply = p }

func (b *Base) Reset() {
	b.Args = nil
	b.Desc = Descriptor{}
	b.Caller = nil
	b.reply = nil
}
