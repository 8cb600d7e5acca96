// Package commands provides the built-in command handlers and registers them
// with a command.Registry.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yndnr/kvgate-go/internal/core/auth"
	"github.com/yndnr/kvgate-go/internal/core/command"
	"github.com/yndnr/kvgate-go/internal/core/domain"
	"github.com/yndnr/kvgate-go/internal/core/guard"
	"github.com/yndnr/kvgate-go/internal/core/monitor"
	"github.com/yndnr/kvgate-go/internal/storage"
	"github.com/yndnr/kvgate-go/internal/storage/snapshot"
)

// Snapshotter writes a snapshot of the keyspace. The caller holds the
// suspension.
type Snapshotter interface {
	Snapshot(ctx context.Context) (*snapshot.Info, error)
}

// Deps are the collaborators the handlers run against.
type Deps struct {
	Store   storage.Store
	Guard   *guard.Guard
	Monitor *monitor.Registry

	// Verifier returns the password verifier of the current configuration.
	Verifier func() *auth.Verifier

	// Snapshots backs BGSAVE; nil makes BGSAVE fail.
	Snapshots Snapshotter

	// Shutdown starts a graceful shutdown; nil makes SHUTDOWN fail.
	Shutdown func()

	Logger *slog.Logger
}

type entry struct {
	desc    command.Descriptor
	factory func(*Deps) command.Handler
}

const (
	write    = command.FlagWrite
	admin    = command.FlagAdminOnly
	local    = command.FlagLocalOnly
	suspends = command.FlagSuspend
)

var table = []entry{
	{command.Descriptor{Name: "ping", Arity: -1}, func(d *Deps) command.Handler { return &pingCmd{} }},
	{command.Descriptor{Name: "echo", Arity: 2}, func(d *Deps) command.Handler { return &echoCmd{} }},
	{command.Descriptor{Name: "auth", Arity: 2}, func(d *Deps) command.Handler { return &authCmd{deps: d} }},
	{command.Descriptor{Name: "dbsize", Arity: 1}, func(d *Deps) command.Handler { return &dbsizeCmd{deps: d} }},

	{command.Descriptor{Name: "get", Arity: 2}, func(d *Deps) command.Handler { return &getCmd{deps: d} }},
	{command.Descriptor{Name: "exists", Arity: -2}, func(d *Deps) command.Handler { return &existsCmd{deps: d} }},
	{command.Descriptor{Name: "strlen", Arity: 2}, func(d *Deps) command.Handler { return &strlenCmd{deps: d} }},

	{command.Descriptor{Name: "set", Flags: write, Arity: -3}, func(d *Deps) command.Handler { return &setCmd{deps: d} }},
	{command.Descriptor{Name: "setnx", Flags: write, Arity: 3}, func(d *Deps) command.Handler { return &setnxCmd{deps: d} }},
	{command.Descriptor{Name: "del", Flags: write, Arity: -2}, func(d *Deps) command.Handler { return &delCmd{deps: d} }},
	{command.Descriptor{Name: "incr", Flags: write, Arity: 2}, func(d *Deps) command.Handler { return &incrCmd{deps: d, sign: 1} }},
	{command.Descriptor{Name: "decr", Flags: write, Arity: 2}, func(d *Deps) command.Handler { return &incrCmd{deps: d, sign: -1} }},
	{command.Descriptor{Name: "incrby", Flags: write, Arity: 3}, func(d *Deps) command.Handler { return &incrCmd{deps: d, sign: 1} }},
	{command.Descriptor{Name: "decrby", Flags: write, Arity: 3}, func(d *Deps) command.Handler { return &incrCmd{deps: d, sign: -1} }},
	{command.Descriptor{Name: "append", Flags: write, Arity: 3}, func(d *Deps) command.Handler { return &appendCmd{deps: d} }},

	{command.Descriptor{Name: "monitor", Flags: admin, Arity: 1}, func(d *Deps) command.Handler { return &monitorCmd{deps: d} }},
	{command.Descriptor{Name: "shutdown", Flags: admin | local, Arity: -1}, func(d *Deps) command.Handler { return &shutdownCmd{deps: d} }},
	{command.Descriptor{Name: "bgsave", Flags: admin | suspends, Arity: 1}, func(d *Deps) command.Handler { return &bgsaveCmd{deps: d} }},
	{command.Descriptor{Name: "flushall", Flags: admin | write | suspends, Arity: -1}, func(d *Deps) command.Handler { return &flushallCmd{deps: d} }},
}

// Descriptors returns the descriptors of every built-in command.
func Descriptors() []command.Descriptor {
	out := make([]command.Descriptor, len(table))
	for i, s := range table {
		out[i] = s.desc
	}
	return out
}

// Register adds every built-in command to reg.
func Register(ctx context.Context, reg *command.Registry, d Deps) error {
	if d.Store == nil {
		return fmt.Errorf("commands: store is required")
	}
	if d.Guard == nil {
		d.Guard = guard.New(nil, nil)
	}
	if d.Monitor == nil {
		d.Monitor = monitor.NewRegistry(nil)
	}
	if d.Verifier == nil {
		d.Verifier = func() *auth.Verifier { return nil }
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	deps := &d
	for _, s := range table {
		factory := s.factory
		if err := reg.Register(ctx, s.desc, func() command.Handler { return factory(deps) }); err != nil {
			return err
		}
	}
	return nil
}

// storeErr maps a store failure to the client-facing error.
func storeErr(err error) error {
	return domain.ErrStorage.WithCause(err)
}
