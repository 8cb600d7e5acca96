package commands

import (
	"context"
	"strings"

	"github.com/yndnr/kvgate-go/internal/core/auth"
	"github.com/yndnr/kvgate-go/internal/core/command"
	"github.com/yndnr/kvgate-go/internal/core/domain"
	"github.com/yndnr/kvgate-go/internal/protocol/resp"
)

var pong = resp.Simple("PONG")

type pingCmd struct {
	command.Base
}

func (c *pingCmd) Initialize(args [][]byte, desc command.Descriptor, caller command.Caller) error {
	if len(args) > 2 {
		return domain.ErrArgument.WithMessage("wrong number of arguments for 'ping' command")
	}
	return c.Base.Initialize(args, desc, caller)
}

func (c *pingCmd) Execute(ctx context.Context) error {
	if len(c.Args) == 2 {
		c.SetReply(resp.Bulk(c.Args[1]))
		return nil
	}
	c.SetReply(pong)
	return nil
}

type echoCmd struct {
	command.Base
}

func (c *echoCmd) Execute(ctx context.Context) error {
	c.SetReply(resp.Bulk(c.Args[1]))
	return nil
}

// authCmd checks the password and reports the granted tier to the pipeline,
// which owns the connection's state.
type authCmd struct {
	command.Base
	deps    *Deps
	outcome auth.Outcome
}

func (c *authCmd) Execute(ctx context.Context) error {
	v := c.deps.Verifier()
	if !v.Configured() {
		return domain.ErrExecution.WithMessage("Client sent AUTH, but no password is set")
	}
	c.outcome = v.Check(string(c.Args[1]))
	if c.outcome == auth.Denied {
		return domain.ErrExecution.WithMessage("invalid password")
	}
	c.SetReply(resp.OK)
	return nil
}

func (c *authCmd) AuthOutcome() auth.Outcome { return c.outcome }

func (c *authCmd) Reset() {
	c.Base.Reset()
	c.outcome = auth.Denied
}

type dbsizeCmd struct {
	command.Base
	deps *Deps
}

func (c *dbsizeCmd) Execute(ctx context.Context) error {
	n, err := c.deps.Store.Len(ctx)
	if err != nil {
		return storeErr(err)
	}
	c.SetReply(resp.Int(n))
	return nil
}

// monitorCmd subscribes the issuing connection to the command feed. The
// connection notices the subscription and switches to streaming.
type monitorCmd struct {
	command.Base
	deps *Deps
}

func (c *monitorCmd) Execute(ctx context.Context) error {
	c.deps.Monitor.Subscribe(c.Caller)
	c.deps.Logger.Info("monitor client attached", "remote", c.Caller.Addr(), "conn_id", c.Caller.ID())
	c.SetReply(resp.OK)
	return nil
}

// shutdownCmd accepts and ignores the Redis NOSAVE/SAVE modifiers.
type shutdownCmd struct {
	command.Base
	deps *Deps
}

func (c *shutdownCmd) Initialize(args [][]byte, desc command.Descriptor, caller command.Caller) error {
	if err := c.Base.Initialize(args, desc, caller); err != nil {
		return err
	}
	for _, opt := range args[1:] {
		switch strings.ToLower(string(opt)) {
		case "nosave", "save":
		default:
			return errSyntax
		}
	}
	return nil
}

func (c *shutdownCmd) Execute(ctx context.Context) error {
	if c.deps.Shutdown == nil {
		return domain.ErrExecution.WithMessage("shutdown is not available")
	}
	c.deps.Logger.Warn("shutdown requested", "remote", c.Caller.Addr())
	c.deps.Shutdown()
	c.SetReply(resp.OK)
	return nil
}

// bgsaveCmd writes a snapshot while every other command is suspended. The
// snapshot is complete when the reply is sent.
type bgsaveCmd struct {
	command.Base
	deps *Deps
}

func (c *bgsaveCmd) Execute(ctx context.Context) error {
	if c.deps.Snapshots == nil {
		return domain.ErrExecution.WithMessage("snapshots are not configured")
	}
	s := c.deps.Guard.Suspend(ctx)
	defer s.Resume()

	info, err := c.deps.Snapshots.Snapshot(ctx)
	if err != nil {
		c.deps.Logger.Error("bgsave failed", "error", err)
		return domain.ErrStorage.WithMessage("Background save failed").WithCause(err)
	}
	c.deps.Logger.Info("bgsave completed", "snapshot_id", info.ID, "keys", info.KeyCount)
	c.SetReply(resp.Simple("Background saving started"))
	return nil
}

// flushallCmd accepts and ignores the ASYNC/SYNC modifiers.
type flushallCmd struct {
	command.Base
	deps *Deps
}

func (c *flushallCmd) Initialize(args [][]byte, desc command.Descriptor, caller command.Caller) error {
	if err := c.Base.Initialize(args, desc, caller); err != nil {
		return err
	}
	for _, opt := range args[1:] {
		switch strings.ToLower(string(opt)) {
		case "async", "sync":
		default:
			return errSyntax
		}
	}
	return nil
}

func (c *flushallCmd) Execute(ctx context.Context) error {
	s := c.deps.Guard.Suspend(ctx)
	defer s.Resume()

	if err := c.deps.Store.Flush(ctx); err != nil {
		return storeErr(err)
	}
	c.SetReply(resp.OK)
	return nil
}
