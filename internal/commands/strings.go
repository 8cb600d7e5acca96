package commands

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/yndnr/kvgate-go/internal/core/command"
	"github.com/yndnr/kvgate-go/internal/core/domain"
	"github.com/yndnr/kvgate-go/internal/protocol/resp"
	"github.com/yndnr/kvgate-go/internal/storage"
)

var (
	errNotInteger = domain.ErrExecution.WithMessage("value is not an integer or out of range")
	errOverflow   = domain.ErrExecution.WithMessage("increment or decrement would overflow")
	errSyntax     = domain.ErrArgument.WithMessage("syntax error")
)

// ============================================================================
// Reads
// ============================================================================

type getCmd struct {
	command.Base
	deps *Deps
}

func (c *getCmd) Execute(ctx context.Context) error {
	v, err := c.deps.Store.Get(ctx, c.Args[1])
	if errors.Is(err, storage.ErrNotFound) {
		c.SetReply(resp.AppendNull(nil))
		return nil
	}
	if err != nil {
		return storeErr(err)
	}
	c.SetReply(resp.Bulk(v))
	return nil
}

type existsCmd struct {
	command.Base
	deps *Deps
}

func (c *existsCmd) Execute(ctx context.Context) error {
	n, err := c.deps.Store.Exists(ctx, c.Args[1:]...)
	if err != nil {
		return storeErr(err)
	}
	c.SetReply(resp.Int(int64(n)))
	return nil
}

type strlenCmd struct {
	command.Base
	deps *Deps
}

func (c *strlenCmd) Execute(ctx context.Context) error {
	v, err := c.deps.Store.Get(ctx, c.Args[1])
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return storeErr(err)
	}
	c.SetReply(resp.Int(int64(len(v))))
	return nil
}

// ============================================================================
// Writes
// ============================================================================

// setCmd implements SET key value [NX|XX].
type setCmd struct {
	command.Base
	deps *Deps
	nx   bool
	xx   bool
}

func (c *setCmd) Initialize(args [][]byte, desc command.Descriptor, caller command.Caller) error {
	if err := c.Base.Initialize(args, desc, caller); err != nil {
		return err
	}
	for _, opt := range args[3:] {
		switch strings.ToLower(string(opt)) {
		case "nx":
			c.nx = true
		case "xx":
			c.xx = true
		default:
			return errSyntax
		}
	}
	if c.nx && c.xx {
		return errSyntax
	}
	return nil
}

func (c *setCmd) Execute(ctx context.Context) error {
	key, value := c.Args[1], c.Args[2]
	switch {
	case c.nx:
		ok, err := c.deps.Store.SetNX(ctx, key, value)
		if err != nil {
			return storeErr(err)
		}
		if !ok {
			c.SetReply(resp.AppendNull(nil))
			return nil
		}
	case c.xx:
		// The key lock makes the check and the set atomic.
		n, err := c.deps.Store.Exists(ctx, key)
		if err != nil {
			return storeErr(err)
		}
		if n == 0 {
			c.SetReply(resp.AppendNull(nil))
			return nil
		}
		fallthrough
	default:
		if err := c.deps.Store.Set(ctx, key, value); err != nil {
			return storeErr(err)
		}
	}
	c.SetReply(resp.OK)
	return nil
}

func (c *setCmd) Reset() {
	c.Base.Reset()
	c.nx, c.xx = false, false
}

type setnxCmd struct {
	command.Base
	deps *Deps
}

func (c *setnxCmd) Execute(ctx context.Context) error {
	ok, err := c.deps.Store.SetNX(ctx, c.Args[1], c.Args[2])
	if err != nil {
		return storeErr(err)
	}
	if ok {
		c.SetReply(resp.Int(1))
	} else {
		c.SetReply(resp.Int(0))
	}
	return nil
}

type delCmd struct {
	command.Base
	deps *Deps
}

func (c *delCmd) Execute(ctx context.Context) error {
	n, err := c.deps.Store.Delete(ctx, c.Args[1:]...)
	if err != nil {
		return storeErr(err)
	}
	c.SetReply(resp.Int(int64(n)))
	return nil
}

// incrCmd implements INCR, DECR, INCRBY and DECRBY. sign is fixed per
// command; the delta comes from the third argument when there is one.
type incrCmd struct {
	command.Base
	deps  *Deps
	sign  int64
	delta int64
}

func (c *incrCmd) Initialize(args [][]byte, desc command.Descriptor, caller command.Caller) error {
	if err := c.Base.Initialize(args, desc, caller); err != nil {
		return err
	}
	if len(args) == 3 {
		d, err := strconv.ParseInt(string(args[2]), 10, 64)
		if err != nil {
			return domain.ErrArgument.WithMessage(errNotInteger.Message)
		}
		if c.sign < 0 {
			if d == math.MinInt64 {
				return domain.ErrArgument.WithMessage(errOverflow.Message)
			}
			d = -d
		}
		c.delta = d
		return nil
	}
	c.delta = c.sign
	return nil
}

func (c *incrCmd) Execute(ctx context.Context) error {
	key := c.Args[1]
	var cur int64
	v, err := c.deps.Store.Get(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return storeErr(err)
	default:
		if cur, err = strconv.ParseInt(string(v), 10, 64); err != nil {
			return errNotInteger
		}
	}

	if (c.delta > 0 && cur > math.MaxInt64-c.delta) || (c.delta < 0 && cur < math.MinInt64-c.delta) {
		return errOverflow
	}
	n := cur + c.delta
	if err := c.deps.Store.Set(ctx, key, strconv.AppendInt(nil, n, 10)); err != nil {
		return storeErr(err)
	}
	c.SetReply(resp.Int(n))
	return nil
}

func (c *incrCmd) Reset() {
	c.Base.Reset()
	c.delta = 0
}

type appendCmd struct {
	command.Base
	deps *Deps
}

func (c *appendCmd) Execute(ctx context.Context) error {
	key := c.Args[1]
	v, err := c.deps.Store.Get(ctx, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return storeErr(err)
	}
	v = append(v, c.Args[2]...)
	if err := c.deps.Store.Set(ctx, key, v); err != nil {
		return storeErr(err)
	}
	c.SetReply(resp.Int(int64(len(v))))
	return nil
}
