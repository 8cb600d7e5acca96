// Package admission implements the command admission pipeline: resolution,
// authorization, local-only checks, monitor broadcast, argument validation,
// the read-only gate, guarded execution and the slow-command log.
//
// Every rejection before guarded execution is lock-free; it costs at most a
// log line, a monitor broadcast and a metric increment.
package admission

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/yndnr/kvgate-go/internal/core/auth"
	"github.com/yndnr/kvgate-go/internal/core/command"
	"github.com/yndnr/kvgate-go/internal/core/domain"
	"github.com/yndnr/kvgate-go/internal/core/guard"
	"github.com/yndnr/kvgate-go/internal/core/monitor"
	"github.com/yndnr/kvgate-go/internal/protocol/resp"
	"github.com/yndnr/kvgate-go/internal/telemetry/logger"
	"github.com/yndnr/kvgate-go/internal/telemetry/metric"
)

// Client is the connection a command arrives on.
type Client interface {
	command.Caller
	AuthState() auth.State
	SetAuthState(auth.State)
}

// AuthReporter is implemented by the AUTH handler to report what its
// password check granted.
type AuthReporter interface {
	AuthOutcome() auth.Outcome
}

// Settings are the hot-reloadable knobs the pipeline reads per command.
type Settings struct {
	ReadOnly bool
	// SlowlogThreshold is the slow-command cutoff; negative disables it.
	SlowlogThreshold time.Duration
	// Blacklist names commands denied to restricted clients.
	Blacklist []string
	// AdvertisedHost is accepted as local in addition to loopback addresses.
	AdvertisedHost string
}

// Rejection reasons used as metric labels.
const (
	ReasonUnknown  = "unknown_command"
	ReasonAuth     = "auth"
	ReasonLocal    = "local_only"
	ReasonArgument = "argument"
	ReasonReadOnly = "read_only"
)

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Registry *command.Registry
	Guard    *guard.Guard
	Monitor  *monitor.Registry
	// Settings returns the current settings; nil means defaults with the
	// slow log disabled.
	Settings func() Settings
	Metrics  *metric.Registry
	Logger   *slog.Logger
	Now      func() time.Time
}

// Pipeline admits and runs commands.
type Pipeline struct {
	registry *command.Registry
	guard    *guard.Guard
	monitor  *monitor.Registry
	settings func() Settings
	metrics  *metric.Registry
	logger   *slog.Logger
	now      func() time.Time
}

func New(d Deps) *Pipeline {
	p := &Pipeline{
		registry: d.Registry,
		guard:    d.Guard,
		monitor:  d.Monitor,
		settings: d.Settings,
		metrics:  d.Metrics,
		logger:   d.Logger,
		now:      d.Now,
	}
	if p.guard == nil {
		p.guard = guard.New(nil, nil)
	}
	if p.monitor == nil {
		p.monitor = monitor.NewRegistry(nil)
	}
	if p.settings == nil {
		p.settings = func() Settings { return Settings{SlowlogThreshold: -1} }
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

func (p *Pipeline) Guard() *guard.Guard        { return p.guard }
func (p *Pipeline) Monitor() *monitor.Registry { return p.monitor }

// Execute admits and runs one command for client and returns its RESP reply.
// args[0] is the command name as sent by the client.
func (p *Pipeline) Execute(ctx context.Context, client Client, args [][]byte) []byte {
	if len(args) == 0 {
		return resp.Error("ERR no command")
	}
	start := p.now()
	name := strings.ToLower(string(args[0]))

	lease, err := p.registry.Acquire(ctx, name)
	if err != nil {
		p.reject(ReasonUnknown)
		if !errors.Is(err, domain.ErrUnknownCommand) {
			p.logger.Error("acquire command handler", "command", name, "error", err)
		}
		return errorReply(err)
	}
	defer lease.Release(ctx)
	desc := lease.Desc
	settings := p.settings()

	state := client.AuthState()
	if !auth.IsAuthorized(state, desc, settings.Blacklist) {
		p.reject(ReasonAuth)
		if !state.Valid() {
			p.logger.Error("connection in undefined auth state",
				"remote", client.Addr(), "state", state.String(),
				"error", domain.ErrInvariant)
		}
		p.logger.Warn("command requires authentication",
			"command", name, "remote", client.Addr(), "state", state.String())
		return errorReply(domain.ErrAuthRequired)
	}

	if desc.IsLocalOnly() && !isLocal(client.Addr(), settings.AdvertisedHost) {
		p.reject(ReasonLocal)
		p.logger.Warn("local-only command from remote address",
			"command", name, "remote", client.Addr())
		return errorReply(domain.ErrLocalOnly.WithMessage("'" + name + "' should be localhost"))
	}

	if p.monitor.HasSubscribers() {
		p.monitor.Broadcast(monitor.FormatLine(start, client.Addr(), args))
	}

	h := lease.Handler
	if err := h.Initialize(args, desc, client); err != nil {
		p.reject(ReasonArgument)
		return errorReply(err)
	}

	if desc.IsWrite() && settings.ReadOnly {
		p.reject(ReasonReadOnly)
		return errorReply(domain.ErrReadOnly)
	}

	err = p.guard.Execute(ctx, desc, args, h.Execute)

	elapsed := p.now().Sub(start)
	if settings.SlowlogThreshold >= 0 && elapsed >= settings.SlowlogThreshold {
		p.logger.Warn("slow command",
			"command", name,
			"args", logger.RedactArgs(args),
			"start_time", start.Unix(),
			"duration_us", elapsed.Microseconds())
		p.metrics.RecordSlowCommand(name)
	}

	if r, ok := h.(AuthReporter); ok {
		next, granted := auth.Apply(state, r.AuthOutcome())
		if granted {
			client.SetAuthState(next)
		} else {
			p.logger.Warn("wrong password", "remote", client.Addr())
		}
	}

	if err != nil {
		p.metrics.RecordCommand(name, "error", elapsed)
		if errors.Is(err, domain.ErrLogAppend) {
			p.logger.Error("write-ahead log append failed", "command", name, "error", err)
		}
		return errorReply(err)
	}
	p.metrics.RecordCommand(name, "ok", elapsed)

	reply := h.Reply()
	if reply == nil {
		return resp.OK
	}
	return reply
}

// Replay applies a logged command during recovery. It bypasses
// authorization, locking and logging.
func (p *Pipeline) Replay(ctx context.Context, args [][]byte) error {
	if len(args) == 0 {
		return domain.ErrArgument.WithMessage("empty record")
	}
	lease, err := p.registry.Acquire(ctx, string(args[0]))
	if err != nil {
		return err
	}
	defer lease.Release(ctx)

	if err := lease.Handler.Initialize(args, lease.Desc, replayCaller{}); err != nil {
		return err
	}
	return lease.Handler.Execute(ctx)
}

func (p *Pipeline) reject(reason string) {
	p.metrics.RecordRejection(reason)
}

// errorReply renders err as a RESP error.
func errorReply(err error) []byte {
	var de *domain.DomainError
	if errors.As(err, &de) {
		return resp.Error(de.Reply())
	}
	return resp.Error("ERR " + err.Error())
}

// isLocal reports whether addr ("ip:port") is loopback or the advertised host.
func isLocal(addr, advertised string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if advertised != "" && host == advertised {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// replayCaller stands in for a connection during recovery.
type replayCaller struct{}

func (replayCaller) ID() string               { return "replay" }
func (replayCaller) Addr() string             { return "replay" }
func (replayCaller) Deliver(line string) bool { return false }
