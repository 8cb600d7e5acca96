// Package command defines command descriptors, the handler contract and the
// registry that resolves names to pooled handler instances.
package command

import (
	"strconv"
	"strings"

	"github.com/yndnr/kvgate-go/internal/core/domain"
)

// Flags describe how the admission pipeline treats a command.
type Flags uint16

const (
	// FlagWrite marks commands that mutate the store. They take the key lock
	// and are appended to the write-ahead log on success.
	FlagWrite Flags = 1 << iota
	// FlagAdminOnly commands are denied to restricted clients.
	FlagAdminOnly
	// FlagLocalOnly commands must come from loopback or the advertised host.
	FlagLocalOnly
	// FlagSuspend commands never take the read side of the suspend lock;
	// they suspend everybody else themselves.
	FlagSuspend
)

func (f Flags) Has(flag Flags) bool { return f&flag == flag }

func (f Flags) String() string {
	var parts []string
	if f.Has(FlagWrite) {
		parts = append(parts, "write")
	}
	if f.Has(FlagAdminOnly) {
		parts = append(parts, "admin")
	}
	if f.Has(FlagLocalOnly) {
		parts = append(parts, "local")
	}
	if f.Has(FlagSuspend) {
		parts = append(parts, "suspend")
	}
	if len(parts) == 0 {
		return "readonly"
	}
	return strings.Join(parts, ",")
}

// Descriptor is the immutable description of a command.
type Descriptor struct {
	// Name is the lower-cased command name.
	Name  string
	Flags Flags
	// Arity follows the Redis convention: positive means exactly that many
	// arguments including the name, negative means at least -Arity.
	Arity int
}

func (d Descriptor) IsWrite() bool     { return d.Flags.Has(FlagWrite) }
func (d Descriptor) IsAdminOnly() bool { return d.Flags.Has(FlagAdminOnly) }
func (d Descriptor) IsLocalOnly() bool { return d.Flags.Has(FlagLocalOnly) }
func (d Descriptor) IsSuspend() bool   { return d.Flags.Has(FlagSuspend) }

// CheckArity validates the argument count against d.Arity.
func (d Descriptor) CheckArity(argc int) error {
	if d.Arity == 0 {
		return nil
	}
	if (d.Arity > 0 && argc != d.Arity) || (d.Arity < 0 && argc < -d.Arity) {
		return domain.ErrArgument.WithMessage("wrong number of arguments for '" + d.Name + "' command")
	}
	return nil
}

func (d Descriptor) String() string {
	return d.Name + "/" + strconv.Itoa(d.Arity) + "[" + d.Flags.String() + "]"
}
