package command

import (
	"context"
	"errors"
	"testing"

	"github.com/yndnr/kvgate-go/internal/core/domain"
)

type echoHandler struct {
	Base
	resets int
}

func (h *echoHandler) Execute(ctx context.Context) error {
	h.SetReply(h.Args[1])
	return nil
}

func (h *echoHandler) Reset() {
	h.Base.Reset()
	h.resets++
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	ctx := context.Background()
	if err := r.Register(ctx, Descriptor{Name: "ECHO", Arity: 2}, func() Handler { return &echoHandler{} }); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(ctx, Descriptor{Name: "set", Flags: FlagWrite, Arity: -3}, func() Handler { return &echoHandler{} }); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	t.Cleanup(func() { r.Close(context.Background()) })
	return r
}

// ============================================================
// Descriptor Tests
// ============================================================

func TestFlags(t *testing.T) {
	f := FlagWrite | FlagSuspend
	if !f.Has(FlagWrite) || !f.Has(FlagSuspend) {
		t.Errorf("Has() = false for set flag")
	}
	if f.Has(FlagAdminOnly) || f.Has(FlagLocalOnly) {
		t.Errorf("Has() = true for unset flag")
	}
	if got := f.String(); got != "write,suspend" {
		t.Errorf("String() = %q, want %q", got, "write,suspend")
	}
	if got := Flags(0).String(); got != "readonly" {
		t.Errorf("String() = %q, want %q", got, "readonly")
	}
}

func TestDescriptor_CheckArity(t *testing.T) {
	tests := []struct {
		name    string
		arity   int
		argc    int
		wantErr bool
	}{
		{"exact match", 2, 2, false},
		{"exact too few", 2, 1, true},
		{"exact too many", 2, 3, true},
		{"minimum met", -3, 3, false},
		{"minimum exceeded", -3, 5, false},
		{"minimum not met", -3, 2, true},
		{"unchecked", 0, 7, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Descriptor{Name: "cmd", Arity: tt.arity}
			err := d.CheckArity(tt.argc)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckArity(%d) error = %v, wantErr %v", tt.argc, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrArgument) {
				t.Errorf("CheckArity() error = %v, want ErrArgument", err)
			}
		})
	}
}

// ============================================================
// Registry Tests
// ============================================================

func TestRegistry_LookupIsCaseInsensitive(t *testing.T) {
	r := newTestRegistry(t)

	for _, name := range []string{"set", "SET", "SeT"} {
		desc, ok := r.Lookup(name)
		if !ok {
			t.Fatalf("Lookup(%q) not found", name)
		}
		if desc.Name != "set" || !desc.IsWrite() {
			t.Errorf("Lookup(%q) = %v", name, desc)
		}
	}

	if desc, ok := r.Lookup("echo"); !ok || desc.Name != "echo" {
		t.Errorf("Lookup(echo) = %v, %v; registered names are lower-cased", desc, ok)
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := newTestRegistry(t)
	err := r.Register(context.Background(), Descriptor{Name: "Set"}, func() Handler { return &echoHandler{} })
	if err == nil {
		t.Error("Register() duplicate error = nil, want error")
	}
}

func TestRegistry_AcquireUnknown(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Acquire(context.Background(), "FOO")
	if !errors.Is(err, domain.ErrUnknownCommand) {
		t.Fatalf("Acquire() error = %v, want ErrUnknownCommand", err)
	}
	var de *domain.DomainError
	if !errors.As(err, &de) || de.Reply() != "ERR unknown or unsupported command 'foo'" {
		t.Errorf("Reply() = %q", de.Reply())
	}
}

func TestRegistry_AcquireReleaseResetsHandler(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	lease, err := r.Acquire(ctx, "echo")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	h := lease.Handler.(*echoHandler)
	if err := h.Initialize([][]byte{[]byte("echo"), []byte("hi")}, lease.Desc, nil); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := h.Execute(ctx); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if string(h.Reply()) != "hi" {
		t.Errorf("Reply() = %q, want %q", h.Reply(), "hi")
	}

	lease.Release(ctx)
	lease.Release(ctx)

	if h.resets != 1 {
		t.Errorf("resets = %d, want 1", h.resets)
	}
	if h.Args != nil || h.Reply() != nil {
		t.Errorf("handler state not cleared on release")
	}
}

func TestRegistry_ConcurrentLeasesAreDistinct(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	a, err := r.Acquire(ctx, "echo")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	b, err := r.Acquire(ctx, "echo")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer a.Release(ctx)
	defer b.Release(ctx)

	if a.Handler == b.Handler {
		t.Error("two in-flight leases share a handler instance")
	}
}

func TestRegistry_Names(t *testing.T) {
	r := newTestRegistry(t)
	names := r.Names()
	if len(names) != 2 || names[0] != "echo" || names[1] != "set" {
		t.Errorf("Names() = %v, want [echo set]", names)
	}
}
