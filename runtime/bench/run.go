package bench

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kanengo/rigging/runtime/gtest"
	"github.com/kanengo/rigging/runtime/host"
	"github.com/kanengo/rigging/runtime/logging"
	"github.com/kanengo/rigging/runtime/remoting"
	"github.com/kanengo/rigging/runtime/scale"
	"github.com/kanengo/rigging/runtime/wire"
)

// ComputeInput is the argument of the compute figure.
const ComputeInput = 30

// AllocSizes are the allocation sizes measured.
var AllocSizes = []uint32{0, 8, 89, 987, 10946, 28657}

// harness is a fresh system recording every block it runs.
type harness struct {
	sys    *gtest.System
	env    *gtest.Env
	blocks []gtest.BlockRunResult
}

func newHarness(logger *slog.Logger) *harness {
	h := &harness{}
	h.sys = gtest.NewSystem(gtest.WithLogger(logger), gtest.WithBlockObserver(func(r gtest.BlockRunResult) {
		h.blocks = append(h.blocks, r)
	}))
	h.env = h.sys.Env()
	return h
}

func (h *harness) deploy(ctx context.Context, code host.Code) (scale.ActorID, error) {
	f, err := h.env.Activate(ctx, h.sys.UploadCode(code), []byte(code.Name()), nil, remoting.Args{})
	if err != nil {
		return scale.ActorID{}, err
	}
	act, err := f.Wait(ctx)
	if err != nil {
		return scale.ActorID{}, fmt.Errorf("activate %s: %w", code.Name(), err)
	}
	return act.ProgramID, nil
}

// measurement is the gas of one user message: Own is burned handling the
// message itself, Total by every message executed until its reply.
type measurement struct {
	Own   uint64
	Total uint64
}

func measure[P, R any](ctx context.Context, h *harness, target scale.ActorID, io *wire.IO[P, R], params P) (R, measurement, error) {
	var zero R
	payload, err := io.EncodeCall(params)
	if err != nil {
		return zero, measurement{}, err
	}
	start := len(h.blocks)
	f, err := h.env.Message(ctx, target, payload, remoting.Args{})
	if err != nil {
		return zero, measurement{}, err
	}
	reply, err := f.Wait(ctx)
	if err != nil {
		return zero, measurement{}, err
	}
	r, err := io.DecodeReply(reply)
	if err != nil {
		return zero, measurement{}, err
	}

	var m measurement
	id := f.MessageID()
	for _, b := range h.blocks[start:] {
		if !b.Succeeded(id) && b.ContainsFailed(id) {
			return zero, m, fmt.Errorf("message %s failed", id)
		}
		m.Own += b.GasBurned[id]
		for _, g := range b.GasBurned {
			m.Total += g
		}
	}
	return r, m, nil
}

// Run measures every category on fresh systems.
func Run(ctx context.Context, logger *slog.Logger) (*Data, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	d := NewData()
	for _, step := range []struct {
		name string
		run  func(context.Context, *slog.Logger, *Data) error
	}{
		{"compute", runCompute},
		{"alloc", runAlloc},
		{"counter", runCounter},
		{"cross_program", runCrossProgram},
		{"redirect", runRedirect},
	} {
		if err := step.run(ctx, logger, d); err != nil {
			return nil, fmt.Errorf("%s: %w", step.name, err)
		}
		logger.Debug("bench done", "category", step.name)
	}
	return d, nil
}

func runCompute(ctx context.Context, logger *slog.Logger, d *Data) error {
	h := newHarness(logger)
	id, err := h.deploy(ctx, computeProgram())
	if err != nil {
		return err
	}
	sum, m, err := measure(ctx, h, id, sumOfFib, countParams{N: ComputeInput})
	if err != nil {
		return err
	}
	if want := SumOfFib(ComputeInput); sum != want {
		return fmt.Errorf("sum of fib = %d, want %d", sum, want)
	}
	d.Set(Category{Kind: KindCompute}, m.Own)
	return nil
}

func runAlloc(ctx context.Context, logger *slog.Logger, d *Data) error {
	for _, n := range AllocSizes {
		h := newHarness(logger)
		id, err := h.deploy(ctx, allocProgram())
		if err != nil {
			return err
		}
		out, m, err := measure(ctx, h, id, allocStress, countParams{N: n})
		if err != nil {
			return err
		}
		if len(out) != int(n) {
			return fmt.Errorf("allocated %d bytes, want %d", len(out), n)
		}
		d.Set(Category{Kind: KindAlloc, Size: uint64(n)}, m.Own)
	}
	return nil
}

func runCounter(ctx context.Context, logger *slog.Logger, d *Data) error {
	h := newHarness(logger)
	id, err := h.deploy(ctx, counterProgram())
	if err != nil {
		return err
	}
	prev, m, err := measure(ctx, h, id, counterInc, scale.Unit{})
	if err != nil {
		return err
	}
	if prev != 0 {
		return fmt.Errorf("Inc returned %d, want 0", prev)
	}
	d.Set(Category{Kind: KindCounterSync}, m.Own)

	prev, m, err = measure(ctx, h, id, counterAsync, scale.Unit{})
	if err != nil {
		return err
	}
	if prev != 1 {
		return fmt.Errorf("IncAsync returned %d, want 1", prev)
	}
	d.Set(Category{Kind: KindCounterAsync}, m.Own)
	return nil
}

func runCrossProgram(ctx context.Context, logger *slog.Logger, d *Data) error {
	h := newHarness(logger)
	ping, err := h.deploy(ctx, pingProgram())
	if err != nil {
		return err
	}
	pong, err := h.deploy(ctx, pongProgram())
	if err != nil {
		return err
	}
	got, m, err := measure(ctx, h, ping, pingStart, targetParams{Target: pong})
	if err != nil {
		return err
	}
	if got != "Finished" {
		return fmt.Errorf("Start returned %q", got)
	}
	d.Set(Category{Kind: KindCrossProgram}, m.Total)
	return nil
}

func runRedirect(ctx context.Context, logger *slog.Logger, d *Data) error {
	h := newHarness(logger)
	proxy, err := h.deploy(ctx, proxyProgram())
	if err != nil {
		return err
	}
	old, err := h.deploy(ctx, pongProgram())
	if err != nil {
		return err
	}
	heir, err := h.deploy(ctx, renamed{pongProgram(), "ponger_heir"})
	if err != nil {
		return err
	}
	// an exited handler gets the automatic empty reply, nothing to decode
	payload, err := pongExit.EncodeCall(targetParams{Target: heir})
	if err != nil {
		return err
	}
	f, err := h.env.Message(ctx, old, payload, remoting.Args{})
	if err != nil {
		return err
	}
	if _, err := f.Wait(ctx); err != nil {
		return fmt.Errorf("exit: %w", err)
	}
	got, m, err := measure(ctx, h, proxy, proxyForward, targetParams{Target: old})
	if err != nil {
		return err
	}
	if got != "Pong" {
		return fmt.Errorf("Forward returned %q", got)
	}
	d.Set(Category{Kind: KindRedirect}, m.Total)
	return nil
}

// renamed uploads the same program under another code name.
type renamed struct {
	host.Code
	name string
}

func (r renamed) Name() string { return r.name }
