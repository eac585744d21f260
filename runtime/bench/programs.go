package bench

import (
	"fmt"

	"github.com/kanengo/rigging"
	"github.com/kanengo/rigging/runtime/codegen"
	"github.com/kanengo/rigging/runtime/remoting"
	"github.com/kanengo/rigging/runtime/scale"
	"github.com/kanengo/rigging/runtime/wire"
)

// gas burned per unit of work, so that figures follow the work done
const (
	gasPerStep  = 1_000
	gasPerChunk = 5_000
	chunk       = 64
)

var (
	sumOfFib     = wire.NewIO[countParams, uint32]("ComputeStress", "SumOfFib", 0)
	allocStress  = wire.NewIO[countParams, []byte]("AllocStress", "Alloc", 0)
	counterInc   = wire.NewIO[scale.Unit, uint64]("CounterBench", "Inc", 0)
	counterAsync = wire.NewIO[scale.Unit, uint64]("CounterBench", "IncAsync", 1)
	pongPing     = wire.NewIO[scale.Unit, string]("Ponger", "Ping", 0)
	pongExit     = wire.NewIO[targetParams, scale.Unit]("Ponger", "Exit", 1)
	pingStart    = wire.NewIO[targetParams, string]("Pinger", "Start", 0)
	proxyForward = wire.NewIO[targetParams, string]("Proxy", "Forward", 0)
)

type countParams struct {
	N uint32
}

type targetParams struct {
	Target scale.ActorID
}

// SumOfFib adds the first n fibonacci numbers, wrapping on overflow.
func SumOfFib(n uint32) uint32 {
	var sum, a, b uint32 = 0, 0, 1
	for i := uint32(0); i < n; i++ {
		sum += a
		a, b = b, a+b
	}
	return sum
}

func computeProgram() *rigging.Program[struct{}] {
	svc := rigging.NewService[struct{}]("ComputeStress")
	rigging.Command(svc, "SumOfFib", func(c *rigging.Context, _ *struct{}, p countParams) (uint32, error) {
		if err := c.Charge(uint64(p.N) * gasPerStep); err != nil {
			return 0, err
		}
		return SumOfFib(p.N), nil
	})
	return rigging.NewProgram[struct{}]("compute_stress").Expose("ComputeStress", svc)
}

func allocProgram() *rigging.Program[struct{}] {
	svc := rigging.NewService[struct{}]("AllocStress")
	rigging.Command(svc, "Alloc", func(c *rigging.Context, _ *struct{}, p countParams) ([]byte, error) {
		if err := c.Charge(uint64(p.N/chunk+1) * gasPerChunk); err != nil {
			return nil, err
		}
		out := make([]byte, p.N)
		for i := range out {
			out[i] = byte(i)
		}
		return out, nil
	})
	return rigging.NewProgram[struct{}]("alloc_stress").Expose("AllocStress", svc)
}

type counterState struct {
	Value uint64
}

func counterProgram() *rigging.Program[counterState] {
	svc := rigging.NewService[counterState]("CounterBench")
	rigging.Command(svc, "Inc", func(c *rigging.Context, st *counterState, _ scale.Unit) (uint64, error) {
		prev := st.Value
		st.Value++
		return prev, nil
	})
	rigging.Command(svc, "IncAsync", func(c *rigging.Context, st *counterState, _ scale.Unit) (uint64, error) {
		prev := st.Value
		st.Value++
		return prev, nil
	}, rigging.Async())
	return rigging.NewProgram[counterState]("counter_bench").Expose("CounterBench", svc)
}

func pongProgram() *rigging.Program[struct{}] {
	svc := rigging.NewService[struct{}]("Ponger")
	rigging.Command(svc, "Ping", func(c *rigging.Context, _ *struct{}, _ scale.Unit) (string, error) {
		return "Pong", nil
	})
	rigging.Command(svc, "Exit", func(c *rigging.Context, _ *struct{}, p targetParams) (scale.Unit, error) {
		return scale.Unit{}, c.Exit(p.Target)
	})
	return rigging.NewProgram[struct{}]("ponger").Expose("Ponger", svc)
}

func pingProgram() *rigging.Program[struct{}] {
	svc := rigging.NewService[struct{}]("Pinger")
	rigging.Command(svc, "Start", func(c *rigging.Context, _ *struct{}, p targetParams) (string, error) {
		reply, err := codegen.Call(c, codegen.NewStub(c.Remoting(), p.Target, "Pinger"), pongPing, scale.Unit{})
		if err != nil {
			return "", err
		}
		if reply != "Pong" {
			return "", fmt.Errorf("ponger replied %q", reply)
		}
		return "Finished", nil
	}, rigging.Async())
	return rigging.NewProgram[struct{}]("pinger").Expose("Pinger", svc)
}

func proxyProgram() *rigging.Program[struct{}] {
	svc := rigging.NewService[struct{}]("Proxy")
	rigging.Command(svc, "Forward", func(c *rigging.Context, _ *struct{}, p targetParams) (string, error) {
		stub := codegen.NewStub(c.Remoting(), p.Target, "Proxy").WithArgs(remoting.Args{RedirectOnExit: true})
		return codegen.Call(c, stub, pongPing, scale.Unit{})
	}, rigging.Async())
	return rigging.NewProgram[struct{}]("proxy").Expose("Proxy", svc)
}
