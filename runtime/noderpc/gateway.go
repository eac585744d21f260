package noderpc

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/filecoin-project/go-jsonrpc"
	"github.com/holiman/uint256"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/kanengo/rigging/runtime/gtest"
	"github.com/kanengo/rigging/runtime/host"
	"github.com/kanengo/rigging/runtime/logging"
	"github.com/kanengo/rigging/runtime/metrics"
	"github.com/kanengo/rigging/runtime/remoting"
	"github.com/kanengo/rigging/runtime/scale"
)

// Gateway serves a gtest.System over JSON-RPC. Codes are uploaded locally
// with Upload, clients refer to them by id.
type Gateway struct {
	sys    *gtest.System
	logger *slog.Logger

	mu      sync.Mutex
	codes   []CodeInfo
	funded  map[scale.ActorID]bool
	pending map[scale.MessageID]func(ctx context.Context) ReplyInfo
}

var _ GearAPI = (*Gateway)(nil)

func NewGateway(sys *gtest.System, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Gateway{
		sys:     sys,
		logger:  logger,
		funded:  map[scale.ActorID]bool{gtest.DefaultUser: true},
		pending: map[scale.MessageID]func(ctx context.Context) ReplyInfo{},
	}
}

// Upload makes codes available to Activate.
func (g *Gateway) Upload(codes ...host.Code) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range codes {
		g.codes = append(g.codes, CodeInfo{Name: c.Name(), ID: g.sys.UploadCode(c)})
	}
}

// gearServer narrows the registered method set to GearAPI.
type gearServer struct {
	GearAPI
}

// Handler returns the JSON-RPC endpoint, websocket upgrades included, and
// the process metrics under MetricsPath.
func (g *Gateway) Handler() http.Handler {
	rpc := jsonrpc.NewServer()
	rpc.Register(Namespace, &gearServer{g})
	mux := http.NewServeMux()
	mux.Handle(Path, instrument("devnode", rpc))
	mux.Handle(MetricsPath, metrics.Handler())
	return mux
}

// env returns an Env for sender, minting the default balance the first time
// a sender shows up.
func (g *Gateway) env(sender scale.ActorID) *gtest.Env {
	g.mu.Lock()
	if !g.funded[sender] {
		g.funded[sender] = true
		g.sys.Mint(sender, new(uint256.Int).Set(gtest.DefaultUserBalance))
	}
	g.mu.Unlock()
	return g.sys.Env().WithSender(sender)
}

func (g *Gateway) track(id scale.MessageID, wait func(ctx context.Context) ReplyInfo) {
	g.mu.Lock()
	g.pending[id] = wait
	g.mu.Unlock()
}

// replyInfo completes the outcome of message id with the code and value of
// its reply record. A redirected message has no record of its own and is
// reported as manually replied.
func (g *Gateway) replyInfo(id scale.MessageID, payload []byte, err error) ReplyInfo {
	code, value := remoting.SuccessCode(remoting.SuccessManual), scale.U128{}
	if rec, ok := g.sys.ReplyOf(id); ok {
		code, value = rec.Code, rec.Value
	}
	return newReplyInfo(payload, code, value, err)
}

func (g *Gateway) Activate(ctx context.Context, req ActivateRequest) (Submitted, error) {
	if req.Salt == nil {
		req.Salt = []byte(gonanoid.Must())
	}
	f, err := g.env(req.Sender).Activate(ctx, req.Code, req.Salt, req.Payload, remoting.Args{
		GasLimit:       req.GasLimit,
		Value:          req.Value,
		ReplyTimeout:   req.ReplyTimeout,
		RedirectOnExit: req.RedirectOnExit,
	})
	if err != nil {
		return Submitted{}, err
	}
	id := f.MessageID()
	program := gtest.ProgramIDOf(req.Code, req.Salt)
	g.track(id, func(ctx context.Context) ReplyInfo {
		act, err := f.Wait(ctx)
		return g.replyInfo(id, act.Reply, err)
	})
	g.logger.Debug("activate", "code", req.Code.String(), "program", program.String(), "message", id.String())
	return Submitted{MessageID: id, ProgramID: program}, nil
}

func (g *Gateway) Message(ctx context.Context, req MessageRequest) (Submitted, error) {
	f, err := g.env(req.Sender).Message(ctx, req.Target, req.Payload, remoting.Args{
		GasLimit:       req.GasLimit,
		Value:          req.Value,
		ReplyTimeout:   req.ReplyTimeout,
		RedirectOnExit: req.RedirectOnExit,
	})
	if err != nil {
		return Submitted{}, err
	}
	id := f.MessageID()
	g.track(id, func(ctx context.Context) ReplyInfo {
		payload, err := f.Wait(ctx)
		return g.replyInfo(id, payload, err)
	})
	g.logger.Debug("message", "target", req.Target.String(), "message", id.String())
	return Submitted{MessageID: id}, nil
}

// WaitReply blocks until the reply to id is known. The reply can be fetched
// once.
func (g *Gateway) WaitReply(ctx context.Context, id scale.MessageID) (ReplyInfo, error) {
	g.mu.Lock()
	wait, ok := g.pending[id]
	g.mu.Unlock()
	if !ok {
		return ReplyInfo{}, fmt.Errorf("message %s is unknown", id)
	}
	r := wait(ctx)
	if err := ctx.Err(); err != nil {
		return ReplyInfo{}, err
	}
	g.mu.Lock()
	delete(g.pending, id)
	g.mu.Unlock()
	return r, nil
}

func (g *Gateway) Query(ctx context.Context, req MessageRequest) (ReplyInfo, error) {
	payload, err := g.env(req.Sender).Query(ctx, req.Target, req.Payload, remoting.Args{GasLimit: req.GasLimit, Value: req.Value})
	return newReplyInfo(payload, remoting.SuccessCode(remoting.SuccessManual), scale.U128{}, err), nil
}

func (g *Gateway) Subscribe(ctx context.Context) (<-chan EventInfo, error) {
	events, err := g.sys.Env().Listen(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan EventInfo)
	go func() {
		defer close(out)
		for ev := range events {
			select {
			case out <- EventInfo{Source: ev.Source, Payload: ev.Payload}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (g *Gateway) RunNextBlock(context.Context) (BlockInfo, error) {
	r := g.sys.RunNextBlock()
	return BlockInfo{Height: r.Height, Executed: len(r.Executed), Failed: len(r.Failed), Events: len(r.Events)}, nil
}

func (g *Gateway) BlockHeight(context.Context) (uint32, error) {
	return g.sys.BlockHeight(), nil
}

func (g *Gateway) Codes(context.Context) ([]CodeInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := append([]CodeInfo(nil), g.codes...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (g *Gateway) Balance(_ context.Context, id scale.ActorID) (string, error) {
	return g.sys.Balance(id).Dec(), nil
}
