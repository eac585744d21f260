package noderpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/kanengo/rigging/internal/resolver/etcd"
	"github.com/kanengo/rigging/runtime"
	"github.com/kanengo/rigging/runtime/gtest"
	"github.com/kanengo/rigging/runtime/host"
	"github.com/kanengo/rigging/runtime/journal"
	"github.com/kanengo/rigging/runtime/logging"
)

// Node is a dev node: a gtest.System producing a block every BlockTime,
// served by a Gateway and journaled to sqlite.
type Node struct {
	config  runtime.DevnodeConfig
	logger  *slog.Logger
	sys     *gtest.System
	gateway *Gateway
	journal *journal.DB
	tracer  *sdktrace.TracerProvider
}

func NewNode(ctx context.Context, config runtime.DevnodeConfig, logger *slog.Logger, codes ...host.Code) (*Node, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}
	n := &Node{config: config, logger: logger}

	opts := []gtest.Option{gtest.WithLogger(logger), gtest.WithRunMode(gtest.RunManual)}
	if config.MaxBlocks > 0 {
		opts = append(opts, gtest.WithMaxBlocks(config.MaxBlocks))
	}
	if config.Journal != "" {
		db, err := journal.Open(ctx, config.Journal, logger)
		if err != nil {
			return nil, err
		}
		n.journal = db
		opts = append(opts, gtest.WithBlockObserver(db.Observe))
		// 有 journal 时 dispatcher 与 client 的 span 也写入 journal
		n.tracer = sdktrace.NewTracerProvider(sdktrace.WithBatcher(db.Spans()))
		otel.SetTracerProvider(n.tracer)
	}
	n.sys = gtest.NewSystem(opts...)
	n.gateway = NewGateway(n.sys, logger)
	n.gateway.Upload(codes...)
	return n, nil
}

func (n *Node) System() *gtest.System { return n.sys }

func (n *Node) Gateway() *Gateway { return n.gateway }

func (n *Node) Handler() http.Handler { return n.gateway.Handler() }

// Produce runs a block every BlockTime until ctx is done.
func (n *Node) Produce(ctx context.Context) error {
	t := time.NewTicker(n.config.BlockTime)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			r := n.sys.RunNextBlock()
			if len(r.Executed) > 0 {
				n.logger.Info("block", "height", r.Height, "executed", len(r.Executed), "failed", len(r.Failed))
			}
		}
	}
}

// Serve listens on Addr, registers it in etcd when configured and produces
// blocks until ctx is done.
func (n *Node) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", n.config.Addr)
	if err != nil {
		return err
	}
	addr := lis.Addr().String()
	n.logger.Info("devnode listening", "addr", "ws://"+addr+Path)

	group, ctx := errgroup.WithContext(ctx)
	server := &http.Server{Handler: n.Handler()}
	group.Go(func() error {
		if err := server.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return server.Shutdown(shutdown)
	})
	group.Go(func() error {
		return n.Produce(ctx)
	})
	if len(n.config.Etcd) > 0 {
		group.Go(func() error {
			return n.register(ctx, addr)
		})
	}
	return group.Wait()
}

func (n *Node) register(ctx context.Context, addr string) error {
	r, err := etcd.New(n.config.Etcd)
	if err != nil {
		return fmt.Errorf("etcd: %w", err)
	}
	defer r.Close()
	deregister, err := r.Register(ctx, n.config.Register, addr)
	if err != nil {
		return err
	}
	n.logger.Info("registered", "key", n.config.Register+addr)
	<-ctx.Done()
	deregister()
	return nil
}

func (n *Node) Close() error {
	n.sys.Close()
	var errs []error
	if n.tracer != nil {
		errs = append(errs, n.tracer.Shutdown(context.Background()))
	}
	if n.journal != nil {
		errs = append(errs, n.journal.Close())
	}
	return errors.Join(errs...)
}
