package noderpc

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/filecoin-project/go-jsonrpc"

	"github.com/kanengo/rigging/internal/resolver/etcd"
	"github.com/kanengo/rigging/runtime/gtest"
	"github.com/kanengo/rigging/runtime/logging"
	"github.com/kanengo/rigging/runtime/remoting"
	"github.com/kanengo/rigging/runtime/retry"
	"github.com/kanengo/rigging/runtime/scale"
)

// Client is a remoting.Remoting talking to a Gateway.
type Client struct {
	api    *GearStruct
	closer jsonrpc.ClientCloser
	sender scale.ActorID
	logger *slog.Logger
}

var _ remoting.Remoting = (*Client)(nil)

type ClientOption func(*clientOptions)

type clientOptions struct {
	sender   scale.ActorID
	header   http.Header
	attempts int
	logger   *slog.Logger
}

// WithSender sets the account messages are sent from, gtest.DefaultUser by
// default.
func WithSender(id scale.ActorID) ClientOption {
	return func(o *clientOptions) { o.sender = id }
}

func WithHeader(h http.Header) ClientOption {
	return func(o *clientOptions) { o.header = h }
}

// WithDialAttempts bounds how many times Dial tries every address.
func WithDialAttempts(n int) ClientOption {
	return func(o *clientOptions) { o.attempts = n }
}

func WithLogger(l *slog.Logger) ClientOption {
	return func(o *clientOptions) { o.logger = l }
}

// Dial connects to addr: a websocket URL, a host:port, or
// etcd://host1,host2/prefix naming the registry a dev node registered in.
func Dial(ctx context.Context, addr string, opts ...ClientOption) (*Client, error) {
	o := clientOptions{sender: gtest.DefaultUser, attempts: 5, logger: logging.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	var lastErr error
	r := retry.Policy{
		Initial:  50 * time.Millisecond,
		Max:      time.Second,
		Factor:   1.5,
		Attempts: o.attempts,
	}.Start()
	for r.Next(ctx) {
		urls, err := resolve(ctx, addr)
		if err != nil {
			lastErr = err
			continue
		}
		for _, u := range urls {
			api := &GearStruct{}
			// the connection lives until Close, not until ctx is done
			closer, err := jsonrpc.NewClient(context.Background(), u, Namespace, &api.Internal, o.header)
			if err != nil {
				o.logger.Debug("dial", "url", u, "attempt", r.Attempt(), "err", err)
				lastErr = err
				continue
			}
			return &Client{api: api, closer: closer, sender: o.sender, logger: o.logger}, nil
		}
	}
	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return nil, fmt.Errorf("dial %s: %w", addr, lastErr)
}

func resolve(ctx context.Context, addr string) ([]string, error) {
	target, ok, err := etcd.ParseTarget(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []string{websocketURL(addr)}, nil
	}
	r, err := etcd.New(target.Endpoints)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	addrs, err := r.Resolve(ctx, target.Prefix)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no node registered under %s", target.Prefix)
	}
	urls := make([]string, len(addrs))
	for i, a := range addrs {
		urls[i] = websocketURL(a)
	}
	return urls, nil
}

// websocketURL turns host:port or an http URL into the gateway websocket URL.
func websocketURL(addr string) string {
	switch {
	case strings.HasPrefix(addr, "ws://"), strings.HasPrefix(addr, "wss://"):
		return addr
	case strings.HasPrefix(addr, "http://"):
		addr = "ws://" + strings.TrimPrefix(addr, "http://")
	case strings.HasPrefix(addr, "https://"):
		addr = "wss://" + strings.TrimPrefix(addr, "https://")
	default:
		addr = "ws://" + addr
	}
	if !strings.HasSuffix(addr, Path) {
		addr = strings.TrimSuffix(addr, "/") + Path
	}
	return addr
}

// API exposes the raw methods, e.g. to run blocks of a dev node.
func (c *Client) API() GearAPI { return c.api }

func (c *Client) Close() {
	c.closer()
}

func (c *Client) source(args remoting.Args) scale.ActorID {
	if args.SenderID != nil {
		return *args.SenderID
	}
	return c.sender
}

// wait resolves the reply of id and runs the reply hook of args once.
func (c *Client) wait(ctx context.Context, id scale.MessageID, args remoting.Args) ([]byte, error) {
	info, err := c.api.WaitReply(ctx, id)
	if err != nil {
		return nil, err
	}
	if args.ReplyHook != nil && info.Error == "" && !info.Timeout {
		args.ReplyHook(remoting.Reply{ReplyTo: id, Payload: info.Payload, Value: info.Value, Code: info.Code})
	}
	return info.result()
}

func (c *Client) Activate(ctx context.Context, code scale.CodeID, salt []byte, payload []byte, args remoting.Args) (*remoting.Future[remoting.Activation], error) {
	sub, err := c.api.Activate(ctx, ActivateRequest{
		Sender:         c.source(args),
		Code:           code,
		Salt:           salt,
		Payload:        payload,
		Value:          args.Value,
		GasLimit:       args.GasLimit,
		ReplyTimeout:   args.Deadline(),
		RedirectOnExit: args.RedirectOnExit,
	})
	if err != nil {
		return nil, err
	}
	return remoting.NewFuture(sub.MessageID, func(ctx context.Context) (remoting.Activation, error) {
		reply, err := c.wait(ctx, sub.MessageID, args)
		if err != nil {
			return remoting.Activation{}, err
		}
		return remoting.Activation{ProgramID: sub.ProgramID, Reply: reply}, nil
	}), nil
}

func (c *Client) Message(ctx context.Context, target scale.ActorID, payload []byte, args remoting.Args) (*remoting.Future[[]byte], error) {
	sub, err := c.api.Message(ctx, MessageRequest{
		Sender:         c.source(args),
		Target:         target,
		Payload:        payload,
		Value:          args.Value,
		GasLimit:       args.GasLimit,
		ReplyTimeout:   args.Deadline(),
		RedirectOnExit: args.RedirectOnExit,
	})
	if err != nil {
		return nil, err
	}
	return remoting.NewFuture(sub.MessageID, func(ctx context.Context) ([]byte, error) {
		return c.wait(ctx, sub.MessageID, args)
	}), nil
}

func (c *Client) Query(ctx context.Context, target scale.ActorID, payload []byte, args remoting.Args) ([]byte, error) {
	info, err := c.api.Query(ctx, MessageRequest{
		Sender:   c.source(args),
		Target:   target,
		Payload:  payload,
		Value:    args.Value,
		GasLimit: args.GasLimit,
	})
	if err != nil {
		return nil, err
	}
	return info.result()
}

func (c *Client) Listen(ctx context.Context) (<-chan remoting.Event, error) {
	events, err := c.api.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan remoting.Event)
	go func() {
		defer close(out)
		for ev := range events {
			select {
			case out <- remoting.Event{Source: ev.Source, Payload: ev.Payload}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
