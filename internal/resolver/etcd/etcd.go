// Package etcd resolves dev node addresses registered in etcd.
package etcd

import (
	"context"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	Scheme = "etcd"

	defaultTimeout = 3 * time.Second
	defaultTTL     = 10
)

// Target is a parsed etcd://host1,host2/prefix address.
type Target struct {
	Endpoints []string
	Prefix    string
}

// ParseTarget parses addr, ok is false when addr is not an etcd address.
func ParseTarget(addr string) (Target, bool, error) {
	rest, ok := strings.CutPrefix(addr, Scheme+"://")
	if !ok {
		return Target{}, false, nil
	}
	hosts, prefix, _ := strings.Cut(rest, "/")
	if hosts == "" {
		return Target{}, true, fmt.Errorf("etcd target %q has no endpoints", addr)
	}
	return Target{Endpoints: strings.Split(hosts, ","), Prefix: "/" + prefix}, true, nil
}

type Resolver struct {
	cli *clientv3.Client
}

func New(endpoints []string) (*Resolver, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: defaultTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &Resolver{cli: cli}, nil
}

// Resolve returns the addresses registered under prefix.
func (r *Resolver) Resolve(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	getResponse, err := r.cli.Get(ctx, prefix, clientv3.WithPrefix())
	cancel()
	if err != nil {
		return nil, err
	}

	addrs := make([]string, 0, len(getResponse.Kvs))
	for _, kv := range getResponse.Kvs {
		addrs = append(addrs, string(kv.Value))
	}
	return addrs, nil
}

// Register keeps addr under prefix until ctx is done or the returned func is
// called.
func (r *Resolver) Register(ctx context.Context, prefix, addr string) (func(), error) {
	lease, err := r.cli.Grant(ctx, defaultTTL)
	if err != nil {
		return nil, fmt.Errorf("grant lease: %w", err)
	}
	key := prefix + addr
	if _, err := r.cli.Put(ctx, key, addr, clientv3.WithLease(lease.ID)); err != nil {
		return nil, fmt.Errorf("put %s: %w", key, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	alive, err := r.cli.KeepAlive(ctx, lease.ID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("keep alive: %w", err)
	}
	go func() {
		for range alive {
		}
	}()

	return func() {
		cancel()
		ctx, done := context.WithTimeout(context.Background(), defaultTimeout)
		defer done()
		_, _ = r.cli.Revoke(ctx, lease.ID)
	}, nil
}

func (r *Resolver) Close() error {
	return r.cli.Close()
}
