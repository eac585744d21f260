package noderpc

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/kanengo/rigging/runtime/metrics"
	"github.com/kanengo/rigging/runtime/urandom"
)

type rpcLabels struct {
	Endpoint string
	// Websocket is set for upgraded connections, whose latency is the
	// lifetime of the subscription rather than of one call.
	Websocket bool
}

type rpcFailureLabels struct {
	Endpoint string
	Status   int
}

var (
	rpcRequests      = metrics.NewCounterMap[rpcLabels]("rigging_rpc_request_count")
	rpcFailures      = metrics.NewCounterMap[rpcFailureLabels]("rigging_rpc_error_count")
	rpcLatencyMicros = metrics.NewHistogramMap[rpcLabels]("rigging_rpc_latency_micros", metrics.NonNegativeBuckets)
	rpcRequestBytes  = metrics.NewHistogramMap[rpcLabels]("rigging_rpc_request_bytes", metrics.NonNegativeBuckets)
)

// traceEvery is the mean interval between traced requests.
const traceEvery = time.Second

// instrument records request metrics for endpoint and traces a sample of the
// requests through otelhttp.
func instrument(endpoint string, next http.Handler) http.Handler {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		labels := rpcLabels{Endpoint: endpoint, Websocket: r.Header.Get("Upgrade") == "websocket"}
		rpcRequests.Get(labels).Add(1)
		if r.ContentLength > 0 {
			rpcRequestBytes.Get(labels).Put(float64(r.ContentLength))
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		rpcLatencyMicros.Get(labels).Put(float64(time.Since(start).Microseconds()))
		if rec.status >= http.StatusBadRequest {
			rpcFailures.Get(rpcFailureLabels{Endpoint: endpoint, Status: rec.status}).Add(1)
		}
	})

	var s sampler
	return otelhttp.NewHandler(h, endpoint, otelhttp.WithFilter(func(*http.Request) bool {
		return s.sample(time.Now(), traceEvery)
	}))
}

// sampler lets through at most one request per randomized interval with mean
// every.
type sampler struct {
	next atomic.Int64 // unix nanos
}

func (s *sampler) sample(now time.Time, every time.Duration) bool {
	n := s.next.Load()
	if now.UnixNano() < n {
		return false
	}
	wait := time.Duration(2 * urandom.Float64() * float64(every))
	return s.next.CompareAndSwap(n, now.Add(wait).UnixNano())
}

// statusRecorder keeps the response status. Hijack is forwarded for the
// websocket upgrade of go-jsonrpc.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("noderpc: %T cannot be hijacked", w.ResponseWriter)
	}
	w.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (w *statusRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }
