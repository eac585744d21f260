package codegen

import (
	"time"

	"github.com/kanengo/rigging/runtime/metrics"
)

const (
	MethodCountsName       = "rigging_method_count"
	MethodErrorCountsName  = "rigging_method_error_count"
	MethodLatenciesName    = "rigging_method_latency_micros"
	MethodBytesRequestName = "rigging_method_bytes_request"
	MethodBytesReplyName   = "rigging_method_bytes_reply"
	MethodGasName          = "rigging_method_gas"
)

var (
	methodCounts       = metrics.NewCounterMap[MethodLabels](MethodCountsName)
	methodErrors       = metrics.NewCounterMap[MethodLabels](MethodErrorCountsName)
	methodLatencies    = metrics.NewHistogramMap[MethodLabels](MethodLatenciesName, metrics.NonNegativeBuckets)
	methodBytesRequest = metrics.NewHistogramMap[MethodLabels](MethodBytesRequestName, metrics.NonNegativeBuckets)
	methodBytesReply   = metrics.NewHistogramMap[MethodLabels](MethodBytesReplyName, metrics.NonNegativeBuckets)
	methodGas          = metrics.NewHistogramMap[MethodLabels](MethodGasName, metrics.NonNegativeBuckets)
)

// MethodLabels 标识一个服务方法, Remote 为 true 表示调用方一侧
type MethodLabels struct {
	Caller  string
	Program string
	Route   string
	Method  string
	Remote  bool
}

// MethodMetrics are the metrics of one method seen from one side.
type MethodMetrics struct {
	labels MethodLabels
	count  *metrics.Counter
	errs   *metrics.Counter
	micros *metrics.Histogram
	in     *metrics.Histogram
	out    *metrics.Histogram
	gas    *metrics.Histogram
}

func MethodMetricsFor(labels MethodLabels) *MethodMetrics {
	return &MethodMetrics{
		labels: labels,
		count:  methodCounts.Get(labels),
		errs:   methodErrors.Get(labels),
		micros: methodLatencies.Get(labels),
		in:     methodBytesRequest.Get(labels),
		out:    methodBytesReply.Get(labels),
		gas:    methodGas.Get(labels),
	}
}

type MethodCallHandle struct {
	start time.Time
}

func (m *MethodMetrics) Begin() MethodCallHandle {
	return MethodCallHandle{start: time.Now()}
}

// End records one finished call.
func (m *MethodMetrics) End(h MethodCallHandle, failed bool, requestBytes, replyBytes int) {
	m.count.Inc()
	if failed {
		m.errs.Inc()
	}
	m.micros.Put(float64(time.Since(h.start).Microseconds()))
	m.in.Put(float64(requestBytes))
	m.out.Put(float64(replyBytes))
}

// Gas records the gas a handler burned, only the program side knows it.
func (m *MethodMetrics) Gas(burned uint64) {
	m.gas.Put(float64(burned))
}
