package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// WriteText writes every metric in the plain text exposition format.
// Histograms become cumulative _bucket series with _sum and _count.
func WriteText(w io.Writer) error {
	snaps := Snapshots()
	sort.SliceStable(snaps, func(i, j int) bool { return snaps[i].Name < snaps[j].Name })

	var b strings.Builder
	last := ""
	for _, s := range snaps {
		if s.Name != last {
			fmt.Fprintf(&b, "# TYPE %s %s\n", s.Name, s.Kind)
			last = s.Name
		}
		if s.Kind != KindHistogram {
			fmt.Fprintf(&b, "%s%s %s\n", s.Name, formatLabels(s.Labels, ""), formatFloat(s.Value))
			continue
		}
		var cum uint64
		for i, c := range s.Counts {
			cum += c
			le := math.Inf(1)
			if i < len(s.Bounds) {
				le = s.Bounds[i]
			}
			fmt.Fprintf(&b, "%s_bucket%s %d\n", s.Name, formatLabels(s.Labels, formatFloat(le)), cum)
		}
		fmt.Fprintf(&b, "%s_sum%s %s\n", s.Name, formatLabels(s.Labels, ""), formatFloat(s.Value))
		fmt.Fprintf(&b, "%s_count%s %d\n", s.Name, formatLabels(s.Labels, ""), cum)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Handler serves WriteText.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_ = WriteText(w)
	})
}

func formatLabels(labels map[string]string, le string) string {
	if len(labels) == 0 && le == "" {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, labels[k]))
	}
	if le != "" {
		parts = append(parts, fmt.Sprintf("le=%q", le))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "+Inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
