package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	goToken "github.com/MrEthical07/goToken"
	"github.com/MrEthical07/goToken/metrics/export/internaldefs"
)

// Source is implemented by [goToken.Engine].
type Source interface {
	MetricsSnapshot() goToken.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders a [Source] on demand.
type Exporter struct {
	source Source
}

// NewExporter creates an exporter reading from source.
func NewExporter(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler serves the current metrics.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the exposition text. It is empty while metrics are disabled
// and nothing was dropped.
func (p *Exporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	for _, def := range internaldefs.CounterDefs {
		writeCounter(&b, def, snapshot.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		if raw, ok := snapshot.Histograms[def.ID]; ok {
			writeHistogram(&b, def, internaldefs.Cumulative(raw))
		}
	}
	writeCounter(&b, internaldefs.AuditDropped, dropped)

	return b.String()
}

func writeHeader(b *strings.Builder, def internaldefs.Def, kind string) {
	b.WriteString("# HELP " + def.Name + " " + escapeHelp(def.Help) + "\n")
	b.WriteString("# TYPE " + def.Name + " " + kind + "\n")
}

func writeSample(b *strings.Builder, name, labels string, value uint64) {
	b.WriteString(name)
	b.WriteString(labels)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeCounter(b *strings.Builder, def internaldefs.Def, value uint64) {
	writeHeader(b, def, "counter")
	writeSample(b, def.Name, "", value)
}

func writeHistogram(b *strings.Builder, def internaldefs.Def, cumulative [internaldefs.BucketCount]uint64) {
	writeHeader(b, def, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		writeSample(b, def.Name+"_bucket", `{le="`+le+`"}`, cumulative[i])
	}
	writeSample(b, def.Name+"_count", "", cumulative[len(cumulative)-1])
	// Buckets are counts only; no sum is tracked.
	writeSample(b, def.Name+"_sum", "", 0)
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, `\`, `\\`)
	return strings.ReplaceAll(help, "\n", `\n`)
}
