package profile

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/maxgio92/wattprof/pkg/symtab"
)

const (
	// frameSep separates frames within a folded call chain, innermost
	// first; chainSep separates the chains captured in one tick. Both
	// are trailing, as the downstream collapse tooling expects.
	frameSep = ";"
	chainSep = "|"
)

// Row is one output record: everything sampled in one tick, fused. Rows
// are write-once and appended in strictly non-decreasing timestamp
// order.
type Row struct {
	Timestamp     time.Time
	CallChains    string
	CPUDelta      float64
	CPUUtil       float64
	EnergyDeltaUJ uint64
	EnergyWrapped bool
	GPUPowerW     float64
	Samples       int
	LostSamples   uint64
}

// FoldChain renders one resolved call chain in the folded stack format.
func FoldChain(frames []symtab.Frame) string {
	var b strings.Builder
	for _, frame := range frames {
		b.WriteString(frame.String())
		b.WriteString(frameSep)
	}

	return b.String()
}

// JoinChains concatenates the folded chains of one tick.
func JoinChains(chains []string) string {
	var b strings.Builder
	for _, chain := range chains {
		b.WriteString(chain)
		b.WriteString(chainSep)
	}

	return b.String()
}

// RowWriter streams rows as CSV, one record per tick, append-only.
type RowWriter struct {
	csv *csv.Writer
}

func NewRowWriter(w io.Writer) *RowWriter {
	return &RowWriter{csv: csv.NewWriter(w)}
}

func (w *RowWriter) WriteHeader() error {
	return w.csv.Write([]string{
		"timestamp",
		"callchain",
		"cpu_time_delta_s",
		"cpu_util",
		"energy_delta_uj",
		"energy_wrapped",
		"gpu_power_w",
		"samples",
		"lost_samples",
	})
}

func (w *RowWriter) WriteRow(row *Row) error {
	if err := w.csv.Write([]string{
		row.Timestamp.Format(time.RFC3339Nano),
		row.CallChains,
		strconv.FormatFloat(row.CPUDelta, 'f', -1, 64),
		strconv.FormatFloat(row.CPUUtil, 'f', 6, 64),
		strconv.FormatUint(row.EnergyDeltaUJ, 10),
		strconv.FormatBool(row.EnergyWrapped),
		strconv.FormatFloat(row.GPUPowerW, 'f', 3, 64),
		strconv.Itoa(row.Samples),
		strconv.FormatUint(row.LostSamples, 10),
	}); err != nil {
		return err
	}
	w.csv.Flush()

	return w.csv.Error()
}
