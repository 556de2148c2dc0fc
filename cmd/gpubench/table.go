package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fxnlabs/gpubench/internal/bench"
	"github.com/fxnlabs/gpubench/internal/gpu"
	"github.com/fxnlabs/gpubench/internal/kernels"
	"github.com/fxnlabs/gpubench/pkg/api"
)

var tableHeader = []string{"OP", "SHAPE", "TILES", "DTYPE", "VENDOR", "TIMING", "P50 MS", "P95 MS", "THROUGHPUT", "CHECK"}

type row struct {
	op, shape, tiles, dtype, vendor, timing string
	p50, p95                                float64
	throughput, check                       string
}

func rowFromResult(r bench.BenchResult) row {
	out := row{
		op:         string(r.Op),
		shape:      r.Shape.Format(r.Op),
		tiles:      "-",
		dtype:      string(r.Precision),
		vendor:     orDash(r.Vendor),
		timing:     string(r.Timing),
		p50:        r.Stats.P50,
		p95:        r.Stats.P95,
		throughput: r.Throughput.String(),
		check:      "-",
	}
	if r.Tiles != nil {
		out.tiles = r.Tiles.String()
	}
	if r.Check != nil {
		out.check = formatCheck(r.Check.OK, r.Check.Value, r.Check.Expected)
	}
	if r.Model != "" {
		out.op = fmt.Sprintf("%s (%s)", r.Op, r.Model)
	}
	return out
}

func rowFromAPI(r api.Result) row {
	res := bench.BenchResult{
		Op:         kernels.Op(r.Op),
		Vendor:     r.Vendor,
		Precision:  kernels.Precision(r.Precision),
		Shape:      bench.Shape(r.Shape),
		Timing:     bench.TimingKind(r.Timing),
		Stats:      bench.Stats(r.Stats),
		Throughput: bench.Throughput(r.Throughput),
		Model:      r.Model,
	}
	if r.Tiles != nil {
		res.Tiles = &bench.TileConfig{TM: r.Tiles.TM, TN: r.Tiles.TN, TK: r.Tiles.TK}
	}
	if r.Check != nil {
		res.Check = &bench.SpotCheck{Value: r.Check.Value, Expected: r.Check.Expected, OK: r.Check.OK}
	}
	return rowFromResult(res)
}

func formatCheck(ok bool, value, expected float64) string {
	if ok {
		return "ok"
	}
	return fmt.Sprintf("FAIL %.4g != %.4g", value, expected)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// writeTable renders results as aligned columns.
func writeTable(w io.Writer, rows []row) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(tableHeader, "\t"))
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%.3f\t%.3f\t%s\t%s\n",
			r.op, r.shape, r.tiles, r.dtype, r.vendor, r.timing, r.p50, r.p95, r.throughput, r.check)
	}
	return tw.Flush()
}

func writeResults(w io.Writer, results []bench.BenchResult) error {
	rows := make([]row, len(results))
	for i, r := range results {
		rows[i] = rowFromResult(r)
	}
	return writeTable(w, rows)
}

func writeCapabilities(w io.Writer, caps gpu.Capabilities) error {
	return writeDevice(w, api.Device{
		Backend:         caps.Backend,
		Vendor:          caps.Vendor,
		Architecture:    caps.Architecture,
		Device:          caps.Device,
		PowerPreference: string(caps.PowerPreference),
		Features:        caps.Features.Strings(),
		Limits:          api.Limits(caps.Limits),
	})
}

func writeDevice(w io.Writer, d api.Device) error {
	features := "none"
	if len(d.Features) > 0 {
		features = strings.Join(d.Features, ", ")
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Backend:\t%s\n", d.Backend)
	fmt.Fprintf(tw, "Vendor:\t%s\n", orDash(d.Vendor))
	fmt.Fprintf(tw, "Architecture:\t%s\n", orDash(d.Architecture))
	fmt.Fprintf(tw, "Device:\t%s\n", orDash(d.Device))
	fmt.Fprintf(tw, "Power preference:\t%s\n", d.PowerPreference)
	fmt.Fprintf(tw, "Features:\t%s\n", features)
	fmt.Fprintf(tw, "Max workgroup size:\t%d×%d×%d\n", d.Limits.MaxWorkgroupSizeX, d.Limits.MaxWorkgroupSizeY, d.Limits.MaxWorkgroupSizeZ)
	fmt.Fprintf(tw, "Max invocations per workgroup:\t%d\n", d.Limits.MaxInvocationsPerWorkgroup)
	fmt.Fprintf(tw, "Max workgroups per dimension:\t%d\n", d.Limits.MaxWorkgroupsPerDimension)
	fmt.Fprintf(tw, "Max buffer size:\t%d\n", d.Limits.MaxBufferSize)
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
