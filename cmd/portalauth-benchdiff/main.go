// Command portalauth-benchdiff compares two `go test -bench` outputs and
// fails when a tracked hot-path benchmark regresses past a threshold.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
)

const defaultThreshold = 0.30

// tracked lists the engine benchmarks and the units checked for each.
var tracked = map[string][]string{
	"BenchmarkVerifyAccess":         {"ns/op", "allocs/op"},
	"BenchmarkVerifyAccessParallel": {"ns/op"},
	"BenchmarkAuthenticateRequest":  {"ns/op", "allocs/op"},
	"BenchmarkRefreshRotation":      {"ns/op"},
}

type samples map[string]map[string][]float64

type row struct {
	Benchmark string
	Unit      string
	Baseline  float64
	Candidate float64
	Delta     float64
}

func main() {
	var (
		baselinePath  string
		candidatePath string
		threshold     float64
	)
	flag.StringVar(&baselinePath, "baseline", "", "benchmark output of the reference build")
	flag.StringVar(&candidatePath, "candidate", "", "benchmark output of the build under test")
	flag.Float64Var(&threshold, "threshold", defaultThreshold, "allowed regression ratio (0.30 = +30%)")
	flag.Parse()

	if baselinePath == "" || candidatePath == "" {
		fmt.Fprintln(os.Stderr, "-baseline and -candidate are required")
		os.Exit(2)
	}
	if threshold < 0 {
		fmt.Fprintln(os.Stderr, "-threshold must be >= 0")
		os.Exit(2)
	}

	baseline, err := parseFile(baselinePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse baseline: %v\n", err)
		os.Exit(1)
	}
	candidate, err := parseFile(candidatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse candidate: %v\n", err)
		os.Exit(1)
	}

	rows, failures := compare(baseline, candidate, threshold)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "benchmark\tunit\tbaseline\tcandidate\tdelta")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%.3f\t%.3f\t%+0.2f%%\n", r.Benchmark, r.Unit, r.Baseline, r.Candidate, r.Delta*100)
	}
	_ = tw.Flush()

	if len(failures) > 0 {
		fmt.Fprintln(os.Stderr, "regression threshold exceeded:")
		for _, f := range failures {
			fmt.Fprintf(os.Stderr, "  - %s\n", f)
		}
		os.Exit(1)
	}
}

// compare checks the median of every tracked benchmark unit. Rows come back
// sorted by benchmark name so repeated runs print identically.
func compare(baseline, candidate samples, threshold float64) ([]row, []string) {
	names := make([]string, 0, len(tracked))
	for name := range tracked {
		names = append(names, name)
	}
	slices.Sort(names)

	var (
		rows     []row
		failures []string
	)
	for _, name := range names {
		for _, unit := range tracked[name] {
			base := baseline[name][unit]
			cand := candidate[name][unit]
			if len(base) == 0 || len(cand) == 0 {
				failures = append(failures, fmt.Sprintf("missing samples for %s %s", name, unit))
				continue
			}

			b, c := median(base), median(cand)
			if b <= 0 {
				failures = append(failures, fmt.Sprintf("invalid baseline median for %s %s", name, unit))
				continue
			}
			r := row{Benchmark: name, Unit: unit, Baseline: b, Candidate: c, Delta: (c - b) / b}
			rows = append(rows, r)
			if r.Delta > threshold {
				failures = append(failures, fmt.Sprintf("%s %s regressed by %+0.2f%% (limit %+0.2f%%)", name, unit, r.Delta*100, threshold*100))
			}
		}
	}
	return rows, failures
}

func parseFile(path string) (samples, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) (samples, error) {
	out := samples{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "Benchmark") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}

		name := trimProcs(fields[0])
		if _, ok := tracked[name]; !ok {
			continue
		}
		if out[name] == nil {
			out[name] = map[string][]float64{}
		}
		// fields[1] is the iteration count; value/unit pairs follow.
		for i := 2; i+1 < len(fields); i += 2 {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			out[name][fields[i+1]] = append(out[name][fields[i+1]], v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// trimProcs strips the -GOMAXPROCS suffix go test appends to names.
func trimProcs(raw string) string {
	if idx := strings.LastIndexByte(raw, '-'); idx > 0 {
		if _, err := strconv.Atoi(raw[idx+1:]); err == nil {
			return raw[:idx]
		}
	}
	return raw
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
