// Package export writes solutions and run summaries in the plain text
// formats used by the benchmark tooling and reads solution files back.
package export

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"vrpspd/internal/model"
	"vrpspd/internal/opt"
)

// StampLayout formats the start time that names a batch output directory.
const StampLayout = "2006-01-02_15-04-05"

const separator = "------------------------------"

// Suffix returns the file name suffix of a snapshot kind.
func Suffix(kind string) string {
	switch kind {
	case model.KindLocalSearch:
		return "ls"
	case model.KindBest:
		return "best"
	}
	return ""
}

// FileName is <instance>-<round:06d><suffix>.sol.
func FileName(instance string, round int, kind string) string {
	return fmt.Sprintf("%s-%06d%s.sol", instance, round, Suffix(kind))
}

// ExecDir is the directory of one execution of a batch started at stamp.
func ExecDir(out, stamp, instance string, exec int) string {
	return filepath.Join(out, stamp, "VDNS", instance, fmt.Sprintf("exec_%d", exec))
}

// Snapshot converts a search event into its exported form. Costs and the
// lower bound are divided by the instance cost divisor.
func Snapshot(in *model.Instance, runID string, ev opt.Event) model.Snapshot {
	div := in.CostDivisor()
	s := ev.Solution
	routes := make([][]int, 0, len(s.Routes))
	for _, r := range s.Routes {
		seq := make([]int, 0, r.Len()+2)
		seq = append(seq, model.Depot)
		seq = append(seq, r.Nodes()...)
		routes = append(routes, append(seq, model.Depot))
	}
	return model.Snapshot{
		RunID:       runID,
		Instance:    in.Name,
		Round:       ev.Round,
		Kind:        ev.Kind,
		BestCost:    ev.BestCost / div,
		TotalCost:   s.Cost() / div,
		LowerBound:  s.LowerBound / div,
		Gap:         s.Gap,
		Status:      s.Status,
		CreationSec: s.CreationTime.Seconds(),
		SolvingSec:  s.SolvingTime.Seconds(),
		ProcessSec:  ev.Elapsed.Seconds(),
		CliqueSize:  ev.CliqueSize,
		Routes:      routes,
		CreatedAt:   time.Now().UTC(),
	}
}

// WriteSol writes snap in the .sol text layout.
func WriteSol(w io.Writer, snap model.Snapshot) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%-15s%15.2f\n", "Best cost:", snap.BestCost)
	fmt.Fprintf(bw, "%-15s%15.2f\n", "Total cost:", snap.TotalCost)
	fmt.Fprintf(bw, "%-15s%15.2f\n", "Lower bound:", snap.LowerBound)
	fmt.Fprintf(bw, "%-15s%15.4f\n", "Gap:", snap.Gap)
	fmt.Fprintf(bw, "%-15s%15s\n", "Status:", snap.Status)
	fmt.Fprintf(bw, "%-15s%15.2f\n", "Creation time:", snap.CreationSec)
	fmt.Fprintf(bw, "%-15s%15.2f\n", "Solving time:", snap.SolvingSec)
	fmt.Fprintf(bw, "%-15s%15.2f\n", "Process time:", snap.ProcessSec)
	fmt.Fprintf(bw, "%-15s%15d\n", "Clique size:", snap.CliqueSize)
	fmt.Fprintln(bw, separator)
	for k, r := range snap.Routes {
		fmt.Fprintf(bw, "%-15s", fmt.Sprintf("Route %d: ", k+1))
		for _, id := range r {
			fmt.Fprintf(bw, "%5d", id)
		}
		fmt.Fprintln(bw)
		fmt.Fprintln(bw, separator)
	}
	return bw.Flush()
}

// WriteSolFile writes snap into dir under its FileName.
func WriteSolFile(dir string, snap model.Snapshot) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName(snap.Instance, snap.Round, snap.Kind))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := WriteSol(f, snap); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, f.Close()
}

// ParseSol reads a .sol document. Run id, kind, round and creation time are
// not part of the format and stay zero.
func ParseSol(r io.Reader) (model.Snapshot, error) {
	var snap model.Snapshot
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || text == separator {
			continue
		}
		key, value, ok := strings.Cut(text, ":")
		if !ok {
			return snap, fmt.Errorf("line %d: missing ':' in %q", line, text)
		}
		value = strings.TrimSpace(value)
		var err error
		switch {
		case key == "Best cost":
			snap.BestCost, err = strconv.ParseFloat(value, 64)
		case key == "Total cost":
			snap.TotalCost, err = strconv.ParseFloat(value, 64)
		case key == "Lower bound":
			snap.LowerBound, err = strconv.ParseFloat(value, 64)
		case key == "Gap":
			snap.Gap, err = strconv.ParseFloat(value, 64)
		case key == "Status":
			snap.Status = value
		case key == "Creation time":
			snap.CreationSec, err = strconv.ParseFloat(value, 64)
		case key == "Solving time":
			snap.SolvingSec, err = strconv.ParseFloat(value, 64)
		case key == "Process time":
			snap.ProcessSec, err = strconv.ParseFloat(value, 64)
		case key == "Clique size":
			snap.CliqueSize, err = strconv.Atoi(value)
		case strings.HasPrefix(key, "Route "):
			var route []int
			for _, f := range strings.Fields(value) {
				id, perr := strconv.Atoi(f)
				if perr != nil {
					err = perr
					break
				}
				route = append(route, id)
			}
			snap.Routes = append(snap.Routes, route)
		default:
			return snap, fmt.Errorf("line %d: unknown field %q", line, key)
		}
		if err != nil {
			return snap, fmt.Errorf("line %d: %s: %w", line, key, err)
		}
	}
	return snap, sc.Err()
}

// Sequences strips the depot brackets from exported routes.
func Sequences(snap model.Snapshot) [][]int {
	out := make([][]int, 0, len(snap.Routes))
	for _, r := range snap.Routes {
		seq := make([]int, 0, len(r))
		for _, id := range r {
			if id != model.Depot {
				seq = append(seq, id)
			}
		}
		out = append(out, seq)
	}
	return out
}

// WriteSummary writes the .cnt run summary. Costs must already be divided.
func WriteSummary(w io.Writer, s model.RunSummary) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%-30s%8.2f\n", "BEST COST", s.BestCost)
	fmt.Fprintf(bw, "%-30s%8.2f\n", "PROCESS TIME", s.ProcessSec)
	fmt.Fprintf(bw, "%-30s%8.2f\n", "TIME TO BEST", s.TimeToBestSec)
	fmt.Fprintf(bw, "%-30s%8d\n", "ITERATIONS", s.Rounds)
	fmt.Fprintf(bw, "%-30s%8d\n", "ITERATIONS TO BEST", s.RoundToBest)
	fmt.Fprintf(bw, "%-30s%8d\n", "IMPROVEMENTS", s.Improvements)
	return bw.Flush()
}

// WriteSummaryFile writes <dir>/<instance>.cnt.
func WriteSummaryFile(dir, instance string, s model.RunSummary) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, instance+".cnt")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := WriteSummary(f, s); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, f.Close()
}

// Summary converts a search result into a run summary.
func Summary(in *model.Instance, res opt.Result) model.RunSummary {
	return model.RunSummary{
		BestCost:      res.Best.Cost() / in.CostDivisor(),
		ProcessSec:    res.Elapsed.Seconds(),
		TimeToBestSec: res.TimeToBest.Seconds(),
		Rounds:        res.Rounds,
		RoundToBest:   res.RoundToBest,
		Improvements:  res.Improvements,
		CliqueSize:    res.CliqueSize,
	}
}
