package shell

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aybabtme/uniplot/histogram"
	"gopkg.in/yaml.v3"

	"github.com/tenuki-go/tenuki/selfplay"
	"github.com/tenuki-go/tenuki/stats"
)

func batchHeader(path string, store *selfplay.Store) string {
	return fmt.Sprintf("%s: identity=%s records=%d states=%d",
		path, store.Identity(), len(store.Records()), len(store.ThreadStates()))
}

// stats prints reward and game-length summaries for the loaded batch.
func (sc *ShellController) stats(cmd *shellcmd) (*Response, error) {
	if len(sc.records) == 0 {
		return nil, errors.New("no batch loaded; use `load` first")
	}
	var reward, moves stats.Statistic
	blackWins := 0
	for _, rec := range sc.records {
		reward.Push(float64(rec.Result.Reward))
		moves.Push(float64(rec.Result.NumMoves))
		if rec.Result.Reward > 0 {
			blackWins++
		}
	}
	var out strings.Builder
	fmt.Fprintf(&out, "games: %d\n", len(sc.records))
	fmt.Fprintf(&out, "black wins: %d (%.1f%%)\n", blackWins,
		100*float64(blackWins)/float64(len(sc.records)))
	fmt.Fprintf(&out, "reward: mean %.3f stdev %.3f min %.1f max %.1f\n",
		reward.Mean(), reward.Stdev(), reward.Min(), reward.Max())
	fmt.Fprintf(&out, "moves:  mean %.1f stdev %.1f min %.0f max %.0f",
		moves.Mean(), moves.Stdev(), moves.Min(), moves.Max())
	return msg(out.String()), nil
}

// hist draws a histogram of game lengths from the loaded batch.
func (sc *ShellController) hist(cmd *shellcmd) (*Response, error) {
	if len(sc.records) == 0 {
		return nil, errors.New("no batch loaded; use `load` first")
	}
	bins := 15
	if v, ok := cmd.options["bins"]; ok {
		b, err := strconv.Atoi(v)
		if err != nil {
			return nil, err
		}
		bins = b
	}
	lengths := make([]float64, 0, len(sc.records))
	for _, rec := range sc.records {
		lengths = append(lengths, float64(rec.Result.NumMoves))
	}
	hist := histogram.Hist(bins, lengths)
	var out strings.Builder
	if err := histogram.Fprint(&out, hist, histogram.Linear(40)); err != nil {
		return nil, err
	}
	return msg(out.String()), nil
}

// show prints individual records from the loaded batch: `show 3`, or
// `show` for the first few.
func (sc *ShellController) show(cmd *shellcmd) (*Response, error) {
	if len(sc.records) == 0 {
		return nil, errors.New("no batch loaded; use `load` first")
	}
	if len(cmd.args) == 1 {
		idx, err := strconv.Atoi(cmd.args[0])
		if err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(sc.records) {
			return nil, fmt.Errorf("record %d outside range 0..%d", idx, len(sc.records)-1)
		}
		return msg(sc.records[idx].String()), nil
	}
	n := 5
	if n > len(sc.records) {
		n = len(sc.records)
	}
	var out strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&out, "#%d %s\n", i, sc.records[i].String())
	}
	fmt.Fprintf(&out, "(%d of %d records)", n, len(sc.records))
	return msg(out.String()), nil
}

// modelSummaryYAML is the printable per-model rollup.
type modelSummaryYAML struct {
	Model      int64   `yaml:"model"`
	Games      int     `yaml:"games"`
	MeanReward float64 `yaml:"mean_reward"`
	MeanMoves  float64 `yaml:"mean_moves"`
}

// summary prints per-model aggregates from the archive as YAML.
func (sc *ShellController) summary(cmd *shellcmd) (*Response, error) {
	a, err := sc.openArchive()
	if err != nil {
		return nil, err
	}
	summaries, err := a.ModelSummaries(context.Background())
	if err != nil {
		return nil, err
	}
	out := make([]modelSummaryYAML, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, modelSummaryYAML{
			Model:      s.BlackVer,
			Games:      s.Games,
			MeanReward: s.MeanReward,
			MeanMoves:  s.MeanMoves,
		})
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return nil, err
	}
	return msg(string(data)), nil
}

// states prints the checkpoints the archive has seen in the last hour,
// or since -within <duration>.
func (sc *ShellController) states(cmd *shellcmd) (*Response, error) {
	a, err := sc.openArchive()
	if err != nil {
		return nil, err
	}
	within := time.Hour
	if v, ok := cmd.options["within"]; ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, err
		}
		within = d
	}
	cps, err := a.RecentCheckpoints(context.Background(), time.Now().Add(-within))
	if err != nil {
		return nil, err
	}
	if len(cps) == 0 {
		return msg("no recent checkpoints"), nil
	}
	var out strings.Builder
	for _, cp := range cps {
		fmt.Fprintf(&out, "%s %s (%s)\n", cp.Identity, cp.State,
			cp.UpdatedAt.Format(time.RFC3339))
	}
	return msg(strings.TrimRight(out.String(), "\n")), nil
}

// count prints the total number of archived games.
func (sc *ShellController) count(cmd *shellcmd) (*Response, error) {
	a, err := sc.openArchive()
	if err != nil {
		return nil, err
	}
	n, err := a.GameCount(context.Background())
	if err != nil {
		return nil, err
	}
	return msg(fmt.Sprintf("%d games archived", n)), nil
}
