// Package loadtest drives a remote journal store with concurrent simulated
// players and reports request latency.
//
// Each player uploads a realistic history of training logs, updates its
// profile and reads the history back, the way a fresh install migrating an
// offline journal would.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pixeltennis/pixeltennis/internal/gamify"
	"github.com/pixeltennis/pixeltennis/internal/remote"
	"github.com/pixeltennis/pixeltennis/internal/schema"
)

// Config shapes a run.
type Config struct {
	Players       int
	LogsPerPlayer int

	// BatchSize > 1 uploads logs with UpsertLogs; otherwise every log is
	// its own UpsertLog request.
	BatchSize int

	// UserPrefix namespaces the simulated user ids, e.g. "loadtest".
	UserPrefix string

	// Seed makes the generated histories reproducible.
	Seed int64

	Now func() time.Time
}

// DefaultConfig returns a small run.
func DefaultConfig() Config {
	return Config{
		Players:       20,
		LogsPerPlayer: 50,
		BatchSize:     10,
		UserPrefix:    "loadtest",
		Seed:          42,
		Now:           time.Now,
	}
}

// LatencyStats captures request latencies of one kind.
type LatencyStats struct {
	Min      time.Duration
	Max      time.Duration
	Mean     time.Duration
	P50      time.Duration
	P95      time.Duration
	P99      time.Duration
	Requests int
	Errors   int
}

// Result is the outcome of Run.
type Result struct {
	Writes  LatencyStats
	Reads   LatencyStats
	Elapsed time.Duration

	// Missing counts uploaded logs that did not come back on read.
	Missing int
}

// recorder collects latencies from concurrent players.
type recorder struct {
	mu     sync.Mutex
	times  []time.Duration
	errors int
}

func (r *recorder) observe(start time.Time, err error) {
	elapsed := time.Since(start)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.times = append(r.times, elapsed)
	if err != nil {
		r.errors++
	}
}

func (r *recorder) stats() LatencyStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := computeLatencyStats(r.times)
	s.Errors = r.errors
	return s
}

// Run simulates cfg.Players players against rs. Request failures are
// counted, not returned; Run fails only on bad config or cancellation.
func Run(ctx context.Context, rs remote.Store, cfg Config) (*Result, error) {
	if rs == nil {
		return nil, fmt.Errorf("remote store cannot be nil")
	}
	if cfg.Players < 1 || cfg.LogsPerPlayer < 1 {
		return nil, fmt.Errorf("need at least one player and one log (got %d players, %d logs)", cfg.Players, cfg.LogsPerPlayer)
	}
	if cfg.UserPrefix == "" {
		cfg.UserPrefix = DefaultConfig().UserPrefix
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	var (
		writes, reads recorder
		missingMu     sync.Mutex
		missing       int
	)
	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for i := range cfg.Players {
		userID := fmt.Sprintf("%s-%04d", cfg.UserPrefix, i)
		rng := rand.New(rand.NewSource(cfg.Seed + int64(i)))
		g.Go(func() error {
			n, err := runPlayer(ctx, rs, cfg, userID, rng, &writes, &reads)
			missingMu.Lock()
			missing += n
			missingMu.Unlock()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Result{
		Writes:  writes.stats(),
		Reads:   reads.stats(),
		Elapsed: time.Since(start),
		Missing: missing,
	}, nil
}

func runPlayer(ctx context.Context, rs remote.Store, cfg Config, userID string, rng *rand.Rand, writes, reads *recorder) (int, error) {
	now := cfg.Now()
	logs := GenerateLogs(rng, cfg.LogsPerPlayer, now)
	rows := make([]remote.LogRow, 0, len(logs))
	for _, l := range logs {
		row, err := remote.FromLog(userID, l, now)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}

	t := time.Now()
	doc := schema.DefaultDocument("")
	doc.Logs = logs
	doc.Stats = gamify.ReconstructStats(logs)
	name := userID
	patch := remote.ProfilePatchFromDocument(doc)
	patch.ProfileName = &name
	writes.observe(t, rs.UpdateProfile(ctx, userID, patch))

	for chunk := range slices.Chunk(rows, max(cfg.BatchSize, 1)) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		t := time.Now()
		var err error
		if cfg.BatchSize > 1 {
			err = rs.UpsertLogs(ctx, userID, chunk)
		} else {
			err = rs.UpsertLog(ctx, userID, chunk[0])
		}
		writes.observe(t, err)
	}

	t = time.Now()
	got, err := rs.FetchLogs(ctx, userID)
	reads.observe(t, err)
	if err != nil {
		return 0, ctx.Err()
	}
	seen := make(map[string]bool, len(got))
	for _, row := range got {
		seen[row.ID] = true
	}
	missing := 0
	for _, row := range rows {
		if !seen[row.ID] {
			missing++
		}
	}
	return missing, nil
}

var (
	logTypes  = []schema.LogType{schema.LogLesson, schema.LogLesson, schema.LogPractice, schema.LogPractice, schema.LogGame}
	durations = []int{30, 45, 60, 60, 90, 120}
	matches   = []schema.MatchType{schema.MatchSingles, schema.MatchDoubles, schema.MatchMixed}
	tags      = []string{"포핸드", "백핸드", "서브", "발리", "풋워크"}
)

// GenerateLogs returns n valid logs on consecutive days ending at now, newest
// first, with every skill point allocated.
func GenerateLogs(rng *rand.Rand, n int, now time.Time) []schema.TrainingLog {
	logs := make([]schema.TrainingLog, 0, n)
	for i := range n {
		l := schema.TrainingLog{
			ID:           schema.NewLogID(),
			Date:         schema.FormatDate(now.AddDate(0, 0, -i)),
			Type:         logTypes[rng.Intn(len(logTypes))],
			Duration:     durations[rng.Intn(len(durations))],
			Satisfaction: rng.Intn(schema.MaxSatisfaction + 1),
		}
		for range gamify.PointsForDuration(l.Duration) {
			k := schema.StatKeys[rng.Intn(len(schema.StatKeys))]
			l.GainedStats.Set(k, l.GainedStats.Get(k)+1)
		}

		if l.Type == schema.LogGame {
			d := &schema.GameDetails{MatchCount: 1 + rng.Intn(3), Weather: schema.Weathers[rng.Intn(len(schema.Weathers))]}
			for range d.MatchCount {
				rec := schema.GameRecord{Type: matches[rng.Intn(len(matches))], MyScore: rng.Intn(7), OppScore: rng.Intn(7), Result: schema.ResultLose}
				if rec.MyScore > rec.OppScore {
					rec.Result = schema.ResultWin
				}
				d.Games = append(d.Games, rec)
			}
			l.Details = d
		} else {
			l.Details = &schema.SessionDetails{Tags: []string{tags[rng.Intn(len(tags))]}}
		}
		logs = append(logs, l)
	}
	return logs
}

func computeLatencyStats(durations []time.Duration) LatencyStats {
	if len(durations) == 0 {
		return LatencyStats{}
	}
	sorted := slices.Clone(durations)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	return LatencyStats{
		Min:      sorted[0],
		Max:      sorted[len(sorted)-1],
		Mean:     sum / time.Duration(len(sorted)),
		P50:      sorted[len(sorted)*50/100],
		P95:      sorted[len(sorted)*95/100],
		P99:      sorted[len(sorted)*99/100],
		Requests: len(sorted),
	}
}

// Print writes a summary of r.
func (r *Result) Print(w io.Writer) {
	fmt.Fprintf(w, "Elapsed: %v, missing logs: %d\n", r.Elapsed.Round(time.Millisecond), r.Missing)
	r.Writes.print(w, "Writes")
	r.Reads.print(w, "Reads")
}

func (s LatencyStats) print(w io.Writer, name string) {
	fmt.Fprintf(w, "%s: %d requests, %d errors\n", name, s.Requests, s.Errors)
	fmt.Fprintf(w, "  min %v  p50 %v  mean %v  p95 %v  p99 %v  max %v\n", s.Min, s.P50, s.Mean, s.P95, s.P99, s.Max)
}
