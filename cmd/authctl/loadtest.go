package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/sportsprop/authcore/session"
)

func newLoadtestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure session store throughput with the Redis mirror attached",
		Long: `loadtest seeds the in-process session table through the Redis mirror,
then runs a validate phase and a create phase (which exercises eviction)
with concurrent workers. Without --redis-addr or REDIS_ADDR an in-process
miniredis is used.`,
		Args: cobra.NoArgs,
		RunE: runLoadtest,
	}
	cmd.Flags().Int("identities", 10000, "number of identities to seed")
	cmd.Flags().Int("concurrency", 256, "number of concurrent workers")
	cmd.Flags().Int("ops", 200000, "operations per phase")
	cmd.Flags().String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	cmd.Flags().Bool("miniredis", false, "force an in-process miniredis")
	cmd.Flags().String("prefix", session.DefaultRedisPrefix, "session key prefix")
	cmd.Flags().Bool("no-mirror", false, "measure the in-process table alone")
	return cmd
}

func runLoadtest(cmd *cobra.Command, args []string) error {
	identities, _ := cmd.Flags().GetInt("identities")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	ops, _ := cmd.Flags().GetInt("ops")
	prefix, _ := cmd.Flags().GetString("prefix")
	noMirror, _ := cmd.Flags().GetBool("no-mirror")

	if identities <= 0 || concurrency <= 0 || ops <= 0 {
		return errors.New("identities, concurrency, and ops must be > 0")
	}

	ctx := context.Background()

	var opts []session.Option
	if !noMirror {
		if addr, _ := cmd.Flags().GetString("redis-addr"); addr == "" && os.Getenv("REDIS_ADDR") == "" {
			_ = cmd.Flags().Set("miniredis", "true")
		}
		client, cleanup, err := openRedis(cmd)
		if err != nil {
			return err
		}
		defer cleanup()
		opts = append(opts, session.WithDurable(session.NewRedisMirror(client, prefix)))
		fmt.Println("mirroring sessions into redis")
	}

	store := session.NewStore(session.DefaultConfig(), opts...)

	tokens := make([]string, identities)
	fmt.Printf("seeding %d sessions...\n", identities)
	startSeed := time.Now()
	for i := 0; i < identities; i++ {
		token, err := store.Create(ctx, identityFor(i), map[string]string{"source": "loadtest"})
		if err != nil {
			return fmt.Errorf("seed failed: %w", err)
		}
		tokens[i] = token
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runPhase(ops, concurrency, 7919, func(r *rand.Rand, _ int) error {
		if _, ok := store.Validate(ctx, tokens[r.Intn(len(tokens))]); !ok {
			return errors.New("session missing")
		}
		return nil
	})
	// Seeded tokens are evicted during this phase, so it runs last.
	createStats := runPhase(ops, concurrency, 6151, func(r *rand.Rand, _ int) error {
		_, err := store.Create(ctx, identityFor(r.Intn(identities)), nil)
		return err
	})

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("create", createStats)
	fmt.Printf("table size after run: %d (limit %d per identity)\n", store.Len(), store.Config().MaxConcurrent)
	return nil
}

func identityFor(i int) string {
	return fmt.Sprintf("user-%d", i)
}

// runPhase runs ops calls of op across concurrency workers and records the
// latency of every call.
func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
