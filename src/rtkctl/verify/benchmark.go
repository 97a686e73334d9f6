package verify

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bitswalk/rtk/src/rtkctl/build"
)

var cyclictestMaxRe = regexp.MustCompile(`Max:\s*(\d+)`)

// runBenchmark measures scheduling latency with cyclictest: one unloaded
// pass, and when stress-ng is available a second pass under CPU load. The
// benchmark is best-effort and never affects the exit status.
func (v *Verifier) runBenchmark(ctx context.Context) {
	if _, err := v.Exec.LookPath("cyclictest"); err != nil {
		fmt.Fprintf(v.Out, "\nLatency\n-------\n  cyclictest not installed, skipping benchmark\n")
		return
	}

	duration := v.MeasureDuration
	if duration == 0 {
		duration = 10 * time.Second
	}

	var checks []check

	maxUs, err := v.cyclictestPass(ctx, duration)
	if err != nil {
		log.Warn("Unloaded latency pass failed", "error", err)
		checks = append(checks, check{
			name:     "max latency (idle)",
			observed: "measurement failed",
			ok:       false,
		})
	} else {
		checks = append(checks, check{
			name:     "max latency (idle)",
			observed: fmt.Sprintf("%d us", maxUs),
			expected: "< 100 us",
			ok:       maxUs < 100,
		})
	}

	if _, err := v.Exec.LookPath("stress-ng"); err == nil {
		loadedMax, err := v.loadedPass(ctx, duration)
		if err != nil {
			log.Warn("Loaded latency pass failed", "error", err)
			checks = append(checks, check{
				name:     "max latency (loaded)",
				observed: "measurement failed",
				ok:       false,
			})
		} else {
			checks = append(checks, check{
				name:     "max latency (loaded)",
				observed: fmt.Sprintf("%d us", loadedMax),
				expected: "< 200 us",
				ok:       loadedMax < 200,
			})
		}
	} else {
		checks = append(checks, check{
			name:     "max latency (loaded)",
			observed: "stress-ng not installed",
			expected: "",
			ok:       true,
		})
	}

	v.section("Latency", checks)
}

// loadedPass runs cyclictest while stress-ng loads every CPU. The load
// generator gets a settle delay before measurement and is stopped and
// awaited before the result is returned.
func (v *Verifier) loadedPass(ctx context.Context, duration time.Duration) (int, error) {
	settle := v.SettleDelay
	if settle == 0 {
		settle = 2 * time.Second
	}

	loadCtx, stopLoad := context.WithCancel(ctx)
	defer stopLoad()

	load := exec.CommandContext(loadCtx, "stress-ng", "--cpu", "0",
		"--timeout", fmt.Sprintf("%ds", int((duration+settle).Seconds())+5))
	if err := load.Start(); err != nil {
		return 0, fmt.Errorf("cannot start load generator: %w", err)
	}
	// Join the load process exactly once, after measurement or on abort.
	defer func() {
		stopLoad()
		load.Wait()
	}()

	select {
	case <-time.After(settle):
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	return v.cyclictestPass(ctx, duration)
}

// cyclictestPass runs one cyclictest measurement and returns the worst
// observed latency in microseconds.
func (v *Verifier) cyclictestPass(ctx context.Context, duration time.Duration) (int, error) {
	var stdout bytes.Buffer
	err := v.Exec.Run(ctx, build.RunOpts{
		Command: []string{
			"cyclictest", "--mlockall", "--smp", "--priority=80",
			"--interval=1000", "--quiet",
			fmt.Sprintf("--duration=%ds", int(duration.Seconds())),
		},
		Stdout: &stdout,
	})
	if err != nil {
		return 0, err
	}
	return parseCyclictestMax(stdout.String())
}

// parseCyclictestMax extracts the highest per-thread Max value from
// cyclictest output.
func parseCyclictestMax(output string) (int, error) {
	max := -1
	for _, line := range strings.Split(output, "\n") {
		m := cyclictestMaxRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	if max < 0 {
		return 0, fmt.Errorf("no latency figures in cyclictest output")
	}
	return max, nil
}
