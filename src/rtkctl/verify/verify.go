// Package verify inspects the running system after a reboot into the new
// kernel: a fatal gate on the real-time patch being active, plus advisory
// checks on tuning options and an optional latency benchmark.
package verify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	rtkerr "github.com/bitswalk/rtk/src/common/errors"
	"github.com/bitswalk/rtk/src/common/logs"
	"github.com/bitswalk/rtk/src/rtkctl/build"
	"github.com/bitswalk/rtk/src/rtkctl/kconfig"
)

var log = logs.NewDefault()

// Verifier checks that the running kernel is the expected real-time build.
// Only the RT gate affects the exit status; every other check is advisory.
type Verifier struct {
	Exec     build.Executor
	ReadFile func(path string) ([]byte, error)
	Out      io.Writer

	// Benchmark enables the cyclictest latency measurement when the tool
	// is installed.
	Benchmark bool
	// MeasureDuration bounds each cyclictest pass. Zero means 10 seconds.
	MeasureDuration time.Duration
	// SettleDelay is the wait between starting the load generator and
	// measuring, so startup transients are not included. Zero means
	// 2 seconds.
	SettleDelay time.Duration
}

// NewVerifier creates a verifier using the host executor and filesystem.
func NewVerifier(out io.Writer) *Verifier {
	return &Verifier{
		Exec:     build.NewHostExecutor(nil),
		ReadFile: os.ReadFile,
		Out:      out,
	}
}

type check struct {
	name     string
	observed string
	expected string
	ok       bool
}

// Verify runs all checks and prints the report. The returned error is
// non-nil only when the RT gate fails.
func (v *Verifier) Verify(ctx context.Context) error {
	release, err := v.commandOutput(ctx, "uname", "-r")
	if err != nil {
		return rtkerr.Wrap(err, rtkerr.DomainVerify, "uname_failed",
			"cannot determine the running kernel release")
	}
	release = strings.TrimSpace(release)

	cfg := v.loadActiveConfig(release)

	rtActive, rtEvidence := v.rtGate(ctx, release, cfg)
	v.section("Kernel", []check{{
		name:     "real-time preemption",
		observed: rtEvidence,
		expected: "PREEMPT_RT active",
		ok:       rtActive,
	}, {
		name:     "release",
		observed: release,
		expected: "",
		ok:       true,
	}})

	if !rtActive {
		return rtkerr.ErrNotRTKernel.
			WithMessagef("the running kernel %s is not a PREEMPT_RT build", release)
	}

	v.section("Configuration", v.configChecks(cfg))
	v.section("Modules", v.moduleChecks(ctx))
	v.section("Boot command line", v.cmdlineChecks())

	if v.Benchmark {
		v.runBenchmark(ctx)
	}

	return nil
}

// rtGate decides whether the running kernel carries the RT patch. First
// positive evidence wins.
func (v *Verifier) rtGate(ctx context.Context, release string, cfg *kconfig.File) (bool, string) {
	if strings.Contains(release, "-rt") || strings.Contains(release, "rt-") {
		return true, fmt.Sprintf("release %s carries an RT marker", release)
	}
	if data, err := v.ReadFile("/proc/version"); err == nil {
		if strings.Contains(string(data), "PREEMPT_RT") {
			return true, "/proc/version reports PREEMPT_RT"
		}
	}
	if cfg != nil {
		if opt, ok := cfg.Get("CONFIG_PREEMPT_RT"); ok && opt.State == kconfig.StateEnabled {
			return true, "active config has CONFIG_PREEMPT_RT=y"
		}
	}
	return false, "no RT marker in release, /proc/version or active config"
}

// loadActiveConfig parses the booted kernel's configuration snapshot.
// Missing or unreadable snapshots degrade the dependent checks rather
// than failing the run.
func (v *Verifier) loadActiveConfig(release string) *kconfig.File {
	path := fmt.Sprintf("/boot/config-%s", release)
	data, err := v.ReadFile(path)
	if err != nil {
		log.Debug("No active config snapshot", "path", path, "error", err)
		return nil
	}
	cfg, err := kconfig.Parse(bytes.NewReader(data))
	if err != nil {
		log.Warn("Cannot parse active config snapshot", "path", path, "error", err)
		return nil
	}
	return cfg
}

// configChecks compares tuning options in the active config snapshot.
func (v *Verifier) configChecks(cfg *kconfig.File) []check {
	if cfg == nil {
		return []check{{
			name:     "active config snapshot",
			observed: "not readable",
			expected: "/boot/config-$(uname -r)",
			ok:       false,
		}}
	}

	var checks []check

	hz := "absent"
	hzOK := false
	if opt, ok := cfg.Get("CONFIG_HZ"); ok {
		hz = opt.Value
		hzOK = opt.Value == "1000"
	}
	checks = append(checks, check{
		name:     "timer frequency (CONFIG_HZ)",
		observed: hz,
		expected: "1000",
		ok:       hzOK,
	})

	for _, key := range []string{"CONFIG_NO_HZ_FULL", "CONFIG_RCU_NOCB_CPU", "CONFIG_HIGH_RES_TIMERS"} {
		observed := "absent"
		ok := false
		if opt, found := cfg.Get(key); found {
			observed = opt.String()
			ok = opt.State == kconfig.StateEnabled
		}
		checks = append(checks, check{
			name:     key,
			observed: observed,
			expected: key + "=y",
			ok:       ok,
		})
	}
	return checks
}

// moduleChecks inspects loaded modules for the expected network driver.
func (v *Verifier) moduleChecks(ctx context.Context) []check {
	out, err := v.commandOutput(ctx, "lsmod")
	if err != nil {
		return []check{{
			name:     "loaded modules",
			observed: "lsmod failed",
			expected: "",
			ok:       false,
		}}
	}

	enaLoaded := false
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == "ena" {
			enaLoaded = true
			break
		}
	}
	observed := "not loaded"
	if enaLoaded {
		observed = "loaded"
	}
	return []check{{
		name:     "ena network driver",
		observed: observed,
		expected: "loaded",
		ok:       enaLoaded,
	}}
}

// cmdlineChecks reports real-time tunables on the kernel command line.
func (v *Verifier) cmdlineChecks() []check {
	data, err := v.ReadFile("/proc/cmdline")
	if err != nil {
		return []check{{
			name:     "kernel command line",
			observed: "not readable",
			expected: "",
			ok:       false,
		}}
	}
	cmdline := strings.TrimSpace(string(data))

	var checks []check
	for _, tunable := range []string{"isolcpus", "nohz_full", "rcu_nocbs"} {
		observed := "absent"
		ok := false
		for _, field := range strings.Fields(cmdline) {
			if field == tunable || strings.HasPrefix(field, tunable+"=") {
				observed = field
				ok = true
				break
			}
		}
		checks = append(checks, check{
			name:     tunable,
			observed: observed,
			expected: "present",
			ok:       ok,
		})
	}
	return checks
}

// section prints one report section in aligned columns. Failed advisory
// checks are marked WARN, never fatal.
func (v *Verifier) section(title string, checks []check) {
	fmt.Fprintf(v.Out, "\n%s\n%s\n", title, strings.Repeat("-", len(title)))
	w := tabwriter.NewWriter(v.Out, 0, 8, 2, ' ', 0)
	for _, c := range checks {
		status := "ok"
		if !c.ok {
			status = "WARN"
		}
		expected := c.expected
		if expected == "" {
			expected = "-"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", status, c.name, c.observed, expected)
	}
	w.Flush()
}

// commandOutput runs a command through the executor and returns stdout.
func (v *Verifier) commandOutput(ctx context.Context, name string, args ...string) (string, error) {
	var stdout bytes.Buffer
	err := v.Exec.Run(ctx, build.RunOpts{
		Command: append([]string{name}, args...),
		Stdout:  &stdout,
	})
	return stdout.String(), err
}
