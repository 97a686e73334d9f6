package verify

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	rtkerr "github.com/bitswalk/rtk/src/common/errors"
	"github.com/bitswalk/rtk/src/rtkctl/build"
)

// fakeExec answers commands from a canned output table.
type fakeExec struct {
	outputs map[string]string
	tools   map[string]bool
}

func (e *fakeExec) Run(ctx context.Context, opts build.RunOpts) error {
	key := strings.Join(opts.Command, " ")
	for prefix, out := range e.outputs {
		if strings.HasPrefix(key, prefix) {
			if opts.Stdout != nil {
				fmt.Fprint(opts.Stdout, out)
			}
			return nil
		}
	}
	return fmt.Errorf("command not found: %s", key)
}

func (e *fakeExec) LookPath(name string) (string, error) {
	if e.tools[name] {
		return "/usr/bin/" + name, nil
	}
	return "", fmt.Errorf("%s not found", name)
}

func fakeFiles(files map[string]string) func(string) ([]byte, error) {
	return func(path string) ([]byte, error) {
		if content, ok := files[path]; ok {
			return []byte(content), nil
		}
		return nil, fmt.Errorf("open %s: no such file or directory", path)
	}
}

func TestVerify_NonRTKernelIsFatal(t *testing.T) {
	var out bytes.Buffer
	v := &Verifier{
		Exec: &fakeExec{outputs: map[string]string{
			"uname -r": "6.6.52.generic\n",
			"lsmod":    "Module Size Used by\n",
		}},
		ReadFile: fakeFiles(map[string]string{
			"/proc/version": "Linux version 6.6.52.generic (gcc) #1 SMP\n",
			"/boot/config-6.6.52.generic": strings.Join([]string{
				"# CONFIG_PREEMPT_RT is not set",
				"CONFIG_PREEMPT_VOLUNTARY=y",
				"CONFIG_HZ=100",
			}, "\n"),
		}),
		Out: &out,
	}

	err := v.Verify(context.Background())
	if err == nil {
		t.Fatal("Verify() expected error on a non-RT kernel")
	}
	if !rtkerr.Is(err, rtkerr.ErrNotRTKernel) {
		t.Errorf("expected ErrNotRTKernel, got %v", err)
	}
}

func TestVerify_SoftMismatchesAreNotFatal(t *testing.T) {
	var out bytes.Buffer
	// RT kernel, but every tuning check off: wrong HZ, no ena, bare cmdline
	v := &Verifier{
		Exec: &fakeExec{outputs: map[string]string{
			"uname -r": "6.6.52-rt18-rtk\n",
			"lsmod":    "Module Size Used by\nvirtio_net 45056 0\n",
		}},
		ReadFile: fakeFiles(map[string]string{
			"/proc/version": "Linux version 6.6.52-rt18-rtk (gcc) #1 SMP PREEMPT_RT\n",
			"/boot/config-6.6.52-rt18-rtk": strings.Join([]string{
				"CONFIG_PREEMPT_RT=y",
				"CONFIG_HZ=250",
				"# CONFIG_NO_HZ_FULL is not set",
			}, "\n"),
			"/proc/cmdline": "BOOT_IMAGE=/vmlinuz root=/dev/sda1 ro\n",
		}),
		Out: &out,
	}

	if err := v.Verify(context.Background()); err != nil {
		t.Fatalf("Verify() error = %v, tuning mismatches must stay advisory", err)
	}

	report := out.String()
	if !strings.Contains(report, "WARN") {
		t.Error("expected WARN markers for failed advisory checks")
	}
	if !strings.Contains(report, "250") {
		t.Error("expected observed CONFIG_HZ value in the report")
	}
}

func TestVerify_ConfigSnapshotSatisfiesGate(t *testing.T) {
	var out bytes.Buffer
	// No RT marker in the release string, but the active config has the
	// option enabled
	v := &Verifier{
		Exec: &fakeExec{outputs: map[string]string{
			"uname -r": "6.6.52.custom\n",
			"lsmod":    "ena 114688 0\n",
		}},
		ReadFile: fakeFiles(map[string]string{
			"/proc/version": "Linux version 6.6.52.custom (gcc) #1 SMP\n",
			"/boot/config-6.6.52.custom": strings.Join([]string{
				"CONFIG_PREEMPT_RT=y",
				"CONFIG_HZ=1000",
				"CONFIG_NO_HZ_FULL=y",
				"CONFIG_RCU_NOCB_CPU=y",
				"CONFIG_HIGH_RES_TIMERS=y",
			}, "\n"),
			"/proc/cmdline": "BOOT_IMAGE=/vmlinuz nohz_full=1-3 rcu_nocbs=1-3 isolcpus=1-3\n",
		}),
		Out: &out,
	}

	if err := v.Verify(context.Background()); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if strings.Contains(out.String(), "WARN") {
		t.Errorf("expected a clean report, got:\n%s", out.String())
	}
}

func TestVerify_MissingSnapshotDegradesChecks(t *testing.T) {
	var out bytes.Buffer
	v := &Verifier{
		Exec: &fakeExec{outputs: map[string]string{
			"uname -r": "6.6.52-rt18-rtk\n",
			"lsmod":    "ena 114688 0\n",
		}},
		ReadFile: fakeFiles(map[string]string{
			"/proc/cmdline": "nohz_full=1-3 rcu_nocbs=1-3 isolcpus=1-3\n",
		}),
		Out: &out,
	}

	if err := v.Verify(context.Background()); err != nil {
		t.Fatalf("Verify() error = %v, RT marker in release should satisfy the gate", err)
	}
	if !strings.Contains(out.String(), "not readable") {
		t.Error("expected the report to note the missing config snapshot")
	}
}

func TestParseCyclictestMax(t *testing.T) {
	output := `# /dev/cpu_dma_latency set to 0us
T: 0 ( 1234) P:80 I:1000 C:  10000 Min:      2 Act:    3 Avg:    3 Max:      19
T: 1 ( 1235) P:80 I:1500 C:   6666 Min:      2 Act:    4 Avg:    3 Max:      42
`
	max, err := parseCyclictestMax(output)
	if err != nil {
		t.Fatalf("parseCyclictestMax() error = %v", err)
	}
	if max != 42 {
		t.Errorf("max = %d, want 42", max)
	}

	if _, err := parseCyclictestMax("no figures here"); err == nil {
		t.Error("expected error for output without latency figures")
	}
}
