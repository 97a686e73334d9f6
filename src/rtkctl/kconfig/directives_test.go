package kconfig

import (
	"strings"
	"testing"
)

func TestApplyDirectives_PreemptionExample(t *testing.T) {
	// The canonical scenario: switch a voluntary-preemption 100Hz config
	// to full RT at 1000Hz.
	input := strings.Join([]string{
		"# CONFIG_PREEMPT_RT is not set",
		"CONFIG_PREEMPT_VOLUNTARY=y",
		"CONFIG_HZ=100",
		"",
	}, "\n")

	f, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	directives := []Directive{
		Enable("CONFIG_PREEMPT_RT"),
		Disable("CONFIG_PREEMPT_VOLUNTARY"),
		SetInt("CONFIG_HZ", 1000),
	}
	if err := ApplyDirectives(f, directives, StandardGroups); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	checks := map[string]string{
		"CONFIG_PREEMPT_RT":        "CONFIG_PREEMPT_RT=y",
		"CONFIG_PREEMPT_VOLUNTARY": "# CONFIG_PREEMPT_VOLUNTARY is not set",
		"CONFIG_HZ":                "CONFIG_HZ=1000",
	}
	for key, want := range checks {
		opt, ok := f.Get(key)
		if !ok {
			t.Fatalf("key %s missing after apply", key)
		}
		if got := opt.String(); got != want {
			t.Errorf("%s: got %q, want %q", key, got, want)
		}
	}
}

func TestApplyDirectives_MutualExclusion(t *testing.T) {
	input := strings.Join([]string{
		"# CONFIG_PREEMPT_NONE is not set",
		"CONFIG_PREEMPT_VOLUNTARY=y",
		"# CONFIG_PREEMPT is not set",
		"# CONFIG_PREEMPT_RT is not set",
		"",
	}, "\n")

	f, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if err := ApplyDirectives(f, []Directive{Enable("CONFIG_PREEMPT_RT")}, StandardGroups); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	enabled := 0
	for _, key := range PreemptionModels.Members {
		opt, ok := f.Get(key)
		if !ok {
			t.Fatalf("group member %s missing", key)
		}
		if opt.State == StateEnabled {
			enabled++
			if key != "CONFIG_PREEMPT_RT" {
				t.Errorf("unexpected enabled member %s", key)
			}
		}
	}
	if enabled != 1 {
		t.Errorf("exactly one preemption model must be enabled, got %d", enabled)
	}
}

func TestApplyDirectives_HZGroupDerivesValue(t *testing.T) {
	input := strings.Join([]string{
		"CONFIG_HZ_100=y",
		"# CONFIG_HZ_1000 is not set",
		"CONFIG_HZ=100",
		"",
	}, "\n")

	f, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if err := ApplyDirectives(f, []Directive{Enable("CONFIG_HZ_1000")}, StandardGroups); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	hz, _ := f.Get("CONFIG_HZ")
	if hz.Value != "1000" {
		t.Errorf("CONFIG_HZ = %q, want 1000", hz.Value)
	}
	old, _ := f.Get("CONFIG_HZ_100")
	if old.State != StateDisabled {
		t.Errorf("CONFIG_HZ_100 not disabled, state = %q", old.State)
	}
}

func TestApplyDirectives_LaterOverridesEarlier(t *testing.T) {
	f, err := Parse(strings.NewReader("CONFIG_FOO=y\n"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	directives := []Directive{
		Disable("CONFIG_FOO"),
		Enable("CONFIG_FOO"),
	}
	if err := ApplyDirectives(f, directives, nil); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	opt, _ := f.Get("CONFIG_FOO")
	if opt.State != StateEnabled {
		t.Errorf("later directive must win, got state %q", opt.State)
	}
}

func TestApplyDirectives_RejectsBadInteger(t *testing.T) {
	f, _ := Parse(strings.NewReader(""))
	err := ApplyDirectives(f, []Directive{{Key: "CONFIG_HZ", Kind: DirectiveSetInt, Value: "ten"}}, nil)
	if err == nil {
		t.Fatal("expected error for non-integer set-integer directive")
	}
}

func TestVerifyDirectives_ReportsAbsentKey(t *testing.T) {
	f, err := Parse(strings.NewReader("CONFIG_PREEMPT_RT=y\n"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	directives := []Directive{
		Enable("CONFIG_PREEMPT_RT"),
		Enable("CONFIG_ENA_ETHERNET"), // not in this schema
	}
	mismatches := VerifyDirectives(f, directives)

	if len(mismatches) != 1 {
		t.Fatalf("expected 1 mismatch, got %d: %v", len(mismatches), mismatches)
	}
	if mismatches[0].Directive.Key != "CONFIG_ENA_ETHERNET" {
		t.Errorf("wrong mismatch key: %s", mismatches[0].Directive.Key)
	}
	if mismatches[0].Observed != "absent" {
		t.Errorf("observed = %q, want absent", mismatches[0].Observed)
	}
}

func TestVerifyDirectives_OnlyFinalDirectivePerKeyCounts(t *testing.T) {
	f, err := Parse(strings.NewReader("CONFIG_FOO=y\n"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	directives := []Directive{
		Disable("CONFIG_FOO"),
		Enable("CONFIG_FOO"),
	}
	if mismatches := VerifyDirectives(f, directives); len(mismatches) != 0 {
		t.Errorf("expected no mismatches, got %v", mismatches)
	}
}

func TestVerifyDirectives_ValueMismatch(t *testing.T) {
	f, err := Parse(strings.NewReader("CONFIG_HZ=250\n"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	mismatches := VerifyDirectives(f, []Directive{SetInt("CONFIG_HZ", 1000)})
	if len(mismatches) != 1 {
		t.Fatalf("expected 1 mismatch, got %d", len(mismatches))
	}
	if !strings.Contains(mismatches[0].String(), "CONFIG_HZ") {
		t.Errorf("mismatch text should name the key: %s", mismatches[0])
	}
}
