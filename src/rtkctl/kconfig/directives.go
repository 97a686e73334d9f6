package kconfig

import (
	"fmt"
	"strconv"
)

// DirectiveKind is the desired state a directive requests for a key.
type DirectiveKind string

const (
	// DirectiveEnable sets the key to =y
	DirectiveEnable DirectiveKind = "enable"
	// DirectiveEnableModule sets the key to =m
	DirectiveEnableModule DirectiveKind = "enable-module"
	// DirectiveDisable sets the key to "is not set"
	DirectiveDisable DirectiveKind = "disable"
	// DirectiveSetString sets the key to a quoted string value
	DirectiveSetString DirectiveKind = "set-string"
	// DirectiveSetInt sets the key to an unquoted integer value
	DirectiveSetInt DirectiveKind = "set-integer"
)

// Directive is one (key, desired-state) mutation. Directives are applied
// in order; a later directive for the same key overrides an earlier one.
type Directive struct {
	Key   string
	Kind  DirectiveKind
	Value string
}

// Enable returns an enable directive for key.
func Enable(key string) Directive {
	return Directive{Key: key, Kind: DirectiveEnable}
}

// EnableModule returns an enable-as-module directive for key.
func EnableModule(key string) Directive {
	return Directive{Key: key, Kind: DirectiveEnableModule}
}

// Disable returns a disable directive for key.
func Disable(key string) Directive {
	return Directive{Key: key, Kind: DirectiveDisable}
}

// SetString returns a set-string directive for key.
func SetString(key, value string) Directive {
	return Directive{Key: key, Kind: DirectiveSetString, Value: value}
}

// SetInt returns a set-integer directive for key.
func SetInt(key string, value int) Directive {
	return Directive{Key: key, Kind: DirectiveSetInt, Value: strconv.Itoa(value)}
}

// Group is a set of mutually exclusive boolean options, of which exactly
// one may be enabled. Enabling a member through ApplyDirectives disables
// every sibling in the same operation.
type Group struct {
	Name    string
	Members []string

	// DerivedKey, when set, names a value option kept consistent with the
	// enabled member (e.g. CONFIG_HZ follows the CONFIG_HZ_* choice).
	DerivedKey string
	// DerivedValues maps a member key to the derived option's value.
	DerivedValues map[string]string
}

// Contains reports whether key is a member of the group.
func (g Group) Contains(key string) bool {
	for _, m := range g.Members {
		if m == key {
			return true
		}
	}
	return false
}

// PreemptionModels is the kernel preemption model choice. Exactly one
// model is active in any valid configuration.
var PreemptionModels = Group{
	Name: "preemption model",
	Members: []string{
		"CONFIG_PREEMPT_NONE",
		"CONFIG_PREEMPT_VOLUNTARY",
		"CONFIG_PREEMPT",
		"CONFIG_PREEMPT_RT",
	},
}

// TimerFrequencies is the kernel timer tick choice. CONFIG_HZ carries the
// numeric value derived from the enabled member.
var TimerFrequencies = Group{
	Name: "timer frequency",
	Members: []string{
		"CONFIG_HZ_100",
		"CONFIG_HZ_250",
		"CONFIG_HZ_300",
		"CONFIG_HZ_1000",
	},
	DerivedKey: "CONFIG_HZ",
	DerivedValues: map[string]string{
		"CONFIG_HZ_100":  "100",
		"CONFIG_HZ_250":  "250",
		"CONFIG_HZ_300":  "300",
		"CONFIG_HZ_1000": "1000",
	},
}

// StandardGroups are the exclusion groups every mutation pass honors.
var StandardGroups = []Group{PreemptionModels, TimerFrequencies}

// ApplyDirectives mutates f with the directives in order. Enabling a
// member of an exclusion group is one atomic group operation: the member
// is enabled, all siblings are disabled, and the derived key (if any) is
// updated. Later directives override earlier ones for the same key.
func ApplyDirectives(f *File, directives []Directive, groups []Group) error {
	for _, d := range directives {
		switch d.Kind {
		case DirectiveEnable:
			f.Enable(d.Key)
			for _, g := range groups {
				if !g.Contains(d.Key) {
					continue
				}
				for _, sibling := range g.Members {
					if sibling != d.Key {
						f.Disable(sibling)
					}
				}
				if g.DerivedKey != "" {
					if v, ok := g.DerivedValues[d.Key]; ok {
						if n, err := strconv.Atoi(v); err == nil {
							f.SetInt(g.DerivedKey, n)
						} else {
							f.SetString(g.DerivedKey, v)
						}
					}
				}
			}

		case DirectiveEnableModule:
			f.EnableModule(d.Key)

		case DirectiveDisable:
			f.Disable(d.Key)

		case DirectiveSetString:
			f.SetString(d.Key, d.Value)

		case DirectiveSetInt:
			n, err := strconv.Atoi(d.Value)
			if err != nil {
				return fmt.Errorf("directive %s: %q is not an integer: %w", d.Key, d.Value, err)
			}
			f.SetInt(d.Key, n)

		default:
			return fmt.Errorf("directive %s: unknown kind %q", d.Key, d.Kind)
		}
	}
	return nil
}

// Mismatch records a directive that did not take effect after mutation,
// typically because the option does not exist in this kernel's schema or
// was overridden by dependency resolution.
type Mismatch struct {
	Directive Directive
	Observed  string // observed state, or "absent"
}

func (m Mismatch) String() string {
	want := string(m.Directive.Kind)
	if m.Directive.Value != "" {
		want = fmt.Sprintf("%s %s", m.Directive.Kind, m.Directive.Value)
	}
	return fmt.Sprintf("%s: wanted %s, observed %s", m.Directive.Key, want, m.Observed)
}

// VerifyDirectives re-reads f and reports every directive whose desired
// state is not reflected. Mismatches are advisory: a missing optional
// driver flag must not abort an otherwise valid build.
func VerifyDirectives(f *File, directives []Directive) []Mismatch {
	// Only the final directive per key is expected to hold.
	final := make(map[string]Directive, len(directives))
	order := make([]string, 0, len(directives))
	for _, d := range directives {
		if _, seen := final[d.Key]; !seen {
			order = append(order, d.Key)
		}
		final[d.Key] = d
	}

	var mismatches []Mismatch
	for _, key := range order {
		d := final[key]
		opt, ok := f.Get(key)
		if !ok {
			mismatches = append(mismatches, Mismatch{Directive: d, Observed: "absent"})
			continue
		}

		satisfied := false
		switch d.Kind {
		case DirectiveEnable:
			satisfied = opt.State == StateEnabled && opt.Value == ""
		case DirectiveEnableModule:
			satisfied = opt.State == StateModule
		case DirectiveDisable:
			satisfied = opt.State == StateDisabled
		case DirectiveSetString, DirectiveSetInt:
			satisfied = opt.State == StateEnabled && opt.Value == d.Value
		}

		if !satisfied {
			mismatches = append(mismatches, Mismatch{Directive: d, Observed: opt.String()})
		}
	}
	return mismatches
}
