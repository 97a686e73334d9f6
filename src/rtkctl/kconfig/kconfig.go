// Package kconfig models Linux kernel configuration files as a typed,
// ordered mapping from option keys to tri-state values. The on-disk dual
// representation is preserved exactly: an enabled option is written as
// CONFIG_FOO=y (or =m, ="str", =123) while a disabled option is written as
// "# CONFIG_FOO is not set" - disabled and absent are different things.
package kconfig

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// State is the tri-state of a kernel option.
type State string

const (
	// StateEnabled corresponds to CONFIG_FOO=y (or a string/integer value)
	StateEnabled State = "y"
	// StateModule corresponds to CONFIG_FOO=m
	StateModule State = "m"
	// StateDisabled corresponds to "# CONFIG_FOO is not set"
	StateDisabled State = "n"
)

// Option is the value of a single kernel configuration key.
type Option struct {
	Key   string
	State State
	// Value holds the unquoted payload for string/integer options.
	// Empty for plain boolean/tristate options.
	Value string
}

// String renders the option in kernel .config syntax.
func (o Option) String() string {
	switch {
	case o.State == StateDisabled:
		return fmt.Sprintf("# %s is not set", o.Key)
	case o.State == StateModule:
		return fmt.Sprintf("%s=m", o.Key)
	case o.Value != "":
		if isNumeric(o.Value) || strings.HasPrefix(o.Value, "0x") {
			return fmt.Sprintf("%s=%s", o.Key, o.Value)
		}
		return fmt.Sprintf("%s=%q", o.Key, o.Value)
	default:
		return fmt.Sprintf("%s=y", o.Key)
	}
}

// line is one physical line of the config file. Lines carrying an option
// keep a parsed copy so mutations can be re-serialized in place.
type line struct {
	raw     string
	opt     *Option
	mutated bool
}

// File is an ordered kernel configuration file. Mutations rewrite the
// original line in place; new keys are appended at the end, so a re-read
// of a saved file observes exactly the mutated state.
type File struct {
	lines []line
	index map[string]int // key -> index of its active line
}

var (
	setRe   = regexp.MustCompile(`^(CONFIG_[A-Za-z0-9_]+)=(.*)$`)
	unsetRe = regexp.MustCompile(`^# (CONFIG_[A-Za-z0-9_]+) is not set$`)
)

// Parse reads a kernel configuration from r.
func Parse(r io.Reader) (*File, error) {
	f := &File{index: make(map[string]int)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		raw := scanner.Text()
		ln := line{raw: raw}

		if m := setRe.FindStringSubmatch(raw); m != nil {
			ln.opt = parseAssignment(m[1], m[2])
		} else if m := unsetRe.FindStringSubmatch(raw); m != nil {
			ln.opt = &Option{Key: m[1], State: StateDisabled}
		}

		if ln.opt != nil {
			// Last line for a key wins, matching kernel tooling behavior
			f.index[ln.opt.Key] = len(f.lines)
		}
		f.lines = append(f.lines, ln)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return f, nil
}

// Load reads a kernel configuration file from disk.
func Load(path string) (*File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Parse(file)
}

func parseAssignment(key, value string) *Option {
	switch value {
	case "y":
		return &Option{Key: key, State: StateEnabled}
	case "m":
		return &Option{Key: key, State: StateModule}
	case "n":
		return &Option{Key: key, State: StateDisabled}
	}
	if strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) && len(value) >= 2 {
		value = value[1 : len(value)-1]
	}
	return &Option{Key: key, State: StateEnabled, Value: value}
}

// Get returns the option for key, or false if the key is absent.
// A disabled key is present, with StateDisabled.
func (f *File) Get(key string) (Option, bool) {
	idx, ok := f.index[key]
	if !ok {
		return Option{}, false
	}
	return *f.lines[idx].opt, true
}

// Has reports whether the key appears in the file at all.
func (f *File) Has(key string) bool {
	_, ok := f.index[key]
	return ok
}

// set replaces or appends the option for opt.Key.
func (f *File) set(opt Option) {
	if idx, ok := f.index[opt.Key]; ok {
		o := opt
		f.lines[idx].opt = &o
		f.lines[idx].mutated = true
		return
	}
	o := opt
	f.index[opt.Key] = len(f.lines)
	f.lines = append(f.lines, line{opt: &o, mutated: true})
}

// Enable sets key to =y.
func (f *File) Enable(key string) {
	f.set(Option{Key: key, State: StateEnabled})
}

// EnableModule sets key to =m.
func (f *File) EnableModule(key string) {
	f.set(Option{Key: key, State: StateModule})
}

// Disable sets key to "# key is not set". Disabling a key that is absent
// still writes the not-set line, since the build distinguishes the two.
func (f *File) Disable(key string) {
	f.set(Option{Key: key, State: StateDisabled})
}

// SetString sets key to a quoted string value.
func (f *File) SetString(key, value string) {
	f.set(Option{Key: key, State: StateEnabled, Value: value})
}

// SetInt sets key to an unquoted integer value.
func (f *File) SetInt(key string, value int) {
	f.set(Option{Key: key, State: StateEnabled, Value: fmt.Sprintf("%d", value)})
}

// Keys returns every key present in the file, in file order. Only the
// active line for a key counts; superseded duplicates are skipped.
func (f *File) Keys() []string {
	keys := make([]string, 0, len(f.index))
	for i := range f.lines {
		opt := f.lines[i].opt
		if opt != nil && f.index[opt.Key] == i {
			keys = append(keys, opt.Key)
		}
	}
	return keys
}

// WriteTo serializes the configuration, preserving untouched lines verbatim.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	var total int64
	bw := bufio.NewWriter(w)
	for i := range f.lines {
		ln := &f.lines[i]
		text := ln.raw
		if ln.mutated {
			text = ln.opt.String()
		}
		n, err := fmt.Fprintln(bw, text)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, bw.Flush()
}

// Save writes the configuration to path with kernel-conventional permissions.
func (f *File) Save(path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := f.WriteTo(out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 && r == '-' {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
