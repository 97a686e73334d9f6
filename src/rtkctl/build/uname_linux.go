package build

import (
	"bytes"
	"syscall"
)

// hostKernelRelease returns the running kernel release, e.g. "6.8.0-rt8".
func hostKernelRelease() (string, error) {
	var uts syscall.Utsname
	if err := syscall.Uname(&uts); err != nil {
		return "", err
	}
	buf := make([]byte, 0, len(uts.Release))
	for _, c := range uts.Release {
		buf = append(buf, byte(c))
	}
	if idx := bytes.IndexByte(buf, 0); idx >= 0 {
		buf = buf[:idx]
	}
	return string(buf), nil
}
