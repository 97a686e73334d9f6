// rtkctl builds, deploys and verifies PREEMPT_RT Linux kernels.
package main

import (
	"github.com/bitswalk/rtk/src/rtkctl/core"
)

func main() {
	core.Execute()
}
