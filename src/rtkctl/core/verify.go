package core

import (
	"os"
	"time"

	"github.com/bitswalk/rtk/src/rtkctl/db"
	"github.com/bitswalk/rtk/src/rtkctl/verify"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the running kernel on this host",
	Long: `Run on the target after it reboots into the new kernel. Fails when
the running kernel is not a PREEMPT_RT build; all other checks (timer
frequency, driver modules, boot tunables) are advisory. With --benchmark
and cyclictest installed, also measures scheduling latency.`,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().Bool("benchmark", false, "Measure scheduling latency with cyclictest")
	verifyCmd.Flags().Duration("duration", 10*time.Second, "Duration of each latency measurement pass")
}

func runVerify(cmd *cobra.Command, args []string) error {
	benchmark, _ := cmd.Flags().GetBool("benchmark")
	duration, _ := cmd.Flags().GetDuration("duration")

	finish := recordRun(db.RunVerify, "")

	v := verify.NewVerifier(os.Stdout)
	v.Benchmark = benchmark
	v.MeasureDuration = duration

	if err := v.Verify(cmd.Context()); err != nil {
		finish(db.StatusFailed, 0, err)
		return err
	}
	finish(db.StatusSuccess, 0, nil)
	return nil
}
