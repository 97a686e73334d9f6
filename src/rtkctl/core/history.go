package core

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/bitswalk/rtk/src/rtkctl/db"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs",
	Long:  `Lists recent build, deploy and verify runs from the local run database.`,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to list")
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	database, err := db.New(db.DefaultConfig())
	if err != nil {
		return err
	}
	defer database.Close()

	runs, err := db.NewRunRepository(database).ListRecent(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tKIND\tKERNEL\tSTATUS\tARTIFACTS\tERROR")
	for _, run := range runs {
		errMsg := run.ErrorMessage
		if len(errMsg) > 60 {
			errMsg = errMsg[:57] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Kind, run.KernelVersion, run.Status, run.ArtifactCount, errMsg)
	}
	return w.Flush()
}
