package core

import (
	"fmt"
	"os"
	"text/tabwriter"

	rtkerr "github.com/bitswalk/rtk/src/common/errors"
	"github.com/bitswalk/rtk/src/rtkctl/storage"
	"github.com/spf13/cobra"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Manage the kernel package archive",
	Long: `Archives built package sets for later reuse, on the local filesystem
or in an S3-compatible object store depending on the configuration.`,
}

var archivePushCmd = &cobra.Command{
	Use:   "push",
	Short: "Archive the packages of the last build",
	RunE:  runArchivePush,
}

var archiveListCmd = &cobra.Command{
	Use:   "list [prefix]",
	Short: "List archived packages",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runArchiveList,
}

func init() {
	archiveCmd.AddCommand(archivePushCmd)
	archiveCmd.AddCommand(archiveListCmd)
}

func archiveBackend() (storage.Backend, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateArchive(); err != nil {
		return nil, err
	}
	backend, err := storage.New(cfg.Archive)
	if err != nil {
		return nil, rtkerr.Wrap(err, rtkerr.DomainStorage, "backend_init_failed",
			"cannot initialize the archive backend")
	}
	return backend, nil
}

func runArchivePush(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	backend, err := archiveBackend()
	if err != nil {
		return err
	}

	pkgs, err := collectPackages(cfg)
	if err != nil {
		return err
	}
	if pkgs.Empty() {
		return rtkerr.New(rtkerr.DomainStorage, "nothing_to_archive",
			"no built packages found in the workspace").
			WithRemedy("run 'rtkctl build' first")
	}

	if err := storage.Push(cmd.Context(), backend, pkgs); err != nil {
		return rtkerr.Wrap(err, rtkerr.DomainStorage, "push_failed",
			"archiving the package set failed")
	}

	fmt.Printf("Archived %d packages to %s (%s)\n", len(pkgs.RPMs), backend.Location(), backend.Type())
	return nil
}

func runArchiveList(cmd *cobra.Command, args []string) error {
	backend, err := archiveBackend()
	if err != nil {
		return err
	}

	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}

	objects, err := backend.List(cmd.Context(), prefix)
	if err != nil {
		return rtkerr.Wrap(err, rtkerr.DomainStorage, "list_failed",
			"cannot list the archive")
	}
	if len(objects) == 0 {
		fmt.Println("No archived packages found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSIZE\tMODIFIED")
	for _, obj := range objects {
		fmt.Fprintf(w, "%s\t%d\t%s\n", obj.Key, obj.Size, obj.LastModified.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}
