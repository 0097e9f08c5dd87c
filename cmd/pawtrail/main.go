// Command pawtrail runs predictions offline and manages the database schema.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pawtrail/internal/config"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	build := config.NewBuildInfo()
	root := &cobra.Command{
		Use:           "pawtrail",
		Short:         "Lost-pet search area predictions",
		Version:       fmt.Sprintf("%s (%s, built %s)", build.Version, build.Commit, build.BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(predictCommand(), calibrationCommand(), migrateCommand())
	return root
}
