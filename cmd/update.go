package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/smazurov/hearthtale/internal/updater"
)

func newUpdateCmd(opts *Options) *cobra.Command {
	var (
		check      bool
		rollback   bool
		prerelease bool
		repository string
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update hearthtale to the latest GitHub release",
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := newRegistry(opts, false)
			defer registry.Close()

			u, err := updater.New(updater.Options{
				Repository: repository,
				Prerelease: prerelease,
				Logger:     registry.Logger("updater"),
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if rollback {
				restored, err := u.Rollback()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Restored version %s\n", restored)
				return nil
			}

			if check {
				info, err := u.Check(cmd.Context())
				if err != nil {
					return err
				}
				printUpdateInfo(out, info)
				return nil
			}

			info, err := u.Apply(cmd.Context())
			if updater.IsCode(err, updater.ErrCodeNoUpdate) {
				fmt.Fprintf(out, "Already at the latest version (%s)\n", info.CurrentVersion)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Updated %s -> %s\n", info.CurrentVersion, info.LatestVersion)
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Only report whether an update is available")
	cmd.Flags().BoolVar(&rollback, "rollback", false, "Restore the binary replaced by the last update")
	cmd.Flags().BoolVar(&prerelease, "prerelease", false, "Consider prereleases")
	cmd.Flags().StringVar(&repository, "repository", updater.DefaultRepository, "GitHub repository to update from")
	return cmd
}

func printUpdateInfo(out io.Writer, info *updater.UpdateInfo) {
	if !info.UpdateAvailable {
		fmt.Fprintf(out, "hearthtale %s is up to date\n", info.CurrentVersion)
		return
	}
	fmt.Fprintf(out, "Update available: %s -> %s\n", info.CurrentVersion, info.LatestVersion)
	if info.ReleaseURL != "" {
		fmt.Fprintf(out, "Release: %s\n", info.ReleaseURL)
	}
}
