package main

import (
	"fmt"

	"github.com/flappah/netatmo2wow/pkg/config"
	"github.com/spf13/cobra"
)

var (
	runDryRun bool
	runFormat string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Pull, reconcile and publish once",
	Long: `Run a single cycle: pull the configured time window from Netatmo,
reconcile it per station, archive it when the database is enabled and
publish new observations to WOW. With --dry-run nothing is archived or
published and the reconciled series is printed.

Without the database, publish progress only lives for one invocation, so
every run republishes the whole time window to WOW.`,
	RunE: runOnce,
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "print the reconciled series without archiving or publishing")
	runCmd.Flags().StringVar(&runFormat, "format", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	if !validFormat(runFormat) {
		return fmt.Errorf("invalid format: %s (valid: table, json, yaml)", runFormat)
	}

	ctx := cmd.Context()
	app := appFrom(ctx)

	db, err := app.openDatabase(ctx)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	client, err := app.authorizedClient(ctx, db)
	if err != nil {
		return err
	}

	if untrackedPublish(app.Config, runDryRun) {
		app.Logger.WithField("timespan", app.Config.Reconcile.Timespan).
			Warn("Database disabled: publish progress is not kept between runs, the whole window is sent to WOW")
	}

	service, err := app.buildService(client, db, nil, runDryRun)
	if err != nil {
		return err
	}

	report, runErr := service.RunOnce(ctx)
	if report != nil {
		if err := writeSeries(cmd.OutOrStdout(), runFormat, report.Series); err != nil {
			return err
		}
		if !runDryRun {
			for name, n := range report.Published {
				fmt.Fprintf(cmd.ErrOrStderr(), "Published %d observation(s) to %s\n", n, name)
			}
		}
	}

	return runErr
}

// untrackedPublish reports whether a one-shot run publishes without
// persistent progress
func untrackedPublish(cfg *config.Config, dryRun bool) bool {
	return !dryRun && !cfg.Database.Enabled && cfg.WOW.Enabled()
}
