package main

import (
	"fmt"

	"github.com/flappah/netatmo2wow/pkg/puller/netatmo"
	"github.com/spf13/cobra"
)

var devicesFormat string

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the Netatmo stations and their modules",
	RunE:  runDevices,
}

func init() {
	devicesCmd.Flags().StringVar(&devicesFormat, "format", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	if !validFormat(devicesFormat) {
		return fmt.Errorf("invalid format: %s (valid: table, json, yaml)", devicesFormat)
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

	devices, err := netatmo.NewPuller(client, app.Config.Netatmo.DeviceID, app.Logger).Devices(ctx)
	if err != nil {
		return err
	}

	return writeDevices(cmd.OutOrStdout(), devicesFormat, devices)
}
