package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/flappah/netatmo2wow/pkg/models"
	"github.com/flappah/netatmo2wow/pkg/puller/netatmo"
	"gopkg.in/yaml.v3"
)

func validFormat(format string) bool {
	switch format {
	case "table", "json", "yaml":
		return true
	}
	return false
}

func writeSeries(w io.Writer, format string, series []models.DeviceSeries) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(series)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(series)
	case "table":
		return writeTable(w, series)
	default:
		return fmt.Errorf("invalid format: %s", format)
	}
}

func writeTable(w io.Writer, series []models.DeviceSeries) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	for _, ds := range series {
		fmt.Fprintf(tw, "Device %s (%s), %d observation(s)\n", ds.DeviceID, ds.StationName, len(ds.Measurements))
		fmt.Fprintln(tw, "TIME (UTC)\tPRESSURE\tTEMP\tHUM\tWIND\tDIR\tGUST\tGDIR\tRAIN\tRAIN 1H\tRAIN DAY")
		for _, m := range ds.Measurements {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				m.Time().UTC().Format(time.DateTime),
				cell(m.Pressure), cell(m.Temperature), cell(m.Humidity),
				cell(m.WindStrength), cell(m.WindAngle), cell(m.GustStrength), cell(m.GustAngle),
				cell(m.Rain), cell(m.RainLastHour), cell(m.RainAccumulated),
			)
		}
		fmt.Fprintln(tw)
	}

	return tw.Flush()
}

func cell(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func writeDevices(w io.Writer, format string, devices []models.Device) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(devices)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(devices)
	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "DEVICE\tMODULE\tNAME\tKIND\tFAMILY\tMEASURES")
		for _, d := range devices {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", d.ID, "-", d.StationName, moduleKind("NAMain"), models.FamilyPressure, "Pressure")
			for _, m := range d.Modules {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", d.ID, m.ID, m.ModuleName, moduleKind(m.Type), m.Family(), m.Tag)
			}
		}
		return tw.Flush()
	default:
		return fmt.Errorf("invalid format: %s", format)
	}
}

// moduleKind names a hardware type, falling back to the raw type
func moduleKind(moduleType string) string {
	if kind, ok := netatmo.LookupModuleKind(moduleType); ok {
		return kind.Name
	}
	return moduleType
}
