package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/manslikestiffler/smart-granary/pkg/api"
	"github.com/manslikestiffler/smart-granary/pkg/models"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a running server's dashboard in the terminal",
	Long:  `Poll the dashboard view of a running server and redraw the latest values, statuses and alerts.`,
	RunE:  runWatch,
}

var (
	watchURL      string
	watchInterval time.Duration
	watchWindow   string
	watchZones    string
	watchSensors  string
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchURL, "url", "http://localhost:8059", "server base URL")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 5*time.Second, "refresh interval")
	watchCmd.Flags().StringVar(&watchWindow, "window", "", "snapshot window (e.g. 30m)")
	watchCmd.Flags().StringVar(&watchZones, "zones", "", "comma-separated zones")
	watchCmd.Flags().StringVar(&watchSensors, "sensors", "", "comma-separated sensor keys")
}

func runWatch(cmd *cobra.Command, args []string) error {
	client := api.NewClient(watchURL)
	query := api.DashboardQuery{
		Window:  watchWindow,
		Zones:   splitList(watchZones),
		Sensors: splitList(watchSensors),
	}

	fd := int(os.Stdout.Fd())
	interactive := term.IsTerminal(fd)

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	ctx := cmd.Context()
	for {
		width := 0
		if interactive {
			if w, _, err := term.GetSize(fd); err == nil {
				width = w
			}
			fmt.Fprint(os.Stdout, "\033[H\033[2J")
		}

		view, err := client.GetDashboard(ctx, query)
		if err != nil {
			fmt.Fprintf(os.Stdout, "❌ Failed to fetch dashboard: %v\n", err)
		} else {
			renderView(os.Stdout, view, width)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// renderView prints the latest reading with statuses followed by the newest
// alerts. Lines are cut to width when it is positive.
func renderView(w io.Writer, view *models.DashboardView, width int) {
	var lines []string
	lines = append(lines, fmt.Sprintf("Smart Granary  %s  (%d readings)",
		time.Now().Format("15:04:05"), len(view.FilteredData)))

	if view.LastReading == nil {
		lines = append(lines, "No readings yet")
	} else {
		r := view.LastReading
		header := "Last reading " + r.ISOTimestamp()
		if r.Location != "" {
			header += " @ " + r.Location
		}
		lines = append(lines, header)
		for _, key := range models.SensorKeys {
			v, ok := r.Value(key)
			if !ok {
				continue
			}
			line := fmt.Sprintf("  %-14s %8.1f", key, v)
			if status, ok := view.Statuses[key]; ok {
				line += "  " + strings.ToUpper(string(status))
			}
			if s, ok := view.Analytics[key]; ok {
				line += fmt.Sprintf("  mean %s  trend %s", formatNumber(s.Mean), formatNumber(s.Trend))
			}
			lines = append(lines, line)
		}
	}

	alerts := view.Alerts
	if len(alerts) > 5 {
		alerts = alerts[len(alerts)-5:]
	}
	if len(alerts) > 0 {
		lines = append(lines, "", fmt.Sprintf("Alerts (%d total)", len(view.Alerts)))
	}
	for i := len(alerts) - 1; i >= 0; i-- {
		a := alerts[i]
		lines = append(lines, fmt.Sprintf("  %s [%s] %s", a.Timestamp.Local().Format("15:04:05"), a.Type, a.Message))
	}

	for _, line := range lines {
		if width > 0 && len(line) > width {
			line = line[:width]
		}
		fmt.Fprintln(w, line)
	}
}
