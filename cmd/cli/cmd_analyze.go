package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/klauspost/compress/gzip"
	"github.com/manslikestiffler/smart-granary/pkg/aggregate"
	"github.com/manslikestiffler/smart-granary/pkg/alerting"
	"github.com/manslikestiffler/smart-granary/pkg/analytics"
	"github.com/manslikestiffler/smart-granary/pkg/api"
	"github.com/manslikestiffler/smart-granary/pkg/export"
	"github.com/manslikestiffler/smart-granary/pkg/models"
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a reading dataset",
	Long: `Load readings from a JSON file or a running server and print the per-sensor
analytics, the aggregated buckets and the alert raised by the latest reading.`,
	RunE: runAnalyze,
}

var (
	analyzeFile     string
	analyzeURL      string
	analyzeInterval string
	analyzeExport   string
)

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&analyzeFile, "file", "f", "", "JSON file holding an array of readings")
	analyzeCmd.Flags().StringVar(&analyzeURL, "url", "", "server base URL to fetch /api/logs from")
	analyzeCmd.Flags().StringVar(&analyzeInterval, "interval", "", "aggregation interval (minute, hour, day)")
	analyzeCmd.Flags().StringVar(&analyzeExport, "export", "", "write the dataset as CSV to this path (.gz compresses)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg := configFrom(cmd)

	readings, err := loadDataset(cmd)
	if err != nil {
		return err
	}

	registry, err := cfg.Registry()
	if err != nil {
		return err
	}

	interval := cfg.AggregateInterval()
	if analyzeInterval != "" {
		interval = models.Interval(analyzeInterval)
		if !interval.Valid() {
			return fmt.Errorf("invalid interval: %s (valid: minute, hour, day)", analyzeInterval)
		}
	}

	var analyticsOpts []analytics.Option
	if cfg.Pipeline.TruthyFilter {
		analyticsOpts = append(analyticsOpts, analytics.WithTruthyFilter())
	}
	summaries := analytics.Analyze(readings, registry, analyticsOpts...)
	buckets := aggregate.Aggregate(readings, interval, cfg.AggregateOptions()...)
	aggregate.SortBuckets(buckets)

	monitor := alerting.NewMonitor(registry, alerting.WithSeverityFactor(cfg.Pipeline.SeverityFactor))
	alerts := monitor.EvaluateLatest(readings)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Readings: %d\n\n", len(readings))
	printSummaries(out, registry, summaries)
	fmt.Fprintln(out)
	printBuckets(out, registry, buckets)
	fmt.Fprintln(out)
	if len(alerts) == 0 {
		fmt.Fprintln(out, "Alerts: none")
	}
	for _, a := range alerts {
		fmt.Fprintf(out, "Alert [%s]: %s\n", a.Type, a.Message)
	}

	if analyzeExport != "" {
		if err := exportDataset(analyzeExport, readings); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nExported %d readings to %s\n", len(readings), analyzeExport)
	}
	return nil
}

func loadDataset(cmd *cobra.Command) ([]models.Reading, error) {
	switch {
	case analyzeFile != "":
		data, err := os.ReadFile(analyzeFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read dataset: %w", err)
		}
		var readings []models.Reading
		if err := json.Unmarshal(data, &readings); err != nil {
			return nil, fmt.Errorf("failed to decode dataset: %w", err)
		}
		return readings, nil
	case analyzeURL != "":
		readings, err := api.NewClient(analyzeURL).GetLogs(cmd.Context())
		if err != nil {
			return nil, fmt.Errorf("failed to fetch dataset: %w", err)
		}
		return readings, nil
	default:
		return nil, fmt.Errorf("either --file or --url is required")
	}
}

func printSummaries(w io.Writer, registry models.SensorRegistry, summaries map[string]models.AnalyticsSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SENSOR\tCURRENT\tMIN\tMAX\tMEAN\tMEDIAN\tSTDDEV\tTREND\tOUT OF RANGE\tSTABILITY")
	for _, key := range registry.Keys() {
		s, ok := summaries[key]
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s%%\t%s\n",
			registry[key].Name,
			formatNumber(s.Current), formatNumber(s.Min), formatNumber(s.Max),
			formatNumber(s.Mean), formatNumber(s.Median), formatNumber(s.StdDev),
			formatNumber(s.Trend), formatNumber(s.OutOfRangePercentage), formatNumber(s.Stability),
		)
	}
	tw.Flush()
}

func printBuckets(w io.Writer, registry models.SensorRegistry, buckets []models.AggregatedBucket) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	keys := registry.Keys()
	fmt.Fprintf(tw, "BUCKET\tREADINGS\t%s\n", strings.ToUpper(strings.Join(keys, "\t")))
	for _, b := range buckets {
		cells := make([]string, len(keys))
		for i, key := range keys {
			if v, ok := b.Means[key]; ok {
				cells[i] = formatNumber(v)
			} else {
				cells[i] = "-"
			}
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", b.Timestamp.UTC().Format(models.ISOLayout), b.Readings, strings.Join(cells, "\t"))
	}
	tw.Flush()
}

func exportDataset(path string, readings []models.Reading) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	if strings.HasSuffix(path, ".gz") {
		err = export.WriteGzipCSV(f, readings, gzip.BestCompression)
	} else {
		err = export.WriteCSV(f, readings)
	}
	if err != nil {
		return fmt.Errorf("failed to export dataset: %w", err)
	}
	return f.Close()
}

func formatNumber(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}
