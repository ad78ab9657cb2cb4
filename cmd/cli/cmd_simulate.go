package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/manslikestiffler/smart-granary/pkg/api"
	"github.com/manslikestiffler/smart-granary/pkg/source"
	"github.com/spf13/cobra"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Generate simulated sensor readings",
	Long: `Generate readings that drift smoothly inside each sensor's display range.
Readings are printed as JSON lines, or posted to a running server with --target.`,
	RunE: runSimulate,
}

var (
	simulateCount    int
	simulateInterval time.Duration
	simulateTarget   string
	simulateAPIKey   string
	simulateSeed     int64
	simulateZones    string
)

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().IntVarP(&simulateCount, "count", "n", 10, "number of readings (0 runs until interrupted)")
	simulateCmd.Flags().DurationVar(&simulateInterval, "interval", 0, "delay between readings")
	simulateCmd.Flags().StringVar(&simulateTarget, "target", "", "server base URL to post readings to")
	simulateCmd.Flags().StringVar(&simulateAPIKey, "api-key", getEnv("SMARTGRAIN_API_KEY", ""), "API key for --target")
	simulateCmd.Flags().Int64Var(&simulateSeed, "seed", 0, "random seed (0 uses the current time)")
	simulateCmd.Flags().StringVar(&simulateZones, "zones", "", "comma-separated zones to tag readings with")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg := configFrom(cmd)
	registry, err := cfg.Registry()
	if err != nil {
		return err
	}

	seed := simulateSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	zones := cfg.Source.Zones
	if simulateZones != "" {
		zones = splitList(simulateZones)
	}
	sim := source.NewSimulator(registry,
		source.WithRand(rand.New(rand.NewSource(seed))),
		source.WithZones(zones...),
	)

	var client *api.Client
	if simulateTarget != "" {
		client = api.NewClient(simulateTarget, api.WithAPIKey(simulateAPIKey), api.WithRetries(2, 250*time.Millisecond))
	}
	encoder := json.NewEncoder(os.Stdout)

	ctx := cmd.Context()
	for i := 0; simulateCount == 0 || i < simulateCount; i++ {
		if i > 0 && simulateInterval > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(simulateInterval):
			}
		}

		reading := sim.Next()
		if client == nil {
			if err := encoder.Encode(reading); err != nil {
				return fmt.Errorf("failed to write reading: %w", err)
			}
			continue
		}

		if err := client.PostReading(ctx, reading); err != nil {
			return fmt.Errorf("failed to post reading %d: %w", reading.ID, err)
		}
		log.Printf("✓ Posted reading %d to %s", reading.ID, client.BaseURL())
	}

	return nil
}
