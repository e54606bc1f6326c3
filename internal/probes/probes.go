// Package probes provides the standard health probes wired into the
// readiness endpoint.
package probes

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/jmoiron/sqlx"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
)

// NewDatabasePing returns a probe that pings the export database.
func NewDatabasePing(db *sqlx.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}

// NewSinkReachable returns a probe that checks the export sink endpoint
// answers at all. Any HTTP response counts as reachable; the exporter's own
// retry policy deals with per-request failures.
func NewSinkReachable(client *resty.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := client.R().SetContext(ctx).Head("/")
		return err
	}
}

// NewSystemResources returns a probe that fails when host CPU or memory
// usage crosses the given percent limits. A zero limit disables that check.
func NewSystemResources(maxCPUPercent, maxMemPercent float64) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if maxCPUPercent > 0 {
			usage, err := cpu.PercentWithContext(ctx, 0, false)
			if err != nil {
				return err
			}
			if len(usage) > 0 && usage[0] > maxCPUPercent {
				return fmt.Errorf("cpu usage %.1f%% above limit %.1f%%", usage[0], maxCPUPercent)
			}
		}
		if maxMemPercent > 0 {
			vm, err := mem.VirtualMemoryWithContext(ctx)
			if err != nil {
				return err
			}
			if vm.UsedPercent > maxMemPercent {
				return fmt.Errorf("memory usage %.1f%% above limit %.1f%%", vm.UsedPercent, maxMemPercent)
			}
		}
		return nil
	}
}
