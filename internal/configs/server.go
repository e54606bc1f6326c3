package configs

import (
	"strings"
)

// ServerConfig holds the externally supplied settings of the observability
// server. All alerting-relevant values come from outside; there are no
// hidden defaults that change behavior across versions.
type ServerConfig struct {
	Address          string `json:"address"`           // HTTP listen address
	SnapshotInterval int    `json:"snapshot_interval"` // registry scrape interval, seconds
	BatchMaxSize     int    `json:"batch_max_size"`    // exporter flush threshold, records
	BatchMaxAge      int    `json:"batch_max_age"`     // exporter flush threshold, seconds
	ExportRetries    int    `json:"export_retries"`    // send attempts per batch
	ProbeTimeout     int    `json:"probe_timeout"`     // per-probe timeout, seconds
	DatabaseDSN      string `json:"database_dsn"`      // SQL sink DSN; empty selects the web sink
	SinkURL          string `json:"sink_url"`          // web sink base URL
	NotifyURL        string `json:"notify_url"`        // alert webhook base URL
	RulesPath        string `json:"rules_path"`        // alert rules JSON file
	JournalPath      string `json:"journal_path"`      // snapshot journal file; empty disables
	StoreInterval    int    `json:"store_interval"`    // journal interval, seconds (0 = on shutdown only)
	Restore          bool   `json:"restore"`           // restore counters/gauges from journal on start

	MaxStageLatencyMS float64 `json:"max_stage_latency_ms"` // stage latency warning threshold; 0 disables
	MinQualityScore   float64 `json:"min_quality_score"`    // signal quality warning threshold; 0 disables
}

// ServerConfigOpt applies one option to a ServerConfig.
type ServerConfigOpt func(*ServerConfig) error

// NewServerConfig creates a ServerConfig by applying the given options.
func NewServerConfig(opts ...ServerConfigOpt) (*ServerConfig, error) {
	cfg := &ServerConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// WithAddress sets Address to the first non-empty value provided.
func WithAddress(addrs ...string) ServerConfigOpt {
	return func(cfg *ServerConfig) error {
		for _, addr := range addrs {
			if strings.TrimSpace(addr) != "" {
				cfg.Address = addr
				break
			}
		}
		return nil
	}
}

// WithSnapshotInterval sets SnapshotInterval to the first positive value.
func WithSnapshotInterval(intervals ...int) ServerConfigOpt {
	return func(cfg *ServerConfig) error {
		for _, interval := range intervals {
			if interval > 0 {
				cfg.SnapshotInterval = interval
				break
			}
		}
		return nil
	}
}

// WithBatchMaxSize sets BatchMaxSize to the first positive value.
func WithBatchMaxSize(sizes ...int) ServerConfigOpt {
	return func(cfg *ServerConfig) error {
		for _, size := range sizes {
			if size > 0 {
				cfg.BatchMaxSize = size
				break
			}
		}
		return nil
	}
}

// WithBatchMaxAge sets BatchMaxAge to the first positive value.
func WithBatchMaxAge(ages ...int) ServerConfigOpt {
	return func(cfg *ServerConfig) error {
		for _, age := range ages {
			if age > 0 {
				cfg.BatchMaxAge = age
				break
			}
		}
		return nil
	}
}

// WithExportRetries sets ExportRetries to the first positive value.
func WithExportRetries(retries ...int) ServerConfigOpt {
	return func(cfg *ServerConfig) error {
		for _, r := range retries {
			if r > 0 {
				cfg.ExportRetries = r
				break
			}
		}
		return nil
	}
}

// WithProbeTimeout sets ProbeTimeout to the first positive value.
func WithProbeTimeout(timeouts ...int) ServerConfigOpt {
	return func(cfg *ServerConfig) error {
		for _, t := range timeouts {
			if t > 0 {
				cfg.ProbeTimeout = t
				break
			}
		}
		return nil
	}
}

// WithDatabaseDSN sets DatabaseDSN to the first non-empty value.
func WithDatabaseDSN(dsns ...string) ServerConfigOpt {
	return func(cfg *ServerConfig) error {
		for _, dsn := range dsns {
			if strings.TrimSpace(dsn) != "" {
				cfg.DatabaseDSN = dsn
				break
			}
		}
		return nil
	}
}

// WithSinkURL sets SinkURL to the first non-empty value.
func WithSinkURL(urls ...string) ServerConfigOpt {
	return func(cfg *ServerConfig) error {
		for _, u := range urls {
			if strings.TrimSpace(u) != "" {
				cfg.SinkURL = u
				break
			}
		}
		return nil
	}
}

// WithNotifyURL sets NotifyURL to the first non-empty value.
func WithNotifyURL(urls ...string) ServerConfigOpt {
	return func(cfg *ServerConfig) error {
		for _, u := range urls {
			if strings.TrimSpace(u) != "" {
				cfg.NotifyURL = u
				break
			}
		}
		return nil
	}
}

// WithRulesPath sets RulesPath to the first non-empty value.
func WithRulesPath(paths ...string) ServerConfigOpt {
	return func(cfg *ServerConfig) error {
		for _, p := range paths {
			if strings.TrimSpace(p) != "" {
				cfg.RulesPath = p
				break
			}
		}
		return nil
	}
}

// WithJournalPath sets JournalPath to the first non-empty value.
func WithJournalPath(paths ...string) ServerConfigOpt {
	return func(cfg *ServerConfig) error {
		for _, p := range paths {
			if strings.TrimSpace(p) != "" {
				cfg.JournalPath = p
				break
			}
		}
		return nil
	}
}

// WithStoreInterval sets StoreInterval to the first positive value.
func WithStoreInterval(intervals ...int) ServerConfigOpt {
	return func(cfg *ServerConfig) error {
		for _, interval := range intervals {
			if interval > 0 {
				cfg.StoreInterval = interval
				break
			}
		}
		return nil
	}
}

// WithMaxStageLatencyMS sets MaxStageLatencyMS to the first positive value.
func WithMaxStageLatencyMS(limits ...float64) ServerConfigOpt {
	return func(cfg *ServerConfig) error {
		for _, l := range limits {
			if l > 0 {
				cfg.MaxStageLatencyMS = l
				break
			}
		}
		return nil
	}
}

// WithMinQualityScore sets MinQualityScore to the first positive value.
func WithMinQualityScore(limits ...float64) ServerConfigOpt {
	return func(cfg *ServerConfig) error {
		for _, l := range limits {
			if l > 0 {
				cfg.MinQualityScore = l
				break
			}
		}
		return nil
	}
}

// WithRestore sets Restore to true if any provided value is true.
func WithRestore(restores ...bool) ServerConfigOpt {
	return func(cfg *ServerConfig) error {
		for _, r := range restores {
			if r {
				cfg.Restore = r
				break
			}
		}
		return nil
	}
}
