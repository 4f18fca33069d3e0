package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from agenthive.yaml
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Bus       BusConfig       `yaml:"bus"`
	Hierarchy HierarchyConfig `yaml:"hierarchy"`
	Priority  PriorityConfig  `yaml:"priority"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	SLA       SLAConfig       `yaml:"sla"`
	HOOTL     HOOTLConfig     `yaml:"hootl"`
	Store     StoreConfig     `yaml:"store"`
}

// ServerConfig configures the HTTP control API
type ServerConfig struct {
	Port           int  `yaml:"port"`
	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// BusConfig configures the embedded NATS message bus
type BusConfig struct {
	Port              int `yaml:"port"`
	WebSocketPort     int `yaml:"websocket_port"` // 0 to disable
	HeartbeatInterval int `yaml:"heartbeat_interval"`
}

// HierarchyConfig configures the initial agent population
type HierarchyConfig struct {
	TotalAgents int `yaml:"total_agents"`
}

// PriorityConfig configures the priority engine.
// All intervals are seconds.
type PriorityConfig struct {
	CalculationInterval   int     `yaml:"calculation_interval"`
	SchedulingInterval    int     `yaml:"scheduling_interval"`
	PriorityAgingFactor   float64 `yaml:"priority_aging_factor"`
	MaxPriorityBoost      float64 `yaml:"max_priority_boost"`
	SLAViolationThreshold int     `yaml:"sla_violation_threshold"`
	EmergencyThreshold    float64 `yaml:"emergency_threshold"`
	CriticalThreshold     float64 `yaml:"critical_threshold"`
	NormalPriorityMin     float64 `yaml:"normal_priority_min"`
	NormalPriorityMax     float64 `yaml:"normal_priority_max"`
	LoadBalancingEnabled  bool    `yaml:"load_balancing_enabled"`
	MaxQueueSize          int     `yaml:"max_queue_size"`
	HistoryRetention      int     `yaml:"history_retention"`
}

// SchedulerConfig configures dispatch behavior
type SchedulerConfig struct {
	DefaultTimeout    int `yaml:"default_timeout"`     // seconds before an in-flight task is failed
	MaxRetries        int `yaml:"max_retries"`
	DispatchBatchSize int `yaml:"dispatch_batch_size"` // max tasks drained per dispatch cycle
}

// SLAConfig configures the SLA monitor
type SLAConfig struct {
	MonitoringInterval int     `yaml:"monitoring_interval"`
	ResponseTimeTarget float64 `yaml:"response_time_target"` // seconds
	ThroughputTarget   float64 `yaml:"throughput_target"`    // tasks per hour
}

// HOOTLConfig configures the autonomy controller
type HOOTLConfig struct {
	CycleInterval          int          `yaml:"cycle_interval"`
	MaxCycles              uint64       `yaml:"max_cycles"` // 0 = unbounded
	MaxCycleTimeSeconds    float64      `yaml:"max_cycle_time_seconds"`
	EnableSelfModification bool         `yaml:"enable_self_modification"`
	SafetyLimits           SafetyLimits `yaml:"safety_limits"`
}

// SafetyLimits are the hard resource limits enforced by the GATES phase
type SafetyLimits struct {
	MaxCPU              float64 `yaml:"max_cpu"`     // percent
	MaxMemoryMB         uint64  `yaml:"max_memory_mb"`
	MaxConcurrentAgents int     `yaml:"max_concurrent_agents"`
}

// MaxMemoryBytes returns the memory limit in bytes
func (s SafetyLimits) MaxMemoryBytes() uint64 {
	return s.MaxMemoryMB * 1024 * 1024
}

// StoreConfig configures the optional sqlite history store
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns the configuration defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			MetricsEnabled: true,
		},
		Bus: BusConfig{
			Port:              4222,
			WebSocketPort:     0,
			HeartbeatInterval: 10,
		},
		Hierarchy: HierarchyConfig{
			TotalAgents: 100,
		},
		Priority: PriorityConfig{
			CalculationInterval:   30,
			SchedulingInterval:    1,
			PriorityAgingFactor:   0.01,
			MaxPriorityBoost:      50,
			SLAViolationThreshold: 300,
			EmergencyThreshold:    95,
			CriticalThreshold:     80,
			NormalPriorityMin:     20,
			NormalPriorityMax:     70,
			LoadBalancingEnabled:  true,
			MaxQueueSize:          10000,
			HistoryRetention:      86400,
		},
		Scheduler: SchedulerConfig{
			DefaultTimeout:    300,
			MaxRetries:        3,
			DispatchBatchSize: 10,
		},
		SLA: SLAConfig{
			MonitoringInterval: 60,
			ResponseTimeTarget: 300,
			ThroughputTarget:   100,
		},
		HOOTL: HOOTLConfig{
			CycleInterval:          60,
			MaxCycles:              0,
			MaxCycleTimeSeconds:    30,
			EnableSelfModification: false,
			SafetyLimits: SafetyLimits{
				MaxCPU:              85,
				MaxMemoryMB:         8192,
				MaxConcurrentAgents: 256,
			},
		},
		Store: StoreConfig{
			Enabled: false,
			Path:    "data/agenthive.db",
		},
	}
}

// LoadConfig reads a YAML config file, applying defaults for missing fields
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return cfg, nil
}

// CalculationPeriod returns the priority recalculation interval as a duration
func (c PriorityConfig) CalculationPeriod() time.Duration {
	return time.Duration(c.CalculationInterval) * time.Second
}

// SchedulingPeriod returns the dispatch interval as a duration
func (c PriorityConfig) SchedulingPeriod() time.Duration {
	return time.Duration(c.SchedulingInterval) * time.Second
}
