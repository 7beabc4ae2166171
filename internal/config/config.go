// Package config provides YAML-based configuration for the edge inference
// fabric's two binaries. Supports validation, defaults, and environment
// variable overrides, layered the same way across both the proxy and the
// controller.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gulis1/edge-inference-fabric/internal/constants"
)

// Metric names a Prometheus query to be evaluated by the proxy's metrics
// poller and published as part of the triton_metrics annotation.
type Metric struct {
	Name  string `yaml:"name"`
	Query string `yaml:"promql"`
}

// ProxyConfig is the top-level configuration for the edge-proxy binary.
type ProxyConfig struct {
	ListenAddr        string            `yaml:"listen_addr"`
	MetricsAddr       string            `yaml:"metrics_addr"`
	LogLevel          string            `yaml:"log_level"`
	RequestTimeoutMS  int               `yaml:"request_timeout_ms"`
	MetricsIntervalS  int               `yaml:"metrics_interval_secs"`
	ModelCatalogPath  string            `yaml:"model_catalog_path"`
	LocalBackendAddr  string            `yaml:"local_backend_addr"`
	PrometheusAddr    string            `yaml:"prometheus_addr"`
	PolicyName        string            `yaml:"policy"`
	HWInfoPath        string            `yaml:"hwinfo_path"`
	Queries           []Metric          `yaml:"queries"`

	PodNamespace string `yaml:"-"`
	PodName      string `yaml:"-"`
	PodUUID      string `yaml:"-"`
}

// DefaultProxyConfig returns a ProxyConfig with sensible production defaults.
func DefaultProxyConfig() *ProxyConfig {
	return &ProxyConfig{
		ListenAddr:       constants.DefaultProxyListenAddr,
		MetricsAddr:      constants.DefaultMetricsAddr,
		LogLevel:         constants.DefaultLogLevel,
		RequestTimeoutMS: int(constants.DefaultRequestTimeout.Milliseconds()),
		MetricsIntervalS: int(constants.DefaultMetricsInterval.Seconds()),
		ModelCatalogPath: constants.DefaultModelCatalogPath,
		LocalBackendAddr: constants.DefaultLocalBackendAddr,
		PolicyName:       "min_queue",
		HWInfoPath:       constants.DefaultHWInfoPath,
		Queries: []Metric{
			{Name: "queue_avg_5m", Query: "avg(avg_over_time(nv_inference_queue_duration_us[5m]))"},
			{Name: "total_inferences", Query: "sum(nv_inference_count)"},
			{Name: "pending_requests", Query: "sum(nv_inference_pending_request_count)"},
		},
	}
}

// LoadProxyConfig reads a YAML config file, merges it over the defaults and
// applies environment variable overrides. A missing file is not an error —
// it falls back to defaults plus env overrides.
func LoadProxyConfig(path string) (*ProxyConfig, error) {
	cfg := DefaultProxyConfig()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func (c *ProxyConfig) applyEnvOverrides() {
	c.PodNamespace = os.Getenv(constants.EnvPodNamespace)
	c.PodName = os.Getenv(constants.EnvPodName)
	c.PodUUID = os.Getenv(constants.EnvPodUUID)

	if v := os.Getenv(constants.EnvProxyRequestTimeoutMS); v != "" {
		if n, err := parseInt(v); err == nil {
			c.RequestTimeoutMS = n
		}
	}
	if v := os.Getenv(constants.EnvProxyMetricsIntervalS); v != "" {
		if n, err := parseInt(v); err == nil {
			c.MetricsIntervalS = n
		}
	}
	if v := os.Getenv(constants.EnvProxyModelCatalogPath); v != "" {
		c.ModelCatalogPath = v
	}
	if v := os.Getenv(constants.EnvProxyLocalBackendAddr); v != "" {
		c.LocalBackendAddr = v
	}
	if v := os.Getenv(constants.EnvProxyPrometheusAddr); v != "" {
		c.PrometheusAddr = v
	}
	if v := os.Getenv(constants.EnvProxyMetricsAddr); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv(constants.EnvProxyListenAddr); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv(constants.EnvProxyPolicyName); v != "" {
		c.PolicyName = v
	}
	if v := os.Getenv(constants.EnvProxyHWInfoPath); v != "" {
		c.HWInfoPath = v
	}
	if v := os.Getenv(constants.EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Validate checks the config for logical errors. Startup config errors are
// fatal — the caller is expected to log.Fatal on a non-nil return.
func (c *ProxyConfig) Validate() error {
	var errs []string

	if c.PodNamespace == "" {
		errs = append(errs, "POD_NAMESPACE is required")
	}
	if c.PodName == "" {
		errs = append(errs, "POD_NAME is required")
	}
	if c.PodUUID == "" {
		errs = append(errs, "POD_UUID is required")
	}
	if c.RequestTimeoutMS <= 0 {
		errs = append(errs, "request_timeout_ms must be > 0")
	}
	if c.MetricsIntervalS <= 0 {
		errs = append(errs, "metrics_interval_secs must be > 0")
	}
	if c.ModelCatalogPath == "" {
		errs = append(errs, "model_catalog_path is required")
	}
	if c.LocalBackendAddr == "" {
		errs = append(errs, "local_backend_addr is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// ControllerConfig is the top-level configuration for the edge-controller
// binary.
type ControllerConfig struct {
	GraphHTTPAddr string `yaml:"graph_http_addr"`
	MetricsAddr   string `yaml:"metrics_addr"`
	LogLevel      string `yaml:"log_level"`
	PolicyName    string `yaml:"policy"`
	GraphFilePath string `yaml:"graph_file_path"`
	CRResource    string `yaml:"cr_resource"`
}

// DefaultControllerConfig returns a ControllerConfig with sensible
// production defaults.
func DefaultControllerConfig() *ControllerConfig {
	return &ControllerConfig{
		GraphHTTPAddr: constants.DefaultGraphHTTPAddr,
		MetricsAddr:   constants.DefaultMetricsAddr,
		LogLevel:      constants.DefaultLogLevel,
		PolicyName:    "no_op",
		GraphFilePath: constants.DefaultGraphFilePath,
		CRResource:    constants.DefaultCRResource,
	}
}

// LoadControllerConfig reads a YAML config file, merges it over the
// defaults and applies environment variable overrides.
func LoadControllerConfig(path string) (*ControllerConfig, error) {
	cfg := DefaultControllerConfig()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func (c *ControllerConfig) applyEnvOverrides() {
	if v := os.Getenv(constants.EnvControllerGraphHTTPAddr); v != "" {
		c.GraphHTTPAddr = v
	}
	if v := os.Getenv(constants.EnvControllerMetricsAddr); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv(constants.EnvControllerPolicyName); v != "" {
		c.PolicyName = v
	}
	if v := os.Getenv(constants.EnvControllerGraphFilePath); v != "" {
		c.GraphFilePath = v
	}
	if v := os.Getenv(constants.EnvControllerCRResource); v != "" {
		c.CRResource = v
	}
	if v := os.Getenv(constants.EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Validate checks the config for logical errors.
func (c *ControllerConfig) Validate() error {
	var errs []string

	if c.GraphHTTPAddr == "" {
		errs = append(errs, "graph_http_addr is required")
	}
	if c.PolicyName == "" {
		errs = append(errs, "policy is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}
