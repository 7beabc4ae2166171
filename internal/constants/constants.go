// Package constants provides all named constants for the edge inference
// fabric. Eliminates magic numbers and hardcoded values throughout the
// codebase.
package constants

import "time"

// ─── Versioning ────────────────────────────────────────────────────
const (
	Version = "1.0.0"
)

// ─── Environment Variable Keys (common) ────────────────────────────
const (
	EnvPodNamespace = "POD_NAMESPACE"
	EnvPodName      = "POD_NAME"
	EnvPodUUID      = "POD_UUID"
	EnvLogLevel     = "EDGE_LOG_LEVEL"
)

// ─── Environment Variable Keys (proxy) ─────────────────────────────
const (
	EnvProxyRequestTimeoutMS  = "EDGE_PROXY_REQUEST_TIMEOUT_MS"
	EnvProxyMetricsIntervalS  = "METRICS_QUERY_INTERVAL_SECS"
	EnvProxyModelCatalogPath  = "EDGE_PROXY_MODEL_CATALOG_PATH"
	EnvProxyLocalBackendAddr  = "EDGE_PROXY_LOCAL_BACKEND_ADDR"
	EnvProxyPrometheusAddr    = "EDGE_PROXY_PROMETHEUS_ADDR"
	EnvProxyMetricsAddr       = "EDGE_PROXY_METRICS_ADDR"
	EnvProxyListenAddr        = "EDGE_PROXY_LISTEN_ADDR"
	EnvProxyConfigPath        = "EDGE_PROXY_CONFIG_PATH"
	EnvProxyPolicyName        = "EDGE_PROXY_POLICY"
	EnvProxyHWInfoPath        = "EDGE_PROXY_HWINFO_PATH"
)

// ─── Environment Variable Keys (controller) ────────────────────────
const (
	EnvControllerGraphHTTPAddr = "EDGE_CONTROLLER_GRAPH_HTTP_ADDR"
	EnvControllerMetricsAddr   = "EDGE_CONTROLLER_METRICS_ADDR"
	EnvControllerConfigPath    = "EDGE_CONTROLLER_CONFIG_PATH"
	EnvControllerPolicyName    = "EDGE_CONTROLLER_POLICY"
	EnvControllerGraphFilePath = "EDGE_CONTROLLER_GRAPH_FILE_PATH"
	EnvControllerCRResource    = "EDGE_CONTROLLER_CR_RESOURCE"
)

// ─── Defaults ───────────────────────────────────────────────────────
const (
	DefaultRequestTimeout    = 5000 * time.Millisecond
	DefaultMetricsInterval   = 60 * time.Second
	DefaultModelCatalogPath  = "./models.csv"
	DefaultLocalBackendAddr  = "127.0.0.1:12345"
	DefaultProxyListenAddr   = "0.0.0.0:9999"
	DefaultMetricsAddr       = ":9090"
	DefaultGraphHTTPAddr     = ":9091"
	DefaultLogLevel          = "info"
	DefaultGraphFilePath     = "./graph.json"
	DefaultHWInfoPath        = "./hw_info.json"
	DefaultCRResource        = "edgeservices"
)

// ─── Proxy tuning ───────────────────────────────────────────────────
const (
	// QueryMaxElapsed is how long a metrics value may go un-refreshed
	// before the metrics-refresh loop schedules another fetch.
	QueryMaxElapsed = 10 * time.Second

	// RingBufferCapacity bounds each endpoint's sliding window of
	// PreviousResult outcomes.
	RingBufferCapacity = 5

	// NeighborFetchPermits bounds concurrent neighbor-annotation
	// fetches (hw_info/metrics) issued against the orchestrator API.
	NeighborFetchPermits = 2

	// FailedAttemptPenaltyMS is substituted for a missing duration
	// when computing avg_latency over the ring buffer.
	FailedAttemptPenaltyMS = 10000
)

// ─── Channel capacities ─────────────────────────────────────────────
const (
	ProxyMainLoopBuffer      = 32
	ControllerManagerBuffer  = 128
)

// ─── Shutdown ──────────────────────────────────────────────────────
const (
	ShutdownTimeout         = 10 * time.Second
	HTTPShutdownTimeout     = 5 * time.Second
	ReconcileErrorRequeue   = 5 * time.Second
	ReconcileApplyRequeue   = 300 * time.Second
)

// ─── HTTP Server Timeouts ──────────────────────────────────────────
const (
	HTTPReadTimeout  = 5 * time.Second
	HTTPWriteTimeout = 10 * time.Second
	HTTPIdleTimeout  = 120 * time.Second
)

// ─── HTTP Paths ────────────────────────────────────────────────────
const (
	PathMetrics = "/metrics"
	PathHealthz = "/healthz"
	PathReadyz  = "/readyz"
)

// ─── Wire protocol ──────────────────────────────────────────────────
const (
	// RouteTrailerPrefix is appended after a locally-handled response.
	RouteTrailerPrefix = "\nRoute: "
	// RouteArrow separates hops in the route trailer.
	RouteArrow = "->"
	// LocalModelTagPrefix is appended by the local execution bridge.
	LocalModelTagPrefix = "Model: "
)

// ─── Custom resource (EdgeService / TritonService) ──────────────────
const (
	CRGroup     = "prueba.ucm.es"
	CRVersion   = "v1"
	FinalizerName = "edgeservice.prueba.ucm.es/deletion"

	// LabelSelectorKey is the pod label key used for service membership.
	LabelSelectorKey = "edgeservices.prueba.ucm.es"
)

// ─── Pod annotation keys ────────────────────────────────────────────
const (
	AnnotEndpoints      = "edgeservices.prueba.ucm.es/endpoints"
	AnnotHWInfo         = "edgeservices.prueba.ucm.es/hw_info"
	AnnotTritonMetrics  = "tritonservices.prueba.ucm.es/triton_metrics"
)

// ─── Prometheus metric names ───────────────────────────────────────
const (
	ProxyMetricPrefix      = "edge_proxy_"
	ControllerMetricPrefix = "edge_controller_"
)

// ─── Labels ──────────────────────────────────────────────────────────
const (
	LabelPolicy  = "policy"
	LabelOutcome = "outcome"
	LabelService = "service"
)
