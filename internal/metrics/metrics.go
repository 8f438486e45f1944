package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EndpointResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "endpoint_responses_total",
		Help: "The total number of endpoint responses",
	}, []string{"endpoint", "status_code"})

	// Dispatch metrics
	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gemm_dispatch_duration_ms",
		Help:    "Duration of one multi-device matrix multiplication in milliseconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 15), // 1ms to ~32s
	})

	DispatchGFLOPS = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gemm_dispatch_gflops",
		Help: "Performance of the last matrix multiplication in GFLOPS",
	})

	DispatchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gemm_dispatch_errors_total",
		Help: "Total number of failed engine operations by error kind",
	}, []string{"kind"})

	TransferBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gemm_transfer_bytes_total",
		Help: "Bytes moved between host and devices",
	}, []string{"direction"})

	// Device metrics
	DevicesInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gemm_devices_in_use",
		Help: "Number of devices driven by the active session",
	})

	DeviceMemoryBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gemm_device_memory_bytes",
		Help: "Device memory held by the buffers of the active session in bytes",
	})
)

// Transfer directions used as TransferBytes labels.
const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"
)
