package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dinocore1/cancomms/internal/logging"
)

// Prometheus counters
var (
	CANRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "can_rx_frames_total",
		Help: "Total frames read from the CAN bus.",
	})
	CANTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "can_tx_frames_total",
		Help: "Total frames written to the CAN bus.",
	})
	TCPRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_rx_frames_total",
		Help: "Total frames decoded from the TCP peer.",
	})
	TCPTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_tx_frames_total",
		Help: "Total frames sent to the TCP peer.",
	})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total rejected malformed frames (invalid length byte).",
	})
	ErrorFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "error_frames_total",
		Help: "Total ERR-flagged frames seen and dropped.",
	})
	PeerResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peer_resets_total",
		Help: "Total sessions ended by a peer closing mid-frame.",
	})
	RxDroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "can_rx_dropped_frames_total",
		Help: "Total bus frames dropped because no session was draining them.",
	})
	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_sessions_total",
		Help: "Total bridge sessions started.",
	})
	SessionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_session_active",
		Help: "Whether a bridge session is currently running (0 or 1).",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrTCPRead  = "tcp_read"
	ErrTCPWrite = "tcp_write"
	ErrCANRead  = "can_read"
	ErrCANWrite = "can_write"
	ErrResolve  = "resolve"
	ErrDial     = "dial"
	ErrListen   = "listen"
	ErrAccept   = "accept"
)

// StartHTTP serves Prometheus metrics at /metrics plus a /ready probe.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localCANRx     uint64
	localCANTx     uint64
	localTCPRx     uint64
	localTCPTx     uint64
	localMalformed uint64
	localErrFrames uint64
	localResets    uint64
	localRxDrops   uint64
	localSessions  uint64
	localErrors    uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	CANRx       uint64
	CANTx       uint64
	TCPRx       uint64
	TCPTx       uint64
	Malformed   uint64
	ErrorFrames uint64
	PeerResets  uint64
	RxDrops     uint64
	Sessions    uint64
	Errors      uint64 // sum across error labels
}

func Snap() Snapshot {
	return Snapshot{
		CANRx:       atomic.LoadUint64(&localCANRx),
		CANTx:       atomic.LoadUint64(&localCANTx),
		TCPRx:       atomic.LoadUint64(&localTCPRx),
		TCPTx:       atomic.LoadUint64(&localTCPTx),
		Malformed:   atomic.LoadUint64(&localMalformed),
		ErrorFrames: atomic.LoadUint64(&localErrFrames),
		PeerResets:  atomic.LoadUint64(&localResets),
		RxDrops:     atomic.LoadUint64(&localRxDrops),
		Sessions:    atomic.LoadUint64(&localSessions),
		Errors:      atomic.LoadUint64(&localErrors),
	}
}

// Wrapper helpers to keep call sites simple.
func IncCANRx() {
	CANRxFrames.Inc()
	atomic.AddUint64(&localCANRx, 1)
}

func IncCANTx() {
	CANTxFrames.Inc()
	atomic.AddUint64(&localCANTx, 1)
}

func IncTCPRx() {
	TCPRxFrames.Inc()
	atomic.AddUint64(&localTCPRx, 1)
}

func IncTCPTx() {
	TCPTxFrames.Inc()
	atomic.AddUint64(&localTCPTx, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

func IncErrorFrames() {
	ErrorFrames.Inc()
	atomic.AddUint64(&localErrFrames, 1)
}

func IncPeerReset() {
	PeerResets.Inc()
	atomic.AddUint64(&localResets, 1)
}

func IncRxDrop() {
	RxDroppedFrames.Inc()
	atomic.AddUint64(&localRxDrops, 1)
}

// SessionStart marks a new session as the active one.
func SessionStart() {
	SessionsTotal.Inc()
	SessionActive.Set(1)
	atomic.AddUint64(&localSessions, 1)
}

// SessionEnd clears the active session gauge.
func SessionEnd() { SessionActive.Set(0) }

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register common error label series so first error does not log a registration latency.
	for _, lbl := range []string{
		ErrTCPRead, ErrTCPWrite, ErrCANRead, ErrCANWrite,
		ErrResolve, ErrDial, ErrListen, ErrAccept,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}
