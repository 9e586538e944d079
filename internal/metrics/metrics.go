// Package metrics 暴露转发调度的 Prometheus 指标。
package metrics

import (
	"errors"
	"net/http"
	"time"

	"ads_forwarder/internal/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Cycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forwarder_cycles_total",
		Help: "Forwarding cycles by result",
	}, []string{"result"})
	Sends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forwarder_sends_total",
		Help: "Send attempts by outcome",
	}, []string{"outcome"})
	TargetsDisabled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forwarder_targets_disabled_total",
		Help: "Targets disabled after repeated failures",
	})
	TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "forwarder_tick_duration_seconds",
		Help:    "Dispatch tick duration seconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	})
)

func init() {
	prometheus.MustRegister(Cycles, Sends, TargetsDisabled, TickDuration)
}

// IncCycle 记录一次周期结果
func IncCycle(result string) { Cycles.WithLabelValues(result).Inc() }

// IncSend 记录一次发送结果
func IncSend(outcome string) { Sends.WithLabelValues(outcome).Inc() }

// IncTargetDisabled 记录一次目标自动禁用
func IncTargetDisabled() { TargetsDisabled.Inc() }

// ObserveTick 记录一次调度耗时
func ObserveTick(start time.Time) { TickDuration.Observe(time.Since(start).Seconds()) }

// Handler 返回 /metrics 与 /health 路由
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return mux
}

// StartServer 在 addr 上启动指标服务，addr 为空时返回 nil
func StartServer(addr string) *http.Server {
	if addr == "" {
		return nil
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Errorf("Metrics server stopped: %v", err)
		}
	}()
	logger.L().Infof("Metrics server listening on %s", addr)
	return srv
}
