package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type Prom struct {
	RequestsTotal    *prometheus.CounterVec
	RequestsDuration *prometheus.HistogramVec
	InFlight         *prometheus.GaugeVec

	// DB
	DbQueryDuration *prometheus.HistogramVec
	DbErrorsTotal   *prometheus.CounterVec

	// session cache
	CacheOps *prometheus.CounterVec

	// auth
	AuthOutcomes        *prometheus.CounterVec
	ApprovalTransitions *prometheus.CounterVec
	Compensations       *prometheus.CounterVec

	// redis pool
	RedisPoolConns *prometheus.GaugeVec
}

func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bizhub",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "bizhub",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distributions.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "bizhub",
				Name:      "http_in_flight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
			[]string{"method", "route"},
		),
		DbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "bizhub",
				Subsystem: "db",
				Name:      "query_duration_seconds",
				Help:      "DB operation latency (logical op, not raw SQL)",
				Buckets:   []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.35, 0.5, 1, 2, 5},
			},
			[]string{"op", "status"},
		),
		DbErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bizhub",
				Subsystem: "db",
				Name:      "errors_total",
				Help:      "DB errors by logical op and class.",
			},
			[]string{"op", "class"},
		),
		CacheOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bizhub",
				Subsystem: "cache",
				Name:      "operations_total",
				Help:      "Session cache operations by kind and result.",
			},
			[]string{"kind", "op", "result"}, // result=hit|miss|ok|error
		),
		AuthOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bizhub",
				Subsystem: "auth",
				Name:      "outcomes_total",
				Help:      "Signup/login/logout outcomes.",
			},
			[]string{"flow", "result"},
		),
		ApprovalTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bizhub",
				Subsystem: "auth",
				Name:      "approval_transitions_total",
				Help:      "Approval state transitions applied by admins.",
			},
			[]string{"from", "to"},
		),
		Compensations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bizhub",
				Subsystem: "auth",
				Name:      "signup_compensations_total",
				Help:      "Credential store identities deleted after a failed profile insert.",
			},
			[]string{"result"},
		),
		RedisPoolConns: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "bizhub",
				Subsystem: "redis",
				Name:      "pool_connections",
				Help:      "Redis pool connections by state.",
			},
			[]string{"state"}, // total|idle|stale
		),
	}
	reg.MustRegister(
		p.RequestsTotal, p.RequestsDuration, p.InFlight,
		p.DbQueryDuration, p.DbErrorsTotal,
		p.CacheOps,
		p.AuthOutcomes, p.ApprovalTransitions, p.Compensations,
		p.RedisPoolConns,
	)

	return p
}

func (p *Prom) GinHandleMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		route := ctx.FullPath()

		if route == "" {
			route = "unmatched"
		}

		method := ctx.Request.Method
		p.InFlight.WithLabelValues(method, route).Inc()
		defer p.InFlight.WithLabelValues(method, route).Dec()
		ctx.Next()

		status := strconv.Itoa(ctx.Writer.Status())
		secs := time.Since(start).Seconds()

		p.RequestsTotal.WithLabelValues(method, route, status).Inc()
		p.RequestsDuration.WithLabelValues(method, route, status).Observe(secs)
	}
}

// The helpers below tolerate a nil receiver so components can run without metrics in tests.

func (p *Prom) CacheOp(kind, op, result string) {
	if p == nil {
		return
	}
	p.CacheOps.WithLabelValues(kind, op, result).Inc()
}

func (p *Prom) AuthOutcome(flow, result string) {
	if p == nil {
		return
	}
	p.AuthOutcomes.WithLabelValues(flow, result).Inc()
}

func (p *Prom) ApprovalTransition(from, to string) {
	if p == nil {
		return
	}
	p.ApprovalTransitions.WithLabelValues(from, to).Inc()
}

func (p *Prom) Compensation(result string) {
	if p == nil {
		return
	}
	p.Compensations.WithLabelValues(result).Inc()
}

func (p *Prom) RedisPool(total, idle, stale uint32) {
	if p == nil {
		return
	}
	p.RedisPoolConns.WithLabelValues("total").Set(float64(total))
	p.RedisPoolConns.WithLabelValues("idle").Set(float64(idle))
	p.RedisPoolConns.WithLabelValues("stale").Set(float64(stale))
}
