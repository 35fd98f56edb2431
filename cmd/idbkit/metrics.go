package main

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"idbkit/internal/console"
	"idbkit/internal/logging"
)

// sessionCollector follows the session's current database handle, which
// schema commands replace.
type sessionCollector struct {
	session *console.Session
}

func (c sessionCollector) Describe(ch chan<- *prometheus.Desc) {
	c.session.DB().Describe(ch)
}

func (c sessionCollector) Collect(ch chan<- prometheus.Metric) {
	c.session.DB().Collect(ch)
}

func serveMetrics(addr string, session *console.Session) (*http.Server, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		sessionCollector{session},
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.For("idbkit").Error("metrics server stopped", "err", err)
		}
	}()
	return srv, nil
}
