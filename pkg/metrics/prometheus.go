package metrics

// HTTP middleware modelled on github.com/zsais/go-gin-prometheus, reduced to
// what the API needs: request count/latency/size and a /metrics listener.

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var httpLabels = []string{"code", "method", "url", "ref"}

var reqCnt = &Metric{ID: "reqCnt", Name: "req_total", Description: "HTTP requests processed, by status code and method.", Type: "counter_vec", Args: httpLabels}

var reqDur = &Metric{ID: "reqDur", Name: "req_dur_ms", Description: "HTTP request latencies in milliseconds.", Type: "histogram_vec", Args: httpLabels}

var reqSz = &Metric{ID: "reqSz", Name: "req_sz_bytes", Description: "HTTP request sizes in bytes.", Type: "summary_vec", Args: httpLabels}

var resSz = &Metric{ID: "resSz", Name: "resp_sz_bytes", Description: "HTTP response sizes in bytes.", Type: "summary_vec", Args: httpLabels}

const defaultMetricPath = "/metrics"

type Logger interface {
	Errorf(format string, v ...interface{})
	Infow(msg string, keysAndValues ...interface{})
}

// Prometheus contains the HTTP metrics and where they are exposed.
type Prometheus struct {
	reqCnt       *prometheus.CounterVec
	reqDur       *prometheus.HistogramVec
	reqSz, resSz *prometheus.SummaryVec

	registerer    prometheus.Registerer
	gatherer      prometheus.Gatherer
	listenAddress string
	MetricsPath   string

	// URLLabelFn controls the cardinality of the "url" label.
	URLLabelFn func(c *gin.Context) string

	logger Logger
}

type NewPrometheusOptions struct {
	Subsystem   string
	MetricsPath string
	URLLabelFn  func(c *gin.Context) string
	Registerer  prometheus.Registerer
	Gatherer    prometheus.Gatherer
	Logger      Logger
}

func NewPrometheus(options NewPrometheusOptions) *Prometheus {
	p := &Prometheus{
		registerer:  options.Registerer,
		gatherer:    options.Gatherer,
		MetricsPath: options.MetricsPath,
		URLLabelFn:  options.URLLabelFn,
		logger:      options.Logger,
	}
	if p.registerer == nil {
		p.registerer = prometheus.DefaultRegisterer
	}
	if p.gatherer == nil {
		p.gatherer = prometheus.DefaultGatherer
	}
	if p.MetricsPath == "" {
		p.MetricsPath = defaultMetricPath
	}
	if p.URLLabelFn == nil {
		p.URLLabelFn = func(c *gin.Context) string {
			if fp := c.FullPath(); fp != "" {
				return fp
			}
			return "unmatched"
		}
	}
	p.reqCnt = register(p.registerer, NewMetric(reqCnt, options.Subsystem)).(*prometheus.CounterVec)
	p.reqDur = register(p.registerer, NewMetric(reqDur, options.Subsystem)).(*prometheus.HistogramVec)
	p.reqSz = register(p.registerer, NewMetric(reqSz, options.Subsystem)).(*prometheus.SummaryVec)
	p.resSz = register(p.registerer, NewMetric(resSz, options.Subsystem)).(*prometheus.SummaryVec)
	return p
}

// SetListenAddress exposes metrics on a dedicated listener instead of the API
// engine, which keeps scrapes out of the access log.
func (p *Prometheus) SetListenAddress(address string) {
	p.listenAddress = address
}

func (p *Prometheus) handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

// Use attaches the middleware and exposes the metrics endpoint.
func (p *Prometheus) Use(e *gin.Engine) {
	e.Use(p.HandlerFunc())
	if p.listenAddress == "" {
		e.GET(p.MetricsPath, gin.WrapH(p.handler()))
		return
	}
	mux := http.NewServeMux()
	mux.Handle(p.MetricsPath, p.handler())
	srv := &http.Server{Addr: p.listenAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && p.logger != nil {
			p.logger.Errorf("metrics server error: %v", err)
		}
	}()
}

func (p *Prometheus) HandlerFunc() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == p.MetricsPath {
			c.Next()
			return
		}
		start := time.Now()
		requestSize := approximateRequestSize(c.Request)

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		url := p.URLLabelFn(c)
		ref := c.Request.Header.Get(RefererKey)

		p.reqDur.WithLabelValues(status, c.Request.Method, url, ref).Observe(MillisecondsSince(start))
		p.reqCnt.WithLabelValues(status, c.Request.Method, url, ref).Inc()
		p.reqSz.WithLabelValues(status, c.Request.Method, url, ref).Observe(float64(requestSize))
		p.resSz.WithLabelValues(status, c.Request.Method, url, ref).Observe(float64(c.Writer.Size()))
	}
}

func approximateRequestSize(r *http.Request) int {
	s := len(r.Method) + len(r.Proto)
	if r.URL != nil {
		s += len(r.URL.String())
	}
	for name, values := range r.Header {
		s += len(name)
		for _, v := range values {
			s += len(v)
		}
	}
	s += len(r.Host)
	if r.ContentLength > 0 {
		s += int(r.ContentLength)
	}
	return s
}
