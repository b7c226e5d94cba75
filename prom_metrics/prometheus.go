package prom_metrics

import (
	"net/http"

	"github.com/al-kimmel-serj/media-bus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prom implements bus.Metrics on top of a dedicated prometheus registry.
type Prom struct {
	reg *prometheus.Registry

	Members        prometheus.Gauge
	DeliveredTotal *prometheus.CounterVec
	FailuresTotal  *prometheus.CounterVec
	Fanout         prometheus.Histogram
}

func New() *Prom {
	reg := prometheus.NewRegistry()
	p := &Prom{
		reg: reg,
		Members: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bus_members",
			Help: "Number of registered bus members",
		}),
		DeliveredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bus_messages_delivered_total",
			Help: "Messages accepted into a member mailbox",
		}, []string{"kind"}),
		FailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bus_delivery_failures_total",
			Help: "Deliveries that failed, by reason",
		}, []string{"reason"}),
		Fanout: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bus_broadcast_fanout",
			Help:    "Subscribers reached per broadcast",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}),
	}
	reg.MustRegister(p.Members, p.DeliveredTotal, p.FailuresTotal, p.Fanout)
	return p
}

func (p *Prom) Handler() http.Handler { return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{}) }

func (p *Prom) Registry() *prometheus.Registry { return p.reg }

func (p *Prom) MemberRegistered(bus.Name)   { p.Members.Inc() }
func (p *Prom) MemberUnregistered(bus.Name) { p.Members.Dec() }

func (p *Prom) Delivered(kind bus.PayloadKind) {
	p.DeliveredTotal.WithLabelValues(kind.String()).Inc()
}

func (p *Prom) DeliveryFailed(reason string) {
	p.FailuresTotal.WithLabelValues(reason).Inc()
}

func (p *Prom) Broadcast(fanout int) {
	p.Fanout.Observe(float64(fanout))
}
