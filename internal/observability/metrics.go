// Package observability exposes Prometheus metrics and OpenTelemetry
// tracing for the simulation.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talgya/gridcity/internal/engine"
)

// SimCollector bundles the simulation's Prometheus metrics. It satisfies
// engine.Observer so the tick loop can report timings directly.
type SimCollector struct {
	gatherer prometheus.Gatherer

	Ticks         prometheus.Counter
	TickDuration  prometheus.Histogram
	StageDuration *prometheus.HistogramVec

	Population       prometheus.Gauge
	Treasury         prometheus.Gauge
	ElectricityPrice prometheus.Gauge
	PoweredCells     prometheus.Gauge
}

var _ engine.Observer = (*SimCollector)(nil)

// NewSimCollector registers the simulation metrics against reg,
// defaulting to the global Prometheus registry when nil. Registering
// twice against the same registry reuses the existing collectors.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	ticks, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gridcity_ticks_total",
		Help: "Total number of simulation ticks completed.",
	}), "gridcity_ticks_total")
	if err != nil {
		return nil, err
	}

	tickDur, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridcity_tick_duration_seconds",
		Help:    "Wall time of one full simulation tick.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}), "gridcity_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	stageDur, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gridcity_stage_duration_seconds",
		Help:    "Wall time spent in each schedule stage per system run.",
		Buckets: []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	}, []string{"stage"}), "gridcity_stage_duration_seconds")
	if err != nil {
		return nil, err
	}

	population, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gridcity_population",
		Help: "Current number of citizens.",
	}), "gridcity_population")
	if err != nil {
		return nil, err
	}
	treasury, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gridcity_treasury",
		Help: "City treasury in dollars.",
	}), "gridcity_treasury")
	if err != nil {
		return nil, err
	}
	price, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gridcity_electricity_price",
		Help: "Clearing electricity price per MWh from the last dispatch.",
	}), "gridcity_electricity_price")
	if err != nil {
		return nil, err
	}
	powered, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gridcity_powered_cells",
		Help: "Grid cells with power after the blackout mask.",
	}), "gridcity_powered_cells")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:         gatherer,
		Ticks:            ticks,
		TickDuration:     tickDur,
		StageDuration:    stageDur,
		Population:       population,
		Treasury:         treasury,
		ElectricityPrice: price,
		PoweredCells:     powered,
	}, nil
}

// ObserveTick counts a finished tick and its duration.
func (c *SimCollector) ObserveTick(_ uint64, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Ticks.Inc()
	c.TickDuration.Observe(elapsed.Seconds())
}

// ObserveSystem times one system run under its stage label.
func (c *SimCollector) ObserveSystem(stage engine.Stage, _ string) func() {
	if c == nil {
		return func() {}
	}
	start := time.Now()
	obs := c.StageDuration.WithLabelValues(stage.String())
	return func() { obs.Observe(time.Since(start).Seconds()) }
}

// Record copies the city gauges from sim. Call it with the engine lock
// held, for example from an OnTick hook.
func (c *SimCollector) Record(sim *engine.Simulation) {
	if c == nil {
		return
	}
	c.Population.Set(float64(sim.Stats.Population))
	c.Treasury.Set(sim.Budget.Treasury)
	c.ElectricityPrice.Set(float64(sim.Dispatch().ElectricityPrice))
	c.PoweredCells.Set(float64(sim.Stats.PoweredCells))
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
