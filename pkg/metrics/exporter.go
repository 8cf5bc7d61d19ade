package metrics

import (
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/common/expfmt"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/Sumatoshi-tech/embedtree/pkg/multimap"
)

// ErrDuplicateArena is returned when two arenas are registered under one name.
var ErrDuplicateArena = errors.New("arena already registered")

// Exporter owns a Prometheus registry fed by arena collectors and by an OTel
// reader. Each Exporter has an independent registry, so several can coexist.
type Exporter struct {
	registry *prometheus.Registry
	reader   *promexporter.Exporter
}

// NewExporter creates an exporter with Go runtime collectors registered.
func NewExporter() (*Exporter, error) {
	registry := prometheus.NewRegistry()

	reader, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	err = registry.Register(collectors.NewGoCollector())
	if err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}

	return &Exporter{registry: registry, reader: reader}, nil
}

// Reader returns the OTel reader to attach to a meter provider, for example
// with observability.WithMetricReader.
func (e *Exporter) Reader() sdkmetric.Reader {
	return e.reader
}

// Registry returns the underlying Prometheus registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// RegisterArenas adds an ArenaCollector for arenas labelled with name.
func (e *Exporter) RegisterArenas(name string, arenas *multimap.ShardedArena) error {
	err := e.registry.Register(NewArenaCollector(name, arenas))
	if err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return fmt.Errorf("%w: %s", ErrDuplicateArena, name)
		}

		return fmt.Errorf("register arena %s: %w", name, err)
	}

	return nil
}

// WriteText gathers every registered metric and writes it to w in the
// Prometheus text exposition format.
func (e *Exporter) WriteText(w io.Writer) error {
	families, err := e.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	encoder := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))

	for _, family := range families {
		err = encoder.Encode(family)
		if err != nil {
			return fmt.Errorf("encode %s: %w", family.GetName(), err)
		}
	}

	return nil
}
