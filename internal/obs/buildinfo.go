package obs

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Build identifies the running binary.
type Build struct {
	Version string
	Commit  string
	Started time.Time
}

// Collectors returns a constant info gauge labelled with the build and the Go
// runtime, plus the process start time in unix seconds.
func (b Build) Collectors() []prometheus.Collector {
	info := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "worktrack_build_info",
		Help:        "Always 1; labels describe the running build.",
		ConstLabels: prometheus.Labels{"version": orUnknown(b.Version), "commit": orUnknown(b.Commit), "go": runtime.Version()},
	})
	info.Set(1)
	started := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worktrack_started_at_seconds",
		Help: "Unix time the API process started.",
	})
	started.Set(float64(b.Started.Unix()))
	return []prometheus.Collector{info, started}
}

// PublishBuild registers the build collectors with reg.
func PublishBuild(reg prometheus.Registerer, b Build) error {
	for _, c := range b.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
