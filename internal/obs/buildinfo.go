package obs

import (
	"fmt"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Build metadata, overridden with -ldflags at release time.
var (
	Version = "dev"
	Commit  = "none"
)

var startedAt = time.Now()

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string    `json:"version"`
	Commit    string    `json:"commit"`
	GoVersion string    `json:"go_version"`
	Platform  string    `json:"platform"`
	StartedAt time.Time `json:"started_at"`
}

// Build returns metadata for the current process.
func Build() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		StartedAt: startedAt.UTC(),
	}
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("accounts %s (commit %s, %s %s)", b.Version, b.Commit, b.GoVersion, b.Platform)
}

// buildCollectors exposes accounts_build_info{version,commit,go_version} = 1
// and the process start time. Labels are fixed when Init registers them.
func buildCollectors() []prometheus.Collector {
	info := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "accounts_build_info",
		Help: "Accounts service build information.",
		ConstLabels: prometheus.Labels{
			"version":    Version,
			"commit":     Commit,
			"go_version": runtime.Version(),
		},
	}, func() float64 { return 1 })
	started := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "accounts_start_time_seconds",
		Help: "Unix time the accounts process started.",
	}, func() float64 { return float64(startedAt.Unix()) })
	return []prometheus.Collector{info, started}
}
