// Package metrics exports per-run counters in the node-exporter textfile format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"triagebot/internal/domain"
)

// Run summarizes one command invocation.
type Run struct {
	Command           string
	RunID             string
	Stats             domain.RunStats
	ProposalsReceived int
	RulesAdded        int
	Reasons           map[string]int
	Duration          time.Duration
	Finished          time.Time
	Success           bool
}

// Registry builds a fresh registry holding the metrics for r.
//
// Metrics:
//   - triagebot_last_run_info{command,run_id} - always 1
//   - triagebot_last_run_timestamp_seconds{command}
//   - triagebot_last_run_duration_seconds{command}
//   - triagebot_last_run_success{command}
//   - triagebot_tickets{command,outcome} - matched, unmatched, skipped, failed, runbook
//   - triagebot_proposals_received{command}
//   - triagebot_rules_added{command}
//   - triagebot_proposal_reasons{command,reason}
func Registry(r Run) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	cmd := prometheus.Labels{"command": r.Command}

	info := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "triagebot_last_run_info",
		Help: "Identifies the most recent run of a command",
	}, []string{"command", "run_id"})
	info.WithLabelValues(r.Command, r.RunID).Set(1)

	timestamp := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "triagebot_last_run_timestamp_seconds",
		Help:        "Unix time the last run finished",
		ConstLabels: cmd,
	})
	timestamp.Set(float64(r.Finished.Unix()))

	duration := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "triagebot_last_run_duration_seconds",
		Help:        "Wall time of the last run",
		ConstLabels: cmd,
	})
	duration.Set(r.Duration.Seconds())

	success := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "triagebot_last_run_success",
		Help:        "1 when the last run completed without error",
		ConstLabels: cmd,
	})
	if r.Success {
		success.Set(1)
	}

	ticketCounts := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "triagebot_tickets",
		Help:        "Tickets handled by the last run, by outcome",
		ConstLabels: cmd,
	}, []string{"outcome"})
	ticketCounts.WithLabelValues("matched").Set(float64(r.Stats.Matched))
	ticketCounts.WithLabelValues("unmatched").Set(float64(r.Stats.Unmatched))
	ticketCounts.WithLabelValues("skipped").Set(float64(r.Stats.Skipped))
	ticketCounts.WithLabelValues("failed").Set(float64(r.Stats.Failed))
	ticketCounts.WithLabelValues("runbook").Set(float64(r.Stats.RunbookTrue))

	received := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "triagebot_proposals_received",
		Help:        "Rule proposals returned by all sources in the last run",
		ConstLabels: cmd,
	})
	received.Set(float64(r.ProposalsReceived))

	added := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "triagebot_rules_added",
		Help:        "Rules appended to the rule table by the last run",
		ConstLabels: cmd,
	})
	added.Set(float64(r.RulesAdded))

	reasons := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "triagebot_proposal_reasons",
		Help:        "Reason codes recorded by the last proposal run",
		ConstLabels: cmd,
	}, []string{"reason"})
	for reason, n := range r.Reasons {
		reasons.WithLabelValues(reason).Set(float64(n))
	}

	reg.MustRegister(info, timestamp, duration, success, ticketCounts, received, added, reasons)
	return reg
}

// WriteTextfile writes the run's metrics to path atomically.
func WriteTextfile(path string, r Run) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, Registry(r)); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
