// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"github.com/prometheus/client_golang/prometheus"
)

type counterDesc struct {
	desc *prometheus.Desc
	read func(Snapshot) float64
}

// MetricsCollector exposes Statistics as prometheus counters
type MetricsCollector struct {
	stats    *Statistics
	counters []counterDesc
	avgRTT   *prometheus.Desc
}

// NewMetricsCollector creates a collector for stats labelled with the transport name
func NewMetricsCollector(stats *Statistics, transport string) *MetricsCollector {
	labels := prometheus.Labels{"transport": transport}
	counter := func(name, help string, read func(Snapshot) float64) counterDesc {
		return counterDesc{
			desc: prometheus.NewDesc(prometheus.BuildFQName("bmsctl", "transport", name), help, nil, labels),
			read: read,
		}
	}

	return &MetricsCollector{
		stats: stats,
		counters: []counterDesc{
			counter("requests_total", "Requests submitted.", func(s Snapshot) float64 { return float64(s.Requests) }),
			counter("responses_total", "Requests resolved by a matching frame.", func(s Snapshot) float64 { return float64(s.Responses) }),
			counter("timeouts_total", "Requests that expired without a response.", func(s Snapshot) float64 { return float64(s.Timeouts) }),
			counter("device_errors_total", "Error responses reported by the device.", func(s Snapshot) float64 { return float64(s.DeviceErrors) }),
			counter("send_failures_total", "Transmissions rejected by the link.", func(s Snapshot) float64 { return float64(s.SendFailures) }),
			counter("frames_total", "Validated frames reassembled from the link.", func(s Snapshot) float64 { return float64(s.Frames) }),
			counter("unmatched_frames_total", "Frames dropped for not matching the pending request.", func(s Snapshot) float64 { return float64(s.Unmatched) }),
			counter("integrity_drops_total", "Candidate spans rejected by checksum or marker validation.", func(s Snapshot) float64 { return float64(s.IntegrityDrops) }),
			counter("rx_bytes_total", "Bytes received.", func(s Snapshot) float64 { return float64(s.BytesIn) }),
			counter("tx_bytes_total", "Bytes transmitted.", func(s Snapshot) float64 { return float64(s.BytesOut) }),
		},
		avgRTT: prometheus.NewDesc(
			prometheus.BuildFQName("bmsctl", "transport", "rtt_avg_seconds"),
			"Average round trip of resolved requests.", nil, labels),
	}
}

// Describe implements prometheus.Collector
func (m *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.counters {
		ch <- c.desc
	}
	ch <- m.avgRTT
}

// Collect implements prometheus.Collector
func (m *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	snap := m.stats.Snapshot()
	for _, c := range m.counters {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, c.read(snap))
	}
	ch <- prometheus.MustNewConstMetric(m.avgRTT, prometheus.GaugeValue, snap.AvgRTT.Seconds())
}
