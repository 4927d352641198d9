/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package metrics wires the engine's command and connection bookkeeping to
// Prometheus. A Collector is optional everywhere it is accepted — callers
// that do not need metrics simply pass nil.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector groups every metric the driver exposes under one registerable
// unit.
type Collector struct {
	CommandsTotal      *prometheus.CounterVec
	CommandDuration    *prometheus.HistogramVec
	ConnectionsActive  prometheus.Gauge
	BytesReceivedTotal prometheus.Counter
	BytesSentTotal     prometheus.Counter
	KeepAliveTotal     prometheus.Counter
}

// New builds a Collector with the driver's fixed metric set, namespaced
// under "goesp".
func New() *Collector {
	return &Collector{
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "goesp",
			Subsystem: "engine",
			Name:      "commands_total",
			Help:      "AT commands completed, labeled by kind and result.",
		}, []string{"kind", "result"}),

		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "goesp",
			Subsystem: "engine",
			Name:      "command_duration_seconds",
			Help:      "Time from a command's first byte written to its terminator or timeout.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),

		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "goesp",
			Subsystem: "conn",
			Name:      "active",
			Help:      "Connection slots currently active.",
		}),

		BytesReceivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "goesp",
			Subsystem: "conn",
			Name:      "bytes_received_total",
			Help:      "Bytes delivered from +IPD payloads across all connections.",
		}),

		BytesSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "goesp",
			Subsystem: "conn",
			Name:      "bytes_sent_total",
			Help:      "Bytes written to the radio on behalf of netconn senders.",
		}),

		KeepAliveTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "goesp",
			Subsystem: "event",
			Name:      "keepalive_total",
			Help:      "Keep-alive ticks dispatched to application handlers.",
		}),
	}
}

// MustRegister registers every metric in the Collector against reg.
func (c *Collector) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		c.CommandsTotal,
		c.CommandDuration,
		c.ConnectionsActive,
		c.BytesReceivedTotal,
		c.BytesSentTotal,
		c.KeepAliveTotal,
	)
}

// ObserveCommand records one completed command's outcome and latency.
func (c *Collector) ObserveCommand(kind, result string, d time.Duration) {
	if c == nil {
		return
	}

	c.CommandsTotal.WithLabelValues(kind, result).Inc()
	c.CommandDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// AddConnectionsActive adjusts the active-connection gauge by delta.
func (c *Collector) AddConnectionsActive(delta float64) {
	if c == nil {
		return
	}

	c.ConnectionsActive.Add(delta)
}

// AddBytesReceived increments the received-bytes counter by n.
func (c *Collector) AddBytesReceived(n int) {
	if c == nil {
		return
	}

	c.BytesReceivedTotal.Add(float64(n))
}

// AddBytesSent increments the sent-bytes counter by n.
func (c *Collector) AddBytesSent(n int) {
	if c == nil {
		return
	}

	c.BytesSentTotal.Add(float64(n))
}

// IncKeepAlive increments the keep-alive tick counter.
func (c *Collector) IncKeepAlive() {
	if c == nil {
		return
	}

	c.KeepAliveTotal.Inc()
}
