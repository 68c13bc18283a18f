package metrics

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Metrics collects usage counters for archive operations
type Metrics struct {
	mu sync.RWMutex

	// Write path metrics
	EntriesAppendedTotal int64
	AppendFailuresTotal  int64
	PayloadBytesWritten  int64

	// Extract metrics
	EntriesExtractedTotal int64
	EntriesSkippedTotal   int64
	ExtractFailuresTotal  int64
	PayloadBytesExtracted int64

	// Remove metrics
	EntriesRemovedTotal int64
	RewritesTotal       int64

	// Header scans
	ScansTotal     int64
	ScanDurationNs int64
	ScannedEntries int64

	// Mounted read path
	ReadCountTotal int64
	ReadBytesTotal int64

	// Object storage transfers, by direction
	TransferBytesTotal map[string]int64
	TransferCountTotal map[string]int64
	TransferDurationNs map[string]int64
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		TransferBytesTotal: make(map[string]int64),
		TransferCountTotal: make(map[string]int64),
		TransferDurationNs: make(map[string]int64),
	}
}

// RecordAppend records one attempted append
func (m *Metrics) RecordAppend(payloadBytes int64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !ok {
		m.AppendFailuresTotal++
		return
	}
	m.EntriesAppendedTotal++
	m.PayloadBytesWritten += payloadBytes
}

// RecordExtract records the outcome of extracting one entry
func (m *Metrics) RecordExtract(payloadBytes int64, skipped bool, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case !ok:
		m.ExtractFailuresTotal++
	case skipped:
		m.EntriesSkippedTotal++
	default:
		m.EntriesExtractedTotal++
		m.PayloadBytesExtracted += payloadBytes
	}
}

// RecordRewrite records a remove-by-rewrite pass
func (m *Metrics) RecordRewrite(removed int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RewritesTotal++
	m.EntriesRemovedTotal += int64(removed)
}

// RecordScan records a full header index rebuild
func (m *Metrics) RecordScan(entries int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ScansTotal++
	m.ScannedEntries += int64(entries)
	m.ScanDurationNs += duration.Nanoseconds()

	log.Debug().
		Int("entries", entries).
		Dur("duration", duration).
		Msg("header scan completed")
}

// RecordRead records a read served from a mounted archive
func (m *Metrics) RecordRead(bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReadCountTotal++
	m.ReadBytesTotal += bytes
}

// RecordTransfer records an object storage upload or download
func (m *Metrics) RecordTransfer(direction string, bytes int64, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TransferBytesTotal[direction] += bytes
	m.TransferCountTotal[direction]++
	m.TransferDurationNs[direction] += duration.Nanoseconds()

	log.Debug().
		Str("direction", direction).
		Int64("bytes", bytes).
		Dur("duration", duration).
		Msg("transfer completed")
}

// Snapshot returns the current counters keyed by metric name
func (m *Metrics) Snapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	metrics := map[string]interface{}{
		"fct_entries_appended_total":  m.EntriesAppendedTotal,
		"fct_append_failures_total":   m.AppendFailuresTotal,
		"fct_payload_bytes_written":   m.PayloadBytesWritten,
		"fct_entries_extracted_total": m.EntriesExtractedTotal,
		"fct_entries_skipped_total":   m.EntriesSkippedTotal,
		"fct_extract_failures_total":  m.ExtractFailuresTotal,
		"fct_payload_bytes_extracted": m.PayloadBytesExtracted,
		"fct_entries_removed_total":   m.EntriesRemovedTotal,
		"fct_rewrites_total":          m.RewritesTotal,
		"fct_scans_total":             m.ScansTotal,
		"fct_scan_seconds_total":      float64(m.ScanDurationNs) / 1e9,
		"fct_read_count_total":        m.ReadCountTotal,
		"fct_read_bytes_total":        m.ReadBytesTotal,
	}

	for direction, bytes := range m.TransferBytesTotal {
		metrics["fct_transfer_bytes_total{direction=\""+direction+"\"}"] = bytes
		metrics["fct_transfer_count_total{direction=\""+direction+"\"}"] = m.TransferCountTotal[direction]
	}

	return metrics
}

// LogSummary logs a summary of current metrics
func (m *Metrics) LogSummary() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	log.Info().
		Int64("appended", m.EntriesAppendedTotal).
		Int64("append_failures", m.AppendFailuresTotal).
		Int64("extracted", m.EntriesExtractedTotal).
		Int64("skipped", m.EntriesSkippedTotal).
		Int64("extract_failures", m.ExtractFailuresTotal).
		Int64("removed", m.EntriesRemovedTotal).
		Int64("bytes_written", m.PayloadBytesWritten).
		Int64("bytes_extracted", m.PayloadBytesExtracted).
		Int64("scans", m.ScansTotal).
		Msg("metrics summary")
}

// Global metrics instance
var GlobalMetrics = NewMetrics()

// Convenience functions for global metrics
func RecordAppend(payloadBytes int64, ok bool) {
	GlobalMetrics.RecordAppend(payloadBytes, ok)
}

func RecordExtract(payloadBytes int64, skipped bool, ok bool) {
	GlobalMetrics.RecordExtract(payloadBytes, skipped, ok)
}

func RecordRewrite(removed int) {
	GlobalMetrics.RecordRewrite(removed)
}

func RecordScan(entries int, duration time.Duration) {
	GlobalMetrics.RecordScan(entries, duration)
}

func RecordRead(bytes int64) {
	GlobalMetrics.RecordRead(bytes)
}

func RecordTransfer(direction string, bytes int64, duration time.Duration) {
	GlobalMetrics.RecordTransfer(direction, bytes, duration)
}

func LogMetricsSummary() {
	GlobalMetrics.LogSummary()
}
