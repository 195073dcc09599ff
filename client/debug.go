package client

import (
	"encoding/json"
	"fmt"
	"runtime"
)

// EnableDebugMode enables per-attempt debug logging and verbose errors.
func (c *Client) EnableDebugMode() {
	c.debugMode.Store(true)
	c.logger.Info("debug mode enabled")
}

// DisableDebugMode disables debug mode.
func (c *Client) DisableDebugMode() {
	c.debugMode.Store(false)
	c.logger.Info("debug mode disabled")
}

// IsDebugMode returns whether debug mode is currently enabled.
func (c *Client) IsDebugMode() bool {
	return c.debugMode.Load()
}

// GetDebugInfo returns a snapshot of client state for debugging.
func (c *Client) GetDebugInfo() map[string]interface{} {
	info := map[string]interface{}{
		"version":   Version,
		"debugMode": c.IsDebugMode(),
		"closed":    c.closed.Load(),
		"healthy":   c.IsHealthy(),
		"hooks":     c.GetHooks(),
	}

	m := c.transport.GetMetrics()
	transportInfo := map[string]interface{}{
		"totalRequests":  m.TotalRequests,
		"totalErrors":    m.TotalErrors,
		"averageLatency": m.AverageLatency.String(),
		"bytesSent":      m.BytesSent,
		"bytesReceived":  m.BytesReceived,
		"operationsSent": m.OperationsSent,
		"inFlight":       m.InFlight,
	}
	if m.LastError != nil {
		transportInfo["lastError"] = m.LastError.Error()
		transportInfo["lastErrorTime"] = m.LastErrorTime.Format("2006-01-02T15:04:05.000Z07:00")
	}
	info["transport"] = transportInfo

	b := c.opts.Batch
	info["options"] = map[string]interface{}{
		"maxOperationsPerRequest": c.opts.MaxOperationsPerRequest,
		"maxOperationsPerChunk":   b.MaxOperationsPerChunk,
		"maxParallelRequests":     b.MaxParallelRequests,
		"maxRetries":              b.MaxRetries,
		"retryDelay":              b.RetryDelay.String(),
		"stopOnFirstError":        b.StopOnFirstError,
		"failureSink":             c.opts.FailureSink != nil,
		"metrics":                 c.opts.Metrics != nil,
	}

	return info
}

// DumpDebugInfoJSON returns debug info as formatted JSON string.
func (c *Client) DumpDebugInfoJSON() string {
	info := c.GetDebugInfo()
	bytes, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": "failed to marshal debug info: %s"}`, err.Error())
	}
	return string(bytes)
}

// captureStackTrace captures the current stack trace for error reporting.
func captureStackTrace() []string {
	const maxDepth = 32
	pcs := make([]uintptr, maxDepth)
	n := runtime.Callers(3, pcs) // Skip captureStackTrace, the error constructor, and runtime.Callers

	frames := make([]string, 0, n)
	callersFrames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := callersFrames.Next()

		// Format: function (file:line)
		frames = append(frames, fmt.Sprintf("%s (%s:%d)",
			frame.Function,
			frame.File,
			frame.Line,
		))

		if !more {
			break
		}
	}

	return frames
}
