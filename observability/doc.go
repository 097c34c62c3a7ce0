// Package observability provides an OpenTelemetry metrics extension for
// Faktory workers and producers. The MetricsExtension implements the job
// hooks of package ext to count pushes, starts, completions and failures
// by jobtype.
//
// For per-execution tracing and duration histograms, see the middleware
// package: middleware.Tracing and middleware.Metrics.
package observability
