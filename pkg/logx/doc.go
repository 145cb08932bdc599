// Package logx is a thin structured-logging layer over zerolog.
//
// It exposes a value-type Logger with functional Field helpers and a Service
// that owns the sinks (console, file) and can be re-applied at runtime on
// config reload without invalidating existing Logger values.
package logx
