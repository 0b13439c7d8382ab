// Package health holds the liveness and readiness probes served on the ops
// port.
//
// Probes compose with [All] and [Any]. [Named] prefixes a failing probe's
// reason with the component it guards, so /readyz says which dependency is
// not ready. [ShutdownGate] fails readiness as soon as a drain begins, ahead
// of the API listener closing.
package health
