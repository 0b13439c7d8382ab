// Package ratelimit limits how many API requests a single client may make
// within a window.
//
// State lives in process memory and is not shared between replicas. Behind a
// load balancer each replica enforces its own budget, so the effective
// limit is the configured one times the replica count.
package ratelimit
