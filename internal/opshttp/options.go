package opshttp

import (
	"net/http"

	"github.com/natours-dev/natours/internal/health"
)

const DefaultPort = 9000

type Options struct {
	Port    int
	Metrics http.Handler

	// EnablePprof mounts net/http/pprof under /debug/pprof/. When false the
	// prefix answers 404 so it cannot fall through to another handler.
	EnablePprof bool

	Health    health.Probe
	Readiness health.Probe

	// AllowPublic disables the private-network guard. Tests and local runs
	// behind NAT may need it; production should not.
	AllowPublic bool

	UseRecoverMW bool
	OnPanic      func() // called after a recovered panic, e.g. to bump a counter
}
