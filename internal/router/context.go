package router

import (
	"github.com/webordinary/router/internal/correlator"
	"github.com/webordinary/router/internal/reaper"
)

// CoreContext groups the router, correlator, and reaper behind one
// explicit handle, built once by the composition root and passed down
// to whatever serves requests (HTTP today, possibly other transports
// later) rather than reached via package-level globals.
type CoreContext struct {
	Router     *Router
	Correlator *correlator.Correlator
	Reaper     *reaper.Reaper
}

// NewCoreContext assembles a CoreContext from its three components.
func NewCoreContext(r *Router, c *correlator.Correlator, rp *reaper.Reaper) *CoreContext {
	r.Correlator = c
	return &CoreContext{Router: r, Correlator: c, Reaper: rp}
}
