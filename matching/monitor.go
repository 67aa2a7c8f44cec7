package matching

import "github.com/poiesic/succession/core"

// RunMonitor provides hooks to observe a matching run.
// Candidates, Rejected and Emitted are called from pool workers and must be
// safe for concurrent use.
type RunMonitor interface {
	Start(runID string, buyers, sellers int)
	AfterPreparation(stats Stats)
	Candidates(buyer *core.Listing, sellers int)
	Rejected(buyer, seller *core.Listing, reason Reason)
	Emitted(match *core.Match)
	Finish(result *Result)
}

// noopMonitor is a no-op implementation of RunMonitor
type noopMonitor struct{}

var _ RunMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _, _ int)              {}
func (n *noopMonitor) AfterPreparation(_ Stats)              {}
func (n *noopMonitor) Candidates(_ *core.Listing, _ int)     {}
func (n *noopMonitor) Rejected(_, _ *core.Listing, _ Reason) {}
func (n *noopMonitor) Emitted(_ *core.Match)                 {}
func (n *noopMonitor) Finish(_ *Result)                      {}
