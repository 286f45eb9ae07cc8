package engine

import (
	"github.com/phichain/phiconsensus/phimath"
)

// Report is a point-in-time snapshot of the engine for operators.
type Report struct {
	InstanceID      string  `json:"instance_id"`
	ChainID         string  `json:"chain_id"`
	Validators      int     `json:"validators"`
	ActiveCount     int     `json:"active_count"`
	TotalStake      int64   `json:"total_stake"`
	AvgWeight       float64 `json:"avg_weight"`
	AvgPerformance  float64 `json:"avg_performance"`
	Collecting      int     `json:"collecting"`
	Finalized       uint64  `json:"finalized"`
	TimedOut        uint64  `json:"timed_out"`
	PendingEvidence int     `json:"pending_evidence"`
	Phi             string  `json:"phi"`
}

// Report builds a snapshot of registry and finality state. Averages cover
// active validators only.
func (e *Engine) Report() *Report {
	active := e.registry.ActiveValidators()

	var totalStake int64
	var sumWeight, sumPerf float64
	for _, v := range active {
		totalStake += v.Stake
		sumWeight += v.Weight
		sumPerf += v.PerformanceScore
	}

	rep := &Report{
		InstanceID:  e.instanceID.String(),
		ChainID:     e.config.ChainID,
		Validators:  e.registry.Size(),
		ActiveCount: len(active),
		TotalStake:  totalStake,
		Phi:         phimath.Phi(e.config.PhiDecimals),
	}
	if len(active) > 0 {
		rep.AvgWeight = sumWeight / float64(len(active))
		rep.AvgPerformance = sumPerf / float64(len(active))
	}

	e.mu.RLock()
	rep.Finalized = e.finalizedCount
	rep.TimedOut = e.timedOutCount
	trackers := make([]*heightTracker, 0, len(e.heights))
	for _, t := range e.heights {
		trackers = append(trackers, t)
	}
	evpool := e.evpool
	e.mu.RUnlock()

	for _, t := range trackers {
		t.mu.Lock()
		if t.state == StateCollecting {
			rep.Collecting++
		}
		t.mu.Unlock()
	}
	rep.PendingEvidence = len(evpool.Pending())
	return rep
}
