// Package safety is the regex-based filter pipeline between users and
// the model: prompt-injection and content checks on the way in, leak and
// PII redaction on the way out, plus a sanitizer for log emission. No
// network calls and no ML, so verdicts are deterministic and fast.
package safety

import (
	"sync"
	"time"
)

// Probe rate limiting. Repeated injection attempts within the window
// block the user for the block duration.
const (
	ProbeWindow        = 600 * time.Second
	ProbeThreshold     = 3
	ProbeBlockDuration = 1800 * time.Second
)

// Filter holds the per-user probe tracker. One instance is shared by the
// agent loop and any channel that pre-screens input, so access is
// mutex-guarded.
type Filter struct {
	mu     sync.Mutex
	probes map[string]*probeState
	now    func() time.Time
}

type probeState struct {
	timestamps   []time.Time
	blockedUntil time.Time
}

func New() *Filter {
	return &Filter{
		probes: make(map[string]*probeState),
		now:    time.Now,
	}
}

// isRateLimited reports whether the user is inside a probe block.
func (f *Filter) isRateLimited(userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	ps, ok := f.probes[userID]
	return ok && ps.blockedUntil.After(f.now())
}

// recordProbe registers one injection attempt and reports whether the
// user crossed the threshold and is now blocked.
func (f *Filter) recordProbe(userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	ps, ok := f.probes[userID]
	if !ok {
		ps = &probeState{}
		f.probes[userID] = ps
	}

	kept := ps.timestamps[:0]
	for _, t := range ps.timestamps {
		if now.Sub(t) < ProbeWindow {
			kept = append(kept, t)
		}
	}
	ps.timestamps = append(kept, now)

	if len(ps.timestamps) >= ProbeThreshold {
		ps.blockedUntil = now.Add(ProbeBlockDuration)
		return true
	}
	return false
}

// TruncateInput applies the length cap for the given input kind
// (message, search_query, command_arg). Unknown kinds use the message
// cap. Returns the possibly shortened text and whether it was cut.
func TruncateInput(text, kind string) (string, bool) {
	max, ok := maxInputLengths[kind]
	if !ok {
		max = maxInputLengths["message"]
	}
	if len(text) <= max {
		return text, false
	}
	return text[:max], true
}
