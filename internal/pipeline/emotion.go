package pipeline

import "sync"

// EmotionState holds the last-observed discrete emotion label for the user
// (e.g. "CALM", "HAPPY"). An external perception signal sets it; the
// completion streamer reads it once per utterance to color the reply.
//
// Safe for concurrent use.
type EmotionState struct {
	mu    sync.RWMutex
	label string
}

// Set records the latest observed label. Empty clears the state.
func (e *EmotionState) Set(label string) {
	e.mu.Lock()
	e.label = label
	e.mu.Unlock()
}

// Current returns the last observed label, or "" when none was observed.
func (e *EmotionState) Current() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.label
}
