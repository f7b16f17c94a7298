// Package navigation records where the browser should go after an action.
package navigation

import "sync"

// Browsing context targets.
const (
	TargetSelf  = "_self"
	TargetBlank = "_blank"
)

// Effect is one navigation the client must perform.
type Effect struct {
	URL    string `json:"url"`
	Target string `json:"target"`
}

// Navigator opens URLs in a browsing context.
type Navigator interface {
	Navigate(url, target string)
}

// Recorder collects navigations so the HTTP layer can hand them to the
// browser in order.
type Recorder struct {
	mu      sync.Mutex
	effects []Effect
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Navigate(url, target string) {
	if target == "" {
		target = TargetSelf
	}
	r.mu.Lock()
	r.effects = append(r.effects, Effect{URL: url, Target: target})
	r.mu.Unlock()
}

// Effects returns the recorded navigations in the order they happened.
func (r *Recorder) Effects() []Effect {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Effect{}, r.effects...)
}
