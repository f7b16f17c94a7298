// Package indicator keeps the "Cart (N)" link text in sync with the cart.
package indicator

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cswank/store/internal/domain"
)

// DefaultRevert is how long the link stays highlighted after an update.
const DefaultRevert = 600 * time.Millisecond

// State is what the cart link currently shows.
type State struct {
	Text     string `json:"text"`
	Count    int    `json:"count"`
	Animated bool   `json:"animated"`
}

// Label returns the link text for n items.
func Label(n int) string {
	if n > 0 {
		return fmt.Sprintf("Cart (%d)", n)
	}
	return "Cart"
}

// Indicator is the cart link of one page. It is safe for concurrent use;
// the revert timer fires on its own goroutine.
type Indicator struct {
	mu       sync.Mutex
	state    State
	revert   time.Duration
	timer    *time.Timer
	gen      uint64
	onChange []func(State)
}

// New creates an indicator showing "Cart". A non-positive revert delay uses
// DefaultRevert.
func New(revert time.Duration) *Indicator {
	if revert <= 0 {
		revert = DefaultRevert
	}
	return &Indicator{state: State{Text: Label(0)}, revert: revert}
}

// OnChange registers fn to be called with every new state, outside the lock.
func (i *Indicator) OnChange(fn func(State)) {
	i.mu.Lock()
	i.onChange = append(i.onChange, fn)
	i.mu.Unlock()
}

// Refresh shows the item count of doc. With animate set and a non-empty
// cart the link is highlighted and reverts after the configured delay; a
// later animated refresh restarts the delay.
func (i *Indicator) Refresh(doc *domain.Document, animate bool) {
	n := doc.ItemCount()

	i.mu.Lock()
	i.gen++
	i.state = State{Text: Label(n), Count: n}
	if animate && n > 0 {
		i.state.Animated = true
		i.schedule(i.gen)
	} else {
		i.stopTimer()
	}
	state, observers := i.state, i.observers()
	i.mu.Unlock()

	notify(observers, state)
}

// Reset shows "Cart" immediately and cancels any pending revert.
func (i *Indicator) Reset() {
	i.mu.Lock()
	i.gen++
	i.stopTimer()
	i.state = State{Text: Label(0)}
	state, observers := i.state, i.observers()
	i.mu.Unlock()

	notify(observers, state)
}

// State returns the current state.
func (i *Indicator) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Stop cancels a pending revert, leaving the text as is.
func (i *Indicator) Stop() {
	i.mu.Lock()
	i.gen++
	i.stopTimer()
	i.mu.Unlock()
}

// schedule must be called with i.mu held.
func (i *Indicator) schedule(gen uint64) {
	i.stopTimer()
	i.timer = time.AfterFunc(i.revert, func() {
		i.mu.Lock()
		if gen != i.gen {
			i.mu.Unlock()
			return
		}
		i.state.Animated = false
		i.timer = nil
		state, observers := i.state, i.observers()
		i.mu.Unlock()

		notify(observers, state)
	})
}

func (i *Indicator) stopTimer() {
	if i.timer != nil {
		i.timer.Stop()
		i.timer = nil
	}
}

func (i *Indicator) observers() []func(State) {
	return slices.Clone(i.onChange)
}

func notify(observers []func(State), s State) {
	for _, fn := range observers {
		fn(s)
	}
}
