package channel

import (
	"sync"
	"time"
)

const (
	activityInterval = 4 * time.Second
	activityJoinWait = 2 * time.Second
)

// Indicator repeats an activity signal on its own timer until stopped.
// Stop waits briefly for the goroutine to finish; a stuck signal
// function is abandoned rather than blocking shutdown.
type Indicator struct {
	signal   func(action string)
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func NewIndicator(signal func(action string)) *Indicator {
	return &Indicator{signal: signal, interval: activityInterval}
}

// Start begins signalling the given action. A running indicator is
// restarted with the new action.
func (i *Indicator) Start(action string) {
	i.Stop()

	i.mu.Lock()
	stop := make(chan struct{})
	done := make(chan struct{})
	i.stop = stop
	i.done = done
	i.mu.Unlock()

	go func() {
		defer close(done)
		i.signal(action)
		ticker := time.NewTicker(i.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				i.signal(action)
			}
		}
	}()
}

func (i *Indicator) Stop() {
	i.mu.Lock()
	stop := i.stop
	done := i.done
	i.stop = nil
	i.done = nil
	i.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	select {
	case <-done:
	case <-time.After(activityJoinWait):
	}
}
