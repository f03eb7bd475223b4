package controller

import (
	"sync"
	"time"
)

// tickerScheduler is the real-time Scheduler used outside tests.
type tickerScheduler struct{}

// NewScheduler returns a Scheduler backed by real wall-clock timers.
func NewScheduler() Scheduler {
	return tickerScheduler{}
}

func (tickerScheduler) Schedule(interval time.Duration, onTick func()) (cancel func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				onTick()
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

func (tickerScheduler) After(d time.Duration, fn func()) (cancel func()) {
	timer := time.AfterFunc(d, fn)
	return func() { timer.Stop() }
}
