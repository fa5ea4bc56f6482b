// Package blink toggles the status LED so a plug running the bootstrap
// firmware can be told apart from a stock one.
package blink

import (
	"context"
	"time"

	"github.com/golang/glog"
)

// DefaultPin is the GPIO the status LED hangs off.
const DefaultPin = 2

type Pin interface {
	Set(high bool) error
}

type Task struct {
	Pin      Pin
	Interval time.Duration
}

func New(pin Pin) *Task {
	return &Task{
		Pin:      pin,
		Interval: time.Second,
	}
}

// Run toggles the pin every Interval until ctx is done.
func (t *Task) Run(ctx context.Context) {
	tick := time.NewTicker(t.Interval)
	defer tick.Stop()

	level := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
		level = !level
		if err := t.Pin.Set(level); err != nil {
			glog.Warningf("Could not toggle LED: %v", err)
		}
	}
}
