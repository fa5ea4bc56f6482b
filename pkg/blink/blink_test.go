package blink

import (
	"context"
	"sync"
	"testing"
	"time"
)

type pin struct {
	mu     sync.Mutex
	levels []bool
}

func (p *pin) Set(high bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.levels = append(p.levels, high)
	return nil
}

func TestToggle(t *testing.T) {
	p := &pin{}
	task := &Task{Pin: p, Interval: time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		task.Run(ctx)
		close(done)
	}()
	for {
		p.mu.Lock()
		n := len(p.levels)
		p.mu.Unlock()
		if n >= 4 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	p.mu.Lock()
	defer p.mu.Unlock()
	for i, l := range p.levels {
		if l != (i%2 == 0) {
			t.Fatalf("levels %v do not alternate", p.levels)
		}
	}
}
