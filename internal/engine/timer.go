package engine

import (
	"context"
	"sync"

	"github.com/upl-platform/exam-portal/internal/model"
)

// countdown is the ticker goroutine bound to one session.
type countdown struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Stop asks the goroutine to exit. It does not wait.
func (c *countdown) Stop() {
	c.once.Do(func() { close(c.stop) })
}

// Wait blocks until the goroutine has exited or ctx is done.
func (c *countdown) Wait(ctx context.Context) {
	select {
	case <-c.done:
	case <-ctx.Done():
	}
}

func (e *Engine) startTimerLocked() {
	c := &countdown{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	ticks, release := e.newTicker(e.tickInterval)
	e.timer = c

	go func() {
		defer close(c.done)
		defer release()
		for {
			select {
			case <-c.stop:
				return
			case <-ticks:
				if finished := e.tick(c); finished {
					return
				}
			}
		}
	}()
}

func (e *Engine) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// Tick advances the active session by one step, as the timer does. When
// the remaining time runs out the session is submitted with the timer
// trigger before Tick returns.
func (e *Engine) Tick() {
	e.tick(nil)
}

// tick returns true when owner should stop ticking. A nil owner skips the
// generation check.
func (e *Engine) tick(owner *countdown) bool {
	e.mu.Lock()
	if owner != nil && owner != e.timer {
		e.mu.Unlock()
		return true
	}
	if e.exam == nil || !e.started || e.submitting {
		e.mu.Unlock()
		return owner != nil
	}

	expired := e.remaining <= 1
	if expired {
		e.remaining = 0
	} else {
		e.remaining--
	}
	ev := Event{
		Type:      EventTick,
		SessionID: e.sessionID,
		ExamID:    e.exam.ID,
		Remaining: e.remaining,
	}

	var pending *pendingSubmit
	if expired {
		pending = e.beginSubmitLocked(model.SubmitTriggerTimer)
	}
	e.mu.Unlock()

	e.emit(ev)
	if pending != nil {
		e.log.Info().Str("exam_id", ev.ExamID).Msg("Time is up, submitting")
		_, _ = e.finishSubmit(e.baseCtx, pending)
	}
	return expired
}
