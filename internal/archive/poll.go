package archive

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultPollInterval = time.Second
	DefaultMaxPolls     = 30
)

type CopyState int

const (
	StatePending CopyState = iota
	StateSucceeded
	StateFailed
	StateTimedOut
)

func (s CopyState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed out"
	}
	return fmt.Sprintf("CopyState(%d)", int(s))
}

func (s CopyState) Terminal() bool {
	return s != StatePending
}

// Next is the copy state transition for the polls-th status read. Terminal
// states never change; a pending read at the poll ceiling is a timeout.
func Next(s CopyState, status CopyStatus, polls, maxPolls int) CopyState {
	if s.Terminal() {
		return s
	}
	switch status {
	case CopySuccess:
		return StateSucceeded
	case CopyPending:
		if polls >= maxPolls {
			return StateTimedOut
		}
		return StatePending
	default:
		return StateFailed
	}
}

type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

var SystemClock Clock = systemClock{}

type Poller struct {
	Interval time.Duration
	MaxPolls int
	Clock    Clock
}

func NewPoller(interval time.Duration, maxPolls int) Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPolls
	}
	return Poller{
		Interval: interval,
		MaxPolls: maxPolls,
		Clock:    SystemClock,
	}
}

type PollResult struct {
	State  CopyState
	Status CopyStatus
	Polls  int
}

// Wait reads the copy status until it leaves pending or MaxPolls reads
// have been made. It sends nothing to the backend when it gives up.
func (p Poller) Wait(ctx context.Context, b Backend, h CopyHandle) (PollResult, error) {
	clock := p.Clock
	if clock == nil {
		clock = SystemClock
	}
	res := PollResult{State: StatePending, Status: CopyPending}
	for !res.State.Terminal() {
		status, err := b.CopyStatus(ctx, h)
		res.Polls++
		if err != nil {
			return res, fmt.Errorf("failed to read copy status of %s: %w", h.Dest, err)
		}
		res.Status = status
		res.State = Next(res.State, status, res.Polls, p.MaxPolls)
		if res.State.Terminal() {
			break
		}
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-clock.After(p.Interval):
		}
	}
	return res, nil
}
