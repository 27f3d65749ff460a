package health

import (
	"fmt"
	"time"
)

// pair mirrors store's carrier for a (result, error) pair sent back across
// a channel from DispatchWait, itself grounded on the teacher's
// state/pair.go Pair[V1, V2].
type pair struct {
	v1 any
	v2 error
}

// Dispatch queues fun to run on the checker's owning goroutine (§5). All
// Checker state must only be touched from within a dispatched function.
func (e *Env) Dispatch(fun func(*Checker) error) {
	defer func() {
		if r := recover(); r != nil {
			e.Cancel(fmt.Errorf("panic: %v", r))
		}
	}()
	e.dispatchChannel <- fun
}

// DispatchWait queues fun and blocks until it has run on the owning
// goroutine, returning its result.
func (e *Env) DispatchWait(fun func(*Checker) (any, error)) (any, error) {
	ret := make(chan pair, 1)
	e.dispatchChannel <- func(c *Checker) error {
		res, err := fun(c)
		ret <- pair{res, err}
		return err
	}
	select {
	case res := <-ret:
		return res.v1, res.v2
	case <-e.Context.Done():
		return nil, e.Context.Err()
	}
}

// ScheduleTask dispatches fun once, after delay.
func (e *Env) ScheduleTask(fun func(*Checker) error, delay time.Duration) {
	time.AfterFunc(delay, func() {
		e.Dispatch(fun)
	})
}

func (e *Env) repeatedTask(fun func(*Checker) error, delay time.Duration) {
	for e.Context.Err() == nil {
		e.Dispatch(fun)
		select {
		case <-time.After(delay):
		case <-e.Context.Done():
			return
		}
	}
}

// RepeatTask dispatches fun immediately and then every delay until the
// checker's context is cancelled.
func (e *Env) RepeatTask(fun func(*Checker) error, delay time.Duration) {
	go e.repeatedTask(fun, delay)
}
