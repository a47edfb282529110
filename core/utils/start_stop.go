package utils

import (
	"fmt"
	"sync/atomic"
)

const (
	lifecycleUnstarted int32 = iota
	lifecycleStarted
	lifecycleStopped
)

// StartStopOnce guards a service's Start/Close against being invoked more
// than once.
type StartStopOnce struct {
	state int32
}

// StartOnce runs fn if this is the first call to StartOnce; subsequent
// calls return an error naming the service.
func (s *StartStopOnce) StartOnce(name string, fn func() error) error {
	if !atomic.CompareAndSwapInt32(&s.state, lifecycleUnstarted, lifecycleStarted) {
		return fmt.Errorf("%s has already been started once; cannot start again", name)
	}
	return fn()
}

// StopOnce runs fn if the service was started and not yet stopped.
func (s *StartStopOnce) StopOnce(name string, fn func() error) error {
	if !atomic.CompareAndSwapInt32(&s.state, lifecycleStarted, lifecycleStopped) {
		return fmt.Errorf("%s has not been started, or has already been stopped", name)
	}
	return fn()
}

// Started reports whether StartOnce has successfully run.
func (s *StartStopOnce) Started() bool {
	return atomic.LoadInt32(&s.state) == lifecycleStarted
}
