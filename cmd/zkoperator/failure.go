package main

import (
	"context"
	"sync"
)

// subsystemFailure keeps the first error a subsystem stopped with and cancels the shared context.
type subsystemFailure struct {
	mutex  sync.Mutex
	name   string
	err    error
	cancel context.CancelFunc
}

func newSubsystemFailure(cancel context.CancelFunc) *subsystemFailure {
	return &subsystemFailure{cancel: cancel}
}

func (f *subsystemFailure) fail(name string, err error) {
	f.mutex.Lock()
	if f.err == nil {
		f.name = name
		f.err = err
	}
	f.mutex.Unlock()

	f.cancel()
}

// Err returns the first recorded failure, or nil.
func (f *subsystemFailure) Err() (string, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.name, f.err
}
