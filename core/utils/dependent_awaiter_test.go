package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDependentAwaiter_ClosesWhenAllReady(t *testing.T) {
	d := NewDependentAwaiter()
	d.AddDependents(2)

	select {
	case <-d.AwaitDependents():
		t.Fatal("should not be ready yet")
	case <-time.After(10 * time.Millisecond):
	}

	d.DependentReady()
	select {
	case <-d.AwaitDependents():
		t.Fatal("should still not be ready")
	case <-time.After(10 * time.Millisecond):
	}

	d.DependentReady()
	select {
	case <-d.AwaitDependents():
	case <-time.After(time.Second):
		t.Fatal("expected AwaitDependents to unblock")
	}
}

func TestDependentAwaiter_NoDependentsClosesImmediately(t *testing.T) {
	d := NewDependentAwaiter()
	d.AddDependents(0)
	select {
	case <-d.AwaitDependents():
	default:
		t.Fatal("expected an immediately-closed channel with zero dependents")
	}
	assert.NotNil(t, d)
}
