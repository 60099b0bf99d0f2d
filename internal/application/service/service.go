package service

import (
	"fmt"
	"sync"

	"github.com/garyjia/barangay-docflow/pkg/utils"

	domainwf "github.com/garyjia/barangay-docflow/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// keyedMutex serializes work per key without blocking unrelated keys
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock acquires the lock for key and returns its release function
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// toValidationError translates struct tag failures into a domain validation error
func toValidationError(err error) error {
	fe, ok := utils.FirstFieldError(err)
	if !ok {
		return fmt.Errorf("validate input: %w", err)
	}

	rule := domainwf.RuleInvalidFormat
	message := fmt.Sprintf("failed %s", fe.Tag)
	switch fe.Tag {
	case "required", "min":
		rule = domainwf.RuleRequired
		message = "must not be empty"
	case "max":
		rule = domainwf.RuleTooLong
		message = fmt.Sprintf("must be at most %s characters", fe.Param)
	case "oneof":
		message = fmt.Sprintf("must be one of: %s", fe.Param)
	}
	return domainwf.NewValidationError(fe.Field, rule, message)
}
