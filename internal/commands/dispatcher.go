package commands

import (
	"fmt"
	"sync"

	"github.com/yourusername/lolo-bridge/internal/errors"
	"github.com/yourusername/lolo-bridge/internal/output"
)

// Dispatcher runs parsed invocations against the registry
type Dispatcher struct {
	registry   *Registry
	errHandler *errors.ErrorHandler
	logger     output.Logger

	mu      sync.Mutex
	current Invocation
}

// NewDispatcher creates a new command dispatcher
func NewDispatcher(registry *Registry, errHandler *errors.ErrorHandler, logger output.Logger) *Dispatcher {
	return &Dispatcher{
		registry:   registry,
		errHandler: errHandler,
		logger:     logger,
	}
}

// Dispatch executes inv. It returns handled=false for names nobody
// registered so the caller can fall through to other handling.
func (d *Dispatcher) Dispatch(inv Invocation) (Result, bool) {
	reg, exists := d.registry.Get(inv.Name)
	if !exists {
		return Result{}, false
	}

	target := inv.ReplyTarget()
	if !HasPermission(inv.Level, reg.Level) {
		d.logger.Warning("%s (%s) denied %s%s: requires %s", inv.Nick, inv.Hostmask, inv.Prefix, inv.Name, reg.Level)
		return Result{Message: errors.NewPermissionError(reg.Level).UserMessage, Target: target}, true
	}

	d.setCurrent(inv)
	defer d.setCurrent(Invocation{})

	message, err := d.invoke(reg, target, inv)
	if err != nil {
		d.logger.Error("Error executing command %s%s by %s in %s: %v", inv.Prefix, inv.Name, inv.Hostmask, target, err)
		execErr := errors.NewCommandExecutionError(inv.Prefix, inv.Name, inv.Hostmask, err)
		return Result{Message: d.errHandler.Handle(execErr), Target: target}, true
	}

	return Result{Message: message, Target: target}, true
}

// invoke calls the handler and turns a panic into an error
func (d *Dispatcher) invoke(reg Registration, target string, inv Invocation) (message string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return reg.Handler(target, inv.Nick, inv.Args)
}

// Caller returns the invocation currently being dispatched. Built-ins use it
// to read the caller's level and hostmask, which the handler signature
// does not carry.
func (d *Dispatcher) Caller() Invocation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

func (d *Dispatcher) setCurrent(inv Invocation) {
	d.mu.Lock()
	d.current = inv
	d.mu.Unlock()
}

// Registry returns the command registry
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}
