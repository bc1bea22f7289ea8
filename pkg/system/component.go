package system

// Startable is a single method interface for a component that can meaningfully
// be "started"
type Startable interface {
	// Start starts the component, creating any runtime resources (connection
	// pools, broker connections, etc.)
	Start() error
}

// Stoppable is a single method interface for a component that can meaningfully be
// "stopped".
type Stoppable interface {
	// Stop stops the component, cleaning up any open resources.
	Stop() error
}

// StartAll starts each component that implements Startable, in order,
// returning the first error encountered.
func StartAll(components ...interface{}) error {
	for _, c := range components {
		if s, ok := c.(Startable); ok {
			if err := s.Start(); err != nil {
				return err
			}
		}
	}
	return nil
}

// StopAll stops each component that implements Stoppable in reverse order.
// All components are stopped even if one fails; the first error is returned.
func StopAll(components ...interface{}) error {
	var firstErr error
	for i := len(components) - 1; i >= 0; i-- {
		if s, ok := components[i].(Stoppable); ok {
			if err := s.Stop(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
