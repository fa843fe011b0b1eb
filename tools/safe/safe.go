package safe

import "relaygate/logger"

// Go starts a goroutine that recovers from panics, so a misbehaving
// adapter cannot take the whole gateway down.
func Go(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[safe] panic recovered: %v", r)
			}
		}()
		f()
	}()
}
