package gateway

import (
	"sync"

	"relaygate/logger"
	"relaygate/model"
)

// LegacyConsumer adapts the deprecated in-process broadcast channel to the
// event union. Old backend code pushed loosely shaped maps onto a shared
// channel instead of the bus; this adapter validates them at the same
// boundary as every other ingress and re-delivers locally. Opt-in via
// LEGACY_CONSUMER; new producers use the internal publish endpoint.
type LegacyConsumer struct {
	srv *Server
	ch  chan map[string]interface{}

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewLegacyConsumer(srv *Server, buffer int) *LegacyConsumer {
	if buffer <= 0 {
		buffer = 256
	}
	return &LegacyConsumer{
		srv:    srv,
		ch:     make(chan map[string]interface{}, buffer),
		stopCh: make(chan struct{}),
	}
}

// Source is handed to legacy producers.
func (l *LegacyConsumer) Source() chan<- map[string]interface{} { return l.ch }

// Run drains the channel until Stop. Invalid payloads are dropped with a
// log line; the adapter never mutates registry state for them.
func (l *LegacyConsumer) Run() {
	for {
		select {
		case <-l.stopCh:
			return
		case payload := <-l.ch:
			ev, err := model.FromPayload(payload)
			if err != nil {
				logger.Warnf("[legacy] drop payload: %v", err)
				continue
			}
			l.srv.DeliverFromBus(DefaultChannel, ev)
		}
	}
}

func (l *LegacyConsumer) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}
