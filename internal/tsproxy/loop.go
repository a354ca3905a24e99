package tsproxy

//
// Event loop
//

import (
	"context"
	"runtime"
	"time"

	"github.com/netshape/tsproxy/internal/config"
	"github.com/netshape/tsproxy/internal/control"
	"github.com/netshape/tsproxy/internal/shaping"
)

const (
	// pollInterval is how long each iteration waits for socket events.
	pollInterval = time.Millisecond

	// idleCheckIterations is how often we check for idleness.
	idleCheckIterations = 1000

	// idleThreshold is the inactivity after which we collect garbage.
	idleThreshold = 5 * time.Second
)

// Run runs the event loop until ctx is done and then closes the session.
func (s *Session) Run(ctx context.Context) error {
	defer s.Close()
	for ctx.Err() == nil {
		if err := s.step(); err != nil {
			return err
		}
	}
	s.logger.Info("exiting...")
	return nil
}

// step runs a single iteration of the event loop.
func (s *Session) step() error {
	if _, err := s.reactor.Poll(pollInterval); err != nil {
		return err
	}
	s.drainRequests()

	flush := s.pendingFlushes > 0
	now := time.Now()
	if s.in.Tick(now, flush) {
		s.lastActivity = now
	}
	if s.out.Tick(now, flush) {
		s.lastActivity = now
	}
	for ; s.pendingFlushes > 0; s.pendingFlushes-- {
		s.output.Println(control.ReplyOK)
	}

	s.iterations++
	if s.iterations > idleCheckIterations {
		s.iterations = 0
		if now.Sub(s.lastActivity) >= idleThreshold {
			s.lastActivity = now
			s.logger.Debug("triggering manual GC")
			runtime.GC()
		}
	}
	return nil
}

// drainRequests applies the pending control requests. Every
// request schedules a flush acknowledged with an OK.
func (s *Session) drainRequests() {
	for {
		select {
		case req, ok := <-s.requests:
			if !ok {
				s.requests = nil
				return
			}
			s.apply(req)
		default:
			return
		}
	}
}

func (s *Session) apply(req control.Request) {
	switch r := req.(type) {
	case *control.SetRTT:
		latency := config.LatencyFromRTT(r.Milliseconds)
		s.in.SetLatency(latency)
		s.out.SetLatency(latency)
		s.logger.Infof("control: latency set to %s per direction", latency)
	case *control.SetInKbps:
		s.in.SetKbps(config.EffectiveKbps(r.Kbps))
		s.logger.Infof("control: inbound bandwidth set to %.1f kbps", r.Kbps)
	case *control.SetOutKbps:
		s.out.SetKbps(config.EffectiveKbps(r.Kbps))
		s.logger.Infof("control: outbound bandwidth set to %.1f kbps", r.Kbps)
	case *control.Flush:
		s.logger.Info("control: flush")
	}
	s.pendingFlushes++
}

// Close closes every connection and the listener, waits for the pending
// lookups, and logs the delivery statistics. It is idempotent and MUST NOT
// be called concurrently with [*Session.Run].
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		for _, id := range s.registry.IDs() {
			s.Fail(id, errShutdown)
		}
		s.listener.close()
		s.cancelLookups()
		s.dispatcher.Wait()
		for _, pipe := range []*shaping.Pipe{s.in, s.out} {
			summary, err := pipe.Stats().Summarize()
			if err != nil {
				s.logger.Infof("pipe %s: nothing delivered", pipe.Direction())
				continue
			}
			s.logger.Infof("pipe %s: %s", pipe.Direction(), summary)
		}
	})
	return nil
}
