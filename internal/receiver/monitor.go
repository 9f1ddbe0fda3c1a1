/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * This file is part of videoreceiver.
 */
package receiver

import "time"

// startLivenessMonitor implements C5: a 1 Hz poll that, while Streaming,
// compares now-lastFrameTime against the configured timeout and triggers
// a stop+restart when the stream has stalled. The buffer probe that
// feeds lastFrameTime is installed by attachDecoding in branch.go.
func (r *Receiver) startLivenessMonitor() {
	r.lastFrameTime.Store(time.Now().UnixNano())
	r.monitorStop = make(chan struct{})
	r.monitorDone = make(chan struct{})

	stop, done := r.monitorStop, r.monitorDone
	go func() {
		defer close(done)
		ticker := time.NewTicker(defaultPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				r.postWork(r.checkLiveness)
			}
		}
	}()
}

func (r *Receiver) stopLivenessMonitor() {
	if r.monitorStop == nil {
		return
	}
	close(r.monitorStop)
	<-r.monitorDone
	r.monitorStop = nil
	r.monitorDone = nil
}

// checkLiveness runs on the control thread. It implements the
// StallTimeout policy: same as stop, followed by an implicit restart —
// achieved here by stopping into Fault-style handling via handleFatal
// rather than a plain handleStop, so the restart token fires.
func (r *Receiver) checkLiveness() {
	if r.state != Streaming || r.run == nil || r.timeout <= 0 {
		return
	}
	last := time.Unix(0, r.lastFrameTime.Load())
	if time.Since(last) > r.timeout {
		r.logf("videoreceiver: no frames for %s, restarting", r.timeout)
		r.handleFatal(ErrStallTimeout)
	}
}
