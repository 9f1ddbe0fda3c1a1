/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * This file is part of videoreceiver.
 */
package receiver

import (
	"fmt"
	"time"

	"github.com/go-gst/go-gst/gst"
)

// handleStart moves Idle/Fault to Starting and then, on success, to
// Streaming: build the source, tee, two permanent queues, and a new
// pipeline, link the tee to both queues, install the bus dispatcher, and
// set the pipeline playing. On any failure, everything built so far is
// released and the receiver returns to Idle.
func (r *Receiver) handleStart(url string, timeout time.Duration) error {
	if r.state != Idle && r.state != Fault {
		return nil // already starting/streaming: no-op
	}

	r.url = url
	r.timeout = timeout
	r.state = Starting

	run, err := r.buildRun(url)
	if err != nil {
		r.state = Idle
		return err
	}
	r.run = run

	if err := run.pipeline.SetState(gst.StatePlaying); err != nil {
		r.teardownRun(run)
		r.run = nil
		r.state = Idle
		return wrapBuild("pipeline set playing", err)
	}

	r.startLivenessMonitor()
	if run.streaming {
		// Static-pad sources were linked to the tee in buildRun; no
		// pad-added event will arrive to move them to Streaming.
		r.state = Streaming
		r.signals.emitStreamingChanged(true)
	}
	return nil
}

func (r *Receiver) buildRun(url string) (*pipelineRun, error) {
	source, err := buildSource(url)
	if err != nil {
		return nil, err
	}

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, wrapBuild("pipeline", err)
	}
	pipeline.SetProperty("message-forward", true)

	tee, err := gst.NewElement("tee")
	if err != nil {
		return nil, wrapBuild("tee", err)
	}
	decodeQueue, err := gst.NewElement("queue")
	if err != nil {
		return nil, wrapBuild("decode queue", err)
	}
	recordQueue, err := gst.NewElement("queue")
	if err != nil {
		return nil, wrapBuild("record queue", err)
	}

	if err := pipeline.AddMany(source.bin.Element, tee, decodeQueue, recordQueue); err != nil {
		return nil, wrapBuild("pipeline assembly", err)
	}

	teeToDecode := tee.GetRequestPad("src_%u")
	if teeToDecode == nil || teeToDecode.Link(decodeQueue.GetStaticPad("sink")) != gst.PadLinkOK {
		return nil, wrapBuild("tee->decode queue link", fmt.Errorf("failed to link tee to decode queue"))
	}
	teeToRecord := tee.GetRequestPad("src_%u")
	if teeToRecord == nil || teeToRecord.Link(recordQueue.GetStaticPad("sink")) != gst.PadLinkOK {
		return nil, wrapBuild("tee->record queue link", fmt.Errorf("failed to link tee to record queue"))
	}

	run := &pipelineRun{
		pipeline:    pipeline,
		source:      source,
		tee:         tee,
		decodeQueue: decodeQueue,
		recordQueue: recordQueue,
		busStop:     make(chan struct{}),
		busDone:     make(chan struct{}),
	}

	// Static-pad sources (udp/udp265/tsusb) link straight through; dynamic
	// sources (rtsp, mpegts, tcp) link once pad-added fires.
	if srcPad := source.bin.GetStaticPad("src"); srcPad != nil {
		if link := srcPad.Link(tee.GetStaticPad("sink")); link != gst.PadLinkOK {
			return nil, wrapBuild("source->tee link", fmt.Errorf("%s", link.String()))
		}
		run.streaming = true
	} else {
		source.bin.Element.Connect("pad-added", func(self *gst.Element, pad *gst.Pad) {
			r.postWork(func() {
				r.handleSourcePadAdded(run, pad)
			})
		})
	}

	go r.runBusLoop(run)

	return run, nil
}

// handleSourcePadAdded fires once the source exposes its dynamic pad:
// link source -> tee, move to Streaming, then, if a video sink was
// pre-supplied while the source had no pad yet, invoke attachDecoding.
// pad is already the source bin's own ghost pad (installDeferredPadGhosting
// added it, which is what raised pad-added), so it is linked as is.
func (r *Receiver) handleSourcePadAdded(run *pipelineRun, pad *gst.Pad) {
	if run.streaming || r.run != run {
		return // a source pad links to the tee exactly once
	}

	if link := pad.Link(run.tee.GetStaticPad("sink")); link != gst.PadLinkOK {
		r.handleFatal(wrapBuild("source->tee link", fmt.Errorf("%s", link.String())))
		return
	}

	run.streaming = true
	wasStreaming := r.state == Streaming
	r.state = Streaming
	if !wasStreaming {
		r.signals.emitStreamingChanged(true)
	}

	if run.pendingSink != nil {
		sink := run.pendingSink
		run.pendingSink = nil
		if err := r.attachDecoding(run, sink); err != nil {
			r.handleFatal(err)
		}
	}
}

// handleStop moves Streaming to Stopping: cancel the liveness monitor
// and any pending restart, then post EOS and wait for it (or an error)
// to arrive on the bus before tearing the pipeline down. Calling Stop
// while already Idle is a no-op.
func (r *Receiver) handleStop() error {
	if r.state == Idle {
		return nil
	}
	run := r.run
	if run == nil {
		r.state = Idle
		return nil
	}
	if run.stopping {
		return nil
	}

	r.state = Stopping
	run.stopping = true
	r.stopLivenessMonitor()
	r.cancelRestart()

	run.pipeline.SendEvent(gst.NewEventEOS())
	return nil
}

// completeStop finishes the teardown started by handleStop once EOS or
// ERROR has arrived on the bus: demolish every still-present branch,
// including one still mid-detach, then null the pipeline.
func (r *Receiver) completeStop(run *pipelineRun) {
	if run.decoding != nil {
		r.demolishBranch(run, run.decoding)
	}
	if run.recording != nil {
		r.demolishBranch(run, run.recording)
	}

	r.teardownRun(run)

	wasStreaming := r.state == Streaming || r.state == Stopping
	if r.run == run {
		r.run = nil
	}
	r.state = Idle
	if wasStreaming {
		r.signals.emitStreamingChanged(false)
	}
}

func (r *Receiver) teardownRun(run *pipelineRun) {
	close(run.busStop)
	_ = run.pipeline.SetState(gst.StateNull)
	<-run.busDone
}

// handleStartDecoding implements the control contract's startDecoding.
// Returns ErrConfig when no pipeline is running; a no-op if the decoding
// branch is already present.
func (r *Receiver) handleStartDecoding(sink *gst.Element) error {
	run := r.run
	if run == nil {
		return fmt.Errorf("%w: no pipeline running", ErrConfig)
	}
	if run.decoding != nil && run.decoding.state != BranchAbsent {
		return nil
	}
	if !run.streaming {
		run.pendingSink = sink
		return nil
	}
	return r.attachDecoding(run, sink)
}

func (r *Receiver) handleStopDecoding() error {
	run := r.run
	if run == nil {
		return nil
	}
	if run.pendingSink != nil {
		run.pendingSink = nil
		return nil
	}
	r.detachBranch(run, run.decoding)
	return nil
}

func (r *Receiver) handleStartRecording(path string, format FileFormat) error {
	run := r.run
	if run == nil {
		return fmt.Errorf("%w: no pipeline running", ErrConfig)
	}
	return r.attachRecording(run, path, format)
}

func (r *Receiver) handleStopRecording() error {
	run := r.run
	if run == nil {
		return nil
	}
	r.detachBranch(run, run.recording)
	return nil
}

// handleFatal implements the PipelineError/UnexpectedEOS policy: stop the
// current run, enter Fault, and schedule a restart after the cooldown.
// If a stop is already draining the run, the error ends that wait just as
// EOS would and the stop completes instead.
func (r *Receiver) handleFatal(err error) {
	r.logf("videoreceiver: fatal: %v", err)
	run := r.run
	if run == nil {
		return
	}
	if run.stopping {
		r.completeStop(run)
		return
	}
	r.state = Fault
	r.stopLivenessMonitor()

	run.stopping = true
	r.teardownRun(run)
	r.run = nil

	r.signals.emitStreamingChanged(false)
	r.scheduleRestart()
}

func (r *Receiver) scheduleRestart() {
	r.signals.emitRestartTimeout()
	url, timeout := r.url, r.timeout
	r.restartTimer = time.AfterFunc(restartCooldown, func() {
		r.postWork(func() {
			if r.state != Fault {
				return
			}
			if err := r.handleStart(url, timeout); err != nil {
				r.logf("videoreceiver: restart failed: %v", err)
				r.state = Fault
				r.scheduleRestart()
			}
		})
	})
}

// handleBranchDetachTimeout fires when a branch's idle-unlink probe ran
// but the matching forwarded EOS never showed up on the bus within
// detachTimeout. There is no pipeline state left to demolish cleanly
// from, so this escalates like any other fatal error: stop, fault,
// schedule a restart.
func (r *Receiver) handleBranchDetachTimeout(run *pipelineRun, b *branch) {
	if r.run != run || b == nil || b.state != BranchDetaching {
		return // resolved already, by EOS or by a stop that tore the run down
	}
	r.handleFatal(fmt.Errorf("%w: %s branch", ErrBranchDetachFailure, b.kindName()))
}

func (r *Receiver) cancelRestart() {
	if r.restartTimer != nil {
		r.restartTimer.Stop()
		r.restartTimer = nil
	}
}
