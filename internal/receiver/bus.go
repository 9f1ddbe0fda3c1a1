/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * This file is part of videoreceiver.
 */
package receiver

import (
	"time"

	"github.com/go-gst/go-gst/gst"
)

// busPollInterval bounds how long TimedPop blocks before the loop
// rechecks busStop; it is not a polling rate for message delivery, which
// remains message-driven.
const busPollInterval = 250 * time.Millisecond

// runBusLoop is C3's bus dispatcher: a single handler receiving messages
// synchronously and converting them into calls on the state machine.
// message-forward=true on the pipeline is what makes a child bin's own
// EOS surface here as a GstBinForwarded element message rather than
// being swallowed by the child bin.
func (r *Receiver) runBusLoop(run *pipelineRun) {
	defer close(run.busDone)
	bus := run.pipeline.GetBus()

	for {
		select {
		case <-run.busStop:
			return
		default:
		}

		msg := bus.TimedPop(gst.ClockTime(busPollInterval))
		if msg == nil {
			continue
		}
		r.dispatchBusMessage(run, msg)
	}
}

func (r *Receiver) dispatchBusMessage(run *pipelineRun, msg *gst.Message) {
	switch msg.Type() {
	case gst.MessageError:
		gerr := msg.ParseError()
		r.postWork(func() {
			r.logf("videoreceiver: bus ERROR: %v", gerr.Error())
			r.handleFatal(wrapPipelineError(gerr))
		})

	case gst.MessageEOS:
		r.postWork(func() {
			r.handleBusEOS(run)
		})

	case gst.MessageElement:
		if innerSource, ok := parseForwardedEOS(msg); ok {
			r.postWork(func() {
				r.handleBranchEOS(run, innerSource)
			})
		}

	case gst.MessageStateChanged:
		old, newState := msg.ParseStateChanged()
		r.logf("videoreceiver: pipeline state %s -> %s", old.String(), newState.String())

	default:
		// everything else (TAG, BUFFERING, WARNING, ...) is ignored
	}
}

// handleBusEOS resolves a plain top-level EOS: if a stop is pending it
// completes the teardown, otherwise it is unexpected and escalated to
// handleFatal as ErrUnexpectedEOS.
func (r *Receiver) handleBusEOS(run *pipelineRun) {
	if r.run != run {
		return
	}
	if run.stopping {
		r.completeStop(run)
		return
	}
	r.handleFatal(ErrUnexpectedEOS)
}

// handleBranchEOS resolves a forwarded EOS from a detaching branch. The
// outer GstBinForwarded ELEMENT message's source is always the pipeline
// itself (gst_bin_handle_message re-posts it through the bin currently
// running handle_message, not through the bin that originated it), so
// branch identity can't be read off the outer message. Instead, route by
// which branch is actually mid-detach — mirroring a pair of
// removing-decoder/removing-recorder flags rather than any message
// source string. If both happen to be detaching at once, fall back to
// matching the wrapped message's own source: the recording branch's EOS
// comes from the "recorder" bin, the decoding branch's from its video
// sink, which sits directly in the pipeline (the "decoder" bin holds no
// sink and never posts EOS of its own).
func (r *Receiver) handleBranchEOS(run *pipelineRun, innerSource string) {
	if r.run != run {
		return
	}

	decodingWaiting := run.decoding != nil && run.decoding.state == BranchDetaching
	recordingWaiting := run.recording != nil && run.recording.state == BranchDetaching

	switch {
	case decodingWaiting && !recordingWaiting:
		r.demolishBranch(run, run.decoding)
	case recordingWaiting && !decodingWaiting:
		r.demolishBranch(run, run.recording)
	case decodingWaiting && recordingWaiting:
		switch {
		case run.decoding.sink != nil && innerSource == run.decoding.sink.GetName():
			r.demolishBranch(run, run.decoding)
		case innerSource == "recorder":
			r.demolishBranch(run, run.recording)
		}
	}
}

// parseForwardedEOS inspects an ELEMENT message for the GstBinForwarded
// wrapper the pipeline's message-forward property produces, and reports
// whether the message it wraps is an EOS, plus that inner message's own
// source name (the bin that actually reached end-of-stream).
func parseForwardedEOS(msg *gst.Message) (innerSource string, isForwardedEOS bool) {
	structure := msg.GetStructure()
	if structure == nil || structure.Name() != "GstBinForwarded" {
		return "", false
	}
	innerVal, err := structure.GetValue("message")
	if err != nil {
		return "", false
	}
	inner, ok := innerVal.(*gst.Message)
	if !ok || inner == nil || inner.Type() != gst.MessageEOS {
		return "", false
	}
	return inner.Source(), true
}

type pipelineErr struct{ err error }

func (e *pipelineErr) Error() string { return "videoreceiver: " + e.err.Error() }
func (e *pipelineErr) Unwrap() error { return ErrPipeline }

func wrapPipelineError(gerr *gst.GError) error {
	return &pipelineErr{err: gerr}
}
