/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * This file is part of videoreceiver.
 */

// Package receiver implements the pipeline lifecycle controller: it
// ingests a live video stream from a network source and, on demand,
// decodes it for on-screen rendering and/or remuxes the compressed
// elementary stream into a timestamped container file, while both
// branches can be attached and detached without disturbing the source.
package receiver

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/go-gst/go-gst/gst"
)

// Receiver is the pipeline lifecycle state machine (C4), wired to the
// element factory (C1), branch manager (C2), bus dispatcher (C3), and
// liveness monitor (C5). All of its mutable state is owned by a single
// control-thread goroutine; every public method posts a work item to
// that goroutine, and all but GrabImage wait for it to run, so callers
// never race the pipeline machinery.
type Receiver struct {
	log     *log.Logger
	signals *Signals

	work chan func()
	quit chan struct{}

	state State
	url   string
	timeout time.Duration

	run *pipelineRun

	restartTimer *time.Timer

	// lastFrameTime is written by the video-sink buffer probe on a
	// streaming thread and read by the liveness monitor; it is the one
	// piece of state the control-thread monopoly does not cover.
	lastFrameTime atomic.Int64

	monitorStop chan struct{}
	monitorDone chan struct{}
}

// New creates a Receiver. logger must not be nil; signals may be nil, in
// which case the receiver runs with no observers wired up.
func New(logger *log.Logger, signals *Signals) *Receiver {
	if signals == nil {
		signals = &Signals{}
	}
	r := &Receiver{
		log:     logger,
		signals: signals,
		work:    make(chan func(), 32),
		quit:    make(chan struct{}),
		state:   Idle,
	}
	go r.controlLoop()
	return r
}

// Close stops the control-thread goroutine. Call Stop first if a pipeline
// may still be running; Close does not itself tear one down.
func (r *Receiver) Close() {
	close(r.quit)
}

func (r *Receiver) controlLoop() {
	for {
		select {
		case fn := <-r.work:
			fn()
		case <-r.quit:
			return
		}
	}
}

// postWork enqueues fn to run on the control thread. Safe to call from
// any goroutine, including bus callbacks and pad probes — the two kinds
// of streaming-thread callers the core must never let touch graph state
// directly.
func (r *Receiver) postWork(fn func()) {
	select {
	case r.work <- fn:
	case <-r.quit:
	}
}

// call posts fn to the control thread and blocks until it has run,
// returning whatever error fn produced. Used by every public entry point
// so that, from the caller's perspective, state transitions are
// synchronous.
func (r *Receiver) call(fn func() error) error {
	done := make(chan error, 1)
	r.postWork(func() {
		done <- fn()
	})
	select {
	case err := <-done:
		return err
	case <-r.quit:
		return fmt.Errorf("videoreceiver: receiver closed")
	}
}

// State returns the current global lifecycle state.
func (r *Receiver) State() State {
	result := make(chan State, 1)
	r.postWork(func() { result <- r.state })
	return <-result
}

// Start begins receiving from url, which must match one of the
// recognized scheme prefixes (rtsp, udp, udp265, mpegts, tcp, tsusb).
// timeout is the liveness monitor's stall threshold.
func (r *Receiver) Start(url string, timeout time.Duration) error {
	return r.call(func() error { return r.handleStart(url, timeout) })
}

// Stop begins draining the running pipeline, if any: it sends EOS into
// the pipeline and returns without waiting for the drain. The teardown
// finishes later on the control thread, once EOS or an error reaches the
// bus. Calling Stop when already Idle is a no-op.
func (r *Receiver) Stop() error {
	return r.call(func() error { return r.handleStop() })
}

// StartDecoding attaches the decoding branch, taking ownership of sink.
func (r *Receiver) StartDecoding(sink *gst.Element) error {
	return r.call(func() error { return r.handleStartDecoding(sink) })
}

// StopDecoding detaches the decoding branch.
func (r *Receiver) StopDecoding() error {
	return r.call(func() error { return r.handleStopDecoding() })
}

// StartRecording attaches the recording branch.
func (r *Receiver) StartRecording(path string, format FileFormat) error {
	return r.call(func() error { return r.handleStartRecording(path, format) })
}

// StopRecording detaches the recording branch.
func (r *Receiver) StopRecording() error {
	return r.call(func() error { return r.handleStopRecording() })
}

// GrabImage is reserved for a future single-frame capture feature: it
// fires imageFileChanged with path, but stores nothing and performs no
// capture.
func (r *Receiver) GrabImage(path string) {
	r.postWork(func() {
		r.signals.emitImageFileChanged(path)
	})
}

func (r *Receiver) noteVideoSinkFrame() {
	r.lastFrameTime.Store(time.Now().UnixNano())
}

func (r *Receiver) logf(format string, args ...interface{}) {
	if r.log != nil {
		r.log.Printf(format, args...)
	}
}
