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

type branchKind int

const (
	decodingBranch branchKind = iota
	recordingBranch
)

// branch is the terminal chain attached downstream of one of the
// pipeline's two permanent tee queues. Only the control-thread owning
// statemachine.go may advance a branch's state field.
type branch struct {
	kind  branchKind
	state BranchState

	// decoding branch fields
	decoder *decoderGraph
	sink    *gst.Element

	// recording branch fields
	recorder *gst.Bin
	path     string
	format   FileFormat

	// detachTimer bounds BranchDetaching; see detachBranch.
	detachTimer *time.Timer
}

func (b *branch) kindName() string {
	if b.kind == decodingBranch {
		return "decoding"
	}
	return "recording"
}

func (b *branch) queue(run *pipelineRun) *gst.Element {
	if b.kind == decodingBranch {
		return run.decodeQueue
	}
	return run.recordQueue
}

// attachDecoding implements C2's attachDecoding(pipeline, sink). The sink
// is retained and linking deferred when the pipeline has no source pad yet
// (run.streaming == false); calling again while a decoder is already
// present is a no-op.
func (r *Receiver) attachDecoding(run *pipelineRun, sink *gst.Element) error {
	if run.decoding != nil && run.decoding.state != BranchAbsent {
		return nil // already attached: no-op
	}

	b := &branch{kind: decodingBranch, state: BranchAttaching, sink: sink}
	run.decoding = b

	sinkPad := sink.GetStaticPad("sink")
	if sinkPad != nil {
		sinkPad.AddProbe(gst.PadProbeTypeBuffer, func(pad *gst.Pad, info *gst.PadProbeInfo) gst.PadProbeReturn {
			r.noteVideoSinkFrame()
			return gst.PadProbeOK
		})
	}

	if !run.streaming {
		// No source pad has appeared yet; retained and linked once it
		// does (see handleSourcePadAdded in statemachine.go).
		return nil
	}

	return r.attachDecoderToQueue(run, b)
}

// attachDecoderToQueue queries the decode queue's source caps, builds the
// decoder from them, adds it to the pipeline, syncs state, and links
// queue -> decoder. Called either immediately by attachDecoding (if the
// source is already streaming) or once the source pad appears.
func (r *Receiver) attachDecoderToQueue(run *pipelineRun, b *branch) error {
	queueSrc := run.decodeQueue.GetStaticPad("src")
	caps := queueSrc.GetCurrentCaps()

	dec, err := buildDecoder(caps, b.sink)
	if err != nil {
		return err
	}
	b.decoder = dec

	if err := run.pipeline.Add(dec.bin.Element); err != nil {
		return wrapBuild("decoder bin add", err)
	}
	if err := dec.bin.Element.SyncStateWithParent(); err != nil {
		return wrapBuild("decoder bin sync state", err)
	}
	if err := run.decodeQueue.Link(dec.bin.Element); err != nil {
		return wrapBuild("queue->decoder link", err)
	}

	dec.bin.Element.Connect("pad-added", func(self *gst.Element, pad *gst.Pad) {
		r.postWork(func() {
			r.handleDecoderPadAdded(run, b, pad)
		})
	})

	return nil
}

// handleDecoderPadAdded finishes attaching the decoding branch once the
// auto-plugged decoder exposes its output pad: add the sink, sync, link,
// and report video size from the pad's negotiated caps.
func (r *Receiver) handleDecoderPadAdded(run *pipelineRun, b *branch, pad *gst.Pad) {
	if b.state == BranchDetaching || b.state == BranchAbsent {
		return // stop() or stopDecoding() already superseded this attach
	}

	if err := run.pipeline.Add(b.sink); err != nil {
		r.handleFatal(wrapBuild("video sink add", err))
		return
	}
	if err := b.sink.SyncStateWithParent(); err != nil {
		r.handleFatal(wrapBuild("video sink sync state", err))
		return
	}
	sinkPad := b.sink.GetStaticPad("sink")
	if link := pad.Link(sinkPad); link != gst.PadLinkOK {
		r.handleFatal(wrapBuild("decoder->sink link", fmt.Errorf("%s", link.String())))
		return
	}

	if caps := pad.GetCurrentCaps(); caps != nil {
		if w, h, ok := videoSizeFromCaps(caps); ok {
			r.signals.emitVideoSizeChanged(VideoSize{Width: w, Height: h})
		}
	}

	b.state = BranchActive
	r.signals.emitDecodingChanged(true)
}

// attachRecording implements C2's attachRecording(pipeline, path, format).
func (r *Receiver) attachRecording(run *pipelineRun, path string, format FileFormat) error {
	if run.recording != nil && run.recording.state != BranchAbsent {
		return nil // already attached: no-op
	}

	recorderBin, err := buildFileSink(path, format)
	if err != nil {
		return err
	}

	b := &branch{kind: recordingBranch, state: BranchAttaching, recorder: recorderBin, path: path, format: format}
	run.recording = b

	if err := run.pipeline.Add(recorderBin.Element); err != nil {
		run.recording = nil
		return wrapBuild("recorder bin add", err)
	}
	if err := run.recordQueue.Link(recorderBin.Element); err != nil {
		_ = run.pipeline.Remove(recorderBin.Element)
		run.recording = nil
		return wrapBuild("queue->recorder link", err)
	}
	if err := recorderBin.Element.SyncStateWithParent(); err != nil {
		_ = run.pipeline.Remove(recorderBin.Element)
		run.recording = nil
		return wrapBuild("recorder bin sync state", err)
	}

	installKeyframeDropProbe(run.recordQueue.GetStaticPad("src"), r, b)

	b.state = BranchActive
	r.signals.emitRecordingChanged(true)
	r.signals.emitVideoFileChanged(path)
	return nil
}

// installKeyframeDropProbe drops every delta-unit buffer on the recorder
// queue's source pad; on the first non-delta buffer it offsets the pad so
// the recording begins at presentation-time zero, then removes itself.
// Verbatim from VideoReceiver::_keyframeWatch.
func installKeyframeDropProbe(pad *gst.Pad, r *Receiver, b *branch) {
	if pad == nil {
		return
	}
	var probeID uint64
	probeID = pad.AddProbe(gst.PadProbeTypeBuffer, func(p *gst.Pad, info *gst.PadProbeInfo) gst.PadProbeReturn {
		buf := info.GetBuffer()
		if buf == nil {
			return gst.PadProbeOK
		}
		if buf.HasFlags(gst.BufferFlagDeltaUnit) {
			return gst.PadProbeDrop
		}
		p.SetOffset(-int64(buf.PresentationTimestamp()))
		p.RemoveProbe(probeID)
		r.postWork(func() {
			r.signals.emitGotFirstRecordingKeyFrame()
		})
		return gst.PadProbeOK
	})
}

// detachBranch implements C2's detachBranch(queue): installs an idle probe
// that, once firing (the link is momentarily data-free), atomically
// unlinks queue->downstream and injects EOS into the downstream sink pad,
// then removes itself. A branch may only be detached from Active; calls
// in any other state are no-ops.
func (r *Receiver) detachBranch(run *pipelineRun, b *branch) {
	if b == nil || b.state != BranchActive {
		return
	}
	b.state = BranchDetaching

	srcPad := b.queue(run).GetStaticPad("src")
	var probeID uint64
	probeID = srcPad.AddProbe(gst.PadProbeTypeIdle, func(pad *gst.Pad, info *gst.PadProbeInfo) gst.PadProbeReturn {
		peer := pad.GetPeer()
		pad.Unlink(peer)
		if peer != nil {
			peer.SendEvent(gst.NewEventEOS())
		}
		pad.RemoveProbe(probeID)
		return gst.PadProbeRemove
	})

	// The idle probe firing only guarantees the unlink; the matching
	// GstBinForwarded EOS that lets demolishBranch run is a separate bus
	// message that might never arrive (a stuck downstream element, a
	// dropped forward). Bound the wait so a detach can't hang forever.
	b.detachTimer = time.AfterFunc(detachTimeout, func() {
		r.postWork(func() {
			r.handleBranchDetachTimeout(run, b)
		})
	})
}

func cancelDetachTimer(b *branch) {
	if b != nil && b.detachTimer != nil {
		b.detachTimer.Stop()
		b.detachTimer = nil
	}
}

// demolishBranch implements C2's demolishBranch(branch): removes the
// downstream elements from the pipeline, nulls them, and releases them.
// Only called after the branch's EOS has been observed on the bus. The
// queue itself is untouched — it remains linked to the tee for the life
// of the run, ready for the next attach.
func (r *Receiver) demolishBranch(run *pipelineRun, b *branch) {
	if b == nil {
		return
	}
	cancelDetachTimer(b)
	b.state = BranchAbsent

	switch b.kind {
	case decodingBranch:
		if b.decoder != nil {
			_ = b.decoder.bin.Element.SetState(gst.StateNull)
			_ = run.pipeline.Remove(b.decoder.bin.Element)
			b.decoder = nil
		}
		if b.sink != nil {
			_ = b.sink.SetState(gst.StateNull)
			_ = run.pipeline.Remove(b.sink)
			b.sink = nil
		}
		r.signals.emitDecodingChanged(false)
		run.decoding = nil
	case recordingBranch:
		if b.recorder != nil {
			_ = b.recorder.Element.SetState(gst.StateNull)
			_ = run.pipeline.Remove(b.recorder.Element)
			b.recorder = nil
		}
		r.signals.emitRecordingChanged(false)
		run.recording = nil
	}
}

func videoSizeFromCaps(caps *gst.Caps) (int, int, bool) {
	s := caps.GetStructureAt(0)
	if s == nil {
		return 0, 0, false
	}
	w, werr := s.GetValue("width")
	h, herr := s.GetValue("height")
	if werr != nil || herr != nil {
		return 0, 0, false
	}
	wi, ok1 := w.(int)
	hi, ok2 := h.(int)
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	return wi, hi, true
}
