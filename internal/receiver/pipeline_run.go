/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * This file is part of videoreceiver.
 */
package receiver

import "github.com/go-gst/go-gst/gst"

// pipelineRun holds everything that lives for the duration of one
// start()...stop() cycle. A Receiver has at most one non-nil run at a
// time, matching the data model's "at most one pipeline" invariant.
//
// The tee and its two queues are built once, at start, and live for the
// whole run: attach/detach only ever add or remove the downstream
// terminal elements (decoder+sink, or muxer+filesink) hanging off a
// queue's source pad. The source, tee, and both queues come up together
// before the pipeline ever reaches Streaming.
type pipelineRun struct {
	pipeline *gst.Pipeline
	source   *sourceGraph
	tee      *gst.Element

	decodeQueue *gst.Element
	recordQueue *gst.Element

	// streaming becomes true once a source pad is linked through to the
	// tee: in buildRun for static-pad sources, otherwise from the
	// source's pad-added handler.
	streaming bool

	decoding  *branch
	recording *branch

	// pendingSink is the decoding branch's sink when startDecoding was
	// called before the source exposed a pad.
	pendingSink *gst.Element

	busStop chan struct{}
	busDone chan struct{}

	// stopping becomes true once stop() has posted EOS to the pipeline,
	// so bus EOS is routed to completeStop rather than being escalated as
	// ErrUnexpectedEOS.
	stopping bool
}
