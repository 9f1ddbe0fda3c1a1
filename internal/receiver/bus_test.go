/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * This file is part of videoreceiver.
 */
package receiver

import (
	"testing"
	"time"

	"github.com/go-gst/go-gst/gst"
)

// TestParseForwardedEOS_ReadsInnerSourceNotOuter drives a real
// message-forward=true pipeline with a named child bin to EOS, and
// verifies parseForwardedEOS reports the *inner* message's source (the
// child bin that actually reached end-of-stream) rather than the outer
// GstBinForwarded message's source, which gst_bin_handle_message always
// sets to whichever bin is re-posting — the pipeline itself here, never
// "decoder" or "recorder".
func TestParseForwardedEOS_ReadsInnerSourceNotOuter(t *testing.T) {
	gstAvailable(t)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	pipeline.SetProperty("message-forward", true)

	child, err := gst.NewBin("decoder")
	if err != nil {
		t.Fatalf("NewBin(decoder) error = %v", err)
	}
	src, err := gst.NewElement("fakesrc")
	if err != nil {
		t.Fatalf("NewElement(fakesrc) error = %v", err)
	}
	src.SetProperty("num-buffers", 1)
	sink, err := gst.NewElement("fakesink")
	if err != nil {
		t.Fatalf("NewElement(fakesink) error = %v", err)
	}
	if err := child.AddMany(src, sink); err != nil {
		t.Fatalf("child.AddMany() error = %v", err)
	}
	if err := src.Link(sink); err != nil {
		t.Fatalf("src.Link(sink) error = %v", err)
	}
	if err := pipeline.Add(child.Element); err != nil {
		t.Fatalf("pipeline.Add(child) error = %v", err)
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		t.Fatalf("pipeline.SetState(Playing) error = %v", err)
	}
	defer pipeline.SetState(gst.StateNull)

	bus := pipeline.GetBus()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		msg := bus.TimedPop(gst.ClockTime(250 * time.Millisecond))
		if msg == nil {
			continue
		}
		if msg.Type() != gst.MessageElement {
			continue
		}
		innerSource, ok := parseForwardedEOS(msg)
		if !ok {
			continue
		}
		if innerSource != "decoder" {
			t.Errorf("parseForwardedEOS() inner source = %q, want %q", innerSource, "decoder")
		}
		if outer := msg.Source(); outer == "decoder" {
			t.Errorf("outer message source unexpectedly equalled %q; test no longer exercises the mismatch this guards against", outer)
		}
		return
	}
	t.Fatal("no GstBinForwarded EOS observed before deadline")
}
