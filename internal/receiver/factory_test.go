/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * This file is part of videoreceiver.
 */
package receiver

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-gst/go-gst/gst"
)

func gstAvailable(t *testing.T) {
	t.Helper()
	if err := gst.Init(nil); err != nil {
		t.Skipf("gstreamer runtime not available: %v", err)
	}
}

// TestBuildSource_SchemeRouting verifies that for every recognized URL
// prefix, buildSource produces a sub-graph whose first element is of the
// expected GStreamer factory type.
func TestBuildSource_SchemeRouting(t *testing.T) {
	gstAvailable(t)

	tests := []struct {
		name        string
		url         string
		wantFactory string
	}{
		{"rtsp", "rtsp://127.0.0.1:8554/stream", "rtspsrc"},
		{"udp h264", "udp://0.0.0.0:5600", "udpsrc"},
		{"udp265 h265", "udp265://0.0.0.0:5601", "udpsrc"},
		{"mpegts", "mpegts://0.0.0.0:1234", "udpsrc"},
		{"tcp", "tcp://127.0.0.1:1234", "tcpclientsrc"},
		{"tsusb", "tsusb://0.0.0.0:5602", "udpsrc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sg, err := buildSource(tt.url)
			if err != nil {
				t.Fatalf("buildSource(%q) error = %v", tt.url, err)
			}
			got := sg.element.GetFactory().GetName()
			if got != tt.wantFactory {
				t.Errorf("buildSource(%q) first element = %q, want %q", tt.url, got, tt.wantFactory)
			}
		})
	}
}

func TestBuildSource_UnknownScheme(t *testing.T) {
	gstAvailable(t)

	_, err := buildSource("ftp://example.com/stream")
	if !errors.Is(err, ErrConfig) {
		t.Errorf("buildSource() error = %v, want ErrConfig", err)
	}
}

func TestBuildSource_InvalidURL(t *testing.T) {
	gstAvailable(t)

	_, err := buildSource("://not a url")
	if !errors.Is(err, ErrConfig) {
		t.Errorf("buildSource() error = %v, want ErrConfig", err)
	}
}

func TestBuildFileSink_UnknownFormat(t *testing.T) {
	gstAvailable(t)

	_, err := buildFileSink("/tmp/out.bin", FileFormat(99))
	if !errors.Is(err, ErrConfig) {
		t.Errorf("buildFileSink() error = %v, want ErrConfig", err)
	}
}

// TestGhostDynamicPad verifies the re-exposure step installDeferredPadGhosting
// relies on: a dynamic pad handed to it becomes a same-named ghost pad on
// the bin.
func TestGhostDynamicPad(t *testing.T) {
	gstAvailable(t)

	bin, err := gst.NewBin("source")
	if err != nil {
		t.Fatalf("NewBin() error = %v", err)
	}
	probe, err := gst.NewElement("fakesrc")
	if err != nil {
		t.Fatalf("NewElement(fakesrc) error = %v", err)
	}
	pad := probe.GetStaticPad("src")
	if pad == nil {
		t.Fatal("fakesrc has no static src pad to ghost")
	}

	if !ghostDynamicPad(bin, pad) {
		t.Fatal("ghostDynamicPad() = false, want true")
	}
	if bin.GetStaticPad(pad.GetName()) == nil {
		t.Errorf("bin has no %q pad after ghostDynamicPad()", pad.GetName())
	}
}

// TestBuildRTSPSource_ParserOutputIsGhosted drives rtspsrc's pad-added
// with a stand-in pad carrying real application/x-rtp caps and checks
// that the bin's exposed pad comes from the parser, not from the raw
// RTP pad: the ghost pad only appears once parsebin itself exposes a
// pad, one step downstream of the jitter buffer linkRTSPSessionPad
// inserts.
func TestBuildRTSPSource_ParserOutputIsGhosted(t *testing.T) {
	gstAvailable(t)

	bin, err := gst.NewBin("source")
	if err != nil {
		t.Fatalf("NewBin() error = %v", err)
	}
	sg, err := buildRTSPSource(bin, "rtsp://127.0.0.1:8554/stream")
	if err != nil {
		t.Fatalf("buildRTSPSource() error = %v", err)
	}

	rtpPad := rtpStandInPad(t, "H264")

	if _, err := sg.element.Emit("pad-added", rtpPad); err != nil {
		t.Fatalf("Emit(pad-added) error = %v", err)
	}

	if bin.GetStaticPad(rtpPad.GetName()) != nil {
		t.Error("rtsp source bin ghosted the raw rtspsrc pad directly, want the parser's output pad")
	}

	jb := bin.GetByName("rtpjitterbuffer0")
	if jb == nil {
		t.Fatal("rtsp source bin has no rtpjitterbuffer after an RTP session pad appeared")
	}
	peer := jb.GetStaticPad("sink").GetPeer()
	if peer == nil || peer.GetName() != rtpPad.GetName() {
		t.Error("rtpjitterbuffer sink pad is not linked to the rtspsrc session pad")
	}
}

// TestLinkRTSPSessionPad_NonRTPSkipsJitterBuffer mirrors the RTP case
// but with caps that fail the application/x-rtp check, asserting
// linkRTSPSessionPad links straight into parser with no jitter buffer
// inserted at all.
func TestLinkRTSPSessionPad_NonRTPSkipsJitterBuffer(t *testing.T) {
	gstAvailable(t)

	bin, err := gst.NewBin("source")
	if err != nil {
		t.Fatalf("NewBin() error = %v", err)
	}
	parser, err := gst.NewElement("parsebin")
	if err != nil {
		t.Fatalf("NewElement(parsebin) error = %v", err)
	}
	if err := bin.Add(parser); err != nil {
		t.Fatalf("bin.Add(parsebin) error = %v", err)
	}

	standIn, err := gst.NewElement("fakesrc")
	if err != nil {
		t.Fatalf("NewElement(fakesrc) error = %v", err)
	}
	standIn.SetProperty("caps", gst.NewCapsFromString("video/x-h264"))
	pad := standIn.GetStaticPad("src")
	if pad == nil {
		t.Fatal("fakesrc has no static src pad to use as a stand-in session pad")
	}

	linkRTSPSessionPad(bin, pad, parser)

	if bin.GetByName("rtpjitterbuffer0") != nil {
		t.Error("linkRTSPSessionPad inserted a jitter buffer for non-RTP caps")
	}
	if peer := parser.GetStaticPad("sink").GetPeer(); peer == nil || peer.GetName() != pad.GetName() {
		t.Error("linkRTSPSessionPad did not link the non-RTP pad directly into parser")
	}
}

// rtpStandInPad builds a fakesrc whose static src pad reports
// application/x-rtp caps for the given encoding, standing in for a
// session pad rtspsrc would otherwise expose once RTP negotiates.
func rtpStandInPad(t *testing.T, encodingName string) *gst.Pad {
	t.Helper()

	standIn, err := gst.NewElement("fakesrc")
	if err != nil {
		t.Fatalf("NewElement(fakesrc) error = %v", err)
	}
	caps := gst.NewCapsFromString(fmt.Sprintf(
		"application/x-rtp, media=(string)video, clock-rate=(int)90000, encoding-name=(string)%s",
		encodingName))
	standIn.SetProperty("caps", caps)

	pad := standIn.GetStaticPad("src")
	if pad == nil {
		t.Fatal("fakesrc has no static src pad to use as a stand-in session pad")
	}
	return pad
}
