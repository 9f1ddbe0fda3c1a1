/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * This file is part of videoreceiver.
 */
package receiver

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-gst/go-gst/gst"
)

// sourceGraph is the sealed bin C1 builds for a given URL. Its internal
// shape depends on the scheme (rtsp/udp/udp265/mpegts/tcp/tsusb); every
// downstream caller only ever sees the bin and its ghost pad(s).
type sourceGraph struct {
	bin     *gst.Bin
	element *gst.Element // the concrete source element, for pad-added wiring
	scheme  string
}

// buildSource implements C1's buildSource(url) -> SubGraph | SourceError.
func buildSource(rawURL string) (*sourceGraph, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url %q: %v", ErrConfig, rawURL, err)
	}
	scheme := strings.ToLower(u.Scheme)

	bin, err := gst.NewBin("source")
	if err != nil {
		return nil, wrapBuild("source bin", err)
	}

	switch scheme {
	case "rtsp":
		return buildRTSPSource(bin, rawURL)
	case "udp":
		return buildRTPUDPSource(bin, u, "H264")
	case "udp265":
		return buildRTPUDPSource(bin, u, "H265")
	case "mpegts":
		return buildMPEGTSUDPSource(bin, u)
	case "tcp":
		return buildTCPSource(bin, u)
	case "tsusb":
		return buildRawUDPSource(bin, u)
	default:
		return nil, fmt.Errorf("%w: unrecognized url scheme %q", ErrConfig, scheme)
	}
}

func buildRTSPSource(bin *gst.Bin, rawURL string) (*sourceGraph, error) {
	src, err := gst.NewElementWithProperties("rtspsrc", map[string]interface{}{
		"location":      rawURL,
		"latency":       uint(17),
		"udp-reconnect": true,
		"timeout":       uint64(5 * 1000000), // microseconds
	})
	if err != nil {
		return nil, wrapBuild("rtspsrc", err)
	}
	if err := bin.Add(src); err != nil {
		return nil, wrapBuild("rtspsrc add", err)
	}

	parser, err := gst.NewElement("parsebin")
	if err != nil {
		return nil, wrapBuild("parsebin", err)
	}
	if err := bin.Add(parser); err != nil {
		return nil, wrapBuild("parsebin add", err)
	}

	// rtspsrc exposes no static source pads; its session pads arrive
	// later via pad-added, one per negotiated media, and may carry raw
	// RTP rather than an already-depacketized stream. linkRTSPSessionPad
	// inspects each one as it appears and inserts an rtpjitterbuffer
	// ahead of parser only when the caps say RTP.
	src.Connect("pad-added", func(self *gst.Element, pad *gst.Pad) {
		linkRTSPSessionPad(bin, pad, parser)
	})

	// parser, not rtspsrc, is what ever gets ghosted onto the bin: its
	// output pads carry parsed elementary-stream caps, never raw RTP.
	installDeferredPadGhosting(bin, parser)

	return &sourceGraph{bin: bin, element: src, scheme: "rtsp"}, nil
}

// linkRTSPSessionPad links a newly exposed rtspsrc session pad into
// parser, inserting an rtpjitterbuffer first when the pad's caps are
// RTP. Verbatim from VideoReceiver::_linkPadWithOptionalBuffer.
func linkRTSPSessionPad(bin *gst.Bin, pad *gst.Pad, parser *gst.Element) {
	parserSink := parser.GetStaticPad("sink")
	if parserSink == nil {
		return
	}

	if !padHasRTPCaps(pad) {
		pad.Link(parserSink)
		return
	}

	jb, err := gst.NewElement("rtpjitterbuffer")
	if err != nil {
		return
	}
	if err := bin.Add(jb); err != nil {
		return
	}
	if err := jb.SyncStateWithParent(); err != nil {
		return
	}

	jbSink := jb.GetStaticPad("sink")
	if jbSink == nil || pad.Link(jbSink) != gst.PadLinkOK {
		return
	}
	if jbSrc := jb.GetStaticPad("src"); jbSrc != nil {
		jbSrc.Link(parserSink)
	}
}

// padHasRTPCaps reports whether pad's negotiated caps are RTP, the same
// check _linkPadWithOptionalBuffer uses to decide whether a jitter
// buffer belongs ahead of the parser.
func padHasRTPCaps(pad *gst.Pad) bool {
	caps := pad.GetCurrentCaps()
	if caps == nil {
		caps = pad.GetAllowedCaps()
	}
	if caps == nil || caps.GetSize() == 0 {
		return false
	}
	structure := caps.GetStructureAt(0)
	if structure == nil {
		return false
	}
	return strings.HasPrefix(structure.Name(), "application/x-rtp")
}

func buildRTPUDPSource(bin *gst.Bin, u *url.URL, encodingName string) (*sourceGraph, error) {
	src, err := gst.NewElement("udpsrc")
	if err != nil {
		return nil, wrapBuild("udpsrc", err)
	}
	applyHostPort(src, u, "address", "port")

	caps := gst.NewCapsFromString(fmt.Sprintf(
		"application/x-rtp, media=(string)video, clock-rate=(int)90000, encoding-name=(string)%s",
		encodingName))
	src.SetProperty("caps", caps)

	if err := bin.Add(src); err != nil {
		return nil, wrapBuild("udpsrc add", err)
	}

	jb, err := gst.NewElement("rtpjitterbuffer")
	if err != nil {
		return nil, wrapBuild("rtpjitterbuffer", err)
	}
	if err := bin.Add(jb); err != nil {
		return nil, wrapBuild("rtpjitterbuffer add", err)
	}
	if err := src.Link(jb); err != nil {
		return nil, wrapBuild("udpsrc->rtpjitterbuffer link", err)
	}

	parser, err := gst.NewElement("rtph264depay")
	if encodingName == "H265" {
		parser, err = gst.NewElement("rtph265depay")
	}
	if err != nil {
		return nil, wrapBuild("rtp depayloader", err)
	}
	if err := bin.Add(parser); err != nil {
		return nil, wrapBuild("depayloader add", err)
	}
	if err := jb.Link(parser); err != nil {
		return nil, wrapBuild("jitterbuffer->depayloader link", err)
	}

	if err := ghostStaticSrcPad(bin, parser, "src"); err != nil {
		return nil, err
	}

	return &sourceGraph{bin: bin, element: src, scheme: "udp"}, nil
}

func buildMPEGTSUDPSource(bin *gst.Bin, u *url.URL) (*sourceGraph, error) {
	src, err := gst.NewElement("udpsrc")
	if err != nil {
		return nil, wrapBuild("udpsrc", err)
	}
	applyHostPort(src, u, "address", "port")
	if err := bin.Add(src); err != nil {
		return nil, wrapBuild("udpsrc add", err)
	}

	demux, err := gst.NewElement("tsdemux")
	if err != nil {
		return nil, wrapBuild("tsdemux", err)
	}
	if err := bin.Add(demux); err != nil {
		return nil, wrapBuild("tsdemux add", err)
	}
	if err := src.Link(demux); err != nil {
		return nil, wrapBuild("udpsrc->tsdemux link", err)
	}

	sg := &sourceGraph{bin: bin, element: src, scheme: "mpegts"}
	installDeferredPadGhosting(bin, demux)
	return sg, nil
}

func buildTCPSource(bin *gst.Bin, u *url.URL) (*sourceGraph, error) {
	host := u.Hostname()
	port := u.Port()
	if host == "" || port == "" {
		return nil, fmt.Errorf("%w: tcp url requires host and port", ErrConfig)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tcp port %q", ErrConfig, port)
	}

	src, err := gst.NewElementWithProperties("tcpclientsrc", map[string]interface{}{
		"host": host,
		"port": portNum,
	})
	if err != nil {
		return nil, wrapBuild("tcpclientsrc", err)
	}
	if err := bin.Add(src); err != nil {
		return nil, wrapBuild("tcpclientsrc add", err)
	}

	demux, err := gst.NewElement("tsdemux")
	if err != nil {
		return nil, wrapBuild("tsdemux", err)
	}
	if err := bin.Add(demux); err != nil {
		return nil, wrapBuild("tsdemux add", err)
	}
	if err := src.Link(demux); err != nil {
		return nil, wrapBuild("tcpclientsrc->tsdemux link", err)
	}

	sg := &sourceGraph{bin: bin, element: src, scheme: "tcp"}
	installDeferredPadGhosting(bin, demux)
	return sg, nil
}

func buildRawUDPSource(bin *gst.Bin, u *url.URL) (*sourceGraph, error) {
	src, err := gst.NewElement("udpsrc")
	if err != nil {
		return nil, wrapBuild("udpsrc", err)
	}
	applyHostPort(src, u, "address", "port")
	if err := bin.Add(src); err != nil {
		return nil, wrapBuild("udpsrc add", err)
	}

	parser, err := gst.NewElement("h264parse")
	if err != nil {
		return nil, wrapBuild("h264parse", err)
	}
	if err := bin.Add(parser); err != nil {
		return nil, wrapBuild("h264parse add", err)
	}
	if err := src.Link(parser); err != nil {
		return nil, wrapBuild("udpsrc->h264parse link", err)
	}

	if err := ghostStaticSrcPad(bin, parser, "src"); err != nil {
		return nil, err
	}

	return &sourceGraph{bin: bin, element: src, scheme: "tsusb"}, nil
}

func applyHostPort(element *gst.Element, u *url.URL, hostProp, portProp string) {
	if host := u.Hostname(); host != "" {
		element.SetProperty(hostProp, host)
	}
	if port := u.Port(); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			element.SetProperty(portProp, p)
		}
	}
}

// ghostStaticSrcPad re-exposes a child's static pad as a ghost pad on the
// enclosing bin, per the source sub-graph's positional-independence
// requirement.
func ghostStaticSrcPad(bin *gst.Bin, child *gst.Element, padName string) error {
	pad := child.GetStaticPad(padName)
	if pad == nil {
		return wrapBuild("ghost pad", fmt.Errorf("element %s has no %s pad", child.GetName(), padName))
	}
	ghost := gst.NewGhostPad(padName, pad)
	if ghost == nil {
		return wrapBuild("ghost pad", fmt.Errorf("failed to create ghost pad for %s", child.GetName()))
	}
	if !bin.AddPad(ghost.Pad) {
		return wrapBuild("ghost pad", fmt.Errorf("failed to add ghost pad to bin"))
	}
	return nil
}

// installDeferredPadGhosting re-exposes every dynamic pad an element
// produces as a ghost pad on the enclosing bin, at the moment the pad
// appears. Used wherever the inner element only exposes pads once data
// has been identified: the RTSP source's parser (parsebin), the demuxer
// (tsdemux) of the MPEG-TS schemes, and the decoder's decodebin —
// without this, the bin-level "pad-added" that buildRun and
// attachDecoderToQueue listen for never fires, since AddPad is what
// raises it, not the child's own pad-added.
func installDeferredPadGhosting(bin *gst.Bin, src *gst.Element) {
	src.Connect("pad-added", func(self *gst.Element, pad *gst.Pad) {
		ghostDynamicPad(bin, pad)
	})
}

// ghostDynamicPad re-exposes pad as a ghost pad on bin, named the same
// as the original. Reports whether it succeeded.
func ghostDynamicPad(bin *gst.Bin, pad *gst.Pad) bool {
	ghost := gst.NewGhostPad(pad.GetName(), pad)
	if ghost == nil {
		return false
	}
	return bin.AddPad(ghost.Pad)
}

// decoderGraph is the auto-plugging decoder sub-graph C1 builds for the
// decoding branch, with an autoplug-query interceptor coupled to the
// eventual video sink's capabilities.
type decoderGraph struct {
	bin *gst.Bin
}

// buildDecoder implements C1's buildDecoder(caps, sink) -> Decoder | DecoderError.
func buildDecoder(caps *gst.Caps, sink *gst.Element) (*decoderGraph, error) {
	decodebin, err := gst.NewElement("decodebin")
	if err != nil {
		return nil, wrapBuild("decodebin", err)
	}

	bin, err := gst.NewBin("decoder")
	if err != nil {
		return nil, wrapBuild("decoder bin", err)
	}
	if err := bin.Add(decodebin); err != nil {
		return nil, wrapBuild("decodebin add", err)
	}

	sinkPad := sink.GetStaticPad("sink")

	decodebin.Connect("autoplug-query", func(self *gst.Element, pad *gst.Pad, child *gst.Element, query *gst.Query) bool {
		switch query.Type() {
		case gst.QueryCaps:
			if sinkPad == nil {
				return false
			}
			accept := sinkPad.QueryCaps(nil)
			if accept == nil {
				return false
			}
			proposed := query.ParseCaps()
			result := proposed.Intersect(accept)
			query.SetCapsResult(result)
			return true
		case gst.QueryContext:
			if sinkPad == nil {
				return false
			}
			return sinkPad.Query(query)
		default:
			return false
		}
	})

	if err := ghostStaticSrcPad(bin, decodebin, "sink"); err != nil {
		// decodebin's sink pad is static; fall through silently is wrong,
		// surface the build error.
		return nil, err
	}
	// decodebin's output pads are dynamic; ghosting them is what raises
	// the decoder bin's own pad-added that attachDecoderToQueue listens for.
	installDeferredPadGhosting(bin, decodebin)

	return &decoderGraph{bin: bin}, nil
}

// buildFileSink implements C1's buildFileSink(path, format) -> SubGraph | FileSinkError.
func buildFileSink(path string, format FileFormat) (*gst.Bin, error) {
	muxerFactory, ok := format.muxerFactory()
	if !ok {
		return nil, fmt.Errorf("%w: unknown file format %v", ErrConfig, format)
	}

	bin, err := gst.NewBin("recorder")
	if err != nil {
		return nil, wrapBuild("recorder bin", err)
	}

	muxer, err := gst.NewElement(muxerFactory)
	if err != nil {
		return nil, wrapBuild(muxerFactory, err)
	}
	filesink, err := gst.NewElementWithProperties("filesink", map[string]interface{}{
		"location": path,
	})
	if err != nil {
		return nil, wrapBuild("filesink", err)
	}

	if err := bin.AddMany(muxer, filesink); err != nil {
		return nil, wrapBuild("recorder bin add", err)
	}

	muxSrc := muxer.GetStaticPad("src")
	sinkSink := filesink.GetStaticPad("sink")
	if muxSrc == nil || sinkSink == nil {
		return nil, wrapBuild("recorder link", fmt.Errorf("muxer or filesink missing static pad"))
	}
	if link := muxSrc.Link(sinkSink); link != gst.PadLinkOK {
		return nil, wrapBuild("muxer->filesink link", fmt.Errorf("%s", link.String()))
	}

	muxSink := muxer.GetRequestPad("video_%u")
	if muxSink == nil {
		return nil, wrapBuild("recorder link", fmt.Errorf("%s has no video_%%u request pad", muxerFactory))
	}
	ghost := gst.NewGhostPad("sink", muxSink)
	if ghost == nil || !bin.AddPad(ghost.Pad) {
		return nil, wrapBuild("recorder ghost pad", fmt.Errorf("failed to ghost muxer request pad"))
	}

	return bin, nil
}
