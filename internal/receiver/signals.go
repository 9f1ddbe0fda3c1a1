/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * This file is part of videoreceiver.
 */
package receiver

import "sync"

// Signals is the edge-triggered notification surface a Receiver exposes to
// its host. Every field is optional; a nil handler is simply skipped. All
// handlers are invoked on the control thread, never from a streaming
// thread, so they may safely touch host state without their own locking.
type Signals struct {
	mu sync.Mutex

	StreamingChanged          func(streaming bool)
	DecodingChanged           func(decoding bool)
	RecordingChanged          func(recording bool)
	VideoSizeChanged          func(size VideoSize)
	VideoFileChanged          func(path string)
	ImageFileChanged          func(path string)
	RestartTimeout            func()
	GotFirstRecordingKeyFrame func()
}

func (s *Signals) emitStreamingChanged(v bool) {
	s.mu.Lock()
	fn := s.StreamingChanged
	s.mu.Unlock()
	if fn != nil {
		fn(v)
	}
}

func (s *Signals) emitDecodingChanged(v bool) {
	s.mu.Lock()
	fn := s.DecodingChanged
	s.mu.Unlock()
	if fn != nil {
		fn(v)
	}
}

func (s *Signals) emitRecordingChanged(v bool) {
	s.mu.Lock()
	fn := s.RecordingChanged
	s.mu.Unlock()
	if fn != nil {
		fn(v)
	}
}

func (s *Signals) emitVideoSizeChanged(size VideoSize) {
	s.mu.Lock()
	fn := s.VideoSizeChanged
	s.mu.Unlock()
	if fn != nil {
		fn(size)
	}
}

func (s *Signals) emitVideoFileChanged(path string) {
	s.mu.Lock()
	fn := s.VideoFileChanged
	s.mu.Unlock()
	if fn != nil {
		fn(path)
	}
}

func (s *Signals) emitImageFileChanged(path string) {
	s.mu.Lock()
	fn := s.ImageFileChanged
	s.mu.Unlock()
	if fn != nil {
		fn(path)
	}
}

func (s *Signals) emitRestartTimeout() {
	s.mu.Lock()
	fn := s.RestartTimeout
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *Signals) emitGotFirstRecordingKeyFrame() {
	s.mu.Lock()
	fn := s.GotFirstRecordingKeyFrame
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}
