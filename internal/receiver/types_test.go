/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * This file is part of videoreceiver.
 */
package receiver

import "testing"

func TestState_String(t *testing.T) {
	tests := []struct {
		name string
		s    State
		want string
	}{
		{"idle", Idle, "idle"},
		{"starting", Starting, "starting"},
		{"streaming", Streaming, "streaming"},
		{"stopping", Stopping, "stopping"},
		{"fault", Fault, "fault"},
		{"unknown", State(99), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.String(); got != tt.want {
				t.Errorf("State.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBranchState_String(t *testing.T) {
	tests := []struct {
		name string
		s    BranchState
		want string
	}{
		{"absent", BranchAbsent, "absent"},
		{"attaching", BranchAttaching, "attaching"},
		{"active", BranchActive, "active"},
		{"detaching", BranchDetaching, "detaching"},
		{"unknown", BranchState(99), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.String(); got != tt.want {
				t.Errorf("BranchState.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFileFormat_MuxerFactory(t *testing.T) {
	tests := []struct {
		name    string
		f       FileFormat
		want    string
		wantOK  bool
	}{
		{"mkv", FormatMKV, "matroskamux", true},
		{"mov", FormatMOV, "qtmux", true},
		{"mp4", FormatMP4, "mp4mux", true},
		{"invalid", FileFormat(99), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.f.muxerFactory()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("muxerFactory() = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFileFormat_String(t *testing.T) {
	tests := []struct {
		name string
		f    FileFormat
		want string
	}{
		{"mkv", FormatMKV, "mkv"},
		{"mov", FormatMOV, "mov"},
		{"mp4", FormatMP4, "mp4"},
		{"unknown", FileFormat(99), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.String(); got != tt.want {
				t.Errorf("FileFormat.String() = %v, want %v", got, tt.want)
			}
		})
	}
}
