/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * This file is part of videoreceiver.
 */
package main

import (
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/e1z0/videoreceiver/internal/config"
	"github.com/e1z0/videoreceiver/internal/receiver"
	"github.com/go-gst/go-gst/gst"
)

var (
	version = "dev"
	build   = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to settings.yml (default: ~/.config/videoreceiver/settings.yml)")
	debug := flag.Bool("debug", false, "log to stdout in addition to the log file")
	flag.Parse()

	env, err := config.InitializeEnvironment()
	if err != nil {
		log.Fatalf("videoreceiver: %v", err)
	}
	logger, logFile := initLogger(env, *debug)
	if logFile != nil {
		defer logFile.Close()
	}

	logger.Printf("videoreceiver %s (build %s)", version, build)

	if err := gst.Init(nil); err != nil {
		logger.Fatalf("videoreceiver: gstreamer init: %v", err)
	}

	path := *configPath
	if path == "" {
		path = env.SettingsFile
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Printf("config: %v (writing a fresh one)", err)
		cfg = config.AppConfig{}
		if err := config.Save(path, cfg); err != nil {
			logger.Printf("config: failed to write default settings: %v", err)
		}
	}

	var receivers []*receiver.Receiver
	for _, sc := range cfg.Streams {
		if sc.Disabled {
			logger.Printf("stream %q: disabled, skipping", sc.Name)
			continue
		}
		r := startStream(logger, sc)
		receivers = append(receivers, r)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Printf("videoreceiver: shutting down")
	for _, r := range receivers {
		if err := r.Stop(); err != nil {
			logger.Printf("stop: %v", err)
		}
		r.Close()
	}
}

func startStream(logger *log.Logger, sc config.StreamConfig) *receiver.Receiver {
	signals := &receiver.Signals{
		StreamingChanged: func(streaming bool) {
			logger.Printf("stream %q: streaming=%v", sc.Name, streaming)
		},
		RestartTimeout: func() {
			logger.Printf("stream %q: restarting", sc.Name)
		},
	}
	r := receiver.New(log.New(logger.Writer(), "["+sc.Name+"] ", logger.Flags()), signals)

	timeout := time.Duration(sc.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if err := r.Start(sc.URL, timeout); err != nil {
		logger.Printf("stream %q: start failed: %v", sc.Name, err)
	}

	if sc.RecordOnStart {
		dir := sc.RecordingDir
		if dir == "" {
			dir = "."
		}
		format := parseFormat(sc.RecordingFmt)
		outPath := filepath.Join(dir, sc.Name+"."+format.String())
		if err := r.StartRecording(outPath, format); err != nil {
			logger.Printf("stream %q: start recording failed: %v", sc.Name, err)
		}
	}

	return r
}

func parseFormat(tag string) receiver.FileFormat {
	switch strings.ToLower(tag) {
	case "mov":
		return receiver.FormatMOV
	case "mp4":
		return receiver.FormatMP4
	default:
		return receiver.FormatMKV
	}
}

func initLogger(env config.Environment, debug bool) (*log.Logger, *os.File) {
	logPath := filepath.Join(env.ConfigDir, "debug.log")
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o666)
	if err != nil {
		log.Printf("videoreceiver: open log file: %v", err)
		return log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds), nil
	}
	var out io.Writer = file
	if debug {
		out = io.MultiWriter(file, os.Stdout)
	}
	return log.New(out, "", log.LstdFlags|log.Lmicroseconds), file
}
