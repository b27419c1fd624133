// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package logger defines the printf-like logging function used across
// devserve and a ring buffer of recent log lines that can be streamed over
// HTTP.
package logger

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Logf is the basic logger type: a printf-like func. Like [log.Printf], the
// format need not end in a newline. Logf functions must be safe for concurrent
// use.
type Logf func(format string, args ...any)

// Write implements the [io.Writer] interface, so Logf can back a [log.Logger].
func (f Logf) Write(p []byte) (n int, err error) {
	f("%s", strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

// Discard is a Logf that throws everything away.
func Discard(format string, args ...any) {}

// Tee returns a Logf that writes every line to logf and to w.
func Tee(logf Logf, w io.Writer) Logf {
	return func(format string, args ...any) {
		logf(format, args...)
		line := fmt.Sprintf(format, args...)
		if !strings.HasSuffix(line, "\n") {
			line += "\n"
		}
		io.WriteString(w, line)
	}
}

// Streamer keeps the last logged lines and streams new ones to HTTP clients.
type Streamer struct {
	mu        sync.RWMutex
	lines     []string // ring of at most size lines
	next      int      // index in lines for the next write once full
	size      int
	remainder string
	streams   map[chan string]struct{}
}

// NewStreamer returns a Streamer that keeps up to size lines.
func NewStreamer(size int) *Streamer {
	if size <= 0 {
		size = 1
	}
	return &Streamer{
		size:    size,
		lines:   make([]string, 0, size),
		streams: make(map[chan string]struct{}),
	}
}

// Write implements the [io.Writer] interface. Partial lines are buffered until
// the terminating newline arrives.
func (s *Streamer) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	text := s.remainder + string(b)
	for {
		idx := strings.IndexByte(text, '\n')
		if idx == -1 {
			break
		}
		s.push(text[:idx+1])
		text = text[idx+1:]
	}
	s.remainder = text
	return len(b), nil
}

func (s *Streamer) push(line string) {
	if len(s.lines) < s.size {
		s.lines = append(s.lines, line)
	} else {
		s.lines[s.next] = line
		s.next = (s.next + 1) % s.size
	}
	for stream := range s.streams {
		select {
		case stream <- line:
		default:
			// Slow reader, drop the line for it.
		}
	}
}

// Lines returns the buffered lines, oldest first.
func (s *Streamer) Lines() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.lines))
	out = append(out, s.lines[s.next:]...)
	out = append(out, s.lines[:s.next]...)
	return out
}

// Stream returns a channel receiving every line written from now on. Call the
// returned function to unsubscribe.
func (s *Streamer) Stream() (<-chan string, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := make(chan string, s.size+1)
	s.streams[stream] = struct{}{}

	var once sync.Once
	return stream, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.streams, stream)
			close(stream)
		})
	}
}

// ServeHTTP writes the buffered lines and then follows new ones until the
// client goes away. Clients that accept text/event-stream get server-sent
// events.
func (s *Streamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	evtStream := strings.Contains(strings.ToLower(r.Header.Get("Accept")), "text/event-stream")
	if evtStream {
		w.Header().Set("Content-Type", "text/event-stream")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}

	stream, unsubscribe := s.Stream()
	defer unsubscribe()

	write := func(line string) {
		if evtStream {
			fmt.Fprintf(w, "event: logline\ndata: %s\n", line)
		} else {
			io.WriteString(w, line)
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
	for _, line := range s.Lines() {
		write(line)
	}

	for {
		select {
		case line, ok := <-stream:
			if !ok {
				return
			}
			write(line)
		case <-r.Context().Done():
			return
		}
	}
}

var (
	_ io.Writer    = (*Streamer)(nil)
	_ http.Handler = (*Streamer)(nil)
)
