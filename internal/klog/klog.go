// Package klog implements the kernel's ring-buffered, line-oriented logger
// (spec §19) with a background drainer, usable from any context including
// fault handlers (spec §4.11). It recognises the persisted log header
// layout from spec §6 ("Persisted state layout") on boot.
//
// The front end matches the teacher's logiface/logiface-zerolog split: a
// small structured API in front of a swappable backend. The backend here is
// github.com/rs/zerolog, the concrete dependency logiface-zerolog wraps.
package klog

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/jncronin/gkos/internal/ring"
	"github.com/rs/zerolog"
)

// Magic identifies a previously-initialized persisted log header.
const Magic uint32 = 0x676b4c47 // "GLkg"

// Header mirrors spec §6's `{ magic, producer_head, consumer_head,
// buffer_bytes }` layout, recognised on boot to decide whether to drain an
// existing log to the console or initialize an empty one.
type Header struct {
	Magic        uint32
	ProducerHead uint32
	ConsumerHead uint32
	BufferBytes  uint32
}

const headerSize = 16

// Log is a line-oriented logger backed by a fixed-capacity ring of lines
// (internal/ring) and drained in the background to a zerolog sink.
type Log struct {
	mu      sync.Mutex
	lines   *ring.SPSC[string]
	sink    zerolog.Logger
	drainCh chan struct{}
	done    chan struct{}
	closed  bool
}

// New creates a Log with the given line capacity (must be a power of two)
// writing drained lines to w via zerolog.
func New(lineCapacity int, w io.Writer) *Log {
	l := &Log{
		lines:   ring.NewSPSC[string](lineCapacity),
		sink:    zerolog.New(w).With().Timestamp().Logger(),
		drainCh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go l.drain()
	return l
}

// Recover inspects a persisted region for a matching Header. If found, the
// existing entries are assumed already drained to the physical console by
// the caller (per spec §6) and recovered = true; otherwise a fresh empty
// log is initialized in the region and recovered = false.
func Recover(region []byte, lineCapacity int, w io.Writer) (l *Log, recovered bool) {
	l = New(lineCapacity, w)
	if len(region) < headerSize {
		return l, false
	}
	magic := binary.LittleEndian.Uint32(region[0:4])
	if magic != Magic {
		binary.LittleEndian.PutUint32(region[0:4], Magic)
		binary.LittleEndian.PutUint32(region[4:8], 0)
		binary.LittleEndian.PutUint32(region[8:12], 0)
		binary.LittleEndian.PutUint32(region[12:16], uint32(len(region)-headerSize))
		return l, false
	}
	return l, true
}

// Line prefixes msg with its level tag and enqueues it for background
// draining; it does no Printf-style formatting.
// Never blocks on I/O: if the ring is momentarily full, the oldest
// undrained line is dropped to make room, since a logger must never itself
// become a blocking point for a fault handler.
func (l *Log) Line(level zerolog.Level, msg string) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	if !l.lines.Push(levelTag(level) + msg) {
		l.lines.Pop() // drop oldest to make room
		l.lines.Push(levelTag(level) + msg)
	}
	l.mu.Unlock()
	select {
	case l.drainCh <- struct{}{}:
	default:
	}
}

func levelTag(level zerolog.Level) string {
	return "[" + level.String() + "] "
}

// Info, Warn, Error are convenience wrappers over Line.
func (l *Log) Info(msg string)  { l.Line(zerolog.InfoLevel, msg) }
func (l *Log) Warn(msg string)  { l.Line(zerolog.WarnLevel, msg) }
func (l *Log) Error(msg string) { l.Line(zerolog.ErrorLevel, msg) }

// EmergencyWrite writes msg synchronously, bypassing the background
// drainer entirely. Used by internal/fault when logging a kernel panic,
// since the drainer goroutine itself may be unschedulable by that point
// (mirrors eventloop's handlePollError falling back past its own
// abstraction to stdlib log for the one truly last-resort path).
func (l *Log) EmergencyWrite(msg string) {
	l.sink.Error().Msg(msg)
}

func (l *Log) drain() {
	for {
		select {
		case <-l.drainCh:
		case <-l.done:
			l.drainRemaining()
			return
		}
		l.drainRemaining()
	}
}

func (l *Log) drainRemaining() {
	for {
		v, ok := l.lines.Pop()
		if !ok {
			return
		}
		l.sink.Log().Msg(v)
	}
}

// Close stops the background drainer after flushing pending lines.
func (l *Log) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()
	close(l.done)
}
