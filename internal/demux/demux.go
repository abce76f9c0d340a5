// Package demux implements the Stream Demultiplexer (§4.2): a sliding-window
// tokenizer that separates hidden "<think>...</think>" reasoning spans from
// visible text in a character stream, without ever emitting a character
// before the demux can prove it is not part of a tag prefix.
package demux

import "strings"

const (
	openTag  = "<think>"
	closeTag = "</think>"
	// DefaultWindow is the sliding-window size used when none is configured.
	DefaultWindow = 10
)

type state int

const (
	outside state = iota
	inside
)

// Demux is not safe for concurrent use; it is owned by a single loop
// iteration's model-stream consumption.
type Demux struct {
	window  int
	st      state
	outside strings.Builder
	inside  strings.Builder
}

// New returns a Demux with the given sliding-window size. window <= 0 uses
// DefaultWindow; a positive window shorter than the close tag is raised to
// the close tag's length so no tag can slide out of the buffer unmatched.
func New(window int) *Demux {
	if window <= 0 {
		window = DefaultWindow
	}
	if window < len(closeTag) {
		window = len(closeTag)
	}
	return &Demux{window: window}
}

// Feed appends one character to the stream and returns any visible/think
// text that can now be proven safe to emit. Either or both may be empty.
func (d *Demux) Feed(c byte) (visible, think string) {
	switch d.st {
	case outside:
		d.outside.WriteByte(c)
	case inside:
		d.inside.WriteByte(c)
	}
	return d.pump()
}

// FeedString is a convenience wrapper over Feed for multi-byte tokens.
func (d *Demux) FeedString(s string) (visible, think string) {
	var vb, tb strings.Builder
	for i := 0; i < len(s); i++ {
		v, t := d.Feed(s[i])
		vb.WriteString(v)
		tb.WriteString(t)
	}
	return vb.String(), tb.String()
}

// pump drains as many bytes as can be proven safe from the current buffers,
// following tag transitions and the sliding-window overflow rule.
func (d *Demux) pump() (visible, think string) {
	var vb, tb strings.Builder
	for {
		switch d.st {
		case outside:
			buf := d.outside.String()
			if idx := strings.Index(buf, openTag); idx >= 0 {
				vb.WriteString(buf[:idx])
				d.outside.Reset()
				d.inside.Reset()
				d.inside.WriteString(buf[idx+len(openTag):])
				d.st = inside
				continue
			}
			if len(buf) > d.window {
				vb.WriteByte(buf[0])
				d.outside.Reset()
				d.outside.WriteString(buf[1:])
				continue
			}
			return vb.String(), tb.String()
		case inside:
			buf := d.inside.String()
			if idx := strings.Index(buf, closeTag); idx >= 0 {
				tb.WriteString(buf[:idx])
				remainder := buf[idx+len(closeTag):]
				d.inside.Reset()
				d.outside.Reset()
				d.outside.WriteString(remainder)
				d.st = outside
				continue
			}
			if len(buf) > d.window {
				tb.WriteByte(buf[0])
				d.inside.Reset()
				d.inside.WriteString(buf[1:])
				continue
			}
			return vb.String(), tb.String()
		}
	}
}

// Drain flushes both buffers unconditionally, returning whatever remains as
// the visible and think tails, and resets the demux to its initial state.
func (d *Demux) Drain() (visibleTail, thinkTail string) {
	visibleTail = d.outside.String()
	thinkTail = d.inside.String()
	d.outside.Reset()
	d.inside.Reset()
	d.st = outside
	return
}
