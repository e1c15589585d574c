package rexec

import "runtime"

// TraceFrame is the serialisable stand-in for a single stack frame of a
// remote-side failure. A live call stack cannot cross the wire, so the
// remote side captures frames as data and ships them back inside the
// failure body of a call result.
type TraceFrame struct {
	Func string
	File string
	Line int
}

// captureTrace walks the caller's goroutine stack, skipping runtime.Callers
// and captureTrace itself plus `skip` further frames (skip=0 starts at
// captureTrace's caller), and returns it as a flat, serialisable slice.
func captureTrace(skip int) []TraceFrame {
	const maxFrames = 32
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	out := make([]TraceFrame, 0, n)
	for {
		f, more := frames.Next()
		out = append(out, TraceFrame{Func: f.Function, File: f.File, Line: f.Line})
		if !more {
			break
		}
	}
	return out
}
