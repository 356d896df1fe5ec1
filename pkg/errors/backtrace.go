package errors

import (
	"runtime"
	"strconv"
	"strings"
)

const maxTraceDepth = 32

// Backtrace is a logical call-site record captured when a filesystem
// operation starts. Capture stores raw program counters only; resolving
// them to file/line frames is deferred until the trace is actually
// rendered, since an error may never need it.
type Backtrace struct {
	pcs []uintptr
}

// Here captures the call stack of the caller. skip counts additional frames
// to drop beyond Here itself (0 means the trace starts at Here's caller).
func Here(skip int) *Backtrace {
	pcs := make([]uintptr, maxTraceDepth)
	n := runtime.Callers(2+skip, pcs)
	return &Backtrace{pcs: pcs[:n]}
}

// String resolves and formats the captured frames, one per line.
func (b *Backtrace) String() string {
	if b == nil || len(b.pcs) == 0 {
		return ""
	}
	var sb strings.Builder
	frames := runtime.CallersFrames(b.pcs)
	for {
		frame, more := frames.Next()
		sb.WriteString(frame.Function)
		sb.WriteString("\n\t")
		sb.WriteString(frame.File)
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(frame.Line))
		sb.WriteByte('\n')
		if !more {
			break
		}
	}
	return sb.String()
}

// Frames resolves the captured program counters into function names.
func (b *Backtrace) Frames() []string {
	if b == nil || len(b.pcs) == 0 {
		return nil
	}
	var out []string
	frames := runtime.CallersFrames(b.pcs)
	for {
		frame, more := frames.Next()
		out = append(out, frame.Function)
		if !more {
			break
		}
	}
	return out
}
