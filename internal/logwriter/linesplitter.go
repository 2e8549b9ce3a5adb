package logwriter

import (
	"bytes"
	"context"
	"log/slog"
)

// LineSplitter is a minimal line-buffered byte -> structured message
// converter (spec.md §9): it implements io.Writer, buffering incoming
// bytes and emitting one raw Write per newline-terminated chunk. A final
// Flush drains any partial trailing content.
type LineSplitter struct {
	ctx    context.Context
	writer *Writer
	stream Stream
	buf    bytes.Buffer
}

func newLineSplitter(ctx context.Context, w *Writer, stream Stream) *LineSplitter {
	return &LineSplitter{ctx: ctx, writer: w, stream: stream}
}

// Write implements io.Writer. A log write failure for any complete line is
// returned to the caller (the pipeline's stdio forwarder, which then
// terminates the execution as Failed — spec.md §4.5.5); Flush returns the
// failure for the trailing partial line the same way.
func (l *LineSplitter) Write(p []byte) (int, error) {
	l.buf.Write(p)
	for {
		line, err := l.buf.ReadString('\n')
		if err != nil {
			// No newline yet: err is io.EOF and ReadString has drained
			// the partial line (if any) from the buffer — put it back for
			// the next Write or the final Flush.
			l.buf.WriteString(line)
			break
		}
		if werr := l.emit(line); werr != nil {
			return len(p), werr
		}
	}
	return len(p), nil
}

// Flush drains any partial trailing content that never saw a newline.
func (l *LineSplitter) Flush() error {
	if l.buf.Len() == 0 {
		return nil
	}
	rest := l.buf.String()
	l.buf.Reset()
	return l.emit(rest)
}

func (l *LineSplitter) emit(line string) error {
	if line == "" {
		return nil
	}
	var err error
	switch l.stream {
	case StreamStdout:
		err = l.writer.WriteStdout(l.ctx, line)
	case StreamStderr:
		err = l.writer.WriteStderr(l.ctx, line)
	}
	if err != nil {
		slog.Error("log line write failed", "execution_id", l.writer.executionID, "stream", l.stream, "error", err)
	}
	return err
}
