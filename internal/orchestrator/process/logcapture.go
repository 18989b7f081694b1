package process

import (
	"bytes"
	"io"
	"os"

	"github.com/numdrassl/servermanager/internal/orchestrator/model"
)

// lineCapture is the single producer side of a ProcessHandle's ring buffer:
// it receives the child's merged stdout/stderr byte stream, writes it
// verbatim to the log file, and splits it into complete lines which are
// appended to the in-memory ring buffer for recentLogs.
type lineCapture struct {
	file    *os.File
	handle  *model.ProcessHandle
	partial bytes.Buffer
}

func newLineCapture(file *os.File, handle *model.ProcessHandle) *lineCapture {
	return &lineCapture{file: file, handle: handle}
}

func (c *lineCapture) Write(p []byte) (int, error) {
	if _, err := c.file.Write(p); err != nil {
		return 0, err
	}

	c.partial.Write(p)
	for {
		b := c.partial.Bytes()
		idx := bytes.IndexByte(b, '\n')
		if idx < 0 {
			break
		}
		line := string(bytes.TrimRight(b[:idx], "\r"))
		c.handle.AppendLog(line)
		c.partial.Next(idx + 1)
	}
	return len(p), nil
}

// flush appends any trailing partial line once the child exits.
func (c *lineCapture) flush() {
	if c.partial.Len() == 0 {
		return
	}
	c.handle.AppendLog(c.partial.String())
	c.partial.Reset()
}

var _ io.Writer = (*lineCapture)(nil)
