package bootstrap

import (
	"io"
	"net"
	"os"
	"time"
)

// pipeConn adapts a pair of pipe-shaped fds (an *os.File read end and an
// *os.File write end, as os/exec hands back) to the net.Conn interface
// Stream expects. Deadlines are not supported — pipes never block
// indefinitely in this module's usage, and Stream never calls SetDeadline.
type pipeConn struct {
	r io.ReadCloser
	w io.WriteCloser
}

// newPipeConn wraps r/w as a net.Conn.
func newPipeConn(r io.ReadCloser, w io.WriteCloser) net.Conn {
	return &pipeConn{r: r, w: w}
}

// NewStdioConn wraps the process's own stdin/stdout as a net.Conn — what a
// freshly-exec'd remote interpreter uses as its "parent" Context's Stream,
// since stage-one handed off the same descriptors it read the bootstrap
// payload on.
func NewStdioConn() net.Conn {
	return &pipeConn{r: os.Stdin, w: os.Stdout}
}

func (p *pipeConn) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipeConn) Write(b []byte) (int, error) { return p.w.Write(b) }

func (p *pipeConn) Close() error {
	rerr := p.r.Close()
	werr := p.w.Close()
	if rerr != nil {
		return rerr
	}
	return werr
}

func (p *pipeConn) LocalAddr() net.Addr             { return pipeAddr{} }
func (p *pipeConn) RemoteAddr() net.Addr            { return pipeAddr{} }
func (p *pipeConn) SetDeadline(time.Time) error      { return nil }
func (p *pipeConn) SetReadDeadline(time.Time) error  { return nil }
func (p *pipeConn) SetWriteDeadline(time.Time) error { return nil }

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "pipe" }
