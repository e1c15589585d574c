// Package bootstrap ferries a freshly exec'd child into a running rexec
// stream: a tiny stage-one helper reads a length-prefixed, compressed
// payload over its stdin, then execs the real remote interpreter which
// continues the conversation on the same descriptors.
package bootstrap

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// Payload is everything a freshly-bootstrapped remote interpreter needs to
// construct its "parent" Context and start logging at the right level.
type Payload struct {
	ContextName string
	KeyHex      string
	ParentAddr  string
	LogLevel    string
}

// Encode zlib-compresses the gob encoding of p.
func Encode(p Payload) ([]byte, error) {
	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(p); err != nil {
		return nil, fmt.Errorf("bootstrap: encoding payload: %w", err)
	}

	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	if _, err := w.Write(raw.Bytes()); err != nil {
		return nil, fmt.Errorf("bootstrap: compressing payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("bootstrap: closing compressor: %w", err)
	}
	return compressed.Bytes(), nil
}

// Decode reverses Encode.
func Decode(data []byte) (Payload, error) {
	var p Payload
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return p, fmt.Errorf("bootstrap: decompressing payload: %w", err)
	}
	defer r.Close()
	if err := gob.NewDecoder(r).Decode(&p); err != nil {
		return p, fmt.Errorf("bootstrap: decoding payload: %w", err)
	}
	return p, nil
}

// WriteFramed writes the bootstrap stdin format: an ASCII decimal length, a
// newline, then exactly that many payload bytes.
func WriteFramed(w io.Writer, payload []byte) error {
	if _, err := fmt.Fprintf(w, "%d\n", len(payload)); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFramed reverses WriteFramed. r must not be read from again except
// through the same *bufio.Reader once ReadFramed returns, since a bufio
// reader may have buffered bytes past the length line.
func ReadFramed(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("bootstrap: reading length header: %w", err)
	}
	length, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: malformed length header %q: %w", line, err)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("bootstrap: reading payload body: %w", err)
	}
	return buf, nil
}
