// Package wire implements rexec's value marshaller: the conversion between
// in-language values and the opaque byte blobs carried inside frame
// payloads.
//
// Three concerns are layered here:
//
//   - generic encode/decode of primitives, sequences, mappings, and
//     user-defined record types, via encoding/gob;
//   - a per-Marshaller (i.e. per-Stream) allow-list gating which
//     user-defined record type names may be decoded off the wire, since
//     gob's own type registry is process-global and would otherwise let
//     any stream decode any type any other stream ever allowed;
//   - transparent compression of large bodies using a selectable codec.
package wire

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4"
)

// ErrDisallowedType is returned when decoding a value whose concrete type
// was never allow-listed on this Marshaller. It is a corrupt-frame-class
// error: fatal for the owning stream.
var ErrDisallowedType = errors.New("wire: type not in stream's allow-list")

// ErrEmptyPayload is returned when Unmarshal is given a zero-length blob.
var ErrEmptyPayload = errors.New("wire: empty payload")

// Codec selects the compression applied to large marshalled bodies.
type Codec byte

const (
	CodecNone Codec = iota
	CodecSnappy
	CodecLZ4
)

// CompressionThreshold is the body size, in bytes, above which Marshal
// applies the configured Codec. Bodies at or under the threshold are sent
// uncompressed regardless of the configured codec — compression overhead
// isn't worth it for a handful of bytes.
const CompressionThreshold = 1024

// Callable is implemented by values that should cross the wire as a
// remote-callable reference rather than attempting to serialise a closure.
// An implementation returns the originating stream's ID and a call-site
// ID. No type in this module outside tests implements it.
type Callable interface {
	FuncRefTag() (streamID uint32, callSite uint64)
}

// FuncRef is what a Callable becomes on the wire: enough information for
// the receiving side to construct a bound proxy that calls back through
// the connection it arrived on.
type FuncRef struct {
	StreamID uint32
	CallSite uint64
}

type envKind byte

const (
	kindPlain envKind = iota
	kindFuncRef
)

// envelopeValue is the single concrete type ever gob-encoded directly; the
// user-facing value travels inside Plain (typed as interface{}, hence
// subject to gob's registration requirement and this package's allow-list).
type envelopeValue struct {
	Kind  envKind
	Plain interface{}
	Ref   FuncRef
}

var (
	preludeMu    sync.RWMutex
	preludeNames = map[string]struct{}{}
)

// RegisterPrelude registers a runtime protocol type (call bodies, replies,
// traceback frames, channel envelopes, ...) that every stream may decode
// without an explicit per-stream AllowType call. It is meant to be invoked
// from package init functions in pkg/rexec, not by application code
// exchanging user-defined records — those go through AllowType instead.
func RegisterPrelude(zero interface{}) {
	gob.Register(zero)
	preludeMu.Lock()
	preludeNames[typeName(zero)] = struct{}{}
	preludeMu.Unlock()
}

func isPrelude(name string) bool {
	preludeMu.RLock()
	defer preludeMu.RUnlock()
	_, ok := preludeNames[name]
	return ok
}

func typeName(v interface{}) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

func init() {
	// Primitives, sequences, and mappings spec.md requires marshalling
	// without any allow-list gate: pre-register the common container
	// shapes so arbitrary combinations of them need no per-stream opt-in,
	// mirroring how a Python pickler handles built-in types for free.
	for _, zero := range []interface{}{
		false, 0, int64(0), float64(0), "", []byte(nil),
		[]interface{}(nil), map[string]interface{}(nil),
		[]string(nil), []int(nil), []int64(nil), []float64(nil),
	} {
		RegisterPrelude(zero)
	}
}

// Marshaller converts values to and from framed bodies for one Stream. The
// zero value is not usable; construct with New.
type Marshaller struct {
	mu      sync.RWMutex
	allowed map[string]struct{}
	codec   Codec
}

// New returns a Marshaller that compresses bodies over CompressionThreshold
// with codec.
func New(codec Codec) *Marshaller {
	return &Marshaller{allowed: map[string]struct{}{}, codec: codec}
}

// AllowType permits this Marshaller to decode values whose concrete type
// matches zero's. It also registers zero with gob, which is process-global
// — the per-instance allowed set is what actually enforces the spec's
// per-stream gate on top of gob's global registry.
func (m *Marshaller) AllowType(zero interface{}) {
	gob.Register(zero)
	m.mu.Lock()
	m.allowed[typeName(zero)] = struct{}{}
	m.mu.Unlock()
}

func (m *Marshaller) isAllowed(name string) bool {
	if isPrelude(name) {
		return true
	}
	m.mu.RLock()
	_, ok := m.allowed[name]
	m.mu.RUnlock()
	return ok
}

// Marshal encodes v into a codec-tagged body suitable for framing: a
// one-byte Codec tag, then the gob encoding, compressed with the
// Marshaller's codec only when it exceeds CompressionThreshold. If v
// implements Callable, it is substituted with a FuncRef
// rather than encoded directly.
func (m *Marshaller) Marshal(v interface{}) ([]byte, error) {
	env := envelopeValue{Kind: kindPlain, Plain: v}
	if c, ok := v.(Callable); ok {
		sid, cs := c.FuncRefTag()
		env = envelopeValue{Kind: kindFuncRef, Ref: FuncRef{StreamID: sid, CallSite: cs}}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&env); err != nil {
		return nil, fmt.Errorf("wire: encode: %w", err)
	}
	raw := buf.Bytes()

	if len(raw) <= CompressionThreshold || m.codec == CodecNone {
		return append([]byte{byte(CodecNone)}, raw...), nil
	}
	compressed, err := compress(m.codec, raw)
	if err != nil {
		return nil, err
	}
	return append([]byte{byte(m.codec)}, compressed...), nil
}

// Unmarshal decodes a body produced by Marshal. For a kindFuncRef body it
// returns the FuncRef value itself, since wire has no notion of a live
// stream to call back through; pkg/rexec does not turn it into a bound
// proxy, so it reaches callers as a plain FuncRef.
func (m *Marshaller) Unmarshal(data []byte) (interface{}, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}

	codec := Codec(data[0])
	raw := data[1:]
	if codec != CodecNone {
		var err error
		raw, err = decompress(codec, raw)
		if err != nil {
			return nil, err
		}
	}

	var env envelopeValue
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&env); err != nil {
		return nil, fmt.Errorf("wire: decode: %w", err)
	}

	if env.Kind == kindFuncRef {
		return env.Ref, nil
	}

	name := typeName(env.Plain)
	if !m.isAllowed(name) {
		return nil, fmt.Errorf("%w: %s", ErrDisallowedType, name)
	}
	return env.Plain, nil
}

func compress(codec Codec, raw []byte) ([]byte, error) {
	switch codec {
	case CodecSnappy:
		return snappy.Encode(nil, raw), nil
	case CodecLZ4:
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return nil, fmt.Errorf("wire: lz4 compress: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("wire: lz4 compress: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return raw, nil
	}
}

func decompress(codec Codec, data []byte) ([]byte, error) {
	switch codec {
	case CodecSnappy:
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("wire: snappy decompress: %w", err)
		}
		return out, nil
	case CodecLZ4:
		zr := lz4.NewReader(bytes.NewReader(data))
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("wire: lz4 decompress: %w", err)
		}
		return out, nil
	default:
		return data, nil
	}
}
