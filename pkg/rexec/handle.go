package rexec

import (
	"encoding/binary"

	"github.com/rexecio/rexec/internal/wire"
)

// Handle demultiplexes frames on a Stream to the callback that should
// receive them. 0 and 1 are reserved; every other value is allocated
// per-stream by Stream.AllocHandle.
type Handle = uint64

const (
	// HandleGetModule carries import-fallback requests/replies (§4.9).
	HandleGetModule Handle = 0
	// HandleCallFunction carries CallWithDeadline requests (§4.5).
	HandleCallFunction Handle = 1

	firstDynamicHandle Handle = 1
)

// callBody is what travels on HandleCallFunction: a request to invoke
// module.func(args...) and deliver the result on replyHandle.
type callBody struct {
	ReplyHandle Handle
	Module      string
	Func        string
	Args        []interface{}
}

// callReply is what travels back on a call's reply handle.
type callReply struct {
	Success bool
	Value   interface{}
	Error   string
	Trace   []TraceFrame
}

// channelBody is what travels on a Channel's handle: closed signals the
// peer called Close; Value is the payload otherwise.
type channelBody struct {
	Closed bool
	Value  interface{}
}

// ModuleRequest/ModuleReply implement the GetModule side of the import
// fallback (§4.9): a remote interpreter's registry miss becomes a
// ModuleRequest on HandleGetModule, answered with a ModuleReply.
type ModuleRequest struct {
	ReplyHandle Handle
	Name        string
}

type ModuleReply struct {
	Found  bool
	Source []byte
}

func init() {
	for _, zero := range []interface{}{
		callBody{}, callReply{}, channelBody{}, TraceFrame{},
		ModuleRequest{}, ModuleReply{},
	} {
		wire.RegisterPrelude(zero)
	}
}

// encodeEnvelope prefixes a marshalled body with its destination handle.
// This pairing is plain binary, not gob — the handle is fixed-width and
// the body is already an opaque, independently marshalled blob, so nesting
// it inside another gob layer would buy nothing.
func encodeEnvelope(h Handle, body []byte) []byte {
	out := make([]byte, 8+len(body))
	binary.BigEndian.PutUint64(out, h)
	copy(out[8:], body)
	return out
}

func decodeEnvelope(payload []byte) (Handle, []byte, error) {
	if len(payload) < 8 {
		return 0, nil, ErrUnknownHandle
	}
	h := binary.BigEndian.Uint64(payload)
	return h, payload[8:], nil
}
