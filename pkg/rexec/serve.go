package rexec

import (
	"fmt"

	"github.com/rexecio/rexec/internal/registry"
)

// MissHandler is consulted when reg has no registration for (module, fn);
// it gets one chance to resolve and register one before ServeCalls gives
// up. Typically built from Context.FetchModule plus a caller-supplied
// modsrc.Installer.
type MissHandler func(module, fn string) (registry.Func, error)

// ServeCalls installs a persistent handler on HandleCallFunction that
// dispatches incoming callBody requests through reg, replying with
// (success, value) or (description, trace) on each call's reply handle —
// this is the remote-main side of CallWithDeadline.
func (c *Context) ServeCalls(reg *registry.Registry, onMiss MissHandler) {
	c.stream.AddHandleCB(func(closed bool, body []byte) {
		if closed {
			return
		}
		v, err := c.stream.marsh.Unmarshal(body)
		if err != nil {
			return
		}
		call, ok := v.(callBody)
		if !ok {
			return
		}
		go c.serveOneCall(reg, onMiss, call)
	}, HandleCallFunction, true)
}

func (c *Context) serveOneCall(reg *registry.Registry, onMiss MissHandler, call callBody) {
	defer func() {
		if r := recover(); r != nil {
			c.replyFailure(call.ReplyHandle, fmt.Sprintf("panic: %v", r), captureTrace(0))
		}
	}()

	fn, err := reg.Lookup(call.Module, call.Func)
	if err != nil {
		if onMiss != nil {
			fn, err = onMiss(call.Module, call.Func)
		}
	}
	if err != nil {
		c.replyFailure(call.ReplyHandle, err.Error(), nil)
		return
	}

	value, err := fn(call.Args)
	if err != nil {
		c.replyFailure(call.ReplyHandle, err.Error(), captureTrace(0))
		return
	}
	_ = c.stream.Enqueue(call.ReplyHandle, callReply{Success: true, Value: value})
}

func (c *Context) replyFailure(replyHandle Handle, description string, trace []TraceFrame) {
	_ = c.stream.Enqueue(replyHandle, callReply{Success: false, Error: description, Trace: trace})
}
