package rexec

// FetchModule asks the peer for the named module's source over
// HandleGetModule and blocks for the reply. There is no deadline here
// deliberately — a remote interpreter calling this has already decided it
// cannot proceed without the module, so the same "sacrifice the stream on
// timeout" tradeoff CallWithDeadline makes would just trade one failure
// mode for another; callers that want a bound should wrap this in their
// own context and race it against Disconnect.
func (c *Context) FetchModule(name string) ([]byte, bool, error) {
	if c.stream == nil || c.stream.State() == StateDisconnected {
		return nil, false, &StreamError{Context: c.Name, Err: ErrStreamLost}
	}

	replyHandle := c.stream.AllocHandle()
	results := make(chan callWaiter, 1)
	c.stream.AddHandleCB(func(closed bool, body []byte) {
		results <- callWaiter{closed: closed, body: body}
	}, replyHandle, false)

	req := ModuleRequest{ReplyHandle: replyHandle, Name: name}
	if err := c.stream.Enqueue(HandleGetModule, req); err != nil {
		c.stream.removeHandleCB(replyHandle)
		return nil, false, &StreamError{Context: c.Name, Err: err}
	}

	res := <-results
	if res.closed {
		return nil, false, &StreamError{Context: c.Name, Err: ErrStreamLost}
	}
	v, err := c.stream.marsh.Unmarshal(res.body)
	if err != nil {
		return nil, false, &CorruptFrameError{Context: c.Name, Reason: err.Error()}
	}
	reply, ok := v.(ModuleReply)
	if !ok {
		return nil, false, &CorruptFrameError{Context: c.Name, Reason: "module reply had unexpected type"}
	}
	return reply.Source, reply.Found, nil
}

// ServeModules installs a persistent handler on HandleGetModule that
// answers ModuleRequests from lookup, the controller-side half of the
// import fallback. lookup is typically (*modsrc.Registry).Lookup.
func (c *Context) ServeModules(lookup func(name string) ([]byte, bool)) {
	c.stream.AddHandleCB(func(closed bool, body []byte) {
		if closed {
			return
		}
		v, err := c.stream.marsh.Unmarshal(body)
		if err != nil {
			return
		}
		req, ok := v.(ModuleRequest)
		if !ok {
			return
		}
		src, found := lookup(req.Name)
		_ = c.stream.Enqueue(req.ReplyHandle, ModuleReply{Found: found, Source: src})
	}, HandleGetModule, true)
}
