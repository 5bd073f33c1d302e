package pipeline

// deliver hands buf to the handler and then calls each drop func, in
// order, even if the handler panics. The drop funcs release the
// references the callback itself holds; references taken with
// Buffer.Retain during OnBuffer stay valid.
func deliver(h Handler, buf Buffer, drops ...func()) {
	defer func() {
		for _, drop := range drops {
			drop()
		}
	}()
	h.OnBuffer(buf)
}
