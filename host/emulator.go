package host

// Emulator is an in-process stand-in for the device. While emulation is
// active every submitted message is handed to Exchange on the engine
// goroutine instead of the transport.
type Emulator interface {
	// Exchange processes one request. The returned code and payload form the
	// response delivered to messages that expect one. A non-nil error
	// finalizes the message with the status pkg.StatusOf maps it to, so
	// pkg.ErrCancelled cancels the message and anything unrecognized
	// disconnects it.
	Exchange(opcode uint8, payload []byte) (code uint8, resp []byte, err error)
}

// EmulatorFunc adapts a function to the [Emulator] interface.
type EmulatorFunc func(opcode uint8, payload []byte) (uint8, []byte, error)

// Exchange calls f.
func (f EmulatorFunc) Exchange(opcode uint8, payload []byte) (uint8, []byte, error) {
	return f(opcode, payload)
}

// Echo is an emulator that answers every request with its own opcode and a
// copy of its payload.
var Echo Emulator = EmulatorFunc(func(opcode uint8, payload []byte) (uint8, []byte, error) {
	return opcode, append([]byte(nil), payload...), nil
})
