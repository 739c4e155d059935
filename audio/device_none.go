//go:build !portaudio

package audio

// DefaultDevice returns a device without hardware. Every stream it opens
// fails with ErrNoDevice.
func DefaultDevice() (Device, error) {
	return noDevice{}, nil
}

type noDevice struct{}

func (noDevice) OpenInput(int, int, func([]float32)) (InputStream, error) {
	return nil, ErrNoDevice
}

func (noDevice) OpenOutput(int) (Sink, error) {
	return nil, ErrNoDevice
}

func (noDevice) Close() error { return nil }
