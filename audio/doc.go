// Package audio captures microphone audio for a realtime session and plays
// back the model's audio replies gap-free.
//
// # Capture
//
// The Engine opens a mono input stream on a Device at the device rate,
// resamples each block to the send rate, encodes it as base64 PCM16 and hands
// it to the chunk callback in hardware order.
//
// # Playback
//
// Decoded reply buffers are scheduled back to back on the output Sink using a
// PlaybackCursor: each buffer starts at max(now, next) and moves next forward
// by the buffer's duration. Interrupt pulls the cursor back to the current
// device time so the next reply starts immediately.
//
// # Devices
//
// Builds with the portaudio tag get a PortAudio-backed DefaultDevice. Other
// builds get a device whose streams fail with ErrNoDevice, which leaves the
// session text-only.
package audio
