// Package ndi wraps the NDI runtime for discovering, receiving and sending
// video and audio over a local network.
//
// Every native handle has a Go owner with an idempotent Close:
//
//	Library  -> Finder
//	         -> Receiver -> FrameSync
//	         -> Sender
//
// Closing the Library closes whatever it still owns, newest first, so a
// deferred lib.Close is enough to release everything on any exit path.
// Frames returned by a capture are freed exactly once: by an explicit
// Free, by the next capture, or by Close.
//
// Captures return a Frame, a closed set of variants (NoFrame, *VideoFrame,
// *AudioFrame, *MetadataFrame, StatusChange, SourceChange, ConnectionLost)
// meant to be used in a type switch.
//
// # Backends
//
// The handle wrappers drive a Backend. NewNativeBackend loads libndi with
// purego at run time, so the package builds with CGO_ENABLED=0 and without
// the SDK installed. The library is searched for in:
//
//   - the path passed to NewNativeBackend
//   - NDI_RUNTIME_DIR_V6, NDI_RUNTIME_DIR_V5 and NDI_LIB_PATH
//   - the executable's directory and ../lib next to it
//   - build/ under the module root
//   - the usual system library directories
//
// Package loopback provides an in-process Backend for tests and demos.
//
// # Audio
//
// Audio frames are planar 32-bit float where 1.0 is +4 dBu. ToInterleaved16
// converts them to interleaved 16-bit with a chosen reference level;
// Library.Interleave16 prefers the runtime's own converter when the backend
// has one.
//
// # Example programs
//
// examples/ holds the command line programs: ndi-find, ndi-recv,
// ndi-recv-framesync, ndi-recv-audio16 and ndi-send-audio. They share the
// configuration in internal/cli; every flag can also be set from an NDI_*
// environment variable or ndi-examples.yaml.
package ndi
