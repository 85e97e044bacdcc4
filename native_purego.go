//go:build darwin || linux

// Native NDI runtime binding via purego.
//
// The vendor library is loaded with dlopen at runtime, so the module
// builds without the SDK installed and without cgo.

package ndi

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/sirupsen/logrus"
)

var (
	ndiOnce    sync.Once
	ndiHandle  uintptr
	ndiInitErr error
)

// libndi function pointers
var (
	ndiInitialize      func() bool
	ndiDestroy         func()
	ndiVersion         func() uintptr
	ndiIsSupportedCPU  func() bool
	ndiFindCreateV2    func(desc uintptr) uintptr
	ndiFindDestroy     func(inst uintptr)
	ndiFindWait        func(inst uintptr, timeoutMs uint32) bool
	ndiFindGetSources  func(inst uintptr, count uintptr) uintptr
	ndiRecvCreateV3    func(desc uintptr) uintptr
	ndiRecvDestroy     func(inst uintptr)
	ndiRecvConnect     func(inst uintptr, src uintptr)
	ndiRecvCaptureV2   func(inst uintptr, video, audio, meta uintptr, timeoutMs uint32) int32
	ndiRecvFreeVideoV2 func(inst uintptr, video uintptr)
	ndiRecvFreeAudioV2 func(inst uintptr, audio uintptr)
	ndiRecvFreeMeta    func(inst uintptr, meta uintptr)
	ndiRecvGetConns    func(inst uintptr) int32

	ndiFrameSyncCreate       func(recv uintptr) uintptr
	ndiFrameSyncDestroy      func(inst uintptr)
	ndiFrameSyncCaptureVideo func(inst uintptr, video uintptr, fieldType int32)
	ndiFrameSyncFreeVideo    func(inst uintptr, video uintptr)
	ndiFrameSyncCaptureAudio func(inst uintptr, audio uintptr, sampleRate, channels, samples int32)
	ndiFrameSyncFreeAudio    func(inst uintptr, audio uintptr)
	ndiFrameSyncQueueDepth   func(inst uintptr) int32

	ndiSendCreate     func(desc uintptr) uintptr
	ndiSendDestroy    func(inst uintptr)
	ndiSendAudioV2    func(inst uintptr, audio uintptr)
	ndiSendGetConns   func(inst uintptr, timeoutMs uint32) int32
	ndiUtilAudioTo16s func(src uintptr, dst uintptr)
)

// C struct mirrors, 64-bit layout.

type cSource struct {
	pName uintptr
	pURL  uintptr
}

type cFindCreate struct {
	showLocalSources bool
	pGroups          uintptr
	pExtraIPs        uintptr
}

type cRecvCreateV3 struct {
	source           cSource
	colorFormat      int32
	bandwidth        int32
	allowVideoFields bool
	pRecvName        uintptr
}

type cVideoFrameV2 struct {
	xres        int32
	yres        int32
	fourCC      uint32
	frameRateN  int32
	frameRateD  int32
	aspectRatio float32
	format      int32
	timecode    int64
	pData       uintptr
	lineStride  int32
	pMetadata   uintptr
	timestamp   int64
}

type cAudioFrameV2 struct {
	sampleRate    int32
	channels      int32
	samples       int32
	timecode      int64
	pData         uintptr
	channelStride int32
	pMetadata     uintptr
	timestamp     int64
}

type cMetadataFrame struct {
	length   int32
	timecode int64
	pData    uintptr
}

type cAudioInterleaved16 struct {
	sampleRate     int32
	channels       int32
	samples        int32
	timecode       int64
	referenceLevel int32
	pData          uintptr
}

type cSendCreate struct {
	pName      uintptr
	pGroups    uintptr
	clockVideo bool
	clockAudio bool
}

// timecodeSynthesize asks the library to fill in the timecode.
const timecodeSynthesize = int64(^uint64(0) >> 1)

func loadNDI(explicit string) error {
	ndiOnce.Do(func() {
		ndiInitErr = loadNDILib(explicit)
	})
	return ndiInitErr
}

func loadNDILib(explicit string) error {
	var lastErr error
	for _, path := range ndiLibPaths(explicit) {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		ndiHandle = handle
		if err := loadNDISymbols(); err != nil {
			purego.Dlclose(handle)
			lastErr = err
			continue
		}
		logrus.WithFields(logrus.Fields{
			"function": "loadNDILib",
			"path":     path,
		}).Debug("loaded NDI runtime")
		return nil
	}

	if lastErr != nil {
		return fmt.Errorf("%w: %w", ErrNotAvailable, lastErr)
	}
	return fmt.Errorf("%w: libndi not found in any standard location", ErrNotAvailable)
}

func ndiLibPaths(explicit string) []string {
	var paths []string
	if explicit != "" {
		paths = append(paths, explicit)
	}

	names := []string{"libndi.so.6", "libndi.so.5", "libndi.so"}
	if runtime.GOOS == "darwin" {
		names = []string{"libndi.dylib"}
	}

	var dirs []string
	for _, env := range []string{"NDI_RUNTIME_DIR_V6", "NDI_RUNTIME_DIR_V5", "NDI_LIB_PATH"} {
		if dir := os.Getenv(env); dir != "" {
			dirs = append(dirs, dir)
		}
	}
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		dirs = append(dirs, exeDir, filepath.Join(exeDir, "..", "lib"))
	}
	if root := findModuleRoot(); root != "" {
		dirs = append(dirs, filepath.Join(root, "build"))
	}
	switch runtime.GOOS {
	case "darwin":
		dirs = append(dirs,
			"/Library/NDI SDK for Apple/lib/macOS",
			"/usr/local/lib",
			"/opt/homebrew/lib",
		)
	case "linux":
		dirs = append(dirs,
			"/usr/local/lib",
			"/usr/lib",
			"/usr/lib/x86_64-linux-gnu",
			"/usr/lib/aarch64-linux-gnu",
		)
	}

	for _, dir := range dirs {
		for _, name := range names {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	// Let the dynamic loader search its own path last.
	return append(paths, names...)
}

func loadNDISymbols() (err error) {
	// RegisterLibFunc panics on a missing symbol.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("missing NDI symbol: %v", r)
		}
	}()

	purego.RegisterLibFunc(&ndiInitialize, ndiHandle, "NDIlib_initialize")
	purego.RegisterLibFunc(&ndiDestroy, ndiHandle, "NDIlib_destroy")
	purego.RegisterLibFunc(&ndiVersion, ndiHandle, "NDIlib_version")
	purego.RegisterLibFunc(&ndiIsSupportedCPU, ndiHandle, "NDIlib_is_supported_CPU")

	// Discovery
	purego.RegisterLibFunc(&ndiFindCreateV2, ndiHandle, "NDIlib_find_create_v2")
	purego.RegisterLibFunc(&ndiFindDestroy, ndiHandle, "NDIlib_find_destroy")
	purego.RegisterLibFunc(&ndiFindWait, ndiHandle, "NDIlib_find_wait_for_sources")
	purego.RegisterLibFunc(&ndiFindGetSources, ndiHandle, "NDIlib_find_get_current_sources")

	// Receive
	purego.RegisterLibFunc(&ndiRecvCreateV3, ndiHandle, "NDIlib_recv_create_v3")
	purego.RegisterLibFunc(&ndiRecvDestroy, ndiHandle, "NDIlib_recv_destroy")
	purego.RegisterLibFunc(&ndiRecvConnect, ndiHandle, "NDIlib_recv_connect")
	purego.RegisterLibFunc(&ndiRecvCaptureV2, ndiHandle, "NDIlib_recv_capture_v2")
	purego.RegisterLibFunc(&ndiRecvFreeVideoV2, ndiHandle, "NDIlib_recv_free_video_v2")
	purego.RegisterLibFunc(&ndiRecvFreeAudioV2, ndiHandle, "NDIlib_recv_free_audio_v2")
	purego.RegisterLibFunc(&ndiRecvFreeMeta, ndiHandle, "NDIlib_recv_free_metadata")
	purego.RegisterLibFunc(&ndiRecvGetConns, ndiHandle, "NDIlib_recv_get_no_connections")

	// Frame sync
	purego.RegisterLibFunc(&ndiFrameSyncCreate, ndiHandle, "NDIlib_framesync_create")
	purego.RegisterLibFunc(&ndiFrameSyncDestroy, ndiHandle, "NDIlib_framesync_destroy")
	purego.RegisterLibFunc(&ndiFrameSyncCaptureVideo, ndiHandle, "NDIlib_framesync_capture_video")
	purego.RegisterLibFunc(&ndiFrameSyncFreeVideo, ndiHandle, "NDIlib_framesync_free_video")
	purego.RegisterLibFunc(&ndiFrameSyncCaptureAudio, ndiHandle, "NDIlib_framesync_capture_audio")
	purego.RegisterLibFunc(&ndiFrameSyncFreeAudio, ndiHandle, "NDIlib_framesync_free_audio")
	purego.RegisterLibFunc(&ndiFrameSyncQueueDepth, ndiHandle, "NDIlib_framesync_audio_queue_depth")

	// Send
	purego.RegisterLibFunc(&ndiSendCreate, ndiHandle, "NDIlib_send_create")
	purego.RegisterLibFunc(&ndiSendDestroy, ndiHandle, "NDIlib_send_destroy")
	purego.RegisterLibFunc(&ndiSendAudioV2, ndiHandle, "NDIlib_send_send_audio_v2")
	purego.RegisterLibFunc(&ndiSendGetConns, ndiHandle, "NDIlib_send_get_no_connections")

	// Utilities
	purego.RegisterLibFunc(&ndiUtilAudioTo16s, ndiHandle, "NDIlib_util_audio_to_interleaved_16s_v2")

	return nil
}

// IsAvailable reports whether the NDI runtime can be loaded.
func IsAvailable() bool {
	return loadNDI("") == nil
}

type nativeBackend struct{}

// NewNativeBackend loads the NDI runtime. libPath, when not empty, is
// tried before the standard locations.
func NewNativeBackend(libPath string) (Backend, error) {
	if err := loadNDI(libPath); err != nil {
		return nil, err
	}
	return nativeBackend{}, nil
}

func (nativeBackend) Initialize() error {
	if !ndiInitialize() {
		if !ndiIsSupportedCPU() {
			return errors.New("CPU not supported")
		}
		return errors.New("NDIlib_initialize returned false")
	}
	return nil
}

func (nativeBackend) Destroy() { ndiDestroy() }

func (nativeBackend) Version() string { return goStringFromPtr(ndiVersion(), 256) }

func (nativeBackend) FindCreate(cfg FinderConfig) (FindInstance, error) {
	var pin runtime.Pinner
	defer pin.Unpin()

	desc := &cFindCreate{
		showLocalSources: cfg.ShowLocalSources,
		pGroups:          cString(&pin, cfg.Groups),
		pExtraIPs:        cString(&pin, cfg.ExtraIPs),
	}
	pin.Pin(desc)

	h := ndiFindCreateV2(uintptr(unsafe.Pointer(desc)))
	if h == 0 {
		return nil, fmt.Errorf("%w: find", ErrCreateFailed)
	}
	return &nativeFind{h: h}, nil
}

func (nativeBackend) RecvCreate(cfg ReceiverConfig) (RecvInstance, error) {
	var pin runtime.Pinner
	defer pin.Unpin()

	desc := &cRecvCreateV3{
		colorFormat:      int32(cfg.ColorFormat),
		bandwidth:        int32(cfg.Bandwidth),
		allowVideoFields: cfg.AllowVideoFields,
		pRecvName:        cString(&pin, cfg.Name),
	}
	if cfg.Source != nil {
		desc.source = cSourceOf(&pin, cfg.Source)
	}
	pin.Pin(desc)

	h := ndiRecvCreateV3(uintptr(unsafe.Pointer(desc)))
	if h == 0 {
		return nil, fmt.Errorf("%w: receive", ErrCreateFailed)
	}
	return &nativeRecv{h: h}, nil
}

func (nativeBackend) FrameSyncCreate(recv RecvInstance) (FrameSyncInstance, error) {
	nr, ok := recv.(*nativeRecv)
	if !ok {
		return nil, fmt.Errorf("%w: frame sync needs a native receiver", ErrCreateFailed)
	}
	h := ndiFrameSyncCreate(nr.h)
	if h == 0 {
		return nil, fmt.Errorf("%w: frame sync", ErrCreateFailed)
	}
	return &nativeFrameSync{h: h}, nil
}

func (nativeBackend) SendCreate(cfg SenderConfig) (SendInstance, error) {
	var pin runtime.Pinner
	defer pin.Unpin()

	desc := &cSendCreate{
		pName:      cString(&pin, cfg.Name),
		pGroups:    cString(&pin, cfg.Groups),
		clockVideo: cfg.ClockVideo,
		clockAudio: cfg.ClockAudio,
	}
	pin.Pin(desc)

	h := ndiSendCreate(uintptr(unsafe.Pointer(desc)))
	if h == 0 {
		return nil, fmt.Errorf("%w: send", ErrCreateFailed)
	}
	return &nativeSend{h: h}, nil
}

// Interleave16 runs the library's own converter.
func (nativeBackend) Interleave16(dst *AudioFrameInterleaved16, src *AudioFrame, referenceLevel int) error {
	var pin runtime.Pinner
	defer pin.Unpin()

	in := cAudioFrameOf(&pin, src)
	out := &cAudioInterleaved16{
		referenceLevel: int32(referenceLevel),
		pData:          uintptr(unsafe.Pointer(&dst.Data[0])),
	}
	pin.Pin(&dst.Data[0])
	pin.Pin(out)

	ndiUtilAudioTo16s(uintptr(unsafe.Pointer(in)), uintptr(unsafe.Pointer(out)))

	dst.SampleRate = int(out.sampleRate)
	dst.Channels = int(out.channels)
	dst.Samples = int(out.samples)
	dst.Timecode = out.timecode
	dst.ReferenceLevel = referenceLevel
	return nil
}

func cSourceOf(pin *runtime.Pinner, src *Source) cSource {
	return cSource{
		pName: cString(pin, src.Name),
		pURL:  cString(pin, src.URL),
	}
}

func cAudioFrameOf(pin *runtime.Pinner, f *AudioFrame) *cAudioFrameV2 {
	desc := &cAudioFrameV2{
		sampleRate:    int32(f.SampleRate),
		channels:      int32(f.Channels),
		samples:       int32(f.Samples),
		timecode:      f.Timecode,
		channelStride: int32(f.ChannelStride),
		pMetadata:     cString(pin, f.Metadata),
		timestamp:     f.Timestamp,
	}
	if desc.timecode == 0 {
		desc.timecode = timecodeSynthesize
	}
	if len(f.Data) > 0 {
		pin.Pin(&f.Data[0])
		desc.pData = uintptr(unsafe.Pointer(&f.Data[0]))
	}
	pin.Pin(desc)
	return desc
}

type nativeFind struct{ h uintptr }

func (f *nativeFind) WaitForSources(timeout time.Duration) bool {
	return ndiFindWait(f.h, uint32(timeout/time.Millisecond))
}

func (f *nativeFind) CurrentSources() []Source {
	n := new(uint32)
	var pin runtime.Pinner
	pin.Pin(n)
	defer pin.Unpin()

	p := ndiFindGetSources(f.h, uintptr(unsafe.Pointer(n)))
	if p == 0 || *n == 0 {
		return nil
	}
	raw := unsafe.Slice((*cSource)(unsafe.Pointer(p)), *n)
	out := make([]Source, *n)
	for i, s := range raw {
		out[i] = Source{
			Name: goStringFromPtr(s.pName, 4096),
			URL:  goStringFromPtr(s.pURL, 4096),
		}
	}
	return out
}

func (f *nativeFind) Destroy() { ndiFindDestroy(f.h) }

type nativeRecv struct{ h uintptr }

func (r *nativeRecv) Connect(src *Source) {
	if src == nil {
		ndiRecvConnect(r.h, 0)
		return
	}
	var pin runtime.Pinner
	defer pin.Unpin()
	desc := cSourceOf(&pin, src)
	pin.Pin(&desc)
	ndiRecvConnect(r.h, uintptr(unsafe.Pointer(&desc)))
}

func (r *nativeRecv) Capture(timeout time.Duration) (Frame, func()) {
	video := &cVideoFrameV2{}
	audio := &cAudioFrameV2{}
	meta := &cMetadataFrame{}

	var pin runtime.Pinner
	pin.Pin(video)
	pin.Pin(audio)
	pin.Pin(meta)
	defer pin.Unpin()

	t := ndiRecvCaptureV2(r.h,
		uintptr(unsafe.Pointer(video)),
		uintptr(unsafe.Pointer(audio)),
		uintptr(unsafe.Pointer(meta)),
		uint32(timeout/time.Millisecond),
	)

	switch FrameType(t) {
	case FrameTypeVideo:
		return goVideoFrame(video), func() {
			ndiRecvFreeVideoV2(r.h, uintptr(unsafe.Pointer(video)))
		}
	case FrameTypeAudio:
		return goAudioFrame(audio), func() {
			ndiRecvFreeAudioV2(r.h, uintptr(unsafe.Pointer(audio)))
		}
	case FrameTypeMetadata:
		return goMetadataFrame(meta), func() {
			ndiRecvFreeMeta(r.h, uintptr(unsafe.Pointer(meta)))
		}
	case FrameTypeStatusChange:
		return StatusChange{}, nil
	case FrameTypeSourceChange:
		return SourceChange{}, nil
	case FrameTypeError:
		return ConnectionLost{}, nil
	default:
		return NoFrame{}, nil
	}
}

func (r *nativeRecv) Connections() int { return int(ndiRecvGetConns(r.h)) }

func (r *nativeRecv) Destroy() { ndiRecvDestroy(r.h) }

type nativeFrameSync struct{ h uintptr }

func (fs *nativeFrameSync) CaptureVideo(format FrameFormat) (*VideoFrame, func()) {
	video := &cVideoFrameV2{}
	var pin runtime.Pinner
	pin.Pin(video)
	defer pin.Unpin()

	ndiFrameSyncCaptureVideo(fs.h, uintptr(unsafe.Pointer(video)), int32(format))
	return goVideoFrame(video), func() {
		ndiFrameSyncFreeVideo(fs.h, uintptr(unsafe.Pointer(video)))
	}
}

func (fs *nativeFrameSync) CaptureAudio(sampleRate, channels, samples int) (*AudioFrame, func()) {
	audio := &cAudioFrameV2{}
	var pin runtime.Pinner
	pin.Pin(audio)
	defer pin.Unpin()

	ndiFrameSyncCaptureAudio(fs.h, uintptr(unsafe.Pointer(audio)), int32(sampleRate), int32(channels), int32(samples))
	return goAudioFrame(audio), func() {
		ndiFrameSyncFreeAudio(fs.h, uintptr(unsafe.Pointer(audio)))
	}
}

func (fs *nativeFrameSync) AudioQueueDepth() int { return int(ndiFrameSyncQueueDepth(fs.h)) }

func (fs *nativeFrameSync) Destroy() { ndiFrameSyncDestroy(fs.h) }

type nativeSend struct{ h uintptr }

func (s *nativeSend) SendAudio(frame *AudioFrame) {
	var pin runtime.Pinner
	defer pin.Unpin()
	desc := cAudioFrameOf(&pin, frame)
	ndiSendAudioV2(s.h, uintptr(unsafe.Pointer(desc)))
}

func (s *nativeSend) Connections(timeout time.Duration) int {
	return int(ndiSendGetConns(s.h, uint32(timeout/time.Millisecond)))
}

func (s *nativeSend) Destroy() { ndiSendDestroy(s.h) }

// goVideoFrame wraps a filled descriptor. Data aliases library memory.
func goVideoFrame(c *cVideoFrameV2) *VideoFrame {
	f := &VideoFrame{
		Width:       int(c.xres),
		Height:      int(c.yres),
		FourCC:      FourCC(c.fourCC),
		FrameRateN:  int(c.frameRateN),
		FrameRateD:  int(c.frameRateD),
		AspectRatio: c.aspectRatio,
		Format:      FrameFormat(c.format),
		Timecode:    c.timecode,
		Stride:      int(c.lineStride),
		Metadata:    goStringFromPtr(c.pMetadata, 1<<20),
		Timestamp:   c.timestamp,
	}
	if size := videoDataSize(f.FourCC, f.Stride, f.Width, f.Height); c.pData != 0 && size > 0 {
		f.Data = unsafe.Slice((*byte)(unsafe.Pointer(c.pData)), size)
	}
	return f
}

// goAudioFrame wraps a filled descriptor. Data aliases library memory.
func goAudioFrame(c *cAudioFrameV2) *AudioFrame {
	f := &AudioFrame{
		SampleRate:    int(c.sampleRate),
		Channels:      int(c.channels),
		Samples:       int(c.samples),
		ChannelStride: int(c.channelStride),
		Timecode:      c.timecode,
		Metadata:      goStringFromPtr(c.pMetadata, 1<<20),
		Timestamp:     c.timestamp,
	}
	if n := f.Channels * f.ChannelStride / 4; c.pData != 0 && n > 0 {
		f.Data = unsafe.Slice((*float32)(unsafe.Pointer(c.pData)), n)
	}
	return f
}

func goMetadataFrame(c *cMetadataFrame) *MetadataFrame {
	limit := 1 << 24
	if c.length > 0 {
		limit = int(c.length)
	}
	return &MetadataFrame{
		Data:     goStringFromPtr(c.pData, limit),
		Timecode: c.timecode,
	}
}

// videoDataSize returns the byte size of a frame's planes.
func videoDataSize(fourCC FourCC, stride, width, height int) int {
	if stride <= 0 || height <= 0 {
		return 0
	}
	switch fourCC {
	case FourCCUYVA:
		return stride*height + width*height
	case FourCCP216:
		return stride * height * 2
	case FourCCPA16:
		return stride * height * 3
	case FourCCYV12, FourCCI420, FourCCNV12:
		return stride * height * 3 / 2
	default:
		return stride * height
	}
}
