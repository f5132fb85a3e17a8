package perf

import (
	"os"
	"unsafe"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

const (
	// defaultDataPages is the number of data pages mapped for the
	// sample area, power of two as the kernel requires.
	defaultDataPages = 256

	// defaultSampleFreq is the sampling frequency in Hz.
	defaultSampleFreq = 99
)

// Buffer is a performance counter sample stream bound to one process:
// the perf event descriptor and the kernel-shared memory-mapped ring the
// kernel delivers call chain records into. Exclusively owned by its
// creator; Drain must not be called concurrently.
type Buffer struct {
	pid  int
	fd   int
	mmap []byte
	ring *ring

	closed bool

	*BufferOptions
}

type BufferOptions struct {
	dataPages    int
	sampleFreq   uint64
	kernelStacks bool
	logger       log.Logger
}

type BufferOption func(*Buffer)

func WithBufferDataPages(pages int) BufferOption {
	return func(b *Buffer) {
		b.dataPages = pages
	}
}

func WithBufferSampleFreq(freq uint64) BufferOption {
	return func(b *Buffer) {
		b.sampleFreq = freq
	}
}

func WithBufferKernelStacks(kernelStacks bool) BufferOption {
	return func(b *Buffer) {
		b.kernelStacks = kernelStacks
	}
}

func WithBufferLogger(logger log.Logger) BufferOption {
	return func(b *Buffer) {
		b.logger = logger
	}
}

// Open creates a perf event stream sampling the call chain of the target
// process on the software CPU clock, and maps the shared ring buffer.
// It fails with ErrPermission when the calling context lacks the rights
// to profile the target.
func Open(pid int, opts ...BufferOption) (*Buffer, error) {
	buffer := &Buffer{
		pid: pid,
		fd:  -1,
		BufferOptions: &BufferOptions{
			dataPages:  defaultDataPages,
			sampleFreq: defaultSampleFreq,
		},
	}
	for _, opt := range opts {
		opt(buffer)
	}

	attr := &unix.PerfEventAttr{
		Type:             unix.PERF_TYPE_SOFTWARE,
		Config:           unix.PERF_COUNT_SW_CPU_CLOCK,
		Size:             uint32(unsafe.Sizeof(unix.PerfEventAttr{})),
		Sample:           buffer.sampleFreq,
		Sample_type:      unix.PERF_SAMPLE_TIME | unix.PERF_SAMPLE_CALLCHAIN,
		Sample_max_stack: MaxStackDepth,
		Bits:             unix.PerfBitDisabled | unix.PerfBitFreq | unix.PerfBitExcludeHv,
		Wakeup:           1,
	}
	if !buffer.kernelStacks {
		attr.Bits |= unix.PerfBitExcludeKernel
	}

	fd, err := unix.PerfEventOpen(attr, pid, -1, -1, unix.PERF_FLAG_FD_CLOEXEC)
	if err != nil {
		if errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES) {
			return nil, errors.Wrapf(ErrPermission, "pid %d: %v", pid, err)
		}
		return nil, errors.Wrapf(ErrOpen, "pid %d: %v", pid, err)
	}
	buffer.fd = fd

	pageSize := os.Getpagesize()
	mmapSize := (1 + buffer.dataPages) * pageSize
	mmap, err := unix.Mmap(fd, 0, mmapSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(ErrOpen, "mapping %d sample pages: %v", buffer.dataPages, err)
	}
	buffer.mmap = mmap
	buffer.ring = newRing(
		(*unix.PerfEventMmapPage)(unsafe.Pointer(&mmap[0])),
		mmap[pageSize:mmapSize],
	)

	if err := unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_ENABLE, 0); err != nil {
		buffer.Close()
		return nil, errors.Wrapf(ErrOpen, "enabling perf event stream: %v", err)
	}

	buffer.logger.Debug().
		Int("pid", pid).
		Int("data_pages", buffer.dataPages).
		Uint64("freq_hz", buffer.sampleFreq).
		Msg("perf sample buffer opened")

	return buffer, nil
}

// Drain consumes every record currently available in the ring buffer
// and returns them together with the number of samples the kernel
// dropped since the previous drain. It never blocks and can be called
// again on the next tick; a record is never returned twice.
func (b *Buffer) Drain() ([]Record, uint64, error) {
	if b.closed {
		return nil, 0, ErrBufferClosed
	}

	records, lost := b.ring.readAvailable()
	if lost > 0 {
		b.logger.Warn().Uint64("lost", lost).Msg("kernel dropped samples")
	}

	return records, lost, nil
}

// Close disables the event stream, unmaps the shared region and releases
// the descriptor. Idempotent.
func (b *Buffer) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true

	if b.fd >= 0 {
		// Best effort: the fd may already be dead with the target.
		_ = unix.IoctlSetInt(b.fd, unix.PERF_EVENT_IOC_DISABLE, 0)
	}
	if b.mmap != nil {
		if err := unix.Munmap(b.mmap); err != nil {
			return errors.Wrap(err, "error unmapping sample buffer")
		}
		b.mmap = nil
		b.ring = nil
	}
	if b.fd >= 0 {
		if err := unix.Close(b.fd); err != nil {
			return errors.Wrap(err, "error closing perf event descriptor")
		}
		b.fd = -1
	}

	return nil
}
