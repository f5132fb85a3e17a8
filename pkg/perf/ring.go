package perf

import (
	"encoding/binary"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

const (
	// MaxStackDepth is the size of a captured call chain, as for the
	// default PERF_MAX_STACK_DEPTH.
	MaxStackDepth = 127

	perfEventHeaderSize = 8

	// Call chain entries above this value are context markers
	// (PERF_CONTEXT_*), not instruction pointers.
	perfContextMax = ^uint64(4095)
)

// Record is one raw kernel-produced sample: the capture timestamp and
// the call chain instruction pointers, innermost frame first.
type Record struct {
	Time      uint64
	CallChain []uint64
}

// ring is the kernel-shared sample area: a metadata page holding the
// producer (data_head) and consumer (data_tail) cursors, and a
// power-of-two data region the kernel writes records into.
//
// The kernel is the single producer and this process the single
// consumer; the cursors are the only synchronization. data_head must be
// read with acquire ordering before any record byte is consumed, and
// data_tail must be published with release ordering after consumption so
// the kernel may safely reuse the space. No lock is involved: the kernel
// producer never waits.
type ring struct {
	meta *unix.PerfEventMmapPage
	data []byte
	size uint64
}

func newRing(meta *unix.PerfEventMmapPage, data []byte) *ring {
	return &ring{
		meta: meta,
		data: data,
		size: uint64(len(data)),
	}
}

// readAvailable consumes every complete record currently in the ring and
// returns the parsed samples plus the kernel-reported count of records
// dropped because the producer outpaced the consumer.
func (r *ring) readAvailable() ([]Record, uint64) {
	head := atomic.LoadUint64(&r.meta.Data_head)
	tail := r.meta.Data_tail

	var records []Record
	var lost uint64

	for tail < head {
		header := r.readBytes(tail, perfEventHeaderSize)
		evType := binary.LittleEndian.Uint32(header[0:4])
		evSize := uint64(binary.LittleEndian.Uint16(header[6:8]))

		if evSize < perfEventHeaderSize || tail+evSize > head {
			// Truncated record: the producer advanced the head
			// before finishing the write. Leave it for the next
			// drain.
			break
		}

		payload := r.readBytes(tail+perfEventHeaderSize, evSize-perfEventHeaderSize)
		switch evType {
		case unix.PERF_RECORD_SAMPLE:
			if record, ok := parseSample(payload); ok {
				records = append(records, record)
			}
		case unix.PERF_RECORD_LOST:
			// {id u64, lost u64}
			if len(payload) >= 16 {
				lost += binary.LittleEndian.Uint64(payload[8:16])
			}
		}

		tail += evSize
	}

	atomic.StoreUint64(&r.meta.Data_tail, tail)

	return records, lost
}

// readBytes copies n bytes starting at the ring offset, handling the
// wrap at the end of the data region.
func (r *ring) readBytes(off, n uint64) []byte {
	out := make([]byte, n)
	start := off & (r.size - 1)
	if start+n <= r.size {
		copy(out, r.data[start:start+n])
	} else {
		first := r.size - start
		copy(out, r.data[start:])
		copy(out[first:], r.data[:n-first])
	}

	return out
}

// parseSample decodes a PERF_RECORD_SAMPLE payload laid out for
// PERF_SAMPLE_TIME|PERF_SAMPLE_CALLCHAIN: {time u64, nr u64, ips[nr]}.
// Context markers and zero entries are dropped from the chain.
func parseSample(payload []byte) (Record, bool) {
	if len(payload) < 16 {
		return Record{}, false
	}

	record := Record{
		Time: binary.LittleEndian.Uint64(payload[0:8]),
	}
	nr := binary.LittleEndian.Uint64(payload[8:16])
	if nr > MaxStackDepth {
		nr = MaxStackDepth
	}
	if len(payload) < int(16+nr*8) {
		return Record{}, false
	}

	record.CallChain = make([]uint64, 0, nr)
	for i := uint64(0); i < nr; i++ {
		ip := binary.LittleEndian.Uint64(payload[16+i*8 : 24+i*8])
		if ip == 0 || ip >= perfContextMax {
			continue
		}
		record.CallChain = append(record.CallChain, ip)
	}

	return record, true
}
