// Package forwarder implements the bidirectional byte pipe that
// drives one TCP connection's two-way flow through the fault
// pipeline until either side closes or an I/O error occurs.
package forwarder

import (
	"errors"
	"io"
	"log"
	"net"
	"sync/atomic"

	"faultline/fault"
)

const bufferSize = 8192

// Result is the outcome of forwarding one connection.
type Result struct {
	AToB int64
	BToA int64
	Err  error
}

type direction int

const (
	dirAToB direction = iota
	dirBToA
)

type dirResult struct {
	dir direction
	n   int64
	err error
}

// Forward copies bytes between a and b in both directions, passing
// every chunk read from one side through its own Injector
// (drop -> latency -> throttle) before writing it to the other side.
// connectionID is used only for logging. Forward blocks until either
// side reaches EOF or an I/O error occurs on either half, then closes
// both connections and returns the byte counters observed up to that
// point.
//
// liveAToB and liveBToA, if non-nil, are updated atomically as bytes
// are written, so a caller (e.g. the status surface's registry) can
// observe progress before the connection ends. Pass nil for either to
// skip live reporting for that direction.
func Forward(a, b net.Conn, aToBInjector, bToAInjector *fault.Injector, connectionID string, liveAToB, liveBToA *int64) Result {
	if liveAToB == nil {
		liveAToB = new(int64)
	}
	if liveBToA == nil {
		liveBToA = new(int64)
	}

	errc := make(chan dirResult, 2)

	go func() {
		n, err := pipe(b, a, aToBInjector, connectionID+" (a->b)", liveAToB)
		errc <- dirResult{dirAToB, n, err}
	}()
	go func() {
		n, err := pipe(a, b, bToAInjector, connectionID+" (b->a)", liveBToA)
		errc <- dirResult{dirBToA, n, err}
	}()

	var res Result
	first := <-errc
	res.record(first)

	// One direction finished (EOF or error); tear down both halves so
	// the still-running direction's blocking Read unblocks.
	_ = a.Close()
	_ = b.Close()

	second := <-errc
	res.record(second)

	if first.err != nil {
		res.Err = first.err
	} else if second.err != nil {
		res.Err = second.err
	}
	return res
}

func (res *Result) record(r dirResult) {
	switch r.dir {
	case dirAToB:
		res.AToB = r.n
	case dirBToA:
		res.BToA = r.n
	}
}

// pipe copies from src to dst, applying the fault pipeline to each
// chunk read from src. It returns the number of bytes successfully
// written to dst and the terminating error, if any (io.EOF is not
// treated as an error; nil is returned on clean closure).
func pipe(dst io.Writer, src io.Reader, injector *fault.Injector, connectionID string, live *int64) (int64, error) {
	buf := make([]byte, bufferSize)
	var total int64

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if injector.ShouldDrop(connectionID) {
				log.Printf("fault: dropped %d-byte chunk on %s", n, connectionID)
			} else {
				injector.ApplyLatency(connectionID)
				injector.ApplyThrottle(n, connectionID)

				written, writeErr := writeAll(dst, buf[:n])
				total += int64(written)
				atomic.AddInt64(live, int64(written))
				if writeErr != nil {
					return total, writeErr
				}
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return total, nil
			}
			return total, readErr
		}
	}
}

func writeAll(dst io.Writer, p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := dst.Write(p[written:])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
