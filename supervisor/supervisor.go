// Package supervisor accepts inbound sockets, dials the fixed
// destination, and runs a forwarder for each connection concurrently,
// so the accept loop never blocks on a single connection's I/O.
package supervisor

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"faultline/config"
	"faultline/fault"
	"faultline/forwarder"
	"faultline/statusapi"
)

const dialTimeout = 5 * time.Second

// Supervisor owns the listener and spawns one goroutine per accepted
// connection.
type Supervisor struct {
	cfg      *config.Config
	registry *statusapi.Registry
}

// New creates a Supervisor for cfg. registry may be nil if no status
// surface is running.
func New(cfg *config.Config, registry *statusapi.Registry) *Supervisor {
	return &Supervisor{cfg: cfg, registry: registry}
}

// Serve binds the listener and accepts connections until stop is
// closed or the listener is closed by another goroutine. It returns
// the bind error, if any; per-connection errors are logged, not
// returned, since spec.md treats them as fatal to the connection only.
func (s *Supervisor) Serve(stop <-chan struct{}) error {
	ln, err := net.Listen("tcp", s.cfg.Listen.BindAddress())
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.cfg.Listen.BindAddress(), err)
	}
	log.Printf("faultline: listening on %s -> forwarding to %s", s.cfg.Listen.BindAddress(), s.cfg.Listen.DestAddress())

	var wg sync.WaitGroup
	go func() {
		<-stop
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				time.Sleep(50 * time.Millisecond)
				continue
			}
			log.Printf("faultline: accept error on %s: %v", s.cfg.Listen.BindAddress(), err)
			time.Sleep(100 * time.Millisecond)
			continue
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			s.handle(c)
		}(conn)
	}

	wg.Wait()
	return nil
}

func (s *Supervisor) handle(client net.Conn) {
	clientAddr := client.RemoteAddr().String()
	connectionID := fmt.Sprintf("%s->%s", clientAddr, s.cfg.Listen.DestAddress())

	log.Printf("faultline: new connection %s", connectionID)

	dest, err := net.DialTimeout("tcp", s.cfg.Listen.DestAddress(), dialTimeout)
	if err != nil {
		log.Printf("faultline: dial error for %s: %v", connectionID, err)
		_ = client.Close()
		return
	}

	// Each direction gets its own Injector instance (DESIGN.md:
	// "per-direction injector sharing") so no mutex is needed even
	// though both direction goroutines run concurrently.
	aToBInjector := fault.New(s.cfg.Latency, s.cfg.Loss, s.cfg.Bandwidth)
	bToAInjector := fault.New(s.cfg.Latency, s.cfg.Loss, s.cfg.Bandwidth)

	var liveAToB, liveBToA int64
	if s.registry != nil {
		s.registry.Register(connectionID, &liveAToB, &liveBToA)
		defer s.registry.Deregister(connectionID)
	}

	res := forwarder.Forward(client, dest, aToBInjector, bToAInjector, connectionID, &liveAToB, &liveBToA)

	if res.Err != nil {
		log.Printf("faultline: connection %s ended with error after (%d, %d) bytes: %v", connectionID, res.AToB, res.BToA, res.Err)
		return
	}
	log.Printf("faultline: connection %s closed cleanly, %d bytes client->dest, %d bytes dest->client", connectionID, res.AToB, res.BToA)
}
