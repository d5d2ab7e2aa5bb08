package supervisor

import (
	"io"
	"net"
	"testing"
	"time"

	"faultline/config"
)

func echoServer(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				io.Copy(conn, conn)
			}()
		}
	}()
	return ln
}

func mustPort(t *testing.T, addr net.Addr) uint16 {
	t.Helper()
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		t.Fatalf("not a tcp addr: %v", addr)
	}
	return uint16(tcpAddr.Port)
}

func TestSupervisorPassThrough(t *testing.T) {
	dest := echoServer(t)
	defer dest.Close()

	cfg, err := config.Build(config.Params{
		IP:                 "127.0.0.1",
		Port:               0,
		DestIP:             "127.0.0.1",
		DestPort:           mustPort(t, dest.Addr()),
		LatencyProbability: 1.0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Bind on an ephemeral port by listening once ourselves to learn it.
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe listen: %v", err)
	}
	cfg.Listen.Port = mustPort(t, probe.Addr())
	probe.Close()

	sup := New(cfg, nil)
	stop := make(chan struct{})
	serveErrc := make(chan error, 1)
	go func() { serveErrc <- sup.Serve(stop) }()

	// Give the listener a moment to bind.
	var conn net.Conn
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", cfg.Listen.BindAddress())
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial proxy: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}

	buf := make([]byte, 4)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "ping" {
		t.Fatalf("got %q, want %q", buf, "ping")
	}

	close(stop)
	select {
	case err := <-serveErrc:
		if err != nil {
			t.Fatalf("Serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after stop was closed")
	}
}

func TestSupervisorDialErrorDoesNotCrashAcceptLoop(t *testing.T) {
	cfg, err := config.Build(config.Params{
		IP:                 "127.0.0.1",
		Port:               0,
		DestIP:             "127.0.0.1",
		DestPort:           1, // nothing listens on port 1
		LatencyProbability: 1.0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe listen: %v", err)
	}
	cfg.Listen.Port = mustPort(t, probe.Addr())
	probe.Close()

	sup := New(cfg, nil)
	stop := make(chan struct{})
	serveErrc := make(chan error, 1)
	go func() { serveErrc <- sup.Serve(stop) }()

	var conn net.Conn
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", cfg.Listen.BindAddress())
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial proxy: %v", err)
	}
	// The proxy should close our connection promptly since dialing
	// the destination fails; we don't assert on error type, only that
	// the accept loop kept running afterward.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	conn.Read(buf)
	conn.Close()

	// A second connection must still be accepted (loop survived).
	conn2, err := net.Dial("tcp", cfg.Listen.BindAddress())
	if err != nil {
		t.Fatalf("second dial failed, accept loop may have died: %v", err)
	}
	conn2.Close()

	close(stop)
	select {
	case <-serveErrc:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after stop was closed")
	}
}
