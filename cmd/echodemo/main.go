// Command echodemo is a minimal raw-TCP echo server: every chunk it
// reads from a connection, it writes straight back. It exists as a
// destination for manually exercising `faultline serve`, standing in
// for spec.md's S1 pass-through scenario's "destination echoes"
// behavior. The automated tests do not run it; they start their own
// in-process echo listener of the same shape.
package main

import (
	"flag"
	"io"
	"log"
	"net"
)

func main() {
	addr := flag.String("addr", ":9000", "address to listen on")
	flag.Parse()

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("echodemo: listen %s: %v", *addr, err)
	}
	log.Printf("echodemo: echoing on %s", *addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Printf("echodemo: accept error: %v", err)
			continue
		}
		go handle(conn)
	}
}

func handle(conn net.Conn) {
	defer conn.Close()
	n, err := io.Copy(conn, conn)
	if err != nil {
		log.Printf("echodemo: connection from %s ended after %d bytes: %v", conn.RemoteAddr(), n, err)
		return
	}
	log.Printf("echodemo: connection from %s closed after %d bytes", conn.RemoteAddr(), n)
}
