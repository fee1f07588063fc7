// cmd/peer is the main entrypoint for a single ring participant.
//
// Configuration is via flags, in the spirit of cmd/server's own
// flag-only setup, plus the positional CLI form spec.md §6 names
// (`<program> <port> [bootstrap_ip] [bootstrap_port]`) for parity with
// the original Python process.
//
// Example — seed peer:
//
//	./peer --port 9001
//
// Example — joining peer:
//
//	./peer --port 9002 --bootstrap-ip 127.0.0.1 --bootstrap-port 9001
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"chordkv/internal/console"
	"chordkv/internal/dispatch"
	"chordkv/internal/ring"
	"chordkv/internal/store"
	"chordkv/internal/transport"
	"chordkv/internal/wire"
)

func main() {
	port := flag.Int("port", 0, "TCP port this peer listens on")
	bootstrapIP := flag.String("bootstrap-ip", "", "an existing ring member's IP to JOIN through")
	bootstrapPort := flag.Int("bootstrap-port", 0, "an existing ring member's port to JOIN through")
	heartbeatInterval := flag.Duration("heartbeat-interval", dispatch.DefaultHeartbeatInterval, "T_hb: successor heartbeat period")
	predecessorTimeout := flag.Duration("predecessor-timeout", dispatch.DefaultPredecessorTimeout, "T_timeout: predecessor silence before eviction")
	walDir := flag.String("wal-dir", "", "optional directory for a diagnostics-only write-ahead log; unset disables it")
	flag.Parse()

	// spec.md §6's positional CLI form: <program> <port> [bootstrap_ip] [bootstrap_port].
	if *port == 0 {
		args := flag.Args()
		if len(args) < 1 {
			fmt.Fprintln(os.Stderr, "usage: peer <port> [bootstrap_ip] [bootstrap_port]")
			os.Exit(1)
		}
		p, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, "invalid port:", args[0])
			os.Exit(1)
		}
		*port = p
		if len(args) >= 2 {
			*bootstrapIP = args[1]
		}
		if len(args) >= 3 {
			bp, err := strconv.Atoi(args[2])
			if err != nil {
				fmt.Fprintln(os.Stderr, "invalid bootstrap port:", args[2])
				os.Exit(1)
			}
			*bootstrapPort = bp
		}
	}

	ip, err := localIP()
	if err != nil {
		log.Fatalf("determine local ip: %v", err)
	}

	self := ring.NewPeer(ip, *port)
	overlay := ring.NewOverlay(self)
	kv := store.New()

	var wal *store.WAL
	if *walDir != "" {
		if err := os.MkdirAll(*walDir, 0o755); err != nil {
			log.Fatalf("create wal dir: %v", err)
		}
		walPath := fmt.Sprintf("%s/%s-%d.wal", *walDir, ip, *port)
		wal, err = store.OpenWAL(walPath)
		if err != nil {
			log.Fatalf("open wal: %v", err)
		}
		defer wal.Close()
	}

	out := func(format string, args ...any) { fmt.Printf(format, args...) }
	con := console.New(overlay, kv, transport.Send, out)

	d := dispatch.New(overlay, kv, wal, con, transport.Send)

	srv, err := transport.Listen(fmt.Sprintf("%s:%d", ip, *port), d)
	if err != nil {
		log.Fatalf("listen on %s:%d: %v", ip, *port, err)
	}

	go func() {
		log.Printf("peer %s listening on %s", self.ID, self.Addr())
		if err := srv.Serve(); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	maintStop := make(chan struct{})
	m := dispatch.NewMaintenance(d, *heartbeatInterval, *predecessorTimeout)
	go m.Run(maintStop)

	if *bootstrapIP != "" && *bootstrapPort != 0 {
		join := wire.NewJoin(self.ID.Decimal(), self.IP, self.Port)
		if err := transport.Send(*bootstrapIP, *bootstrapPort, join); err != nil {
			log.Printf("join via %s:%d failed: %v", *bootstrapIP, *bootstrapPort, err)
		}
	}

	go console.Repl(con, bufio.NewReader(os.Stdin), os.Stdout)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("peer %s leaving", self.ID)
	for _, n := range overlay.Leave() {
		update := wire.NewUpdate(self.ID.Decimal(), n.Role, n.Peer.IP, n.Peer.Port)
		if err := transport.Send(n.Target.IP, n.Target.Port, update); err != nil {
			log.Printf("leave: notify %s failed: %v", n.Target.Addr(), err)
		}
	}

	close(maintStop)
	if err := srv.Close(); err != nil {
		log.Printf("close listener: %v", err)
	}
}

// localIP discovers this host's outbound IP via the UDP-socket trick:
// dialing UDP never actually sends a packet, it just asks the kernel
// to pick a route, whose local address is this host's address on that
// route. Mirrors the original Python's obtener_ip_local.
func localIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	addr := conn.LocalAddr().(*net.UDPAddr)
	return addr.IP.String(), nil
}
