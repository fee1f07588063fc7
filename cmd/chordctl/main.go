// cmd/chordctl is the operator console's CLI entry-point, built with
// Cobra the way cmd/client builds kvcli — but talking the raw TCP wire
// protocol of internal/wire instead of HTTP.
//
// Usage:
//
//	chordctl put --server 127.0.0.1:9001 mykey "hello world"
//	chordctl get --server 127.0.0.1:9001 mykey
//	chordctl interactive --server 127.0.0.1:9001
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chordkv/internal/ring"
	"chordkv/internal/store"
	"chordkv/internal/transport"
	"chordkv/internal/wire"
)

var (
	serverAddr string
	getTimeout time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "chordctl",
		Short: "operator console for a chordkv ring",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s", "127.0.0.1:9001", "target peer's ip:port")
	root.PersistentFlags().DurationVar(&getTimeout, "timeout", 3*time.Second, "how long to wait for a GET's asynchronous RESULT")

	root.AddCommand(putCmd(), getCmd(), interactiveCmd(), dumpWALCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <key> <value>",
		Short: "store a key-value pair, forwarded as a non-replica PUT (spec.md §6)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ip, port, err := splitAddr(serverAddr)
			if err != nil {
				return err
			}
			// A client-originated PUT carries no ring identity of its
			// own, so sender_id is the zero ID — the receiving peer
			// only uses sender_id to learn peer identity on
			// JOIN/HEARTBEAT, never on PUT.
			msg := wire.NewPut(ring.ID{}.Decimal(), args[0], args[1], false)
			if err := transport.Send(ip, port, msg); err != nil {
				return fmt.Errorf("put: %w", err)
			}
			fmt.Printf("sent PUT %q=%q to %s\n", args[0], args[1], serverAddr)
			return nil
		},
	}
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "retrieve a value by key, printing its asynchronous RESULT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ip, port, err := splitAddr(serverAddr)
			if err != nil {
				return err
			}
			value, ok, err := remoteGet(ip, port, args[0], getTimeout)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Printf("%s not found (no RESULT within %s)\n", args[0], getTimeout)
				return nil
			}
			fmt.Printf("%s = %s\n", args[0], value)
			return nil
		},
	}
}

func interactiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "run the line-buffered menu against a remote peer",
		RunE: func(cmd *cobra.Command, args []string) error {
			ip, port, err := splitAddr(serverAddr)
			if err != nil {
				return err
			}
			runMenu(ip, port)
			return nil
		},
	}
}

func dumpWALCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump-wal <path>",
		Short: "print every entry of a peer's diagnostics WAL file (audit only, never replayed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := store.OpenWAL(args[0])
			if err != nil {
				return fmt.Errorf("dump-wal: %w", err)
			}
			defer w.Close()

			entries, err := w.ReadAll()
			if err != nil {
				return fmt.Errorf("dump-wal: %w", err)
			}
			for _, e := range entries {
				fmt.Printf("key=%q value=%q is_replica=%v\n", e.Key, e.Value, e.IsReplica)
			}
			fmt.Printf("%d entries\n", len(entries))
			return nil
		},
	}
}

// runMenu is the remote counterpart of internal/console.Repl: spec.md
// §6's same four-option menu, but PUT/GET cross the wire to a named
// peer instead of touching in-process components directly, since a
// separate chordctl process has none of its own. STATUS has no wire
// message in spec.md §6 — it is a local-only operation the peer's own
// embedded console answers (cmd/peer) — so it is reported as
// unavailable here rather than guessed at.
func runMenu(ip string, port int) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n1. Status | 2. PUT | 3. GET | q. Quit\n> ")
		if !scanner.Scan() {
			return
		}
		switch strings.TrimSpace(scanner.Text()) {
		case "1":
			fmt.Println("status is local-only; run it from the peer's own console")
		case "2":
			fmt.Print("key: ")
			if !scanner.Scan() {
				return
			}
			key := strings.TrimSpace(scanner.Text())
			fmt.Print("value: ")
			if !scanner.Scan() {
				return
			}
			value := strings.TrimSpace(scanner.Text())
			msg := wire.NewPut(ring.ID{}.Decimal(), key, value, false)
			if err := transport.Send(ip, port, msg); err != nil {
				fmt.Println("error:", err)
			}
		case "3":
			fmt.Print("key: ")
			if !scanner.Scan() {
				return
			}
			key := strings.TrimSpace(scanner.Text())
			value, ok, err := remoteGet(ip, port, key, getTimeout)
			if err != nil {
				fmt.Println("error:", err)
			} else if !ok {
				fmt.Printf("%s not found\n", key)
			} else {
				fmt.Printf("%s = %s\n", key, value)
			}
		case "q", "Q":
			return
		default:
			fmt.Println("unrecognized option")
		}
	}
}

// remoteGet opens a short-lived local listener to receive the target
// peer's asynchronous RESULT, sends GET naming that listener as
// requester, and waits up to timeout.
func remoteGet(ip string, port int, key string, timeout time.Duration) (value string, ok bool, err error) {
	ln, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		return "", false, fmt.Errorf("get: listen for result: %w", err)
	}
	defer ln.Close()

	replyIP, replyPort, err := splitAddr(ln.Addr().String())
	if err != nil {
		return "", false, err
	}

	resultCh := make(chan wire.Message, 1)
	go func() {
		ln.(*net.TCPListener).SetDeadline(time.Now().Add(timeout))
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		n, err := conn.Read(buf)
		if err != nil && n == 0 {
			return
		}
		msg, err := wire.Decode(buf[:n])
		if err != nil {
			return
		}
		resultCh <- msg
	}()

	msg := wire.NewGet(ring.ID{}.Decimal(), key, replyIP, replyPort)
	if err := transport.Send(ip, port, msg); err != nil {
		return "", false, fmt.Errorf("get: %w", err)
	}

	select {
	case result := <-resultCh:
		if result.Type != wire.Result {
			return "", false, nil
		}
		return result.ResultData.Value, true, nil
	case <-time.After(timeout):
		return "", false, nil
	}
}

func splitAddr(addr string) (string, int, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("invalid address %q, want host:port", addr)
	}
	host, portStr := addr[:idx], addr[idx+1:]
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in %q: %w", addr, err)
	}
	if host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return host, port, nil
}
