// Command storageserver runs a sentence-level storage server. It
// registers with the name server, serves client connections on
// client_port, and persists files under storage_dir.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"scribe.io/internal/config"
	"scribe.io/internal/storageserver"
	"scribe.io/log"
)

func main() {
	tuning := flag.String("tuning", "", "optional YAML file overriding compiled-in tuning constants")
	flag.Parse()
	args := flag.Args()

	if len(args) != 5 && len(args) != 7 {
		fmt.Fprintln(os.Stderr, "usage: storage_server <id> <nm_ip> <nm_port> <client_port> <storage_dir> [replica_ip replica_port]")
		os.Exit(1)
	}

	id, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "storage_server: invalid id %q\n", args[0])
		os.Exit(1)
	}
	nmIP := args[1]
	nmPort := args[2]
	clientPort, err := strconv.Atoi(args[3])
	if err != nil {
		fmt.Fprintf(os.Stderr, "storage_server: invalid client_port %q\n", args[3])
		os.Exit(1)
	}
	storageDir := args[4]

	if _, err := log.InitFile("storageserver"); err != nil {
		fmt.Fprintf(os.Stderr, "storage_server: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		log.Fatalf("storage_server: creating storage dir: %v", err)
	}

	t, err := config.ApplyFile(config.Default(), *tuning)
	if err != nil {
		log.Fatalf("storage_server: loading tuning file: %v", err)
	}

	srv := &storageserver.Server{
		Store:      storageserver.NewStore(storageDir, t),
		Tuning:     t,
		ID:         id,
		NMAddr:     net.JoinHostPort(nmIP, nmPort),
		Host:       "127.0.0.1",
		ClientPort: clientPort,
	}

	if len(args) == 7 {
		srv.ReplicaIP = args[5]
		replicaPort, err := strconv.Atoi(args[6])
		if err != nil {
			fmt.Fprintf(os.Stderr, "storage_server: invalid replica_port %q\n", args[6])
			os.Exit(1)
		}
		srv.ReplicaPort = replicaPort
	}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	log.Printf("storage_server %d: listening on :%d, nm at %s", id, clientPort, srv.NMAddr)
	if err := srv.Run(ctx, fmt.Sprintf(":%d", clientPort)); err != nil {
		log.Fatalf("storage_server: %v", err)
	}
}
