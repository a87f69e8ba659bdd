// Command nameserver runs the directory and ACL authority. It accepts
// connections on the given port, persists its registry to nm_state.dat
// in the working directory, and logs to logs/nameserver.log.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"scribe.io/internal/config"
	"scribe.io/internal/nameserver"
	"scribe.io/log"
)

func main() {
	tuning := flag.String("tuning", "", "optional YAML file overriding compiled-in tuning constants")
	stateFile := flag.String("state", "nm_state.dat", "path to the persisted registry file")
	exec := flag.String("exec-allow", "", "comma-separated list of filenames EXEC is permitted to run (empty disables EXEC)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: name_server <port>")
		os.Exit(1)
	}
	port := flag.Arg(0)

	if _, err := log.InitFile("nameserver"); err != nil {
		fmt.Fprintf(os.Stderr, "nameserver: %v\n", err)
		os.Exit(1)
	}

	t, err := config.ApplyFile(config.Default(), *tuning)
	if err != nil {
		log.Fatalf("nameserver: loading tuning file: %v", err)
	}

	reg := nameserver.NewRegistry(t, *stateFile)
	if err := reg.LoadInto(*stateFile); err != nil && !os.IsNotExist(err) {
		log.Error.Printf("nameserver: starting with empty registry: %v", err)
	}

	srv := &nameserver.Server{Registry: reg, Tuning: t}
	if *exec != "" {
		srv.ExecAllowed = splitNonEmpty(*exec)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	log.Printf("nameserver: listening on :%s", port)
	if err := srv.Run(ctx, ":"+port); err != nil {
		log.Fatalf("nameserver: %v", err)
	}
}

func splitNonEmpty(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
