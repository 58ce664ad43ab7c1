package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/pbaptista/rally/internal/daemon"
	"github.com/pbaptista/rally/internal/session"
)

func main() {
	var sessionFlag string
	flag.StringVar(&sessionFlag, "session", "", "run the daemon for this session instead of the configured default")
	flag.Parse()

	name := session.Resolve(sessionFlag)
	if err := session.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "rallyd: %v\n", err)
		os.Exit(2)
	}

	fx.New(daemon.Module(daemon.Params{SessionName: name})).Run()
}
