// Command bdtd is the BDT/NDN daemon: it wires a stack.StackContext from
// flags and runs until signaled, serving the NDN pipeline and the admin
// control interface. Grounded on the teacher's cmd/beenet/main.go flat
// command-dispatch CLI, generalized from "join/create/name swarm
// commands" to "run/version" daemon commands.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cyfs-core/bdt-ndn/internal/ids"
	"github.com/cyfs-core/bdt-ndn/internal/logging"
	"github.com/cyfs-core/bdt-ndn/internal/stack"
)

var (
	version    = "dev"
	buildTime  = "unknown"
	commitHash = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version", "--version", "-v":
		printVersion()
	case "help", "--help", "-h":
		printUsage()
	case "run":
		if err := runDaemon(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "bdtd: "+err.Error())
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runDaemon(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	deviceSeed := fs.String("device-seed", "local-device", "seed bytes identifying this device's object id")
	ownerSeed := fs.String("owner-seed", "", "seed bytes identifying this device's owner; defaults to device-seed (self-owned device)")
	requireToken := fs.Bool("control-token", true, "require an access token on public/IPv6 admin binds")
	routerPersist := fs.String("router-config", "", "path to persist the handler registry as TOML; empty disables persistence")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ownerSeed == "" {
		*ownerSeed = *deviceSeed
	}

	logger := logging.New()
	defer logger.Sync()

	local := ids.NewObjectId(ids.ObjectTypeDevice, []byte(*deviceSeed))
	owner := ids.NewObjectId(ids.ObjectTypePeople, []byte(*ownerSeed))

	cfg := stack.DefaultConfig()
	cfg.Control.RequireToken = *requireToken
	cfg.Router.PersistPath = *routerPersist

	// No BDT wire transport is wired in yet (spec.md §1 scopes it out); a
	// pure-NDC node still serves local get/put/delete against its own
	// chunk store without one.
	sc, err := stack.New(context.Background(), cfg, local, owner, local, nil, logger)
	if err != nil {
		return err
	}

	if err := sc.StartControl(context.Background()); err != nil {
		return err
	}
	if sc.Control.Token() != "" {
		logger.Infow("bdtd: admin access token", "token", sc.Control.Token())
	}
	logger.Infow("bdtd: daemon started", "device", local.String(), "owner", owner.String())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Infow("bdtd: shutting down")
	return sc.Close()
}

func printVersion() {
	fmt.Printf("bdtd %s\n", version)
	fmt.Printf("Built: %s\n", buildTime)
	fmt.Printf("Commit: %s\n", commitHash)
}

func printUsage() {
	fmt.Printf(`bdtd v%s - BDT/NDN transport daemon

Usage:
  bdtd <command> [options]

Commands:
  run       Start the daemon (NDN pipeline + admin control interface)
  version   Show version information
  help      Show this help message

Examples:
  bdtd run --device-seed my-device --owner-seed my-owner --control-token=false

`, version)
}
