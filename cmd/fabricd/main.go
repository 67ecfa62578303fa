// Command fabricd is the single binary this system ships as: on startup
// it either binds the well-known Registry port or, failing that, joins as
// a Process against whatever REGISTRY_ADDR points at. Grounded on
// cmd/goshawkdb/main.go's shape (flag parsing, go-kit logger wiring, a
// debug HTTP listener, here serving /status and /metrics) with the TLS/mdb/cluster-bootstrap
// flags stripped since this system has no persistence layer or cluster
// bootstrap protocol to configure.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	server "paxfabric.io/server"
	"paxfabric.io/server/common"
	"paxfabric.io/server/process"
	"paxfabric.io/server/registry"
	"paxfabric.io/server/statusreport"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		registryAddr = flag.String("registry-addr", os.Getenv("REGISTRY_ADDR"), "Registry endpoint (host:port); if empty this node attempts to become the Registry")
		debugAddr    = flag.String("debug-addr", "", "if set, serve /status and /metrics on this address")
		startPort    = flag.Uint("port", server.DefaultRegistryPort, "starting port; a Process hops upward on address-in-use")
	)
	flag.Parse()

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = level.NewFilter(logger, level.AllowInfo())
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	promRegistry := prometheus.NewRegistry()

	if *registryAddr == "" {
		return runRegistry(logger, promRegistry, uint16(*startPort), *debugAddr)
	}
	return runProcess(logger, promRegistry, common.Endpoint(*registryAddr), uint16(*startPort), *debugAddr)
}

// runRegistry attempts to bind the well-known port and run as Registry; if
// that fails, it falls back to Process mode against the same port on
// localhost, since a bind failure there most likely means another fabricd
// is already acting as Registry.
func runRegistry(logger log.Logger, promRegistry *prometheus.Registry, port uint16, debugAddr string) int {
	r := registry.New(log.With(logger, "role", "registry"))

	if debugAddr != "" {
		rep := statusreport.New(logger, promRegistry, r, "registry")
		go serveDebug(logger, debugAddr, rep.Handler(promRegistry))
	}

	err := r.Serve(port)
	if err == nil {
		// Stop() was called; a clean stop is success.
		return 0
	}
	if errors.Is(err, common.ErrAddressInUse) {
		logger.Log("msg", "well-known port in use, falling back to Process mode", "error", err)
		fallback := common.Endpoint(fmt.Sprintf("127.0.0.1:%d", port))
		return runProcess(logger, promRegistry, fallback, port+1, debugAddr)
	}
	logger.Log("msg", "registry failed", "error", err)
	return 1
}

// runProcess binds a listener (hopping ports on AddressInUse), registers
// with the Registry, and serves until the registry-heartbeat supervisor
// detects death (exit 0) or registration itself fails (exit 1).
func runProcess(logger log.Logger, promRegistry *prometheus.Registry, registryAddr common.Endpoint, port uint16, debugAddr string) int {
	p := process.New(log.With(logger, "role", "process"))

	if debugAddr != "" {
		rep := statusreport.New(logger, promRegistry, p, "process")
		go serveDebug(logger, debugAddr, rep.Handler(promRegistry))
	}

	for {
		err := p.Join(port, registryAddr)
		if err == nil {
			break
		}
		if errors.Is(err, common.ErrAddressInUse) {
			logger.Log("msg", "port in use, retrying on next port", "port", port)
			port++
			continue
		}
		logger.Log("msg", "could not reach registry at startup", "error", err)
		return 1
	}

	if err := p.Serve(); err != nil {
		logger.Log("msg", "process failed", "error", err)
		return 1
	}
	return 0
}

func serveDebug(logger log.Logger, addr string, handler http.Handler) {
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Log("msg", "debug listener failed", "error", err)
	}
}
