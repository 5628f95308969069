package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ipk24chat/client/pkg/client"
)

func main() {
	transportFlag := flag.String("t", "", "Transport protocol: tcp or udp (required)")
	serverFlag := flag.String("s", "", "Server address, hostname or IPv4 literal (required)")
	portFlag := flag.Int("p", 4567, "Server port")
	timeoutFlag := flag.Int("d", 250, "UDP receive timeout in milliseconds")
	retriesFlag := flag.Int("r", 3, "Maximum number of UDP retransmissions")
	configFlag := flag.String("config", "", "Path to an optional TOML defaults file")
	metricsAddrFlag := flag.String("metrics-addr", "", "Prometheus exporter address (host:port); unset disables it")
	verboseFlag := flag.Bool("verbose", false, "Enable diagnostic tracing on stderr")
	flag.Usage = printUsage
	flag.Parse()

	os.Exit(run(*transportFlag, *serverFlag, *portFlag, *timeoutFlag, *retriesFlag, *configFlag, *metricsAddrFlag, *verboseFlag, os.Stdout, os.Stderr))
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: ipk24chat-client -t tcp|udp -s <host-or-ipv4> [-p port] [-d ms] [-r n] [-config path] [-metrics-addr host:port] [-verbose]")
	flag.PrintDefaults()
}

// run contains everything main would otherwise do directly, so tests can
// drive a full CLI invocation against in-memory stdout/stderr without
// touching os.Exit.
func run(transport, server string, port, timeoutMS, retries int, configPath, metricsAddr string, verbose bool, stdout, stderr io.Writer) int {
	overrides := client.Overrides{}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			overrides.Protocol, overrides.ProtocolSet = transport, true
		case "p":
			overrides.Port, overrides.PortSet = port, true
		case "d":
			overrides.UDPTimeoutMS, overrides.UDPTimeoutSet = timeoutMS, true
		case "r":
			overrides.UDPMaxRetransmit, overrides.UDPRetriesSet = retries, true
		}
	})

	if server == "" {
		fmt.Fprintln(stderr, "ERR: -s is required")
		return 1
	}
	if transport != "" && transport != "tcp" && transport != "udp" {
		fmt.Fprintln(stderr, "ERR: -t must be tcp or udp")
		return 1
	}

	path := configPath
	if path == "" {
		path = client.DefaultConfigPath()
	}
	var tomlConfig client.TOMLConfig
	if path != "" {
		var err error
		tomlConfig, err = client.LoadClientConfig(path)
		if err != nil {
			fmt.Fprintf(stderr, "ERR: %v\n", err)
			return 1
		}
	} else {
		tomlConfig = client.DefaultTOMLConfig()
	}

	settings := tomlConfig.Resolve(overrides)
	if settings.Protocol == "" {
		fmt.Fprintln(stderr, "ERR: -t is required (no protocol in flags or config)")
		return 1
	}

	var logger *log.Logger
	if verbose {
		logger = log.New(stderr, "", log.Ltime|log.Lmicroseconds)
	}

	metrics := client.NewMetrics()
	if metricsAddr != "" {
		client.ServeMetrics(metricsAddr)
	}

	engine := client.NewEngine(metrics, logger, stdout, stderr)

	var t client.Transport
	var err error
	switch settings.Protocol {
	case "tcp":
		t, err = client.DialTCP(server, settings.Port, engine)
	case "udp":
		t, err = client.DialUDP(server, settings.Port, time.Duration(settings.UDPTimeoutMS)*time.Millisecond, settings.UDPMaxRetransmit, engine)
	default:
		fmt.Fprintf(stderr, "ERR: unknown protocol %q\n", settings.Protocol)
		return 1
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERR: %v\n", err)
		return 1
	}
	defer t.Close()

	engine.SetTransport(t, settings.Protocol == "udp")

	interrupted := &atomic.Bool{}
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		interrupted.Store(true)
	}()

	input := client.NewInputHandler(stdout, stderr)
	loop := client.NewLoop(engine, input, t, os.Stdin, int(os.Stdin.Fd()), interrupted)
	loop.Run()

	return engine.ExitCode()
}
