// Command tsproxy is a traffic-shaping SOCKS5 proxy.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/netshape/tsproxy/internal/config"
	"github.com/netshape/tsproxy/internal/control"
	"github.com/netshape/tsproxy/internal/logx"
	"github.com/netshape/tsproxy/internal/tsproxy"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// stdio contains the standard streams the command uses.
type stdio struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// newRootCommand creates the tsproxy command.
func newRootCommand(streams *stdio) *cobra.Command {
	opts := config.NewOptions()
	rootCmd := &cobra.Command{
		Use:           "tsproxy",
		Short:         "Traffic-shaping SOCKS5 proxy",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProxy(cmd.Context(), opts, streams)
		},
	}
	flags := rootCmd.Flags()

	flags.StringVarP(
		&opts.Bind,
		"bind",
		"b",
		opts.Bind,
		"server interface address",
	)

	flags.IntVarP(
		&opts.Port,
		"port",
		"p",
		opts.Port,
		"server port (use 0 for randomly assigned)",
	)

	flags.Float64VarP(
		&opts.RTT,
		"rtt",
		"r",
		opts.RTT,
		"round trip time latency (in ms)",
	)

	flags.Float64VarP(
		&opts.InKbps,
		"inkbps",
		"i",
		opts.InKbps,
		"client to server bandwidth (in 1000 bits/s)",
	)

	flags.Float64VarP(
		&opts.OutKbps,
		"outkbps",
		"o",
		opts.OutKbps,
		"server to client bandwidth (in 1000 bits/s)",
	)

	flags.IntVarP(
		&opts.Window,
		"window",
		"w",
		opts.Window,
		"emulated TCP initial congestion window",
	)

	flags.StringVarP(
		&opts.DestHost,
		"desthost",
		"d",
		"",
		"redirect all outbound connections to the specified host",
	)

	flags.StringVarP(
		&opts.MapPorts,
		"mapports",
		"m",
		"",
		"remap outbound ports: comma-separated list of original:new with * as a wildcard (e.g., '443:8443,*:8080')",
	)

	flags.BoolVarP(
		&opts.IncludeLocalhost,
		"localhost",
		"l",
		false,
		"include connections already destined for localhost in the host and port remapping",
	)

	flags.CountVarP(
		&opts.Verbosity,
		"verbose",
		"v",
		"increase verbosity (specify multiple times for more, -vvvv for full debug output)",
	)

	flags.StringVar(
		&opts.DNSServer,
		"dns-server",
		"",
		"resolve hostnames using the DNS server at this host:port",
	)

	flags.StringVar(
		&opts.PrometheusEndpoint,
		"prometheus",
		"",
		"serve prometheus metrics at this host:port",
	)

	return rootCmd
}

// runProxy runs the proxy until ctx is done.
func runProxy(ctx context.Context, opts *config.Options, streams *stdio) error {
	log.SetHandler(logx.NewHandler(streams.stderr))
	log.SetLevel(logx.LevelFromVerbosity(opts.Verbosity))

	if err := opts.Validate(); err != nil {
		return err
	}

	output := control.NewOutput(streams.stdout)
	requests := make(chan control.Request, 16)
	sess, err := tsproxy.NewSession(ctx, &tsproxy.Config{
		Logger:   log.Log,
		Options:  opts,
		Output:   output,
		Requests: requests,
	})
	if errors.Is(err, tsproxy.ErrListen) {
		output.Println(fmt.Sprintf("Unable to listen on %s:%d. Is the port already in use?", opts.Bind, opts.Port))
		output.Println(err.Error())
		return err
	}
	if err != nil {
		return err
	}

	addr := sess.Addr()
	output.Println(fmt.Sprintf("Started Socks5 proxy server on %s:%d", addr.Addr(), addr.Port()))
	output.Println("Hit Ctrl-C to exit.")

	go func() {
		err := control.Serve(ctx, log.Log, streams.stdin, output, requests)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warnf("control: %s", err.Error())
		}
	}()

	if opts.PrometheusEndpoint != "" {
		srv := startPrometheus(opts.PrometheusEndpoint)
		defer shutdown(srv)
	}

	return sess.Run(ctx)
}

// startPrometheus serves the metrics in the background.
func startPrometheus(endpoint string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              endpoint,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Warnf("prometheus: %s", err.Error())
		}
	}()
	log.Infof("serving prometheus metrics at http://%s/metrics", endpoint)
	return srv
}

// shutdown gives pending metrics requests a few seconds to complete.
func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	rootCmd := newRootCommand(&stdio{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	})
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "tsproxy: %s\n", err.Error())
		stop()
		os.Exit(1)
	}
}
