package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/netshape/tsproxy/internal/tsproxy"
)

// syncBuffer is a goroutine-safe [bytes.Buffer].
type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (sb *syncBuffer) Write(data []byte) (int, error) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.buf.Write(data)
}

func (sb *syncBuffer) String() string {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.buf.String()
}

// waitFor waits until the buffer contains the given substring.
func waitFor(t *testing.T, sb *syncBuffer, substring string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !strings.Contains(sb.String(), substring) {
		if time.Now().After(deadline) {
			t.Fatalf("did not see %q in %q", substring, sb.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// freeEndpoint returns a loopback endpoint nobody is listening on.
func freeEndpoint(t *testing.T) string {
	t.Helper()
	conn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	endpoint := conn.Addr().String()
	conn.Close()
	return endpoint
}

func TestMainWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skip test in short mode")
	}

	stdinReader, stdinWriter := io.Pipe()
	defer stdinWriter.Close()
	stdout := &syncBuffer{}
	metricsEndpoint := freeEndpoint(t)
	rootCmd := newRootCommand(&stdio{
		stdin:  stdinReader,
		stdout: stdout,
		stderr: io.Discard,
	})
	rootCmd.SetArgs([]string{
		"--bind", "127.0.0.1",
		"--port", "0",
		"--rtt", "10",
		"--prometheus", metricsEndpoint,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- rootCmd.ExecuteContext(ctx)
	}()

	waitFor(t, stdout, "Started Socks5 proxy server on 127.0.0.1:")
	waitFor(t, stdout, "Hit Ctrl-C to exit.\n")

	t.Run("the control channel replies to requests", func(t *testing.T) {
		if _, err := stdinWriter.Write([]byte("flush\nbogus\n")); err != nil {
			t.Fatal(err)
		}
		waitFor(t, stdout, "OK\n")
		waitFor(t, stdout, "ERROR\n")
	})

	t.Run("we serve prometheus metrics", func(t *testing.T) {
		var body []byte
		deadline := time.Now().Add(10 * time.Second)
		for {
			resp, err := http.Get("http://" + metricsEndpoint + "/metrics")
			if err == nil {
				body, err = io.ReadAll(resp.Body)
				resp.Body.Close()
				if err == nil {
					break
				}
			}
			if time.Now().After(deadline) {
				t.Fatal(err)
			}
			time.Sleep(50 * time.Millisecond)
		}
		if !bytes.Contains(body, []byte("tsproxy_connections_active_gauge")) {
			t.Fatal("missing tsproxy metrics")
		}
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("the command did not exit")
	}
}

func TestMainWithBusyPort(t *testing.T) {
	if testing.Short() {
		t.Skip("skip test in short mode")
	}

	conn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	port := conn.Addr().(*net.TCPAddr).Port

	stdout := &syncBuffer{}
	rootCmd := newRootCommand(&stdio{
		stdin:  strings.NewReader(""),
		stdout: stdout,
		stderr: io.Discard,
	})
	rootCmd.SetArgs([]string{"-b", "127.0.0.1", "-p", strconv.Itoa(port)})

	err = rootCmd.ExecuteContext(context.Background())
	if !errors.Is(err, tsproxy.ErrListen) {
		t.Fatal("unexpected error", err)
	}
	expect := "Unable to listen on 127.0.0.1:" + strconv.Itoa(port) + ". Is the port already in use?\n"
	if !strings.HasPrefix(stdout.String(), expect) {
		t.Fatal("unexpected output", stdout.String())
	}
}

func TestMainRejectsInvalidOptions(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{{
		name: "invalid port mapping",
		args: []string{"--mapports", "443:http"},
	}, {
		name: "invalid window",
		args: []string{"-w", "0"},
	}, {
		name: "negative bandwidth",
		args: []string{"-i", "-1"},
	}, {
		name: "positional arguments",
		args: []string{"extra"},
	}}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stdout := &syncBuffer{}
			rootCmd := newRootCommand(&stdio{
				stdin:  strings.NewReader(""),
				stdout: stdout,
				stderr: io.Discard,
			})
			rootCmd.SetArgs(tc.args)
			rootCmd.SetOut(io.Discard)
			rootCmd.SetErr(io.Discard)
			if err := rootCmd.ExecuteContext(context.Background()); err == nil {
				t.Fatal("expected an error")
			}
			if stdout.String() != "" {
				t.Fatal("unexpected output", stdout.String())
			}
		})
	}
}

func TestVerbosityFlagCounts(t *testing.T) {
	rootCmd := newRootCommand(&stdio{})
	if err := rootCmd.ParseFlags([]string{"-vvv", "--verbose"}); err != nil {
		t.Fatal(err)
	}
	count, err := rootCmd.Flags().GetCount("verbose")
	if err != nil {
		t.Fatal(err)
	}
	if count != 4 {
		t.Fatal("unexpected verbosity", count)
	}
}
