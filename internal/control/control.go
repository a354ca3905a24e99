// Package control implements the line-oriented runtime control channel
// that operators use to change the shaping parameters of a running proxy.
package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/google/shlex"
	"github.com/netshape/tsproxy/internal/model"
)

const (
	// ReplyOK acknowledges a completed flush.
	ReplyOK = "OK"

	// ReplyError rejects an invalid command.
	ReplyError = "ERROR"
)

var (
	// ErrUnknownCommand indicates a command we do not implement.
	ErrUnknownCommand = errors.New("control: unknown command")

	// ErrInvalidValue indicates a missing or unparsable numeric argument.
	ErrInvalidValue = errors.New("control: invalid value")
)

// Request is a parsed control command.
type Request interface {
	request()
}

// Flush requests the immediate delivery of every queued message.
type Flush struct{}

// SetRTT changes the round-trip latency of both pipes.
type SetRTT struct {
	Milliseconds float64
}

// SetInKbps changes the client->server bandwidth.
type SetInKbps struct {
	Kbps float64
}

// SetOutKbps changes the server->client bandwidth.
type SetOutKbps struct {
	Kbps float64
}

func (*Flush) request()      {}
func (*SetRTT) request()     {}
func (*SetInKbps) request()  {}
func (*SetOutKbps) request() {}

// Parse parses a control line. Keywords are case-insensitive. An empty
// line yields a nil request and a nil error.
func Parse(line string) (Request, error) {
	tokens, err := shlex.Split(line)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, err.Error())
	}
	if len(tokens) <= 0 {
		return nil, nil
	}
	switch strings.ToLower(tokens[0]) {
	case "flush":
		return &Flush{}, nil
	case "set":
		if len(tokens) < 3 {
			return nil, fmt.Errorf("%w: set needs a name and a value", ErrInvalidValue)
		}
		value, err := parseValue(tokens[2])
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(tokens[1]) {
		case "rtt":
			return &SetRTT{Milliseconds: value}, nil
		case "inkbps":
			return &SetInKbps{Kbps: value}, nil
		case "outkbps":
			return &SetOutKbps{Kbps: value}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, line)
}

func parseValue(s string) (float64, error) {
	value, err := strconv.ParseFloat(s, 64)
	if err != nil || value < 0 || math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidValue, s)
	}
	return value, nil
}

// Output writes control replies. It is safe for concurrent use
// by the control reader and the event loop.
type Output struct {
	mu sync.Mutex
	w  io.Writer
}

// NewOutput creates a new [Output] writing to w.
func NewOutput(w io.Writer) *Output {
	return &Output{w: w}
}

// Println writes line followed by a newline.
func (o *Output) Println(line string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintln(o.w, line)
}

// Serve reads control lines from r until EOF or until ctx is done, posting
// each valid request on requests and replying [ReplyError] to invalid ones.
func Serve(ctx context.Context, logger model.Logger, r io.Reader, out *Output, requests chan<- Request) error {
	logger = model.ValidLoggerOrDefault(logger)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		req, err := Parse(line)
		if err != nil {
			logger.Infof("control: %s", err.Error())
			out.Println(ReplyError)
			continue
		}
		if req == nil {
			continue
		}
		logger.Debugf("control: %T%+v", req, req)
		select {
		case requests <- req:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}
