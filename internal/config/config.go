// Package config contains the proxy configuration.
package config

import (
	"time"

	"github.com/pkg/errors"
)

const (
	// segmentPayload is the TCP payload of an Ethernet frame.
	segmentPayload = 1460

	// frameSize is the size of an Ethernet frame.
	frameSize = 1500
)

// DefaultWindow is the default emulated initial congestion window.
const DefaultWindow = 10

// MaxWindow is the maximum size the emulated congestion window may grow to.
// Acks clamp to it, so a larger initial window shrinks on the first ack.
const MaxWindow = 350

// Options contains the proxy options. The zero value is not valid; use
// [NewOptions] to obtain the defaults.
type Options struct {
	// Bind is the interface address to listen on.
	Bind string

	// Port is the port to listen on; zero means the OS picks one.
	Port int

	// RTT is the round-trip latency in milliseconds.
	RTT float64

	// InKbps is the client->server bandwidth in kbit/s; zero disables shaping.
	InKbps float64

	// OutKbps is the server->client bandwidth in kbit/s; zero disables shaping.
	OutKbps float64

	// Window is the initial congestion window, in reads.
	Window int

	// DestHost OPTIONALLY redirects every outbound connection to this host.
	DestHost string

	// MapPorts OPTIONALLY remaps outbound ports (e.g., "443:8443,*:8080").
	MapPorts string

	// IncludeLocalhost applies host and port remapping to loopback destinations too.
	IncludeLocalhost bool

	// Verbosity is the number of times -v was given.
	Verbosity int

	// DNSServer OPTIONALLY is the host:port of the DNS server to use
	// instead of the system resolver.
	DNSServer string

	// PrometheusEndpoint OPTIONALLY is where to serve metrics.
	PrometheusEndpoint string
}

// NewOptions returns the default [Options].
func NewOptions() *Options {
	return &Options{
		Bind:   "localhost",
		Port:   1080,
		Window: DefaultWindow,
	}
}

// Validate checks whether the options make sense.
func (o *Options) Validate() error {
	if o.Port < 0 || o.Port > 65535 {
		return errors.Errorf("invalid port: %d", o.Port)
	}
	if o.RTT < 0 {
		return errors.Errorf("invalid rtt: %f", o.RTT)
	}
	if o.InKbps < 0 || o.OutKbps < 0 {
		return errors.New("bandwidth must not be negative")
	}
	if o.Window <= 0 {
		return errors.Errorf("invalid window: %d", o.Window)
	}
	if _, err := ParsePortMappings(o.MapPorts); err != nil {
		return errors.Wrap(err, "parsing port mappings")
	}
	return nil
}

// Latency returns the one-way latency applied by each pipe.
func (o *Options) Latency() time.Duration {
	return LatencyFromRTT(o.RTT)
}

// LatencyFromRTT converts a round-trip time in milliseconds to the
// one-way latency each pipe must apply.
func LatencyFromRTT(rtt float64) time.Duration {
	return time.Duration(rtt / 2 * float64(time.Millisecond))
}

// EffectiveKbps converts a nominal bandwidth to the rate the pipes use,
// de-rating it for the TCP/IP framing of 1460-byte payloads inside
// 1500-byte frames.
func EffectiveKbps(kbps float64) float64 {
	return kbps * segmentPayload / frameSize
}
