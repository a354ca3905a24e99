package config

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestNewOptionsDefaults(t *testing.T) {
	o := NewOptions()
	if o.Bind != "localhost" || o.Port != 1080 || o.Window != DefaultWindow {
		t.Fatalf("unexpected defaults: %+v", o)
	}
	if err := o.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestOptionsValidate(t *testing.T) {
	type testcase struct {
		name   string
		modify func(o *Options)
	}
	for _, tc := range []testcase{{
		name:   "negative port",
		modify: func(o *Options) { o.Port = -1 },
	}, {
		name:   "port too large",
		modify: func(o *Options) { o.Port = 65536 },
	}, {
		name:   "negative rtt",
		modify: func(o *Options) { o.RTT = -5 },
	}, {
		name:   "negative bandwidth",
		modify: func(o *Options) { o.OutKbps = -1 },
	}, {
		name:   "zero window",
		modify: func(o *Options) { o.Window = 0 },
	}, {
		name:   "bad port mappings",
		modify: func(o *Options) { o.MapPorts = "443-8443" },
	}} {
		t.Run(tc.name, func(t *testing.T) {
			o := NewOptions()
			tc.modify(o)
			if err := o.Validate(); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestOptionsAcceptLargeInitialWindow(t *testing.T) {
	o := NewOptions()
	o.Window = MaxWindow + 1
	if err := o.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestLatencyFromRTT(t *testing.T) {
	if got := LatencyFromRTT(200); got != 100*time.Millisecond {
		t.Fatal("unexpected latency", got)
	}
	if got := LatencyFromRTT(0); got != 0 {
		t.Fatal("unexpected latency", got)
	}
	o := NewOptions()
	o.RTT = 50
	if got := o.Latency(); got != 25*time.Millisecond {
		t.Fatal("unexpected latency", got)
	}
}

func TestEffectiveKbps(t *testing.T) {
	if got := EffectiveKbps(1500); got != 1460 {
		t.Fatal("unexpected value", got)
	}
	if got := EffectiveKbps(800); math.Abs(got-778.666666666) > 1e-6 {
		t.Fatal("unexpected value", got)
	}
}

func TestPortMap(t *testing.T) {
	t.Run("empty string", func(t *testing.T) {
		pm, err := ParsePortMappings("")
		if err != nil {
			t.Fatal(err)
		}
		if pm != nil {
			t.Fatal("expected nil")
		}
		if pm.Map(443) != 443 {
			t.Fatal("nil map must not change ports")
		}
	})

	t.Run("exact and wildcard", func(t *testing.T) {
		pm, err := ParsePortMappings("443:8443,*:8080")
		if err != nil {
			t.Fatal(err)
		}
		if got := pm.Map(443); got != 8443 {
			t.Fatal("unexpected port", got)
		}
		if got := pm.Map(80); got != 8080 {
			t.Fatal("unexpected port", got)
		}
	})

	t.Run("exact only", func(t *testing.T) {
		pm, err := ParsePortMappings("80:8080")
		if err != nil {
			t.Fatal(err)
		}
		if got := pm.Map(443); got != 443 {
			t.Fatal("unexpected port", got)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		for _, input := range []string{"443", "443:", "x:80", "80:70000", "*:"} {
			_, err := ParsePortMappings(input)
			if !errors.Is(err, ErrInvalidPortMapping) {
				t.Fatal(input, "unexpected error", err)
			}
		}
	})
}
