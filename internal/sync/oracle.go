package sync

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"
)

// Oracle reports current connectivity. Offline is a hard early-exit for the
// engine: no queue mutation, no lock attempt.
type Oracle interface {
	IsOnline() bool
}

// ManualOracle is a connectivity flag flipped by the platform layer, which
// receives reachability callbacks from the OS.
type ManualOracle struct {
	online atomic.Bool
}

// NewManualOracle creates a ManualOracle with an initial state.
func NewManualOracle(online bool) *ManualOracle {
	o := &ManualOracle{}
	o.online.Store(online)
	return o
}

// SetOnline updates the connectivity state.
func (o *ManualOracle) SetOnline(online bool) {
	o.online.Store(online)
}

// IsOnline returns the current connectivity state.
func (o *ManualOracle) IsOnline() bool {
	return o.online.Load()
}

// ProbeOracle checks connectivity by issuing a HEAD request against the
// remote endpoint. Any HTTP response counts as online; only a transport
// failure means offline.
type ProbeOracle struct {
	endpoint string
	client   *http.Client
}

// NewProbeOracle creates a ProbeOracle for the given endpoint.
func NewProbeOracle(endpoint string) *ProbeOracle {
	return &ProbeOracle{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 3 * time.Second,
		},
	}
}

// IsOnline probes the endpoint once.
func (o *ProbeOracle) IsOnline() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, o.endpoint, nil)
	if err != nil {
		return false
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
