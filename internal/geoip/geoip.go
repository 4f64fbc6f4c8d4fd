// Package geoip resolves a client address to a coarse country and city for
// telemetry. Lookups are best effort: every failure yields an empty Location.
package geoip

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dgellow/generateui-api/internal/ioutil"
	"github.com/dgellow/generateui-api/internal/log"
	"github.com/dgellow/generateui-api/internal/urlutil"
)

const maxResponseBytes = 64 << 10

// Location is nil-valued when unknown so it maps straight onto nullable
// columns.
type Location struct {
	Country *string
	City    *string
}

// Locator is what the telemetry handler needs.
type Locator interface {
	Locate(ctx context.Context, ip string) Location
}

// Disabled is a Locator that never looks anything up.
type Disabled struct{}

func (Disabled) Locate(context.Context, string) Location { return Location{} }

// Resolver queries an ipapi.co compatible endpoint: GET {base}/{ip}/json/.
type Resolver struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	group   singleflight.Group
}

func NewResolver(baseURL string, timeout time.Duration) *Resolver {
	return &Resolver{
		baseURL: baseURL,
		client:  &http.Client{},
		timeout: timeout,
	}
}

type ipapiResponse struct {
	Country string `json:"country"`
	City    string `json:"city"`
	Error   bool   `json:"error"`
	Reason  string `json:"reason"`
}

// Locate returns the location of ip, or an empty Location for private,
// loopback or unparsable addresses and on any lookup failure. It never
// waits longer than the resolver timeout. Concurrent lookups of the same
// address share one request.
func (r *Resolver) Locate(ctx context.Context, ip string) Location {
	if IsPrivateIP(ip) {
		return Location{}
	}

	v, err, _ := r.group.Do(ip, func() (any, error) {
		// Detached from the first caller so its cancellation does not fail
		// the lookup for the others sharing it.
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.lookup(lookupCtx, ip)
	})
	if err != nil {
		log.LogDebugWithFields("geoip", "Geo lookup failed", map[string]any{
			"error": err.Error(),
		})
		return Location{}
	}
	return v.(Location)
}

func (r *Resolver) lookup(ctx context.Context, ip string) (Location, error) {
	endpoint, err := urlutil.JoinPath(r.baseURL, ip, "json/")
	if err != nil {
		return Location{}, fmt.Errorf("building lookup url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Location{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Location{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	var body ipapiResponse
	if err := ioutil.DecodeJSON(resp.Body, maxResponseBytes, &body); err != nil {
		return Location{}, err
	}
	if body.Error {
		return Location{}, fmt.Errorf("lookup rejected: %s", body.Reason)
	}

	return Location{
		Country: nonEmpty(body.Country),
		City:    nonEmpty(body.City),
	}, nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// IsPrivateIP reports whether ip should not be sent to the lookup service:
// empty, unparsable, loopback, RFC 1918, link-local or unique-local.
func IsPrivateIP(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return true
	}
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsUnspecified()
}
