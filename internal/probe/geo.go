// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/outpost-dev/vpnctl/internal/logging"
)

// GeoInfo is the parsed result of a GeoLocation lookup. A failed lookup
// never returns an error; it returns GeoInfo{Location: "Unknown"}.
type GeoInfo struct {
	Country     string
	CountryCode string
	Region      string
	City        string
	ISP         string
	Latitude    float64
	Longitude   float64
	Location    string
}

type geoLookupResponse struct {
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	RegionName  string  `json:"regionName"`
	City        string  `json:"city"`
	ISP         string  `json:"isp"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
}

// GeoLocationProbe queries a single lookup service for an IP's
// approximate location.
type GeoLocationProbe struct {
	client  *http.Client
	baseURL string
	logger  *logging.Logger
}

// NewGeoLocationProbe constructs a probe against the well-known lookup
// service.
func NewGeoLocationProbe(logger *logging.Logger) *GeoLocationProbe {
	return NewGeoLocationProbeWithBaseURL("http://ip-api.com/json", logger)
}

// NewGeoLocationProbeWithBaseURL allows tests to point at a fake server.
func NewGeoLocationProbeWithBaseURL(baseURL string, logger *logging.Logger) *GeoLocationProbe {
	if logger == nil {
		logger = logging.Default()
	}
	return &GeoLocationProbe{
		client:  &http.Client{Timeout: 5 * time.Second},
		baseURL: baseURL,
		logger:  logger.WithComponent("probe.geo"),
	}
}

// GeoLocation queries the lookup service. Any failure is soft: it logs and
// returns GeoInfo{Location: "Unknown"}, never an error.
func (p *GeoLocationProbe) GeoLocation(ctx context.Context, ip net.IP) GeoInfo {
	url := fmt.Sprintf("%s/%s", p.baseURL, ip.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		p.logger.Debug("geo lookup request build failed", "error", err)
		return GeoInfo{Location: "Unknown"}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("geo lookup request failed", "error", err)
		return GeoInfo{Location: "Unknown"}
	}
	defer resp.Body.Close()

	var parsed geoLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		p.logger.Debug("geo lookup response decode failed", "error", err)
		return GeoInfo{Location: "Unknown"}
	}

	return GeoInfo{
		Country:     parsed.Country,
		CountryCode: parsed.CountryCode,
		Region:      parsed.RegionName,
		City:        parsed.City,
		ISP:         parsed.ISP,
		Latitude:    parsed.Lat,
		Longitude:   parsed.Lon,
		Location:    fmt.Sprintf("%s, %s", parsed.City, parsed.Country),
	}
}
