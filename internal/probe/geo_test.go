// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGeoLocationProbe_ParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"country":"Iceland","countryCode":"IS","regionName":"Capital Region","city":"Reykjavik","isp":"Example ISP","lat":64.1,"lon":-21.9}`))
	}))
	defer srv.Close()

	p := NewGeoLocationProbeWithBaseURL(srv.URL, nil)
	info := p.GeoLocation(context.Background(), net.ParseIP("203.0.113.9"))

	if info.Country != "Iceland" || info.City != "Reykjavik" || info.ISP != "Example ISP" {
		t.Errorf("info = %+v", info)
	}
	if info.Location != "Reykjavik, Iceland" {
		t.Errorf("Location = %q", info.Location)
	}
}

func TestGeoLocationProbe_FailsSoft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewGeoLocationProbeWithBaseURL(srv.URL, nil)
	info := p.GeoLocation(context.Background(), net.ParseIP("203.0.113.9"))

	if info.Location != "Unknown" {
		t.Errorf("Location = %q, want Unknown on failure", info.Location)
	}
}

func TestGeoLocationProbe_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	p := NewGeoLocationProbeWithBaseURL(srv.URL, nil)
	info := p.GeoLocation(context.Background(), net.ParseIP("203.0.113.9"))

	if info.Location != "Unknown" {
		t.Errorf("Location = %q, want Unknown on decode failure", info.Location)
	}
}
