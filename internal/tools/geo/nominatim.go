package geo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/farmora/backend/internal/tools"
)

// Address is the administrative area a point falls in.
type Address struct {
	District string
	State    string
	Country  string
}

// ReverseGeocoder resolves coordinates to an administrative area.
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (Address, error)
}

type NominatimClient struct {
	baseURL  string
	upstream *tools.Upstream
}

func NewNominatimClient(baseURL, userAgent string, timeout time.Duration) *NominatimClient {
	up := tools.NewUpstream("nominatim", timeout)
	up.Header.Set("User-Agent", userAgent)
	up.Header.Set("Accept-Language", "en")
	return &NominatimClient{baseURL: baseURL, upstream: up}
}

type nominatimResponse struct {
	Address struct {
		StateDistrict string `json:"state_district"`
		District      string `json:"district"`
		County        string `json:"county"`
		City          string `json:"city"`
		State         string `json:"state"`
		Country       string `json:"country"`
	} `json:"address"`
	Error string `json:"error"`
}

func (c *NominatimClient) ReverseGeocode(ctx context.Context, lat, lon float64) (Address, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(lat, 'f', 5, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 5, 64))
	q.Set("zoom", "10")
	q.Set("addressdetails", "1")

	var resp nominatimResponse
	if err := c.upstream.GetJSON(ctx, c.baseURL+"?"+q.Encode(), &resp); err != nil {
		return Address{}, err
	}
	if resp.Error != "" {
		return Address{}, fmt.Errorf("nominatim: %s", resp.Error)
	}

	a := resp.Address
	district := firstNonEmpty(a.County, a.District, a.StateDistrict, a.City)
	if a.State == "" && district == "" {
		return Address{}, tools.ErrNoData
	}

	return Address{
		District: NormalizeDistrictName(district),
		State:    a.State,
		Country:  a.Country,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
