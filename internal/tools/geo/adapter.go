package geo

import (
	"context"
	"fmt"
	"time"

	"github.com/farmora/backend/internal/domain"
	"github.com/farmora/backend/internal/tools"
)

const SourceLabel = "geocoder"

// maxNearestKm bounds the gazetteer fallback. Points farther than this from
// every known district are not guessed.
const maxNearestKm = 150.0

type Adapter struct {
	*tools.Ladder
	geocoder  ReverseGeocoder
	gazetteer *Gazetteer
}

func NewAdapter(geocoder ReverseGeocoder, gazetteer *Gazetteer, timeout time.Duration, opts ...tools.LadderOption) *Adapter {
	a := &Adapter{geocoder: geocoder, gazetteer: gazetteer}
	tierTimeout := timeout / 2
	a.Ladder = tools.NewLadder(domain.ToolGeolocation, SourceLabel, timeout, []tools.Tier{
		{Name: "reverse-geocode", Timeout: tierTimeout, Run: a.reverseGeocode},
		{Name: "gazetteer-nearest-district", Run: a.nearestDistrict},
		{Name: "gazetteer-state", Run: a.byName},
	}, opts...)
	return a
}

func (a *Adapter) reverseGeocode(ctx context.Context, p tools.Params) (domain.Payload, error) {
	if !p.Location.HasCoords {
		return domain.Payload{}, fmt.Errorf("coordinates: %w", tools.ErrMissingParam)
	}
	if a.geocoder == nil {
		return domain.Payload{}, fmt.Errorf("no reverse geocoder configured")
	}

	addr, err := a.geocoder.ReverseGeocode(ctx, p.Location.Lat, p.Location.Lon)
	if err != nil {
		return domain.Payload{}, err
	}

	resolved, granularity := a.gazetteer.Resolve(domain.Location{District: addr.District, State: addr.State})
	place := &domain.Place{
		District:    resolved.District,
		State:       resolved.State,
		Country:     addr.Country,
		Granularity: granularity,
		Lat:         p.Location.Lat,
		Lon:         p.Location.Lon,
	}
	// Areas outside the gazetteer keep the upstream names at state level.
	if granularity == "" {
		place.State = addr.State
		place.Granularity = "state"
		if addr.State == "" {
			return domain.Payload{}, tools.ErrUnresolvedLocation
		}
	}
	return domain.Payload{Place: place}, nil
}

func (a *Adapter) nearestDistrict(_ context.Context, p tools.Params) (domain.Payload, error) {
	if !p.Location.HasCoords {
		return domain.Payload{}, fmt.Errorf("coordinates: %w", tools.ErrMissingParam)
	}
	d, km := a.gazetteer.Nearest(p.Location.Lat, p.Location.Lon)
	if d.Name == "" || km > maxNearestKm {
		return domain.Payload{}, fmt.Errorf("nearest district %.0f km away: %w", km, tools.ErrUnresolvedLocation)
	}
	return domain.Payload{Place: &domain.Place{
		District:    d.Name,
		State:       d.State,
		Country:     "India",
		Granularity: "district",
		Lat:         p.Location.Lat,
		Lon:         p.Location.Lon,
	}}, nil
}

func (a *Adapter) byName(_ context.Context, p tools.Params) (domain.Payload, error) {
	resolved, granularity := a.gazetteer.Resolve(p.Location)
	if granularity == "" {
		return domain.Payload{}, tools.ErrUnresolvedLocation
	}

	lat, lon := p.Location.Lat, p.Location.Lon
	if !p.Location.HasCoords {
		if d, ok := a.gazetteer.District(resolved.District); ok {
			lat, lon = d.Lat, d.Lon
		} else if s, ok := a.gazetteer.State(resolved.State); ok {
			lat, lon = s.Lat, s.Lon
		}
	}
	return domain.Payload{Place: &domain.Place{
		District:    resolved.District,
		State:       resolved.State,
		Country:     "India",
		Granularity: granularity,
		Lat:         lat,
		Lon:         lon,
	}}, nil
}
