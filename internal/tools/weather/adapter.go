package weather

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/farmora/backend/internal/domain"
	"github.com/farmora/backend/internal/tools"
	"github.com/farmora/backend/internal/tools/geo"
)

const (
	SourceLabel = "weather-api"
	defaultDays = 3
)

type Adapter struct {
	*tools.Ladder
	forecaster Forecaster
	gazetteer  *geo.Gazetteer
}

func NewAdapter(forecaster Forecaster, gazetteer *geo.Gazetteer, timeout time.Duration, opts ...tools.LadderOption) *Adapter {
	a := &Adapter{forecaster: forecaster, gazetteer: gazetteer}
	tierTimeout := timeout / 2
	a.Ladder = tools.NewLadder(domain.ToolWeather, SourceLabel, timeout, []tools.Tier{
		{Name: "forecast-at-coordinates", Timeout: tierTimeout, Run: a.atCoordinates},
		{Name: "forecast-at-district", Timeout: tierTimeout, Run: a.atDistrict},
		{Name: "forecast-at-state", Run: a.atState},
	}, opts...)
	return a
}

func (a *Adapter) atCoordinates(ctx context.Context, p tools.Params) (domain.Payload, error) {
	if !p.Location.HasCoords {
		return domain.Payload{}, fmt.Errorf("coordinates: %w", tools.ErrMissingParam)
	}
	label := p.Location.District
	if label == "" {
		label = p.Location.State
	}
	if label == "" {
		label = strconv.FormatFloat(p.Location.Lat, 'f', 2, 64) + "," + strconv.FormatFloat(p.Location.Lon, 'f', 2, 64)
	}
	return a.forecast(ctx, p, label, "coordinates", p.Location.Lat, p.Location.Lon)
}

func (a *Adapter) atDistrict(ctx context.Context, p tools.Params) (domain.Payload, error) {
	d, ok := a.gazetteer.District(p.Location.District)
	if !ok {
		return domain.Payload{}, fmt.Errorf("district %q: %w", p.Location.District, tools.ErrUnresolvedLocation)
	}
	return a.forecast(ctx, p, d.Name, "district", d.Lat, d.Lon)
}

func (a *Adapter) atState(ctx context.Context, p tools.Params) (domain.Payload, error) {
	resolved, granularity := a.gazetteer.Resolve(p.Location)
	if granularity == "" {
		return domain.Payload{}, fmt.Errorf("state %q: %w", p.Location.State, tools.ErrUnresolvedLocation)
	}
	s, ok := a.gazetteer.State(resolved.State)
	if !ok {
		return domain.Payload{}, tools.ErrUnresolvedLocation
	}
	return a.forecast(ctx, p, s.Name, "state", s.Lat, s.Lon)
}

func (a *Adapter) forecast(ctx context.Context, p tools.Params, place, granularity string, lat, lon float64) (domain.Payload, error) {
	days := p.Days
	if days <= 0 {
		days = defaultDays
	}
	offset := p.DayOffset
	if offset < 0 {
		offset = 0
	}

	forecast, err := a.forecaster.Forecast(ctx, lat, lon, offset+days)
	if err != nil {
		return domain.Payload{}, err
	}
	if offset >= len(forecast) {
		return domain.Payload{}, fmt.Errorf("day %d beyond forecast horizon: %w", offset, tools.ErrNoData)
	}
	end := offset + days
	if end > len(forecast) {
		end = len(forecast)
	}

	return domain.Payload{Weather: &domain.WeatherReport{
		Place:       place,
		Granularity: granularity,
		Lat:         lat,
		Lon:         lon,
		Days:        forecast[offset:end],
	}}, nil
}
