package weather

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/farmora/backend/internal/domain"
	"github.com/farmora/backend/internal/tools"
)

const maxForecastDays = 16

// Forecaster returns daily forecasts starting today.
type Forecaster interface {
	Forecast(ctx context.Context, lat, lon float64, days int) ([]domain.WeatherDay, error)
}

type OpenMeteoClient struct {
	baseURL  string
	upstream *tools.Upstream
}

func NewOpenMeteoClient(baseURL string, timeout time.Duration) *OpenMeteoClient {
	return &OpenMeteoClient{baseURL: baseURL, upstream: tools.NewUpstream("open-meteo", timeout)}
}

type openMeteoResponse struct {
	Daily struct {
		Time             []string  `json:"time"`
		TempMax          []float64 `json:"temperature_2m_max"`
		TempMin          []float64 `json:"temperature_2m_min"`
		PrecipitationSum []float64 `json:"precipitation_sum"`
		PrecipitationMax []int     `json:"precipitation_probability_max"`
		WindSpeedMax     []float64 `json:"wind_speed_10m_max"`
		WeatherCode      []int     `json:"weather_code"`
	} `json:"daily"`
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

func (c *OpenMeteoClient) Forecast(ctx context.Context, lat, lon float64, days int) ([]domain.WeatherDay, error) {
	if days < 1 {
		days = 1
	}
	if days > maxForecastDays {
		days = maxForecastDays
	}

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_sum,precipitation_probability_max,wind_speed_10m_max,weather_code")
	q.Set("timezone", "auto")
	q.Set("forecast_days", strconv.Itoa(days))

	var resp openMeteoResponse
	if err := c.upstream.GetJSON(ctx, c.baseURL+"?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if resp.Error {
		return nil, fmt.Errorf("open-meteo: %s", resp.Reason)
	}

	d := resp.Daily
	out := make([]domain.WeatherDay, 0, len(d.Time))
	for i, date := range d.Time {
		day := domain.WeatherDay{Date: date}
		day.TempMaxC = at(d.TempMax, i)
		day.TempMinC = at(d.TempMin, i)
		day.PrecipitationMm = at(d.PrecipitationSum, i)
		day.WindSpeedKmh = at(d.WindSpeedMax, i)
		if i < len(d.PrecipitationMax) {
			day.PrecipitationProbability = d.PrecipitationMax[i]
		}
		if i < len(d.WeatherCode) {
			day.Summary = Describe(d.WeatherCode[i])
		}
		out = append(out, day)
	}
	if len(out) == 0 {
		return nil, tools.ErrNoData
	}
	return out, nil
}

func at(values []float64, i int) float64 {
	if i < len(values) {
		return values[i]
	}
	return 0
}

// Describe maps a WMO weather code to a short phrase.
func Describe(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code <= 2:
		return "partly cloudy"
	case code == 3:
		return "overcast"
	case code == 45 || code == 48:
		return "fog"
	case code >= 51 && code <= 57:
		return "drizzle"
	case code >= 61 && code <= 67:
		return "rain"
	case code >= 71 && code <= 77:
		return "snow"
	case code >= 80 && code <= 82:
		return "rain showers"
	case code == 85 || code == 86:
		return "snow showers"
	case code >= 95:
		return "thunderstorm"
	default:
		return "unsettled"
	}
}
