package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"weather-stream/models"

	"github.com/goccy/go-json"
)

// DefaultOpenMeteoURL is the public open-meteo API
const DefaultOpenMeteoURL = "https://api.open-meteo.com"

// ErrNoCurrentWeather is returned when the API response lacks current_weather
var ErrNoCurrentWeather = errors.New("response has no current_weather")

// OpenMeteoSource fetches current weather for station coordinates from the
// open-meteo forecast API
type OpenMeteoSource struct {
	baseURL    string
	httpClient *http.Client
}

// Ensure OpenMeteoSource implements DataSource
var _ DataSource = (*OpenMeteoSource)(nil)

// NewOpenMeteoSource creates a new open-meteo source. An empty baseURL
// selects the public API.
func NewOpenMeteoSource(baseURL string, timeout time.Duration) *OpenMeteoSource {
	if baseURL == "" {
		baseURL = DefaultOpenMeteoURL
	}
	return &OpenMeteoSource{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the source name
func (p *OpenMeteoSource) Name() string {
	return "OpenMeteo"
}

// openMeteoResponse is the subset of the forecast response we use
type openMeteoResponse struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	Timezone       string  `json:"timezone"`
	CurrentWeather *struct {
		Time          string  `json:"time"`
		Interval      int     `json:"interval"`
		Temperature   float64 `json:"temperature"`
		WindSpeed     float64 `json:"windspeed"`
		WindDirection float64 `json:"winddirection"`
		IsDay         int     `json:"is_day"`
		WeatherCode   int     `json:"weathercode"`
	} `json:"current_weather"`
}

// FetchMeasurement fetches current weather for the station's coordinates
func (p *OpenMeteoSource) FetchMeasurement(ctx context.Context, station models.Station) (models.Measurement, error) {
	// Build URL
	endpoint := fmt.Sprintf("%s/v1/forecast", p.baseURL)
	params := url.Values{}
	params.Add("latitude", strconv.FormatFloat(station.Latitude, 'f', -1, 64))
	params.Add("longitude", strconv.FormatFloat(station.Longitude, 'f', -1, 64))
	params.Add("current_weather", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return models.Measurement{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return models.Measurement{}, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Measurement{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return models.Measurement{}, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var response openMeteoResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return models.Measurement{}, fmt.Errorf("failed to parse response: %w", err)
	}

	weather := response.CurrentWeather
	if weather == nil {
		return models.Measurement{}, fmt.Errorf("%s: %w", station.Name, ErrNoCurrentWeather)
	}

	// open-meteo reports north as 360
	direction := math.Mod(weather.WindDirection, 360)
	if direction < 0 {
		direction += 360
	}

	return models.Measurement{
		City:          station.Name,
		Timestamp:     weather.Time,
		Temperature:   weather.Temperature,
		WindSpeed:     weather.WindSpeed,
		WindDirection: direction,
	}, nil
}
