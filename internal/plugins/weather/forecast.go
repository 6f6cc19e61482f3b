package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultEndpoint = "https://weather.tsukumijima.net/api/forecast/city/{city}"
	DefaultCity     = "140010" // Yokohama
)

// Day is one normalized forecast entry. Missing values are "-".
type Day struct {
	DateLabel string `json:"dateLabel"`
	Date      string `json:"date"`
	Telop     string `json:"telop"`
	TempMin   string `json:"tempMin"`
	TempMax   string `json:"tempMax"`
	ImageURL  string `json:"imageUrl"`
	ImageText string `json:"imageTitle"`
}

// Report is the normalized forecast for one city.
type Report struct {
	City        string
	Title       string
	Description string
	Today       Day
	Tomorrow    Day
}

// Forecaster fetches a weather report.
type Forecaster interface {
	Forecast(ctx context.Context) (*Report, error)
}

// HTTPForecaster reads the livedoor-compatible forecast JSON API.
type HTTPForecaster struct {
	URL        string
	Client     *http.Client
	MaxRetries uint64
}

// NewHTTPForecaster builds a forecaster for a city code. endpoint may contain "{city}".
func NewHTTPForecaster(endpoint, city string) *HTTPForecaster {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if city == "" {
		city = DefaultCity
	}
	return &HTTPForecaster{
		URL:        strings.ReplaceAll(endpoint, "{city}", city),
		Client:     &http.Client{Timeout: 10 * time.Second},
		MaxRetries: 2,
	}
}

// wire format of the forecast API
type apiResponse struct {
	Title       string `json:"title"`
	Description struct {
		Text string `json:"text"`
	} `json:"description"`
	Location struct {
		City string `json:"city"`
	} `json:"location"`
	Forecasts []apiForecast `json:"forecasts"`
}

type apiForecast struct {
	DateLabel   string `json:"dateLabel"`
	Date        string `json:"date"`
	Telop       string `json:"telop"`
	Temperature *struct {
		Min *apiTemp `json:"min"`
		Max *apiTemp `json:"max"`
	} `json:"temperature"`
	Image *struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"image"`
}

type apiTemp struct {
	Celsius *string `json:"celsius"`
}

// Forecast fetches and normalizes the report. 5xx responses are retried.
func (f *HTTPForecaster) Forecast(ctx context.Context) (*Report, error) {
	var resp apiResponse
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		res, err := f.Client.Do(req)
		if err != nil {
			return fmt.Errorf("forecast request: %w", err)
		}
		defer res.Body.Close()

		if res.StatusCode >= 500 {
			return fmt.Errorf("forecast api: status %d", res.StatusCode)
		}
		if res.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("forecast api: status %d", res.StatusCode))
		}
		if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
			return backoff.Permanent(fmt.Errorf("decode forecast: %w", err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), f.MaxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return resp.normalize(), nil
}

func (r apiResponse) normalize() *Report {
	rep := &Report{
		City:        orDash(r.Location.City),
		Title:       orDash(r.Title),
		Description: strings.TrimSpace(r.Description.Text),
	}
	if len(r.Forecasts) > 0 {
		rep.Today = r.Forecasts[0].normalize()
	} else {
		rep.Today = emptyDay()
	}
	if len(r.Forecasts) > 1 {
		rep.Tomorrow = r.Forecasts[1].normalize()
	} else {
		rep.Tomorrow = emptyDay()
	}
	return rep
}

func (f apiForecast) normalize() Day {
	d := Day{
		DateLabel: orDash(f.DateLabel),
		Date:      f.Date,
		Telop:     orDash(f.Telop),
		TempMin:   "-",
		TempMax:   "-",
		ImageText: "-",
	}
	if d.Date == "" {
		d.Date = "1970-01-01"
	}
	if f.Temperature != nil {
		d.TempMin = celsius(f.Temperature.Min)
		d.TempMax = celsius(f.Temperature.Max)
	}
	if f.Image != nil {
		d.ImageURL = f.Image.URL
		d.ImageText = orDash(f.Image.Title)
	}
	return d
}

func emptyDay() Day {
	return apiForecast{}.normalize()
}

func celsius(t *apiTemp) string {
	if t == nil || t.Celsius == nil || *t.Celsius == "" {
		return "-"
	}
	return *t.Celsius
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
