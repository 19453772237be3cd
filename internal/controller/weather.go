package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/zulandar/switchboard/internal/command"
)

// NounWeather is the noun handled by the weather controller.
const NounWeather = "weather"

// defaultWeatherURL is the OpenWeatherMap current-conditions endpoint.
const defaultWeatherURL = "https://api.openweathermap.org/data/2.5/weather"

// weatherResponse is the subset of the current-conditions payload we show.
type weatherResponse struct {
	Name    string `json:"name"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
}

// WeatherController answers weather commands from an OpenWeatherMap-style
// API. A missing location triggers the completion protocol.
type WeatherController struct {
	replier  Replier
	executor Executor
	client   *http.Client
	apiURL   string
	apiKey   string
}

// WeatherOpts holds parameters for creating a WeatherController.
type WeatherOpts struct {
	Replier  Replier
	Executor Executor
	APIKey   string
	APIURL   string       // defaults to the OpenWeatherMap endpoint
	Client   *http.Client // for testing; defaults to a 10s-timeout client
}

// NewWeather creates a WeatherController.
func NewWeather(opts WeatherOpts) (*WeatherController, error) {
	if opts.Replier == nil {
		return nil, fmt.Errorf("controller: weather: replier is required")
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("controller: weather: executor is required")
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("controller: weather: api key is required")
	}
	apiURL := opts.APIURL
	if apiURL == "" {
		apiURL = defaultWeatherURL
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WeatherController{
		replier:  opts.Replier,
		executor: opts.Executor,
		client:   client,
		apiURL:   apiURL,
		apiKey:   opts.APIKey,
	}, nil
}

// Nouns returns the nouns this controller handles.
func (c *WeatherController) Nouns() []string {
	return []string{NounWeather}
}

// Handle fetches current conditions for the "location" field.
func (c *WeatherController) Handle(ctx context.Context, cmd command.Command) error {
	location, ok := cmd.Head("location")
	if !ok {
		return c.requestLocation(ctx, cmd)
	}

	conditions, err := c.fetch(ctx, location)
	if err != nil {
		log.Printf("weather: fetch %q: %v", location, err)
		c.sendReply(ctx, cmd.Context, "error fetching weather")
		return nil
	}

	c.sendReply(ctx, cmd.Context, formatWeather(conditions))
	return nil
}

// requestLocation opens a completion for the missing location.
func (c *WeatherController) requestLocation(ctx context.Context, cmd command.Command) error {
	completion, err := command.NewCompletion(cmd, "location", "no location given")
	if err != nil {
		c.sendReply(ctx, cmd.Context, "no location given")
		return nil
	}
	c.executor.ExecuteCommand(ctx, completion)
	return nil
}

// fetch calls the weather API for one location.
func (c *WeatherController) fetch(ctx context.Context, location string) (*weatherResponse, error) {
	query := url.Values{}
	query.Set("q", location)
	query.Set("appid", c.apiKey)
	query.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, command.ErrDecodeFailure)
	}

	var conditions weatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&conditions); err != nil {
		return nil, fmt.Errorf("decode: %w", command.ErrDecodeFailure)
	}
	return &conditions, nil
}

// formatWeather renders current conditions as a single reply line.
func formatWeather(w *weatherResponse) string {
	description := "unknown conditions"
	if len(w.Weather) > 0 {
		description = w.Weather[0].Description
	}
	return fmt.Sprintf("%s: %s, %.1f°C, %d%% humidity", w.Name, description, w.Main.Temp, w.Main.Humidity)
}

func (c *WeatherController) sendReply(ctx context.Context, cmdCtx command.Context, text string) {
	if err := c.replier.Reply(ctx, cmdCtx, text); err != nil {
		log.Printf("weather: reply: %v", err)
	}
}
