package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/harunnryd/tabletalk/internal/config"
	"github.com/harunnryd/tabletalk/internal/session"
	toolcore "github.com/harunnryd/tabletalk/internal/tool"
)

const (
	WeatherToolName       = "get_current_weather"
	defaultWeatherBaseURL = "https://wttr.in"
	unitCelsius           = "celsius"
	unitFahrenheit        = "fahrenheit"
)

type weatherArgs struct {
	Location string `json:"location"`
	Unit     string `json:"unit"`
}

type wttrNamedValue struct {
	Value string `json:"value"`
}

type wttrCurrentCondition struct {
	TempC       string           `json:"temp_C"`
	TempF       string           `json:"temp_F"`
	WeatherDesc []wttrNamedValue `json:"weatherDesc"`
}

type wttrNearestArea struct {
	AreaName []wttrNamedValue `json:"areaName"`
	Region   []wttrNamedValue `json:"region"`
	Country  []wttrNamedValue `json:"country"`
}

type wttrResponse struct {
	CurrentCondition []wttrCurrentCondition `json:"current_condition"`
	NearestArea      []wttrNearestArea      `json:"nearest_area"`
}

func init() {
	toolcore.RegisterBuiltin(WeatherToolName, func(options toolcore.BuiltinOptions) (toolcore.Tool, error) {
		mode := strings.TrimSpace(options.WeatherMode)
		if mode == "" {
			mode = config.WeatherModeStatic
		}
		if mode != config.WeatherModeStatic && mode != config.WeatherModeWttr {
			return nil, fmt.Errorf("unknown weather mode %q", mode)
		}

		timeout := options.WeatherTimeout
		if timeout <= 0 {
			timeout = toolcore.DefaultBuiltinHTTPTimeout
		}

		baseURL := strings.TrimSpace(options.WeatherBaseURL)
		if baseURL == "" {
			baseURL = defaultWeatherBaseURL
		}

		return &WeatherTool{
			Mode:    mode,
			Client:  &http.Client{Timeout: timeout},
			BaseURL: baseURL,
		}, nil
	})
}

// WeatherTool reports the current weather. The static mode answers from a
// fixed table; the wttr mode asks wttr.in.
type WeatherTool struct {
	Mode    string
	Client  *http.Client
	BaseURL string
}

func (t *WeatherTool) Name() string { return WeatherToolName }

func (t *WeatherTool) Description() string {
	return "Get the current weather in a given location"
}

func (t *WeatherTool) ToolMetadata() toolcore.ToolMetadata {
	caps := []string{toolcore.CapWeatherQuery}
	if t.Mode == config.WeatherModeWttr {
		caps = append(caps, toolcore.CapHTTPGet)
	}
	return toolcore.ToolMetadata{
		Source:       toolcore.SourceBuiltin,
		Capabilities: caps,
		Risk:         toolcore.RiskLow,
	}
}

func (t *WeatherTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"location": map[string]interface{}{
				"type":        "string",
				"description": "The city and state, e.g. San Francisco, CA",
			},
			"unit": map[string]interface{}{
				"type": "string",
				"enum": []string{unitCelsius, unitFahrenheit},
			},
		},
		"required": []string{"location"},
	}
}

func (t *WeatherTool) Execute(ctx context.Context, _ *session.Session, input json.RawMessage) (string, error) {
	var args weatherArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	location := strings.TrimSpace(args.Location)
	if location == "" {
		return "", fmt.Errorf("location is required")
	}

	var result map[string]string
	if t.Mode == config.WeatherModeWttr {
		var err error
		if result, err = t.live(ctx, location, args.Unit); err != nil {
			return "", err
		}
	} else {
		result = cannedWeather(location)
	}

	out, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func cannedWeather(location string) map[string]string {
	lower := strings.ToLower(location)
	switch {
	case strings.Contains(lower, "tokyo"):
		return map[string]string{"location": "Tokyo", "temperature": "10", "unit": unitCelsius}
	case strings.Contains(lower, "san francisco"):
		return map[string]string{"location": "San Francisco", "temperature": "72", "unit": unitFahrenheit}
	case strings.Contains(lower, "paris"):
		return map[string]string{"location": "Paris", "temperature": "22", "unit": unitCelsius}
	default:
		return map[string]string{"location": location, "temperature": "unknown"}
	}
}

func (t *WeatherTool) live(ctx context.Context, location, unit string) (map[string]string, error) {
	endpoint, err := weatherEndpoint(t.BaseURL, location)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "tabletalk/1.0")

	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: toolcore.DefaultBuiltinHTTPTimeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("weather request failed: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, err
	}

	var payload wttrResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode weather response: %w", err)
	}
	if len(payload.CurrentCondition) == 0 {
		return nil, fmt.Errorf("weather response missing current condition")
	}

	current := payload.CurrentCondition[0]
	result := map[string]string{
		"location":    resolveWeatherLocation(payload.NearestArea, location),
		"temperature": strings.TrimSpace(current.TempF),
		"unit":        unitFahrenheit,
		"condition":   firstNamedValue(current.WeatherDesc),
	}
	if unit == unitCelsius {
		result["temperature"] = strings.TrimSpace(current.TempC)
		result["unit"] = unitCelsius
	}
	return result, nil
}

func weatherEndpoint(baseURL string, location string) (string, error) {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		base = defaultWeatherBaseURL
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid weather endpoint %q", base)
	}
	u = u.JoinPath(strings.TrimSpace(location))
	u.RawQuery = url.Values{"format": {"j1"}}.Encode()
	return u.String(), nil
}

// resolveWeatherLocation names the area wttr matched, "area, region, country",
// skipping empty parts.
func resolveWeatherLocation(nearest []wttrNearestArea, fallback string) string {
	var parts []string
	if len(nearest) > 0 {
		for _, v := range [][]wttrNamedValue{nearest[0].AreaName, nearest[0].Region, nearest[0].Country} {
			if name := firstNamedValue(v); name != "" {
				parts = append(parts, name)
			}
		}
	}
	if len(parts) == 0 {
		return strings.TrimSpace(fallback)
	}
	return strings.Join(parts, ", ")
}

func firstNamedValue(values []wttrNamedValue) string {
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}
