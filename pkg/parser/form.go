package parser

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/manslikestiffler/smart-granary/pkg/models"
	"github.com/relvacode/iso8601"
)

// FormParser accepts URL-encoded pushes from microcontroller gateways, e.g.
// temperature=21.5&humidity=48&zone=Zone+1&dateutc=2024-01-15+10:00:00
type FormParser struct {
	// Now stamps pushes without a date; defaults to time.Now
	Now func() time.Time
}

// Format returns the parser identifier
func (p *FormParser) Format() string {
	return "form"
}

// ContentType returns the accepted media type
func (p *FormParser) ContentType() string {
	return "application/x-www-form-urlencoded"
}

// Parse decodes the payload
func (p *FormParser) Parse(payload []byte) ([]models.Reading, error) {
	params, err := url.ParseQuery(string(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}

	r, err := p.ParseValues(params)
	if err != nil {
		return nil, err
	}
	return []models.Reading{r}, nil
}

// ParseValues converts form values into one reading
func (p *FormParser) ParseValues(params url.Values) (models.Reading, error) {
	ts, err := parseDate(params)
	if err != nil {
		return models.Reading{}, err
	}
	if ts.IsZero() {
		now := time.Now
		if p.Now != nil {
			now = p.Now
		}
		ts = now().UTC()
	}

	r := models.NewReading(ts)
	if id := params.Get("id"); id != "" {
		if v, err := strconv.ParseInt(id, 10, 64); err == nil {
			r.ID = v
		}
	}

	for _, key := range models.SensorKeys {
		raw := params.Get(key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.Reading{}, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
		}
		r = r.WithValue(key, v)
	}

	// Gateways reporting Fahrenheit send tempf instead of temperature
	if r.Temperature == nil {
		if raw := params.Get("tempf"); raw != "" {
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return models.Reading{}, fmt.Errorf("invalid tempf value %q: %w", raw, err)
			}
			r = r.WithValue(models.SensorKeyTemperature, (f-32)*5/9)
		}
	}

	r.Location = params.Get("location")
	if r.Location == "" {
		r.Location = params.Get("zone")
	}

	return r, nil
}

func parseDate(params url.Values) (time.Time, error) {
	if ts := params.Get("timestamp"); ts != "" {
		t, err := iso8601.ParseString(ts)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", ts, err)
		}
		return t, nil
	}

	if dateStr := params.Get("dateutc"); dateStr != "" {
		formats := []string{
			"2006-01-02 15:04:05",
			"2006-01-02+15:04:05",
		}
		for _, format := range formats {
			if t, err := time.Parse(format, dateStr); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("invalid dateutc %q", dateStr)
	}

	return time.Time{}, nil
}
