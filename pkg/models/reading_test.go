package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestReadingQueryParams_Validate(t *testing.T) {
	testCases := []struct {
		name        string
		params      ReadingQueryParams
		expectError bool
		errorMsg    string
	}{
		{
			name: "Valid basic params",
			params: ReadingQueryParams{
				Limit: 100,
				Page:  1,
				Order: "desc",
			},
			expectError: false,
		},
		{
			name: "Valid with location",
			params: ReadingQueryParams{
				Location: "Zone 1",
				Limit:    100,
				Page:     1,
				Order:    "asc",
			},
			expectError: false,
		},
		{
			name: "Invalid limit - too low",
			params: ReadingQueryParams{
				Limit: 0,
				Page:  1,
				Order: "desc",
			},
			expectError: true,
			errorMsg:    "limit must be between 1 and 10000",
		},
		{
			name: "Invalid limit - too high",
			params: ReadingQueryParams{
				Limit: 10001,
				Page:  1,
				Order: "desc",
			},
			expectError: true,
			errorMsg:    "limit must be between 1 and 10000",
		},
		{
			name: "Invalid page - zero",
			params: ReadingQueryParams{
				Limit: 100,
				Page:  0,
				Order: "desc",
			},
			expectError: true,
			errorMsg:    "page must be greater than 0",
		},
		{
			name: "Invalid order",
			params: ReadingQueryParams{
				Limit: 100,
				Page:  1,
				Order: "invalid",
			},
			expectError: true,
			errorMsg:    "invalid order: invalid (valid: asc, desc)",
		},
		{
			name: "Invalid start time",
			params: ReadingQueryParams{
				StartTime: "yesterday",
				Limit:     100,
				Page:      1,
				Order:     "desc",
			},
			expectError: true,
			errorMsg:    "invalid start time",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.params.Validate()
			if tc.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tc.errorMsg != "" && !strings.Contains(err.Error(), tc.errorMsg) {
					t.Errorf("Expected error containing '%s', got '%s'", tc.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
			}
		})
	}
}

func TestReadingQueryParams_TimeRangeValidation(t *testing.T) {
	now := time.Now().UTC()

	testCases := []struct {
		name        string
		params      ReadingQueryParams
		expectError bool
	}{
		{
			name: "Valid time range",
			params: ReadingQueryParams{
				StartTime: now.Add(-1 * time.Hour).Format(time.RFC3339),
				EndTime:   now.Format(time.RFC3339),
				Limit:     100,
				Page:      1,
				Order:     "desc",
			},
			expectError: false,
		},
		{
			name: "Start time after end time",
			params: ReadingQueryParams{
				StartTime: now.Format(time.RFC3339),
				EndTime:   now.Add(-1 * time.Hour).Format(time.RFC3339),
				Limit:     100,
				Page:      1,
				Order:     "desc",
			},
			expectError: true,
		},
		{
			name: "Only end time",
			params: ReadingQueryParams{
				EndTime: now.Format(time.RFC3339),
				Limit:   100,
				Page:    1,
				Order:   "desc",
			},
			expectError: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.params.Validate()
			if tc.expectError && err == nil {
				t.Error("Expected error but got none")
			}
			if !tc.expectError && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestReading_UnmarshalJSON(t *testing.T) {
	payload := `{"id": 1705314600000, "timestamp": "2024-01-15T10:30:00.000Z", "temperature": 22.5, "moisture": 0, "zone": "Zone 2"}`

	var r Reading
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		t.Fatalf("Failed to unmarshal reading: %v", err)
	}

	expected := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	if !r.Timestamp.Equal(expected) {
		t.Errorf("Expected timestamp %v, got %v", expected, r.Timestamp)
	}
	if v, ok := r.Value(SensorKeyTemperature); !ok || v != 22.5 {
		t.Errorf("Expected temperature 22.5, got %v (defined=%v)", v, ok)
	}
	if v, ok := r.Value(SensorKeyMoisture); !ok || v != 0 {
		t.Errorf("Expected moisture 0 to be defined, got %v (defined=%v)", v, ok)
	}
	if _, ok := r.Value(SensorKeyHumidity); ok {
		t.Error("Expected humidity to be undefined")
	}
	if r.Location != "Zone 2" {
		t.Errorf("Expected zone alias to set location, got %q", r.Location)
	}
}

func TestReading_UnmarshalJSON_MissingTimestamp(t *testing.T) {
	var r Reading
	if err := json.Unmarshal([]byte(`{"id": 1, "humidity": 40}`), &r); err != nil {
		t.Fatalf("Expected missing timestamp to decode, got: %v", err)
	}
	if r.IsValid() {
		t.Error("Expected reading without timestamp to be invalid")
	}
}

func TestReading_UnmarshalJSON_BadTimestamp(t *testing.T) {
	var r Reading
	if err := json.Unmarshal([]byte(`{"id": 1, "timestamp": "not-a-time"}`), &r); err == nil {
		t.Error("Expected error for unparsable timestamp")
	}
}

func TestReading_MarshalJSON(t *testing.T) {
	r := NewReading(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)).WithValue(SensorKeyHumidity, 45)
	r.Location = "Zone 1"

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Failed to marshal reading: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to decode marshalled reading: %v", err)
	}

	if decoded["timestamp"] != "2024-01-15T10:30:00.000Z" {
		t.Errorf("Expected ISO timestamp, got %v", decoded["timestamp"])
	}
	if decoded["humidity"] != 45.0 {
		t.Errorf("Expected humidity 45, got %v", decoded["humidity"])
	}
	if _, ok := decoded["temperature"]; ok {
		t.Error("Expected undefined temperature to be omitted")
	}
	if decoded["id"] != float64(r.ID) {
		t.Errorf("Expected id %d, got %v", r.ID, decoded["id"])
	}
}

func TestReading_StringFields(t *testing.T) {
	r := NewReading(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	r.Location = "North Silo"

	fields := r.StringFields()
	if len(fields) != 2 {
		t.Fatalf("Expected 2 string fields, got %d", len(fields))
	}
	if fields[0] != "2024-03-01T08:00:00.000Z" {
		t.Errorf("Expected ISO timestamp first, got %s", fields[0])
	}
	if fields[1] != "North Silo" {
		t.Errorf("Expected location second, got %s", fields[1])
	}
}

func TestReading_ZoneTag(t *testing.T) {
	testCases := []struct {
		name           string
		payload        string
		expectLocation string
		expectZone     string
		expectFields   int
	}{
		{name: "Location only", payload: `{"timestamp":"2024-01-15T10:00:00Z","location":"Zone 1"}`, expectLocation: "Zone 1", expectFields: 2},
		{name: "Zone only", payload: `{"timestamp":"2024-01-15T10:00:00Z","zone":"Zone 2"}`, expectLocation: "Zone 2", expectFields: 2},
		{name: "Both differ", payload: `{"timestamp":"2024-01-15T10:00:00Z","location":"North Silo","zone":"Zone 3"}`, expectLocation: "North Silo", expectZone: "Zone 3", expectFields: 3},
		{name: "Both equal", payload: `{"timestamp":"2024-01-15T10:00:00Z","location":"Zone 4","zone":"Zone 4"}`, expectLocation: "Zone 4", expectFields: 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var r Reading
			if err := json.Unmarshal([]byte(tc.payload), &r); err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if r.Location != tc.expectLocation {
				t.Errorf("Expected location %q, got %q", tc.expectLocation, r.Location)
			}
			if r.Zone != tc.expectZone {
				t.Errorf("Expected zone %q, got %q", tc.expectZone, r.Zone)
			}
			if fields := r.StringFields(); len(fields) != tc.expectFields {
				t.Errorf("Expected %d string fields, got %v", tc.expectFields, fields)
			}

			out, err := json.Marshal(r)
			if err != nil {
				t.Fatalf("Failed to marshal: %v", err)
			}
			var decoded Reading
			if err := json.Unmarshal(out, &decoded); err != nil {
				t.Fatalf("Failed to decode: %v", err)
			}
			if decoded.Location != r.Location || decoded.Zone != r.Zone {
				t.Errorf("Expected %q/%q after round trip, got %q/%q", r.Location, r.Zone, decoded.Location, decoded.Zone)
			}
		})
	}
}
