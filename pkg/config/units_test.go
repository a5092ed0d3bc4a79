package config

import (
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"", 0, false},
		{"30s", 30 * time.Second, false},
		{"10m", 10 * time.Minute, false},
		{"1.5h", 90 * time.Minute, false},
		{"1d", 24 * time.Hour, false},
		{"2d2h", 50 * time.Hour, false},
		{"1w", 168 * time.Hour, false},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDuration(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestParseDistance(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
		wantErr  bool
	}{
		{"3km", 3000, false},
		{"2.5km", 2500, false},
		{"2500m", 2500, false},
		{" 1nm ", 1852, false},
		{"750", 750, false},
		{"3 km", 3000, false},
		{"far", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDistance(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDistance(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseDistance(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestParseReuseDistance(t *testing.T) {
	tests := []struct {
		input   string
		wantKm  float64
		wantErr bool
	}{
		{"3", 3, false},
		{"2.5", 2.5, false},
		{"2500m", 2.5, false},
		{"4km", 4, false},
		{"-1", 0, true},
		{"near", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseReuseDistance(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseReuseDistance(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got.Km() != tt.wantKm {
			t.Errorf("ParseReuseDistance(%q) = %vkm, want %vkm", tt.input, got.Km(), tt.wantKm)
		}
	}
}

func TestYAMLUnits(t *testing.T) {
	type planning struct {
		Timeout Duration `yaml:"timeout"`
		Reuse   Distance `yaml:"reuse"`
		Raw     Distance `yaml:"raw"`
	}

	var cfg planning
	if err := yaml.Unmarshal([]byte("timeout: 2d\nreuse: 5km\nraw: 1200\n"), &cfg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if time.Duration(cfg.Timeout) != 48*time.Hour {
		t.Errorf("Expected 48h, got %v", time.Duration(cfg.Timeout))
	}
	if cfg.Reuse.Km() != 5 {
		t.Errorf("Expected 5km, got %v", cfg.Reuse.Km())
	}
	if float64(cfg.Raw) != 1200 {
		t.Errorf("Expected 1200m, got %v", cfg.Raw)
	}

	out, err := yaml.Marshal(planning{Timeout: Duration(time.Minute), Reuse: 2500, Raw: 800})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	for _, want := range []string{"reuse: 2.5km", "raw: 800m", "timeout: 1m0s"} {
		if !strings.Contains(string(out), want) {
			t.Errorf("marshalled YAML missing %q:\n%s", want, out)
		}
	}

	var back planning
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatalf("Unmarshal of marshalled YAML failed: %v", err)
	}
	if back.Reuse != 2500 || back.Raw != 800 {
		t.Errorf("round trip changed distances: %+v", back)
	}
}
