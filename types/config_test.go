package types

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func validConfig() *RetrievalConfig {
	return &RetrievalConfig{
		Address:       "http://127.0.0.1:9200",
		Index:         "test",
		Timeout:       DefaultTimeout,
		ChunkSize:     DefaultChunkSize,
		IncludeSource: true,
		Mode:          ModeScan,
	}
}

func TestParseWindow(t *testing.T) {
	tests := []struct {
		in      string
		want    *Window
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "10", want: &Window{From: 0, Size: 10}},
		{in: "2:10", want: &Window{From: 2, Size: 8}},
		{in: "5:5", want: &Window{From: 5, Size: 0}},
		{in: " 3 ", want: &Window{From: 0, Size: 3}},
		{in: "abc", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "10:2", wantErr: true},
		{in: "x:2", wantErr: true},
		{in: "2:y", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWindow(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseWindow(%q) expected error", tt.in)
				}
				if !IsConfigError(err) {
					t.Errorf("ParseWindow(%q) error should be a config error, got %v", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseWindow(%q) unexpected error: %v", tt.in, err)
			}
			if tt.want == nil {
				if got != nil {
					t.Errorf("ParseWindow(%q) = %+v, want nil", tt.in, got)
				}
				return
			}
			if got == nil || *got != *tt.want {
				t.Errorf("ParseWindow(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolveMode(t *testing.T) {
	tests := []struct {
		name                      string
		id, idfile, idfileConsume string
		want                      Mode
		wantErr                   bool
	}{
		{name: "scan", want: ModeScan},
		{name: "id", id: "1", want: ModeID},
		{name: "idfile", idfile: "ids.txt", want: ModeIDFile},
		{name: "consume", idfileConsume: "ids.txt", want: ModeIDFileConsume},
		{name: "id and idfile", id: "1", idfile: "ids.txt", wantErr: true},
		{name: "both idfiles", idfile: "a", idfileConsume: "b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveMode(tt.id, tt.idfile, tt.idfileConsume)
			if tt.wantErr {
				if !IsConfigError(err) {
					t.Fatalf("expected config error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveMode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRetrievalConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *RetrievalConfig)
		wantField string
	}{
		{name: "valid scan", mutate: func(*RetrievalConfig) {}},
		{name: "scan without index", mutate: func(c *RetrievalConfig) { c.Index = "" }},
		{
			name:      "headless without source",
			mutate:    func(c *RetrievalConfig) { c.Headless = true; c.IncludeSource = false },
			wantField: "headless",
		},
		{name: "no address", mutate: func(c *RetrievalConfig) { c.Address = "" }, wantField: "address"},
		{name: "zero chunk", mutate: func(c *RetrievalConfig) { c.ChunkSize = 0 }, wantField: "chunksize"},
		{name: "zero timeout", mutate: func(c *RetrievalConfig) { c.Timeout = 0 }, wantField: "timeout"},
		{
			name:      "body not an object",
			mutate:    func(c *RetrievalConfig) { c.Query = json.RawMessage(`[1,2]`) },
			wantField: "body",
		},
		{
			name:   "body object",
			mutate: func(c *RetrievalConfig) { c.Query = json.RawMessage(`{"query":{"match_all":{}}}`) },
		},
		{name: "id mode without id", mutate: func(c *RetrievalConfig) { c.Mode = ModeID }, wantField: "id"},
		{
			name:      "idfile mode without path",
			mutate:    func(c *RetrievalConfig) { c.Mode = ModeIDFileConsume },
			wantField: "idfile",
		},
		{
			name:      "idfile without index",
			mutate:    func(c *RetrievalConfig) { c.Mode = ModeIDFile; c.IDFile = "ids"; c.Index = "" },
			wantField: "index",
		},
		{
			name:      "window outside scan",
			mutate:    func(c *RetrievalConfig) { c.Mode = ModeID; c.ID = "1"; c.Window = &Window{Size: 2} },
			wantField: "size",
		},
		{name: "unknown mode", mutate: func(c *RetrievalConfig) { c.Mode = "bogus" }, wantField: "mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() = %v, want *ConfigError", err)
			}
			if cfgErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.wantField)
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Error("ConfigError should match ErrConfiguration")
			}
		})
	}
}

func TestRetrievalConfig_HeadlessMessage(t *testing.T) {
	c := validConfig()
	c.Headless = true
	c.IncludeSource = false
	c.Timeout = time.Second

	err := c.Validate()
	if err == nil || err.Error() != HeadlessWithoutSourceMessage {
		t.Errorf("Validate() = %v, want %q", err, HeadlessWithoutSourceMessage)
	}
}
