package mediamtx

import (
	"fmt"
	"math"
)

// optionSchema declares the shape of one recognized global
// configuration option.
type optionSchema struct {
	kind    string // "string" | "bool" | "int"
	allowed []string
	min     float64
	max     float64
	bounded bool
}

// configOptionSchemas lists the global MediaMTX options this service
// accepts through update_configuration. Unknown keys are rejected.
var configOptionSchemas = map[string]optionSchema{
	"logLevel":           {kind: "string", allowed: []string{"error", "warn", "info", "debug"}},
	"readTimeout":        {kind: "string"},
	"writeTimeout":       {kind: "string"},
	"readBufferCount":    {kind: "int", bounded: true, min: 1, max: 4096},
	"api":                {kind: "bool"},
	"metrics":            {kind: "bool"},
	"rtsp":               {kind: "bool"},
	"rtmp":               {kind: "bool"},
	"hls":                {kind: "bool"},
	"webrtc":             {kind: "bool"},
	"hlsSegmentCount":    {kind: "int", bounded: true, min: 1, max: 30},
	"hlsSegmentDuration": {kind: "string"},
	"recordFormat":       {kind: "string", allowed: []string{"fmp4", "mpegts"}},
	"recordDeleteAfter":  {kind: "string"},
}

// ValidateConfigOptions checks a configuration patch against the
// declared schemas, naming the offending key in every error.
func ValidateConfigOptions(options map[string]any) error {
	if len(options) == 0 {
		return fmt.Errorf("no configuration options provided")
	}
	for key, value := range options {
		schema, known := configOptionSchemas[key]
		if !known {
			return fmt.Errorf("unknown configuration option %q", key)
		}
		if err := schema.check(key, value); err != nil {
			return err
		}
	}
	return nil
}

func (s optionSchema) check(key string, value any) error {
	switch s.kind {
	case "string":
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("option %q must be a string", key)
		}
		if len(s.allowed) > 0 {
			for _, a := range s.allowed {
				if str == a {
					return nil
				}
			}
			return fmt.Errorf("option %q must be one of %v", key, s.allowed)
		}
	case "bool":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("option %q must be a boolean", key)
		}
	case "int":
		num, ok := toNumber(value)
		if !ok || num != math.Trunc(num) {
			return fmt.Errorf("option %q must be an integer", key)
		}
		if s.bounded && (num < s.min || num > s.max) {
			return fmt.Errorf("option %q must be between %v and %v", key, s.min, s.max)
		}
	}
	return nil
}

// toNumber accepts the numeric types JSON decoding can produce.
func toNumber(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
