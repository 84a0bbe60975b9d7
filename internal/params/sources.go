package params

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// FileSource reads parameters from a YAML file. Keys missing from the file
// keep their default values.
type FileSource struct {
	Path string
}

// Load reads and parses the file.
func (f FileSource) Load(_ context.Context) (Parameters, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return Parameters{}, err
	}
	return Parse(b)
}

// Parse decodes YAML parameters over the defaults and validates the result.
func Parse(b []byte) (Parameters, error) {
	p := Default()
	if err := yaml.Unmarshal(b, &p); err != nil {
		return Parameters{}, fmt.Errorf("parse parameters: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Parameters{}, err
	}
	return p, nil
}

// Marshal encodes p in the format FileSource reads.
func Marshal(p Parameters) ([]byte, error) {
	return yaml.Marshal(p)
}

// hashReader is the part of the redis client RedisSource needs.
type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// RedisSource reads parameters from a redis hash. Fields use the YAML key
// names; absent fields keep their default values.
type RedisSource struct {
	client hashReader
	key    string
}

// DefaultRedisKey is the hash holding detector parameters.
const DefaultRedisKey = "land_detector:params"

// NewRedisSource creates a source reading hash key through client.
func NewRedisSource(client hashReader, key string) *RedisSource {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisSource{client: client, key: key}
}

// Load fetches the hash and converts its fields.
func (r *RedisSource) Load(ctx context.Context) (Parameters, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return Parameters{}, fmt.Errorf("failed to read hash %s: %w", r.key, err)
	}
	return FromFields(fields)
}

// FromFields converts string fields over the defaults and validates the result.
func FromFields(fields map[string]string) (Parameters, error) {
	p := Default()
	floats := map[string]*float32{
		"min_throttle":        &p.MinThrottle,
		"hover_throttle":      &p.HoverThrottle,
		"min_man_throttle":    &p.MinManThrottle,
		"hover_thrust_factor": &p.HoverThrustFactor,
		"land_speed":          &p.LandSpeed,
		"crawl_speed":         &p.CrawlSpeed,
		"rot_max":             &p.RotMax,
		"xy_vel_max":          &p.XYVelMax,
		"z_vel_max":           &p.ZVelMax,
		"alt_gnd_effect":      &p.AltGndEffect,
	}

	for name, raw := range fields {
		switch name {
		case "use_hover_thrust_estimate":
			v, err := strconv.ParseBool(raw)
			if err != nil {
				return Parameters{}, fmt.Errorf("field %s: %w", name, err)
			}
			p.UseHoverThrustEstimate = v
		case "trig_time":
			v, err := parseDuration(raw)
			if err != nil {
				return Parameters{}, fmt.Errorf("field %s: %w", name, err)
			}
			p.TrigTime = v
		default:
			dst, ok := floats[name]
			if !ok {
				// Unknown fields belong to other consumers of the hash
				continue
			}
			v, err := strconv.ParseFloat(raw, 32)
			if err != nil {
				return Parameters{}, fmt.Errorf("field %s: %w", name, err)
			}
			*dst = float32(v)
		}
	}

	if err := p.Validate(); err != nil {
		return Parameters{}, err
	}
	return p, nil
}

// parseDuration accepts Go durations ("1.5s") or plain seconds ("1.5").
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(sec) || math.IsInf(sec, 0) {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return time.Duration(sec * float64(time.Second)), nil
}
