package warmup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// FileSource loads a JSON object of key/value pairs from disk.
type FileSource struct {
	Path      string
	TTL       time.Duration
	Transform Transform
}

func (s *FileSource) Describe() string { return "file:" + s.Path }

func (s *FileSource) Load(ctx context.Context) ([]KeyValue, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("warmup: read %s: %w", s.Path, err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("warmup: parse %s: %w", s.Path, err)
	}
	return s.pairs(raw), nil
}

func (s *FileSource) pairs(raw map[string]interface{}) []KeyValue {
	out := make([]KeyValue, 0, len(raw))
	for key, value := range raw {
		pair := KeyValue{Key: key, Value: value, TTL: s.TTL}
		if s.Transform != nil {
			pair = s.Transform(pair)
		}
		out = append(out, pair)
	}
	return out
}

// HTTPSource fetches a JSON object of key/value pairs from a URL.
type HTTPSource struct {
	URL       string
	Client    *http.Client
	TTL       time.Duration
	Transform Transform
}

func (s *HTTPSource) Describe() string { return "http:" + s.URL }

func (s *HTTPSource) Load(ctx context.Context) ([]KeyValue, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("warmup: build request for %s: %w", s.URL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("warmup: fetch %s: %w", s.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("warmup: fetch %s: unexpected status %d", s.URL, resp.StatusCode)
	}

	var raw map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("warmup: decode %s: %w", s.URL, err)
	}

	out := make([]KeyValue, 0, len(raw))
	for key, value := range raw {
		pair := KeyValue{Key: key, Value: value, TTL: s.TTL}
		if s.Transform != nil {
			pair = s.Transform(pair)
		}
		out = append(out, pair)
	}
	return out, nil
}

// RedisSource scans a Redis instance for keys matching a pattern and loads
// their string values; useful for rehydrating from a shared warm store.
type RedisSource struct {
	Client    *redis.Client
	Pattern   string
	TTL       time.Duration
	Transform Transform
}

func (s *RedisSource) Describe() string { return "redis:" + s.Pattern }

func (s *RedisSource) Load(ctx context.Context) ([]KeyValue, error) {
	if s.Client == nil {
		return nil, fmt.Errorf("warmup: redis source has no client")
	}

	var out []KeyValue
	iter := s.Client.Scan(ctx, 0, s.Pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		value, err := s.Client.Get(ctx, key).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, fmt.Errorf("warmup: redis get %s: %w", key, err)
		}
		pair := KeyValue{Key: key, Value: value, TTL: s.TTL}
		if s.Transform != nil {
			pair = s.Transform(pair)
		}
		out = append(out, pair)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("warmup: redis scan %s: %w", s.Pattern, err)
	}
	return out, nil
}
