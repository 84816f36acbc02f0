package memory

import (
	"encoding/json"
	"fmt"
)

// Buckets lists the snapshot buckets in the order durable backends write them.
var Buckets = []string{
	"organizations",
	"profiles",
	"tools",
	"products",
	"authorizations",
	"incidents",
	"use_cases",
}

func (s *Snapshot) targets() map[string]any {
	return map[string]any{
		"organizations":  &s.Organizations,
		"profiles":       &s.Profiles,
		"tools":          &s.Tools,
		"products":       &s.Products,
		"authorizations": &s.Authorizations,
		"incidents":      &s.Incidents,
		"use_cases":      &s.UseCases,
	}
}

// EncodeBucket marshals one bucket of the snapshot to JSON.
func (s *Snapshot) EncodeBucket(bucket string) ([]byte, error) {
	target, ok := s.targets()[bucket]
	if !ok {
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
	data, err := json.Marshal(target)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", bucket, err)
	}
	return data, nil
}

// DecodeBucket unmarshals a stored payload into the named bucket. Unknown
// buckets are ignored so retired buckets in old databases do not fail loads.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	target, ok := s.targets()[bucket]
	if !ok || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
