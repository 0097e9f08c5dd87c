package config

import (
	"context"
	"os"
)

// EnvVarProvider resolves keys as environment variable names. It stands in
// for SSM in local development.
type EnvVarProvider struct{}

// NewEnvVarProvider returns a provider that resolves parameter names as
// environment variables.
func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

// GetParametersBatch returns the keys that are set; missing keys are left out
// of the map rather than reported as errors.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			out[k] = v
		}
	}
	return out, nil
}
