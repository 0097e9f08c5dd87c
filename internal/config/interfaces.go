package config

import "context"

// SecretProvider resolves secret paths to plaintext values. Missing keys are
// omitted from the result rather than reported as errors.
type SecretProvider interface {
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
