package secrets

import (
	"context"
	"fmt"
	"os"
)

// EnvProvider resolves secrets from process environment variables. It is the
// dev/test stand-in for the AWS provider: GetSecret("FOO") returns
// {"api_key": $FOO}.
type EnvProvider struct{}

// NewEnvProvider creates an environment-backed provider.
func NewEnvProvider() Provider {
	return &EnvProvider{}
}

func (p *EnvProvider) GetSecret(_ context.Context, key string) (map[string]string, error) {
	val := os.Getenv(key)
	if val == "" {
		return nil, fmt.Errorf("secret env var [%s] not set", key)
	}
	return map[string]string{"api_key": val}, nil
}
