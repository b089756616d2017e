package config

import (
	"context"
	"fmt"
	"strings"
)

// SecretRefPrefix marks a config value that must be fetched from Secret Manager.
// "sm://stripe-key" resolves the latest version of that secret in GCP_PROJECT_ID;
// "sm://projects/p/secrets/s/versions/3" is used as a full resource name.
const SecretRefPrefix = "sm://"

type SecretAccessor interface {
	AccessSecret(ctx context.Context, name string) (string, error)
}

type secretField struct {
	env   string
	value *string
}

func (c *Config) secretFields() []secretField {
	return []secretField{
		{"DB_CONNECTION_STRING", &c.DBConnectionString},
		{"ELEVENLABS_API_KEY", &c.ElevenLabsAPIKey},
		{"OPENAI_API_KEY", &c.OpenAIAPIKey},
		{"STRIPE_SECRET_KEY", &c.StripeSecretKey},
		{"STRIPE_WEBHOOK_SECRET", &c.StripeWebhookSecret},
		{"GITHUB_CLIENT_SECRET", &c.GitHubClientSecret},
		{"GOOGLE_CLIENT_SECRET", &c.GoogleClientSecret},
		{"SLACK_WEBHOOK_URL", &c.SlackWebhookURL},
	}
}

// HasSecretRefs reports whether any secret-bearing field points at Secret Manager.
func (c *Config) HasSecretRefs() bool {
	for _, f := range c.secretFields() {
		if strings.HasPrefix(*f.value, SecretRefPrefix) {
			return true
		}
	}
	return false
}

// ResolveSecrets replaces every sm:// reference with the secret payload.
func (c *Config) ResolveSecrets(ctx context.Context, accessor SecretAccessor) error {
	for _, f := range c.secretFields() {
		ref, ok := strings.CutPrefix(*f.value, SecretRefPrefix)
		if !ok {
			continue
		}
		name, err := c.secretResourceName(ref)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", f.env, err)
		}
		value, err := accessor.AccessSecret(ctx, name)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", f.env, err)
		}
		*f.value = strings.TrimSpace(value)
	}
	return nil
}

func (c *Config) secretResourceName(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty secret reference")
	}
	if strings.HasPrefix(ref, "projects/") {
		return ref, nil
	}
	if c.GCPProjectID == "" {
		return "", fmt.Errorf("GCP_PROJECT_ID is required for secret %q", ref)
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", c.GCPProjectID, ref), nil
}
