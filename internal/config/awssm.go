package config

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// resolveAWSSecretsManager resolves an AWS Secrets Manager reference.
// Format: secret-name, or secret-name#field for a JSON secret.
func resolveAWSSecretsManager(ref string) (string, error) {
	return cached("AWS_SM", ref, readAWSSecret)
}

func readAWSSecret(ctx context.Context, ref string) (string, error) {
	name, field, _ := strings.Cut(ref, "#")
	if name == "" {
		return "", fmt.Errorf("invalid AWS Secrets Manager reference %q", ref)
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("loading AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(cfg)
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("getting secret %q: %w", name, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %q has no string value (binary secrets not supported)", name)
	}
	if field == "" {
		return *out.SecretString, nil
	}
	return jsonField(*out.SecretString, name, field)
}

// jsonField extracts one string field from a JSON secret payload.
func jsonField(payload, name, field string) (string, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return "", fmt.Errorf("secret %q is not a JSON object: %w", name, err)
	}
	v, ok := m[field]
	if !ok {
		return "", fmt.Errorf("field %q not found in secret %q", field, name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q in secret %q is not a string", field, name)
	}
	return s, nil
}
