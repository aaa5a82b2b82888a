package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
)

// AWSConfig configures an AWSStore. Empty fields fall back to the SDK's environment
// and shared-config resolution.
type AWSConfig struct {
	Region       string
	Endpoint     string
	VersionStage string
}

// AWSStore reads secrets from AWS Secrets Manager.
type AWSStore struct {
	client       secretsmanageriface.SecretsManagerAPI
	versionStage string
}

// NewAWSStore creates a Secrets Manager client from cfg.
func NewAWSStore(cfg AWSConfig) (*AWSStore, error) {
	config := aws.NewConfig()
	if cfg.Region != "" {
		config = config.WithRegion(cfg.Region)
	}
	if cfg.Endpoint != "" {
		config = config.WithEndpoint(cfg.Endpoint)
	}
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *config,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, err
	}
	return NewAWSStoreWithClient(secretsmanager.New(sess), cfg.VersionStage), nil
}

// NewAWSStoreWithClient wraps an existing Secrets Manager client.
func NewAWSStoreWithClient(client secretsmanageriface.SecretsManagerAPI, versionStage string) *AWSStore {
	return &AWSStore{client: client, versionStage: versionStage}
}

// GetSecret returns the SecretString of id, or its SecretBinary when no string is set.
func (s *AWSStore) GetSecret(ctx context.Context, id string) (string, error) {
	input := &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)}
	if s.versionStage != "" {
		input.VersionStage = aws.String(s.versionStage)
	}

	out, err := s.client.GetSecretValueWithContext(ctx, input)
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == secretsmanager.ErrCodeResourceNotFoundException {
			return "", fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return "", fmt.Errorf("get secret %s: %w", id, err)
	}

	if out.SecretString != nil {
		return aws.StringValue(out.SecretString), nil
	}
	if len(out.SecretBinary) > 0 {
		return string(out.SecretBinary), nil
	}
	return "", fmt.Errorf("%s: %w", id, ErrNotFound)
}
