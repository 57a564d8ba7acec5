package storage

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"

	"github.com/customeros/mailclean/config"
	"github.com/customeros/mailclean/interfaces"
	"github.com/customeros/mailclean/services/storage/aws_client"
)

// NewStorageServiceFromConfig returns nil when no bucket is configured.
// A Cloudflare account id switches the client to the R2 endpoint.
func NewStorageServiceFromConfig(cfg *config.StorageConfig) (interfaces.StorageService, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	awsCfg := &aws.Config{
		Region:      aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.AccessKeySecret, ""),
	}
	if cfg.AccountID != "" {
		awsCfg.Endpoint = aws.String("https://" + cfg.AccountID + ".r2.cloudflarestorage.com")
		awsCfg.Region = aws.String("auto")
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	client, err := aws_client.NewS3Client(awsCfg)
	if err != nil {
		return nil, err
	}
	return NewStorageService(client, cfg.Bucket), nil
}
