package s3

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cockroachdb/errors"
)

type options struct {
	prefix   string
	region   string
	endpoint string
}

// Option configures New and NewDDB.
type Option func(*options)

// WithPrefix sets the key prefix blobs are stored under.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithRegion overrides the region from the shared configuration.
func WithRegion(region string) Option {
	return func(o *options) { o.region = region }
}

// WithEndpoint points the clients at an S3 or DynamoDB compatible endpoint,
// such as LocalStack. S3 requests use path-style addressing.
func WithEndpoint(url string) Option {
	return func(o *options) { o.endpoint = url }
}

func load(ctx context.Context, opts []Option) (aws.Config, options, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	var loadOpts []func(*config.LoadOptions) error
	if o.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(o.region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, o, errors.Wrap(err, "load aws config")
	}
	return cfg, o, nil
}

// New builds a Store from the default AWS credential chain.
func New(ctx context.Context, bucket string, opts ...Option) (*Store, error) {
	cfg, o, err := load(ctx, opts)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg, func(so *s3.Options) {
		if o.endpoint != "" {
			so.BaseEndpoint = aws.String(o.endpoint)
			so.UsePathStyle = true
		}
	})
	return NewStore(client, bucket, o.prefix), nil
}

// NewDDB builds a DDBManifest from the default AWS credential chain.
func NewDDB(ctx context.Context, table, gridURI string, opts ...Option) (*DDBManifest, error) {
	cfg, o, err := load(ctx, opts)
	if err != nil {
		return nil, err
	}
	client := dynamodb.NewFromConfig(cfg, func(do *dynamodb.Options) {
		if o.endpoint != "" {
			do.BaseEndpoint = aws.String(o.endpoint)
		}
	})
	return NewDDBManifest(client, table, gridURI), nil
}
