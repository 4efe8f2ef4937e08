// Package avatar resolves avatar object references into URLs the UI shell
// can fetch directly from object storage.
package avatar

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"fieldnote/agent/internal/config"
)

type Resolver struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
	log    zerolog.Logger
}

func NewResolver(cfg config.AvatarConfig, log zerolog.Logger) (*Resolver, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	return &Resolver{
		client: client,
		bucket: cfg.Bucket,
		ttl:    cfg.URLTTL,
		log:    log.With().Str("component", "avatar").Logger(),
	}, nil
}

// ResolveURL presigns a GET for the referenced object. An empty reference
// or a presign failure resolves to "", never an error surfaced upward.
func (r *Resolver) ResolveURL(ctx context.Context, ref string) string {
	if ref == "" {
		return ""
	}

	presigned, err := r.client.PresignedGetObject(ctx, r.bucket, ref, r.ttl, nil)
	if err != nil {
		r.log.Debug().Err(err).Str("ref", ref).Msg("presign avatar failed")
		return ""
	}
	return presigned.String()
}
