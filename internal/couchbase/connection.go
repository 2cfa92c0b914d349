package couchbase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog/log"
)

// Config holds the Couchbase connection settings
type Config struct {
	URL      string
	Username string
	Password string
	Bucket   string
}

// ConnectionManager handles Couchbase cluster and bucket connections
type ConnectionManager struct {
	cluster *gocb.Cluster
	bucket  *gocb.Bucket
}

// connectionString turns an http:// or bare host into a couchbase:// URL.
// couchbase:// and couchbases:// URLs are returned unchanged.
func connectionString(url string) string {
	switch {
	case strings.HasPrefix(url, "couchbase://"), strings.HasPrefix(url, "couchbases://"):
		return url
	case strings.HasPrefix(url, "http://"):
		return "couchbase://" + strings.TrimPrefix(url, "http://")
	case strings.HasPrefix(url, "https://"):
		return "couchbases://" + strings.TrimPrefix(url, "https://")
	default:
		return "couchbase://" + url
	}
}

// NewConnectionManager connects to the cluster and opens cfg.Bucket, which
// must already exist
func NewConnectionManager(ctx context.Context, cfg Config) (*ConnectionManager, error) {
	cluster, err := gocb.Connect(connectionString(cfg.URL), gocb.ClusterOptions{
		Authenticator: gocb.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cluster: %w", err)
	}

	err = cluster.WaitUntilReady(30*time.Second, &gocb.WaitUntilReadyOptions{Context: ctx})
	if err != nil {
		_ = cluster.Close(nil)
		return nil, fmt.Errorf("failed to wait for cluster: %w", err)
	}

	bucket := cluster.Bucket(cfg.Bucket)
	err = bucket.WaitUntilReady(10*time.Second, &gocb.WaitUntilReadyOptions{Context: ctx})
	if err != nil {
		_ = cluster.Close(nil)
		return nil, fmt.Errorf("bucket '%s' is not accessible: %w", cfg.Bucket, err)
	}

	log.Info().Str("bucket", cfg.Bucket).Msg("Connected to Couchbase")

	return &ConnectionManager{
		cluster: cluster,
		bucket:  bucket,
	}, nil
}

// Close closes the Couchbase connection
func (cm *ConnectionManager) Close() error {
	return cm.cluster.Close(nil)
}

// GetBucket returns the bucket instance
func (cm *ConnectionManager) GetBucket() *gocb.Bucket {
	return cm.bucket
}
