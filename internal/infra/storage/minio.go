package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bryanwahyu/leasecheck/internal/domain/lease"
)

type Store struct {
	client     *minio.Client
	bucketName string
	region     string
	prefix     string
}

// New connects to MinIO and makes sure the bucket exists.
func New(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool) (*Store, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	// pastikan bucket ada
	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, err
		}
	}

	return &Store{client: cli, bucketName: bucket, region: region}, nil
}

// WithPrefix stores every object under p.
func (s *Store) WithPrefix(p string) *Store {
	s.prefix = p
	return s
}

// ReportKey is <identity>/<report-id>.json under the optional prefix.
func (s *Store) ReportKey(identity, reportID string) string {
	return path.Join(s.prefix, identity, reportID+".json")
}

// Put writes the report as JSON and returns its object URL.
func (s *Store) Put(ctx context.Context, identity string, r *lease.Report) (string, error) {
	body, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	key := s.ReportKey(identity, r.ID)
	_, err = s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"user-id":    identity,
			"risk-score": fmt.Sprint(r.RiskScore),
		},
	})
	if err != nil {
		return "", err
	}

	// public URL; private buckets need PresignedURL
	return fmt.Sprintf("%s/%s/%s", s.client.EndpointURL().String(), s.bucketName, key), nil
}

// Get reads one archived report back, nil when the object does not exist.
func (s *Store) Get(ctx context.Context, identity, reportID string) (*lease.Report, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, s.ReportKey(identity, reportID), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	var r lease.Report
	if err := json.NewDecoder(obj).Decode(&r); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, fmt.Errorf("decode report %s: %w", reportID, err)
	}
	return &r, nil
}

// ListByIdentity returns the newest reports first, ordered by upload time.
func (s *Store) ListByIdentity(ctx context.Context, identity string, limit int) ([]lease.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	var objs []minio.ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:    path.Join(s.prefix, identity) + "/",
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		objs = append(objs, obj)
	}

	var out []lease.Report
	for _, id := range newestReportIDs(objs, limit) {
		r, err := s.Get(ctx, identity, id)
		if err != nil {
			return nil, err
		}
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func newestReportIDs(objs []minio.ObjectInfo, limit int) []string {
	sorted := make([]minio.ObjectInfo, 0, len(objs))
	for _, o := range objs {
		if strings.HasSuffix(o.Key, ".json") {
			sorted = append(sorted, o)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LastModified.After(sorted[j].LastModified)
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	ids := make([]string, 0, len(sorted))
	for _, o := range sorted {
		ids = append(ids, strings.TrimSuffix(path.Base(o.Key), ".json"))
	}
	return ids
}

// PresignedURL grants temporary read access to one report.
func (s *Store) PresignedURL(ctx context.Context, identity, reportID string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucketName, s.ReportKey(identity, reportID), ttl, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Ping checks the bucket is still reachable.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucketName)
	return err
}
