package storage

import (
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
)

func TestReportKey(t *testing.T) {
	s := &Store{bucketName: "lease-reports"}
	assert.Equal(t, "user_1/r1.json", s.ReportKey("user_1", "r1"))

	s.WithPrefix("reports/prod")
	assert.Equal(t, "reports/prod/user_1/r1.json", s.ReportKey("user_1", "r1"))
}

func TestNewestReportIDs(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	objs := []minio.ObjectInfo{
		{Key: "reports/user_1/old.json", LastModified: base},
		{Key: "reports/user_1/new.json", LastModified: base.Add(2 * time.Hour)},
		{Key: "reports/user_1/notes.txt", LastModified: base.Add(3 * time.Hour)},
		{Key: "reports/user_1/mid.json", LastModified: base.Add(time.Hour)},
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{name: "all", limit: 10, want: []string{"new", "mid", "old"}},
		{name: "limited", limit: 2, want: []string{"new", "mid"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, newestReportIDs(objs, tt.limit))
		})
	}
	assert.Empty(t, newestReportIDs(nil, 5))
}
