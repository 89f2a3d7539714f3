package reader

import (
	"context"
	"fmt"

	lodelibrary "github.com/justapithecus/lode/lode"

	"github.com/justapithecus/es2json/lode"
)

// Source locates an archive to read from.
type Source struct {
	// Dataset is the Lode dataset ID (default "es2json").
	Dataset string
	// Backend is fs or s3.
	Backend string
	// Path is a directory (fs) or bucket/prefix (s3).
	Path string
	// Region, Endpoint and PathStyle configure the s3 backend.
	Region    string
	Endpoint  string
	PathStyle bool
}

// OpenDataset opens the archive described by src for reading.
func OpenDataset(ctx context.Context, src Source) (lodelibrary.Dataset, error) {
	dataset := src.Dataset
	if dataset == "" {
		dataset = lode.DefaultDataset
	}
	switch src.Backend {
	case "fs":
		return lode.NewReadDatasetFS(dataset, src.Path)
	case "s3":
		bucket, prefix := lode.ParseS3Path(src.Path)
		return lode.NewReadDatasetS3(ctx, dataset, lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       src.Region,
			Endpoint:     src.Endpoint,
			UsePathStyle: src.PathStyle,
		})
	default:
		return nil, fmt.Errorf("unsupported archive backend: %q (must be fs or s3)", src.Backend)
	}
}

// LatestReport returns the most recent archived run report, optionally
// restricted to a run id and an index.
func LatestReport(ctx context.Context, ds lodelibrary.Dataset, runID, index string) (*ReportSummary, error) {
	record, err := lode.QueryLatestReport(ctx, ds, runID, index)
	if err != nil {
		return nil, err
	}
	summary, err := ParseReportRecord(record)
	if err != nil {
		return nil, fmt.Errorf("failed to parse report record: %w", err)
	}
	return summary, nil
}
