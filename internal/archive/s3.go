// Package archive stores GeoJSON snapshots of predictions in S3 for search
// coordinators and later review.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"pawtrail/internal/geo"
	"pawtrail/internal/payload"
	"pawtrail/internal/types"
)

// S3PutClient abstracts the S3 PutObject operation.
type S3PutClient interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes one zstd-compressed GeoJSON object per prediction run.
type S3Archiver struct {
	client S3PutClient
	bucket string
	prefix string
}

// NewS3Archiver creates an archiver writing to bucket. An empty prefix puts
// objects at the bucket root.
func NewS3Archiver(client S3PutClient, bucket, prefix string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix}
}

// Key is <prefix>/<yyyy>/<mm>/<dd>/<id>/<unix-nanos>.geojson.zst, so each
// refresh keeps its own snapshot.
func (a *S3Archiver) Key(res *types.PredictionResult) string {
	ts := res.LastUpdated.UTC()
	return path.Join(a.prefix, ts.Format("2006/01/02"), res.ID,
		fmt.Sprintf("%d.geojson.zst", ts.UnixNano()))
}

// Archive uploads the result and returns the object key.
func (a *S3Archiver) Archive(ctx context.Context, res *types.PredictionResult) (string, error) {
	fc, err := geo.FeatureCollection(res, true)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalArchive, "failed to build GeoJSON", err)
	}
	raw, err := json.Marshal(fc)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalArchive, "failed to marshal GeoJSON", err)
	}
	body := payload.Compress(raw)

	key := a.Key(res)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(a.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentLength:   aws.Int64(int64(len(body))),
		ContentType:     aws.String("application/geo+json"),
		ContentEncoding: aws.String("zstd"),
		Metadata: map[string]string{
			"prediction-id":       res.ID,
			"pet-id":              res.PetProfile.ID,
			"calibration-version": res.CalibrationVersion,
		},
	})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalArchive,
			fmt.Sprintf("failed to upload s3://%s/%s", a.bucket, key), err)
	}
	return key, nil
}
