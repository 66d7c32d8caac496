package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"shopfloor/common"
	"shopfloor/domain"
	"shopfloor/persistence"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/fundwit/go-commons/types"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
)

const TypeBatchSummary = "batch_summary"

var (
	ReportBucket *oss.Bucket

	GenerateFunc  = Generate
	PutObjectFunc = PutObject

	nowFunc = time.Now

	ErrStorageNotConfigured = errors.New("report storage is not configured")
)

// BatchSummary is the document uploaded for a batch_summary report.
type BatchSummary struct {
	ReportType  string                         `json:"reportType"`
	GeneratedAt time.Time                      `json:"generatedAt"`
	Batch       domain.Batch                   `json:"batch"`
	TaskCounts  map[string]map[string]int      `json:"taskCounts"`
	Transitions []domain.StageTransitionRecord `json:"transitions"`
}

func Bootstrap(c *common.AppConfig) error {
	if c.OSSEndpoint == "" {
		return nil
	}
	bucket, err := BuildBucket(c.OSSEndpoint, c.OSSAccessKey, c.OSSSecretKey, c.OSSBucket)
	if err != nil {
		return err
	}
	ReportBucket = bucket
	return nil
}

func BuildBucket(endpoint, accesskey, secretKey, bucketName string) (*oss.Bucket, error) {
	cli, err := oss.New(endpoint, accesskey, secretKey, oss.HTTPClient(nil))
	if err != nil {
		return nil, err
	}
	return cli.Bucket(bucketName)
}

// Generate builds a report of the batch and uploads it, it returns the object key.
func Generate(ctx context.Context, batchID types.ID, reportType string) (string, error) {
	if reportType == "" {
		reportType = TypeBatchSummary
	}
	if reportType != TypeBatchSummary {
		return "", fmt.Errorf("unsupported report type '%s'", reportType)
	}
	summary, err := BuildBatchSummary(ctx, batchID)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(summary)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("reports/%s/%s-%s.json", batchID, reportType, summary.GeneratedAt.Format("20060102T150405"))
	if err := PutObjectFunc(ctx, key, bytes.NewReader(body), oss.ContentType("application/json")); err != nil {
		return "", err
	}
	return key, nil
}

func BuildBatchSummary(ctx context.Context, batchID types.ID) (*BatchSummary, error) {
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	summary := BatchSummary{ReportType: TypeBatchSummary, GeneratedAt: nowFunc(), TaskCounts: map[string]map[string]int{}}
	if err := db.Where("id = ?", batchID).First(&summary.Batch).Error; err != nil {
		return nil, err
	}
	var tasks []domain.Task
	if err := db.Where("batch_id = ?", batchID).Find(&tasks).Error; err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if summary.TaskCounts[t.Stage] == nil {
			summary.TaskCounts[t.Stage] = map[string]int{}
		}
		summary.TaskCounts[t.Stage][string(t.Status)]++
	}
	summary.Transitions = []domain.StageTransitionRecord{}
	if err := db.Where("batch_id = ?", batchID).Order("transition_time ASC, id ASC").Find(&summary.Transitions).Error; err != nil {
		return nil, err
	}
	return &summary, nil
}

func PutObject(ctx context.Context, key string, r io.Reader, opts ...oss.Option) error {
	if ReportBucket == nil {
		return ErrStorageNotConfigured
	}
	var childSpan opentracing.Span
	if parentSpan := opentracing.SpanFromContext(ctx); parentSpan != nil {
		childSpan = parentSpan.Tracer().StartSpan("put-object", opentracing.ChildOf(parentSpan.Context()))
		childSpan.SetTag("object-key", key)
		defer childSpan.Finish()
	}

	err := ReportBucket.PutObject(key, r, opts...)
	if childSpan != nil {
		ext.Error.Set(childSpan, err != nil)
	}
	return err
}
