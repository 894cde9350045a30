package adapter

import (
	"context"
	"errors"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/goerr/v2"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/utils/logging"
	"google.golang.org/api/googleapi"
)

// syncRunSchema is the table layout for sync run summaries.
var syncRunSchema = bigquery.Schema{
	{Name: "run_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "root", Type: bigquery.StringFieldType},
	{Name: "processed", Type: bigquery.IntegerFieldType},
	{Name: "skipped", Type: bigquery.IntegerFieldType},
	{Name: "errors", Type: bigquery.IntegerFieldType},
	{Name: "total", Type: bigquery.IntegerFieldType},
	{Name: "duration_ms", Type: bigquery.IntegerFieldType},
	{Name: "skip_ratio", Type: bigquery.FloatFieldType},
	{Name: "start_time", Type: bigquery.TimestampFieldType},
	{Name: "end_time", Type: bigquery.TimestampFieldType},
}

// BigQueryReporter streams one row per finished sync run into a table.
type BigQueryReporter struct {
	client    *bigquery.Client
	datasetID string
	tableID   string
}

// NewBigQueryReporter creates a reporter writing to project.dataset.table
func NewBigQueryReporter(ctx context.Context, projectID, datasetID, tableID string) (*BigQueryReporter, error) {
	if projectID == "" || datasetID == "" || tableID == "" {
		return nil, goerr.New("bigquery project, dataset and table are required",
			goerr.V("project", projectID),
			goerr.V("dataset", datasetID),
			goerr.V("table", tableID),
			goerr.T(model.ErrTagConfig))
	}

	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create BigQuery client", goerr.T(model.ErrTagConfig))
	}

	return &BigQueryReporter{
		client:    client,
		datasetID: datasetID,
		tableID:   tableID,
	}, nil
}

func (r *BigQueryReporter) table() *bigquery.Table {
	return r.client.Dataset(r.datasetID).Table(r.tableID)
}

// EnsureTable creates the destination table when it does not exist yet.
func (r *BigQueryReporter) EnsureTable(ctx context.Context) error {
	_, err := r.table().Metadata(ctx)
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
		return goerr.Wrap(err, "failed to get table metadata",
			goerr.V("dataset", r.datasetID),
			goerr.V("table", r.tableID),
			goerr.T(model.ErrTagUpstream))
	}

	meta := &bigquery.TableMetadata{
		Schema: syncRunSchema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "start_time",
		},
	}
	if err := r.table().Create(ctx, meta); err != nil {
		return goerr.Wrap(err, "failed to create table",
			goerr.V("dataset", r.datasetID),
			goerr.V("table", r.tableID),
			goerr.T(model.ErrTagUpstream))
	}

	logging.From(ctx).Info("created sync run table", "dataset", r.datasetID, "table", r.tableID)
	return nil
}

// Report inserts summary. The run ID doubles as the insert ID so retries do not duplicate rows.
func (r *BigQueryReporter) Report(ctx context.Context, summary *model.SyncSummary) error {
	if summary == nil {
		return nil
	}

	if err := r.table().Inserter().Put(ctx, &summaryRow{summary}); err != nil {
		return goerr.Wrap(err, "failed to insert sync run",
			goerr.V("service", "bigquery"),
			goerr.V("run_id", summary.RunID),
			goerr.T(model.ErrTagUpstream))
	}
	return nil
}

func (r *BigQueryReporter) Close() error {
	return r.client.Close()
}

type summaryRow struct {
	*model.SyncSummary
}

// Save implements bigquery.ValueSaver
func (s *summaryRow) Save() (map[string]bigquery.Value, string, error) {
	return map[string]bigquery.Value{
		"run_id":      string(s.RunID),
		"root":        s.Root,
		"processed":   s.Processed,
		"skipped":     s.Skipped,
		"errors":      s.Errors,
		"total":       s.Total,
		"duration_ms": s.DurationMs,
		"skip_ratio":  s.SkipRatio,
		"start_time":  s.StartTime,
		"end_time":    s.EndTime,
	}, string(s.RunID), nil
}
