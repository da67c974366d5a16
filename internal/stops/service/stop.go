package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	stopserrors "checkpost/internal/stops/errors"
	"checkpost/internal/stops/normalizer"
	"checkpost/internal/stops/repository"
	"checkpost/internal/stops/validator"
	"checkpost/pkg/config"
	apperrors "checkpost/pkg/errors"
	"checkpost/pkg/metrics"
	"checkpost/pkg/model"
	"checkpost/pkg/sanitizer"
	"checkpost/pkg/table"

	"github.com/google/uuid"
)

const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

type StopService interface {
	IngestCSV(ctx context.Context, r io.Reader, source string) (*model.IngestResult, error)
	IngestRecords(ctx context.Context, r io.Reader, source string) (*model.IngestResult, error)
	Preview(ctx context.Context, r io.Reader, format string, limit int) (*model.Preview, error)
	Search(ctx context.Context, filter model.StopFilter) (*model.StopPage, error)
	GetByID(ctx context.Context, id string) (*model.Stop, error)
	Summary(ctx context.Context, filter model.StopFilter) (*model.Summary, error)
	Alerts(ctx context.Context, filter model.StopFilter) (*model.Alerts, error)
	Reports() []model.ReportDef
	Report(ctx context.Context, name string, limit int) (*model.ReportResult, error)
}

type stopService struct {
	repo      repository.StopRepository
	validator *validator.StopValidator
	publisher EventPublisher
	cfg       *config.Config
	now       func() time.Time
}

func NewStopService(
	repo repository.StopRepository,
	validator *validator.StopValidator,
	publisher EventPublisher,
	cfg *config.Config,
) StopService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &stopService{
		repo:      repo,
		validator: validator,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *stopService) IngestCSV(ctx context.Context, r io.Reader, source string) (*model.IngestResult, error) {
	return s.ingest(ctx, FormatCSV, r, source)
}

func (s *stopService) IngestRecords(ctx context.Context, r io.Reader, source string) (*model.IngestResult, error) {
	return s.ingest(ctx, FormatJSON, r, source)
}

// decode reads an upload in the given format, enforcing the row limit.
func (s *stopService) decode(format string, r io.Reader) (*table.Batch, error) {
	var (
		batch *table.Batch
		err   error
	)
	switch format {
	case FormatCSV:
		// one extra row tells an over-limit upload apart from one exactly at it
		batch, err = table.ReadCSV(r, table.CSVOptions{MaxRows: s.cfg.MaxIngestRows + 1})
	case FormatJSON:
		batch, err = table.DecodeRecords(r)
	default:
		return nil, apperrors.UnsupportedMedia("Unsupported upload format: " + format)
	}
	if err != nil {
		return nil, decodeError(err)
	}

	if batch.Len() == 0 {
		return nil, apperrors.InvalidInput(stopserrors.ErrEmptyUpload.Error())
	}
	if batch.Len() > s.cfg.MaxIngestRows {
		return nil, apperrors.TooLarge(stopserrors.ErrTooManyRows.Error()).WithDetails(map[string]any{
			"max_rows": s.cfg.MaxIngestRows,
		})
	}
	return batch, nil
}

func decodeError(err error) error {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return apperrors.TooLarge("Upload exceeds the maximum request size").WithDetails(map[string]any{
			"max_bytes": maxBytes.Limit,
		})
	}
	return apperrors.InvalidInput("Upload could not be parsed").WithDetails(map[string]any{
		"error": err.Error(),
	})
}

func normalizeError(err error) error {
	var invalid *normalizer.InvalidInputError
	if errors.As(err, &invalid) {
		details := map[string]any{"reason": invalid.Reason}
		if len(invalid.Columns) > 0 {
			details["columns"] = invalid.Columns
		}
		return apperrors.InvalidInput("Upload is not a valid table").WithDetails(details)
	}
	return apperrors.Internal("Failed to normalize upload", err)
}

func (s *stopService) normalize(format string, r io.Reader) (*normalizer.Result, error) {
	start := time.Now()

	batch, err := s.decode(format, r)
	if err != nil {
		return nil, err
	}

	res, err := normalizer.Run(batch)
	if err != nil {
		s.cfg.Log.Warn("Upload rejected by normalizer",
			"format", format,
			"rows", batch.Len(),
			"error", err,
		)
		return nil, normalizeError(err)
	}

	metrics.ObserveNormalize(format, batch.Len(), time.Since(start))
	return res, nil
}

func (s *stopService) ingest(ctx context.Context, format string, r io.Reader, source string) (*model.IngestResult, error) {
	res, err := s.normalize(format, r)
	if err != nil {
		metrics.ObserveIngestError(format)
		return nil, err
	}

	meta := model.BatchMeta{
		BatchID:    uuid.NewString(),
		Source:     sanitizer.SanitizeSource(source),
		IngestedAt: s.now().UTC().Truncate(time.Millisecond),
	}

	outcome, err := s.repo.InsertBatch(ctx, res.Batch, meta)
	if err != nil {
		s.cfg.Log.Error("Failed to store stops",
			"batch_id", meta.BatchID,
			"rows", res.Batch.Len(),
			"error", err,
		)
		// Rows from chunks stored before the error stay stored. They are
		// reported under the batch id so a retry does not duplicate them blindly.
		if outcome == nil || outcome.Inserted() == 0 {
			metrics.ObserveIngestError(format)
			return nil, apperrors.Internal("Failed to store stops", err)
		}
		s.cfg.Log.Warn("Stops batch partially stored",
			"batch_id", meta.BatchID,
			"inserted", outcome.Inserted(),
			"failed", len(outcome.Failed),
		)
	}

	review := reviewRows(res.Batch)
	result := &model.IngestResult{
		BatchID:        meta.BatchID,
		Source:         meta.Source,
		Rows:           res.Batch.Len(),
		Inserted:       outcome.Inserted(),
		Failed:         len(outcome.Failed),
		NeedsReview:    len(review),
		Columns:        res.Batch.Columns,
		DroppedColumns: res.Dropped,
		RenamedColumns: res.Renamed,
		FailedRows:     outcome.Failed,
		IngestedAt:     meta.IngestedAt,
	}

	for _, f := range outcome.Failed {
		s.cfg.Log.Warn("Stop row was not stored",
			"batch_id", meta.BatchID,
			"row", f.Index,
			"reason", f.Reason,
		)
	}

	s.publish(ctx, result, res.Batch, outcome, review)
	metrics.ObserveIngest(format, result.Inserted, result.Failed, result.NeedsReview)

	s.cfg.Log.Info("Stops ingested",
		"batch_id", result.BatchID,
		"source", result.Source,
		"format", format,
		"rows", result.Rows,
		"inserted", result.Inserted,
		"failed", result.Failed,
		"needs_review", result.NeedsReview,
		"dropped_columns", result.DroppedColumns,
	)
	return result, nil
}

// reviewRows returns the indexes of rows flagged as needing review.
func reviewRows(b *table.Batch) []int {
	var idx []int
	for i, row := range b.Rows {
		if flagged, ok := row[normalizer.ColNeedsReview].Bool(); ok && flagged {
			idx = append(idx, i)
		}
	}
	return idx
}

func rowRecord(columns []string, row table.Row) map[string]any {
	rec := make(map[string]any, len(columns))
	for _, c := range columns {
		rec[c] = row[c]
	}
	return rec
}

// publish announces the batch and its stored review rows. Failures are logged
// and never fail the ingest.
func (s *stopService) publish(ctx context.Context, result *model.IngestResult, batch *table.Batch, outcome *model.InsertOutcome, review []int) {
	evt := &model.BatchIngestedEvent{
		BatchID:     result.BatchID,
		Source:      result.Source,
		Rows:        result.Rows,
		Inserted:    result.Inserted,
		Failed:      result.Failed,
		NeedsReview: result.NeedsReview,
		Columns:     result.Columns,
		IngestedAt:  result.IngestedAt,
	}
	if err := s.publisher.PublishBatchIngested(ctx, evt); err != nil {
		s.cfg.Log.Error("Failed to publish batch ingested event",
			"batch_id", result.BatchID,
			"error", err,
		)
	}

	if len(review) == 0 {
		return
	}
	evts := make([]model.StopReviewEvent, 0, len(review))
	for _, i := range review {
		if outcome.IDs[i] == "" {
			continue
		}
		evts = append(evts, model.StopReviewEvent{
			BatchID:  result.BatchID,
			RowIndex: i,
			StopID:   outcome.IDs[i],
			Record:   rowRecord(batch.Columns, batch.Rows[i]),
		})
	}
	if len(evts) == 0 {
		return
	}
	if err := s.publisher.PublishStopReviews(ctx, evts); err != nil {
		s.cfg.Log.Error("Failed to publish stop review events",
			"batch_id", result.BatchID,
			"count", len(evts),
			"error", err,
		)
	}
}

func (s *stopService) Preview(ctx context.Context, r io.Reader, format string, limit int) (*model.Preview, error) {
	res, err := s.normalize(format, r)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > s.cfg.PreviewRows {
		limit = s.cfg.PreviewRows
	}
	head := res.Batch.Head(limit)
	sample := make([]map[string]any, head.Len())
	for i, row := range head.Rows {
		sample[i] = rowRecord(head.Columns, row)
	}

	return &model.Preview{
		Rows:           res.Batch.Len(),
		NeedsReview:    len(reviewRows(res.Batch)),
		Columns:        res.Batch.Columns,
		DroppedColumns: res.Dropped,
		RenamedColumns: res.Renamed,
		Sample:         sample,
	}, nil
}

func (s *stopService) validateFilter(filter *model.StopFilter) error {
	s.sanitizeFilter(filter)
	if err := s.validator.ValidateFilter(filter); err != nil {
		s.cfg.Log.Warn("Stop filter validation failed", "error", err)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return apperrors.Validation("Invalid stop filter", verrs.Details())
		}
		return apperrors.Validation("Invalid stop filter", map[string]any{"error": err.Error()})
	}
	return nil
}

func (s *stopService) sanitizeFilter(filter *model.StopFilter) {
	filter.Violation = sanitizer.TrimAndNormalize(filter.Violation)
	filter.VehicleNumber = sanitizer.NormalizePlate(filter.VehicleNumber)
	filter.Gender = sanitizer.NormalizeChoice(filter.Gender)
	filter.Searched = sanitizer.NormalizeChoice(filter.Searched)
}

// withDefaultRange bounds a filtered query to DefaultFilterFrom..today when
// either end is missing. The unfiltered recent view has no date bound.
func (s *stopService) withDefaultRange(filter model.StopFilter) model.StopFilter {
	if !filter.IsFiltered() {
		return filter
	}
	if filter.From.IsZero() {
		filter.From = model.DefaultFilterFrom
	}
	if filter.To.IsZero() {
		filter.To = s.now().UTC()
	}
	return filter
}

func (s *stopService) Search(ctx context.Context, filter model.StopFilter) (*model.StopPage, error) {
	if err := s.validateFilter(&filter); err != nil {
		return nil, err
	}

	filtered := filter.IsFiltered()
	query := s.withDefaultRange(filter)
	limit := s.cfg.ListLimit(filter.Limit, filtered)
	offset := config.NormalizeOffset(filter.Offset)

	sharedCtx, cancel := context.WithTimeout(ctx, s.cfg.MongoOpTimeout)
	defer cancel()

	var count int64
	var stops []*model.Stop
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		var err error
		count, err = s.repo.Count(sharedCtx, query)
		if err != nil {
			s.cfg.Log.Error("Failed to count stops", "error", err)
			errCount = apperrors.Internal("Failed to count stops", err)
		}
	}()

	go func() {
		defer wg.Done()
		var err error
		stops, err = s.repo.Search(sharedCtx, query, limit, offset)
		if err != nil {
			s.cfg.Log.Error("Failed to search stops",
				"limit", limit,
				"offset", offset,
				"error", err,
			)
			errFind = apperrors.Internal("Failed to retrieve stops", err)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, errCount
	}
	if errFind != nil {
		return nil, errFind
	}

	return &model.StopPage{
		Stops:    stops,
		Total:    count,
		Limit:    limit,
		Offset:   offset,
		Filtered: filtered,
	}, nil
}

func (s *stopService) GetByID(ctx context.Context, id string) (*model.Stop, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Stop ID cannot be empty")
	}

	stop, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, stopserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Stop", id)
		}
		if errors.Is(err, stopserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid stop ID format")
		}
		s.cfg.Log.Error("Failed to get stop by ID",
			"id", id,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to retrieve stop", err)
	}

	return stop, nil
}

func (s *stopService) Summary(ctx context.Context, filter model.StopFilter) (*model.Summary, error) {
	if err := s.validateFilter(&filter); err != nil {
		return nil, err
	}

	summary, err := s.repo.Summarize(ctx, s.withDefaultRange(filter))
	if err != nil {
		s.cfg.Log.Error("Failed to summarize stops", "error", err)
		return nil, apperrors.Internal("Failed to summarize stops", err)
	}

	completeSummary(summary)
	return summary, nil
}

func (s *stopService) Alerts(ctx context.Context, filter model.StopFilter) (*model.Alerts, error) {
	if err := s.validateFilter(&filter); err != nil {
		return nil, err
	}

	since := s.now().UTC().Add(-s.cfg.RepeatVehicleWindow)
	query := s.withDefaultRange(filter)
	limit := s.cfg.ListLimit(filter.Limit, true)

	alerts := &model.Alerts{
		Since:    since,
		MinStops: s.cfg.RepeatVehicleMinStops,
	}

	var errRepeat, errEvents error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		var err error
		alerts.RepeatedVehicles, err = s.repo.RepeatedVehicles(ctx, since, s.cfg.RepeatVehicleMinStops, s.cfg.RepeatVehicleLimit)
		if err != nil {
			s.cfg.Log.Error("Failed to find repeated vehicles", "error", err)
			errRepeat = apperrors.Internal("Failed to find repeated vehicles", err)
		}
	}()

	go func() {
		defer wg.Done()
		var err error
		alerts.SearchArrestEvents, err = s.repo.SearchArrestEvents(ctx, query, limit)
		if err != nil {
			s.cfg.Log.Error("Failed to find search-arrest events", "error", err)
			errEvents = apperrors.Internal("Failed to find search-arrest events", err)
		}
	}()

	wg.Wait()
	if errRepeat != nil {
		return nil, errRepeat
	}
	if errEvents != nil {
		return nil, errEvents
	}
	return alerts, nil
}

func (s *stopService) Reports() []model.ReportDef {
	return repository.Reports()
}

// reportLimit picks the row cap for a report run: the caller's limit, else
// the report's own, never above the configured cap.
func (s *stopService) reportLimit(def model.ReportDef, requested int) int {
	limit := requested
	if limit <= 0 {
		limit = def.DefaultLimit
	}
	if limit <= 0 || limit > s.cfg.ReportRowLimit {
		limit = s.cfg.ReportRowLimit
	}
	return limit
}

func (s *stopService) Report(ctx context.Context, name string, limit int) (*model.ReportResult, error) {
	if err := s.validator.ValidateReportRequest(name, limit); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, apperrors.Validation("Invalid report request", verrs.Details())
		}
		return nil, apperrors.Validation("Invalid report request", map[string]any{"error": err.Error()})
	}

	def, ok := repository.LookupReport(name)
	if !ok {
		return nil, apperrors.NotFoundWithID("Report", name)
	}

	rows, err := s.repo.RunReport(ctx, name, s.reportLimit(def, limit))
	if err != nil {
		if errors.Is(err, stopserrors.ErrUnknownReport) {
			return nil, apperrors.NotFoundWithID("Report", name)
		}
		s.cfg.Log.Error("Failed to run report",
			"report", name,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to run report", err)
	}

	return &model.ReportResult{Report: def, Rows: rows}, nil
}
