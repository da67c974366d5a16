package handler

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strings"

	"checkpost/internal/stops/service"
	apperrors "checkpost/pkg/errors"
	httputil "checkpost/pkg/http"
	"checkpost/pkg/logger"
	"checkpost/pkg/model"

	"github.com/julienschmidt/httprouter"
)

const (
	contentTypeCSV       = "text/csv"
	contentTypeJSON      = "application/json"
	contentTypeMultipart = "multipart/form-data"

	uploadFormField = "file"
)

type StopHandler struct {
	service service.StopService
	log     *logger.Logger
}

func NewStopHandler(service service.StopService, log *logger.Logger) *StopHandler {
	return &StopHandler{
		service: service,
		log:     log,
	}
}

// upload is a request body ready for ingestion.
type upload struct {
	body   io.Reader
	format string
	source string
}

// readUpload accepts a raw CSV or JSON body, or the "file" part of a
// multipart form. The body is streamed, never buffered whole.
func readUpload(r *http.Request) (*upload, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, apperrors.UnsupportedMedia("Content-Type must be text/csv, application/json or multipart/form-data")
	}

	source := httputil.QueryString(r, "source")
	switch mediaType {
	case contentTypeCSV:
		return &upload{body: r.Body, format: service.FormatCSV, source: source}, nil
	case contentTypeJSON:
		return &upload{body: r.Body, format: service.FormatJSON, source: source}, nil
	case contentTypeMultipart:
		part, err := filePart(r)
		if err != nil {
			return nil, err
		}
		if source == "" {
			source = part.FileName()
		}
		return &upload{body: part, format: formatOf(part), source: source}, nil
	default:
		return nil, apperrors.UnsupportedMedia("Unsupported upload Content-Type: " + mediaType)
	}
}

func filePart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, apperrors.InvalidInput("Malformed multipart body")
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, apperrors.InvalidInput("Multipart body has no \"" + uploadFormField + "\" part")
		}
		if err != nil {
			var maxBytes *http.MaxBytesError
			if errors.As(err, &maxBytes) {
				return nil, apperrors.TooLarge("Upload exceeds the maximum request size")
			}
			return nil, apperrors.InvalidInput("Malformed multipart body")
		}
		if part.FormName() == uploadFormField {
			return part, nil
		}
		_ = part.Close()
	}
}

// formatOf picks the decoder for a multipart file from its declared type,
// then its extension. CSV is the default.
func formatOf(part *multipart.Part) string {
	if mt, _, err := mime.ParseMediaType(part.Header.Get("Content-Type")); err == nil && mt == contentTypeJSON {
		return service.FormatJSON
	}
	if strings.EqualFold(path.Ext(part.FileName()), ".json") {
		return service.FormatJSON
	}
	return service.FormatCSV
}

func (h *StopHandler) Upload(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	up, err := readUpload(r)
	if err != nil {
		h.writeError(w, "Upload", err)
		return
	}

	var result *model.IngestResult
	if up.format == service.FormatJSON {
		result, err = h.service.IngestRecords(r.Context(), up.body, up.source)
	} else {
		result, err = h.service.IngestCSV(r.Context(), up.body, up.source)
	}
	if err != nil {
		h.writeError(w, "Upload", err)
		return
	}

	if err := httputil.WriteCreated(w, result); err != nil {
		h.log.Error("failed to write created response", "handler", "Upload", "operation", "WriteCreated", "error", err)
	}
}

func (h *StopHandler) Preview(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, err := httputil.QueryInt(r, "limit", 0)
	if err != nil {
		h.writeError(w, "Preview", err)
		return
	}

	up, err := readUpload(r)
	if err != nil {
		h.writeError(w, "Preview", err)
		return
	}

	preview, err := h.service.Preview(r.Context(), up.body, up.format, limit)
	if err != nil {
		h.writeError(w, "Preview", err)
		return
	}

	h.writeSuccess(w, "Preview", preview)
}

// CreateBatch ingests a JSON array of stop records.
func (h *StopHandler) CreateBatch(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	result, err := h.service.IngestRecords(r.Context(), r.Body, httputil.QueryString(r, "source"))
	if err != nil {
		h.writeError(w, "CreateBatch", err)
		return
	}

	if err := httputil.WriteCreated(w, result); err != nil {
		h.log.Error("failed to write created response", "handler", "CreateBatch", "operation", "WriteCreated", "error", err)
	}
}

// parseFilter reads the stop filter query parameters shared by the list,
// summary and alerts endpoints.
func parseFilter(r *http.Request) (model.StopFilter, error) {
	var f model.StopFilter
	var err error

	if f.From, err = httputil.QueryDate(r, "from"); err != nil {
		return f, err
	}
	if f.To, err = httputil.QueryDate(r, "to"); err != nil {
		return f, err
	}
	if f.Limit, f.Offset, err = httputil.ExtractLimitOffset(r); err != nil {
		return f, err
	}

	f.Gender = httputil.QueryString(r, "gender")
	f.Violation = httputil.QueryString(r, "violation")
	f.VehicleNumber = httputil.QueryString(r, "vehicle_number")
	f.Searched = httputil.QueryString(r, "searched")
	return f, nil
}

func (h *StopHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	filter, err := parseFilter(r)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	page, err := h.service.Search(r.Context(), filter)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	if err := httputil.WritePaginated(w, page.Stops, page.Total, page.Limit, page.Offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "List", "operation", "WritePaginated", "error", err)
	}
}

func (h *StopHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if id == "" {
		h.writeError(w, "GetByID", apperrors.InvalidInput("ID parameter is required"))
		return
	}

	stop, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	h.writeSuccess(w, "GetByID", stop)
}

func (h *StopHandler) Summary(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	filter, err := parseFilter(r)
	if err != nil {
		h.writeError(w, "Summary", err)
		return
	}

	summary, err := h.service.Summary(r.Context(), filter)
	if err != nil {
		h.writeError(w, "Summary", err)
		return
	}

	h.writeSuccess(w, "Summary", summary)
}

func (h *StopHandler) Alerts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	filter, err := parseFilter(r)
	if err != nil {
		h.writeError(w, "Alerts", err)
		return
	}

	alerts, err := h.service.Alerts(r.Context(), filter)
	if err != nil {
		h.writeError(w, "Alerts", err)
		return
	}

	h.writeSuccess(w, "Alerts", alerts)
}

func (h *StopHandler) ListReports(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h.writeSuccess(w, "ListReports", h.service.Reports())
}

func (h *StopHandler) RunReport(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	limit, err := httputil.QueryInt(r, "limit", 0)
	if err != nil {
		h.writeError(w, "RunReport", err)
		return
	}

	result, err := h.service.Report(r.Context(), ps.ByName("name"), limit)
	if err != nil {
		h.writeError(w, "RunReport", err)
		return
	}

	h.writeSuccess(w, "RunReport", result)
}

func (h *StopHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *StopHandler) writeSuccess(w http.ResponseWriter, handler string, data any) {
	if err := httputil.WriteSuccess(w, data); err != nil {
		h.log.Error("failed to write success response", "handler", handler, "operation", "WriteSuccess", "error", err)
	}
}

func (h *StopHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/stops/upload", h.Upload)
	router.POST("/api/v1/stops/upload/preview", h.Preview)
	router.POST("/api/v1/stops", h.CreateBatch)
	router.GET("/api/v1/stops", h.List)
	router.GET("/api/v1/stops/id/:id", h.GetByID)
	router.GET("/api/v1/stops/summary", h.Summary)
	router.GET("/api/v1/stops/alerts", h.Alerts)
	router.GET("/api/v1/reports", h.ListReports)
	router.GET("/api/v1/reports/:name", h.RunReport)
}
