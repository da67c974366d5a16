package middleware

import (
	"mime"
	"net/http"
	"strings"

	apperrors "checkpost/pkg/errors"
	httputil "checkpost/pkg/http"
	"checkpost/pkg/logger"
)

const (
	ContentTypeJSON      = "application/json"
	ContentTypeCSV       = "text/csv"
	ContentTypeMultipart = "multipart/form-data"
)

// ContentTypeValidation rejects writes whose media type is not one of
// allowed. With no allowed types, only JSON is accepted.
func ContentTypeValidation(log *logger.Logger, allowed ...string) func(http.Handler) http.Handler {
	if len(allowed) == 0 {
		allowed = []string{ContentTypeJSON}
	}
	accepted := make(map[string]struct{}, len(allowed))
	for _, ct := range allowed {
		accepted[ct] = struct{}{}
	}
	message := "Content-Type must be one of: " + strings.Join(allowed, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requiresContentType(r.Method) {
				contentType := extractContentType(r.Header.Get("Content-Type"))

				if _, ok := accepted[contentType]; !ok {
					log.Warn("Invalid Content-Type header",
						"request_id", RequestID(r),
						"content_type", contentType,
						"path", r.URL.Path,
						"method", r.Method,
					)
					_ = httputil.WriteError(w, apperrors.UnsupportedMedia(message))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func requiresContentType(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

func extractContentType(header string) string {
	if header == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(header, ";")[0]))
	}
	return mediaType
}
