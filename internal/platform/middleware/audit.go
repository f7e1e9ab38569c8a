package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/AbhaySingh31/ai-discharge-instructions/internal/platform/auth"
	"github.com/AbhaySingh31/ai-discharge-instructions/internal/platform/hipaa"
)

// AuditEntry is one access to patient data. The patient identifier is only
// ever carried hashed.
type AuditEntry struct {
	AuditID       string
	UserID        string
	UserRoles     []string
	Resource      string
	PatientIDHash string
	Action        string // read, create, update, delete
	IPAddress     string
	UserAgent     string
	Path          string
	Method        string
	Timestamp     time.Time
	RequestID     string
	StatusCode    int
}

// Outcome is SUCCESS for 2xx/3xx responses and FAILED otherwise.
func (e AuditEntry) Outcome() string {
	if e.StatusCode >= 400 {
		return "FAILED"
	}
	return "SUCCESS"
}

// AuditRecorder persists audit entries somewhere other than the audit log,
// e.g. a test collector.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit writes an entry to logger for every /api/v1/ request after the handler
// runs. Status and probe endpoints are skipped.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !isAuditablePath(path) {
				return next(c)
			}

			err := next(c)

			entry := AuditEntry{
				AuditID:    uuid.NewString(),
				Timestamp:  time.Now().UTC(),
				Path:       path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: responseStatus(c, err),
				Action:     httpMethodToAction(req.Method),
				Resource:   extractResource(path),
			}

			ctx := req.Context()
			entry.UserID = auth.UserIDFromContext(ctx)
			entry.UserRoles = auth.RolesFromContext(ctx)
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}
			if pid := extractPatientID(path); pid != "" {
				entry.PatientIDHash = hipaa.HashPatientID(pid)
			}

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			evt := logger.Info()
			if entry.StatusCode >= 400 {
				evt = logger.Warn()
			}
			evt.
				Str("audit_id", entry.AuditID).
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("resource", entry.Resource).
				Str("patient_id_hash", entry.PatientIDHash).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("ip_address", entry.IPAddress).
				Str("user_agent", entry.UserAgent).
				Int("status_code", entry.StatusCode).
				Str("status", entry.Outcome()).
				Msg("patient_data_access")

			return err
		}
	}
}

// responseStatus is the status the client will see. Errors have not been
// rendered yet when Audit runs, so it reads them directly.
func responseStatus(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

var unauditedPaths = map[string]bool{
	"/api/v1/health":     true,
	"/api/v1/app-status": true,
	"/api/v1/db-health":  true,
}

func isAuditablePath(path string) bool {
	return strings.HasPrefix(path, "/api/v1/") && !unauditedPaths[path]
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

func apiSegments(path string) []string {
	trimmed := strings.Trim(strings.TrimPrefix(path, "/api/v1/"), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// extractResource returns the top-level collection, plus the sub-resource for
// nested patient routes ("patients/visits").
func extractResource(path string) string {
	segs := apiSegments(path)
	switch {
	case len(segs) == 0:
		return "unknown"
	case segs[0] == "patients" && len(segs) >= 3 && segs[1] != "search":
		return "patients/" + segs[2]
	default:
		return segs[0]
	}
}

// extractPatientID finds the business patient identifier in the URL.
//
//   - /api/v1/patients/<id>[/...]
//   - /api/v1/medical-records/<id>, /api/v1/discharge-notes/<id>
//   - /api/v1/generate-instructions/<id> and the other AI routes
func extractPatientID(path string) string {
	segs := apiSegments(path)
	if len(segs) < 2 {
		return ""
	}
	switch segs[0] {
	case "patients":
		if segs[1] == "search" {
			return ""
		}
		return segs[1]
	case "medical-records", "discharge-notes":
		if segs[1] == "record" {
			return ""
		}
		return segs[1]
	case "generate-instructions", "ask-question", "ask-question-enhanced", "generate-quick-discharge":
		return segs[1]
	}
	return ""
}
