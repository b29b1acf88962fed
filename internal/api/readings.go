package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/shalteor/bplog/internal/importer"
	"github.com/shalteor/bplog/internal/middleware"
	"github.com/shalteor/bplog/internal/models"
	"github.com/shalteor/bplog/internal/validate"
)

// multipart overhead allowed on top of the file itself
const uploadSlack = 1 << 20

// HandleIndex implements GET /
func (s *Server) HandleIndex(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r.Context())

	readings, err := s.readings.List(r.Context(), user.ID, models.SortDesc)
	if err != nil {
		s.internalError(w, r, "failed to list readings", err)
		return
	}

	data := pageData{User: user, Readings: readings}
	if user.IsAdmin {
		users, err := s.accounts.ListUsers(r.Context(), user)
		if err != nil {
			s.internalError(w, r, "failed to list users", err)
			return
		}
		data.Users = users
	}

	s.render(w, r, http.StatusOK, "index.html", data)
}

// HandleCreateReading implements POST /
func (s *Server) HandleCreateReading(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())

	if err := r.ParseForm(); err != nil {
		middleware.SetFlash(w, msgInvalidReading)
		redirect(w, r, "/")
		return
	}

	raw := validate.Raw{
		Systolic:  formValue(r, "sys"),
		Diastolic: formValue(r, "dia"),
		Pulse:     formValue(r, "pul"),
		Comment:   formValue(r, "comment"),
		Time:      formValue(r, "manual_time"),
	}

	_, err := s.readings.Create(r.Context(), userID, raw)
	switch {
	case errors.Is(err, validate.ErrInvalidNumber), errors.Is(err, validate.ErrInvalidTimestamp):
		s.logger.Debug("reading rejected", zap.Int64("user_id", userID), zap.Error(err))
		middleware.SetFlash(w, msgInvalidReading)
	case err != nil:
		s.logger.Error("failed to create reading", zap.Int64("user_id", userID), zap.Error(err))
		middleware.SetFlash(w, msgInternal)
	default:
		middleware.SetFlash(w, msgReadingSaved)
	}

	redirect(w, r, "/")
}

// HandleBulkUpload implements POST /bulk_upload
func (s *Server) HandleBulkUpload(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+uploadSlack)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			middleware.SetFlash(w, msgFileUnreadable)
		} else {
			middleware.SetFlash(w, msgNoFile)
		}
		redirect(w, r, "/")
		return
	}
	defer file.Close()

	summary, err := s.readings.Import(r.Context(), userID, file, header.Filename)
	switch {
	case errors.Is(err, importer.ErrFileUnreadable):
		middleware.SetFlash(w, msgFileUnreadable)
	case errors.Is(err, importer.ErrMalformedTable):
		middleware.SetFlash(w, msgMalformedTable)
	case err != nil:
		s.logger.Error("bulk import failed", zap.Int64("user_id", userID), zap.Error(err))
		middleware.SetFlash(w, msgInternal)
	default:
		messages := []string{fmt.Sprintf(msgImported, summary.Imported)}
		if n := len(summary.Skipped); n > 0 {
			messages = append(messages, fmt.Sprintf(msgSkipped, n))
		}
		middleware.SetFlash(w, messages...)
	}

	redirect(w, r, "/")
}

// HandleDeleteReading implements POST /delete/{readingID}
func (s *Server) HandleDeleteReading(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())

	readingID, ok := idParam(r, "readingID")
	if !ok {
		redirect(w, r, "/")
		return
	}

	if err := s.readings.Delete(r.Context(), userID, readingID); err != nil {
		s.logger.Error("failed to delete reading", zap.Int64("reading_id", readingID), zap.Error(err))
		middleware.SetFlash(w, msgInternal)
	} else {
		middleware.SetFlash(w, msgReadingDeleted)
	}

	redirect(w, r, "/")
}

// HandlePlot implements GET /plot
func (s *Server) HandlePlot(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUserFromContext(r.Context())

	readings, err := s.readings.List(r.Context(), user.ID, models.SortAsc)
	if err != nil {
		s.internalError(w, r, "failed to list readings", err)
		return
	}

	series := make([]point, 0, len(readings))
	for _, rd := range readings {
		series = append(series, point{
			Time:      rd.MeasuredAt.Format(time.RFC3339),
			Systolic:  rd.Systolic,
			Diastolic: rd.Diastolic,
			Pulse:     rd.Pulse,
		})
	}

	s.render(w, r, http.StatusOK, "plot.html", pageData{User: user, Series: series})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logger.Error(msg, zap.String("path", r.URL.Path), zap.Error(err))
	if wantsJSON(r) {
		WriteError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	http.Error(w, msgInternal, http.StatusInternalServerError)
}
