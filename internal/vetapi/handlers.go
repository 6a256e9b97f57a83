package vetapi

import (
	"encoding/json"
	"errors"
	"image"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/vettriage/internal/triage"
	"github.com/linnemanlabs/vettriage/internal/vqa"
)

const (
	maxQuestionLen = 500

	defaultRunsLimit = 20
	maxRunsLimit     = 500

	// multipart parts above this spill to temp files
	multipartMemory = 8 << 20
)

type imageRequest struct {
	ImageBase64 string `json:"image_base64"`
	Question    string `json:"question"`
}

type analyzeResponse struct {
	Success   bool           `json:"success"`
	RunID     string         `json:"run_id"`
	Results   *triage.Result `json:"results"`
	Timestamp float64        `json:"timestamp"`
}

type quickResponse struct {
	Success bool `json:"success"`
	triage.QuickAnswer
	Timestamp float64 `json:"timestamp"`
}

type runsResponse struct {
	Success bool                `json:"success"`
	Runs    []*triage.RunRecord `json:"runs"`
}

type runResponse struct {
	Success bool              `json:"success"`
	Run     *triage.RunRecord `json:"run"`
}

type modelResponse struct {
	Success bool `json:"success"`
	vqa.Status
}

func (a *API) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	img, status, err := a.readAnalyzeImage(r)
	if err != nil {
		a.writeError(w, status, err.Error())
		return
	}

	an, err := a.svc.Analyze(r.Context(), img)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("vettriage.run.id", an.RunID),
		attribute.String("vettriage.urgency", string(an.Result.OverallAssessment.UrgencyLevel)),
	)

	a.writeJSON(w, http.StatusOK, analyzeResponse{
		Success:   true,
		RunID:     an.RunID,
		Results:   an.Result,
		Timestamp: a.timestamp(),
	})
}

func (a *API) handleQuickQuestion(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if status, err := decodeJSON(r, &req); err != nil {
		a.writeError(w, status, err.Error())
		return
	}

	question := strings.TrimSpace(req.Question)
	if req.ImageBase64 == "" || question == "" {
		a.writeError(w, http.StatusBadRequest, "missing image_base64 or question")
		return
	}
	if len(question) > maxQuestionLen {
		a.writeError(w, http.StatusBadRequest, "question too long")
		return
	}

	img, err := decodeBase64Image(req.ImageBase64)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ans, err := a.svc.Ask(r.Context(), img, question)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}

	a.writeJSON(w, http.StatusOK, quickResponse{
		Success:     true,
		QuickAnswer: ans,
		Timestamp:   a.timestamp(),
	})
}

func (a *API) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("vettriage.run.id", id))

	rec, ok, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get run record", "id", id)
		a.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		a.writeError(w, http.StatusNotFound, "not found")
		return
	}

	span.SetAttributes(attribute.String("vettriage.urgency", string(rec.Urgency)))

	a.writeJSON(w, http.StatusOK, runResponse{Success: true, Run: rec})
}

func (a *API) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > maxRunsLimit {
			a.writeError(w, http.StatusBadRequest, "limit must be 1.."+strconv.Itoa(maxRunsLimit))
			return
		}
		limit = n
	}

	recs, err := a.svc.Recent(r.Context(), limit)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list run records", "limit", limit)
		a.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if recs == nil {
		recs = []*triage.RunRecord{}
	}

	a.writeJSON(w, http.StatusOK, runsResponse{Success: true, Runs: recs})
}

func (a *API) handleModel(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, modelResponse{Success: true, Status: a.svc.Status()})
}

// readAnalyzeImage takes the image from a multipart "image" part or from a
// JSON image_base64 field.
func (a *API) readAnalyzeImage(r *http.Request) (image.Image, int, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return nil, bodyErrorStatus(err), errors.New("invalid multipart form")
		}
		f, _, err := r.FormFile("image")
		if err != nil {
			return nil, http.StatusBadRequest, errNoImage
		}
		defer func() { _ = f.Close() }()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, bodyErrorStatus(err), errors.New("failed to read image")
		}
		img, err := decodeImage(data)
		if err != nil {
			return nil, http.StatusBadRequest, err
		}
		return img, 0, nil
	}

	var req imageRequest
	if status, err := decodeJSON(r, &req); err != nil {
		return nil, status, err
	}
	img, err := decodeBase64Image(req.ImageBase64)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	return img, 0, nil
}

func decodeJSON(r *http.Request, v any) (int, error) {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return bodyErrorStatus(err), errors.New("invalid JSON payload")
	}
	return 0, nil
}

func bodyErrorStatus(err error) int {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func (a *API) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, triage.ErrBusy) {
		w.Header().Set("Retry-After", "5")
		a.writeError(w, http.StatusServiceUnavailable, "all workers busy, retry later")
		return
	}
	a.logger.Error(r.Context(), err, "triage request failed")
	a.writeError(w, http.StatusInternalServerError, "internal error")
}
