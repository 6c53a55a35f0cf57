package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vanshika/upidiag/backend/internal/analytics"
	"github.com/vanshika/upidiag/backend/internal/domain"
	"github.com/vanshika/upidiag/backend/internal/loader"
	"github.com/vanshika/upidiag/backend/internal/service"
	"github.com/vanshika/upidiag/backend/internal/storage"
	"github.com/vanshika/upidiag/backend/internal/voice"
)

const (
	defaultListLimit     = 100
	defaultReplaySpeed   = 100.0
	defaultUploadLimit   = 25 << 20
	multipartMemoryLimit = 8 << 20
)

// Diagnoser explains a failed transaction.
type Diagnoser interface {
	Diagnose(ctx context.Context, tx domain.Transaction) domain.Diagnosis
}

// APIDependencies lists the collaborators behind the REST API. Dataset and
// Voice may be nil; their routes then answer 503.
type APIDependencies struct {
	Transactions   *service.TransactionService
	Analytics      *analytics.Service
	Diagnoser      Diagnoser
	Dataset        *loader.Loader
	Replayer       *loader.Replayer
	Voice          *voice.Service
	ReplaySpeed    float64
	MaxUploadBytes int64
}

// APIHandlers exposes HTTP handlers for the REST API.
type APIHandlers struct {
	logger   *slog.Logger
	validate *validator.Validate
	deps     APIDependencies
	nowFn    func() time.Time
}

// NewAPIHandlers constructs an APIHandlers instance.
func NewAPIHandlers(logger *slog.Logger, deps APIDependencies) *APIHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.ReplaySpeed <= 0 {
		deps.ReplaySpeed = defaultReplaySpeed
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = defaultUploadLimit
	}
	return &APIHandlers{
		logger:   logger,
		validate: newValidator(),
		deps:     deps,
		nowFn:    time.Now,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("txn_status", func(fl validator.FieldLevel) bool {
		_, ok := domain.ParseStatus(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("failure_type", func(fl validator.FieldLevel) bool {
		_, ok := domain.ParseFailureType(fl.Field().String())
		return ok
	})
	return v
}

// Register mounts every API route on r.
func (h *APIHandlers) Register(r chi.Router) {
	r.Post("/diagnose", h.diagnose)

	r.Route("/transactions", func(r chi.Router) {
		r.Get("/", h.listTransactions)
		r.Post("/", h.createTransaction)
		r.Get("/stats", h.transactionStats)
		r.Get("/{id}", h.getTransaction)
		r.Patch("/{id}/status", h.updateTransactionStatus)
	})
	r.Get("/failure-types", h.failureTypes)

	r.Route("/analytics", func(r chi.Router) {
		r.Get("/hourly", h.hourly)
		r.Get("/failure-patterns", h.failurePatterns)
		r.Get("/bank-performance", h.bankPerformance)
		r.Get("/vpa-domains", h.vpaDomains)
		r.Get("/amount-based-failures", h.amountBuckets)
		r.Get("/retry-patterns", h.retryPatterns)
		r.Get("/live-metrics", h.liveMetrics)
	})
	r.Get("/dashboard/realtime", h.dashboard)
	r.Get("/search/advanced", h.advancedSearch)
	r.Get("/database/health", h.databaseHealth)

	r.Route("/dataset", func(r chi.Router) {
		r.Post("/load", h.loadDataset)
		r.Post("/ingest", h.ingestDataset)
		r.Get("/statistics", h.datasetStatistics)
		r.Get("/info", h.datasetInfo)
		r.Post("/replay", h.startReplay)
		r.Get("/replay", h.replayStatus)
		r.Delete("/replay", h.cancelReplay)
	})

	r.Route("/voice", func(r chi.Router) {
		r.Post("/upload-audio", h.uploadAudio)
		r.Post("/diagnose", h.voiceDiagnose)
		r.Post("/text-to-speech", h.textToSpeech)
		r.Get("/supported-languages", h.supportedLanguages)
		r.Post("/cleanup", h.cleanupAudio)
	})
}

func (h *APIHandlers) diagnose(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.decodeTransaction(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.deps.Diagnoser.Diagnose(r.Context(), tx))
}

func (h *APIHandlers) decodeTransaction(w http.ResponseWriter, r *http.Request) (domain.Transaction, bool) {
	var payload transactionRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return domain.Transaction{}, false
	}
	if err := h.validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return domain.Transaction{}, false
	}
	return payload.toDomain(), true
}

func (h *APIHandlers) listTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	params := service.ListParams{
		Limit:  parseInt(query.Get("limit"), defaultListLimit),
		Skip:   parseInt(query.Get("skip"), 0),
		Search: strings.TrimSpace(query.Get("search")),
	}

	if v := query.Get("status"); v != "" {
		status, ok := domain.ParseStatus(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		params.Status = status
	}
	if v := query.Get("failure_type"); v != "" {
		ft, ok := domain.ParseFailureType(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid failure_type")
			return
		}
		params.FailureType = ft
	}

	var err error
	if params.StartTime, err = parseTimeParam(query.Get("start")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid start timestamp")
		return
	}
	if params.EndTime, err = parseTimeParam(query.Get("end")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid end timestamp")
		return
	}

	respondJSON(w, http.StatusOK, h.deps.Transactions.List(r.Context(), params))
}

func (h *APIHandlers) createTransaction(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.decodeTransaction(w, r)
	if !ok {
		return
	}

	created, err := h.deps.Transactions.Create(r.Context(), tx)
	switch {
	case errors.Is(err, service.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, domain.ErrInvalidTransaction):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error("failed to create transaction", "error", err, "transactionId", tx.TransactionID)
		writeError(w, http.StatusInternalServerError, "failed to persist transaction")
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (h *APIHandlers) transactionStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.deps.Transactions.Stats(r.Context()))
}

func (h *APIHandlers) getTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tx, err := h.deps.Transactions.Get(r.Context(), id)
	if errors.Is(err, service.ErrNotFound) {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to fetch transaction", "error", err, "transactionId", id)
		writeError(w, http.StatusInternalServerError, "failed to fetch transaction")
		return
	}
	respondJSON(w, http.StatusOK, tx)
}

func (h *APIHandlers) updateTransactionStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var payload statusUpdateRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	status, _ := domain.ParseStatus(payload.Status)

	err := h.deps.Transactions.UpdateStatus(r.Context(), id, status, payload.Diagnosis)
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	case errors.Is(err, domain.ErrInvalidTransaction):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error("failed to update transaction", "error", err, "transactionId", id)
		writeError(w, http.StatusInternalServerError, "failed to update transaction")
		return
	}
	respondJSON(w, http.StatusOK, statusResponse{Status: "success", ID: id, Message: "Transaction status updated"})
}

func (h *APIHandlers) failureTypes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.deps.Transactions.FailureTypes(r.Context()))
}

func (h *APIHandlers) hourly(w http.ResponseWriter, r *http.Request) {
	days := parseInt(r.URL.Query().Get("days"), 7)
	respondJSON(w, http.StatusOK, h.deps.Transactions.Hourly(r.Context(), days))
}

func (h *APIHandlers) failurePatterns(w http.ResponseWriter, r *http.Request) {
	data := h.deps.Analytics.FailurePatterns(r.Context())
	respondData(w, data, fmt.Sprintf("Retrieved failure patterns for %d time periods", len(data)))
}

func (h *APIHandlers) bankPerformance(w http.ResponseWriter, r *http.Request) {
	data := h.deps.Analytics.BankPerformance(r.Context())
	respondData(w, data, fmt.Sprintf("Retrieved performance metrics for %d banks", len(data)))
}

func (h *APIHandlers) vpaDomains(w http.ResponseWriter, r *http.Request) {
	data := h.deps.Analytics.VPADomains(r.Context())
	respondData(w, data, fmt.Sprintf("Retrieved VPA domain analysis for %d domain pairs", len(data)))
}

func (h *APIHandlers) amountBuckets(w http.ResponseWriter, r *http.Request) {
	data := h.deps.Analytics.AmountBuckets(r.Context())
	respondData(w, data, fmt.Sprintf("Retrieved amount-based failure analysis for %d ranges", len(data)))
}

func (h *APIHandlers) retryPatterns(w http.ResponseWriter, r *http.Request) {
	data := h.deps.Analytics.RetryPatterns(r.Context())
	respondData(w, data, fmt.Sprintf("Retrieved retry pattern analysis for %d scenarios", len(data)))
}

func (h *APIHandlers) dashboard(w http.ResponseWriter, r *http.Request) {
	respondData(w, h.deps.Analytics.Dashboard(r.Context()), "Real-time dashboard data retrieved successfully")
}

func (h *APIHandlers) liveMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"metrics": h.deps.Analytics.LiveMetrics(r.Context()),
		"message": "Live metrics retrieved successfully",
	})
}

func (h *APIHandlers) advancedSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := storage.SearchQuery{
		Query: strings.TrimSpace(query.Get("query")),
		Limit: parseInt(query.Get("limit"), 50),
	}
	if q.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	filters := map[string]any{}
	if v := query.Get("status"); v != "" {
		status, ok := domain.ParseStatus(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		q.Status = status
		filters["status"] = status
	}
	if v := query.Get("failure_type"); v != "" {
		ft, ok := domain.ParseFailureType(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid failure_type")
			return
		}
		q.FailureType = ft
		filters["failure_type"] = ft
	}

	for _, p := range []struct {
		key string
		dst **float64
	}{
		{"amount_min", &q.AmountMin},
		{"amount_max", &q.AmountMax},
	} {
		v, err := parseFloatParam(query.Get(p.key))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+p.key)
			return
		}
		if v != nil {
			*p.dst = v
			filters[p.key] = *v
		}
	}

	for _, p := range []struct {
		key string
		dst **time.Time
	}{
		{"date_from", &q.DateFrom},
		{"date_to", &q.DateTo},
	} {
		v, err := parseTimeParam(query.Get(p.key))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+p.key)
			return
		}
		if v != nil {
			*p.dst = v
			filters[p.key] = v.Format(time.RFC3339)
		}
	}

	hits := h.deps.Analytics.Search(r.Context(), q)
	respondJSON(w, http.StatusOK, searchResponse{
		Status:  "success",
		Data:    hits,
		Query:   q.Query,
		Filters: filters,
		Count:   len(hits),
		Message: fmt.Sprintf("Found %d matching transactions", len(hits)),
	})
}

func (h *APIHandlers) databaseHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.deps.Transactions.Health(r.Context()))
}

func (h *APIHandlers) loadDataset(w http.ResponseWriter, r *http.Request) {
	if h.deps.Dataset == nil {
		writeError(w, http.StatusServiceUnavailable, "dataset loader is not configured")
		return
	}
	n, err := h.deps.Dataset.Load(r.Context())
	if err != nil {
		h.logger.Error("failed to load dataset", "error", err)
		writeError(w, http.StatusBadGateway, "failed to load dataset: "+err.Error())
		return
	}
	stats, err := h.deps.Dataset.Statistics()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process dataset")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"message":    fmt.Sprintf("Successfully loaded and processed %d transactions", n),
		"statistics": stats,
	})
}

func (h *APIHandlers) ingestDataset(w http.ResponseWriter, r *http.Request) {
	if h.deps.Dataset == nil {
		writeError(w, http.StatusServiceUnavailable, "dataset loader is not configured")
		return
	}
	res, err := h.deps.Dataset.Ingest(r.Context())
	if errors.Is(err, loader.ErrNotLoaded) {
		writeError(w, http.StatusBadRequest, "No processed transactions found. Load dataset first.")
		return
	}
	if err != nil && res.Inserted == 0 {
		h.logger.Error("failed to ingest dataset", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to ingest data: "+err.Error())
		return
	}

	payload := map[string]any{
		"status":         "success",
		"message":        fmt.Sprintf("Successfully ingested %d transactions", res.Inserted),
		"inserted_count": res.Inserted,
		"skipped_count":  res.Skipped,
		"failed_count":   res.Failed,
	}
	if err != nil {
		payload["status"] = "partial"
		payload["error"] = err.Error()
	}
	respondJSON(w, http.StatusOK, payload)
}

func (h *APIHandlers) datasetStatistics(w http.ResponseWriter, r *http.Request) {
	if h.deps.Dataset == nil {
		writeError(w, http.StatusServiceUnavailable, "dataset loader is not configured")
		return
	}
	stats, err := h.deps.Dataset.Statistics()
	if errors.Is(err, loader.ErrNotLoaded) {
		respondJSON(w, http.StatusOK, statusResponse{
			Status:  "no_data",
			Message: "No dataset loaded. Use /dataset/load first.",
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get statistics")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "success", "statistics": stats})
}

func (h *APIHandlers) datasetInfo(w http.ResponseWriter, r *http.Request) {
	info := datasetInfo{
		DatasetName: "deepakjoshi1606/mock-upi-txn-data",
		Description: "Mock UPI transaction data with realistic failure scenarios",
		Source:      "Hugging Face Datasets",
		Fields:      datasetFields,
		Mapping:     map[string]any{"issue_types_to_failure_types": issueTypeMapping},
		Status:      "not_loaded",
	}
	if h.deps.Dataset != nil {
		info.Source = h.deps.Dataset.SourceName()
		if h.deps.Dataset.Loaded() {
			info.Status = "loaded"
		}
	}
	respondJSON(w, http.StatusOK, info)
}

func (h *APIHandlers) startReplay(w http.ResponseWriter, r *http.Request) {
	if h.deps.Dataset == nil || h.deps.Replayer == nil {
		writeError(w, http.StatusServiceUnavailable, "dataset replay is not configured")
		return
	}
	speed := h.deps.ReplaySpeed
	if v := r.URL.Query().Get("speed_multiplier"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "speed_multiplier must be a positive number")
			return
		}
		speed = parsed
	}

	records := h.deps.Dataset.Records()
	if len(records) == 0 {
		writeError(w, http.StatusBadRequest, "No processed transactions found. Load dataset first.")
		return
	}

	task, err := h.deps.Replayer.Start(records, speed)
	if errors.Is(err, loader.ErrReplayRunning) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]any{
		"status":            "started",
		"message":           fmt.Sprintf("Real-time simulation started with %gx speed", speed),
		"transaction_count": len(records),
		"task":              task.Status(),
	})
}

func (h *APIHandlers) replayStatus(w http.ResponseWriter, r *http.Request) {
	task := h.currentReplay()
	if task == nil {
		writeError(w, http.StatusNotFound, "no replay has been started")
		return
	}
	respondJSON(w, http.StatusOK, task.Status())
}

func (h *APIHandlers) cancelReplay(w http.ResponseWriter, r *http.Request) {
	task := h.currentReplay()
	if task == nil {
		writeError(w, http.StatusNotFound, "no replay has been started")
		return
	}
	task.Cancel()
	select {
	case <-task.Done():
	case <-r.Context().Done():
	}
	respondJSON(w, http.StatusOK, task.Status())
}

func (h *APIHandlers) currentReplay() *loader.ReplayTask {
	if h.deps.Replayer == nil {
		return nil
	}
	return h.deps.Replayer.Current()
}

// transcribeUpload reads the "audio_file" multipart field and transcribes it.
func (h *APIHandlers) transcribeUpload(w http.ResponseWriter, r *http.Request) (voice.Transcript, string, bool) {
	if h.deps.Voice == nil {
		writeError(w, http.StatusServiceUnavailable, voice.ErrNotConfigured.Error())
		return voice.Transcript{}, "", false
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.deps.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return voice.Transcript{}, "", false
	}
	file, header, err := r.FormFile("audio_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio_file is required")
		return voice.Transcript{}, "", false
	}
	defer file.Close()

	if !strings.HasPrefix(header.Header.Get("Content-Type"), "audio/") {
		writeError(w, http.StatusBadRequest, "File must be an audio file")
		return voice.Transcript{}, "", false
	}

	language := r.FormValue("language")
	if language == "" {
		language = "en"
	}

	tr, err := h.deps.Voice.Transcribe(r.Context(), file, language)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, voice.ErrNotConfigured) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return voice.Transcript{}, "", false
	}
	return tr, language, true
}

func (h *APIHandlers) uploadAudio(w http.ResponseWriter, r *http.Request) {
	tr, _, ok := h.transcribeUpload(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, transcriptResponse{
		Status:        "success",
		Transcript:    tr.Text,
		Confidence:    tr.Confidence,
		LanguageCode:  tr.LanguageCode,
		AudioDuration: tr.AudioDuration,
		Message:       "Audio transcribed successfully",
	})
}

func (h *APIHandlers) voiceDiagnose(w http.ResponseWriter, r *http.Request) {
	tr, language, ok := h.transcribeUpload(w, r)
	if !ok {
		return
	}

	tx := voice.TransactionFromTranscript(tr.Text, h.nowFn())
	d := h.deps.Diagnoser.Diagnose(r.Context(), tx)

	resp := voiceDiagnosisResponse{
		Status:     "success",
		Transcript: tr.Text,
		Confidence: tr.Confidence,
		Diagnosis:  d,
		Message:    "Voice diagnosis completed successfully",
	}
	speech := d.Diagnosis + ". " + d.UserGuidance
	if name, err := h.deps.Voice.Synthesize(r.Context(), speech, voice.SpeechLanguage(language)); err == nil {
		audioURL := h.deps.Voice.AudioURL(name)
		resp.VoiceResponseURL = &audioURL
	} else {
		h.logger.Warn("voice response unavailable", "error", err)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *APIHandlers) textToSpeech(w http.ResponseWriter, r *http.Request) {
	if h.deps.Voice == nil {
		writeError(w, http.StatusServiceUnavailable, voice.ErrNotConfigured.Error())
		return
	}
	text := strings.TrimSpace(r.FormValue("text"))
	if text == "" {
		writeError(w, http.StatusBadRequest, "Text cannot be empty")
		return
	}
	language := r.FormValue("language")
	if language == "" {
		language = "en-US"
	}

	name, err := h.deps.Voice.TextToSpeech(r.Context(), text, language, r.FormValue("voice_name"))
	if errors.Is(err, voice.ErrNotConfigured) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate speech")
		return
	}
	respondJSON(w, http.StatusOK, speechResponse{
		Status:   "success",
		AudioURL: h.deps.Voice.AudioURL(name),
		Filename: name,
		Message:  "Text converted to speech successfully",
	})
}

func (h *APIHandlers) supportedLanguages(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, voice.SupportedLanguages())
}

func (h *APIHandlers) cleanupAudio(w http.ResponseWriter, r *http.Request) {
	if h.deps.Voice == nil {
		writeError(w, http.StatusServiceUnavailable, voice.ErrNotConfigured.Error())
		return
	}
	maxAge := time.Duration(parseInt(r.URL.Query().Get("max_age_hours"), 24)) * time.Hour
	removed, err := h.deps.Voice.Cleanup(maxAge)
	if err != nil {
		h.logger.Error("audio cleanup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Cleanup failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"removed": removed,
		"message": "Audio files cleaned up successfully",
	})
}

func respondData(w http.ResponseWriter, data any, message string) {
	respondJSON(w, http.StatusOK, dataResponse{Status: "success", Data: data, Message: message})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	if v, err := strconv.Atoi(value); err == nil {
		return v
	}
	return fallback
}

func parseFloatParam(value string) (*float64, error) {
	if value == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseTimeParam(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised time %q", value)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{
		"error": msg,
	})
}
