package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	app "github.com/infogenie/backend/internal/app"
	chatdomain "github.com/infogenie/backend/internal/app/domain/chat"
	"github.com/infogenie/backend/internal/app/services/chat"
	"github.com/infogenie/backend/internal/app/services/engagement"
	"github.com/infogenie/backend/internal/app/services/hotlist"
	"github.com/infogenie/backend/internal/app/storage"
	"github.com/infogenie/backend/pkg/logger"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app       *app.Application
	log       *logger.Logger
	jwtSecret []byte
	aiCost    int

	rateRPS   float64
	rateBurst int

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

// NewHandler returns a mux exposing the REST API.
func NewHandler(application *app.Application, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	cfg := application.Config()
	h := &handler{
		app:       application,
		log:       log,
		jwtSecret: []byte(cfg.Auth.JWTSecret),
		aiCost:    cfg.Credits.AICost,
		rateRPS:   float64(cfg.RateLimit.RequestsPerSecond),
		rateBurst: cfg.RateLimit.Burst,
		limiters:  make(map[string]*rate.Limiter),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/api/aimodelapp/chat", h.metered("chat", h.aiChat))
	mux.HandleFunc("/api/aimodelapp/name-analysis", h.metered("name-analysis", h.nameAnalysis))
	mux.HandleFunc("/api/aimodelapp/variable-naming", h.metered("variable-naming", h.variableNaming))
	mux.HandleFunc("/api/aimodelapp/poetry", h.metered("poetry", h.poetry))
	mux.HandleFunc("/api/aimodelapp/translation", h.metered("translation", h.translation))
	mux.HandleFunc("/api/aimodelapp/classical_conversion", h.metered("classical_conversion", h.classicalConversion))
	mux.HandleFunc("/api/aimodelapp/expression-maker", h.metered("expression-maker", h.expressionMaker))
	mux.HandleFunc("/api/aimodelapp/linux-command", h.metered("linux-command", h.linuxCommand))
	mux.HandleFunc("/api/aimodelapp/markdown_formatting", h.metered("markdown_formatting", h.markdownFormatting))
	mux.HandleFunc("/api/aimodelapp/kinship-calculator", h.metered("kinship-calculator", h.kinshipCalculator))

	mux.HandleFunc("/api/aimodelapp/coins", h.authenticate(h.coins))
	mux.HandleFunc("/api/aimodelapp/models", h.models)

	mux.HandleFunc("/api/user/checkin", h.authenticate(h.checkin))
	mux.HandleFunc("/api/user/game-data", h.authenticate(h.gameData))

	mux.HandleFunc("/api/60s/", h.feed)

	mux.HandleFunc("/api/health", h.health)
	mux.HandleFunc("/", h.index)

	return mux
}

func (h *handler) aiChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Messages []chatdomain.Message `json:"messages"`
		Provider string               `json:"provider"`
		Model    string               `json:"model"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(payload.Messages) == 0 {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "messages must not be empty", nil)
		return
	}

	result, err := h.app.Chat.Invoke(r.Context(), payload.Provider, payload.Model, payload.Messages)
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"content":   result.Content,
		"provider":  result.Provider,
		"model":     result.Model,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *handler) nameAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "name must not be empty", nil)
		return
	}

	result, err := h.app.Chat.Invoke(r.Context(), "", "", chat.NameAnalysisPrompt(name))
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"analysis":  result.Content,
		"name":      name,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *handler) variableNaming(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Description string `json:"description"`
		Language    string `json:"language"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	description := strings.TrimSpace(payload.Description)
	if description == "" {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "description must not be empty", nil)
		return
	}
	language := strings.ToLower(strings.TrimSpace(payload.Language))
	if language == "" {
		language = "javascript"
	}

	result, err := h.app.Chat.Invoke(r.Context(), "", "", chat.VariableNamingPrompt(description))
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}

	parsed, err := chat.ExtractJSON(result.Content)
	if err != nil {
		h.writeParseError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"suggestions": parsed["suggestions"],
		"description": description,
		"language":    language,
		"timestamp":   time.Now().Format(time.RFC3339),
	})
}

func (h *handler) poetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Theme string `json:"theme"`
		Style string `json:"style"`
		Mood  string `json:"mood"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	theme := strings.TrimSpace(payload.Theme)
	if theme == "" {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "theme must not be empty", nil)
		return
	}
	style := strings.TrimSpace(payload.Style)
	if style == "" {
		style = "modern"
	}
	mood := strings.TrimSpace(payload.Mood)

	result, err := h.app.Chat.Invoke(r.Context(), "", "", chat.PoetryPrompt(theme, style, mood))
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"poem":      result.Content,
		"theme":     theme,
		"style":     style,
		"mood":      mood,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *handler) translation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		SourceText     string `json:"source_text"`
		TargetLanguage string `json:"target_language"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sourceText := strings.TrimSpace(payload.SourceText)
	if sourceText == "" {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "source_text must not be empty", nil)
		return
	}
	targetLanguage := strings.TrimSpace(payload.TargetLanguage)
	if targetLanguage == "" {
		targetLanguage = "zh-CN"
	}

	result, err := h.app.Chat.Invoke(r.Context(), "", "", chat.TranslationPrompt(sourceText, targetLanguage))
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"translation_result": result.Content,
		"source_text":        sourceText,
		"target_language":    targetLanguage,
		"timestamp":          time.Now().Format(time.RFC3339),
	})
}

func (h *handler) classicalConversion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		ModernText  string `json:"modern_text"`
		Style       string `json:"style"`
		ArticleType string `json:"article_type"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	modernText := strings.TrimSpace(payload.ModernText)
	if modernText == "" {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "modern_text must not be empty", nil)
		return
	}
	style := strings.TrimSpace(payload.Style)
	if style == "" {
		style = "refined"
	}
	articleType := strings.TrimSpace(payload.ArticleType)
	if articleType == "" {
		articleType = "prose"
	}

	result, err := h.app.Chat.Invoke(r.Context(), "", "", chat.ClassicalConversionPrompt(modernText, style, articleType))
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"conversion_result": result.Content,
		"modern_text":       modernText,
		"style":             style,
		"article_type":      articleType,
		"timestamp":         time.Now().Format(time.RFC3339),
	})
}

func (h *handler) expressionMaker(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Text  string `json:"text"`
		Style string `json:"style"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	text := strings.TrimSpace(payload.Text)
	if text == "" {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "text must not be empty", nil)
		return
	}
	style := strings.TrimSpace(payload.Style)
	if style == "" {
		style = "mixed"
	}

	result, err := h.app.Chat.Invoke(r.Context(), "", "", chat.ExpressionMakerPrompt(text, style))
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}

	parsed, err := chat.ExtractJSON(result.Content)
	if err != nil {
		h.writeParseError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"expressions": parsed["expressions"],
		"summary":     parsed["summary"],
		"text":        text,
		"style":       style,
		"timestamp":   time.Now().Format(time.RFC3339),
	})
}

func (h *handler) linuxCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		TaskDescription string `json:"task_description"`
		DifficultyLevel string `json:"difficulty_level"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	task := strings.TrimSpace(payload.TaskDescription)
	if task == "" {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "task_description must not be empty", nil)
		return
	}
	level := strings.TrimSpace(payload.DifficultyLevel)
	if level == "" {
		level = "beginner"
	}

	result, err := h.app.Chat.Invoke(r.Context(), "", "", chat.LinuxCommandPrompt(task, level))
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"command_result":   result.Content,
		"task_description": task,
		"difficulty_level": level,
		"timestamp":        time.Now().Format(time.RFC3339),
	})
}

func (h *handler) markdownFormatting(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		ArticleText    string `json:"article_text"`
		EmojiStyle     string `json:"emoji_style"`
		MarkdownOption string `json:"markdown_option"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	article := strings.TrimSpace(payload.ArticleText)
	if article == "" {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "article_text must not be empty", nil)
		return
	}
	emojiStyle := strings.TrimSpace(payload.EmojiStyle)
	if emojiStyle == "" {
		emojiStyle = "balanced"
	}
	markdownOption := strings.TrimSpace(payload.MarkdownOption)
	if markdownOption == "" {
		markdownOption = "standard"
	}

	result, err := h.app.Chat.Invoke(r.Context(), "", "", chat.MarkdownFormattingPrompt(article, emojiStyle))
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"formatted_markdown": result.Content,
		"source_text":        article,
		"emoji_style":        emojiStyle,
		"markdown_option":    markdownOption,
		"timestamp":          time.Now().Format(time.RFC3339),
	})
}

func (h *handler) kinshipCalculator(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		RelationChain string   `json:"relation_chain"`
		Dialects      []string `json:"dialects"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	chainText := strings.TrimSpace(payload.RelationChain)
	if chainText == "" {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "relation_chain must not be empty", nil)
		return
	}

	result, err := h.app.Chat.Invoke(r.Context(), "", "", chat.KinshipPrompt(chainText, payload.Dialects))
	if err != nil {
		h.writeDispatchError(w, err)
		return
	}

	parsed, err := chat.ExtractJSON(result.Content)
	if err != nil {
		h.writeParseError(w, err)
		return
	}
	mandarin, _ := parsed["mandarin_title"].(string)
	if mandarin == "" {
		writeAPIError(w, http.StatusInternalServerError, "parse_error", "no mandarin title in completion", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"relation_chain": chainText,
		"mandarin_title": mandarin,
		"dialect_titles": parsed["dialect_titles"],
		"notes":          parsed["notes"],
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

func (h *handler) coins(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	info, err := h.app.Credits.Balance(r.Context(), userID(r.Context()), h.aiCost)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			writeAPIError(w, http.StatusNotFound, "user_not_found", "user does not exist", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"coins":        info.Coins,
			"ai_cost":      info.AICost,
			"can_use_ai":   info.CanUseAI,
			"username":     info.Username,
			"usage_count":  len(info.RecentUsage),
			"recent_usage": info.RecentUsage,
		},
	})
}

func (h *handler) models(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"models":           h.app.Chat.Models(),
		"default_provider": h.app.Chat.DefaultProvider(),
		"default_model":    h.app.Chat.DefaultModel(""),
	})
}

func (h *handler) checkin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	result, err := h.app.Engagement.CheckIn(r.Context(), userID(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, engagement.ErrAlreadyCheckedIn):
			writeAPIError(w, http.StatusBadRequest, "already_checked_in", "already checked in today, come back tomorrow", nil)
		case errors.Is(err, storage.ErrUserNotFound):
			writeAPIError(w, http.StatusNotFound, "user_not_found", "user does not exist", nil)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "check-in recorded",
		"data":    result,
	})
}

func (h *handler) gameData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	data, err := h.app.Engagement.Snapshot(r.Context(), userID(r.Context()))
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			writeAPIError(w, http.StatusNotFound, "user_not_found", "user does not exist", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    data,
	})
}

func (h *handler) feed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	key := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/60s"), "/")
	if key == "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"feeds":   h.app.Hotlist.Keys(),
		})
		return
	}

	data, err := h.app.Hotlist.GetOrFetch(r.Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, hotlist.ErrUnknownFeed):
			writeAPIError(w, http.StatusNotFound, "unknown_feed", "no such feed", nil)
		case errors.Is(err, hotlist.ErrAllMirrorsFailed):
			writeAPIError(w, http.StatusBadGateway, "upstream_unavailable", "all mirrors failed", nil)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"key":        data.Key,
		"data":       data.Items,
		"from_cache": data.FromCache,
		"updated_at": data.UpdatedAt.Format(time.RFC3339),
	})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// index answers the bare root path; the "/" pattern also catches every
// unregistered path, which gets a structured 404.
func (h *handler) index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeAPIError(w, http.StatusNotFound, "not_found", "unknown endpoint", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":   "infogenie-backend",
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *handler) writeDispatchError(w http.ResponseWriter, err error) {
	var dispatch *chat.DispatchError
	switch {
	case errors.Is(err, chat.ErrUnsupportedProvider):
		writeAPIError(w, http.StatusBadRequest, "unsupported_provider", err.Error(), nil)
	case errors.As(err, &dispatch):
		h.log.WithError(err).Error("dispatch failed")
		writeAPIError(w, http.StatusInternalServerError, "upstream_error", dispatch.Error(), map[string]any{
			"provider": dispatch.Provider,
			"attempts": dispatch.Attempts,
		})
	default:
		h.log.WithError(err).Error("dispatch failed")
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (h *handler) writeParseError(w http.ResponseWriter, err error) {
	h.log.WithError(err).Warn("completion parse failed")
	writeAPIError(w, http.StatusInternalServerError, "parse_error", err.Error(), nil)
}

func decodeJSON(body io.ReadCloser, dst any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeAPIError(w, status, "internal_error", err.Error(), nil)
}

// writeAPIError emits the error envelope. Extra fields merge into the
// top-level object alongside success, message, and error_code.
func writeAPIError(w http.ResponseWriter, status int, code, message string, extra map[string]any) {
	payload := map[string]any{
		"success":    false,
		"message":    message,
		"error_code": code,
	}
	for k, v := range extra {
		payload[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
