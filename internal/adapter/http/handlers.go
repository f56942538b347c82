package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/couchcryptid/crisis-sim/internal/domain"
	"github.com/couchcryptid/crisis-sim/internal/resolver"
)

// maxAudioBytes is the upload limit of the transcription API.
const maxAudioBytes = 25 << 20

type handler struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

type scenarioRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

type askRequest struct {
	Query string `json:"query" binding:"required"`
}

func (h *handler) register(r *gin.Engine, limit gin.HandlerFunc) {
	api := r.Group("/api")

	api.POST("/scenario", limit, h.synthesize)
	api.POST("/scenario/reset", h.reset)
	api.POST("/scenario/tick", h.tick)
	api.POST("/ask", limit, h.ask)
	api.POST("/ask/voice", limit, h.askVoice)

	api.GET("/state", h.state)
	api.GET("/alerts", func(c *gin.Context) { c.JSON(http.StatusOK, h.deps.State.Alerts()) })
	api.GET("/facilities", func(c *gin.Context) { c.JSON(http.StatusOK, h.deps.State.Facilities()) })
	api.GET("/resources", func(c *gin.Context) { c.JSON(http.StatusOK, h.deps.State.Resources()) })
	api.GET("/updates", func(c *gin.Context) { c.JSON(http.StatusOK, h.deps.State.Social()) })

	api.GET("/facilities/nearest", h.nearest)
	api.GET("/route", h.route)
	api.GET("/locate", h.locate)
}

func (h *handler) synthesize(c *gin.Context) {
	var req scenarioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, domain.ErrEmptyPrompt)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.opts.SynthesisTimeout)
	defer cancel()

	report, err := h.deps.Synthesizer.Synthesize(ctx, req.Prompt)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyPrompt) {
			badRequest(c, err)
			return
		}
		h.logger.Error("synthesis failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "synthesis failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handler) reset(c *gin.Context) {
	h.deps.Synthesizer.Reset(c.Request.Context())
	c.JSON(http.StatusOK, h.deps.State.Snapshot())
}

func (h *handler) tick(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Synthesizer.Tick(c.Request.Context()))
}

func (h *handler) state(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.State.Snapshot())
}

func (h *handler) ask(c *gin.Context) {
	if h.deps.Assistant == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "assistant is not configured"})
		return
	}

	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, errors.New("query is required"))
		return
	}

	h.answer(c, req.Query, "query is required")
}

// askVoice transcribes the multipart "audio" file and answers it like /api/ask.
func (h *handler) askVoice(c *gin.Context) {
	if h.deps.Assistant == nil || h.deps.Transcriber == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "voice questions are not configured"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAudioBytes)
	fh, err := c.FormFile("audio")
	if err != nil {
		badRequest(c, errors.New("audio file is required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, fmt.Errorf("read audio: %w", err))
		return
	}
	defer f.Close()

	text, err := h.deps.Transcriber.Transcribe(c.Request.Context(), f, fh.Filename)
	if err != nil {
		h.logger.Warn("transcription failed", "file", fh.Filename, "size", fh.Size, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	h.logger.Info("voice question transcribed", "file", fh.Filename, "chars", len(text))
	h.answer(c, text, "no speech recognized")
}

// answer maps assistant errors to status codes. emptyMsg is the 400 body for
// a blank question.
func (h *handler) answer(c *gin.Context, query, emptyMsg string) {
	answer, err := h.deps.Assistant.Ask(c.Request.Context(), query)
	switch {
	case errors.Is(err, domain.ErrEmptyPrompt):
		badRequest(c, errors.New(emptyMsg))
	case errors.Is(err, domain.ErrGenerationUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case err != nil:
		h.logger.Error("assistant failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "assistant failed"})
	default:
		c.JSON(http.StatusOK, answer)
	}
}

// nearest resolves the origin from lat/lon or device location, the category
// from category or free-text q, and returns the nearest facility with a route.
func (h *handler) nearest(c *gin.Context) {
	ctx := c.Request.Context()

	coord, given, err := queryCoordinate(c, "lat", "lon")
	if err != nil {
		badRequest(c, err)
		return
	}
	var origin resolver.Origin
	if given {
		origin = resolver.Origin{Coordinate: coord, Source: resolver.SourceRequest, Label: h.deps.Resolver.Label(ctx, coord)}
	} else {
		origin = h.deps.Resolver.Locate(ctx)
	}

	var category *domain.FacilityCategory
	if raw := c.Query("category"); raw != "" {
		cat, err := domain.ParseFacilityCategory(raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		category = &cat
	} else if q := c.Query("q"); q != "" {
		if cat, ok := resolver.CategoryForQuery(q); ok {
			category = &cat
		}
	}

	guidance, err := h.deps.Resolver.Guide(ctx, origin, category)
	if errors.Is(err, domain.ErrNoFacilityAvailable) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "origin": origin})
		return
	}
	if err != nil {
		h.logger.Error("nearest facility lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "nearest facility lookup failed"})
		return
	}
	c.JSON(http.StatusOK, guidance)
}

func (h *handler) route(c *gin.Context) {
	from, ok, err := queryCoordinate(c, "from_lat", "from_lon")
	if err == nil && !ok {
		err = errors.New("from_lat and from_lon are required")
	}
	if err != nil {
		badRequest(c, err)
		return
	}
	to, ok, err := queryCoordinate(c, "to_lat", "to_lon")
	if err == nil && !ok {
		err = errors.New("to_lat and to_lon are required")
	}
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, h.deps.Resolver.Route(c.Request.Context(), from, to))
}

func (h *handler) locate(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Resolver.Locate(c.Request.Context()))
}

// queryCoordinate reads a lat/lon pair. given is false when both are absent.
func queryCoordinate(c *gin.Context, latKey, lonKey string) (coord domain.Coordinate, given bool, err error) {
	latRaw, lonRaw := c.Query(latKey), c.Query(lonKey)
	if latRaw == "" && lonRaw == "" {
		return domain.Coordinate{}, false, nil
	}
	if latRaw == "" || lonRaw == "" {
		return domain.Coordinate{}, false, fmt.Errorf("%s and %s must be given together", latKey, lonKey)
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return domain.Coordinate{}, false, fmt.Errorf("invalid %s %q", latKey, latRaw)
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil {
		return domain.Coordinate{}, false, fmt.Errorf("invalid %s %q", lonKey, lonRaw)
	}
	coord = domain.Coordinate{Lat: lat, Lon: lon}
	if !coord.Valid() {
		return domain.Coordinate{}, false, fmt.Errorf("%s/%s out of range", latKey, lonKey)
	}
	return coord, true, nil
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
