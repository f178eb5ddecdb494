package http

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/comitanigiacomo/glow-sync-engine/internal/core/domain"
	"github.com/comitanigiacomo/glow-sync-engine/internal/core/services"
)

// todayParam stands for the current logical date in progress routes.
const todayParam = "today"

// Calendar is the logical date source of the handlers.
type Calendar interface {
	CurrentDate() string
	Location() *time.Location
	Subscribe(fn func(date string)) func()
	Resume() string
}

type ProgressHandler struct {
	progress *services.ProgressService
	history  *services.HistoryService
	sessions *services.SessionService
	calendar Calendar
}

func NewProgressHandler(progress *services.ProgressService, history *services.HistoryService, sessions *services.SessionService, calendar Calendar) *ProgressHandler {
	return &ProgressHandler{
		progress: progress,
		history:  history,
		sessions: sessions,
		calendar: calendar,
	}
}

type toggleStepRequest struct {
	Completed *bool `json:"completed" binding:"required"`
}

// progressView is a progress document with the stats derived from the
// current routine step counts.
type progressView struct {
	Progress *domain.DailyProgress `json:"progress"`
	Stats    domain.ProgressStats  `json:"stats"`
}

func newProgressView(p *domain.DailyProgress, routines services.RoutineSnapshot) progressView {
	am, pm := routines.StepCounts()
	return progressView{Progress: p, Stats: domain.ComputeStats(p, am, pm)}
}

func (h *ProgressHandler) RegisterRoutes(router *gin.RouterGroup) {
	progress := router.Group("/progress")
	{
		progress.GET("/history", h.History)
		progress.GET("/:date", h.Get)
		progress.GET("/:date/stream", h.Stream)
		progress.PUT("/:date/steps/:stepId", h.ToggleStep)
	}
}

func (h *ProgressHandler) resolveDate(param string) string {
	if param == todayParam {
		return h.calendar.CurrentDate()
	}
	return param
}

func (h *ProgressHandler) ToggleStep(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req toggleStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	stepID := c.Param("stepId")
	period, _, err := domain.ParseStepKey(stepID)
	if err != nil {
		handleError(c, err)
		return
	}

	ctx := c.Request.Context()
	cache, err := h.sessions.Cache(ctx, userID)
	if err != nil {
		handleError(c, err)
		return
	}
	routine, err := cache.RoutineFor(ctx, period, stepID)
	if err != nil {
		handleError(c, err)
		return
	}

	date := h.resolveDate(c.Param("date"))
	input := services.ToggleStepInput{
		UserID:    userID,
		Date:      date,
		Period:    period,
		StepID:    stepID,
		Completed: *req.Completed,
		Routine:   routine,
	}

	if err := h.progress.ToggleStep(ctx, input); err != nil {
		handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ProgressHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	cache, err := h.sessions.Cache(ctx, userID)
	if err != nil {
		handleError(c, err)
		return
	}

	p, err := h.progress.Get(ctx, userID, h.resolveDate(c.Param("date")))
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, newProgressView(p, cache.Snapshot()))
}

// Stream pushes every snapshot of the date's document as a server-sent event.
// On the today route the stream moves to the new date at each rollover.
func (h *ProgressHandler) Stream(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	follow := c.Param("date") == todayParam
	date := h.resolveDate(c.Param("date"))

	cache, err := h.sessions.Cache(ctx, userID)
	if err != nil {
		handleError(c, err)
		return
	}

	updates := make(chan services.ProgressUpdate, 16)
	subscribe := func(date string) (*services.Subscription, error) {
		return h.progress.Subscribe(ctx, userID, date, func(u services.ProgressUpdate) {
			select {
			case updates <- u:
			case <-ctx.Done():
			}
		})
	}

	sub, err := subscribe(date)
	if err != nil {
		handleError(c, err)
		return
	}
	defer func() {
		if sub != nil {
			sub.Unsubscribe()
		}
	}()

	rollover := make(chan string, 1)
	if follow {
		stop := h.calendar.Subscribe(func(next string) {
			select {
			case <-rollover:
			default:
			}
			rollover <- next
		})
		defer stop()
	}

	c.Header("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false

		case next := <-rollover:
			sub.Unsubscribe()
			sub = nil
			date = next

			resubscribed, err := subscribe(date)
			if err != nil {
				c.SSEvent("error", gin.H{"error": err.Error()})
				return false
			}
			sub = resubscribed
			c.SSEvent("date", gin.H{"date": date})
			return true

		case u := <-updates:
			if u.Err != nil {
				c.SSEvent("error", gin.H{"error": u.Err.Error()})
				return false
			}
			// Late pushes of the previous date after a rollover.
			if u.Progress.Date != date {
				return true
			}
			c.SSEvent("progress", newProgressView(u.Progress, cache.Snapshot()))
			return true
		}
	})
}

// History returns the dense series of the days before today, scored with
// the current routine step counts.
func (h *ProgressHandler) History(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	cache, err := h.sessions.Cache(ctx, userID)
	if err != nil {
		handleError(c, err)
		return
	}

	am, pm := cache.Snapshot().StepCounts()
	report, err := h.history.Report(ctx, services.HistoryInput{
		UserID:      userID,
		AMStepCount: am,
		PMStepCount: pm,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}
