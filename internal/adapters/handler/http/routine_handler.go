package http

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/comitanigiacomo/glow-sync-engine/internal/core/domain"
	"github.com/comitanigiacomo/glow-sync-engine/internal/core/services"
)

type RoutineHandler struct {
	routines *services.RoutineService
	sessions *services.SessionService
	calendar Calendar
}

func NewRoutineHandler(routines *services.RoutineService, sessions *services.SessionService, calendar Calendar) *RoutineHandler {
	return &RoutineHandler{
		routines: routines,
		sessions: sessions,
		calendar: calendar,
	}
}

type saveRoutineRequest struct {
	Steps []domain.RoutineStep `json:"steps"`
}

// scheduledSteps lists the step keys that apply on the current date.
type scheduledSteps struct {
	Date string   `json:"date"`
	AM   []string `json:"am"`
	PM   []string `json:"pm"`
}

type routinesView struct {
	services.RoutineSnapshot
	Today scheduledSteps `json:"today"`
}

func (h *RoutineHandler) RegisterRoutes(router *gin.RouterGroup) {
	routines := router.Group("/routines")
	{
		routines.GET("", h.Get)
		routines.GET("/stream", h.Stream)
		routines.PUT("/:period", h.Save)
	}
}

func (h *RoutineHandler) view(snap services.RoutineSnapshot) routinesView {
	date := h.calendar.CurrentDate()
	today := scheduledSteps{Date: date, AM: []string{}, PM: []string{}}

	if day, err := domain.ParseDate(date, h.calendar.Location()); err == nil {
		today.AM = stepsOn(snap.AM, day.Weekday())
		today.PM = stepsOn(snap.PM, day.Weekday())
	}
	return routinesView{RoutineSnapshot: snap, Today: today}
}

func stepsOn(r *domain.SkincareRoutine, day time.Weekday) []string {
	keys := []string{}
	if r == nil {
		return keys
	}
	for _, s := range r.Steps {
		if s.AppliesOn(day) {
			keys = append(keys, domain.StepKey(r.Period, s.Step))
		}
	}
	return keys
}

func (h *RoutineHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	cache, err := h.sessions.Cache(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.view(cache.Snapshot()))
}

func (h *RoutineHandler) Save(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	period, err := domain.ParsePeriod(c.Param("period"))
	if err != nil {
		handleError(c, err)
		return
	}

	var req saveRoutineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	routine, err := h.routines.Save(c.Request.Context(), services.SaveRoutineInput{
		UserID: userID,
		Period: period,
		Steps:  req.Steps,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, routine)
}

// Stream pushes the routine pair on every cache update, starting with the
// current value. Intermediate updates may be coalesced.
func (h *RoutineHandler) Stream(c *gin.Context) {
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

	latest := make(chan services.RoutineSnapshot, 1)
	unsubscribe := cache.Subscribe(func(snap services.RoutineSnapshot) {
		select {
		case <-latest:
		default:
		}
		latest <- snap
	})
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case snap := <-latest:
			c.SSEvent("routines", h.view(snap))
			return true
		}
	})
}
