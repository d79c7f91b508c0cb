package handler

import (
	"net/http"
	"time"

	"storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/service"
	appErrors "storefront/pkg/errors"
	"storefront/pkg/response"

	"github.com/gin-gonic/gin"
)

type StatisticsHandler struct {
	statisticsService service.StatisticsService
	revenueService    service.RevenueService
	guard             middleware.Guard
}

func NewStatisticsHandler(statisticsService service.StatisticsService, revenueService service.RevenueService, guard middleware.Guard) *StatisticsHandler {
	return &StatisticsHandler{statisticsService: statisticsService, revenueService: revenueService, guard: guard}
}

func (h *StatisticsHandler) RegisterRoutes(router *gin.RouterGroup) {
	statsGroup := router.Group("/api/statistics")
	statsGroup.Use(h.guard(model.RoleAdmin))
	{
		statsGroup.GET("", h.GetStatistics)
		statsGroup.GET("/revenue", h.GetRevenue)
	}
}

// @Summary      Get ledger summary
// @Description  Stock in/out per movement type, paid order count, revenue and top sellers bounded by time
// @Tags         Statistics
// @Produce      json
// @Param        start_date query string false "Start Date (RFC3339)"
// @Param        end_date   query string false "End Date (RFC3339)"
// @Success      200 {object} response.Response{data=model.LedgerSummary}
// @Failure      400 {object} response.Response "Invalid date format"
// @Failure      401 {object} response.Response "Unauthorized"
// @Security     BearerAuth
// @Router       /api/statistics [get]
func (h *StatisticsHandler) GetStatistics(c *gin.Context) {
	startDateStr := c.Query("start_date")
	endDateStr := c.Query("end_date")

	var startDate, endDate time.Time
	var err error

	// Default to current month if no dates are provided
	now := time.Now()
	if startDateStr == "" {
		startDate = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	} else {
		startDate, err = time.Parse(time.RFC3339, startDateStr)
		if err != nil {
			response.Abort(c, appErrors.Clone(appErrors.ErrValidation, "invalid start_date format, expected RFC3339"))
			return
		}
	}

	if endDateStr == "" {
		endDate = now
	} else {
		endDate, err = time.Parse(time.RFC3339, endDateStr)
		if err != nil {
			response.Abort(c, appErrors.Clone(appErrors.ErrValidation, "invalid end_date format, expected RFC3339"))
			return
		}
	}

	if endDate.Before(startDate) {
		response.Abort(c, appErrors.Clone(appErrors.ErrValidation, "end_date must not be before start_date"))
		return
	}

	stats, err := h.statisticsService.GetLedgerSummary(c.Request.Context(), startDate, endDate)
	if err != nil {
		response.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}

// @Summary      Revenue series
// @Description  Paid order revenue grouped by period
// @Tags         Statistics
// @Produce      json
// @Param        group_by   query string false "day, week, month, quarter or year (default month)"
// @Param        start_date query string false "Start Date (RFC3339)"
// @Param        end_date   query string false "End Date (RFC3339)"
// @Success      200 {object} response.Response{data=[]service.RevenueDataPoint}
// @Security     BearerAuth
// @Router       /api/statistics/revenue [get]
func (h *StatisticsHandler) GetRevenue(c *gin.Context) {
	filter := service.RevenueFilter{
		GroupBy:   c.DefaultQuery("group_by", "month"),
		StartDate: c.Query("start_date"),
		EndDate:   c.Query("end_date"),
	}
	for _, raw := range []string{filter.StartDate, filter.EndDate} {
		if raw == "" {
			continue
		}
		if _, err := time.Parse(time.RFC3339, raw); err != nil {
			response.Abort(c, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected RFC3339"))
			return
		}
	}

	points, err := h.revenueService.GetRevenueStatistics(c.Request.Context(), filter)
	if err != nil {
		response.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, points))
}
