package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/crossarr/crossarr/internal/crossseed"
	"github.com/crossarr/crossarr/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func pagination(c echo.Context) (limit, offset int) {
	limit = defaultPageSize
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

func (s *Server) getStatus(c echo.Context) error {
	statuses, err := s.scheduler.Status(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, statuses)
}

func (s *Server) triggerScan(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := s.scheduler.TriggerScan(id); err != nil {
		if errors.Is(err, crossseed.ErrScanInProgress) {
			return echo.NewHTTPError(http.StatusConflict, "scan already in progress")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]any{"instanceId": id, "started": true})
}

func (s *Server) stopScan(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	s.scheduler.StopScan(id)
	return c.JSON(http.StatusOK, map[string]any{"instanceId": id, "stopped": true})
}

func (s *Server) listSearchees(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	limit, offset := pagination(c)

	ctx := c.Request().Context()
	searchees, err := s.store.ListSearchees(ctx, id, limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	total, err := s.store.CountSearchees(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{
		"total":     total,
		"limit":     limit,
		"offset":    offset,
		"searchees": searcheesJSON(searchees),
	})
}

func (s *Server) listDecisions(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	limit, offset := pagination(c)

	decisions, err := s.store.ListDecisions(c.Request().Context(), id, limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"limit":     limit,
		"offset":    offset,
		"decisions": decisionsJSON(decisions),
	})
}

func (s *Server) getCacheStats(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	stats, err := s.cache.Stats(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) clearCache(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := s.cache.Clear(id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

type searcheeJSON struct {
	ID            int64  `json:"id"`
	InfoHash      string `json:"infoHash"`
	Name          string `json:"name"`
	TotalSize     int64  `json:"totalSize"`
	FileCount     int    `json:"fileCount"`
	FirstSearched string `json:"firstSearched"`
	LastSearched  string `json:"lastSearched"`
}

func searcheesJSON(searchees []store.Searchee) []searcheeJSON {
	out := make([]searcheeJSON, 0, len(searchees))
	for _, se := range searchees {
		out = append(out, searcheeJSON{
			ID:            se.ID,
			InfoHash:      se.InfoHash,
			Name:          se.Name,
			TotalSize:     se.TotalSize,
			FileCount:     se.FileCount,
			FirstSearched: se.FirstSearched.UTC().Format("2006-01-02T15:04:05Z"),
			LastSearched:  se.LastSearched.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	return out
}

type decisionJSON struct {
	GUID          string `json:"guid"`
	InfoHash      string `json:"infoHash,omitempty"`
	CandidateName string `json:"candidateName"`
	CandidateSize int64  `json:"candidateSize"`
	Decision      string `json:"decision"`
	FirstSeen     string `json:"firstSeen"`
	LastSeen      string `json:"lastSeen"`
}

func decisionsJSON(decisions []store.Decision) []decisionJSON {
	out := make([]decisionJSON, 0, len(decisions))
	for _, d := range decisions {
		out = append(out, decisionJSON{
			GUID:          d.GUID,
			InfoHash:      d.InfoHash,
			CandidateName: d.CandidateName,
			CandidateSize: d.CandidateSize,
			Decision:      d.Decision,
			FirstSeen:     d.FirstSeen.UTC().Format("2006-01-02T15:04:05Z"),
			LastSeen:      d.LastSeen.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	return out
}
