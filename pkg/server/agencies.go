package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/agencycal/calib/pkg/agency"
	"github.com/agencycal/calib/pkg/events"
	"github.com/agencycal/calib/pkg/store"
	"github.com/agencycal/calib/pkg/types"
)

func storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		abort(c, http.StatusNotFound, err)
	case errors.Is(err, store.ErrDuplicate):
		abort(c, http.StatusConflict, err)
	default:
		abort(c, http.StatusInternalServerError, err)
	}
}

// normalizeDate returns d in DateLayout, or an error if it does not parse.
func normalizeDate(d string) (string, error) {
	t, ok := agency.ParseDate(d)
	if !ok {
		return "", fmt.Errorf("invalid date %q, expected YYYY-MM-DD", d)
	}
	return t.Format(agency.DateLayout), nil
}

func (s *Server) listAgencies(c *gin.Context) {
	field, err := agency.ParseField(c.Query("field"), agency.FieldRouteNo)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	var month *time.Month
	if m := c.Query("month"); m != "" {
		i, err := strconv.Atoi(m)
		if err != nil {
			abort(c, http.StatusBadRequest, fmt.Errorf("invalid month %q", m))
			return
		}
		mm, err := agency.MonthFromIndex(i)
		if err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}
		month = &mm
	}

	all, err := s.store.ListAgencies(c.Request.Context())
	if err != nil {
		storeError(c, err)
		return
	}

	records := agency.SortByMostRecentCalibration(agency.FilterByText(all, c.Query("q"), field))
	c.IndentedJSON(http.StatusOK, agency.FilterDueInMonth(records, month))
}

func (s *Server) listDue(c *gin.Context) {
	all, err := s.store.ListAgencies(c.Request.Context())
	if err != nil {
		storeError(c, err)
		return
	}

	records := agency.SortByMostRecentCalibration(agency.FilterByText(all, c.Query("q"), agency.FieldPerson))
	c.IndentedJSON(http.StatusOK, agency.FilterDueThisMonth(records, s.now()))
}

func (s *Server) getAgency(c *gin.Context) {
	a, err := s.store.GetAgency(c.Request.Context(), c.Param("id"))
	if err != nil {
		storeError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, agency.NewRecord(*a))
}

func (s *Server) createAgency(c *gin.Context) {
	var req types.CreateAgencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	dates := make([]string, 0, len(req.CalibrationDates))
	for _, d := range req.CalibrationDates {
		nd, err := normalizeDate(d)
		if err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}
		dates = append(dates, nd)
	}

	a := &agency.Agency{
		Person:           strings.TrimSpace(req.Person),
		RouteNo:          strings.TrimSpace(req.RouteNo),
		AgencyNo:         strings.TrimSpace(req.AgencyNo),
		Description:      strings.TrimSpace(req.Description),
		CalibrationDates: dates,
		ServiceReportNo:  req.ServiceReportNo,
	}
	if err := s.store.CreateAgency(c.Request.Context(), a); err != nil {
		storeError(c, err)
		return
	}

	s.publishChange(c, events.AgencyCreated, a)
	c.IndentedJSON(http.StatusCreated, agency.NewRecord(*a))
}

func (s *Server) updateAgency(c *gin.Context) {
	var req types.UpdateAgencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	p := agency.Patch(req)
	if p.Empty() {
		abort(c, http.StatusBadRequest, errors.New("nothing to update"))
		return
	}

	a, err := s.store.UpdateAgency(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		storeError(c, err)
		return
	}

	s.publishChange(c, events.AgencyUpdated, a)
	c.IndentedJSON(http.StatusOK, agency.NewRecord(*a))
}

func (s *Server) markDone(c *gin.Context) {
	var req types.DoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	date := s.now().Format(agency.DateLayout)
	if req.Date != "" {
		d, err := normalizeDate(req.Date)
		if err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}
		date = d
	}

	a, err := s.store.AppendService(c.Request.Context(), c.Param("id"), agency.ServiceReport{
		No:          strings.TrimSpace(req.ServiceReportNo),
		Date:        date,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		storeError(c, err)
		return
	}

	s.publishChange(c, events.AgencyDone, a)
	c.IndentedJSON(http.StatusOK, agency.NewRecord(*a))
}

func (s *Server) deleteAgency(c *gin.Context) {
	id := c.Param("id")
	if err := s.store.DeleteAgency(c.Request.Context(), id); err != nil {
		storeError(c, err)
		return
	}

	s.publishChange(c, events.AgencyDeleted, &agency.Agency{ID: id})
	c.Status(http.StatusNoContent)
}

func (s *Server) publishChange(c *gin.Context, name string, a *agency.Agency) {
	ev := events.AgencyChangedEvent{
		ID:       a.ID,
		RouteNo:  a.RouteNo,
		AgencyNo: a.AgencyNo,
		Person:   a.Person,
		Ts:       s.now().Unix(),
	}
	if sess, ok := sessionFrom(c); ok {
		ev.By = sess.Email
	}
	logrus.WithFields(logrus.Fields{"event": name, "id": a.ID, "by": ev.By}).Info("agency changed")
	s.hub.Publish(name, ev)
}
