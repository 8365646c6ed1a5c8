package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/agencycal/calib/pkg/agency"
	"github.com/agencycal/calib/pkg/events"
	"github.com/agencycal/calib/pkg/types"
)

const upcomingRuns = 3

// remind publishes an agency.due event for every agency due this month.
func (s *Server) remind(ctx context.Context) error {
	all, err := s.store.ListAgencies(ctx)
	if err != nil {
		return err
	}
	now := s.now()
	due := agency.FilterDueThisMonth(agency.SortByMostRecentCalibration(all), now)
	for _, r := range due {
		s.hub.Publish(events.AgencyDue, events.AgencyDueEvent{
			ID:       r.ID,
			RouteNo:  r.RouteNo,
			AgencyNo: r.AgencyNo,
			Person:   r.Person,
			DueDate:  r.DueDate.Format(agency.DateLayout),
			Overdue:  r.IsOverdue(now),
			Ts:       now.Unix(),
		})
	}
	logrus.WithField("due", len(due)).Info("reminder ran")
	return nil
}

func (s *Server) precheck(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Server) onUpcoming(data any) {
	at, _ := data.(time.Time)
	logrus.Infof("reminder runs at %s", at.Format(time.DateTime))
	s.hub.Publish(events.ReminderUpcoming, events.ReminderUpcomingEvent{At: at.Unix(), Ts: s.now().Unix()})
}

func (s *Server) onError(data any) {
	err, _ := data.(error)
	if err == nil {
		return
	}
	logrus.WithError(err).Error("reminder failed")
	s.hub.Publish(events.ReminderFailed, events.ReminderFailedEvent{Error: err.Error(), Ts: s.now().Unix()})
}

// applyReminderConfig loads the schedule from the config.
func (s *Server) applyReminderConfig() {
	expr := s.conf.ReminderCron()
	if expr == "" {
		s.scheduler.Unschedule()
		return
	}
	if err := s.scheduler.Schedule(expr); err != nil {
		logrus.WithError(err).Error("ignoring reminder schedule from config")
		s.scheduler.Unschedule()
	}
}

func (s *Server) reminderStatus() types.ReminderStatus {
	expr := s.conf.ReminderCron()
	st := types.ReminderStatus{Cron: expr, NextRuns: []time.Time{}}
	if expr == "" {
		return st
	}
	st.Enabled = true
	if _, running := s.scheduler.Status(); running {
		st.NextRuns = s.scheduler.Upcoming(upcomingRuns)
		return st
	}
	// Not started (tests, embedding): compute from the expression alone.
	if sh, err := ParseCron(expr); err == nil {
		st.NextRuns = NextRuns(sh, s.now(), upcomingRuns)
	}
	return st
}

func (s *Server) getReminder(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, s.reminderStatus())
}

func (s *Server) setReminder(c *gin.Context) {
	var req types.SetReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	action, msg := "disable", "reminder disabled"
	if req.Cron != "" {
		sh, err := ParseCron(req.Cron)
		if err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}
		action = "schedule"
		msg = fmt.Sprintf("reminder scheduled at %s", sh.Next(s.now()).Format("Jan _2 15:04"))
	}

	s.conf.SetReminderCron(req.Cron)
	if err := s.conf.Save(); err != nil {
		logrus.WithError(err).Error("failed to save config")
		abort(c, http.StatusInternalServerError, fmt.Errorf("failed to save config: %w", err))
		return
	}
	s.applyReminderConfig()

	logrus.WithField("cron", req.Cron).Info(msg)
	s.hub.Publish(events.ReminderChanged, events.ReminderChangedEvent{Action: action, Message: msg, Ts: s.now().Unix()})
	c.IndentedJSON(http.StatusOK, s.reminderStatus())
}

func (s *Server) postponeReminder(c *gin.Context) {
	var req types.PostponeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	d, err := time.ParseDuration(req.Duration)
	if err != nil {
		abort(c, http.StatusBadRequest, fmt.Errorf("invalid duration %q: %w", req.Duration, err))
		return
	}

	at, err := s.scheduler.Postpone(d)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	msg := fmt.Sprintf("reminder postponed for %s", d)
	logrus.Info(msg)
	s.hub.Publish(events.ReminderChanged, events.ReminderChangedEvent{Action: "postpone", Message: msg, Ts: s.now().Unix()})
	c.IndentedJSON(http.StatusOK, types.NextRunResponse{NextRun: at})
}

func (s *Server) skipReminder(c *gin.Context) {
	at, err := s.scheduler.Skip()
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	msg := "next reminder skipped"
	logrus.Info(msg)
	s.hub.Publish(events.ReminderChanged, events.ReminderChangedEvent{Action: "skip", Message: msg, Ts: s.now().Unix()})
	c.IndentedJSON(http.StatusOK, types.NextRunResponse{NextRun: at})
}
