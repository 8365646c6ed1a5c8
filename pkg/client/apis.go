package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"github.com/agencycal/calib/pkg/agency"
	"github.com/agencycal/calib/pkg/auth"
	"github.com/agencycal/calib/pkg/types"
)

func (c *Client) GetVersion(ctx context.Context) (*types.VersionResponse, error) {
	var v types.VersionResponse
	if err := c.Get(ctx, "/api/version", &v); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get version")
	}
	return &v, nil
}

// ===== Users =====

func (c *Client) Register(ctx context.Context, req types.RegisterRequest) (*auth.Session, error) {
	var s auth.Session
	if err := c.Post(ctx, "/api/users/register", req, &s); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to register %s", req.Email)
	}
	return &s, nil
}

func (c *Client) Login(ctx context.Context, req types.LoginRequest) (*types.LoginResponse, error) {
	var resp types.LoginResponse
	if err := c.Post(ctx, "/api/users/login", req, &resp); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to log in as %s", req.Email)
	}
	return &resp, nil
}

func (c *Client) Me(ctx context.Context) (*auth.Session, error) {
	var s auth.Session
	if err := c.Get(ctx, "/api/users/me", &s); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get current user")
	}
	return &s, nil
}

// ===== Agencies =====

func (c *Client) ListAgencies(ctx context.Context, opts types.ListOptions) ([]agency.Record, error) {
	q := url.Values{}
	if opts.Query != "" {
		q.Set("q", opts.Query)
	}
	if opts.Field != "" {
		q.Set("field", opts.Field)
	}
	if opts.Month != nil {
		q.Set("month", strconv.Itoa(*opts.Month))
	}
	path := "/api/agencies"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var records []agency.Record
	if err := c.Get(ctx, path, &records); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to list agencies")
	}
	return records, nil
}

// ListDue returns the agencies due this month, optionally filtered by person.
func (c *Client) ListDue(ctx context.Context, person string) ([]agency.Record, error) {
	path := "/api/agencies/due"
	if person != "" {
		path += "?" + url.Values{"q": {person}}.Encode()
	}

	var records []agency.Record
	if err := c.Get(ctx, path, &records); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to list due agencies")
	}
	return records, nil
}

func agencyPath(id string) string {
	return "/api/agencies/" + url.PathEscape(id)
}

func (c *Client) GetAgency(ctx context.Context, id string) (*agency.Record, error) {
	var r agency.Record
	if err := c.Get(ctx, agencyPath(id), &r); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get agency %s", id)
	}
	return &r, nil
}

func (c *Client) CreateAgency(ctx context.Context, req types.CreateAgencyRequest) (*agency.Record, error) {
	var r agency.Record
	if err := c.Post(ctx, "/api/agencies", req, &r); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to create agency")
	}
	return &r, nil
}

func (c *Client) UpdateAgency(ctx context.Context, id string, req types.UpdateAgencyRequest) (*agency.Record, error) {
	var r agency.Record
	if err := c.Do(ctx, http.MethodPatch, agencyPath(id), req, &r); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to update agency %s", id)
	}
	return &r, nil
}

// MarkDone appends a calibration visit to the agency's history.
func (c *Client) MarkDone(ctx context.Context, id string, req types.DoneRequest) (*agency.Record, error) {
	var r agency.Record
	if err := c.Post(ctx, agencyPath(id)+"/done", req, &r); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to mark agency %s done", id)
	}
	return &r, nil
}

func (c *Client) DeleteAgency(ctx context.Context, id string) error {
	if err := c.Do(ctx, http.MethodDelete, agencyPath(id), nil, nil); err != nil {
		return pkgerrors.Wrapf(err, "failed to delete agency %s", id)
	}
	return nil
}

// ===== Reminder =====

func (c *Client) GetReminder(ctx context.Context) (*types.ReminderStatus, error) {
	var st types.ReminderStatus
	if err := c.Get(ctx, "/api/reminder", &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get reminder")
	}
	return &st, nil
}

// SetReminder sets the reminder schedule. An empty expression disables it.
func (c *Client) SetReminder(ctx context.Context, cronExpr string) (*types.ReminderStatus, error) {
	var st types.ReminderStatus
	if err := c.Put(ctx, "/api/reminder", types.SetReminderRequest{Cron: cronExpr}, &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to set reminder")
	}
	return &st, nil
}

func (c *Client) PostponeReminder(ctx context.Context, d string) (*types.NextRunResponse, error) {
	var r types.NextRunResponse
	if err := c.Post(ctx, "/api/reminder/postpone", types.PostponeRequest{Duration: d}, &r); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to postpone reminder")
	}
	return &r, nil
}

func (c *Client) SkipReminder(ctx context.Context) (*types.NextRunResponse, error) {
	var r types.NextRunResponse
	if err := c.Post(ctx, "/api/reminder/skip", nil, &r); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to skip reminder")
	}
	return &r, nil
}
