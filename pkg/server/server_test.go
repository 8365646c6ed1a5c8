package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencycal/calib/pkg/agency"
	"github.com/agencycal/calib/pkg/auth"
	"github.com/agencycal/calib/pkg/config"
	"github.com/agencycal/calib/pkg/events"
	"github.com/agencycal/calib/pkg/store"
	"github.com/agencycal/calib/pkg/types"
	"github.com/agencycal/calib/pkg/utils/ptr"
)

var fixedNow = time.Date(2024, time.July, 15, 10, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, raw *config.RawFileConfig) *Server {
	t.Helper()
	if raw == nil {
		raw = &config.RawFileConfig{}
	}
	raw.TokenSecret = ptr.To("test-secret")
	conf := config.NewFileFromConfig(raw, "")

	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	s := New(conf, st)
	s.now = func() time.Time { return fixedNow }
	t.Cleanup(s.scheduler.Stop)
	return s
}

func do(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func registerAndLogin(t *testing.T, s *Server, email string, role auth.Role, token string) string {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/users/register", token, types.RegisterRequest{
		Name: "User " + email, Email: email, Password: "pw-" + email, Role: role.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/users/login", "", types.LoginRequest{Email: email, Password: "pw-" + email})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[types.LoginResponse](t, rec).AccessToken
}

func TestVersion(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/api/version", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[types.VersionResponse](t, rec).Version)
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t, nil)

	adminToken := registerAndLogin(t, s, "admin@example.com", auth.RoleAdmin, "")

	t.Run("me", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/users/me", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		me := decode[auth.Session](t, rec)
		assert.Equal(t, "admin@example.com", me.Email)
		assert.Equal(t, auth.RoleAdmin, me.Role)
	})

	t.Run("second admin needs an admin caller", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/api/users/register", "", types.RegisterRequest{
			Name: "Eve", Email: "eve@example.com", Password: "x", Role: "admin",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = do(t, s, http.MethodPost, "/api/users/register", adminToken, types.RegisterRequest{
			Name: "Ann", Email: "ann@example.com", Password: "x", Role: "admin",
		})
		assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})

	t.Run("duplicate email", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/api/users/register", "", types.RegisterRequest{
			Name: "Dup", Email: "Admin@Example.com", Password: "x",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("invalid email", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/api/users/register", "", types.RegisterRequest{Name: "X", Email: "nope", Password: "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decode[map[string]string](t, rec), "error")
	})

	t.Run("password longer than bcrypt accepts", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/api/users/register", "", types.RegisterRequest{
			Name: "Long", Email: "long@example.com", Password: strings.Repeat("p", 73),
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(t, s, http.MethodPost, "/api/users/register", "", types.RegisterRequest{
			Name: "Long", Email: "long@example.com", Password: strings.Repeat("é", 40),
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(t, s, http.MethodPost, "/api/users/register", "", types.RegisterRequest{
			Name: "Long", Email: "long@example.com", Password: strings.Repeat("p", 72),
		})
		assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/api/users/login", "", types.LoginRequest{Email: "admin@example.com", Password: "bad"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/api/users/login", "", types.LoginRequest{Email: "ghost@example.com", Password: "bad"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("role must match", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/api/users/login", "", types.LoginRequest{
			Email: "admin@example.com", Password: "pw-admin@example.com", Role: "staff",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = do(t, s, http.MethodPost, "/api/users/login", "", types.LoginRequest{
			Email: "admin@example.com", Password: "pw-admin@example.com", Role: "admin",
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRegistrationDisabled(t *testing.T) {
	s := newTestServer(t, &config.RawFileConfig{AllowRegistration: ptr.To(false)})

	// Bootstrapping the first admin is always possible.
	adminToken := registerAndLogin(t, s, "admin@example.com", auth.RoleAdmin, "")

	rec := do(t, s, http.MethodPost, "/api/users/register", "", types.RegisterRequest{Name: "S", Email: "s@example.com", Password: "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/users/register", adminToken, types.RegisterRequest{Name: "S", Email: "s@example.com", Password: "x"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestConcurrentAdminBootstrap(t *testing.T) {
	s := newTestServer(t, &config.RawFileConfig{AllowRegistration: ptr.To(false)})

	const n = 5
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := do(t, s, http.MethodPost, "/api/users/register", "", types.RegisterRequest{
				Name: "Admin", Email: fmt.Sprintf("admin%d@example.com", i), Password: "x", Role: "admin",
			})
			codes[i] = rec.Code
		}()
	}
	wg.Wait()

	created, forbidden := 0, 0
	for _, code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusForbidden:
			forbidden++
		}
	}
	assert.Equal(t, 1, created, "codes: %v", codes)
	assert.Equal(t, n-1, forbidden, "codes: %v", codes)

	// Late staff sign-ups are refused once the admin exists.
	rec := do(t, s, http.MethodPost, "/api/users/register", "", types.RegisterRequest{Name: "S", Email: "s@example.com", Password: "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, nil)
	for _, path := range []string{"/api/agencies", "/api/agencies/due", "/api/reminder", "/api/users/me"} {
		rec := do(t, s, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	rec := do(t, s, http.MethodGet, "/api/agencies", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func createAgency(t *testing.T, s *Server, token string, req types.CreateAgencyRequest) agency.Record {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/agencies", token, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[agency.Record](t, rec)
}

func TestAgencyLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	adminToken := registerAndLogin(t, s, "admin@example.com", auth.RoleAdmin, "")
	staffToken := registerAndLogin(t, s, "staff@example.com", auth.RoleStaff, "")

	t.Run("validation", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/api/agencies", staffToken, types.CreateAgencyRequest{RouteNo: "R", AgencyNo: "AG1", Description: "ok"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(t, s, http.MethodPost, "/api/agencies", staffToken, types.CreateAgencyRequest{
			RouteNo: "R1", AgencyNo: "AG1", Description: "ok", CalibrationDates: []string{"soon"},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	created := createAgency(t, s, staffToken, types.CreateAgencyRequest{
		Person: "Ravi", RouteNo: "R12", AgencyNo: "AG-7", Description: "Dairy",
		CalibrationDates: []string{"2023-06-01", "2024-01-10"},
	})
	require.NotNil(t, created.DueDate)
	assert.Equal(t, "2024-07-10", created.DueDate.Format(agency.DateLayout))
	assert.Equal(t, []string{"2024-01-10", "2023-06-01"}, created.CalibrationDates)

	t.Run("get", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/agencies/"+created.ID, staffToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "R12", decode[agency.Record](t, rec).RouteNo)

		rec = do(t, s, http.MethodGet, "/api/agencies/missing", staffToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("patch", func(t *testing.T) {
		rec := do(t, s, http.MethodPatch, "/api/agencies/"+created.ID, staffToken, map[string]string{"person": "Meena"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		got := decode[agency.Record](t, rec)
		assert.Equal(t, "Meena", got.Person)
		assert.Len(t, got.CalibrationDates, 2)

		rec = do(t, s, http.MethodPatch, "/api/agencies/"+created.ID, staffToken, map[string]string{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(t, s, http.MethodPatch, "/api/agencies/"+created.ID, staffToken, map[string]string{"routeNo": "X"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("done twice appends", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/api/agencies/"+created.ID+"/done", staffToken, types.DoneRequest{ServiceReportNo: "SR-9", Date: "2024-07-01"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		rec = do(t, s, http.MethodPost, "/api/agencies/"+created.ID+"/done", staffToken, types.DoneRequest{ServiceReportNo: "SR-10"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		got := decode[agency.Record](t, rec)
		assert.Equal(t, []string{"2024-07-15", "2024-07-01", "2024-01-10", "2023-06-01"}, got.CalibrationDates)
		assert.Equal(t, []string{"SR-9", "SR-10"}, got.ServiceReportNo)
		assert.Equal(t, "2025-01-15", got.DueDate.Format(agency.DateLayout))

		rec = do(t, s, http.MethodPost, "/api/agencies/"+created.ID+"/done", staffToken, types.DoneRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("delete needs admin", func(t *testing.T) {
		rec := do(t, s, http.MethodDelete, "/api/agencies/"+created.ID, staffToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = do(t, s, http.MethodDelete, "/api/agencies/"+created.ID, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = do(t, s, http.MethodDelete, "/api/agencies/"+created.ID, adminToken, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = do(t, s, http.MethodDelete, "/api/agencies/"+created.ID, adminToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListFilters(t *testing.T) {
	s := newTestServer(t, nil)
	token := registerAndLogin(t, s, "staff@example.com", auth.RoleStaff, "")

	createAgency(t, s, token, types.CreateAgencyRequest{Person: "Ravi", RouteNo: "North-1", AgencyNo: "A1", Description: "d1", CalibrationDates: []string{"2024-01-20"}})
	createAgency(t, s, token, types.CreateAgencyRequest{Person: "Meena", RouteNo: "South-2", AgencyNo: "A2", Description: "d2", CalibrationDates: []string{"2024-03-02"}})
	createAgency(t, s, token, types.CreateAgencyRequest{Person: "Ravi K", RouteNo: "North-3", AgencyNo: "A3", Description: "d3"})

	list := func(query string) []agency.Record {
		rec := do(t, s, http.MethodGet, "/api/agencies"+query, token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decode[[]agency.Record](t, rec)
	}

	assert.Len(t, list(""), 3)
	assert.Len(t, list("?q=north"), 2)
	assert.Len(t, list("?q=ravi&field=person"), 2)
	assert.Len(t, list("?q=ravi"), 0, "default field is routeNo")

	july := list("?month=6")
	require.Len(t, july, 1)
	assert.Equal(t, "North-1", july[0].RouteNo)

	for _, bad := range []string{"?month=12", "?month=-1", "?month=jan", "?field=agencyNo"} {
		rec := do(t, s, http.MethodGet, "/api/agencies"+bad, token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}

	t.Run("due this month", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/agencies/due", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		due := decode[[]agency.Record](t, rec)
		require.Len(t, due, 1)
		assert.Equal(t, "North-1", due[0].RouteNo)

		rec = do(t, s, http.MethodGet, "/api/agencies/due?q=meena", token, nil)
		assert.Empty(t, decode[[]agency.Record](t, rec))
	})
}

func TestMutationsPublishEvents(t *testing.T) {
	s := newTestServer(t, nil)
	token := registerAndLogin(t, s, "staff@example.com", auth.RoleStaff, "")

	ch := s.Events().Subscribe()
	defer s.Events().Unsubscribe(ch)

	created := createAgency(t, s, token, types.CreateAgencyRequest{RouteNo: "R1", AgencyNo: "A1", Description: "d1"})

	ev := <-ch
	assert.Equal(t, events.AgencyCreated, ev.Name)
	payload, err := events.DecodeAs[events.AgencyChangedEvent](ev)
	require.NoError(t, err)
	assert.Equal(t, created.ID, payload.ID)
	assert.Equal(t, "staff@example.com", payload.By)
}

func TestRemindPublishesDueAgencies(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()

	require.NoError(t, s.store.CreateAgency(ctx, &agency.Agency{RouteNo: "R1", AgencyNo: "A1", CalibrationDates: []string{"2024-01-03"}}))
	require.NoError(t, s.store.CreateAgency(ctx, &agency.Agency{RouteNo: "R2", AgencyNo: "A2", CalibrationDates: []string{"2024-02-03"}}))

	ch := s.Events().Subscribe()
	defer s.Events().Unsubscribe(ch)

	require.NoError(t, s.remind(ctx))

	ev := <-ch
	assert.Equal(t, events.AgencyDue, ev.Name)
	due, err := events.DecodeAs[events.AgencyDueEvent](ev)
	require.NoError(t, err)
	assert.Equal(t, "R1", due.RouteNo)
	assert.Equal(t, "2024-07-03", due.DueDate)
	assert.False(t, due.Overdue)
	assert.Empty(t, ch, "only one agency is due")
}

func TestReminderEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	adminToken := registerAndLogin(t, s, "admin@example.com", auth.RoleAdmin, "")
	staffToken := registerAndLogin(t, s, "staff@example.com", auth.RoleStaff, "")

	rec := do(t, s, http.MethodGet, "/api/reminder", staffToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[types.ReminderStatus](t, rec).Enabled)

	rec = do(t, s, http.MethodPut, "/api/reminder", staffToken, types.SetReminderRequest{Cron: "0 9 1 * *"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, s, http.MethodPut, "/api/reminder", adminToken, types.SetReminderRequest{Cron: "not a cron"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPut, "/api/reminder", adminToken, types.SetReminderRequest{Cron: "0 9 1 * *"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decode[types.ReminderStatus](t, rec)
	assert.True(t, st.Enabled)
	assert.Equal(t, "0 9 1 * *", s.conf.ReminderCron())
	require.Len(t, st.NextRuns, 3)
	for _, r := range st.NextRuns {
		assert.Equal(t, 1, r.Day())
		assert.Equal(t, 9, r.Hour())
	}

	rec = do(t, s, http.MethodPost, "/api/reminder/postpone", adminToken, types.PostponeRequest{Duration: "soon"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/reminder/skip", adminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPut, "/api/reminder", adminToken, types.SetReminderRequest{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[types.ReminderStatus](t, rec).Enabled)

	rec = do(t, s, http.MethodPost, "/api/reminder/skip", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReminderWhileSchedulerRunning(t *testing.T) {
	s := newTestServer(t, nil)
	s.scheduler.Start()
	adminToken := registerAndLogin(t, s, "admin@example.com", auth.RoleAdmin, "")

	rec := do(t, s, http.MethodPut, "/api/reminder", adminToken, types.SetReminderRequest{Cron: "0 9 1 * *"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decode[types.ReminderStatus](t, rec)
	require.Len(t, st.NextRuns, 3)
	assert.Equal(t, 1, st.NextRuns[0].Day())
	assert.Equal(t, 9, st.NextRuns[0].Hour())

	rec = do(t, s, http.MethodPost, "/api/reminder/skip", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[types.NextRunResponse](t, rec).NextRun.Equal(st.NextRuns[1]))

	rec = do(t, s, http.MethodPut, "/api/reminder", adminToken, types.SetReminderRequest{Cron: "0 10 2 * *"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st = decode[types.ReminderStatus](t, rec)
	require.Len(t, st.NextRuns, 3)
	assert.Equal(t, 2, st.NextRuns[0].Day())
	assert.Equal(t, 10, st.NextRuns[0].Hour())

	rec = do(t, s, http.MethodPost, "/api/reminder/postpone", adminToken, types.PostponeRequest{Duration: "1h"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[types.NextRunResponse](t, rec).NextRun.Equal(st.NextRuns[0].Add(time.Hour)))

	rec = do(t, s, http.MethodPut, "/api/reminder", adminToken, types.SetReminderRequest{})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, s, http.MethodGet, "/api/reminder", adminToken, nil)
	assert.Empty(t, decode[types.ReminderStatus](t, rec).NextRuns)
}

func TestStreamEndsAfterHubClosed(t *testing.T) {
	s := newTestServer(t, nil)
	token := registerAndLogin(t, s, "admin@example.com", auth.RoleAdmin, "")

	s.hub.Close()
	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- do(t, s, http.MethodGet, "/api/events", token, nil)
	}()
	select {
	case rec := <-done:
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), ": connected")
	case <-time.After(2 * time.Second):
		t.Fatal("event stream opened after shutdown did not end")
	}
}
