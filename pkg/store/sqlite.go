package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/agencycal/calib/pkg/agency"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE COLLATE NOCASE,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS agencies (
	id TEXT PRIMARY KEY,
	person TEXT NOT NULL DEFAULT '',
	route_no TEXT NOT NULL,
	agency_no TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	calibration_dates_json TEXT NOT NULL DEFAULT '[]',
	service_report_no_json TEXT NOT NULL DEFAULT '[]',
	service_reports_json TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agencies_route_no ON agencies(route_no);
CREATE INDEX IF NOT EXISTS idx_agencies_created_at ON agencies(created_at);
`

var _ Store = &SQLite{}

// SQLite is a Store backed by a single SQLite database file.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens (creating if needed) the database at dbPath and migrates the
// schema. Use ":memory:" for a throwaway database.
func NewSQLite(dbPath string) (*SQLite, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to create directory for %s", dbPath)
		}
		dsn = "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open database %s", dbPath)
	}
	// One writer at a time; also keeps a :memory: database alive and shared.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, now: time.Now}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, pkgerrors.Wrap(err, "failed to initialize schema")
	}

	logrus.WithField("path", dbPath).Debug("database opened")
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) CreateUser(ctx context.Context, u *User) error {
	s.fillUser(u)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.CreatedAt)
	return userInsertError(err, u)
}

// CreateUserIfNoRole inserts u in the same statement that checks no user
// with role exists yet, so concurrent callers cannot both pass the check.
func (s *SQLite) CreateUserIfNoRole(ctx context.Context, u *User, role string) error {
	s.fillUser(u)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, created_at)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM users WHERE role = ?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.CreatedAt, role)
	if err := userInsertError(err, u); err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to insert user %s", u.Email)
	}
	if n == 0 {
		return pkgerrors.Wrapf(ErrRoleExists, "%s user", role)
	}
	return nil
}

func (s *SQLite) fillUser(u *User) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
}

func userInsertError(err error, u *User) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return pkgerrors.Wrapf(ErrDuplicate, "user %s", u.Email)
	}
	return pkgerrors.Wrapf(err, "failed to insert user %s", u.Email)
}

func (s *SQLite) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, role, created_at FROM users WHERE email = ?`, email).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, pkgerrors.Wrapf(ErrNotFound, "user %s", email)
		}
		return nil, pkgerrors.Wrapf(err, "failed to query user %s", email)
	}
	return &u, nil
}

const agencyColumns = `id, person, route_no, agency_no, description,
	calibration_dates_json, service_report_no_json, service_reports_json, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgency(row rowScanner) (*agency.Agency, error) {
	var (
		a                                    agency.Agency
		datesJSON, reportNoJSON, reportsJSON string
	)
	if err := row.Scan(&a.ID, &a.Person, &a.RouteNo, &a.AgencyNo, &a.Description,
		&datesJSON, &reportNoJSON, &reportsJSON, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(datesJSON), &a.CalibrationDates); err != nil {
		return nil, pkgerrors.Wrapf(err, "agency %s: bad calibration dates", a.ID)
	}
	if err := json.Unmarshal([]byte(reportNoJSON), &a.ServiceReportNo); err != nil {
		return nil, pkgerrors.Wrapf(err, "agency %s: bad service report numbers", a.ID)
	}
	if err := json.Unmarshal([]byte(reportsJSON), &a.ServiceReports); err != nil {
		return nil, pkgerrors.Wrapf(err, "agency %s: bad service reports", a.ID)
	}
	if a.CalibrationDates == nil {
		a.CalibrationDates = []string{}
	}
	if a.ServiceReportNo == nil {
		a.ServiceReportNo = []string{}
	}
	return &a, nil
}

func (s *SQLite) ListAgencies(ctx context.Context) ([]agency.Agency, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+agencyColumns+` FROM agencies ORDER BY created_at, id`)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list agencies")
	}
	defer rows.Close()

	agencies := make([]agency.Agency, 0)
	for rows.Next() {
		a, err := scanAgency(rows)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "failed to scan agency")
		}
		agencies = append(agencies, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to iterate agencies")
	}
	return agencies, nil
}

func (s *SQLite) GetAgency(ctx context.Context, id string) (*agency.Agency, error) {
	return getAgency(ctx, s.db, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getAgency(ctx context.Context, q queryer, id string) (*agency.Agency, error) {
	a, err := scanAgency(q.QueryRowContext(ctx, `SELECT `+agencyColumns+` FROM agencies WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, pkgerrors.Wrapf(ErrNotFound, "agency %s", id)
		}
		return nil, pkgerrors.Wrapf(err, "failed to get agency %s", id)
	}
	return a, nil
}

func marshalHistory(a *agency.Agency) (dates, reportNo, reports string, err error) {
	if a.CalibrationDates == nil {
		a.CalibrationDates = []string{}
	}
	if a.ServiceReportNo == nil {
		a.ServiceReportNo = []string{}
	}
	if a.ServiceReports == nil {
		a.ServiceReports = []agency.ServiceReport{}
	}
	b1, err := json.Marshal(a.CalibrationDates)
	if err != nil {
		return "", "", "", err
	}
	b2, err := json.Marshal(a.ServiceReportNo)
	if err != nil {
		return "", "", "", err
	}
	b3, err := json.Marshal(a.ServiceReports)
	if err != nil {
		return "", "", "", err
	}
	return string(b1), string(b2), string(b3), nil
}

func (s *SQLite) CreateAgency(ctx context.Context, a *agency.Agency) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := s.now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	dates, reportNo, reports, err := marshalHistory(a)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to encode agency history")
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO agencies (`+agencyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Person, a.RouteNo, a.AgencyNo, a.Description, dates, reportNo, reports, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return pkgerrors.Wrapf(ErrDuplicate, "agency %s", a.ID)
		}
		return pkgerrors.Wrapf(err, "failed to insert agency %s", a.ID)
	}
	return nil
}

func (s *SQLite) UpdateAgency(ctx context.Context, id string, p agency.Patch) (*agency.Agency, error) {
	var updated *agency.Agency
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		a, err := getAgency(ctx, tx, id)
		if err != nil {
			return err
		}
		p.Apply(a)
		a.UpdatedAt = s.now().UTC()

		_, err = tx.ExecContext(ctx,
			`UPDATE agencies SET person = ?, route_no = ?, agency_no = ?, description = ?, updated_at = ? WHERE id = ?`,
			a.Person, a.RouteNo, a.AgencyNo, a.Description, a.UpdatedAt, id)
		if err != nil {
			return pkgerrors.Wrapf(err, "failed to update agency %s", id)
		}
		updated = a
		return nil
	})
	return updated, err
}

func (s *SQLite) AppendService(ctx context.Context, id string, r agency.ServiceReport) (*agency.Agency, error) {
	var updated *agency.Agency
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		a, err := getAgency(ctx, tx, id)
		if err != nil {
			return err
		}
		a.CalibrationDates = append(a.CalibrationDates, r.Date)
		a.ServiceReportNo = append(a.ServiceReportNo, r.No)
		a.ServiceReports = append(a.ServiceReports, r)
		a.UpdatedAt = s.now().UTC()

		dates, reportNo, reports, err := marshalHistory(a)
		if err != nil {
			return pkgerrors.Wrap(err, "failed to encode agency history")
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE agencies SET calibration_dates_json = ?, service_report_no_json = ?, service_reports_json = ?, updated_at = ? WHERE id = ?`,
			dates, reportNo, reports, a.UpdatedAt, id)
		if err != nil {
			return pkgerrors.Wrapf(err, "failed to append service to agency %s", id)
		}
		updated = a
		return nil
	})
	return updated, err
}

func (s *SQLite) DeleteAgency(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agencies WHERE id = ?`, id)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to delete agency %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to delete agency %s", id)
	}
	if n == 0 {
		return pkgerrors.Wrapf(ErrNotFound, "agency %s", id)
	}
	return nil
}

func (s *SQLite) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logrus.WithError(rbErr).Warn("failed to roll back transaction")
		}
		return err
	}
	return pkgerrors.Wrap(tx.Commit(), "failed to commit transaction")
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
