package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/devhub/devhub-go/faults"

	_ "modernc.org/sqlite"
)

var directorySchema = []string{
	`CREATE TABLE teams (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		description   TEXT NOT NULL DEFAULT '',
		slack_channel TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE owners (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		email        TEXT NOT NULL DEFAULT '',
		slack_handle TEXT NOT NULL DEFAULT '',
		team_id      TEXT NOT NULL REFERENCES teams(id),
		is_active    INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE owner_services (
		owner_id TEXT NOT NULL REFERENCES owners(id),
		position INTEGER NOT NULL,
		service  TEXT NOT NULL,
		PRIMARY KEY (owner_id, position)
	)`,
	`CREATE INDEX idx_owner_services_service ON owner_services(service)`,
}

const findOwnerQuery = `
SELECT o.id, o.name, o.email, o.slack_handle, o.team_id, o.is_active,
       t.name, t.description, t.slack_channel
FROM owners o
JOIN teams t ON t.id = o.team_id
WHERE EXISTS (
	SELECT 1 FROM owner_services s
	WHERE s.owner_id = o.id AND instr(lower(s.service), ?) > 0
)
ORDER BY o.is_active DESC, o.name ASC
LIMIT 1`

// OwnerLookup is the outcome of one owner lookup. Owner and Team are nil
// when nothing matched.
type OwnerLookup struct {
	Found     bool   `json:"found"`
	Owner     *Owner `json:"owner"`
	Team      *Team  `json:"team"`
	ElapsedMS int64  `json:"latency_ms"`
}

// Directory is the simulated team directory backend, stored in an in-memory
// SQLite database. It never fails on its own; its only fault is serving a
// stale active flag.
type Directory struct {
	db      *sql.DB
	profile faults.DirectoryProfile
	inj     *faults.Injector
	logger  *slog.Logger

	teamCount  int
	ownerCount int
}

// NewDirectory loads fixture into a fresh in-memory database.
func NewDirectory(ctx context.Context, fixture DirectoryFixture, profile faults.DirectoryProfile, inj *faults.Injector, opts ...Option) (*Directory, error) {
	if inj == nil {
		inj = faults.NewInjector()
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open directory database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if err := loadDirectory(ctx, db, fixture); err != nil {
		db.Close()
		return nil, err
	}

	o := buildOptions(opts)
	return &Directory{
		db:         db,
		profile:    profile,
		inj:        inj,
		logger:     o.logger,
		teamCount:  len(fixture.Teams),
		ownerCount: len(fixture.Owners),
	}, nil
}

func loadDirectory(ctx context.Context, db *sql.DB, fixture DirectoryFixture) error {
	for _, stmt := range directorySchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create directory schema: %w", err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin directory load: %w", err)
	}
	defer tx.Rollback()

	for _, team := range fixture.Teams {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO teams (id, name, description, slack_channel) VALUES (?, ?, ?, ?)`,
			team.ID, team.Name, team.Description, team.SlackChannel); err != nil {
			return fmt.Errorf("insert team %s: %w", team.ID, err)
		}
	}

	for _, owner := range fixture.Owners {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO owners (id, name, email, slack_handle, team_id, is_active) VALUES (?, ?, ?, ?, ?, ?)`,
			owner.ID, owner.Name, owner.Email, owner.SlackHandle, owner.TeamID, owner.IsActive); err != nil {
			return fmt.Errorf("insert owner %s: %w", owner.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM owner_services WHERE owner_id = ?`, owner.ID); err != nil {
			return fmt.Errorf("reset services of %s: %w", owner.ID, err)
		}
		for pos, service := range owner.Services {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO owner_services (owner_id, position, service) VALUES (?, ?, ?)`,
				owner.ID, pos, service); err != nil {
				return fmt.Errorf("insert service %s of %s: %w", service, owner.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit directory load: %w", err)
	}
	return nil
}

// WithProfile returns a view of the directory that shares its database but
// applies a different fault profile.
func (d *Directory) WithProfile(profile faults.DirectoryProfile) *Directory {
	c := *d
	c.profile = profile
	return &c
}

// Profile returns the active fault profile.
func (d *Directory) Profile() faults.DirectoryProfile {
	return d.profile
}

// Close releases the database. Views created by WithProfile share it.
func (d *Directory) Close() error {
	return d.db.Close()
}

// TeamCount returns the number of loaded teams.
func (d *Directory) TeamCount() int { return d.teamCount }

// OwnerCount returns the number of loaded owners.
func (d *Directory) OwnerCount() int { return d.ownerCount }

// FindOwner returns the best owner of any service whose name contains topic,
// ignoring case. Active owners win over inactive ones, then names sort
// alphabetically. An empty topic is a substring of every service, so it
// returns the first owner in that order.
func (d *Directory) FindOwner(ctx context.Context, topic string) (*OwnerLookup, error) {
	start := d.inj.Now()
	d.inj.Sleep(d.inj.Latency(d.profile.Latency))

	needle := strings.ToLower(strings.TrimSpace(topic))
	var (
		owner  Owner
		team   Team
		active int64
	)
	err := d.db.QueryRowContext(ctx, findOwnerQuery, needle).Scan(
		&owner.ID, &owner.Name, &owner.Email, &owner.SlackHandle, &owner.TeamID, &active,
		&team.Name, &team.Description, &team.SlackChannel,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return &OwnerLookup{ElapsedMS: d.inj.ElapsedMS(start)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find owner of %q: %w", topic, err)
	}
	owner.IsActive = active != 0
	team.ID = owner.TeamID

	owner.Services, err = d.ownerServices(ctx, owner.ID)
	if err != nil {
		return nil, err
	}

	if d.inj.Fire(d.profile.StaleRate) {
		d.logger.DebugContext(ctx, "directory serving stale owner", "owner", owner.ID)
		owner.IsActive = !owner.IsActive
	}

	return &OwnerLookup{
		Found:     true,
		Owner:     &owner,
		Team:      &team,
		ElapsedMS: d.inj.ElapsedMS(start),
	}, nil
}

func (d *Directory) ownerServices(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT service FROM owner_services WHERE owner_id = ? ORDER BY position`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list services of %s: %w", ownerID, err)
	}
	defer rows.Close()

	services := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan service of %s: %w", ownerID, err)
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

// Teams lists every team ordered by name. No faults apply.
func (d *Directory) Teams(ctx context.Context) ([]Team, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, name, description, slack_channel FROM teams ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var teams []Team
	for rows.Next() {
		var t Team
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.SlackChannel); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// TeamOwners lists the owners of a team ordered by name. No faults apply.
func (d *Directory) TeamOwners(ctx context.Context, teamID string) ([]Owner, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, name, email, slack_handle, team_id, is_active FROM owners WHERE team_id = ? ORDER BY name`,
		teamID)
	if err != nil {
		return nil, fmt.Errorf("list owners of %s: %w", teamID, err)
	}

	var owners []Owner
	for rows.Next() {
		var (
			o      Owner
			active int64
		)
		if err := rows.Scan(&o.ID, &o.Name, &o.Email, &o.SlackHandle, &o.TeamID, &active); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		o.IsActive = active != 0
		owners = append(owners, o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// The single connection must be free before the nested queries.
	rows.Close()

	for i := range owners {
		services, err := d.ownerServices(ctx, owners[i].ID)
		if err != nil {
			return nil, err
		}
		owners[i].Services = services
	}
	return owners, nil
}
