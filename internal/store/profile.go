package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/victis/victis-vision/internal/detector"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Profile is a named detector tuning set.
type Profile struct {
	ID          string
	Name        string
	Description string
	Config      detector.Config
	Draw        detector.DrawOptions
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProfileRepository provides CRUD operations for profiles.
type ProfileRepository struct {
	db *sql.DB
}

// Profiles returns the profile repository for this store.
func (s *Store) Profiles() *ProfileRepository {
	return &ProfileRepository{db: s.db}
}

const profileColumns = `id, name, description, config, draw, created_at, updated_at`

// Create inserts a new profile. The config must be valid.
func (r *ProfileRepository) Create(p *Profile) error {
	cfg, draw, err := encodeProfile(p)
	if err != nil {
		return err
	}

	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err = r.db.Exec(
		`INSERT INTO profiles (`+profileColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, cfg, draw, p.CreatedAt, p.UpdatedAt,
	)
	return mapConstraint(err)
}

// GetByID retrieves a profile by its ID.
func (r *ProfileRepository) GetByID(id string) (*Profile, error) {
	return scanProfile(r.db.QueryRow(
		`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id,
	))
}

// GetByName retrieves a profile by its name.
func (r *ProfileRepository) GetByName(name string) (*Profile, error) {
	return scanProfile(r.db.QueryRow(
		`SELECT `+profileColumns+` FROM profiles WHERE name = ?`, name,
	))
}

// List retrieves all profiles ordered by name.
func (r *ProfileRepository) List() ([]*Profile, error) {
	rows, err := r.db.Query(`SELECT ` + profileColumns + ` FROM profiles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return profiles, nil
}

// Update replaces name, description, config and draw options of an
// existing profile.
func (r *ProfileRepository) Update(p *Profile) error {
	cfg, draw, err := encodeProfile(p)
	if err != nil {
		return err
	}

	p.UpdatedAt = time.Now()

	result, err := r.db.Exec(
		`UPDATE profiles SET name = ?, description = ?, config = ?, draw = ?, updated_at = ?
		 WHERE id = ?`,
		p.Name, p.Description, cfg, draw, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return mapConstraint(err)
	}

	return expectRow(result)
}

// Delete removes a profile by its ID.
func (r *ProfileRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectRow(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	p := &Profile{}
	var cfg, draw string

	err := row.Scan(&p.ID, &p.Name, &p.Description, &cfg, &draw, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	// Start from defaults so profiles saved before a field existed still
	// decode to a usable config.
	p.Config = detector.DefaultConfig()
	if err := json.Unmarshal([]byte(cfg), &p.Config); err != nil {
		return nil, fmt.Errorf("decode profile %s config: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(draw), &p.Draw); err != nil {
		return nil, fmt.Errorf("decode profile %s draw options: %w", p.ID, err)
	}
	return p, nil
}

func encodeProfile(p *Profile) (string, string, error) {
	if strings.TrimSpace(p.Name) == "" {
		return "", "", fmt.Errorf("%w: profile name is required", detector.ErrInvalidInput)
	}
	if err := p.Config.Validate(); err != nil {
		return "", "", err
	}

	cfg, err := json.Marshal(p.Config)
	if err != nil {
		return "", "", fmt.Errorf("encode profile config: %w", err)
	}
	draw, err := json.Marshal(p.Draw)
	if err != nil {
		return "", "", fmt.Errorf("encode profile draw options: %w", err)
	}
	return string(cfg), string(draw), nil
}

func expectRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// mapConstraint turns SQLite unique violations into ErrConflict.
func mapConstraint(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
