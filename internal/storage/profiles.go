package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/profilestack/internal/profile"
)

// collection describes how one entry kind maps onto its table.
type collection struct {
	table   string
	columns []string // data columns, excluding id, profile_id, seq
	values  func(profile.Entry) ([]any, error)
	scan    func(id string, scan func(dest ...any) error) (profile.Entry, error)
}

var collections = map[profile.Kind]collection{
	profile.KindEducation: {
		table:   "education",
		columns: []string{"institution", "degree", "field_of_study", "start_date", "end_date", "grade", "description"},
		values: func(e profile.Entry) ([]any, error) {
			v := e.(profile.Education)
			return []any{v.Institution, v.Degree, v.FieldOfStudy, v.StartDate, v.EndDate, v.Grade, v.Description}, nil
		},
		scan: func(id string, scan func(dest ...any) error) (profile.Entry, error) {
			v := profile.Education{ID: id}
			err := scan(&v.Institution, &v.Degree, &v.FieldOfStudy, &v.StartDate, &v.EndDate, &v.Grade, &v.Description)
			return v, err
		},
	},
	profile.KindExperience: {
		table:   "experience",
		columns: []string{"company", "position", "location", "start_date", "end_date", "is_current", "description"},
		values: func(e profile.Entry) ([]any, error) {
			v := e.(profile.Experience)
			current := 0
			if v.Current {
				current = 1
			}
			return []any{v.Company, v.Position, v.Location, v.StartDate, v.EndDate, current, v.Description}, nil
		},
		scan: func(id string, scan func(dest ...any) error) (profile.Entry, error) {
			v := profile.Experience{ID: id}
			var current int
			err := scan(&v.Company, &v.Position, &v.Location, &v.StartDate, &v.EndDate, &current, &v.Description)
			v.Current = current != 0
			return v, err
		},
	},
	profile.KindSkill: {
		table:   "skills",
		columns: []string{"name", "level", "category"},
		values: func(e profile.Entry) ([]any, error) {
			v := e.(profile.Skill)
			return []any{v.Name, string(v.Level), v.Category}, nil
		},
		scan: func(id string, scan func(dest ...any) error) (profile.Entry, error) {
			v := profile.Skill{ID: id}
			var level string
			err := scan(&v.Name, &level, &v.Category)
			v.Level = profile.SkillLevel(level)
			return v, err
		},
	},
	profile.KindProject: {
		table:   "projects",
		columns: []string{"title", "description", "tech_stack", "live_url", "repo_url", "start_date", "end_date"},
		values: func(e profile.Entry) ([]any, error) {
			v := e.(profile.Project)
			stack := v.TechStack
			if stack == nil {
				stack = []string{}
			}
			b, err := json.Marshal(stack)
			if err != nil {
				return nil, fmt.Errorf("marshalling tech stack: %w", err)
			}
			return []any{v.Title, v.Description, string(b), v.LiveURL, v.RepoURL, v.StartDate, v.EndDate}, nil
		},
		scan: func(id string, scan func(dest ...any) error) (profile.Entry, error) {
			v := profile.Project{ID: id}
			var stack string
			if err := scan(&v.Title, &v.Description, &stack, &v.LiveURL, &v.RepoURL, &v.StartDate, &v.EndDate); err != nil {
				return nil, err
			}
			if err := json.Unmarshal([]byte(stack), &v.TechStack); err != nil {
				return nil, fmt.Errorf("decoding tech stack of project %s: %w", id, err)
			}
			return v, nil
		},
	},
	profile.KindCertification: {
		table:   "certifications",
		columns: []string{"name", "issuing_org", "issue_date", "expiry_date", "credential_id", "credential_url"},
		values: func(e profile.Entry) ([]any, error) {
			v := e.(profile.Certification)
			return []any{v.Name, v.IssuingOrg, v.IssueDate, v.ExpiryDate, v.CredentialID, v.CredentialURL}, nil
		},
		scan: func(id string, scan func(dest ...any) error) (profile.Entry, error) {
			v := profile.Certification{ID: id}
			err := scan(&v.Name, &v.IssuingOrg, &v.IssueDate, &v.ExpiryDate, &v.CredentialID, &v.CredentialURL)
			return v, err
		},
	},
}

func collectionFor(kind profile.Kind) (collection, error) {
	c, ok := collections[kind]
	if !ok {
		return collection{}, fmt.Errorf("%w: %q", profile.ErrUnknownKind, kind)
	}
	return c, nil
}

func (c collection) insertSQL() string {
	cols := append([]string{"id", "profile_id", "seq"}, c.columns...)
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (?%s)",
		c.table, strings.Join(cols, ", "), strings.Repeat(", ?", len(cols)-1))
}

func (c collection) updateSQL() string {
	sets := make([]string, len(c.columns))
	for i, col := range c.columns {
		sets[i] = col + " = ?"
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = ? AND profile_id = ?", c.table, strings.Join(sets, ", "))
}

func (c collection) selectSQL() string {
	return fmt.Sprintf("SELECT id, %s FROM %s WHERE profile_id = ? ORDER BY seq ASC",
		strings.Join(c.columns, ", "), c.table)
}

// --- Profiles ---

// profileID resolves the profile owned by userID.
func profileID(ctx context.Context, row func(ctx context.Context, query string, args ...any) *sql.Row, userID string) (string, error) {
	var id string
	err := row(ctx, `SELECT id FROM profiles WHERE user_id = ?`, userID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return id, err
}

// GetProfile assembles the full profile owned by userID.
func (s *Store) GetProfile(ctx context.Context, userID string) (profile.Profile, error) {
	p := profile.Profile{UserID: userID}
	var updatedAt string
	err := s.queryRow(ctx, `
		SELECT id, first_name, last_name, email, phone, location, bio, profile_pic, linkedin, github, portfolio, updated_at
		FROM profiles WHERE user_id = ?`, userID,
	).Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.Location, &p.Bio,
		&p.ProfilePic, &p.LinkedIn, &p.GitHub, &p.Portfolio, &updatedAt)
	if err == sql.ErrNoRows {
		return profile.Profile{}, ErrNotFound
	}
	if err != nil {
		return profile.Profile{}, err
	}

	for _, kind := range profile.Kinds() {
		entries, err := s.listEntries(ctx, p.ID, kind)
		if err != nil {
			return profile.Profile{}, fmt.Errorf("loading %s: %w", kind, err)
		}
		if err := p.SetEntries(kind, entries); err != nil {
			return profile.Profile{}, err
		}
	}
	return p, nil
}

func (s *Store) listEntries(ctx context.Context, profileID string, kind profile.Kind) ([]profile.Entry, error) {
	c, err := collectionFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, c.selectSQL(), profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []profile.Entry
	for rows.Next() {
		var id string
		e, err := c.scan("", func(dest ...any) error {
			return rows.Scan(append([]any{&id}, dest...)...)
		})
		if err != nil {
			return nil, err
		}
		entries = append(entries, profile.WithID(e, id))
	}
	return entries, rows.Err()
}

// UpdateFields replaces all flat fields of the profile owned by userID.
func (s *Store) UpdateFields(ctx context.Context, userID string, f profile.Fields) error {
	res, err := s.exec(ctx, `
		UPDATE profiles SET first_name = ?, last_name = ?, email = ?, phone = ?, location = ?, bio = ?,
			profile_pic = ?, linkedin = ?, github = ?, portfolio = ?, updated_at = ?
		WHERE user_id = ?`,
		f.FirstName, f.LastName, f.Email, f.Phone, f.Location, f.Bio,
		f.ProfilePic, f.LinkedIn, f.GitHub, f.Portfolio, formatTime(time.Now()), userID,
	)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// ReplaceCollection deletes every entry of kind in the user's profile and
// inserts entries in their place, in one transaction. Incoming identifiers are
// ignored; each stored entry gets a fresh one. The stored entries are returned.
func (s *Store) ReplaceCollection(ctx context.Context, userID string, kind profile.Kind, entries []profile.Entry) ([]profile.Entry, error) {
	c, err := collectionFor(kind)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Kind() != kind {
			return nil, fmt.Errorf("entry %q is %s, not %s", e.EntryID(), e.Kind(), kind)
		}
	}

	out := make([]profile.Entry, 0, len(entries))
	err = s.inTx(ctx, func(t tx) error {
		pid, err := profileID(ctx, t.queryRow, userID)
		if err != nil {
			return err
		}
		if _, err := t.exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE profile_id = ?", c.table), pid); err != nil {
			return fmt.Errorf("clearing %s: %w", kind, err)
		}
		insert := c.insertSQL()
		for i, e := range entries {
			stored := profile.WithID(e, uuid.New().String())
			vals, err := c.values(stored)
			if err != nil {
				return err
			}
			args := append([]any{stored.EntryID(), pid, i}, vals...)
			if _, err := t.exec(ctx, insert, args...); err != nil {
				return fmt.Errorf("inserting %s entry: %w", kind, err)
			}
			out = append(out, stored)
		}
		return s.touch(ctx, t, pid)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateEntry appends e to its collection with a fresh identifier.
func (s *Store) CreateEntry(ctx context.Context, userID string, e profile.Entry) (profile.Entry, error) {
	c, err := collectionFor(e.Kind())
	if err != nil {
		return nil, err
	}
	stored := profile.WithID(e, uuid.New().String())
	vals, err := c.values(stored)
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(t tx) error {
		pid, err := profileID(ctx, t.queryRow, userID)
		if err != nil {
			return err
		}
		var seq int
		if err := t.queryRow(ctx, fmt.Sprintf("SELECT COALESCE(MAX(seq), -1) + 1 FROM %s WHERE profile_id = ?", c.table), pid).Scan(&seq); err != nil {
			return fmt.Errorf("computing position: %w", err)
		}
		args := append([]any{stored.EntryID(), pid, seq}, vals...)
		if _, err := t.exec(ctx, c.insertSQL(), args...); err != nil {
			return fmt.Errorf("inserting %s entry: %w", e.Kind(), err)
		}
		return s.touch(ctx, t, pid)
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// UpdateEntry overwrites an existing entry. An id that does not belong to the
// user's profile is reported as ErrNotFound.
func (s *Store) UpdateEntry(ctx context.Context, userID string, e profile.Entry) (profile.Entry, error) {
	c, err := collectionFor(e.Kind())
	if err != nil {
		return nil, err
	}
	vals, err := c.values(e)
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(t tx) error {
		pid, err := profileID(ctx, t.queryRow, userID)
		if err != nil {
			return err
		}
		args := append(vals, e.EntryID(), pid)
		res, err := t.exec(ctx, c.updateSQL(), args...)
		if err != nil {
			return fmt.Errorf("updating %s entry: %w", e.Kind(), err)
		}
		if err := expectOne(res); err != nil {
			return err
		}
		return s.touch(ctx, t, pid)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// DeleteEntry removes one entry from the user's profile.
func (s *Store) DeleteEntry(ctx context.Context, userID string, kind profile.Kind, id string) error {
	c, err := collectionFor(kind)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(t tx) error {
		pid, err := profileID(ctx, t.queryRow, userID)
		if err != nil {
			return err
		}
		res, err := t.exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ? AND profile_id = ?", c.table), id, pid)
		if err != nil {
			return fmt.Errorf("deleting %s entry: %w", kind, err)
		}
		if err := expectOne(res); err != nil {
			return err
		}
		return s.touch(ctx, t, pid)
	})
}

func (s *Store) touch(ctx context.Context, t tx, profileID string) error {
	_, err := t.exec(ctx, `UPDATE profiles SET updated_at = ? WHERE id = ?`, formatTime(time.Now()), profileID)
	return err
}
