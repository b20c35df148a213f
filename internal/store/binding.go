package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/ayusman/poseview/internal/pose"
)

// Binding attaches an image and an optional plugin action to a pose.
type Binding struct {
	Pose       pose.Pose
	ImagePath  string
	PluginName string
	ActionName string
	Config     json.RawMessage
	Enabled    bool
	UpdatedAt  time.Time
}

// HasAction reports whether the binding names a plugin action.
func (b *Binding) HasAction() bool {
	return b.PluginName != "" && b.ActionName != ""
}

// BindingRepository provides CRUD operations for pose bindings.
type BindingRepository struct {
	db *sql.DB
}

// Bindings returns the binding repository for this store.
func (s *Store) Bindings() *BindingRepository {
	return &BindingRepository{db: s.db}
}

// Upsert creates the binding or replaces the existing one for the same pose.
func (r *BindingRepository) Upsert(b *Binding) error {
	b.UpdatedAt = time.Now()

	config := b.Config
	if config == nil {
		config = json.RawMessage("{}")
	}

	enabled := 0
	if b.Enabled {
		enabled = 1
	}

	_, err := r.db.Exec(
		`INSERT INTO pose_bindings (pose, image_path, plugin_name, action_name, config, enabled, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(pose) DO UPDATE SET
			image_path = excluded.image_path,
			plugin_name = excluded.plugin_name,
			action_name = excluded.action_name,
			config = excluded.config,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`,
		string(b.Pose), b.ImagePath, b.PluginName, b.ActionName, string(config), enabled, b.UpdatedAt,
	)
	return err
}

// Get retrieves the binding for a pose.
func (r *BindingRepository) Get(p pose.Pose) (*Binding, error) {
	row := r.db.QueryRow(
		`SELECT pose, image_path, plugin_name, action_name, config, enabled, updated_at
		 FROM pose_bindings WHERE pose = ?`,
		string(p),
	)

	b, err := scanBinding(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

// List retrieves all bindings ordered by pose.
func (r *BindingRepository) List() ([]*Binding, error) {
	rows, err := r.db.Query(
		`SELECT pose, image_path, plugin_name, action_name, config, enabled, updated_at
		 FROM pose_bindings ORDER BY pose`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bindings []*Binding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return bindings, nil
}

// Delete removes the binding for a pose.
func (r *BindingRepository) Delete(p pose.Pose) error {
	result, err := r.db.Exec(`DELETE FROM pose_bindings WHERE pose = ?`, string(p))
	if err != nil {
		return err
	}
	return affected(result)
}

func scanBinding(sc scanner) (*Binding, error) {
	b := &Binding{}
	var p, config string
	var enabled int

	err := sc.Scan(&p, &b.ImagePath, &b.PluginName, &b.ActionName, &config, &enabled, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}

	b.Pose = pose.Pose(p)
	b.Config = json.RawMessage(config)
	b.Enabled = enabled != 0
	return b, nil
}
