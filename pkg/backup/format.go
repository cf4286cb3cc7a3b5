// Package backup implements encrypted vault export and import. A backup is
// a single JSON document, independently keyed from the vault so it can be
// restored into a vault with a different master password.
package backup

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lockboxapp/lockbox/pkg/store"
)

// FormatVersion is the backup format written by this build. Readers accept
// any file whose major version is not newer.
const FormatVersion = "1.0"

// AppVersion is stamped into exports for diagnostics. The main package
// overrides it at startup.
var AppVersion = "dev"

// Errors returned by backup operations.
var (
	ErrInvalidPassword  = errors.New("backup: invalid backup password")
	ErrVersionMismatch  = errors.New("backup: backup format is newer than this build")
	ErrMalformedBackup  = errors.New("backup: malformed backup file")
	ErrPasswordRequired = errors.New("backup: backup is encrypted, password required")
)

// File is the on-disk backup document. Exactly one of the two content
// forms is present: Salt+EncryptedData when Encrypted, the plaintext
// collections otherwise.
type File struct {
	Version    string `json:"version"`
	ExportDate string `json:"exportDate"`
	AppVersion string `json:"appVersion"`
	Encrypted  bool   `json:"encrypted"`

	Salt          string `json:"salt,omitempty"`
	EncryptedData string `json:"encryptedData,omitempty"`

	Projects []ProjectRecord `json:"projects,omitempty"`
	Tags     []TagRecord     `json:"tags,omitempty"`
	Items    []ItemRecord    `json:"items,omitempty"`
}

// Content is the decrypted body of an encrypted backup, and the shape of a
// plaintext one.
type Content struct {
	Projects []ProjectRecord `json:"projects"`
	Tags     []TagRecord     `json:"tags"`
	Items    []ItemRecord    `json:"items"`
}

// ProjectRecord is a project as serialized in a backup.
type ProjectRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TagRecord is a tag as serialized in a backup.
type TagRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ItemRecord is an item as serialized in a backup, payload in the clear
// (the backup's own encryption covers it).
type ItemRecord struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Type       string        `json:"type"`
	ProjectID  *string       `json:"projectId,omitempty"`
	TagIDs     []string      `json:"tagIds,omitempty"`
	IsFavorite bool          `json:"isFavorite,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
	Payload    store.Payload `json:"payload"`
}

// checkVersion rejects files written by a newer major format revision.
// Minor revisions are forward-compatible by design.
func checkVersion(version string) error {
	major, _, ok := strings.Cut(version, ".")
	if !ok {
		return fmt.Errorf("%w: bad version %q", ErrMalformedBackup, version)
	}
	fileMajor, err := strconv.Atoi(major)
	if err != nil {
		return fmt.Errorf("%w: bad version %q", ErrMalformedBackup, version)
	}
	currentMajor, _, _ := strings.Cut(FormatVersion, ".")
	cur, _ := strconv.Atoi(currentMajor)
	if fileMajor > cur {
		return fmt.Errorf("%w: file version %s", ErrVersionMismatch, version)
	}
	return nil
}

// contentFromSnapshot converts a store snapshot to backup records.
func contentFromSnapshot(snap *store.Snapshot) *Content {
	c := &Content{
		Projects: make([]ProjectRecord, 0, len(snap.Projects)),
		Tags:     make([]TagRecord, 0, len(snap.Tags)),
		Items:    make([]ItemRecord, 0, len(snap.Items)),
	}
	for _, p := range snap.Projects {
		c.Projects = append(c.Projects, ProjectRecord{
			ID: p.ID, Name: p.Name, Icon: p.Icon,
			CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
		})
	}
	for _, t := range snap.Tags {
		c.Tags = append(c.Tags, TagRecord{
			ID: t.ID, Name: t.Name, Color: t.Color,
			CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt,
		})
	}
	for _, it := range snap.Items {
		c.Items = append(c.Items, ItemRecord{
			ID: it.ID, Name: it.Name, Type: string(it.Type),
			ProjectID: it.ProjectID, TagIDs: it.TagIDs, IsFavorite: it.IsFavorite,
			CreatedAt: it.CreatedAt, UpdatedAt: it.UpdatedAt, Payload: it.Payload,
		})
	}
	return c
}

// snapshotFromContent converts backup records back to a store snapshot,
// validating item types and referential integrity.
func snapshotFromContent(c *Content) (*store.Snapshot, error) {
	snap := &store.Snapshot{
		Projects: make([]store.Project, 0, len(c.Projects)),
		Tags:     make([]store.Tag, 0, len(c.Tags)),
		Items:    make([]store.Item, 0, len(c.Items)),
	}

	projectIDs := make(map[string]bool, len(c.Projects))
	for _, p := range c.Projects {
		if p.ID == "" || p.Name == "" {
			return nil, fmt.Errorf("%w: project missing id or name", ErrMalformedBackup)
		}
		projectIDs[p.ID] = true
		snap.Projects = append(snap.Projects, store.Project{
			ID: p.ID, Name: p.Name, Icon: p.Icon,
			CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
		})
	}

	tagIDs := make(map[string]bool, len(c.Tags))
	for _, t := range c.Tags {
		if t.ID == "" || t.Name == "" {
			return nil, fmt.Errorf("%w: tag missing id or name", ErrMalformedBackup)
		}
		tagIDs[t.ID] = true
		snap.Tags = append(snap.Tags, store.Tag{
			ID: t.ID, Name: t.Name, Color: t.Color,
			CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt,
		})
	}

	for _, it := range c.Items {
		if it.ID == "" || it.Name == "" {
			return nil, fmt.Errorf("%w: item missing id or name", ErrMalformedBackup)
		}
		typ := store.ItemType(it.Type)
		if !store.ValidType(typ) || it.Payload.Type != typ {
			return nil, fmt.Errorf("%w: item %s has inconsistent type", ErrMalformedBackup, it.ID)
		}
		if it.ProjectID != nil && !projectIDs[*it.ProjectID] {
			return nil, fmt.Errorf("%w: item %s references unknown project", ErrMalformedBackup, it.ID)
		}
		for _, tagID := range it.TagIDs {
			if !tagIDs[tagID] {
				return nil, fmt.Errorf("%w: item %s references unknown tag", ErrMalformedBackup, it.ID)
			}
		}
		snap.Items = append(snap.Items, store.Item{
			ID: it.ID, Name: it.Name, Type: typ,
			ProjectID: it.ProjectID, TagIDs: it.TagIDs, IsFavorite: it.IsFavorite,
			CreatedAt: it.CreatedAt, UpdatedAt: it.UpdatedAt, Payload: it.Payload,
		})
	}
	return snap, nil
}
