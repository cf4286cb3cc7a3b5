package backup

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lockboxapp/lockbox/pkg/store"
)

// merge adds a backup snapshot alongside existing vault contents.
//
// Imported projects always get fresh IDs; a name collision with an existing
// project renames the import to "name (2)", "name (3)" and so on. Tags are
// matched by name and reuse the existing tag instead of duplicating it.
// Items always get fresh IDs with project and tag references rewritten
// through the remap tables, so nothing existing is overwritten and no
// imported reference dangles.
func merge(st *store.Store, snap *store.Snapshot) error {
	existing, err := st.ListProjects()
	if err != nil {
		return fmt.Errorf("backup: failed to list projects: %w", err)
	}
	takenNames := make(map[string]bool, len(existing))
	for _, p := range existing {
		takenNames[strings.ToLower(p.Name)] = true
	}

	projectRemap := make(map[string]string, len(snap.Projects))
	for _, p := range snap.Projects {
		name := p.Name
		for n := 2; takenNames[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%s (%d)", p.Name, n)
		}
		takenNames[strings.ToLower(name)] = true

		created := store.Project{Name: name, Icon: p.Icon}
		if err := st.CreateProject(&created); err != nil {
			return fmt.Errorf("backup: failed to merge project %q: %w", p.Name, err)
		}
		projectRemap[p.ID] = created.ID
	}

	tagRemap := make(map[string]string, len(snap.Tags))
	for _, t := range snap.Tags {
		existing, err := st.FindTagByName(t.Name)
		if err == nil {
			tagRemap[t.ID] = existing.ID
			continue
		}
		if !errors.Is(err, store.ErrTagNotFound) {
			return fmt.Errorf("backup: failed to look up tag %q: %w", t.Name, err)
		}
		created := store.Tag{Name: t.Name, Color: t.Color}
		if err := st.CreateTag(&created); err != nil {
			return fmt.Errorf("backup: failed to merge tag %q: %w", t.Name, err)
		}
		tagRemap[t.ID] = created.ID
	}

	for i := range snap.Items {
		src := &snap.Items[i]

		var projectID *string
		if src.ProjectID != nil {
			mapped := projectRemap[*src.ProjectID]
			projectID = &mapped
		}
		tagIDs := make([]string, 0, len(src.TagIDs))
		for _, id := range src.TagIDs {
			tagIDs = append(tagIDs, tagRemap[id])
		}

		item := store.Item{
			Name:       src.Name,
			Type:       src.Type,
			ProjectID:  projectID,
			TagIDs:     tagIDs,
			IsFavorite: src.IsFavorite,
			Payload:    src.Payload,
		}
		if err := st.CreateItem(&item); err != nil {
			return fmt.Errorf("backup: failed to merge item %q: %w", src.Name, err)
		}
	}
	return nil
}
