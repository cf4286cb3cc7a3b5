package backup

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/lockboxapp/lockbox/pkg/keychain"
	"github.com/lockboxapp/lockbox/pkg/store"
	"github.com/lockboxapp/lockbox/pkg/vault"
)

const (
	masterPassword = "Tr0ub4dor&3-long"
	exportPassword = "backup export pw"
)

func newUnlockedVault(t *testing.T) *vault.Vault {
	t.Helper()
	dir := t.TempDir()
	v := vault.New(dir, keychain.NewFileStore(dir), vault.WithAutoLockTimeout(0))
	if err := v.Create(masterPassword); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	t.Cleanup(v.Lock)
	return v
}

func seedVault(t *testing.T, v *vault.Vault) (projectID, tagID, itemID string) {
	t.Helper()
	st, err := v.Store()
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	p := &store.Project{Name: "Ops"}
	if err := st.CreateProject(p); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	tag := &store.Tag{Name: "prod"}
	if err := st.CreateTag(tag); err != nil {
		t.Fatalf("CreateTag failed: %v", err)
	}
	item := &store.Item{
		Name: "Stripe", Type: store.TypeAPIKey,
		ProjectID: &p.ID, TagIDs: []string{tag.ID},
		Payload: store.Payload{Type: store.TypeAPIKey,
			APIKey: &store.APIKeyData{Key: "sk_live_abc", Extras: []store.ExtraField{}}},
	}
	if err := st.CreateItem(item); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	return p.ID, tag.ID, item.ID
}

func TestEncryptedRoundTrip(t *testing.T) {
	src := newUnlockedVault(t)
	_, _, itemID := seedVault(t, src)

	data, err := Export(src, exportPassword)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if strings.Contains(string(data), "sk_live_abc") {
		t.Fatal("plaintext secret in encrypted backup")
	}

	// Restore into a vault with a different master password.
	dst := newUnlockedVault(t)
	if err := Import(dst, data, exportPassword, Replace); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	st, err := dst.Store()
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	got, err := st.GetItem(itemID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if got.Payload.APIKey.Key != "sk_live_abc" {
		t.Errorf("payload = %+v", got.Payload)
	}
	if got.ProjectID == nil || len(got.TagIDs) != 1 {
		t.Errorf("references lost: project=%v tags=%v", got.ProjectID, got.TagIDs)
	}
}

func TestPlaintextExport(t *testing.T) {
	src := newUnlockedVault(t)
	seedVault(t, src)

	data, err := Export(src, "")
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if file.Encrypted {
		t.Error("passwordless export marked encrypted")
	}
	if len(file.Items) != 1 || file.Items[0].Payload.APIKey.Key != "sk_live_abc" {
		t.Errorf("items = %+v", file.Items)
	}

	dst := newUnlockedVault(t)
	if err := Import(dst, data, "", Replace); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
}

func TestWrongPasswordMutatesNothing(t *testing.T) {
	src := newUnlockedVault(t)
	seedVault(t, src)
	data, err := Export(src, exportPassword)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	dst := newUnlockedVault(t)
	st, err := dst.Store()
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	keeper := &store.Item{
		Name: "keep me", Type: store.TypeSecureNote,
		Payload: store.Payload{Type: store.TypeSecureNote,
			SecureNote: &store.SecureNoteData{Text: "still here", Extras: []store.ExtraField{}}},
	}
	if err := st.CreateItem(keeper); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	if err := Import(dst, data, "not the password", Replace); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("got %v, want ErrInvalidPassword", err)
	}

	if _, err := st.GetItem(keeper.ID); err != nil {
		t.Errorf("failed import mutated the vault: %v", err)
	}
	_, _, items, err := st.Counts()
	if err != nil || items != 1 {
		t.Errorf("items=%d err=%v, want 1 item untouched", items, err)
	}
}

func TestEncryptedBackupRequiresPassword(t *testing.T) {
	src := newUnlockedVault(t)
	seedVault(t, src)
	data, err := Export(src, exportPassword)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	dst := newUnlockedVault(t)
	if err := Import(dst, data, "", Replace); !errors.Is(err, ErrPasswordRequired) {
		t.Errorf("got %v, want ErrPasswordRequired", err)
	}
}

func TestMalformedAndNewerBackups(t *testing.T) {
	dst := newUnlockedVault(t)

	if err := Import(dst, []byte("not json"), "", Replace); !errors.Is(err, ErrMalformedBackup) {
		t.Errorf("garbage: got %v, want ErrMalformedBackup", err)
	}
	if err := Import(dst, []byte(`{"encrypted":false}`), "", Replace); !errors.Is(err, ErrMalformedBackup) {
		t.Errorf("missing version: got %v, want ErrMalformedBackup", err)
	}
	if err := Import(dst, []byte(`{"version":"2.0","encrypted":false}`), "", Replace); !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("newer major: got %v, want ErrVersionMismatch", err)
	}
	// A newer minor of the same major is accepted.
	if err := Import(dst, []byte(`{"version":"1.7","encrypted":false}`), "", Replace); err != nil {
		t.Errorf("newer minor rejected: %v", err)
	}
}

func TestReplaceWipesExisting(t *testing.T) {
	src := newUnlockedVault(t)
	seedVault(t, src)
	data, err := Export(src, exportPassword)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	dst := newUnlockedVault(t)
	st, err := dst.Store()
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	old := &store.Item{
		Name: "old", Type: store.TypeSecureNote,
		Payload: store.Payload{Type: store.TypeSecureNote,
			SecureNote: &store.SecureNoteData{Text: "x", Extras: []store.ExtraField{}}},
	}
	if err := st.CreateItem(old); err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	if err := Import(dst, data, exportPassword, Replace); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if _, err := st.GetItem(old.ID); !errors.Is(err, store.ErrItemNotFound) {
		t.Errorf("replace kept pre-existing item: %v", err)
	}
}

func TestMergeRenamesAndRemaps(t *testing.T) {
	src := newUnlockedVault(t)
	seedVault(t, src) // project "Ops", tag "prod", item "Stripe"
	data, err := Export(src, exportPassword)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	dst := newUnlockedVault(t)
	st, err := dst.Store()
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	// Existing project with the colliding name, and an existing tag the
	// import should reuse.
	existingProject := &store.Project{Name: "Ops"}
	if err := st.CreateProject(existingProject); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	existingTag := &store.Tag{Name: "prod"}
	if err := st.CreateTag(existingTag); err != nil {
		t.Fatalf("CreateTag failed: %v", err)
	}

	if err := Import(dst, data, exportPassword, Merge); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	projects, err := st.ListProjects()
	if err != nil {
		t.Fatalf("ListProjects failed: %v", err)
	}
	names := make([]string, 0, len(projects))
	for _, p := range projects {
		names = append(names, p.Name)
	}
	if len(projects) != 2 || names[0] != "Ops" || names[1] != "Ops (2)" {
		t.Fatalf("projects = %v, want [Ops, Ops (2)]", names)
	}
	var mergedProject store.Project
	for _, p := range projects {
		if p.Name == "Ops (2)" {
			mergedProject = p
		}
	}

	tags, err := st.ListTags()
	if err != nil {
		t.Fatalf("ListTags failed: %v", err)
	}
	if len(tags) != 1 || tags[0].ID != existingTag.ID {
		t.Errorf("tags = %+v, want the pre-existing tag reused", tags)
	}

	items, err := st.ListItems(store.ItemFilter{})
	if err != nil {
		t.Fatalf("ListItems failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	got := items[0]
	if got.ProjectID == nil || *got.ProjectID != mergedProject.ID {
		t.Errorf("item project not remapped: %v", got.ProjectID)
	}
	if len(got.TagIDs) != 1 || got.TagIDs[0] != existingTag.ID {
		t.Errorf("item tags not remapped: %v", got.TagIDs)
	}
}

func TestMergeCollisionCountsPastTwo(t *testing.T) {
	src := newUnlockedVault(t)
	seedVault(t, src)
	data, err := Export(src, "")
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	dst := newUnlockedVault(t)
	st, err := dst.Store()
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	for _, name := range []string{"Ops", "Ops (2)"} {
		if err := st.CreateProject(&store.Project{Name: name}); err != nil {
			t.Fatalf("CreateProject failed: %v", err)
		}
	}

	if err := Import(dst, data, "", Merge); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	projects, err := st.ListProjects()
	if err != nil {
		t.Fatalf("ListProjects failed: %v", err)
	}
	found := false
	for _, p := range projects {
		if p.Name == "Ops (3)" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected Ops (3), got %+v", projects)
	}
}

func TestExportRequiresUnlocked(t *testing.T) {
	v := newUnlockedVault(t)
	v.Lock()
	if _, err := Export(v, exportPassword); !errors.Is(err, vault.ErrVaultLocked) {
		t.Errorf("got %v, want ErrVaultLocked", err)
	}
}

func TestMergePropagatesStoreErrors(t *testing.T) {
	v := newUnlockedVault(t)
	st, err := v.Store()
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	v.Lock()

	// A failing store must surface its error instead of being treated as
	// "record not found" and answered with duplicate inserts.
	snap := &store.Snapshot{Tags: []store.Tag{{Name: "prod"}}}
	if err := merge(st, snap); err == nil {
		t.Fatal("merge against a closed store succeeded")
	}
}
