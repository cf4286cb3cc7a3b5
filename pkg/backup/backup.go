package backup

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lockboxapp/lockbox/pkg/audit"
	"github.com/lockboxapp/lockbox/pkg/crypto"
	"github.com/lockboxapp/lockbox/pkg/vault"
)

// FileExtension is the conventional backup file suffix.
const FileExtension = ".lockboxbackup"

// Export serializes the whole vault into a backup document. With a
// non-empty password the content is encrypted under a key derived from that
// password with a fresh salt; with an empty password the export is
// plaintext JSON. The vault must be unlocked.
func Export(v *vault.Vault, password string) ([]byte, error) {
	st, err := v.Store()
	if err != nil {
		return nil, err
	}
	snap, err := st.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("backup: failed to read vault: %w", err)
	}

	file := File{
		Version:    FormatVersion,
		ExportDate: time.Now().UTC().Format(time.RFC3339),
		AppVersion: AppVersion,
	}
	content := contentFromSnapshot(snap)

	if password == "" {
		file.Projects = content.Projects
		file.Tags = content.Tags
		file.Items = content.Items
	} else {
		salt, err := crypto.GenerateSalt()
		if err != nil {
			return nil, err
		}
		key, err := deriveBackupKey(password, salt)
		if err != nil {
			return nil, err
		}
		defer crypto.SecureWipe(key)

		blob, err := crypto.EncryptRecord(content, key)
		if err != nil {
			return nil, fmt.Errorf("backup: failed to encrypt content: %w", err)
		}
		file.Encrypted = true
		file.Salt = base64.StdEncoding.EncodeToString(salt)
		file.EncryptedData = base64.StdEncoding.EncodeToString(blob)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("backup: failed to marshal backup: %w", err)
	}
	v.Audit().LogSuccess(audit.OpBackupExport, "")
	return data, nil
}

// Mode selects how an import treats existing vault contents.
type Mode int

const (
	// Replace wipes the vault and inserts the backup verbatim, IDs and
	// timestamps preserved.
	Replace Mode = iota
	// Merge adds the backup alongside existing contents; see Import.
	Merge
)

// Import restores a backup into an unlocked vault.
//
// The file is fully parsed, decrypted and validated before anything is
// written, so a wrong password, malformed file or newer format leaves the
// vault untouched. Replace wipes first; Merge keeps existing records,
// renames colliding project names, reuses tags by name and gives imported
// records fresh IDs with references rewritten.
func Import(v *vault.Vault, data []byte, password string, mode Mode) error {
	st, err := v.Store()
	if err != nil {
		return err
	}

	content, err := decode(data, password)
	if err != nil {
		return err
	}
	snap, err := snapshotFromContent(content)
	if err != nil {
		return err
	}

	switch mode {
	case Replace:
		// Wipe and insert commit together; a failed restore must not leave
		// the vault emptied.
		if err := st.Replace(snap); err != nil {
			return fmt.Errorf("backup: failed to restore: %w", err)
		}
	case Merge:
		if err := merge(st, snap); err != nil {
			return err
		}
	default:
		return fmt.Errorf("backup: unknown import mode %d", mode)
	}

	v.Audit().LogSuccess(audit.OpBackupImport, "")
	return nil
}

// decode parses a backup document and returns its plaintext content.
func decode(data []byte, password string) (*Content, error) {
	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBackup, err)
	}
	if file.Version == "" {
		return nil, fmt.Errorf("%w: missing version", ErrMalformedBackup)
	}
	if err := checkVersion(file.Version); err != nil {
		return nil, err
	}

	if !file.Encrypted {
		return &Content{Projects: file.Projects, Tags: file.Tags, Items: file.Items}, nil
	}

	if password == "" {
		return nil, ErrPasswordRequired
	}
	salt, err := base64.StdEncoding.DecodeString(file.Salt)
	if err != nil || len(salt) != crypto.SaltLength {
		return nil, fmt.Errorf("%w: bad salt", ErrMalformedBackup)
	}
	blob, err := base64.StdEncoding.DecodeString(file.EncryptedData)
	if err != nil {
		return nil, fmt.Errorf("%w: bad encrypted data", ErrMalformedBackup)
	}

	key, err := deriveBackupKey(password, salt)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(key)

	content, err := crypto.DecryptRecord[Content](blob, key)
	if err != nil {
		// Tag failure means wrong password or corruption; either way the
		// password did not open this file.
		if errors.Is(err, crypto.ErrIntegrityCheckFailed) {
			return nil, ErrInvalidPassword
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedBackup, err)
	}
	return &content, nil
}
