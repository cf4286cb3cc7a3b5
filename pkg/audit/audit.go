// Package audit provides a tamper-evident operation log. Records are
// appended as JSONL with an HMAC chain: each record's HMAC covers its
// contents plus the previous record's HMAC, so truncation, reordering or
// edits break the chain on verification.
package audit

import (
	"bufio"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// Operation codes recorded in the log.
const (
	OpVaultCreate         = "vault.create"
	OpVaultUnlock         = "vault.unlock"
	OpVaultUnlockFailed   = "vault.unlock_failed"
	OpVaultUnlockBio      = "vault.unlock_biometric"
	OpVaultLock           = "vault.lock"
	OpVaultAutoLock       = "vault.autolock"
	OpVaultPasswordChange = "vault.password_change"
	OpVaultDestroy        = "vault.destroy"

	OpItemCreate = "item.create"
	OpItemUpdate = "item.update"
	OpItemDelete = "item.delete"

	OpBackupExport = "backup.export"
	OpBackupImport = "backup.import"
)

// Result values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// genesisHash seeds the chain before any record exists.
const genesisHash = "genesis"

// ErrKeyNotSet indicates a log/verify call before SetHMACKey.
var ErrKeyNotSet = errors.New("audit: HMAC key not set")

// Event is one audit record. Subject carries an entity reference (item ID,
// backup file name) — never secret material.
type Event struct {
	Version   int    `json:"v"`
	ID        string `json:"id"`
	Timestamp string `json:"ts"`
	Operation string `json:"op"`
	Subject   string `json:"subject,omitempty"`
	Result    string `json:"result"`
	Detail    string `json:"detail,omitempty"`
	Chain     Chain  `json:"chain"`
}

// Chain links an event to its predecessor.
type Chain struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

// chainState is persisted alongside the log so the chain continues across
// process restarts.
type chainState struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
}

// Logger appends HMAC-chained events under a directory, one JSONL file per
// month. It is safe for concurrent use.
type Logger struct {
	mu       sync.Mutex
	dir      string
	hmacKey  []byte
	sequence int64
	prevHash string
}

// NewLogger creates a logger writing under dir. The HMAC key must be set
// before any event can be recorded.
func NewLogger(dir string) *Logger {
	return &Logger{dir: dir, prevHash: genesisHash}
}

// SetHMACKey expands the chain secret into the HMAC key with HKDF-SHA256
// and resumes the persisted chain state. Called on every unlock. The secret
// must be stable across password changes or old records stop verifying.
func (l *Logger) SetHMACKey(secret []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := hkdf.New(sha256.New, secret, nil, []byte("lockbox-audit-v1"))
	key := make([]byte, 32)
	if _, err := r.Read(key); err != nil {
		return fmt.Errorf("audit: failed to derive HMAC key: %w", err)
	}
	l.hmacKey = key

	// Missing state means a fresh log; start from genesis.
	if err := l.loadChainState(); err != nil {
		l.sequence = 0
		l.prevHash = genesisHash
	}
	return nil
}

// ClearKey drops the HMAC key, disabling logging until the next unlock.
func (l *Logger) ClearKey() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hmacKey = nil
}

// Reset deletes every log file and the chain state, returning the chain to
// genesis. Called when the vault is destroyed so a re-created vault does
// not inherit records it cannot verify.
func (l *Logger) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(l.dir, "*.jsonl"))
	if err != nil {
		return fmt.Errorf("audit: failed to list log files: %w", err)
	}
	files = append(files, filepath.Join(l.dir, "chain.meta"))
	for _, file := range files {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("audit: failed to remove %s: %w", file, err)
		}
	}

	l.hmacKey = nil
	l.sequence = 0
	l.prevHash = genesisHash
	return nil
}

// Log appends one event. Callers treat failures as best-effort: an audit
// write error must never veto a vault operation.
func (l *Logger) Log(op, subject, result, detail string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey == nil {
		return ErrKeyNotSet
	}
	if err := os.MkdirAll(l.dir, 0700); err != nil {
		return fmt.Errorf("audit: failed to create log directory: %w", err)
	}

	event := Event{
		Version:   1,
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Operation: op,
		Subject:   subject,
		Result:    result,
		Detail:    detail,
	}

	l.sequence++
	event.Chain.Sequence = l.sequence
	event.Chain.PrevHash = l.prevHash
	event.Chain.HMAC = l.recordHMAC(&event)
	l.prevHash = event.Chain.HMAC

	if err := l.appendEvent(&event); err != nil {
		return err
	}
	return l.saveChainState()
}

// LogSuccess records a successful operation.
func (l *Logger) LogSuccess(op, subject string) error {
	return l.Log(op, subject, ResultSuccess, "")
}

// LogError records a failed operation with a short reason.
func (l *Logger) LogError(op, subject, detail string) error {
	return l.Log(op, subject, ResultError, detail)
}

// recordHMAC computes the HMAC over every significant field plus the chain
// position.
func (l *Logger) recordHMAC(e *Event) string {
	data := fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s|%d|%s",
		e.Version, e.ID, e.Timestamp, e.Operation, e.Subject,
		e.Result, e.Detail, e.Chain.Sequence, e.Chain.PrevHash)
	mac := hmac.New(sha256.New, l.hmacKey)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// appendEvent writes one line to the current month's file.
func (l *Logger) appendEvent(e *Event) error {
	name := time.Now().UTC().Format("2006-01") + ".jsonl"
	f, err := os.OpenFile(filepath.Join(l.dir, name),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}
	return nil
}

func (l *Logger) loadChainState() error {
	data, err := os.ReadFile(filepath.Join(l.dir, "chain.meta"))
	if err != nil {
		return err
	}
	var state chainState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	l.sequence = state.Sequence
	l.prevHash = state.PrevHash
	return nil
}

func (l *Logger) saveChainState() error {
	data, err := json.Marshal(chainState{Sequence: l.sequence, PrevHash: l.prevHash})
	if err != nil {
		return fmt.Errorf("audit: failed to marshal chain state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.dir, "chain.meta"), data, 0600); err != nil {
		return fmt.Errorf("audit: failed to save chain state: %w", err)
	}
	return nil
}

// VerifyResult reports the outcome of a chain walk.
type VerifyResult struct {
	Valid   bool
	Records int
	Errors  []string
}

// Verify walks every record in chronological order and checks sequence
// continuity, chain linkage and per-record HMACs.
func (l *Logger) Verify() (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey == nil {
		return nil, ErrKeyNotSet
	}

	files, err := filepath.Glob(filepath.Join(l.dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	// Month-stamped names sort chronologically.
	sort.Strings(files)

	result := &VerifyResult{Valid: true}
	expectedPrev := genesisHash
	var expectedSeq int64 = 1

	for _, file := range files {
		events, err := readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", file, err)
		}
		for i := range events {
			e := &events[i]
			result.Records++

			if e.Chain.Sequence != expectedSeq {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"sequence gap at %s: expected %d, got %d", e.ID, expectedSeq, e.Chain.Sequence))
			}
			if e.Chain.PrevHash != expectedPrev {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"chain broken at %s", e.ID))
			}
			if l.recordHMAC(e) != e.Chain.HMAC {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"HMAC mismatch at %s: possible tampering", e.ID))
			}

			expectedPrev = e.Chain.HMAC
			expectedSeq++
		}
	}
	return result, nil
}

// ListEvents returns up to limit of the most recent events (0 = all).
func (l *Logger) ListEvents(limit int) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(l.dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	sort.Strings(files)

	var all []Event
	for _, file := range files {
		events, err := readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", file, err)
		}
		all = append(all, events...)
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func readLogFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("failed to parse record: %w", err)
		}
		events = append(events, e)
	}
	return events, scanner.Err()
}
