package store

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ItemType discriminates the payload union. The string values are persisted
// in backups and in the plaintext type column, so they must not change.
type ItemType string

const (
	TypeAPIKey     ItemType = "apiKey"
	TypeDatabase   ItemType = "database"
	TypeServer     ItemType = "server"
	TypeSSH        ItemType = "ssh"
	TypeCommand    ItemType = "command"
	TypeSecureNote ItemType = "secureNote"
)

// ErrUnknownItemType indicates a payload with an unrecognized discriminant.
var ErrUnknownItemType = errors.New("store: unknown item type")

// ValidType reports whether t is one of the six known item types.
func ValidType(t ItemType) bool {
	switch t {
	case TypeAPIKey, TypeDatabase, TypeServer, TypeSSH, TypeCommand, TypeSecureNote:
		return true
	}
	return false
}

// ExtraField is a user-defined name/value pair on a payload. Secret marks
// values the UI should mask by default.
type ExtraField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Secret bool   `json:"secret"`
}

// APIKeyData holds an API key credential.
type APIKeyData struct {
	Key    string       `json:"key"`
	URL    string       `json:"url,omitempty"`
	Notes  string       `json:"notes,omitempty"`
	Extras []ExtraField `json:"extras"`
}

// DatabaseData holds a database connection credential.
type DatabaseData struct {
	Host     string       `json:"host"`
	Port     string       `json:"port,omitempty"`
	Database string       `json:"database,omitempty"`
	Username string       `json:"username,omitempty"`
	Password string       `json:"password,omitempty"`
	Notes    string       `json:"notes,omitempty"`
	Extras   []ExtraField `json:"extras"`
}

// ServerData holds a server login credential.
type ServerData struct {
	Host     string       `json:"host"`
	Port     string       `json:"port,omitempty"`
	Username string       `json:"username,omitempty"`
	Password string       `json:"password,omitempty"`
	Notes    string       `json:"notes,omitempty"`
	Extras   []ExtraField `json:"extras"`
}

// SSHData holds an SSH credential, optionally with a private key.
type SSHData struct {
	Host       string       `json:"host"`
	Port       string       `json:"port,omitempty"`
	Username   string       `json:"username,omitempty"`
	PrivateKey string       `json:"privateKey,omitempty"`
	Passphrase string       `json:"passphrase,omitempty"`
	Notes      string       `json:"notes,omitempty"`
	Extras     []ExtraField `json:"extras"`
}

// CommandData holds a shell command snippet.
type CommandData struct {
	Command string       `json:"command"`
	Notes   string       `json:"notes,omitempty"`
	Extras  []ExtraField `json:"extras"`
}

// SecureNoteData holds free-form text.
type SecureNoteData struct {
	Text   string       `json:"text"`
	Extras []ExtraField `json:"extras"`
}

// Payload is the tagged union of the six item variants. Exactly the variant
// matching Type is set; the others are nil. Only the payload is ever
// encrypted — it must not carry indexable metadata.
type Payload struct {
	Type       ItemType
	APIKey     *APIKeyData
	Database   *DatabaseData
	Server     *ServerData
	SSH        *SSHData
	Command    *CommandData
	SecureNote *SecureNoteData
}

// payloadEnvelope is the persisted encoding: an explicit discriminant plus
// the variant body.
type payloadEnvelope struct {
	Type ItemType        `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// variant returns a pointer to whichever variant matches p.Type.
func (p *Payload) variant() (any, error) {
	switch p.Type {
	case TypeAPIKey:
		if p.APIKey == nil {
			p.APIKey = &APIKeyData{}
		}
		return p.APIKey, nil
	case TypeDatabase:
		if p.Database == nil {
			p.Database = &DatabaseData{}
		}
		return p.Database, nil
	case TypeServer:
		if p.Server == nil {
			p.Server = &ServerData{}
		}
		return p.Server, nil
	case TypeSSH:
		if p.SSH == nil {
			p.SSH = &SSHData{}
		}
		return p.SSH, nil
	case TypeCommand:
		if p.Command == nil {
			p.Command = &CommandData{}
		}
		return p.Command, nil
	case TypeSecureNote:
		if p.SecureNote == nil {
			p.SecureNote = &SecureNoteData{}
		}
		return p.SecureNote, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownItemType, p.Type)
	}
}

// MarshalJSON encodes the payload as {"type": ..., "data": {...}}.
func (p Payload) MarshalJSON() ([]byte, error) {
	v, err := p.variant()
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(payloadEnvelope{Type: p.Type, Data: data})
}

// UnmarshalJSON decodes a payload leniently: unknown fields are ignored,
// missing optional fields get their zero values, a missing data object
// decodes to an empty variant, and a nil extras list becomes an empty one.
// Only an unrecognized discriminant is an error.
func (p *Payload) UnmarshalJSON(b []byte) error {
	var env payloadEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}

	*p = Payload{Type: env.Type}
	v, err := p.variant()
	if err != nil {
		return err
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, v); err != nil {
			return err
		}
	}
	p.defaultExtras()
	return nil
}

// defaultExtras normalizes a nil extras list to an empty slice on the active
// variant, the documented per-field default.
func (p *Payload) defaultExtras() {
	switch p.Type {
	case TypeAPIKey:
		if p.APIKey.Extras == nil {
			p.APIKey.Extras = []ExtraField{}
		}
	case TypeDatabase:
		if p.Database.Extras == nil {
			p.Database.Extras = []ExtraField{}
		}
	case TypeServer:
		if p.Server.Extras == nil {
			p.Server.Extras = []ExtraField{}
		}
	case TypeSSH:
		if p.SSH.Extras == nil {
			p.SSH.Extras = []ExtraField{}
		}
	case TypeCommand:
		if p.Command.Extras == nil {
			p.Command.Extras = []ExtraField{}
		}
	case TypeSecureNote:
		if p.SecureNote.Extras == nil {
			p.SecureNote.Extras = []ExtraField{}
		}
	}
}
