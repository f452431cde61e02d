package signing

import (
	"encoding/json"

	"go.uber.org/zap/zapcore"
)

// Property names every credential file must define.
const (
	FieldKeyAlias      = "keyAlias"
	FieldKeyPassword   = "keyPassword"
	FieldStoreFile     = "storeFile"
	FieldStorePassword = "storePassword"
)

// RequiredFields lists the mandatory properties in the order they are checked.
var RequiredFields = []string{FieldKeyAlias, FieldKeyPassword, FieldStoreFile, FieldStorePassword}

const redacted = "[redacted]"

// Secret holds sensitive material. Its printed, JSON and YAML forms are redacted.
type Secret string

// Reveal returns the raw secret value.
func (s Secret) Reveal() string {
	return string(s)
}

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s Secret) MarshalYAML() (any, error) {
	return s.String(), nil
}

// Credential is the key material bound to one signing identity.
type Credential struct {
	Identity      string `json:"identity" yaml:"identity"`
	KeyAlias      string `json:"keyAlias" yaml:"key_alias"`
	KeyPassword   Secret `json:"-" yaml:"-"`
	StoreFile     string `json:"storeFile" yaml:"store_file"`
	StorePassword Secret `json:"-" yaml:"-"`
	Source        string `json:"source" yaml:"source"`
}

// MarshalLogObject emits only the non-secret fields.
func (c Credential) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("identity", c.Identity)
	enc.AddString("key_alias", c.KeyAlias)
	enc.AddString("store_file", c.StoreFile)
	enc.AddString("source", c.Source)
	return nil
}

// Complete reports whether all four credential fields are populated.
func (c Credential) Complete() bool {
	return c.KeyAlias != "" && c.KeyPassword != "" && c.StoreFile != "" && c.StorePassword != ""
}
