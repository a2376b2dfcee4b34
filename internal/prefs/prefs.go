// Package prefs is the persisted key/value store the split fetcher reads its
// session settings from. It is a YAML file managed through viper, with
// SPLITFETCH_<KEY> environment overrides.
package prefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

const (
	KeyInstallURL = "install_url"
	KeyVariant    = "vanced_variant"
	KeyLanguage   = "lang"
	KeyTheme      = "theme"
)

type Variant string

const (
	VariantRoot    Variant = "root"
	VariantNonRoot Variant = "nonroot"
)

var ErrUnknownKey = errors.New("unknown preference key")

var defaults = map[string]string{
	KeyInstallURL: "",
	KeyVariant:    string(VariantNonRoot),
	KeyLanguage:   "en",
	KeyTheme:      "dark",
}

// Values is a point-in-time read of every key.
type Values struct {
	InstallURL string
	Variant    Variant
	Language   string
	Theme      string
}

// Store reads through v, which layers env overrides and defaults over the
// file. Only file holds what gets written back.
type Store struct {
	v    *viper.Viper
	file *viper.Viper
	path string
}

// DefaultPath returns prefs.yaml under the user config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "splitfetch", "prefs.yaml")
}

// Load opens the preference file at path. A missing file is not an error;
// every key then reads as its default.
func Load(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath()
	}
	v := viper.New()
	v.SetEnvPrefix("SPLITFETCH")
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	file := viper.New()
	file.SetConfigFile(path)
	file.SetConfigType("yaml")
	if err := file.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("error reading preferences: %v", err)
		}
	}
	if err := v.MergeConfigMap(file.AllSettings()); err != nil {
		return nil, fmt.Errorf("error reading preferences: %v", err)
	}
	return &Store{v: v, file: file, path: path}, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Keys() []string {
	keys := make([]string, 0, len(defaults))
	for key := range defaults {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) Get(key string) (string, error) {
	if _, ok := defaults[key]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return s.v.GetString(key), nil
}

func (s *Store) Set(key, value string) error {
	if _, ok := defaults[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if key == KeyVariant {
		if _, err := ParseVariant(value); err != nil {
			return err
		}
	}
	value = strings.TrimSpace(value)
	s.v.Set(key, value)
	s.file.Set(key, value)
	return nil
}

func (s *Store) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("error creating preferences directory: %v", err)
	}
	if err := s.file.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("error writing preferences: %v", err)
	}
	return nil
}

// Read takes a snapshot of every key. An unrecognised variant reads as
// non-root, matching how the installer is picked.
func (s *Store) Read() Values {
	variant, err := ParseVariant(s.v.GetString(KeyVariant))
	if err != nil {
		variant = VariantNonRoot
	}
	return Values{
		InstallURL: strings.TrimSpace(s.v.GetString(KeyInstallURL)),
		Variant:    variant,
		Language:   s.v.GetString(KeyLanguage),
		Theme:      s.v.GetString(KeyTheme),
	}
}

func ParseVariant(value string) (Variant, error) {
	switch Variant(strings.ToLower(strings.TrimSpace(value))) {
	case VariantRoot:
		return VariantRoot, nil
	case VariantNonRoot:
		return VariantNonRoot, nil
	}
	return "", fmt.Errorf("invalid variant %q (want root or nonroot)", value)
}
