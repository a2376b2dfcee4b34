package prefs

import (
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	c := qt.New(t)
	store, err := Load(filepath.Join(t.TempDir(), "prefs.yaml"))
	c.Assert(err, qt.IsNil)
	c.Assert(store.Read(), qt.DeepEquals, Values{
		Variant:  VariantNonRoot,
		Language: "en",
		Theme:    "dark",
	})
}

func TestLoadReadsFile(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	content := "install_url: https://mirror.example.com\nvanced_variant: root\nlang: fr\ntheme: black\n"
	c.Assert(os.WriteFile(path, []byte(content), 0644), qt.IsNil)

	store, err := Load(path)
	c.Assert(err, qt.IsNil)
	c.Assert(store.Read(), qt.DeepEquals, Values{
		InstallURL: "https://mirror.example.com",
		Variant:    VariantRoot,
		Language:   "fr",
		Theme:      "black",
	})
}

func TestSetSaveRoundTrip(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(t.TempDir(), "nested", "prefs.yaml")
	store, err := Load(path)
	c.Assert(err, qt.IsNil)
	c.Assert(store.Set(KeyLanguage, "de"), qt.IsNil)
	c.Assert(store.Set(KeyVariant, "root"), qt.IsNil)
	c.Assert(store.Save(), qt.IsNil)

	reloaded, err := Load(path)
	c.Assert(err, qt.IsNil)
	lang, err := reloaded.Get(KeyLanguage)
	c.Assert(err, qt.IsNil)
	c.Assert(lang, qt.Equals, "de")
	c.Assert(reloaded.Read().Variant, qt.Equals, VariantRoot)
}

func TestSetRejectsBadInput(t *testing.T) {
	c := qt.New(t)
	store, err := Load(filepath.Join(t.TempDir(), "prefs.yaml"))
	c.Assert(err, qt.IsNil)
	c.Assert(store.Set("colour", "blue"), qt.ErrorIs, ErrUnknownKey)
	c.Assert(store.Set(KeyVariant, "sudo"), qt.ErrorMatches, `invalid variant "sudo".*`)
	_, err = store.Get("colour")
	c.Assert(err, qt.ErrorIs, ErrUnknownKey)
}

func TestUnknownVariantReadsAsNonRoot(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	c.Assert(os.WriteFile(path, []byte("vanced_variant: magisk\n"), 0644), qt.IsNil)
	store, err := Load(path)
	c.Assert(err, qt.IsNil)
	c.Assert(store.Read().Variant, qt.Equals, VariantNonRoot)
}

func TestEnvironmentOverride(t *testing.T) {
	c := qt.New(t)
	c.Setenv("SPLITFETCH_THEME", "black")
	store, err := Load(filepath.Join(t.TempDir(), "prefs.yaml"))
	c.Assert(err, qt.IsNil)
	c.Assert(store.Read().Theme, qt.Equals, "black")
}

func TestSaveKeepsEnvironmentOutOfFile(t *testing.T) {
	c := qt.New(t)
	c.Setenv("SPLITFETCH_INSTALL_URL", "https://env-only.example")
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	c.Assert(os.WriteFile(path, []byte("lang: fr\n"), 0644), qt.IsNil)

	store, err := Load(path)
	c.Assert(err, qt.IsNil)
	c.Assert(store.Read().InstallURL, qt.Equals, "https://env-only.example")
	c.Assert(store.Set(KeyTheme, "black"), qt.IsNil)
	c.Assert(store.Save(), qt.IsNil)

	data, err := os.ReadFile(path)
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Not(qt.Contains), "install_url")
	c.Assert(string(data), qt.Not(qt.Contains), "vanced_variant")
	c.Assert(string(data), qt.Contains, "lang: fr")
	c.Assert(string(data), qt.Contains, "theme: black")
}
