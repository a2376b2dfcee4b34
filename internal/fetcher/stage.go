package fetcher

import (
	"fmt"
	"strings"

	"github.com/juju/errors"
	"github.com/tanq16/splitfetch/internal/prefs"
)

// DefaultBaseURL is used when the install_url preference is empty.
const DefaultBaseURL = "https://vancedapp.com/api/v1"

type Stage int

const (
	StageArch Stage = iota
	StageTheme
	StageLang
	StageEnLang
	StateDone
	StateFailed
	// StateIdle is the state before the first split is requested.
	StateIdle
)

var stageNames = map[Stage]string{
	StageArch:   "arch",
	StageTheme:  "theme",
	StageLang:   "lang",
	StageEnLang: "enlang",
	StateDone:   "done",
	StateFailed: "failed",
	StateIdle:   "idle",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// ParseStage accepts the lowercase names used on the command line.
func ParseStage(name string) (Stage, error) {
	for stage, n := range stageNames {
		if n == strings.ToLower(name) && stage <= StageEnLang {
			return stage, nil
		}
	}
	return 0, errors.NotSupportedf("stage %q", name)
}

// IsUnsupportedStage reports whether err came from asking for a stage outside
// arch, theme, lang and enlang.
func IsUnsupportedStage(err error) bool {
	return errors.IsNotSupported(err)
}

// Snapshot is the session configuration, read once when the session starts.
type Snapshot struct {
	BaseURL  string
	Version  string
	Variant  prefs.Variant
	Language string
	Theme    string
	ABI      string
}

// SnapshotFromValues fills the preference part of a snapshot, applying the
// defaults for empty values. Version and ABI are resolved separately.
func SnapshotFromValues(values prefs.Values) Snapshot {
	snap := Snapshot{
		BaseURL:  strings.TrimSuffix(values.InstallURL, "/"),
		Variant:  values.Variant,
		Language: values.Language,
		Theme:    values.Theme,
	}
	if snap.BaseURL == "" {
		snap.BaseURL = DefaultBaseURL
	}
	if snap.Variant == "" {
		snap.Variant = prefs.VariantNonRoot
	}
	if snap.Language == "" {
		snap.Language = "en"
	}
	if snap.Theme == "" {
		snap.Theme = "dark"
	}
	return snap
}

// Request describes one split download.
type Request struct {
	Stage    Stage
	URL      string
	Dir      string
	FileName string
}

// StageURL builds the mirror URL of a split.
func StageURL(snap Snapshot, stage Stage) (string, error) {
	prefix := fmt.Sprintf("%s/apks/v%s/%s", strings.TrimSuffix(snap.BaseURL, "/"), snap.Version, snap.Variant)
	switch stage {
	case StageArch:
		return fmt.Sprintf("%s/Arch/split_config.%s.apk", prefix, snap.ABI), nil
	case StageTheme:
		return fmt.Sprintf("%s/Theme/%s.apk", prefix, snap.Theme), nil
	case StageLang:
		return fmt.Sprintf("%s/Language/split_config.%s.apk", prefix, snap.Language), nil
	case StageEnLang:
		return prefix + "/Language/split_config.en.apk", nil
	}
	return "", errors.NotSupportedf("split stage %s", stage)
}

// SelectABI picks the architecture split for a device. x86 wins over
// arm64-v8a, anything else gets armeabi_v7a.
func SelectABI(supported []string) string {
	has := func(abi string) bool {
		for _, s := range supported {
			if s == abi {
				return true
			}
		}
		return false
	}
	switch {
	case has("x86"):
		return "x86"
	case has("arm64-v8a"):
		return "arm64_v8a"
	}
	return "armeabi_v7a"
}
