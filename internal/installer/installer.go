// Package installer hands a downloaded split set to the device, either
// through adb install-multiple or through a root shell running pm.
package installer

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/splitfetch/internal/device"
)

// Installer installs the split set described by the manifest in dir.
type Installer interface {
	Name() string
	Install(ctx context.Context, dir string) error
}

// NonRootSplitInstaller uses adb install-multiple.
type NonRootSplitInstaller struct {
	ADB    *device.ADB
	DryRun bool
}

func (i *NonRootSplitInstaller) Name() string { return "NonRootSplitInstaller" }

func (i *NonRootSplitInstaller) Install(ctx context.Context, dir string) error {
	m, err := ReadManifest(dir)
	if err != nil {
		return err
	}
	args := []string{"install-multiple", "-r"}
	for _, s := range m.Ordered() {
		args = append(args, filepath.Join(dir, s.File))
	}
	log.Info().Str("op", "installer/installer").Msgf("installing %d splits with adb install-multiple", len(m.Splits))
	if i.DryRun {
		log.Info().Str("op", "installer/installer").Msgf("[DRY RUN] would run: adb %s", strings.Join(args, " "))
		return nil
	}
	out, err := i.ADB.Run(ctx, args...)
	if err != nil {
		return err
	}
	if !strings.Contains(string(out), "Success") {
		return fmt.Errorf("installation failed: %s", strings.TrimSpace(string(out)))
	}
	log.Info().Str("op", "installer/installer").Msg("split set installed")
	return nil
}

const rootStagingDir = "/data/local/tmp/splitfetch"

var sessionIDRegex = regexp.MustCompile(`\[(\d+)\]`)

// RootSplitInstaller stages the splits on the device and drives a pm install
// session through su.
type RootSplitInstaller struct {
	ADB    *device.ADB
	DryRun bool
}

func (i *RootSplitInstaller) Name() string { return "RootSplitInstaller" }

func (i *RootSplitInstaller) su(ctx context.Context, command string) (string, error) {
	return i.ADB.Shell(ctx, "su", "-c", fmt.Sprintf("'%s'", command))
}

func (i *RootSplitInstaller) Install(ctx context.Context, dir string) error {
	m, err := ReadManifest(dir)
	if err != nil {
		return err
	}
	splits := m.Ordered()
	var total int64
	for _, s := range splits {
		total += s.Size
	}
	if i.DryRun {
		log.Info().Str("op", "installer/installer").Msgf("[DRY RUN] would install %d splits (%d bytes) through pm as root", len(splits), total)
		return nil
	}

	if _, err := i.ADB.Shell(ctx, "mkdir", "-p", rootStagingDir); err != nil {
		return err
	}
	defer func() {
		if _, err := i.ADB.Shell(context.WithoutCancel(ctx), "rm", "-rf", rootStagingDir); err != nil {
			log.Warn().Str("op", "installer/installer").Err(err).Msg("could not remove staging directory")
		}
	}()
	for _, s := range splits {
		if err := i.ADB.Push(ctx, filepath.Join(dir, s.File), path.Join(rootStagingDir, s.File)); err != nil {
			return err
		}
	}

	out, err := i.su(ctx, fmt.Sprintf("pm install-create -r -S %d", total))
	if err != nil {
		return err
	}
	match := sessionIDRegex.FindStringSubmatch(out)
	if match == nil {
		return fmt.Errorf("could not parse install session from %q", out)
	}
	sessionID := match[1]
	log.Debug().Str("op", "installer/installer").Msgf("created install session %s", sessionID)

	for idx, s := range splits {
		cmd := fmt.Sprintf("pm install-write -S %d %s %d %s", s.Size, sessionID, idx, path.Join(rootStagingDir, s.File))
		if out, err := i.su(ctx, cmd); err != nil || !strings.Contains(out, "Success") {
			i.abandon(ctx, sessionID)
			if err == nil {
				err = fmt.Errorf("pm install-write %s: %s", s.File, out)
			}
			return err
		}
	}
	out, err = i.su(ctx, "pm install-commit "+sessionID)
	if err != nil {
		return err
	}
	if !strings.Contains(out, "Success") {
		return fmt.Errorf("installation failed: %s", out)
	}
	log.Info().Str("op", "installer/installer").Msg("split set installed as root")
	return nil
}

func (i *RootSplitInstaller) abandon(ctx context.Context, sessionID string) {
	if _, err := i.su(context.WithoutCancel(ctx), "pm install-abandon "+sessionID); err != nil {
		log.Warn().Str("op", "installer/installer").Err(err).Msgf("could not abandon session %s", sessionID)
	}
}
