package installer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/tanq16/splitfetch/internal/device"
)

type scriptedRunner struct {
	calls   []string
	replies []struct{ match, out string }
}

func (r *scriptedRunner) reply(match, out string) {
	r.replies = append(r.replies, struct{ match, out string }{match, out})
}

func (r *scriptedRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	call := name + " " + strings.Join(args, " ")
	r.calls = append(r.calls, call)
	for _, rep := range r.replies {
		if strings.Contains(call, rep.match) {
			return []byte(rep.out), nil
		}
	}
	return nil, nil
}

func writeSession(c *qt.C, withEnglish bool) string {
	dir := c.TempDir()
	m := &Manifest{
		Version:  "19",
		Variant:  "nonroot",
		ABI:      "x86",
		Language: "fr",
		Theme:    "dark",
		Splits: []Split{
			{Stage: "arch", File: "split_config.x86.apk", Size: 3},
			{Stage: "theme", File: "dark.apk", Size: 5},
			{Stage: "lang", File: "split_config.fr.apk", Size: 2},
		},
	}
	if withEnglish {
		m.Splits = append(m.Splits, Split{Stage: "enlang", File: "split_config.en.apk", Size: 2})
	}
	for _, s := range m.Splits {
		c.Assert(os.WriteFile(filepath.Join(dir, s.File), make([]byte, s.Size), 0644), qt.IsNil)
	}
	c.Assert(WriteManifest(dir, m), qt.IsNil)
	return dir
}

func TestManifestOrderedPutsBaseFirst(t *testing.T) {
	c := qt.New(t)
	dir := writeSession(c, true)
	m, err := ReadManifest(dir)
	c.Assert(err, qt.IsNil)
	var files []string
	for _, s := range m.Ordered() {
		files = append(files, s.File)
	}
	c.Assert(files, qt.DeepEquals, []string{"dark.apk", "split_config.x86.apk", "split_config.fr.apk", "split_config.en.apk"})
}

func TestReadManifestMissingSplit(t *testing.T) {
	c := qt.New(t)
	dir := writeSession(c, false)
	c.Assert(os.Remove(filepath.Join(dir, "dark.apk")), qt.IsNil)
	_, err := ReadManifest(dir)
	c.Assert(err, qt.ErrorMatches, "split dark.apk missing: .*")
}

func TestNonRootInstall(t *testing.T) {
	c := qt.New(t)
	dir := writeSession(c, false)
	runner := &scriptedRunner{}
	runner.reply("install-multiple", "Performing Streamed Install\nSuccess\n")
	inst := &NonRootSplitInstaller{ADB: &device.ADB{Path: "adb", Serial: "dev1", Runner: runner}}

	c.Assert(inst.Install(context.Background(), dir), qt.IsNil)
	c.Assert(runner.calls, qt.DeepEquals, []string{
		"adb -s dev1 install-multiple -r " + strings.Join([]string{
			filepath.Join(dir, "dark.apk"),
			filepath.Join(dir, "split_config.x86.apk"),
			filepath.Join(dir, "split_config.fr.apk"),
		}, " "),
	})
}

func TestNonRootInstallFailureOutput(t *testing.T) {
	c := qt.New(t)
	dir := writeSession(c, false)
	runner := &scriptedRunner{}
	runner.reply("install-multiple", "Failure [INSTALL_FAILED_UPDATE_INCOMPATIBLE]")
	inst := &NonRootSplitInstaller{ADB: &device.ADB{Path: "adb", Runner: runner}}
	err := inst.Install(context.Background(), dir)
	c.Assert(err, qt.ErrorMatches, `installation failed: Failure \[INSTALL_FAILED_UPDATE_INCOMPATIBLE\]`)
}

func TestNonRootDryRun(t *testing.T) {
	c := qt.New(t)
	dir := writeSession(c, false)
	runner := &scriptedRunner{}
	inst := &NonRootSplitInstaller{ADB: &device.ADB{Path: "adb", Runner: runner}, DryRun: true}
	c.Assert(inst.Install(context.Background(), dir), qt.IsNil)
	c.Assert(runner.calls, qt.HasLen, 0)
}

func TestRootInstall(t *testing.T) {
	c := qt.New(t)
	dir := writeSession(c, true)
	runner := &scriptedRunner{}
	runner.reply("pm install-create", "Success: created install session [1234]")
	runner.reply("pm install-write", "Success: streamed 5 bytes")
	runner.reply("pm install-commit", "Success")
	inst := &RootSplitInstaller{ADB: &device.ADB{Path: "adb", Runner: runner}}

	c.Assert(inst.Install(context.Background(), dir), qt.IsNil)
	c.Assert(runner.calls, qt.DeepEquals, []string{
		"adb shell mkdir -p /data/local/tmp/splitfetch",
		"adb push " + filepath.Join(dir, "dark.apk") + " /data/local/tmp/splitfetch/dark.apk",
		"adb push " + filepath.Join(dir, "split_config.x86.apk") + " /data/local/tmp/splitfetch/split_config.x86.apk",
		"adb push " + filepath.Join(dir, "split_config.fr.apk") + " /data/local/tmp/splitfetch/split_config.fr.apk",
		"adb push " + filepath.Join(dir, "split_config.en.apk") + " /data/local/tmp/splitfetch/split_config.en.apk",
		"adb shell su -c 'pm install-create -r -S 12'",
		"adb shell su -c 'pm install-write -S 5 1234 0 /data/local/tmp/splitfetch/dark.apk'",
		"adb shell su -c 'pm install-write -S 3 1234 1 /data/local/tmp/splitfetch/split_config.x86.apk'",
		"adb shell su -c 'pm install-write -S 2 1234 2 /data/local/tmp/splitfetch/split_config.fr.apk'",
		"adb shell su -c 'pm install-write -S 2 1234 3 /data/local/tmp/splitfetch/split_config.en.apk'",
		"adb shell su -c 'pm install-commit 1234'",
		"adb shell rm -rf /data/local/tmp/splitfetch",
	})
}

func TestRootInstallAbandonsOnWriteFailure(t *testing.T) {
	c := qt.New(t)
	dir := writeSession(c, false)
	runner := &scriptedRunner{}
	runner.reply("pm install-create", "Success: created install session [77]")
	runner.reply("pm install-write", "Error: unable to open file")
	inst := &RootSplitInstaller{ADB: &device.ADB{Path: "adb", Runner: runner}}

	err := inst.Install(context.Background(), dir)
	c.Assert(err, qt.ErrorMatches, "pm install-write dark.apk: Error: unable to open file")
	c.Assert(runner.calls[len(runner.calls)-2], qt.Equals, "adb shell su -c 'pm install-abandon 77'")
}
