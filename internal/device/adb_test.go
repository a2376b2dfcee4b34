package device

import (
	"context"
	"errors"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
)

type fakeRunner struct {
	calls   []string
	outputs map[string]string
	err     error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	call := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, call)
	for suffix, out := range f.outputs {
		if strings.HasSuffix(call, suffix) {
			return []byte(out), f.err
		}
	}
	return nil, f.err
}

func TestSupportedABIs(t *testing.T) {
	c := qt.New(t)
	runner := &fakeRunner{outputs: map[string]string{
		"ro.product.cpu.abilist": "arm64-v8a,armeabi-v7a,armeabi\n",
	}}
	adb := &ADB{Path: "adb", Serial: "emulator-5554", Runner: runner}
	abis, err := adb.SupportedABIs(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(abis, qt.DeepEquals, []string{"arm64-v8a", "armeabi-v7a", "armeabi"})
	c.Assert(runner.calls, qt.DeepEquals, []string{
		"adb -s emulator-5554 shell getprop ro.product.cpu.abilist",
	})
}

func TestSupportedABIsFallsBackToSingleABI(t *testing.T) {
	c := qt.New(t)
	runner := &fakeRunner{outputs: map[string]string{
		"ro.product.cpu.abilist": "",
		"ro.product.cpu.abi":     "x86\n",
	}}
	adb := &ADB{Path: "adb", Runner: runner}
	abis, err := adb.SupportedABIs(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(abis, qt.DeepEquals, []string{"x86"})
	c.Assert(runner.calls, qt.HasLen, 2)
}

func TestRunWrapsFailure(t *testing.T) {
	c := qt.New(t)
	runner := &fakeRunner{
		outputs: map[string]string{"push a.apk /data/local/tmp/": "error: no devices/emulators found"},
		err:     errors.New("exit status 1"),
	}
	adb := &ADB{Path: "adb", Runner: runner}
	err := adb.Push(context.Background(), "a.apk", "/data/local/tmp/")
	c.Assert(err, qt.ErrorMatches, "adb push failed: exit status 1, output: error: no devices/emulators found")
}

func TestStaticABIs(t *testing.T) {
	c := qt.New(t)
	abis, err := StaticABIs(ParseABIList(" x86 , arm64-v8a,")).SupportedABIs(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(abis, qt.DeepEquals, []string{"x86", "arm64-v8a"})
}
