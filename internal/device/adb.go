// Package device talks to the target phone through the adb binary.
package device

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// Runner executes a command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	log.Debug().Str("op", "device/adb").Msgf("exec: %s", cmd.String())
	return cmd.CombinedOutput()
}

// ABISource reports the CPU ABIs a device supports, most preferred first.
type ABISource interface {
	SupportedABIs(ctx context.Context) ([]string, error)
}

// StaticABIs is an ABISource backed by a fixed list, e.g. from --abi.
type StaticABIs []string

func (s StaticABIs) SupportedABIs(context.Context) ([]string, error) {
	return s, nil
}

type ADB struct {
	Path   string
	Serial string
	Runner Runner
}

func NewADB(path, serial string) *ADB {
	if path == "" {
		path = "adb"
	}
	return &ADB{Path: path, Serial: serial, Runner: ExecRunner{}}
}

// Run invokes adb with args, targeting Serial when set.
func (a *ADB) Run(ctx context.Context, args ...string) ([]byte, error) {
	full := []string{}
	if a.Serial != "" {
		full = append(full, "-s", a.Serial)
	}
	full = append(full, args...)
	out, err := a.Runner.Run(ctx, a.Path, full...)
	if err != nil {
		return out, fmt.Errorf("adb %s failed: %v, output: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

func (a *ADB) Shell(ctx context.Context, args ...string) (string, error) {
	out, err := a.Run(ctx, append([]string{"shell"}, args...)...)
	return strings.TrimSpace(string(out)), err
}

func (a *ADB) Push(ctx context.Context, local, remote string) error {
	_, err := a.Run(ctx, "push", local, remote)
	return err
}

func (a *ADB) GetProp(ctx context.Context, property string) (string, error) {
	return a.Shell(ctx, "getprop", property)
}

// SupportedABIs reads ro.product.cpu.abilist, falling back to the single
// ro.product.cpu.abi on old devices.
func (a *ADB) SupportedABIs(ctx context.Context) ([]string, error) {
	list, err := a.GetProp(ctx, "ro.product.cpu.abilist")
	if err != nil {
		return nil, err
	}
	if list == "" {
		if list, err = a.GetProp(ctx, "ro.product.cpu.abi"); err != nil {
			return nil, err
		}
	}
	abis := ParseABIList(list)
	if len(abis) == 0 {
		return nil, fmt.Errorf("device reported no ABIs")
	}
	return abis, nil
}

func ParseABIList(list string) []string {
	var abis []string
	for _, abi := range strings.Split(list, ",") {
		if abi = strings.TrimSpace(abi); abi != "" {
			abis = append(abis, abi)
		}
	}
	return abis
}
