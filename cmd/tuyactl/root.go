package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/fastybird-io/gotuya/proto"
	"github.com/fastybird-io/gotuya/tuyalog"
)

var rosterPath string

// versionOverride lets --version force a protocol dialect on the command
// line instead of trusting whatever the roster file says for that device;
// it implements pflag.Value directly (rather than StringVar) so an invalid
// dialect is rejected at flag-parse time instead of surfacing later as a
// confusing WireBody error.
type versionOverride struct {
	value proto.Version
}

func (v *versionOverride) String() string {
	return string(v.value)
}

func (v *versionOverride) Set(s string) error {
	switch proto.Version(s) {
	case proto.V31, proto.V33:
		v.value = proto.Version(s)
		return nil
	default:
		return fmt.Errorf("unknown protocol version %q, want %q or %q", s, proto.V31, proto.V33)
	}
}

func (v *versionOverride) Type() string { return "version" }

var versionFlag versionOverride

var rootCmd = &cobra.Command{
	Use:   "tuyactl",
	Short: "Talk to Tuya LAN devices directly, without the cloud",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rosterPath, "roster", "devices.yaml",
		"path to the YAML file describing known devices")
	rootCmd.PersistentFlags().Var(&versionFlag, "version",
		"override the roster's protocol version for this invocation (3.1 or 3.3)")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(rosterCmd)
}

// applyVersionOverride returns entry with its Version replaced by the
// --version flag when the caller set one, per pflag.Flag.Changed.
func applyVersionOverride(fs *pflag.FlagSet, entry rosterEntry) rosterEntry {
	if fs.Changed("version") {
		entry.Version = versionFlag.value
	}
	return entry
}

func newLogger() tuyalog.Logger {
	zapOpts := zap.Options{
		Development: true,
		TimeEncoder: zapcore.ISO8601TimeEncoder,
		DestWriter:  os.Stdout,
	}
	return tuyalog.New(zap.New(zap.UseFlagOptions(&zapOpts)))
}

func main() {
	cobra.CheckErr(rootCmd.Execute())
}
