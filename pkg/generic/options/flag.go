package options

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"
	"sigs.k8s.io/yaml"
)

const (
	flagConfig        = "config"
	flagHelp          = "help"
	flagDefaultConfig = "default-config"
)

// Optioner is implemented by the options struct of a command, BaseOptions is embedded in it.
type Optioner interface {
	AddFlags(*pflag.FlagSet)
	GetBaseOptions() *BaseOptions
}

type BaseOptions struct {
	ConfigFile string               `json:"-"`
	Logging    LoggingConfiguration `json:"logging"`
}

func NewDefaultBaseOptions() BaseOptions {
	return BaseOptions{
		Logging: NewDefaultLoggingConfiguration(),
	}
}

func (bo *BaseOptions) GetBaseOptions() *BaseOptions {
	return bo
}

// AddBaseFlags adds --config, the logging flags, --help and --default-config.
func (bo *BaseOptions) AddBaseFlags(cmd *cobra.Command, fs *pflag.FlagSet) {
	bo.addConfigAndLogging(fs)
	fs.BoolP(flagHelp, "h", false, fmt.Sprintf("help for %s", cmd.Name()))
	fs.Bool(flagDefaultConfig, false, "Print the default configuration as yaml and exit, a starting point for a config file.")
	setUsage(cmd, fs)
}

func (bo *BaseOptions) addConfigAndLogging(fs *pflag.FlagSet) {
	fs.StringVarP(&bo.ConfigFile, flagConfig, "c", bo.ConfigFile, "Yaml file the initial configuration is loaded from, ${VAR} references are expanded from the environment. Command-line flags override values from this file.")
	bo.Logging.BindLoggingFlags(fs)
}

func (bo *BaseOptions) ValidateAndApply() error {
	return bo.Logging.ValidateAndApply()
}

// setUsage keeps cobra from appending its global flags to the help text.
func setUsage(cmd *cobra.Command, fs *pflag.FlagSet) {
	const usageFmt = "Usage:\n  %s\n\nFlags:\n%s"
	cmd.SetUsageFunc(func(cmd *cobra.Command) error {
		_, _ = fmt.Fprintf(cmd.OutOrStderr(), usageFmt, cmd.UseLine(), fs.FlagUsagesWrapped(2))
		return nil
	})
	cmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n"+usageFmt, cmd.Long, cmd.UseLine(), fs.FlagUsagesWrapped(2))
	})
}

// PrintHelpIfRequested reports whether --help was given, the help text is already written then.
func PrintHelpIfRequested(cmd *cobra.Command, fs *pflag.FlagSet) (bool, error) {
	help, err := fs.GetBool(flagHelp)
	if err != nil {
		return false, err
	}
	if help {
		_ = cmd.Help()
	}
	return help, nil
}

// PrintDefaultConfigIfRequested reports whether --default-config was given, the yaml of
// defaults is already written to out then.
func PrintDefaultConfigIfRequested(out io.Writer, defaults interface{}, fs *pflag.FlagSet) (bool, error) {
	requested, err := fs.GetBool(flagDefaultConfig)
	if err != nil || !requested {
		return false, err
	}
	data, err := yaml.Marshal(defaults)
	if err != nil {
		return true, err
	}
	_, err = fmt.Fprintf(out, "# Default configuration, every field set to its default value.\n\n%s", data)
	return true, err
}

// ParseAndApplyConfigFile loads the config file into o, then re-parses args so that flags win
// over the file.
func ParseAndApplyConfigFile(o Optioner, args []string) error {
	path := o.GetBaseOptions().ConfigFile
	if len(path) == 0 {
		return nil
	}
	if err := loadConfigFile(path, o); err != nil {
		return err
	}

	fs := pflag.NewFlagSet("", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	// flags of the command itself, e.g. --version
	fs.ParseErrorsWhitelist.UnknownFlags = true
	o.AddFlags(fs)
	o.GetBaseOptions().addConfigAndLogging(fs)
	fs.BoolP(flagHelp, "h", false, "")
	fs.Bool(flagDefaultConfig, false, "")
	return fs.Parse(args)
}

func loadConfigFile(path string, out interface{}) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		klog.ErrorS(err, "Failed to read config file", "file", abs)
		return err
	}
	if err := yaml.UnmarshalStrict([]byte(os.ExpandEnv(string(data))), out); err != nil {
		klog.ErrorS(err, "Failed to unmarshal config file", "file", abs)
		return fmt.Errorf("config file %s: %w", abs, err)
	}
	klog.V(2).InfoS("Loaded config file", "file", abs)
	return nil
}
