package options

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"k8s.io/component-base/config"
	"k8s.io/component-base/logs"
	"k8s.io/component-base/logs/registry"
)

// LoggingConfiguration is the logging block of the config file, the same settings are
// available as -v, --vmodule and --logging-format.
type LoggingConfiguration struct {
	Format    string                      `json:"format"`
	Verbosity config.VerbosityLevel       `json:"verbosity"`
	VModule   config.VModuleConfiguration `json:"vmodule,omitempty"`
}

func NewDefaultLoggingConfiguration() LoggingConfiguration {
	return LoggingConfiguration{
		Format:    "text",
		Verbosity: 2,
	}
}

func (l *LoggingConfiguration) ValidateAndApply() error {
	o := logs.NewOptions()
	o.Config.Format = l.Format
	o.Config.Verbosity = l.Verbosity
	o.Config.VModule = l.VModule
	return o.ValidateAndApply()
}

func (l *LoggingConfiguration) BindLoggingFlags(fs *pflag.FlagSet) {
	formats := fmt.Sprintf(`"%s"`, strings.Join(registry.LogRegistry.List(), `", "`))
	fs.StringVar(&l.Format, "logging-format", l.Format, fmt.Sprintf("Sets the log format. Permitted formats: %s.", formats))
	fs.VarP(&l.Verbosity, "v", "v", "number for the log level verbosity")
	fs.Var(&l.VModule, "vmodule", "comma-separated list of pattern=N settings for file-filtered logging (only works for text log format)")
}
