package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagBinding ties a command-line flag to its key in the YAML schema.
type flagBinding struct {
	flag, key string
}

var bindings = []flagBinding{
	{"workers", "workers"},
	{"capacity", "capacity"},
	{"source-dir", "source.dir"},
	{"source-ext", "source.ext"},
	{"watch", "source.watch"},
	{"consume", "source.consume"},
	{"sink-dir", "sink.dir"},
	{"log-severity", "logging.severity"},
	{"log-format", "logging.format"},
	{"log-file", "logging.file-path"},
	{"log-rotate-max-file-size-mb", "logging.log-rotate.max-file-size-mb"},
	{"log-rotate-backup-file-count", "logging.log-rotate.backup-file-count"},
	{"log-rotate-compress", "logging.log-rotate.compress"},
	{"prometheus-port", "metrics.prometheus-port"},
}

// BindFlags defines every setting on flagSet, using d for the defaults, and
// returns a viper instance with the flags bound to their YAML keys.
func BindFlags(flagSet *pflag.FlagSet, d *Config) (*viper.Viper, error) {
	flagSet.IntP("workers", "w", d.Workers, "Number of worker goroutines. 0 means one per CPU.")
	flagSet.IntP("capacity", "c", d.Capacity, "Capacity of the bounded task queue.")
	flagSet.String("source-dir", d.Source.Dir, "Directory that task descriptors are read from.")
	flagSet.String("source-ext", d.Source.Ext, "Only files with this extension are treated as tasks. Empty accepts every file.")
	flagSet.Bool("watch", d.Source.Watch, "Keep running and pick up descriptors created after the initial scan.")
	flagSet.Bool("consume", d.Source.Consume, "Remove each descriptor file once it has been read.")
	flagSet.String("sink-dir", d.Sink.Dir, "Directory that results are written to.")
	flagSet.String("log-severity", string(d.Logging.Severity), "Lowest severity that is logged: TRACE, DEBUG, INFO, WARNING, ERROR or OFF.")
	flagSet.String("log-format", d.Logging.Format, "Log format: text or json.")
	flagSet.String("log-file", d.Logging.FilePath, "Write logs to this file instead of stdout.")
	flagSet.Int("log-rotate-max-file-size-mb", d.Logging.LogRotate.MaxFileSizeMB, "Size in MB at which the log file is rotated.")
	flagSet.Int("log-rotate-backup-file-count", d.Logging.LogRotate.BackupFileCount, "Number of rotated log files to keep. 0 keeps all.")
	flagSet.Bool("log-rotate-compress", d.Logging.LogRotate.Compress, "Gzip rotated log files.")
	flagSet.Int("prometheus-port", d.Metrics.PrometheusPort, "Serve Prometheus metrics on this port. 0 disables the listener.")

	v := viper.New()
	for _, b := range bindings {
		if err := v.BindPFlag(b.key, flagSet.Lookup(b.flag)); err != nil {
			return nil, fmt.Errorf("binding flag %q: %w", b.flag, err)
		}
	}
	return v, nil
}

// DecodeHook will be called by Viper while constructing the config object.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.TextUnmarshallerHookFunc()
}

// Load reads configFile, if set, underneath the bound flags and decodes the
// merged settings. The result is resolved and validated.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error while reading the config file: %w", err)
		}
	}

	var c Config
	err := v.Unmarshal(&c, viper.DecodeHook(DecodeHook()), func(decoderConfig *mapstructure.DecoderConfig) {
		decoderConfig.TagName = "yaml"
	})
	if err != nil {
		return nil, fmt.Errorf("error while unmarshaling the config: %w", err)
	}

	c.Resolve()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &c, nil
}
