package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/ThomasHabets/nbdtarget/internal/log"
	"github.com/ThomasHabets/nbdtarget/target"
)

const envPrefix = "NBDTARGET"

// Container formats.
const (
	FormatZip = "zip"
	FormatTar = "tar"
)

// Stdout as output path means the archive goes to standard output.
const Stdout = "-"

var ErrConfigNotFound = errors.New("config file not found")

type Logging struct {
	Level      string `mapstructure:"level"`
	Structured bool   `mapstructure:"structured"`
	File       string `mapstructure:"file"`
}

// Options are the recognized settings for one run.
type Options struct {
	Stdout           bool    `mapstructure:"stdout"`  // --stdout, write an archive container to standard output
	Archive          bool    `mapstructure:"archive"` // --archive, write an archive container to Output
	Output           string  `mapstructure:"output"`  // -o, output directory, or archive path in archive mode
	Format           string  `mapstructure:"format"`
	CompressionLevel int     `mapstructure:"compression-level"`
	FileMode         uint32  `mapstructure:"file-mode"`
	Log              Logging `mapstructure:"log"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("stdout", false)
	v.SetDefault("archive", false)
	v.SetDefault("output", ".")
	v.SetDefault("format", FormatZip)
	v.SetDefault("compression-level", -1)
	v.SetDefault("file-mode", 0o600)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.structured", false)
	v.SetDefault("log.file", "")
}

// Load reads defaults, environment, the optional file at path and whatever
// flags are bound to v, then validates the result.
func Load(v *viper.Viper, path string) (*Options, error) {
	SetDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := readConfig(v, path); err != nil && !errors.Is(err, ErrConfigNotFound) {
		return nil, err
	}

	o := &Options{}
	if err := v.Unmarshal(o); err != nil {
		return nil, fmt.Errorf("unable to parse config: %w", err)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	return o, nil
}

func readConfig(v *viper.Viper, path string) error {
	if path == "" {
		return ErrConfigNotFound
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("unable to read config %q: %w", path, err)
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("unable to read config %q: %w", path, err)
	}
	log.Debugf("read config from %q", path)
	return nil
}

func (o *Options) validate() error {
	if o.Stdout {
		o.Output = Stdout
	}
	if o.Output == "" {
		return errors.New("output must not be empty")
	}
	switch o.Format {
	case FormatZip, FormatTar:
	default:
		return fmt.Errorf("unknown archive format %q", o.Format)
	}
	if o.CompressionLevel < -1 || o.CompressionLevel > 9 {
		return fmt.Errorf("compression level %d out of range [-1, 9]", o.CompressionLevel)
	}
	if o.FileMode == 0 || o.FileMode > 0o777 {
		return fmt.Errorf("bad file mode %#o", o.FileMode)
	}
	return nil
}

// ArchiveMode reports whether data goes into an archive container.
func (o *Options) ArchiveMode() bool {
	return o.Stdout || o.Archive
}

// Target returns the resolver configuration.
func (o *Options) Target() target.Config {
	return target.Config{UseArchiveContainer: o.ArchiveMode()}
}

// LogConfig returns the logger configuration.
func (o *Options) LogConfig() log.Config {
	return log.Config{
		Level:      o.Log.Level,
		Structured: o.Log.Structured,
		File:       o.Log.File,
	}
}
