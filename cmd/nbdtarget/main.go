package main

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/ThomasHabets/nbdtarget/config"
	"github.com/ThomasHabets/nbdtarget/internal/log"
)

const version = "0.1"

func newRootCmd(v *viper.Viper, b *backup) *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:           "nbdtarget [flags] [name=]source...",
		Short:         "Write exported disk data to plain files or an archive container",
		Version:       version,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := config.Load(v, cfgPath)
			if err != nil {
				return err
			}
			l, closer, err := log.Setup(opts.LogConfig())
			if err != nil {
				return err
			}
			defer log.CloseAndLogError(closer, "log file")
			log.Set(l)

			sources := make([]source, 0, len(args))
			for _, a := range args {
				s, err := parseSource(a)
				if err != nil {
					return err
				}
				sources = append(sources, s)
			}
			b.opts = opts
			return b.run(sources)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfgPath, "config", "c", "", "YAML config file.")
	flags.Bool("stdout", false, "Write a zip/tar archive container to standard output.")
	flags.Bool("archive", false, "Write an archive container to the output path.")
	flags.StringP("output", "o", ".", "Output directory, or archive path with -archive.")
	flags.String("format", config.FormatZip, "Archive container format: zip or tar.")
	flags.Int("compression-level", -1, "Zip deflate level, 0 stores uncompressed.")
	flags.String("log-level", "info", "Log level.")
	flags.Bool("log-structured", false, "Log as JSON.")
	flags.String("log-file", "", "Also log to this file.")

	for key, flag := range map[string]string{
		"stdout":            "stdout",
		"archive":           "archive",
		"output":            "output",
		"format":            "format",
		"compression-level": "compression-level",
		"log.level":         "log-level",
		"log.structured":    "log-structured",
		"log.file":          "log-file",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
	return cmd
}

func main() {
	b := &backup{
		fs:     afero.NewOsFs(),
		stdin:  os.Stdin,
		stdout: os.Stdout,
		isTerminal: func() bool {
			return term.IsTerminal(int(os.Stdout.Fd()))
		},
	}
	if err := newRootCmd(viper.New(), b).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "nbdtarget: %v\n", err)
		os.Exit(1)
	}
}
