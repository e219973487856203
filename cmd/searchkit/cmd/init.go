package cmd

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/searchkit/configs"
	"github.com/Aman-CERP/searchkit/internal/config"
	serrors "github.com/Aman-CERP/searchkit/internal/errors"
)

func (a *app) initCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a commented " + config.FileName + " with the default settings",
		Args:  cobra.MaximumNArgs(1),
		// Runs before any configuration exists.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			path := filepath.Join(dir, config.FileName)

			flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
			if force {
				flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
			}
			f, err := os.OpenFile(path, flags, 0o644)
			if errors.Is(err, fs.ErrExist) {
				return serrors.ValidationError(path+" already exists", err).
					WithSuggestion("pass --force to overwrite it")
			}
			if err != nil {
				return serrors.IOError("failed to create config file", err).WithDetail("path", path)
			}
			if _, err := f.WriteString(configs.Template); err != nil {
				_ = f.Close()
				return serrors.IOError("failed to write config file", err).WithDetail("path", path)
			}
			if err := f.Close(); err != nil {
				return serrors.IOError("failed to write config file", err).WithDetail("path", path)
			}
			return a.out(cmd).Done("wrote %s", path)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
