package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/feedline/scheduler/config"
	"github.com/feedline/scheduler/errors"
)

// ConfigCmd shows the resolved configuration
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration operations",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration as TOML",
	Long:  "Print the effective configuration after defaults, scheduler.toml, and SCHEDULER_ environment variables are applied.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		data, err := config.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to render configuration")
		}

		if path := config.FindConfigPath(); path != "" {
			fmt.Printf("# loaded from %s\n", path)
		} else {
			fmt.Println("# no scheduler.toml found, showing defaults")
		}
		fmt.Print(string(data))
		return nil
	},
}

func init() {
	ConfigCmd.AddCommand(configShowCmd)
}
