package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voicemode/audio-manager/internal/service"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create or show the configuration file",
	Long:  "Writes the default configuration to the config path if it does not exist, then prints its location and contents.",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		path := configFile
		if path == "" {
			path = defaultConfigPath()
		}
		if path == "" {
			return fmt.Errorf("cannot determine config path: no home directory")
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := service.WriteDefault(path); err != nil {
				return err
			}
			fmt.Println("Wrote default config to", path)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		fmt.Println(path)
		fmt.Print(string(data))
		return nil
	},
}
