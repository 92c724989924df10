// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"smarthome/internal/config"
)

var (
	configRole string
	configFile string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage device configuration",
	Long:  `Generate or validate device configuration files.`,
}

var configGenerateCmd = &cobra.Command{
	Use:   "generate [config-file]",
	Short: "Generate default configuration file",
	Long:  `Generate a default configuration file for a master, slave or app.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile
		if len(args) > 0 {
			path = args[0]
		}

		defaultConfig, err := config.NewDefaultConfig(configRole)
		if err != nil {
			return err
		}
		if err := defaultConfig.Save(path); err != nil {
			return fmt.Errorf("failed to save default config: %w", err)
		}

		cmd.Printf("Default %s configuration saved to: %s\n", configRole, path)
		cmd.Printf("Device ID: %s\n", defaultConfig.Device.ID)
		if configRole != config.RoleMaster {
			cmd.Println("Please set master.id and master.endpoint to your master.")
		}
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate configuration file",
	Long:  `Validate a configuration file for syntax and required fields.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile
		if len(args) > 0 {
			path = args[0]
		}

		cfg, err := config.LoadConfig(path)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		cmd.Printf("Configuration file is valid: %s\n", path)
		cmd.Printf("Device: %s (%s)\n", cfg.Device.ID, cfg.Device.Role)
		cmd.Printf("Master: %s\n", cfg.Master.ID)
		cmd.Printf("Transport: %s\n", cfg.Transport.Kind)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configGenerateCmd)
	configCmd.AddCommand(configValidateCmd)

	configCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "smarthome.yml", "Path to configuration file")
	configGenerateCmd.Flags().StringVarP(&configRole, "role", "r", config.RoleMaster, "Device role: master, slave or app")
}
