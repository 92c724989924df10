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
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"smarthome/internal/config"
	"smarthome/internal/logger"
	"smarthome/internal/node"
)

var (
	configPath string
	debugFlag  bool
)

var masterCmd = &cobra.Command{
	Use:   "master",
	Short: "Start the master daemon",
	Long: `The master binds the message socket, owns the permission store and the
module catalogue and forwards requests from apps to the slaves driving the
hardware.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode(config.RoleMaster)
	},
}

var slaveCmd = &cobra.Command{
	Use:   "slave",
	Short: "Start a slave daemon",
	Long:  `A slave connects to the master and drives the modules attached to it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode(config.RoleSlave)
	},
}

var appCmd = &cobra.Command{
	Use:   "app",
	Short: "Start an app daemon or send a single request",
	Long: `An app connects to the master on behalf of a user. Without a subcommand it
stays connected and logs the notifications it receives.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode(config.RoleApp)
	},
}

func setupLogging() {
	logger.SetSilentMode(false)
	if debugFlag || verbose {
		logger.SetLevel(logger.LOG_DEBUG)
	} else {
		logger.SetLevel(logger.LOG_INFO)
	}
	log = logger.New()
}

// loadRoleConfig loads the configuration, creating a default one for role
// when the file does not exist yet
func loadRoleConfig(role string) (*config.Config, bool, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		defaultConfig, err := config.NewDefaultConfig(role)
		if err != nil {
			return nil, false, err
		}
		if err := defaultConfig.Save(configPath); err != nil {
			return nil, false, fmt.Errorf("failed to create default config file: %w", err)
		}
		log.Info().
			Str("config_path", configPath).
			Msg("Created default configuration file. Please edit it with your settings.")
		return nil, true, nil
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, false, err
	}
	if cfg.Device.Role != role {
		return nil, false, fmt.Errorf("%s is configured as %s, not %s", configPath, cfg.Device.Role, role)
	}
	return cfg, false, nil
}

func runNode(role string) error {
	setupLogging()

	cfg, created, err := loadRoleConfig(role)
	if err != nil || created {
		return err
	}
	if !debugFlag && !verbose {
		logger.SetLevel(cfg.Logging.Level)
	}

	log.Info().
		Str("config_path", configPath).
		Str("role", role).
		Str("device_id", cfg.Device.ID).
		Msg("Starting smarthome node")

	n, err := node.New(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create node")
		return fmt.Errorf("failed to create node: %w", err)
	}

	if err := n.Run(context.Background()); err != nil {
		log.Error().Err(err).Msg("Node stopped with error")
		return fmt.Errorf("node error: %w", err)
	}
	return nil
}

func init() {
	for _, c := range []*cobra.Command{masterCmd, slaveCmd, appCmd} {
		c.PersistentFlags().StringVarP(&configPath, "config", "c", "smarthome.yml", "Path to configuration file")
		c.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "Enable debug logging")
	}
	masterCmd.AddCommand(masterTokenCmd)
	appCmd.AddCommand(appHolidayCmd)
	appCmd.AddCommand(appLightCmd)
}
