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
	"time"

	"github.com/spf13/cobra"

	"smarthome/internal/config"
	"smarthome/internal/master"
	"smarthome/internal/naming"
	"smarthome/internal/node"
)

var (
	tokenDevice    string
	requestTimeout time.Duration
)

var masterTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an admin API token",
	Long:  `Issue a bearer token for the admin API acting as the given device.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if cfg.API.JWTSecret == "" {
			return fmt.Errorf("api.jwt_secret is not configured")
		}

		device := naming.DeviceID(tokenDevice)
		if device.IsZero() {
			device = naming.DeviceID(cfg.Device.ID)
		}
		jwt := master.NewJWTService(cfg.API.JWTSecret, cfg.Device.ID, cfg.API.TokenExpiry)
		token, err := jwt.GenerateToken(device)
		if err != nil {
			return fmt.Errorf("failed to generate token: %w", err)
		}
		cmd.Println(token)
		return nil
	},
}

var appHolidayCmd = &cobra.Command{
	Use:       "holiday [on|off]",
	Short:     "Read or switch the holiday simulation",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, n *node.Node) error {
			future := n.App.Holiday.Get()
			if len(args) == 1 {
				future = n.App.Holiday.Set(args[0] == "on")
			}
			state, err := future.Await(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("Holiday simulation: %s\n", onOff(state.On))
			return nil
		})
	},
}

var appLightCmd = &cobra.Command{
	Use:   "light <module> [on|off]",
	Short: "Read or switch a light",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, n *node.Node) error {
			future := n.App.Light.Get(args[0])
			if len(args) == 2 {
				future = n.App.Light.Set(args[0], args[1] == "on")
			}
			state, err := future.Await(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("Light %s: %s\n", state.Module.Name, onOff(state.On))
			return nil
		})
	},
}

// withApp starts an app node, runs fn and stops the node again
func withApp(fn func(ctx context.Context, n *node.Node) error) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Device.Role != config.RoleApp {
		return fmt.Errorf("%s is configured as %s, not app", configPath, cfg.Device.Role)
	}

	n, err := node.New(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := n.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if err := n.Stop(stopCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to stop node")
		}
	}()

	return fn(ctx, n)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func init() {
	masterTokenCmd.Flags().StringVar(&tokenDevice, "device", "", "Device the token acts as (default: the master)")
	for _, c := range []*cobra.Command{appHolidayCmd, appLightCmd} {
		c.Flags().DurationVar(&requestTimeout, "timeout", 10*time.Second, "How long to wait for the master")
	}
}
