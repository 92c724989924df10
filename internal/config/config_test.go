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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	for _, role := range []string{RoleMaster, RoleSlave, RoleApp} {
		t.Run(role, func(t *testing.T) {
			cfg, err := NewDefaultConfig(role)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(cfg.Device.ID, role+"_"))
			assert.Equal(t, role, cfg.Device.Role)
			assert.Equal(t, 30*time.Second, cfg.Messaging.ResponseTimeout)
		})
	}

	master, err := NewDefaultConfig(RoleMaster)
	require.NoError(t, err)
	assert.NoError(t, master.Validate())
	assert.True(t, master.Identity().IsMaster())

	_, err = NewDefaultConfig("toaster")
	assert.Error(t, err)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.yaml")

	cfg, err := NewDefaultConfig(RoleMaster)
	require.NoError(t, err)
	cfg.Messaging.ProxyTimeout = 5 * time.Second
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yaml")
	yml := `
device:
  id: app_1
  role: app
master:
  id: master_1
  endpoint: tcp://localhost:5555
messaging:
  workers: 2
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Messaging.Workers)
	assert.Equal(t, 256, cfg.Messaging.QueueSize)
	assert.Equal(t, TransportZMQ, cfg.Transport.Kind)
	assert.False(t, cfg.Identity().IsMaster())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"missing id", func(c *Config) { c.Device.ID = "" }, "device.id"},
		{"bad role", func(c *Config) { c.Device.Role = "hub" }, "device.role"},
		{"master id mismatch", func(c *Config) { c.Master.ID = "other" }, "master.id must equal"},
		{"no workers", func(c *Config) { c.Messaging.Workers = 0 }, "messaging.workers"},
		{"no proxy timeout", func(c *Config) { c.Messaging.ProxyTimeout = 0 }, "messaging.proxy_timeout"},
		{"no bind", func(c *Config) { c.Transport.Bind = "" }, "transport.bind"},
		{"bad transport", func(c *Config) { c.Transport.Kind = "carrier-pigeon" }, "transport.kind"},
		{"no database", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"short secret", func(c *Config) { c.API.JWTSecret = "short" }, "jwt_secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewDefaultConfig(RoleMaster)
			require.NoError(t, err)
			tt.modify(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("client equal to master", func(t *testing.T) {
		cfg, err := NewDefaultConfig(RoleSlave)
		require.NoError(t, err)
		cfg.Master.ID = cfg.Device.ID
		assert.ErrorContains(t, cfg.Validate(), "must differ")
	})
}
