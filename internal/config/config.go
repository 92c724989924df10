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
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"smarthome/internal/logger"
	"smarthome/internal/naming"
)

// Device roles
const (
	RoleMaster = "master"
	RoleSlave  = "slave"
	RoleApp    = "app"
)

// Transport kinds
const (
	TransportZMQ    = "zmq"
	TransportMemory = "memory"
)

// Config represents a device configuration
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Master    MasterConfig    `yaml:"master"`
	Messaging MessagingConfig `yaml:"messaging"`
	Transport TransportConfig `yaml:"transport"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DeviceConfig contains the local device identity
type DeviceConfig struct {
	ID   string `yaml:"id"`
	Role string `yaml:"role"`
	Name string `yaml:"name"`
}

// MasterConfig locates the master
type MasterConfig struct {
	ID       string `yaml:"id"`
	Endpoint string `yaml:"endpoint"` // ZMQ endpoint clients connect to
}

// MessagingConfig tunes the dispatch pool and correlation tables
type MessagingConfig struct {
	Workers          int           `yaml:"workers"`
	QueueSize        int           `yaml:"queue_size"`
	ResponseTimeout  time.Duration `yaml:"response_timeout"`
	ProxyTimeout     time.Duration `yaml:"proxy_timeout"`
	SettledCacheSize int           `yaml:"settled_cache_size"`
}

// TransportConfig selects the wire
type TransportConfig struct {
	Kind string `yaml:"kind"`
	Bind string `yaml:"bind"` // master only
}

// DatabaseConfig contains the master store location
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// APIConfig contains the master admin API settings
type APIConfig struct {
	Listen      string        `yaml:"listen"`
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenExpiry time.Duration `yaml:"token_expiry"`
}

// LoggingConfig contains log settings
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	config.applyDefaults()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) applyDefaults() {
	c.Messaging = MessagingConfig{
		Workers:          8,
		QueueSize:        256,
		ResponseTimeout:  30 * time.Second,
		ProxyTimeout:     30 * time.Second,
		SettledCacheSize: 1024,
	}
	c.Transport.Kind = TransportZMQ
	c.Logging.Level = logger.LOG_INFO
	c.API.TokenExpiry = 24 * time.Hour
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Device.ID == "" {
		return fmt.Errorf("device.id is required")
	}
	switch c.Device.Role {
	case RoleMaster, RoleSlave, RoleApp:
	default:
		return fmt.Errorf("device.role must be one of master, slave, app (got %q)", c.Device.Role)
	}

	if c.Master.ID == "" {
		return fmt.Errorf("master.id is required")
	}
	if c.Device.Role == RoleMaster && c.Master.ID != c.Device.ID {
		return fmt.Errorf("master.id must equal device.id on the master")
	}
	if c.Device.Role != RoleMaster && c.Master.ID == c.Device.ID {
		return fmt.Errorf("device.id must differ from master.id on a %s", c.Device.Role)
	}

	if c.Messaging.Workers <= 0 {
		return fmt.Errorf("messaging.workers must be positive")
	}
	if c.Messaging.QueueSize <= 0 {
		return fmt.Errorf("messaging.queue_size must be positive")
	}
	if c.Messaging.ResponseTimeout <= 0 {
		return fmt.Errorf("messaging.response_timeout must be positive")
	}
	if c.Messaging.ProxyTimeout <= 0 {
		return fmt.Errorf("messaging.proxy_timeout must be positive")
	}

	switch c.Transport.Kind {
	case TransportZMQ:
		if c.Device.Role == RoleMaster && c.Transport.Bind == "" {
			return fmt.Errorf("transport.bind is required on the master")
		}
		if c.Device.Role != RoleMaster && c.Master.Endpoint == "" {
			return fmt.Errorf("master.endpoint is required")
		}
	case TransportMemory:
	default:
		return fmt.Errorf("transport.kind must be zmq or memory (got %q)", c.Transport.Kind)
	}

	if c.Device.Role == RoleMaster {
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required on the master")
		}
		if c.API.Listen != "" && len(c.API.JWTSecret) < 32 {
			return fmt.Errorf("api.jwt_secret must be at least 32 characters")
		}
	}

	return nil
}

// Identity returns the naming identity described by the configuration
func (c *Config) Identity() *naming.Static {
	return naming.NewStatic(naming.DeviceID(c.Device.ID), naming.DeviceID(c.Master.ID))
}

// Save saves the configuration to a YAML file
func (c *Config) Save(filepath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// NewDefaultConfig creates a configuration for role with a fresh device id.
// A master gets its own id as master id; other roles must fill in master.id.
func NewDefaultConfig(role string) (*Config, error) {
	config := &Config{}
	config.applyDefaults()

	id := naming.NewDeviceID(role)
	config.Device = DeviceConfig{ID: id.String(), Role: role, Name: role}

	switch role {
	case RoleMaster:
		config.Master.ID = id.String()
		config.Transport.Bind = "tcp://*:5555"
		config.Database.Path = "smarthome.db"
		config.API.Listen = ":8080"
		secret, err := generateSecret()
		if err != nil {
			return nil, err
		}
		config.API.JWTSecret = secret
	case RoleSlave, RoleApp:
		config.Master.ID = "master_id_here"
		config.Master.Endpoint = "tcp://localhost:5555"
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}

	return config, nil
}
