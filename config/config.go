/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package config is the driver's configuration surface: every knob the
// engine, connection table and netconn layer need to size their fixed
// resources, loaded from file or environment with viper and checked with
// go-playground/validator before anything else starts.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/sabouaram/goesp/duration"
	liberr "github.com/sabouaram/goesp/errors"
)

// Config is the full set of driver knobs. Field names double as viper keys
// (lower-cased, dot-separated for nesting) via mapstructure tags.
type Config struct {
	// Device is the UART special file (or platform-specific port name) the
	// production Transport binds to. Empty when running against a fake
	// Transport (tests, simulators).
	Device string `mapstructure:"device" validate:"omitempty"`

	// BaudRate is the configured UART line speed. It is validated only:
	// nothing in this module applies it to the device or sends AT+UART_CUR.
	BaudRate int `mapstructure:"baud_rate" validate:"required,oneof=9600 57600 115200 230400 460800 921600"`

	// MaxConnections sizes the atconn.Table. The radio firmware itself caps
	// this at 5 on most ESP-AT builds.
	MaxConnections int `mapstructure:"max_connections" validate:"required,min=1,max=5"`

	// MaxDataLen is the largest single AT+CIPSEND/AT+CIPSENDEX chunk the
	// engine will write before splitting a caller's payload.
	MaxDataLen int `mapstructure:"max_data_len" validate:"required,min=1,max=8192"`

	// CommandQueueDepth bounds how many commands may be queued for the
	// producer goroutine before Submit blocks.
	CommandQueueDepth int `mapstructure:"command_queue_depth" validate:"required,min=1"`

	// CommandTimeout is the default per-command deadline; a command that
	// specifies its own timeout overrides this.
	CommandTimeout time.Duration `mapstructure:"command_timeout" validate:"required"`

	// SSIDMaxLen/PasswordMaxLen bound atapi.Join's arguments, matching the
	// firmware's own AT+CWJAP field limits.
	SSIDMaxLen     int `mapstructure:"ssid_max_len" validate:"required,min=1,max=32"`
	PasswordMaxLen int `mapstructure:"password_max_len" validate:"required,min=0,max=64"`

	// DebugMask enables per-subsystem trace logging, bit for bit compatible
	// with the firmware's own AT+SYSLOG debug levels.
	DebugMask uint32 `mapstructure:"debug_mask"`

	Features Features `mapstructure:"features"`
}

// Features toggles the supplemented, non-core operations.
type Features struct {
	WPS            bool `mapstructure:"wps"`
	WebServer      bool `mapstructure:"web_server"`
	AutoReconnect  bool `mapstructure:"auto_reconnect"`
	ManualReceive  bool `mapstructure:"manual_receive"`
	MetricsEnabled bool `mapstructure:"metrics_enabled"`

	// ReconnectInterval/ReconnectRetries feed atapi.ReconnectConfigure
	// (AT+CWRECONNCFG) when AutoReconnect is set. A zero ReconnectInterval
	// falls back to ReconnectDefaultInterval.
	ReconnectInterval duration.Duration `mapstructure:"reconnect_interval"`
	ReconnectRetries  int               `mapstructure:"reconnect_retries"`
}

// ReconnectDefaultInterval is used when Features.AutoReconnect is set but
// ReconnectInterval was left at its zero value.
const ReconnectDefaultInterval = duration.Duration(time.Second)

// Default returns the configuration a freshly provisioned radio ships with.
func Default() Config {
	return Config{
		BaudRate:          115200,
		MaxConnections:    5,
		MaxDataLen:        2048,
		CommandQueueDepth: 16,
		CommandTimeout:    5 * time.Second,
		SSIDMaxLen:        32,
		PasswordMaxLen:    64,
	}
}

// Load reads configuration from path (if non-empty) and from environment
// variables prefixed GOESP_, merges them over Default, and validates the
// result. An empty path loads from environment and defaults only.
func Load(path string) (Config, liberr.Error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("GOESP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return cfg, ErrConfigRead.Error(err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, ErrConfigDecode.Error(err)
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate runs the struct tag constraints and reports every violation,
// not just the first, matching the teacher's httpserver.ServerConfig.Validate.
func Validate(cfg Config) liberr.Error {
	val := validator.New()

	err := val.Struct(cfg)
	if err == nil {
		return nil
	}

	if _, ok := err.(*validator.InvalidValidationError); ok {
		return ErrConfigValidate.Error(err)
	}

	out := ErrConfigValidate.Error(nil)

	for _, fe := range err.(validator.ValidationErrors) {
		out.Add(fmt.Errorf("config field '%s' fails constraint '%s'", fe.Namespace(), fe.ActualTag()))
	}

	return out
}
