package main

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log    LogConfig
	Server ServerConfig
	Device DeviceConfig
}

type LogConfig struct {
	Level string
}

type ServerConfig struct {
	Url string `mapstructure:"url"`
}

type DeviceConfig struct {
	ID           string `mapstructure:"id"`
	Model        string `mapstructure:"model"`
	Manufacturer string `mapstructure:"manufacturer"`
	OSVersion    string `mapstructure:"os_version"`
}

var config Config

func InitConfig() {
	var err error

	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/fleetlink-device")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.url", "ws://localhost:8080/channel")
	viper.SetDefault("device.id", "sim-device-1")
	viper.SetDefault("device.model", "Simulator")
	viper.SetDefault("device.manufacturer", "FleetLink")
	viper.SetDefault("device.os_version", "1.0")

	_ = viper.ReadInConfig()

	err = viper.Unmarshal(&config)
	if err != nil {
		panic(err)
	}
}
