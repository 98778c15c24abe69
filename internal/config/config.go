package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	ListenAddr            string `envconfig:"LISTEN_ADDR" default:":8080"`
	DatabasePath          string `envconfig:"DATABASE_PATH" default:"data/lg-gateway.db"`
	AdminSecret           string `envconfig:"ADMIN_SECRET" default:""`
	ServersFile           string `envconfig:"SERVERS_FILE" default:"servers.yaml"`
	MaxConnections        int    `envconfig:"MAX_CONNECTIONS" default:"5"`
	ConnectionIdleTimeout int    `envconfig:"CONNECTION_IDLE_TIMEOUT" default:"300"`
	WarmupOnStart         bool   `envconfig:"WARMUP_ON_START" default:"true"`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("LG_GATEWAY", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}
