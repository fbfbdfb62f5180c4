package main

import (
	"log"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

//Config represents options given in the environment
type Config struct {
	SQLDriver string //mysql or sqlite; default: sqlite
	SQLDSN    string //required

	ListenAddr string //addr format used for net.Dial; required
	Prefix     string //url prefix to mount api to without trailing slash

	ScriptPath  string  //TOML replay script; default: echo the message
	FrameRate   float64 //frames per second; default: 20
	TitleLength int     //maximum session title length; default: 255

	RedisURL string //publish chat-response-end events through Redis; optional
}

var config = &Config{}

func checkEmpty(val, name string) {
	if val == "" {
		log.Fatalf("REDBOX_%s must be configured\n", name)
	}
}

func init() {
	err := envconfig.Process("REDBOX", config)
	if err != nil {
		log.Fatalln("Error reading configuration from environment:", err)
	}

	if config.SQLDriver == "" {
		config.SQLDriver = "sqlite"
	}

	if config.FrameRate == 0 {
		config.FrameRate = 20
	}

	if config.TitleLength == 0 {
		config.TitleLength = 255
	}

	checkEmpty(config.SQLDSN, "SQLDSN")

	switch config.SQLDriver {
	case "mysql":
		if !strings.Contains(config.SQLDSN, "parseTime=true") {
			log.Fatalln("mysql DSN must contain \"parseTime=true\"")
		}
	case "sqlite":
	default:
		log.Fatalf("REDBOX_SQLDRIVER must be mysql or sqlite, not %q\n", config.SQLDriver)
	}

	checkEmpty(config.ListenAddr, "LISTENADDR")
}
