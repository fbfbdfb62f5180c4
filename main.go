package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"

	_ "github.com/go-sql-driver/mysql"
	"github.com/gorilla/handlers"
	"github.com/korylprince/redbox-chat/api"
	"github.com/korylprince/redbox-chat/events"
	"github.com/korylprince/redbox-chat/httpapi"
	"github.com/korylprince/redbox-chat/replay"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"
)

func main() {
	db, err := sql.Open(config.SQLDriver, config.SQLDSN)
	if err != nil {
		log.Fatalln("Could not open database:", err)
	}

	if err = api.InitSchema(context.Background(), db); err != nil {
		log.Fatalln("Could not initialize database:", err)
	}

	script := replay.DefaultScript()
	if config.ScriptPath != "" {
		if script, err = replay.LoadScript(config.ScriptPath); err != nil {
			log.Fatalln("Could not load script:", err)
		}
	}

	streamCfg := &httpapi.StreamConfig{
		Script:      script,
		FrameRate:   config.FrameRate,
		TitleLength: config.TitleLength,
	}

	if config.RedisURL != "" {
		opts, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			log.Fatalln("Could not parse REDBOX_REDISURL:", err)
		}
		client := redis.NewClient(opts)
		if err = client.Ping(context.Background()).Err(); err != nil {
			log.Fatalln("Could not connect to redis:", err)
		}
		bus := events.NewBus(events.Options{Client: client, Logger: log.Default()})
		defer bus.Close()
		streamCfg.Bus = bus
	}

	r := httpapi.NewRouter(os.Stdout, db, streamCfg)

	chain := handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(http.StripPrefix(config.Prefix, r))

	log.Println("Listening on:", config.ListenAddr)
	log.Println(http.ListenAndServe(config.ListenAddr, chain))
}
