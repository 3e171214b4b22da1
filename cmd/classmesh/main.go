package main

import (
	"context"
	goflag "flag"
	"fmt"
	"time"

	"github.com/classmesh/classmesh/pkg/config"
	"github.com/classmesh/classmesh/pkg/logger"
	"github.com/classmesh/classmesh/pkg/monitoring"
	"github.com/classmesh/classmesh/pkg/os"
	"github.com/classmesh/classmesh/pkg/session"
	flag "github.com/spf13/pflag"
)

var Version = "?"

func main() {
	conf, err := config.NewConfig()
	if err != nil {
		fmt.Printf("config load failed: %v\n", err)
		return
	}
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	conf.WithFlags(flag.CommandLine)
	flag.Parse()

	log := logger.NewConsole(conf.Debug, "cm")
	log.Info().Msgf("version %s", Version)
	if conf.Debug {
		log.Debug().Msgf("config: %+v", conf)
	}
	if conf.Relay.Room == "" || conf.Relay.Name == "" {
		log.Fatal().Msg("both --room and --name are required")
	}

	var mon *monitoring.Monitoring
	if conf.Monitoring.Port > 0 {
		mon, err = monitoring.New(conf.Monitoring, "cm", log)
		if err != nil {
			log.Fatal().Err(err).Msg("monitoring init")
		}
		go mon.Run()
	}

	// A UI layer would install a richer observer; headless runs log.
	s := session.New(conf, log)
	s.SetObserver(session.Observer{
		OnRosterChange: func(roster []session.RosterEntry) {
			log.Info().Msgf("roster: %d participant(s)", len(roster))
		},
		OnPeerClosed: func(id, name string) {
			log.Info().Msgf("%v (%v) disconnected", name, id)
		},
		OnChat: func(from, name, text string, _ time.Time) {
			log.Info().Msgf("[chat] %v: %v", name, text)
		},
		OnEnded: func(reason string) {
			log.Info().Msgf("session over: %v", reason)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Join(ctx); err != nil {
		log.Fatal().Err(err).Msg("join failed")
	}

	<-os.ExpectTermination()
	s.Leave()
	if mon != nil {
		if err := mon.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("monitoring shutdown")
		}
	}
}
