package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	osignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nexora-app/pulse/internal/adapters/auth"
	"github.com/nexora-app/pulse/internal/adapters/engine"
	router "github.com/nexora-app/pulse/internal/adapters/http"
	"github.com/nexora-app/pulse/internal/adapters/push"
	"github.com/nexora-app/pulse/internal/adapters/signal"
	"github.com/nexora-app/pulse/internal/adapters/store"
	"github.com/nexora-app/pulse/internal/app"
	"github.com/nexora-app/pulse/internal/app/orch"
	"github.com/nexora-app/pulse/internal/app/sfu"
	"github.com/nexora-app/pulse/internal/config"
	"github.com/nexora-app/pulse/internal/core"
	"github.com/nexora-app/pulse/internal/domain"
)

func main() {
	ctx, cancel := osignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Secret == "" {
		log.Fatal().Msg("secret is required; set it in the config file")
	}

	st := store.NewMemory()
	if cfg.Mode == "debug" {
		seedFixtures(st)
	}

	var pub core.Push = push.Nop{}
	if cfg.PushEnabled {
		rp := push.NewRedisPublisher(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rp.Close()
		pub = rp
	}

	eng, err := engine.New(engine.Config{
		ListenIP:    cfg.SfuListenIP,
		AnnouncedIP: cfg.SfuAnnouncedIP,
		MinPort:     cfg.SfuMinPort,
		MaxPort:     cfg.SfuMaxPort,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init media engine")
	}

	hub := app.NewHub()
	o := &orch.Orchestrator{
		Hub:        hub,
		Presence:   app.NewPresence(),
		Membership: app.NewMembership(st, hub),
		Fanout:     app.NewFanout(st, hub, pub),
		SFU:        sfu.NewManager(eng),
		Store:      st,
		Verifier:   auth.NewVerifier(cfg.Secret),
	}

	ctl := signal.NewController(o, cfg.ReadLimit, cfg.PingPeriod, cfg.RequestTimeout)

	r := router.SetupRouter(ctx, cfg, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Pulse server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

// seedFixtures loads demo users and rooms so a debug build is usable
// without an external account service.
func seedFixtures(st *store.Memory) {
	for _, name := range []string{"alice", "bob"} {
		u, err := domain.NewUser(domain.UserID(name), name)
		if err != nil {
			log.Fatal().Err(err).Str("user", name).Msg("seed user")
		}
		st.AddUser(*u)
	}
	st.AddDmRoom(domain.DmRoom{ID: "dm-alice-bob", Users: []domain.UserID{"alice", "bob"}})
	st.AddServer(domain.Server{
		ID:      "demo",
		Name:    "demo",
		Owner:   "alice",
		Members: []domain.UserID{"bob"},
		Channels: []domain.Channel{
			{ID: "general", Name: "general", Type: domain.ChannelText},
			{ID: "lounge", Name: "lounge", Type: domain.ChannelVoice},
		},
	})
	log.Info().Msg("seeded debug fixtures")
}
