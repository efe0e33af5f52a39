package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/nuvocrm/go-session-client/api"
	"github.com/nuvocrm/go-session-client/auth"
	"github.com/nuvocrm/go-session-client/credstore"
	"github.com/nuvocrm/go-session-client/events"
	"github.com/nuvocrm/go-session-client/internal/config"
	"github.com/nuvocrm/go-session-client/session"
	"github.com/nuvocrm/go-session-client/transport"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running session client: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Session client stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	store := newStore(c)
	bus := events.NewBus()
	sessions := session.NewStore()

	httpClient := &http.Client{
		Timeout:   c.GetHTTPTimeout(),
		Transport: transport.New(nil, store, bus, logger),
	}
	apiClient := api.NewClient(c.GetAPIBaseURL(), httpClient, logger)

	manager, err := auth.NewManager(auth.Deps{
		Store:    store,
		API:      apiClient,
		Sessions: sessions,
		Bus:      bus,
	}, c, auth.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("auth.NewManager: %w", err)
	}
	defer manager.Close()

	bus.SubscribeNotice(func(n events.Notice) {
		log.Printf("[%s] %s\n", n.Level, n.Message)
	})
	sessions.Subscribe(func(s session.Session) {
		logger.Info().
			Bool("authenticated", s.IsAuthenticated).
			Str("error", s.Error).
			Msg("session changed")
	})

	if err := startSession(manager); err != nil {
		return err
	}
	waitForStopSignal()
	return shutdown(manager)
}

// startSession rehydrates a persisted session, or logs in with the
// credentials from the environment when none survives.
func startSession(manager *auth.Manager) error {
	ctx := context.Background()
	if manager.AutoLogin(ctx) {
		log.Printf("Session rehydrated for %s\n", manager.Session().User.Email)
		return nil
	}

	email := os.Getenv("CRM_EMAIL")
	password := os.Getenv("CRM_PASSWORD")
	if email == "" || password == "" {
		return errors.New("no stored session and CRM_EMAIL/CRM_PASSWORD not set")
	}

	data, err := manager.Login(ctx, auth.Credentials{Email: email, Password: password})
	if err != nil {
		return fmt.Errorf("manager.Login: %w", err)
	}
	if data.User.MustChangePassword {
		log.Printf("Warning: the backend requires a password change for this account\n")
	}
	log.Printf("Logged in as %s\n", data.User.Email)
	return nil
}

func newStore(c config.Config) credstore.Store {
	if addr := c.GetRedisAddr(); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		return credstore.NewRedis(client, c.GetRedisPrefix())
	}
	return credstore.NewFile(c.GetStoreDir())
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

// shutdown keeps the persisted credentials so the next start can
// rehydrate; it only stops the timers and listeners.
func shutdown(manager *auth.Manager) error {
	manager.Close()
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
