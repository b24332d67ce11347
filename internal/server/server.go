package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/joho/godotenv/autoload"

	"github.com/deyectl/deyectl/internal/adapter/openmeteo"
	"github.com/deyectl/deyectl/internal/config"
)

// CitySearcher resolves a city name to coordinate candidates for the
// weather location picker.
type CitySearcher interface {
	SearchCities(ctx context.Context, name string) ([]openmeteo.City, error)
}

type Server struct {
	port        uint
	httpLog     bool
	rootContext *actor.RootContext
	masterActor *actor.PID
	store       *config.Store
	citySearch  CitySearcher
}

func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, store *config.Store, citySearch CitySearcher) *http.Server {
	NewServer := &Server{
		port:        cfg.Port,
		rootContext: rootContext,
		masterActor: masterActor,
		store:       store,
		citySearch:  citySearch,
		httpLog:     cfg.HttpLog,
	}

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}

	return server
}
