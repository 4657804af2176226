// Command ringdht-server hosts the ring coordinator's HTTP API: the
// data-plane PUT/GET surface and the admin membership surface, backed by
// the consistent-hashing ring engine in package cluster.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"ringdht/api"
	"ringdht/auth"
	"ringdht/cluster"
	"ringdht/config"
	"ringdht/discovery"
	"ringdht/monitoring"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Error loading config from %s: %v", *configFile, err)
	}

	monitoring.SetupLogger()
	metrics := monitoring.NewMetrics()

	ring, err := cluster.NewRing(cfg.RingSize, cluster.WithRecorder(metrics))
	if err != nil {
		log.Fatalf("Error constructing ring: %v", err)
	}

	ctx := context.Background()
	for _, n := range cfg.Nodes {
		if err := ring.AddNode(ctx, n.Name, n.Host, n.Port); err != nil {
			log.Fatalf("Error joining bootstrap node %s: %v", n.Name, err)
		}
	}

	var authService auth.AuthServiceInterface
	if cfg.Auth.Enabled {
		authService, err = auth.NewAuthService(&cfg.Auth)
		if err != nil {
			log.Printf("Warning: using simple auth service due to error: %v", err)
			authService = auth.NewSimpleAuthService(cfg.Auth.TokenDuration)
		}
		log.Printf("Authentication enabled")
	} else {
		log.Printf("Authentication disabled")
	}

	healthChecker := monitoring.NewHealthChecker(ring)
	handlers := api.NewHandlers(ring, authService)

	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler()).Methods("GET")
	router.HandleFunc("/health", healthChecker.Handler).Methods("GET")

	if cfg.Auth.Enabled {
		router.HandleFunc("/auth/token", handlers.TokenHandler).Methods("POST")
	}

	data := router.PathPrefix("").Subrouter()
	if cfg.Auth.Enabled && authService != nil {
		data.Use(auth.AuthMiddleware(authService))
	} else {
		data.Use(auth.PublicMiddleware)
	}
	data.HandleFunc("/keys/{key}", handlers.PutHandler).Methods("PUT")
	data.HandleFunc("/keys/{key}", handlers.GetHandler).Methods("GET")

	admin := router.PathPrefix("/admin").Subrouter()
	if cfg.Auth.Enabled && authService != nil {
		admin.Use(auth.AuthMiddleware(authService))
		admin.Use(auth.RBACMiddleware(auth.RoleAdmin))
	} else {
		admin.Use(auth.PublicMiddleware)
	}
	admin.HandleFunc("/nodes", handlers.AddNodeHandler).Methods("POST")
	admin.HandleFunc("/nodes/{name}", handlers.RemoveNodeHandler).Methods("DELETE")
	admin.HandleFunc("/describe", handlers.DescribeHandler).Methods("GET")

	router.Use(monitoring.LoggerMiddleware)
	router.Use(metricsMiddleware(metrics))

	if cfg.Discovery.Enabled {
		watcher, err := discovery.NewWatcher(ring, cfg.Discovery)
		if err != nil {
			log.Fatalf("Error building discovery watcher: %v", err)
		}
		discoveryCtx, cancelDiscovery := context.WithCancel(context.Background())
		defer cancelDiscovery()
		go func() {
			if err := watcher.Run(discoveryCtx); err != nil && discoveryCtx.Err() == nil {
				log.Printf("discovery watcher stopped: %v", err)
			}
		}()
		log.Printf("Discovery enabled for service %s/%s", cfg.Discovery.Namespace, cfg.Discovery.ServiceName)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on port %d", cfg.HTTPPort)

		var err error
		if cfg.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

func metricsMiddleware(metrics *monitoring.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &monitoring.ResponseWriter{ResponseWriter: w, StatusCode: http.StatusOK}
			next.ServeHTTP(rw, r)
			metrics.ObserveRequest(r.Method, r.URL.Path, rw.StatusCode, time.Since(start))
		})
	}
}
