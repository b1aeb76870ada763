package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"

	"cloud.google.com/go/firestore"
	"connectrpc.com/connect"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/CristhianDaza/finControl/internal/access"
	"github.com/CristhianDaza/finControl/internal/auth"
	"github.com/CristhianDaza/finControl/internal/config"
	"github.com/CristhianDaza/finControl/internal/export"
	"github.com/CristhianDaza/finControl/internal/notify"
	"github.com/CristhianDaza/finControl/internal/recurring"
	"github.com/CristhianDaza/finControl/internal/search"
	"github.com/CristhianDaza/finControl/internal/service"
	"github.com/CristhianDaza/finControl/internal/session"
	"github.com/CristhianDaza/finControl/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default $FINCONTROL_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.IsProduction() && (cfg.SkipAuth || cfg.UseMemoryStore) {
		log.Fatalf("SKIP_AUTH and USE_MEMORY_STORE are not allowed in production")
	}

	ctx := context.Background()

	var storeImpl store.Store
	var firebaseAuth *auth.FirebaseAuth

	if cfg.UseMemoryStore {
		log.Println("Using in-memory store for local development")
		storeImpl = store.NewMemoryStore()
		// The memory store always runs with mock authentication.
		log.Println("Using mock authentication for local development")
	} else {
		firestoreClient, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			log.Fatalf("Failed to create Firestore client: %v", err)
		}
		defer firestoreClient.Close()

		if cfg.SkipAuth {
			log.Println("SKIP_AUTH enabled - using mock authentication with Firestore (for testing only)")
		} else {
			firebaseAuth, err = auth.NewFirebaseAuth(ctx, cfg.ProjectID)
			if err != nil {
				log.Fatalf("Failed to initialize Firebase Auth: %v", err)
			}
		}

		storeImpl = store.NewFirestoreStore(firestoreClient)
	}

	opts := service.WireOptions{
		Notify:    []notify.Option{notify.WithBaseURL(cfg.AppBaseURL)},
		Recurring: []recurring.Option{recurring.WithMinInterval(cfg.Recurring.MinInterval)},
	}
	if firebaseAuth != nil {
		opts.Access = append(opts.Access, access.WithClaims(firebaseAuth))
		messagingClient, err := firebaseAuth.Messaging(ctx)
		if err != nil {
			log.Printf("Push notifications disabled: %v", err)
		} else {
			opts.Notify = append(opts.Notify, notify.WithPusher(messagingClient))
		}
	}

	sess := session.New(storeImpl)
	deps := service.Wire(sess, opts)
	deps.SchedulerToken = cfg.Recurring.SchedulerToken
	if deps.SchedulerToken == "" {
		log.Println("SCHEDULER_TOKEN not set - ProcessAllRecurring is disabled")
	}

	if cfg.Algolia.Enabled() {
		algolia, err := search.NewAlgoliaClient(search.Config{
			AppID:     cfg.Algolia.AppID,
			APIKey:    cfg.Algolia.APIKey,
			IndexName: cfg.Algolia.IndexName,
		})
		if err != nil {
			log.Fatalf("Failed to create Algolia client: %v", err)
		}
		log.Printf("Search backed by Algolia index %s", algolia.IndexName())
		deps.Search = search.NewService(sess, algolia, algolia)
	} else {
		deps.Search = search.NewService(sess, search.NewStoreSearcher(storeImpl), nil)
	}

	if cfg.Export.Bucket != "" {
		sink, gcsClient, err := export.OpenGCSSink(ctx, cfg.Export.Bucket, cfg.Export.Prefix)
		if err != nil {
			log.Fatalf("Failed to open export bucket: %v", err)
		}
		defer gcsClient.Close()
		deps.ExportSink = sink
	}

	var interceptors []connect.Interceptor
	// Debug first so impersonation works in dev mode.
	interceptors = append(interceptors, auth.DebugAuthInterceptor(cfg.SkipAuth || cfg.UseMemoryStore))
	if firebaseAuth != nil {
		interceptors = append(interceptors, auth.AuthInterceptor(firebaseAuth))
	} else {
		interceptors = append(interceptors, auth.LocalDevInterceptor())
	}

	path, handler := service.NewFinanceService(deps).Handler(
		connect.WithInterceptors(interceptors...),
	)

	mux := http.NewServeMux()
	mux.Handle(path, handler)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Connect-Protocol-Version",
			"Connect-Timeout-Ms",
			"Content-Type",
			"User-Agent",
			"X-User-Agent",
			"X-Debug-User-ID",
			"X-Debug-User-Email",
			"X-Debug-User-Name",
			"X-Debug-Impersonate-User",
			service.SchedulerTokenHeader,
		},
		ExposedHeaders: []string{
			service.ErrorCodeHeader,
			service.AttemptsLeftHeader,
			service.BlockedUntilHeader,
			service.ReadOnlyHeader,
		},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: h2c.NewHandler(c.Handler(mux), &http2.Server{}),
	}

	log.Printf("Starting server on port %s (env %s)", cfg.Port, cfg.Env)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
