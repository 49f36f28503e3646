package router

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	mem "medication-reminder/internal/adapters/storage/memory"
	pg "medication-reminder/internal/adapters/storage/postgres"
	"medication-reminder/internal/domain/caregivers"
	"medication-reminder/internal/domain/doselog"
	"medication-reminder/internal/domain/medications"
	"medication-reminder/internal/domain/reminders"
	"medication-reminder/internal/middleware"
	"medication-reminder/internal/platform/logger"
	"medication-reminder/internal/platform/metrics"
	"medication-reminder/internal/ports/auth"
	"medication-reminder/internal/ports/events"

	_ "medication-reminder/docs"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Options struct {
	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev)

	// Opcional: si viene, usa Postgres. Si no, in-memory.
	DB *sql.DB

	Logger    logger.Logger
	Metrics   *metrics.Metrics
	Publisher events.Publisher // opcional

	PostponeWindow         time.Duration
	DefaultTZOffsetMinutes int
	RecordRateLimit        middleware.RateLimitOptions

	// ServiceName para spans; vacío = sin middleware de tracing.
	ServiceName string

	// Chequeos extra para /ready (p.ej. broker). La DB se chequea siempre si existe.
	ReadyChecks map[string]func(ctx context.Context) error

	// Services ya armados (main los comparte con el dispatcher). Si es nil se arman acá.
	Services *Services
}

// Services por módulo, cableados sobre el mismo set de repos.
type Services struct {
	Medications *medications.Service
	DoseLog     *doselog.Service
	Caregivers  *caregivers.Service
	Reminders   *reminders.Service
}

func BuildServices(opts Options) Services {
	var (
		medsRepo   medications.Repository
		logRepo    doselog.Repository
		grantsRepo caregivers.Repository
	)

	if opts.DB != nil {
		medsRepo = pg.NewMedicationsRepo(opts.DB)
		logRepo = pg.NewDoseLogRepo(opts.DB)
		grantsRepo = pg.NewCaregiversRepo(opts.DB)
	} else {
		medsRepo = mem.NewMedicationsRepo()
		logRepo = mem.NewDoseLogRepo()
		grantsRepo = mem.NewCaregiversRepo()
	}

	medsSvc := medications.NewService(medsRepo)
	logSvc := doselog.NewService(logRepo, doselog.Options{
		Publisher: opts.Publisher,
		Logger:    opts.Logger,
		Metrics:   opts.Metrics,
	})

	return Services{
		Medications: medsSvc,
		DoseLog:     logSvc,
		Caregivers:  caregivers.NewService(grantsRepo),
		Reminders: reminders.NewService(medsSvc, logSvc, reminders.Options{
			PostponeWindow: opts.PostponeWindow,
			Metrics:        opts.Metrics,
		}),
	}
}

func NewRouter(opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	svcs := opts.Services
	if svcs == nil {
		built := BuildServices(opts)
		svcs = &built
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Recover(log))
	if opts.ServiceName != "" {
		r.Use(middleware.Tracing(opts.ServiceName))
	}

	r.Use(middleware.AuthContext(opts.AuthVerifier, log, opts.Metrics))
	r.Use(middleware.AccessLog(log, opts.Metrics))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ready", readyHandler(opts))

	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler())
	}
	r.Get("/swagger/*", httpSwagger.WrapHandler)

	// Rutas por módulo
	medications.RegisterRoutes(r, svcs.Medications, svcs.Caregivers)
	doselog.RegisterRoutes(r, svcs.DoseLog, svcs.Medications, svcs.Caregivers,
		middleware.PerUserRateLimit(opts.RecordRateLimit))
	reminders.RegisterRoutes(r, svcs.Reminders, svcs.Caregivers, opts.DefaultTZOffsetMinutes)
	caregivers.RegisterRoutes(r, svcs.Caregivers)

	return r
}

func readyHandler(opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{}
		ok := true

		if opts.DB != nil {
			if err := opts.DB.PingContext(ctx); err != nil {
				status["database"] = err.Error()
				ok = false
			} else {
				status["database"] = "ok"
			}
		}
		for name, check := range opts.ReadyChecks {
			if err := check(ctx); err != nil {
				status[name] = err.Error()
				ok = false
				continue
			}
			status[name] = "ok"
		}

		code := http.StatusOK
		if !ok {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}
}
