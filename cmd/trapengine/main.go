package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/oakhollow/trapengine/internal/application/action"
	"github.com/oakhollow/trapengine/internal/application/dialogue"
	"github.com/oakhollow/trapengine/internal/application/dispatcher"
	"github.com/oakhollow/trapengine/internal/application/locks"
	"github.com/oakhollow/trapengine/internal/application/passive"
	"github.com/oakhollow/trapengine/internal/application/trigger"
	"github.com/oakhollow/trapengine/internal/config"
	"github.com/oakhollow/trapengine/internal/domain/geometry"
	"github.com/oakhollow/trapengine/internal/domain/host"
	"github.com/oakhollow/trapengine/internal/infrastructure/hostbridge"
	"github.com/oakhollow/trapengine/internal/infrastructure/logger"
	"github.com/oakhollow/trapengine/internal/infrastructure/storage"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	log.Info().
		Str("use_storage", cfg.UseStorage).
		Str("host_ws_addr", cfg.HostWSAddr).
		Msg("starting trap engine")

	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open recovery store")
	}
	defer store.Close()

	reg := locks.NewRegistry()
	reg.Store = store

	if recs, err := store.ListLocks(ctx); err != nil {
		log.Error().Err(err).Msg("failed to load recovered locks")
	} else {
		reg.LoadRecovered(recs)
		log.Info().Int("count", len(recs)).Msg("recovered lock records")
	}

	var embellisher action.NoticeEmbellisher = action.TemplateEmbellisher{}
	if cfg.OpenAIAPIKey != "" {
		embellisher = action.NewOpenAIEmbellisher(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	}

	hub := hostbridge.NewHub(log)
	actions := action.NewRunner(hostbridge.CommandAreaTrigger{Hub: hub}, embellisher)

	dlg := dialogue.NewStore(reg, actions)
	dlg.Store = store
	if checks, err := store.ListPendingChecks(ctx); err != nil {
		log.Error().Err(err).Msg("failed to load recovered pending checks")
	} else {
		dlg.LoadRecovered(checks)
		log.Info().Int("count", len(checks)).Msg("recovered pending checks")
	}

	trig := trigger.NewEngine(reg, actions, dlg)

	sensor := passive.NewSensor(hostLineOfSight{Hub: hub})
	sensor.Embellisher = embellisher
	sensor.Style = cfg.EmbellishStyle

	dispatch := dispatcher.New(reg, trig, dlg, sensor, actions)
	dispatch.Recorder = storage.NewRecorder(store, log)

	// Boot recovery loads lock records from storage before any host
	// connection exists, so the live-notes cross-check against those
	// records can only run once the host actually connects. sync.Once
	// keeps a reconnect from re-running it.
	var bootstrapOnce sync.Once
	hub.OnConnect = func(b *hostbridge.Bridge) {
		bootstrapOnce.Do(func() {
			reconciled, err := dispatch.Bootstrap(context.Background(), b)
			if err != nil {
				log.Error().Err(err).Msg("boot-recovery lock cross-check failed")
				return
			}
			if len(reconciled) > 0 {
				log.Info().Strs("token_ids", reconciled).Msg("released stale locks found on boot-recovery cross-check")
			}
		})
	}

	var auth hostbridge.Authenticator = hostbridge.NewNoAuth()
	if cfg.HostWSJWTSecret != "" {
		auth = hostbridge.NewJWTAuth(cfg.HostWSJWTSecret)
	}
	bridgeHandler := hostbridge.NewHandler(hub, auth, &hostbridge.DispatcherRouter{Dispatch: dispatch}, log)

	mux := http.NewServeMux()
	mux.Handle("/bridge", bridgeHandler)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	httpServer := &http.Server{
		Addr:         cfg.HostWSAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("address", httpServer.Addr).Msg("host bridge listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("trap engine exited gracefully")
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.UseStorage == "postgres" {
		bs := storage.NewBunStore(cfg.DatabaseDSN)
		if err := bs.InitSchema(ctx); err != nil {
			return nil, err
		}
		return bs, nil
	}
	return storage.NewMemoryStore(), nil
}

// hostLineOfSight implements passive.LineOfSight by ray-testing against the
// host's dynamic-lighting wall/path and door objects. It carries no
// platform reference of its own (LineOfSight.Blocked isn't called with
// one), so it resolves the live bridge from the Hub at call time, the same
// pattern CommandAreaTrigger uses. Windows are never queried: they're
// always passthrough for line of sight. A door reporting isOpen==true is
// skipped the same way. Every path and pathv2 object on the page counts as
// a blocking segment, whatever its layer; no barrier type is read, so
// transparent walls block as well.
type hostLineOfSight struct {
	Hub *hostbridge.Hub
}

func (h hostLineOfSight) Blocked(ctx context.Context, pageID string, from, to geometry.Point) (bool, error) {
	bridge, ok := h.Hub.Any()
	if !ok {
		return false, nil
	}

	for _, objType := range []host.ObjectType{host.ObjectPath, host.ObjectPathV2} {
		objs, err := bridge.FindObjects(ctx, pageID, objType)
		if err != nil {
			continue
		}
		for _, obj := range objs {
			if segmentBlocksSight(obj, from, to) {
				return true, nil
			}
		}
	}

	doors, err := bridge.FindObjects(ctx, pageID, host.ObjectDoor)
	if err != nil {
		return false, nil
	}
	for _, obj := range doors {
		if open, _ := obj.Get("isOpen"); open == true {
			continue
		}
		if segmentBlocksSight(obj, from, to) {
			return true, nil
		}
	}
	return false, nil
}

// segmentBlocksSight tests the observer->trap segment against a wall/door
// object's own endpoint properties.
func segmentBlocksSight(obj host.Object, from, to geometry.Point) bool {
	x1, _ := obj.Get("x1")
	y1, _ := obj.Get("y1")
	x2, _ := obj.Get("x2")
	y2, _ := obj.Get("y2")
	wallStart := geometry.Point{X: toFloat(x1), Y: toFloat(y1)}
	wallEnd := geometry.Point{X: toFloat(x2), Y: toFloat(y2)}
	_, hit := geometry.SegmentsIntersect(from, to, wallStart, wallEnd)
	return hit
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}
