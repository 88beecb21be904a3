package presenter

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mrebazaUNIFIED/loanbridge-relayer/entity"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/logging"
	custommiddleware "github.com/mrebazaUNIFIED/loanbridge-relayer/presenter/http/middleware"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/presenter/http/render"
)

var ErrNoHistoryStore = errors.New("event history store is not configured")

// Presenter serves the read-only reporting API over the running bridge.
type Presenter struct {
	logger logging.Logger
	status BridgeStatus
	events entity.BridgeEventsRepo
	root   chi.Router
	server *http.Server
}

// NewPresenter builds the reporting API. events may be nil when no history
// store is configured, the per-loan and per-token lookups then return 503.
func NewPresenter(logger logging.Logger, status BridgeStatus, events entity.BridgeEventsRepo) *Presenter {
	p := &Presenter{
		logger: logger,
		status: status,
		events: events,
		root:   chi.NewMux(),
	}
	p.root.Use(middleware.Throttle(5))
	p.root.Use(middleware.RequestID)
	p.root.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))
	p.root.Use(custommiddleware.NewLoggerMiddleware(logger))
	p.root.Use(custommiddleware.Recoverer)
	p.root.Get("/health", p.GetHealth)
	p.root.Get("/queue", p.GetQueue)
	p.root.Get("/sync", p.GetSync)
	p.root.Get("/loans/{loanID}/events", p.GetLoanEvents)
	p.root.Get("/tokens/{tokenID:[0-9]+}/events", p.GetTokenEvents)
	return p
}

// Handler exposes the assembled router, used by Serve and by tests.
func (p *Presenter) Handler() http.Handler {
	return p.root
}

func (p *Presenter) Serve(addr string) error {
	p.logger.WithField("addr", addr).Info("starting presenter service")
	p.server = &http.Server{Addr: addr, Handler: p.root}
	err := p.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (p *Presenter) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	return p.server.Shutdown(ctx)
}

func (p *Presenter) GetHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, http.StatusOK, &HealthResult{
		Status:     "ok",
		Metrics:    p.status.Metrics(),
		PendingTxs: p.status.PendingTxCount(),
	})
}

func (p *Presenter) GetQueue(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, http.StatusOK, p.status.QueueStatus())
}

func (p *Presenter) GetSync(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, http.StatusOK, &SyncResult{Chains: p.status.SyncState()})
}

func (p *Presenter) GetLoanEvents(w http.ResponseWriter, r *http.Request) {
	if p.events == nil {
		render.Error(w, r, http.StatusServiceUnavailable, ErrNoHistoryStore)
		return
	}
	loanID := chi.URLParamFromCtx(r.Context(), "loanID")
	events, err := p.events.FindByLoanID(r.Context(), loanID)
	if err != nil {
		render.Error(w, r, http.StatusInternalServerError, err)
		return
	}
	render.JSON(w, r, http.StatusOK, newEventsResult(events))
}

func (p *Presenter) GetTokenEvents(w http.ResponseWriter, r *http.Request) {
	if p.events == nil {
		render.Error(w, r, http.StatusServiceUnavailable, ErrNoHistoryStore)
		return
	}
	tokenID := chi.URLParamFromCtx(r.Context(), "tokenID")
	events, err := p.events.FindByTokenID(r.Context(), tokenID)
	if err != nil {
		render.Error(w, r, http.StatusInternalServerError, err)
		return
	}
	render.JSON(w, r, http.StatusOK, newEventsResult(events))
}

func newEventsResult(events []*entity.BridgeEvent) *EventsResult {
	res := &EventsResult{Events: make([]*EventInfo, len(events))}
	for i, event := range events {
		res.Events[i] = newEventInfo(event)
	}
	return res
}
