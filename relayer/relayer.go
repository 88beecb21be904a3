package relayer

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mrebazaUNIFIED/loanbridge-relayer/config"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/entity"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/logging"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/signer"
)

// Relayer owns the whole bridging pipeline: listeners feeding the queue,
// handlers draining it, and the shared bridge state.
type Relayer struct {
	logger logging.Logger
	cfg    *config.Config
	state  *BridgeState
	queue  *Queue
	src    *SourceChain
	dst    *DestinationChain

	sourceListener      *Listener
	destinationListener *Listener

	mint    Handler
	sale    Handler
	payment Handler

	events entity.BridgeEventsRepo

	stopQueue context.CancelFunc
}

// NewRelayer dials both chains and wires listeners, queue and handlers.
// events may be nil when no history store is configured.
func NewRelayer(logger logging.Logger, cfg *config.Config, events entity.BridgeEventsRepo) (*Relayer, error) {
	src, err := NewSourceChain(cfg.Bridge.Source, cfg.Keys.Relayer)
	if err != nil {
		return nil, err
	}
	dst, err := NewDestinationChain(cfg.Bridge.Destination, cfg.Keys.Relayer)
	if err != nil {
		return nil, err
	}
	validators, err := signer.NewValidatorSet(cfg.Keys.Validators)
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"source_chain":      src.Client.ChainID(),
		"destination_chain": dst.Client.ChainID(),
		"validators":        validators.Size(),
	}).Info("initialized bridge chains")

	state := NewBridgeState()
	r := &Relayer{
		logger:  logger,
		cfg:     cfg,
		state:   state,
		src:     src,
		dst:     dst,
		mint:    NewMintHandler(logger, state, validators, src, dst),
		sale:    NewSaleHandler(logger, state, src, dst),
		payment: NewPaymentHandler(logger, state, validators, src, dst),
		events:  events,
	}
	r.queue = NewQueue(logger.WithField("service", "queue"), cfg.Queue, r.processEvent)
	r.sourceListener = NewSourceListener(logger.WithField("service", "source_listener"),
		src, r.queue, state, cfg.Bridge.Source.Chain.BlockIndexInterval)
	r.destinationListener = NewDestinationListener(logger.WithField("service", "destination_listener"),
		dst, r.queue, state, cfg.Bridge.Destination.Chain.BlockIndexInterval)
	return r, nil
}

// Start runs listeners, the queue loop and the pending-tx sweeper until the
// context is cancelled or a component fails terminally.
func (r *Relayer) Start(ctx context.Context) error {
	queueCtx, stopQueue := context.WithCancel(context.Background())
	r.stopQueue = stopQueue

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.sourceListener.Start(ctx)
	})
	g.Go(func() error {
		return r.destinationListener.Start(ctx)
	})
	g.Go(func() error {
		r.queue.Start(queueCtx)
		return nil
	})
	g.Go(func() error {
		r.state.StartPendingTxSweeper(queueCtx, r.logger.WithField("service", "pending_tx_sweeper"))
		return nil
	})
	err := g.Wait()
	stopQueue()
	return err
}

// Stop shuts the pipeline down in order: listeners first, so nothing new is
// enqueued, then the queue loop, then the chain clients.
func (r *Relayer) Stop() {
	r.sourceListener.Stop()
	r.destinationListener.Stop()
	if r.stopQueue != nil {
		r.stopQueue()
	}
	r.src.Client.Close()
	r.dst.Client.Close()
}

// processEvent dispatches one dequeued event to its handler. The event kinds
// are a closed set, an unknown payload type is a programming error.
func (r *Relayer) processEvent(ctx context.Context, event *entity.NormalizedEvent) error {
	var res *Result
	var err error
	switch event.Payload.(type) {
	case *entity.ApprovalPayload:
		res, err = r.mint.Process(ctx, event)
	case *entity.SalePayload:
		res, err = r.sale.Process(ctx, event)
	case *entity.PaymentPayload:
		res, err = r.payment.Process(ctx, event)
	default:
		err = fmt.Errorf("no handler for event kind %s", event.Kind())
	}
	if err != nil {
		r.state.IncrementMetric(MetricErrors)
		return err
	}
	r.state.IncrementMetric(MetricEventsProcessed)
	r.recordHistory(ctx, event, res)
	return nil
}

// recordHistory persists the processed event for the presenter's lookups.
// Best effort: the in-memory pipeline is authoritative, a failed write only
// loses reporting data.
func (r *Relayer) recordHistory(ctx context.Context, event *entity.NormalizedEvent, res *Result) {
	if r.events == nil {
		return
	}
	record := &entity.BridgeEvent{
		Kind:            event.Kind(),
		ChainID:         event.SourceChain,
		LoanID:          res.LoanID,
		TransactionHash: event.TransactionHash,
		BlockNumber:     event.BlockNumber,
		LogIndex:        event.LogIndex,
		Details:         res.Reason,
	}
	if res.TokenID != nil {
		tokenID := res.TokenID.String()
		record.TokenID = &tokenID
	}
	if err := r.events.Ensure(ctx, record); err != nil {
		r.logger.WithError(err).Warn("can't persist bridge event history record")
	}
}

func (r *Relayer) QueueStatus() QueueStatus {
	return r.queue.GetStatus()
}

func (r *Relayer) SyncState() map[string]uint64 {
	return r.state.SyncState()
}

func (r *Relayer) Metrics() map[string]uint64 {
	return r.state.Metrics()
}

func (r *Relayer) PendingTxCount() int {
	return r.state.PendingTxCount()
}
