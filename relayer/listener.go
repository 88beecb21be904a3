package relayer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mrebazaUNIFIED/loanbridge-relayer/contract"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/entity"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/ethclient"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/logging"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/utils"
)

const rawLogsChanCap = 200

var (
	rtyAtt = retry.Attempts(10)
	rtyDel = retry.Delay(time.Second)
	rtyErr = retry.LastErrorOnly(true)
)

// NormalizeFunc turns a raw chain log into a NormalizedEvent. Returning a nil
// event with a nil error filters the log out. A non-nil error drops the log
// with an error-level record, it is never queued half-decoded.
type NormalizeFunc func(ctx context.Context, log *types.Log) (*entity.NormalizedEvent, error)

type logSubscription struct {
	contract  *contract.Contract
	eventSig  string
	topic     common.Hash
	normalize NormalizeFunc
}

// Listener subscribes to a fixed set of (contract, event) pairs on one chain
// and feeds normalized events into the queue. Subscription callbacks only
// forward raw logs, slow resolution work (transaction re-fetch and calldata
// decode) runs in a dedicated resolver task so it can never starve log
// delivery.
type Listener struct {
	logger    logging.Logger
	client    ethclient.Client
	queue     *Queue
	state     *BridgeState
	pollEvery time.Duration
	specs     []*logSubscription
	rawLogs   chan taggedLog

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
}

type taggedLog struct {
	spec *logSubscription
	log  types.Log
}

func NewListener(logger logging.Logger, client ethclient.Client, queue *Queue, state *BridgeState, pollEvery time.Duration) *Listener {
	return &Listener{
		logger:    logger.WithField("chain_id", client.ChainID()),
		client:    client,
		queue:     queue,
		state:     state,
		pollEvery: pollEvery,
		rawLogs:   make(chan taggedLog, rawLogsChanCap),
	}
}

// Watch registers a (contract, event) pair. Must be called before Start.
func (l *Listener) Watch(c *contract.Contract, eventSig string, normalize NormalizeFunc) {
	l.specs = append(l.specs, &logSubscription{
		contract:  c,
		eventSig:  eventSig,
		topic:     crypto.Keccak256Hash([]byte(eventSig)),
		normalize: normalize,
	})
}

// Start runs all subscriptions, the resolver and the block height poller
// until the context is cancelled or a subscription fails terminally.
func (l *Listener) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		cancel()
		return fmt.Errorf("listener for chain %s is already stopped", l.client.ChainID())
	}
	l.cancel = cancel
	l.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, spec := range l.specs {
		spec := spec
		g.Go(func() error {
			return l.runSubscription(ctx, spec)
		})
	}
	g.Go(func() error {
		l.runResolver(ctx)
		return nil
	})
	g.Go(func() error {
		l.runBlockPoller(ctx)
		return nil
	})
	return g.Wait()
}

// Stop deregisters all subscriptions. A stopped listener delivers no further
// events and cannot be restarted.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = true
	if l.cancel != nil {
		l.cancel()
	}
}

func (l *Listener) runSubscription(ctx context.Context, spec *logSubscription) error {
	logger := l.logger.WithFields(logrus.Fields{
		"address": spec.contract.Address(),
		"event":   spec.eventSig,
	})
	q := ethereum.FilterQuery{
		Addresses: []common.Address{spec.contract.Address()},
		Topics:    [][]common.Hash{{spec.topic}},
	}
	for {
		ch := make(chan types.Log, rawLogsChanCap)
		var sub ethereum.Subscription
		err := retry.Do(func() error {
			var err2 error
			sub, err2 = l.client.SubscribeFilterLogs(ctx, q, ch)
			return err2
		}, rtyAtt, rtyDel, rtyErr, retry.Context(ctx), retry.OnRetry(func(n uint, err error) {
			logger.WithError(err).WithField("attempt", n+1).Warn("can't subscribe to logs, retrying")
		}))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("subscription to %s gave up: %w", spec.eventSig, err)
		}
		logger.Info("subscribed to contract logs")

		alive := true
		for alive {
			select {
			case <-ctx.Done():
				sub.Unsubscribe()
				return nil
			case err := <-sub.Err():
				logger.WithError(err).Warn("log subscription broke, resubscribing")
				sub.Unsubscribe()
				alive = false
			case log := <-ch:
				select {
				case l.rawLogs <- taggedLog{spec, log}:
				case <-ctx.Done():
					sub.Unsubscribe()
					return nil
				}
			}
		}
	}
}

func (l *Listener) runResolver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case tagged := <-l.rawLogs:
			l.handleLog(ctx, tagged.spec, &tagged.log)
		}
	}
}

func (l *Listener) handleLog(ctx context.Context, spec *logSubscription, log *types.Log) {
	logger := l.logger.WithFields(logrus.Fields{
		"event":     spec.eventSig,
		"tx_hash":   log.TxHash,
		"log_index": log.Index,
	})
	event, err := spec.normalize(ctx, log)
	if err != nil {
		// A half-decoded event would poison a handler downstream, drop it.
		logger.WithError(err).Error("can't normalize event, dropping")
		return
	}
	if event == nil {
		logger.Debug("filtered out irrelevant log")
		return
	}
	if l.queue.Add(event) {
		logger.WithField("kind", event.Kind()).Info("queued normalized event")
	}
}

// runBlockPoller keeps the chain sync cursor fresh. Observability only, event
// delivery is push-based via the subscriptions.
func (l *Listener) runBlockPoller(ctx context.Context) {
	for {
		head, err := l.client.BlockNumber(ctx)
		if err != nil {
			l.logger.WithError(err).Error("can't fetch latest block number")
		} else {
			l.state.UpdateSyncState(l.client.ChainID(), head)
		}
		if utils.ContextSleep(ctx, l.pollEvery) == nil {
			return
		}
	}
}
