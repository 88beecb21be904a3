package presenter_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/mrebazaUNIFIED/loanbridge-relayer/entity"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/logging"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/presenter"
	"github.com/mrebazaUNIFIED/loanbridge-relayer/relayer"
)

type stubStatus struct{}

func (s *stubStatus) QueueStatus() relayer.QueueStatus {
	return relayer.QueueStatus{QueueSize: 2, InFlight: 1, TotalProcessed: 40}
}

func (s *stubStatus) SyncState() map[string]uint64 {
	return map[string]uint64{"11155111": 100, "80001": 200}
}

func (s *stubStatus) Metrics() map[string]uint64 {
	return map[string]uint64{"events_processed": 40, "nfts_minted": 11}
}

func (s *stubStatus) PendingTxCount() int { return 1 }

type stubEventsRepo struct {
	events []*entity.BridgeEvent
}

func (r *stubEventsRepo) Ensure(ctx context.Context, event *entity.BridgeEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *stubEventsRepo) FindByLoanID(ctx context.Context, loanID string) ([]*entity.BridgeEvent, error) {
	var res []*entity.BridgeEvent
	for _, event := range r.events {
		if event.LoanID == loanID {
			res = append(res, event)
		}
	}
	return res, nil
}

func (r *stubEventsRepo) FindByTokenID(ctx context.Context, tokenID string) ([]*entity.BridgeEvent, error) {
	var res []*entity.BridgeEvent
	for _, event := range r.events {
		if event.TokenID != nil && *event.TokenID == tokenID {
			res = append(res, event)
		}
	}
	return res, nil
}

func serveTestRequest(t *testing.T, p *presenter.Presenter, path string) (int, map[string]interface{}) {
	t.Helper()
	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func newTestRepo() *stubEventsRepo {
	now := time.Now()
	tokenID := "7"
	return &stubEventsRepo{events: []*entity.BridgeEvent{
		{
			ID:              1,
			Kind:            entity.KindLoanApprovedForSale,
			ChainID:         "11155111",
			LoanID:          "GM912D0006",
			TokenID:         &tokenID,
			TransactionHash: common.HexToHash("0x01"),
			BlockNumber:     100,
			LogIndex:        2,
			CreatedAt:       &now,
		},
		{
			ID:              2,
			Kind:            entity.KindPaymentRecorded,
			ChainID:         "11155111",
			LoanID:          "GM912D0007",
			TransactionHash: common.HexToHash("0x02"),
			BlockNumber:     101,
			LogIndex:        0,
			CreatedAt:       &now,
		},
	}}
}

func TestPresenterHealth(t *testing.T) {
	t.Parallel()

	p := presenter.NewPresenter(logging.New(), &stubStatus{}, newTestRepo())
	status, body := serveTestRequest(t, p, "/health")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["success"])

	data := body["data"].(map[string]interface{})
	require.Equal(t, "ok", data["status"])
	require.Equal(t, float64(1), data["pendingTxs"])
	metrics := data["metrics"].(map[string]interface{})
	require.Equal(t, float64(11), metrics["nfts_minted"])
}

func TestPresenterQueue(t *testing.T) {
	t.Parallel()

	p := presenter.NewPresenter(logging.New(), &stubStatus{}, newTestRepo())
	status, body := serveTestRequest(t, p, "/queue")
	require.Equal(t, http.StatusOK, status)

	data := body["data"].(map[string]interface{})
	require.Equal(t, float64(2), data["queueSize"])
	require.Equal(t, float64(1), data["inFlight"])
	require.Equal(t, float64(40), data["totalProcessed"])
}

func TestPresenterSync(t *testing.T) {
	t.Parallel()

	p := presenter.NewPresenter(logging.New(), &stubStatus{}, newTestRepo())
	status, body := serveTestRequest(t, p, "/sync")
	require.Equal(t, http.StatusOK, status)

	chains := body["data"].(map[string]interface{})["chains"].(map[string]interface{})
	require.Equal(t, float64(100), chains["11155111"])
	require.Equal(t, float64(200), chains["80001"])
}

func TestPresenterLoanEvents(t *testing.T) {
	t.Parallel()

	p := presenter.NewPresenter(logging.New(), &stubStatus{}, newTestRepo())
	status, body := serveTestRequest(t, p, "/loans/GM912D0006/events")
	require.Equal(t, http.StatusOK, status)

	events := body["data"].(map[string]interface{})["events"].([]interface{})
	require.Len(t, events, 1)
	event := events[0].(map[string]interface{})
	require.Equal(t, "LoanApprovedForSale", event["kind"])
	require.Equal(t, "GM912D0006", event["loanId"])
	require.Equal(t, "7", event["tokenId"])
}

func TestPresenterTokenEvents(t *testing.T) {
	t.Parallel()

	p := presenter.NewPresenter(logging.New(), &stubStatus{}, newTestRepo())
	status, body := serveTestRequest(t, p, "/tokens/7/events")
	require.Equal(t, http.StatusOK, status)

	events := body["data"].(map[string]interface{})["events"].([]interface{})
	require.Len(t, events, 1)
	require.Equal(t, "GM912D0006", events[0].(map[string]interface{})["loanId"])
}

func TestPresenterWithoutHistoryStore(t *testing.T) {
	t.Parallel()

	p := presenter.NewPresenter(logging.New(), &stubStatus{}, nil)

	status, body := serveTestRequest(t, p, "/loans/GM912D0006/events")
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Equal(t, false, body["success"])
	require.Contains(t, body["error"], "history store")

	// Status endpoints keep working without a database.
	status, _ = serveTestRequest(t, p, "/health")
	require.Equal(t, http.StatusOK, status)
}
