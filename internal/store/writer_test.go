package store

import (
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"arbsim/pkg/types"
)

var errTest = errors.New("database error")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestWriterFlushesQueueOnStop(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	s, mock := newMockStore(t, driverSQLite)
	mock.ExpectExec("INSERT INTO opportunities").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO opportunities").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec("INSERT INTO trades").WillReturnResult(sqlmock.NewResult(1, 1))

	w := NewWriter(s, 16, testLogger())
	go w.Run()

	opp := types.Opportunity{Timestamp: ts, Status: types.StatusAccepted, Reason: types.ReasonProfitable, Symbol: "BTCUSDT"}
	trade := types.SimulatedTrade{Timestamp: ts, Symbol: "BTCUSDT", Size: 1.0}

	if !w.SubmitOpportunity(opp) {
		t.Error("SubmitOpportunity dropped with room in the queue")
	}
	if !w.SubmitOpportunity(opp) {
		t.Error("SubmitOpportunity dropped with room in the queue")
	}
	if !w.SubmitTrade(trade) {
		t.Error("SubmitTrade dropped with room in the queue")
	}

	// Stop's sentinel is ordered behind the submitted events, so returning
	// from Stop means all three writes happened.
	w.Stop()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestWriterDropsWhenFull(t *testing.T) {
	s, _ := newMockStore(t, driverSQLite)

	// No Run goroutine: the queue fills and stays full.
	w := NewWriter(s, 1, testLogger())

	if !w.SubmitOpportunity(types.Opportunity{Symbol: "BTCUSDT"}) {
		t.Fatal("first submit should be queued")
	}
	if w.SubmitOpportunity(types.Opportunity{Symbol: "BTCUSDT"}) {
		t.Error("second submit should be dropped, queue is full")
	}
	if w.SubmitTrade(types.SimulatedTrade{Symbol: "BTCUSDT"}) {
		t.Error("trade submit should be dropped, queue is full")
	}
}

func TestWriterLogsAndContinuesOnWriteError(t *testing.T) {
	s, mock := newMockStore(t, driverSQLite)
	mock.ExpectExec("INSERT INTO opportunities").WillReturnError(errTest)
	mock.ExpectExec("INSERT INTO trades").WillReturnResult(sqlmock.NewResult(1, 1))

	w := NewWriter(s, 4, testLogger())
	go w.Run()

	w.SubmitOpportunity(types.Opportunity{Symbol: "BTCUSDT"})
	w.SubmitTrade(types.SimulatedTrade{Symbol: "BTCUSDT"})
	w.Stop()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
