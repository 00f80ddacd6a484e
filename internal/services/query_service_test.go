package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func newQueryRouter(t *testing.T) (chi.Router, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	ledger := NewLedgerService(db)
	payouts := NewPayoutService(db, ledger, nil)
	query := NewQueryService(ledger, payouts)

	r := chi.NewRouter()
	r.Get("/influencers/{influencerId}/balance", query.GetBalance)
	r.Get("/influencers/{influencerId}/movements", query.ListMovements)
	r.Get("/influencers/{influencerId}/payouts", query.ListPayouts)
	r.Get("/influencers/{influencerId}/reconcile", query.Reconcile)
	return r, mock, func() { db.Close() }
}

func TestQueryService_GetBalance(t *testing.T) {
	router, mock, closeDB := newQueryRouter(t)
	defer closeDB()

	t.Run("formats amounts as decimal strings", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM influencers WHERE id = \\$1\\)").
			WithArgs(testInfluencerID).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery("SELECT COALESCE\\(SUM\\(CASE WHEN kind = 'CREDIT' THEN amount ELSE -amount END\\), 0\\) FROM movements").
			WithArgs(testInfluencerID).
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(40000))
		mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount\\), 0\\) FROM payouts").
			WithArgs(testInfluencerID).
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(15000))

		req := httptest.NewRequest("GET", "/influencers/"+testInfluencerID+"/balance", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp map[string]string
		assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "400.00", resp["available"])
		assert.Equal(t, "150.00", resp["reserved"])
		assert.Equal(t, "250.00", resp["spendable"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown influencer returns 404", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM influencers WHERE id = \\$1\\)").
			WithArgs("deadbeef").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		req := httptest.NewRequest("GET", "/influencers/deadbeef/balance", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestQueryService_ListPayouts(t *testing.T) {
	router, mock, closeDB := newQueryRouter(t)
	defer closeDB()

	t.Run("rejects unknown status filter", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/influencers/"+testInfluencerID+"/payouts?status=SETTLED", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("lists with status filter", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM influencers WHERE id = \\$1\\)").
			WithArgs(testInfluencerID).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery("SELECT id, influencer_id, amount, status, movement_id, created_at, decided_at, paid_at FROM payouts WHERE influencer_id = \\$1 AND status = \\$2").
			WithArgs(testInfluencerID, "PAID").
			WillReturnRows(payoutRow("PAID"))

		req := httptest.NewRequest("GET", "/influencers/"+testInfluencerID+"/payouts?status=PAID", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "\"count\":1")
		assert.Contains(t, rr.Body.String(), "\"amount\":\"400.00\"")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestQueryService_ListMovements(t *testing.T) {
	router, mock, closeDB := newQueryRouter(t)
	defer closeDB()

	now := time.Now()
	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM influencers WHERE id = \\$1\\)").
		WithArgs(testInfluencerID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT id, influencer_id, kind, amount, rate_pct, reference_type, reference_id, created_at FROM movements").
		WithArgs(testInfluencerID, 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "influencer_id", "kind", "amount", "rate_pct", "reference_type", "reference_id", "created_at"}).
			AddRow("m1", testInfluencerID, "CREDIT", 40000, 40, "sale", "sale-1", now))

	req := httptest.NewRequest("GET", "/influencers/"+testInfluencerID+"/movements", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Movements []MovementResponse `json:"movements"`
		Count     int                `json:"count"`
	}
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "400.00", resp.Movements[0].Amount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryService_Reconcile(t *testing.T) {
	router, mock, closeDB := newQueryRouter(t)
	defer closeDB()

	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM influencers WHERE id = \\$1\\)").
		WithArgs(testInfluencerID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(CASE WHEN kind = 'CREDIT' THEN amount ELSE -amount END\\), 0\\) FROM movements").
		WithArgs(testInfluencerID).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(10000))
	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount\\), 0\\) FROM payouts").
		WithArgs(testInfluencerID).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(0))
	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount\\) FILTER \\(WHERE kind = 'CREDIT'\\), 0\\)").
		WithArgs(testInfluencerID).
		WillReturnRows(sqlmock.NewRows([]string{"credits", "debits", "count"}).AddRow(50000, 40000, 3))

	req := httptest.NewRequest("GET", "/influencers/"+testInfluencerID+"/reconcile", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "\"consistent\":true")
	assert.Contains(t, rr.Body.String(), "\"credits\":\"500.00\"")
	assert.Contains(t, rr.Body.String(), "\"debits\":\"400.00\"")
	assert.NoError(t, mock.ExpectationsWereMet())
}
