package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/creatorpay/backend/internal/services"
)

func TestCodeHandler_ShareQR(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	registry := services.NewRegistryService(db)
	handler := NewCodeHandler(registry, nil)

	router := chi.NewRouter()
	router.Get("/codes/{codeId}/qr", handler.ShareQR)

	t.Run("renders a QR payload for a known code", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery("SELECT code_id, influencer_id, commission_rate, landing_url, created_at, updated_at FROM codes WHERE code_id = \\$1").
			WithArgs("SUMMER40").
			WillReturnRows(sqlmock.NewRows([]string{"code_id", "influencer_id", "commission_rate", "landing_url", "created_at", "updated_at"}).
				AddRow("SUMMER40", "7b0d9f2e-58a1-4a09-9c4e-2f1f3a8b6c01", 40, "https://shop.example.com/summer", now, now))

		req := httptest.NewRequest("GET", "/codes/SUMMER40/qr", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp map[string]string
		assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "SUMMER40", resp["codeId"])
		assert.Equal(t, "https://shop.example.com/summer", resp["url"])
		assert.NotEmpty(t, resp["qrImage"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("falls back to the share base URL without a landing URL", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery("SELECT code_id, influencer_id, commission_rate, landing_url, created_at, updated_at FROM codes WHERE code_id = \\$1").
			WithArgs("BARE10").
			WillReturnRows(sqlmock.NewRows([]string{"code_id", "influencer_id", "commission_rate", "landing_url", "created_at", "updated_at"}).
				AddRow("BARE10", "7b0d9f2e-58a1-4a09-9c4e-2f1f3a8b6c01", 10, "", now, now))

		req := httptest.NewRequest("GET", "/codes/BARE10/qr", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp map[string]string
		assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Contains(t, resp["url"], "BARE10")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown code", func(t *testing.T) {
		mock.ExpectQuery("SELECT code_id, influencer_id, commission_rate, landing_url, created_at, updated_at FROM codes WHERE code_id = \\$1").
			WithArgs("NOPE").
			WillReturnRows(sqlmock.NewRows([]string{"code_id"}))

		req := httptest.NewRequest("GET", "/codes/NOPE/qr", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
