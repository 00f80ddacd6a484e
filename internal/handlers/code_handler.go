package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/viper"

	"github.com/creatorpay/backend/internal/services"
)

// CodeHandler serves shareable assets for discount codes. Purely cosmetic to
// the ledger: nothing here writes a movement.
type CodeHandler struct {
	registry *services.RegistryService
	redis    *redis.Client
}

func NewCodeHandler(registry *services.RegistryService, redisClient *redis.Client) *CodeHandler {
	viper.SetDefault("share.base_url", "https://shop.example.com/discount")
	return &CodeHandler{
		registry: registry,
		redis:    redisClient,
	}
}

// ShareQR renders a QR image for a code's landing link
// @Summary Discount code share QR
// @Description Generate a QR code image for the code's landing URL
// @Tags codes
// @Produce json
// @Security BearerAuth
// @Param codeId path string true "Code ID"
// @Success 200 {object} object{codeId=string,url=string,qrImage=string}
// @Failure 404 {object} services.ErrorResponse
// @Router /codes/{codeId}/qr [get]
func (h *CodeHandler) ShareQR(w http.ResponseWriter, r *http.Request) {
	codeID := chi.URLParam(r, "codeId")

	cacheKey := fmt.Sprintf("code_qr:%s", codeID)
	if h.redis != nil {
		if cached, err := h.redis.Get(r.Context(), cacheKey).Bytes(); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Write(cached)
			return
		}
	}

	code, err := h.registry.GetCode(codeID)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	url := code.LandingURL
	if url == "" {
		url = fmt.Sprintf("%s/%s", viper.GetString("share.base_url"), code.CodeID)
	}

	qr, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		services.SendErrorResponse(w, "Failed to generate QR code", http.StatusInternalServerError, nil)
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		services.SendErrorResponse(w, "Failed to render QR image", http.StatusInternalServerError, nil)
		return
	}

	payload, _ := json.Marshal(map[string]any{
		"codeId":  code.CodeID,
		"url":     url,
		"qrImage": base64.StdEncoding.EncodeToString(buf.Bytes()),
	})

	if h.redis != nil {
		if err := h.redis.Set(context.Background(), cacheKey, payload, 10*time.Minute).Err(); err != nil {
			log.Printf("[SHARE] Failed to cache QR for code %s: %v", codeID, err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}
