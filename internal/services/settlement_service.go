package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
	"github.com/spf13/viper"

	"github.com/creatorpay/backend/internal/models"
)

const settlementQueueKey = "settlement_queue"

// SettlementService exports settled payouts for the downstream payment rail:
// each PAID payout is queued and can be rendered as an ISO 20022 pacs.008
// credit transfer. The engine records intent and fact only; no transfer is
// executed here.
type SettlementService struct {
	db    *sql.DB
	redis *redis.Client
}

func NewSettlementService(db *sql.DB, redisClient *redis.Client) *SettlementService {
	viper.SetDefault("ledger.currency", "USD")
	return &SettlementService{
		db:    db,
		redis: redisClient,
	}
}

// QueueSettled pushes a settled payout onto the Redis settlement queue for
// the downstream confirmation consumer. Best effort: the ledger debit is
// already committed when this runs.
func (s *SettlementService) QueueSettled(payout *models.Payout) error {
	if s.redis == nil {
		log.Printf("[SETTLEMENT] Redis unavailable, skipping queue for payout %s", payout.ID)
		return nil
	}

	data, err := json.Marshal(payout)
	if err != nil {
		return err
	}
	return s.redis.RPush(context.Background(), settlementQueueKey, data).Err()
}

// Remittance returns the pacs.008 document for a settled payout
// @Summary Payout remittance document
// @Description Render a paid payout as an ISO 20022 pacs.008 credit transfer
// @Tags payouts
// @Produce xml
// @Security BearerAuth
// @Param payoutId path string true "Payout ID"
// @Success 200 {string} string "pacs.008 XML"
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /payouts/{payoutId}/remittance [get]
func (s *SettlementService) Remittance(w http.ResponseWriter, r *http.Request) {
	payoutID := chi.URLParam(r, "payoutId")

	var payout models.Payout
	var influencerName string
	err := s.db.QueryRow(`
		SELECT p.id, p.influencer_id, p.amount, p.status, p.paid_at, i.name
		FROM payouts p
		JOIN influencers i ON i.id = p.influencer_id
		WHERE p.id = $1`, payoutID).Scan(
		&payout.ID, &payout.InfluencerID, &payout.Amount, &payout.Status, &payout.PaidAt, &influencerName)
	if err == sql.ErrNoRows {
		SendServiceError(w, ErrUnknownPayout)
		return
	}
	if err != nil {
		log.Printf("[SETTLEMENT] Failed to fetch payout %s: %v", payoutID, err)
		SendErrorResponse(w, "Failed to fetch payout", http.StatusInternalServerError, nil)
		return
	}

	if payout.Status != models.PayoutPaid {
		SendErrorResponse(w, "Payout is not settled", http.StatusConflict, nil)
		return
	}

	doc, err := s.CreatePacs008(&payout, influencerName)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
		return
	}

	xmlData, err := s.ConvertToXML(doc)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Write([]byte(xmlData))
}

// CreatePacs008 builds the FIToFICustomerCreditTransfer for a settled payout.
// Debtor is the platform settlement account, creditor the influencer.
func (s *SettlementService) CreatePacs008(payout *models.Payout, influencerName string) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	if payout.PaidAt == nil {
		return nil, fmt.Errorf("payout %s has no settlement timestamp", payout.ID)
	}

	msgID := uuid.New().String()
	currency := viper.GetString("ledger.currency")
	amount := float64(payout.Amount) / 100
	settlementDate := *payout.PaidAt

	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgID),
			CreDtTm: common.ISODateTime(time.Now()),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(currency),
				Value: amount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(payout.ID)}[0],
					EndToEndId: common.Max35Text(payout.ID),
					TxId:       &[]common.Max35Text{common.Max35Text(payout.ID)}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode(currency),
					Value: amount,
				},
				IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier("CRTRPAY")}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text("CreatorPay Commission Ledger")}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(influencerName)}[0],
				},
			},
		},
	}

	return doc, nil
}

// ConvertToXML converts an ISO 20022 document to an XML string
func (s *SettlementService) ConvertToXML(doc interface{}) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}
