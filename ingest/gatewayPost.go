// Package ingest accepts the raw ledgers: gateway settlement posts and the
// pipe-delimited ticket and trip-close uploads from ticketing devices.
package ingest

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"

	"bitbucket.org/mmdatafocus/settlement_backend/config"
	"bitbucket.org/mmdatafocus/settlement_backend/models"
	"bitbucket.org/mmdatafocus/settlement_backend/utils"
	"bitbucket.org/mmdatafocus/settlement_backend/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GatewayPost is the settlement notification the payment gateway posts.
// Amounts arrive as strings or numbers, so they are decoded loosely.
type GatewayPost struct {
	TransactionID     string `json:"transactionID" validate:"required"`
	MerchantId        string `json:"merchantId" validate:"required"`
	TransactionRRN    string `json:"transactionRRN" validate:"required"`
	Checksum          string `json:"checksum" validate:"required"`
	TransactionAmount any    `json:"transactionAmount" validate:"required"`
	TransactionDate   string `json:"transactionDate" validate:"required"`
	TransactionTime   string `json:"transactionTime" validate:"required"`
	ResponseCode      string `json:"responseCode" validate:"required"`
	TransactionStatus string `json:"transactionStatus" validate:"required"`

	InvoiceNumber         string `json:"invoiceNumber"`
	BillNumber            string `json:"billNumber"`
	TransactionCardNumber string `json:"transactionCardNumber"`
	CardType              string `json:"cardType"`
	TerminalId            string `json:"transactionTerminalId"`
	CashBack              any    `json:"cashBack"`
	TipAmount             any    `json:"tipAmount"`
}

var (
	postValidator     *validator.Validate
	postValidatorOnce sync.Once
)

// gatewayValidator reports fields by their JSON names, in declaration order.
func gatewayValidator() *validator.Validate {
	postValidatorOnce.Do(func() {
		postValidator = validator.New()
		postValidator.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return postValidator
}

// MissingFields lists the required fields that are absent or empty.
func (p GatewayPost) MissingFields() []string {
	err := gatewayValidator().Struct(p)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fe.Field())
	}
	return out
}

// PostOutcome describes what RecordGatewayPost did with a post.
type PostOutcome struct {
	Transaction *models.SettlementTransaction
	Created     bool
	Repost      bool
	// Repaired is a valid repost of a row first stored with a bad checksum.
	Repaired bool
}

var errChecksum = utils.NewUnauthorizedError("Checksum Error")

// IsChecksumError reports a post whose checksum did not verify.
func IsChecksumError(err error) bool {
	return errors.Is(err, errChecksum)
}

func optionalAmount(v any) (decimal.Decimal, error) {
	if v == nil {
		return decimal.Zero, nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return utils.ParseAmount(v)
}

// buildSettlement converts a post into a new ledger row.
func buildSettlement(p GatewayPost, checksumValid bool, raw []byte) (*models.SettlementTransaction, error) {
	date, err := utils.ParseGatewayDate(p.TransactionDate)
	if err != nil {
		return nil, utils.NewValidationError("Invalid date/time format: %s", err.Error())
	}
	clock, err := utils.ParseClock("transactionTime", p.TransactionTime)
	if err != nil {
		return nil, utils.NewValidationError("Invalid date/time format: %s", err.Error())
	}
	at, err := utils.CombineDateTime(date, clock)
	if err != nil {
		return nil, utils.NewValidationError("Invalid date/time format: %s", err.Error())
	}
	amount, err := utils.ParseAmount(p.TransactionAmount)
	if err != nil {
		return nil, utils.NewValidationError("Invalid transactionAmount: %s", err.Error())
	}
	cashBack, err := optionalAmount(p.CashBack)
	if err != nil {
		return nil, utils.NewValidationError("Invalid cashBack: %s", err.Error())
	}
	tip, err := optionalAmount(p.TipAmount)
	if err != nil {
		return nil, utils.NewValidationError("Invalid tipAmount: %s", err.Error())
	}

	processing := models.ProcessingStatusValidated
	if !checksumValid {
		processing = models.ProcessingStatusValidationFailed
	}
	return &models.SettlementTransaction{
		TransactionID:         strings.TrimSpace(p.TransactionID),
		MerchantId:            strings.TrimSpace(p.MerchantId),
		TransactionRRN:        strings.TrimSpace(p.TransactionRRN),
		TransactionAmount:     amount,
		CashBack:              cashBack,
		TipAmount:             tip,
		TransactionCardNumber: utils.MaskCardNumber(p.TransactionCardNumber),
		CardType:              p.CardType,
		TerminalId:            p.TerminalId,
		TransactionDate:       date,
		TransactionTime:       clock,
		TransactionDateTime:   at,
		InvoiceNumber:         strings.TrimSpace(p.InvoiceNumber),
		BillNumber:            p.BillNumber,
		ResponseCode:          strings.TrimSpace(p.ResponseCode),
		TransactionStatus:     p.TransactionStatus,
		IsChecksumValid:       checksumValid,
		PaymentStatus:         models.PaymentStatusFromResponseCode(p.ResponseCode),
		ProcessingStatus:      processing,
		RawRequestData:        datatypes.JSON(raw),
	}, nil
}

var errRaceRepost = errors.New("transaction inserted concurrently")

// RecordGatewayPost stores a gateway post.
//
// A new transactionID is inserted even when its checksum fails, flagged
// is_checksum_valid=false, so tampering shows in the security summary; the
// caller still gets the checksum error. A repost with a valid checksum bumps
// repost_count, and repairs a row first stored with a bad checksum. Reposts
// never change the gateway fields of a valid row.
//
// New or repaired valid rows are reconciled right away when
// AUTO_RECONCILE_ON_INGEST is on. A reconciliation failure leaves the row
// PENDING for the next run and is not returned.
func RecordGatewayPost(ctx context.Context, db *gorm.DB, p GatewayPost, raw []byte) (*PostOutcome, error) {
	if missing := p.MissingFields(); len(missing) > 0 {
		return nil, utils.NewValidationError("Missing required fields: %s", strings.Join(missing, ", "))
	}
	valid := utils.VerifyGatewayChecksum(p.Checksum, p.TransactionID, p.MerchantId, p.TransactionRRN, config.GatewaySalt())

	var (
		out *PostOutcome
		err error
	)
	for attempt := 0; attempt < 2; attempt++ {
		out, err = recordOnce(ctx, db, p, valid, raw)
		if !errors.Is(err, errRaceRepost) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, errRaceRepost) {
			return nil, utils.NewConflictError("transaction %s is being stored concurrently", p.TransactionID)
		}
		return out, err
	}
	if !valid {
		return out, errChecksum
	}

	if (out.Created || out.Repaired) && config.AutoReconcileOnIngest() {
		reconciled, rerr := workflow.ReconcileWithRetry(ctx, db, out.Transaction.ID)
		if rerr != nil {
			config.LogError(config.GetLogger(), "ingest", "RecordGatewayPost", "ReconcileWithRetry",
				map[string]interface{}{"transaction_id": out.Transaction.ID}, rerr)
		} else {
			out.Transaction = reconciled
		}
	}
	return out, nil
}

func recordOnce(ctx context.Context, db *gorm.DB, p GatewayPost, valid bool, raw []byte) (*PostOutcome, error) {
	out := &PostOutcome{}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.SettlementTransaction
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("transaction_id = ?", strings.TrimSpace(p.TransactionID)).
			First(&existing).Error
		switch {
		case err == nil:
			out.Transaction = &existing
			if !valid {
				return nil
			}
			return applyRepost(tx, &existing, p, out, raw)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		row, err := buildSettlement(p, valid, raw)
		if err != nil {
			if !valid {
				return errChecksum
			}
			return err
		}
		if err := tx.Create(row).Error; err != nil {
			if models.IsDuplicateKeyErr(err) {
				return errRaceRepost
			}
			return err
		}
		out.Transaction = row
		out.Created = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// repairedFields are the gateway fields of a valid post, replacing those a
// post with a bad checksum stored first.
func repairedFields(p GatewayPost, raw []byte) (map[string]interface{}, error) {
	row, err := buildSettlement(p, true, raw)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"merchant_id":             row.MerchantId,
		"transaction_rrn":         row.TransactionRRN,
		"transaction_amount":      row.TransactionAmount,
		"cash_back":               row.CashBack,
		"tip_amount":              row.TipAmount,
		"transaction_card_number": row.TransactionCardNumber,
		"card_type":               row.CardType,
		"terminal_id":             row.TerminalId,
		"transaction_date":        row.TransactionDate,
		"transaction_time":        row.TransactionTime,
		"transaction_date_time":   row.TransactionDateTime,
		"invoice_number":          row.InvoiceNumber,
		"bill_number":             row.BillNumber,
		"response_code":           row.ResponseCode,
		"transaction_status":      row.TransactionStatus,
		"payment_status":          row.PaymentStatus,
		"is_checksum_valid":       true,
		"processing_status":       row.ProcessingStatus,
		"raw_request_data":        row.RawRequestData,
	}, nil
}

func applyRepost(tx *gorm.DB, s *models.SettlementTransaction, p GatewayPost, out *PostOutcome, raw []byte) error {
	updates := map[string]interface{}{}
	if !s.IsChecksumValid {
		repaired, err := repairedFields(p, raw)
		if err != nil {
			return err
		}
		updates = repaired
		out.Repaired = true
	} else {
		out.Repost = true
	}
	updates["repost_count"] = gorm.Expr("repost_count + 1")
	updates["version"] = gorm.Expr("version + 1")
	res := tx.Model(&models.SettlementTransaction{}).
		Where("id = ? AND version = ?", s.ID, s.Version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.NewConflictError("settlement transaction %d was modified concurrently", s.ID)
	}
	if err := tx.First(s, s.ID).Error; err != nil {
		return err
	}
	config.GetLogger().WithFields(logrus.Fields{
		"field":          "RecordGatewayPost",
		"transaction_id": s.TransactionID,
		"repost_count":   s.RepostCount,
		"repaired":       out.Repaired,
	}).Info("gateway repost")
	return nil
}
