package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/settlement_backend/config"
	"bitbucket.org/mmdatafocus/settlement_backend/models"
	"bitbucket.org/mmdatafocus/settlement_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DeviceError is a rejection the device understands: a plain-text code and status.
type DeviceError struct {
	Code   string
	Status int
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code
}

func (e *DeviceError) Unwrap() error { return e.Err }

func deviceErr(code string, err error) *DeviceError {
	return &DeviceError{Code: code, Status: http.StatusBadRequest, Err: err}
}

func asDeviceError(err error) (*DeviceError, bool) {
	var de *DeviceError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

const (
	codeMissingData       = "MISSING_DATA"
	codeInvalid           = "INVALID"
	codeInvalidCompany    = "INVALID_COMPANY"
	codeInvalidDateTime   = "INVALID_DATE_TIME"
	codeIrregularTickets  = "DATA_IRREGULARITY_CASH_TICKETS"
	codeIrregularAmount   = "DATA_IRREGULARITY_CASH_AMOUNT"
	codeMalformed         = "ERROR"
	tripCloseRequestType  = "TrpCl"
	tripCloseFieldCount   = 33
	ticketCompanyField    = 26
	tripCloseCompanyField = 2
)

// fields reads a pipe-delimited payload. Absent trailing fields read as "".
type fields []string

func (f fields) str(i int) string {
	if i < len(f) {
		return strings.TrimSpace(f[i])
	}
	return ""
}

func (f fields) intAt(i int) (int, error) {
	s := f.str(i)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, deviceErr(codeMalformed, fmt.Errorf("field %d: %q is not an integer", i, s))
	}
	return n, nil
}

func (f fields) int64At(i int) (int64, error) {
	s := f.str(i)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, deviceErr(codeMalformed, fmt.Errorf("field %d: %q is not an integer", i, s))
	}
	return n, nil
}

func (f fields) amountAt(i int) (decimal.Decimal, error) {
	s := f.str(i)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := utils.ParseAmount(s)
	if err != nil {
		return decimal.Zero, deviceErr(codeMalformed, fmt.Errorf("field %d: %w", i, err))
	}
	return d, nil
}

// ints parses several integer fields, stopping at the first failure.
func (f fields) ints(idx ...int) ([]int, error) {
	out := make([]int, len(idx))
	for k, i := range idx {
		n, err := f.intAt(i)
		if err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, nil
}

func (f fields) amounts(idx ...int) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(idx))
	for k, i := range idx {
		d, err := f.amountAt(i)
		if err != nil {
			return nil, err
		}
		out[k] = d
	}
	return out, nil
}

// ParseTicket reads a device ticket upload.
//
// Layout: 0 request type, 1 device, 2 trip, 3 ticket no, 4 date (YYYY-MM-DD),
// 5 time, 6-7 stages, 8-12 full/half/st/phy/lugg counts, 13 ticket amount,
// 14 luggage amount, 15 ticket type, 16 adjust, 17 pass id, 18 warrant,
// 19 refund status, 20 refund amount, 21 ladies, 22 senior, 23 transaction id,
// 24 payment mode (0 cash, 1 UPI), 25 reference number, 26 company.
func ParseTicket(raw string) (*models.TicketTransaction, error) {
	f := fields(strings.Split(raw, "|"))

	company := f.str(ticketCompanyField)
	if company == "" {
		return nil, deviceErr(codeInvalidCompany, errors.New("company code missing"))
	}
	date, err := utils.ParseBusinessDate("ticket_date", f.str(4))
	if err != nil {
		return nil, deviceErr(codeInvalidDateTime, err)
	}
	clock, err := utils.ParseClock("ticket_time", f.str(5))
	if err != nil {
		return nil, deviceErr(codeInvalidDateTime, err)
	}
	counts, err := f.ints(6, 7, 8, 9, 10, 11, 12, 21, 22)
	if err != nil {
		return nil, err
	}
	amts, err := f.amounts(13, 14, 16, 18, 20)
	if err != nil {
		return nil, err
	}

	mode := models.TicketPaymentCash
	if s := f.str(24); s != "" {
		if n, err := strconv.Atoi(s); err == nil && (n == int(models.TicketPaymentCash) || n == int(models.TicketPaymentUPI)) {
			mode = models.TicketPaymentMode(n)
		} else {
			config.GetLogger().WithFields(logrus.Fields{
				"field":         "ParseTicket",
				"ticket_status": s,
			}).Warn("invalid payment mode; treating as cash")
		}
	}

	t := &models.TicketTransaction{
		RequestType:     f.str(0),
		DeviceId:        f.str(1),
		TripNumber:      f.str(2),
		TicketNumber:    f.str(3),
		TicketDate:      date,
		TicketTime:      clock,
		FromStage:       counts[0],
		ToStage:         counts[1],
		FullCount:       counts[2],
		HalfCount:       counts[3],
		StCount:         counts[4],
		PhyCount:        counts[5],
		LuggCount:       counts[6],
		LadiesCount:     counts[7],
		SeniorCount:     counts[8],
		TicketAmount:    amts[0],
		LuggAmount:      amts[1],
		TicketType:      f.str(15),
		AdjustAmount:    amts[2],
		PassId:          f.str(17),
		WarrantAmount:   amts[3],
		RefundStatus:    f.str(19),
		RefundAmount:    amts[4],
		TransactionId:   f.str(23),
		TicketStatus:    mode,
		ReferenceNumber: f.str(25),
		CompanyCode:     company,
		RawPayload:      raw,
	}
	t.TotalTickets = t.FullCount + t.HalfCount + t.StCount + t.PhyCount + t.LuggCount
	return t, nil
}

// RecordTicket stores a ticket upload. A re-sent ticket is acknowledged
// without a second row (created=false). A new UPI ticket with a reference
// number is announced so waiting settlements can match it.
func RecordTicket(ctx context.Context, db *gorm.DB, raw string) (created bool, err error) {
	t, err := ParseTicket(raw)
	if err != nil {
		return false, err
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		if models.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	if t.IsUPI() && t.ReferenceNumber != "" {
		if err := PublishTicketArrived(ctx, db, t); err != nil {
			config.LogError(config.GetLogger(), "ingest", "RecordTicket", "PublishTicketArrived",
				map[string]interface{}{"ticket_id": t.ID, "reference_number": t.ReferenceNumber}, err)
		}
	}
	return true, nil
}

// ParseTripClose reads a device trip-close upload.
//
// Layout: 0 "TrpCl", 1 palmtec id, 2 company, 3 schedule, 4 trip no,
// 5-8 start date/time and end date/time, 9-10 ticket range, 11-18 full/half/
// st/luggage/physical/pass/ladies/senior counts, 19-25 collections in the same
// order without pass, 26 adjust, 27 expense, 28 total collection, 29 UPI
// count, 30 UPI amount, 31 route, 32 up/down.
func ParseTripClose(raw string) (*models.TripClose, error) {
	f := fields(strings.Split(raw, "|"))
	if len(f) < tripCloseFieldCount {
		return nil, deviceErr(codeMissingData, fmt.Errorf("expected %d fields, got %d", tripCloseFieldCount, len(f)))
	}
	if f.str(0) != tripCloseRequestType {
		return nil, deviceErr(codeInvalid, fmt.Errorf("request type %q", f.str(0)))
	}
	company := f.str(tripCloseCompanyField)
	if company == "" {
		return nil, deviceErr(codeInvalidCompany, errors.New("company code missing"))
	}

	startDate, err := utils.ParseBusinessDate("start_date", f.str(5))
	if err != nil {
		return nil, deviceErr(codeInvalidDateTime, err)
	}
	startTime, err := utils.ParseClock("start_time", f.str(6))
	if err != nil {
		return nil, deviceErr(codeInvalidDateTime, err)
	}
	endDate, err := utils.ParseBusinessDate("end_date", f.str(7))
	if err != nil {
		return nil, deviceErr(codeInvalidDateTime, err)
	}
	endTime, err := utils.ParseClock("end_time", f.str(8))
	if err != nil {
		return nil, deviceErr(codeInvalidDateTime, err)
	}
	startAt, err := utils.CombineDateTime(startDate, startTime)
	if err != nil {
		return nil, deviceErr(codeInvalidDateTime, err)
	}
	endAt, err := utils.CombineDateTime(endDate, endTime)
	if err != nil {
		return nil, deviceErr(codeInvalidDateTime, err)
	}

	ids, err := f.ints(3, 4)
	if err != nil {
		return nil, err
	}
	startNo, err := f.int64At(9)
	if err != nil {
		return nil, err
	}
	endNo, err := f.int64At(10)
	if err != nil {
		return nil, err
	}
	counts, err := f.ints(11, 12, 13, 14, 15, 16, 17, 18, 29)
	if err != nil {
		return nil, err
	}
	amts, err := f.amounts(19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 30)
	if err != nil {
		return nil, err
	}

	tc := &models.TripClose{
		PalmtecId:          f.str(1),
		CompanyCode:        company,
		Schedule:           ids[0],
		TripNo:             ids[1],
		RouteCode:          f.str(31),
		UpDownTrip:         f.str(32),
		StartDate:          startDate,
		StartTime:          startTime,
		EndDate:            endDate,
		EndTime:            endTime,
		StartDateTime:      startAt,
		EndDateTime:        endAt,
		StartTicketNo:      startNo,
		EndTicketNo:        endNo,
		FullCount:          counts[0],
		HalfCount:          counts[1],
		St1Count:           counts[2],
		LuggageCount:       counts[3],
		PhysicalCount:      counts[4],
		PassCount:          counts[5],
		LadiesCount:        counts[6],
		SeniorCount:        counts[7],
		UpiTicketCount:     counts[8],
		FullCollection:     amts[0],
		HalfCollection:     amts[1],
		StCollection:       amts[2],
		LuggageCollection:  amts[3],
		PhysicalCollection: amts[4],
		LadiesCollection:   amts[5],
		SeniorCollection:   amts[6],
		AdjustCollection:   amts[7],
		ExpenseAmount:      amts[8],
		TotalCollection:    amts[9],
		UpiTicketAmount:    amts[10],
	}
	tc.TotalTickets = tc.FullCount + tc.HalfCount + tc.St1Count + tc.LuggageCount +
		tc.PhysicalCount + tc.PassCount + tc.LadiesCount + tc.SeniorCount
	tc.TotalCashTickets = tc.TotalTickets - tc.UpiTicketCount
	if tc.TotalCashTickets < 0 {
		return nil, deviceErr(codeIrregularTickets, fmt.Errorf("total_cash_tickets is %d", tc.TotalCashTickets))
	}
	tc.TotalCashAmount = tc.TotalCollection.Sub(tc.UpiTicketAmount)
	if tc.TotalCashAmount.IsNegative() {
		return nil, deviceErr(codeIrregularAmount, fmt.Errorf("total_cash_amount is %s", tc.TotalCashAmount.StringFixed(2)))
	}
	tc.ComputeDerived()
	return tc, nil
}

// RecordTripClose stores a trip close; created is false for a re-sent trip.
func RecordTripClose(ctx context.Context, db *gorm.DB, raw string) (created bool, err error) {
	tc, err := ParseTripClose(raw)
	if err != nil {
		return false, err
	}
	if err := db.WithContext(ctx).Create(tc).Error; err != nil {
		if models.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
