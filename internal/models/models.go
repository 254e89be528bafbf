package models

import "time"

// WinType partitions scan events into three disjoint classes.
type WinType string

const (
	WinTypeRealPrize WinType = "real_prize"
	WinTypePoints    WinType = "points"
	WinTypeNoWin     WinType = "no_win"
)

// TimestampField names one of the timestamp columns of a scan event.
type TimestampField string

const (
	FieldWinDate           TimestampField = "win_date"
	FieldPrizeReceiveDate  TimestampField = "prize_receive_date"
	FieldPrizeDeliveryDate TimestampField = "prize_delivery_date"
	FieldActivationDate    TimestampField = "activation_date"
	FieldCreatedDate       TimestampField = "created_date"
	FieldModifyDate        TimestampField = "modify_date"
)

// ScanRecord is one raw QR scan row as it arrives from the source table.
// Timestamps are kept as text; a nil pointer means the column is absent or null.
type ScanRecord struct {
	ID                string            `json:"id"`
	Identifiers       map[string]string `json:"identifiers"` // user_id, customer_id, msisdn, ...
	WinDate           string            `json:"win_date,omitempty"`
	PrizeReceiveDate  string            `json:"prize_receive_date,omitempty"`
	PrizeDeliveryDate string            `json:"prize_delivery_date,omitempty"`
	ActivationDate    string            `json:"activation_date,omitempty"`
	CreatedDate       string            `json:"created_date,omitempty"`
	ModifyDate        string            `json:"modify_date,omitempty"`
	PrizeID           *string           `json:"prize_id,omitempty"`
	IsWinReceived     *string           `json:"is_win_received,omitempty"`
	RegionID          *int64            `json:"region_id,omitempty"`
}

// ScanEvent is a classified scan. Zero timestamps mean "missing".
type ScanEvent struct {
	ID          string            `json:"id"`
	Identifiers map[string]string `json:"identifiers"`

	WinDate           time.Time `json:"win_date"`
	PrizeReceiveDate  time.Time `json:"prize_receive_date"`
	PrizeDeliveryDate time.Time `json:"prize_delivery_date"`
	ActivationDate    time.Time `json:"activation_date"`
	CreatedDate       time.Time `json:"created_date"`
	ModifyDate        time.Time `json:"modify_date"`

	PrizeID    string `json:"prize_id,omitempty"`
	HasPrizeID bool   `json:"-"`
	RegionName string `json:"region_name"`

	HasWin              bool    `json:"has_win"`
	IsRealPrize         bool    `json:"is_real_prize"`
	IsPointWin          bool    `json:"is_point_win"`
	WinType             WinType `json:"win_type"`
	IsWinReceived       bool    `json:"is_win_received"`
	IsRealPrizeReceived bool    `json:"is_real_prize_received"`
	IsRealPrizePending  bool    `json:"is_real_prize_pending"`
}

// Timestamp returns the value of the named timestamp column.
func (e ScanEvent) Timestamp(field TimestampField) time.Time {
	switch field {
	case FieldWinDate:
		return e.WinDate
	case FieldPrizeReceiveDate:
		return e.PrizeReceiveDate
	case FieldPrizeDeliveryDate:
		return e.PrizeDeliveryDate
	case FieldActivationDate:
		return e.ActivationDate
	case FieldCreatedDate:
		return e.CreatedDate
	case FieldModifyDate:
		return e.ModifyDate
	}
	return time.Time{}
}

// UserKey returns the identifier stored under field, if any.
func (e ScanEvent) UserKey(field string) (string, bool) {
	if field == "" || e.Identifiers == nil {
		return "", false
	}
	v, ok := e.Identifiers[field]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Bucket is one row of a bucketed time series.
type Bucket struct {
	Date  time.Time `json:"date"`
	Count int       `json:"count"`
}

// AnalyticsQuery carries the dashboard selection for an analytics request.
type AnalyticsQuery struct {
	Field          TimestampField `json:"field"`
	Granularity    string         `json:"granularity"`
	Unique         bool           `json:"unique"`
	Timezone       string         `json:"timezone"`
	UserField      string         `json:"user_field"`
	From           time.Time      `json:"from"`
	To             time.Time      `json:"to"`
	Regions        []string       `json:"regions,omitempty"`
	WinTypes       []WinType      `json:"win_types,omitempty"`
	Received       string         `json:"received"`
	RealPrizesOnly bool           `json:"real_prizes_only"`
	Scope          string         `json:"scope"` // "current" or "all"
	RateBasis      string         `json:"rate_basis"`
}

// IngestScansRequest represents the request body for ingesting scan records.
type IngestScansRequest struct {
	Scans []ScanRecord `json:"scans"`
}

// IngestScansResponse represents the response for ingesting scan records.
type IngestScansResponse struct {
	Inserted int `json:"inserted"`
}

// TimeSeriesResponse is the payload of the time series endpoint.
type TimeSeriesResponse struct {
	Granularity string   `json:"granularity"`
	Unique      bool     `json:"unique"`
	Timezone    string   `json:"timezone"`
	UserField   string   `json:"user_field,omitempty"`
	Buckets     []Bucket `json:"buckets"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
