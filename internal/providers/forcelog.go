package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"parcelhub/internal/model"
)

// Forcelog: JSON over HTTPS with a static X-API-Key header. Two-call protocol:
// AddParcel to create, GetParcel to query by tracking code. The ORDER_NUM field
// doubles as the idempotency reference.
type Forcelog struct {
	cfg    Config
	client *http.Client
}

func NewForcelog(cfg Config, client *http.Client) *Forcelog {
	return &Forcelog{cfg: cfg, client: client}
}

func (a *Forcelog) Slug() string { return "forcelog" }

func forcelogPayload(o model.Order) map[string]any {
	return map[string]any{
		"ORDER_NUM":      o.OrderNumber,
		"RECEIVER":       o.CustomerName,
		"PHONE":          o.CustomerPhone,
		"CITY":           o.CityName,
		"ADDRESS":        o.Address,
		"COMMENT":        o.DeliveryNotes,
		"PRODUCT_NATURE": joinProductNames(o.Items, ", "),
		"COD":            o.TotalAmount,
		"CAN_OPEN":       "1",
	}
}

func (a *Forcelog) post(ctx context.Context, op, path string, payload any) ([]byte, error) {
	raw, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(a.cfg.BaseURL, "/")+path, bytes.NewReader(raw))
	if err != nil {
		return nil, &ProtocolError{Op: op, Detail: "build request", Err: err}
	}
	req.Header.Set("X-API-Key", a.cfg.Creds["api_key"])
	req.Header.Set("Content-Type", "application/json")
	code, body, err := do(a.client, req, op)
	if err != nil {
		return body, err
	}
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		return body, &AuthError{Slug: "forcelog", Detail: "api key rejected"}
	}
	return body, nil
}

type forcelogAddResp struct {
	AddParcel *struct {
		Result    string `json:"RESULT"`
		Message   string `json:"MESSAGE"`
		NewParcel *struct {
			TrackingNumber string `json:"TRACKING_NUMBER"`
		} `json:"NEW-PARCEL"`
	} `json:"ADD-PARCEL"`
}

func (a *Forcelog) CreateParcel(ctx context.Context, o model.Order) CreateResult {
	body, err := a.post(ctx, "forcelog.create", "/customer/Parcels/AddParcel", forcelogPayload(o))
	if err != nil {
		if Retryable(err) {
			return unknown(err)
		}
		return CreateResult{Outcome: OutcomeUnknown, Err: err, Message: err.Error(), Raw: body}
	}
	var resp forcelogAddResp
	if err := json.Unmarshal(body, &resp); err != nil || resp.AddParcel == nil {
		return unknown(&ProtocolError{Op: "forcelog.create", Detail: "missing ADD-PARCEL envelope", Err: err})
	}
	if resp.AddParcel.Result == "SUCCESS" && resp.AddParcel.NewParcel != nil {
		return CreateResult{Outcome: OutcomeAccepted, TrackingNumber: resp.AddParcel.NewParcel.TrackingNumber, Raw: body}
	}
	msg := resp.AddParcel.Message
	if msg == "" {
		msg = "Unknown error"
	}
	return CreateResult{Outcome: OutcomeRejected, Message: msg, Raw: body}
}

var forcelogStatusMap = map[string]model.Status{
	"PENDING":          model.StatusConfirmed,
	"PICKED_UP":        model.StatusProcessing,
	"IN_TRANSIT":       model.StatusShipped,
	"OUT_FOR_DELIVERY": model.StatusShipped,
	"DELIVERED":        model.StatusDelivered,
	"CANCELLED":        model.StatusCancelled,
	"RETURNED":         model.StatusReturned,
	"REFUSED":          model.StatusReturned,
}

type forcelogGetResp struct {
	GetParcel *struct {
		Result  string `json:"RESULT"`
		Message string `json:"MESSAGE"`
		Parcel  *struct {
			Status string `json:"STATUS"`
		} `json:"PARCEL"`
	} `json:"GET-PARCEL"`
}

func (a *Forcelog) CheckStatus(ctx context.Context, trackingNumber string) StatusResult {
	body, err := a.post(ctx, "forcelog.status", "/customer/Parcels/GetParcel", map[string]string{"Code": trackingNumber})
	if err != nil {
		return StatusResult{Err: err}
	}
	var resp forcelogGetResp
	if err := json.Unmarshal(body, &resp); err != nil || resp.GetParcel == nil {
		return StatusResult{Err: &ProtocolError{Op: "forcelog.status", Detail: "missing GET-PARCEL envelope", Err: err}}
	}
	if resp.GetParcel.Result != "SUCCESS" || resp.GetParcel.Parcel == nil {
		return StatusResult{Err: &ProtocolError{Op: "forcelog.status", Detail: resp.GetParcel.Message}}
	}
	native := strings.ToUpper(strings.TrimSpace(resp.GetParcel.Parcel.Status))
	st, ok := forcelogStatusMap[native]
	return StatusResult{OK: true, Native: native, Status: st, Mapped: ok, Raw: body}
}
