package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"parcelhub/internal/model"
)

// Sendit: plain REST+JSON with a static bearer token. The order number travels
// in the reference field, which the provider uses to collapse duplicate creates.
type Sendit struct {
	cfg    Config
	client *http.Client
}

func NewSendit(cfg Config, client *http.Client) *Sendit {
	return &Sendit{cfg: cfg, client: client}
}

func (a *Sendit) Slug() string { return "sendit" }

func senditPayload(o model.Order) map[string]any {
	district := o.CityCode
	if district == "" {
		district = "1"
	}
	return map[string]any{
		"pickup_district_id":   "1",
		"district_id":          district,
		"name":                 o.CustomerName,
		"amount":               strconv.FormatFloat(o.TotalAmount, 'f', 2, 64),
		"address":              o.Address,
		"phone":                o.CustomerPhone,
		"comment":              o.DeliveryNotes,
		"reference":            o.OrderNumber,
		"allow_open":           "1",
		"allow_try":            "1",
		"products_from_stock":  "0",
		"products":             joinProductNames(o.Items, " / "),
		"packaging_id":         "1",
		"option_exchange":      "0",
		"delivery_exchange_id": "0",
	}
}

type senditResp struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    *struct {
		Code   string `json:"code"`
		Status string `json:"status"`
	} `json:"data"`
}

func (a *Sendit) CreateParcel(ctx context.Context, o model.Order) CreateResult {
	raw, _ := json.Marshal(senditPayload(o))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(a.cfg.BaseURL, "/")+"/deliveries", bytes.NewReader(raw))
	if err != nil {
		return unknown(&ProtocolError{Op: "sendit.create", Detail: "build request", Err: err})
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.Creds["access_token"])
	req.Header.Set("Content-Type", "application/json")
	code, body, err := do(a.client, req, "sendit.create")
	if err != nil {
		return unknown(err)
	}
	if code == http.StatusUnauthorized {
		return CreateResult{Outcome: OutcomeUnknown, Err: &AuthError{Slug: "sendit", Detail: "token rejected"}, Message: "token rejected", Raw: body}
	}
	var resp senditResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return unknown(&ProtocolError{Op: "sendit.create", Detail: "unparseable body", Err: err})
	}
	if resp.Success && resp.Data != nil && resp.Data.Code != "" {
		return CreateResult{Outcome: OutcomeAccepted, TrackingNumber: resp.Data.Code, Raw: body}
	}
	msg := resp.Message
	if msg == "" {
		msg = "Unknown error"
	}
	return CreateResult{Outcome: OutcomeRejected, Message: msg, Raw: body}
}

var senditStatusMap = map[string]model.Status{
	"pending":          model.StatusConfirmed,
	"picked_up":        model.StatusProcessing,
	"at_warehouse":     model.StatusProcessing,
	"shipping":         model.StatusShipped,
	"out_for_delivery": model.StatusShipped,
	"delivered":        model.StatusDelivered,
	"cancelled":        model.StatusCancelled,
	"returned":         model.StatusReturned,
	"refused":          model.StatusReturned,
}

func (a *Sendit) CheckStatus(ctx context.Context, trackingNumber string) StatusResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(a.cfg.BaseURL, "/")+"/deliveries/"+trackingNumber, nil)
	if err != nil {
		return StatusResult{Err: &ProtocolError{Op: "sendit.status", Detail: "build request", Err: err}}
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.Creds["access_token"])
	code, body, err := do(a.client, req, "sendit.status")
	if err != nil {
		return StatusResult{Err: err}
	}
	if code == http.StatusUnauthorized {
		return StatusResult{Err: &AuthError{Slug: "sendit", Detail: "token rejected"}}
	}
	var resp senditResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return StatusResult{Err: &ProtocolError{Op: "sendit.status", Detail: "unparseable body", Err: err}}
	}
	if !resp.Success || resp.Data == nil {
		return StatusResult{Err: &ProtocolError{Op: "sendit.status", Detail: resp.Message}}
	}
	native := strings.ToLower(strings.TrimSpace(resp.Data.Status))
	st, ok := senditStatusMap[native]
	return StatusResult{OK: true, Native: native, Status: st, Mapped: ok, Raw: body}
}
