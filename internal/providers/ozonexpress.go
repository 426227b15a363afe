package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"parcelhub/internal/model"
)

// OzonExpress: form-encoded POST with customer id and API key embedded in the
// URL path. The API sometimes returns two JSON objects glued together in one
// body; only the first one carries the result. The caller's order number is
// passed as tracking-number so a retried create collapses on their side.
type OzonExpress struct {
	cfg    Config
	client *http.Client
}

func NewOzonExpress(cfg Config, client *http.Client) *OzonExpress {
	return &OzonExpress{cfg: cfg, client: client}
}

func (a *OzonExpress) Slug() string { return "ozonexpress" }

func (a *OzonExpress) endpoint(op string) string {
	return strings.TrimRight(a.cfg.BaseURL, "/") + "/customers/" + a.cfg.Creds["customer_id"] + "/" + a.cfg.Creds["api_key"] + "/" + op
}

// ozonPayload maps the normalized order to OzonExpress form fields.
func ozonPayload(o model.Order) url.Values {
	return url.Values{
		"tracking-number": {o.OrderNumber},
		"parcel-receiver": {o.CustomerName},
		"parcel-phone":    {o.CustomerPhone},
		"parcel-city":     {o.CityName},
		"parcel-address":  {o.Address},
		"parcel-note":     {o.DeliveryNotes},
		"parcel-price":    {strconv.FormatFloat(o.TotalAmount, 'f', 2, 64)},
		"parcel-nature":   {joinProductNames(o.Items, " / ")},
	}
}

type ozonEnvelope struct {
	AddParcel *struct {
		Result    string `json:"RESULT"`
		Message   string `json:"MESSAGE"`
		NewParcel *struct {
			TrackingNumber string `json:"TRACKING-NUMBER"`
		} `json:"NEW-PARCEL"`
	} `json:"ADD-PARCEL"`
	ParcelInfo *struct {
		Result  string `json:"RESULT"`
		Message string `json:"MESSAGE"`
		Parcel  *struct {
			Status string `json:"STATUT"`
		} `json:"PARCEL"`
	} `json:"PARCEL-INFO"`
}

func (a *OzonExpress) CreateParcel(ctx context.Context, o model.Order) CreateResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint("add-parcel"),
		strings.NewReader(ozonPayload(o).Encode()))
	if err != nil {
		return unknown(&ProtocolError{Op: "ozonexpress.create", Detail: "build request", Err: err})
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	_, body, err := do(a.client, req, "ozonexpress.create")
	if err != nil {
		return unknown(err)
	}
	first, err := firstJSONObject(body)
	if err != nil {
		return unknown(&ProtocolError{Op: "ozonexpress.create", Detail: "unparseable body", Err: err})
	}
	var env ozonEnvelope
	if err := json.Unmarshal(first, &env); err != nil || env.AddParcel == nil {
		return unknown(&ProtocolError{Op: "ozonexpress.create", Detail: "missing ADD-PARCEL envelope", Err: err})
	}
	if env.AddParcel.NewParcel != nil && env.AddParcel.NewParcel.TrackingNumber != "" {
		return CreateResult{Outcome: OutcomeAccepted, TrackingNumber: env.AddParcel.NewParcel.TrackingNumber, Raw: body}
	}
	msg := env.AddParcel.Message
	if msg == "" {
		msg = "parcel not created (" + env.AddParcel.Result + ")"
	}
	return CreateResult{Outcome: OutcomeRejected, Message: msg, Raw: body}
}

var ozonStatusMap = map[string]model.Status{
	"NEW PARCEL":            model.StatusConfirmed,
	"RECEIVED":              model.StatusProcessing,
	"RAMASSEE":              model.StatusProcessing,
	"EXPEDIEE":              model.StatusShipped,
	"MISE EN DISTRIBUTION":  model.StatusShipped,
	"LIVREE":                model.StatusDelivered,
	"ANNULEE":               model.StatusCancelled,
	"RETOURNEE":             model.StatusReturned,
	"RETOURNEE AU VENDEUR":  model.StatusReturned,
	"REFUSEE":               model.StatusReturned,
}

func (a *OzonExpress) CheckStatus(ctx context.Context, trackingNumber string) StatusResult {
	form := url.Values{"tracking-number": {trackingNumber}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint("parcel-info"),
		strings.NewReader(form.Encode()))
	if err != nil {
		return StatusResult{Err: &ProtocolError{Op: "ozonexpress.status", Detail: "build request", Err: err}}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	_, body, err := do(a.client, req, "ozonexpress.status")
	if err != nil {
		return StatusResult{Err: err}
	}
	first, err := firstJSONObject(body)
	if err != nil {
		return StatusResult{Err: &ProtocolError{Op: "ozonexpress.status", Detail: "unparseable body", Err: err}}
	}
	var env ozonEnvelope
	if err := json.Unmarshal(first, &env); err != nil || env.ParcelInfo == nil || env.ParcelInfo.Parcel == nil {
		return StatusResult{Err: &ProtocolError{Op: "ozonexpress.status", Detail: "missing PARCEL-INFO envelope", Err: err}}
	}
	native := strings.ToUpper(strings.TrimSpace(env.ParcelInfo.Parcel.Status))
	st, ok := ozonStatusMap[native]
	return StatusResult{OK: true, Native: native, Status: st, Mapped: ok, Raw: body}
}
