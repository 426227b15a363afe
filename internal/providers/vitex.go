package providers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"parcelhub/internal/model"
)

// Vitex: form POST answered with an HTML page; success is inferred by substring
// match. A degraded but supported mode: no tracking number comes back, so the
// order number serves as the tracking reference, which also makes a retried
// create collapse on the provider side.
type Vitex struct {
	cfg    Config
	client *http.Client
}

func NewVitex(cfg Config, client *http.Client) *Vitex {
	return &Vitex{cfg: cfg, client: client}
}

func (a *Vitex) Slug() string { return "vitex" }

const (
	vitexCreatedMarker   = "Colis bien ajouté"
	vitexDuplicateMarker = "existe déjà"
)

func vitexPayload(o model.Order) url.Values {
	return url.Values{
		"ref":       {o.OrderNumber},
		"nom":       {o.CustomerName},
		"tel":       {o.CustomerPhone},
		"ville":     {o.CityName},
		"adresse":   {o.Address},
		"produit":   {joinProductNames(o.Items, ", ")},
		"qty":       {strconv.Itoa(totalQuantity(o.Items))},
		"prix":      {strconv.FormatFloat(o.TotalAmount, 'f', 2, 64)},
		"remarque":  {o.DeliveryNotes},
	}
}

func (a *Vitex) CreateParcel(ctx context.Context, o model.Order) CreateResult {
	form := vitexPayload(o)
	form.Set("token", a.cfg.Creds["api_key"])
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(a.cfg.BaseURL, "/")+"/colis/add", strings.NewReader(form.Encode()))
	if err != nil {
		return unknown(&ProtocolError{Op: "vitex.create", Detail: "build request", Err: err})
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	_, body, err := do(a.client, req, "vitex.create")
	if err != nil {
		return unknown(err)
	}
	page := string(body)
	// Success and already-exists both count as accepted: the reference is ours,
	// so "exists" means a previous ambiguous attempt actually landed.
	if strings.Contains(page, vitexCreatedMarker) || strings.Contains(page, vitexDuplicateMarker) {
		return CreateResult{Outcome: OutcomeAccepted, TrackingNumber: o.OrderNumber, Raw: body}
	}
	return CreateResult{Outcome: OutcomeRejected, Message: firstHTMLLine(page), Raw: body}
}

var vitexStatusMarkers = []struct {
	marker string
	status model.Status
}{
	{"Livré", model.StatusDelivered},
	{"Retourné", model.StatusReturned},
	{"Annulé", model.StatusCancelled},
	{"En cours de livraison", model.StatusShipped},
	{"Ramassé", model.StatusProcessing},
	{"En attente", model.StatusConfirmed},
}

func (a *Vitex) CheckStatus(ctx context.Context, trackingNumber string) StatusResult {
	q := url.Values{"token": {a.cfg.Creds["api_key"]}, "ref": {trackingNumber}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(a.cfg.BaseURL, "/")+"/colis/track?"+q.Encode(), nil)
	if err != nil {
		return StatusResult{Err: &ProtocolError{Op: "vitex.status", Detail: "build request", Err: err}}
	}
	_, body, err := do(a.client, req, "vitex.status")
	if err != nil {
		return StatusResult{Err: err}
	}
	page := string(body)
	for _, m := range vitexStatusMarkers {
		if strings.Contains(page, m.marker) {
			return StatusResult{OK: true, Native: m.marker, Status: m.status, Mapped: true, Raw: body}
		}
	}
	return StatusResult{Err: &ProtocolError{Op: "vitex.status", Detail: "no recognizable status marker in page"}}
}

// firstHTMLLine extracts a short human-readable error from an HTML page.
func firstHTMLLine(page string) string {
	page = strings.TrimSpace(page)
	if i := strings.IndexByte(page, '\n'); i > 0 {
		page = page[:i]
	}
	if len(page) > 200 {
		page = page[:200]
	}
	if page == "" {
		return "Unknown error"
	}
	return page
}
