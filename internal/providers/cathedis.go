package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"parcelhub/internal/model"
)

// Cathedis: username/password login yields a JSESSIONID cookie that every call
// carries. The session is cached on the adapter instance and shared across
// concurrent jobs; an expired session triggers exactly one re-authentication
// and retry per call.
type Cathedis struct {
	cfg    Config
	client *http.Client
	login  *http.Client // same transport, redirects disabled for login.jsp

	mu      sync.Mutex
	session string
	gen     uint64
}

func NewCathedis(cfg Config, client *http.Client) *Cathedis {
	lc := &http.Client{
		Transport: client.Transport,
		Timeout:   client.Timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &Cathedis{cfg: cfg, client: client, login: lc}
}

func (a *Cathedis) Slug() string { return "cathedis" }

// Ping verifies the credentials by forcing a fresh login.
func (a *Cathedis) Ping(ctx context.Context) error {
	a.mu.Lock()
	a.session = ""
	a.mu.Unlock()
	_, _, err := a.currentSession(ctx)
	return err
}

var jsessionRe = regexp.MustCompile(`JSESSIONID=([^;]+)`)

// currentSession returns a valid session cookie, authenticating if none is
// cached. The generation counter lets callers invalidate only the session they
// actually used, so a refresh done by one job is visible to the others.
func (a *Cathedis) currentSession(ctx context.Context) (string, uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session != "" {
		return a.session, a.gen, nil
	}
	cookie, err := a.authenticate(ctx)
	if err != nil {
		return "", 0, err
	}
	a.session = cookie
	a.gen++
	return a.session, a.gen, nil
}

func (a *Cathedis) invalidateSession(gen uint64) {
	a.mu.Lock()
	if a.gen == gen {
		a.session = ""
	}
	a.mu.Unlock()
}

// authenticate performs the login call. Caller holds a.mu.
func (a *Cathedis) authenticate(ctx context.Context) (string, error) {
	creds := map[string]string{
		"username": a.cfg.Creds["username"],
		"password": a.cfg.Creds["password"],
	}
	raw, _ := json.Marshal(creds)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(a.cfg.BaseURL, "/")+"/login.jsp", bytes.NewReader(raw))
	if err != nil {
		return "", &ProtocolError{Op: "cathedis.login", Detail: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.login.Do(req)
	if err != nil {
		return "", &TransportError{Op: "cathedis.login", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 500 {
		return "", &TransportError{Op: "cathedis.login", Err: fmt.Errorf("http %d", resp.StatusCode)}
	}
	for _, c := range resp.Header.Values("Set-Cookie") {
		if m := jsessionRe.FindStringSubmatch(c); m != nil {
			return "JSESSIONID=" + m[1], nil
		}
	}
	return "", &AuthError{Slug: "cathedis", Detail: "no JSESSIONID cookie in login response"}
}

// normalizeCathedisPhone rewrites local numbers to +212 international form.
func normalizeCathedisPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if strings.HasPrefix(phone, "0") {
		return "+212" + phone[1:]
	}
	if !strings.HasPrefix(phone, "+212") {
		return "+212" + phone
	}
	return phone
}

// cathedisWeightRange buckets weight into the ranges the form accepts.
func cathedisWeightRange(kg float64) string {
	switch {
	case kg <= 5:
		return "Entre 1.2 Kg et 5 Kg"
	case kg <= 10:
		return "Entre 6Kg et 10Kg"
	case kg <= 29:
		return "Entre 11Kg et 29Kg"
	}
	return "Plus de 30Kg"
}

func cathedisPayload(o model.Order) map[string]any {
	city := o.CityName
	if city == "" {
		city = "Casablanca"
	}
	weight := o.TotalWeightKg
	if weight <= 0 {
		weight = 1
	}
	return map[string]any{
		"action": "delivery.api.save",
		"data": map[string]any{
			"context": map[string]any{
				"delivery": map[string]any{
					"recipient":    o.CustomerName,
					"phone":        normalizeCathedisPhone(o.CustomerPhone),
					"city":         city,
					"sector":       "Centre Ville",
					"address":      o.Address,
					"amount":       strconv.FormatFloat(o.TotalAmount, 'f', 2, 64),
					"nomOrder":     o.OrderNumber,
					"comment":      o.DeliveryNotes,
					"subject":      joinProductNames(o.Items, ", "),
					"rangeWeight":  cathedisWeightRange(weight),
					"paymentType":  "ESPECES",
					"deliveryType": "Livraison CRBT",
					"packageCount": "1",
				},
			},
		},
	}
}

type cathedisSaveResp struct {
	Status int `json:"status"`
	Data   []struct {
		Values *struct {
			Delivery *struct {
				ID json.Number `json:"id"`
			} `json:"delivery"`
		} `json:"values"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"data"`
}

// withSession runs fn with a session cookie, retrying once after re-auth if
// the provider reports the session expired.
func (a *Cathedis) withSession(ctx context.Context, fn func(cookie string) (int, []byte, error)) ([]byte, error) {
	cookie, gen, err := a.currentSession(ctx)
	if err != nil {
		return nil, err
	}
	code, body, err := fn(cookie)
	if err != nil {
		return body, err
	}
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		a.invalidateSession(gen)
		cookie, _, err = a.currentSession(ctx)
		if err != nil {
			return nil, err
		}
		code, body, err = fn(cookie)
		if err != nil {
			return body, err
		}
		if code == http.StatusUnauthorized || code == http.StatusForbidden {
			return body, &AuthError{Slug: "cathedis", Detail: "still unauthorized after re-authentication"}
		}
	}
	return body, nil
}

func (a *Cathedis) CreateParcel(ctx context.Context, o model.Order) CreateResult {
	raw, _ := json.Marshal(cathedisPayload(o))
	body, err := a.withSession(ctx, func(cookie string) (int, []byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			strings.TrimRight(a.cfg.BaseURL, "/")+"/ws/action", bytes.NewReader(raw))
		if err != nil {
			return 0, nil, &ProtocolError{Op: "cathedis.create", Detail: "build request", Err: err}
		}
		req.Header.Set("Cookie", cookie)
		req.Header.Set("Content-Type", "application/json")
		return do(a.client, req, "cathedis.create")
	})
	if err != nil {
		return unknown(err)
	}
	var resp cathedisSaveResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return unknown(&ProtocolError{Op: "cathedis.create", Detail: "unparseable body", Err: err})
	}
	if resp.Status == 0 && len(resp.Data) > 0 && resp.Data[0].Values != nil && resp.Data[0].Values.Delivery != nil {
		return CreateResult{Outcome: OutcomeAccepted, TrackingNumber: resp.Data[0].Values.Delivery.ID.String(), Raw: body}
	}
	msg := "Unknown error"
	if len(resp.Data) > 0 && resp.Data[0].Error != nil {
		msg = resp.Data[0].Error.Message
	}
	return CreateResult{Outcome: OutcomeRejected, Message: msg, Raw: body}
}

var cathedisStatusMap = map[string]model.Status{
	"enregistré":          model.StatusConfirmed,
	"ramassé":             model.StatusProcessing,
	"en cours":            model.StatusShipped,
	"mise en distribution": model.StatusShipped,
	"livré":               model.StatusDelivered,
	"annulé":              model.StatusCancelled,
	"retourné":            model.StatusReturned,
	"refusé":              model.StatusReturned,
}

type cathedisFetchResp struct {
	Data []struct {
		DeliveryStatus *struct {
			Name string `json:"name"`
		} `json:"deliveryStatus"`
	} `json:"data"`
}

func (a *Cathedis) CheckStatus(ctx context.Context, trackingNumber string) StatusResult {
	payload := map[string]any{"fields": []string{"id", "nomOrder", "deliveryStatus.type", "status"}}
	raw, _ := json.Marshal(payload)
	body, err := a.withSession(ctx, func(cookie string) (int, []byte, error) {
		url := strings.TrimRight(a.cfg.BaseURL, "/") + "/ws/rest/com.tracker.delivery.db.Delivery/" + trackingNumber + "/fetch"
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
		if err != nil {
			return 0, nil, &ProtocolError{Op: "cathedis.status", Detail: "build request", Err: err}
		}
		req.Header.Set("Cookie", cookie)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return do(a.client, req, "cathedis.status")
	})
	if err != nil {
		return StatusResult{Err: err}
	}
	var resp cathedisFetchResp
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Data) == 0 || resp.Data[0].DeliveryStatus == nil {
		return StatusResult{Err: &ProtocolError{Op: "cathedis.status", Detail: "missing deliveryStatus", Err: err}}
	}
	native := strings.TrimSpace(resp.Data[0].DeliveryStatus.Name)
	st, ok := cathedisStatusMap[strings.ToLower(native)]
	return StatusResult{OK: true, Native: native, Status: st, Mapped: ok, Raw: body}
}
