// Package ingest parses bulk order uploads into creation payloads. Merchants
// export orders from their shop systems as CSV; one row becomes one order.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"parcelhub/internal/model"
)

// RowError reports a rejected CSV line. Line numbers are 1-based and include
// the header.
type RowError struct {
	Line int    `json:"line"`
	Err  string `json:"error"`
}

// known header names, lowercased. Aliases cover the common shop exports.
var csvColumns = map[string]string{
	"customer_name":  "name",
	"name":           "name",
	"customer_phone": "phone",
	"phone":          "phone",
	"email":          "email",
	"city":           "city",
	"city_code":      "cityCode",
	"address":        "address",
	"product":        "product",
	"product_name":   "product",
	"sku":            "sku",
	"quantity":       "quantity",
	"qty":            "quantity",
	"unit_price":     "unitPrice",
	"total_amount":   "total",
	"total":          "total",
	"weight_kg":      "weight",
	"provider":       "provider",
	"notes":          "notes",
}

// ParseOrders reads a CSV order export. Bad rows are collected, not fatal;
// only a malformed file or an unusable header aborts the parse.
func ParseOrders(r io.Reader) ([]model.OrderIn, []RowError, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if name, ok := csvColumns[key]; ok {
			cols[name] = i
		}
	}
	for _, required := range []string{"name", "phone", "product"} {
		if _, ok := cols[required]; !ok {
			return nil, nil, fmt.Errorf("missing required column %q", required)
		}
	}

	get := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []model.OrderIn
	var bad []RowError
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			bad = append(bad, RowError{Line: line, Err: err.Error()})
			continue
		}
		in := model.OrderIn{
			CustomerName:  get(rec, "name"),
			CustomerPhone: get(rec, "phone"),
			CustomerEmail: get(rec, "email"),
			CityName:      get(rec, "city"),
			CityCode:      get(rec, "cityCode"),
			Address:       get(rec, "address"),
			ProviderSlug:  get(rec, "provider"),
			DeliveryNotes: get(rec, "notes"),
		}
		qty := 1
		if v := get(rec, "quantity"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				bad = append(bad, RowError{Line: line, Err: fmt.Sprintf("bad quantity %q", v)})
				continue
			}
			qty = n
		}
		item := model.OrderItem{
			ProductName: get(rec, "product"),
			ProductSKU:  get(rec, "sku"),
			Quantity:    qty,
		}
		if v := get(rec, "unitPrice"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				item.UnitPrice = f
				item.TotalPrice = f * float64(qty)
			}
		}
		in.Items = []model.OrderItem{item}
		if v := get(rec, "total"); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				bad = append(bad, RowError{Line: line, Err: fmt.Sprintf("bad total %q", v)})
				continue
			}
			in.TotalAmount = f
		} else {
			in.TotalAmount = item.TotalPrice
		}
		if v := get(rec, "weight"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				in.TotalWeightKg = f
			}
		}
		out = append(out, in)
	}
	return out, bad, nil
}
