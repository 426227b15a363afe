package api

import (
	"fmt"
	"strings"

	"parcelhub/internal/model"
	"parcelhub/internal/orders"
)

func validateOrderIn(in *model.OrderIn) error {
	if strings.TrimSpace(in.CustomerName) == "" {
		return fmt.Errorf("customerName is required")
	}
	if orders.NormalizePhone(in.CustomerPhone) == "" {
		return fmt.Errorf("customerPhone is required")
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("items must not be empty")
	}
	for i, it := range in.Items {
		if strings.TrimSpace(it.ProductName) == "" {
			return fmt.Errorf("items[%d].productName is required", i)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("items[%d].quantity must be > 0", i)
		}
	}
	if in.TotalAmount < 0 {
		return fmt.Errorf("totalAmount must be >= 0")
	}
	if in.TotalWeightKg < 0 {
		return fmt.Errorf("totalWeightKg must be >= 0")
	}
	return nil
}

func validateSubscription(sub *model.Subscription) error {
	if !strings.HasPrefix(sub.URL, "http://") && !strings.HasPrefix(sub.URL, "https://") {
		return fmt.Errorf("url must be http(s)")
	}
	if len(sub.Events) == 0 {
		return fmt.Errorf("events must not be empty")
	}
	return nil
}
