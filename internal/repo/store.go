package repo

import (
	"context"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// ObservationStore supplies the full observation set.
type ObservationStore interface {
	GetObservations(ctx context.Context) ([]models.Observation, error)
}

// headerAliases maps canonical columns to accepted header spellings.
var headerAliases = map[string][]string{
	"sku":   {"sku", "product_id", "product_code", "product", "item", "item_id"},
	"date":  {"date", "period", "month", "week", "timestamp"},
	"value": {"value", "quantity", "qty", "demand", "sales", "units"},
}
