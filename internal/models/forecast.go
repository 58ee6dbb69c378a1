package models

// ForecastResult is the outcome of one model for one SKU.
type ForecastResult struct {
	SKU         string     `json:"sku"`
	ModelID     string     `json:"modelId"`
	DisplayName string     `json:"displayName"`
	Parameters  Parameters `json:"parameters"`
	// Method is empty when defaults or manual configuration were used.
	Method      Method    `json:"method,omitempty"`
	Predictions []float64 `json:"predictions"`
	Accuracy    float64   `json:"accuracy"`
	MAPE        float64   `json:"mape"`
	RMSE        float64   `json:"rmse"`
	MAE         float64   `json:"mae"`
	Error       string    `json:"error,omitempty"`
}
