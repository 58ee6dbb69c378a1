package fingerprint

import (
	"testing"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

func sample() []models.Observation {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := make([]models.Observation, 0, 12)
	for i := 0; i < 6; i++ {
		date := base.AddDate(0, i, 0)
		obs = append(obs,
			models.Observation{SKU: "A", Date: date, Value: float64(100 + 10*i)},
			models.Observation{SKU: "B", Date: date, Value: float64(7 + i)},
		)
	}
	return obs
}

func TestGlobalIgnoresRecordOrder(t *testing.T) {
	obs := sample()
	reversed := make([]models.Observation, len(obs))
	for i := range obs {
		reversed[len(obs)-1-i] = obs[i]
	}

	a, b := Global(obs), Global(reversed)
	if a.GlobalHash != b.GlobalHash {
		t.Fatalf("expected permutation to keep hash, got %s vs %s", a.GlobalHash, b.GlobalHash)
	}
	if a.SKUCount != 2 || a.TotalRecords != 12 {
		t.Fatalf("unexpected counts: %+v", a)
	}
	if !a.DateRangeStart.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected range start %v", a.DateRangeStart)
	}
}

func TestGlobalDetectsChanges(t *testing.T) {
	base := Global(sample())

	cases := map[string]func([]models.Observation) []models.Observation{
		"value": func(o []models.Observation) []models.Observation {
			o[3].Value += 1
			return o
		},
		"swap values across records": func(o []models.Observation) []models.Observation {
			o[0].Value, o[2].Value = o[2].Value, o[0].Value
			return o
		},
		"record removed": func(o []models.Observation) []models.Observation {
			return o[1:]
		},
		"sku renamed": func(o []models.Observation) []models.Observation {
			for i := range o {
				if o[i].SKU == "B" {
					o[i].SKU = "C"
				}
			}
			return o
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			changed := Global(mutate(sample()))
			if changed.GlobalHash == base.GlobalHash {
				t.Fatalf("expected hash change")
			}
		})
	}
}

func TestSKUDataHashCoversRecentWindow(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = float64(i)
	}
	h := SKUDataHash(values)

	old := append([]float64(nil), values...)
	old[0] = 999
	if SKUDataHash(old) != h {
		t.Fatalf("expected change outside the recent window to be ignored")
	}

	recent := append([]float64(nil), values...)
	recent[29] = 999
	if SKUDataHash(recent) == h {
		t.Fatalf("expected recent change to alter hash")
	}

	if SKUDataHash(append(values, 30)) == h {
		t.Fatalf("expected appended observation to alter hash")
	}

	rounded := append([]float64(nil), values...)
	rounded[29] = 29.2
	if SKUDataHash(rounded) != h {
		t.Fatalf("expected sub-unit change to round away")
	}
}
