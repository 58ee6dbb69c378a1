// Package fingerprint derives content digests used to detect dataset changes.
package fingerprint

import (
	"encoding/binary"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// RecentWindow is the number of trailing values SKUDataHash covers.
const RecentWindow = 20

// Global fingerprints the whole observation set. The digest combines the sorted
// SKU set, the record count, the value sum, the date range and an
// order-independent accumulation of per-record hashes, so reordering records
// leaves it unchanged while value, record or SKU changes alter it.
func Global(observations []models.Observation) models.DatasetFingerprint {
	fp := models.DatasetFingerprint{
		TotalRecords: len(observations),
		Timestamp:    time.Now().UTC(),
	}

	skus := make(map[string]struct{})
	var (
		sum        float64
		recordsAcc uint64
		start, end time.Time
	)
	for _, obs := range observations {
		skus[obs.SKU] = struct{}{}
		sum += obs.Value
		recordsAcc += recordHash(obs)
		if start.IsZero() || obs.Date.Before(start) {
			start = obs.Date
		}
		if end.IsZero() || obs.Date.After(end) {
			end = obs.Date
		}
	}

	sorted := make([]string, 0, len(skus))
	for sku := range skus {
		sorted = append(sorted, sku)
	}
	sort.Strings(sorted)

	d := xxhash.New()
	_, _ = d.WriteString(strings.Join(sorted, "\x1f"))
	var buf [8]byte
	for _, v := range []uint64{
		uint64(len(observations)),
		math.Float64bits(roundSum(sum)),
		recordsAcc,
		uint64(start.UnixNano()),
		uint64(end.UnixNano()),
	} {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = d.Write(buf[:])
	}

	fp.GlobalHash = strconv.FormatUint(d.Sum64(), 16)
	fp.SKUCount = len(sorted)
	fp.DateRangeStart = start
	fp.DateRangeEnd = end
	return fp
}

// SKUDataHash is a cheap digest over the count and the most recent values of a
// date-ordered series, rounded to integers. Changes confined to older history
// are deliberately not detected.
func SKUDataHash(values []float64) string {
	d := xxhash.New()
	_, _ = d.WriteString(strconv.Itoa(len(values)))
	from := len(values) - RecentWindow
	if from < 0 {
		from = 0
	}
	for _, v := range values[from:] {
		_, _ = d.WriteString("|")
		_, _ = d.WriteString(strconv.FormatInt(int64(math.Round(v)), 10))
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

func recordHash(obs models.Observation) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(obs.SKU)
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(obs.Date.UnixNano()))
	binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(obs.Value))
	_, _ = d.Write(buf[:])
	return d.Sum64()
}

// roundSum removes float summation-order noise so permutations hash equally.
func roundSum(sum float64) float64 {
	return math.Round(sum*1e6) / 1e6
}
