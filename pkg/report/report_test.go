package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/suffix-labs/psbt-scan/pkg/analysis"
	"github.com/suffix-labs/psbt-scan/pkg/mempool"
)

func u64(v uint64) *uint64 { return &v }

func sampleResult() *analysis.Result {
	return &analysis.Result{
		Version: 0,
		Stage:   analysis.StageUpdater,
		Inputs: []analysis.InputSummary{{
			Index:          0,
			ScriptType:     analysis.ScriptP2WPKH,
			Amount:         u64(30_000),
			HasWitnessUtxo: true,
		}},
		Outputs: []analysis.OutputSummary{{
			Index:      0,
			ScriptType: analysis.ScriptP2WPKH,
			Amount:     25_000,
			Change:     true,
		}},
		TotalIn:  u64(30_000),
		TotalOut: 25_000,
		Fee:      u64(5_000),
		Weight:   328,
		VSize:    82,
		FeeRate:  u64(61),
	}
}

func render(res *analysis.Result, rates *mempool.FeeRates) string {
	buf := &bytes.Buffer{}
	WriteSummary(buf, res, rates)
	return buf.String()
}

func TestWriteSummary(t *testing.T) {
	out := render(sampleResult(), &mempool.FeeRates{
		FastestFee: 25, HalfHourFee: 18, HourFee: 12, EconomyFee: 5, MinimumFee: 2,
	})

	assert.Contains(t, out, "PSBT SUMMARY")
	assert.Contains(t, out, "PSBT Version: 0")
	assert.Contains(t, out, "Workflow Stage: Updater")
	assert.Contains(t, out, "[0] 30,000 sats | Native SegWit (bech32) | P2WPKH")
	assert.Contains(t, out, "(change output)")
	assert.Contains(t, out, "Fee:          5,000 sats")
	assert.Contains(t, out, "~61 sat/vB")
	assert.Contains(t, out, "Fee rate is high but tolerable")
}

func TestWriteSummaryAssessmentTiers(t *testing.T) {
	rates := &mempool.FeeRates{
		FastestFee: 100, HalfHourFee: 50, HourFee: 20, EconomyFee: 10, MinimumFee: 3,
	}

	tests := []struct {
		rate uint64
		want string
	}{
		{2, "Fee rate is too low"},
		{5, "several hours to days"},
		{15, "more than an hour"},
		{30, "between 30 minutes and an hour"},
		{80, "less than 30 minutes"},
		{120, "less than 10 minutes"},
		{200, "high but tolerable"},
		{400, "excessive/wasteful"},
	}

	for _, tt := range tests {
		res := sampleResult()
		res.FeeRate = &tt.rate
		assert.Contains(t, render(res, rates), tt.want, "rate %d", tt.rate)
	}
}

func TestWriteSummaryEmptyMempool(t *testing.T) {
	flat := &mempool.FeeRates{FastestFee: 1, HalfHourFee: 1, HourFee: 1, EconomyFee: 1, MinimumFee: 1}

	out := render(sampleResult(), flat)
	assert.Contains(t, out, "Mempool is empty")
	assert.Contains(t, out, "excessive for current mempool conditions")

	res := sampleResult()
	res.FeeRate = u64(1)
	out = render(res, flat)
	assert.Contains(t, out, "Mempool is empty")
	assert.NotContains(t, out, "excessive for current mempool conditions")
}

func TestWriteSummaryNoRates(t *testing.T) {
	out := render(sampleResult(), nil)
	assert.Contains(t, out, "Could not fetch recommended fee rates")
}

func TestWriteSummaryUnresolvedInputs(t *testing.T) {
	res := sampleResult()
	res.Inputs[0].Amount = nil
	res.TotalIn = nil
	res.Fee = nil
	res.FeeRate = nil

	out := render(res, nil)
	assert.Contains(t, out, "amount unknown")
	assert.Contains(t, out, "Insufficient data for a fee assessment")
	assert.False(t, strings.Contains(out, "Total Input:"))
}

func TestGroupSats(t *testing.T) {
	assert.Equal(t, "0", groupSats(0))
	assert.Equal(t, "999", groupSats(999))
	assert.Equal(t, "1,000", groupSats(1_000))
	assert.Equal(t, "25,000", groupSats(25_000))
	assert.Equal(t, "2,100,000,000,000,000", groupSats(2_100_000_000_000_000))
}
