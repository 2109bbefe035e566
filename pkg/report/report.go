// Package report renders analysis results as a human-readable summary.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/btcsuite/btcutil"

	"github.com/suffix-labs/psbt-scan/pkg/analysis"
	"github.com/suffix-labs/psbt-scan/pkg/mempool"
)

const rule = "============================================================"

// WriteSummary renders the full summary of an analyzed document to w. A nil
// rates argument means fee rates could not be fetched and the assessment
// says so instead of grading the fee.
func WriteSummary(w io.Writer, res *analysis.Result, rates *mempool.FeeRates) {
	fmt.Fprintf(w, "\n%s\nPSBT SUMMARY\n%s\n", rule, rule)

	fmt.Fprintf(w, "\nPSBT Version: %d\n", res.Version)
	fmt.Fprintf(w, "Workflow Stage: %s\n", res.Stage)

	fmt.Fprintf(w, "\nInputs (%d):\n", len(res.Inputs))
	for _, in := range res.Inputs {
		if in.Amount != nil {
			fmt.Fprintf(w, "  [%d] %s sats | %s | %s\n", in.Index,
				groupSats(*in.Amount), in.ScriptType.AddressFamily(), in.ScriptType)
		} else {
			fmt.Fprintf(w, "  [%d] amount unknown | no UTXO attached\n", in.Index)
		}
	}

	fmt.Fprintf(w, "\nOutputs (%d):\n", len(res.Outputs))
	for _, out := range res.Outputs {
		changeMarker := ""
		if out.Change {
			changeMarker = " (change output)"
		}
		fmt.Fprintf(w, "  [%d] %s sats | %s | %s%s\n", out.Index,
			groupSats(out.Amount), out.ScriptType.AddressFamily(), out.ScriptType,
			changeMarker)
	}

	fmt.Fprintf(w, "\nTransaction Summary:\n")
	if res.TotalIn != nil && res.Fee != nil {
		fmt.Fprintf(w, "  Total Input:  %s sats (%s)\n",
			groupSats(*res.TotalIn), btcutil.Amount(*res.TotalIn))
		fmt.Fprintf(w, "  Total Output: %s sats (%s)\n",
			groupSats(res.TotalOut), btcutil.Amount(res.TotalOut))
		fmt.Fprintf(w, "  Fee:          %s sats\n", groupSats(*res.Fee))
		if res.FeeRate != nil {
			fmt.Fprintf(w, "  Fee Rate:     ~%d sat/vB\n", *res.FeeRate)
		}
		writeAssessment(w, res, rates)
	} else {
		fmt.Fprintf(w, "  Total Output: %s sats (%s)\n",
			groupSats(res.TotalOut), btcutil.Amount(res.TotalOut))
		fmt.Fprintf(w, "  Assessment:   Insufficient data for a fee assessment (missing input UTXOs)\n")
	}

	fmt.Fprintf(w, "%s\n\n", rule)
}

// writeAssessment grades the document's fee rate against the recommended
// tiers.
func writeAssessment(w io.Writer, res *analysis.Result, rates *mempool.FeeRates) {
	if rates == nil {
		fmt.Fprintf(w, "  Assessment:   Could not fetch recommended fee rates from mempool API\n")
		return
	}
	if res.FeeRate == nil {
		return
	}
	rate := *res.FeeRate

	if rates.MinimumFee == 1 && rates.EconomyFee == 1 && rates.HourFee == 1 &&
		rates.HalfHourFee == 1 && rates.FastestFee == 1 {
		fmt.Fprintf(w, "  Assessment:   Mempool is empty - transaction should confirm in next block regardless of fee\n")
		if rate > 2 {
			fmt.Fprintf(w, "                Note: Supplied fee is excessive for current mempool conditions\n")
		}
		return
	}

	switch {
	case rate < rates.MinimumFee:
		fmt.Fprintf(w, "  Assessment:   Fee rate is too low\n")
	case rate < rates.EconomyFee:
		fmt.Fprintf(w, "  Assessment:   Transaction could take several hours to days to confirm\n")
	case rate < rates.HourFee:
		fmt.Fprintf(w, "  Assessment:   Transaction could take more than an hour to confirm\n")
	case rate < rates.HalfHourFee:
		fmt.Fprintf(w, "  Assessment:   Transaction should confirm between 30 minutes and an hour\n")
	case rate < rates.FastestFee:
		fmt.Fprintf(w, "  Assessment:   Transaction should take less than 30 minutes to confirm\n")
	case 2*rate <= 3*rates.FastestFee:
		fmt.Fprintf(w, "  Assessment:   Transaction should confirm in less than 10 minutes\n")
	case rate < 3*rates.FastestFee:
		fmt.Fprintf(w, "  Assessment:   Fee rate is high but tolerable\n")
	default:
		fmt.Fprintf(w, "  Assessment:   Fee rate is excessive/wasteful\n")
	}
}

// groupSats formats a satoshi amount with thousands separators.
func groupSats(v uint64) string {
	s := fmt.Sprintf("%d", v)
	if len(s) <= 3 {
		return s
	}

	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
