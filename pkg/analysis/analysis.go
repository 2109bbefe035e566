package analysis

import (
	"fmt"
	"math"

	"github.com/suffix-labs/psbt-scan/pkg/psbt"
	"github.com/suffix-labs/psbt-scan/pkg/wire"
)

// AmountOverflowError is returned when summing input or output amounts
// overflows the 64-bit satoshi range.
type AmountOverflowError struct {
	Side string
}

func (e *AmountOverflowError) Error() string {
	return fmt.Sprintf("%s amounts overflow the satoshi range", e.Side)
}

// NegativeFeeError is returned when the known outputs pay out more than the
// resolved inputs bring in.
type NegativeFeeError struct {
	TotalIn  uint64
	TotalOut uint64
}

func (e *NegativeFeeError) Error() string {
	return fmt.Sprintf("outputs (%d sat) exceed inputs (%d sat)", e.TotalOut, e.TotalIn)
}

// InputSummary describes one input as far as the document allows.
type InputSummary struct {
	Index      int
	ScriptType ScriptType

	// Amount is the input's value in satoshis, nil when neither UTXO form is
	// attached so the value cannot be resolved.
	Amount *uint64

	HasWitnessUtxo    bool
	HasNonWitnessUtxo bool
	SigCount          int
	Finalized         bool
}

// OutputSummary describes one output.
type OutputSummary struct {
	Index      int
	ScriptType ScriptType
	Amount     uint64

	// Change marks the output as probable change back to the same wallet,
	// inferred from BIP32 derivation origins shared with the inputs.
	Change bool
}

// Result is the full analysis of one document.
type Result struct {
	Version uint32
	Stage   WorkflowStage

	Inputs  []InputSummary
	Outputs []OutputSummary

	// TotalIn and Fee are nil when any input amount is unresolved.
	TotalIn  *uint64
	TotalOut uint64
	Fee      *uint64

	// Weight and VSize estimate the final transaction size from the data
	// present so far. Unsigned inputs count as empty scriptSigs, so these
	// are lower bounds until the document is finalized.
	Weight int
	VSize  int

	// FeeRate is the fee rate in sat/vB rounded half up, nil when the fee is
	// unknown.
	FeeRate *uint64

	// ChangeIndex is the index of the probable change output, nil when none
	// was inferred. At most one output is ever flagged.
	ChangeIndex *int
}

// Analyze summarizes a parsed document: per-entry script types and amounts,
// totals, fee, size estimates, workflow stage, and change detection.
// Unresolvable input amounts are not an error; inconsistent or overflowing
// amounts are.
func Analyze(p *psbt.Psbt) (*Result, error) {
	res := &Result{
		Version: p.Version(),
		Stage:   DetectStage(p),
		Inputs:  make([]InputSummary, 0, len(p.Inputs)),
		Outputs: make([]OutputSummary, 0, len(p.Outputs)),
	}

	var totalIn uint64
	allResolved := true

	for i := range p.Inputs {
		in := &p.Inputs[i]
		summary := InputSummary{
			Index:             i,
			HasWitnessUtxo:    in.WitnessUtxo != nil,
			HasNonWitnessUtxo: in.NonWitnessUtxo != nil,
			SigCount:          len(in.PartialSigs),
			Finalized:         in.Finalized(),
		}

		utxo, err := resolveUtxo(p, i)
		if err != nil {
			return nil, err
		}
		if utxo != nil {
			amount := utxo.Value
			summary.Amount = &amount
			summary.ScriptType = ClassifyScript(utxo.PkScript)

			if totalIn > math.MaxUint64-amount {
				return nil, &AmountOverflowError{Side: "input"}
			}
			totalIn += amount
		} else {
			allResolved = false
		}

		res.Inputs = append(res.Inputs, summary)
	}

	var totalOut uint64
	for i := range p.Outputs {
		amount, script, err := outputAmountScript(p, i)
		if err != nil {
			return nil, err
		}

		if totalOut > math.MaxUint64-amount {
			return nil, &AmountOverflowError{Side: "output"}
		}
		totalOut += amount

		// Only the first match is surfaced; the inference is advisory.
		change := res.ChangeIndex == nil && isChangeOutput(p, &p.Outputs[i])
		if change {
			index := i
			res.ChangeIndex = &index
		}

		res.Outputs = append(res.Outputs, OutputSummary{
			Index:      i,
			ScriptType: ClassifyScript(script),
			Amount:     amount,
			Change:     change,
		})
	}
	res.TotalOut = totalOut

	if allResolved && len(p.Inputs) > 0 {
		if totalOut > totalIn {
			return nil, &NegativeFeeError{TotalIn: totalIn, TotalOut: totalOut}
		}
		fee := totalIn - totalOut
		res.TotalIn = &totalIn
		res.Fee = &fee
	}

	res.Weight, res.VSize = estimateSize(p)
	if res.Fee != nil && res.VSize > 0 {
		rate := RoundedFeeRate(*res.Fee, res.VSize)
		res.FeeRate = &rate
	}

	log.Debugf("Analyzed PSBT v%d at stage %s: %d inputs, %d outputs, vsize %d",
		res.Version, res.Stage, len(res.Inputs), len(res.Outputs), res.VSize)
	return res, nil
}

// RoundedFeeRate divides fee by vsize with half-up rounding. Quotient and
// remainder are computed separately so extreme fees cannot wrap.
func RoundedFeeRate(fee uint64, vsize int) uint64 {
	v := uint64(vsize)
	q := fee / v
	if (fee%v)*2 >= v {
		q++
	}
	return q
}

// resolveUtxo finds the spent output for one input. The witness UTXO wins
// when both forms are present; a missing UTXO resolves to nil without error.
func resolveUtxo(p *psbt.Psbt, index int) (*wire.TxOut, error) {
	in := &p.Inputs[index]
	if in.WitnessUtxo != nil {
		return in.WitnessUtxo, nil
	}
	if in.NonWitnessUtxo == nil {
		return nil, nil
	}

	vout, err := prevoutIndex(p, index)
	if err != nil {
		return nil, err
	}
	if int(vout) >= len(in.NonWitnessUtxo.TxOut) {
		return nil, &psbt.MalformedDocumentError{Reason: fmt.Sprintf(
			"input %d spends output %d of a transaction with only %d outputs",
			index, vout, len(in.NonWitnessUtxo.TxOut))}
	}
	return in.NonWitnessUtxo.TxOut[vout], nil
}

func prevoutIndex(p *psbt.Psbt, index int) (uint32, error) {
	switch g := p.Global.(type) {
	case *psbt.GlobalV0:
		return g.UnsignedTx.TxIn[index].PreviousOutPoint.Index, nil
	case *psbt.GlobalV2:
		return *p.Inputs[index].OutputIndex, nil
	}
	return 0, &psbt.MalformedDocumentError{Reason: "document has no global map"}
}

func outputAmountScript(p *psbt.Psbt, index int) (uint64, []byte, error) {
	out := &p.Outputs[index]
	switch g := p.Global.(type) {
	case *psbt.GlobalV0:
		txOut := g.UnsignedTx.TxOut[index]
		return txOut.Value, txOut.PkScript, nil
	case *psbt.GlobalV2:
		return *out.Amount, out.Script, nil
	}
	return 0, nil, &psbt.MalformedDocumentError{Reason: "document has no global map"}
}

// estimateSize computes the weight and virtual size of the transaction the
// document describes, using final script data where attached and empty
// placeholders elsewhere.
func estimateSize(p *psbt.Psbt) (weight, vsize int) {
	base := 4 + 4 // tx version and locktime

	base += wire.CompactSizeLen(uint64(len(p.Inputs)))
	witnessSize := 0
	anyWitness := false
	for i := range p.Inputs {
		in := &p.Inputs[i]
		scriptSig := in.FinalScriptSig
		base += 36 + wire.CompactSizeLen(uint64(len(scriptSig))) + len(scriptSig) + 4

		if len(in.FinalScriptWitness) != 0 {
			witnessSize += len(in.FinalScriptWitness)
			anyWitness = true
		} else {
			witnessSize++ // empty stack
		}
	}

	base += wire.CompactSizeLen(uint64(len(p.Outputs)))
	for i := range p.Outputs {
		script := outputScript(p, i)
		base += 8 + wire.CompactSizeLen(uint64(len(script))) + len(script)
	}

	weight = base * 4
	if anyWitness {
		weight += 2 + witnessSize // marker, flag, stacks
	}
	vsize = (weight + 3) / 4
	return weight, vsize
}

func outputScript(p *psbt.Psbt, index int) []byte {
	switch g := p.Global.(type) {
	case *psbt.GlobalV0:
		return g.UnsignedTx.TxOut[index].PkScript
	case *psbt.GlobalV2:
		return p.Outputs[index].Script
	}
	return nil
}

// isChangeOutput reports whether the output's BIP32 derivation shares a
// wallet with any input: same master fingerprint and the same derivation
// path up to the final change and index components.
func isChangeOutput(p *psbt.Psbt, out *psbt.Output) bool {
	for _, outDeriv := range out.Bip32Derivations {
		if len(outDeriv.Path) < 2 {
			continue
		}
		for i := range p.Inputs {
			for _, inDeriv := range p.Inputs[i].Bip32Derivations {
				if len(inDeriv.Path) < 2 {
					continue
				}
				if inDeriv.MasterFingerprint != outDeriv.MasterFingerprint {
					continue
				}
				if equalPrefix(inDeriv.Path, outDeriv.Path) {
					return true
				}
			}
		}
	}
	return false
}

// equalPrefix compares two derivation paths with their last two components
// (change level and address index) stripped.
func equalPrefix(a, b []uint32) bool {
	a, b = a[:len(a)-2], b[:len(b)-2]
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
