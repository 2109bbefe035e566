package analysis

import "github.com/suffix-labs/psbt-scan/pkg/psbt"

// WorkflowStage names how far along the signing workflow a document has
// progressed.
type WorkflowStage int

const (
	StageCreator WorkflowStage = iota
	StageConstructor
	StageUpdater
	StageSigner
	StageCombiner
	StageFinalizer
	StageExtractionReady
)

// String returns the role name of the stage.
func (s WorkflowStage) String() string {
	switch s {
	case StageCreator:
		return "Creator"
	case StageConstructor:
		return "Constructor"
	case StageUpdater:
		return "Updater"
	case StageSigner:
		return "Signer"
	case StageCombiner:
		return "Combiner"
	case StageFinalizer:
		return "Finalizer"
	case StageExtractionReady:
		return "Extraction-ready"
	default:
		return "unknown"
	}
}

// DetectStage infers the workflow stage from the data present in the
// document. The checks run from most to least advanced: every input
// finalized means the transaction is ready for extraction, any signature
// means signing has begun, any UTXO or script attachment means updating has
// begun, and a bare document sits at the creation (v0) or construction (v2)
// stage. A v2 document with no inputs or outputs yet has only been created.
func DetectStage(p *psbt.Psbt) WorkflowStage {
	allFinal := len(p.Inputs) > 0
	anySig := false
	anyUpdate := false

	for i := range p.Inputs {
		in := &p.Inputs[i]
		if !in.Finalized() {
			allFinal = false
		}
		if len(in.PartialSigs) > 0 {
			anySig = true
		}
		if in.NonWitnessUtxo != nil || in.WitnessUtxo != nil ||
			len(in.RedeemScript) != 0 || len(in.WitnessScript) != 0 ||
			len(in.Bip32Derivations) != 0 {
			anyUpdate = true
		}
	}
	for i := range p.Outputs {
		out := &p.Outputs[i]
		if len(out.RedeemScript) != 0 || len(out.WitnessScript) != 0 ||
			len(out.Bip32Derivations) != 0 {
			anyUpdate = true
		}
	}

	switch {
	case allFinal:
		return StageExtractionReady
	case anySig:
		return StageSigner
	case anyUpdate:
		return StageUpdater
	case p.Version() == 2 && len(p.Inputs) == 0 && len(p.Outputs) == 0:
		return StageCreator
	case p.Version() == 2:
		return StageConstructor
	default:
		return StageCreator
	}
}
