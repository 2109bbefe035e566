package psbt

import (
	"bytes"
	"fmt"

	"github.com/suffix-labs/psbt-scan/pkg/wire"
)

// Combine merges two documents describing the same underlying transaction
// into a new document carrying the union of their fields. Neither argument
// is mutated. The documents must share the same PSBT version and the same
// transaction identity; any field present in both with differing values is a
// conflict.
func Combine(a, b *Psbt) (*Psbt, error) {
	if a.Version() != b.Version() {
		return nil, &ConflictingDataError{Map: "global",
			Reason: fmt.Sprintf("documents have different versions (%d and %d)",
				a.Version(), b.Version())}
	}
	if err := sameTransaction(a, b); err != nil {
		return nil, err
	}

	out := a.clone()

	if err := mergeGlobal(out.Global, b.Global); err != nil {
		return nil, err
	}
	for i := range out.Inputs {
		if err := mergeInput(&out.Inputs[i], &b.Inputs[i], fmt.Sprintf("input %d", i)); err != nil {
			return nil, err
		}
	}
	for i := range out.Outputs {
		if err := mergeOutput(&out.Outputs[i], &b.Outputs[i], fmt.Sprintf("output %d", i)); err != nil {
			return nil, err
		}
	}

	log.Debugf("Combined two PSBT v%d documents (%d inputs, %d outputs)",
		out.Version(), len(out.Inputs), len(out.Outputs))
	return out, nil
}

// sameTransaction checks that both documents spend the same prevouts with
// the same sequences and pay the same outputs, in the same order.
func sameTransaction(a, b *Psbt) error {
	switch ga := a.Global.(type) {
	case *GlobalV0:
		gb := b.Global.(*GlobalV0)
		if !bytes.Equal(ga.UnsignedTx.Encode(), gb.UnsignedTx.Encode()) {
			return &ConflictingDataError{Map: "global",
				Reason: "documents embed different unsigned transactions"}
		}

	case *GlobalV2:
		gb := b.Global.(*GlobalV2)
		if ga.TxVersion != gb.TxVersion ||
			ga.NumInputs != gb.NumInputs || ga.NumOutputs != gb.NumOutputs {
			return &ConflictingDataError{Map: "global",
				Reason: "documents describe different transactions"}
		}
		for i := range a.Inputs {
			ia, ib := &a.Inputs[i], &b.Inputs[i]
			if *ia.PreviousTxid != *ib.PreviousTxid || *ia.OutputIndex != *ib.OutputIndex ||
				sequenceOrDefault(ia.Sequence) != sequenceOrDefault(ib.Sequence) {
				return &ConflictingDataError{Map: fmt.Sprintf("input %d", i),
					Reason: "documents spend different prevouts"}
			}
		}
		for i := range a.Outputs {
			oa, ob := &a.Outputs[i], &b.Outputs[i]
			if *oa.Amount != *ob.Amount || !bytes.Equal(oa.Script, ob.Script) {
				return &ConflictingDataError{Map: fmt.Sprintf("output %d", i),
					Reason: "documents pay different outputs"}
			}
		}
	}
	return nil
}

func sequenceOrDefault(seq *uint32) uint32 {
	if seq == nil {
		return 0xffffffff
	}
	return *seq
}

func mergeGlobal(dst, src GlobalMap) error {
	switch gd := dst.(type) {
	case *GlobalV0:
		gs := src.(*GlobalV0)
		if err := mergeXpubs(&gd.Xpubs, gs.Xpubs); err != nil {
			return err
		}
		if err := mergeKVs(&gd.Proprietary, gs.Proprietary, "global"); err != nil {
			return err
		}
		return mergeKVs(&gd.Unknown, gs.Unknown, "global")

	case *GlobalV2:
		gs := src.(*GlobalV2)
		if err := mergeUint32(&gd.FallbackLocktime, gs.FallbackLocktime,
			"global", "fallback locktime"); err != nil {
			return err
		}
		if err := mergeUint8(&gd.TxModifiable, gs.TxModifiable,
			"global", "tx modifiable flags"); err != nil {
			return err
		}
		if err := mergeXpubs(&gd.Xpubs, gs.Xpubs); err != nil {
			return err
		}
		if err := mergeKVs(&gd.Proprietary, gs.Proprietary, "global"); err != nil {
			return err
		}
		return mergeKVs(&gd.Unknown, gs.Unknown, "global")
	}
	return nil
}

func mergeInput(dst, src *Input, mapName string) error {
	if err := mergeTx(&dst.NonWitnessUtxo, src.NonWitnessUtxo, mapName, "non-witness utxo"); err != nil {
		return err
	}
	if err := mergeTxOut(&dst.WitnessUtxo, src.WitnessUtxo, mapName, "witness utxo"); err != nil {
		return err
	}
	if err := mergePartialSigs(&dst.PartialSigs, src.PartialSigs, mapName); err != nil {
		return err
	}
	if err := mergeUint32(&dst.SighashType, src.SighashType, mapName, "sighash type"); err != nil {
		return err
	}
	if err := mergeBytes(&dst.RedeemScript, src.RedeemScript, mapName, "redeem script"); err != nil {
		return err
	}
	if err := mergeBytes(&dst.WitnessScript, src.WitnessScript, mapName, "witness script"); err != nil {
		return err
	}
	if err := mergeDerivations(&dst.Bip32Derivations, src.Bip32Derivations, mapName); err != nil {
		return err
	}
	if err := mergeBytes(&dst.FinalScriptSig, src.FinalScriptSig, mapName, "final scriptSig"); err != nil {
		return err
	}
	if err := mergeBytes(&dst.FinalScriptWitness, src.FinalScriptWitness, mapName, "final script witness"); err != nil {
		return err
	}
	if err := mergeUint32(&dst.RequiredTimeLocktime, src.RequiredTimeLocktime,
		mapName, "required time locktime"); err != nil {
		return err
	}
	if err := mergeUint32(&dst.RequiredHeightLocktime, src.RequiredHeightLocktime,
		mapName, "required height locktime"); err != nil {
		return err
	}
	if err := mergeKVs(&dst.Proprietary, src.Proprietary, mapName); err != nil {
		return err
	}
	return mergeKVs(&dst.Unknown, src.Unknown, mapName)
}

func mergeOutput(dst, src *Output, mapName string) error {
	if err := mergeBytes(&dst.RedeemScript, src.RedeemScript, mapName, "redeem script"); err != nil {
		return err
	}
	if err := mergeBytes(&dst.WitnessScript, src.WitnessScript, mapName, "witness script"); err != nil {
		return err
	}
	if err := mergeDerivations(&dst.Bip32Derivations, src.Bip32Derivations, mapName); err != nil {
		return err
	}
	if err := mergeKVs(&dst.Proprietary, src.Proprietary, mapName); err != nil {
		return err
	}
	return mergeKVs(&dst.Unknown, src.Unknown, mapName)
}

func mergeBytes(dst *[]byte, src []byte, mapName, field string) error {
	if len(src) == 0 {
		return nil
	}
	if len(*dst) == 0 {
		*dst = copyBytes(src)
		return nil
	}
	if !bytes.Equal(*dst, src) {
		return conflict(mapName, field)
	}
	return nil
}

func mergeUint32(dst **uint32, src *uint32, mapName, field string) error {
	if src == nil {
		return nil
	}
	if *dst == nil {
		v := *src
		*dst = &v
		return nil
	}
	if **dst != *src {
		return conflict(mapName, field)
	}
	return nil
}

func mergeUint8(dst **uint8, src *uint8, mapName, field string) error {
	if src == nil {
		return nil
	}
	if *dst == nil {
		v := *src
		*dst = &v
		return nil
	}
	if **dst != *src {
		return conflict(mapName, field)
	}
	return nil
}

func mergeTx(dst **wire.Transaction, src *wire.Transaction, mapName, field string) error {
	if src == nil {
		return nil
	}
	if *dst == nil {
		tx, err := wire.DecodeTransaction(src.Encode())
		if err != nil {
			return err
		}
		*dst = tx
		return nil
	}
	if !bytes.Equal((*dst).Encode(), src.Encode()) {
		return conflict(mapName, field)
	}
	return nil
}

func mergeTxOut(dst **wire.TxOut, src *wire.TxOut, mapName, field string) error {
	if src == nil {
		return nil
	}
	if *dst == nil {
		*dst = &wire.TxOut{Value: src.Value, PkScript: copyBytes(src.PkScript)}
		return nil
	}
	if (*dst).Value != src.Value || !bytes.Equal((*dst).PkScript, src.PkScript) {
		return conflict(mapName, field)
	}
	return nil
}

func mergePartialSigs(dst *[]PartialSig, src []PartialSig, mapName string) error {
	for _, sig := range src {
		found := false
		for _, have := range *dst {
			if !bytes.Equal(have.PubKey, sig.PubKey) {
				continue
			}
			if !bytes.Equal(have.Signature, sig.Signature) {
				return &ConflictingDataError{Map: mapName, Key: copyBytes(sig.PubKey),
					Reason: "differing partial signatures for one public key"}
			}
			found = true
			break
		}
		if !found {
			*dst = append(*dst, PartialSig{
				PubKey:    copyBytes(sig.PubKey),
				Signature: copyBytes(sig.Signature),
			})
		}
	}
	return nil
}

func mergeDerivations(dst *[]Bip32Derivation, src []Bip32Derivation, mapName string) error {
	for _, deriv := range src {
		found := false
		for _, have := range *dst {
			if !bytes.Equal(have.PubKey, deriv.PubKey) {
				continue
			}
			if have.MasterFingerprint != deriv.MasterFingerprint ||
				!equalPath(have.Path, deriv.Path) {
				return &ConflictingDataError{Map: mapName, Key: copyBytes(deriv.PubKey),
					Reason: "differing derivation data for one public key"}
			}
			found = true
			break
		}
		if !found {
			*dst = append(*dst, copyDerivation(deriv))
		}
	}
	return nil
}

func mergeXpubs(dst *[]Xpub, src []Xpub) error {
	for _, xpub := range src {
		found := false
		for _, have := range *dst {
			if !bytes.Equal(have.ExtendedKey, xpub.ExtendedKey) {
				continue
			}
			if have.MasterFingerprint != xpub.MasterFingerprint ||
				!equalPath(have.Path, xpub.Path) {
				return &ConflictingDataError{Map: "global", Key: copyBytes(xpub.ExtendedKey),
					Reason: "differing origin data for one extended public key"}
			}
			found = true
			break
		}
		if !found {
			*dst = append(*dst, Xpub{
				ExtendedKey:       copyBytes(xpub.ExtendedKey),
				MasterFingerprint: xpub.MasterFingerprint,
				Path:              copyPath(xpub.Path),
			})
		}
	}
	return nil
}

func mergeKVs(dst *[]KeyValue, src []KeyValue, mapName string) error {
	for _, kv := range src {
		found := false
		for _, have := range *dst {
			if !bytes.Equal(have.Key, kv.Key) {
				continue
			}
			if !bytes.Equal(have.Value, kv.Value) {
				return &ConflictingDataError{Map: mapName, Key: copyBytes(kv.Key),
					Reason: "differing values for one key"}
			}
			found = true
			break
		}
		if !found {
			*dst = append(*dst, KeyValue{
				Key:   copyBytes(kv.Key),
				Value: copyBytes(kv.Value),
			})
		}
	}
	return nil
}

func conflict(mapName, field string) error {
	return &ConflictingDataError{Map: mapName,
		Reason: "differing values for " + field}
}

// clone deep-copies a document. Combine operates on the clone so its inputs
// stay untouched even when the merge fails partway.
func (p *Psbt) clone() *Psbt {
	out := &Psbt{
		Inputs:  make([]Input, len(p.Inputs)),
		Outputs: make([]Output, len(p.Outputs)),
	}

	switch g := p.Global.(type) {
	case *GlobalV0:
		cp := &GlobalV0{
			Xpubs:       copyXpubs(g.Xpubs),
			Proprietary: copyKVs(g.Proprietary),
			Unknown:     copyKVs(g.Unknown),
		}
		if g.UnsignedTx != nil {
			tx, _ := wire.DecodeTransaction(g.UnsignedTx.Encode())
			cp.UnsignedTx = tx
		}
		out.Global = cp
	case *GlobalV2:
		cp := &GlobalV2{
			TxVersion:   g.TxVersion,
			NumInputs:   g.NumInputs,
			NumOutputs:  g.NumOutputs,
			Xpubs:       copyXpubs(g.Xpubs),
			Proprietary: copyKVs(g.Proprietary),
			Unknown:     copyKVs(g.Unknown),
		}
		if g.FallbackLocktime != nil {
			v := *g.FallbackLocktime
			cp.FallbackLocktime = &v
		}
		if g.TxModifiable != nil {
			v := *g.TxModifiable
			cp.TxModifiable = &v
		}
		out.Global = cp
	}

	for i := range p.Inputs {
		out.Inputs[i] = p.Inputs[i].clone()
	}
	for i := range p.Outputs {
		out.Outputs[i] = p.Outputs[i].clone()
	}
	return out
}

func (in Input) clone() Input {
	cp := Input{
		SighashType:            copyUint32(in.SighashType),
		RedeemScript:           copyBytes(in.RedeemScript),
		WitnessScript:          copyBytes(in.WitnessScript),
		FinalScriptSig:         copyBytes(in.FinalScriptSig),
		FinalScriptWitness:     copyBytes(in.FinalScriptWitness),
		OutputIndex:            copyUint32(in.OutputIndex),
		Sequence:               copyUint32(in.Sequence),
		RequiredTimeLocktime:   copyUint32(in.RequiredTimeLocktime),
		RequiredHeightLocktime: copyUint32(in.RequiredHeightLocktime),
		Proprietary:            copyKVs(in.Proprietary),
		Unknown:                copyKVs(in.Unknown),
	}
	if in.NonWitnessUtxo != nil {
		tx, _ := wire.DecodeTransaction(in.NonWitnessUtxo.Encode())
		cp.NonWitnessUtxo = tx
	}
	if in.WitnessUtxo != nil {
		cp.WitnessUtxo = &wire.TxOut{
			Value:    in.WitnessUtxo.Value,
			PkScript: copyBytes(in.WitnessUtxo.PkScript),
		}
	}
	if in.PreviousTxid != nil {
		h := *in.PreviousTxid
		cp.PreviousTxid = &h
	}
	for _, sig := range in.PartialSigs {
		cp.PartialSigs = append(cp.PartialSigs, PartialSig{
			PubKey:    copyBytes(sig.PubKey),
			Signature: copyBytes(sig.Signature),
		})
	}
	for _, deriv := range in.Bip32Derivations {
		cp.Bip32Derivations = append(cp.Bip32Derivations, copyDerivation(deriv))
	}
	return cp
}

func (out Output) clone() Output {
	cp := Output{
		RedeemScript:  copyBytes(out.RedeemScript),
		WitnessScript: copyBytes(out.WitnessScript),
		Script:        copyBytes(out.Script),
		Proprietary:   copyKVs(out.Proprietary),
		Unknown:       copyKVs(out.Unknown),
	}
	if out.Amount != nil {
		v := *out.Amount
		cp.Amount = &v
	}
	for _, deriv := range out.Bip32Derivations {
		cp.Bip32Derivations = append(cp.Bip32Derivations, copyDerivation(deriv))
	}
	return cp
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func copyUint32(v *uint32) *uint32 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func copyPath(path []uint32) []uint32 {
	if path == nil {
		return nil
	}
	return append([]uint32(nil), path...)
}

func copyKVs(kvs []KeyValue) []KeyValue {
	if kvs == nil {
		return nil
	}
	out := make([]KeyValue, len(kvs))
	for i, kv := range kvs {
		out[i] = KeyValue{Key: copyBytes(kv.Key), Value: copyBytes(kv.Value)}
	}
	return out
}

func copyDerivation(d Bip32Derivation) Bip32Derivation {
	return Bip32Derivation{
		PubKey:            copyBytes(d.PubKey),
		MasterFingerprint: d.MasterFingerprint,
		Path:              copyPath(d.Path),
	}
}

func copyXpubs(xpubs []Xpub) []Xpub {
	if xpubs == nil {
		return nil
	}
	out := make([]Xpub, len(xpubs))
	for i, xpub := range xpubs {
		out[i] = Xpub{
			ExtendedKey:       copyBytes(xpub.ExtendedKey),
			MasterFingerprint: xpub.MasterFingerprint,
			Path:              copyPath(xpub.Path),
		}
	}
	return out
}

func equalPath(a, b []uint32) bool {
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
