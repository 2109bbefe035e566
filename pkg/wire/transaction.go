package wire

import (
	"bytes"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Serialized size lower bounds, used to reject count fields that could not
// possibly fit in the remaining buffer before allocating for them.
const (
	minTxInSize        = 32 + 4 + 1 + 4 // prevout txid + index + empty script + sequence
	minTxOutSize       = 8 + 1          // amount + empty script
	minWitnessItemSize = 1
)

// OutPoint identifies a previous transaction output.
type OutPoint struct {
	Hash  chainhash.Hash // Txid of the transaction holding the output
	Index uint32         // Index of the output within that transaction
}

// TxIn represents a transaction input.
type TxIn struct {
	PreviousOutPoint OutPoint
	SignatureScript  []byte
	Sequence         uint32

	// Witness is the segregated witness stack for this input. It is non-nil
	// exactly when the transaction was serialized with the witness
	// marker/flag pair, so that re-encoding a decoded transaction reproduces
	// the original bytes even for empty stacks.
	Witness [][]byte
}

// TxOut represents a transaction output.
type TxOut struct {
	Value    uint64 // Amount in satoshis
	PkScript []byte // Locking script
}

// Transaction is a decoded Bitcoin transaction, legacy or segwit.
type Transaction struct {
	Version  int32
	TxIn     []*TxIn
	TxOut    []*TxOut
	LockTime uint32
}

// HasWitness reports whether any input carries a witness section.
func (tx *Transaction) HasWitness() bool {
	for _, in := range tx.TxIn {
		if in.Witness != nil {
			return true
		}
	}
	return false
}

// DecodeTransaction decodes a complete raw transaction from data. Trailing
// bytes after the transaction are rejected; use ReadTransaction to decode
// from a stream position.
func DecodeTransaction(data []byte) (*Transaction, error) {
	r := NewReader(data)
	tx, err := ReadTransaction(r)
	if err != nil {
		return nil, err
	}
	if r.Remaining() != 0 {
		return nil, &MalformedTransactionError{
			Field: "trailing bytes after transaction",
		}
	}
	return tx, nil
}

// ReadTransaction decodes one raw transaction starting at the cursor
// position.
//
// Segwit detection follows the BIP 144 marker/flag convention: an input
// count of zero followed by the flag byte 0x01 marks a witness-serialized
// transaction. A zero input count followed by anything else is taken as a
// genuinely empty input list, which v2 PSBT templates legally produce. A
// witness-serialized transaction whose real input count is zero is rejected:
// it has no stacks to carry, and accepting it would break the round-trip law
// since the encoder never emits the marker/flag for witness-less inputs.
func ReadTransaction(r *Reader) (*Transaction, error) {
	version, err := r.ReadUint32("transaction version")
	if err != nil {
		return nil, &MalformedTransactionError{Field: "version", Cause: err}
	}
	tx := &Transaction{Version: int32(version)}

	inputCount, err := r.ReadCompactSize("input count")
	if err != nil {
		return nil, &MalformedTransactionError{Field: "input count", Cause: err}
	}

	segwit := false
	if inputCount == 0 {
		if next, ok := r.PeekByte(); ok && next == 0x01 {
			// The zero byte was the segwit marker; consume the flag and
			// read the real input count.
			r.ReadByte("witness flag")
			segwit = true
			inputCount, err = r.ReadCompactSize("input count")
			if err != nil {
				return nil, &MalformedTransactionError{Field: "input count", Cause: err}
			}
			if inputCount == 0 {
				return nil, &MalformedTransactionError{
					Field: "witness flag with zero inputs",
				}
			}
		}
	}

	if inputCount > uint64(r.Remaining()/minTxInSize)+1 {
		return nil, &MalformedTransactionError{Field: "input count exceeds buffer"}
	}
	tx.TxIn = make([]*TxIn, 0, inputCount)
	for i := uint64(0); i < inputCount; i++ {
		in, err := readTxIn(r)
		if err != nil {
			return nil, err
		}
		tx.TxIn = append(tx.TxIn, in)
	}

	outputCount, err := r.ReadCompactSize("output count")
	if err != nil {
		return nil, &MalformedTransactionError{Field: "output count", Cause: err}
	}
	if outputCount > uint64(r.Remaining()/minTxOutSize)+1 {
		return nil, &MalformedTransactionError{Field: "output count exceeds buffer"}
	}
	tx.TxOut = make([]*TxOut, 0, outputCount)
	for i := uint64(0); i < outputCount; i++ {
		out, err := readTxOut(r)
		if err != nil {
			return nil, err
		}
		tx.TxOut = append(tx.TxOut, out)
	}

	if segwit {
		for _, in := range tx.TxIn {
			if err := readWitnessStack(r, in); err != nil {
				return nil, err
			}
		}
	}

	tx.LockTime, err = r.ReadUint32("locktime")
	if err != nil {
		return nil, &MalformedTransactionError{Field: "locktime", Cause: err}
	}

	return tx, nil
}

func readTxIn(r *Reader) (*TxIn, error) {
	in := &TxIn{}

	txid, err := r.ReadBytes(chainhash.HashSize, "previous txid")
	if err != nil {
		return nil, &MalformedTransactionError{Field: "input previous txid", Cause: err}
	}
	copy(in.PreviousOutPoint.Hash[:], txid)

	in.PreviousOutPoint.Index, err = r.ReadUint32("previous output index")
	if err != nil {
		return nil, &MalformedTransactionError{Field: "input previous index", Cause: err}
	}

	scriptLen, err := r.ReadCompactSize("scriptSig length")
	if err != nil {
		return nil, &MalformedTransactionError{Field: "input scriptSig length", Cause: err}
	}
	in.SignatureScript, err = r.ReadBytes(int(scriptLen), "scriptSig")
	if err != nil {
		return nil, &MalformedTransactionError{Field: "input scriptSig", Cause: err}
	}

	in.Sequence, err = r.ReadUint32("sequence")
	if err != nil {
		return nil, &MalformedTransactionError{Field: "input sequence", Cause: err}
	}
	return in, nil
}

func readTxOut(r *Reader) (*TxOut, error) {
	out := &TxOut{}

	var err error
	out.Value, err = r.ReadUint64("output amount")
	if err != nil {
		return nil, &MalformedTransactionError{Field: "output amount", Cause: err}
	}

	scriptLen, err := r.ReadCompactSize("scriptPubKey length")
	if err != nil {
		return nil, &MalformedTransactionError{Field: "output scriptPubKey length", Cause: err}
	}
	out.PkScript, err = r.ReadBytes(int(scriptLen), "scriptPubKey")
	if err != nil {
		return nil, &MalformedTransactionError{Field: "output scriptPubKey", Cause: err}
	}
	return out, nil
}

func readWitnessStack(r *Reader, in *TxIn) error {
	itemCount, err := r.ReadCompactSize("witness item count")
	if err != nil {
		return &MalformedTransactionError{Field: "witness item count", Cause: err}
	}
	if itemCount > uint64(r.Remaining()/minWitnessItemSize)+1 {
		return &MalformedTransactionError{Field: "witness item count exceeds buffer"}
	}

	// Non-nil even for an empty stack; see TxIn.Witness.
	in.Witness = make([][]byte, 0, itemCount)
	for i := uint64(0); i < itemCount; i++ {
		itemLen, err := r.ReadCompactSize("witness item length")
		if err != nil {
			return &MalformedTransactionError{Field: "witness item length", Cause: err}
		}
		item, err := r.ReadBytes(int(itemLen), "witness item")
		if err != nil {
			return &MalformedTransactionError{Field: "witness item", Cause: err}
		}
		in.Witness = append(in.Witness, item)
	}
	return nil
}

// Encode serializes the transaction, including the witness section when any
// input carries one. Encode is the exact inverse of ReadTransaction:
// re-encoding a decoded transaction reproduces the input bytes.
func (tx *Transaction) Encode() []byte {
	return tx.encode(tx.HasWitness())
}

// EncodeStripped serializes the transaction without witness data or the
// marker/flag pair. This is the serialization the txid commits to.
func (tx *Transaction) EncodeStripped() []byte {
	return tx.encode(false)
}

func (tx *Transaction) encode(withWitness bool) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, tx.serializeSize(withWitness)))

	writeUint32(buf, uint32(tx.Version))

	if withWitness {
		buf.WriteByte(0x00)
		buf.WriteByte(0x01)
	}

	WriteCompactSize(buf, uint64(len(tx.TxIn)))
	for _, in := range tx.TxIn {
		buf.Write(in.PreviousOutPoint.Hash[:])
		writeUint32(buf, in.PreviousOutPoint.Index)
		WriteCompactSize(buf, uint64(len(in.SignatureScript)))
		buf.Write(in.SignatureScript)
		writeUint32(buf, in.Sequence)
	}

	WriteCompactSize(buf, uint64(len(tx.TxOut)))
	for _, out := range tx.TxOut {
		writeUint64(buf, out.Value)
		WriteCompactSize(buf, uint64(len(out.PkScript)))
		buf.Write(out.PkScript)
	}

	if withWitness {
		for _, in := range tx.TxIn {
			WriteCompactSize(buf, uint64(len(in.Witness)))
			for _, item := range in.Witness {
				WriteCompactSize(buf, uint64(len(item)))
				buf.Write(item)
			}
		}
	}

	writeUint32(buf, tx.LockTime)
	return buf.Bytes()
}

// SerializeSize returns the serialized byte size including witness data.
func (tx *Transaction) SerializeSize() int {
	return tx.serializeSize(tx.HasWitness())
}

// SerializeSizeStripped returns the serialized byte size excluding witness
// data and the marker/flag pair.
func (tx *Transaction) SerializeSizeStripped() int {
	return tx.serializeSize(false)
}

func (tx *Transaction) serializeSize(withWitness bool) int {
	// Version + locktime.
	n := 8

	n += CompactSizeLen(uint64(len(tx.TxIn)))
	for _, in := range tx.TxIn {
		n += 32 + 4 + 4
		n += CompactSizeLen(uint64(len(in.SignatureScript))) + len(in.SignatureScript)
	}

	n += CompactSizeLen(uint64(len(tx.TxOut)))
	for _, out := range tx.TxOut {
		n += 8
		n += CompactSizeLen(uint64(len(out.PkScript))) + len(out.PkScript)
	}

	if withWitness {
		n += 2 // marker + flag
		for _, in := range tx.TxIn {
			n += CompactSizeLen(uint64(len(in.Witness)))
			for _, item := range in.Witness {
				n += CompactSizeLen(uint64(len(item))) + len(item)
			}
		}
	}
	return n
}

// TxID returns the double-SHA256 hash of the witness-stripped serialization,
// which is the transaction id referenced by outpoints.
func (tx *Transaction) TxID() chainhash.Hash {
	return chainhash.DoubleHashH(tx.EncodeStripped())
}
