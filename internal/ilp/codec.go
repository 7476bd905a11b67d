package ilp

import (
	"bytes"
)

// EncodePrepare writes p in canonical OER binary form.
func EncodePrepare(p Prepare) ([]byte, error) {
	if err := ValidateAddress(p.Destination); err != nil {
		return nil, err
	}
	if len(p.Data) > maxDataSize {
		return nil, ErrDataTooLarge
	}

	var content bytes.Buffer
	var amount [8]byte
	putUint64(amount[:], p.Amount)
	content.Write(amount[:])
	content.Write(encodeExpiry(p.Expiry))
	content.Write(p.Condition[:])
	writeVarOctetString(&content, []byte(p.Destination))
	writeVarOctetString(&content, p.Data)

	return envelope(TypePrepare, content.Bytes()), nil
}

// DecodePrepare parses a canonical OER-encoded Prepare packet.
func DecodePrepare(data []byte) (Prepare, error) {
	content, err := openEnvelope(TypePrepare, data)
	if err != nil {
		return Prepare{}, err
	}
	r := bytes.NewReader(content)

	amountBytes, err := readFixed(r, 8)
	if err != nil {
		return Prepare{}, err
	}
	expiryBytes, err := readFixed(r, interledgerTimeLen)
	if err != nil {
		return Prepare{}, err
	}
	expiry, err := decodeExpiry(expiryBytes)
	if err != nil {
		return Prepare{}, err
	}
	conditionBytes, err := readFixed(r, ConditionLen)
	if err != nil {
		return Prepare{}, err
	}
	destBytes, err := readVarOctetString(r)
	if err != nil {
		return Prepare{}, err
	}
	dataBytes, err := readVarOctetString(r)
	if err != nil {
		return Prepare{}, err
	}
	if r.Len() != 0 {
		return Prepare{}, ErrTrailingData
	}
	if len(dataBytes) > maxDataSize {
		return Prepare{}, ErrDataTooLarge
	}
	destination := string(destBytes)
	if err := ValidateAddress(destination); err != nil {
		return Prepare{}, err
	}

	p := Prepare{
		Amount:      getUint64(amountBytes),
		Expiry:      expiry,
		Destination: destination,
		Data:        dataBytes,
	}
	copy(p.Condition[:], conditionBytes)
	return p, nil
}

// EncodeFulfill writes f in canonical OER binary form.
func EncodeFulfill(f Fulfill) ([]byte, error) {
	var content bytes.Buffer
	content.Write(f.Fulfillment[:])
	writeVarOctetString(&content, f.Data)
	return envelope(TypeFulfill, content.Bytes()), nil
}

// DecodeFulfill parses a canonical OER-encoded Fulfill packet.
func DecodeFulfill(data []byte) (Fulfill, error) {
	content, err := openEnvelope(TypeFulfill, data)
	if err != nil {
		return Fulfill{}, err
	}
	r := bytes.NewReader(content)

	fulfillmentBytes, err := readFixed(r, FulfillmentLen)
	if err != nil {
		return Fulfill{}, err
	}
	dataBytes, err := readVarOctetString(r)
	if err != nil {
		return Fulfill{}, err
	}
	if r.Len() != 0 {
		return Fulfill{}, ErrTrailingData
	}

	f := Fulfill{Data: dataBytes}
	copy(f.Fulfillment[:], fulfillmentBytes)
	return f, nil
}

// EncodeReject writes r in canonical OER binary form.
func EncodeReject(rej Reject) ([]byte, error) {
	if err := ValidateRejectCode(rej.Code); err != nil {
		return nil, err
	}
	if len(rej.Message) > maxMessageSize {
		return nil, ErrDataTooLarge
	}
	if rej.TriggeredBy != "" {
		if err := ValidateAddress(rej.TriggeredBy); err != nil {
			return nil, err
		}
	}

	var content bytes.Buffer
	content.WriteString(rej.Code)
	writeVarOctetString(&content, []byte(rej.TriggeredBy))
	writeVarOctetString(&content, []byte(rej.Message))
	writeVarOctetString(&content, rej.Data)

	return envelope(TypeReject, content.Bytes()), nil
}

// DecodeReject parses a canonical OER-encoded Reject packet.
func DecodeReject(data []byte) (Reject, error) {
	content, err := openEnvelope(TypeReject, data)
	if err != nil {
		return Reject{}, err
	}
	r := bytes.NewReader(content)

	codeBytes, err := readFixed(r, 3)
	if err != nil {
		return Reject{}, err
	}
	triggeredByBytes, err := readVarOctetString(r)
	if err != nil {
		return Reject{}, err
	}
	messageBytes, err := readVarOctetString(r)
	if err != nil {
		return Reject{}, err
	}
	dataBytes, err := readVarOctetString(r)
	if err != nil {
		return Reject{}, err
	}
	if r.Len() != 0 {
		return Reject{}, ErrTrailingData
	}
	if len(messageBytes) > maxMessageSize {
		return Reject{}, ErrDataTooLarge
	}

	code := string(codeBytes)
	if err := ValidateRejectCode(code); err != nil {
		return Reject{}, err
	}
	triggeredBy := string(triggeredByBytes)
	if triggeredBy != "" {
		if err := ValidateAddress(triggeredBy); err != nil {
			return Reject{}, err
		}
	}

	return Reject{
		Code:        code,
		TriggeredBy: triggeredBy,
		Message:     string(messageBytes),
		Data:        dataBytes,
	}, nil
}

// envelope wraps content in the type-octet + OER-length envelope shared by
// all three packet kinds.
func envelope(t PacketType, content []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(t))
	writeLengthPrefix(&buf, len(content))
	buf.Write(content)
	return buf.Bytes()
}

// openEnvelope validates the type octet and top-level length, and returns the
// content bytes it declares — rejecting a declared length that exceeds the
// remaining input, and rejecting any trailing bytes after the envelope.
func openEnvelope(want PacketType, data []byte) ([]byte, error) {
	if len(data) > maxPacketSize {
		return nil, ErrDataTooLarge
	}
	r := bytes.NewReader(data)
	typByte, err := r.ReadByte()
	if err != nil {
		return nil, ErrTruncated
	}
	if PacketType(typByte) != want {
		return nil, ErrUnexpectedType
	}
	length, err := readLengthPrefix(r)
	if err != nil {
		return nil, err
	}
	if length > r.Len() {
		return nil, ErrTruncated
	}
	content, err := readFixed(r, length)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, ErrTrailingData
	}
	return content, nil
}

func putUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for _, bb := range b {
		v = (v << 8) | uint64(bb)
	}
	return v
}

// PacketTypeOf reads only the leading type octet of an encoded packet,
// without decoding the rest — used by callers that need to dispatch on kind
// before choosing which Decode* function to call.
func PacketTypeOf(data []byte) (PacketType, error) {
	if len(data) == 0 {
		return 0, ErrTruncated
	}
	return PacketType(data[0]), nil
}
