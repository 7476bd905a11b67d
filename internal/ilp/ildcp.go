package ilp

import "bytes"

// PeerConfigAddress is the well-known destination that requests dynamic
// address configuration from a parent.
const PeerConfigAddress = "peer.config"

// ILDCPResponse is the payload carried inside a Fulfill's Data in response to
// a peer.config request: the requester's own address and asset info.
type ILDCPResponse struct {
	Address    string
	AssetScale uint8
	AssetCode  string
}

// EncodeILDCPResponse writes r in the same OER var-octet-string style used by
// the packet fields it will be embedded alongside.
func EncodeILDCPResponse(r ILDCPResponse) ([]byte, error) {
	if err := ValidateAddress(r.Address); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	writeVarOctetString(&buf, []byte(r.Address))
	buf.WriteByte(r.AssetScale)
	writeVarOctetString(&buf, []byte(r.AssetCode))
	return buf.Bytes(), nil
}

// DecodeILDCPResponse parses the payload written by EncodeILDCPResponse.
func DecodeILDCPResponse(data []byte) (ILDCPResponse, error) {
	r := bytes.NewReader(data)

	addrBytes, err := readVarOctetString(r)
	if err != nil {
		return ILDCPResponse{}, err
	}
	scale, err := r.ReadByte()
	if err != nil {
		return ILDCPResponse{}, ErrTruncated
	}
	codeBytes, err := readVarOctetString(r)
	if err != nil {
		return ILDCPResponse{}, err
	}
	if r.Len() != 0 {
		return ILDCPResponse{}, ErrTrailingData
	}

	address := string(addrBytes)
	if err := ValidateAddress(address); err != nil {
		return ILDCPResponse{}, err
	}

	return ILDCPResponse{Address: address, AssetScale: scale, AssetCode: string(codeBytes)}, nil
}
