package core

// Unified Address encoding (C1, spec.md §4.1, §6). This core only ever
// emits or accepts a Unified Address containing exactly one Orchard
// receiver; other receiver typecodes are rejected at decode time.

import (
	"strings"

	"github.com/btcsuite/btcutil/bech32"
)

// orchardTypecode is the receiver typecode byte this core expects to
// precede the 43-byte raw address payload, mirroring the real unified
// address receiver registry's Orchard entry.
const orchardTypecode = 0x02

// EncodeAddress bech32m-encodes a raw 43-byte Orchard address into a
// Unified Address string for the given network.
func EncodeAddress(raw [43]byte, net Network) (string, error) {
	payload := append([]byte{orchardTypecode}, raw[:]...)
	conv, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return "", newErr(ErrAddressParsing, "convert bits for encoding", err)
	}
	encoded, err := bech32.EncodeM(net.hrp(), conv)
	if err != nil {
		return "", newErr(ErrAddressParsing, "bech32m encode", err)
	}
	return encoded, nil
}

// DecodeAddress parses a Unified Address string and extracts its Orchard
// receiver. Addresses with no Orchard receiver, or with a transparent
// prefix, are rejected (spec.md §4.1 Rejections, §6).
func DecodeAddress(ua string) ([43]byte, Network, error) {
	var raw [43]byte

	if strings.HasPrefix(ua, "t1") || strings.HasPrefix(ua, "tm") {
		return raw, 0, newErr(ErrAddressParsing, "transparent addresses are not accepted", nil)
	}

	hrp, data, err := bech32.DecodeNoLimit(ua)
	if err != nil {
		return raw, 0, newErr(ErrAddressParsing, "bech32m decode", err)
	}

	net, ok := networkForHRP(hrp)
	if !ok {
		return raw, 0, newErr(ErrAddressParsing, "unrecognized address HRP", nil)
	}

	payload, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return raw, 0, newErr(ErrAddressParsing, "convert bits for decoding", err)
	}
	if len(payload) != 44 {
		return raw, 0, newErr(ErrAddressParsing, "no Orchard receiver in address", nil)
	}
	if payload[0] != orchardTypecode {
		return raw, 0, newErr(ErrAddressParsing, "no Orchard receiver in address", nil)
	}

	copy(raw[:], payload[1:])
	return raw, net, nil
}

func networkForHRP(hrp string) (Network, bool) {
	switch hrp {
	case "u":
		return NetworkMain, true
	case "utest":
		return NetworkTest, true
	case "uregtest":
		return NetworkRegtest, true
	default:
		return 0, false
	}
}
