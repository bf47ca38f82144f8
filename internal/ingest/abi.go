package ingest

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// abi.go hand-rolls the narrow slice of Solidity ABI encoding needed to
// batch eth_call reads through Multicall3's aggregate3 function (spec.md
// §4.6.5). Chomp does not depend on an ABI-encoding library from the
// pack, so this mirrors only the dynamic-array-of-tuples layout
// aggregate3 actually uses rather than a general-purpose codec.

// multicall3Address is the canonical Multicall3 deployment address,
// identical across the EVM chains that have it deployed (spec.md §4.6.5
// "a well-known multicall contract address").
const multicall3Address = "0xcA11bde05977b3631167028862bE2a173976CA11"

// aggregate3Selector is the 4-byte selector of
// aggregate3((address,bool,bytes)[]) on Multicall3.
const aggregate3Selector = "82ad56cb"

// call3 is one element of aggregate3's Call3[] input: a target contract,
// whether its failure should be tolerated, and the calldata to send it.
type call3 struct {
	Target       string
	AllowFailure bool
	CallData     []byte
}

// aggregate3Result is one element of aggregate3's Result[] output.
type aggregate3Result struct {
	Success    bool
	ReturnData []byte
}

// word left-pads b to one 32-byte ABI word.
func word(b []byte) string {
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	out := make([]byte, 64)
	for i := range out {
		out[i] = '0'
	}
	copy(out[64-len(b)*2:], hex.EncodeToString(b))
	return out
}

// wordUint encodes n as a right-aligned 32-byte ABI word.
func wordUint(n int) string {
	hi := byte(n >> 24)
	return word([]byte{hi, byte(n >> 16), byte(n >> 8), byte(n)})
}

// wordBool encodes a bool as a 32-byte ABI word (0 or 1).
func wordBool(b bool) string {
	if b {
		return word([]byte{1})
	}
	return word([]byte{0})
}

// wordAddress encodes a 20-byte hex address as a 32-byte ABI word.
func wordAddress(addr string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(addr, "0x"))
	if err != nil {
		return "", fmt.Errorf("abi: malformed address %q: %w", addr, err)
	}
	return word(raw), nil
}

// encodeBytes encodes a dynamic bytes value as length word + data words,
// right-padded with zero bytes to a 32-byte boundary.
func encodeBytes(b []byte) string {
	out := wordUint(len(b))
	padded := make([]byte, ((len(b)+31)/32)*32)
	copy(padded, b)
	out += hex.EncodeToString(padded)
	return out
}

// encodeAggregate3 ABI-encodes a full aggregate3(Call3[]) calldata blob.
// Call3 is a dynamic tuple (it embeds bytes), so the array is encoded
// with a level of offset indirection: an offset word per element
// (relative to the start of the elements region, i.e. just after the
// length word), followed by each element's own tuple encoding — a
// 3-word head (target, allowFailure, bytes-offset-within-tuple) and its
// bytes tail.
func encodeAggregate3(calls []call3) (string, error) {
	var elemOffsets []string
	var elems []string
	elemOffset := len(calls) * 32 // the first element follows the offset words
	for _, c := range calls {
		addrWord, err := wordAddress(c.Target)
		if err != nil {
			return "", err
		}
		tail := encodeBytes(c.CallData)
		elem := addrWord + wordBool(c.AllowFailure) + wordUint(96) + tail
		elemOffsets = append(elemOffsets, wordUint(elemOffset))
		elems = append(elems, elem)
		elemOffset += len(elem) / 2
	}

	body := wordUint(32) // offset to the Call3[] array, relative to the params start
	body += wordUint(len(calls))
	body += strings.Join(elemOffsets, "")
	body += strings.Join(elems, "")
	return "0x" + aggregate3Selector + body, nil
}

// decodeAggregate3Result decodes aggregate3's Result[] return value.
// Result is likewise a dynamic tuple (bool, bytes), so the same
// array-of-offsets indirection applies: an offset word per element
// relative to the elements region, each pointing at that element's own
// 2-word head (success, bytes-offset-within-tuple) and bytes tail.
func decodeAggregate3Result(hexData string) ([]aggregate3Result, error) {
	data := strings.TrimPrefix(hexData, "0x")
	raw, err := hex.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("abi: malformed return data: %w", err)
	}
	if len(raw) < 64 {
		return nil, fmt.Errorf("abi: return data too short for an array")
	}

	arrOff := beUint(raw[0:32])
	if arrOff+32 > len(raw) {
		return nil, fmt.Errorf("abi: array offset out of range")
	}
	n := beUint(raw[arrOff : arrOff+32])
	elemsStart := arrOff + 32

	results := make([]aggregate3Result, 0, n)
	for i := 0; i < n; i++ {
		offWord := elemsStart + i*32
		if offWord+32 > len(raw) {
			return nil, fmt.Errorf("abi: element %d offset out of range", i)
		}
		elemStart := elemsStart + beUint(raw[offWord:offWord+32])
		if elemStart+64 > len(raw) {
			return nil, fmt.Errorf("abi: element %d head out of range", i)
		}
		success := raw[elemStart+31] != 0
		bytesOff := beUint(raw[elemStart+32 : elemStart+64])
		tailStart := elemStart + bytesOff
		if tailStart+32 > len(raw) {
			return nil, fmt.Errorf("abi: element %d tail out of range", i)
		}
		length := beUint(raw[tailStart : tailStart+32])
		dataStart := tailStart + 32
		if dataStart+length > len(raw) {
			return nil, fmt.Errorf("abi: element %d data out of range", i)
		}
		results = append(results, aggregate3Result{Success: success, ReturnData: raw[dataStart : dataStart+length]})
	}
	return results, nil
}

// beUint decodes a big-endian 32-byte ABI word as an int, truncating to
// its low bytes (sufficient for offsets/lengths/counts within a single
// multicall response).
func beUint(w []byte) int {
	n := 0
	for _, b := range w[len(w)-8:] {
		n = n<<8 | int(b)
	}
	return n
}
