package android

import (
	"encoding/json"
	"unsafe"
)

func decodeDeviceJSON(raw []byte, out *deviceJSON) error {
	return json.Unmarshal(raw, out)
}

// int16BytesView reinterprets a native int16 channel span as the raw bytes
// the conversion core expects, without copying.
func int16BytesView(s []int16) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*2)
}
