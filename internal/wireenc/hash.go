package wireenc

import "lukechampine.com/blake3"

func sum256(data []byte) [32]byte {
	return blake3.Sum256(data)
}
