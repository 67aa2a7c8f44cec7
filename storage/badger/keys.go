package badger

import (
	"encoding/binary"

	"github.com/poiesic/succession/core"
)

// Key prefixes for different data types
const (
	geocodePrefix    = "geo:"
	embeddingPrefix  = "emb:"
	matchPrefix      = "match:"
	checkpointPrefix = "chkpt:"
)

// makeGeocodeKey generates a key for a folded location name.
func makeGeocodeKey(name string) []byte {
	return append([]byte(geocodePrefix), name...)
}

// makeEmbeddingKey generates a key for an embedding content ID.
// Format: prefix + 8 bytes BigEndian ID
func makeEmbeddingKey(id core.ID) []byte {
	buf := make([]byte, len(embeddingPrefix)+8)
	offset := copy(buf, embeddingPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeMatchKey generates a key for a buyer-seller pair.
// Format: prefix:buyerID<US>sellerID, so keys sort by buyer then seller.
func makeMatchKey(key core.PairKey) []byte {
	return append([]byte(matchPrefix), key.String()...)
}

// pairKeyFromMatchKey reverses makeMatchKey.
func pairKeyFromMatchKey(key []byte) (core.PairKey, error) {
	return core.ParsePairKey(string(key[len(matchPrefix):]))
}

// makeCheckpointKey generates a key for job checkpoints.
func makeCheckpointKey(name string) []byte {
	return append([]byte(checkpointPrefix), name...)
}
