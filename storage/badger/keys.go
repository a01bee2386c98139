package badger

import "fmt"

// Key prefixes for different data types
const (
	blobHeaderPrefix = "blob:"
	blobChunkPrefix  = "blobc:"
)

// makeBlobHeaderKey generates the key of a blob's header.
func makeBlobHeaderKey(key string) []byte {
	return []byte(blobHeaderPrefix + key)
}

// makeBlobChunkKey generates the key of one chunk of a blob generation.
// Format: prefix:key#generation#index, numbers as fixed-width hex so chunks
// sort in order.
func makeBlobChunkKey(key string, generation, index uint64) []byte {
	return []byte(fmt.Sprintf("%s%s#%016x#%016x", blobChunkPrefix, key, generation, index))
}
