package memory

import (
	"database/sql/driver"
	"encoding/binary"
	"math"
	"sync"

	"modernc.org/sqlite"
)

var registerVectorFunctionsOnce sync.Once
var registerVectorFunctionsErr error

// floatsToBytes encodes a float32 vector as little-endian bytes, the same
// wire shape the Rust original uses for its sqlite-vec blob columns.
func floatsToBytes(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloats is the inverse of floatsToBytes. Trailing bytes that don't
// make up a full float32 are ignored.
func bytesToFloats(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// cosineDistance returns 1 - cosine_similarity, so that smaller is "closer",
// matching the ascending-distance ordering the vector virtual table would
// provide in the Rust original's sqlite-vec-backed schema.
func cosineDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 1
	}
	similarity := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	return 1 - similarity
}

// vecDistanceScalar is the *sqlite.FunctionImpl.Scalar body registered as
// the `vec_distance_cosine(a_blob, b_blob)` SQL scalar function. modernc.org/sqlite
// carries no sqlite-vec-style virtual table, so this registers a plain SQL
// scalar function via sqlite.RegisterFunction and drives the "vector index"
// entirely with ordinary tables plus ORDER BY on this function instead of a
// true ANN virtual table.
func vecDistanceScalar(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	aBytes, ok := args[0].([]byte)
	if !ok {
		return 1.0, nil
	}
	bBytes, ok := args[1].([]byte)
	if !ok {
		return 1.0, nil
	}
	a := bytesToFloats(aBytes)
	b := bytesToFloats(bBytes)
	return cosineDistance(a, b), nil
}

func registerVectorFunctions() error {
	registerVectorFunctionsOnce.Do(func() {
		registerVectorFunctionsErr = sqlite.RegisterFunction("vec_distance_cosine", &sqlite.FunctionImpl{
			NArgs:         2,
			Deterministic: true,
			Scalar:        vecDistanceScalar,
		})
	})
	return registerVectorFunctionsErr
}
