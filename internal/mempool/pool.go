// Package mempool provides size-classed buffer pools for the per-frame
// scratch maps used by edge extraction and line detection.
package mempool

import "sync"

var (
	float32Pools sync.Map // key: size class (int), value: *sync.Pool
	int32Pools   sync.Map
	boolPools    sync.Map
)

// sizeClass rounds n up to the next multiple of 1024 to reduce churn.
func sizeClass(n int) int {
	const step = 1024
	if n <= step {
		return step
	}
	return (n + step - 1) / step * step
}

func get[T any](pools *sync.Map, n int, zero bool) []T {
	n = max(n, 0)
	cls := sizeClass(n)
	pAny, _ := pools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]T, cls) }})
	p, ok := pAny.(*sync.Pool)
	if !ok {
		return make([]T, n)
	}
	buf, ok := p.Get().([]T)
	if !ok || cap(buf) < cls {
		buf = make([]T, cls)
	}
	buf = buf[:n]
	if zero {
		clear(buf)
	}
	return buf
}

func put[T any](pools *sync.Map, buf []T) {
	if buf == nil {
		return
	}
	cls := sizeClass(cap(buf))
	if cls != cap(buf) {
		// not one of ours; keep the pool homogeneous
		return
	}
	pAny, _ := pools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]T, cls) }})
	if p, ok := pAny.(*sync.Pool); ok {
		p.Put(buf[:cap(buf)]) //nolint:staticcheck
	}
}

// GetFloat32 retrieves a []float32 of length n. Contents are undefined.
// Return it with PutFloat32 when done.
func GetFloat32(n int) []float32 { return get[float32](&float32Pools, n, false) }

// PutFloat32 returns a buffer to the pool. It is safe to pass a nil slice.
func PutFloat32(buf []float32) { put(&float32Pools, buf) }

// GetInt32 retrieves a zeroed []int32 of length n.
func GetInt32(n int) []int32 { return get[int32](&int32Pools, n, true) }

// PutInt32 returns a buffer to the pool. It is safe to pass a nil slice.
func PutInt32(buf []int32) { put(&int32Pools, buf) }

// GetBool retrieves a zeroed []bool of length n.
func GetBool(n int) []bool { return get[bool](&boolPools, n, true) }

// PutBool returns a buffer to the pool. It is safe to pass a nil slice.
func PutBool(buf []bool) { put(&boolPools, buf) }
