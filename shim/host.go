package shim

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/shardlight/kvbridge/engine"
	"github.com/shardlight/kvbridge/errors"
	"github.com/shardlight/kvbridge/handle"
)

// HostModuleName is the import module name guests link against.
const HostModuleName = "kvbridge"

// Boundary conventions, mirrored by the guest-side bindings:
//
//   - create functions return a u32 handle; 0 means failure, with the
//     reason available from last_errno.
//   - destroy functions take the handle and return nothing. They never
//     fail; destroying an already-destroyed handle is a no-op.
//   - byte-returning calls take an (out_ptr, out_cap) pair into guest
//     memory and return an i64: the full length of the value on success
//     (the first min(length, out_cap) bytes are written), or -1 on
//     failure.
//   - strings and keys cross as (ptr, len) pairs into guest memory.
var callFailed = int64(-1)

type hostFunc struct {
	name    string
	fn      api.GoModuleFunc
	paramVT []api.ValueType
	resVT   []api.ValueType
}

// Instantiate registers the shim as a host module in r. The returned
// module stays alive until the runtime closes; the shim keeps ownership
// of every resource guests create through it.
func (s *Shim) Instantiate(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	b := r.NewHostModuleBuilder(HostModuleName)

	for _, f := range s.hostFuncs() {
		b.NewFunctionBuilder().
			WithGoModuleFunction(f.fn, f.paramVT, f.resVT).
			Export(f.name)
	}

	mod, err := b.Instantiate(ctx)
	if err != nil {
		return nil, errors.Registration(HostModuleName, "*", err)
	}

	s.logger.Debug("host module instantiated", zap.String("module", HostModuleName))
	return mod, nil
}

func (s *Shim) hostFuncs() []hostFunc {
	i32 := api.ValueTypeI32
	i64 := api.ValueTypeI64

	return []hostFunc{
		// rate limiter
		{"ratelimiter_create", s.hostRateLimiterCreate, []api.ValueType{i64, i64, i32}, []api.ValueType{i32}},
		{"ratelimiter_destroy", s.hostRateLimiterDestroy, []api.ValueType{i32}, nil},
		{"ratelimiter_request", s.hostRateLimiterRequest, []api.ValueType{i32, i64}, nil},
		{"ratelimiter_available", s.hostRateLimiterAvailable, []api.ValueType{i32}, []api.ValueType{i64}},

		// database
		{"db_open", s.hostDBOpen, []api.ValueType{i32, i32}, []api.ValueType{i32}},
		{"db_open_memory", s.hostDBOpenMemory, nil, []api.ValueType{i32}},
		{"db_destroy", s.hostDBDestroy, []api.ValueType{i32}, nil},
		{"db_put", s.hostDBPut, []api.ValueType{i32, i32, i32, i32, i32}, []api.ValueType{i32}},
		{"db_get", s.hostDBGet, []api.ValueType{i32, i32, i32, i32, i32}, []api.ValueType{i64}},
		{"db_delete", s.hostDBDelete, []api.ValueType{i32, i32, i32}, []api.ValueType{i32}},

		// iterator
		{"iterator_create", s.hostIteratorCreate, []api.ValueType{i32, i32, i32, i32}, []api.ValueType{i32}},
		{"iterator_destroy", s.hostIteratorDestroy, []api.ValueType{i32}, nil},
		{"iterator_seek", s.hostIteratorSeek, []api.ValueType{i32, i32, i32}, nil},
		{"iterator_valid", s.hostIteratorValid, []api.ValueType{i32}, []api.ValueType{i32}},
		{"iterator_next", s.hostIteratorNext, []api.ValueType{i32}, nil},
		{"iterator_key", s.hostIteratorKey, []api.ValueType{i32, i32, i32}, []api.ValueType{i64}},
		{"iterator_value", s.hostIteratorValue, []api.ValueType{i32, i32, i32}, []api.ValueType{i64}},

		// write batch
		{"writebatch_create", s.hostWriteBatchCreate, []api.ValueType{i32}, []api.ValueType{i32}},
		{"writebatch_destroy", s.hostWriteBatchDestroy, []api.ValueType{i32}, nil},
		{"writebatch_put", s.hostWriteBatchPut, []api.ValueType{i32, i32, i32, i32, i32}, []api.ValueType{i32}},
		{"writebatch_delete", s.hostWriteBatchDelete, []api.ValueType{i32, i32, i32}, []api.ValueType{i32}},
		{"writebatch_flush", s.hostWriteBatchFlush, []api.ValueType{i32}, []api.ValueType{i32}},

		// snapshot
		{"snapshot_create", s.hostSnapshotCreate, []api.ValueType{i32}, []api.ValueType{i32}},
		{"snapshot_destroy", s.hostSnapshotDestroy, []api.ValueType{i32}, nil},
		{"snapshot_get", s.hostSnapshotGet, []api.ValueType{i32, i32, i32, i32, i32}, []api.ValueType{i64}},

		// errno
		{"last_errno", s.hostLastErrno, nil, []api.ValueType{i32}},
	}
}

// readBytes copies (ptr, length) out of the calling module's memory.
// A zero length never touches memory, so integer-only calls work even
// from contexts without one.
func (s *Shim) readBytes(mod api.Module, ptr, length uint32) ([]byte, bool) {
	if length == 0 {
		return nil, true
	}
	m := mod.Memory()
	if m == nil {
		s.lastErrno.Store(errors.ErrnoIO)
		return nil, false
	}
	data, ok := m.Read(ptr, length)
	if !ok {
		s.lastErrno.Store(errors.ErrnoIO)
		return nil, false
	}
	// Copy: the view into guest memory is invalidated by the next call.
	out := make([]byte, length)
	copy(out, data)
	return out, true
}

// writeResult copies data into (ptr, cap) of guest memory and returns
// the full length of data. Truncated writes still report the full
// length so the guest can retry with a larger buffer.
func (s *Shim) writeResult(mod api.Module, ptr, capacity uint32, data []byte) int64 {
	n := uint32(len(data))
	if n == 0 || capacity == 0 {
		return int64(n)
	}
	if n > capacity {
		n = capacity
	}
	m := mod.Memory()
	if m == nil || !m.Write(ptr, data[:n]) {
		s.lastErrno.Store(errors.ErrnoIO)
		return callFailed
	}
	return int64(len(data))
}

// --- rate limiter ---

func (s *Shim) hostRateLimiterCreate(_ context.Context, _ api.Module, stack []uint64) {
	rate := int64(stack[0])
	refill := int64(stack[1])
	fairness := api.DecodeI32(stack[2])

	h, err := s.RateLimiterCreate(rate, refill, fairness)
	if err != nil {
		stack[0] = 0
		return
	}
	stack[0] = uint64(h)
}

func (s *Shim) hostRateLimiterDestroy(_ context.Context, _ api.Module, stack []uint64) {
	s.RateLimiterDestroy(handle.Handle(api.DecodeU32(stack[0])))
}

func (s *Shim) hostRateLimiterRequest(_ context.Context, _ api.Module, stack []uint64) {
	h := handle.Handle(api.DecodeU32(stack[0]))
	n := int64(stack[1])
	_ = s.RateLimiterRequest(h, n)
}

func (s *Shim) hostRateLimiterAvailable(_ context.Context, _ api.Module, stack []uint64) {
	h := handle.Handle(api.DecodeU32(stack[0]))
	avail, err := s.RateLimiterAvailable(h)
	if err != nil {
		stack[0] = uint64(callFailed)
		return
	}
	stack[0] = uint64(avail)
}

// --- database ---

func (s *Shim) hostDBOpen(_ context.Context, mod api.Module, stack []uint64) {
	dir, ok := s.readBytes(mod, api.DecodeU32(stack[0]), api.DecodeU32(stack[1]))
	if !ok {
		stack[0] = 0
		return
	}

	h, err := s.DBOpen(engine.Options{Dir: string(dir)})
	if err != nil {
		stack[0] = 0
		return
	}
	stack[0] = uint64(h)
}

func (s *Shim) hostDBOpenMemory(_ context.Context, _ api.Module, stack []uint64) {
	h, err := s.DBOpen(engine.Options{InMemory: true})
	if err != nil {
		stack[0] = 0
		return
	}
	stack[0] = uint64(h)
}

func (s *Shim) hostDBDestroy(_ context.Context, _ api.Module, stack []uint64) {
	s.DBDestroy(handle.Handle(api.DecodeU32(stack[0])))
}

func (s *Shim) hostDBPut(_ context.Context, mod api.Module, stack []uint64) {
	h := handle.Handle(api.DecodeU32(stack[0]))
	key, ok := s.readBytes(mod, api.DecodeU32(stack[1]), api.DecodeU32(stack[2]))
	if !ok {
		stack[0] = uint64(s.LastErrno())
		return
	}
	value, ok := s.readBytes(mod, api.DecodeU32(stack[3]), api.DecodeU32(stack[4]))
	if !ok {
		stack[0] = uint64(s.LastErrno())
		return
	}

	err := s.DBPut(h, key, value)
	stack[0] = uint64(errors.Errno(err))
}

func (s *Shim) hostDBGet(_ context.Context, mod api.Module, stack []uint64) {
	h := handle.Handle(api.DecodeU32(stack[0]))
	key, ok := s.readBytes(mod, api.DecodeU32(stack[1]), api.DecodeU32(stack[2]))
	if !ok {
		stack[0] = uint64(callFailed)
		return
	}

	value, err := s.DBGet(h, key)
	if err != nil {
		stack[0] = uint64(callFailed)
		return
	}
	stack[0] = uint64(s.writeResult(mod, api.DecodeU32(stack[3]), api.DecodeU32(stack[4]), value))
}

func (s *Shim) hostDBDelete(_ context.Context, mod api.Module, stack []uint64) {
	h := handle.Handle(api.DecodeU32(stack[0]))
	key, ok := s.readBytes(mod, api.DecodeU32(stack[1]), api.DecodeU32(stack[2]))
	if !ok {
		stack[0] = uint64(s.LastErrno())
		return
	}

	err := s.DBDelete(h, key)
	stack[0] = uint64(errors.Errno(err))
}

// --- iterator ---

func (s *Shim) hostIteratorCreate(_ context.Context, mod api.Module, stack []uint64) {
	dbh := handle.Handle(api.DecodeU32(stack[0]))
	prefix, ok := s.readBytes(mod, api.DecodeU32(stack[1]), api.DecodeU32(stack[2]))
	if !ok {
		stack[0] = 0
		return
	}
	reverse := api.DecodeU32(stack[3]) != 0

	h, err := s.IteratorCreate(dbh, prefix, reverse)
	if err != nil {
		stack[0] = 0
		return
	}
	stack[0] = uint64(h)
}

func (s *Shim) hostIteratorDestroy(_ context.Context, _ api.Module, stack []uint64) {
	s.IteratorDestroy(handle.Handle(api.DecodeU32(stack[0])))
}

func (s *Shim) hostIteratorSeek(_ context.Context, mod api.Module, stack []uint64) {
	h := handle.Handle(api.DecodeU32(stack[0]))
	key, ok := s.readBytes(mod, api.DecodeU32(stack[1]), api.DecodeU32(stack[2]))
	if !ok {
		return
	}
	_ = s.IteratorSeek(h, key)
}

func (s *Shim) hostIteratorValid(_ context.Context, _ api.Module, stack []uint64) {
	h := handle.Handle(api.DecodeU32(stack[0]))
	if s.IteratorValid(h) {
		stack[0] = 1
	} else {
		stack[0] = 0
	}
}

func (s *Shim) hostIteratorNext(_ context.Context, _ api.Module, stack []uint64) {
	_ = s.IteratorNext(handle.Handle(api.DecodeU32(stack[0])))
}

func (s *Shim) hostIteratorKey(_ context.Context, mod api.Module, stack []uint64) {
	h := handle.Handle(api.DecodeU32(stack[0]))
	key, err := s.IteratorKey(h)
	if err != nil {
		stack[0] = uint64(callFailed)
		return
	}
	stack[0] = uint64(s.writeResult(mod, api.DecodeU32(stack[1]), api.DecodeU32(stack[2]), key))
}

func (s *Shim) hostIteratorValue(_ context.Context, mod api.Module, stack []uint64) {
	h := handle.Handle(api.DecodeU32(stack[0]))
	value, err := s.IteratorValue(h)
	if err != nil {
		stack[0] = uint64(callFailed)
		return
	}
	stack[0] = uint64(s.writeResult(mod, api.DecodeU32(stack[1]), api.DecodeU32(stack[2]), value))
}

// --- write batch ---

func (s *Shim) hostWriteBatchCreate(_ context.Context, _ api.Module, stack []uint64) {
	dbh := handle.Handle(api.DecodeU32(stack[0]))
	h, err := s.WriteBatchCreate(dbh)
	if err != nil {
		stack[0] = 0
		return
	}
	stack[0] = uint64(h)
}

func (s *Shim) hostWriteBatchDestroy(_ context.Context, _ api.Module, stack []uint64) {
	s.WriteBatchDestroy(handle.Handle(api.DecodeU32(stack[0])))
}

func (s *Shim) hostWriteBatchPut(_ context.Context, mod api.Module, stack []uint64) {
	h := handle.Handle(api.DecodeU32(stack[0]))
	key, ok := s.readBytes(mod, api.DecodeU32(stack[1]), api.DecodeU32(stack[2]))
	if !ok {
		stack[0] = uint64(s.LastErrno())
		return
	}
	value, ok := s.readBytes(mod, api.DecodeU32(stack[3]), api.DecodeU32(stack[4]))
	if !ok {
		stack[0] = uint64(s.LastErrno())
		return
	}

	err := s.WriteBatchPut(h, key, value)
	stack[0] = uint64(errors.Errno(err))
}

func (s *Shim) hostWriteBatchDelete(_ context.Context, mod api.Module, stack []uint64) {
	h := handle.Handle(api.DecodeU32(stack[0]))
	key, ok := s.readBytes(mod, api.DecodeU32(stack[1]), api.DecodeU32(stack[2]))
	if !ok {
		stack[0] = uint64(s.LastErrno())
		return
	}

	err := s.WriteBatchDelete(h, key)
	stack[0] = uint64(errors.Errno(err))
}

func (s *Shim) hostWriteBatchFlush(_ context.Context, _ api.Module, stack []uint64) {
	err := s.WriteBatchFlush(handle.Handle(api.DecodeU32(stack[0])))
	stack[0] = uint64(errors.Errno(err))
}

// --- snapshot ---

func (s *Shim) hostSnapshotCreate(_ context.Context, _ api.Module, stack []uint64) {
	dbh := handle.Handle(api.DecodeU32(stack[0]))
	h, err := s.SnapshotCreate(dbh)
	if err != nil {
		stack[0] = 0
		return
	}
	stack[0] = uint64(h)
}

func (s *Shim) hostSnapshotDestroy(_ context.Context, _ api.Module, stack []uint64) {
	s.SnapshotDestroy(handle.Handle(api.DecodeU32(stack[0])))
}

func (s *Shim) hostSnapshotGet(_ context.Context, mod api.Module, stack []uint64) {
	h := handle.Handle(api.DecodeU32(stack[0]))
	key, ok := s.readBytes(mod, api.DecodeU32(stack[1]), api.DecodeU32(stack[2]))
	if !ok {
		stack[0] = uint64(callFailed)
		return
	}

	value, err := s.SnapshotGet(h, key)
	if err != nil {
		stack[0] = uint64(callFailed)
		return
	}
	stack[0] = uint64(s.writeResult(mod, api.DecodeU32(stack[3]), api.DecodeU32(stack[4]), value))
}

// --- errno ---

func (s *Shim) hostLastErrno(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = uint64(s.LastErrno())
}
