// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

package wazerovm

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wasmkit/filtertest/hostabi"
)

// The "env" module implements the proxy-wasm host ABI. Every function
// returns a hostabi.Result as i32. Operations outside this harness's scope
// (shared queues, metrics, outbound calls) return Unimplemented; header and
// buffer operations delegate to the active hostabi host so that phase
// guards and bounds checks live in one place.

func (p *plugin) streamHost() (hostabi.StreamHost, hostabi.Result) {
	if sh, ok := p.activeHost.(hostabi.StreamHost); ok {
		return sh, hostabi.ResultOK
	}
	return nil, hostabi.ResultBadArgument
}

func readString(mod api.Module, ptr, size uint32) (string, bool) {
	data, ok := mod.Memory().Read(ptr, size)
	if !ok {
		return "", false
	}
	return string(data), true
}

// allocAndWrite copies data into freshly allocated guest memory and stores
// the pointer and length at the given return slots.
func (p *plugin) allocAndWrite(mod api.Module, data []byte, retPtrPtr, retSizePtr uint32) hostabi.Result {
	ptr := uint32(0)
	if len(data) > 0 {
		res, err := p.malloc.Call(p.ctx, uint64(len(data)))
		if err != nil || len(res) == 0 {
			p.fail("guest allocator trapped: %v", err)
			return hostabi.ResultInternalFailure
		}
		ptr = uint32(res[0])
		if !mod.Memory().Write(ptr, data) {
			return hostabi.ResultInvalidMemoryAccess
		}
	}
	if !mod.Memory().WriteUint32Le(retPtrPtr, ptr) ||
		!mod.Memory().WriteUint32Le(retSizePtr, uint32(len(data))) {
		return hostabi.ResultInvalidMemoryAccess
	}
	return hostabi.ResultOK
}

func (p *plugin) instantiateHostModule() error {
	b := p.runtime.NewHostModuleBuilder("env")
	export := func(name string, fn any) {
		b.NewFunctionBuilder().WithFunc(fn).Export(name)
	}

	export("proxy_log", func(_ context.Context, mod api.Module, level, msgPtr, msgSize uint32) uint32 {
		msg, ok := readString(mod, msgPtr, msgSize)
		if !ok {
			return uint32(hostabi.ResultInvalidMemoryAccess)
		}
		return uint32(p.activeHost.Log(hostabi.LogLevel(level), msg))
	})

	export("proxy_get_log_level", func(_ context.Context, mod api.Module, retPtr uint32) uint32 {
		if !mod.Memory().WriteUint32Le(retPtr, 0) {
			return uint32(hostabi.ResultInvalidMemoryAccess)
		}
		return uint32(hostabi.ResultOK)
	})

	export("proxy_get_current_time_nanoseconds", func(_ context.Context, mod api.Module, retPtr uint32) uint32 {
		if !mod.Memory().WriteUint64Le(retPtr, p.activeHost.CurrentTimeNanos()) {
			return uint32(hostabi.ResultInvalidMemoryAccess)
		}
		return uint32(hostabi.ResultOK)
	})

	export("proxy_set_tick_period_milliseconds", func(_ context.Context, _ api.Module, _ uint32) uint32 {
		return uint32(hostabi.ResultOK)
	})

	export("proxy_get_buffer_bytes", func(_ context.Context, mod api.Module, bt, start, length, retPtrPtr, retSizePtr uint32) uint32 {
		buf := p.activeHost.GetBuffer(hostabi.BufferType(bt))
		if buf == nil {
			return uint32(hostabi.ResultNotFound)
		}
		data, res := buf.CopyOut(uint64(start), uint64(length))
		if res != hostabi.ResultOK {
			return uint32(res)
		}
		return uint32(p.allocAndWrite(mod, data, retPtrPtr, retSizePtr))
	})

	export("proxy_get_buffer_status", func(_ context.Context, mod api.Module, bt, lenPtr, flagsPtr uint32) uint32 {
		buf := p.activeHost.GetBuffer(hostabi.BufferType(bt))
		if buf == nil {
			return uint32(hostabi.ResultNotFound)
		}
		if !mod.Memory().WriteUint32Le(lenPtr, uint32(buf.Size())) ||
			!mod.Memory().WriteUint32Le(flagsPtr, 0) {
			return uint32(hostabi.ResultInvalidMemoryAccess)
		}
		return uint32(hostabi.ResultOK)
	})

	export("proxy_set_buffer_bytes", func(_ context.Context, mod api.Module, bt, start, length, dataPtr, dataSize uint32) uint32 {
		buf := p.activeHost.GetBuffer(hostabi.BufferType(bt))
		if buf == nil {
			return uint32(hostabi.ResultNotFound)
		}
		data, ok := mod.Memory().Read(dataPtr, dataSize)
		if !ok {
			return uint32(hostabi.ResultInvalidMemoryAccess)
		}
		return uint32(buf.CopyIn(uint64(start), uint64(length), data))
	})

	export("proxy_get_header_map_size", func(_ context.Context, mod api.Module, mt, retPtr uint32) uint32 {
		sh, res := p.streamHost()
		if res != hostabi.ResultOK {
			return uint32(res)
		}
		size, res := sh.GetHeaderMapSize(hostabi.HeaderMapType(mt))
		if res != hostabi.ResultOK {
			return uint32(res)
		}
		if !mod.Memory().WriteUint32Le(retPtr, size) {
			return uint32(hostabi.ResultInvalidMemoryAccess)
		}
		return uint32(hostabi.ResultOK)
	})

	export("proxy_get_header_map_value", func(_ context.Context, mod api.Module, mt, keyPtr, keySize, retPtrPtr, retSizePtr uint32) uint32 {
		sh, res := p.streamHost()
		if res != hostabi.ResultOK {
			return uint32(res)
		}
		key, ok := readString(mod, keyPtr, keySize)
		if !ok {
			return uint32(hostabi.ResultInvalidMemoryAccess)
		}
		value, res := sh.GetHeaderMapValue(hostabi.HeaderMapType(mt), key)
		if res != hostabi.ResultOK {
			return uint32(res)
		}
		return uint32(p.allocAndWrite(mod, []byte(value), retPtrPtr, retSizePtr))
	})

	export("proxy_add_header_map_value", func(_ context.Context, mod api.Module, mt, keyPtr, keySize, valPtr, valSize uint32) uint32 {
		sh, res := p.streamHost()
		if res != hostabi.ResultOK {
			return uint32(res)
		}
		key, ok1 := readString(mod, keyPtr, keySize)
		value, ok2 := readString(mod, valPtr, valSize)
		if !ok1 || !ok2 {
			return uint32(hostabi.ResultInvalidMemoryAccess)
		}
		return uint32(sh.AddHeaderMapValue(hostabi.HeaderMapType(mt), key, value))
	})

	export("proxy_replace_header_map_value", func(_ context.Context, mod api.Module, mt, keyPtr, keySize, valPtr, valSize uint32) uint32 {
		sh, res := p.streamHost()
		if res != hostabi.ResultOK {
			return uint32(res)
		}
		key, ok1 := readString(mod, keyPtr, keySize)
		value, ok2 := readString(mod, valPtr, valSize)
		if !ok1 || !ok2 {
			return uint32(hostabi.ResultInvalidMemoryAccess)
		}
		return uint32(sh.ReplaceHeaderMapValue(hostabi.HeaderMapType(mt), key, value))
	})

	export("proxy_remove_header_map_value", func(_ context.Context, mod api.Module, mt, keyPtr, keySize uint32) uint32 {
		sh, res := p.streamHost()
		if res != hostabi.ResultOK {
			return uint32(res)
		}
		key, ok := readString(mod, keyPtr, keySize)
		if !ok {
			return uint32(hostabi.ResultInvalidMemoryAccess)
		}
		return uint32(sh.RemoveHeaderMapValue(hostabi.HeaderMapType(mt), key))
	})

	export("proxy_get_header_map_pairs", func(_ context.Context, mod api.Module, mt, retPtrPtr, retSizePtr uint32) uint32 {
		sh, res := p.streamHost()
		if res != hostabi.ResultOK {
			return uint32(res)
		}
		pairs, res := sh.GetHeaderMapPairs(hostabi.HeaderMapType(mt))
		if res != hostabi.ResultOK {
			return uint32(res)
		}
		return uint32(p.allocAndWrite(mod, hostabi.EncodeHeaderMap(pairs), retPtrPtr, retSizePtr))
	})

	export("proxy_set_header_map_pairs", func(_ context.Context, mod api.Module, mt, dataPtr, dataSize uint32) uint32 {
		sh, res := p.streamHost()
		if res != hostabi.ResultOK {
			return uint32(res)
		}
		data, ok := mod.Memory().Read(dataPtr, dataSize)
		if !ok {
			return uint32(hostabi.ResultInvalidMemoryAccess)
		}
		pairs, res := hostabi.DecodeHeaderMap(data)
		if res != hostabi.ResultOK {
			return uint32(res)
		}
		return uint32(sh.SetHeaderMapPairs(hostabi.HeaderMapType(mt), pairs))
	})

	export("proxy_send_local_response", func(_ context.Context, mod api.Module, code, detailsPtr, detailsSize, bodyPtr, bodySize, headersPtr, headersSize, grpcStatus uint32) uint32 {
		sh, res := p.streamHost()
		if res != hostabi.ResultOK {
			return uint32(res)
		}
		details, ok := readString(mod, detailsPtr, detailsSize)
		if !ok {
			return uint32(hostabi.ResultInvalidMemoryAccess)
		}
		body, ok := mod.Memory().Read(bodyPtr, bodySize)
		if !ok && bodySize > 0 {
			return uint32(hostabi.ResultInvalidMemoryAccess)
		}
		var pairs [][2]string
		if headersSize > 0 {
			raw, ok := mod.Memory().Read(headersPtr, headersSize)
			if !ok {
				return uint32(hostabi.ResultInvalidMemoryAccess)
			}
			pairs, res = hostabi.DecodeHeaderMap(raw)
			if res != hostabi.ResultOK {
				return uint32(res)
			}
		}
		return uint32(sh.SendLocalResponse(code, body, pairs, int32(grpcStatus), details))
	})

	export("proxy_set_effective_context", func(_ context.Context, _ api.Module, _ uint32) uint32 {
		return uint32(hostabi.ResultOK)
	})

	export("proxy_done", func(_ context.Context, _ api.Module) uint32 {
		return uint32(hostabi.ResultOK)
	})

	export("proxy_get_configuration", func(_ context.Context, mod api.Module, retPtrPtr, retSizePtr uint32) uint32 {
		buf := p.activeHost.GetBuffer(hostabi.BufferTypePluginConfiguration)
		if buf == nil {
			return uint32(hostabi.ResultNotFound)
		}
		data, res := buf.CopyOut(0, uint64(buf.Size()))
		if res != hostabi.ResultOK {
			return uint32(res)
		}
		return uint32(p.allocAndWrite(mod, data, retPtrPtr, retSizePtr))
	})

	export("proxy_get_property", func(_ context.Context, _ api.Module, _, _, _, _ uint32) uint32 {
		return uint32(hostabi.ResultNotFound)
	})
	export("proxy_set_property", func(_ context.Context, _ api.Module, _, _, _, _ uint32) uint32 {
		return uint32(hostabi.ResultOK)
	})
	export("proxy_get_shared_data", func(_ context.Context, _ api.Module, _, _, _, _, _ uint32) uint32 {
		return uint32(hostabi.ResultNotFound)
	})
	export("proxy_set_shared_data", func(_ context.Context, _ api.Module, _, _, _, _, _ uint32) uint32 {
		return uint32(hostabi.ResultOK)
	})

	unimplemented2 := func(_ context.Context, _ api.Module, _, _ uint32) uint32 {
		return uint32(hostabi.ResultUnimplemented)
	}
	export("proxy_continue_stream", func(_ context.Context, _ api.Module, _ uint32) uint32 {
		return uint32(hostabi.ResultUnimplemented)
	})
	export("proxy_close_stream", func(_ context.Context, _ api.Module, _ uint32) uint32 {
		return uint32(hostabi.ResultUnimplemented)
	})
	export("proxy_continue_request", func(_ context.Context, _ api.Module) uint32 {
		return uint32(hostabi.ResultUnimplemented)
	})
	export("proxy_continue_response", func(_ context.Context, _ api.Module) uint32 {
		return uint32(hostabi.ResultUnimplemented)
	})
	export("proxy_clear_route_cache", func(_ context.Context, _ api.Module) uint32 {
		return uint32(hostabi.ResultUnimplemented)
	})
	export("proxy_get_status", func(_ context.Context, _ api.Module, _, _, _ uint32) uint32 {
		return uint32(hostabi.ResultUnimplemented)
	})
	export("proxy_register_shared_queue", func(_ context.Context, _ api.Module, _, _, _ uint32) uint32 {
		return uint32(hostabi.ResultUnimplemented)
	})
	export("proxy_resolve_shared_queue", func(_ context.Context, _ api.Module, _, _, _, _, _ uint32) uint32 {
		return uint32(hostabi.ResultUnimplemented)
	})
	export("proxy_dequeue_shared_queue", func(_ context.Context, _ api.Module, _, _, _ uint32) uint32 {
		return uint32(hostabi.ResultUnimplemented)
	})
	export("proxy_enqueue_shared_queue", func(_ context.Context, _ api.Module, _, _, _ uint32) uint32 {
		return uint32(hostabi.ResultUnimplemented)
	})
	export("proxy_http_call", func(_ context.Context, _ api.Module, _, _, _, _, _, _, _, _, _, _ uint32) uint32 {
		return uint32(hostabi.ResultUnimplemented)
	})
	export("proxy_call_foreign_function", func(_ context.Context, _ api.Module, _, _, _, _, _, _ uint32) uint32 {
		return uint32(hostabi.ResultUnimplemented)
	})
	export("proxy_define_metric", func(_ context.Context, _ api.Module, _, _, _, _ uint32) uint32 {
		return uint32(hostabi.ResultUnimplemented)
	})
	export("proxy_increment_metric", func(_ context.Context, _ api.Module, _ uint32, _ int64) uint32 {
		return uint32(hostabi.ResultUnimplemented)
	})
	export("proxy_record_metric", func(_ context.Context, _ api.Module, _ uint32, _ uint64) uint32 {
		return uint32(hostabi.ResultUnimplemented)
	})
	export("proxy_get_metric", unimplemented2)
	export("proxy_grpc_call", func(_ context.Context, _ api.Module, _, _, _, _, _, _, _, _, _, _, _, _ uint32) uint32 {
		return uint32(hostabi.ResultUnimplemented)
	})
	export("proxy_grpc_stream", func(_ context.Context, _ api.Module, _, _, _, _, _, _, _, _, _ uint32) uint32 {
		return uint32(hostabi.ResultUnimplemented)
	})
	export("proxy_grpc_send", func(_ context.Context, _ api.Module, _, _, _, _ uint32) uint32 {
		return uint32(hostabi.ResultUnimplemented)
	})
	export("proxy_grpc_cancel", func(_ context.Context, _ api.Module, _ uint32) uint32 {
		return uint32(hostabi.ResultUnimplemented)
	})
	export("proxy_grpc_close", func(_ context.Context, _ api.Module, _ uint32) uint32 {
		return uint32(hostabi.ResultUnimplemented)
	})

	_, err := b.Instantiate(p.ctx)
	return err
}
