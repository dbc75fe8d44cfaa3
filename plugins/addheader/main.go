// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

// addheader is a sample plugin for the harness: it signs the request URL
// from the X-Original-URL header and decorates responses. Build with tinygo
// (see the magefile's BuildPlugins target).
package main

import (
	"fmt"

	"github.com/tetratelabs/proxy-wasm-go-sdk/proxywasm"
	"github.com/tetratelabs/proxy-wasm-go-sdk/proxywasm/types"
)

func main() {
	proxywasm.SetVMContext(&vmContext{})
}

type vmContext struct {
	types.DefaultVMContext
}

func (*vmContext) NewPluginContext(contextID uint32) types.PluginContext {
	return &pluginContext{}
}

type pluginContext struct {
	types.DefaultPluginContext
}

func (*pluginContext) NewHttpContext(contextID uint32) types.HttpContext {
	return &httpContext{}
}

type httpContext struct {
	types.DefaultHttpContext
}

func (*httpContext) OnHttpRequestHeaders(numHeaders int, endOfStream bool) types.Action {
	url, err := proxywasm.GetHttpRequestHeader("x-original-url")
	if err != nil {
		proxywasm.LogInfo("header not found: X-Original-URL")
		return types.ActionContinue
	}
	signed := fmt.Sprintf("%s?Expires=1700000000&Signature=deadbeef", url)
	if err := proxywasm.AddHttpRequestHeader("X-Signed-URL", signed); err != nil {
		proxywasm.LogErrorf("failed to add signed header: %v", err)
	}
	return types.ActionContinue
}

func (*httpContext) OnHttpResponseHeaders(numHeaders int, endOfStream bool) types.Action {
	if err := proxywasm.AddHttpResponseHeader("hello", "filtertest"); err != nil {
		proxywasm.LogErrorf("failed to add response header: %v", err)
	}
	return types.ActionContinue
}
