// Copyright The WasmKit Authors
// SPDX-License-Identifier: Apache-2.0

// redirect is a sample plugin for the harness: it answers every request
// with an immediate 301 to a location taken from the plugin configuration.
// Build with tinygo (see the magefile's BuildPlugins target).
package main

import (
	"github.com/tetratelabs/proxy-wasm-go-sdk/proxywasm"
	"github.com/tetratelabs/proxy-wasm-go-sdk/proxywasm/types"
	"github.com/tidwall/gjson"
)

func main() {
	proxywasm.SetVMContext(&vmContext{})
}

type vmContext struct {
	types.DefaultVMContext
}

func (*vmContext) NewPluginContext(contextID uint32) types.PluginContext {
	return &pluginContext{location: "https://moved.example.com/"}
}

type pluginContext struct {
	types.DefaultPluginContext

	location string
}

func (ctx *pluginContext) OnPluginStart(pluginConfigurationSize int) types.OnPluginStartStatus {
	data, err := proxywasm.GetPluginConfiguration()
	if err != nil && err != types.ErrorStatusNotFound {
		proxywasm.LogCriticalf("error reading plugin configuration: %v", err)
		return types.OnPluginStartStatusFailed
	}
	if len(data) > 0 && gjson.ValidBytes(data) {
		if loc := gjson.GetBytes(data, "location"); loc.Exists() {
			ctx.location = loc.String()
		}
	}
	return types.OnPluginStartStatusOK
}

func (ctx *pluginContext) NewHttpContext(contextID uint32) types.HttpContext {
	return &httpContext{location: ctx.location}
}

type httpContext struct {
	types.DefaultHttpContext

	location string
}

func (ctx *httpContext) OnHttpRequestHeaders(numHeaders int, endOfStream bool) types.Action {
	headers := [][2]string{{"Location", ctx.location}}
	if err := proxywasm.SendHttpResponse(301, headers, nil, -1); err != nil {
		proxywasm.LogCriticalf("failed to send redirect: %v", err)
		return types.ActionContinue
	}
	return types.ActionPause
}
