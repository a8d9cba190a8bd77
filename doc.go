// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package statesync translates a logical rendering pipeline state into
// minimal backend device calls.
//
// A frontend (engine, scene graph, GL-style emulation layer) mutates the
// logical state through Manager setters; the manager tracks what changed
// with coarse dirty bits and, at draw or dispatch time, drains the bits in
// a fixed order, emitting only the device calls whose inputs differ from
// the last applied state. Immutable device state objects (blend,
// depth-stencil, rasterizer, sampler, input layout) are content-hashed and
// cached so identical descriptors share one object.
//
// The package never owns GPU resources. Views and buffers are identified by
// opaque serials and released by the host; see the Device interface for the
// backend contract.
//
// Basic usage:
//
//	mgr, err := statesync.New(device, nil)
//	if err != nil {
//	    // handle error
//	}
//	mgr.SetFramebuffer(colors, depth)
//	mgr.SetProgram(prog)
//	mgr.SetVertexArray(va)
//	skip, err := mgr.SetupDraw(&statesync.DrawCall{
//	    Mode:  gputypes.PrimitiveTopologyTriangleList,
//	    Count: 36,
//	})
//	if err == nil && !skip {
//	    // issue the draw on the device
//	}
package statesync
