// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the concrete tensors traced functions are called with.
//
// A RawTensor is a shape, an element type, strides and a byte buffer. Views
// created by Permute share the buffer with their source and carry their own
// strides; both executors accept strided views.
//
// # Basic Usage
//
//	x, err := tensor.FromFloat32s([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	xt, _ := x.Permute(1, 0) // 3x2 view, not contiguous
//	fmt.Println(xt.Float64s())
//
// # Data Types
//
// Float16, Float32, Float64, Int32, Int64 and Bool are supported. Float16 storage
// uses github.com/x448/float16.
package tensor
