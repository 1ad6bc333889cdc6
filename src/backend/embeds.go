//go:build embed
// +build embed

package main

import "embed"

// Embed ONNX model files for the onnx_model_detector
//
//go:embed model/quantized/*
var modelFiles embed.FS
