//go:build !embed
// +build !embed

package main

import "embed"

// Without the embed tag the model is read from Detector.ModelDir on disk
var modelFiles embed.FS
