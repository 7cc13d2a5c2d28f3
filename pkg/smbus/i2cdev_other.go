//go:build !linux
// +build !linux

package smbus

// DefaultOpen is nil where there is no i2c-dev, so enumeration yields
// nothing
var DefaultOpen OpenFunc
