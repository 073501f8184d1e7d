package util

// Version is the rconsole release, overridden at build time with
// -ldflags "-X github.com/energizer-project/rconsole/internal/util.Version=...".
var Version = "1.0.0"
