// Package runner drives a keep's thread until the guest exits,
// servicing proxied syscalls on the host side. One runner owns one
// thread; the enter/service cycle is fully synchronous and a guest
// that never exits blocks the runner.
package runner
