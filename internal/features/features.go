// Package features implements a process-wide feature flagging mechanism.
//
// Features are intended to control properties of the code that can only be
// enabled globally.
package features

import (
	"os"
	"strings"
	"sync"
)

const (
	// EnvVarName is the name of the environment variable which contains the
	// list of feature flags.
	EnvVarName = "WRT_FEATURES"
)

var (
	lock sync.RWMutex
	list []string
)

// EnableFromEnvironment extracts the list of features enabled from the
// WRT_FEATURES environment variable.
func EnableFromEnvironment() {
	features := os.Getenv(EnvVarName)
	Enable(strings.Split(features, ",")...)
}

// Enable the list of features passed as arguments.
//
// The function is idempotent and atomic, features that are already present are
// skipped.
//
// Unrecognized features are ignored.
func Enable(features ...string) {
	lock.Lock()
	defer lock.Unlock()

	enabled := list

	for _, f := range features {
		if supported(f) && !have(enabled, f) {
			enabled = append(enabled, f)
		}
	}

	list = enabled
}

// List returns the current list of features enabled process-wide.
//
// The program must treat the returned slice as read-only.
func List() []string {
	lock.RLock()
	defer lock.RUnlock()
	return list
}

// Have returns true if the given feature is enabled.
func Have(feature string) bool {
	lock.RLock()
	features := list
	lock.RUnlock()
	return have(features, feature)
}

func have(list []string, feature string) bool {
	for _, f := range list {
		if f == feature {
			return true
		}
	}
	return false
}

// asildAllowHeap, when enabled, relaxes ProfileASILD's refusal of a
// Go-heap-backed memory provider -- an explicit opt-in for local
// debugging of an ASIL-D-profiled module on a build that has not yet
// been given a static memory arena, never meant to ship in a
// certified build. See Profile.AllowsHeapMemory.
const asildAllowHeap = "asild-allow-heap"

func supported(feature string) bool {
	switch feature {
	case asildAllowHeap:
		return true
	default:
		return false
	}
}

// AsildAllowHeap reports whether the asild-allow-heap feature is enabled.
func AsildAllowHeap() bool { return Have(asildAllowHeap) }
