// Copyright 2025 Highlander Farm
// SPDX-License-Identifier: Apache-2.0

package herdsync

// Connectivity reports whether the device currently has network access. The
// repository consults it per call to choose between the write-through and
// the optimistic offline path; the sync service consults it before draining
// the queue. The application shell supplies the real probe.
type Connectivity interface {
	Online() bool
}

// ConnectivityFunc adapts a plain function to the Connectivity interface.
type ConnectivityFunc func() bool

func (f ConnectivityFunc) Online() bool { return f() }

// AlwaysOnline is the default probe when none is configured.
var AlwaysOnline Connectivity = ConnectivityFunc(func() bool { return true })
