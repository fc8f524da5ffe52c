// Copyright 2025 Highlander Farm
// SPDX-License-Identifier: Apache-2.0

package herdstore

// Subscription is a coalesced change signal for a set of collections. C
// receives (at least) one value after every committed transaction that
// touched a watched collection; bursts of commits may be collapsed into a
// single signal, so consumers should re-read state rather than count signals.
type Subscription struct {
	C <-chan struct{}

	ch          chan struct{}
	collections map[string]struct{}
	store       *Store
	id          int
}

// Subscribe registers interest in the given collections. With no collections
// the subscription fires on every commit. Close must be called to release it.
func (s *Store) Subscribe(collections ...string) *Subscription {
	sub := &Subscription{
		ch:          make(chan struct{}, 1),
		collections: make(map[string]struct{}, len(collections)),
		store:       s,
	}
	sub.C = sub.ch
	for _, c := range collections {
		sub.collections[c] = struct{}{}
	}

	s.subMu.Lock()
	s.nextSub++
	sub.id = s.nextSub
	s.subs[sub.id] = sub
	s.subMu.Unlock()
	return sub
}

// Close unregisters the subscription. The channel is not closed; consumers
// should select on their own context as well.
func (sub *Subscription) Close() {
	sub.store.subMu.Lock()
	delete(sub.store.subs, sub.id)
	sub.store.subMu.Unlock()
}

func (sub *Subscription) watches(touched []string) bool {
	if len(sub.collections) == 0 {
		return true
	}
	for _, c := range touched {
		if _, ok := sub.collections[c]; ok {
			return true
		}
	}
	return false
}

// notify wakes every subscription watching one of the touched collections.
// The send is non-blocking: a pending signal already carries the same
// "something changed" information.
func (s *Store) notify(touched []string) {
	if len(touched) == 0 {
		return
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, sub := range s.subs {
		if !sub.watches(touched) {
			continue
		}
		select {
		case sub.ch <- struct{}{}:
		default:
		}
	}
}
