package com

import (
	"fmt"
	"testing"
)

type testPeer struct {
	id     int
	closed bool
}

func TestPointerValue(t *testing.T) {
	m := NewMap[string, *testPeer]()
	c := testPeer{id: 1}
	m.Put("1", &c)
	fc, _ := m.Find("1")
	c.closed = true
	fc2, _ := m.Find("1")

	if !fc.closed || !fc2.closed {
		t.Errorf("not expected change, o: %v != %v != %v", c.closed, fc.closed, fc2.closed)
	}
}

func TestDrain(t *testing.T) {
	m := NewMap[string, *testPeer]()
	for i := 0; i < 5; i++ {
		m.Put(fmt.Sprintf("%v", i), &testPeer{id: i})
	}
	n := 0
	m.Drain(func(p *testPeer) { p.closed = true; n++ })
	if n != 5 || !m.IsEmpty() {
		t.Errorf("drain failed, n: %v, empty: %v", n, m.IsEmpty())
	}
}

func TestListIsCopy(t *testing.T) {
	m := NewMap[string, *testPeer]()
	m.Put("a", &testPeer{id: 1})
	l := m.List()
	delete(l, "a")
	if !m.Has("a") {
		t.Errorf("list should not share storage with the map")
	}
}
