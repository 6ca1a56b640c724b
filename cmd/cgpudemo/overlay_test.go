package main

import (
	"testing"

	"github.com/gogpu/cgpu/imgui"
	"github.com/gogpu/cgpu/profiler"
)

func TestRect(t *testing.T) {
	l := &imgui.DrawList{}
	rect(l, 0, 0, 10, 10, 0xffffffff)
	rect(l, 20, 0, 30, 10, 0xff0000ff)
	if len(l.Vertices) != 8 {
		t.Fatalf("vertices = %d, want 8", len(l.Vertices))
	}
	want := []uint16{0, 1, 2, 0, 2, 3, 4, 5, 6, 4, 6, 7}
	for i, v := range want {
		if l.Indices[i] != v {
			t.Errorf("Indices[%d] = %d, want %d", i, l.Indices[i], v)
		}
	}
}

func TestTimingSamples(t *testing.T) {
	if got := timingSamples(nil); got != nil {
		t.Errorf("timingSamples(nil) = %v", got)
	}
	r := &profiler.Result{Samples: []profiler.Sample{{Label: "scene", Micros: 120}}}
	if got := timingSamples(r); len(got) != 1 || got[0].Label != "scene" {
		t.Errorf("timingSamples() = %v", got)
	}
}
