package tcp

import "testing"

func TestTablePushAndGet(t *testing.T) {
	var table Table[string]
	a := table.Push("a")
	b := table.Push("b")
	if v, ok := table.Get(a); !ok || v != "a" {
		t.Fatalf("Get(a) = %q, %v", v, ok)
	}
	if v, ok := table.Get(b); !ok || v != "b" {
		t.Fatalf("Get(b) = %q, %v", v, ok)
	}
	if table.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", table.Len())
	}
}

func TestTablePushChildRecordsParent(t *testing.T) {
	var table Table[string]
	parent := table.Push("socket")
	child := table.PushChild("reader", parent)
	got, ok := table.Parent(child)
	if !ok || got != parent {
		t.Fatalf("Parent(child) = %v, %v, want %v, true", got, ok, parent)
	}
	if _, ok := table.Parent(parent); ok {
		t.Fatalf("Parent(parent) should have no parent")
	}
}

func TestTableChildOutlivesParent(t *testing.T) {
	var table Table[string]
	parent := table.Push("socket")
	child := table.PushChild("reader", parent)
	table.Delete(parent)
	if v, ok := table.Get(child); !ok || v != "reader" {
		t.Fatalf("child should survive parent deletion, got %q, %v", v, ok)
	}
}

func TestTableDelete(t *testing.T) {
	var table Table[int]
	d := table.Push(42)
	v, ok := table.Delete(d)
	if !ok || v != 42 {
		t.Fatalf("Delete(d) = %d, %v", v, ok)
	}
	if _, ok := table.Get(d); ok {
		t.Fatalf("Get(d) should fail after Delete")
	}
	if table.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", table.Len())
	}
}

func TestTableRange(t *testing.T) {
	var table Table[int]
	want := map[Descriptor]int{}
	for i := 0; i < 8; i++ {
		want[table.Push(i)] = i
	}
	got := map[Descriptor]int{}
	table.Range(func(d Descriptor, v int) bool {
		got[d] = v
		return true
	})
	if len(got) != len(want) {
		t.Fatalf("Range produced %d entries, want %d", len(got), len(want))
	}
	for d, v := range want {
		if got[d] != v {
			t.Errorf("Range()[%d] = %d, want %d", d, got[d], v)
		}
	}
}

func TestTableGrowsBeyond64(t *testing.T) {
	var table Table[int]
	descs := make([]Descriptor, 200)
	for i := range descs {
		descs[i] = table.Push(i)
	}
	for i, d := range descs {
		v, ok := table.Get(d)
		if !ok || v != i {
			t.Fatalf("Get(%d) = %d, %v, want %d, true", d, v, ok, i)
		}
	}
}

func BenchmarkTablePush(b *testing.B) {
	var table Table[int]
	for i := 0; i < b.N; i++ {
		table.Push(i)
	}
}

func BenchmarkTableGet(b *testing.B) {
	var table Table[int]
	descs := make([]Descriptor, 1024)
	for i := range descs {
		descs[i] = table.Push(i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		table.Get(descs[i%len(descs)])
	}
}
