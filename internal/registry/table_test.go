package registry

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/dkeye/mediactl/internal/domain"
)

func md(user, room string) domain.Metadata {
	return domain.Metadata{UserID: domain.UserID(user), RoomID: domain.RoomID(room)}
}

func checkIntegrity(t *testing.T, tbl *Table[string]) {
	t.Helper()
	if err := tbl.CheckIntegrity(); err != nil {
		t.Fatalf("integrity violation: %v", err)
	}
}

func TestPutGetRemove(t *testing.T) {
	tbl := NewTable[string]()
	tbl.Put("t1", "res", md("alice", "room-1"))

	got, ok := tbl.Get("t1")
	if !ok || got != "res" {
		t.Fatalf("Get(t1) = %q, %v, want res, true", got, ok)
	}
	m, ok := tbl.Meta("t1")
	if !ok || m.UserID != "alice" || m.RoomID != "room-1" {
		t.Fatalf("Meta(t1) = %+v, %v", m, ok)
	}
	checkIntegrity(t, tbl)

	r, m, removed := tbl.Remove("t1")
	if !removed || r != "res" || m.UserID != "alice" {
		t.Fatalf("Remove(t1) = %q, %+v, %v", r, m, removed)
	}
	if _, ok := tbl.Get("t1"); ok {
		t.Fatal("resource still present after Remove")
	}
	if tbl.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", tbl.Len())
	}
	checkIntegrity(t, tbl)
}

func TestRemoveAbsentIsNoop(t *testing.T) {
	tbl := NewTable[string]()
	tbl.Put("t1", "res", md("alice", "room-1"))

	if _, _, removed := tbl.Remove("nope"); removed {
		t.Fatal("Remove of absent id reported removal")
	}
	// Double remove of the same id.
	tbl.Remove("t1")
	if _, _, removed := tbl.Remove("t1"); removed {
		t.Fatal("second Remove reported removal")
	}
	checkIntegrity(t, tbl)
}

func TestOwnershipValidation(t *testing.T) {
	tbl := NewTable[string]()
	tbl.Put("t1", "res", md("alice", "room-1"))

	tests := []struct {
		name string
		user domain.UserID
		room domain.RoomID
		want bool
	}{
		{"exact match", "alice", "room-1", true},
		{"wrong user", "bob", "room-1", false},
		{"wrong room", "alice", "room-2", false},
		{"both wrong", "bob", "room-2", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tbl.ValidateOwnership("t1", tt.user, tt.room); got != tt.want {
				t.Errorf("ValidateOwnership = %v, want %v", got, tt.want)
			}
		})
	}
	if tbl.ValidateOwnership("absent", "alice", "room-1") {
		t.Error("ValidateOwnership passed for absent id")
	}
}

func TestIndexSnapshots(t *testing.T) {
	tbl := NewTable[string]()
	tbl.Put("a1", "x", md("alice", "room-1"))
	tbl.Put("a2", "x", md("alice", "room-2"))
	tbl.Put("b1", "x", md("bob", "room-1"))

	gotUser := tbl.MembersByUser("alice")
	sort.Strings(gotUser)
	if len(gotUser) != 2 || gotUser[0] != "a1" || gotUser[1] != "a2" {
		t.Fatalf("MembersByUser(alice) = %v", gotUser)
	}

	gotRoom := tbl.MembersByRoom("room-1")
	sort.Strings(gotRoom)
	if len(gotRoom) != 2 || gotRoom[0] != "a1" || gotRoom[1] != "b1" {
		t.Fatalf("MembersByRoom(room-1) = %v", gotRoom)
	}

	if got := tbl.MembersByUser("nobody"); len(got) != 0 {
		t.Fatalf("MembersByUser(nobody) = %v, want empty", got)
	}
	checkIntegrity(t, tbl)
}

func TestEmptyIndexSetsArePruned(t *testing.T) {
	tbl := NewTable[string]()
	tbl.Put("a1", "x", md("alice", "room-1"))
	tbl.Put("b1", "x", md("bob", "room-1"))

	tbl.Remove("a1")
	checkIntegrity(t, tbl)

	tbl.Remove("b1")
	checkIntegrity(t, tbl)
	if n := len(tbl.byUser); n != 0 {
		t.Fatalf("byUser holds %d sets after full removal", n)
	}
	if n := len(tbl.byRoom); n != 0 {
		t.Fatalf("byRoom holds %d sets after full removal", n)
	}
}

func TestConcurrentChurn(t *testing.T) {
	tbl := NewTable[int]()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			user := domain.UserID(fmt.Sprintf("user-%d", g%4))
			room := domain.RoomID(fmt.Sprintf("room-%d", g%2))
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("res-%d-%d", g, i)
				tbl.Put(id, i, domain.Metadata{UserID: user, RoomID: room})
				tbl.ValidateOwnership(id, user, room)
				tbl.Remove(id)
			}
		}(g)
	}
	wg.Wait()

	if tbl.Len() != 0 {
		t.Fatalf("Len() = %d after churn, want 0", tbl.Len())
	}
	if err := tbl.CheckIntegrity(); err != nil {
		t.Fatalf("integrity violation after churn: %v", err)
	}
}
