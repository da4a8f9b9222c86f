package surface

import (
	"errors"
	"testing"

	"github.com/wlcore/compositor/internal/gmath"
)

func TestAssignRoleOnce(t *testing.T) {
	s := New(1, 0)
	if err := s.AssignRole(RoleToplevel); err != nil {
		t.Fatalf("first AssignRole error = %v", err)
	}
	if s.Role != RoleToplevel {
		t.Errorf("Role = %v, want RoleToplevel", s.Role)
	}
}

func TestAssignRoleTwiceIsProtocolError(t *testing.T) {
	s := New(1, 0)
	if err := s.AssignRole(RoleToplevel); err != nil {
		t.Fatalf("first AssignRole error = %v", err)
	}
	err := s.AssignRole(RoleLayer)
	if !errors.Is(err, ErrRoleAlreadyAssigned) {
		t.Fatalf("second AssignRole error = %v, want ErrRoleAlreadyAssigned", err)
	}
	if s.Role != RoleToplevel {
		t.Errorf("Role after rejected reassignment = %v, want RoleToplevel (no state change)", s.Role)
	}
}

func TestCommitAtomicity(t *testing.T) {
	s := New(1, 0)
	buf := &Buffer{Kind: BufferKindSHM, Width: 256, Height: 256}
	s.Attach(buf)
	s.AddDamageSurface(gmath.NewRect(0, 0, 256, 256))
	s.RequestFrameCallback(FrameCallback{ID: 42})

	result := s.Commit()

	if !result.NewBuffer {
		t.Error("NewBuffer = false, want true on first commit with a buffer")
	}
	if result.Buffer != buf {
		t.Errorf("result.Buffer = %v, want %v", result.Buffer, buf)
	}
	if s.Current.Buffer != buf {
		t.Error("Current.Buffer not promoted from pending")
	}
	if len(s.Pending.FrameCallbacks) != 0 {
		t.Error("pending frame callbacks not cleared after commit")
	}
	if len(s.Current.Damage.Surface) != 0 {
		t.Error("current damage not cleared after commit latch")
	}
}

func TestCommitStickyAttributes(t *testing.T) {
	s := New(1, 0)
	region := gmath.NewRect(0, 0, 100, 100)
	s.SetInputRegion(&region)
	s.Commit()

	// Next commit doesn't touch input region; it must persist.
	s.Attach(&Buffer{Kind: BufferKindSHM})
	s.Commit()

	if s.Current.InputRegion == nil || *s.Current.InputRegion != region {
		t.Error("sticky input region did not persist across commits")
	}
}

func TestCommitReleasesReplacedBuffer(t *testing.T) {
	s := New(1, 0)
	buf1 := &Buffer{Kind: BufferKindSHM}
	s.Attach(buf1)
	s.Commit()

	buf2 := &Buffer{Kind: BufferKindSHM}
	s.Attach(buf2)
	s.Commit()

	if !buf1.Released() {
		t.Error("replaced buffer was not marked released")
	}
	if buf2.Released() {
		t.Error("newly attached buffer should not be released yet")
	}
}

func TestCommitGenerationIncrementsOnlyOnNewBuffer(t *testing.T) {
	s := New(1, 0)
	buf := &Buffer{Kind: BufferKindSHM}
	s.Attach(buf)
	s.Commit()
	gen1 := s.Generation()

	// Commit again without attaching a new buffer.
	s.AddDamageSurface(gmath.NewRect(0, 0, 10, 10))
	s.Commit()
	gen2 := s.Generation()

	if gen1 != gen2 {
		t.Errorf("generation changed (%d -> %d) without a new buffer attach", gen1, gen2)
	}
}

func TestDamageUnion(t *testing.T) {
	var d Damage
	d.Union(Damage{Surface: []gmath.Rect{gmath.NewRect(0, 0, 10, 10)}})
	d.Union(Damage{Surface: []gmath.Rect{gmath.NewRect(20, 20, 5, 5)}})
	bounds := d.Bounds()
	want := gmath.NewRect(0, 0, 25, 25)
	if bounds != want {
		t.Errorf("Bounds() = %v, want %v", bounds, want)
	}
}

func TestRoleString(t *testing.T) {
	tests := []struct {
		role Role
		want string
	}{
		{RoleUnassigned, "unassigned"},
		{RoleToplevel, "toplevel"},
		{RoleCursor, "cursor"},
		{RoleSubsurface, "subsurface"},
	}
	for _, tt := range tests {
		if got := tt.role.String(); got != tt.want {
			t.Errorf("Role(%d).String() = %q, want %q", tt.role, got, tt.want)
		}
	}
}
