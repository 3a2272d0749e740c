package register

import "testing"

func TestTempAllocationReusesFreedSlot(t *testing.T) {
	d := NewDebrayAllocator(NewVarData())
	d.ResetTempFreeList(2)

	d.VarData.Classify(10, []int{0})
	d.VarData.Classify(11, []int{0})

	r1, err := d.MarkVar(10, HeadContext())
	if err != nil {
		t.Fatal(err)
	}
	if r1 != TempReg(1) {
		t.Fatalf("expected Temp(1), got %v", r1)
	}

	d.AddRegToFreeList(r1)

	d.VarData.Classify(12, []int{0})
	r3, err := d.MarkVar(12, HeadContext())
	if err != nil {
		t.Fatal(err)
	}
	if r3 != TempReg(1) {
		t.Fatalf("expected freed Temp(1) to be reused, got %v", r3)
	}
}

func TestPermVarAllocatesOnFirstUseAndStays(t *testing.T) {
	d := NewDebrayAllocator(NewVarData())
	d.VarData.Classify(20, []int{0, 1})

	r1, err := d.MarkVar(20, MidContext(0))
	if err != nil {
		t.Fatal(err)
	}
	if r1.Kind != Perm || r1.Num != 1 {
		t.Fatalf("expected Perm(1), got %v", r1)
	}

	r2, err := d.MarkVar(20, LastContext(1))
	if err != nil {
		t.Fatal(err)
	}
	if r2 != r1 {
		t.Fatalf("expected the same perm slot on second use, got %v vs %v", r2, r1)
	}
}

func TestPermVarFirstUseInTailRidesTemp(t *testing.T) {
	d := NewDebrayAllocator(NewVarData())
	d.ResetTempFreeList(0)
	d.VarData.Classify(30, []int{0, 2})

	reg, err := d.MarkVar(30, LastContext(2))
	if err != nil {
		t.Fatal(err)
	}
	if reg.Kind != Temp {
		t.Fatalf("expected a never-used permanent in tail position to ride a temp register, got %v", reg)
	}
	if d.PermCount() != 0 {
		t.Fatalf("expected no frame slot to be allocated, got PermCount=%d", d.PermCount())
	}
}

func TestExceedsMaxArityErrors(t *testing.T) {
	d := NewDebrayAllocator(NewVarData())
	d.maxReg = MaxArity
	d.VarData.Classify(40, []int{0})

	_, err := d.MarkVar(40, HeadContext())
	if err == nil {
		t.Fatal("expected ExceededMaxArity error")
	}
}

func TestMarkCutVarAllocatesPermSlot(t *testing.T) {
	d := NewDebrayAllocator(NewVarData())
	reg, err := d.MarkCutVar(50)
	if err != nil {
		t.Fatal(err)
	}
	if reg.Kind != Perm || reg.Num != 1 {
		t.Fatalf("expected Perm(1) for cut var, got %v", reg)
	}

	// A second mark of the same cut var must not allocate a second slot.
	reg2, err := d.MarkCutVar(50)
	if err != nil {
		t.Fatal(err)
	}
	if reg2 != reg {
		t.Fatalf("expected cut var slot to be stable, got %v vs %v", reg2, reg)
	}
}

func TestPushMissingVarsFlagsUnhitArms(t *testing.T) {
	d := NewDebrayAllocator(NewVarData())
	d.VarData.Classify(60, []int{0, 1})
	// one occurrence already consumed (e.g. bound in arm 0's head), one left
	d.VarData.Records[60].NumOccurrences = 2
	d.VarData.Records[60].RunningCount = 1

	frame := d.PushBranchFrame(2)
	frame.AddBranchOccurrence(60, 0)

	missing, _ := d.PushMissingVars(1)
	found := false
	for _, m := range missing {
		if m.VarNum == 60 && m.Arm == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a missing-var entry for var 60 in unhit arm 1, got %+v", missing)
	}
}

func TestMaxRegAllocatedTracksHighWaterMark(t *testing.T) {
	d := NewDebrayAllocator(NewVarData())
	d.VarData.Classify(70, []int{0})
	d.VarData.Classify(71, []int{0})

	if _, err := d.MarkVar(70, HeadContext()); err != nil {
		t.Fatal(err)
	}
	if _, err := d.MarkVar(71, HeadContext()); err != nil {
		t.Fatal(err)
	}
	if d.MaxRegAllocated() != 2 {
		t.Fatalf("expected max reg 2, got %d", d.MaxRegAllocated())
	}
}
