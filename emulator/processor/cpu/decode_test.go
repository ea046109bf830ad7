/*
Copyright (c) 2019-2021 Andreas T Jonsson

This software is provided 'as-is', without any express or implied
warranty. In no event will the authors be held liable for any damages
arising from the use of this software.

Permission is granted to anyone to use this software for any purpose,
including commercial applications, and to alter it and redistribute it
freely, subject to the following restrictions:

1. The origin of this software must not be misrepresented; you must not
   claim that you wrote the original software. If you use this software
   in a product, an acknowledgment in the product documentation would be
   appreciated but is not required.
2. Altered source versions must be plainly marked as such, and must not be
   misrepresented as being the original software.
3. This notice may not be removed or altered from any source distribution.
*/

package cpu

import (
	"testing"

	"github.com/andreas-jonsson/virtual286/emulator/memory"
	"github.com/andreas-jonsson/virtual286/emulator/peripheral"
	"github.com/andreas-jonsson/virtual286/emulator/peripheral/pic"
	"github.com/andreas-jonsson/virtual286/emulator/peripheral/ram"
	"github.com/andreas-jonsson/virtual286/emulator/processor"
)

func newTestCPU() *CPU {
	p := NewCPU([]peripheral.Peripheral{
		&ram.Device{Clear: true},
		&pic.Device{},
	})
	p.Reset()
	p.CS, p.IP = 0, 0x1000
	p.SS, p.SP = 0, 0x8000
	return p
}

func writeCode(p *CPU, code ...byte) {
	for i, b := range code {
		p.WriteByte(memory.NewPointer(p.CS, p.IP+uint16(i)), b)
	}
}

func step(t *testing.T, p *CPU) {
	t.Helper()
	if _, err := p.Step(); err != nil && err != processor.ErrCPUHalt {
		t.Fatal(err)
	}
}

func TestAddOverflow(t *testing.T) {
	p := newTestCPU()
	p.AX, p.BX = 0x7FFF, 0x0001
	writeCode(p, 0x01, 0xD8) // ADD AX,BX
	step(t, p)

	if p.AX != 0x8000 {
		t.Errorf("AX = 0x%X, want 0x8000", p.AX)
	}
	if p.ZF || !p.SF || !p.OF || p.CF || !p.AF {
		t.Errorf("flags = ZF:%v SF:%v OF:%v CF:%v AF:%v", p.ZF, p.SF, p.OF, p.CF, p.AF)
	}
}

func TestSubBorrow(t *testing.T) {
	p := newTestCPU()
	p.SetAL(0x10)
	p.SetBL(0x20)
	writeCode(p, 0x28, 0xD8) // SUB AL,BL
	step(t, p)

	if p.AL() != 0xF0 {
		t.Errorf("AL = 0x%X, want 0xF0", p.AL())
	}
	if !p.CF || !p.SF || p.OF || p.AF {
		t.Errorf("flags = CF:%v SF:%v OF:%v AF:%v", p.CF, p.SF, p.OF, p.AF)
	}
}

func TestShlCarryOverflow(t *testing.T) {
	p := newTestCPU()
	p.AX = 0xC000
	writeCode(p, 0xD1, 0xE0) // SHL AX,1
	step(t, p)

	if p.AX != 0x8000 {
		t.Errorf("AX = 0x%X, want 0x8000", p.AX)
	}
	if !p.CF || p.OF {
		t.Errorf("flags = CF:%v OF:%v", p.CF, p.OF)
	}
}

func TestMulByte(t *testing.T) {
	p := newTestCPU()
	p.SetAL(0x80)
	p.SetBL(0x02)
	writeCode(p, 0xF6, 0xE3) // MUL BL
	step(t, p)

	if p.AX != 0x0100 {
		t.Errorf("AX = 0x%X, want 0x0100", p.AX)
	}
	if !p.CF || !p.OF {
		t.Errorf("flags = CF:%v OF:%v", p.CF, p.OF)
	}
}

func TestParityFlag(t *testing.T) {
	p := newTestCPU()
	for r := 0; r < 256; r++ {
		p.updateFlagsSZP8(byte(r))

		bits := 0
		for v := r; v != 0; v >>= 1 {
			bits += v & 1
		}
		if want := bits%2 == 0; p.PF != want {
			t.Fatalf("PF after result 0x%X = %v, want %v", r, p.PF, want)
		}
	}
}

func TestPushPopRoundTrip(t *testing.T) {
	p := newTestCPU()
	for _, v := range []uint16{0, 1, 0x8000, 0xBEEF, 0xFFFF} {
		sp := p.SP
		p.push16(v)
		if got := p.pop16(); got != v {
			t.Errorf("pop16() = 0x%X, want 0x%X", got, v)
		}
		if p.SP != sp {
			t.Errorf("SP = 0x%X, want 0x%X", p.SP, sp)
		}
	}
}

func TestRepMovsb(t *testing.T) {
	p := newTestCPU()
	const n = 5
	p.CX = n
	p.DS, p.SI = 0, 0x2000
	p.ES, p.DI = 0, 0x3000
	for i := 0; i < n; i++ {
		p.WriteByte(memory.Pointer(0x2000+i), byte('A'+i))
	}
	writeCode(p, 0xF3, 0xA4) // REP MOVSB

	// Each iteration rewinds IP, so the repeat yields to the outer loop.
	for i := 0; i <= n; i++ {
		step(t, p)
	}

	if p.CX != 0 {
		t.Errorf("CX = %d, want 0", p.CX)
	}
	if p.SI != 0x2000+n || p.DI != 0x3000+n {
		t.Errorf("SI:DI = 0x%X:0x%X", p.SI, p.DI)
	}
	if p.IP != 0x1002 {
		t.Errorf("IP = 0x%X, want 0x1002", p.IP)
	}
	for i := 0; i < n; i++ {
		if got := p.ReadByte(memory.Pointer(0x3000 + i)); got != byte('A'+i) {
			t.Errorf("byte %d = 0x%X, want 0x%X", i, got, 'A'+i)
		}
	}
}

func TestRepeCmpsbTermination(t *testing.T) {
	p := newTestCPU()
	p.CX = 8
	p.DS, p.SI = 0, 0x2000
	p.ES, p.DI = 0, 0x3000
	for i := 0; i < 8; i++ {
		p.WriteByte(memory.Pointer(0x2000+i), 0x11)
		p.WriteByte(memory.Pointer(0x3000+i), 0x11)
	}
	p.WriteByte(0x2003, 0x22) // first mismatch at index 3
	writeCode(p, 0xF3, 0xA6)  // REPE CMPSB

	for i := 0; i < 4; i++ {
		step(t, p)
	}

	if p.ZF {
		t.Error("ZF set after mismatch")
	}
	if p.CX != 4 {
		t.Errorf("CX = %d, want 4", p.CX)
	}
	if p.IP != 0x1002 {
		t.Errorf("IP = 0x%X, want 0x1002", p.IP)
	}
}

func TestPushaKeepsOriginalSP(t *testing.T) {
	p := newTestCPU()
	p.AX, p.CX, p.DX, p.BX = 1, 2, 3, 4
	p.BP, p.SI, p.DI = 5, 6, 7
	sp := p.SP
	writeCode(p, 0x60) // PUSHA
	step(t, p)

	if got := p.getMem16(p.SS, sp-10); got != sp {
		t.Errorf("stored SP = 0x%X, want 0x%X", got, sp)
	}

	writeCode(p, 0x61) // POPA
	step(t, p)
	if p.SP != sp {
		t.Errorf("SP = 0x%X, want 0x%X", p.SP, sp)
	}
	if p.AX != 1 || p.CX != 2 || p.DX != 3 || p.BX != 4 {
		t.Error("general registers not restored")
	}
}

func TestA20Gating(t *testing.T) {
	p := newTestCPU()
	p.WriteByte(0x000000, 0x55)

	p.a20.Enabled = true
	p.WriteByte(0x100000, 0xAA)
	if got := p.getMem8(0xFFFF, 0x10); got != 0xAA {
		t.Errorf("HMA read with A20 open = 0x%X, want 0xAA", got)
	}

	p.a20.Enabled = false
	if got := p.getMem8(0xFFFF, 0x10); got != 0x55 {
		t.Errorf("wrapped read with A20 closed = 0x%X, want 0x55", got)
	}
}

func TestHltWakesOnInterrupt(t *testing.T) {
	p := newTestCPU()
	p.IF = true

	// Vector 8 -> 0x0000:0x4000
	p.WriteWord(8*4, 0x4000)
	p.WriteWord(8*4+2, 0)
	p.WriteByte(0x4000, 0x90) // NOP

	writeCode(p, 0xF4) // HLT
	step(t, p)
	if !p.halted {
		t.Fatal("expected halt latch")
	}
	if _, err := p.Step(); err != processor.ErrCPUHalt {
		t.Fatalf("Step() = %v, want ErrCPUHalt", err)
	}

	p.pic.IRQ(0)
	step(t, p)
	if p.halted {
		t.Fatal("halt latch not cleared by interrupt")
	}
	if p.CS != 0 || p.IP != 0x4001 {
		// The handler's first instruction has already run.
		t.Errorf("CS:IP = 0x%X:0x%X", p.CS, p.IP)
	}
}

func TestTrapFlagDelaysOneInstruction(t *testing.T) {
	p := newTestCPU()

	// Vector 1 -> 0x0000:0x5000
	p.WriteWord(1*4, 0x5000)
	p.WriteWord(1*4+2, 0)
	p.WriteByte(0x5000, 0x90) // NOP

	p.TF = true
	writeCode(p, 0x90, 0x90) // NOP, NOP
	step(t, p)
	if p.IP != 0x1001 {
		t.Fatalf("IP = 0x%X, want 0x1001", p.IP)
	}

	// The latch fires before the second fetch.
	step(t, p)
	if p.IP != 0x5001 {
		t.Errorf("IP = 0x%X, want 0x5001", p.IP)
	}
}

func TestDivideByZero(t *testing.T) {
	p := newTestCPU()

	// Vector 0 -> 0x0000:0x6000
	p.WriteWord(0, 0x6000)
	p.WriteWord(2, 0)

	p.AX = 0x1234
	p.SetBL(0)
	writeCode(p, 0xF6, 0xF3) // DIV BL
	step(t, p)

	if p.IP != 0x6000 {
		t.Errorf("IP = 0x%X, want 0x6000", p.IP)
	}
	if ret := p.getMem16(p.SS, p.SP); ret != 0x1002 {
		t.Errorf("pushed IP = 0x%X, want 0x1002", ret)
	}
}

func TestXlatAndSalc(t *testing.T) {
	p := newTestCPU()
	p.BX = 0x2000
	p.SetAL(3)
	p.WriteByte(0x2003, 0x7E)
	writeCode(p, 0xD7) // XLAT
	step(t, p)
	if p.AL() != 0x7E {
		t.Errorf("AL = 0x%X, want 0x7E", p.AL())
	}

	p.CF = true
	writeCode(p, 0xD6) // SALC
	step(t, p)
	if p.AL() != 0xFF {
		t.Errorf("AL = 0x%X, want 0xFF", p.AL())
	}
}

func TestEnterLeave(t *testing.T) {
	p := newTestCPU()
	p.BP = 0x1111
	sp := p.SP
	writeCode(p, 0xC8, 0x10, 0x00, 0x00) // ENTER 16,0
	step(t, p)

	if p.SP != sp-2-16 {
		t.Errorf("SP = 0x%X, want 0x%X", p.SP, sp-2-16)
	}
	if p.BP != sp-2 {
		t.Errorf("BP = 0x%X, want 0x%X", p.BP, sp-2)
	}

	writeCode(p, 0xC9) // LEAVE
	step(t, p)
	if p.SP != sp || p.BP != 0x1111 {
		t.Errorf("SP:BP = 0x%X:0x%X after LEAVE", p.SP, p.BP)
	}
}

func TestSegmentOverridePrefix(t *testing.T) {
	p := newTestCPU()
	p.ES = 0x0400
	p.BX = 0x10
	p.WriteByte(memory.NewPointer(0x0400, 0x10), 0x42)
	writeCode(p, 0x26, 0x8A, 0x07) // MOV AL,ES:[BX]
	step(t, p)
	if p.AL() != 0x42 {
		t.Errorf("AL = 0x%X, want 0x42", p.AL())
	}
}

func TestTooManyPrefixes(t *testing.T) {
	p := newTestCPU()

	rec := &intRecorder{}
	p.InstallInterruptHandler(13, rec)
	p.InstallInterruptHandler(6, rec)

	code := make([]byte, 12)
	for i := range code {
		code[i] = 0x26 // ES:
	}
	writeCode(p, code...)
	step(t, p)

	if len(rec.got) == 0 || rec.got[0] != 13 {
		t.Errorf("interrupts = %v, want leading 13", rec.got)
	}
}

func TestInterruptRoundTrip(t *testing.T) {
	p := newTestCPU()

	// Vector 0x21 -> 0x0000:0x2000 where an IRET is waiting.
	p.WriteWord(0x21*4, 0x2000)
	p.WriteWord(0x21*4+2, 0)
	p.WriteByte(0x2000, 0xCF) // IRET

	p.IF = true
	writeCode(p, 0xCD, 0x21, 0x90) // INT 0x21; NOP
	step(t, p)
	if p.IP != 0x2000 || p.IF {
		t.Fatalf("IP = 0x%X IF = %v inside handler", p.IP, p.IF)
	}
	step(t, p) // IRET
	if p.IP != 0x1002 {
		t.Fatalf("IP = 0x%X, want 0x1002", p.IP)
	}
	if !p.IF {
		t.Error("IRET did not restore IF")
	}
	step(t, p) // NOP
	if p.IP != 0x1003 {
		t.Errorf("IP = 0x%X, want 0x1003", p.IP)
	}
}

type intRecorder struct {
	got []int
}

func (r *intRecorder) HandleInterrupt(n int) error {
	r.got = append(r.got, n)
	return nil
}
