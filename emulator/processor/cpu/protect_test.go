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
)

// enterPM flips the CPU into protected mode with real-mode compatible
// caches, the way LMSW does.
func enterPM(p *CPU) {
	p.msw |= 1
	p.protectedMode = true
	for seg, sel := range [4]uint16{segES: p.ES, segCS: p.CS, segSS: p.SS, segDS: p.DS} {
		p.segCache[seg] = descriptorCache{
			base:   uint32(sel) << 4,
			limit:  0xFFFF,
			access: 0x93,
			valid:  true,
		}
	}
}

func writeDescriptor(p *CPU, table memory.Pointer, index int, base uint32, limit uint16, access byte) {
	addr := table + memory.Pointer(index*8)
	p.WriteWord(addr, limit)
	p.WriteByte(addr+2, byte(base))
	p.WriteByte(addr+3, byte(base>>8))
	p.WriteByte(addr+4, byte(base>>16))
	p.WriteByte(addr+5, access)
	p.WriteWord(addr+6, 0)
}

func writeGate(p *CPU, table memory.Pointer, vector int, offset, selector uint16, access byte) {
	addr := table + memory.Pointer(vector*8)
	p.WriteWord(addr, offset)
	p.WriteWord(addr+2, selector)
	p.WriteByte(addr+4, 0)
	p.WriteByte(addr+5, access)
	p.WriteWord(addr+6, 0)
}

func TestLMSWEntersProtectedMode(t *testing.T) {
	p := newTestCPU()
	p.DS, p.ES, p.SS = 0x2000, 0x3000, 0x4000
	p.AX = 1
	writeCode(p, 0x0F, 0x01, 0xF0) // LMSW AX
	step(t, p)

	if !p.protectedMode || p.msw&1 == 0 {
		t.Fatal("protected mode not entered")
	}
	for seg, sel := range [4]uint16{segES: p.ES, segCS: p.CS, segSS: p.SS, segDS: p.DS} {
		c := p.segCache[seg]
		if !c.valid || c.base != uint32(sel)<<4 || c.limit != 0xFFFF || c.access != 0x93 {
			t.Errorf("cache %d = %+v", seg, c)
		}
	}
}

func TestLMSWCannotLeaveProtectedMode(t *testing.T) {
	p := newTestCPU()
	enterPM(p)
	p.AX = 0
	writeCode(p, 0x0F, 0x01, 0xF0) // LMSW AX
	step(t, p)

	if p.msw&1 == 0 || !p.protectedMode {
		t.Error("LMSW cleared the protected mode bit")
	}
}

func TestFarJumpThroughGDT(t *testing.T) {
	p := newTestCPU()

	// GDT pointer block at 0x2800, table at 0x3000.
	p.WriteWord(0x2800, 0x1F)
	p.WriteByte(0x2802, 0x00)
	p.WriteByte(0x2803, 0x30)
	p.WriteByte(0x2804, 0x00)
	writeDescriptor(p, 0x3000, 1, 0x9000, 0xFFFF, 0x9A)
	p.WriteByte(0x9020, 0xF4) // HLT at the jump target

	p.AX = 1
	writeCode(p,
		0x0F, 0x01, 0x16, 0x00, 0x28, // LGDT [0x2800]
		0x0F, 0x01, 0xF0, // LMSW AX
		0xEA, 0x20, 0x00, 0x08, 0x00) // JMP 0x08:0x20

	for i := 0; i < 4; i++ {
		step(t, p)
	}

	if p.CS != 0x08 || p.IP != 0x21 {
		t.Errorf("CS:IP = 0x%X:0x%X", p.CS, p.IP)
	}
	if c := p.segCache[segCS]; !c.valid || c.base != 0x9000 || c.access != 0x9A {
		t.Errorf("CS cache = %+v", c)
	}
	if !p.halted {
		t.Error("target HLT not reached")
	}
}

func TestDescriptorCacheCoherence(t *testing.T) {
	p := newTestCPU()
	enterPM(p)
	p.gdtr = descriptorTable{base: 0x3000, limit: 0xFF}
	writeDescriptor(p, 0x3000, 1, 0x12340, 0x01FF, 0x92)

	if !p.loadDescriptor(segDS, 0x08) {
		t.Fatal("descriptor load failed")
	}
	if p.DS != 0x08 {
		t.Fatalf("DS = 0x%X", p.DS)
	}
	if c := p.segCache[segDS]; !c.valid || c.base != 0x12340 || c.limit != 0x01FF {
		t.Fatalf("DS cache = %+v", c)
	}

	if got := p.physAddress(p.DS, 0x100); got != 0x12440 {
		t.Errorf("translate = 0x%X, want 0x12440", got)
	}

	rec := &intRecorder{}
	p.InstallInterruptHandler(13, rec)
	if got := p.physAddress(p.DS, 0x300); got != 0 {
		t.Errorf("out of limit translate = 0x%X, want 0", got)
	}
	if len(rec.got) != 1 || rec.got[0] != 13 {
		t.Errorf("interrupts = %v, want [13]", rec.got)
	}
}

func TestNullSelectorRules(t *testing.T) {
	p := newTestCPU()
	enterPM(p)

	rec := &intRecorder{}
	p.InstallInterruptHandler(13, rec)

	if p.loadDescriptor(segSS, 0) {
		t.Error("null SS load should fault")
	}
	if len(rec.got) != 1 || rec.got[0] != 13 {
		t.Errorf("interrupts = %v, want [13]", rec.got)
	}

	if !p.loadDescriptor(segDS, 0) {
		t.Error("null DS load should be accepted")
	}
	if p.segCache[segDS].valid {
		t.Error("null DS load should invalidate the cache")
	}
	if p.DS != 0 {
		t.Errorf("DS = 0x%X, want 0", p.DS)
	}
}

func TestNotPresentSegment(t *testing.T) {
	p := newTestCPU()
	enterPM(p)
	p.gdtr = descriptorTable{base: 0x3000, limit: 0xFF}
	writeDescriptor(p, 0x3000, 1, 0x5000, 0xFFFF, 0x12) // data, present bit clear

	rec := &intRecorder{}
	p.InstallInterruptHandler(11, rec)

	if p.loadDescriptor(segDS, 0x08) {
		t.Error("not-present load should fault")
	}
	if len(rec.got) != 1 || rec.got[0] != 11 {
		t.Errorf("interrupts = %v, want [11]", rec.got)
	}
}

func TestLoadTaskRegister(t *testing.T) {
	p := newTestCPU()
	enterPM(p)
	p.gdtr = descriptorTable{base: 0x3000, limit: 0xFF}
	writeDescriptor(p, 0x3000, 3, 0x4000, 0x2B, 0x81) // available 286 TSS
	p.WriteWord(0x4002, 0x7000)                       // sp0
	p.WriteWord(0x4004, 0x0008)                       // ss0

	p.loadTR(0x18)

	if !p.trCache.valid || p.trCache.base != 0x4000 {
		t.Fatalf("TR cache = %+v", p.trCache)
	}
	if p.trCache.sp0 != 0x7000 || p.trCache.ss0 != 0x0008 {
		t.Errorf("sp0:ss0 = 0x%X:0x%X", p.trCache.sp0, p.trCache.ss0)
	}
	if p.ReadByte(0x3000+3*8+5)&0x02 == 0 {
		t.Error("busy bit not set in the GDT slot")
	}
}

func TestDoubleFaultEscalation(t *testing.T) {
	p := newTestCPU()
	enterPM(p)
	p.gdtr = descriptorTable{base: 0x3000, limit: 0xFF}
	p.idtr = descriptorTable{base: 0x2000, limit: 0x3FF}

	writeDescriptor(p, 0x3000, 1, 0, 0xFFFF, 0x9A)       // valid code segment
	writeDescriptor(p, 0x3000, 2, 0, 0xFFFF, 0x0A)       // code, not present
	writeGate(p, 0x2000, 13, 0x300, 0x10, 0x86)          // GP gate -> bad segment
	writeGate(p, 0x2000, 8, 0x500, 0x08, 0x86)           // double fault gate
	writeGate(p, 0x2000, 11, 0x400, 0x10, 0x86)          // NP gate (never reached)

	p.doInterrupt(13)

	if p.CS != 0x08 || p.IP != 0x500 {
		t.Errorf("CS:IP = 0x%X:0x%X, want 0x8:0x500", p.CS, p.IP)
	}
	if p.faultInFlight || p.doubleFaultInFlight {
		t.Error("fault latches still set after delivery")
	}
	if !p.protectedMode {
		t.Error("machine was reset; expected a double fault, not a triple fault")
	}
}

func TestTripleFaultResets(t *testing.T) {
	p := newTestCPU()
	enterPM(p)
	p.gdtr = descriptorTable{base: 0x3000, limit: 0xFF}
	p.idtr = descriptorTable{base: 0x2000, limit: 0x07} // only vector 0 fits

	p.doInterrupt(13)

	if p.protectedMode {
		t.Error("expected reset to real mode")
	}
	if p.CS != 0xF000 || p.IP != 0xFFF0 {
		t.Errorf("CS:IP = 0x%X:0x%X, want reset vector", p.CS, p.IP)
	}
}

func TestLoadAll(t *testing.T) {
	p := newTestCPU()

	const addr = memory.Pointer(0x800)
	p.WriteWord(addr+0x40, 0x1234) // AX
	p.WriteWord(addr+0x3E, 0x5678) // CX
	p.WriteWord(addr+0x42, 0x0002) // flags
	p.WriteWord(addr+0x44, 0x2000) // IP
	p.WriteWord(addr+0x4C, 0x0100) // CS
	p.WriteWord(addr+0x24, 0xFFFF) // CS limit
	p.WriteByte(addr+0x20, 0x9B)   // CS access
	p.WriteByte(addr+0x21, 0x00)   // CS base 0x5000
	p.WriteByte(addr+0x22, 0x50)
	p.WriteByte(addr+0x23, 0x00)
	p.WriteWord(addr+0x66, 0x0000) // MSW

	writeCode(p, 0x0F, 0x05) // LOADALL
	step(t, p)

	if p.AX != 0x1234 || p.CX != 0x5678 {
		t.Errorf("AX:CX = 0x%X:0x%X", p.AX, p.CX)
	}
	if p.CS != 0x0100 || p.IP != 0x2000 {
		t.Errorf("CS:IP = 0x%X:0x%X", p.CS, p.IP)
	}
	if c := p.segCache[segCS]; !c.valid || c.base != 0x5000 || c.access != 0x9B {
		t.Errorf("CS cache = %+v", c)
	}
	if p.protectedMode {
		t.Error("MSW of 0 should leave the CPU in real mode")
	}
}

func TestGroup6OutsideProtectedMode(t *testing.T) {
	p := newTestCPU()

	rec := &intRecorder{}
	p.InstallInterruptHandler(6, rec)

	writeCode(p, 0x0F, 0x00, 0xC0) // SLDT AX in real mode
	step(t, p)

	if len(rec.got) != 1 || rec.got[0] != 6 {
		t.Errorf("interrupts = %v, want [6]", rec.got)
	}
}

func TestSgdt(t *testing.T) {
	p := newTestCPU()
	p.gdtr = descriptorTable{base: 0x123456, limit: 0x7FF}

	writeCode(p, 0x0F, 0x01, 0x06, 0x00, 0x20) // SGDT [0x2000]
	step(t, p)

	if got := p.getMem16(0, 0x2000); got != 0x7FF {
		t.Errorf("stored limit = 0x%X", got)
	}
	base := uint32(p.getMem8(0, 0x2002)) | uint32(p.getMem8(0, 0x2003))<<8 | uint32(p.getMem8(0, 0x2004))<<16
	if base != 0x123456 {
		t.Errorf("stored base = 0x%X", base)
	}
}
