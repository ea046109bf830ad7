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
	"log"

	"github.com/andreas-jonsson/virtual286/emulator/memory"
)

// physAddress turns seg:off into a 24-bit physical address. In protected
// mode the segment value is matched back to a segment register and
// translated through its descriptor cache; a failed translation raises
// general protection and yields address 0.
func (p *CPU) physAddress(seg, offset uint16) memory.Pointer {
	if !p.protectedMode {
		return p.a20.Mask(memory.Pointer(uint32(seg)<<4 + uint32(offset)))
	}

	var cache *descriptorCache
	switch seg {
	case p.CS:
		cache = &p.segCache[segCS]
	case p.DS:
		cache = &p.segCache[segDS]
	case p.ES:
		cache = &p.segCache[segES]
	case p.SS:
		cache = &p.segCache[segSS]
	}

	if cache == nil || !cache.valid || offset > cache.limit {
		p.doInterrupt(13)
		return 0
	}
	return memory.Pointer(cache.base + uint32(offset))
}

func (p *CPU) readDescriptorBase(addr memory.Pointer) uint32 {
	return uint32(p.ReadByte(addr)) | uint32(p.ReadByte(addr+1))<<8 | uint32(p.ReadByte(addr+2))<<16
}

// descriptorInfo reads a raw descriptor without any fault side effects.
// It reports false for a null selector or one outside its table.
func (p *CPU) descriptorInfo(selector uint16) (base uint32, limit uint16, access byte, ok bool) {
	if selector&0xFFFC == 0 {
		return 0, 0, 0, false
	}

	tableBase, tableLimit := p.gdtr.base, p.gdtr.limit
	if selector&0x0004 != 0 {
		if !p.ldtrCache.valid {
			return 0, 0, 0, false
		}
		tableBase, tableLimit = p.ldtrCache.base, p.ldtrCache.limit
	}

	index := uint32(selector >> 3)
	if index*8+7 > uint32(tableLimit) {
		return 0, 0, 0, false
	}

	addr := memory.Pointer(tableBase + index*8)
	limit = p.ReadWord(addr)
	base = p.readDescriptorBase(addr + 2)
	access = p.ReadByte(addr + 5)
	return base, limit, access, true
}

// loadDescriptor implements the protected-mode segment load protocol for
// ES/CS/SS/DS.
func (p *CPU) loadDescriptor(seg byte, selector uint16) bool {
	cache := &p.segCache[seg&3]
	cpl := p.CS & 3

	if selector&0xFFFC == 0 {
		if seg == segSS {
			log.Print("GP(13): null selector loaded into SS")
			p.doInterrupt(13)
			return false
		}
		cache.valid = false
		p.setSegReg(seg, selector)
		return true
	}

	tableBase, tableLimit := p.gdtr.base, p.gdtr.limit
	if selector&0x0004 != 0 {
		if !p.ldtrCache.valid {
			log.Printf("GP(13): selector 0x%X references an invalid LDT", selector)
			p.doInterrupt(13)
			return false
		}
		tableBase, tableLimit = p.ldtrCache.base, p.ldtrCache.limit
	}

	index := uint32(selector >> 3)
	if index*8+7 > uint32(tableLimit) {
		log.Printf("GP(13): selector 0x%X exceeds table limit 0x%X", selector, tableLimit)
		p.doInterrupt(13)
		cache.valid = false
		return false
	}

	addr := memory.Pointer(tableBase + index*8)
	access := p.ReadByte(addr + 5)
	limit := p.ReadWord(addr)
	base := p.readDescriptorBase(addr + 2)

	rpl := selector & 3
	dpl := uint16(access>>5) & 3

	if access&0x80 == 0 {
		log.Printf("NP(11): segment 0x%X not present", selector)
		p.doInterrupt(11)
		return false
	}

	switch seg {
	case segSS:
		writableData := access&0x08 == 0 && access&0x02 != 0
		if rpl != cpl || dpl != cpl || !writableData {
			log.Printf("GP(13): invalid SS selector 0x%X", selector)
			p.push16(selector)
			p.doInterrupt(13)
			return false
		}
	case segCS:
		if access&0x08 == 0 {
			log.Printf("GP(13): CS loaded with non-code selector 0x%X", selector)
			p.doInterrupt(13)
			return false
		}
		if dpl > cpl {
			log.Printf("GP(13): CS selector 0x%X fails privilege check", selector)
			p.doInterrupt(13)
			return false
		}
	default:
		isData := access&0x08 == 0
		readableCode := access&0x0A == 0x0A
		if !isData && !readableCode {
			log.Printf("GP(13): invalid segment type for selector 0x%X", selector)
			p.doInterrupt(13)
			return false
		}
		if cpl > dpl || rpl > dpl {
			log.Printf("GP(13): privilege violation loading selector 0x%X", selector)
			p.doInterrupt(13)
			return false
		}
	}

	cache.base = base
	cache.limit = limit
	cache.access = access
	cache.valid = true
	p.setSegReg(seg, selector)
	return true
}

func (p *CPU) loadLDTR(selector uint16) {
	if selector&0xFFFC == 0 {
		p.ldtrCache.valid = false
		return
	}

	if p.CS&3 != 0 {
		log.Print("GP(13): LLDT with CPL != 0")
		p.doInterrupt(13)
		return
	}

	if selector&0xFFFC > p.gdtr.limit {
		log.Printf("GP(13): LLDT selector 0x%X exceeds GDT limit", selector)
		p.doInterrupt(13)
		return
	}

	addr := memory.Pointer(p.gdtr.base + uint32(selector>>3)*8)
	access := p.ReadByte(addr + 5)

	if access&0x1F != 0x02 {
		log.Printf("GP(13): not an LDT descriptor, access 0x%X", access)
		p.doInterrupt(13)
		return
	}
	if access&0x80 == 0 {
		log.Print("NP(11): LDT descriptor not present")
		p.doInterrupt(11)
		return
	}

	p.ldtrCache.limit = p.ReadWord(addr)
	p.ldtrCache.base = p.readDescriptorBase(addr + 2)
	p.ldtrCache.access = access
	p.ldtrCache.valid = true
}

// loadTR validates a 286 TSS descriptor, marks it busy in the GDT and
// snapshots the level 0 stack for inner-privilege interrupt entry.
func (p *CPU) loadTR(selector uint16) {
	if selector&0xFFFC == 0 {
		log.Print("GP(13): LTR with null selector")
		p.doInterrupt(13)
		return
	}

	tableBase, tableLimit := p.gdtr.base, p.gdtr.limit
	if selector&0x0004 != 0 {
		if !p.ldtrCache.valid {
			log.Print("GP(13): LTR through invalid LDTR")
			p.doInterrupt(13)
			return
		}
		tableBase, tableLimit = p.ldtrCache.base, p.ldtrCache.limit
	}

	index := uint32(selector >> 3)
	if index*8+7 > uint32(tableLimit) {
		log.Print("GP(13): LTR selector exceeds table limit")
		p.doInterrupt(13)
		return
	}

	addr := memory.Pointer(tableBase + index*8)
	access := p.ReadByte(addr + 5)

	if t := access & 0x0F; t != 0x01 && t != 0x03 {
		log.Printf("GP(13): invalid 286 TSS descriptor type 0x%X", access)
		p.doInterrupt(13)
		return
	}
	if access&0x80 == 0 {
		log.Print("NP(11): TSS descriptor not present")
		p.doInterrupt(11)
		return
	}

	p.trCache.limit = p.ReadWord(addr)
	p.trCache.base = p.readDescriptorBase(addr + 2)
	p.trCache.access = access | 0x02
	p.trCache.valid = true
	p.tr = selector
	p.trCache.sp0 = p.ReadWord(memory.Pointer(p.trCache.base + 2))
	p.trCache.ss0 = p.ReadWord(memory.Pointer(p.trCache.base + 4))

	p.WriteByte(addr+5, access|0x02)
}

// opcode0F dispatches the 286 system instruction table.
func (p *CPU) opcode0F() {
	op := p.readOpcodeStream()
	p.opcode = op

	switch op {
	case 0x00: // group 6
		p.grp6()
	case 0x01: // group 7
		p.grp7()
	case 0x02, 0x03: // LAR/LSL
		p.opLARLSL(op)
	case 0x04: // STOREALL
		// Stores debug state and stops the clock; treat as a halt.
		p.halted = true
	case 0x05: // LOADALL
		p.opLOADALL()
	case 0x06: // CLTS
		p.msw &^= 0x0008
	default:
		log.Printf("unhandled 0x0F opcode: 0x%X", op)
		p.doInterrupt(6)
	}
}

func (p *CPU) grp6() {
	p.readModRegRM()
	if !p.protectedMode {
		p.doInterrupt(6)
		return
	}

	switch p.reg {
	case 0: // SLDT
		p.writeRM16(p.rm, p.ldtr)
	case 1: // STR
		p.writeRM16(p.rm, p.tr)
	case 2: // LLDT
		p.ldtr = p.readRM16(p.rm)
		p.loadLDTR(p.ldtr)
	case 3: // LTR
		if p.CS&3 != 0 {
			log.Print("GP(13): LTR with CPL != 0")
			p.doInterrupt(13)
			return
		}
		p.tr = p.readRM16(p.rm)
		p.loadTR(p.tr)
	case 4, 5: // VERR/VERW
		selector := p.readRM16(p.rm)
		cpl := p.CS & 3
		p.ZF = false

		_, _, access, ok := p.descriptorInfo(selector)
		if selector == 0 || !ok {
			return
		}
		if access&0x10 == 0 { // system descriptor
			return
		}
		isCode := access&0x08 != 0
		accessible := access&0x02 != 0
		dpl := uint16(access>>5) & 3
		if dpl >= cpl && dpl >= selector&3 {
			if p.reg == 4 && isCode && accessible {
				p.ZF = true
			}
			if p.reg == 5 && !isCode && accessible {
				p.ZF = true
			}
		}
	default:
		log.Printf("unhandled group 6 instruction: reg=%d", p.reg)
		p.doInterrupt(6)
	}
}

func (p *CPU) grp7() {
	p.readModRegRM()

	switch p.reg {
	case 0: // SGDT
		ea := p.getEA(p.rm)
		p.WriteWord(ea, p.gdtr.limit)
		p.WriteByte(ea+2, byte(p.gdtr.base))
		p.WriteByte(ea+3, byte(p.gdtr.base>>8))
		p.WriteByte(ea+4, byte(p.gdtr.base>>16))
	case 1: // SIDT
		ea := p.getEA(p.rm)
		p.WriteWord(ea, p.idtr.limit)
		p.WriteByte(ea+2, byte(p.idtr.base))
		p.WriteByte(ea+3, byte(p.idtr.base>>8))
		p.WriteByte(ea+4, byte(p.idtr.base>>16))
	case 2: // LGDT
		ea := p.getEA(p.rm)
		p.gdtr.limit = p.ReadWord(ea)
		p.gdtr.base = p.readDescriptorBase(ea + 2)
	case 3: // LIDT
		ea := p.getEA(p.rm)
		p.idtr.limit = p.ReadWord(ea)
		p.idtr.base = p.readDescriptorBase(ea + 2)
	case 4: // SMSW
		p.writeRM16(p.rm, p.msw)
	case 6: // LMSW
		v := p.readRM16(p.rm)
		if p.msw&1 != 0 {
			v |= 1 // protected mode can not be left with LMSW
		}
		p.msw = p.msw&0xFFF0 | v&0x000F

		if !p.protectedMode && p.msw&1 != 0 {
			p.enterProtectedMode()
		}
	default:
		log.Printf("unhandled group 7 instruction: reg=%d", p.reg)
		p.doInterrupt(6)
	}
}

// enterProtectedMode seeds all four segment caches from the current
// real-mode segment values so execution continues seamlessly until the
// first selector load.
func (p *CPU) enterProtectedMode() {
	log.Print("Entering protected mode")
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

func (p *CPU) opLARLSL(op byte) {
	p.readModRegRM()
	selector := p.readRM16(p.rm)
	cpl := p.CS & 3
	rpl := selector & 3

	p.ZF = false

	_, limit, access, ok := p.descriptorInfo(selector)
	if !ok {
		return
	}

	typ := access & 0x1F
	dpl := uint16(access>>5) & 3
	if dpl < cpl || dpl < rpl {
		return
	}

	var validType bool
	if op == 0x02 { // LAR
		validType = typ != 0x00 && typ != 0x08 && typ != 0x0A && typ != 0x0D
	} else { // LSL
		validType = typ != 0x00 && typ != 0x04 && typ != 0x05 && typ != 0x06 &&
			typ != 0x07 && typ != 0x0C && typ != 0x0E && typ != 0x0F
	}
	if !validType {
		return
	}

	p.ZF = true
	if op == 0x02 {
		p.setReg16(p.reg, uint16(access)<<8)
	} else {
		p.setReg16(p.reg, limit)
	}
}

// opLOADALL reads the fixed 102-byte state block at physical 0x800 and
// repopulates nearly all CPU state, descriptor caches included.
func (p *CPU) opLOADALL() {
	if p.protectedMode {
		p.doInterrupt(6)
		return
	}

	const addr = memory.Pointer(0x800)

	p.segCache[segES].limit = p.ReadWord(addr + 0x1E)
	p.segCache[segES].base = p.readDescriptorBase(addr + 0x1B)
	p.segCache[segES].access = p.ReadByte(addr + 0x1A)
	p.segCache[segES].valid = true

	p.segCache[segCS].limit = p.ReadWord(addr + 0x24)
	p.segCache[segCS].base = p.readDescriptorBase(addr + 0x21)
	p.segCache[segCS].access = p.ReadByte(addr + 0x20)
	p.segCache[segCS].valid = true

	p.segCache[segSS].limit = p.ReadWord(addr + 0x2A)
	p.segCache[segSS].base = p.readDescriptorBase(addr + 0x27)
	p.segCache[segSS].access = p.ReadByte(addr + 0x26)
	p.segCache[segSS].valid = true

	p.segCache[segDS].limit = p.ReadWord(addr + 0x30)
	p.segCache[segDS].base = p.readDescriptorBase(addr + 0x2D)
	p.segCache[segDS].access = p.ReadByte(addr + 0x2C)
	p.segCache[segDS].valid = true

	p.DI = p.ReadWord(addr + 0x32)
	p.SI = p.ReadWord(addr + 0x34)
	p.BP = p.ReadWord(addr + 0x36)
	p.SP = p.ReadWord(addr + 0x38)
	p.BX = p.ReadWord(addr + 0x3A)
	p.DX = p.ReadWord(addr + 0x3C)
	p.CX = p.ReadWord(addr + 0x3E)
	p.AX = p.ReadWord(addr + 0x40)

	p.unpackFlags16(p.ReadWord(addr + 0x42))
	p.IP = p.ReadWord(addr + 0x44)
	p.ldtr = p.ReadWord(addr + 0x46)
	p.tr = p.ReadWord(addr + 0x54)
	p.DS = p.ReadWord(addr + 0x48)
	p.SS = p.ReadWord(addr + 0x4A)
	p.CS = p.ReadWord(addr + 0x4C)
	p.ES = p.ReadWord(addr + 0x4E)

	p.gdtr.limit = p.ReadWord(addr + 0x56)
	p.gdtr.base = p.readDescriptorBase(addr + 0x58)
	p.idtr.limit = p.ReadWord(addr + 0x5C)
	p.idtr.base = p.readDescriptorBase(addr + 0x5E)

	p.msw = p.ReadWord(addr + 0x66)
	if !p.protectedMode && p.msw&1 != 0 {
		log.Print("Entering protected mode")
	}
	p.protectedMode = p.msw&1 != 0
}
