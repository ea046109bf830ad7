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
	"github.com/andreas-jonsson/virtual286/emulator/memory"
)

func signExtend16(v byte) uint16 {
	if v&0x80 != 0 {
		return uint16(v) | 0xFF00
	}
	return uint16(v)
}

func signExtend32(v uint16) uint32 {
	if v&0x8000 != 0 {
		return uint32(v) | 0xFFFF0000
	}
	return uint32(v)
}

func b2ui16(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}

func b2ui32(b bool) uint32 {
	return uint32(b2ui16(b))
}

// reg8 reads the byte register selected by a ModR/M reg or rm field:
// AL,CL,DL,BL,AH,CH,DH,BH.
func (p *CPU) reg8(i byte) byte {
	switch i & 7 {
	case 0:
		return p.AL()
	case 1:
		return p.CL()
	case 2:
		return p.DL()
	case 3:
		return p.BL()
	case 4:
		return p.AH()
	case 5:
		return p.CH()
	case 6:
		return p.DH()
	default:
		return p.BH()
	}
}

func (p *CPU) setReg8(i, v byte) {
	switch i & 7 {
	case 0:
		p.SetAL(v)
	case 1:
		p.SetCL(v)
	case 2:
		p.SetDL(v)
	case 3:
		p.SetBL(v)
	case 4:
		p.SetAH(v)
	case 5:
		p.SetCH(v)
	case 6:
		p.SetDH(v)
	default:
		p.SetBH(v)
	}
}

func (p *CPU) reg16(i byte) uint16 {
	switch i & 7 {
	case 0:
		return p.AX
	case 1:
		return p.CX
	case 2:
		return p.DX
	case 3:
		return p.BX
	case 4:
		return p.SP
	case 5:
		return p.BP
	case 6:
		return p.SI
	default:
		return p.DI
	}
}

func (p *CPU) setReg16(i byte, v uint16) {
	switch i & 7 {
	case 0:
		p.AX = v
	case 1:
		p.CX = v
	case 2:
		p.DX = v
	case 3:
		p.BX = v
	case 4:
		p.SP = v
	case 5:
		p.BP = v
	case 6:
		p.SI = v
	default:
		p.DI = v
	}
}

func (p *CPU) segReg(i byte) uint16 {
	switch i & 3 {
	case segES:
		return p.ES
	case segCS:
		return p.CS
	case segSS:
		return p.SS
	default:
		return p.DS
	}
}

func (p *CPU) setSegReg(i byte, v uint16) {
	switch i & 3 {
	case segES:
		p.ES = v
	case segCS:
		p.CS = v
	case segSS:
		p.SS = v
	default:
		p.DS = v
	}
}

func (p *CPU) getMem8(seg, offset uint16) byte {
	return p.ReadByte(p.physAddress(seg, offset))
}

func (p *CPU) putMem8(seg, offset uint16, v byte) {
	p.WriteByte(p.physAddress(seg, offset), v)
}

func (p *CPU) getMem16(seg, offset uint16) uint16 {
	return uint16(p.getMem8(seg, offset)) | uint16(p.getMem8(seg, offset+1))<<8
}

func (p *CPU) putMem16(seg, offset uint16, v uint16) {
	p.putMem8(seg, offset, byte(v))
	p.putMem8(seg, offset+1, byte(v>>8))
}

func (p *CPU) readOpcodeStream() byte {
	v := p.getMem8(p.CS, p.IP)
	p.IP++
	return v
}

func (p *CPU) readOpcodeImm16() uint16 {
	v := p.getMem16(p.CS, p.IP)
	p.IP += 2
	return v
}

// readModRegRM decodes the ModR/M byte and fetches the displacement in one
// step. BP based forms select the stack segment unless an override prefix
// is active.
func (p *CPU) readModRegRM() {
	b := p.readOpcodeStream()
	p.modRegRM = b
	p.mode = b >> 6
	p.reg = (b >> 3) & 7
	p.rm = b & 7

	switch p.mode {
	case 0:
		p.disp16 = 0
		if p.rm == 6 {
			p.disp16 = p.readOpcodeImm16()
		} else if (p.rm == 2 || p.rm == 3) && !p.segOverride {
			p.useSeg = p.SS
		}
	case 1:
		p.disp16 = signExtend16(p.readOpcodeStream())
		if (p.rm == 2 || p.rm == 3 || p.rm == 6) && !p.segOverride {
			p.useSeg = p.SS
		}
	case 2:
		p.disp16 = p.readOpcodeImm16()
		if (p.rm == 2 || p.rm == 3 || p.rm == 6) && !p.segOverride {
			p.useSeg = p.SS
		}
	default:
		p.disp16 = 0
	}
}

// getEA computes the physical address of the current memory operand and
// stores it in p.ea.
func (p *CPU) getEA(rm byte) memory.Pointer {
	var offset uint16

	switch p.mode {
	case 0:
		switch rm {
		case 0:
			offset = p.BX + p.SI
		case 1:
			offset = p.BX + p.DI
		case 2:
			offset = p.BP + p.SI
		case 3:
			offset = p.BP + p.DI
		case 4:
			offset = p.SI
		case 5:
			offset = p.DI
		case 6:
			offset = p.disp16
		case 7:
			offset = p.BX
		}
	case 1, 2:
		switch rm {
		case 0:
			offset = p.BX + p.SI + p.disp16
		case 1:
			offset = p.BX + p.DI + p.disp16
		case 2:
			offset = p.BP + p.SI + p.disp16
		case 3:
			offset = p.BP + p.DI + p.disp16
		case 4:
			offset = p.SI + p.disp16
		case 5:
			offset = p.DI + p.disp16
		case 6:
			offset = p.BP + p.disp16
		case 7:
			offset = p.BX + p.disp16
		}
	}

	if p.protectedMode {
		// Match the operand segment value back to a segment register to
		// find its descriptor cache. An unmatched segment yields address 0.
		var cache *descriptorCache
		switch p.useSeg {
		case p.SS:
			cache = &p.segCache[segSS]
		case p.DS:
			cache = &p.segCache[segDS]
		case p.ES:
			cache = &p.segCache[segES]
		case p.CS:
			cache = &p.segCache[segCS]
		}

		if cache != nil && cache.valid {
			p.ea = memory.Pointer(cache.base + uint32(offset))
		} else {
			p.ea = 0
		}
	} else {
		p.ea = p.a20.Mask(memory.Pointer(uint32(p.useSeg)<<4 + uint32(offset)))
	}
	return p.ea
}

func (p *CPU) readRM8(rm byte) byte {
	if p.mode < 3 {
		return p.ReadByte(p.getEA(rm))
	}
	return p.reg8(rm)
}

func (p *CPU) readRM16(rm byte) uint16 {
	if p.mode < 3 {
		ea := p.getEA(rm)
		return uint16(p.ReadByte(ea)) | uint16(p.ReadByte(ea+1))<<8
	}
	return p.reg16(rm)
}

func (p *CPU) writeRM8(rm byte, v byte) {
	if p.mode < 3 {
		p.WriteByte(p.getEA(rm), v)
	} else {
		p.setReg8(rm, v)
	}
}

func (p *CPU) writeRM16(rm byte, v uint16) {
	if p.mode < 3 {
		ea := p.getEA(rm)
		p.WriteByte(ea, byte(v))
		p.WriteByte(ea+1, byte(v>>8))
	} else {
		p.setReg16(rm, v)
	}
}

func (p *CPU) push16(v uint16) {
	p.SP -= 2
	p.putMem16(p.SS, p.SP, v)
}

func (p *CPU) pop16() uint16 {
	v := p.getMem16(p.SS, p.SP)
	p.SP += 2
	return v
}

var parityLookup = [256]bool{
	true, false, false, true, false, true, true, false, false, true, true, false, true, false, false, true,
	false, true, true, false, true, false, false, true, true, false, false, true, false, true, true, false,
	false, true, true, false, true, false, false, true, true, false, false, true, false, true, true, false,
	true, false, false, true, false, true, true, false, false, true, true, false, true, false, false, true,
	false, true, true, false, true, false, false, true, true, false, false, true, false, true, true, false,
	true, false, false, true, false, true, true, false, false, true, true, false, true, false, false, true,
	true, false, false, true, false, true, true, false, false, true, true, false, true, false, false, true,
	false, true, true, false, true, false, false, true, true, false, false, true, false, true, true, false,
	false, true, true, false, true, false, false, true, true, false, false, true, false, true, true, false,
	true, false, false, true, false, true, true, false, false, true, true, false, true, false, false, true,
	true, false, false, true, false, true, true, false, false, true, true, false, true, false, false, true,
	false, true, true, false, true, false, false, true, true, false, false, true, false, true, true, false,
	true, false, false, true, false, true, true, false, false, true, true, false, true, false, false, true,
	false, true, true, false, true, false, false, true, true, false, false, true, false, true, true, false,
	false, true, true, false, true, false, false, true, true, false, false, true, false, true, true, false,
	true, false, false, true, false, true, true, false, false, true, true, false, true, false, false, true,
}
