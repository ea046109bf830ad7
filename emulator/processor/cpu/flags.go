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

func (p *CPU) updateFlagsSZP8(res byte) {
	p.ZF = res == 0
	p.SF = res&0x80 != 0
	p.PF = parityLookup[res]
}

func (p *CPU) updateFlagsSZP16(res uint16) {
	p.ZF = res == 0
	p.SF = res&0x8000 != 0
	p.PF = parityLookup[res&0xFF]
}

// Bitwise logic ops always clear carry and overflow.
func (p *CPU) updateFlagsLog8(res byte) {
	p.updateFlagsSZP8(res)
	p.CF = false
	p.OF = false
}

func (p *CPU) updateFlagsLog16(res uint16) {
	p.updateFlagsSZP16(res)
	p.CF = false
	p.OF = false
}

func (p *CPU) flagsAdd8(a, b, carry byte) {
	dst := uint16(a) + uint16(b) + uint16(carry)
	p.updateFlagsSZP8(byte(dst))
	p.CF = dst&0xFF00 != 0
	p.OF = (dst^uint16(a))&(dst^uint16(b))&0x80 != 0
	p.AF = (uint16(a)^uint16(b)^dst)&0x10 != 0
}

func (p *CPU) flagsAdd16(a, b, carry uint16) {
	dst := uint32(a) + uint32(b) + uint32(carry)
	p.updateFlagsSZP16(uint16(dst))
	p.CF = dst&0xFFFF0000 != 0
	p.OF = (dst^uint32(a))&(dst^uint32(b))&0x8000 != 0
	p.AF = (uint32(a)^uint32(b)^dst)&0x10 != 0
}

// flagsSub8 computes the borrow variants. The carry operand folds into the
// subtrahend first, matching SBB.
func (p *CPU) flagsSub8(a, b, carry byte) {
	b += carry
	dst := uint16(a) - uint16(b)
	p.updateFlagsSZP8(byte(dst))
	p.CF = dst&0xFF00 != 0
	p.OF = (dst^uint16(a))&(uint16(a)^uint16(b))&0x80 != 0
	p.AF = (uint16(a)^uint16(b)^dst)&0x10 != 0
}

func (p *CPU) flagsSub16(a, b, carry uint16) {
	b += carry
	dst := uint32(a) - uint32(b)
	p.updateFlagsSZP16(uint16(dst))
	p.CF = dst&0xFFFF0000 != 0
	p.OF = (dst^uint32(a))&(uint32(a)^uint32(b))&0x8000 != 0
	p.AF = (uint32(a)^uint32(b)^dst)&0x10 != 0
}

func (p *CPU) packFlags16() uint16 {
	var flags uint16 = 0x2
	if p.CF {
		flags |= 0x001
	}
	if p.PF {
		flags |= 0x004
	}
	if p.AF {
		flags |= 0x010
	}
	if p.ZF {
		flags |= 0x040
	}
	if p.SF {
		flags |= 0x080
	}
	if p.TF {
		flags |= 0x100
	}
	if p.IF {
		flags |= 0x200
	}
	if p.DF {
		flags |= 0x400
	}
	if p.OF {
		flags |= 0x800
	}
	return flags
}

func (p *CPU) unpackFlags16(flags uint16) {
	p.CF = flags&0x001 != 0
	p.PF = flags&0x004 != 0
	p.AF = flags&0x010 != 0
	p.ZF = flags&0x040 != 0
	p.SF = flags&0x080 != 0
	p.TF = flags&0x100 != 0
	p.IF = flags&0x200 != 0
	p.DF = flags&0x400 != 0
	p.OF = flags&0x800 != 0
}
