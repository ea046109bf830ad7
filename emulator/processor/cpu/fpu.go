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
	"math"

	"github.com/andreas-jonsson/virtual286/emulator/memory"
)

// Tag word values, two bits per physical slot.
const (
	fpuTagValid = iota
	fpuTagZero
	fpuTagSpecial
	fpuTagEmpty
)

// Status word bits.
const (
	fpuSwIE = 0x0001 // invalid operation
	fpuSwDE = 0x0002 // denormalized operand
	fpuSwZE = 0x0004 // zero divide
	fpuSwOE = 0x0008 // overflow
	fpuSwUE = 0x0010 // underflow
	fpuSwPE = 0x0020 // precision
	fpuSwSF = 0x0040 // stack fault
	fpuSwES = 0x0080 // exception summary
	fpuSwC0 = 0x0100
	fpuSwC1 = 0x0200
	fpuSwC2 = 0x0400
	fpuSwSP = 0x3800 // top of stack
	fpuSwC3 = 0x4000
	fpuSwBF = 0x8000 // busy
)

// Extended precision operands are approximated with float64. FLDT/FSTPT and
// FRSTOR interpret the low 8 bytes of each 10-byte slot as a double, so
// true 80-bit images read back wrong; the 287 programs we care about only
// round trip their own saves.
type fpuState struct {
	st [8]float64

	cw, sw, tw uint16

	op     uint16
	ip, cs uint16
	dp     memory.Pointer
}

func (p *CPU) fpuInit() {
	p.fpu.cw = 0x037F
	p.fpu.sw = 0
	p.fpu.tw = 0xFFFF
}

func (p *CPU) fpuTop() uint16 {
	return (p.fpu.sw & fpuSwSP) >> 11
}

// fpuSlot maps a logical stack index to a physical slot.
func (p *CPU) fpuSlot(i int) *float64 {
	return &p.fpu.st[(i+int(p.fpuTop()))&7]
}

func (p *CPU) fpuTag(i int) int {
	n := uint((i+int(p.fpuTop()))&7) * 2
	return int(p.fpu.tw>>n) & 3
}

func (p *CPU) fpuSetTag(i, t int) {
	n := uint((i+int(p.fpuTop()))&7) * 2
	p.fpu.tw = p.fpu.tw&^(3<<n) | uint16(t&3)<<n
}

func negNaN() float64 {
	return math.Copysign(math.NaN(), -1)
}

func (p *CPU) fpuStackOverflow() {
	p.fpu.sw |= fpuSwIE | fpuSwC1 | fpuSwSF
}

func (p *CPU) fpuStackUnderflow() float64 {
	p.fpu.sw |= fpuSwIE | fpuSwSF
	p.fpu.sw &^= fpuSwC1
	return negNaN()
}

// st reads a logical stack slot, yielding -NaN on an empty one.
func (p *CPU) st(i int) float64 {
	if p.fpuTag(i) == fpuTagEmpty {
		return p.fpuStackUnderflow()
	}
	return *p.fpuSlot(i)
}

func (p *CPU) st0() float64  { return p.st(0) }
func (p *CPU) st1() float64  { return p.st(1) }
func (p *CPU) stRM() float64 { return p.st(int(p.rm)) }

func (p *CPU) fpuPush(x float64) {
	if p.fpuTag(-1) != fpuTagEmpty {
		p.fpuStackOverflow()
	}
	p.fpu.sw = p.fpu.sw&^fpuSwSP | (p.fpu.sw-1<<11)&fpuSwSP
	*p.fpuSlot(0) = x
	p.fpuSetTag(0, fpuTagValid)
}

func (p *CPU) fpuPop() float64 {
	var x float64
	if p.fpuTag(0) != fpuTagEmpty {
		x = *p.fpuSlot(0)
		p.fpuSetTag(0, fpuTagEmpty)
	} else {
		x = p.fpuStackUnderflow()
	}
	p.fpu.sw = p.fpu.sw&^fpuSwSP | (p.fpu.sw+1<<11)&fpuSwSP
	return x
}

func (p *CPU) fpuSetSt0(x float64)  { *p.fpuSlot(0) = x }
func (p *CPU) fpuSetStRM(x float64) { *p.fpuSlot(int(p.rm)) = x }

func (p *CPU) fpuSetStPop(i int, x float64) {
	*p.fpuSlot(i) = x
	p.fpuPop()
}

func (p *CPU) fpuSetStRMPop(x float64) {
	p.fpuSetStPop(int(p.rm), x)
}

func (p *CPU) fpuMemAddress() memory.Pointer {
	if p.mode == 3 {
		return 0
	}
	return p.getEA(p.rm)
}

func (p *CPU) fpuReadInt16() int16 {
	return int16(p.ReadWord(p.fpuMemAddress()))
}

func (p *CPU) fpuWriteInt16(v int16) {
	p.WriteWord(p.fpuMemAddress(), uint16(v))
}

func (p *CPU) fpuReadInt32() int32 {
	addr := p.fpuMemAddress()
	return int32(uint32(p.ReadWord(addr)) | uint32(p.ReadWord(addr+2))<<16)
}

func (p *CPU) fpuWriteInt32(v int32) {
	addr := p.fpuMemAddress()
	p.WriteWord(addr, uint16(v))
	p.WriteWord(addr+2, uint16(uint32(v)>>16))
}

func (p *CPU) fpuReadInt64() int64 {
	addr := p.fpuMemAddress()
	return int64(uint64(p.ReadWord(addr)) | uint64(p.ReadWord(addr+2))<<16 |
		uint64(p.ReadWord(addr+4))<<32 | uint64(p.ReadWord(addr+6))<<48)
}

func (p *CPU) fpuWriteInt64(v int64) {
	addr := p.fpuMemAddress()
	p.WriteWord(addr, uint16(v))
	p.WriteWord(addr+2, uint16(uint64(v)>>16))
	p.WriteWord(addr+4, uint16(uint64(v)>>32))
	p.WriteWord(addr+6, uint16(uint64(v)>>48))
}

func (p *CPU) fpuReadFloat32() float64 {
	return float64(math.Float32frombits(uint32(p.fpuReadInt32())))
}

func (p *CPU) fpuWriteFloat32(f float64) {
	p.fpuWriteInt32(int32(math.Float32bits(float32(f))))
}

func (p *CPU) fpuReadFloat64() float64 {
	return math.Float64frombits(uint64(p.fpuReadInt64()))
}

func (p *CPU) fpuWriteFloat64(f float64) {
	p.fpuWriteInt64(int64(math.Float64bits(f)))
}

func (p *CPU) fpuCompare(y float64) {
	x := p.st0()
	p.fpu.sw &^= fpuSwC0 | fpuSwC1 | fpuSwC2 | fpuSwC3
	if math.IsNaN(x) || math.IsNaN(y) {
		p.fpu.sw |= fpuSwC0 | fpuSwC2 | fpuSwC3 | fpuSwIE
		return
	}
	if x < y {
		p.fpu.sw |= fpuSwC0
	}
	if x == y {
		p.fpu.sw |= fpuSwC3
	}
}

func (p *CPU) opF2XM1() {
	x := p.st0()
	if x < 0 || x > 0.5 {
		p.fpu.sw |= fpuSwIE
		return
	}
	p.fpuSetSt0(math.Exp2(x) - 1)
}

func (p *CPU) opFYL2X() {
	p.fpuSetStPop(1, p.st1()*math.Log2(p.st0()))
}

func (p *CPU) opFYL2XP1() {
	x := p.st0()
	if math.Abs(x) >= 1-math.Sqrt(0.5) {
		p.fpu.sw |= fpuSwIE
		return
	}
	p.fpuSetStPop(1, p.st1()*math.Log2(x+1))
}

func (p *CPU) opFPTAN() {
	x := p.st0()
	if math.Abs(x) >= math.Pi/4 {
		p.fpu.sw |= fpuSwIE
		return
	}
	p.fpuSetSt0(math.Tan(x))
	p.fpuPush(1)
}

func (p *CPU) opFPATAN() {
	y, x := p.st1(), p.st0()
	if math.Abs(y) > math.Abs(x) {
		p.fpu.sw |= fpuSwIE
		return
	}
	p.fpuSetStPop(1, math.Atan2(y, x))
}

func (p *CPU) opFSIN() {
	x := p.st0()
	if math.IsInf(x, 0) || math.IsNaN(x) {
		p.fpu.sw |= fpuSwC2
		return
	}
	p.fpu.sw &^= fpuSwC2
	p.fpuSetSt0(math.Sin(x))
}

func (p *CPU) opFXAM() {
	x := p.st0()
	p.fpu.sw &^= fpuSwC0 | fpuSwC1 | fpuSwC2 | fpuSwC3
	if math.Signbit(x) {
		p.fpu.sw |= fpuSwC1
	}
	if p.fpuTag(0) == fpuTagEmpty {
		p.fpu.sw |= fpuSwC0 | fpuSwC3
		return
	}
	switch {
	case math.IsNaN(x):
		p.fpu.sw |= fpuSwC0
	case math.IsInf(x, 0):
		p.fpu.sw |= fpuSwC0 | fpuSwC2
	case x == 0:
		p.fpu.sw |= fpuSwC3
	case math.Abs(x) < 2.2250738585072014e-308: // subnormal
	default:
		p.fpu.sw |= fpuSwC2
	}
}

func (p *CPU) opFldConstant() {
	var x float64
	switch p.rm {
	case 0:
		x = 1.0
	case 1:
		x = math.Log10(2)
	case 2:
		x = math.Log2(math.E)
	case 3:
		x = math.Pi
	case 4:
		x = math.Log2(10)
	case 5:
		x = math.Log(2)
	case 6:
		x = 0.0
	default:
		x = math.NaN()
	}
	p.fpuPush(x)
}

func (p *CPU) opFINCSTP() {
	p.fpu.sw = p.fpu.sw&^fpuSwSP | (p.fpu.sw+1<<11)&fpuSwSP
}

func (p *CPU) opFDECSTP() {
	p.fpu.sw = p.fpu.sw&^fpuSwSP | (p.fpu.sw-1<<11)&fpuSwSP
}

func (p *CPU) opFNCLEX() {
	p.fpu.sw &^= fpuSwIE | fpuSwDE | fpuSwZE | fpuSwOE | fpuSwUE | fpuSwPE |
		fpuSwES | fpuSwSF | fpuSwBF
}

// opFRSTOR reads the 94-byte real-mode FSAVE frame. Only the low 8 bytes of
// each 10-byte register image are used; see the fpuState note.
func (p *CPU) opFRSTOR() {
	addr := p.fpuMemAddress()

	p.fpu.cw = p.ReadWord(addr)
	p.fpu.sw = p.ReadWord(addr + 2)
	p.fpu.tw = p.ReadWord(addr + 4)
	p.fpu.ip = p.ReadWord(addr + 6)
	p.fpu.cs = p.ReadWord(addr + 8)

	for i := 0; i < 8; i++ {
		slot := addr + 14 + memory.Pointer(i*10)
		bits := uint64(p.ReadWord(slot)) | uint64(p.ReadWord(slot+2))<<16 |
			uint64(p.ReadWord(slot+4))<<32 | uint64(p.ReadWord(slot+6))<<48
		p.fpu.st[i] = math.Float64frombits(bits)
	}
}

// fpuExecute dispatches one escape instruction. The key packs the low
// opcode bits, the addressing mode and the ModR/M reg field.
func (p *CPU) fpuExecute() {
	isMemory := p.mode != 3
	key := (uint16(p.opcode&7) << 4) | uint16(b2ui16(isMemory))<<3 | uint16(p.reg)

	p.fpu.op = uint16(p.opcode&7)<<8 | uint16(p.modRegRM)
	p.fpu.ip = p.saveIP
	p.fpu.cs = p.saveCS
	if isMemory {
		p.fpu.dp = p.fpuMemAddress()
	}

	if op := p.fpuLookup(key); op != nil {
		op()
		return
	}
	log.Printf("invalid FPU opcode at 0x%X:0x%X: 0x%X /%d (mod=%d rm=%d)",
		p.saveCS, p.saveIP, p.opcode, p.reg, p.mode, p.rm)
}

const fpuMemory = 1 << 3

// fpuLookup resolves a dispatch key to an operation, or nil for an
// encoding the 287 rejects.
func (p *CPU) fpuLookup(key uint16) func() {
	switch key {
	case 0x00: // FADD ST,ST(i)
		return func() { p.fpuSetSt0(p.st0() + p.stRM()) }
	case 0x01: // FMUL ST,ST(i)
		return func() { p.fpuSetSt0(p.st0() * p.stRM()) }
	case 0x02: // FCOM
		return func() { p.fpuCompare(p.stRM()) }
	case 0x03: // FCOMP
		return func() { p.fpuCompare(p.stRM()); p.fpuPop() }
	case 0x04: // FSUB ST,ST(i)
		return func() { p.fpuSetSt0(p.st0() - p.stRM()) }
	case 0x05: // FSUBR ST,ST(i)
		return func() { p.fpuSetSt0(p.stRM() - p.st0()) }
	case 0x06: // FDIV ST,ST(i)
		return func() { p.fpuSetSt0(p.st0() / p.stRM()) }
	case 0x07: // FDIVR ST,ST(i)
		return func() { p.fpuSetSt0(p.stRM() / p.st0()) }
	case 0x00 | fpuMemory: // FADD m32fp
		return func() { p.fpuSetSt0(p.st0() + p.fpuReadFloat32()) }
	case 0x01 | fpuMemory: // FMUL m32fp
		return func() { p.fpuSetSt0(p.st0() * p.fpuReadFloat32()) }
	case 0x02 | fpuMemory: // FCOM m32fp
		return func() { p.fpuCompare(p.fpuReadFloat32()) }
	case 0x03 | fpuMemory: // FCOMP m32fp
		return func() { p.fpuCompare(p.fpuReadFloat32()); p.fpuPop() }
	case 0x04 | fpuMemory: // FSUB m32fp
		return func() { p.fpuSetSt0(p.st0() - p.fpuReadFloat32()) }
	case 0x05 | fpuMemory: // FSUBR m32fp
		return func() { p.fpuSetSt0(p.fpuReadFloat32() - p.st0()) }
	case 0x06 | fpuMemory: // FDIV m32fp
		return func() { p.fpuSetSt0(p.st0() / p.fpuReadFloat32()) }
	case 0x07 | fpuMemory: // FDIVR m32fp
		return func() { p.fpuSetSt0(p.fpuReadFloat32() / p.st0()) }

	case 0x10: // FLD ST(i)
		return func() { p.fpuPush(p.stRM()) }
	case 0x11: // FXCH
		return func() {
			t := p.stRM()
			p.fpuSetStRM(p.st0())
			p.fpuSetSt0(t)
		}
	case 0x12: // FNOP
		return func() {}
	case 0x13: // FSTP ST(i)
		return func() { p.fpuSetStRMPop(p.st0()) }
	case 0x14: // FCHS/FABS/FTST/FXAM
		switch p.rm {
		case 0:
			return func() { p.fpuSetSt0(-p.st0()) }
		case 1:
			return func() { p.fpuSetSt0(math.Abs(p.st0())) }
		case 4:
			return func() { p.fpuCompare(0) }
		case 5:
			return p.opFXAM
		}
		return nil
	case 0x15: // constants by rm: 1, log10(2), log2(e), pi, log2(10), ln(2), 0
		return p.opFldConstant
	case 0x16: // transcendental group
		switch p.rm {
		case 0:
			return p.opF2XM1
		case 1:
			return p.opFYL2X
		case 2:
			return p.opFPTAN
		case 3:
			return p.opFPATAN
		case 6:
			return p.opFDECSTP
		case 7:
			return p.opFINCSTP
		}
		return nil
	case 0x17: // FYL2XP1/FSQRT/FSIN
		switch p.rm {
		case 1:
			return p.opFYL2XP1
		case 2:
			return func() { p.fpuSetSt0(math.Sqrt(p.st0())) }
		case 6:
			return p.opFSIN
		}
		return nil
	case 0x10 | fpuMemory: // FLD m32fp
		return func() { p.fpuPush(p.fpuReadFloat32()) }
	case 0x12 | fpuMemory: // FST m32fp
		return func() { p.fpuWriteFloat32(p.st0()) }
	case 0x13 | fpuMemory: // FSTP m32fp
		return func() { p.fpuWriteFloat32(p.st0()); p.fpuPop() }
	case 0x15 | fpuMemory: // FLDCW
		return func() { p.fpu.cw = uint16(p.fpuReadInt16()) }
	case 0x17 | fpuMemory: // FSTCW
		return func() { p.fpuWriteInt16(int16(p.fpu.cw)) }

	case 0x20 | fpuMemory: // FIADD m32int
		return func() { p.fpuSetSt0(p.st0() + float64(p.fpuReadInt32())) }
	case 0x21 | fpuMemory: // FIMUL m32int
		return func() { p.fpuSetSt0(p.st0() * float64(p.fpuReadInt32())) }
	case 0x22 | fpuMemory: // FICOM m32int
		return func() { p.fpuCompare(float64(p.fpuReadInt32())) }
	case 0x23 | fpuMemory: // FICOMP m32int
		return func() { p.fpuCompare(float64(p.fpuReadInt32())); p.fpuPop() }
	case 0x24 | fpuMemory: // FISUB m32int
		return func() { p.fpuSetSt0(p.st0() - float64(p.fpuReadInt32())) }
	case 0x25 | fpuMemory: // FISUBR m32int
		return func() { p.fpuSetSt0(float64(p.fpuReadInt32()) - p.st0()) }
	case 0x26 | fpuMemory: // FIDIV m32int
		return func() { p.fpuSetSt0(p.st0() / float64(p.fpuReadInt32())) }
	case 0x27 | fpuMemory: // FIDIVR m32int
		return func() { p.fpuSetSt0(float64(p.fpuReadInt32()) / p.st0()) }
	case 0x25: // FUCOMPP
		return func() { p.fpuCompare(p.st1()); p.fpuPop(); p.fpuPop() }

	case 0x30 | fpuMemory: // FILD m32int
		return func() { p.fpuPush(float64(p.fpuReadInt32())) }
	case 0x32 | fpuMemory: // FIST m32int
		return func() { p.fpuWriteInt32(int32(math.Round(p.st0()))) }
	case 0x33 | fpuMemory: // FISTP m32int
		return func() { p.fpuWriteInt32(int32(math.Round(p.st0()))); p.fpuPop() }
	case 0x35 | fpuMemory: // FLD m80fp
		return func() { p.fpuPush(p.fpuReadFloat64()) }
	case 0x37 | fpuMemory: // FSTP m80fp
		return func() { p.fpuWriteFloat64(p.fpuPop()) }
	case 0x34: // FNCLEX/FNINIT/FSETPM
		switch p.rm {
		case 2:
			return p.opFNCLEX
		case 3:
			return p.fpuInit
		case 4:
			return func() {} // FSETPM
		}
		return nil

	case 0x40: // FADD ST(i),ST
		return func() { p.fpuSetStRM(p.stRM() + p.st0()) }
	case 0x41: // FMUL ST(i),ST
		return func() { p.fpuSetStRM(p.stRM() * p.st0()) }
	case 0x44: // FSUBR ST(i),ST
		return func() { p.fpuSetStRM(p.stRM() - p.st0()) }
	case 0x45: // FSUB ST(i),ST
		return func() { p.fpuSetStRM(p.st0() - p.stRM()) }
	case 0x46: // FDIVR ST(i),ST
		return func() { p.fpuSetStRM(p.stRM() / p.st0()) }
	case 0x47: // FDIV ST(i),ST
		return func() { p.fpuSetStRM(p.st0() / p.stRM()) }
	case 0x40 | fpuMemory: // FADD m64fp
		return func() { p.fpuSetSt0(p.st0() + p.fpuReadFloat64()) }
	case 0x41 | fpuMemory: // FMUL m64fp
		return func() { p.fpuSetSt0(p.st0() * p.fpuReadFloat64()) }
	case 0x42 | fpuMemory: // FCOM m64fp
		return func() { p.fpuCompare(p.fpuReadFloat64()) }
	case 0x43 | fpuMemory: // FCOMP m64fp
		return func() { p.fpuCompare(p.fpuReadFloat64()); p.fpuPop() }
	case 0x44 | fpuMemory: // FSUB m64fp
		return func() { p.fpuSetSt0(p.st0() - p.fpuReadFloat64()) }
	case 0x45 | fpuMemory: // FSUBR m64fp
		return func() { p.fpuSetSt0(p.fpuReadFloat64() - p.st0()) }
	case 0x46 | fpuMemory: // FDIV m64fp
		return func() { p.fpuSetSt0(p.st0() / p.fpuReadFloat64()) }
	case 0x47 | fpuMemory: // FDIVR m64fp
		return func() { p.fpuSetSt0(p.fpuReadFloat64() / p.st0()) }

	case 0x50: // FFREE
		return func() { p.fpuSetTag(int(p.rm), fpuTagEmpty) }
	case 0x52: // FST ST(i)
		return func() { p.fpuSetStRM(p.st0()) }
	case 0x53: // FSTP ST(i)
		return func() { p.fpuSetStRMPop(p.st0()) }
	case 0x50 | fpuMemory: // FLD m64fp
		return func() { p.fpuPush(p.fpuReadFloat64()) }
	case 0x52 | fpuMemory: // FST m64fp
		return func() { p.fpuWriteFloat64(p.st0()) }
	case 0x53 | fpuMemory: // FSTP m64fp
		return func() { p.fpuWriteFloat64(p.st0()); p.fpuPop() }
	case 0x54 | fpuMemory: // FRSTOR
		return p.opFRSTOR
	case 0x57 | fpuMemory: // FSTSW m16
		return func() { p.fpuWriteInt16(int16(p.fpu.sw)) }

	case 0x60: // FADDP
		return func() { p.fpuSetStRMPop(p.stRM() + p.st0()) }
	case 0x61: // FMULP
		return func() { p.fpuSetStRMPop(p.stRM() * p.st0()) }
	case 0x63: // FCOMPP
		return func() {
			p.fpuCompare(p.st1())
			p.fpuPop()
			p.fpuPop()
		}
	case 0x64: // FSUBRP
		return func() { p.fpuSetStPop(1, p.st0()-p.st1()) }
	case 0x65: // FSUBP
		return func() { p.fpuSetStRMPop(p.stRM() - p.st0()) }
	case 0x66: // FDIVRP
		return func() { p.fpuSetStRMPop(p.st0() / p.stRM()) }
	case 0x67: // FDIVP
		return func() { p.fpuSetStRMPop(p.stRM() / p.st0()) }
	case 0x60 | fpuMemory: // FIADD m16int
		return func() { p.fpuSetSt0(p.st0() + float64(p.fpuReadInt16())) }
	case 0x61 | fpuMemory: // FIMUL m16int
		return func() { p.fpuSetSt0(p.st0() * float64(p.fpuReadInt16())) }
	case 0x62 | fpuMemory: // FICOM m16int
		return func() { p.fpuCompare(float64(p.fpuReadInt16())) }
	case 0x63 | fpuMemory: // FICOMP m16int
		return func() { p.fpuCompare(float64(p.fpuReadInt16())); p.fpuPop() }
	case 0x64 | fpuMemory: // FISUB m16int
		return func() { p.fpuSetSt0(p.st0() - float64(p.fpuReadInt16())) }
	case 0x65 | fpuMemory: // FISUBR m16int
		return func() { p.fpuSetSt0(float64(p.fpuReadInt16()) - p.st0()) }
	case 0x66 | fpuMemory: // FIDIV m16int
		return func() { p.fpuSetSt0(p.st0() / float64(p.fpuReadInt16())) }
	case 0x67 | fpuMemory: // FIDIVR m16int
		return func() { p.fpuSetSt0(float64(p.fpuReadInt16()) / p.st0()) }

	case 0x70 | fpuMemory: // FILD m16int
		return func() { p.fpuPush(float64(p.fpuReadInt16())) }
	case 0x73 | fpuMemory: // FISTP m16int
		return func() { p.fpuWriteInt16(int16(math.Round(p.fpuPop()))) }
	case 0x75 | fpuMemory: // FILD m64int
		return func() { p.fpuPush(float64(p.fpuReadInt64())) }
	case 0x77 | fpuMemory: // FISTP m64int
		return func() { p.fpuWriteInt64(int64(math.Round(p.fpuPop()))) }
	case 0x74: // FSTSW AX
		return func() { p.AX = p.fpu.sw }
	}
	return nil
}
