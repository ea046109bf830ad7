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

	"github.com/andreas-jonsson/virtual286/emulator/processor"
)

// Step executes a single instruction and gives all peripherals a chance to
// run. A pending single-step trap is delivered before the fetch, one
// instruction late, through the trap-toggle latch.
func (p *CPU) Step() (int, error) {
	p.cycleCount = 0

	if p.trapToggle {
		p.doInterrupt(1)
	}
	p.trapToggle = p.TF

	p.checkInterrupts()

	var err error
	if p.halted {
		err = processor.ErrCPUHalt
	} else {
		p.executeInstruction()
	}

	for _, d := range p.peripherals {
		if err := d.Step(p.cycleCount); err != nil {
			return p.cycleCount, err
		}
	}
	return p.cycleCount, err
}

// checkInterrupts samples the interrupt controller between instructions.
// An accepted line wakes the CPU from HLT.
func (p *CPU) checkInterrupts() {
	if p.pic == nil || p.trapToggle || !p.IF {
		return
	}
	if n, err := p.pic.GetInterrupt(); err == nil {
		p.halted = false
		p.doInterrupt(n)
	}
}

func (p *CPU) executeInstruction() {
	p.cycleCount++

	p.repeatMode = 0
	p.segOverride = false
	p.useSeg = p.DS
	p.firstIP = p.IP

	prefixCount := 0
	for {
		p.saveCS = p.CS
		p.saveIP = p.IP
		op := p.readOpcodeStream()

		if prefixCount++; prefixCount > 10 {
			p.doInterrupt(13)
			p.opcode = op
			break
		}

		switch op {
		case 0x26: // ES:
			p.useSeg = p.ES
			p.segOverride = true
		case 0x2E: // CS:
			p.useSeg = p.CS
			p.segOverride = true
		case 0x36: // SS:
			p.useSeg = p.SS
			p.segOverride = true
		case 0x3E: // DS:
			p.useSeg = p.DS
			p.segOverride = true
		case 0xF0: // LOCK
		case 0xF3: // REP/REPE/REPZ
			p.repeatMode = 0xF3
		case 0xF2: // REPNE/REPNZ
			p.repeatMode = 0xF2
		default:
			p.opcode = op
			goto dispatch
		}
	}

dispatch:
	p.stats.NumInstructions++
	p.execute()
}

func (p *CPU) execute() {
	switch op := p.opcode; op {
	case 0x00: // ADD r/m8,r8
		p.readModRegRM()
		a, b := p.readRM8(p.rm), p.reg8(p.reg)
		res := a + b
		p.flagsAdd8(a, b, 0)
		p.writeRM8(p.rm, res)
	case 0x01: // ADD r/m16,r16
		p.readModRegRM()
		a, b := p.readRM16(p.rm), p.reg16(p.reg)
		res := a + b
		p.flagsAdd16(a, b, 0)
		p.writeRM16(p.rm, res)
	case 0x02: // ADD r8,r/m8
		p.readModRegRM()
		a, b := p.reg8(p.reg), p.readRM8(p.rm)
		res := a + b
		p.flagsAdd8(a, b, 0)
		p.setReg8(p.reg, res)
	case 0x03: // ADD r16,r/m16
		p.readModRegRM()
		a, b := p.reg16(p.reg), p.readRM16(p.rm)
		res := a + b
		p.flagsAdd16(a, b, 0)
		p.setReg16(p.reg, res)
	case 0x04: // ADD AL,d8
		a, b := p.AL(), p.readOpcodeStream()
		p.flagsAdd8(a, b, 0)
		p.SetAL(a + b)
	case 0x05: // ADD AX,d16
		a, b := p.AX, p.readOpcodeImm16()
		p.flagsAdd16(a, b, 0)
		p.AX = a + b
	case 0x06: // PUSH ES
		p.push16(p.ES)
	case 0x07: // POP ES
		p.popSegment(segES)
	case 0x08: // OR r/m8,r8
		p.readModRegRM()
		res := p.readRM8(p.rm) | p.reg8(p.reg)
		p.updateFlagsLog8(res)
		p.writeRM8(p.rm, res)
	case 0x09: // OR r/m16,r16
		p.readModRegRM()
		res := p.readRM16(p.rm) | p.reg16(p.reg)
		p.updateFlagsLog16(res)
		p.writeRM16(p.rm, res)
	case 0x0A: // OR r8,r/m8
		p.readModRegRM()
		res := p.reg8(p.reg) | p.readRM8(p.rm)
		p.updateFlagsLog8(res)
		p.setReg8(p.reg, res)
	case 0x0B: // OR r16,r/m16
		p.readModRegRM()
		res := p.reg16(p.reg) | p.readRM16(p.rm)
		p.updateFlagsLog16(res)
		p.setReg16(p.reg, res)
	case 0x0C: // OR AL,d8
		res := p.AL() | p.readOpcodeStream()
		p.updateFlagsLog8(res)
		p.SetAL(res)
	case 0x0D: // OR AX,d16
		p.AX |= p.readOpcodeImm16()
		p.updateFlagsLog16(p.AX)
	case 0x0E: // PUSH CS
		p.push16(p.CS)
	case 0x0F: // 286 extended opcodes
		p.opcode0F()

	case 0x10: // ADC r/m8,r8
		p.readModRegRM()
		a, b, c := p.readRM8(p.rm), p.reg8(p.reg), b2ui16(p.CF)
		res := a + b + byte(c)
		p.flagsAdd8(a, b, byte(c))
		p.writeRM8(p.rm, res)
	case 0x11: // ADC r/m16,r16
		p.readModRegRM()
		a, b, c := p.readRM16(p.rm), p.reg16(p.reg), b2ui16(p.CF)
		res := a + b + c
		p.flagsAdd16(a, b, c)
		p.writeRM16(p.rm, res)
	case 0x12: // ADC r8,r/m8
		p.readModRegRM()
		a, b, c := p.reg8(p.reg), p.readRM8(p.rm), b2ui16(p.CF)
		res := a + b + byte(c)
		p.flagsAdd8(a, b, byte(c))
		p.setReg8(p.reg, res)
	case 0x13: // ADC r16,r/m16
		p.readModRegRM()
		a, b, c := p.reg16(p.reg), p.readRM16(p.rm), b2ui16(p.CF)
		res := a + b + c
		p.flagsAdd16(a, b, c)
		p.setReg16(p.reg, res)
	case 0x14: // ADC AL,d8
		a, b, c := p.AL(), p.readOpcodeStream(), byte(b2ui16(p.CF))
		p.flagsAdd8(a, b, c)
		p.SetAL(a + b + c)
	case 0x15: // ADC AX,d16
		a, b, c := p.AX, p.readOpcodeImm16(), b2ui16(p.CF)
		p.flagsAdd16(a, b, c)
		p.AX = a + b + c
	case 0x16: // PUSH SS
		p.push16(p.SS)
	case 0x17: // POP SS
		p.popSegment(segSS)
	case 0x18: // SBB r/m8,r8
		p.readModRegRM()
		a, b, c := p.readRM8(p.rm), p.reg8(p.reg), byte(b2ui16(p.CF))
		res := a - (b + c)
		p.flagsSub8(a, b, c)
		p.writeRM8(p.rm, res)
	case 0x19: // SBB r/m16,r16
		p.readModRegRM()
		a, b, c := p.readRM16(p.rm), p.reg16(p.reg), b2ui16(p.CF)
		res := a - (b + c)
		p.flagsSub16(a, b, c)
		p.writeRM16(p.rm, res)
	case 0x1A: // SBB r8,r/m8
		p.readModRegRM()
		a, b, c := p.reg8(p.reg), p.readRM8(p.rm), byte(b2ui16(p.CF))
		res := a - (b + c)
		p.flagsSub8(a, b, c)
		p.setReg8(p.reg, res)
	case 0x1B: // SBB r16,r/m16
		p.readModRegRM()
		a, b, c := p.reg16(p.reg), p.readRM16(p.rm), b2ui16(p.CF)
		res := a - (b + c)
		p.flagsSub16(a, b, c)
		p.setReg16(p.reg, res)
	case 0x1C: // SBB AL,d8
		a, b, c := p.AL(), p.readOpcodeStream(), byte(b2ui16(p.CF))
		p.flagsSub8(a, b, c)
		p.SetAL(a - (b + c))
	case 0x1D: // SBB AX,d16
		a, b, c := p.AX, p.readOpcodeImm16(), b2ui16(p.CF)
		p.flagsSub16(a, b, c)
		p.AX = a - (b + c)
	case 0x1E: // PUSH DS
		p.push16(p.DS)
	case 0x1F: // POP DS
		p.popSegment(segDS)

	case 0x20: // AND r/m8,r8
		p.readModRegRM()
		res := p.readRM8(p.rm) & p.reg8(p.reg)
		p.updateFlagsLog8(res)
		p.writeRM8(p.rm, res)
	case 0x21: // AND r/m16,r16
		p.readModRegRM()
		res := p.readRM16(p.rm) & p.reg16(p.reg)
		p.updateFlagsLog16(res)
		p.writeRM16(p.rm, res)
	case 0x22: // AND r8,r/m8
		p.readModRegRM()
		res := p.reg8(p.reg) & p.readRM8(p.rm)
		p.updateFlagsLog8(res)
		p.setReg8(p.reg, res)
	case 0x23: // AND r16,r/m16
		p.readModRegRM()
		res := p.reg16(p.reg) & p.readRM16(p.rm)
		p.updateFlagsLog16(res)
		p.setReg16(p.reg, res)
	case 0x24: // AND AL,d8
		res := p.AL() & p.readOpcodeStream()
		p.updateFlagsLog8(res)
		p.SetAL(res)
	case 0x25: // AND AX,d16
		p.AX &= p.readOpcodeImm16()
		p.updateFlagsLog16(p.AX)
	case 0x27: // DAA
		if al := p.AL(); (al&0xF) > 9 || p.AF {
			v := uint16(al) + 6
			p.SetAL(byte(v))
			p.CF = v&0xFF00 != 0
			p.AF = true
		} else {
			p.AF = false
		}
		if al := p.AL(); (al&0xF0) > 0x90 || p.CF {
			p.SetAL(al + 0x60)
			p.CF = true
		} else {
			p.CF = false
		}
		p.updateFlagsSZP8(p.AL())
	case 0x28: // SUB r/m8,r8
		p.readModRegRM()
		a, b := p.readRM8(p.rm), p.reg8(p.reg)
		res := a - b
		p.flagsSub8(a, b, 0)
		p.writeRM8(p.rm, res)
	case 0x29: // SUB r/m16,r16
		p.readModRegRM()
		a, b := p.readRM16(p.rm), p.reg16(p.reg)
		res := a - b
		p.flagsSub16(a, b, 0)
		p.writeRM16(p.rm, res)
	case 0x2A: // SUB r8,r/m8
		p.readModRegRM()
		a, b := p.reg8(p.reg), p.readRM8(p.rm)
		res := a - b
		p.flagsSub8(a, b, 0)
		p.setReg8(p.reg, res)
	case 0x2B: // SUB r16,r/m16
		p.readModRegRM()
		a, b := p.reg16(p.reg), p.readRM16(p.rm)
		res := a - b
		p.flagsSub16(a, b, 0)
		p.setReg16(p.reg, res)
	case 0x2C: // SUB AL,d8
		a, b := p.AL(), p.readOpcodeStream()
		p.flagsSub8(a, b, 0)
		p.SetAL(a - b)
	case 0x2D: // SUB AX,d16
		a, b := p.AX, p.readOpcodeImm16()
		p.flagsSub16(a, b, 0)
		p.AX = a - b
	case 0x2F: // DAS
		if al := p.AL(); (al&0xF) > 9 || p.AF {
			v := uint16(al) - 6
			p.SetAL(byte(v))
			p.CF = v&0xFF00 != 0
			p.AF = true
		} else {
			p.AF = false
		}
		if al := p.AL(); (al&0xF0) > 0x90 || p.CF {
			p.SetAL(al - 0x60)
			p.CF = true
		} else {
			p.CF = false
		}
		p.updateFlagsSZP8(p.AL())

	case 0x30: // XOR r/m8,r8
		p.readModRegRM()
		res := p.readRM8(p.rm) ^ p.reg8(p.reg)
		p.updateFlagsLog8(res)
		p.writeRM8(p.rm, res)
	case 0x31: // XOR r/m16,r16
		p.readModRegRM()
		res := p.readRM16(p.rm) ^ p.reg16(p.reg)
		p.updateFlagsLog16(res)
		p.writeRM16(p.rm, res)
	case 0x32: // XOR r8,r/m8
		p.readModRegRM()
		res := p.reg8(p.reg) ^ p.readRM8(p.rm)
		p.updateFlagsLog8(res)
		p.setReg8(p.reg, res)
	case 0x33: // XOR r16,r/m16
		p.readModRegRM()
		res := p.reg16(p.reg) ^ p.readRM16(p.rm)
		p.updateFlagsLog16(res)
		p.setReg16(p.reg, res)
	case 0x34: // XOR AL,d8
		res := p.AL() ^ p.readOpcodeStream()
		p.updateFlagsLog8(res)
		p.SetAL(res)
	case 0x35: // XOR AX,d16
		p.AX ^= p.readOpcodeImm16()
		p.updateFlagsLog16(p.AX)
	case 0x37: // AAA
		if al := p.AL(); (al&0xF) > 9 || p.AF {
			p.SetAL(al + 6)
			p.SetAH(p.AH() + 1)
			p.AF, p.CF = true, true
		} else {
			p.AF, p.CF = false, false
		}
		al := p.AL() & 0xF
		p.SetAL(al)
		p.updateFlagsSZP8(al)
	case 0x38: // CMP r/m8,r8
		p.readModRegRM()
		p.flagsSub8(p.readRM8(p.rm), p.reg8(p.reg), 0)
	case 0x39: // CMP r/m16,r16
		p.readModRegRM()
		p.flagsSub16(p.readRM16(p.rm), p.reg16(p.reg), 0)
	case 0x3A: // CMP r8,r/m8
		p.readModRegRM()
		p.flagsSub8(p.reg8(p.reg), p.readRM8(p.rm), 0)
	case 0x3B: // CMP r16,r/m16
		p.readModRegRM()
		p.flagsSub16(p.reg16(p.reg), p.readRM16(p.rm), 0)
	case 0x3C: // CMP AL,d8
		p.flagsSub8(p.AL(), p.readOpcodeStream(), 0)
	case 0x3D: // CMP AX,d16
		p.flagsSub16(p.AX, p.readOpcodeImm16(), 0)
	case 0x3F: // AAS
		if al := p.AL(); (al&0xF) > 9 || p.AF {
			p.SetAL(al - 6)
			p.SetAH(p.AH() - 1)
			p.AF, p.CF = true, true
		} else {
			p.AF, p.CF = false, false
		}
		al := p.AL() & 0xF
		p.SetAL(al)
		p.updateFlagsSZP8(al)

	case 0x40, 0x41, 0x42, 0x43, 0x44, 0x45, 0x46, 0x47: // INC r16
		reg := op - 0x40
		a := p.reg16(reg)
		cf := p.CF
		p.flagsAdd16(a, 1, 0)
		p.CF = cf
		p.setReg16(reg, a+1)
	case 0x48, 0x49, 0x4A, 0x4B, 0x4C, 0x4D, 0x4E, 0x4F: // DEC r16
		reg := op - 0x48
		a := p.reg16(reg)
		cf := p.CF
		p.flagsSub16(a, 1, 0)
		p.CF = cf
		p.setReg16(reg, a-1)

	case 0x50, 0x51, 0x52, 0x53, 0x54, 0x55, 0x56, 0x57: // PUSH r16
		p.push16(p.reg16(op - 0x50))
	case 0x58, 0x59, 0x5A, 0x5B, 0x5C, 0x5D, 0x5E, 0x5F: // POP r16
		p.setReg16(op-0x58, p.pop16())

	case 0x60: // PUSHA
		sp := p.SP
		p.push16(p.AX)
		p.push16(p.CX)
		p.push16(p.DX)
		p.push16(p.BX)
		p.push16(sp)
		p.push16(p.BP)
		p.push16(p.SI)
		p.push16(p.DI)
	case 0x61: // POPA
		p.DI = p.pop16()
		p.SI = p.pop16()
		p.BP = p.pop16()
		p.SP += 2 // skip the stored SP
		p.BX = p.pop16()
		p.DX = p.pop16()
		p.CX = p.pop16()
		p.AX = p.pop16()
	case 0x62: // BOUND r16,m16&16
		p.readModRegRM()
		ea := p.getEA(p.rm)
		idx := signExtend32(p.reg16(p.reg))
		if idx < signExtend32(p.getMem16(uint16(ea>>4), uint16(ea&15))) {
			p.doInterrupt(5)
		} else {
			ea += 2
			if idx > signExtend32(p.getMem16(uint16(ea>>4), uint16(ea&15))) {
				p.doInterrupt(5)
			}
		}
	case 0x63: // ARPL r/m16,r16
		if !p.protectedMode {
			p.invalidOpcode()
			break
		}
		p.readModRegRM()
		dst, src := p.readRM16(p.rm), p.reg16(p.reg)
		if src&0xFFFC == 0 {
			p.doInterrupt(13)
		} else if dst&3 < src&3 {
			p.ZF = true
			p.writeRM16(p.rm, dst&0xFFFC|src&3)
		} else {
			p.ZF = false
		}
	case 0x68: // PUSH d16
		p.push16(p.readOpcodeImm16())
	case 0x69: // IMUL r16,r/m16,d16
		p.readModRegRM()
		a := signExtend32(p.readRM16(p.rm))
		b := signExtend32(p.readOpcodeImm16())
		res := uint32(int32(a) * int32(b))
		p.setReg16(p.reg, uint16(res))
		p.CF = res&0xFFFF0000 != 0
		p.OF = p.CF
	case 0x6A: // PUSH d8
		p.push16(signExtend16(p.readOpcodeStream()))
	case 0x6B: // IMUL r16,r/m16,d8
		p.readModRegRM()
		a := signExtend32(p.readRM16(p.rm))
		b := signExtend32(signExtend16(p.readOpcodeStream()))
		res := uint32(int32(a) * int32(b))
		p.setReg16(p.reg, uint16(res))
		p.CF = res&0xFFFF0000 != 0
		p.OF = p.CF
	case 0x6C: // INSB
		if p.repeatMode != 0 && p.CX == 0 {
			break
		}
		p.putMem8(p.ES, p.DI, p.InByte(p.DX))
		p.stepStringIndexes(1, true, true)
		p.repeatStringOp(false)
	case 0x6D: // INSW
		if p.repeatMode != 0 && p.CX == 0 {
			break
		}
		p.putMem16(p.ES, p.DI, p.InWord(p.DX))
		p.stepStringIndexes(2, true, true)
		p.repeatStringOp(false)
	case 0x6E: // OUTSB
		if p.repeatMode != 0 && p.CX == 0 {
			break
		}
		p.OutByte(p.DX, p.getMem8(p.useSeg, p.SI))
		p.stepStringIndexes(1, true, true)
		p.repeatStringOp(false)
	case 0x6F: // OUTSW
		if p.repeatMode != 0 && p.CX == 0 {
			break
		}
		p.OutWord(p.DX, p.getMem16(p.useSeg, p.SI))
		p.stepStringIndexes(2, true, true)
		p.repeatStringOp(false)

	case 0x70: // JO rel8
		p.jmpRel8Cond(p.OF)
	case 0x71: // JNO rel8
		p.jmpRel8Cond(!p.OF)
	case 0x72: // JB/JNAE rel8
		p.jmpRel8Cond(p.CF)
	case 0x73: // JNB/JAE rel8
		p.jmpRel8Cond(!p.CF)
	case 0x74: // JE/JZ rel8
		p.jmpRel8Cond(p.ZF)
	case 0x75: // JNE/JNZ rel8
		p.jmpRel8Cond(!p.ZF)
	case 0x76: // JBE/JNA rel8
		p.jmpRel8Cond(p.CF || p.ZF)
	case 0x77: // JNBE/JA rel8
		p.jmpRel8Cond(!p.CF && !p.ZF)
	case 0x78: // JS rel8
		p.jmpRel8Cond(p.SF)
	case 0x79: // JNS rel8
		p.jmpRel8Cond(!p.SF)
	case 0x7A: // JP/JPE rel8
		p.jmpRel8Cond(p.PF)
	case 0x7B: // JNP/JPO rel8
		p.jmpRel8Cond(!p.PF)
	case 0x7C: // JL/JNGE rel8
		p.jmpRel8Cond(p.SF != p.OF)
	case 0x7D: // JNL/JGE rel8
		p.jmpRel8Cond(p.SF == p.OF)
	case 0x7E: // JLE/JNG rel8
		p.jmpRel8Cond(p.SF != p.OF || p.ZF)
	case 0x7F: // JNLE/JG rel8
		p.jmpRel8Cond(!p.ZF && p.SF == p.OF)

	case 0x80, 0x82: // _ALU1 r/m8,d8
		p.grp1()
	case 0x81, 0x83: // _ALU1 r/m16,d16/d8
		p.grp1w()
	case 0x84: // TEST r/m8,r8
		p.readModRegRM()
		p.updateFlagsLog8(p.readRM8(p.rm) & p.reg8(p.reg))
	case 0x85: // TEST r/m16,r16
		p.readModRegRM()
		p.updateFlagsLog16(p.readRM16(p.rm) & p.reg16(p.reg))
	case 0x86: // XCHG r8,r/m8
		p.readModRegRM()
		a, b := p.reg8(p.reg), p.readRM8(p.rm)
		p.setReg8(p.reg, b)
		p.writeRM8(p.rm, a)
	case 0x87: // XCHG r16,r/m16
		p.readModRegRM()
		a, b := p.reg16(p.reg), p.readRM16(p.rm)
		p.setReg16(p.reg, b)
		p.writeRM16(p.rm, a)
	case 0x88: // MOV r/m8,r8
		p.readModRegRM()
		p.writeRM8(p.rm, p.reg8(p.reg))
	case 0x89: // MOV r/m16,r16
		p.readModRegRM()
		p.writeRM16(p.rm, p.reg16(p.reg))
	case 0x8A: // MOV r8,r/m8
		p.readModRegRM()
		p.setReg8(p.reg, p.readRM8(p.rm))
	case 0x8B: // MOV r16,r/m16
		p.readModRegRM()
		p.setReg16(p.reg, p.readRM16(p.rm))
	case 0x8C: // MOV r/m16,sr
		p.readModRegRM()
		p.writeRM16(p.rm, p.segReg(p.reg))
	case 0x8D: // LEA r16,m
		p.readModRegRM()
		p.setReg16(p.reg, p.effectiveOffset(p.rm))
	case 0x8E: // MOV sr,r/m16
		p.readModRegRM()
		v := p.readRM16(p.rm)
		if p.protectedMode {
			p.loadDescriptor(p.reg&3, v)
		}
		p.setSegReg(p.reg, v)
	case 0x8F: // POP r/m16
		p.readModRegRM()
		p.writeRM16(p.rm, p.pop16())

	case 0x90: // NOP
		p.stats.NOP++
	case 0x91, 0x92, 0x93, 0x94, 0x95, 0x96, 0x97: // XCHG AX,r16
		reg := op - 0x90
		v := p.reg16(reg)
		p.setReg16(reg, p.AX)
		p.AX = v
	case 0x98: // CBW
		p.AX = signExtend16(p.AL())
	case 0x99: // CWD
		if p.AX&0x8000 != 0 {
			p.DX = 0xFFFF
		} else {
			p.DX = 0
		}
	case 0x9A: // CALL seg:a16
		ip := p.readOpcodeImm16()
		cs := p.readOpcodeImm16()
		p.push16(p.CS)
		p.push16(p.IP)
		p.IP, p.CS = ip, cs
		if p.protectedMode {
			p.loadDescriptor(segCS, p.CS)
		}
	case 0x9B: // WAIT
	case 0x9C: // PUSHF
		if p.protectedMode {
			p.push16(p.packFlags16())
		} else {
			p.push16(p.packFlags16() & 0x0FFF)
		}
	case 0x9D: // POPF
		p.opPOPF()
	case 0x9E: // SAHF
		flags := p.packFlags16()&0xFF00 | uint16(p.AH())
		p.unpackFlags16(flags)
	case 0x9F: // LAHF
		p.SetAH(byte(p.packFlags16()))

	case 0xA0: // MOV AL,[addr]
		p.SetAL(p.getMem8(p.useSeg, p.readOpcodeImm16()))
	case 0xA1: // MOV AX,[addr]
		p.AX = p.getMem16(p.useSeg, p.readOpcodeImm16())
	case 0xA2: // MOV [addr],AL
		p.putMem8(p.useSeg, p.readOpcodeImm16(), p.AL())
	case 0xA3: // MOV [addr],AX
		p.putMem16(p.useSeg, p.readOpcodeImm16(), p.AX)
	case 0xA4: // MOVSB
		if p.repeatMode != 0 && p.CX == 0 {
			break
		}
		p.putMem8(p.ES, p.DI, p.getMem8(p.useSeg, p.SI))
		p.stepStringIndexes(1, true, true)
		p.repeatStringOp(false)
	case 0xA5: // MOVSW
		if p.repeatMode != 0 && p.CX == 0 {
			break
		}
		p.putMem16(p.ES, p.DI, p.getMem16(p.useSeg, p.SI))
		p.stepStringIndexes(2, true, true)
		p.repeatStringOp(false)
	case 0xA6: // CMPSB
		if p.repeatMode != 0 && p.CX == 0 {
			break
		}
		a, b := p.getMem8(p.useSeg, p.SI), p.getMem8(p.ES, p.DI)
		p.stepStringIndexes(1, true, true)
		p.flagsSub8(a, b, 0)
		p.repeatStringOp(true)
	case 0xA7: // CMPSW
		if p.repeatMode != 0 && p.CX == 0 {
			break
		}
		a, b := p.getMem16(p.useSeg, p.SI), p.getMem16(p.ES, p.DI)
		p.stepStringIndexes(2, true, true)
		p.flagsSub16(a, b, 0)
		p.repeatStringOp(true)
	case 0xA8: // TEST AL,d8
		p.updateFlagsLog8(p.AL() & p.readOpcodeStream())
	case 0xA9: // TEST AX,d16
		p.updateFlagsLog16(p.AX & p.readOpcodeImm16())
	case 0xAA: // STOSB
		if p.repeatMode != 0 && p.CX == 0 {
			break
		}
		p.putMem8(p.ES, p.DI, p.AL())
		p.stepStringIndexes(1, false, true)
		p.repeatStringOp(false)
	case 0xAB: // STOSW
		if p.repeatMode != 0 && p.CX == 0 {
			break
		}
		p.putMem16(p.ES, p.DI, p.AX)
		p.stepStringIndexes(2, false, true)
		p.repeatStringOp(false)
	case 0xAC: // LODSB
		if p.repeatMode != 0 && p.CX == 0 {
			break
		}
		p.SetAL(p.getMem8(p.useSeg, p.SI))
		p.stepStringIndexes(1, true, false)
		p.repeatStringOp(false)
	case 0xAD: // LODSW
		if p.repeatMode != 0 && p.CX == 0 {
			break
		}
		p.AX = p.getMem16(p.useSeg, p.SI)
		p.stepStringIndexes(2, true, false)
		p.repeatStringOp(false)
	case 0xAE: // SCASB
		if p.repeatMode != 0 && p.CX == 0 {
			break
		}
		a, b := p.AL(), p.getMem8(p.ES, p.DI)
		p.flagsSub8(a, b, 0)
		p.stepStringIndexes(1, false, true)
		p.repeatStringOp(true)
	case 0xAF: // SCASW
		if p.repeatMode != 0 && p.CX == 0 {
			break
		}
		a, b := p.AX, p.getMem16(p.ES, p.DI)
		p.flagsSub16(a, b, 0)
		p.stepStringIndexes(2, false, true)
		p.repeatStringOp(true)

	case 0xB0, 0xB1, 0xB2, 0xB3, 0xB4, 0xB5, 0xB6, 0xB7: // MOV r8,d8
		p.setReg8(op-0xB0, p.readOpcodeStream())
	case 0xB8, 0xB9, 0xBA, 0xBB, 0xBC, 0xBD, 0xBE, 0xBF: // MOV r16,d16
		p.setReg16(op-0xB8, p.readOpcodeImm16())

	case 0xC0: // _ROT r/m8,d8
		p.readModRegRM()
		a := p.readRM8(p.rm)
		cnt := p.readOpcodeStream()
		p.writeRM8(p.rm, p.shiftOrRotate8(p.reg, a, cnt))
	case 0xC1: // _ROT r/m16,d8
		p.readModRegRM()
		a := p.readRM16(p.rm)
		cnt := p.readOpcodeStream()
		p.writeRM16(p.rm, p.shiftOrRotate16(p.reg, a, cnt))
	case 0xC2: // RET d16
		n := p.readOpcodeImm16()
		p.IP = p.pop16()
		p.SP += n
	case 0xC3: // RET
		p.IP = p.pop16()
	case 0xC4: // LES r16,m32
		p.readModRegRM()
		ea := p.getEA(p.rm)
		p.setReg16(p.reg, uint16(p.ReadByte(ea))|uint16(p.ReadByte(ea+1))<<8)
		p.ES = uint16(p.ReadByte(ea+2)) | uint16(p.ReadByte(ea+3))<<8
	case 0xC5: // LDS r16,m32
		p.readModRegRM()
		ea := p.getEA(p.rm)
		p.setReg16(p.reg, uint16(p.ReadByte(ea))|uint16(p.ReadByte(ea+1))<<8)
		p.DS = uint16(p.ReadByte(ea+2)) | uint16(p.ReadByte(ea+3))<<8
	case 0xC6: // MOV r/m8,d8
		p.readModRegRM()
		p.writeRM8(p.rm, p.readOpcodeStream())
	case 0xC7: // MOV r/m16,d16
		p.readModRegRM()
		p.writeRM16(p.rm, p.readOpcodeImm16())
	case 0xC8: // ENTER
		size := p.readOpcodeImm16()
		level := p.readOpcodeStream()
		p.push16(p.BP)
		frame := p.SP
		if level != 0 {
			for i := byte(1); i < level; i++ {
				p.BP -= 2
				p.push16(p.BP)
			}
			p.push16(frame)
		}
		p.BP = frame
		p.SP = p.BP - size
	case 0xC9: // LEAVE
		p.SP = p.BP
		p.BP = p.pop16()
	case 0xCA: // RETF d16
		n := p.readOpcodeImm16()
		p.IP = p.pop16()
		p.CS = p.pop16()
		p.SP += n
	case 0xCB: // RETF
		p.IP = p.pop16()
		p.CS = p.pop16()
	case 0xCC: // INT 3
		p.doInterrupt(3)
	case 0xCD: // INT d8
		p.doInterrupt(int(p.readOpcodeStream()))
	case 0xCE: // INTO
		if p.OF {
			p.doInterrupt(4)
		}
	case 0xCF: // IRET
		p.opIRET()

	case 0xD0: // _ROT r/m8,1
		p.readModRegRM()
		p.writeRM8(p.rm, p.shiftOrRotate8(p.reg, p.readRM8(p.rm), 1))
	case 0xD1: // _ROT r/m16,1
		p.readModRegRM()
		p.writeRM16(p.rm, p.shiftOrRotate16(p.reg, p.readRM16(p.rm), 1))
	case 0xD2: // _ROT r/m8,CL
		p.readModRegRM()
		p.writeRM8(p.rm, p.shiftOrRotate8(p.reg, p.readRM8(p.rm), p.CL()))
	case 0xD3: // _ROT r/m16,CL
		p.readModRegRM()
		p.writeRM16(p.rm, p.shiftOrRotate16(p.reg, p.readRM16(p.rm), p.CL()))
	case 0xD4: // AAM d8
		if b := p.readOpcodeStream(); b == 0 {
			p.doInterrupt(0)
		} else {
			a := p.AL()
			p.SetAH(a / b)
			p.SetAL(a % b)
			p.updateFlagsSZP16(p.AX)
		}
	case 0xD5: // AAD d8
		b := p.readOpcodeStream()
		p.SetAL(p.AH()*b + p.AL())
		p.SetAH(0)
		p.updateFlagsSZP16(p.AX)
		p.SF = false
	case 0xD6: // SALC
		if p.CF {
			p.SetAL(0xFF)
		} else {
			p.SetAL(0)
		}
	case 0xD7: // XLAT
		p.SetAL(p.getMem8(p.useSeg, p.BX+uint16(p.AL())))
	case 0xD8, 0xD9, 0xDA, 0xDB, 0xDC, 0xDD, 0xDE, 0xDF: // ESC (x87)
		if p.msw&0x0008 != 0 {
			// Task switched; let the handler restore the coprocessor
			// context and restart the instruction.
			p.doInterrupt(7)
			p.IP = p.saveIP
			break
		}
		p.readModRegRM()
		p.fpuExecute()

	case 0xE0: // LOOPNZ rel8
		diff := signExtend16(p.readOpcodeStream())
		p.CX--
		if p.CX != 0 && !p.ZF {
			p.IP += diff
		}
	case 0xE1: // LOOPZ rel8
		diff := signExtend16(p.readOpcodeStream())
		p.CX--
		if p.CX != 0 && p.ZF {
			p.IP += diff
		}
	case 0xE2: // LOOP rel8
		diff := signExtend16(p.readOpcodeStream())
		p.CX--
		if p.CX != 0 {
			p.IP += diff
		}
	case 0xE3: // JCXZ rel8
		p.jmpRel8Cond(p.CX == 0)
	case 0xE4: // IN AL,[d8]
		p.SetAL(p.InByte(uint16(p.readOpcodeStream())))
	case 0xE5: // IN AX,[d8]
		p.AX = p.InWord(uint16(p.readOpcodeStream()))
	case 0xE6: // OUT [d8],AL
		p.OutByte(uint16(p.readOpcodeStream()), p.AL())
	case 0xE7: // OUT [d8],AX
		p.OutWord(uint16(p.readOpcodeStream()), p.AX)
	case 0xE8: // CALL rel16
		diff := p.readOpcodeImm16()
		p.push16(p.IP)
		p.IP += diff
	case 0xE9: // JMP rel16
		p.IP += p.readOpcodeImm16()
	case 0xEA: // JMP seg:a16
		ip := p.readOpcodeImm16()
		cs := p.readOpcodeImm16()
		p.IP, p.CS = ip, cs
		if p.protectedMode {
			p.loadDescriptor(segCS, p.CS)
		}
	case 0xEB: // JMP rel8
		p.IP += signExtend16(p.readOpcodeStream())
	case 0xEC: // IN AL,[DX]
		p.SetAL(p.InByte(p.DX))
	case 0xED: // IN AX,[DX]
		p.AX = p.InWord(p.DX)
	case 0xEE: // OUT [DX],AL
		p.OutByte(p.DX, p.AL())
	case 0xEF: // OUT [DX],AX
		p.OutWord(p.DX, p.AX)

	case 0xF4: // HLT
		p.halted = true
	case 0xF5: // CMC
		p.CF = !p.CF
	case 0xF6: // _ALU2 r/m8
		p.grp3a()
	case 0xF7: // _ALU2 r/m16
		p.grp3b()
	case 0xF8: // CLC
		p.CF = false
	case 0xF9: // STC
		p.CF = true
	case 0xFA: // CLI
		p.IF = false
	case 0xFB: // STI
		p.IF = true
	case 0xFC: // CLD
		p.DF = false
	case 0xFD: // STD
		p.DF = true
	case 0xFE: // _MISC r/m8
		p.grp4()
	case 0xFF: // _MISC r/m16
		p.grp5()
	default:
		p.invalidOpcode()
	}
}

// effectiveOffset computes the 16-bit operand offset without segment
// translation, for LEA.
func (p *CPU) effectiveOffset(rm byte) uint16 {
	switch p.mode {
	case 0:
		switch rm {
		case 0:
			return p.BX + p.SI
		case 1:
			return p.BX + p.DI
		case 2:
			return p.BP + p.SI
		case 3:
			return p.BP + p.DI
		case 4:
			return p.SI
		case 5:
			return p.DI
		case 6:
			return p.disp16
		default:
			return p.BX
		}
	case 1, 2:
		switch rm {
		case 0:
			return p.BX + p.SI + p.disp16
		case 1:
			return p.BX + p.DI + p.disp16
		case 2:
			return p.BP + p.SI + p.disp16
		case 3:
			return p.BP + p.DI + p.disp16
		case 4:
			return p.SI + p.disp16
		case 5:
			return p.DI + p.disp16
		case 6:
			return p.BP + p.disp16
		default:
			return p.BX + p.disp16
		}
	}
	return p.reg16(rm)
}

// popSegment pops a selector into a segment register, going through the
// descriptor loader in protected mode.
func (p *CPU) popSegment(seg byte) {
	v := p.pop16()
	if p.protectedMode {
		p.loadDescriptor(seg, v)
	}
	p.setSegReg(seg, v)
}

func (p *CPU) opPOPF() {
	newFlags := p.pop16()
	oldFlags := p.packFlags16()

	if p.protectedMode {
		cpl := p.CS & 3
		iopl := (oldFlags >> 12) & 3

		// IF only changes at sufficient privilege; IOPL only at level 0.
		if uint16(cpl) > iopl {
			newFlags = newFlags&^0x0200 | oldFlags&0x0200
		}
		if cpl != 0 {
			newFlags = newFlags&^0x3000 | oldFlags&0x3000
		}
		newFlags = newFlags&0x72FF | 0x0002
	} else {
		newFlags = newFlags&0x72FF | 0xF002
	}
	p.unpackFlags16(newFlags)
}

func (p *CPU) opIRET() {
	if p.protectedMode {
		ip := p.pop16()
		cs := p.pop16()
		flags := p.pop16()

		// Outer privilege return restores the interrupted stack.
		if cs&3 > p.CS&3 {
			sp := p.pop16()
			ss := p.pop16()
			p.loadDescriptor(segSS, ss)
			p.SS = ss
			p.SP = sp
		}

		p.loadDescriptor(segCS, cs)
		p.CS = cs
		p.IP = ip
		p.unpackFlags16(flags)
	} else {
		p.IP = p.pop16()
		p.CS = p.pop16()
		p.unpackFlags16(p.pop16())
	}
}

// stepStringIndexes advances SI/DI by the operand width in the direction
// given by DF and counts down CX under a repeat prefix.
func (p *CPU) stepStringIndexes(n uint16, si, di bool) {
	if p.DF {
		n = -n
	}
	if si {
		p.SI += n
	}
	if di {
		p.DI += n
	}
	if p.repeatMode != 0 {
		p.CX--
	}
}

// repeatStringOp rewinds IP to the first byte of the instruction so a
// repeat prefixed string op re-enters the fetch loop. Yielding between
// iterations lets external interrupts preempt long transfers.
func (p *CPU) repeatStringOp(primitive bool) {
	if p.repeatMode == 0 {
		return
	}
	if primitive {
		if p.repeatMode == 0xF3 && !p.ZF {
			return
		}
		if p.repeatMode == 0xF2 && p.ZF {
			return
		}
	}
	p.IP = p.firstIP
}

func (p *CPU) jmpRel8Cond(cond bool) {
	diff := signExtend16(p.readOpcodeStream())
	if cond {
		p.IP += diff
	}
}

func (p *CPU) invalidOpcode() {
	log.Printf("invalid opcode: 0x%X at 0x%X:0x%X", p.opcode, p.saveCS, p.saveIP)
	p.doInterrupt(6)
}

func (p *CPU) grp1() {
	p.readModRegRM()
	a, b := p.readRM8(p.rm), p.readOpcodeStream()

	var res byte
	switch p.reg {
	case 0: // ADD
		res = a + b
		p.flagsAdd8(a, b, 0)
	case 1: // OR
		res = a | b
		p.updateFlagsLog8(res)
	case 2: // ADC
		c := byte(b2ui16(p.CF))
		res = a + b + c
		p.flagsAdd8(a, b, c)
	case 3: // SBB
		c := byte(b2ui16(p.CF))
		res = a - (b + c)
		p.flagsSub8(a, b, c)
	case 4: // AND
		res = a & b
		p.updateFlagsLog8(res)
	case 5: // SUB
		res = a - b
		p.flagsSub8(a, b, 0)
	case 6: // XOR
		res = a ^ b
		p.updateFlagsLog8(res)
	case 7: // CMP
		p.flagsSub8(a, b, 0)
		return
	}
	p.writeRM8(p.rm, res)
}

func (p *CPU) grp1w() {
	p.readModRegRM()
	a := p.readRM16(p.rm)

	var b uint16
	if p.opcode == 0x83 {
		b = signExtend16(p.readOpcodeStream())
	} else {
		b = p.readOpcodeImm16()
	}

	var res uint16
	switch p.reg {
	case 0: // ADD
		res = a + b
		p.flagsAdd16(a, b, 0)
	case 1: // OR
		res = a | b
		p.updateFlagsLog16(res)
	case 2: // ADC
		c := b2ui16(p.CF)
		res = a + b + c
		p.flagsAdd16(a, b, c)
	case 3: // SBB
		c := b2ui16(p.CF)
		res = a - (b + c)
		p.flagsSub16(a, b, c)
	case 4: // AND
		res = a & b
		p.updateFlagsLog16(res)
	case 5: // SUB
		res = a - b
		p.flagsSub16(a, b, 0)
	case 6: // XOR
		res = a ^ b
		p.updateFlagsLog16(res)
	case 7: // CMP
		p.flagsSub16(a, b, 0)
		return
	}
	p.writeRM16(p.rm, res)
}

func (p *CPU) opDIV8(a uint16, b byte) {
	if b == 0 {
		p.doInterrupt(0)
		return
	}
	if res := a / uint16(b); res > 0xFF {
		p.doInterrupt(0)
	} else {
		p.SetAL(byte(res))
		p.SetAH(byte(a % uint16(b)))
	}
}

func (p *CPU) opIDIV8(a uint16, b byte) {
	if b == 0 {
		p.doInterrupt(0)
		return
	}

	d := signExtend16(b)
	sign := (a^d)&0x8000 != 0

	if a >= 0x8000 {
		a = -a
	}
	if d >= 0x8000 {
		d = -d
	}

	quo, rem := a/d, a%d
	if quo&0xFF00 != 0 {
		p.doInterrupt(0)
		return
	}

	if sign {
		quo = -quo & 0xFF
		rem = -rem & 0xFF
	}
	p.SetAL(byte(quo))
	p.SetAH(byte(rem))
}

func (p *CPU) opDIV16(a uint32, b uint16) {
	if b == 0 {
		p.doInterrupt(0)
		return
	}
	if res := a / uint32(b); res > 0xFFFF {
		p.doInterrupt(0)
	} else {
		p.AX, p.DX = uint16(res), uint16(a%uint32(b))
	}
}

func (p *CPU) opIDIV16(a uint32, b uint16) {
	if b == 0 {
		p.doInterrupt(0)
		return
	}

	d := signExtend32(b)
	sign := (a^d)&0x80000000 != 0

	if a >= 0x80000000 {
		a = -a
	}
	if d >= 0x80000000 {
		d = -d
	}

	quo, rem := a/d, a%d
	if quo&0xFFFF0000 != 0 {
		p.doInterrupt(0)
		return
	}

	if sign {
		quo = -quo & 0xFFFF
		rem = -rem & 0xFFFF
	}
	p.AX, p.DX = uint16(quo), uint16(rem)
}

func (p *CPU) grp3a() {
	p.readModRegRM()
	a := p.readRM8(p.rm)

	switch p.reg {
	case 0, 1: // TEST
		p.updateFlagsLog8(a & p.readOpcodeStream())
	case 2: // NOT
		p.writeRM8(p.rm, ^a)
	case 3: // NEG
		res := -a
		p.flagsSub8(0, a, 0)
		p.CF = a != 0
		p.writeRM8(p.rm, res)
	case 4: // MUL
		res := uint32(a) * uint32(p.AL())
		p.AX = uint16(res)
		p.updateFlagsSZP8(a)
		p.CF = p.AH() != 0
		p.OF = p.CF
	case 5: // IMUL
		res := uint32(int32(int8(p.AL())) * int32(int8(a)))
		p.AX = uint16(res)
		p.CF = p.AH() != 0
		p.OF = p.CF
	case 6: // DIV
		p.opDIV8(p.AX, a)
	case 7: // IDIV
		p.opIDIV8(p.AX, a)
	}
}

func (p *CPU) grp3b() {
	p.readModRegRM()
	a := p.readRM16(p.rm)

	switch p.reg {
	case 0, 1: // TEST
		p.updateFlagsLog16(a & p.readOpcodeImm16())
	case 2: // NOT
		p.writeRM16(p.rm, ^a)
	case 3: // NEG
		res := -a
		p.flagsSub16(0, a, 0)
		p.CF = a != 0
		p.writeRM16(p.rm, res)
	case 4: // MUL
		res := uint32(a) * uint32(p.AX)
		p.AX, p.DX = uint16(res), uint16(res>>16)
		p.updateFlagsSZP16(a)
		p.CF = p.DX != 0
		p.OF = p.CF
	case 5: // IMUL
		res := uint32(int32(int16(p.AX)) * int32(int16(a)))
		p.AX, p.DX = uint16(res), uint16(res>>16)
		p.CF = p.DX != 0
		p.OF = p.CF
	case 6: // DIV
		p.opDIV16(uint32(p.DX)<<16|uint32(p.AX), a)
	case 7: // IDIV
		p.opIDIV16(uint32(p.DX)<<16|uint32(p.AX), a)
	}
}

func (p *CPU) grp4() {
	p.readModRegRM()
	a := p.readRM8(p.rm)
	cf := p.CF

	switch p.reg {
	case 0: // INC
		p.flagsAdd8(a, 1, 0)
		p.CF = cf
		p.writeRM8(p.rm, a+1)
	case 1: // DEC
		p.flagsSub8(a, 1, 0)
		p.CF = cf
		p.writeRM8(p.rm, a-1)
	default:
		p.invalidOpcode()
	}
}

func (p *CPU) grp5() {
	p.readModRegRM()
	a := p.readRM16(p.rm)

	switch p.reg {
	case 0: // INC
		cf := p.CF
		p.flagsAdd16(a, 1, 0)
		p.CF = cf
		p.writeRM16(p.rm, a+1)
	case 1: // DEC
		cf := p.CF
		p.flagsSub16(a, 1, 0)
		p.CF = cf
		p.writeRM16(p.rm, a-1)
	case 2: // CALL r/m16
		p.push16(p.IP)
		p.IP = a
	case 3: // CALL m16:16
		p.push16(p.CS)
		p.push16(p.IP)
		ea := p.getEA(p.rm)
		p.IP = uint16(p.ReadByte(ea)) | uint16(p.ReadByte(ea+1))<<8
		p.CS = uint16(p.ReadByte(ea+2)) | uint16(p.ReadByte(ea+3))<<8
	case 4: // JMP r/m16
		p.IP = a
	case 5: // JMP m16:16
		ea := p.getEA(p.rm)
		p.IP = uint16(p.ReadByte(ea)) | uint16(p.ReadByte(ea+1))<<8
		p.CS = uint16(p.ReadByte(ea+2)) | uint16(p.ReadByte(ea+3))<<8
		if p.protectedMode {
			p.loadDescriptor(segCS, p.CS)
		}
	case 6: // PUSH r/m16
		p.push16(a)
	default:
		p.invalidOpcode()
	}
}
