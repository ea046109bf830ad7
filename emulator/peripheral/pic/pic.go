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

package pic

import (
	"errors"

	"github.com/andreas-jonsson/virtual286/emulator/processor"
)

var ErrNoInterrupts = errors.New("no interrupts")

// chip is a single 8259. AT class machines carry two, with the slave
// cascaded onto master line 2.
type chip struct {
	imr, irr, isr byte
	icwStep       byte
	readMode      byte
	icw           [5]byte
	slave         bool
}

func (c *chip) reset(slave bool) {
	*c = chip{slave: slave}
	if slave {
		c.icw[2] = 0x70
	} else {
		c.icw[2] = 0x08
	}
}

func (c *chip) in(port uint16) byte {
	switch port & 1 {
	case 0:
		if c.readMode == 0 {
			return c.irr
		}
		return c.isr
	default:
		return c.imr
	}
}

func (c *chip) out(port uint16, data byte) {
	switch port & 1 {
	case 0:
		if data&0x10 != 0 { // ICW1 restarts initialization
			c.imr = 0
			c.icw[1] = data
			c.icwStep = 2
			c.readMode = 0
		} else if data&0x08 == 0 { // OCW2
			switch data & 0xE0 {
			case 0x60: // specific EOI
				c.irr &^= 1 << (data & 7)
				c.isr &^= 1 << (data & 7)
			case 0x20: // nonspecific EOI
				c.irr &^= c.isr
				c.isr = 0
			}
		} else { // OCW3
			if data&0x02 != 0 {
				c.readMode = data & 1
			}
		}
	default:
		switch c.icwStep {
		case 2:
			c.icw[2] = data
			if c.icw[1]&0x02 != 0 {
				c.icwStep = 5
			} else {
				c.icwStep = 3
			}
		case 3:
			c.icw[3] = data
			if c.icw[1]&0x01 != 0 {
				c.icwStep = 4
			} else {
				c.icwStep = 5
			}
		case 4:
			c.icw[4] = data
			c.icwStep = 5
		default:
			c.imr = data
		}
	}
}

// raise posts an interrupt request, honoring the mask register.
func (c *chip) raise(n int) {
	c.irr |= byte(1<<uint(n)) & ^c.imr
}

func (c *chip) next() (byte, bool) {
	pending := c.irr & ^c.imr
	for i := 0; i < 8; i++ {
		if pending>>uint(i)&1 != 0 {
			c.irr &^= 1 << uint(i)
			c.isr |= 1 << uint(i)
			return c.icw[2]&0xF8 + byte(i), true
		}
	}
	return 0, false
}

// Device is the cascaded interrupt controller pair at ports 0x20/0x21 and
// 0xA0/0xA1.
type Device struct {
	master, slave chip
}

func (m *Device) Install(p processor.Processor) error {
	if err := p.InstallIODevice(m, 0x20, 0x21); err != nil {
		return err
	}
	return p.InstallIODevice(m, 0xA0, 0xA1)
}

func (m *Device) Name() string {
	return "Programmable Interrupt Controller (Intel 8259 pair)"
}

func (m *Device) Reset() {
	m.master.reset(false)
	m.slave.reset(true)
}

func (m *Device) Step(int) error {
	return nil
}

// IRQ posts line n, 0-15. Slave lines cascade onto master line 2.
func (m *Device) IRQ(n int) {
	if n >= 8 {
		m.slave.raise(n - 8)
		m.master.raise(2)
		return
	}
	m.master.raise(n)
}

func (m *Device) GetInterrupt() (int, error) {
	pending := m.master.irr & ^m.master.imr
	if pending == 0 {
		return 0, ErrNoInterrupts
	}
	for i := 0; i < 8; i++ {
		if pending>>uint(i)&1 == 0 {
			continue
		}
		if i == 2 {
			if v, ok := m.slave.next(); ok {
				m.master.irr &^= 1 << 2
				m.master.isr |= 1 << 2
				return int(v), nil
			}
			m.master.irr &^= 1 << 2
			continue
		}
		v, _ := m.master.next()
		return int(v), nil
	}
	return 0, ErrNoInterrupts
}

func (m *Device) In(port uint16) byte {
	if port&0x80 != 0 {
		return m.slave.in(port)
	}
	return m.master.in(port)
}

func (m *Device) Out(port uint16, data byte) {
	if port&0x80 != 0 {
		m.slave.out(port, data)
		return
	}
	m.master.out(port, data)
}
